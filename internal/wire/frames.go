package wire

import "encoding/binary"

// ListRequest builds a directory listing request for a wire path
// (leading slash, segments joined by '/').
func ListRequest(path string) []byte {
	frame := make([]byte, 0, 1+len(path))
	frame = append(frame, OpList)
	frame = append(frame, path...)
	return frame
}

// DownloadRequest builds a file download request. Offset and stride are
// reserved by the firmware and always written as zero.
func DownloadRequest(path string) []byte {
	frame := make([]byte, 9, 9+len(path))
	frame[0] = OpDownload
	binary.LittleEndian.PutUint32(frame[1:5], 0) // offset
	binary.LittleEndian.PutUint32(frame[5:9], 0) // stride
	frame = append(frame, path...)
	return frame
}

// Ack builds an acknowledgment for one received data frame.
func Ack(seq uint8) []byte {
	return []byte{OpAck, seq}
}

// AbortTransfer builds the download abort frame.
func AbortTransfer() []byte {
	return []byte{OpAbort}
}

// TimerStart builds the timer start command.
func TimerStart() []byte {
	return []byte{OpTimerStart}
}

// TimerCancel builds the timer cancel command.
func TimerCancel() []byte {
	return []byte{OpTimerCancel}
}

// ParseDataFrame splits an inbound transfer notification into its
// sequence number and payload. ok is false when the frame is not a data
// frame (wrong opcode or too short); an empty payload marks end of
// transfer.
func ParseDataFrame(buf []byte) (seq uint8, payload []byte, ok bool) {
	if len(buf) < 2 || buf[0] != OpData {
		return 0, nil, false
	}
	return buf[1], buf[2:], true
}
