package wire

// CompanyID is the manufacturer identifier the gate advertises, read
// little-endian from the first two manufacturer-data bytes.
const CompanyID uint16 = 0x5A43

// Opcodes written to the command characteristic.
const (
	OpDownload uint8 = 0x02 // download request: opcode + offset u32 + stride u32 + path
	OpList     uint8 = 0x05 // directory listing request: opcode + path
	OpData     uint8 = 0x10 // inbound data frame: opcode + seq + payload
	OpAck      uint8 = 0x12 // chunk acknowledgment: opcode + seq
	OpAbort    uint8 = 0xFF // abort an in-progress download
)

// Opcodes written to the timer control characteristic.
const (
	OpTimerStart  uint8 = 0x00
	OpTimerCancel uint8 = 0x01
)

// DirEntrySize is the fixed length of one directory entry notification.
const DirEntrySize = 24

// TimerResultSize is the fixed length of a timer result notification.
const TimerResultSize = 9

// nameFieldSize is the null-padded name field inside a directory entry.
const nameFieldSize = 13
