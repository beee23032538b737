package wire

import (
	"bytes"
	"encoding/binary"
	"testing"
	"time"
)

func TestListRequest(t *testing.T) {
	frame := ListRequest("/SESSIONS/DAY1")
	if frame[0] != OpList {
		t.Errorf("Expected opcode 0x%02x, got 0x%02x", OpList, frame[0])
	}
	if string(frame[1:]) != "/SESSIONS/DAY1" {
		t.Errorf("Expected path '/SESSIONS/DAY1', got '%s'", string(frame[1:]))
	}
}

func TestDownloadRequest(t *testing.T) {
	frame := DownloadRequest("/RUN01.CSV")
	if frame[0] != OpDownload {
		t.Errorf("Expected opcode 0x%02x, got 0x%02x", OpDownload, frame[0])
	}
	if binary.LittleEndian.Uint32(frame[1:5]) != 0 {
		t.Error("Offset must be zero")
	}
	if binary.LittleEndian.Uint32(frame[5:9]) != 0 {
		t.Error("Stride must be zero")
	}
	if string(frame[9:]) != "/RUN01.CSV" {
		t.Errorf("Expected path '/RUN01.CSV', got '%s'", string(frame[9:]))
	}
}

func TestAck(t *testing.T) {
	frame := Ack(0x7F)
	if !bytes.Equal(frame, []byte{OpAck, 0x7F}) {
		t.Errorf("Unexpected ack frame: %x", frame)
	}
}

func TestControlFrames(t *testing.T) {
	if !bytes.Equal(AbortTransfer(), []byte{0xFF}) {
		t.Errorf("Unexpected abort frame: %x", AbortTransfer())
	}
	if !bytes.Equal(TimerStart(), []byte{0x00}) {
		t.Errorf("Unexpected start frame: %x", TimerStart())
	}
	if !bytes.Equal(TimerCancel(), []byte{0x01}) {
		t.Errorf("Unexpected cancel frame: %x", TimerCancel())
	}
}

func TestParseDataFrame(t *testing.T) {
	seq, payload, ok := ParseDataFrame([]byte{OpData, 5, 0xAA, 0xBB})
	if !ok {
		t.Fatal("Expected data frame to parse")
	}
	if seq != 5 {
		t.Errorf("Expected seq 5, got %d", seq)
	}
	if !bytes.Equal(payload, []byte{0xAA, 0xBB}) {
		t.Errorf("Unexpected payload: %x", payload)
	}

	// Empty payload marks end of transfer
	_, payload, ok = ParseDataFrame([]byte{OpData, 6})
	if !ok {
		t.Fatal("Expected empty data frame to parse")
	}
	if len(payload) != 0 {
		t.Errorf("Expected empty payload, got %x", payload)
	}

	// Non-data frames are rejected
	if _, _, ok := ParseDataFrame([]byte{OpAck, 1}); ok {
		t.Error("Ack frame must not parse as data")
	}
	if _, _, ok := ParseDataFrame([]byte{OpData}); ok {
		t.Error("Truncated frame must not parse")
	}
}

func TestParseTimingResultFrames(t *testing.T) {
	buf := make([]byte, TimerResultSize)
	binary.LittleEndian.PutUint16(buf[0:2], 2024)
	buf[2] = 5
	buf[3] = 25
	buf[4] = 16
	buf[5] = 45
	buf[6] = 30
	binary.LittleEndian.PutUint16(buf[7:9], 250)

	got, err := ParseTimingResult(buf)
	if err != nil {
		t.Fatalf("Failed to parse: %v", err)
	}
	want := time.Date(2024, 5, 25, 16, 45, 30, 250*int(time.Millisecond), time.UTC)
	if !got.Equal(want) {
		t.Errorf("Expected %v, got %v", want, got)
	}
}

func TestParseTimingResultRejects(t *testing.T) {
	if _, err := ParseTimingResult(make([]byte, 8)); err == nil {
		t.Error("Expected error for short frame")
	}
	if _, err := ParseTimingResult(make([]byte, 10)); err == nil {
		t.Error("Expected error for long frame")
	}

	buf := make([]byte, TimerResultSize)
	binary.LittleEndian.PutUint16(buf[0:2], 2024)
	buf[2] = 13 // month out of range
	buf[3] = 1
	if _, err := ParseTimingResult(buf); err == nil {
		t.Error("Expected error for month 13")
	}

	buf[2] = 2
	buf[3] = 30 // Feb 30
	if _, err := ParseTimingResult(buf); err == nil {
		t.Error("Expected error for Feb 30")
	}

	buf[3] = 1
	binary.LittleEndian.PutUint16(buf[7:9], 1000) // millis out of range
	if _, err := ParseTimingResult(buf); err == nil {
		t.Error("Expected error for millisecond 1000")
	}
}
