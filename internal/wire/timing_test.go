package wire

import (
	"encoding/binary"
	"testing"
	"time"
)

func buildResult(year uint16, month, day, hour, minute, second byte, millis uint16) []byte {
	buf := make([]byte, TimerResultSize)
	binary.LittleEndian.PutUint16(buf[0:2], year)
	buf[2] = month
	buf[3] = day
	buf[4] = hour
	buf[5] = minute
	buf[6] = second
	binary.LittleEndian.PutUint16(buf[7:9], millis)
	return buf
}

func TestParseTimingResult(t *testing.T) {
	got, err := ParseTimingResult(buildResult(2024, 5, 25, 14, 30, 12, 250))
	if err != nil {
		t.Fatalf("Failed to parse result: %v", err)
	}
	want := time.Date(2024, 5, 25, 14, 30, 12, 250*int(time.Millisecond), time.UTC)
	if !got.Equal(want) {
		t.Errorf("Expected %v, got %v", want, got)
	}
	if got.Location() != time.UTC {
		t.Errorf("Expected UTC, got %v", got.Location())
	}
}

func TestParseTimingResultRejectsBadFrames(t *testing.T) {
	cases := []struct {
		name string
		buf  []byte
	}{
		{"too short", []byte{1, 2, 3}},
		{"too long", make([]byte, 10)},
		{"month zero", buildResult(2024, 0, 25, 14, 30, 12, 0)},
		{"month thirteen", buildResult(2024, 13, 25, 14, 30, 12, 0)},
		{"day zero", buildResult(2024, 5, 0, 14, 30, 12, 0)},
		{"day overflow", buildResult(2024, 2, 30, 14, 30, 12, 0)},
		{"hour overflow", buildResult(2024, 5, 25, 24, 30, 12, 0)},
		{"minute overflow", buildResult(2024, 5, 25, 14, 60, 12, 0)},
		{"second overflow", buildResult(2024, 5, 25, 14, 30, 60, 0)},
		{"millis overflow", buildResult(2024, 5, 25, 14, 30, 12, 1000)},
	}

	for _, tc := range cases {
		if _, err := ParseTimingResult(tc.buf); err == nil {
			t.Errorf("%s: expected an error", tc.name)
		}
	}
}
