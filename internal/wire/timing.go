package wire

import (
	"encoding/binary"
	"fmt"
	"time"
)

// ParseTimingResult decodes a 9-byte timer result notification:
//
//	[0:2) year u16 LE
//	[2]   month
//	[3]   day
//	[4]   hour
//	[5]   minute
//	[6]   second
//	[7:9) millisecond u16 LE
//
// The decoded timestamp is UTC with millisecond precision. Frames of any
// other length, or whose fields do not form a real calendar date/time,
// are rejected.
func ParseTimingResult(buf []byte) (time.Time, error) {
	if len(buf) != TimerResultSize {
		return time.Time{}, fmt.Errorf("timer result must be %d bytes, got %d", TimerResultSize, len(buf))
	}

	year := int(binary.LittleEndian.Uint16(buf[0:2]))
	month := int(buf[2])
	day := int(buf[3])
	hour := int(buf[4])
	minute := int(buf[5])
	second := int(buf[6])
	millis := int(binary.LittleEndian.Uint16(buf[7:9]))

	if month < 1 || month > 12 || day < 1 || day > 31 {
		return time.Time{}, fmt.Errorf("invalid result date: month=%d day=%d", month, day)
	}
	if hour > 23 || minute > 59 || second > 59 || millis > 999 {
		return time.Time{}, fmt.Errorf("invalid result time: %02d:%02d:%02d.%03d", hour, minute, second, millis)
	}

	t := time.Date(year, time.Month(month), day, hour, minute, second, millis*int(time.Millisecond), time.UTC)
	if t.Year() != year || t.Month() != time.Month(month) || t.Day() != day {
		return time.Time{}, fmt.Errorf("invalid calendar date: %04d-%02d-%02d", year, month, day)
	}
	return t, nil
}
