package wire

import (
	"fmt"
	"time"
)

// The gate stores file timestamps in the packed FAT on-disk format:
//
//	date u16: bits 15-9 year since 1980, bits 8-5 month, bits 4-0 day
//	time u16: bits 15-11 hour, bits 10-5 minute, bits 4-0 seconds/2
//
// Seconds are stored at 2-second resolution.

// DecodeFATDateTime unpacks a FAT date/time pair into a UTC timestamp.
// It rejects field combinations that do not form a real calendar date.
func DecodeFATDateTime(date, tim uint16) (time.Time, error) {
	year := int(date>>9) + 1980
	month := int(date >> 5 & 0x0F)
	day := int(date & 0x1F)

	hour := int(tim >> 11)
	minute := int(tim >> 5 & 0x3F)
	second := int(tim&0x1F) * 2

	if month < 1 || month > 12 || day < 1 || day > 31 {
		return time.Time{}, fmt.Errorf("invalid FAT date: month=%d day=%d", month, day)
	}
	if hour > 23 || minute > 59 || second > 59 {
		return time.Time{}, fmt.Errorf("invalid FAT time: %02d:%02d:%02d", hour, minute, second)
	}

	t := time.Date(year, time.Month(month), day, hour, minute, second, 0, time.UTC)
	// time.Date normalizes overflowing fields (e.g. Feb 30 -> Mar 2); treat
	// any normalization as an invalid source date.
	if t.Year() != year || t.Month() != time.Month(month) || t.Day() != day {
		return time.Time{}, fmt.Errorf("invalid calendar date: %04d-%02d-%02d", year, month, day)
	}
	return t, nil
}

// EncodeFATDateTime packs a timestamp into the FAT date/time pair.
// Sub-2-second precision is lost; years outside [1980, 2107] are clamped.
func EncodeFATDateTime(t time.Time) (date, tim uint16) {
	t = t.UTC()
	year := t.Year() - 1980
	if year < 0 {
		year = 0
	}
	if year > 127 {
		year = 127
	}
	date = uint16(year)<<9 | uint16(t.Month())<<5 | uint16(t.Day())
	tim = uint16(t.Hour())<<11 | uint16(t.Minute())<<5 | uint16(t.Second()/2)
	return date, tim
}
