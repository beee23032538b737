package wire

import (
	"encoding/binary"
	"fmt"
	"sort"
	"strings"
	"time"
)

// Attrib is the FAT attribute byte of a directory entry.
type Attrib uint8

const (
	AttrReadOnly  Attrib = 0x01
	AttrHidden    Attrib = 0x02
	AttrSystem    Attrib = 0x04
	AttrDirectory Attrib = 0x10
	AttrArchive   Attrib = 0x20
)

// IsDir reports whether the directory bit is set.
func (a Attrib) IsDir() bool {
	return a&AttrDirectory != 0
}

// Labels returns human-readable names for the set attribute bits.
func (a Attrib) Labels() []string {
	var labels []string
	if a&AttrReadOnly != 0 {
		labels = append(labels, "read-only")
	}
	if a&AttrHidden != 0 {
		labels = append(labels, "hidden")
	}
	if a&AttrSystem != 0 {
		labels = append(labels, "system")
	}
	if a&AttrDirectory != 0 {
		labels = append(labels, "directory")
	}
	if a&AttrArchive != 0 {
		labels = append(labels, "archive")
	}
	return labels
}

// DirEntry is one decoded directory listing record.
type DirEntry struct {
	Name     string
	Size     uint32
	Modified time.Time
	Attrib   Attrib
}

// IsDir reports whether the entry names a sub-directory.
func (e DirEntry) IsDir() bool {
	return e.Attrib.IsDir()
}

// ParseDirEntry decodes one 24-byte directory entry notification:
//
//	[0:2)   reserved
//	[2:6)   size u32 LE
//	[6:8)   FAT date u16 LE
//	[8:10)  FAT time u16 LE
//	[10]    attribute byte
//	[11:24) name, null-padded ASCII
//
// Anything that is not a well-formed entry (wrong length, empty or
// non-printable name, impossible date) is an error; callers discard
// such notifications silently.
func ParseDirEntry(buf []byte) (DirEntry, error) {
	if len(buf) != DirEntrySize {
		return DirEntry{}, fmt.Errorf("directory entry must be %d bytes, got %d", DirEntrySize, len(buf))
	}

	name, err := decodeName(buf[11 : 11+nameFieldSize])
	if err != nil {
		return DirEntry{}, err
	}

	modified, err := DecodeFATDateTime(
		binary.LittleEndian.Uint16(buf[6:8]),
		binary.LittleEndian.Uint16(buf[8:10]),
	)
	if err != nil {
		return DirEntry{}, err
	}

	return DirEntry{
		Name:     name,
		Size:     binary.LittleEndian.Uint32(buf[2:6]),
		Modified: modified,
		Attrib:   Attrib(buf[10]),
	}, nil
}

// decodeName extracts a null-padded printable-ASCII name field.
func decodeName(field []byte) (string, error) {
	end := len(field)
	for i, b := range field {
		if b == 0 {
			end = i
			break
		}
	}
	name := field[:end]
	if len(name) == 0 {
		return "", fmt.Errorf("empty name field")
	}
	for _, b := range name {
		if b < 0x20 || b > 0x7E {
			return "", fmt.Errorf("name contains non-printable byte 0x%02x", b)
		}
	}
	return string(name), nil
}

// SortEntries orders a listing the way the device UI presents it:
// directories first, then case-insensitive name ascending.
func SortEntries(entries []DirEntry) {
	sort.SliceStable(entries, func(i, j int) bool {
		if entries[i].IsDir() != entries[j].IsDir() {
			return entries[i].IsDir()
		}
		return strings.ToLower(entries[i].Name) < strings.ToLower(entries[j].Name)
	})
}
