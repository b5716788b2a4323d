package meta

import (
	"encoding/binary"
	"unicode/utf16"
)

// ICC profile layout constants.
const (
	iccHeaderLen   = 128
	iccTagTableOff = 128

	iccSigDesc = 0x64657363 // 'desc'
	iccSigMluc = 0x6D6C7563 // 'mluc'
)

// ProfileDescription parses an ICC profile far enough to return its
// human-readable name: the 'desc' tag of v2 profiles, or the first record
// of the v4 'mluc' localized description.
func ProfileDescription(icc []byte) (string, error) {
	be := binary.BigEndian
	if len(icc) < iccHeaderLen+4 {
		return "", TruncatedError("ICC header")
	}
	if int(be.Uint32(icc)) != len(icc) {
		return "", MalformedError("ICC profile size field")
	}

	count := int(be.Uint32(icc[iccTagTableOff:]))
	table := icc[iccTagTableOff+4:]
	if count < 0 || len(table)/12 < count {
		return "", TruncatedError("ICC tag table")
	}
	for i := 0; i < count; i++ {
		entry := table[i*12:]
		if be.Uint32(entry) != iccSigDesc {
			continue
		}
		offset, size := int(be.Uint32(entry[4:])), int(be.Uint32(entry[8:]))
		if offset < 0 || size < 8 || offset+size > len(icc) {
			return "", TruncatedError("ICC tag data")
		}
		return describe(icc[offset : offset+size])
	}
	return "", MalformedError("no description tag")
}

func describe(tag []byte) (string, error) {
	be := binary.BigEndian
	switch be.Uint32(tag) {
	case iccSigDesc:
		// textDescriptionType: type, reserved, ASCII count, ASCII data.
		if len(tag) < 12 {
			return "", TruncatedError("desc tag")
		}
		count := int(be.Uint32(tag[8:]))
		if count < 1 || 12+count > len(tag) {
			return "", TruncatedError("desc string")
		}
		return string(tag[12 : 12+count-1]), nil // Strip the trailing NUL.

	case iccSigMluc:
		// multiLocalizedUnicodeType: records of offset+length pairs into
		// UTF-16BE data; the first record is good enough for us.
		if len(tag) < 16+12 {
			return "", TruncatedError("mluc tag")
		}
		if be.Uint32(tag[8:]) == 0 {
			return "", MalformedError("empty mluc tag")
		}
		size := int(be.Uint32(tag[16+4:]))
		offset := int(be.Uint32(tag[16+8:]))
		if offset < 0 || size < 0 || size%2 != 0 ||
			offset+size > len(tag) {
			return "", TruncatedError("mluc record")
		}
		units := make([]uint16, size/2)
		for i := range units {
			units[i] = be.Uint16(tag[offset+2*i:])
		}
		return string(utf16.Decode(units)), nil
	}
	return "", MalformedError("unexpected description tag type")
}
