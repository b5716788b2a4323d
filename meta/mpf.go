package meta

import (
	"github.com/pjanx/fiv-sub001/tiff"
)

// CIPA DC-007 Multi-Picture Format. The MPF index lives in an APP2 segment
// and is a TIFF stream whose IFD0 carries an MPEntry tag of 16-byte records.
const (
	tagMPEntry = 0xB002

	mpEntryLen = 16

	// Individual image type codes (attribute bits 0..23).
	mpTypeUndefined          = 0x000000
	mpTypeLargeThumbnailVGA  = 0x010001
	mpTypeLargeThumbnailHD   = 0x010002
	mpTypeMultiFrameStereo   = 0x020001
	mpTypeMultiFrameMultiple = 0x020002
	mpTypeBaselinePrimary    = 0x030000
)

// ParseMPF reads the MP index IFD and returns the byte offsets of all
// individual images worth decoding, relative to the start of the index
// TIFF stream, with the first image's offset recorded as zero.
// Thumbnail-class and non-JPEG entries are dropped.
//
// Per CIPA DC-007, tags inside the index may appear in arbitrary order.
func ParseMPF(buf []byte) ([]uint32, error) {
	c, err := tiff.NewCursor(buf)
	if err != nil {
		return nil, err
	}
	ok, err := c.NextIFD()
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, tiff.FormatError("MPF index has no IFD")
	}

	var offsets []uint32
	var e tiff.Entry
	for {
		ok, err := c.NextEntry(&e)
		if err != nil {
			return nil, err
		}
		if !ok {
			break
		}
		if e.Tag != tagMPEntry {
			continue
		}
		if e.Remaining%mpEntryLen != 0 {
			return nil, tiff.FormatError("MPEntry size")
		}

		order := c.ByteOrder()
		for ; e.Remaining >= mpEntryLen; skipRecord(&e) {
			var record [mpEntryLen]byte
			for i := range record {
				v, err := e.Integer()
				if err != nil {
					return nil, err
				}
				record[i] = byte(v)
				if i+1 < mpEntryLen {
					e.NextValue()
				}
			}

			attrs := order.Uint32(record[0:4])
			switch attrs & 0xFFFFFF {
			case mpTypeUndefined,
				mpTypeLargeThumbnailVGA, mpTypeLargeThumbnailHD:
				continue
			}
			if attrs>>24&0x7 != 0 {
				continue // Not a JPEG.
			}
			offsets = append(offsets, order.Uint32(record[8:12]))
		}
	}
	return offsets, nil
}

func skipRecord(e *tiff.Entry) { e.NextValue() }
