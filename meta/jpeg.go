package meta

import (
	"bytes"
	"encoding/binary"
	"fmt"
)

// Segment payload signatures.
var (
	sigExif = []byte("Exif\x00\x00")
	sigICC  = []byte("ICC_PROFILE\x00")
	sigXMP  = []byte("http://ns.adobe.com/xap/1.0/\x00")
	sigPSIR = []byte("Photoshop 3.0\x00")
	sigMPF  = []byte("MPF\x00")
)

// JPEGScan is everything the marker scanner collects from the header
// region of a JPEG stream, up to the start of entropy-coded data.
type JPEGScan struct {
	Width      int
	Height     int
	Components int

	Exif []byte // Without the segment signature: a TIFF stream.
	ICC  []byte // Reassembled from its chunk sequence.
	XMP  []byte
	PSIR []byte
	MPF  []byte // A TIFF stream, offsets relative to MPFOffset.

	// MPFOffset is the position of the MPF TIFF stream within the file;
	// MP individual-image offsets are relative to it.
	MPFOffset int

	// Warnings records recoverable metadata defects: duplicate segments,
	// broken ICC chunk sequences.
	Warnings []string
}

func isSOF(marker byte) bool {
	switch marker {
	case 0xC0, 0xC1, 0xC2, 0xC3, 0xC5, 0xC6, 0xC7,
		0xC9, 0xCA, 0xCB, 0xCD, 0xCE, 0xCF:
		return true
	}
	return false
}

// ScanJPEG walks the marker segments of a JPEG from SOI to SOS, collecting
// image dimensions and all recognized metadata payloads. Repeated Exif or
// XMP segments and non-contiguous ICC sequences are recorded as warnings,
// with the first occurrence winning.
func ScanJPEG(data []byte) (*JPEGScan, error) {
	if len(data) < 2 || data[0] != 0xFF || data[1] != 0xD8 {
		return nil, MalformedError("not a JPEG stream")
	}

	scan := &JPEGScan{}
	var iccChunks [][]byte
	var iccTotal int

	p := 2
scanning:
	for {
		// A marker is preceded by one or more FF fill bytes.
		if p >= len(data) || data[p] != 0xFF {
			return nil, MalformedError("expected a marker")
		}
		for p < len(data) && data[p] == 0xFF {
			p++
		}
		if p >= len(data) {
			return nil, TruncatedError("marker")
		}
		marker := data[p]
		p++

		switch {
		case marker == 0x01 || marker >= 0xD0 && marker <= 0xD9:
			// TEM, RSTn, SOI, EOI stand alone.
			if marker == 0xD9 {
				break scanning
			}
			continue
		case marker == 0xDA:
			// SOS terminates the scannable header region.
			break scanning
		}

		if p+2 > len(data) {
			return nil, TruncatedError("segment length")
		}
		length := int(binary.BigEndian.Uint16(data[p:]))
		if length < 2 || p+length > len(data) {
			return nil, TruncatedError("segment payload")
		}
		payload := data[p+2 : p+length]
		payloadOffset := p + 2
		p += length

		switch {
		case isSOF(marker):
			if len(payload) < 6 {
				return nil, TruncatedError("SOF payload")
			}
			scan.Height = int(binary.BigEndian.Uint16(payload[1:]))
			scan.Width = int(binary.BigEndian.Uint16(payload[3:]))
			scan.Components = int(payload[5])

		case marker == 0xE1 && bytes.HasPrefix(payload, sigExif):
			if scan.Exif != nil {
				scan.warn("duplicate Exif segment ignored")
				continue
			}
			scan.Exif = payload[len(sigExif):]

		case marker == 0xE1 && bytes.HasPrefix(payload, sigXMP):
			if scan.XMP != nil {
				scan.warn("duplicate XMP segment ignored")
				continue
			}
			scan.XMP = payload[len(sigXMP):]

		case marker == 0xE2 && bytes.HasPrefix(payload, sigICC):
			chunk := payload[len(sigICC):]
			if len(chunk) < 2 {
				scan.warn("broken ICC profile chunk ignored")
				continue
			}
			seq, total := int(chunk[0]), int(chunk[1])
			switch {
			case iccChunks == nil:
				if seq != 1 || total < 1 {
					scan.warn("ICC profile sequence does not start at 1")
					continue
				}
				iccTotal = total
				iccChunks = make([][]byte, total)
			case total != iccTotal:
				scan.warn("inconsistent ICC profile chunk count")
				continue
			}
			if seq < 1 || seq > iccTotal || iccChunks[seq-1] != nil {
				scan.warn("repeated ICC profile chunk ignored")
				continue
			}
			iccChunks[seq-1] = chunk[2:]

		case marker == 0xE2 && bytes.HasPrefix(payload, sigMPF):
			if scan.MPF != nil {
				scan.warn("duplicate MPF segment ignored")
				continue
			}
			scan.MPF = payload[len(sigMPF):]
			scan.MPFOffset = payloadOffset + len(sigMPF)

		case marker == 0xED && bytes.HasPrefix(payload, sigPSIR):
			if scan.PSIR != nil {
				scan.warn("duplicate Photoshop segment ignored")
				continue
			}
			scan.PSIR = payload[len(sigPSIR):]
		}
	}

	if iccChunks != nil {
		var assembled []byte
		for i, chunk := range iccChunks {
			if chunk == nil {
				scan.warn(fmt.Sprintf(
					"ICC profile chunk %d of %d missing, "+
						"discarding the profile", i+1, iccTotal))
				assembled = nil
				break
			}
			assembled = append(assembled, chunk...)
		}
		scan.ICC = assembled
	}
	return scan, nil
}

func (s *JPEGScan) warn(message string) {
	s.Warnings = append(s.Warnings, message)
}
