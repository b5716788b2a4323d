package meta

import (
	"bytes"
	"encoding/binary"
)

// Photoshop Image Resource ids of interest.
const (
	PSIRIPTC         = 1028 // IPTC IIM DataSets.
	PSIRThumbnailBGR = 1033 // Photoshop 4.0 thumbnail, BGR order.
	PSIRThumbnailRGB = 1036 // Photoshop 5.0 thumbnail, RGB order.
)

var psirSignature = []byte("8BIM")

// PSIRBlock is one 8BIM-tagged resource within a PSIR stream.
type PSIRBlock struct {
	ID   uint16
	Name string
	Data []byte
}

// WalkPSIR iterates all image resource blocks within buf, stopping early
// if fn returns a non-nil error, which is then passed through.
func WalkPSIR(buf []byte, fn func(PSIRBlock) error) error {
	be := binary.BigEndian
	for len(buf) > 0 {
		if len(buf) < 4 || !bytes.Equal(buf[0:4], psirSignature) {
			return MalformedError("image resource block signature")
		}
		if len(buf) < 4+2+2 {
			return TruncatedError("image resource block header")
		}
		id := be.Uint16(buf[4:6])

		// An even-padded Pascal string; the padding covers the count byte.
		nameLen := int(buf[6])
		nameEnd := 7 + nameLen + (nameLen+1)%2
		if len(buf) < nameEnd+4 {
			return TruncatedError("image resource block name")
		}
		name := string(buf[7 : 7+nameLen])

		size := int(be.Uint32(buf[nameEnd:]))
		payload := nameEnd + 4
		if size < 0 || len(buf) < payload+size {
			return TruncatedError("image resource block payload")
		}
		if err := fn(PSIRBlock{ID: id, Name: name,
			Data: buf[payload : payload+size]}); err != nil {
			return err
		}
		buf = buf[payload+size+size%2:]
	}
	return nil
}

// IPTCDataSet is one tagged record of an IPTC IIM stream.
type IPTCDataSet struct {
	Record  byte
	DataSet byte
	Data    []byte
}

// WalkIPTC iterates the DataSets of an IPTC IIM stream, as carried in
// PSIR block 1028. Extended (>32767 byte) lengths are not implemented.
func WalkIPTC(buf []byte, fn func(IPTCDataSet) error) error {
	be := binary.BigEndian
	for len(buf) > 0 {
		if buf[0] != 0x1C {
			return MalformedError("DataSet tag marker")
		}
		if len(buf) < 5 {
			return TruncatedError("DataSet header")
		}
		count := be.Uint16(buf[3:5])
		if count&0x8000 != 0 {
			return UnsupportedError("extended DataSet length")
		}
		if len(buf) < 5+int(count) {
			return TruncatedError("DataSet payload")
		}
		if err := fn(IPTCDataSet{Record: buf[1], DataSet: buf[2],
			Data: buf[5 : 5+count]}); err != nil {
			return err
		}
		buf = buf[5+count:]
	}
	return nil
}

// PSIRThumbnail digs a Photoshop thumbnail out of a PSIR stream.
// Blocks 1036 and 1033 hold a short header followed by JFIF data;
// the newer block is preferred.
func PSIRThumbnail(psir []byte) []byte {
	var older, newer []byte
	_ = WalkPSIR(psir, func(b PSIRBlock) error {
		// Thumbnail resource header: format, dimensions and sizes take
		// up 28 bytes, the compressed data follows.
		if len(b.Data) < 28 {
			return nil
		}
		if binary.BigEndian.Uint32(b.Data) != 1 { // kJpegRGB
			return nil
		}
		switch b.ID {
		case PSIRThumbnailBGR:
			older = b.Data[28:]
		case PSIRThumbnailRGB:
			newer = b.Data[28:]
		}
		return nil
	})
	if newer != nil {
		return newer
	}
	return older
}
