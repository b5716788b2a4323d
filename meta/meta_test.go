package meta

import (
	"bytes"
	"encoding/binary"
	"testing"

	"github.com/rwcarlsen/goexif/exif"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// tiffEntry mirrors the on-disk IFD entry for the stream builder below.
type tiffEntry struct {
	tag   uint16
	typ   uint16
	count uint32
	value []byte
}

// buildTIFF assembles a little-endian TIFF stream out of IFDs given as
// entry lists, chained in order.
func buildTIFF(ifds ...[]tiffEntry) []byte {
	le := binary.LittleEndian
	buf := []byte("II\x2A\x00")
	buf = le.AppendUint32(buf, 8)

	// Writing proceeds IFD by IFD, with out-of-line values directly
	// after each directory and the next-IFD pointer patched afterwards.
	for i, entries := range ifds {
		buf = le.AppendUint16(buf, uint16(len(entries)))
		tailStart := len(buf) + len(entries)*12 + 4
		var tail []byte
		for _, e := range entries {
			buf = le.AppendUint16(buf, e.tag)
			buf = le.AppendUint16(buf, e.typ)
			buf = le.AppendUint32(buf, e.count)
			if len(e.value) <= 4 {
				inline := make([]byte, 4)
				copy(inline, e.value)
				buf = append(buf, inline...)
			} else {
				buf = le.AppendUint32(buf, uint32(tailStart+len(tail)))
				tail = append(tail, e.value...)
			}
		}
		if i+1 < len(ifds) {
			buf = le.AppendUint32(buf, uint32(tailStart+len(tail)))
		} else {
			buf = le.AppendUint32(buf, 0)
		}
		buf = append(buf, tail...)
	}
	return buf
}

func rational(num, den uint32) []byte {
	le := binary.LittleEndian
	return le.AppendUint32(le.AppendUint32(nil, num), den)
}

func rationals(pairs ...uint32) []byte {
	var buf []byte
	for i := 0; i < len(pairs); i += 2 {
		buf = append(buf, rational(pairs[i], pairs[i+1])...)
	}
	return buf
}

func TestOrientation(t *testing.T) {
	le := binary.LittleEndian
	stream := buildTIFF([]tiffEntry{
		{tag: 274, typ: 3, count: 1, value: le.AppendUint16(nil, 6)},
	})
	assert.Equal(t, 6, Orientation(stream))

	// goexif agrees on what we generated.
	x, err := exif.Decode(bytes.NewReader(stream))
	require.NoError(t, err)
	tag, err := x.Get(exif.Orientation)
	require.NoError(t, err)
	v, err := tag.Int(0)
	require.NoError(t, err)
	assert.Equal(t, 6, v)

	// Out-of-range and absent orientations read as unknown.
	stream = buildTIFF([]tiffEntry{
		{tag: 274, typ: 3, count: 1, value: le.AppendUint16(nil, 9)},
	})
	assert.Equal(t, 0, Orientation(stream))
	assert.Equal(t, 0, Orientation(buildTIFF([]tiffEntry{})))
	assert.Equal(t, 0, Orientation([]byte("garbage")))
}

func TestColorInfo(t *testing.T) {
	le := binary.LittleEndian

	// IFD0 carries whitepoint/primaries, the Exif sub-IFD colour space
	// and gamma. The sub-IFD pointer needs manual plumbing: build IFD0
	// first, then append the sub-IFD and patch the pointer.
	ifd0 := []tiffEntry{
		{tag: 318, typ: 5, count: 2, value: rationals(3127, 10000, 3290, 10000)},
		{tag: 319, typ: 5, count: 6, value: rationals(
			64, 100, 33, 100, 30, 100, 60, 100, 15, 100, 6, 100)},
		{tag: 34665, typ: 4, count: 1, value: le.AppendUint32(nil, 0)},
	}
	stream := buildTIFF(ifd0)
	subOffset := uint32(len(stream))

	sub := le.AppendUint16(nil, 2)
	sub = le.AppendUint16(sub, 40961) // ColorSpace
	sub = le.AppendUint16(sub, 3)
	sub = le.AppendUint32(sub, 1)
	sub = append(sub, 0xFF, 0xFF, 0, 0)
	sub = le.AppendUint16(sub, 42240) // Gamma
	sub = le.AppendUint16(sub, 5)
	sub = le.AppendUint32(sub, 1)
	sub = le.AppendUint32(sub, subOffset+2+2*12+4)
	sub = le.AppendUint32(sub, 0) // next IFD
	sub = append(sub, rational(22, 10)...)
	stream = append(stream, sub...)

	// Patch the ExifIFDPointer value (third entry of IFD0).
	le.PutUint32(stream[8+2+2*12+8:], subOffset)

	info := ColorInfo(stream)
	assert.Equal(t, ColorSpaceUncalibrated, info.ColorSpace)
	assert.True(t, info.HasWhitePoint)
	assert.True(t, info.HasPrimaries)
	assert.True(t, info.HasGamma)
	assert.True(t, info.Parametric())
	assert.InDelta(t, 2.2, info.Gamma, 1e-9)
	assert.InDelta(t, 0.3127, info.WhitePoint[0], 1e-9)
	assert.InDelta(t, 0.06, info.Primaries[5], 1e-9)
}

func TestThumbnail(t *testing.T) {
	le := binary.LittleEndian
	jfif := []byte{0xFF, 0xD8, 0xFF, 0xD9}

	stream := buildTIFF(
		[]tiffEntry{
			{tag: 274, typ: 3, count: 1, value: le.AppendUint16(nil, 1)},
		},
		[]tiffEntry{
			{tag: 513, typ: 4, count: 1, value: le.AppendUint32(nil, 0)},
			{tag: 514, typ: 4, count: 1,
				value: le.AppendUint32(nil, uint32(len(jfif)))},
		},
	)
	offset := uint32(len(stream))
	stream = append(stream, jfif...)

	// Patch JPEGInterchangeFormat in IFD1: it follows IFD0's
	// single-entry directory and next pointer.
	ifd1 := 8 + 2 + 12 + 4
	le.PutUint32(stream[ifd1+2+8:], offset)

	assert.Equal(t, jfif, Thumbnail(stream))
	assert.Nil(t, Thumbnail(buildTIFF([]tiffEntry{})))
}

func mpfRecord(attrs, size, offset uint32) []byte {
	le := binary.LittleEndian
	buf := le.AppendUint32(nil, attrs)
	buf = le.AppendUint32(buf, size)
	buf = le.AppendUint32(buf, offset)
	return append(buf, 0, 0, 0, 0)
}

func TestParseMPF(t *testing.T) {
	le := binary.LittleEndian
	records := bytes.Join([][]byte{
		mpfRecord(0x20030000, 1000, 0),    // Baseline primary.
		mpfRecord(0x00020002, 1000, 5000), // Multi-frame image.
		mpfRecord(0x00010001, 100, 6000),  // Large thumbnail: rejected.
		mpfRecord(0x07020002, 1000, 7000), // Non-JPEG format: rejected.
		mpfRecord(0x00000000, 1000, 8000), // Undefined: rejected.
	}, nil)

	stream := buildTIFF([]tiffEntry{
		{tag: 0xB000, typ: 7, count: 4, value: []byte("0100")},
		{tag: 0xB001, typ: 4, count: 1, value: le.AppendUint32(nil, 5)},
		{tag: 0xB002, typ: 7, count: uint32(len(records)), value: records},
	})

	offsets, err := ParseMPF(stream)
	require.NoError(t, err)
	assert.Equal(t, []uint32{0, 5000}, offsets)
}

func TestWalkPSIR(t *testing.T) {
	be := binary.BigEndian
	block := func(id uint16, name string, data []byte) []byte {
		buf := []byte("8BIM")
		buf = be.AppendUint16(buf, id)
		buf = append(buf, byte(len(name)))
		buf = append(buf, name...)
		if len(name)%2 == 0 {
			buf = append(buf, 0)
		}
		buf = be.AppendUint32(buf, uint32(len(data)))
		buf = append(buf, data...)
		if len(data)%2 != 0 {
			buf = append(buf, 0)
		}
		return buf
	}

	iptc := []byte{0x1C, 2, 5, 0, 5, 'h', 'e', 'l', 'l', 'o'}
	psir := append(block(1028, "", iptc), block(1000, "x", []byte{1})...)

	var blocks []PSIRBlock
	err := WalkPSIR(psir, func(b PSIRBlock) error {
		blocks = append(blocks, b)
		return nil
	})
	require.NoError(t, err)
	require.Len(t, blocks, 2)
	assert.Equal(t, uint16(1028), blocks[0].ID)
	assert.Equal(t, "x", blocks[1].Name)

	var sets []IPTCDataSet
	err = WalkIPTC(blocks[0].Data, func(ds IPTCDataSet) error {
		sets = append(sets, ds)
		return nil
	})
	require.NoError(t, err)
	require.Len(t, sets, 1)
	assert.Equal(t, byte(2), sets[0].Record)
	assert.Equal(t, byte(5), sets[0].DataSet)
	assert.Equal(t, "hello", string(sets[0].Data))

	// Extended DataSet lengths are flagged, not guessed at.
	err = WalkIPTC([]byte{0x1C, 2, 5, 0x80, 4}, func(IPTCDataSet) error {
		return nil
	})
	assert.IsType(t, UnsupportedError(""), err)
}

func buildICC(tagType uint32, tagData []byte) []byte {
	be := binary.BigEndian
	body := make([]byte, 128)
	body = be.AppendUint32(body, 1) // tag count
	body = be.AppendUint32(body, tagType)
	body = be.AppendUint32(body, uint32(128+4+12))
	body = be.AppendUint32(body, uint32(len(tagData)))
	body = append(body, tagData...)
	be.PutUint32(body, uint32(len(body)))
	return body
}

func TestProfileDescription(t *testing.T) {
	be := binary.BigEndian

	// Version 2: textDescriptionType.
	desc := be.AppendUint32(nil, iccSigDesc)
	desc = be.AppendUint32(desc, 0)
	desc = be.AppendUint32(desc, uint32(len("sRGB")+1))
	desc = append(desc, "sRGB\x00"...)
	name, err := ProfileDescription(buildICC(iccSigDesc, desc))
	require.NoError(t, err)
	assert.Equal(t, "sRGB", name)

	// Version 4: multiLocalizedUnicodeType, first record taken.
	text := []byte{0, 'D', 0, 'i', 0, 's', 0, 'p'}
	mluc := be.AppendUint32(nil, iccSigMluc)
	mluc = be.AppendUint32(mluc, 0)
	mluc = be.AppendUint32(mluc, 1)  // record count
	mluc = be.AppendUint32(mluc, 12) // record size
	mluc = append(mluc, 'e', 'n', 'U', 'S')
	mluc = be.AppendUint32(mluc, uint32(len(text)))
	mluc = be.AppendUint32(mluc, 16+12)
	mluc = append(mluc, text...)
	name, err = ProfileDescription(buildICC(iccSigDesc, mluc))
	require.NoError(t, err)
	assert.Equal(t, "Disp", name)

	// The header size field must match the buffer.
	bad := buildICC(iccSigDesc, desc)
	be.PutUint32(bad, 7)
	_, err = ProfileDescription(bad)
	assert.Error(t, err)
}

func buildJPEG(segments ...[]byte) []byte {
	buf := []byte{0xFF, 0xD8}
	for _, s := range segments {
		buf = append(buf, s...)
	}
	return append(buf, 0xFF, 0xDA, 0x00, 0x02)
}

func segment(marker byte, payload []byte) []byte {
	buf := []byte{0xFF, marker}
	buf = binary.BigEndian.AppendUint16(buf, uint16(len(payload)+2))
	return append(buf, payload...)
}

func sof0(width, height uint16, components byte) []byte {
	be := binary.BigEndian
	payload := []byte{8}
	payload = be.AppendUint16(payload, height)
	payload = be.AppendUint16(payload, width)
	payload = append(payload, components)
	for i := byte(0); i < components; i++ {
		payload = append(payload, i+1, 0x11, 0)
	}
	return segment(0xC0, payload)
}

func TestScanJPEG(t *testing.T) {
	exifTIFF := buildTIFF([]tiffEntry{
		{tag: 274, typ: 3, count: 1, value: []byte{1, 0}},
	})
	exifSeg := segment(0xE1, append([]byte("Exif\x00\x00"), exifTIFF...))
	dupSeg := segment(0xE1, append([]byte("Exif\x00\x00"), 0xDE, 0xAD))

	scan, err := ScanJPEG(buildJPEG(exifSeg, dupSeg, sof0(100, 200, 3)))
	require.NoError(t, err)
	assert.Equal(t, 100, scan.Width)
	assert.Equal(t, 200, scan.Height)
	assert.Equal(t, 3, scan.Components)
	assert.Equal(t, exifTIFF, scan.Exif)
	require.Len(t, scan.Warnings, 1)
	assert.Contains(t, scan.Warnings[0], "duplicate Exif")

	_, err = ScanJPEG([]byte{0x00, 0x01})
	assert.Error(t, err)
}

func TestScanJPEGICC(t *testing.T) {
	chunk := func(seq, total byte, data []byte) []byte {
		payload := append([]byte("ICC_PROFILE\x00"), seq, total)
		return segment(0xE2, append(payload, data...))
	}

	// A two-chunk sequence concatenates in order.
	scan, err := ScanJPEG(buildJPEG(
		chunk(1, 2, []byte("AB")), chunk(2, 2, []byte("CD")),
		sof0(1, 1, 3)))
	require.NoError(t, err)
	assert.Equal(t, []byte("ABCD"), scan.ICC)
	assert.Empty(t, scan.Warnings)

	// A missing member discards the whole profile with a warning.
	scan, err = ScanJPEG(buildJPEG(
		chunk(1, 3, []byte("AB")), chunk(3, 3, []byte("EF")),
		sof0(1, 1, 3)))
	require.NoError(t, err)
	assert.Nil(t, scan.ICC)
	require.NotEmpty(t, scan.Warnings)
	assert.Contains(t, scan.Warnings[0], "chunk 2 of 3 missing")
}

func TestScanJPEGMPF(t *testing.T) {
	mpf := buildTIFF([]tiffEntry{
		{tag: 0xB001, typ: 4, count: 1, value: []byte{2, 0, 0, 0}},
	})
	seg := segment(0xE2, append([]byte("MPF\x00"), mpf...))

	scan, err := ScanJPEG(buildJPEG(seg, sof0(8, 8, 3)))
	require.NoError(t, err)
	assert.Equal(t, mpf, scan.MPF)
	// SOI + marker + length + signature.
	assert.Equal(t, 2+2+2+4, scan.MPFOffset)
}
