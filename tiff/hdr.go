package tiff

// Resources:
// http://www.anyhere.com/gward/pixformat/tiffluv.html (LogL / LogLuv)
// http://www.anyhere.com/gward/papers/jgtpap1.pdf (LogLuv spec paper)
// https://www.adobe.com/content/dam/acom/en/products/photoshop/pdfs/dng_spec_1.4.0.0.pdf
// https://rcsumner.net/raw_guide/RAWguide.pdf (raw processing workflow)

import (
	"bytes"
	"compress/zlib"
	"encoding/binary"
	"image"
	"io"
	"math"

	"github.com/mdouchement/hdr"
	"github.com/mdouchement/hdr/format"
	"github.com/mdouchement/hdr/hdrcolor"
	"golang.org/x/image/tiff/lzw"
	"gonum.org/v1/gonum/mat"

	"github.com/pjanx/fiv-sub001/bayer"
)

// Values for the Predictor tag (page 64-65 of the spec).
const prNone = 1

// field is one directory entry widened both ways, so that rationals and
// doubles keep their precision while counts and offsets stay integral.
type field struct {
	ints  []int64
	reals []float64
}

func (f field) first() int64 {
	if len(f.ints) == 0 {
		return 0
	}
	return f.ints[0]
}

func (f field) real(i int) float64 {
	if len(f.reals) <= i {
		return 0
	}
	return f.reals[i]
}

// hdrTags is the allowlist of entries the pixel decoder stows away.
var hdrTags = map[uint16]bool{
	tagImageWidth:      true,
	tagImageLength:     true,
	tagBitsPerSample:   true,
	tagCompression:     true,
	tagPhotometric:     true,
	tagStripOffsets:    true,
	tagStripByteCounts: true,
	tagRowsPerStrip:    true,
	tagTileWidth:       true,
	tagTileLength:      true,
	tagTileOffsets:     true,
	tagTileByteCounts:  true,
	tagPredictor:       true,
	tagStonits:         true,
	tagCFAPattern:      true,
	tagBlackLevel:      true,
	tagWhiteLevel:      true,
	tagColorMatrix1:    true,
	tagColorMatrix2:    true,
	tagAsShotNeutral:   true,
}

func readFields(buf []byte, offset int64) (
	map[uint16]field, binary.ByteOrder, error) {
	c, err := NewCursor(buf)
	if err != nil {
		return nil, nil, err
	}
	sub, err := c.SubIFD(offset)
	if err != nil {
		return nil, nil, err
	}

	fields := make(map[uint16]field)
	var e Entry
	for {
		ok, err := sub.NextEntry(&e)
		if err != nil {
			return nil, nil, err
		}
		if !ok {
			return fields, c.order, nil
		}
		if !hdrTags[e.Tag] {
			continue
		}

		var f field
		for {
			if v, err := e.Integer(); err == nil {
				f.ints = append(f.ints, v)
			}
			if r, err := e.Real(); err == nil {
				f.reals = append(f.reals, r)
			}
			if !e.NextValue() {
				break
			}
		}
		fields[e.Tag] = f
	}
}

// hdrDecoder decodes the directory encodings baseline readers skip:
// SGI LogL and LogLuv, 32-bit floating point RGB, and DNG colour filter
// arrays.
type hdrDecoder struct {
	buf    []byte
	order  binary.ByteOrder
	fields map[uint16]field
	info   *Info

	data []byte // Current decompressed strip or tile.
}

// DecodeHDR decodes the directory summarized by info into an HDR image:
// hdr.XYZ for the logarithmic and raw encodings, hdr.RGB for float RGB.
func DecodeHDR(buf []byte, info *Info) (image.Image, error) {
	if !info.HDR() {
		return nil, FormatError("not a high dynamic range directory")
	}
	fields, order, err := readFields(buf, info.Offset)
	if err != nil {
		return nil, err
	}
	d := &hdrDecoder{buf: buf, order: order, fields: fields, info: info}

	if d.fields[tagPredictor].first() > prNone {
		return nil, UnsupportedError("predictor")
	}

	var m image.Image
	bounds := image.Rect(0, 0, info.Width, info.Height)
	switch info.Photometric {
	case PhotometricRGB:
		m = hdr.NewRGB(bounds)
	case PhotometricLogL, PhotometricLogLuv:
		if info.BitsPerSample != 16 {
			return nil, FormatError("unexpected BitsPerSample for SGI Log")
		}
		m = hdr.NewXYZ(bounds)
	case PhotometricCFA:
		m = hdr.NewXYZ(bounds)
	}

	if err := d.eachBlock(m); err != nil {
		return nil, err
	}
	return m, nil
}

// eachBlock iterates the strips or tiles of the directory, decompressing
// each in turn and scattering its pixels into dst.
func (d *hdrDecoder) eachBlock(dst image.Image) error {
	blockPadding := false
	blockWidth, blockHeight := d.info.Width, d.info.Height
	blocksAcross, blocksDown := 1, 1
	if d.info.Width == 0 {
		blocksAcross = 0
	}
	if d.info.Height == 0 {
		blocksDown = 0
	}

	var offsets, counts []int64
	if tw := int(d.fields[tagTileWidth].first()); tw != 0 {
		blockPadding = true
		blockWidth = tw
		blockHeight = int(d.fields[tagTileLength].first())
		if blockWidth != 0 {
			blocksAcross = (d.info.Width + blockWidth - 1) / blockWidth
		}
		if blockHeight != 0 {
			blocksDown = (d.info.Height + blockHeight - 1) / blockHeight
		}
		offsets = d.fields[tagTileOffsets].ints
		counts = d.fields[tagTileByteCounts].ints
	} else {
		if rps := int(d.fields[tagRowsPerStrip].first()); rps != 0 {
			blockHeight = rps
		}
		if blockHeight != 0 {
			blocksDown = (d.info.Height + blockHeight - 1) / blockHeight
		}
		offsets = d.fields[tagStripOffsets].ints
		counts = d.fields[tagStripByteCounts].ints
	}

	if n := blocksAcross * blocksDown; len(offsets) < n || len(counts) < n {
		return FormatError("inconsistent strip or tile counts")
	}

	for i := 0; i < blocksAcross; i++ {
		w := blockWidth
		if !blockPadding && i == blocksAcross-1 &&
			d.info.Width%blockWidth != 0 {
			w = d.info.Width % blockWidth
		}
		for j := 0; j < blocksDown; j++ {
			h := blockHeight
			if !blockPadding && j == blocksDown-1 &&
				d.info.Height%blockHeight != 0 {
				h = d.info.Height % blockHeight
			}

			err := d.decompress(
				offsets[j*blocksAcross+i], counts[j*blocksAcross+i],
				blockWidth, h)
			if err != nil {
				return err
			}
			xmin, ymin := i*blockWidth, j*blockHeight
			if err := d.decodeBlock(
				dst, xmin, ymin, xmin+w, ymin+h); err != nil {
				return err
			}
		}
	}
	return nil
}

func (d *hdrDecoder) decompress(offset, n int64, width, height int) error {
	if offset < 0 || n < 0 || offset+n > int64(len(d.buf)) {
		return TruncatedError("strip or tile")
	}
	raw := d.buf[offset : offset+n]

	var err error
	switch d.info.Compression {
	// Compression has no default value in the spec, but some tools
	// interpret a missing value as none, so we do the same.
	case cNone, 0:
		d.data = raw
	case cLZW:
		r := lzw.NewReader(bytes.NewReader(raw), lzw.MSB, 8)
		d.data, err = io.ReadAll(r)
		r.Close()
	case cDeflate, cDeflateOld:
		var r io.ReadCloser
		if r, err = zlib.NewReader(bytes.NewReader(raw)); err != nil {
			return err
		}
		d.data, err = io.ReadAll(r)
		r.Close()
	case cPackBits:
		d.data, err = unpackBits(raw)
	case cSGILogRLE:
		bytesPerPixel := 4
		if d.info.Photometric == PhotometricLogL {
			bytesPerPixel = 2
		}
		d.data, err = unRLE(raw, bytesPerPixel, width, height)
	default:
		err = UnsupportedError("compression scheme")
	}
	return err
}

func (d *hdrDecoder) decodeBlock(
	dst image.Image, xmin, ymin, xmax, ymax int) error {
	b := dst.Bounds()
	if xmax > b.Max.X {
		xmax = b.Max.X
	}
	if ymax > b.Max.Y {
		ymax = b.Max.Y
	}

	stonits := d.fields[tagStonits].real(0)
	if stonits == 0 {
		stonits = 1
	}

	offset := 0
	switch d.info.Photometric {
	case PhotometricRGB:
		m := dst.(*hdr.RGB)
		for y := ymin; y < ymax; y++ {
			for x := xmin; x < xmax; x++ {
				if offset+12 > len(d.data) {
					return TruncatedError("float RGB samples")
				}
				r, g, bl := format.FromBytes(
					d.order, d.data[offset:offset+12])
				m.SetRGB(x, y, hdrcolor.RGB{R: r, G: g, B: bl})
				offset += 12
			}
		}
	case PhotometricLogL:
		m := dst.(*hdr.XYZ)
		for y := ymin; y < ymax; y++ {
			for x := xmin; x < xmax; x++ {
				if offset+2 > len(d.data) {
					return TruncatedError("LogL samples")
				}
				sle := format.BytesToUint16(
					d.data[offset], d.data[offset+1])
				l := format.SLeToY(sle) * stonits
				m.SetXYZ(x, y, hdrcolor.XYZ{X: l, Y: l, Z: l})
				offset += 2
			}
		}
	case PhotometricLogLuv:
		m := dst.(*hdr.XYZ)
		for y := ymin; y < ymax; y++ {
			for x := xmin; x < xmax; x++ {
				if offset+4 > len(d.data) {
					return TruncatedError("LogLuv samples")
				}
				x3, y3, z3 := format.LogLuvToXYZ(d.data[offset],
					d.data[offset+1], d.data[offset+2], d.data[offset+3])
				m.SetXYZ(x, y, hdrcolor.XYZ{
					X: x3 * stonits, Y: y3 * stonits, Z: z3 * stonits})
				offset += 4
			}
		}
	case PhotometricCFA:
		return d.decodeCFA(dst.(*hdr.XYZ), xmin, ymin, xmax, ymax)
	}
	return nil
}

// decodeCFA demosaics a colour filter array block and corrects it into
// XYZ, following the usual raw processing workflow: linearize, white
// balance, demosaic, then camera-space colour correction.
func (d *hdrDecoder) decodeCFA(m *hdr.XYZ, xmin, ymin, xmax, ymax int) error {
	patternField := d.fields[tagCFAPattern]
	patternValues := make([]uint, len(patternField.ints))
	for i, v := range patternField.ints {
		patternValues[i] = uint(v)
	}
	pattern, err := bayer.GetPattern(patternValues)
	if err != nil {
		return err
	}

	opts := &bayer.Options{
		ByteOrder: d.order,
		Depth:     d.info.BitsPerSample,
		Width:     xmax,
		Height:    ymax,
		Pattern:   pattern,
	}
	if f, ok := d.fields[tagBlackLevel]; ok {
		opts.BlackLevel = f.real(0)
	}
	if f, ok := d.fields[tagWhiteLevel]; ok {
		opts.WhiteLevel = f.real(0)
	} else {
		opts.WhiteLevel = math.Exp2(float64(d.info.BitsPerSample)) - 1
	}

	// AsShotNeutral is inverted and rescaled so that green stays at 1.
	if f, ok := d.fields[tagAsShotNeutral]; ok && len(f.reals) >= 3 {
		wb := make([]float64, 3)
		for i := range wb {
			if f.real(i) != 0 {
				wb[i] = 1 / f.real(i)
			}
		}
		if wb[1] != 0 {
			wb[0] /= wb[1]
			wb[2] /= wb[1]
			wb[1] = 1
		}
		opts.WhiteBalance = wb
	} else {
		opts.WhiteBalance = []float64{1, 1, 1}
	}

	demosaic := bayer.NewBilinear(d.data, opts)
	camToXYZ, err := d.cameraToXYZ()
	if err != nil {
		return err
	}

	for y := ymin; y < ymax; y++ {
		for x := xmin; x < xmax; x++ {
			r, g, b := demosaic.At(x, y)
			m.SetXYZ(x, y, hdrcolor.XYZ{
				X: r*camToXYZ[0] + g*camToXYZ[1] + b*camToXYZ[2],
				Y: r*camToXYZ[3] + g*camToXYZ[4] + b*camToXYZ[5],
				Z: r*camToXYZ[6] + g*camToXYZ[7] + b*camToXYZ[8],
			})
		}
	}
	return nil
}

// cameraToXYZ inverts the DNG XYZ-to-camera matrix, preferring the
// second calibration illuminant, with sRGB D65 as a last resort.
func (d *hdrDecoder) cameraToXYZ() ([]float64, error) {
	var xyzToCam []float64
	if f, ok := d.fields[tagColorMatrix2]; ok && len(f.reals) == 9 {
		xyzToCam = f.reals
	} else if f, ok := d.fields[tagColorMatrix1]; ok && len(f.reals) == 9 {
		xyzToCam = f.reals
	} else {
		return []float64{
			0.4124564, 0.3575761, 0.1804375,
			0.2126729, 0.7151522, 0.0721750,
			0.0193339, 0.1191920, 0.9503041,
		}, nil
	}

	var inverse mat.Dense
	if err := inverse.Inverse(mat.NewDense(3, 3, xyzToCam)); err != nil {
		return nil, FormatError("singular colour matrix")
	}
	out := make([]float64, 0, 9)
	for i := 0; i < 3; i++ {
		out = append(out, inverse.RawRowView(i)...)
	}
	return out, nil
}
