package fiv

import (
	"bytes"
	"encoding/binary"
	"math"

	"github.com/mdouchement/hdr"
	"github.com/pkg/errors"
	xtiff "golang.org/x/image/tiff"

	"github.com/pjanx/fiv-sub001/surface"
	"github.com/pjanx/fiv-sub001/tiff"
)

// decodeTIFF walks every directory of the file and decodes each as a
// page: the low dynamic range ones through the baseline reader aimed at
// the right directory, the HDR ones through the native decoder.
func decodeTIFF(ctx *Context, data []byte) (*surface.Surface, error) {
	offsets, err := tiff.PageOffsets(data)
	if len(offsets) == 0 {
		if err == nil {
			err = MalformedError("tiff: no directories")
		}
		return nil, err
	}
	if err != nil {
		ctx.Warn("tiff: %s", err)
	}

	var head *surface.Surface
	for i, offset := range offsets {
		s, err := ctx.decodeTIFFPage(data, offset)
		if err != nil {
			if fatal(err) {
				return nil, err
			}
			ctx.Warn("tiff: page %d: %s", i, err)
			continue
		}
		if head == nil {
			head = s
		} else {
			head.AppendPage(s)
		}
	}
	if head == nil {
		return nil, UnsupportedError("tiff: no decodable pages")
	}
	head.Exif = data
	return head, nil
}

func (c *Context) decodeTIFFPage(
	data []byte, offset int64,
) (*surface.Surface, error) {
	info, err := tiff.ParseInfo(data, offset)
	if err != nil {
		return nil, err
	}

	var s *surface.Surface
	if info.HDR() {
		img, err := tiff.DecodeHDR(data, info)
		if err != nil {
			return nil, err
		}
		s, err = packHDR(img.(hdr.Image))
		if err != nil {
			return nil, err
		}
	} else {
		img, err := xtiff.Decode(bytes.NewReader(patchIFDOffset(data, offset)))
		if err != nil {
			return nil, errors.Wrap(err, "tiff")
		}
		profile := c.sourceProfile(info.ICC)
		if pngDeep(img) {
			s, err = c.decodeWide(img, profile)
		} else {
			s, err = c.decodeNarrow(img, profile)
		}
		if err != nil {
			return nil, err
		}
	}

	s.Orientation = info.Orientation
	s.ICC = info.ICC
	s.XMP = info.XMP
	if info.Description != "" {
		s.Text = map[string]string{"ImageDescription": info.Description}
	}
	return s, nil
}

// patchIFDOffset clones the stream with its first-directory pointer aimed
// at the given page, so that single-directory readers decode that page.
func patchIFDOffset(data []byte, offset int64) []byte {
	patched := make([]byte, len(data))
	copy(patched, data)
	var order binary.ByteOrder = binary.LittleEndian
	if patched[0] == 'M' {
		order = binary.BigEndian
	}
	order.PutUint32(patched[4:], uint32(offset))
	return patched
}

// packHDR spreads a decoded HDR image into a premultiplied float surface,
// keeping values linear and unclamped.
func packHDR(img hdr.Image) (*surface.Surface, error) {
	b := img.Bounds()
	s, err := surface.New(surface.RGBA128F, b.Dx(), b.Dy())
	if err != nil {
		return nil, err
	}
	le := binary.LittleEndian
	for y := 0; y < s.Height; y++ {
		dst := s.Data[y*s.Stride:]
		for x := 0; x < s.Width; x++ {
			r, g, bl, _ := img.HDRAt(x+b.Min.X, y+b.Min.Y).HDRRGBA()
			le.PutUint32(dst[16*x+0:], floatBits(r))
			le.PutUint32(dst[16*x+4:], floatBits(g))
			le.PutUint32(dst[16*x+8:], floatBits(bl))
			le.PutUint32(dst[16*x+12:], floatBits(1))
		}
	}
	return s, nil
}

func floatBits(v float64) uint32 {
	return math.Float32bits(float32(v))
}
