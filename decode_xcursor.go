package fiv

import (
	"encoding/binary"
	"sort"

	"github.com/pjanx/fiv-sub001/surface"
)

// Xcursor files hold multiple cursor images, one or more per nominal
// size. Each nominal size becomes a page; several images of the same
// size form that page's animation.
const xcursorImageChunk = 0xFFFD0002

type xcursorImage struct {
	nominal  uint32
	position uint32
}

func decodeXCursor(ctx *Context, data []byte) (*surface.Surface, error) {
	le := binary.LittleEndian
	if len(data) < 16 || string(data[:4]) != "Xcur" {
		return nil, UnsupportedError("xcursor: bad magic")
	}
	ntoc := int(le.Uint32(data[12:]))
	if ntoc < 0 || len(data)-16 < 12*ntoc {
		return nil, TruncatedError("xcursor: table of contents")
	}

	var images []xcursorImage
	for i := 0; i < ntoc; i++ {
		entry := data[16+12*i:]
		if le.Uint32(entry) != xcursorImageChunk {
			continue
		}
		images = append(images, xcursorImage{
			nominal:  le.Uint32(entry[4:]),
			position: le.Uint32(entry[8:]),
		})
	}
	if len(images) == 0 {
		return nil, MalformedError("xcursor: no images")
	}

	// Sizes in ascending order; the table keeps same-size frames in
	// their animation order.
	sort.SliceStable(images, func(a, b int) bool {
		return images[a].nominal < images[b].nominal
	})

	var head, page *surface.Surface
	var pageNominal uint32
	for _, img := range images {
		s, err := decodeXCursorImage(data, img.position)
		if err != nil {
			if fatal(err) {
				return nil, err
			}
			ctx.Warn("xcursor: %s", err)
			continue
		}

		switch {
		case head == nil:
			head, page, pageNominal = s, s, img.nominal
		case img.nominal == pageNominal:
			page.AppendFrame(s)
		default:
			head.AppendPage(s)
			page, pageNominal = s, img.nominal
		}
	}
	if head == nil {
		return nil, MalformedError("xcursor: no decodable images")
	}
	return head, nil
}

func decodeXCursorImage(data []byte, position uint32) (*surface.Surface, error) {
	le := binary.LittleEndian
	p := int(position)
	if p < 0 || len(data)-p < 36 {
		return nil, TruncatedError("xcursor: image header")
	}
	width := int(le.Uint32(data[p+16:]))
	height := int(le.Uint32(data[p+20:]))
	delay := int(le.Uint32(data[p+32:]))
	if width <= 0 || height <= 0 ||
		width > maxDimension || height > maxDimension {
		return nil, MalformedError("xcursor: bad dimensions")
	}
	pixels := data[p+36:]
	if len(pixels) < 4*width*height {
		return nil, TruncatedError("xcursor: pixels")
	}

	s, err := surface.New(surface.ARGB32, width, height)
	if err != nil {
		return nil, err
	}
	// Stored as packed 32-bit ARGB with associated alpha, little endian,
	// which is byte-for-byte our ARGB32 layout.
	for y := 0; y < height; y++ {
		copy(s.Data[y*s.Stride:], pixels[4*y*width:4*(y+1)*width])
	}
	s.Duration = delay
	return s, nil
}
