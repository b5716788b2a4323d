package fiv

import (
	"bytes"

	"github.com/pjanx/fiv-sub001/meta"
	"github.com/pjanx/fiv-sub001/surface"
)

var (
	magicPNG  = []byte("\x89PNG\r\n\x1a\n")
	magicGIF  = []byte("GIF8")
	magicBMP  = []byte("BM")
	magicJPEG = []byte("\xff\xd8")
	magicRIFF = []byte("RIFF")
	magicWebP = []byte("WEBP")
)

type decoder struct {
	name string
	fn   func(*Context, []byte) (*surface.Surface, error)
}

// chain is tried in order for inputs without a trusted magic number.
// Decoders here must reliably reject foreign data.
var chain = []decoder{
	{"tiff-ep", decodeTIFFEP},
	{"raw", decodeRaw},
	{"svg", decodeSVG},
	{"xcursor", decodeXCursor},
	{"heif", decodeHEIF},
	{"tiff", decodeTIFF},
	{"image", decodeGeneric},
}

// dispatch picks a decoder. Formats with unambiguous magic numbers go
// straight to their decoder and its error is final; everything else
// walks the fallback chain, turning individual failures into warnings.
func dispatch(ctx *Context, data []byte) (*surface.Surface, error) {
	switch {
	case bytes.HasPrefix(data, magicPNG):
		return decodePNG(ctx, data)
	case bytes.HasPrefix(data, magicGIF):
		return decodeGIF(ctx, data)
	case bytes.HasPrefix(data, magicBMP):
		return decodeBMP(ctx, data)
	case bytes.HasPrefix(data, magicJPEG):
		return decodeJPEG(ctx, data)
	case bytes.HasPrefix(data, magicRIFF) &&
		len(data) >= 12 && bytes.Equal(data[8:12], magicWebP):
		return decodeWebP(ctx, data)
	}

	// TGA has no magic number, only a plausible header and sometimes a
	// v2 footer: try it quietly first so that a plain TGA does not drag
	// a failure warning out of every chain decoder before it.
	if looksLikeTGA(data) {
		if s, err := decodeTGA(ctx, data); err == nil {
			return s, nil
		} else if fatal(err) {
			return nil, err
		}
	}

	for _, d := range chain {
		s, err := d.fn(ctx, data)
		if err == nil {
			return s, nil
		}
		if fatal(err) {
			return nil, err
		}
		ctx.Warn("%s: %s", d.name, err)
	}
	return nil, UnsupportedError("unrecognized file format")
}

func exifOrientation(exifTIFF []byte) int {
	return meta.Orientation(exifTIFF)
}
