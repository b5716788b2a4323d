package fiv

import (
	"github.com/mdouchement/hdr"

	"github.com/pjanx/fiv-sub001/surface"
	"github.com/pjanx/fiv-sub001/tiff"
)

// decodeRaw develops the colour filter array of a DNG into a float
// surface. It only answers for files carrying a DNGVersion tag; other
// raw containers fall through to the remaining decoders.
func decodeRaw(ctx *Context, data []byte) (*surface.Surface, error) {
	offsets, err := tiff.PageOffsets(data)
	if len(offsets) == 0 {
		if err == nil {
			err = MalformedError("raw: no directories")
		}
		return nil, err
	}

	first, err := tiff.ParseInfo(data, offsets[0])
	if err != nil {
		return nil, err
	}
	if first.DNGVersion == nil {
		return nil, UnsupportedError("raw: not a DNG")
	}

	mosaic := findMosaic(data, offsets)
	if mosaic == nil {
		return nil, UnsupportedError("raw: no colour filter array")
	}

	img, err := tiff.DecodeHDR(data, mosaic)
	if err != nil {
		return nil, err
	}
	s, err := packHDR(img.(hdr.Image))
	if err != nil {
		return nil, err
	}

	s.Exif = data
	s.Orientation = mosaic.Orientation
	if t := mosaicThumbnail(data); t != nil {
		s.Thumbnail = t
	}
	return s, nil
}

// findMosaic locates the primary raw directory: DNG keeps the mosaic
// either in IFD0 or in a sub-IFD flagged as the full-resolution image.
func findMosaic(data []byte, offsets []int64) *tiff.Info {
	queue := append([]int64(nil), offsets...)
	var best *tiff.Info
	for len(queue) > 0 {
		info, err := tiff.ParseInfo(data, queue[0])
		queue = queue[1:]
		if err != nil {
			continue
		}
		queue = append(queue, info.SubIFDs...)

		if !info.CFA {
			continue
		}
		if best == nil ||
			info.Width*info.Height > best.Width*best.Height {
			best = info
		}
	}
	return best
}

// mosaicThumbnail picks the smallest JPEG preview as the thumbnail.
func mosaicThumbnail(data []byte) []byte {
	previews, _, err := probeTIFFEP(data)
	if err != nil {
		return nil
	}
	var best *tiff.Info
	for _, info := range previews {
		if best == nil ||
			info.Width*info.Height < best.Width*best.Height {
			best = info
		}
	}
	if best == nil {
		return nil
	}
	return best.Preview
}
