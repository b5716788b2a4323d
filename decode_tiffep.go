package fiv

import (
	"github.com/pjanx/fiv-sub001/surface"
	"github.com/pjanx/fiv-sub001/tiff"
)

// decodeTIFFEP serves TIFF/EP and DNG camera files through their
// embedded JPEG previews, which decode orders of magnitude faster than
// the raw mosaic. The raw decoder picks the file up when no preview of
// comparable size exists.
func decodeTIFFEP(ctx *Context, data []byte) (*surface.Surface, error) {
	infos, main, err := probeTIFFEP(data)
	if err != nil {
		return nil, err
	}

	// Previews are only an acceptable stand-in when they come close to
	// the main image's resolution; without one, the file goes on to the
	// raw decoder. Smaller previews are thumbnails of the same picture
	// and get skipped. Files with no main-image directory are measured
	// against their largest preview.
	reference := 0
	if main != nil {
		reference = main.Width * main.Height
	} else {
		for _, info := range infos {
			if n := info.Width * info.Height; n > reference {
				reference = n
			}
		}
	}
	if reference == 0 {
		return nil, UnsupportedError("tiff-ep: no preview images")
	}

	var head *surface.Surface
	for _, info := range infos {
		if info.Width*info.Height*100 < reference*95 {
			continue
		}
		page, _, err := decodeJPEGImage(ctx, info.Preview)
		if err != nil {
			ctx.Warn("tiff-ep: preview: %s", err)
			continue
		}
		if page.Orientation == 1 {
			page.Orientation = info.Orientation
		}
		if head == nil {
			head = page
		} else {
			head.AppendPage(page)
		}
	}
	if head == nil {
		return nil, UnsupportedError("tiff-ep: no decodable previews")
	}
	if head.Exif == nil {
		head.Exif = data
	}
	return head, nil
}

// probeTIFFEP breadth-first walks the directory tree of a TIFF/EP or DNG
// file and returns the directories that carry a JPEG preview, together
// with the main-image directory (subfile type zero) the previews reduce.
// Anything without the TIFF/EP or DNG markers in its first directory is
// rejected.
func probeTIFFEP(data []byte) ([]*tiff.Info, *tiff.Info, error) {
	offsets, err := tiff.PageOffsets(data)
	if len(offsets) == 0 {
		if err == nil {
			err = MalformedError("tiff-ep: no directories")
		}
		return nil, nil, err
	}

	first, err := tiff.ParseInfo(data, offsets[0])
	if err != nil {
		return nil, nil, err
	}
	if first.DNGVersion == nil && !first.EPStandard {
		return nil, nil, UnsupportedError("tiff-ep: no version markers")
	}

	queue := append([]int64(nil), offsets...)
	var previews []*tiff.Info
	var main *tiff.Info
	for len(queue) > 0 {
		info, err := tiff.ParseInfo(data, queue[0])
		queue = queue[1:]
		if err != nil {
			continue
		}
		queue = append(queue, info.SubIFDs...)

		// Transparency masks and anything that is not a displayable
		// reduction or primary cannot serve as a preview.
		if info.SubfileType&tiff.SubfileMask != 0 {
			continue
		}
		if info.SubfileType == 0 &&
			(main == nil || info.Width*info.Height > main.Width*main.Height) {
			main = info
		}
		if info.Preview != nil {
			previews = append(previews, info)
		}
	}
	return previews, main, nil
}
