package fiv

import (
	"bytes"

	"github.com/pkg/errors"
	"github.com/strukturag/libheif/go/heif"

	"github.com/pjanx/fiv-sub001/surface"
)

// ISOBMFF brands decodable through libheif.
var heifBrands = map[string]bool{
	"heic": true, "heix": true, "heim": true, "heis": true,
	"hevc": true, "hevx": true, "hevm": true, "hevs": true,
	"mif1": true, "msf1": true,
	"avif": true, "avis": true,
}

func isHEIF(data []byte) bool {
	return len(data) >= 12 && bytes.Equal(data[4:8], []byte("ftyp")) &&
		heifBrands[string(data[8:12])]
}

// decodeHEIF hands ISOBMFF containers to libheif. Every top-level image
// of the container becomes a page, the primary image first.
func decodeHEIF(ctx *Context, data []byte) (*surface.Surface, error) {
	if !isHEIF(data) {
		return nil, UnsupportedError("heif: not an ISOBMFF image")
	}
	c, err := heif.NewContext()
	if err != nil {
		return nil, errors.Wrap(err, "heif")
	}
	if err := c.ReadFromMemory(data); err != nil {
		return nil, errors.Wrap(err, "heif")
	}

	ids := c.GetListOfTopLevelImageIDs()
	if primary, err := c.GetPrimaryImageID(); err == nil {
		ordered := []int{primary}
		for _, id := range ids {
			if id != primary {
				ordered = append(ordered, id)
			}
		}
		ids = ordered
	}

	var head *surface.Surface
	for _, id := range ids {
		page, err := ctx.decodeHEIFImage(c, id)
		if err != nil {
			if fatal(err) {
				return nil, err
			}
			ctx.Warn("heif: image %d: %s", id, err)
			continue
		}
		if head == nil {
			head = page
		} else {
			head.AppendPage(page)
		}
	}
	if head == nil {
		return nil, MalformedError("heif: no decodable images")
	}
	return head, nil
}

func (c *Context) decodeHEIFImage(
	hc *heif.Context, id int,
) (*surface.Surface, error) {
	handle, err := hc.GetImageHandle(id)
	if err != nil {
		return nil, err
	}
	img, err := handle.DecodeImage(
		heif.ColorspaceUndefined, heif.ChromaUndefined, nil)
	if err != nil {
		return nil, err
	}
	decoded, err := img.GetImage()
	if err != nil {
		return nil, err
	}
	return c.decodeNarrow(decoded, nil)
}
