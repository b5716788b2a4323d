package fiv

import (
	"bytes"
	"image"

	"github.com/pkg/errors"
	"github.com/srwiley/oksvg"
	"github.com/srwiley/rasterx"

	"github.com/pjanx/fiv-sub001/cms"
	"github.com/pjanx/fiv-sub001/surface"
)

// decodeSVG rasterizes a vector document at the screen's pixel density
// and keeps a re-rasterization callback on the surface, so that zooming
// can stay sharp.
func decodeSVG(ctx *Context, data []byte) (*surface.Surface, error) {
	if !looksLikeXML(data) {
		return nil, UnsupportedError("svg: not an XML document")
	}
	icon, err := oksvg.ReadIconStream(bytes.NewReader(data))
	if err != nil {
		return nil, errors.Wrap(err, "svg")
	}

	scale := ctx.dpi() / 96
	width := int(icon.ViewBox.W*scale + 0.5)
	height := int(icon.ViewBox.H*scale + 0.5)
	if width <= 0 || height <= 0 {
		return nil, MalformedError("svg: no usable dimensions")
	}
	if width > maxDimension || height > maxDimension {
		return nil, DimensionError("svg: rasterization too large")
	}

	rasterize := func(w, h int) (*surface.Surface, error) {
		img := image.NewRGBA(image.Rect(0, 0, w, h))
		icon.SetTarget(0, 0, float64(w), float64(h))
		icon.Draw(rasterx.NewDasher(w, h,
			rasterx.NewScannerGV(w, h, img, img.Bounds())), 1)

		s, err := surface.FromRGBA(img)
		if err != nil {
			return nil, err
		}
		// The rasterizer hands back associated alpha; management runs
		// on the unassociated values.
		if ctx.CMM != nil && ctx.TargetProfile != nil {
			cms.UnpremultiplyARGB32(s.Data)
			ctx.CMM.TransformARGB32(s.Data, nil, ctx.TargetProfile)
			cms.PremultiplyARGB32(s.Data)
		}
		return s, nil
	}

	s, err := rasterize(width, height)
	if err != nil {
		return nil, err
	}
	s.Render = func(w, h int) *surface.Surface {
		if w <= 0 || h <= 0 || w > maxDimension || h > maxDimension {
			return nil
		}
		rendered, err := rasterize(w, h)
		if err != nil {
			return nil
		}
		return rendered
	}
	return s, nil
}

func looksLikeXML(data []byte) bool {
	data = bytes.TrimPrefix(data, []byte("\xef\xbb\xbf"))
	data = bytes.TrimLeft(data, " \t\r\n")
	return len(data) > 0 && data[0] == '<'
}
