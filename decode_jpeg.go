package fiv

import (
	"bytes"
	"image"
	"image/jpeg"

	"github.com/gen2brain/jpegn"
	"github.com/pkg/errors"
	xdraw "golang.org/x/image/draw"

	"github.com/pjanx/fiv-sub001/cms"
	"github.com/pjanx/fiv-sub001/meta"
	"github.com/pjanx/fiv-sub001/surface"
)

func decodeJPEG(ctx *Context, data []byte) (*surface.Surface, error) {
	head, scan, err := decodeJPEGImage(ctx, data)
	if err != nil {
		return nil, err
	}

	// Multi-Picture Format records make the other images in the file
	// into pages. The first record is the image being decoded.
	if scan.MPF != nil {
		offsets, err := meta.ParseMPF(scan.MPF)
		if err != nil {
			ctx.Warn("jpeg: MPF: %s", err)
			offsets = nil
		}
		for _, offset := range offsets {
			if offset == 0 {
				continue
			}
			start := scan.MPFOffset + int(offset)
			if start < 0 || start >= len(data) {
				ctx.Warn("jpeg: MPF image offset out of bounds")
				continue
			}
			page, _, err := decodeJPEGImage(ctx, data[start:])
			if err != nil {
				ctx.Warn("jpeg: MPF image: %s", err)
				continue
			}
			head.AppendPage(page)
		}
	}
	return head, nil
}

func decodeJPEGImage(
	ctx *Context, data []byte,
) (*surface.Surface, *meta.JPEGScan, error) {
	scan, err := meta.ScanJPEG(data)
	if err != nil {
		return nil, nil, err
	}
	for _, w := range scan.Warnings {
		ctx.Warn("jpeg: %s", w)
	}

	profile := ctx.jpegProfile(scan)
	img, err := decodeJPEGPixels(ctx, data)
	if err != nil {
		return nil, nil, errors.Wrap(err, "jpeg")
	}

	var s *surface.Surface
	if cmyk, ok := img.(*image.CMYK); ok {
		s, err = ctx.convertCMYK(cmyk, profile)
	} else {
		img, err = ctx.fitJPEG(img)
		if err == nil {
			s, err = surface.FromOpaque(img)
			if err == nil {
				ctx.transformRGB24(s, profile)
			}
		}
	}
	if err != nil {
		return nil, nil, err
	}

	s.Exif = scan.Exif
	s.ICC = scan.ICC
	s.XMP = scan.XMP
	if t := meta.Thumbnail(scan.Exif); t != nil {
		s.Thumbnail = t
	} else if t := meta.PSIRThumbnail(scan.PSIR); t != nil {
		s.Thumbnail = t
	}
	return s, scan, nil
}

// decodeJPEGPixels tries the SIMD decoder first and leaves whatever it
// cannot handle, such as CMYK and arithmetic coding, to the standard
// library.
func decodeJPEGPixels(ctx *Context, data []byte) (image.Image, error) {
	opts := jpegn.Options{ToRGBA: true}
	if ctx.Enhance {
		opts.UpsampleMethod = jpegn.CatmullRom
	}
	if img, err := jpegn.Decode(bytes.NewReader(data), &opts); err == nil {
		return img, nil
	}
	return jpeg.Decode(bytes.NewReader(data))
}

// jpegProfile prefers an embedded profile, then Exif colour metadata.
func (c *Context) jpegProfile(scan *meta.JPEGScan) *cms.Profile {
	if c.CMM == nil {
		return nil
	}
	if scan.ICC != nil {
		return c.CMM.NewProfile(scan.ICC)
	}

	info := meta.ColorInfo(scan.Exif)
	switch {
	case info.ColorSpace == meta.ColorSpaceSRGB:
		return c.CMM.SRGB()
	case info.Parametric():
		gamma := info.Gamma
		if !info.HasGamma {
			gamma = 2.2
		}
		p, err := c.CMM.NewProfileFromExif(
			info.WhitePoint, info.Primaries, gamma)
		if err == nil {
			return p
		}
	}
	return nil
}

// fitJPEG scales images beyond the rendering coordinate limit down by
// an eighths factor, the way DCT-domain scaling would.
func (c *Context) fitJPEG(img image.Image) (image.Image, error) {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	if w <= maxDimension && h <= maxDimension {
		return img, nil
	}

	m := 7
	for ; m > 0; m-- {
		if w*m/8 <= maxDimension && h*m/8 <= maxDimension {
			break
		}
	}
	if m == 0 {
		return nil, DimensionError("too large to decode at any scale")
	}

	c.Warn("jpeg: image too large, decoding at %d/8 of full size", m)
	scaled := image.NewRGBA(image.Rect(0, 0, w*m/8, h*m/8))
	xdraw.BiLinear.Scale(scaled, scaled.Bounds(), img, b, xdraw.Src, nil)
	return scaled, nil
}

// convertCMYK turns standard CMYK pixels into an opaque managed surface.
// The colour pipeline wants them inverted, the way they sit in the file.
func (c *Context) convertCMYK(
	img *image.CMYK, profile *cms.Profile,
) (*surface.Surface, error) {
	b := img.Bounds()
	s, err := surface.New(surface.RGB24, b.Dx(), b.Dy())
	if err != nil {
		return nil, err
	}
	for y := 0; y < s.Height; y++ {
		src := img.Pix[img.PixOffset(b.Min.X, b.Min.Y+y):]
		dst := s.Data[y*s.Stride:]
		for x := 0; x < s.Width; x++ {
			dst[4*x+0] = 0xFF - src[4*x+0]
			dst[4*x+1] = 0xFF - src[4*x+1]
			dst[4*x+2] = 0xFF - src[4*x+2]
			dst[4*x+3] = 0xFF - src[4*x+3]
		}
		cms.TransformCMYK(dst[:4*s.Width], profile, c.TargetProfile)
	}
	return s, nil
}
