package fiv

import (
	"bytes"
	"image"
	"image/color"
	"image/draw"

	"github.com/pkg/errors"
	"golang.org/x/image/webp"

	"github.com/pjanx/fiv-sub001/cms"
	"github.com/pjanx/fiv-sub001/surface"
)

func le24(p []byte) int {
	return int(p[0]) | int(p[1])<<8 | int(p[2])<<16
}

// webpFile is the chunk-level view of a WebP container.
type webpFile struct {
	vp8x      []byte
	anim      []byte
	frames    [][]byte // ANMF payloads
	exif      []byte
	icc       []byte
	xmp       []byte
	truncated bool
}

func parseWebP(data []byte) (*webpFile, error) {
	form, chunks, truncated, err := parseRIFF(data)
	if err != nil {
		return nil, err
	}
	if form != "WEBP" {
		return nil, MalformedError("not a WebP file")
	}

	f := &webpFile{truncated: truncated}
	for _, c := range chunks {
		switch c.id {
		case "VP8X":
			if f.vp8x == nil && len(c.data) >= 10 {
				f.vp8x = c.data
			}
		case "ANIM":
			if f.anim == nil && len(c.data) >= 6 {
				f.anim = c.data
			}
		case "ANMF":
			if len(c.data) >= 16 {
				f.frames = append(f.frames, c.data)
			}
		case "EXIF":
			if f.exif == nil {
				f.exif = bytes.TrimPrefix(c.data, sigExif)
			}
		case "ICCP":
			if f.icc == nil {
				f.icc = c.data
			}
		case "XMP ":
			if f.xmp == nil {
				f.xmp = c.data
			}
		}
	}
	return f, nil
}

var sigExif = []byte("Exif\x00\x00")

func (f *webpFile) canvasSize() (int, int, bool) {
	if f.vp8x == nil {
		return 0, 0, false
	}
	return le24(f.vp8x[4:]) + 1, le24(f.vp8x[7:]) + 1, true
}

func decodeWebP(ctx *Context, data []byte) (*surface.Surface, error) {
	f, err := parseWebP(data)
	if err != nil {
		return nil, err
	}
	if f.truncated {
		ctx.Warn("webp: image file is truncated")
	}
	profile := ctx.sourceProfile(f.icc)

	var head *surface.Surface
	if f.anim != nil && len(f.frames) > 0 {
		head, err = ctx.decodeWebPAnimation(f, profile)
	} else {
		head, err = ctx.decodeWebPStill(f, data, profile)
	}
	if err != nil {
		return nil, err
	}

	head.Exif = f.exif
	head.ICC = f.icc
	head.XMP = f.xmp
	return head, nil
}

func (c *Context) decodeWebPStill(
	f *webpFile, data []byte, profile *cms.Profile,
) (*surface.Surface, error) {
	img, err := webp.Decode(bytes.NewReader(data))
	if err != nil {
		if !f.truncated {
			return nil, errors.Wrap(err, "webp")
		}
		return c.zeroedWebPCanvas(f, data)
	}
	return c.decodeNarrow(img, profile)
}

// zeroedWebPCanvas substitutes fully transparent pixels at the declared
// size when the bitstream itself cannot be salvaged.
func (c *Context) zeroedWebPCanvas(
	f *webpFile, data []byte,
) (*surface.Surface, error) {
	w, h, ok := f.canvasSize()
	if !ok {
		cfg, err := webp.DecodeConfig(bytes.NewReader(data))
		if err != nil {
			return nil, TruncatedError("webp: no decodable header")
		}
		w, h = cfg.Width, cfg.Height
	}
	return surface.New(surface.ARGB32, w, h)
}

func (c *Context) decodeWebPAnimation(
	f *webpFile, profile *cms.Profile,
) (*surface.Surface, error) {
	width, height, ok := f.canvasSize()
	if !ok {
		return nil, MalformedError("webp: animation without VP8X")
	}

	// Blue, green, red, alpha order in the file.
	background := color.RGBA{
		R: f.anim[2], G: f.anim[1], B: f.anim[0], A: f.anim[3]}
	loopCount := int(f.anim[4]) | int(f.anim[5])<<8

	comp := surface.NewCompositor(width, height)
	var head *surface.Surface
	for _, frame := range f.frames {
		x := le24(frame[0:]) * 2
		y := le24(frame[3:]) * 2
		fw := le24(frame[6:]) + 1
		fh := le24(frame[9:]) + 1
		duration := le24(frame[12:])
		flags := frame[15]

		img, err := c.decodeWebPFrame(fw, fh, frame[16:], profile)
		if err != nil {
			if head == nil {
				return nil, err
			}
			c.Warn("webp: %s", err)
			break
		}

		blend := surface.BlendOver
		if flags&0x02 != 0 {
			blend = surface.BlendSource
		}
		disposal := surface.DisposalNone
		if flags&0x01 != 0 {
			disposal = surface.DisposalBackground
		}

		s, warning, err := comp.Frame(img,
			image.Rect(x, y, x+fw, y+fh), disposal, blend, background)
		if err != nil {
			return nil, err
		}
		if warning != "" {
			c.Warn("webp: %s", warning)
		}

		s.Duration = duration
		if head == nil {
			head = s
		} else {
			head.AppendFrame(s)
		}
		if c.FirstFrameOnly {
			break
		}
	}
	if head == nil {
		return nil, MalformedError("webp: no decodable frames")
	}
	head.LoopCount = loopCount
	return head, nil
}

// decodeWebPFrame wraps an ANMF frame's bitstream back into a standalone
// still and runs it through the still decoder, colour-managing the result
// while its alpha is still unassociated.
func (c *Context) decodeWebPFrame(
	width, height int, payload []byte, profile *cms.Profile,
) (image.Image, error) {
	var alph, vp8, vp8l []byte
	le := func(p []byte) int { return le24(p) | int(p[3])<<24 }
	for p := 0; len(payload)-p >= 8; {
		size := le(payload[p+4:])
		if size < 0 || len(payload)-p-8 < size {
			return nil, TruncatedError("webp: frame chunk overruns")
		}
		switch string(payload[p : p+4]) {
		case "ALPH":
			alph = payload[p+8 : p+8+size]
		case "VP8 ":
			vp8 = payload[p+8 : p+8+size]
		case "VP8L":
			vp8l = payload[p+8 : p+8+size]
		}
		p += 8 + size + size&1
	}

	w := newRIFFWriter("WEBP")
	switch {
	case vp8l != nil:
		w.chunk("VP8L", vp8l)
	case vp8 != nil && alph != nil:
		vp8x := make([]byte, 10)
		vp8x[0] = 0x10 // alpha
		putLE24(vp8x[4:], width-1)
		putLE24(vp8x[7:], height-1)
		w.chunk("VP8X", vp8x)
		w.chunk("ALPH", alph)
		w.chunk("VP8 ", vp8)
	case vp8 != nil:
		w.chunk("VP8 ", vp8)
	default:
		return nil, MalformedError("webp: frame without a bitstream")
	}

	img, err := webp.Decode(bytes.NewReader(w.bytes()))
	if err != nil {
		return nil, errors.Wrap(err, "webp")
	}

	nrgba, ok := img.(*image.NRGBA)
	if !ok {
		b := img.Bounds()
		nrgba = image.NewNRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
		draw.Draw(nrgba, nrgba.Bounds(), img, b.Min, draw.Src)
	}
	c.transformNRGBA(nrgba.Pix, profile)
	return nrgba, nil
}

func putLE24(p []byte, v int) {
	p[0] = byte(v)
	p[1] = byte(v >> 8)
	p[2] = byte(v >> 16)
}

// transformNRGBA colour-manages straight-alpha RGBA-ordered pixels,
// accounting for the engine's BGRA layout.
func (c *Context) transformNRGBA(pix []byte, profile *cms.Profile) {
	if c.CMM == nil || c.TargetProfile == nil {
		return
	}
	for i := 0; i+4 <= len(pix); i += 4 {
		pix[i], pix[i+2] = pix[i+2], pix[i]
	}
	c.CMM.TransformARGB32(pix, profile, c.TargetProfile)
	for i := 0; i+4 <= len(pix); i += 4 {
		pix[i], pix[i+2] = pix[i+2], pix[i]
	}
}
