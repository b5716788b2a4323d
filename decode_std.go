package fiv

import (
	"bytes"
	"compress/zlib"
	"encoding/binary"
	"image"
	"image/color"
	"image/gif"
	"image/png"
	"io"

	"github.com/ftrvxmtrx/tga"
	"github.com/pkg/errors"
	"golang.org/x/image/bmp"

	"github.com/pjanx/fiv-sub001/cms"
	"github.com/pjanx/fiv-sub001/surface"
)

// pngMeta holds metadata chunks the stdlib decoder does not surface.
type pngMeta struct {
	exif []byte
	icc  []byte
	// gamma is the decoding exponent from a gAMA chunk, zero when absent.
	gamma float64
	srgb  bool
	text  map[string]string
}

// scanPNGChunks walks the chunk stream best-effort: metadata in a broken
// tail is simply not there. Checksums are left to the pixel decoder.
func scanPNGChunks(data []byte) (m pngMeta) {
	be := binary.BigEndian
	for p := len(magicPNG); len(data)-p >= 12; {
		length := int(be.Uint32(data[p:]))
		kind := string(data[p+4 : p+8])
		if length < 0 || len(data)-p-12 < length {
			return
		}
		payload := data[p+8 : p+8+length]
		p += 12 + length

		switch kind {
		case "IEND":
			return
		case "eXIf":
			m.exif = payload
		case "iCCP":
			if icc := inflateICCP(payload); icc != nil {
				m.icc = icc
			}
		case "gAMA":
			if length == 4 {
				if v := be.Uint32(payload); v != 0 {
					m.gamma = 100000 / float64(v)
				}
			}
		case "sRGB":
			m.srgb = true
		case "tEXt":
			if i := bytes.IndexByte(payload, 0); i > 0 {
				m.setText(string(payload[:i]), payload[i+1:])
			}
		case "zTXt":
			i := bytes.IndexByte(payload, 0)
			if i <= 0 || len(payload) < i+2 || payload[i+1] != 0 {
				continue
			}
			if text := inflate(payload[i+2:]); text != nil {
				m.setText(string(payload[:i]), text)
			}
		}
	}
	return
}

func (m *pngMeta) setText(key string, value []byte) {
	if m.text == nil {
		m.text = map[string]string{}
	}
	m.text[key] = string(value)
}

func inflateICCP(payload []byte) []byte {
	i := bytes.IndexByte(payload, 0)
	if i < 0 || len(payload) < i+2 || payload[i+1] != 0 {
		return nil
	}
	return inflate(payload[i+2:])
}

func inflate(data []byte) []byte {
	zr, err := zlib.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil
	}
	defer zr.Close()
	out, err := io.ReadAll(zr)
	if err != nil {
		return nil
	}
	return out
}

// pngProfile resolves chunk precedence: an embedded profile wins over
// the sRGB declaration, which wins over a bare gamma value.
func (c *Context) pngProfile(m *pngMeta) *cms.Profile {
	if c.CMM == nil {
		return nil
	}
	switch {
	case m.icc != nil:
		return c.CMM.NewProfile(m.icc)
	case m.srgb:
		return c.CMM.SRGB()
	case m.gamma != 0:
		return c.CMM.NewProfileFromGamma(m.gamma)
	}
	return nil
}

func pngDeep(img image.Image) bool {
	switch img.(type) {
	case *image.RGBA64, *image.NRGBA64, *image.Gray16:
		return true
	}
	return false
}

func decodePNG(ctx *Context, data []byte) (*surface.Surface, error) {
	img, err := png.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, errors.Wrap(err, "png")
	}

	m := scanPNGChunks(data)
	profile := ctx.pngProfile(&m)

	var s *surface.Surface
	if pngDeep(img) {
		s, err = ctx.decodeWide(img, profile)
	} else {
		s, err = ctx.decodeNarrow(img, profile)
	}
	if err != nil {
		return nil, err
	}

	s.Exif = m.exif
	s.ICC = m.icc
	s.Text = m.text
	return s, nil
}

// decodeNarrow takes the canonical 8-bit route: transform while the
// alpha is still unassociated, then premultiply.
func (c *Context) decodeNarrow(
	img image.Image, profile *cms.Profile,
) (*surface.Surface, error) {
	if surface.IsOpaque(img) {
		s, err := surface.FromOpaque(img)
		if err != nil {
			return nil, err
		}
		c.transformRGB24(s, profile)
		return s, nil
	}

	nrgba, ok := img.(*image.NRGBA)
	if !ok {
		b := img.Bounds()
		nrgba = image.NewNRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
		for y := b.Min.Y; y < b.Max.Y; y++ {
			for x := b.Min.X; x < b.Max.X; x++ {
				nrgba.Set(x-b.Min.X, y-b.Min.Y, img.At(x, y))
			}
		}
	}
	s, err := surface.FromNRGBA(nrgba)
	if err != nil {
		return nil, err
	}
	c.finishARGB32(s, profile)
	return s, nil
}

// decodeWide keeps 16-bit sources deep: opaque images pack into RGB30,
// translucent ones into float RGBA, falling back to 8 bits when there is
// no colour management to make the flavour of float meaningful.
func (c *Context) decodeWide(
	img image.Image, profile *cms.Profile,
) (*surface.Surface, error) {
	opaque := surface.IsOpaque(img)
	if !opaque && c.CMM == nil {
		return c.decodeNarrow(img, profile)
	}

	w := surface.NewWide16(img)
	if c.CMM != nil && c.TargetProfile != nil &&
		(profile != nil || c.AssumeSRGB) {
		c.CMM.Transform4x16LE(w.Pix, profile, c.TargetProfile)
	}
	if opaque {
		return w.PackRGB30()
	}
	return w.PackFloat()
}

func gifDisposal(d byte) surface.Disposal {
	switch d {
	case gif.DisposalBackground:
		return surface.DisposalBackground
	case gif.DisposalPrevious:
		return surface.DisposalPrevious
	}
	return surface.DisposalNone
}

func decodeGIF(ctx *Context, data []byte) (*surface.Surface, error) {
	g, err := gif.DecodeAll(bytes.NewReader(data))
	if err != nil {
		return nil, errors.Wrap(err, "gif")
	}
	if len(g.Image) == 0 {
		return nil, MalformedError("no frames")
	}

	// The global background is used as decoded; disposal fills happen
	// outside any colour context.
	background := color.RGBA{}
	if p, ok := g.Config.ColorModel.(color.Palette); ok &&
		int(g.BackgroundIndex) < len(p) {
		r, gc, b, a := p[g.BackgroundIndex].RGBA()
		background = color.RGBA{
			uint8(r >> 8), uint8(gc >> 8), uint8(b >> 8), uint8(a >> 8)}
	}

	width, height := g.Config.Width, g.Config.Height
	if width == 0 || height == 0 {
		b := g.Image[0].Bounds()
		width, height = b.Max.X, b.Max.Y
	}

	comp := surface.NewCompositor(width, height)
	var head *surface.Surface
	for i, frame := range g.Image {
		ctx.transformPalette(frame.Palette)

		s, warning, err := comp.Frame(frame, frame.Bounds(),
			gifDisposal(g.Disposal[i]), surface.BlendOver, background)
		if err != nil {
			return nil, err
		}
		if warning != "" {
			ctx.Warn("gif: %s", warning)
		}

		// Delays are in hundredths of a second.
		s.Duration = g.Delay[i] * 10
		if head == nil {
			head = s
		} else {
			head.AppendFrame(s)
		}
		if ctx.FirstFrameOnly {
			break
		}
	}

	switch {
	case g.LoopCount == 0:
		head.LoopCount = 0
	case g.LoopCount < 0:
		head.LoopCount = 1
	default:
		head.LoopCount = g.LoopCount + 1
	}
	return head, nil
}

// transformPalette colour-manages paletted frames by rewriting the
// palette in place, before any compositing associates the alpha.
func (c *Context) transformPalette(p color.Palette) {
	if c.CMM == nil || c.TargetProfile == nil {
		return
	}
	buf := make([]byte, 4*len(p))
	for i, e := range p {
		n := color.NRGBAModel.Convert(e).(color.NRGBA)
		buf[4*i+0] = n.B
		buf[4*i+1] = n.G
		buf[4*i+2] = n.R
		buf[4*i+3] = n.A
	}
	c.CMM.TransformARGB32(buf, nil, c.TargetProfile)
	for i := range p {
		p[i] = color.NRGBA{
			R: buf[4*i+2], G: buf[4*i+1], B: buf[4*i+0], A: buf[4*i+3]}
	}
}

func decodeBMP(ctx *Context, data []byte) (*surface.Surface, error) {
	img, err := bmp.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, errors.Wrap(err, "bmp")
	}
	return ctx.decodeNarrow(img, nil)
}

var tgaFooter = []byte("TRUEVISION-XFILE.\x00")

// looksLikeTGA sniffs the magicless TGA header: a valid colour map
// indicator and image type, or the version 2 file footer.
func looksLikeTGA(data []byte) bool {
	if bytes.HasSuffix(data, tgaFooter) {
		return true
	}
	if len(data) < 18 || data[1] > 1 {
		return false
	}
	switch data[2] {
	case 1, 9: // Colour-mapped images require a colour map.
		return data[1] == 1
	case 2, 3, 10, 11:
		return true
	}
	return false
}

func decodeTGA(ctx *Context, data []byte) (*surface.Surface, error) {
	img, err := tga.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, errors.Wrap(err, "tga")
	}
	return ctx.decodeNarrow(img, nil)
}

// decodeGeneric is the tail of the fallback chain: TGA again, catching
// headers the sniff declined, then whatever decoders are registered
// with the image package.
func decodeGeneric(ctx *Context, data []byte) (*surface.Surface, error) {
	if img, err := tga.Decode(bytes.NewReader(data)); err == nil {
		return ctx.decodeNarrow(img, nil)
	}
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, errors.Wrap(err, "image")
	}
	return ctx.decodeNarrow(img, nil)
}
