package surface

import (
	"encoding/binary"
	"image"
	"image/color"
	"image/draw"
	"math"
)

// IsOpaque reports whether every pixel of img has full alpha, using the
// image's own fast path when it has one.
func IsOpaque(img image.Image) bool {
	if o, ok := img.(interface{ Opaque() bool }); ok {
		return o.Opaque()
	}
	b := img.Bounds()
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			if _, _, _, a := img.At(x, y).RGBA(); a != 0xFFFF {
				return false
			}
		}
	}
	return true
}

// FromRGBA copies premultiplied RGBA pixels into a new ARGB32 surface.
func FromRGBA(img *image.RGBA) (*Surface, error) {
	b := img.Bounds()
	s, err := New(ARGB32, b.Dx(), b.Dy())
	if err != nil {
		return nil, err
	}
	for y := 0; y < s.Height; y++ {
		src := img.Pix[y*img.Stride:]
		dst := s.Data[y*s.Stride:]
		for x := 0; x < s.Width; x++ {
			dst[4*x+0] = src[4*x+2]
			dst[4*x+1] = src[4*x+1]
			dst[4*x+2] = src[4*x+0]
			dst[4*x+3] = src[4*x+3]
		}
	}
	return s, nil
}

// FromNRGBA copies straight-alpha pixels into a new surface laid out as
// ARGB32, leaving the alpha unassociated. Callers are expected to run any
// colour transform over it and then premultiply, in that order.
func FromNRGBA(img *image.NRGBA) (*Surface, error) {
	b := img.Bounds()
	s, err := New(ARGB32, b.Dx(), b.Dy())
	if err != nil {
		return nil, err
	}
	for y := 0; y < s.Height; y++ {
		src := img.Pix[y*img.Stride:]
		dst := s.Data[y*s.Stride:]
		for x := 0; x < s.Width; x++ {
			dst[4*x+0] = src[4*x+2]
			dst[4*x+1] = src[4*x+1]
			dst[4*x+2] = src[4*x+0]
			dst[4*x+3] = src[4*x+3]
		}
	}
	return s, nil
}

// FromOpaque renders any image into a new RGB24 surface.
func FromOpaque(img image.Image) (*Surface, error) {
	b := img.Bounds()
	s, err := New(RGB24, b.Dx(), b.Dy())
	if err != nil {
		return nil, err
	}

	rgba := asRGBA(img)
	for y := 0; y < s.Height; y++ {
		src := rgba.Pix[y*rgba.Stride:]
		dst := s.Data[y*s.Stride:]
		for x := 0; x < s.Width; x++ {
			dst[4*x+0] = src[4*x+2]
			dst[4*x+1] = src[4*x+1]
			dst[4*x+2] = src[4*x+0]
			dst[4*x+3] = 0xFF
		}
	}
	return s, nil
}

// FromImage converts an arbitrary image to the canonical 8-bit surface
// formats: RGB24 when it is fully opaque, premultiplied ARGB32 otherwise.
func FromImage(img image.Image) (*Surface, error) {
	if IsOpaque(img) {
		return FromOpaque(img)
	}
	return FromRGBA(asRGBA(img))
}

func asRGBA(img image.Image) *image.RGBA {
	if rgba, ok := img.(*image.RGBA); ok {
		return rgba
	}
	b := img.Bounds()
	rgba := image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(rgba, rgba.Bounds(), img, b.Min, draw.Src)
	return rgba
}

// Wide16 is an unpremultiplied 16-bit-per-channel RGBA pixel buffer in
// little-endian byte order, the layout the 16-bit colour transform works
// on before the result gets packed into a canonical surface format.
type Wide16 struct {
	Width, Height int
	Pix           []byte // 8 bytes per pixel: R, G, B, A as uint16 LE.
}

// NewWide16 extracts 16-bit straight-alpha pixels from any image.
func NewWide16(img image.Image) *Wide16 {
	b := img.Bounds()
	w := &Wide16{
		Width:  b.Dx(),
		Height: b.Dy(),
		Pix:    make([]byte, 8*b.Dx()*b.Dy()),
	}
	le := binary.LittleEndian
	i := 0
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			c := color.NRGBA64Model.Convert(img.At(x, y)).(color.NRGBA64)
			le.PutUint16(w.Pix[i+0:], c.R)
			le.PutUint16(w.Pix[i+2:], c.G)
			le.PutUint16(w.Pix[i+4:], c.B)
			le.PutUint16(w.Pix[i+6:], c.A)
			i += 8
		}
	}
	return w
}

// PackRGB30 packs the buffer into an opaque 10:10:10:2 surface,
// dropping the alpha channel.
func (w *Wide16) PackRGB30() (*Surface, error) {
	s, err := New(RGB30, w.Width, w.Height)
	if err != nil {
		return nil, err
	}
	le := binary.LittleEndian
	i := 0
	for y := 0; y < w.Height; y++ {
		dst := s.Data[y*s.Stride:]
		for x := 0; x < w.Width; x++ {
			r := uint32(le.Uint16(w.Pix[i+0:]) >> 6)
			g := uint32(le.Uint16(w.Pix[i+2:]) >> 6)
			b := uint32(le.Uint16(w.Pix[i+4:]) >> 6)
			le.PutUint32(dst[4*x:], 3<<30|r<<20|g<<10|b)
			i += 8
		}
	}
	return s, nil
}

// PackFloat expands the buffer into a premultiplied float RGBA surface.
func (w *Wide16) PackFloat() (*Surface, error) {
	s, err := New(RGBA128F, w.Width, w.Height)
	if err != nil {
		return nil, err
	}
	le := binary.LittleEndian
	i := 0
	for y := 0; y < w.Height; y++ {
		dst := s.Data[y*s.Stride:]
		for x := 0; x < w.Width; x++ {
			a := float32(le.Uint16(w.Pix[i+6:])) / 0xFFFF
			putFloat(le, dst[16*x+0:], a*float32(le.Uint16(w.Pix[i+0:]))/0xFFFF)
			putFloat(le, dst[16*x+4:], a*float32(le.Uint16(w.Pix[i+2:]))/0xFFFF)
			putFloat(le, dst[16*x+8:], a*float32(le.Uint16(w.Pix[i+4:]))/0xFFFF)
			putFloat(le, dst[16*x+12:], a)
			i += 8
		}
	}
	return s, nil
}

func putFloat(le binary.ByteOrder, p []byte, f float32) {
	le.PutUint32(p, math.Float32bits(f))
}
