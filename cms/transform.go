package cms

import (
	"encoding/binary"
)

func mulMatrix(a, b [9]float64) (out [9]float64) {
	for r := 0; r < 3; r++ {
		for c := 0; c < 3; c++ {
			out[3*r+c] = a[3*r+0]*b[0+c] + a[3*r+1]*b[3+c] + a[3*r+2]*b[6+c]
		}
	}
	return out
}

func apply(m [9]float64, x, y, z float64) (float64, float64, float64) {
	return m[0]*x + m[1]*y + m[2]*z,
		m[3]*x + m[4]*y + m[5]*z,
		m[6]*x + m[7]*y + m[8]*z
}

// TransformARGB32 converts 8-bit BGRA pixels from the source to the
// destination space in place, leaving alpha untouched. Pixels must still
// be unassociated: the transform comes before premultiplication.
//
// A nil source falls back to standard sRGB, a deliberate default for
// images that do not declare their space.
func (c *CMM) TransformARGB32(pix []byte, src, dst *Profile) {
	if !dst.Usable() {
		return
	}
	if src == nil {
		src = c.srgb
	}
	if !src.Usable() || src.class != classMatrixRGB {
		return
	}

	m := mulMatrix(dst.fromXYZ, src.toXYZ)

	// The per-channel device curves admit a byte-indexed table;
	// the matrix in between does not.
	var linearize [3][256]float64
	for ch := 0; ch < 3; ch++ {
		for v := 0; v < 256; v++ {
			linearize[ch][v] = src.trc[ch].linearize(float64(v) / 255)
		}
	}

	for i := 0; i+4 <= len(pix); i += 4 {
		r := linearize[0][pix[i+2]]
		g := linearize[1][pix[i+1]]
		b := linearize[2][pix[i+0]]
		r, g, b = apply(m, r, g, b)
		pix[i+2] = byte(dst.trc[0].encode(r)*255 + 0.5)
		pix[i+1] = byte(dst.trc[1].encode(g)*255 + 0.5)
		pix[i+0] = byte(dst.trc[2].encode(b)*255 + 0.5)
	}
}

// Transform4x16LE converts 16-bit little-endian RGBA pixels in place.
// The buffer is expected unpremultiplied; the wide packing step that
// follows it produces the premultiplied output.
func (c *CMM) Transform4x16LE(pix []byte, src, dst *Profile) {
	if !dst.Usable() {
		return
	}
	if src == nil {
		src = c.srgb
	}
	if !src.Usable() || src.class != classMatrixRGB {
		return
	}

	le := binary.LittleEndian
	m := mulMatrix(dst.fromXYZ, src.toXYZ)
	for i := 0; i+8 <= len(pix); i += 8 {
		r := src.trc[0].linearize(float64(le.Uint16(pix[i+0:])) / 0xFFFF)
		g := src.trc[1].linearize(float64(le.Uint16(pix[i+2:])) / 0xFFFF)
		b := src.trc[2].linearize(float64(le.Uint16(pix[i+4:])) / 0xFFFF)
		r, g, b = apply(m, r, g, b)
		le.PutUint16(pix[i+0:], uint16(dst.trc[0].encode(r)*0xFFFF+0.5))
		le.PutUint16(pix[i+2:], uint16(dst.trc[1].encode(g)*0xFFFF+0.5))
		le.PutUint16(pix[i+4:], uint16(dst.trc[2].encode(b)*0xFFFF+0.5))
	}
}

// TransformCMYK converts inverted-CMYK pixels (four bytes each, as stored
// by Adobe-style YCCK/CMYK JPEGs) to opaque BGRA in place. With a usable
// CMYK source profile and an RGB destination the ICC pipeline runs;
// otherwise the textbook multiply-by-K fallback applies, matching the
// Photoshop/gdk-pixbuf/skcms convention.
func TransformCMYK(pix []byte, src, dst *Profile) {
	if src.Usable() && src.class == classCMYK && dst.Usable() &&
		dst.class == classMatrixRGB {
		in := make([]float64, 4)
		out := make([]float64, 3)
		for i := 0; i+4 <= len(pix); i += 4 {
			in[0] = 1 - float64(pix[i+0])/255
			in[1] = 1 - float64(pix[i+1])/255
			in[2] = 1 - float64(pix[i+2])/255
			in[3] = 1 - float64(pix[i+3])/255
			src.a2b.eval(in, out)

			x, y, z := out[0], out[1], out[2]
			if src.labPCS {
				x, y, z = labToXYZ(out[0], out[1], out[2])
			} else {
				// XYZNumber encoding tops out at 1.0 + 32767/32768.
				x *= 65535.0 / 32768
				y *= 65535.0 / 32768
				z *= 65535.0 / 32768
			}
			r, g, b := apply(dst.fromXYZ, x, y, z)
			pix[i+0] = byte(dst.trc[2].encode(b)*255 + 0.5)
			pix[i+1] = byte(dst.trc[1].encode(g)*255 + 0.5)
			pix[i+2] = byte(dst.trc[0].encode(r)*255 + 0.5)
			pix[i+3] = 0xFF
		}
		return
	}

	for i := 0; i+4 <= len(pix); i += 4 {
		k := uint32(pix[i+3])
		b := uint32(pix[i+2]) * k / 255
		g := uint32(pix[i+1]) * k / 255
		r := uint32(pix[i+0]) * k / 255
		pix[i+0] = byte(b)
		pix[i+1] = byte(g)
		pix[i+2] = byte(r)
		pix[i+3] = 0xFF
	}
}

// PremultiplyARGB32 associates the alpha channel in place, with the exact
// integer equivalent of c×a/255 that libwebp uses.
func PremultiplyARGB32(pix []byte) {
	for i := 0; i+4 <= len(pix); i += 4 {
		a := uint32(pix[i+3])
		if a == 0xFF {
			continue
		}
		pix[i+0] = byte(uint32(pix[i+0]) * a * 32897 >> 23)
		pix[i+1] = byte(uint32(pix[i+1]) * a * 32897 >> 23)
		pix[i+2] = byte(uint32(pix[i+2]) * a * 32897 >> 23)
	}
}

// UnpremultiplyARGB32 is the ceiling-division inverse of
// PremultiplyARGB32: re-premultiplying its output restores the input
// exactly whenever the input was validly premultiplied.
func UnpremultiplyARGB32(pix []byte) {
	for i := 0; i+4 <= len(pix); i += 4 {
		a := uint32(pix[i+3])
		switch a {
		case 0xFF:
		case 0:
			pix[i+0], pix[i+1], pix[i+2] = 0, 0, 0
		default:
			for ch := 0; ch < 3; ch++ {
				v := (uint32(pix[i+ch])*255 + a - 1) / a
				if v > 255 {
					v = 255
				}
				pix[i+ch] = byte(v)
			}
		}
	}
}
