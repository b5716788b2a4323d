package cms

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPremultiplyRoundTrip(t *testing.T) {
	// Re-premultiplying an unpremultiplied pixel is exact whenever the
	// input was validly premultiplied (each channel ≤ alpha).
	for a := 0; a <= 255; a++ {
		for c := 0; c <= a; c += 7 {
			pix := []byte{byte(c), byte(c), byte(c), byte(a)}
			UnpremultiplyARGB32(pix)
			PremultiplyARGB32(pix)
			assert.Equal(t,
				[]byte{byte(c), byte(c), byte(c), byte(a)}, pix,
				"alpha %d channel %d", a, c)
		}
	}
}

func TestPremultiplyMatchesDivision(t *testing.T) {
	for a := 0; a <= 255; a += 3 {
		for c := 0; c <= 255; c += 5 {
			pix := []byte{byte(c), 0, 0, byte(a)}
			PremultiplyARGB32(pix)
			assert.Equal(t, byte(c*a/255), pix[0], "c %d a %d", c, a)
		}
	}
}

func TestCMYKFallback(t *testing.T) {
	// Stored inverted: full K', channels at half scale.
	pix := []byte{0x80, 0x40, 0x20, 0xFF}
	TransformCMYK(pix, nil, nil)
	assert.Equal(t, []byte{0x20, 0x40, 0x80, 0xFF}, pix)

	// K' of zero blacks everything out.
	pix = []byte{0xFF, 0xFF, 0xFF, 0x00}
	TransformCMYK(pix, nil, nil)
	assert.Equal(t, []byte{0x00, 0x00, 0x00, 0xFF}, pix)

	// White: everything at full scale.
	pix = []byte{0xFF, 0xFF, 0xFF, 0xFF}
	TransformCMYK(pix, nil, nil)
	assert.Equal(t, []byte{0xFF, 0xFF, 0xFF, 0xFF}, pix)
}

func TestSRGBSelfTransformIsStable(t *testing.T) {
	cmm := NewCMM()
	pix := []byte{
		0x00, 0x00, 0x00, 0xFF,
		0xFF, 0xFF, 0xFF, 0xFF,
		0x12, 0x84, 0xC0, 0x80,
	}
	want := append([]byte(nil), pix...)
	cmm.TransformARGB32(pix, cmm.SRGB(), cmm.SRGB())
	for i := range pix {
		assert.InDelta(t, want[i], pix[i], 1,
			"sRGB to sRGB moved byte %d too far", i)
	}
	// Alpha passes through untouched.
	assert.Equal(t, byte(0x80), pix[11])
}

func TestNilSourceAssumesSRGB(t *testing.T) {
	cmm := NewCMM()
	pix := []byte{0x40, 0x80, 0xC0, 0xFF}
	want := append([]byte(nil), pix...)
	cmm.TransformARGB32(pix, nil, cmm.SRGB())
	for i := range pix {
		assert.InDelta(t, want[i], pix[i], 1)
	}
}

func TestGammaProfileTransform(t *testing.T) {
	cmm := NewCMM()
	// A 1.0-gamma source into sRGB must brighten mid greys.
	src := cmm.NewProfileFromGamma(1.0)
	require.True(t, src.Usable())

	pix := []byte{0x40, 0x40, 0x40, 0xFF}
	cmm.TransformARGB32(pix, src, cmm.SRGB())
	assert.Greater(t, pix[0], byte(0x40))
	// Grey stays grey: equal channels remain equal.
	assert.Equal(t, pix[0], pix[1])
	assert.Equal(t, pix[1], pix[2])

	// Extremes are fixed points of any transfer-only transform.
	pix = []byte{0x00, 0x00, 0x00, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF}
	cmm.TransformARGB32(pix, src, cmm.SRGB())
	assert.Equal(t, []byte{0, 0, 0, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF}, pix)
}

func TestExifParametricProfile(t *testing.T) {
	cmm := NewCMM()
	p, err := cmm.NewProfileFromExif(
		[2]float64{0.3127, 0.3290},
		[6]float64{0.64, 0.33, 0.30, 0.60, 0.15, 0.06},
		2.2)
	require.NoError(t, err)
	assert.True(t, p.Usable())

	// Degenerate primaries must be rejected, not inverted.
	_, err = cmm.NewProfileFromExif(
		[2]float64{0.3127, 0.3290},
		[6]float64{0.3, 0.3, 0.3, 0.3, 0.3, 0.3},
		2.2)
	assert.Error(t, err)
}

func TestTransform4x16LE(t *testing.T) {
	cmm := NewCMM()
	src := cmm.NewProfileFromGamma(1.0)

	// 0x4000 linear lifts above the mid-tone in sRGB encoding.
	pix := []byte{0x00, 0x40, 0x00, 0x40, 0x00, 0x40, 0xFF, 0xFF}
	cmm.Transform4x16LE(pix, src, cmm.SRGB())
	assert.Greater(t, pix[1], byte(0x40))
	assert.Equal(t, byte(0xFF), pix[6])
	assert.Equal(t, byte(0xFF), pix[7])
}

func TestOpaqueProfilePassesThrough(t *testing.T) {
	cmm := NewCMM()
	junk := cmm.NewProfile([]byte("not an ICC profile"))
	assert.False(t, junk.Usable())
	assert.Equal(t, []byte("not an ICC profile"), junk.Raw)

	pix := []byte{1, 2, 3, 4}
	cmm.TransformARGB32(pix, junk, cmm.SRGB())
	assert.Equal(t, []byte{1, 2, 3, 4}, pix)
	cmm.TransformARGB32(pix, cmm.SRGB(), junk)
	assert.Equal(t, []byte{1, 2, 3, 4}, pix)
}
