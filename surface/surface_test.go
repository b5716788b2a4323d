package surface

import (
	"image"
	"image/color"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewInvariants(t *testing.T) {
	for _, f := range []Format{ARGB32, RGB24, RGB30, RGBA128F} {
		for _, w := range []int{1, 3, 5, 33} {
			s, err := New(f, w, 7)
			require.NoError(t, err)
			assert.Zero(t, s.Stride%4)
			assert.GreaterOrEqual(t, s.Stride, s.Width*f.BytesPerPixel())
			assert.Len(t, s.Data, s.Stride*s.Height)
			assert.Equal(t, 1, s.Orientation)
		}
	}

	_, err := New(ARGB32, 0, 4)
	assert.Error(t, err)
	_, err = New(ARGB32, 4, -1)
	assert.Error(t, err)
	_, err = New(RGBA128F, 1<<31, 1<<31)
	assert.Error(t, err)
}

func TestFrameCycle(t *testing.T) {
	head, err := New(ARGB32, 1, 1)
	require.NoError(t, err)

	// A lone surface forms a cycle of length one.
	assert.Same(t, head, head.FrameNext())
	assert.Same(t, head, head.FramePrevious())
	assert.Equal(t, 1, head.Frames())

	second, _ := New(ARGB32, 1, 1)
	third, _ := New(ARGB32, 1, 1)
	head.AppendFrame(second)
	head.AppendFrame(third)

	assert.Equal(t, 3, head.Frames())

	// Forward traversal of length Frames() returns to the head,
	// and the head's previous link is the last frame reached forward.
	it := head
	var last *Surface
	for i := 0; i < head.Frames(); i++ {
		last = it
		it = it.FrameNext()
	}
	assert.Same(t, head, it)
	assert.Same(t, last, head.FramePrevious())
	assert.Same(t, third, head.FramePrevious())
}

func TestPageList(t *testing.T) {
	head, _ := New(RGB24, 1, 1)
	p2, _ := New(RGB24, 1, 1)
	p3, _ := New(RGB24, 1, 1)
	head.AppendPage(p2)
	head.AppendPage(p3)

	assert.Equal(t, 3, head.Pages())
	assert.Nil(t, head.PagePrevious())
	assert.Same(t, head, p2.PagePrevious())
	assert.Same(t, p3, p2.PageNext())
	assert.Nil(t, p3.PageNext())
}

func TestFromOpaqueAlpha(t *testing.T) {
	img := image.NewRGBA(image.Rect(0, 0, 3, 2))
	for i := range img.Pix {
		img.Pix[i] = 0x80
	}
	s, err := FromOpaque(img)
	require.NoError(t, err)
	assert.Equal(t, RGB24, s.Format)
	for y := 0; y < s.Height; y++ {
		for x := 0; x < s.Width; x++ {
			assert.Equal(t, byte(0xFF), s.Data[y*s.Stride+4*x+3])
		}
	}
}

func TestFromRGBAChannelOrder(t *testing.T) {
	img := image.NewRGBA(image.Rect(0, 0, 1, 1))
	img.SetRGBA(0, 0, color.RGBA{R: 0xFF, A: 0xFF})
	s, err := FromRGBA(img)
	require.NoError(t, err)
	assert.Equal(t, []byte{0x00, 0x00, 0xFF, 0xFF}, s.Data[:4])
}

func TestOrientationMatrix(t *testing.T) {
	// Composition with the inverse behaves as the identity for all cases.
	for o := 1; o <= 8; o++ {
		m := OrientationMatrix(o, 100, 200)
		id := m.Multiply(m.Invert())
		for _, p := range [][2]float64{{0, 0}, {100, 200}, {37, 81}} {
			x, y := id.Apply(p[0], p[1])
			assert.InDelta(t, p[0], x, 1e-9, "orientation %d", o)
			assert.InDelta(t, p[1], y, 1e-9, "orientation %d", o)
		}
	}

	// Rotate-90-clockwise sends the origin to the top-right corner.
	m := OrientationMatrix(6, 100, 200)
	x, y := m.Apply(0, 0)
	assert.Equal(t, 200.0, x)
	assert.Equal(t, 0.0, y)
	x, y = m.Apply(0, 200)
	assert.Equal(t, 0.0, x)
	assert.Equal(t, 0.0, y)

	w, h := OrientationDimensions(6, 100, 200)
	assert.Equal(t, 200, w)
	assert.Equal(t, 100, h)
	w, h = OrientationDimensions(3, 100, 200)
	assert.Equal(t, 100, w)
	assert.Equal(t, 200, h)
}

func TestCompositorDisposal(t *testing.T) {
	uniform := func(c color.RGBA) *image.RGBA {
		img := image.NewRGBA(image.Rect(0, 0, 1, 1))
		img.SetRGBA(0, 0, c)
		return img
	}
	red := color.RGBA{R: 0xFF, A: 0xFF}
	blue := color.RGBA{B: 0xFF, A: 0xFF}

	c := NewCompositor(2, 1)

	// First frame covers the left pixel only.
	s, warning, err := c.Frame(uniform(red),
		image.Rect(0, 0, 1, 1), DisposalBackground, BlendSource, color.RGBA{})
	require.NoError(t, err)
	assert.Empty(t, warning)
	assert.Equal(t, []byte{0, 0, 0xFF, 0xFF}, s.Data[0:4])
	assert.Equal(t, []byte{0, 0, 0, 0}, s.Data[4:8])

	// Disposal of the first frame clears its rectangle before the second
	// frame paints the right pixel.
	s, _, err = c.Frame(uniform(blue),
		image.Rect(1, 0, 2, 1), DisposalNone, BlendOver, color.RGBA{})
	require.NoError(t, err)
	assert.Equal(t, []byte{0, 0, 0, 0}, s.Data[0:4])
	assert.Equal(t, []byte{0xFF, 0, 0, 0xFF}, s.Data[4:8])
}

func TestCompositorRestorePreviousWarnsOnce(t *testing.T) {
	img := image.NewRGBA(image.Rect(0, 0, 1, 1))
	c := NewCompositor(1, 1)

	_, warning, err := c.Frame(img, image.Rect(0, 0, 1, 1),
		DisposalPrevious, BlendOver, color.RGBA{})
	require.NoError(t, err)
	assert.Empty(t, warning) // Nothing to dispose yet.

	_, warning, err = c.Frame(img, image.Rect(0, 0, 1, 1),
		DisposalPrevious, BlendOver, color.RGBA{})
	require.NoError(t, err)
	assert.NotEmpty(t, warning)

	_, warning, err = c.Frame(img, image.Rect(0, 0, 1, 1),
		DisposalNone, BlendOver, color.RGBA{})
	require.NoError(t, err)
	assert.Empty(t, warning)
}
