package bayer

import (
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetPattern(t *testing.T) {
	p, err := GetPattern([]uint{Red, Green, Green, Blue})
	require.NoError(t, err)
	assert.Equal(t, Pattern{Red, Green, Green, Blue}, p)

	_, err = GetPattern([]uint{Red, Green, Blue})
	assert.Error(t, err, "only 2x2 repeats are supported")
	_, err = GetPattern([]uint{Red, Green, Green, 5})
	assert.Error(t, err)
	_, err = GetPattern([]uint{Red, Red, Green, Blue})
	assert.Error(t, err, "two greens are required")
}

func TestBilinearUniformField(t *testing.T) {
	// A uniform sensor reading demosaics to a uniform grey.
	buf := make([]byte, 2*4*4)
	for i := 0; i < len(buf); i += 2 {
		binary.LittleEndian.PutUint16(buf[i:], 512)
	}
	b := NewBilinear(buf, &Options{
		ByteOrder:  binary.LittleEndian,
		Depth:      16,
		Width:      4,
		Height:     4,
		WhiteLevel: 1023,
		Pattern:    Pattern{Red, Green, Green, Blue},
	})

	for y := 0; y < 4; y++ {
		for x := 0; x < 4; x++ {
			r, g, bl := b.At(x, y)
			assert.InDelta(t, 512.0/1023, r, 1e-9)
			assert.InDelta(t, 512.0/1023, g, 1e-9)
			assert.InDelta(t, 512.0/1023, bl, 1e-9)
		}
	}
}

func TestBilinearBlackLevel(t *testing.T) {
	buf := []byte{100, 100, 100, 100}
	b := NewBilinear(buf, &Options{
		Depth:      8,
		Width:      2,
		Height:     2,
		BlackLevel: 100,
		WhiteLevel: 200,
		Pattern:    Pattern{Red, Green, Green, Blue},
	})

	r, g, bl := b.At(0, 0)
	assert.Zero(t, r)
	assert.Zero(t, g)
	assert.Zero(t, bl)

	// Values below the black level clamp rather than go negative.
	under := NewBilinear([]byte{50, 50, 50, 50}, &Options{
		Depth:      8,
		Width:      2,
		Height:     2,
		BlackLevel: 100,
		WhiteLevel: 200,
		Pattern:    Pattern{Red, Green, Green, Blue},
	})
	r, _, _ = under.At(1, 1)
	assert.Zero(t, r)
}

func TestBilinearWhiteBalance(t *testing.T) {
	buf := []byte{200, 200, 200, 200}
	b := NewBilinear(buf, &Options{
		Depth:        8,
		Width:        2,
		Height:       2,
		WhiteLevel:   200,
		WhiteBalance: []float64{2, 1, 0.5},
		Pattern:      Pattern{Red, Green, Green, Blue},
	})

	r, g, bl := b.At(0, 0)
	assert.InDelta(t, 2.0, r, 1e-9)
	assert.InDelta(t, 1.0, g, 1e-9)
	assert.InDelta(t, 0.5, bl, 1e-9)
}
