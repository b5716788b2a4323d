// Package bayer demosaics colour-filter-array data, as found in DNG and
// TIFF/EP raw photographs, by bilinear interpolation of the missing
// channels.
package bayer

import (
	"encoding/binary"
	"fmt"
)

// CFA plane colours as encoded by the CFAPattern tag.
const (
	Red = iota
	Green
	Blue
)

// Pattern is a 2×2 repeat of CFA plane colours, in row-major order.
type Pattern [4]uint8

// GetPattern validates a CFAPattern tag value.
func GetPattern(val []uint) (Pattern, error) {
	if len(val) != 4 {
		return Pattern{}, fmt.Errorf("bayer: unsupported CFA repeat of %d", len(val))
	}
	var p Pattern
	seen := [3]int{}
	for i, v := range val {
		if v > Blue {
			return Pattern{}, fmt.Errorf("bayer: unsupported CFA colour %d", v)
		}
		p[i] = uint8(v)
		seen[v]++
	}
	if seen[Red] != 1 || seen[Green] != 2 || seen[Blue] != 1 {
		return Pattern{}, fmt.Errorf("bayer: not an RGGB-family pattern")
	}
	return p, nil
}

// at returns the plane colour of the sensor cell (x, y).
func (p Pattern) at(x, y int) uint8 {
	return p[(y&1)<<1|x&1]
}

// Options configures raw sample extraction and scaling.
type Options struct {
	ByteOrder binary.ByteOrder
	Depth     int // Bits per sample: 8 or 16.
	Width     int
	Height    int

	BlackLevel   float64
	WhiteLevel   float64
	WhiteBalance []float64 // Per-channel multipliers, RGB.
	Pattern      Pattern
}

// Bilinear is a bilinear demosaicer over a packed CFA sample buffer.
type Bilinear struct {
	buf  []byte
	opts *Options
}

// NewBilinear wraps a decompressed strip or tile of CFA samples.
func NewBilinear(buf []byte, opts *Options) *Bilinear {
	if opts.WhiteLevel <= opts.BlackLevel {
		opts.WhiteLevel = opts.BlackLevel + 1
	}
	if len(opts.WhiteBalance) != 3 {
		opts.WhiteBalance = []float64{1, 1, 1}
	}
	return &Bilinear{buf: buf, opts: opts}
}

// sample reads the linearized sensor value at (x, y), clamping the
// coordinates to the sensor bounds.
func (b *Bilinear) sample(x, y int) float64 {
	o := b.opts
	if x < 0 {
		x = -x
	}
	if y < 0 {
		y = -y
	}
	if x >= o.Width {
		x = 2*o.Width - 2 - x
	}
	if y >= o.Height {
		y = 2*o.Height - 2 - y
	}

	var raw float64
	switch o.Depth {
	case 8:
		i := y*o.Width + x
		if i >= len(b.buf) {
			return 0
		}
		raw = float64(b.buf[i])
	default:
		i := 2 * (y*o.Width + x)
		if i+2 > len(b.buf) {
			return 0
		}
		raw = float64(o.ByteOrder.Uint16(b.buf[i:]))
	}

	v := (raw - o.BlackLevel) / (o.WhiteLevel - o.BlackLevel)
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

// mean averages the samples of the given colour within the 3×3
// neighbourhood of (x, y).
func (b *Bilinear) mean(x, y int, colour uint8) float64 {
	sum, n := 0.0, 0
	for dy := -1; dy <= 1; dy++ {
		for dx := -1; dx <= 1; dx++ {
			if b.opts.Pattern.at(x+dx, y+dy) == colour {
				sum += b.sample(x+dx, y+dy)
				n++
			}
		}
	}
	if n == 0 {
		return 0
	}
	return sum / float64(n)
}

// At returns the white-balanced RGB triple at (x, y).
func (b *Bilinear) At(x, y int) (r, g, bl float64) {
	own := b.opts.Pattern.at(x, y)
	v := b.sample(x, y)

	channel := func(colour uint8) float64 {
		if colour == own {
			return v
		}
		return b.mean(x, y, colour)
	}
	wb := b.opts.WhiteBalance
	return channel(Red) * wb[0], channel(Green) * wb[1], channel(Blue) * wb[2]
}
