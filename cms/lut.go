package cms

import (
	"encoding/binary"
	"math"

	"github.com/pkg/errors"
)

// lut is an ICC mft1/mft2 pipeline: per-channel input curves, an
// n-dimensional colour lookup table, and per-channel output curves.
// Only the device-to-PCS direction is needed here.
type lut struct {
	inputs  int
	outputs int
	grid    int

	inTables  [][]float64 // One normalized table per input channel.
	clut      []float64   // grid^inputs × outputs, last input fastest.
	outTables [][]float64
}

func parseLUT(tag []byte) (*lut, error) {
	be := binary.BigEndian
	if len(tag) < 48 {
		return nil, errors.New("cms: LUT tag truncated")
	}

	var width int
	switch be.Uint32(tag) {
	case sigLut8:
		width = 1
	case sigLut16:
		width = 2
	default:
		return nil, errors.New("cms: unexpected LUT tag type")
	}

	l := &lut{
		inputs:  int(tag[8]),
		outputs: int(tag[9]),
		grid:    int(tag[10]),
	}
	if l.inputs < 1 || l.inputs > 4 || l.outputs < 1 || l.outputs > 4 ||
		l.grid < 2 {
		return nil, errors.New("cms: unreasonable LUT geometry")
	}

	inEntries, outEntries := 256, 256
	p := 48
	if width == 2 {
		inEntries = int(be.Uint16(tag[48:]))
		outEntries = int(be.Uint16(tag[50:]))
		if inEntries < 2 || outEntries < 2 {
			return nil, errors.New("cms: unreasonable LUT geometry")
		}
		p = 52
	}

	clutValues := l.outputs
	for i := 0; i < l.inputs; i++ {
		if clutValues > math.MaxInt32/l.grid {
			return nil, errors.New("cms: unreasonable LUT geometry")
		}
		clutValues *= l.grid
	}
	need := p + width*(l.inputs*inEntries+clutValues+l.outputs*outEntries)
	if len(tag) < need {
		return nil, errors.New("cms: LUT tag truncated")
	}

	read := func(n int) []float64 {
		out := make([]float64, n)
		for i := range out {
			if width == 1 {
				out[i] = float64(tag[p]) / 0xFF
			} else {
				out[i] = float64(be.Uint16(tag[p:])) / 0xFFFF
			}
			p += width
		}
		return out
	}

	l.inTables = make([][]float64, l.inputs)
	for i := range l.inTables {
		l.inTables[i] = read(inEntries)
	}
	l.clut = read(clutValues)
	l.outTables = make([][]float64, l.outputs)
	for i := range l.outTables {
		l.outTables[i] = read(outEntries)
	}
	return l, nil
}

func sampleTable(table []float64, v float64) float64 {
	pos := clamp01(v) * float64(len(table)-1)
	i := int(pos)
	if i >= len(table)-1 {
		return table[len(table)-1]
	}
	frac := pos - float64(i)
	return table[i]*(1-frac) + table[i+1]*frac
}

// eval runs device values through the pipeline, interpolating the CLUT
// multilinearly one dimension at a time.
func (l *lut) eval(in, out []float64) {
	var lo, hi [4]int
	var frac [4]float64
	for i := 0; i < l.inputs; i++ {
		pos := clamp01(sampleTable(l.inTables[i], in[i])) *
			float64(l.grid-1)
		lo[i] = int(pos)
		hi[i] = lo[i] + 1
		if hi[i] > l.grid-1 {
			lo[i], hi[i] = l.grid-1, l.grid-1
		}
		frac[i] = pos - float64(lo[i])
	}

	at := func(corner int) []float64 {
		index := 0
		for i := 0; i < l.inputs; i++ {
			g := lo[i]
			if corner&(1<<i) != 0 {
				g = hi[i]
			}
			index = index*l.grid + g
		}
		return l.clut[index*l.outputs : (index+1)*l.outputs]
	}

	for o := 0; o < l.outputs; o++ {
		sum := 0.0
		for corner := 0; corner < 1<<l.inputs; corner++ {
			weight := 1.0
			for i := 0; i < l.inputs; i++ {
				if corner&(1<<i) != 0 {
					weight *= frac[i]
				} else {
					weight *= 1 - frac[i]
				}
			}
			sum += at(corner)[o] * weight
		}
		out[o] = sampleTable(l.outTables[o], sum)
	}
}

// labToXYZ converts a PCS Lab value (normalized ICC encoding) to XYZ
// relative to the D50 connection-space whitepoint.
func labToXYZ(l, a, b float64) (x, y, z float64) {
	// Undo the ICC 16-bit Lab encoding ranges.
	L := l * 100
	A := a*255 - 128
	B := b*255 - 128

	fy := (L + 16) / 116
	fx := fy + A/500
	fz := fy - B/200

	finv := func(t float64) float64 {
		if t > 6.0/29 {
			return t * t * t
		}
		return 3 * (6.0 / 29) * (6.0 / 29) * (t - 4.0/29)
	}
	const wx, wy, wz = 0.9642, 1.0, 0.8249 // D50
	return wx * finv(fx), wy * finv(fy), wz * finv(fz)
}
