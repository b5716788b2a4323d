package cms

import "math"

// Tone curve kinds. Tables and parametric curves come from ICC 'curv' and
// 'para' tags; the sRGB curve is built in.
const (
	curveLinear = iota
	curveGamma
	curveSRGB
	curveTable
	curveParametric
)

type curve struct {
	kind   int
	gamma  float64
	table  []float64  // Normalized monotonic samples.
	params [7]float64 // g, a, b, c, d, e, f of ICC parametricCurveType.
}

func linearCurve() curve { return curve{kind: curveLinear} }
func srgbCurve() curve   { return curve{kind: curveSRGB} }

func gammaCurve(g float64) curve {
	if g == 1 {
		return linearCurve()
	}
	return curve{kind: curveGamma, gamma: g}
}

// linearize maps an encoded [0, 1] value to linear light.
func (c curve) linearize(v float64) float64 {
	v = clamp01(v)
	switch c.kind {
	case curveLinear:
		return v
	case curveGamma:
		return math.Pow(v, c.gamma)
	case curveSRGB:
		if v <= 0.04045 {
			return v / 12.92
		}
		return math.Pow((v+0.055)/1.055, 2.4)
	case curveTable:
		if len(c.table) == 0 {
			return v
		}
		if len(c.table) == 1 {
			return math.Pow(v, c.table[0])
		}
		pos := v * float64(len(c.table)-1)
		i := int(pos)
		if i >= len(c.table)-1 {
			return c.table[len(c.table)-1]
		}
		frac := pos - float64(i)
		return c.table[i]*(1-frac) + c.table[i+1]*frac
	case curveParametric:
		g, a, b, cc, d := c.params[0], c.params[1], c.params[2],
			c.params[3], c.params[4]
		e, f := c.params[5], c.params[6]
		switch {
		case a == 0 && d == 0: // Type 0 collapsed here by the parser.
			return math.Pow(v, g)
		case v >= d:
			return math.Pow(a*v+b, g) + e
		default:
			return cc*v + f
		}
	}
	return v
}

// encode maps linear light back to the encoded range; the inverse of
// linearize. Non-analytic curves invert by bisection, which is plenty
// for building the 8-bit tables the transforms run on.
func (c curve) encode(v float64) float64 {
	v = clamp01(v)
	switch c.kind {
	case curveLinear:
		return v
	case curveGamma:
		return math.Pow(v, 1/c.gamma)
	case curveSRGB:
		if v <= 0.0031308 {
			return v * 12.92
		}
		return 1.055*math.Pow(v, 1/2.4) - 0.055
	}

	lo, hi := 0.0, 1.0
	for i := 0; i < 32; i++ {
		mid := (lo + hi) / 2
		if c.linearize(mid) < v {
			lo = mid
		} else {
			hi = mid
		}
	}
	return (lo + hi) / 2
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
