// Package cms implements the colour management the decoders thread their
// pixels through: matrix-shaper RGB profiles, LUT-based CMYK input
// profiles, Exif parametric colour descriptions, and the premultiplication
// discipline of the 8-bit surface formats.
package cms

import (
	"encoding/binary"

	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"
)

// Profile classes; an opaque profile keeps its bytes for re-embedding but
// cannot drive a transform.
const (
	classOpaque = iota
	classMatrixRGB
	classCMYK
)

// ICC signatures.
const (
	sigRedMatrixColumn   = 0x7258595A // 'rXYZ'
	sigGreenMatrixColumn = 0x6758595A // 'gXYZ'
	sigBlueMatrixColumn  = 0x6258595A // 'bXYZ'
	sigRedTRC            = 0x72545243 // 'rTRC'
	sigGreenTRC          = 0x67545243 // 'gTRC'
	sigBlueTRC           = 0x62545243 // 'bTRC'
	sigAToB0             = 0x41324230 // 'A2B0'

	sigCurve      = 0x63757276 // 'curv'
	sigParametric = 0x70617261 // 'para'
	sigLut8       = 0x6D667431 // 'mft1'
	sigLut16      = 0x6D667432 // 'mft2'

	spaceRGB  = 0x52474220 // 'RGB '
	spaceCMYK = 0x434D594B // 'CMYK'
	pcsLab    = 0x4C616220 // 'Lab '
)

// Profile is a parsed colour profile: the entry point of a transform.
// The zero value is not useful; construct through a CMM.
type Profile struct {
	// Raw is the original ICC encoding, if the profile came from one.
	Raw []byte

	class   int
	toXYZ   [9]float64 // RGB → XYZ (D50-adapted columns as stored).
	fromXYZ [9]float64
	trc     [3]curve

	a2b    *lut // CMYK → PCS, for class CMYK.
	labPCS bool
}

// Usable reports whether the profile can participate in a transform.
func (p *Profile) Usable() bool {
	return p != nil && p.class != classOpaque
}

// CMM is the colour-management engine handle passed around in open
// contexts. It caches the standard sRGB profile.
type CMM struct {
	srgb *Profile
}

// NewCMM returns a fresh engine handle.
func NewCMM() *CMM {
	return &CMM{srgb: newSRGB()}
}

// SRGB returns the built-in standard sRGB profile.
func (c *CMM) SRGB() *Profile { return c.srgb }

// Rec.709 primaries with D65 whitepoint, the sRGB specification set.
func newSRGB() *Profile {
	p, err := profileFromChromaticities(
		[2]float64{0.3127, 0.3290},
		[6]float64{0.64, 0.33, 0.30, 0.60, 0.15, 0.06},
		srgbCurve())
	if err != nil {
		panic(err) // Constants cannot fail to invert.
	}
	return p
}

// NewProfile parses raw ICC bytes. Profiles beyond the supported matrix-
// shaper and CMYK LUT classes still load, as opaque pass-through data.
func (c *CMM) NewProfile(icc []byte) *Profile {
	p, err := parseICC(icc)
	if err != nil {
		return &Profile{Raw: icc}
	}
	return p
}

// NewProfileFromGamma builds a whole-image transfer profile over sRGB
// primaries, for PNGs that only declare a gAMA chunk.
func (c *CMM) NewProfileFromGamma(gamma float64) *Profile {
	p, err := profileFromChromaticities(
		[2]float64{0.3127, 0.3290},
		[6]float64{0.64, 0.33, 0.30, 0.60, 0.15, 0.06},
		gammaCurve(gamma))
	if err != nil {
		return &Profile{}
	}
	return p
}

// NewProfileFromExif builds a profile from Exif chromaticity, whitepoint
// and gamma parameters.
func (c *CMM) NewProfileFromExif(
	white [2]float64, primaries [6]float64, gamma float64,
) (*Profile, error) {
	return profileFromChromaticities(white, primaries, gammaCurve(gamma))
}

// profileFromChromaticities solves for the RGB → XYZ matrix whose primary
// columns are scaled so that unit RGB maps to the given whitepoint.
func profileFromChromaticities(
	white [2]float64, primaries [6]float64, trc curve,
) (*Profile, error) {
	if white[1] == 0 {
		return nil, errors.New("cms: degenerate whitepoint")
	}
	xyz := func(x, y float64) (float64, float64, float64) {
		if y == 0 {
			return 0, 0, 0
		}
		return x / y, 1, (1 - x - y) / y
	}

	var m mat.Dense
	cols := mat.NewDense(3, 3, nil)
	for i := 0; i < 3; i++ {
		x, y, z := xyz(primaries[2*i], primaries[2*i+1])
		cols.Set(0, i, x)
		cols.Set(1, i, y)
		cols.Set(2, i, z)
	}
	wx, wy, wz := xyz(white[0], white[1])

	// Solve cols·s = white for the per-primary scales.
	var s mat.VecDense
	if err := s.SolveVec(cols, mat.NewVecDense(3, []float64{wx, wy, wz})); err != nil {
		return nil, errors.Wrap(err, "cms: primaries are not independent")
	}
	m.Scale(1, cols)
	for i := 0; i < 3; i++ {
		for r := 0; r < 3; r++ {
			m.Set(r, i, cols.At(r, i)*s.AtVec(i))
		}
	}

	var inv mat.Dense
	if err := inv.Inverse(&m); err != nil {
		return nil, errors.Wrap(err, "cms: primaries are not independent")
	}

	p := &Profile{class: classMatrixRGB, trc: [3]curve{trc, trc, trc}}
	copy(p.toXYZ[:], m.RawMatrix().Data)
	copy(p.fromXYZ[:], inv.RawMatrix().Data)
	return p, nil
}

func parseICC(icc []byte) (*Profile, error) {
	be := binary.BigEndian
	if len(icc) < 132 {
		return nil, errors.New("cms: ICC header truncated")
	}
	space := be.Uint32(icc[16:])
	labConnection := be.Uint32(icc[20:]) == pcsLab

	count := int(be.Uint32(icc[128:]))
	table := icc[132:]
	if count < 0 || len(table)/12 < count {
		return nil, errors.New("cms: ICC tag table truncated")
	}
	tag := func(sig uint32) []byte {
		for i := 0; i < count; i++ {
			entry := table[i*12:]
			if be.Uint32(entry) != sig {
				continue
			}
			offset, size := int(be.Uint32(entry[4:])), int(be.Uint32(entry[8:]))
			if offset < 0 || size < 8 || offset+size > len(icc) {
				return nil
			}
			return icc[offset : offset+size]
		}
		return nil
	}

	switch space {
	case spaceRGB:
		p := &Profile{Raw: icc, class: classMatrixRGB}
		var m mat.Dense
		cols := mat.NewDense(3, 3, nil)
		for i, sig := range []uint32{
			sigRedMatrixColumn, sigGreenMatrixColumn, sigBlueMatrixColumn,
		} {
			x, y, z, err := parseXYZ(tag(sig))
			if err != nil {
				return nil, err
			}
			cols.Set(0, i, x)
			cols.Set(1, i, y)
			cols.Set(2, i, z)
		}
		for i, sig := range []uint32{sigRedTRC, sigGreenTRC, sigBlueTRC} {
			trc, err := parseCurve(tag(sig))
			if err != nil {
				return nil, err
			}
			p.trc[i] = trc
		}
		var inv mat.Dense
		if err := inv.Inverse(cols); err != nil {
			return nil, errors.Wrap(err, "cms: singular profile matrix")
		}
		m.Scale(1, cols)
		copy(p.toXYZ[:], m.RawMatrix().Data)
		copy(p.fromXYZ[:], inv.RawMatrix().Data)
		return p, nil

	case spaceCMYK:
		a2b, err := parseLUT(tag(sigAToB0))
		if err != nil {
			return nil, err
		}
		return &Profile{Raw: icc, class: classCMYK,
			a2b: a2b, labPCS: labConnection}, nil
	}
	return nil, errors.New("cms: unsupported profile colour space")
}

func parseXYZ(tag []byte) (x, y, z float64, err error) {
	be := binary.BigEndian
	if len(tag) < 20 || be.Uint32(tag) != 0x58595A20 { // 'XYZ '
		return 0, 0, 0, errors.New("cms: bad XYZ tag")
	}
	s15 := func(p []byte) float64 {
		return float64(int32(be.Uint32(p))) / 65536
	}
	return s15(tag[8:]), s15(tag[12:]), s15(tag[16:]), nil
}

func parseCurve(tag []byte) (curve, error) {
	be := binary.BigEndian
	if len(tag) < 12 {
		return curve{}, errors.New("cms: curve tag truncated")
	}
	switch be.Uint32(tag) {
	case sigCurve:
		count := int(be.Uint32(tag[8:]))
		switch {
		case count == 0:
			return linearCurve(), nil
		case count == 1:
			if len(tag) < 14 {
				return curve{}, errors.New("cms: curve tag truncated")
			}
			return gammaCurve(float64(be.Uint16(tag[12:])) / 256), nil
		case 12+2*count <= len(tag):
			table := make([]float64, count)
			for i := range table {
				table[i] = float64(be.Uint16(tag[12+2*i:])) / 0xFFFF
			}
			return curve{kind: curveTable, table: table}, nil
		}
		return curve{}, errors.New("cms: curve tag truncated")

	case sigParametric:
		kind := be.Uint16(tag[8:])
		counts := []int{1, 3, 4, 5, 7}
		if int(kind) >= len(counts) {
			return curve{}, errors.New("cms: unknown parametric curve")
		}
		n := counts[kind]
		if len(tag) < 12+4*n {
			return curve{}, errors.New("cms: curve tag truncated")
		}
		var params [7]float64
		for i := 0; i < n; i++ {
			params[i] = float64(int32(be.Uint32(tag[12+4*i:]))) / 65536
		}
		if kind == 0 {
			return gammaCurve(params[0]), nil
		}
		if kind == 1 || kind == 2 {
			// Rebase CIE 122 curves onto the piecewise form with the
			// breakpoint at -b/a.
			if params[1] != 0 {
				params[4] = -params[2] / params[1]
			}
			params[5] = params[3] // e takes the additive role of c here.
			params[3] = 0
			if kind == 2 {
				params[6] = params[5] // Constant c below the breakpoint.
			}
		}
		return curve{kind: curveParametric, params: params}, nil
	}
	return curve{}, errors.New("cms: unexpected curve tag type")
}
