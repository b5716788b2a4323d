package surface

// Matrix is a 2D affine transform in the usual column-vector convention:
//
//	x' = XX·x + XY·y + X0
//	y' = YX·x + YY·y + Y0
type Matrix struct {
	XX, YX float64
	XY, YY float64
	X0, Y0 float64
}

// Identity returns the identity transform.
func Identity() Matrix {
	return Matrix{XX: 1, YY: 1}
}

// Multiply returns m∘n, applying n first.
func (m Matrix) Multiply(n Matrix) Matrix {
	return Matrix{
		XX: m.XX*n.XX + m.XY*n.YX,
		YX: m.YX*n.XX + m.YY*n.YX,
		XY: m.XX*n.XY + m.XY*n.YY,
		YY: m.YX*n.XY + m.YY*n.YY,
		X0: m.XX*n.X0 + m.XY*n.Y0 + m.X0,
		Y0: m.YX*n.X0 + m.YY*n.Y0 + m.Y0,
	}
}

// Invert returns the inverse transform. Orientation matrices are always
// invertible; a degenerate matrix inverts to itself.
func (m Matrix) Invert() Matrix {
	det := m.XX*m.YY - m.XY*m.YX
	if det == 0 {
		return m
	}
	inv := Matrix{
		XX: m.YY / det, XY: -m.XY / det,
		YX: -m.YX / det, YY: m.XX / det,
	}
	inv.X0 = -(inv.XX*m.X0 + inv.XY*m.Y0)
	inv.Y0 = -(inv.YX*m.X0 + inv.YY*m.Y0)
	return inv
}

// Apply transforms the point (x, y).
func (m Matrix) Apply(x, y float64) (float64, float64) {
	return m.XX*x + m.XY*y + m.X0, m.YX*x + m.YY*y + m.Y0
}

// OrientationMatrix maps pixels of a width×height surface to their display
// position under the given Exif orientation, placing the origin at the
// output's top-left. Unknown orientations map to the identity.
func OrientationMatrix(orientation int, width, height float64) Matrix {
	switch orientation {
	case 2: // Mirrored horizontally.
		return Matrix{XX: -1, YY: 1, X0: width}
	case 3: // Rotated 180°.
		return Matrix{XX: -1, YY: -1, X0: width, Y0: height}
	case 4: // Mirrored vertically.
		return Matrix{XX: 1, YY: -1, Y0: height}
	case 5: // Transposed.
		return Matrix{XY: 1, YX: 1}
	case 6: // Rotated 90° clockwise.
		return Matrix{XY: -1, YX: 1, X0: height}
	case 7: // Transversed.
		return Matrix{XY: -1, YX: -1, X0: height, Y0: width}
	case 8: // Rotated 270° clockwise.
		return Matrix{XY: 1, YX: -1, Y0: width}
	default:
		return Identity()
	}
}

// OrientationDimensions returns the displayed size of a width×height
// surface under the given orientation; cases 5..8 swap the two.
func OrientationDimensions(orientation, width, height int) (int, int) {
	if orientation >= 5 && orientation <= 8 {
		return height, width
	}
	return width, height
}
