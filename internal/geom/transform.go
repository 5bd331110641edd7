// Package geom provides the rigid transforms shared by the tracking source,
// the placement policy and the scene graph.
//
// Positions are gonum r3 vectors in metres, world space, right-handed with
// -Z pointing away from the camera. Orientations are unit quaternions.
package geom

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/num/quat"
	"gonum.org/v1/gonum/spatial/r3"
)

// unitTolerance bounds how far a rotation's norm may drift from 1 and still
// be considered a valid orientation.
const unitTolerance = 1e-3

// ErrNotRigid is returned by FromMatrix for a matrix that is not a rigid
// transform.
var ErrNotRigid = errors.New("matrix is not a rigid transform")

// Transform is a rigid transform: a rotation followed by a translation.
type Transform struct {
	Rotation    r3.Rotation
	Translation r3.Vec
}

// IdentityRotation is the rotation that leaves vectors unchanged.
func IdentityRotation() r3.Rotation {
	return r3.Rotation{Real: 1}
}

// Identity returns the identity transform.
func Identity() Transform {
	return Transform{Rotation: IdentityRotation()}
}

// Translate returns an unrotated transform positioned at v.
func Translate(v r3.Vec) Transform {
	return Transform{Rotation: IdentityRotation(), Translation: v}
}

// Position returns the translation component.
func (t Transform) Position() r3.Vec {
	return t.Translation
}

// WithTranslation returns a copy of t positioned at v with the same orientation.
func (t Transform) WithTranslation(v r3.Vec) Transform {
	t.Translation = v
	return t
}

// Apply maps p from the transform's local frame into its parent frame.
func (t Transform) Apply(p r3.Vec) r3.Vec {
	return r3.Add(t.Rotation.Rotate(p), t.Translation)
}

// Valid reports whether every component is finite and the rotation is a unit
// quaternion. A zero-value Transform is not valid.
func (t Transform) Valid() bool {
	q := quat.Number(t.Rotation)
	if quat.IsNaN(q) || quat.IsInf(q) {
		return false
	}
	for _, c := range []float64{t.Translation.X, t.Translation.Y, t.Translation.Z} {
		if math.IsNaN(c) || math.IsInf(c, 0) {
			return false
		}
	}
	return math.Abs(quat.Abs(q)-1) <= unitTolerance
}

// FromMatrix builds a Transform from a column-major 4x4 homogeneous matrix,
// the layout used by platform camera transforms: m[col*4+row], with the
// translation in column 3. The bottom row must be (0, 0, 0, 1) and the upper
// 3x3 block a proper rotation (orthonormal, determinant +1) within
// unitTolerance; otherwise ErrNotRigid is returned.
func FromMatrix(m [16]float64) (Transform, error) {
	at := func(row, col int) float64 { return m[col*4+row] }
	if err := checkRigid(m); err != nil {
		return Transform{}, err
	}

	var q quat.Number
	trace := at(0, 0) + at(1, 1) + at(2, 2)
	switch {
	case trace > 0:
		s := 0.5 / math.Sqrt(trace+1)
		q = quat.Number{
			Real: 0.25 / s,
			Imag: (at(2, 1) - at(1, 2)) * s,
			Jmag: (at(0, 2) - at(2, 0)) * s,
			Kmag: (at(1, 0) - at(0, 1)) * s,
		}
	case at(0, 0) > at(1, 1) && at(0, 0) > at(2, 2):
		s := 2 * math.Sqrt(1+at(0, 0)-at(1, 1)-at(2, 2))
		q = quat.Number{
			Real: (at(2, 1) - at(1, 2)) / s,
			Imag: 0.25 * s,
			Jmag: (at(0, 1) + at(1, 0)) / s,
			Kmag: (at(0, 2) + at(2, 0)) / s,
		}
	case at(1, 1) > at(2, 2):
		s := 2 * math.Sqrt(1+at(1, 1)-at(0, 0)-at(2, 2))
		q = quat.Number{
			Real: (at(0, 2) - at(2, 0)) / s,
			Imag: (at(0, 1) + at(1, 0)) / s,
			Jmag: 0.25 * s,
			Kmag: (at(1, 2) + at(2, 1)) / s,
		}
	default:
		s := 2 * math.Sqrt(1+at(2, 2)-at(0, 0)-at(1, 1))
		q = quat.Number{
			Real: (at(1, 0) - at(0, 1)) / s,
			Imag: (at(0, 2) + at(2, 0)) / s,
			Jmag: (at(1, 2) + at(2, 1)) / s,
			Kmag: 0.25 * s,
		}
	}

	return Transform{
		Rotation:    r3.Rotation(normalize(q)),
		Translation: r3.Vec{X: at(0, 3), Y: at(1, 3), Z: at(2, 3)},
	}, nil
}

func checkRigid(m [16]float64) error {
	for _, c := range m {
		if math.IsNaN(c) || math.IsInf(c, 0) {
			return fmt.Errorf("%w: non-finite element", ErrNotRigid)
		}
	}
	if math.Abs(m[3])+math.Abs(m[7])+math.Abs(m[11])+math.Abs(m[15]-1) > unitTolerance {
		return fmt.Errorf("%w: bottom row (%g, %g, %g, %g)", ErrNotRigid, m[3], m[7], m[11], m[15])
	}

	cols := [3]r3.Vec{
		{X: m[0], Y: m[1], Z: m[2]},
		{X: m[4], Y: m[5], Z: m[6]},
		{X: m[8], Y: m[9], Z: m[10]},
	}
	for i := range cols {
		if d := math.Abs(r3.Norm(cols[i]) - 1); d > unitTolerance {
			return fmt.Errorf("%w: column %d is not unit length", ErrNotRigid, i)
		}
		for j := i + 1; j < len(cols); j++ {
			if math.Abs(r3.Dot(cols[i], cols[j])) > unitTolerance {
				return fmt.Errorf("%w: columns %d and %d are not orthogonal", ErrNotRigid, i, j)
			}
		}
	}
	if det := r3.Dot(r3.Cross(cols[0], cols[1]), cols[2]); math.Abs(det-1) > unitTolerance {
		return fmt.Errorf("%w: determinant %g", ErrNotRigid, det)
	}
	return nil
}

// Matrix returns t as a column-major 4x4 homogeneous matrix.
func (t Transform) Matrix() [16]float64 {
	var m [16]float64
	cols := []r3.Vec{
		t.Rotation.Rotate(r3.Vec{X: 1}),
		t.Rotation.Rotate(r3.Vec{Y: 1}),
		t.Rotation.Rotate(r3.Vec{Z: 1}),
	}
	for c, v := range cols {
		m[c*4+0], m[c*4+1], m[c*4+2] = v.X, v.Y, v.Z
	}
	m[12], m[13], m[14], m[15] = t.Translation.X, t.Translation.Y, t.Translation.Z, 1
	return m
}

func normalize(q quat.Number) quat.Number {
	n := quat.Abs(q)
	if n == 0 {
		return quat.Number{Real: 1}
	}
	return quat.Scale(1/n, q)
}

// ApproxEqual reports whether a and b differ by at most tol in every
// translation component and describe the same orientation within tol.
// q and -q are the same orientation.
func ApproxEqual(a, b Transform, tol float64) bool {
	if r3.Norm(r3.Sub(a.Translation, b.Translation)) > tol {
		return false
	}
	return RotationsEqual(a.Rotation, b.Rotation, tol)
}

// RotationsEqual reports whether a and b describe the same orientation within tol.
func RotationsEqual(a, b r3.Rotation, tol float64) bool {
	d := math.Abs(dot(quat.Number(a), quat.Number(b)))
	return 1-d <= tol
}
