package geom

import (
	"math"

	"gonum.org/v1/gonum/num/quat"
	"gonum.org/v1/gonum/spatial/r3"
)

// LerpVec linearly interpolates between a and b. t is clamped to [0, 1].
func LerpVec(a, b r3.Vec, t float64) r3.Vec {
	t = clamp01(t)
	return r3.Add(a, r3.Scale(t, r3.Sub(b, a)))
}

// Slerp spherically interpolates between two orientations along the shorter
// arc. t is clamped to [0, 1].
func Slerp(a, b r3.Rotation, t float64) r3.Rotation {
	t = clamp01(t)
	qa := normalize(quat.Number(a))
	qb := normalize(quat.Number(b))

	d := dot(qa, qb)
	if d < 0 {
		qb = quat.Scale(-1, qb)
		d = -d
	}

	// Nearly parallel: fall back to normalised lerp.
	if d > 0.9995 {
		q := quat.Add(qa, quat.Scale(t, quat.Sub(qb, qa)))
		return r3.Rotation(normalize(q))
	}

	theta0 := math.Acos(d)
	theta := theta0 * t
	ortho := normalize(quat.Sub(qb, quat.Scale(d, qa)))
	q := quat.Add(quat.Scale(math.Cos(theta), qa), quat.Scale(math.Sin(theta), ortho))
	return r3.Rotation(normalize(q))
}

// Interpolate blends two transforms: translation linearly, rotation by slerp.
func Interpolate(a, b Transform, t float64) Transform {
	return Transform{
		Rotation:    Slerp(a.Rotation, b.Rotation, t),
		Translation: LerpVec(a.Translation, b.Translation, t),
	}
}

func dot(a, b quat.Number) float64 {
	return a.Real*b.Real + a.Imag*b.Imag + a.Jmag*b.Jmag + a.Kmag*b.Kmag
}

func clamp01(t float64) float64 {
	switch {
	case math.IsNaN(t), t < 0:
		return 0
	case t > 1:
		return 1
	}
	return t
}
