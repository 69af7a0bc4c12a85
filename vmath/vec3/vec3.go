package vec3

import (
	"math"
	"math/rand"
)

type T [3]float64

// Point and Color share the vector representation.
type Point = T
type Color = T

// maxRejections bounds the rejection loop in RandomInUnitSphere.  Each draw is
// accepted with probability ~0.52, so hitting this means the generator is
// broken.
const maxRejections = 1 << 20

func (v T) X() float64 { return v[0] }
func (v T) Y() float64 { return v[1] }
func (v T) Z() float64 { return v[2] }

func (v T) NormSquared() float64 {
	return v[0]*v[0] + v[1]*v[1] + v[2]*v[2]
}

func (v T) Norm() float64 {
	return math.Sqrt(v.NormSquared())
}

// NearZero reports whether every component is within 1e-8 of zero.
func (v T) NearZero() bool {
	const s = 1e-8
	return math.Abs(v[0]) < s && math.Abs(v[1]) < s && math.Abs(v[2]) < s
}

// Normalize divides v by its length.  A zero vector produces NaN components.
func Normalize(v T) T {
	l := v.Norm()
	return T{
		v[0] / l,
		v[1] / l,
		v[2] / l,
	}
}

func AddVV(a, b T) T {
	return T{
		a[0] + b[0],
		a[1] + b[1],
		a[2] + b[2],
	}
}

func SubVV(a, b T) T {
	return T{
		a[0] - b[0],
		a[1] - b[1],
		a[2] - b[2],
	}
}

func Neg(a T) T {
	return T{-a[0], -a[1], -a[2]}
}

func MulVS(a T, b float64) T {
	return T{
		a[0] * b,
		a[1] * b,
		a[2] * b,
	}
}

func MulSV(a float64, b T) T {
	return MulVS(b, a)
}

// MulVV is the component-wise product.
func MulVV(a, b T) T {
	return T{
		a[0] * b[0],
		a[1] * b[1],
		a[2] * b[2],
	}
}

func DivVS(a T, b float64) T {
	return T{
		a[0] / b,
		a[1] / b,
		a[2] / b,
	}
}

func IProd(a, b T) float64 {
	return a[0]*b[0] + a[1]*b[1] + a[2]*b[2]
}

func CProd(a, b T) T {
	return T{
		a[1]*b[2] - a[2]*b[1],
		a[2]*b[0] - a[0]*b[2],
		a[0]*b[1] - a[1]*b[0],
	}
}

// Reflect mirrors a about the plane with unit normal n.
func Reflect(a, n T) T {
	return SubVV(a, MulVS(n, 2*IProd(a, n)))
}

// Lerp returns (1-t)*a + t*b.
func Lerp(a, b T, t float64) T {
	return AddVV(MulVS(a, 1.0-t), MulVS(b, t))
}

func RandomInRange(rng *rand.Rand, min, max float64) T {
	return T{
		min + (max-min)*rng.Float64(),
		min + (max-min)*rng.Float64(),
		min + (max-min)*rng.Float64(),
	}
}

// RandomInUnitSphere returns a point drawn uniformly from the open unit ball.
func RandomInUnitSphere(rng *rand.Rand) T {
	for i := 0; i < maxRejections; i++ {
		candidate := RandomInRange(rng, -1, 1)
		if candidate.NormSquared() < 1.0 {
			return candidate
		}
	}
	panic("vec3: rejection sampling of the unit sphere did not terminate")
}

func RandomUnitVector(rng *rand.Rand) T {
	for {
		candidate := RandomInUnitSphere(rng)
		// The origin itself can't be normalized.
		if candidate.NormSquared() != 0.0 {
			return Normalize(candidate)
		}
	}
}

// RandomOnHemisphere returns a unit vector on the same side of the surface as
// normal.
func RandomOnHemisphere(normal T, rng *rand.Rand) T {
	candidate := RandomUnitVector(rng)
	if IProd(candidate, normal) < 0.0 {
		return Neg(candidate)
	}
	return candidate
}
