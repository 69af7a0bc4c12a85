package ray

import (
	"math"

	"row-major/skylight/vmath/vec3"
)

// Span is an interval of the real line, used both for the parametric range of
// an intersection query and for clamping color channels.
type Span struct {
	Lo, Hi float64
}

// EmptySpan contains nothing.
func EmptySpan() Span {
	return Span{math.Inf(1), math.Inf(-1)}
}

func UniverseSpan() Span {
	return Span{math.Inf(-1), math.Inf(1)}
}

func (s Span) Size() float64 {
	return s.Hi - s.Lo
}

// Contains tests the closed interval.
func (s Span) Contains(x float64) bool {
	return s.Lo <= x && x <= s.Hi
}

// Surrounds tests the open interval.
func (s Span) Surrounds(x float64) bool {
	return s.Lo < x && x < s.Hi
}

func (s Span) Clamp(x float64) float64 {
	if x < s.Lo {
		return s.Lo
	}
	if x > s.Hi {
		return s.Hi
	}
	return x
}

// Ray is a half-line.  Slope is not required to have unit length.
type Ray struct {
	Point vec3.Point
	Slope vec3.T
}

func (r Ray) Eval(t float64) vec3.Point {
	return vec3.T{
		r.Point[0] + t*r.Slope[0],
		r.Point[1] + t*r.Slope[1],
		r.Point[2] + t*r.Slope[2],
	}
}

// RaySegment is an intersection query: a ray restricted to the parametric
// range TheSegment.
type RaySegment struct {
	TheRay     Ray
	TheSegment Span
}
