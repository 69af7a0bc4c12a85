package geometry

import (
	"math"

	"row-major/skylight/contact"
	"row-major/skylight/ray"
	"row-major/skylight/vmath/vec3"
)

// Geometry is anything a ray can be intersected against.
type Geometry interface {
	// RayInto returns the nearest contact whose parameter lies strictly
	// inside query.TheSegment.
	RayInto(query ray.RaySegment) (contact.Contact, bool)
}

type Sphere struct {
	Center vec3.Point
	Radius float64
}

// Roots returns both solutions of the ray/sphere quadratic, nearest first.  ok
// is false when the ray misses the sphere.
func (s *Sphere) Roots(r ray.Ray) (near, far float64, ok bool) {
	oc := vec3.SubVV(r.Point, s.Center)
	a := r.Slope.NormSquared()
	halfB := vec3.IProd(oc, r.Slope)
	c := oc.NormSquared() - s.Radius*s.Radius

	discriminant := halfB*halfB - a*c
	if discriminant < 0.0 {
		return math.NaN(), math.NaN(), false
	}

	sqrtD := math.Sqrt(discriminant)
	return (-halfB - sqrtD) / a, (-halfB + sqrtD) / a, true
}

func (s *Sphere) RayInto(query ray.RaySegment) (contact.Contact, bool) {
	near, far, ok := s.Roots(query.TheRay)
	if !ok {
		return contact.Contact{}, false
	}

	// The near root can fall below the segment when the ray starts inside the
	// sphere; the far root is then the exit point.
	t := near
	if !query.TheSegment.Surrounds(t) {
		t = far
		if !query.TheSegment.Surrounds(t) {
			return contact.Contact{}, false
		}
	}

	p := query.TheRay.Eval(t)
	outwardNormal := vec3.DivVS(vec3.SubVV(p, s.Center), s.Radius)
	return contact.WithFaceNormal(t, query.TheRay, outwardNormal), true
}
