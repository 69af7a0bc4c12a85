package scene

import (
	"math"
	"math/rand"

	"row-major/skylight/contact"
	"row-major/skylight/geometry"
	"row-major/skylight/material"
	"row-major/skylight/ray"
	"row-major/skylight/vmath/vec3"
)

// SelfIntersectEpsilon is the lower bound of every scattered-ray query.  Ray
// origins sit numerically on the surface they left.
const SelfIntersectEpsilon = 0.001

var (
	white   = vec3.Color{1.0, 1.0, 1.0}
	skyBlue = vec3.Color{0.5, 0.7, 1.0}
)

// Element pairs a geometry with the material covering it.  Materials may be
// shared between elements.
type Element struct {
	TheGeometry geometry.Geometry
	TheMaterial material.Material
}

// Hit is the nearest contact found by a scene query, and the material there.
type Hit struct {
	contact.Contact
	Material material.Material
}

// Scene is an ordered list of elements.  It must not be modified while a
// render is running.
type Scene struct {
	Elements []*Element
}

func (s *Scene) AddElement(e *Element) int {
	s.Elements = append(s.Elements, e)
	return len(s.Elements) - 1
}

// AddSphere is a convenience wrapper around AddElement.
func (s *Scene) AddSphere(center vec3.Point, radius float64, m material.Material) int {
	return s.AddElement(&Element{
		TheGeometry: &geometry.Sphere{Center: center, Radius: radius},
		TheMaterial: m,
	})
}

// HitNearest finds the closest contact inside the query segment.  Each element
// is queried with the segment's upper bound shrunk to the best hit so far.
func (s *Scene) HitNearest(query ray.RaySegment) (Hit, bool) {
	best := Hit{}
	found := false

	for _, elt := range s.Elements {
		c, ok := elt.TheGeometry.RayInto(query)
		if !ok {
			continue
		}
		query.TheSegment.Hi = c.T
		best = Hit{Contact: c, Material: elt.TheMaterial}
		found = true
	}

	return best, found
}

// Background is the color of a ray that escapes the scene: a vertical
// gradient from white at the bottom to sky blue at the top.
func Background(r ray.Ray) vec3.Color {
	unit := vec3.Normalize(r.Slope)
	a := 0.5 * (unit[1] + 1.0)
	return vec3.Lerp(white, skyBlue, a)
}

// Radiance returns the light carried back along r.  depth counts the bounces
// already taken; once it reaches maxDepth the path contributes black.
func (s *Scene) Radiance(r ray.Ray, depth, maxDepth int, rng *rand.Rand) vec3.Color {
	if depth >= maxDepth {
		return vec3.Color{}
	}

	hit, ok := s.HitNearest(ray.RaySegment{
		TheRay:     r,
		TheSegment: ray.Span{Lo: SelfIntersectEpsilon, Hi: math.Inf(1)},
	})
	if !ok {
		return Background(r)
	}

	info, ok := hit.Material.Scatter(r, hit.Contact, rng)
	if !ok {
		return vec3.Color{}
	}

	return vec3.MulVV(info.Attenuation, s.Radiance(info.Scattered, depth+1, maxDepth, rng))
}
