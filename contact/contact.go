package contact

import (
	"row-major/skylight/ray"
	"row-major/skylight/vmath/vec3"
)

// Contact describes where a ray met a surface.
type Contact struct {
	// The ray parameter of the hit.
	T float64

	// The query ray.
	R ray.Ray

	// The hit point.
	P vec3.Point

	// Unit surface normal, oriented against R.
	N vec3.T

	// FrontFace is true when R struck the outward-facing side of the surface.
	FrontFace bool
}

// WithFaceNormal builds a contact whose normal opposes the query ray.
// outwardNormal must have unit length.
func WithFaceNormal(t float64, r ray.Ray, outwardNormal vec3.T) Contact {
	frontFace := vec3.IProd(r.Slope, outwardNormal) < 0.0

	n := outwardNormal
	if !frontFace {
		n = vec3.Neg(outwardNormal)
	}

	return Contact{
		T:         t,
		R:         r,
		P:         r.Eval(t),
		N:         n,
		FrontFace: frontFace,
	}
}
