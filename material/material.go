package material

import (
	"math/rand"

	"row-major/skylight/contact"
	"row-major/skylight/ray"
	"row-major/skylight/vmath/vec3"
)

// ScatterInfo is the ray leaving a surface, along with the per-channel factor
// applied to whatever light it eventually carries back.
type ScatterInfo struct {
	Scattered   ray.Ray
	Attenuation vec3.Color
}

// Material decides how a surface redirects incoming light.  Implementations
// must be safe for concurrent use; all randomness comes from rng.
type Material interface {
	// Scatter returns false if the incoming ray is absorbed.
	Scatter(incoming ray.Ray, c contact.Contact, rng *rand.Rand) (ScatterInfo, bool)
}

// Diffuse approximates Lambertian reflection by offsetting the normal with a
// random unit vector, which yields cosine-weighted directions.
type Diffuse struct {
	Albedo vec3.Color
}

func (d *Diffuse) Scatter(incoming ray.Ray, c contact.Contact, rng *rand.Rand) (ScatterInfo, bool) {
	dir := vec3.AddVV(c.N, vec3.RandomUnitVector(rng))

	// The random vector can cancel the normal almost exactly.
	if dir.NearZero() {
		dir = c.N
	}

	return ScatterInfo{
		Scattered: ray.Ray{
			Point: c.P,
			Slope: dir,
		},
		Attenuation: d.Albedo,
	}, true
}

// Mirror is a perfect specular reflector.
type Mirror struct{}

func (m *Mirror) Scatter(incoming ray.Ray, c contact.Contact, rng *rand.Rand) (ScatterInfo, bool) {
	return ScatterInfo{
		Scattered: ray.Ray{
			Point: c.P,
			Slope: vec3.Reflect(incoming.Slope, c.N),
		},
		Attenuation: vec3.Color{1, 1, 1},
	}, true
}
