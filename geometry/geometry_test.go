package geometry

import (
	"math"
	"math/rand"
	"testing"

	"row-major/skylight/ray"
	"row-major/skylight/vmath/vec3"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
)

func TestSphereRootsLieOnSurface(t *testing.T) {
	rng := rand.New(rand.NewSource(3))
	checked := 0
	for i := 0; i < 2000; i++ {
		s := &Sphere{
			Center: vec3.RandomInRange(rng, -5, 5),
			Radius: 0.1 + 3*rng.Float64(),
		}
		r := ray.Ray{
			Point: vec3.RandomInRange(rng, -10, 10),
			// Deliberately not normalized.
			Slope: vec3.MulVS(vec3.RandomUnitVector(rng), 0.1+5*rng.Float64()),
		}

		near, far, ok := s.Roots(r)
		if !ok {
			continue
		}
		checked++

		if near > far {
			t.Fatalf("Roots out of order: near=%v far=%v", near, far)
		}
		for _, root := range []float64{near, far} {
			d := vec3.SubVV(r.Eval(root), s.Center).Norm()
			if math.Abs(d-s.Radius) > 1e-9*math.Max(1, s.Radius) {
				t.Fatalf("Root %v is at distance %v from center, want radius %v", root, d, s.Radius)
			}
		}
	}
	if checked == 0 {
		t.Fatalf("No ray hit any sphere")
	}
}

func TestSphereRayInto(t *testing.T) {
	s := &Sphere{Center: vec3.T{0, 0, -1}, Radius: 0.5}

	testCases := []struct {
		desc          string
		query         ray.RaySegment
		wantOK        bool
		wantT         float64
		wantN         vec3.T
		wantFrontFace bool
	}{
		{
			desc: "head on from outside",
			query: ray.RaySegment{
				TheRay:     ray.Ray{Point: vec3.T{0, 0, 0}, Slope: vec3.T{0, 0, -1}},
				TheSegment: ray.Span{Lo: 0.001, Hi: math.Inf(1)},
			},
			wantOK:        true,
			wantT:         0.5,
			wantN:         vec3.T{0, 0, 1},
			wantFrontFace: true,
		},
		{
			desc: "unnormalized slope",
			query: ray.RaySegment{
				TheRay:     ray.Ray{Point: vec3.T{0, 0, 0}, Slope: vec3.T{0, 0, -4}},
				TheSegment: ray.Span{Lo: 0.001, Hi: math.Inf(1)},
			},
			wantOK:        true,
			wantT:         0.125,
			wantN:         vec3.T{0, 0, 1},
			wantFrontFace: true,
		},
		{
			desc: "miss",
			query: ray.RaySegment{
				TheRay:     ray.Ray{Point: vec3.T{0, 0, 0}, Slope: vec3.T{0, 1, 0}},
				TheSegment: ray.Span{Lo: 0.001, Hi: math.Inf(1)},
			},
			wantOK: false,
		},
		{
			desc: "beyond segment",
			query: ray.RaySegment{
				TheRay:     ray.Ray{Point: vec3.T{0, 0, 0}, Slope: vec3.T{0, 0, -1}},
				TheSegment: ray.Span{Lo: 0.001, Hi: 0.4},
			},
			wantOK: false,
		},
		{
			desc: "from inside falls back to far root",
			query: ray.RaySegment{
				TheRay:     ray.Ray{Point: vec3.T{0, 0, -1}, Slope: vec3.T{0, 0, -1}},
				TheSegment: ray.Span{Lo: 0.001, Hi: math.Inf(1)},
			},
			wantOK:        true,
			wantT:         0.5,
			wantN:         vec3.T{0, 0, 1},
			wantFrontFace: false,
		},
		{
			desc: "sphere behind origin",
			query: ray.RaySegment{
				TheRay:     ray.Ray{Point: vec3.T{0, 0, 0}, Slope: vec3.T{0, 0, 1}},
				TheSegment: ray.Span{Lo: 0.001, Hi: math.Inf(1)},
			},
			wantOK: false,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.desc, func(t *testing.T) {
			c, ok := s.RayInto(tc.query)
			if ok != tc.wantOK {
				t.Fatalf("Bad hit result; got %v, want %v", ok, tc.wantOK)
			}
			if !ok {
				return
			}
			if math.Abs(c.T-tc.wantT) > 1e-12 {
				t.Errorf("Bad T; got %v, want %v", c.T, tc.wantT)
			}
			if diff := cmp.Diff(c.N, tc.wantN, cmpopts.EquateApprox(0, 1e-12)); diff != "" {
				t.Errorf("Bad normal; diff (-got +want)\n%s", diff)
			}
			if c.FrontFace != tc.wantFrontFace {
				t.Errorf("Bad FrontFace; got %v, want %v", c.FrontFace, tc.wantFrontFace)
			}
			if math.Abs(c.N.Norm()-1) > 1e-12 {
				t.Errorf("Normal %v isn't unit length", c.N)
			}
		})
	}
}
