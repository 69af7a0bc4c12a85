package ray

import (
	"math"
	"testing"

	"row-major/skylight/vmath/vec3"

	"github.com/google/go-cmp/cmp"
)

func TestEval(t *testing.T) {
	r := Ray{Point: vec3.T{1, 2, 3}, Slope: vec3.T{0, 0, -2}}

	testCases := []struct {
		t    float64
		want vec3.T
	}{
		{0, vec3.T{1, 2, 3}},
		{1, vec3.T{1, 2, 1}},
		{-0.5, vec3.T{1, 2, 4}},
	}

	for _, tc := range testCases {
		if diff := cmp.Diff(r.Eval(tc.t), tc.want); diff != "" {
			t.Errorf("Bad Eval(%v); diff (-got +want)\n%s", tc.t, diff)
		}
	}
}

func TestEmptySpanContainsNothing(t *testing.T) {
	e := EmptySpan()
	for _, x := range []float64{math.Inf(-1), -1, 0, 1, math.Inf(1)} {
		if e.Contains(x) || e.Surrounds(x) {
			t.Errorf("EmptySpan contains %v", x)
		}
	}
	if e.Size() >= 0 {
		t.Errorf("EmptySpan size is %v, want negative", e.Size())
	}
}

func TestUniverseSpan(t *testing.T) {
	u := UniverseSpan()
	for _, x := range []float64{-1e300, 0, 1e300} {
		if !u.Surrounds(x) {
			t.Errorf("UniverseSpan doesn't surround %v", x)
		}
	}
}

func TestSpanBoundaries(t *testing.T) {
	s := Span{0, 1}
	if !s.Contains(0) || !s.Contains(1) {
		t.Errorf("Contains should be closed")
	}
	if s.Surrounds(0) || s.Surrounds(1) {
		t.Errorf("Surrounds should be open")
	}

	clampCases := []struct{ in, want float64 }{
		{-1, 0},
		{0.25, 0.25},
		{2, 1},
	}
	for _, tc := range clampCases {
		if got := s.Clamp(tc.in); got != tc.want {
			t.Errorf("Clamp(%v) = %v, want %v", tc.in, got, tc.want)
		}
	}
}
