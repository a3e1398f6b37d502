package slam

import (
	"testing"

	"github.com/paulmach/orb"
)

func TestUnionHullProducesTightBoundaryNotConcatenation(t *testing.T) {
	coeffs := NewPlane(0, 0, 1, -2) // z = 2 plane

	a := []Vec3{{X: -1, Y: -1, Z: 2}, {X: 1, Y: -1, Z: 2}, {X: 1, Y: 1, Z: 2}, {X: -1, Y: 1, Z: 2}}
	b := []Vec3{{X: 0, Y: 0, Z: 2}, {X: -1, Y: -1, Z: 2}} // interior point plus a duplicate corner

	out := unionHull(a, b, coeffs)

	if len(out) > len(a)+len(b) {
		t.Fatalf("expected hull recomputation to not exceed input size, got %d points", len(out))
	}
	if len(out) < 3 {
		t.Fatalf("expected a non-degenerate hull, got %d points", len(out))
	}
	for _, p := range out {
		if p.Z < 1.999 || p.Z > 2.001 {
			t.Errorf("expected hull points lifted back onto the plane (z=2), got %+v", p)
		}
	}
}

func TestUnionHullFallsBackWithFewerThanThreePoints(t *testing.T) {
	coeffs := NewPlane(0, 0, 1, -2)
	out := unionHull([]Vec3{{X: 0, Y: 0, Z: 2}}, nil, coeffs)
	if len(out) != 1 {
		t.Fatalf("expected degenerate input to pass through unchanged, got %d points", len(out))
	}
}

func TestConvexHullOfSquareKeepsOnlyCorners(t *testing.T) {
	pts := []orb.Point{{0, 0}, {2, 0}, {2, 2}, {0, 2}, {1, 1}}
	hull := convexHull(pts)
	if len(hull) != 4 {
		t.Fatalf("expected interior point dropped, got %d hull points: %v", len(hull), hull)
	}
}
