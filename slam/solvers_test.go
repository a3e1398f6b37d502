package slam

import "testing"

func rotateAndTranslate(pts []Vec3, tr Transform) []Vec3 {
	out := make([]Vec3, len(pts))
	for i, p := range pts {
		out[i] = tr.Apply(p)
	}
	return out
}

func TestSolveRtPointsRecoversKnownTransform(t *testing.T) {
	from := []Vec3{{X: 0, Y: 0, Z: 1}, {X: 1, Y: 0, Z: 1}, {X: 0, Y: 1, Z: 1}, {X: 0, Y: 0, Z: 2}}
	truth := Transform{R: Mat3{{0, -1, 0}, {1, 0, 0}, {0, 0, 1}}, T: Vec3{X: 0.5, Y: -0.2, Z: 0.1}}
	to := rotateAndTranslate(from, truth)

	res := SolveRtPoints(from, to)
	if !res.Valid {
		t.Fatal("expected a valid solve with 4 non-degenerate correspondences")
	}
	if res.RMSE > 1e-6 {
		t.Fatalf("expected near-zero RMSE recovering an exact transform, got %v", res.RMSE)
	}
	got := res.Transform.Apply(from[0])
	want := to[0]
	if !almostEqual(got.X, want.X, 1e-6) || !almostEqual(got.Y, want.Y, 1e-6) || !almostEqual(got.Z, want.Z, 1e-6) {
		t.Fatalf("recovered transform disagrees: got %+v want %+v", got, want)
	}
}

func TestSolveRtPointsRejectsTooFewCorrespondences(t *testing.T) {
	res := SolveRtPoints([]Vec3{{X: 0, Y: 0, Z: 1}, {X: 1, Y: 0, Z: 1}}, []Vec3{{X: 0, Y: 0, Z: 1}, {X: 1, Y: 0, Z: 1}})
	if res.Valid {
		t.Fatal("expected fewer than 3 correspondences to be rejected")
	}
}

func TestSolveRtPlanesRecoversKnownRotation(t *testing.T) {
	truth := Transform{R: Mat3{{0, -1, 0}, {1, 0, 0}, {0, 0, 1}}}
	from := []Plane{NewPlane(1, 0, 0, -1), NewPlane(0, 1, 0, -1), NewPlane(0, 0, 1, -1)}
	to := make([]Plane, len(from))
	for i, p := range from {
		to[i] = TransformPlane(p, truth)
	}

	res := SolveRtPlanes(from, to)
	if !res.Valid {
		t.Fatal("expected a valid solve with 3 non-degenerate plane correspondences")
	}
	if res.RMSE > 1e-6 {
		t.Fatalf("expected near-zero RMSE recovering an exact rotation, got %v", res.RMSE)
	}
}

func TestSolveRtPlanesRejectsMismatchedLengths(t *testing.T) {
	res := SolveRtPlanes([]Plane{NewPlane(1, 0, 0, -1)}, []Plane{NewPlane(1, 0, 0, -1), NewPlane(0, 1, 0, -1)})
	if res.Valid {
		t.Fatal("expected mismatched-length inputs to be rejected")
	}
}

func TestSolveRtMixedRequiresExactlyThreeConstraints(t *testing.T) {
	res := SolveRtMixed(
		[]Vec3{{X: 0, Y: 0, Z: 1}},
		[]Vec3{{X: 0, Y: 0, Z: 1}},
		nil, nil,
	)
	if res.Valid {
		t.Fatal("expected fewer than 3 total constraints to be rejected")
	}
}

func TestSolveRtMixedTwoPointsOnePlane(t *testing.T) {
	truth := Transform{R: Identity3(), T: Vec3{X: 1, Y: 0, Z: 0}}
	fromPoints := []Vec3{{X: 0, Y: 0, Z: 1}, {X: 1, Y: 0, Z: 1}}
	toPoints := rotateAndTranslate(fromPoints, truth)
	fromPlane := NewPlane(0, 0, 1, -1)
	toPlane := TransformPlane(fromPlane, truth)

	res := SolveRtMixed(fromPoints, toPoints, []Plane{fromPlane}, []Plane{toPlane})
	if !res.Valid {
		t.Fatal("expected a valid solve with 2 points + 1 plane")
	}
	if res.RMSE > 1e-6 {
		t.Fatalf("expected near-zero RMSE recovering an exact transform, got %v", res.RMSE)
	}
}
