package slam

import "testing"

func TestSolveRtICPConvergesOnIdenticalClouds(t *testing.T) {
	cloud := []Vec3{
		{X: 0, Y: 0, Z: 1}, {X: 0.5, Y: 0, Z: 1}, {X: 0, Y: 0.5, Z: 1},
		{X: -0.5, Y: 0, Z: 1}, {X: 0, Y: -0.5, Z: 1},
	}
	res := SolveRtICP(cloud, cloud, IdentityTransform(), DefaultICPConfig())
	if !res.Valid {
		t.Fatalf("expected ICP to converge on identical clouds, got %+v", res)
	}
	if res.RMSE > DefaultICPConfig().ScoreThreshold {
		t.Fatalf("expected near-zero fitness score, got %v", res.RMSE)
	}
}

func TestSolveRtICPRejectsTooFewPoints(t *testing.T) {
	res := SolveRtICP([]Vec3{{X: 0, Y: 0, Z: 1}}, []Vec3{{X: 0, Y: 0, Z: 1}}, IdentityTransform(), DefaultICPConfig())
	if res.Valid {
		t.Fatal("expected fewer than 3 points to be rejected")
	}
}

func TestFindCorrespondencesRespectsMaxDistance(t *testing.T) {
	source := []Vec3{{X: 0, Y: 0, Z: 0}}
	target := []Vec3{{X: 10, Y: 0, Z: 0}}
	src, tgt, dist := findCorrespondences(source, target, 1.0)
	if len(src) != 0 || len(tgt) != 0 || len(dist) != 0 {
		t.Fatalf("expected no correspondence beyond max distance, got src=%v tgt=%v dist=%v", src, tgt, dist)
	}
}

func TestRejectOutliersKeepsOnlyBelowThreshold(t *testing.T) {
	src := []Vec3{{X: 0}, {X: 1}, {X: 2}}
	tgt := []Vec3{{X: 0}, {X: 1}, {X: 2}}
	distances := []float64{0.01, 0.02, 5.0}

	fs, ft := rejectOutliers(src, tgt, distances, 0.5)
	if len(fs) != len(ft) {
		t.Fatalf("expected matching filtered lengths, got %d vs %d", len(fs), len(ft))
	}
	if len(fs) >= len(src) {
		t.Fatalf("expected the large-distance outlier to be dropped, got %d of %d kept", len(fs), len(src))
	}
}
