package slam

import (
	"math"
	"sort"
)

// ICPConfig holds the configuration for the 3D iterative-closest-point
// solver (§4.3), the same shape as the teacher's 2D ICPConfig but in
// meters instead of millimeters since C2 back-projections are metric.
type ICPConfig struct {
	MaxIterations     int
	ConvergenceThresh float64 // stop when error improvement is below this (m)
	MaxCorrespondDist float64 // correspondence search radius (m)
	OutlierPercentile float64 // reject correspondences above this percentile
	ScoreThreshold    float64 // fitness score required to report convergence
}

// DefaultICPConfig mirrors the spec's icp_max_distance / icp_iterations /
// icp_tf_epsilon / icp_score_threshold configuration options.
func DefaultICPConfig() ICPConfig {
	return ICPConfig{
		MaxIterations:     50,
		ConvergenceThresh: 1e-4,
		MaxCorrespondDist: 0.5,
		OutlierPercentile: 0.8,
		ScoreThreshold:    0.02,
	}
}

// SolveRtICP runs standard ICP on two 3D point clouds, starting from an
// initial transform, and reports convergence once the fitness score (root-
// mean-square correspondence residual) is at or below ScoreThreshold (§4.3/§4.4
// stage 5).
func SolveRtICP(source, target []Vec3, initial Transform, cfg ICPConfig) SolverResult {
	if len(source) < 3 || len(target) < 3 {
		return invalidResult()
	}

	current := initial
	prevScore := math.MaxFloat64

	for iter := 0; iter < cfg.MaxIterations; iter++ {
		transformed := transformPoints(source, current)
		srcCorr, tgtCorr, distances := findCorrespondences(transformed, target, cfg.MaxCorrespondDist)
		if len(srcCorr) < 3 {
			break
		}

		srcCorr, tgtCorr = rejectOutliers(srcCorr, tgtCorr, distances, cfg.OutlierPercentile)
		if len(srcCorr) < 3 {
			break
		}

		// srcCorr/tgtCorr are already in map-frame (post the current
		// estimate); solve the incremental alignment in that frame, then
		// compose onto the running transform.
		step := SolveRtPoints(srcCorr, tgtCorr)
		if !step.Valid {
			break
		}
		newTransform := Compose(step.Transform, current)

		newTransformed := transformPoints(source, newTransform)
		_, _, newDistances := findCorrespondences(newTransformed, target, cfg.MaxCorrespondDist)
		score := fitnessScore(newDistances)

		if score > prevScore*1.5 {
			break
		}

		improvement := prevScore - score
		current = newTransform
		prevScore = score

		if improvement >= 0 && improvement < cfg.ConvergenceThresh {
			break
		}
	}

	transformed := transformPoints(source, current)
	srcCorr, tgtCorr, distances := findCorrespondences(transformed, target, cfg.MaxCorrespondDist)
	score := fitnessScore(distances)

	return SolverResult{
		Transform: current,
		Inliers:   len(srcCorr),
		RMSE:      score,
		Valid:     score <= cfg.ScoreThreshold && len(srcCorr) >= 3 && len(tgtCorr) >= 3,
	}
}

func transformPoints(points []Vec3, t Transform) []Vec3 {
	out := make([]Vec3, len(points))
	for i, p := range points {
		out[i] = t.Apply(p)
	}
	return out
}

func fitnessScore(distances []float64) float64 {
	if len(distances) == 0 {
		return math.MaxFloat64
	}
	sum := 0.0
	for _, d := range distances {
		sum += d * d
	}
	return math.Sqrt(sum / float64(len(distances)))
}

// findCorrespondences finds nearest-neighbor pairs within maxDist, the 3D
// analogue of the teacher's findCorrespondencesWithDistances.
func findCorrespondences(source, target []Vec3, maxDist float64) (srcCorr, tgtCorr []Vec3, distances []float64) {
	for _, sp := range source {
		minDist := math.MaxFloat64
		var nearest Vec3
		for _, tp := range target {
			d := Distance(sp, tp)
			if d < minDist {
				minDist, nearest = d, tp
			}
		}
		if minDist <= maxDist {
			srcCorr = append(srcCorr, sp)
			tgtCorr = append(tgtCorr, nearest)
			distances = append(distances, minDist)
		}
	}
	return
}

// rejectOutliers removes correspondences with distances above the given
// percentile, identical in spirit to the teacher's percentile rejection.
func rejectOutliers(srcCorr, tgtCorr []Vec3, distances []float64, percentile float64) ([]Vec3, []Vec3) {
	if len(distances) == 0 || percentile >= 1.0 {
		return srcCorr, tgtCorr
	}
	sorted := make([]float64, len(distances))
	copy(sorted, distances)
	sort.Float64s(sorted)

	idx := int(float64(len(sorted)) * percentile)
	if idx >= len(sorted) {
		idx = len(sorted) - 1
	}
	threshold := sorted[idx]

	var fs, ft []Vec3
	for i, d := range distances {
		if d <= threshold {
			fs = append(fs, srcCorr[i])
			ft = append(ft, tgtCorr[i])
		}
	}
	return fs, ft
}
