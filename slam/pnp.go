package slam

import (
	"math"
	"math/rand"
)

// PixelObservation is a 2D pixel observation. It carries no point index: it
// is hypothesized to correspond to the 3D point (in the previous frame's
// coordinates) at the same position in the parallel points slice.
type PixelObservation struct {
	U, V float64
}

// PnPConfig mirrors the spec's pnp_min_inlier / pnp_iterations /
// pnp_repreject_error configuration options (§6).
type PnPConfig struct {
	Iterations        int
	ReprojectionError float64 // pixels
	MinInlier         int
	SampleSize        int // minimal sample drawn per RANSAC iteration
}

// DefaultPnPConfig returns reasonable defaults for the RANSAC PnP solver.
func DefaultPnPConfig() PnPConfig {
	return PnPConfig{
		Iterations:        200,
		ReprojectionError: 4.0,
		MinInlier:         15,
		SampleSize:        6,
	}
}

// SolveRtPnP computes the pose that best explains a set of 3D points
// (in the previous frame) reprojecting onto observed 2D pixels in the
// current frame (§4.3/§4.4 stage 6), via RANSAC over a hill-climbing
// reprojection-error refinement — the same nudge-and-shrink-step search the
// 2D ICP fine-tune passes use, generalized to 6 DoF and to minimizing squared
// reprojection error instead of maximizing an inlier score.
func SolveRtPnP(points3D []Vec3, pixels []PixelObservation, k Intrinsics, cfg PnPConfig, rng *rand.Rand) SolverResult {
	n := len(points3D)
	if n != len(pixels) || n < 4 {
		return invalidResult()
	}

	sample := cfg.SampleSize
	if sample > n {
		sample = n
	}
	if sample < 4 {
		sample = 4
	}

	best := invalidResult()
	bestInliers := -1

	for iter := 0; iter < cfg.Iterations; iter++ {
		idx := rng.Perm(n)[:sample]
		guess := refinePnP(subsetPoints(points3D, idx), subsetPixels(pixels, idx), k, IdentityTransform(), 40)

		inlierIdx, rmse := pnpInliers(points3D, pixels, k, guess, cfg.ReprojectionError)
		if len(inlierIdx) < 4 {
			continue
		}
		if len(inlierIdx) > bestInliers || (len(inlierIdx) == bestInliers && rmse < best.RMSE) {
			bestInliers = len(inlierIdx)
			best = SolverResult{Transform: guess, Inliers: len(inlierIdx), RMSE: rmse, Valid: true}
		}
	}

	if bestInliers < cfg.MinInlier {
		return invalidResult()
	}

	// Final refinement pass on the full inlier set.
	inlierIdx, _ := pnpInliers(points3D, pixels, k, best.Transform, cfg.ReprojectionError)
	refined := refinePnP(subsetPoints(points3D, inlierIdx), subsetPixels(pixels, inlierIdx), k, best.Transform, 60)
	finalInliers, finalRMSE := pnpInliers(points3D, pixels, k, refined, cfg.ReprojectionError)
	if len(finalInliers) < cfg.MinInlier {
		return invalidResult()
	}

	return SolverResult{Transform: refined, Inliers: len(finalInliers), RMSE: finalRMSE, Valid: true}
}

func subsetPoints(pts []Vec3, idx []int) []Vec3 {
	out := make([]Vec3, len(idx))
	for i, j := range idx {
		out[i] = pts[j]
	}
	return out
}

func subsetPixels(px []PixelObservation, idx []int) []PixelObservation {
	out := make([]PixelObservation, len(idx))
	for i, j := range idx {
		out[i] = px[j]
	}
	return out
}

func reprojCost(points []Vec3, pixels []PixelObservation, k Intrinsics, t Transform) float64 {
	sum := 0.0
	for i, p := range points {
		cam := t.Apply(p)
		u, v, ok := k.Project(cam)
		if !ok {
			sum += 1e6
			continue
		}
		du := u - pixels[i].U
		dv := v - pixels[i].V
		sum += du*du + dv*dv
	}
	return sum
}

// refinePnP hill-climbs the 6 DoF (3 rotation nudges applied as small
// incremental rotations, 3 translation nudges) to minimize reprojection
// cost, shrinking the step whenever no direction improves — the same
// coarse-to-fine nudge search Graph.relax uses.
func refinePnP(points []Vec3, pixels []PixelObservation, k Intrinsics, initial Transform, iterations int) Transform {
	current := initial
	currentCost := reprojCost(points, pixels, k, current)

	rotStep := 0.2 // radians
	transStep := 0.2 * meanDepthScale(points)

	for it := 0; it < iterations; it++ {
		improved := false

		for axis := 0; axis < 3; axis++ {
			for _, sign := range [2]float64{1, -1} {
				candidate := nudgeRotation(current, axis, sign*rotStep)
				cost := reprojCost(points, pixels, k, candidate)
				if cost < currentCost {
					current, currentCost, improved = candidate, cost, true
				}
			}
		}
		for axis := 0; axis < 3; axis++ {
			for _, sign := range [2]float64{1, -1} {
				candidate := nudgeTranslation(current, axis, sign*transStep)
				cost := reprojCost(points, pixels, k, candidate)
				if cost < currentCost {
					current, currentCost, improved = candidate, cost, true
				}
			}
		}

		if !improved {
			rotStep /= 2
			transStep /= 2
			if rotStep < 1e-5 && transStep < 1e-5 {
				break
			}
		}
	}
	return current
}

func meanDepthScale(points []Vec3) float64 {
	if len(points) == 0 {
		return 1
	}
	sum := 0.0
	for _, p := range points {
		sum += p.Z
	}
	mean := sum / float64(len(points))
	if mean <= 0 {
		return 1
	}
	return mean
}

func nudgeRotation(t Transform, axis int, angle float64) Transform {
	delta := axisRotation(axis, angle)
	return Transform{R: delta.Mul(t.R), T: t.T}
}

func nudgeTranslation(t Transform, axis int, delta float64) Transform {
	d := t.T
	switch axis {
	case 0:
		d.X += delta
	case 1:
		d.Y += delta
	case 2:
		d.Z += delta
	}
	return Transform{R: t.R, T: d}
}

func axisRotation(axis int, angle float64) Mat3 {
	c, s := math.Cos(angle), math.Sin(angle)
	switch axis {
	case 0: // roll, about X
		return Mat3{{1, 0, 0}, {0, c, -s}, {0, s, c}}
	case 1: // pitch, about Y
		return Mat3{{c, 0, s}, {0, 1, 0}, {-s, 0, c}}
	default: // yaw, about Z
		return Mat3{{c, -s, 0}, {s, c, 0}, {0, 0, 1}}
	}
}

func pnpInliers(points []Vec3, pixels []PixelObservation, k Intrinsics, t Transform, maxReproj float64) ([]int, float64) {
	var idx []int
	sumSq := 0.0
	for i, p := range points {
		cam := t.Apply(p)
		u, v, ok := k.Project(cam)
		if !ok {
			continue
		}
		du := u - pixels[i].U
		dv := v - pixels[i].V
		e := du*du + dv*dv
		if e <= maxReproj*maxReproj {
			idx = append(idx, i)
			sumSq += e
		}
	}
	if len(idx) == 0 {
		return nil, math.Inf(1)
	}
	return idx, math.Sqrt(sumSq / float64(len(idx)))
}
