package slam

import (
	"math/rand"
)

// TrackerConfig bundles every cascade-stage configuration option named in
// the spec's configuration surface (§6): ransac_*, icp_*, pnp_* plus the
// shared validator thresholds.
type TrackerConfig struct {
	Matcher     MatcherConfig
	Association AssociationConfig
	ICP         ICPConfig
	PnP         PnPConfig

	RansacIterations        int
	RansacSampleSize        int
	RansacMinInlier         int
	RansacInlierMaxMahalDist float64 // meters, passed to IsInlier/ComputeInliersAndError

	MaxTranslation float64 // meters, validator gate
	MaxRotationDeg float64 // degrees, validator gate

	PlaneNonDegenerateAngleDeg float64 // minimum pairwise normal angle for a usable triple

	MinMatchesForGeometric int // threshold at which ICP/PnP stages are attempted (spec: 20)
}

// DefaultTrackerConfig returns the cascade defaults named across §4.4/§6.
func DefaultTrackerConfig() TrackerConfig {
	return TrackerConfig{
		Matcher:                  DefaultMatcherConfig(),
		Association:              DefaultAssociationConfig(),
		ICP:                      DefaultICPConfig(),
		PnP:                      DefaultPnPConfig(),
		RansacIterations:         200,
		RansacSampleSize:         3,
		RansacMinInlier:          10,
		RansacInlierMaxMahalDist: 0.05,
		MaxTranslation:           0.5,
		MaxRotationDeg:           30,
		PlaneNonDegenerateAngleDeg: 15,
		MinMatchesForGeometric:   20,
	}
}

// TrackResult is the cascade's validated outcome: the winning stage's name
// alongside the shared SolverResult shape, or Valid==false if every stage
// failed (§4.4 failure semantics).
type TrackResult struct {
	Transform Transform
	Inliers   int
	RMSE      float64
	Valid     bool
	Stage     string
}

func invalidTrackResult() TrackResult {
	return TrackResult{Transform: IdentityTransform()}
}

// validRelativeTransform is the shared validator every cascade stage passes
// its candidate through (§4.4): implausible translation or rotation
// magnitude rejects the candidate outright, and the cascade proceeds to the
// next stage.
func validRelativeTransform(t Transform, cfg TrackerConfig) bool {
	return t.TranslationNorm() <= cfg.MaxTranslation && t.RotationAngleDeg() <= cfg.MaxRotationDeg
}

// betterCandidate implements the tie-break rule shared by every stage:
// larger inlier count first, then smaller RMSE (§4.4).
func betterCandidate(inliers int, rmse float64, bestInliers int, bestRMSE float64) bool {
	if inliers != bestInliers {
		return inliers > bestInliers
	}
	return rmse < bestRMSE
}

// TrackFrames computes the validated relative transform from prev to cur,
// running the six-stage cascade in order and returning on the first stage
// that produces a plausible candidate (§4.4). prior is an optional external
// pose-prior estimate (identity if none available) used to seed the plane
// correspondence search.
func TrackFrames(prev, cur *Frame, prior Transform, cfg TrackerConfig, rng *rand.Rand) TrackResult {
	if r, ok := trackPlaneOnly(prev, cur, prior, cfg); ok {
		return r
	}

	matches := GoodMatches(MatchFrames(prev, cur, cfg.Matcher), cfg.Matcher, true)

	if r, ok := trackPlanePoint(prev, cur, matches, prior, cfg, rng); ok {
		return r
	}
	if r, ok := trackPointOnly(prev, cur, matches, cfg, rng); ok {
		return r
	}
	if len(matches) >= cfg.MinMatchesForGeometric {
		if r, ok := trackICP(prev, cur, matches, prior, cfg); ok {
			return r
		}
		if r, ok := trackPnP(prev, cur, matches, cfg, rng); ok {
			return r
		}
	}

	return invalidTrackResult()
}

// trackPlaneOnly is cascade stage 1: exhaustive non-degenerate triples over
// the plane correspondences found via C7 (AssociatePlanes), scored by
// plane RMSE against every pair.
func trackPlaneOnly(prev, cur *Frame, prior Transform, cfg TrackerConfig) (TrackResult, bool) {
	projected := make([]Plane, len(prev.Planes))
	for i, p := range prev.Planes {
		projected[i] = TransformPlane(p.Coeffs, prior)
	}
	curPlanes := make([]Plane, len(cur.Planes))
	for i, p := range cur.Planes {
		curPlanes[i] = p.Coeffs
	}

	pairs := AssociatePlanes(projected, curPlanes, cfg.Association)
	if len(pairs) < 3 {
		return TrackResult{}, false
	}

	fromAll := make([]Plane, len(pairs))
	toAll := make([]Plane, len(pairs))
	for i, pr := range pairs {
		fromAll[i] = prev.Planes[pr.FromIdx].Coeffs
		toAll[i] = cur.Planes[pr.ToIdx].Coeffs
	}

	best := invalidResult()
	found := false
	for i := 0; i < len(pairs); i++ {
		for j := i + 1; j < len(pairs); j++ {
			for k := j + 1; k < len(pairs); k++ {
				if !nonDegenerateTriple(fromAll[i], fromAll[j], fromAll[k], cfg.PlaneNonDegenerateAngleDeg) {
					continue
				}
				res := SolveRtPlanes(
					[]Plane{fromAll[i], fromAll[j], fromAll[k]},
					[]Plane{toAll[i], toAll[j], toAll[k]},
				)
				if !res.Valid || !validRelativeTransform(res.Transform, cfg) {
					continue
				}
				rmse := rmseOfPlanes(fromAll, toAll, res.Transform)
				if !found || betterCandidate(len(fromAll), rmse, len(fromAll), best.RMSE) {
					best = SolverResult{Transform: res.Transform, Inliers: len(fromAll), RMSE: rmse, Valid: true}
					found = true
				}
			}
		}
	}

	if !found {
		return TrackResult{}, false
	}
	return TrackResult{Transform: best.Transform, Inliers: best.Inliers, RMSE: best.RMSE, Valid: true, Stage: "plane"}, true
}

func nonDegenerateTriple(a, b, c Plane, minAngleDeg float64) bool {
	return AngleBetweenNormals(a, b) > minAngleDeg &&
		AngleBetweenNormals(b, c) > minAngleDeg &&
		AngleBetweenNormals(a, c) > minAngleDeg
}

// trackPlanePoint is cascade stage 3: mixed plane+point RANSAC. Each
// iteration draws a plane sample (2 planes, or 1 plane completed with
// 2 keypoint matches) biased toward lower-indexed, better-ranked plane
// pairs, and scores the SolveRt_mixed hypothesis against every good match.
func trackPlanePoint(prev, cur *Frame, matches []Match, prior Transform, cfg TrackerConfig, rng *rand.Rand) (TrackResult, bool) {
	projected := make([]Plane, len(prev.Planes))
	for i, p := range prev.Planes {
		projected[i] = TransformPlane(p.Coeffs, prior)
	}
	curPlanes := make([]Plane, len(cur.Planes))
	for i, p := range cur.Planes {
		curPlanes[i] = p.Coeffs
	}
	pairs := AssociatePlanes(projected, curPlanes, cfg.Association)
	if len(pairs) == 0 || len(matches) < 1 {
		return TrackResult{}, false
	}

	best := invalidResult()
	bestInliers := 0
	found := false

	iterations := cfg.RansacIterations
	for iter := 0; iter < iterations; iter++ {
		usePlanes := 1
		if len(pairs) >= 2 {
			usePlanes = pickBiased2(rng, len(pairs))
		}
		var fromPlanes, toPlanes []Plane
		if usePlanes == 2 {
			i, j := biasedPairIndices(rng, len(pairs))
			fromPlanes = []Plane{prev.Planes[pairs[i].FromIdx].Coeffs, prev.Planes[pairs[j].FromIdx].Coeffs}
			toPlanes = []Plane{cur.Planes[pairs[i].ToIdx].Coeffs, cur.Planes[pairs[j].ToIdx].Coeffs}
		} else {
			i := biasedSingleIndex(rng, len(pairs))
			fromPlanes = []Plane{prev.Planes[pairs[i].FromIdx].Coeffs}
			toPlanes = []Plane{cur.Planes[pairs[i].ToIdx].Coeffs}
		}
		numPointsNeeded := 3 - usePlanes
		if numPointsNeeded > len(matches) {
			continue
		}
		idx := rng.Perm(len(matches))[:numPointsNeeded]
		fromPoints := make([]Vec3, numPointsNeeded)
		toPoints := make([]Vec3, numPointsNeeded)
		for k, mi := range idx {
			m := matches[mi]
			fromPoints[k] = prev.Keypoints[m.FromIdx].Point3D
			toPoints[k] = cur.Keypoints[m.ToIdx].Point3D
		}

		res := SolveRtMixed(fromPoints, toPoints, fromPlanes, toPlanes)
		if !res.Valid || !validRelativeTransform(res.Transform, cfg) {
			continue
		}

		inliers, rmse := ComputeInliersAndError(matches, prev, cur, res.Transform, cfg.RansacInlierMaxMahalDist)
		if !found || betterCandidate(len(inliers), rmse, bestInliers, best.RMSE) {
			best = SolverResult{Transform: res.Transform, Inliers: len(inliers), RMSE: rmse, Valid: true}
			bestInliers = len(inliers)
			found = true
		}

		iterations = inflateIterations(iterations, iter, bestInliers, len(matches))
	}

	if !found || bestInliers < cfg.RansacMinInlier {
		return TrackResult{}, false
	}
	return TrackResult{Transform: best.Transform, Inliers: best.Inliers, RMSE: best.RMSE, Valid: true, Stage: "plane+point"}, true
}

// inflateIterations implements the early-exit hacks (§4.4): once the
// best-so-far inlier ratio clears 50/70/80/90/95% of the good match count,
// shrink the remaining iteration budget accordingly instead of running the
// full configured count.
func inflateIterations(iterations, iter, bestInliers, total int) int {
	if total == 0 {
		return iterations
	}
	ratio := float64(bestInliers) / float64(total)
	remaining := iterations - iter - 1
	switch {
	case ratio >= 0.95:
		return iter + 1 + min(remaining, 1)
	case ratio >= 0.90:
		return iter + 1 + min(remaining, 2)
	case ratio >= 0.80:
		return iter + 1 + min(remaining, 5)
	case ratio >= 0.70:
		return iter + 1 + min(remaining, 15)
	case ratio >= 0.50:
		return iter + 1 + min(remaining, 40)
	default:
		return iterations
	}
}

func min(a, b int) int {
	if a < b {
		return a
	}
	return b
}

// pickBiased2 decides, for each iteration, whether to draw a 2-plane or
// 1-plane sample set; with only one available pair the 1-plane path is
// forced by the caller.
func pickBiased2(rng *rand.Rand, n int) int {
	if rng.Float64() < 0.5 {
		return 2
	}
	return 1
}

// biasedPairIndices draws two distinct pair indices, each independently
// biased toward lower (better-ranked) indices by drawing twice and keeping
// the smaller of two random picks (§4.4 stage 3).
func biasedPairIndices(rng *rand.Rand, n int) (int, int) {
	i := biasedSingleIndex(rng, n)
	j := biasedSingleIndex(rng, n)
	for j == i && n > 1 {
		j = biasedSingleIndex(rng, n)
	}
	return i, j
}

func biasedSingleIndex(rng *rand.Rand, n int) int {
	a := rng.Intn(n)
	b := rng.Intn(n)
	if a < b {
		return a
	}
	return b
}

// trackPointOnly is cascade stage 4: classic RANSAC over 3-point minimal
// samples, with up to 20 inner refinement rounds re-solving Umeyama on the
// growing inlier set (§4.4). Retries once from the identity hypothesis if
// no iteration ever produced a valid transform.
func trackPointOnly(prev, cur *Frame, matches []Match, cfg TrackerConfig, rng *rand.Rand) (TrackResult, bool) {
	if len(matches) < 3 {
		return TrackResult{}, false
	}

	best := invalidResult()
	bestInliers := 0
	found := false

	iterations := cfg.RansacIterations
	for iter := 0; iter < iterations; iter++ {
		idx := rng.Perm(len(matches))[:3]
		fromPts := make([]Vec3, 3)
		toPts := make([]Vec3, 3)
		for k, mi := range idx {
			m := matches[mi]
			fromPts[k] = prev.Keypoints[m.FromIdx].Point3D
			toPts[k] = cur.Keypoints[m.ToIdx].Point3D
		}

		hyp := SolveRtPoints(fromPts, toPts)
		if !hyp.Valid {
			continue
		}
		refined, inliers, rmse := refinePointOnly(hyp.Transform, matches, prev, cur, cfg)
		if !validRelativeTransform(refined, cfg) {
			continue
		}

		if !found || betterCandidate(inliers, rmse, bestInliers, best.RMSE) {
			best = SolverResult{Transform: refined, Inliers: inliers, RMSE: rmse, Valid: true}
			bestInliers = inliers
			found = true
		}
		iterations = inflateIterations(iterations, iter, bestInliers, len(matches))
	}

	if !found {
		hyp := IdentityTransform()
		refined, inliers, rmse := refinePointOnly(hyp, matches, prev, cur, cfg)
		if validRelativeTransform(refined, cfg) && inliers >= 3 {
			best = SolverResult{Transform: refined, Inliers: inliers, RMSE: rmse, Valid: true}
			bestInliers = inliers
			found = true
		}
	}

	if !found || bestInliers < cfg.RansacMinInlier {
		return TrackResult{}, false
	}
	return TrackResult{Transform: best.Transform, Inliers: best.Inliers, RMSE: best.RMSE, Valid: true, Stage: "point"}, true
}

// refinePointOnly re-solves Umeyama on the current inlier set for up to 20
// rounds, stopping early once the inlier set stops growing and the error
// stops improving (§4.4 stage 4).
func refinePointOnly(initial Transform, matches []Match, prev, cur *Frame, cfg TrackerConfig) (Transform, int, float64) {
	current := initial
	inliers, rmse := ComputeInliersAndError(matches, prev, cur, current, cfg.RansacInlierMaxMahalDist)
	if len(inliers) < 3 {
		return current, len(inliers), rmse
	}

	for round := 0; round < 20; round++ {
		fromPts := make([]Vec3, len(inliers))
		toPts := make([]Vec3, len(inliers))
		for i, m := range inliers {
			fromPts[i] = prev.Keypoints[m.FromIdx].Point3D
			toPts[i] = cur.Keypoints[m.ToIdx].Point3D
		}
		res := SolveRtPoints(fromPts, toPts)
		if !res.Valid {
			break
		}
		newInliers, newRMSE := ComputeInliersAndError(matches, prev, cur, res.Transform, cfg.RansacInlierMaxMahalDist)
		stable := len(newInliers) == len(inliers)
		improved := newRMSE < rmse

		current, inliers, rmse = res.Transform, newInliers, newRMSE
		if stable && !improved {
			break
		}
	}
	return current, len(inliers), rmse
}

// trackICP is cascade stage 5: run when >=20 good matches exist, operating
// directly on the matched keypoint 3D clouds.
func trackICP(prev, cur *Frame, matches []Match, prior Transform, cfg TrackerConfig) (TrackResult, bool) {
	source := make([]Vec3, len(matches))
	target := make([]Vec3, len(matches))
	for i, m := range matches {
		source[i] = prev.Keypoints[m.FromIdx].Point3D
		target[i] = cur.Keypoints[m.ToIdx].Point3D
	}
	res := SolveRtICP(source, target, prior, cfg.ICP)
	if !res.Valid || !validRelativeTransform(res.Transform, cfg) {
		return TrackResult{}, false
	}
	return TrackResult{Transform: res.Transform, Inliers: res.Inliers, RMSE: res.RMSE, Valid: true, Stage: "icp"}, true
}

// trackPnP is cascade stage 6: run when >=20 good matches exist, solving for
// the pose that reprojects the previous frame's 3D points onto the current
// frame's observed pixels.
func trackPnP(prev, cur *Frame, matches []Match, cfg TrackerConfig, rng *rand.Rand) (TrackResult, bool) {
	points3D := make([]Vec3, len(matches))
	pixels := make([]PixelObservation, len(matches))
	for i, m := range matches {
		points3D[i] = prev.Keypoints[m.FromIdx].Point3D
		tk := cur.Keypoints[m.ToIdx]
		pixels[i] = PixelObservation{U: tk.U, V: tk.V}
	}
	res := SolveRtPnP(points3D, pixels, cur.K, cfg.PnP, rng)
	if !res.Valid || !validRelativeTransform(res.Transform, cfg) {
		return TrackResult{}, false
	}
	return TrackResult{Transform: res.Transform, Inliers: res.Inliers, RMSE: res.RMSE, Valid: true, Stage: "pnp"}, true
}
