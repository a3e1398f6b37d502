package slam

import (
	"math"
	"math/bits"
	"sort"
)

// MatchRejectHamming is the Hamming-distance ceiling at or above which a binary
// match is discarded outright (§4.2).
const MatchRejectHamming = 128

// Match is a correspondence between a keypoint in a "from" frame and one in
// a "to" frame, ordered by ascending descriptor distance.
type Match struct {
	FromIdx  int
	ToIdx    int
	Distance float64
}

// HammingDistance counts differing bits between two 256-bit descriptors.
func HammingDistance(a, b [32]byte) int {
	d := 0
	for i := range a {
		d += bits.OnesCount8(a[i] ^ b[i])
	}
	return d
}

// l2Distance is the Euclidean distance between two float descriptor vectors.
func l2Distance(a, b []float64) float64 {
	if len(a) != len(b) {
		return math.Inf(1)
	}
	sum := 0.0
	for i := range a {
		d := a[i] - b[i]
		sum += d * d
	}
	return math.Sqrt(sum)
}

// MatcherConfig bundles the thresholds used by MatchFrames and GoodMatches.
type MatcherConfig struct {
	RatioTestThreshold  float64 // float descriptors: nearest/second-nearest ratio
	GoodMatchThreshold  float64 // good filter: distance <= threshold * minDistance
	MinGoodMatchSize    int     // good filter: top-K fallback
}

// DefaultMatcherConfig mirrors the spec's feature_good_match_threshold /
// feature_min_good_match_size configuration options.
func DefaultMatcherConfig() MatcherConfig {
	return MatcherConfig{
		RatioTestThreshold: 0.8,
		GoodMatchThreshold: 4.0,
		MinGoodMatchSize:   20,
	}
}

// MatchFrames compares every keypoint in "from" against every keypoint in
// "to" and returns matches ordered by ascending distance. Matches where
// either endpoint has invalid depth are discarded (§4.2). Binary descriptors
// are compared by Hamming distance (rejecting >= MatchRejectHamming); float
// descriptors are compared by L2 with a ratio test against the second
// nearest neighbor.
func MatchFrames(from, to *Frame, cfg MatcherConfig) []Match {
	var matches []Match
	switch from.Descriptors {
	case DescriptorBinary:
		for i, fk := range from.Keypoints {
			if !fk.HasValidDepth() {
				continue
			}
			bestDist, bestJ := math.MaxInt64, -1
			for j, tk := range to.Keypoints {
				if !tk.HasValidDepth() {
					continue
				}
				d := HammingDistance(fk.Binary, tk.Binary)
				if d < bestDist {
					bestDist, bestJ = d, j
				}
			}
			if bestJ >= 0 && bestDist < MatchRejectHamming {
				matches = append(matches, Match{FromIdx: i, ToIdx: bestJ, Distance: float64(bestDist)})
			}
		}
	case DescriptorFloat:
		for i, fk := range from.Keypoints {
			if !fk.HasValidDepth() {
				continue
			}
			best, second := math.Inf(1), math.Inf(1)
			bestJ := -1
			for j, tk := range to.Keypoints {
				if !tk.HasValidDepth() {
					continue
				}
				d := l2Distance(fk.Float, tk.Float)
				if d < best {
					second = best
					best, bestJ = d, j
				} else if d < second {
					second = d
				}
			}
			if bestJ < 0 {
				continue
			}
			if second > 0 && best/second > cfg.RatioTestThreshold {
				continue
			}
			matches = append(matches, Match{FromIdx: i, ToIdx: bestJ, Distance: best})
		}
	}

	sort.Slice(matches, func(i, j int) bool { return matches[i].Distance < matches[j].Distance })
	return matches
}

// GoodMatches filters an ordered match list to the "good" subset: either the
// top MinGoodMatchSize matches, or every match closer than
// GoodMatchThreshold*minDistance, whichever the caller's config selects via
// useThresholdFilter (§4.2 option (a)/(b)).
func GoodMatches(matches []Match, cfg MatcherConfig, useThresholdFilter bool) []Match {
	if len(matches) == 0 {
		return nil
	}
	if !useThresholdFilter {
		n := cfg.MinGoodMatchSize
		if n > len(matches) {
			n = len(matches)
		}
		out := make([]Match, n)
		copy(out, matches[:n])
		return out
	}

	minDist := matches[0].Distance
	if minDist < 1e-6 {
		minDist = 1e-6
	}
	cutoff := cfg.GoodMatchThreshold * minDist
	var out []Match
	for _, m := range matches {
		if m.Distance <= cutoff {
			out = append(out, m)
		}
	}
	if len(out) == 0 {
		out = append(out, matches[0])
	}
	return out
}

// InlierError reports, under a hypothesis transform T mapping "from" into
// "to"'s frame, the Mahalanobis-style squared error for a match with
// isotropic depth-variance weighting (error grows with the square of depth,
// matching a real depth sensor's noise profile).
func InlierError(from, to Vec3, t Transform) (errSq float64, ok bool) {
	if !from.Valid() || !to.Valid() {
		return math.Inf(1), false
	}
	predicted := t.Apply(from)
	diff := predicted.Sub(to)
	variance := 1.0 + from.Z*from.Z*0.01 // grows with depth, isotropic
	return diff.Dot(diff) / variance, true
}

// IsInlier applies the shared inlier gate used throughout C5: the match must
// have valid endpoints and its error must be within maxDistM.
func IsInlier(from, to Vec3, t Transform, maxDistM float64) bool {
	e, ok := InlierError(from, to, t)
	if !ok {
		return false
	}
	return e <= maxDistM*maxDistM
}

// ComputeInliersAndError scores every candidate match under hypothesis T,
// returning the inlier subset and the RMSE over that subset (used by every
// RANSAC stage in C5 to compare candidates).
func ComputeInliersAndError(matches []Match, from, to *Frame, t Transform, maxDistM float64) (inliers []Match, rmse float64) {
	sumSq := 0.0
	for _, m := range matches {
		fp := from.Keypoints[m.FromIdx].Point3D
		tp := to.Keypoints[m.ToIdx].Point3D
		e, ok := InlierError(fp, tp, t)
		if !ok || e > maxDistM*maxDistM {
			continue
		}
		inliers = append(inliers, m)
		sumSq += e
	}
	if len(inliers) == 0 {
		return nil, math.Inf(1)
	}
	return inliers, math.Sqrt(sumSq / float64(len(inliers)))
}
