package slam

import "math"

// AssociationConfig bundles the gating thresholds used by both plane and
// keypoint data association (§4.5), and by the frame-to-frame plane
// correspondence search the tracker's plane-only RANSAC stage relies on
// (§4.4 stage 1 — "via C7").
type AssociationConfig struct {
	DirThresholdDeg float64 // plane normal angular gate, default 15
	DisThreshold    float64 // plane positional gate (m)
	DepthGate       float64 // keypoint reprojection depth gate (m)
	DescriptorMax   float64 // keypoint descriptor distance gate
}

// DefaultAssociationConfig mirrors the spec's dir_threshold/dis_threshold
// defaults (§4.5).
func DefaultAssociationConfig() AssociationConfig {
	return AssociationConfig{
		DirThresholdDeg: 15,
		DisThreshold:    0.1,
		DepthGate:       0.3,
		DescriptorMax:   float64(MatchRejectHamming),
	}
}

// PlanePair is a correspondence between an index into a "from" plane set and
// an index into a "to" plane set, both expressed in a common candidate
// frame.
type PlanePair struct {
	FromIdx, ToIdx int
	AngleDeg       float64
	PositionDist   float64
}

// AssociatePlanes finds, for each plane in "from", the best-matching plane
// in "to" by smallest angular normal difference (gated at DirThresholdDeg),
// breaking ties by smallest positional distance (gated at DisThreshold)
// (§4.5). Both slices must already be expressed in the same frame — callers
// project landmarks (or the previous frame's planes) through the candidate
// pose before calling this.
func AssociatePlanes(from, to []Plane, cfg AssociationConfig) []PlanePair {
	used := make(map[int]bool, len(to))
	var pairs []PlanePair

	for i, fp := range from {
		bestJ := -1
		bestAngle := math.Inf(1)
		bestDist := math.Inf(1)
		for j, tp := range to {
			if used[j] {
				continue
			}
			angle := AngleBetweenNormals(fp, tp)
			if angle > cfg.DirThresholdDeg {
				continue
			}
			dist := math.Abs(fp.D - tp.D)
			if dist > cfg.DisThreshold {
				continue
			}
			if angle < bestAngle || (angle == bestAngle && dist < bestDist) {
				bestJ, bestAngle, bestDist = j, angle, dist
			}
		}
		if bestJ >= 0 {
			pairs = append(pairs, PlanePair{FromIdx: i, ToIdx: bestJ, AngleDeg: bestAngle, PositionDist: bestDist})
			used[bestJ] = true
		}
	}
	return pairs
}

// AssociateKeypoint projects a landmark's map-frame position into a frame
// via the candidate pose, rejects it if outside the image bounds or beyond
// the depth gate, and among spatially gated candidate keypoints picks the
// one with smallest descriptor distance at or below DescriptorMax (§4.5).
func AssociateKeypoint(landmarkPos Vec3, desc KeypointDescriptor, frame *Frame, framePose Transform, cfg AssociationConfig) (idx int, ok bool) {
	// Map the landmark into the frame's local camera coordinates.
	local := framePose.Inverse().Apply(landmarkPos)
	u, v, proj := frame.K.Project(local)
	if !proj || u < 0 || v < 0 || u >= float64(frame.K.Width) || v >= float64(frame.K.Height) {
		return 0, false
	}

	bestIdx := -1
	bestDist := math.Inf(1)
	for i, kp := range frame.Keypoints {
		if !kp.HasValidDepth() {
			continue
		}
		if math.Abs(kp.Point3D.Z-local.Z) > cfg.DepthGate {
			continue
		}
		var d float64
		switch desc.Kind {
		case DescriptorBinary:
			d = float64(HammingDistance(desc.Binary, kp.Binary))
		case DescriptorFloat:
			d = l2Distance(desc.Float, kp.Float)
		}
		if d > cfg.DescriptorMax {
			continue
		}
		if d < bestDist {
			bestIdx, bestDist = i, d
		}
	}
	if bestIdx < 0 {
		return 0, false
	}
	return bestIdx, true
}

// KeypointDescriptor is a landmark's representative descriptor, carried
// alongside its 3D position for re-association against future frames.
type KeypointDescriptor struct {
	Kind   DescriptorKind
	Binary [32]byte
	Float  []float64
}
