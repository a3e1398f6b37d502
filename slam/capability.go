package slam

// This file provides minimal, swappable implementations of the C2
// collaborator interfaces (PlaneSegmentor, FeatureExtractor). The actual
// segmentation/extraction algorithms are out of scope (spec §1 Non-goals);
// these exist so the pipeline is runnable end-to-end against synthetic or
// pre-segmented input, and so tests can exercise C2-C9 without a real
// perception stack. Production deployments are expected to supply their own
// organized/line-based segmentor and ORB/SURF extractor behind these same
// interfaces (the "capability set" design note).

// NullSegmentor reports no planes for every frame, letting a pipeline be
// driven purely by point-only/ICP/PnP stages.
type NullSegmentor struct{}

// Segment implements PlaneSegmentor.
func (NullSegmentor) Segment(depth []float64, k Intrinsics) []SegmentedPlane { return nil }

// PrecomputedSegmentor replays a fixed list of planes for every call,
// useful for tests and for replaying an offline-segmented dataset.
type PrecomputedSegmentor struct {
	Planes []SegmentedPlane
}

// Segment implements PlaneSegmentor.
func (s PrecomputedSegmentor) Segment(depth []float64, k Intrinsics) []SegmentedPlane {
	return s.Planes
}

// NullExtractor reports no keypoints for every frame.
type NullExtractor struct {
	DescriptorKind DescriptorKind
}

// Extract implements FeatureExtractor.
func (e NullExtractor) Extract(rgb []byte, depth []float64, k Intrinsics) []Keypoint { return nil }

// Kind implements FeatureExtractor.
func (e NullExtractor) Kind() DescriptorKind { return e.DescriptorKind }

// PrecomputedExtractor replays a fixed list of keypoints for every call.
type PrecomputedExtractor struct {
	Keypoints []Keypoint
	Kind_     DescriptorKind
}

// Extract implements FeatureExtractor.
func (e PrecomputedExtractor) Extract(rgb []byte, depth []float64, k Intrinsics) []Keypoint {
	return e.Keypoints
}

// Kind implements FeatureExtractor.
func (e PrecomputedExtractor) Kind() DescriptorKind { return e.Kind_ }
