package slam

import "time"

// DescriptorKind distinguishes the two feature-descriptor families the
// tracker's matcher (C3) knows how to compare.
type DescriptorKind int

const (
	// DescriptorBinary is a fixed-length 256-bit (32-byte) binary descriptor,
	// as produced by an ORB-style extractor.
	DescriptorBinary DescriptorKind = iota
	// DescriptorFloat is a fixed-length float-vector descriptor, as produced
	// by a SURF-style extractor.
	DescriptorFloat
)

// Keypoint is a single 2D image observation with its 3D back-projection.
type Keypoint struct {
	U, V       float64 // pixel coordinates
	Binary     [32]byte
	Float      []float64
	Point3D    Vec3 // NaN when depth is invalid/zero (§3 invariant)
}

// HasValidDepth reports whether this keypoint's back-projection can be used
// by a geometric solver.
func (k Keypoint) HasValidDepth() bool {
	return k.Point3D.Valid()
}

// Intrinsics describes a pinhole camera plus the sensor's depth scale.
type Intrinsics struct {
	Fx, Fy, Cx, Cy float64
	Width, Height  int
	DepthScale     float64 // depth units per meter, e.g. 1000 for mm depth images
}

// Project maps a 3D point in the camera frame to pixel coordinates using
// the pinhole model. Used by PnP reprojection-error scoring and by the
// back-projection round-trip test in §8.
func (k Intrinsics) Project(p Vec3) (u, v float64, ok bool) {
	if p.Z <= 0 {
		return 0, 0, false
	}
	u = k.Fx*p.X/p.Z + k.Cx
	v = k.Fy*p.Y/p.Z + k.Cy
	return u, v, true
}

// Backproject maps a pixel + raw depth sample to a 3D point in the camera
// frame. Returns NaNVec3 when depth is zero (invalid), per §3.
func (k Intrinsics) Backproject(u, v float64, rawDepth float64) Vec3 {
	if rawDepth <= 0 {
		return NaNVec3
	}
	z := rawDepth / k.DepthScale
	x := (u - k.Cx) * z / k.Fx
	y := (v - k.Cy) * z / k.Fy
	return Vec3{X: x, Y: y, Z: z}
}

// SegmentedPlane is a plane detected in a single frame, in the frame's
// camera-local coordinates (prior to being associated with a landmark).
type SegmentedPlane struct {
	Coeffs   Plane
	Inliers  []int // indices into Frame.Keypoints or a raw point index space
	Centroid Vec3
	Hull     []Vec3 // boundary polygon, camera-local
}

// Frame is a single RGB-D (or point-cloud) observation: the per-observation
// container described in §3/§4.1.
type Frame struct {
	Timestamp time.Time
	Seq       uint64
	K         Intrinsics

	Descriptors DescriptorKind
	Keypoints   []Keypoint
	Planes      []SegmentedPlane

	Pose     Transform // in map frame; identity until written by C5/C9
	Valid    bool      // pose established
	Keyframe bool      // retained by back-end
}

// PlaneSegmentor is the opaque plane-segmentation collaborator (organized or
// line-based; out of scope per spec.md §1). It consumes raw depth/point data
// not modeled here and returns camera-local planes.
type PlaneSegmentor interface {
	Segment(depth []float64, k Intrinsics) []SegmentedPlane
}

// FeatureExtractor is the opaque keypoint/descriptor collaborator (ORB or
// SURF; out of scope per spec.md §1).
type FeatureExtractor interface {
	Extract(rgb []byte, depth []float64, k Intrinsics) []Keypoint
	Kind() DescriptorKind
}

// NewFrameFromImages constructs a Frame from an RGB image, depth image and
// intrinsics via the supplied extractor/segmentor (§4.1 contract #1-#3).
// Construction is synchronous; the returned frame is not yet valid or a
// keyframe — those flags are written later by the tracker/orchestrator.
func NewFrameFromImages(rgb []byte, depth []float64, k Intrinsics, extractor FeatureExtractor, segmentor PlaneSegmentor, seq uint64, ts time.Time) *Frame {
	f := &Frame{
		Timestamp:   ts,
		Seq:         seq,
		K:           k,
		Descriptors: extractor.Kind(),
		Keypoints:   extractor.Extract(rgb, depth, k),
		Planes:      segmentor.Segment(depth, k),
		Pose:        IdentityTransform(),
	}
	for i := range f.Planes {
		f.Planes[i].Coeffs = NewPlane(f.Planes[i].Coeffs.A, f.Planes[i].Coeffs.B, f.Planes[i].Coeffs.C, f.Planes[i].Coeffs.D)
	}
	return f
}

// NewFrameFromPointCloud constructs a Frame from a dense point cloud
// (already in camera-local coordinates) and intrinsics via the supplied
// segmentor. No 2D keypoints are produced by this path.
func NewFrameFromPointCloud(cloud []Vec3, k Intrinsics, segmentor PlaneSegmentor, seq uint64, ts time.Time) *Frame {
	depth := make([]float64, len(cloud))
	for i, p := range cloud {
		depth[i] = p.Z * k.DepthScale
	}
	f := &Frame{
		Timestamp: ts,
		Seq:       seq,
		K:         k,
		Planes:    segmentor.Segment(depth, k),
		Pose:      IdentityTransform(),
	}
	for i := range f.Planes {
		f.Planes[i].Coeffs = NewPlane(f.Planes[i].Coeffs.A, f.Planes[i].Coeffs.B, f.Planes[i].Coeffs.C, f.Planes[i].Coeffs.D)
	}
	return f
}

// ValidKeypointIndices returns the indices of a frame's keypoints whose depth
// is valid, per §3 invariant.
func ValidKeypointIndices(f *Frame) []int {
	idx := make([]int, 0, len(f.Keypoints))
	for i, kp := range f.Keypoints {
		if kp.HasValidDepth() {
			idx = append(idx, i)
		}
	}
	return idx
}
