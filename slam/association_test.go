package slam

import "testing"

func TestAssociatePlanesMatchesNearestWithinGates(t *testing.T) {
	from := []Plane{NewPlane(0, 0, 1, -2)}
	to := []Plane{NewPlane(0, 0, 1, -2.05), NewPlane(1, 0, 0, -5)}

	pairs := AssociatePlanes(from, to, DefaultAssociationConfig())
	if len(pairs) != 1 || pairs[0].ToIdx != 0 {
		t.Fatalf("expected from[0] to match to[0], got %+v", pairs)
	}
}

func TestAssociatePlanesRejectsBeyondAngleGate(t *testing.T) {
	from := []Plane{NewPlane(0, 0, 1, -2)}
	to := []Plane{NewPlane(1, 0, 0, -2)} // 90 degrees off
	pairs := AssociatePlanes(from, to, DefaultAssociationConfig())
	if len(pairs) != 0 {
		t.Fatalf("expected no match across a 90-degree gap, got %+v", pairs)
	}
}

func TestAssociatePlanesDoesNotDoubleAssignTarget(t *testing.T) {
	from := []Plane{NewPlane(0, 0, 1, -2), NewPlane(0, 0, 1, -2.01)}
	to := []Plane{NewPlane(0, 0, 1, -2)}
	pairs := AssociatePlanes(from, to, DefaultAssociationConfig())
	if len(pairs) != 1 {
		t.Fatalf("expected only one of the two competing planes to claim the single target, got %d pairs", len(pairs))
	}
}

func TestAssociateKeypointRejectsOutOfBounds(t *testing.T) {
	frame := &Frame{K: Intrinsics{Fx: 500, Fy: 500, Cx: 320, Cy: 240, Width: 640, Height: 480}}
	landmark := Vec3{X: 100, Y: 100, Z: 1} // projects far outside the image
	_, ok := AssociateKeypoint(landmark, KeypointDescriptor{}, frame, IdentityTransform(), DefaultAssociationConfig())
	if ok {
		t.Fatal("expected an out-of-frame landmark projection to be rejected")
	}
}

func TestAssociateKeypointMatchesClosestDescriptor(t *testing.T) {
	frame := &Frame{
		K: Intrinsics{Fx: 500, Fy: 500, Cx: 320, Cy: 240, Width: 640, Height: 480},
		Keypoints: []Keypoint{
			{Point3D: Vec3{X: 0, Y: 0, Z: 2}, Binary: [32]byte{0xFF}},
			{Point3D: Vec3{X: 0, Y: 0, Z: 2}, Binary: [32]byte{}},
		},
	}
	landmark := Vec3{X: 0, Y: 0, Z: 2}
	desc := KeypointDescriptor{Kind: DescriptorBinary, Binary: [32]byte{}}
	idx, ok := AssociateKeypoint(landmark, desc, frame, IdentityTransform(), DefaultAssociationConfig())
	if !ok || idx != 1 {
		t.Fatalf("expected exact-match keypoint (index 1) to win, got idx=%d ok=%v", idx, ok)
	}
}
