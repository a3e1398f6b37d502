package slam

import (
	"testing"

	"github.com/google/uuid"
)

func TestAssociatePlanesCreatesNewLandmarkOnFirstObservation(t *testing.T) {
	s := NewLandmarkStore()
	coeffs := []Plane{NewPlane(0, 0, 1, -2)}
	hulls := [][]Vec3{{{X: -1, Y: -1, Z: 2}, {X: 1, Y: -1, Z: 2}, {X: 1, Y: 1, Z: 2}}}

	ids := s.AssociatePlanes(coeffs, hulls, 0, DefaultAssociationConfig())
	if len(ids) != 1 || ids[0] == uuid.Nil {
		t.Fatalf("expected one new landmark id, got %v", ids)
	}
	all := s.AllPlanes()
	if len(all) != 1 {
		t.Fatalf("expected 1 stored plane landmark, got %d", len(all))
	}
}

func TestAssociatePlanesMatchesRepeatedObservation(t *testing.T) {
	s := NewLandmarkStore()
	coeffs := NewPlane(0, 0, 1, -2)
	hull := []Vec3{{X: -1, Y: -1, Z: 2}, {X: 1, Y: -1, Z: 2}, {X: 1, Y: 1, Z: 2}}

	ids1 := s.AssociatePlanes([]Plane{coeffs}, [][]Vec3{hull}, 0, DefaultAssociationConfig())
	ids2 := s.AssociatePlanes([]Plane{coeffs}, [][]Vec3{hull}, 1, DefaultAssociationConfig())

	if ids1[0] != ids2[0] {
		t.Fatalf("expected the second observation of the same plane to match the first landmark, got %v vs %v", ids1[0], ids2[0])
	}
	lm, ok := s.Plane(ids2[0])
	if !ok || lm.ObservationCount != 2 {
		t.Fatalf("expected observation count 2 after a repeated match, got %+v", lm)
	}
}

func TestAssociateKeypointsCreatesThenMatches(t *testing.T) {
	s := NewLandmarkStore()
	desc := KeypointDescriptor{Binary: [32]byte{1, 2, 3, 4}}
	frame := &Frame{
		K: Intrinsics{Fx: 500, Fy: 500, Cx: 320, Cy: 240, Width: 640, Height: 480},
		Keypoints: []Keypoint{
			{U: 320, V: 240, Binary: [32]byte{1, 2, 3, 4}, Point3D: Vec3{X: 0, Y: 0, Z: 2}},
		},
	}
	pose := IdentityTransform()
	pos := Vec3{X: 0, Y: 0, Z: 2}

	ids1 := s.AssociateKeypoints([]Vec3{pos}, []KeypointDescriptor{desc}, frame, pose, 0, DefaultAssociationConfig())
	if len(ids1) != 1 || ids1[0] == uuid.Nil {
		t.Fatalf("expected a new keypoint landmark, got %v", ids1)
	}

	ids2 := s.AssociateKeypoints([]Vec3{pos}, []KeypointDescriptor{desc}, frame, pose, 1, DefaultAssociationConfig())
	if ids1[0] != ids2[0] {
		t.Fatalf("expected the same observation to re-match the existing landmark, got %v vs %v", ids1[0], ids2[0])
	}
}

func TestMergePlaneLandmarksRetiresLaterIntoEarlier(t *testing.T) {
	s := NewLandmarkStore()
	cfg := DefaultAssociationConfig()
	idsA := s.AssociatePlanes([]Plane{NewPlane(0, 0, 1, -2)}, [][]Vec3{{{X: 0, Y: 0, Z: 2}}}, 0, cfg)
	idsB := s.AssociatePlanes([]Plane{NewPlane(1, 0, 0, -1)}, [][]Vec3{{{X: 1, Y: 0, Z: 0}}}, 1, cfg)

	a, b := idsA[0], idsB[0]
	s.MergePlaneLandmarks(a, b)

	resolvedA := s.ResolvePlane(a)
	resolvedB := s.ResolvePlane(b)
	if resolvedA != resolvedB {
		t.Fatalf("expected both ids to resolve to the same surviving landmark, got %v vs %v", resolvedA, resolvedB)
	}

	all := s.AllPlanes()
	if len(all) != 1 {
		t.Fatalf("expected only 1 valid plane landmark after the merge, got %d", len(all))
	}
}

func TestResolvePlaneIsIdentityWithoutForwarding(t *testing.T) {
	s := NewLandmarkStore()
	id := uuid.New()
	if got := s.ResolvePlane(id); got != id {
		t.Fatalf("expected an unknown id to resolve to itself, got %v", got)
	}
}

func TestRetirePlaneAndKeypointExcludeFromAllX(t *testing.T) {
	s := NewLandmarkStore()
	ids := s.AssociatePlanes([]Plane{NewPlane(0, 0, 1, -2)}, [][]Vec3{{{X: 0, Y: 0, Z: 2}}}, 0, DefaultAssociationConfig())
	s.RetirePlane(ids[0])
	if len(s.AllPlanes()) != 0 {
		t.Fatal("expected a retired plane landmark to be excluded from AllPlanes")
	}

	frame := &Frame{K: Intrinsics{Fx: 500, Fy: 500, Cx: 320, Cy: 240, Width: 640, Height: 480}}
	kids := s.AssociateKeypoints([]Vec3{{X: 0, Y: 0, Z: 2}}, []KeypointDescriptor{{}}, frame, IdentityTransform(), 0, DefaultAssociationConfig())
	s.RetireKeypoint(kids[0])
	if len(s.AllKeypoints()) != 0 {
		t.Fatal("expected a retired keypoint landmark to be excluded from AllKeypoints")
	}
}
