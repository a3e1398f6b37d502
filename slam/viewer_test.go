package slam

import (
	"bytes"
	"strings"
	"testing"

	"github.com/google/uuid"
)

func TestBoundsDefaultsWhenEmpty(t *testing.T) {
	v := NewViewerSnapshot(nil, nil)
	minX, minY, maxX, maxY := v.bounds()
	if minX != 0 || minY != 0 || maxX != 1 || maxY != 1 {
		t.Fatalf("expected default bounds (0,0,1,1), got (%v,%v,%v,%v)", minX, minY, maxX, maxY)
	}
}

func TestBoundsCoversPlaneHullsAndTrajectory(t *testing.T) {
	planes := map[uuid.UUID]PlaneLandmark{
		uuid.New(): {Hull: []Vec3{{X: -2, Y: -1}, {X: 3, Y: 4}}},
	}
	traj := []Transform{{R: Identity3(), T: Vec3{X: 5, Y: -5}}}
	v := NewViewerSnapshot(planes, traj)
	minX, minY, maxX, maxY := v.bounds()
	if minX != -2 || minY != -5 || maxX != 5 || maxY != 4 {
		t.Fatalf("expected bounds to cover both hull and trajectory extents, got (%v,%v,%v,%v)", minX, minY, maxX, maxY)
	}
}

func TestRenderToSVGProducesNonEmptySVG(t *testing.T) {
	planes := map[uuid.UUID]PlaneLandmark{
		uuid.New(): {Hull: []Vec3{{X: 0, Y: 0}, {X: 1, Y: 0}, {X: 1, Y: 1}}},
	}
	v := NewViewerSnapshot(planes, []Transform{IdentityTransform()})

	var buf bytes.Buffer
	if err := v.RenderToSVG(&buf); err != nil {
		t.Fatalf("RenderToSVG: %v", err)
	}
	if !strings.Contains(buf.String(), "<svg") {
		t.Fatalf("expected SVG output to contain an <svg> tag, got %q", buf.String())
	}
}

func TestRenderToPNGProducesNonEmptyOutput(t *testing.T) {
	v := NewViewerSnapshot(nil, nil)
	var buf bytes.Buffer
	if err := v.RenderToPNG(&buf); err != nil {
		t.Fatalf("RenderToPNG: %v", err)
	}
	if buf.Len() == 0 {
		t.Fatal("expected non-empty PNG output")
	}
}
