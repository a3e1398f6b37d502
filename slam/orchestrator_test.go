package slam

import (
	"testing"
	"time"
)

func threePlaneFrameSeq(pose Transform, seq uint64, ts time.Time) *Frame {
	f := threePlaneFrame(pose)
	f.Seq = seq
	f.Timestamp = ts
	return f
}

func TestProcessFrameBootstrapsThenTracks(t *testing.T) {
	cfg := DefaultConfig()
	o := NewOrchestrator(cfg, 1)

	base := time.Unix(1000, 0)
	first := threePlaneFrameSeq(IdentityTransform(), 0, base)
	res := o.ProcessFrame(first, IdentityTransform())
	if res.State != StateTracking || !res.Keyframe {
		t.Fatalf("expected bootstrap frame to produce a tracking keyframe, got %+v", res)
	}
	if o.State() != StateTracking {
		t.Fatalf("expected orchestrator state to be tracking, got %v", o.State())
	}

	moved := Transform{R: Identity3(), T: Vec3{X: 0.05}}
	second := threePlaneFrameSeq(moved, 1, base.Add(time.Second))
	res2 := o.ProcessFrame(second, IdentityTransform())
	if res2.State != StateTracking {
		t.Fatalf("expected second frame to keep tracking, got %+v", res2)
	}
}

func TestProcessFrameBootstrapWaitsOnInsufficientObservations(t *testing.T) {
	cfg := DefaultConfig()
	o := NewOrchestrator(cfg, 1)

	empty := &Frame{Seq: 0, Timestamp: time.Unix(0, 0)}
	res := o.ProcessFrame(empty, IdentityTransform())
	if !res.Skipped || o.State() != StateBootstrap {
		t.Fatalf("expected an empty frame to be skipped and stay in bootstrap, got %+v state=%v", res, o.State())
	}
}

func TestProcessFrameFallsBackToOdomWhenForced(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Orchestrator.ForceOdom = true
	o := NewOrchestrator(cfg, 1)

	base := time.Unix(1000, 0)
	first := threePlaneFrameSeq(IdentityTransform(), 0, base)
	o.ProcessFrame(first, IdentityTransform())

	empty := &Frame{Seq: 1, Timestamp: base.Add(time.Second)}
	prior := Transform{R: Identity3(), T: Vec3{X: 0.1}}
	res := o.ProcessFrame(empty, prior)
	if res.Skipped || res.Stage != "odom-fallback" {
		t.Fatalf("expected a failed cascade with force_odom set to fall back to the odometry prior, got %+v", res)
	}
	if o.State() != StateTracking {
		t.Fatalf("expected state to remain tracking after an odom fallback, got %v", o.State())
	}
}

func TestProcessFrameGoesLostWithoutForceOdom(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Orchestrator.ForceOdom = false
	o := NewOrchestrator(cfg, 1)

	base := time.Unix(1000, 0)
	first := threePlaneFrameSeq(IdentityTransform(), 0, base)
	o.ProcessFrame(first, IdentityTransform())

	empty := &Frame{Seq: 1, Timestamp: base.Add(time.Second)}
	res := o.ProcessFrame(empty, IdentityTransform())
	if !res.Skipped || o.State() != StateLost {
		t.Fatalf("expected a failed cascade with no forced odometry to go lost, got %+v state=%v", res, o.State())
	}
}

func TestIsKeyframeDecisionTriggersOnFirstFrame(t *testing.T) {
	cfg := DefaultConfig()
	o := NewOrchestrator(cfg, 1)
	if !o.isKeyframeDecision(IdentityTransform(), 0, time.Unix(0, 0)) {
		t.Fatal("expected the very first frame (zero lastKeyframeTime) to always be a keyframe")
	}
}

func TestIsKeyframeDecisionTriggersOnLargeRotation(t *testing.T) {
	cfg := DefaultConfig()
	o := NewOrchestrator(cfg, 1)
	o.lastKeyframeTime = time.Unix(1000, 0)
	rel := Transform{R: Mat3{{0, -1, 0}, {1, 0, 0}, {0, 0, 1}}}
	if !o.isKeyframeDecision(rel, 0, time.Unix(1000, 1)) {
		t.Fatal("expected a 90-degree rotation to trigger a keyframe")
	}
}

func TestIsKeyframeDecisionStaysFalseWhenNothingChanged(t *testing.T) {
	cfg := DefaultConfig()
	o := NewOrchestrator(cfg, 1)
	now := time.Unix(1000, 0)
	o.lastKeyframeTime = now
	if o.isKeyframeDecision(IdentityTransform(), 0, now.Add(time.Millisecond)) {
		t.Fatal("expected no motion, no new landmarks, and negligible elapsed time to not trigger a keyframe")
	}
}
