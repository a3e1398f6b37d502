package slam

import (
	"encoding/base64"
	"encoding/json"
	"testing"
)

func TestDecodeFrameMessageRoundTripsBinaryKeypointAndPlanes(t *testing.T) {
	raw := make([]byte, 32)
	for i := range raw {
		raw[i] = byte(i)
	}
	msg := FrameMessage{
		Seq:           7,
		TimestampUnix: 123456,
		Intrinsics:    IntrinsicsWire{Fx: 525, Fy: 525, Cx: 320, Cy: 240, Width: 640, Height: 480, DepthScale: 1000},
		Descriptors:   "binary",
		Planes: []PlaneWire{
			{A: 0, B: 0, C: 1, D: -2, Hull: []Vec3Wire{{X: 0, Y: 0, Z: 2}, {X: 1, Y: 0, Z: 2}, {X: 0, Y: 1, Z: 2}}},
		},
		Keypoints: []KeypointWire{
			{U: 100, V: 150, Binary: base64.StdEncoding.EncodeToString(raw), X: 1, Y: 2, Z: 3, Valid: true},
		},
	}
	data, err := json.Marshal(msg)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	frame, prior, err := DecodeFrameMessage(data)
	if err != nil {
		t.Fatalf("DecodeFrameMessage: %v", err)
	}
	if prior != IdentityTransform() {
		t.Fatalf("expected identity prior when OdomPrior is absent, got %+v", prior)
	}
	if frame.Seq != 7 {
		t.Fatalf("expected seq 7, got %d", frame.Seq)
	}
	if len(frame.Planes) != 1 || frame.Planes[0].Coeffs.D < 0 {
		t.Fatalf("expected one canonicalized plane, got %+v", frame.Planes)
	}
	if len(frame.Keypoints) != 1 {
		t.Fatalf("expected one keypoint, got %d", len(frame.Keypoints))
	}
	kp := frame.Keypoints[0]
	for i, b := range raw {
		if kp.Binary[i] != b {
			t.Fatalf("expected binary descriptor to round-trip at byte %d, got %v", i, kp.Binary)
		}
	}
	if !kp.HasValidDepth() {
		t.Fatal("expected a valid keypoint to carry a finite Point3D")
	}
}

func TestDecodeFrameMessageMarksInvalidDepthAsNaN(t *testing.T) {
	msg := FrameMessage{
		Keypoints: []KeypointWire{{U: 1, V: 2, Valid: false}},
	}
	data, _ := json.Marshal(msg)
	frame, _, err := DecodeFrameMessage(data)
	if err != nil {
		t.Fatalf("DecodeFrameMessage: %v", err)
	}
	if frame.Keypoints[0].HasValidDepth() {
		t.Fatal("expected an invalid keypoint to decode to a NaN point")
	}
}

func TestDecodeFrameMessageAppliesOdomPrior(t *testing.T) {
	msg := FrameMessage{
		OdomPrior: &TransformWire{
			R: [9]float64{1, 0, 0, 0, 1, 0, 0, 0, 1},
			T: Vec3Wire{X: 0.3, Y: 0, Z: 0},
		},
	}
	data, _ := json.Marshal(msg)
	_, prior, err := DecodeFrameMessage(data)
	if err != nil {
		t.Fatalf("DecodeFrameMessage: %v", err)
	}
	if !almostEqual(prior.T.X, 0.3, 1e-9) {
		t.Fatalf("expected the decoded odom prior translation to carry through, got %+v", prior)
	}
}

func TestDecodeFrameMessageRejectsInvalidJSON(t *testing.T) {
	if _, _, err := DecodeFrameMessage([]byte("not json")); err == nil {
		t.Fatal("expected malformed JSON to fail to decode")
	}
}
