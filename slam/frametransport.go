package slam

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"log"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
)

// FrameMessage is the wire format a sensor-ingest publisher sends for each
// observation: a pre-segmented/pre-extracted frame (segmentation and feature
// extraction are out of scope, spec.md §1 Non-goals) plus an optional
// external odometry prior.
type FrameMessage struct {
	Seq           uint64          `json:"seq"`
	TimestampUnix int64           `json:"timestamp_unix_nano"`
	Intrinsics    IntrinsicsWire  `json:"intrinsics"`
	Descriptors   string          `json:"descriptor_kind"` // "binary" or "float"
	Keypoints     []KeypointWire  `json:"keypoints"`
	Planes        []PlaneWire     `json:"planes"`
	OdomPrior     *TransformWire  `json:"odom_prior,omitempty"`
}

// IntrinsicsWire mirrors Intrinsics for JSON transport.
type IntrinsicsWire struct {
	Fx         float64 `json:"fx"`
	Fy         float64 `json:"fy"`
	Cx         float64 `json:"cx"`
	Cy         float64 `json:"cy"`
	Width      int     `json:"width"`
	Height     int     `json:"height"`
	DepthScale float64 `json:"depth_scale"`
}

// KeypointWire mirrors Keypoint for JSON transport; binary descriptors are
// base64-encoded, float descriptors are a plain JSON array.
type KeypointWire struct {
	U      float64   `json:"u"`
	V      float64   `json:"v"`
	Binary string    `json:"binary,omitempty"`
	Float  []float64 `json:"float,omitempty"`
	X      float64   `json:"x"`
	Y      float64   `json:"y"`
	Z      float64   `json:"z"`
	Valid  bool      `json:"valid"`
}

// PlaneWire mirrors SegmentedPlane for JSON transport.
type PlaneWire struct {
	A    float64    `json:"a"`
	B    float64    `json:"b"`
	C    float64    `json:"c"`
	D    float64    `json:"d"`
	Hull []Vec3Wire `json:"hull"`
}

// Vec3Wire mirrors Vec3 for JSON transport.
type Vec3Wire struct {
	X, Y, Z float64
}

// TransformWire mirrors Transform for JSON transport: a 9-element row-major
// rotation matrix plus a translation.
type TransformWire struct {
	R [9]float64 `json:"r"`
	T Vec3Wire   `json:"t"`
}

func (t TransformWire) toTransform() Transform {
	var r Mat3
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			r[i][j] = t.R[i*3+j]
		}
	}
	return Transform{R: r, T: Vec3{X: t.T.X, Y: t.T.Y, Z: t.T.Z}}
}

// DecodeFrameMessage parses an MQTT payload into a Frame and its associated
// odometry prior (identity if the message carried none).
func DecodeFrameMessage(payload []byte) (*Frame, Transform, error) {
	var msg FrameMessage
	if err := json.Unmarshal(payload, &msg); err != nil {
		return nil, IdentityTransform(), fmt.Errorf("slam: decode frame message: %w", err)
	}

	kind := DescriptorBinary
	if msg.Descriptors == "float" {
		kind = DescriptorFloat
	}

	keypoints := make([]Keypoint, len(msg.Keypoints))
	for i, kw := range msg.Keypoints {
		kp := Keypoint{U: kw.U, V: kw.V, Float: kw.Float}
		if kw.Binary != "" {
			raw, err := base64.StdEncoding.DecodeString(kw.Binary)
			if err == nil && len(raw) == 32 {
				copy(kp.Binary[:], raw)
			}
		}
		if kw.Valid {
			kp.Point3D = Vec3{X: kw.X, Y: kw.Y, Z: kw.Z}
		} else {
			kp.Point3D = NaNVec3
		}
		keypoints[i] = kp
	}

	planes := make([]SegmentedPlane, len(msg.Planes))
	for i, pw := range msg.Planes {
		hull := make([]Vec3, len(pw.Hull))
		for j, h := range pw.Hull {
			hull[j] = Vec3{X: h.X, Y: h.Y, Z: h.Z}
		}
		planes[i] = SegmentedPlane{
			Coeffs: NewPlane(pw.A, pw.B, pw.C, pw.D),
			Hull:   hull,
		}
	}

	frame := &Frame{
		Timestamp:   time.Unix(0, msg.TimestampUnix),
		Seq:         msg.Seq,
		K:           Intrinsics{Fx: msg.Intrinsics.Fx, Fy: msg.Intrinsics.Fy, Cx: msg.Intrinsics.Cx, Cy: msg.Intrinsics.Cy, Width: msg.Intrinsics.Width, Height: msg.Intrinsics.Height, DepthScale: msg.Intrinsics.DepthScale},
		Descriptors: kind,
		Keypoints:   keypoints,
		Planes:      planes,
		Pose:        IdentityTransform(),
	}

	prior := IdentityTransform()
	if msg.OdomPrior != nil {
		prior = msg.OdomPrior.toTransform()
	}
	return frame, prior, nil
}

// FrameTransport subscribes to a single MQTT topic carrying FrameMessage
// payloads and feeds each decoded frame to a callback, grounded on the
// teacher's connect-with-retry MQTT client (mesh/mqtt.go) but built around a
// single frame topic rather than a per-vacuum topic map.
type FrameTransport struct {
	client mqtt.Client
	topic  string
	onFrame func(*Frame, Transform)
}

// NewFrameTransport dials broker and subscribes topic, invoking onFrame for
// every successfully decoded message.
func NewFrameTransport(broker, clientID, topic string, onFrame func(*Frame, Transform)) (*FrameTransport, error) {
	if broker == "" {
		return nil, fmt.Errorf("slam: mqtt broker address required")
	}
	ft := &FrameTransport{topic: topic, onFrame: onFrame}

	opts := mqtt.NewClientOptions()
	opts.AddBroker(broker)
	if clientID == "" {
		clientID = "planeslam"
	}
	opts.SetClientID(clientID)
	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(true)
	opts.SetConnectRetryInterval(5 * time.Second)
	opts.SetMaxReconnectInterval(60 * time.Second)
	opts.SetKeepAlive(60 * time.Second)
	opts.SetOrderMatters(false)
	opts.SetOnConnectHandler(ft.onConnect)
	opts.SetConnectionLostHandler(func(c mqtt.Client, err error) {
		log.Printf("[SLAM] mqtt connection lost: %v", err)
	})

	ft.client = mqtt.NewClient(opts)
	go ft.connectWithRetry()
	return ft, nil
}

func (ft *FrameTransport) connectWithRetry() {
	delay := 1 * time.Second
	for {
		log.Println("[SLAM] connecting to mqtt broker...")
		token := ft.client.Connect()
		if token.WaitTimeout(10*time.Second) && token.Error() == nil {
			log.Println("[SLAM] mqtt connected")
			return
		}
		log.Printf("[SLAM] mqtt connect failed, retrying in %v", delay)
		time.Sleep(delay)
		delay *= 2
		if delay > 60*time.Second {
			delay = 60 * time.Second
		}
	}
}

func (ft *FrameTransport) onConnect(client mqtt.Client) {
	token := client.Subscribe(ft.topic, 0, func(c mqtt.Client, m mqtt.Message) {
		frame, prior, err := DecodeFrameMessage(m.Payload())
		if err != nil {
			log.Printf("[SLAM] dropping malformed frame message: %v", err)
			return
		}
		ft.onFrame(frame, prior)
	})
	if token.WaitTimeout(5*time.Second) && token.Error() != nil {
		log.Printf("[SLAM] error subscribing to %s: %v", ft.topic, token.Error())
	} else {
		log.Printf("[SLAM] subscribed to %s", ft.topic)
	}
}

// Disconnect tears down the MQTT connection.
func (ft *FrameTransport) Disconnect() {
	ft.client.Disconnect(250)
}
