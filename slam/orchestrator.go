package slam

import (
	"fmt"
	"log"
	"math/rand"
	"sync"
	"time"

	"github.com/google/uuid"
)

// TrackingState is the per-frame state machine named in §4.7.
type TrackingState int

const (
	StateBootstrap TrackingState = iota
	StateTracking
	StateLost
)

func (s TrackingState) String() string {
	switch s {
	case StateBootstrap:
		return "bootstrap"
	case StateTracking:
		return "tracking"
	case StateLost:
		return "lost"
	default:
		return "unknown"
	}
}

// Orchestrator is the C9 per-frame pipeline: estimate motion, decide
// keyframe, update landmarks, optimize, publish pose (§4.7). It owns the
// landmark store exclusively (§5) and is not safe for concurrent frame
// processing — the sensor-ingest worker pool (see IngestPool) drains frames
// through it one at a time to preserve causal ordering.
type Orchestrator struct {
	cfg Config

	mu    sync.Mutex
	rng   *rand.Rand
	state TrackingState

	landmarks *LandmarkStore
	graph     *Graph

	prevFrame       *Frame
	lastKeyframePose Transform
	lastKeyframeTime time.Time
	keyframeCount    int

	publisher *Publisher
}

// NewOrchestrator wires a fresh landmark store and pose graph behind the
// given configuration and RNG seed.
func NewOrchestrator(cfg Config, seed int64) *Orchestrator {
	lm := NewLandmarkStore()
	return &Orchestrator{
		cfg:              cfg,
		rng:              rand.New(rand.NewSource(seed)),
		state:            StateBootstrap,
		landmarks:        lm,
		graph:            NewGraph(lm),
		lastKeyframePose: IdentityTransform(),
		publisher:        NewPublisher(),
	}
}

// State returns the orchestrator's current tracking state.
func (o *Orchestrator) State() TrackingState {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.state
}

// FrameResult summarizes what happened when ProcessFrame ran.
type FrameResult struct {
	State        TrackingState
	AbsolutePose Transform
	Keyframe     bool
	PoseID       PoseID
	Provisional  bool
	Stage        string
	Skipped      bool
	Reason       string
}

// ProcessFrame runs one pass of the §4.7 state machine for a new frame,
// with an optional external odometry prior transform. The prior seeds
// TrackFrames (plane correspondence search and ICP start) and is the
// fallback motion when tracking fails with force_odom set; bootstrap does not
// use it.
func (o *Orchestrator) ProcessFrame(frame *Frame, odomPrior Transform) FrameResult {
	o.mu.Lock()
	defer o.mu.Unlock()

	switch o.state {
	case StateBootstrap:
		return o.tryBootstrap(frame)
	default:
		return o.tryTrack(frame, odomPrior)
	}
}

func (o *Orchestrator) tryBootstrap(frame *Frame) FrameResult {
	if len(frame.Planes) < o.cfg.Orchestrator.MinBootstrapPlanes &&
		len(ValidKeypointIndices(frame)) < o.cfg.Orchestrator.MinBootstrapKeypoints {
		log.Printf("[SLAM] bootstrap: frame %d insufficient observations, waiting", frame.Seq)
		return FrameResult{State: StateBootstrap, Skipped: true, Reason: "insufficient bootstrap observations"}
	}

	frame.Pose = IdentityTransform()
	frame.Valid = true
	frame.Keyframe = true
	o.prevFrame = frame
	o.lastKeyframePose = IdentityTransform()
	o.lastKeyframeTime = frame.Timestamp
	o.state = StateTracking

	assoc := o.associate(frame, IdentityTransform())
	poseID := o.insertKeyframe(frame, IdentityTransform(), assoc)
	log.Printf("[SLAM] bootstrap complete at frame %d, pose id %d", frame.Seq, poseID)

	return FrameResult{State: StateTracking, AbsolutePose: IdentityTransform(), Keyframe: true, PoseID: poseID, Stage: "bootstrap"}
}

func (o *Orchestrator) tryTrack(frame *Frame, odomPrior Transform) FrameResult {
	tcfg := o.cfg.ToTrackerConfig()

	result := TrackFrames(o.prevFrame, frame, odomPrior, tcfg, o.rng)

	if !result.Valid {
		if o.cfg.Orchestrator.ForceOdom {
			log.Printf("[SLAM] frame %d: cascade failed, falling back to odometry prior", frame.Seq)
			result = TrackResult{Transform: odomPrior, Valid: true, Stage: "odom-fallback"}
		} else {
			o.state = StateLost
			log.Printf("[SLAM] frame %d: cascade failed, state -> lost", frame.Seq)
			return FrameResult{State: StateLost, Skipped: true, Reason: "motion estimation failed"}
		}
	}

	o.state = StateTracking

	absolutePose := Compose(o.lastKeyframePose, result.Transform)
	frame.Pose = absolutePose
	frame.Valid = true

	assoc := o.associate(frame, absolutePose)

	isKeyframe := o.isKeyframeDecision(result.Transform, assoc.newLandmarkCount, frame.Timestamp)

	fr := FrameResult{
		State:        StateTracking,
		AbsolutePose: absolutePose,
		Stage:        result.Stage,
	}

	if isKeyframe {
		poseID := o.insertKeyframe(frame, absolutePose, assoc)
		fr.Keyframe = true
		fr.PoseID = poseID
		fr.Provisional = o.graph.IsProvisional(poseID)
		if optimized, ok := o.graph.GetOptimizedPose(poseID); ok {
			fr.AbsolutePose = optimized
			o.lastKeyframePose = optimized
		} else {
			o.lastKeyframePose = absolutePose
		}
		o.lastKeyframeTime = frame.Timestamp
		o.keyframeCount++
		frame.Keyframe = true
	}

	o.publisher.SetMapToOdom(Compose(fr.AbsolutePose, result.Transform.Inverse()).Planar())
	o.prevFrame = frame
	return fr
}

// associationOutcome is the one-time result of running C7 data association
// for a frame: the landmark id matched or created for every plane and every
// valid keypoint, kept so a keyframe insertion can reuse them directly
// instead of re-running association (and re-folding each observation into
// the §3 incremental weighted mean a second time).
type associationOutcome struct {
	planeIDs         []uuid.UUID
	keypointIDs      []uuid.UUID
	validKeypointIdx []int
	newLandmarkCount int
}

// associate runs C7 data association for every plane and valid keypoint in
// the frame against the landmark store exactly once, committing matches and
// creating landmarks for unmatched observations, and returns the ids
// assigned plus the count of observations that produced a brand-new
// landmark (the keyframe criterion (c) input).
func (o *Orchestrator) associate(frame *Frame, pose Transform) associationOutcome {
	observedPlanes := make([]Plane, len(frame.Planes))
	hulls := make([][]Vec3, len(frame.Planes))
	for i, p := range frame.Planes {
		observedPlanes[i] = TransformPlane(p.Coeffs, pose)
		hulls[i] = p.Hull
	}

	existingPlaneCount := len(o.landmarks.AllPlanes())
	planeIDs := o.landmarks.AssociatePlanes(observedPlanes, hulls, o.keyframeCount64(), o.cfg.Association.toAssociationConfig())
	newPlaneCount := len(o.landmarks.AllPlanes()) - existingPlaneCount

	validIdx := ValidKeypointIndices(frame)
	positions := make([]Vec3, len(validIdx))
	descriptors := make([]KeypointDescriptor, len(validIdx))
	for i, idx := range validIdx {
		kp := frame.Keypoints[idx]
		positions[i] = pose.Apply(kp.Point3D)
		descriptors[i] = KeypointDescriptor{Kind: frame.Descriptors, Binary: kp.Binary, Float: kp.Float}
	}

	existingKpCount := len(o.landmarks.AllKeypoints())
	keypointIDs := o.landmarks.AssociateKeypoints(positions, descriptors, frame, pose, o.keyframeCount64(), o.cfg.Association.toAssociationConfig())
	newKpCount := len(o.landmarks.AllKeypoints()) - existingKpCount

	return associationOutcome{
		planeIDs:         planeIDs,
		keypointIDs:      keypointIDs,
		validKeypointIdx: validIdx,
		newLandmarkCount: newPlaneCount + newKpCount,
	}
}

func (o *Orchestrator) keyframeCount64() uint64 { return uint64(o.keyframeCount) }

// isKeyframeDecision implements the §4.5 disjunction: relative rotation,
// relative translation, unmatched-observation count, or elapsed time since
// the last keyframe.
func (o *Orchestrator) isKeyframeDecision(relative Transform, unmatched int, now time.Time) bool {
	kf := o.cfg.Keyframe
	if relative.RotationAngleDeg() > kf.RotThresholdDeg {
		return true
	}
	if relative.TranslationNorm() > kf.TransThreshold {
		return true
	}
	if unmatched > kf.NewLandmarkThreshold {
		return true
	}
	if o.lastKeyframeTime.IsZero() {
		return true
	}
	if now.Sub(o.lastKeyframeTime) > kf.DtThreshold {
		return true
	}
	return false
}

// insertKeyframe builds the C8 observation set for this frame from the
// landmark ids `associate` already assigned it and inserts it into the
// graph. It does not re-run association: doing so would match this frame's
// observations against the landmarks it just created/updated and fold each
// one into the §3 incremental weighted mean a second time.
func (o *Orchestrator) insertKeyframe(frame *Frame, pose Transform, assoc associationOutcome) PoseID {
	obs := KeyframeObservations{}

	for i, id := range assoc.planeIDs {
		obs.Planes = append(obs.Planes, PlaneObservation{LandmarkID: id, Measured: frame.Planes[i].Coeffs})
	}
	for i, id := range assoc.keypointIDs {
		obs.Points = append(obs.Points, PointObservation{LandmarkID: id, Measured: frame.Keypoints[assoc.validKeypointIdx[i]].Point3D})
	}

	return o.graph.InsertKeyframe(pose, obs)
}

// Landmarks exposes the owned landmark store for read-only snapshot access
// (e.g. persistence dumps, the viewer).
func (o *Orchestrator) Landmarks() *LandmarkStore { return o.landmarks }

// Graph exposes the owned pose graph for read-only snapshot access.
func (o *Orchestrator) Graph() *Graph { return o.graph }

// Publisher exposes the map->odom handoff (§5).
func (o *Orchestrator) Publisher() *Publisher { return o.publisher }

func (a AssociationConfigYAML) toAssociationConfig() AssociationConfig {
	return AssociationConfig{
		DirThresholdDeg: a.DirThresholdDeg,
		DisThreshold:    a.DisThreshold,
		DepthGate:       a.DepthGate,
		DescriptorMax:   a.DescriptorMax,
	}
}

// ErrFrameSkipped is a sentinel for a frame that could not be processed. No
// function in this package returns it; ProcessFrame reports skipped frames
// through FrameResult.Skipped and FrameResult.Reason.
var ErrFrameSkipped = fmt.Errorf("slam: frame skipped")
