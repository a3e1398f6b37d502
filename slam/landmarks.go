package slam

import (
	"sync"

	"github.com/google/uuid"
)

// PlaneLandmark is a persistent plane landmark (§3): a stable id, averaged
// coefficients, cumulative hull, and the set of keyframes that observed it.
type PlaneLandmark struct {
	ID               uuid.UUID
	SeqID            uint64 // creation order, used to break merge ties
	Coeffs           Plane
	Hull             []Vec3
	ObservationCount int
	Keyframes        map[uint64]bool
	Valid            bool
	ForwardTo        *uuid.UUID // set when retired by a merge
}

// KeypointLandmark is a persistent 3D point landmark (§3).
type KeypointLandmark struct {
	ID               uuid.UUID
	SeqID            uint64
	Position         Vec3
	Descriptor       KeypointDescriptor
	CovarianceScale  float64
	ObservationCount int
	Keyframes        map[uint64]bool
	Valid            bool
	ForwardTo        *uuid.UUID
}

// LandmarkStore owns every plane and keypoint landmark. Per §3/§5 it is
// exclusively owned and mutated by the SLAM orchestrator (C9); the mutex
// exists so read-only callers (persistence dumps, the viewer snapshot) can
// be run concurrently with the hot-path tracking goroutine.
type LandmarkStore struct {
	mu sync.RWMutex

	planes    map[uuid.UUID]*PlaneLandmark
	keypoints map[uuid.UUID]*KeypointLandmark

	nextSeq uint64
}

// NewLandmarkStore creates an empty landmark store.
func NewLandmarkStore() *LandmarkStore {
	return &LandmarkStore{
		planes:    make(map[uuid.UUID]*PlaneLandmark),
		keypoints: make(map[uuid.UUID]*KeypointLandmark),
	}
}

func (s *LandmarkStore) nextSeqID() uint64 {
	s.nextSeq++
	return s.nextSeq
}

// AssociatePlanes matches observed planes (already expressed in the map
// frame, alongside their camera-local hulls) against existing valid plane
// landmarks, updates matched landmarks with an incremental weighted mean,
// and creates a new landmark for every unmatched observation. It returns the
// landmark id observed by each input plane, in input order.
func (s *LandmarkStore) AssociatePlanes(observed []Plane, hulls [][]Vec3, keyframeID uint64, cfg AssociationConfig) []uuid.UUID {
	s.mu.Lock()
	defer s.mu.Unlock()

	ids := make([]uuid.UUID, len(observed))

	var existingIDs []uuid.UUID
	var existingPlanes []Plane
	for id, lm := range s.planes {
		if lm.Valid {
			existingIDs = append(existingIDs, id)
			existingPlanes = append(existingPlanes, lm.Coeffs)
		}
	}

	pairs := AssociatePlanes(observed, existingPlanes, cfg)
	matchedObs := make(map[int]bool, len(pairs))
	for _, pair := range pairs {
		lmID := existingIDs[pair.ToIdx]
		lm := s.planes[lmID]
		s.updatePlaneLandmark(lm, observed[pair.FromIdx], hulls[pair.FromIdx], keyframeID)
		ids[pair.FromIdx] = lmID
		matchedObs[pair.FromIdx] = true
	}

	for i, p := range observed {
		if matchedObs[i] {
			continue
		}
		id := uuid.New()
		lm := &PlaneLandmark{
			ID:               id,
			SeqID:            s.nextSeqID(),
			Coeffs:           p,
			Hull:             append([]Vec3(nil), hulls[i]...),
			ObservationCount: 1,
			Keyframes:        map[uint64]bool{keyframeID: true},
			Valid:            true,
		}
		s.planes[id] = lm
		ids[i] = id
	}
	return ids
}

func (s *LandmarkStore) updatePlaneLandmark(lm *PlaneLandmark, observed Plane, hull []Vec3, keyframeID uint64) {
	n := float64(lm.ObservationCount)
	w := n / (n + 1)
	lm.Coeffs = NewPlane(
		lm.Coeffs.A*w+observed.A*(1-w),
		lm.Coeffs.B*w+observed.B*(1-w),
		lm.Coeffs.C*w+observed.C*(1-w),
		lm.Coeffs.D*w+observed.D*(1-w),
	)
	lm.Hull = unionHull(lm.Hull, hull, lm.Coeffs)
	lm.ObservationCount++
	lm.Keyframes[keyframeID] = true
}

// AssociateKeypoints matches observed keypoints (as 3D map-frame positions
// with descriptors) against existing valid keypoint landmarks visible from
// framePose, updating matches and creating new landmarks for the rest.
func (s *LandmarkStore) AssociateKeypoints(positions []Vec3, descriptors []KeypointDescriptor, frame *Frame, framePose Transform, keyframeID uint64, cfg AssociationConfig) []uuid.UUID {
	s.mu.Lock()
	defer s.mu.Unlock()

	ids := make([]uuid.UUID, len(positions))

	for i, pos := range positions {
		matchedID, ok := s.bestKeypointMatch(pos, descriptors[i], frame, framePose, cfg)
		if ok {
			lm := s.keypoints[matchedID]
			s.updateKeypointLandmark(lm, pos, descriptors[i], keyframeID)
			ids[i] = matchedID
			continue
		}
		id := uuid.New()
		lm := &KeypointLandmark{
			ID:               id,
			SeqID:            s.nextSeqID(),
			Position:         pos,
			Descriptor:       descriptors[i],
			CovarianceScale:  1.0,
			ObservationCount: 1,
			Keyframes:        map[uint64]bool{keyframeID: true},
			Valid:            true,
		}
		s.keypoints[id] = lm
		ids[i] = id
	}
	return ids
}

func (s *LandmarkStore) bestKeypointMatch(pos Vec3, desc KeypointDescriptor, frame *Frame, framePose Transform, cfg AssociationConfig) (uuid.UUID, bool) {
	var bestID uuid.UUID
	bestDist := 1.0e18
	found := false
	for id, lm := range s.keypoints {
		if !lm.Valid {
			continue
		}
		if Distance(lm.Position, pos) > cfg.DepthGate*4 {
			continue // coarse spatial gate before the expensive projection check
		}
		if _, ok := AssociateKeypoint(lm.Position, lm.Descriptor, frame, framePose, cfg); !ok {
			continue
		}
		d := Distance(lm.Position, pos)
		if d < bestDist {
			bestID, bestDist, found = id, d, true
		}
	}
	return bestID, found
}

func (s *LandmarkStore) updateKeypointLandmark(lm *KeypointLandmark, pos Vec3, desc KeypointDescriptor, keyframeID uint64) {
	n := float64(lm.ObservationCount)
	w := n / (n + 1)
	lm.Position = lm.Position.Scale(w).Add(pos.Scale(1 - w))
	lm.Descriptor = desc // most-recent observation stands in for a median dump
	lm.ObservationCount++
	lm.Keyframes[keyframeID] = true
	lm.CovarianceScale = 1.0 / float64(lm.ObservationCount)
}

// MergePlaneLandmarks retires the landmark with the higher creation order
// into the one with the lower creation order, leaving a forwarding pointer
// (§4.5/§9).
func (s *LandmarkStore) MergePlaneLandmarks(a, b uuid.UUID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	la, lb := s.planes[a], s.planes[b]
	if la == nil || lb == nil {
		return
	}
	keep, retire := la, lb
	if lb.SeqID < la.SeqID {
		keep, retire = lb, la
	}
	for kf := range retire.Keyframes {
		keep.Keyframes[kf] = true
	}
	keep.Hull = unionHull(keep.Hull, retire.Hull, keep.Coeffs)
	retire.Valid = false
	id := keep.ID
	retire.ForwardTo = &id
}

// ResolvePlane follows forwarding pointers left by a merge to the surviving
// landmark.
func (s *LandmarkStore) ResolvePlane(id uuid.UUID) uuid.UUID {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for {
		lm, ok := s.planes[id]
		if !ok || lm.ForwardTo == nil {
			return id
		}
		id = *lm.ForwardTo
	}
}

// Plane returns a snapshot copy of a plane landmark by id.
func (s *LandmarkStore) Plane(id uuid.UUID) (PlaneLandmark, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	lm, ok := s.planes[id]
	if !ok {
		return PlaneLandmark{}, false
	}
	return *lm, true
}

// Keypoint returns a snapshot copy of a keypoint landmark by id.
func (s *LandmarkStore) Keypoint(id uuid.UUID) (KeypointLandmark, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	lm, ok := s.keypoints[id]
	if !ok {
		return KeypointLandmark{}, false
	}
	return *lm, true
}

// AllPlanes returns a snapshot of every valid plane landmark.
func (s *LandmarkStore) AllPlanes() map[uuid.UUID]PlaneLandmark {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[uuid.UUID]PlaneLandmark, len(s.planes))
	for id, lm := range s.planes {
		if lm.Valid {
			out[id] = *lm
		}
	}
	return out
}

// AllKeypoints returns a snapshot of every valid keypoint landmark.
func (s *LandmarkStore) AllKeypoints() map[uuid.UUID]KeypointLandmark {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[uuid.UUID]KeypointLandmark, len(s.keypoints))
	for id, lm := range s.keypoints {
		if lm.Valid {
			out[id] = *lm
		}
	}
	return out
}

// RetirePlane marks a plane landmark invalid after it fails repeated
// re-observation tests (§3 lifecycle).
func (s *LandmarkStore) RetirePlane(id uuid.UUID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if lm, ok := s.planes[id]; ok {
		lm.Valid = false
	}
}

// RetireKeypoint marks a keypoint landmark invalid after it fails repeated
// re-observation tests (§3 lifecycle).
func (s *LandmarkStore) RetireKeypoint(id uuid.UUID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if lm, ok := s.keypoints[id]; ok {
		lm.Valid = false
	}
}
