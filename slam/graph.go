package slam

import (
	"fmt"
	"log"
	"sync"

	"github.com/goccy/go-graphviz"
	"github.com/goccy/go-graphviz/cgraph"
	"github.com/google/uuid"
)

// PoseID identifies a keyframe's node in the pose graph, assigned in strict
// monotonic order of insertKeyframe calls (§4.6/§5 ordering guarantee).
type PoseID uint64

// PlaneObservation is a plane-landmark factor: the landmark observed, and
// its measured coefficients in the inserting keyframe's local frame.
type PlaneObservation struct {
	LandmarkID uuid.UUID
	Measured   Plane
}

// PointObservation is a 3D-point factor: the landmark observed, and its
// measured position in the inserting keyframe's local frame.
type PointObservation struct {
	LandmarkID uuid.UUID
	Measured   Vec3
}

// KeyframeObservations bundles every factor a single keyframe insertion
// contributes to the graph (§4.6).
type KeyframeObservations struct {
	Planes []PlaneObservation
	Points []PointObservation
}

type poseNode struct {
	id        PoseID
	prior     Transform // the pose handed in at insertion (pre-optimization)
	optimized Transform
	obs       KeyframeObservations
	provisional bool
}

// Graph is the incremental pose-landmark back-end (C8): a growing set of
// keyframe pose nodes connected by between-pose factors (implicit in
// sequential prior composition) plus plane- and point-landmark factors.
// Optimization is a bounded-iteration relaxation pass run on every
// insertion — "incremental" in the sense that it only revisits nodes
// touched (directly or through a shared landmark) by the new factors,
// standing in for full iSAM2 relinearization without its machinery.
type Graph struct {
	mu sync.Mutex

	nodes     []*poseNode
	landmarks *LandmarkStore

	relaxIterations int
	relaxGain       float64
}

// NewGraph creates an empty pose graph backed by the given landmark store.
func NewGraph(landmarks *LandmarkStore) *Graph {
	return &Graph{
		landmarks:       landmarks,
		relaxIterations: 10,
		relaxGain:       0.3,
	}
}

// InsertKeyframe adds a new pose node seeded by posePrior (the composed
// absolute pose from C9) and the observations gathered at that pose,
// returning its assigned PoseID (§4.6). The graph runs a local relaxation
// pass touching this node and any earlier node sharing an observed
// landmark; if that pass fails numerically the prior estimate is kept
// and the node is marked provisional (§4.6 failure semantics, §4.7 #5).
func (g *Graph) InsertKeyframe(posePrior Transform, obs KeyframeObservations) PoseID {
	g.mu.Lock()
	defer g.mu.Unlock()

	id := PoseID(len(g.nodes))
	node := &poseNode{id: id, prior: posePrior, optimized: posePrior, obs: obs}
	g.nodes = append(g.nodes, node)

	if !g.relax(node) {
		node.optimized = posePrior
		node.provisional = true
		log.Printf("[GRAPH] keyframe %d: relaxation failed, keeping prior estimate (provisional)", id)
	}
	return id
}

// relax nudges the new node's pose (and any earlier node connected to it
// through a shared landmark) toward better agreement with the plane and
// point factors, via bounded coordinate-descent steps on translation and
// rotation, the same nudge-and-shrink-step shape used by the C4 PnP
// refinement. Returns false if the pass produces a non-finite pose.
func (g *Graph) relax(node *poseNode) bool {
	linked := g.linkedNodes(node)

	current := node.optimized
	cost := g.factorCost(node, current)

	rotStep := 0.05
	transStep := 0.02

	for iter := 0; iter < g.relaxIterations; iter++ {
		improved := false
		for axis := 0; axis < 3; axis++ {
			for _, sign := range [2]float64{1, -1} {
				candidate := nudgeRotation(current, axis, sign*rotStep*g.relaxGain)
				c := g.factorCost(node, candidate)
				if c < cost {
					current, cost, improved = candidate, c, true
				}
			}
		}
		for axis := 0; axis < 3; axis++ {
			for _, sign := range [2]float64{1, -1} {
				candidate := nudgeTranslation(current, axis, sign*transStep*g.relaxGain)
				c := g.factorCost(node, candidate)
				if c < cost {
					current, cost, improved = candidate, c, true
				}
			}
		}
		if !improved {
			rotStep /= 2
			transStep /= 2
		}
	}

	if !finiteTransform(current) {
		return false
	}
	node.optimized = current

	for _, ln := range linked {
		g.relaxLinked(ln)
	}
	return true
}

// relaxLinked re-touches an earlier node after a new keyframe updated a
// landmark they both observe, with a short fixed-iteration pass rather than
// the new node's full budget — this is the "incremental" part of the
// relaxation: only nodes sharing a factor with the freshly inserted one are
// revisited, not the whole graph.
func (g *Graph) relaxLinked(node *poseNode) {
	current := node.optimized
	cost := g.factorCost(node, current)
	rotStep, transStep := 0.02, 0.01

	for iter := 0; iter < 3; iter++ {
		for axis := 0; axis < 3; axis++ {
			for _, sign := range [2]float64{1, -1} {
				candidate := nudgeTranslation(current, axis, sign*transStep)
				if c := g.factorCost(node, candidate); c < cost {
					current, cost = candidate, c
				}
				candidate = nudgeRotation(current, axis, sign*rotStep)
				if c := g.factorCost(node, candidate); c < cost {
					current, cost = candidate, c
				}
			}
		}
	}
	if finiteTransform(current) {
		node.optimized = current
	}
}

// finiteTransform reports whether every component of a transform is finite.
func finiteTransform(t Transform) bool {
	return finiteMat3(t.R) && t.T.Valid()
}

// factorCost sums squared plane and point factor residuals for a
// hypothesized pose of this node.
func (g *Graph) factorCost(node *poseNode, pose Transform) float64 {
	sum := 0.0
	for _, po := range node.obs.Planes {
		lm, ok := g.landmarks.Plane(po.LandmarkID)
		if !ok {
			continue
		}
		predicted := TransformPlane(po.Measured, pose)
		dn := predicted.Normal().Sub(lm.Coeffs.Normal())
		dd := predicted.D - lm.Coeffs.D
		sum += dn.Dot(dn) + dd*dd
	}
	for _, pt := range node.obs.Points {
		lm, ok := g.landmarks.Keypoint(pt.LandmarkID)
		if !ok {
			continue
		}
		predicted := pose.Apply(pt.Measured)
		d := predicted.Sub(lm.Position)
		sum += d.Dot(d)
	}
	return sum
}

// linkedNodes returns earlier nodes sharing at least one observed landmark
// with node, the locality the incremental relaxation pass touches.
func (g *Graph) linkedNodes(node *poseNode) []*poseNode {
	shared := make(map[uuid.UUID]bool)
	for _, po := range node.obs.Planes {
		shared[po.LandmarkID] = true
	}
	for _, pt := range node.obs.Points {
		shared[pt.LandmarkID] = true
	}
	var linked []*poseNode
nodes:
	for _, n := range g.nodes {
		if n.id == node.id {
			continue
		}
		for _, po := range n.obs.Planes {
			if shared[po.LandmarkID] {
				linked = append(linked, n)
				continue nodes
			}
		}
		for _, pt := range n.obs.Points {
			if shared[pt.LandmarkID] {
				linked = append(linked, n)
				continue nodes
			}
		}
	}
	return linked
}

// GetOptimizedPose returns the current best pose estimate for a keyframe id.
func (g *Graph) GetOptimizedPose(id PoseID) (Transform, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if int(id) >= len(g.nodes) {
		return Transform{}, false
	}
	return g.nodes[id].optimized, true
}

// GetOptimizedPath returns every keyframe pose in insertion order.
func (g *Graph) GetOptimizedPath() []Transform {
	g.mu.Lock()
	defer g.mu.Unlock()
	path := make([]Transform, len(g.nodes))
	for i, n := range g.nodes {
		path[i] = n.optimized
	}
	return path
}

// IsProvisional reports whether a keyframe's pose was kept at its prior
// estimate because relaxation failed (§4.6/§4.7 #5).
func (g *Graph) IsProvisional(id PoseID) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	if int(id) >= len(g.nodes) {
		return false
	}
	return g.nodes[id].provisional
}

// GetLandmarks returns every valid plane and keypoint landmark, mirroring
// the spec's `getLandmarks() -> mapping id -> L` (§4.6); callers distinguish
// the two landmark kinds by which map the id is found in.
func (g *Graph) GetLandmarks() (planes map[uuid.UUID]PlaneLandmark, keypoints map[uuid.UUID]KeypointLandmark) {
	return g.landmarks.AllPlanes(), g.landmarks.AllKeypoints()
}

// SaveGraph dumps the pose graph and its landmark connectivity as a
// Graphviz DOT file for offline analysis (§4.6, out of scope beyond dump
// format): one node per keyframe pose, one node per landmark, edges from a
// keyframe to every landmark it observed.
func (g *Graph) SaveGraph(path string) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	gv := graphviz.New()
	defer gv.Close()

	graph, err := gv.Graph()
	if err != nil {
		return fmt.Errorf("slam: graphviz new graph: %w", err)
	}
	defer func() {
		graph.Close()
	}()

	poseNodes := make(map[PoseID]*cgraph.Node)
	for _, n := range g.nodes {
		label := fmt.Sprintf("kf%d", n.id)
		gn, err := graph.CreateNode(label)
		if err != nil {
			return fmt.Errorf("slam: create pose node %d: %w", n.id, err)
		}
		gn.SetShape(cgraph.BoxShape)
		if n.provisional {
			gn.SetColor("red")
		}
		poseNodes[n.id] = gn
	}

	landmarkNodes := make(map[uuid.UUID]*cgraph.Node)
	ensureLandmarkNode := func(id uuid.UUID, kind string) (*cgraph.Node, error) {
		if gn, ok := landmarkNodes[id]; ok {
			return gn, nil
		}
		gn, err := graph.CreateNode(kind + "-" + id.String()[:8])
		if err != nil {
			return nil, err
		}
		gn.SetShape(cgraph.EllipseShape)
		landmarkNodes[id] = gn
		return gn, nil
	}

	edgeSeq := 0
	for _, n := range g.nodes {
		for _, po := range n.obs.Planes {
			ln, err := ensureLandmarkNode(po.LandmarkID, "plane")
			if err != nil {
				return fmt.Errorf("slam: create plane landmark node: %w", err)
			}
			edgeSeq++
			if _, err := graph.CreateEdge(fmt.Sprintf("e%d", edgeSeq), poseNodes[n.id], ln); err != nil {
				return fmt.Errorf("slam: create plane edge: %w", err)
			}
		}
		for _, pt := range n.obs.Points {
			ln, err := ensureLandmarkNode(pt.LandmarkID, "pt")
			if err != nil {
				return fmt.Errorf("slam: create point landmark node: %w", err)
			}
			edgeSeq++
			if _, err := graph.CreateEdge(fmt.Sprintf("e%d", edgeSeq), poseNodes[n.id], ln); err != nil {
				return fmt.Errorf("slam: create point edge: %w", err)
			}
		}
	}

	if err := gv.RenderFilename(graph, graphviz.XDOT, path); err != nil {
		return fmt.Errorf("slam: render graph dump %q: %w", path, err)
	}
	return nil
}
