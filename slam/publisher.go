package slam

import (
	"context"
	"log"
	"sync"

	"golang.org/x/sync/errgroup"
)

// Publisher holds the single map->odom transform written by the tracking hot
// path (§5); each critical section is a single load or store. The package
// starts no publisher goroutine and does not send the transform anywhere:
// readers call MapToOdom themselves. The stored transform is always the planar
// (x, y, yaw) projection of the full correction (§6) — the caller is
// responsible for calling Transform.Planar() before handing it off, so the
// published map<-odom TF composes with a 2-D robot odometry chain.
type Publisher struct {
	mu        sync.Mutex
	mapToOdom Transform
	set       bool
}

// NewPublisher creates a Publisher with no transform set yet.
func NewPublisher() *Publisher {
	return &Publisher{mapToOdom: IdentityTransform()}
}

// SetMapToOdom is called by the tracker after every successfully tracked
// frame, with the planar-projected correction.
func (p *Publisher) SetMapToOdom(t Transform) {
	p.mu.Lock()
	p.mapToOdom = t
	p.set = true
	p.mu.Unlock()
}

// MapToOdom returns the last stored transform and whether one has been set.
func (p *Publisher) MapToOdom() (Transform, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.mapToOdom, p.set
}

// IngestPool is the bounded sensor-ingest worker pool described in §5: a
// small pool of workers drains queued sensor frames but runs them through
// the orchestrator sequentially (via a single mutex-guarded call) to
// preserve causal ordering, dropping intermediate messages via a modulo
// skip-message policy rather than buffering without bound.
type IngestPool struct {
	orchestrator *Orchestrator
	skipModulo   int
	workers      int

	mu  sync.Mutex // serializes ProcessFrame calls across workers
	seq uint64
}

// NewIngestPool creates a worker pool draining frames through orchestrator.
func NewIngestPool(o *Orchestrator, workers, skipModulo int) *IngestPool {
	if workers < 1 {
		workers = 1
	}
	if skipModulo < 1 {
		skipModulo = 1
	}
	return &IngestPool{orchestrator: o, skipModulo: skipModulo, workers: workers}
}

// Run drains frames from the channel until it closes or the context is
// cancelled, applying the skip_message_ modulo policy: every skipModulo-th
// frame is processed, the rest are dropped to provide backpressure instead
// of buffering unboundedly. priorFor supplies the per-frame external
// odometry prior (identity if the caller has none).
func (p *IngestPool) Run(ctx context.Context, frames <-chan *Frame, priorFor func(*Frame) Transform) error {
	g, gctx := errgroup.WithContext(ctx)
	// recvMu is held from receive through processing so frames reach the
	// orchestrator in channel order.
	var recvMu sync.Mutex

	for w := 0; w < p.workers; w++ {
		g.Go(func() error {
			for {
				recvMu.Lock()
				select {
				case <-gctx.Done():
					recvMu.Unlock()
					return gctx.Err()
				case frame, ok := <-frames:
					if !ok {
						recvMu.Unlock()
						return nil
					}
					if p.shouldProcess() {
						p.processOne(frame, priorFor(frame))
					}
					recvMu.Unlock()
				}
			}
		})
	}

	return g.Wait()
}

func (p *IngestPool) shouldProcess() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.seq++
	return p.seq%uint64(p.skipModulo) == 0
}

func (p *IngestPool) processOne(frame *Frame, prior Transform) {
	p.mu.Lock()
	defer p.mu.Unlock()
	result := p.orchestrator.ProcessFrame(frame, prior)
	if result.Skipped {
		log.Printf("[SLAM] frame %d dropped: %s", frame.Seq, result.Reason)
	}
}
