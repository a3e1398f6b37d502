package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/kwv/planeslam/slam"
)

// App wires a slam.Orchestrator to its transports: a one-shot recorded-frame
// replay, a live MQTT frame feed, and an HTTP debug/export server.
type App struct {
	cfg          slam.Config
	orchestrator *slam.Orchestrator
	outputDir    string

	transport *slam.FrameTransport
	ingest    *slam.IngestPool
	cancel    context.CancelFunc

	priorsMu sync.Mutex
	priors   map[uint64]slam.Transform

	frames chan *slam.Frame

	statsMu sync.Mutex
	stats   []slam.RuntimeStats
}

// NewApp loads configuration from path and constructs the orchestrator.
func NewApp(configPath, outputDirOverride string, seed int64) (*App, error) {
	cfg := slam.DefaultConfig()
	if loaded, err := slam.LoadConfig(configPath); err != nil {
		log.Printf("Warning: failed to load %s (%v), using defaults", configPath, err)
	} else {
		cfg = *loaded
	}
	if outputDirOverride != "" {
		cfg.Output.OutputDir = outputDirOverride
	}

	return &App{
		cfg:          cfg,
		orchestrator: slam.NewOrchestrator(cfg, seed),
		outputDir:    cfg.Output.OutputDir,
		priors:       make(map[uint64]slam.Transform),
		frames:       make(chan *slam.Frame, 64),
	}, nil
}

// RunOnce replays every FrameMessage JSON file in dir (sorted by name, so
// files should be numbered by sequence), feeding each one through the
// orchestrator synchronously, then writes the result artifacts (see
// SaveResults) to the configured output directory.
func (a *App) RunOnce(dir string) error {
	files, err := filepath.Glob(filepath.Join(dir, "*.json"))
	if err != nil {
		return fmt.Errorf("globbing %s: %w", dir, err)
	}
	if len(files) == 0 {
		return fmt.Errorf("no frame files found in %s", dir)
	}

	fmt.Printf("Replaying %d recorded frame(s) from %s\n", len(files), dir)

	for _, path := range files {
		raw, err := os.ReadFile(path)
		if err != nil {
			log.Printf("Warning: skipping %s: %v", path, err)
			continue
		}
		frame, prior, err := slam.DecodeFrameMessage(raw)
		if err != nil {
			log.Printf("Warning: skipping %s: %v", path, err)
			continue
		}
		a.processFrame(frame, prior)
	}

	return a.SaveResults()
}

func (a *App) processFrame(frame *slam.Frame, prior slam.Transform) {
	start := time.Now()
	result := a.orchestrator.ProcessFrame(frame, prior)
	elapsed := time.Since(start).Seconds() * 1000

	a.statsMu.Lock()
	a.stats = append(a.stats, slam.RuntimeStats{FrameMS: elapsed, TrackingMS: elapsed, MappingMS: 0, TotalMS: elapsed})
	a.statsMu.Unlock()

	if result.Skipped {
		log.Printf("[SLAM] frame %d skipped: %s", frame.Seq, result.Reason)
		return
	}
	log.Printf("[SLAM] frame %d processed: state=%s stage=%s keyframe=%v", frame.Seq, result.State, result.Stage, result.Keyframe)
}

// RunService starts the live ingest path(s): MQTT subscription feeding the
// bounded worker pool, and/or the HTTP debug server.
func (a *App) RunService(mqttMode, httpMode bool, httpPort int) {
	ctx, cancel := context.WithCancel(context.Background())
	a.cancel = cancel

	if mqttMode {
		broker := os.Getenv("MQTT_BROKER")
		topic := os.Getenv("MQTT_FRAME_TOPIC")
		if topic == "" {
			topic = "planeslam/frames"
		}

		transport, err := slam.NewFrameTransport(broker, "", topic, a.onFrame)
		if err != nil {
			log.Printf("Warning: mqtt frame transport not started: %v", err)
		} else {
			a.transport = transport
			a.ingest = slam.NewIngestPool(a.orchestrator, a.cfg.Orchestrator.WorkerPoolSize, a.cfg.Orchestrator.SkipMessageModulo)
			go func() {
				if err := a.ingest.Run(ctx, a.frames, a.priorFor); err != nil && err != context.Canceled {
					log.Printf("[SLAM] ingest pool stopped: %v", err)
				}
			}()
		}
	}

	if httpMode {
		go func() {
			addr := fmt.Sprintf(":%d", httpPort)
			log.Printf("[HTTP] starting server on %s", addr)
			if err := startHTTPServer(addr, a); err != nil {
				log.Fatalf("[HTTP] server error: %v", err)
			}
		}()
	}
}

func (a *App) onFrame(frame *slam.Frame, prior slam.Transform) {
	a.priorsMu.Lock()
	a.priors[frame.Seq] = prior
	a.priorsMu.Unlock()

	select {
	case a.frames <- frame:
	default:
		log.Printf("[SLAM] ingest channel full, dropping frame %d", frame.Seq)
	}
}

func (a *App) priorFor(frame *slam.Frame) slam.Transform {
	a.priorsMu.Lock()
	defer a.priorsMu.Unlock()
	prior, ok := a.priors[frame.Seq]
	delete(a.priors, frame.Seq)
	if !ok {
		return slam.IdentityTransform()
	}
	return prior
}

// SaveResults writes planes.txt, keypoints.txt (with its .descriptors
// sibling), path.txt, runtime.txt, map.geojson, graph.dot and viewer.svg to
// the configured output directory. It writes no PCD map cloud and no PNG
// viewer image.
func (a *App) SaveResults() error {
	dir := a.outputDir
	if dir == "" {
		dir = "."
	}

	planes, keypoints := a.orchestrator.Landmarks().AllPlanes(), a.orchestrator.Landmarks().AllKeypoints()
	path := a.orchestrator.Graph().GetOptimizedPath()

	if err := slam.SavePlaneLandmarks(filepath.Join(dir, "planes.txt"), planes); err != nil {
		return err
	}
	if err := slam.SaveKeypointLandmarks(filepath.Join(dir, "keypoints.txt"), keypoints); err != nil {
		return err
	}
	if err := slam.SavePath(filepath.Join(dir, "path.txt"), path); err != nil {
		return err
	}

	a.statsMu.Lock()
	stats := append([]slam.RuntimeStats(nil), a.stats...)
	a.statsMu.Unlock()
	if err := slam.SaveRuntimeStats(filepath.Join(dir, "runtime.txt"), stats); err != nil {
		return err
	}

	if err := slam.SaveGeoJSON(filepath.Join(dir, "map.geojson"), planes, path); err != nil {
		return err
	}
	if err := a.orchestrator.Graph().SaveGraph(filepath.Join(dir, "graph.dot")); err != nil {
		return err
	}

	snapshot := slam.NewViewerSnapshot(planes, path)
	if err := snapshot.SaveSVG(filepath.Join(dir, "viewer.svg")); err != nil {
		return err
	}

	fmt.Printf("Saved results to %s\n", dir)
	return nil
}

// Shutdown tears down any live transports/pools and writes final results.
func (a *App) Shutdown() {
	if a.cancel != nil {
		a.cancel()
	}
	if a.transport != nil {
		a.transport.Disconnect()
	}
	if err := a.SaveResults(); err != nil {
		log.Printf("Warning: failed to save results on shutdown: %v", err)
	}
}

// healthStatus is the /health endpoint's JSON body.
type healthStatus struct {
	Status    string    `json:"status"`
	Timestamp time.Time `json:"timestamp"`
	State     string    `json:"state"`
}

func (a *App) health() healthStatus {
	return healthStatus{Status: "ok", Timestamp: time.Now(), State: a.orchestrator.State().String()}
}

func marshalHealth(h healthStatus) ([]byte, error) {
	return json.Marshal(h)
}
