package slam

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/uuid"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
)

// RuntimeStats is one row of the per-frame timing dump (§6): frame_ms
// tracking_ms mapping_ms total_ms.
type RuntimeStats struct {
	FrameMS, TrackingMS, MappingMS, TotalMS float64
}

// SavePlaneLandmarks writes one "%.6f %.6f %.6f %.6f" line per valid plane
// landmark (a b c d), grounded on the teacher's plain bufio.Writer dump
// style in config_loader.go/state.go.
func SavePlaneLandmarks(path string, landmarks map[uuid.UUID]PlaneLandmark) error {
	return writeLines(path, func(w *bufio.Writer) error {
		for _, lm := range landmarks {
			if _, err := fmt.Fprintf(w, "%.6f %.6f %.6f %.6f\n", lm.Coeffs.A, lm.Coeffs.B, lm.Coeffs.C, lm.Coeffs.D); err != nil {
				return err
			}
		}
		return nil
	})
}

// SaveKeypointLandmarks writes one "%.6f %.6f %.6f" line per valid
// keypoint landmark position, plus a sibling ".descriptors" file holding
// each landmark's 32-byte binary descriptor back to back (§6).
func SaveKeypointLandmarks(path string, landmarks map[uuid.UUID]KeypointLandmark) error {
	if err := writeLines(path, func(w *bufio.Writer) error {
		for _, lm := range landmarks {
			if _, err := fmt.Fprintf(w, "%.6f %.6f %.6f\n", lm.Position.X, lm.Position.Y, lm.Position.Z); err != nil {
				return err
			}
		}
		return nil
	}); err != nil {
		return err
	}

	descPath := path + ".descriptors"
	f, err := os.Create(descPath)
	if err != nil {
		return fmt.Errorf("slam: create descriptors dump %q: %w", descPath, err)
	}
	defer f.Close()
	for _, lm := range landmarks {
		if _, err := f.Write(lm.Descriptor.Binary[:]); err != nil {
			return fmt.Errorf("slam: write descriptor: %w", err)
		}
	}
	return nil
}

// SavePath writes one "tx ty tz qx qy qz qw" line per pose in the
// trajectory (§6).
func SavePath(path string, poses []Transform) error {
	return writeLines(path, func(w *bufio.Writer) error {
		for _, t := range poses {
			qx, qy, qz, qw := t.R.Quaternion()
			if _, err := fmt.Fprintf(w, "%.6f %.6f %.6f %.6f %.6f %.6f %.6f\n",
				t.T.X, t.T.Y, t.T.Z, qx, qy, qz, qw); err != nil {
				return err
			}
		}
		return nil
	})
}

// SaveRuntimeStats writes one "frame_ms tracking_ms mapping_ms total_ms"
// line per recorded frame (§6).
func SaveRuntimeStats(path string, rows []RuntimeStats) error {
	return writeLines(path, func(w *bufio.Writer) error {
		for _, r := range rows {
			if _, err := fmt.Fprintf(w, "%.3f %.3f %.3f %.3f\n", r.FrameMS, r.TrackingMS, r.MappingMS, r.TotalMS); err != nil {
				return err
			}
		}
		return nil
	})
}

// SaveMapCloudPCD writes an ASCII PCD (v0.7) point cloud of the given
// points (§6), grounded on the teacher's plain-text dump conventions.
func SaveMapCloudPCD(path string, points []Vec3) error {
	return writeLines(path, func(w *bufio.Writer) error {
		header := "# .PCD v0.7 - Point Cloud Data file format\n" +
			"VERSION 0.7\n" +
			"FIELDS x y z\n" +
			"SIZE 4 4 4\n" +
			"TYPE F F F\n" +
			"COUNT 1 1 1\n" +
			fmt.Sprintf("WIDTH %d\n", len(points)) +
			"HEIGHT 1\n" +
			"VIEWPOINT 0 0 0 1 0 0 0\n" +
			fmt.Sprintf("POINTS %d\n", len(points)) +
			"DATA ascii\n"
		if _, err := w.WriteString(header); err != nil {
			return err
		}
		for _, p := range points {
			if _, err := fmt.Fprintf(w, "%.6f %.6f %.6f\n", p.X, p.Y, p.Z); err != nil {
				return err
			}
		}
		return nil
	})
}

// SaveGeoJSON dumps plane footprints (as polygons, using the XY projection
// of each hull) and the trajectory (as a LineString) into a single
// FeatureCollection (§6, supplemented from original_source: the original's
// richer plane-boundary hulls deserve a format beyond the plain-text dump).
func SaveGeoJSON(path string, planes map[uuid.UUID]PlaneLandmark, path3D []Transform) error {
	fc := geojson.NewFeatureCollection()

	for id, lm := range planes {
		if len(lm.Hull) < 3 {
			continue
		}
		ring := make(orb.Ring, 0, len(lm.Hull)+1)
		for _, p := range lm.Hull {
			ring = append(ring, orb.Point{p.X, p.Y})
		}
		ring = append(ring, ring[0]) // GeoJSON polygons must close
		feature := geojson.NewFeature(orb.Polygon{ring})
		feature.Properties = map[string]interface{}{
			"kind":              "plane",
			"id":                id.String(),
			"observation_count": lm.ObservationCount,
			"a":                 lm.Coeffs.A,
			"b":                 lm.Coeffs.B,
			"c":                 lm.Coeffs.C,
			"d":                 lm.Coeffs.D,
		}
		fc.Append(feature)
	}

	if len(path3D) >= 2 {
		ls := make(orb.LineString, len(path3D))
		for i, t := range path3D {
			ls[i] = orb.Point{t.T.X, t.T.Y}
		}
		feature := geojson.NewFeature(ls)
		feature.Properties = map[string]interface{}{"kind": "trajectory"}
		fc.Append(feature)
	}

	data, err := fc.MarshalJSON()
	if err != nil {
		return fmt.Errorf("slam: marshal geojson: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("slam: write geojson %q: %w", path, err)
	}
	return nil
}

func writeLines(path string, fn func(w *bufio.Writer) error) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("slam: create output dir: %w", err)
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("slam: create %q: %w", path, err)
	}
	defer f.Close()

	w := bufio.NewWriter(f)
	if err := fn(w); err != nil {
		return fmt.Errorf("slam: write %q: %w", path, err)
	}
	return w.Flush()
}
