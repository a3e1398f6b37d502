package slam

import (
	"fmt"
	"image/color"
	"image/png"
	"io"
	"math"
	"os"

	"github.com/google/uuid"
	"github.com/tdewolff/canvas"
	"github.com/tdewolff/canvas/renderers/rasterizer"
	"github.com/tdewolff/canvas/renderers/svg"
)

// ViewerSnapshot renders a static top-down view of the current map: plane
// footprints (from their observed hulls) plus the estimated trajectory.
// This is the "update_viewer_once" debug service (SPEC_FULL §6) — a flat
// snapshot, not the excluded interactive 3D viewer (spec.md Non-goals).
type ViewerSnapshot struct {
	Planes     map[uuid.UUID]PlaneLandmark
	Trajectory []Transform
	Padding    float64
	Resolution canvas.Resolution
}

// NewViewerSnapshot builds a snapshot with 0.5 m padding and a 300 DPI PNG
// resolution.
func NewViewerSnapshot(planes map[uuid.UUID]PlaneLandmark, trajectory []Transform) *ViewerSnapshot {
	return &ViewerSnapshot{
		Planes:     planes,
		Trajectory: trajectory,
		Padding:    0.5,
		Resolution: canvas.DPI(300),
	}
}

type canvasRenderer interface {
	RenderPath(path *canvas.Path, style canvas.Style, m canvas.Matrix)
}

// SaveSVG writes the snapshot as SVG to path.
func (v *ViewerSnapshot) SaveSVG(path string) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("slam: create viewer svg %q: %w", path, err)
	}
	defer f.Close()
	return v.RenderToSVG(f)
}

// SavePNG writes the snapshot as a rasterized PNG to path.
func (v *ViewerSnapshot) SavePNG(path string) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("slam: create viewer png %q: %w", path, err)
	}
	defer f.Close()
	return v.RenderToPNG(f)
}

// RenderToSVG writes the snapshot as SVG to w.
func (v *ViewerSnapshot) RenderToSVG(w io.Writer) error {
	minX, minY, maxX, maxY := v.bounds()
	width := (maxX - minX) + 2*v.Padding
	height := (maxY - minY) + 2*v.Padding
	svgRenderer := svg.New(w, width, height, nil)
	v.renderToCanvas(svgRenderer, minX, minY, width, height)
	return svgRenderer.Close()
}

// RenderToPNG writes the snapshot as a rasterized PNG to w.
func (v *ViewerSnapshot) RenderToPNG(w io.Writer) error {
	minX, minY, maxX, maxY := v.bounds()
	width := (maxX - minX) + 2*v.Padding
	height := (maxY - minY) + 2*v.Padding
	rast := rasterizer.New(width, height, v.Resolution, canvas.DefaultColorSpace)
	v.renderToCanvas(rast, minX, minY, width, height)
	return png.Encode(w, rast)
}

func (v *ViewerSnapshot) bounds() (minX, minY, maxX, maxY float64) {
	minX, minY = math.Inf(1), math.Inf(1)
	maxX, maxY = math.Inf(-1), math.Inf(-1)
	seen := false

	consider := func(x, y float64) {
		seen = true
		if x < minX {
			minX = x
		}
		if y < minY {
			minY = y
		}
		if x > maxX {
			maxX = x
		}
		if y > maxY {
			maxY = y
		}
	}

	for _, lm := range v.Planes {
		for _, p := range lm.Hull {
			consider(p.X, p.Y)
		}
	}
	for _, t := range v.Trajectory {
		consider(t.T.X, t.T.Y)
	}

	if !seen {
		return 0, 0, 1, 1
	}
	return minX, minY, maxX, maxY
}

func (v *ViewerSnapshot) renderToCanvas(r canvasRenderer, minX, minY, width, height float64) {
	bgStyle := canvas.DefaultStyle
	bgStyle.Fill = canvas.Paint{Color: canvas.White}
	r.RenderPath(canvas.Rectangle(width, height), bgStyle, canvas.Identity)

	toCanvas := func(p Vec3) (float64, float64) {
		return (p.X - minX) + v.Padding, (p.Y - minY) + v.Padding
	}

	planeStyle := canvas.DefaultStyle
	planeStyle.Fill = canvas.Paint{Color: color.RGBA{R: 173, G: 216, B: 230, A: 160}}
	planeStyle.Stroke = canvas.Paint{Color: canvas.Gray}
	planeStyle.StrokeWidth = 1.0

	for _, lm := range v.Planes {
		if len(lm.Hull) < 3 {
			continue
		}
		cp := &canvas.Path{}
		for i, p := range lm.Hull {
			cx, cy := toCanvas(p)
			if i == 0 {
				cp.MoveTo(cx, cy)
			} else {
				cp.LineTo(cx, cy)
			}
		}
		cp.Close()
		r.RenderPath(cp, planeStyle, canvas.Identity)
	}

	if len(v.Trajectory) >= 2 {
		pathStyle := canvas.DefaultStyle
		pathStyle.Fill = canvas.Paint{Color: canvas.Transparent}
		pathStyle.Stroke = canvas.Paint{Color: canvas.Black}
		pathStyle.StrokeWidth = 2.0
		pathStyle.StrokeCapper = canvas.RoundCapper{}
		pathStyle.StrokeJoiner = canvas.RoundJoiner{}

		trajPath := &canvas.Path{}
		for i, t := range v.Trajectory {
			cx, cy := toCanvas(t.T)
			if i == 0 {
				trajPath.MoveTo(cx, cy)
			} else {
				trajPath.LineTo(cx, cy)
			}
		}
		r.RenderPath(trajPath, pathStyle, canvas.Identity)
	}

	if len(v.Trajectory) > 0 {
		last := v.Trajectory[len(v.Trajectory)-1]
		cx, cy := toCanvas(last.T)
		poseStyle := canvas.DefaultStyle
		poseStyle.Fill = canvas.Paint{Color: canvas.Red}
		poseStyle.Stroke = canvas.Paint{Color: canvas.Black}
		poseStyle.StrokeWidth = 1.0
		poseMarker := canvas.Circle(0.05)
		poseMarker = poseMarker.Translate(cx, cy)
		r.RenderPath(poseMarker, poseStyle, canvas.Identity)
	}
}
