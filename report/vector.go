package report

import (
	"fmt"
	"image/color"
	"image/png"
	"io"
	"math"

	"github.com/tdewolff/canvas"
	"github.com/tdewolff/canvas/renderers/rasterizer"
	"github.com/tdewolff/canvas/renderers/svg"

	"github.com/kwv/tudocover/mesh"
)

// VectorRenderer draws a plan with footprint polygons as SVG or PNG.
// Canvas units are millimeters; Scale maps one grid pixel to Scale mm.
type VectorRenderer struct {
	Scale      float64
	Resolution canvas.Resolution
	PoseColor  color.NRGBA
}

// NewVectorRenderer returns a renderer at 2 mm per grid pixel and 300 DPI.
func NewVectorRenderer(poseColor color.NRGBA) *VectorRenderer {
	return &VectorRenderer{Scale: 2, Resolution: canvas.DPI(300), PoseColor: poseColor}
}

type pathRenderer interface {
	RenderPath(path *canvas.Path, style canvas.Style, m canvas.Matrix)
}

// RenderSVG writes the plan as SVG.
func (r *VectorRenderer) RenderSVG(w io.Writer, plan *mesh.SegmentPlan) error {
	width, height, err := r.size(plan)
	if err != nil {
		return err
	}
	s := svg.New(w, width, height, nil)
	r.draw(s, plan, height)
	return s.Close()
}

// RenderPNG rasterizes the plan and writes it as PNG.
func (r *VectorRenderer) RenderPNG(w io.Writer, plan *mesh.SegmentPlan) error {
	width, height, err := r.size(plan)
	if err != nil {
		return err
	}
	rast := rasterizer.New(width, height, r.Resolution, canvas.DefaultColorSpace)
	r.draw(rast, plan, height)
	return png.Encode(w, rast)
}

func (r *VectorRenderer) size(plan *mesh.SegmentPlan) (float64, float64, error) {
	if plan == nil || plan.Grid == nil || plan.Result == nil {
		return 0, 0, fmt.Errorf("vector: plan has no grid")
	}
	if r.Scale <= 0 {
		return 0, 0, fmt.Errorf("vector: scale must be positive, got %v", r.Scale)
	}
	return float64(plan.Grid.Width) * r.Scale, float64(plan.Grid.Height) * r.Scale, nil
}

func (r *VectorRenderer) draw(out pathRenderer, plan *mesh.SegmentPlan, height float64) {
	g := plan.Grid
	s := r.Scale
	// Grid rows grow downwards, canvas y grows upwards.
	at := func(x, y float64) (float64, float64) { return x * s, height - y*s }

	bg := canvas.DefaultStyle
	bg.Fill = canvas.Paint{Color: canvas.White}
	out.RenderPath(canvas.Rectangle(float64(g.Width)*s, height), bg, canvas.Identity)

	// Occupied space as one rectangle per horizontal run.
	wall := canvas.DefaultStyle
	wall.Fill = canvas.Paint{Color: toRGBA(occupiedColor)}
	wall.Stroke = canvas.Paint{Color: canvas.Transparent}
	for y := 0; y < g.Height; y++ {
		for x := 0; x < g.Width; {
			if g.IsFree(x, y) {
				x++
				continue
			}
			start := x
			for x < g.Width && !g.IsFree(x, y) {
				x++
			}
			px, py := at(float64(start), float64(y+1))
			out.RenderPath(canvas.Rectangle(float64(x-start)*s, s).Translate(px, py), wall, canvas.Identity)
		}
	}

	uncovered := canvas.DefaultStyle
	uncovered.Fill = canvas.Paint{Color: toRGBA(uncoveredColor)}
	uncovered.Stroke = canvas.Paint{Color: canvas.Transparent}
	for _, c := range plan.Result.Uncovered {
		px, py := at(float64(c.X), float64(c.Y+1))
		out.RenderPath(canvas.Rectangle(s, s).Translate(px, py), uncovered, canvas.Identity)
	}

	area := canvas.DefaultStyle
	area.Fill = canvas.Paint{Color: toRGBA(withAlpha(r.PoseColor, 60))}
	area.Stroke = canvas.Paint{Color: toRGBA(r.PoseColor)}
	area.StrokeWidth = s / 4

	marker := canvas.DefaultStyle
	marker.Fill = canvas.Paint{Color: toRGBA(r.PoseColor)}
	marker.Stroke = canvas.Paint{Color: canvas.Black}
	marker.StrokeWidth = s / 8

	heading := canvas.DefaultStyle
	heading.Fill = canvas.Paint{Color: canvas.Transparent}
	heading.Stroke = canvas.Paint{Color: canvas.Black}
	heading.StrokeWidth = s / 4

	for _, pose := range plan.Result.Poses {
		placed := plan.Params.Footprint.Place(g, pose)
		if len(placed) >= 3 {
			p := &canvas.Path{}
			for i, pt := range placed {
				x, y := at(pt.X+0.5, pt.Y+0.5)
				if i == 0 {
					p.MoveTo(x, y)
				} else {
					p.LineTo(x, y)
				}
			}
			p.Close()
			out.RenderPath(p, area, canvas.Identity)
		}

		cx, cy := at(float64(pose.X)+0.5, float64(pose.Y)+0.5)
		out.RenderPath(canvas.Circle(s).Translate(cx, cy), marker, canvas.Identity)

		h := &canvas.Path{}
		h.MoveTo(cx, cy)
		h.LineTo(cx+math.Cos(pose.Theta)*3*s, cy-math.Sin(pose.Theta)*3*s)
		out.RenderPath(h, heading, canvas.Identity)
	}
}
