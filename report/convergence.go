package report

import (
	"fmt"
	"image/color"
	"io"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"

	"github.com/kwv/tudocover/cover"
)

// ConvergencePlot charts the sparsity measure per reweighting iteration
// against the number of candidate columns.
func ConvergencePlot(w io.Writer, rel *cover.Relaxation, columns int, title string) error {
	if rel == nil || len(rel.History) == 0 {
		return fmt.Errorf("convergence plot: no iterations recorded")
	}

	p := plot.New()
	p.Title.Text = title
	p.X.Label.Text = "Iteration"
	p.Y.Label.Text = "Columns <= 0.01"
	p.Y.Min = 0
	p.Add(plotter.NewGrid())

	pts := make(plotter.XYs, len(rel.History))
	for i, s := range rel.History {
		pts[i] = plotter.XY{X: float64(i + 1), Y: float64(s)}
	}
	line, points, err := plotter.NewLinePoints(pts)
	if err != nil {
		return fmt.Errorf("convergence plot: %w", err)
	}
	line.Color = color.RGBA{R: 30, G: 90, B: 200, A: 255}
	line.Width = vg.Points(1)
	points.GlyphStyle.Color = line.Color
	p.Add(line, points)
	p.Legend.Add(fmt.Sprintf("sparsity (%s)", rel.Termination), line)

	if columns > 0 {
		limit := plotter.XYs{{X: 1, Y: float64(columns)}, {X: float64(max(len(rel.History), 2)), Y: float64(columns)}}
		ref, err := plotter.NewLine(limit)
		if err != nil {
			return fmt.Errorf("convergence plot: %w", err)
		}
		ref.Color = color.RGBA{R: 160, G: 160, B: 160, A: 255}
		ref.Dashes = []vg.Length{vg.Points(4), vg.Points(2)}
		p.Add(ref)
		p.Legend.Add("candidates", ref)
	}
	p.Legend.Top = true
	p.Legend.Left = true

	wt, err := p.WriterTo(6*vg.Inch, 4*vg.Inch, "png")
	if err != nil {
		return fmt.Errorf("convergence plot: %w", err)
	}
	if _, err := wt.WriteTo(w); err != nil {
		return fmt.Errorf("convergence plot: %w", err)
	}
	return nil
}
