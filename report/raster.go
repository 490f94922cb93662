package report

import (
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"math"
	"strconv"

	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"

	"github.com/kwv/tudocover/mesh"
)

// RasterRenderer draws a plan over its occupancy grid as a bitmap.
type RasterRenderer struct {
	// Scale is the number of output pixels per grid pixel.
	Scale     int
	PoseColor color.NRGBA
	Labels    bool
}

// NewRasterRenderer returns a renderer at 4x scale with pose labels.
func NewRasterRenderer(poseColor color.NRGBA) *RasterRenderer {
	return &RasterRenderer{Scale: 4, PoseColor: poseColor, Labels: true}
}

// Render draws free space, occupied space, cells, uncovered cells and the
// selected poses with their headings.
func (r *RasterRenderer) Render(plan *mesh.SegmentPlan) (*image.RGBA, error) {
	if plan == nil || plan.Grid == nil || plan.Result == nil {
		return nil, fmt.Errorf("raster: plan has no grid")
	}
	s := max(r.Scale, 1)
	g := plan.Grid
	img := image.NewRGBA(image.Rect(0, 0, g.Width*s, g.Height*s))

	for y := 0; y < g.Height; y++ {
		for x := 0; x < g.Width; x++ {
			c := occupiedColor
			if g.IsFree(x, y) {
				c = freeColor
			}
			fillRect(img, x*s, y*s, s, s, c)
		}
	}

	dot := max(s/2, 1)
	for _, cell := range plan.Result.Cells {
		fillRect(img, cell.X*s+(s-dot)/2, cell.Y*s+(s-dot)/2, dot, dot, cellColor)
	}
	for _, cell := range plan.Result.Uncovered {
		fillRect(img, cell.X*s, cell.Y*s, s, s, uncoveredColor)
	}

	size := max(2*s, 3)
	for _, pose := range plan.Result.Poses {
		cx, cy := pose.X*s+s/2, pose.Y*s+s/2
		fillRect(img, cx-size/2, cy-size/2, size, size, r.PoseColor)
		drawLine(img, cx, cy,
			cx+int(math.Round(math.Cos(pose.Theta)*float64(3*size))),
			cy+int(math.Round(math.Sin(pose.Theta)*float64(3*size))),
			r.PoseColor)
		if r.Labels {
			drawText(img, cx+size, cy-size, strconv.Itoa(pose.Index), labelColor)
		}
	}
	return img, nil
}

func fillRect(img *image.RGBA, x, y, w, h int, c color.Color) {
	draw.Draw(img, image.Rect(x, y, x+w, y+h).Intersect(img.Bounds()), image.NewUniform(c), image.Point{}, draw.Over)
}

// drawLine draws an aliased DDA line.
func drawLine(img *image.RGBA, x0, y0, x1, y1 int, c color.Color) {
	steps := max(abs(x1-x0), abs(y1-y0))
	if steps == 0 {
		img.Set(x0, y0, c)
		return
	}
	for i := 0; i <= steps; i++ {
		t := float64(i) / float64(steps)
		x := x0 + int(math.Round(t*float64(x1-x0)))
		y := y0 + int(math.Round(t*float64(y1-y0)))
		img.Set(x, y, c)
	}
}

func drawText(img *image.RGBA, x, y int, text string, c color.Color) {
	d := &font.Drawer{
		Dst:  img,
		Src:  image.NewUniform(c),
		Face: basicfont.Face7x13,
		Dot:  fixed.Point26_6{X: fixed.I(x), Y: fixed.I(y)},
	}
	d.DrawString(text)
}

func abs(x int) int {
	if x < 0 {
		return -x
	}
	return x
}
