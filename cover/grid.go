package cover

import (
	"fmt"
	"image"
	"image/color"
	"math"
)

// Point is a 2D coordinate. Depending on context it is in pixels or meters.
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Norm returns the Euclidean length of p seen as a vector.
func (p Point) Norm() float64 {
	return math.Hypot(p.X, p.Y)
}

// Dot returns the dot product of p and q.
func (p Point) Dot(q Point) float64 {
	return p.X*q.X + p.Y*q.Y
}

// Rotate rotates p around the origin by theta radians (counter-clockwise).
func (p Point) Rotate(theta float64) Point {
	sin, cos := math.Sincos(theta)
	return Point{
		X: cos*p.X - sin*p.Y,
		Y: sin*p.X + cos*p.Y,
	}
}

// Pixel is an integer pixel coordinate in an occupancy grid.
type Pixel struct {
	X int `json:"x"`
	Y int `json:"y"`
}

// Bounds is an inclusive pixel rectangle.
type Bounds struct {
	Min Pixel `json:"min"`
	Max Pixel `json:"max"`
}

// Empty reports whether b contains no pixels.
func (b Bounds) Empty() bool {
	return b.Max.X < b.Min.X || b.Max.Y < b.Min.Y
}

// IsZero reports whether b is the zero value (meaning "whole grid").
func (b Bounds) IsZero() bool {
	return b == Bounds{}
}

// Intersect returns the overlap of b and o.
func (b Bounds) Intersect(o Bounds) Bounds {
	return Bounds{
		Min: Pixel{X: max(b.Min.X, o.Min.X), Y: max(b.Min.Y, o.Min.Y)},
		Max: Pixel{X: min(b.Max.X, o.Max.X), Y: min(b.Max.Y, o.Max.Y)},
	}
}

// OccupancyGrid is a free/occupied raster at a fixed metric resolution.
// Pixel (0,0) sits at Origin (meters); x grows with columns, y with rows.
type OccupancyGrid struct {
	Width      int
	Height     int
	Resolution float64 // meters per pixel
	Origin     Point   // meters

	free []bool
}

// NewOccupancyGrid creates a fully occupied grid.
func NewOccupancyGrid(width, height int, resolution float64, origin Point) (*OccupancyGrid, error) {
	if width <= 0 || height <= 0 {
		return nil, fmt.Errorf("occupancy grid: invalid size %dx%d", width, height)
	}
	if resolution <= 0 || math.IsNaN(resolution) || math.IsInf(resolution, 0) {
		return nil, fmt.Errorf("occupancy grid: invalid resolution %v", resolution)
	}
	return &OccupancyGrid{
		Width:      width,
		Height:     height,
		Resolution: resolution,
		Origin:     origin,
		free:       make([]bool, width*height),
	}, nil
}

// InBounds reports whether (x, y) lies inside the grid.
func (g *OccupancyGrid) InBounds(x, y int) bool {
	return x >= 0 && y >= 0 && x < g.Width && y < g.Height
}

// IsFree reports whether (x, y) is free space. Out-of-bounds pixels are occupied.
func (g *OccupancyGrid) IsFree(x, y int) bool {
	if !g.InBounds(x, y) {
		return false
	}
	return g.free[y*g.Width+x]
}

// SetFree marks (x, y) free or occupied. Out-of-bounds writes are ignored.
func (g *OccupancyGrid) SetFree(x, y int, free bool) {
	if !g.InBounds(x, y) {
		return
	}
	g.free[y*g.Width+x] = free
}

// FreeCount returns the number of free pixels.
func (g *OccupancyGrid) FreeCount() int {
	n := 0
	for _, f := range g.free {
		if f {
			n++
		}
	}
	return n
}

// Bounds returns the inclusive pixel rectangle covering the whole grid.
func (g *OccupancyGrid) Bounds() Bounds {
	return Bounds{Max: Pixel{X: g.Width - 1, Y: g.Height - 1}}
}

// FreeBounds returns the tightest rectangle around all free pixels and false
// if there are none.
func (g *OccupancyGrid) FreeBounds() (Bounds, bool) {
	b := Bounds{
		Min: Pixel{X: g.Width, Y: g.Height},
		Max: Pixel{X: -1, Y: -1},
	}
	for y := 0; y < g.Height; y++ {
		for x := 0; x < g.Width; x++ {
			if !g.free[y*g.Width+x] {
				continue
			}
			b.Min.X = min(b.Min.X, x)
			b.Min.Y = min(b.Min.Y, y)
			b.Max.X = max(b.Max.X, x)
			b.Max.Y = max(b.Max.Y, y)
		}
	}
	return b, !b.Empty()
}

// PixelToWorld converts a pixel coordinate to meters.
func (g *OccupancyGrid) PixelToWorld(p Point) Point {
	return Point{
		X: p.X*g.Resolution + g.Origin.X,
		Y: p.Y*g.Resolution + g.Origin.Y,
	}
}

// WorldToPixel converts meters to (fractional) pixel coordinates.
func (g *OccupancyGrid) WorldToPixel(p Point) Point {
	return Point{
		X: (p.X - g.Origin.X) / g.Resolution,
		Y: (p.Y - g.Origin.Y) / g.Resolution,
	}
}

// OccupancyFromImage builds a grid from a map image. Only pure white pixels
// (gray value 255) are free, everything else is an obstacle.
func OccupancyFromImage(img image.Image, resolution float64, origin Point) (*OccupancyGrid, error) {
	r := img.Bounds()
	g, err := NewOccupancyGrid(r.Dx(), r.Dy(), resolution, origin)
	if err != nil {
		return nil, err
	}
	for y := r.Min.Y; y < r.Max.Y; y++ {
		for x := r.Min.X; x < r.Max.X; x++ {
			gray := color.GrayModel.Convert(img.At(x, y)).(color.Gray)
			g.SetFree(x-r.Min.X, y-r.Min.Y, gray.Y == 255)
		}
	}
	return g, nil
}
