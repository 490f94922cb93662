package cover

import (
	"fmt"
	"math"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/planar"
)

// Footprint is the sensing polygon in the robot frame (meters) together with
// the scalars used to gate visibility checks before the polygon test.
type Footprint struct {
	Points []Point `json:"points"`

	// CentroidVector points from the pose origin to the footprint centroid.
	CentroidVector Point `json:"centroidVector"`
	// MaxAngle is the largest angle (radians) between CentroidVector and a
	// footprint corner.
	MaxAngle float64 `json:"maxAngle"`
	// MinRadius and MaxRadius bound the distance (meters) from the pose
	// origin to the footprint corners.
	MinRadius float64 `json:"minRadius"`
	MaxRadius float64 `json:"maxRadius"`
}

// NewFootprint derives centroid vector, half-angle and radii from the polygon
// corners.
func NewFootprint(points []Point) (Footprint, error) {
	if len(points) < 3 {
		return Footprint{}, fmt.Errorf("%w: need at least 3 points, got %d", ErrDegenerateFootprint, len(points))
	}

	mp := make(orb.MultiPoint, len(points))
	for i, p := range points {
		mp[i] = orb.Point{p.X, p.Y}
	}
	c, _ := planar.CentroidArea(mp)
	centroid := Point{X: c[0], Y: c[1]}
	if centroid.Norm() == 0 {
		return Footprint{}, fmt.Errorf("%w: centroid coincides with the sensor origin", ErrDegenerateFootprint)
	}

	fp := Footprint{
		Points:         append([]Point(nil), points...),
		CentroidVector: centroid,
		MinRadius:      math.Inf(1),
	}
	for _, p := range points {
		r := p.Norm()
		fp.MinRadius = math.Min(fp.MinRadius, r)
		fp.MaxRadius = math.Max(fp.MaxRadius, r)
		if r == 0 {
			continue
		}
		fp.MaxAngle = math.Max(fp.MaxAngle, angleBetween(centroid, p))
	}
	return fp, nil
}

// Validate checks that the footprint can be used for visibility checks.
func (f Footprint) Validate() error {
	if len(f.Points) < 3 {
		return fmt.Errorf("%w: need at least 3 points, got %d", ErrDegenerateFootprint, len(f.Points))
	}
	if f.CentroidVector.Norm() == 0 {
		return fmt.Errorf("%w: zero centroid vector", ErrDegenerateFootprint)
	}
	if f.MinRadius < 0 || f.MaxRadius <= 0 || f.MinRadius > f.MaxRadius {
		return fmt.Errorf("%w: radii [%v, %v]", ErrDegenerateFootprint, f.MinRadius, f.MaxRadius)
	}
	if f.MaxAngle < 0 || f.MaxAngle > math.Pi {
		return fmt.Errorf("%w: half-angle %v", ErrDegenerateFootprint, f.MaxAngle)
	}
	return nil
}

// Place returns the footprint corners for pose in fractional grid pixels,
// unclipped.
func (f Footprint) Place(g *OccupancyGrid, pose CandidatePose) []Point {
	world := g.PixelToWorld(Point{X: float64(pose.X), Y: float64(pose.Y)})
	out := make([]Point, len(f.Points))
	for i, local := range f.Points {
		r := local.Rotate(pose.Theta)
		out[i] = g.WorldToPixel(Point{X: world.X + r.X, Y: world.Y + r.Y})
	}
	return out
}

// angleBetween returns the angle between a and b in [0, pi]. Callers must
// ensure neither vector has zero length.
func angleBetween(a, b Point) float64 {
	q := a.Dot(b) / (a.Norm() * b.Norm())
	// round-off can push |q| slightly past 1
	q = math.Max(-1, math.Min(1, q))
	return math.Acos(q)
}
