package report

import (
	"fmt"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"

	"github.com/kwv/tudocover/cover"
	"github.com/kwv/tudocover/mesh"
)

// Feature kinds written to the "kind" property.
const (
	KindPose      = "pose"
	KindFootprint = "footprint"
	KindUncovered = "uncovered"
)

// PlanFeatureCollection exports a plan in map centimeters: one Point per
// pose, one Polygon per pose footprint and one Point per uncovered cell.
// Footprints and uncovered cells need the plan's grid.
func PlanFeatureCollection(plan *mesh.SegmentPlan) (*geojson.FeatureCollection, error) {
	if plan == nil {
		return nil, fmt.Errorf("geojson: nil plan")
	}
	fc := geojson.NewFeatureCollection()

	for _, p := range plan.Poses {
		f := geojson.NewFeature(orb.Point{p.X, p.Y})
		f.ID = fmt.Sprintf("pose-%d", p.Index)
		f.Properties["kind"] = KindPose
		f.Properties["index"] = p.Index
		f.Properties["angle"] = p.Angle
		f.Properties["vacuumId"] = plan.VacuumID
		f.Properties["segmentId"] = plan.SegmentID
		fc.Append(f)
	}

	if plan.Grid == nil || plan.Result == nil {
		return fc, nil
	}

	for _, pose := range plan.Result.Poses {
		placed := plan.Params.Footprint.Place(plan.Grid, pose)
		if len(placed) < 3 {
			continue
		}
		ring := make(orb.Ring, 0, len(placed)+1)
		for _, px := range placed {
			c := mesh.GridToMap(plan.Grid, px)
			ring = append(ring, orb.Point{c.X, c.Y})
		}
		ring = append(ring, ring[0])

		f := geojson.NewFeature(orb.Polygon{ring})
		f.ID = fmt.Sprintf("footprint-%d", pose.Index)
		f.Properties["kind"] = KindFootprint
		f.Properties["index"] = pose.Index
		fc.Append(f)
	}

	for _, cell := range plan.Result.Uncovered {
		c := mesh.GridToMap(plan.Grid, cover.Point{X: float64(cell.X), Y: float64(cell.Y)})
		f := geojson.NewFeature(orb.Point{c.X, c.Y})
		f.Properties["kind"] = KindUncovered
		f.Properties["gridX"] = cell.GridX
		f.Properties["gridY"] = cell.GridY
		fc.Append(f)
	}
	return fc, nil
}
