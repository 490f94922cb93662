package mesh

import (
	"math"
	"sort"
	"sync"
	"time"

	"github.com/kwv/tudocover/cover"
)

// PlannedPose is a selected sensing pose in map coordinates.
type PlannedPose struct {
	Index int     `json:"index"` // candidate index
	X     float64 `json:"x"`     // centimeters
	Y     float64 `json:"y"`     // centimeters
	Angle float64 `json:"angle"` // degrees, 0 = +x, counter-clockwise
	GridX int     `json:"gridX"`
	GridY int     `json:"gridY"`
}

// SegmentPlan is the plan for one segment (or the whole floor when
// SegmentID is empty) of one vacuum's map.
type SegmentPlan struct {
	ID          string        `json:"id"`
	VacuumID    string        `json:"vacuumId"`
	SegmentID   string        `json:"segmentId"`
	SegmentName string        `json:"segmentName,omitempty"`
	CreatedAt   time.Time     `json:"createdAt"`
	MapVersion  int           `json:"mapVersion"`
	Params      cover.Params  `json:"params"`
	Poses       []PlannedPose `json:"poses"`
	Coverage    float64       `json:"coverage"`

	Grid   *cover.OccupancyGrid `json:"-"`
	Result *cover.Result        `json:"result,omitempty"`
}

// NewSegmentPlan converts a planner result into map coordinates.
func NewSegmentPlan(vacuumID string, seg Segment, grid *cover.OccupancyGrid, params cover.Params, res *cover.Result) *SegmentPlan {
	p := &SegmentPlan{
		VacuumID:    vacuumID,
		SegmentID:   seg.ID,
		SegmentName: seg.Name,
		CreatedAt:   time.Now().UTC(),
		Params:      params,
		Grid:        grid,
		Result:      res,
		Poses:       make([]PlannedPose, 0, len(res.Poses)),
		Coverage:    res.Coverage(),
	}
	for _, pose := range res.Poses {
		c := GridToMap(grid, cover.Point{X: float64(pose.X), Y: float64(pose.Y)})
		p.Poses = append(p.Poses, PlannedPose{
			Index: pose.Index,
			X:     math.Round(c.X*10) / 10,
			Y:     math.Round(c.Y*10) / 10,
			Angle: pose.Theta * 180 / math.Pi,
			GridX: pose.X,
			GridY: pose.Y,
		})
	}
	return p
}

// Key identifies the plan in trackers and HTTP routes.
func (p *SegmentPlan) Key() string {
	return planKey(p.VacuumID, p.SegmentID)
}

func planKey(vacuumID, segmentID string) string {
	return vacuumID + "/" + segmentID
}

// PlanTracker keeps the latest map and plans per vacuum for the HTTP
// endpoints.
type PlanTracker struct {
	mu     sync.RWMutex
	maps   map[string]*ValetudoMap
	plans  map[string]*SegmentPlan
	colors map[string]string
}

// NewPlanTracker creates an empty tracker.
func NewPlanTracker() *PlanTracker {
	return &PlanTracker{
		maps:   make(map[string]*ValetudoMap),
		plans:  make(map[string]*SegmentPlan),
		colors: make(map[string]string),
	}
}

// SetColor sets the hex color used when drawing a vacuum's plans.
func (t *PlanTracker) SetColor(vacuumID, hexColor string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.colors[vacuumID] = hexColor
}

// Color returns the vacuum's color, red if none was configured.
func (t *PlanTracker) Color(vacuumID string) string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if c := t.colors[vacuumID]; c != "" {
		return c
	}
	return "#FF0000"
}

// UpdateMap stores the latest map for a vacuum.
func (t *PlanTracker) UpdateMap(vacuumID string, m *ValetudoMap) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.maps[vacuumID] = m
}

// GetMap returns the latest map for a vacuum.
func (t *PlanTracker) GetMap(vacuumID string) (*ValetudoMap, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	m, ok := t.maps[vacuumID]
	return m, ok
}

// HasMaps returns true if at least one map was received.
func (t *PlanTracker) HasMaps() bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.maps) > 0
}

// SetPlan replaces the plan for the plan's vacuum and segment.
func (t *PlanTracker) SetPlan(p *SegmentPlan) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.plans[p.Key()] = p
}

// GetPlan returns the latest plan for a vacuum and segment.
func (t *PlanTracker) GetPlan(vacuumID, segmentID string) (*SegmentPlan, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	p, ok := t.plans[planKey(vacuumID, segmentID)]
	return p, ok
}

// Plans returns all plans ordered by vacuum and segment.
func (t *PlanTracker) Plans() []*SegmentPlan {
	t.mu.RLock()
	out := make([]*SegmentPlan, 0, len(t.plans))
	for _, p := range t.plans {
		out = append(out, p)
	}
	t.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].VacuumID != out[j].VacuumID {
			return out[i].VacuumID < out[j].VacuumID
		}
		return out[i].SegmentID < out[j].SegmentID
	})
	return out
}

// DropPlans forgets every plan of a vacuum, for example after its map
// changed shape.
func (t *PlanTracker) DropPlans(vacuumID string) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	n := 0
	for k, p := range t.plans {
		if p.VacuumID == vacuumID {
			delete(t.plans, k)
			n++
		}
	}
	return n
}
