package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"image/png"
	"log"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/kwv/tudocover/mesh"
	"github.com/kwv/tudocover/report"
	"github.com/kwv/tudocover/store"
)

// wholeFloor is the URL segment for plans without a segment.
const wholeFloor = "all"

// PlanHistory is the archive read by the HTTP endpoints.
type PlanHistory interface {
	Latest(ctx context.Context, vacuumID, segmentID string) (*store.Record, error)
	List(ctx context.Context, vacuumID string, limit int) ([]*store.Record, error)
}

// planSummary is one entry of the /plans listing.
type planSummary struct {
	ID          string    `json:"id"`
	VacuumID    string    `json:"vacuumId"`
	SegmentID   string    `json:"segmentId"`
	SegmentName string    `json:"segmentName,omitempty"`
	PoseCount   int       `json:"poseCount"`
	Coverage    float64   `json:"coverage"`
	CreatedAt   time.Time `json:"createdAt"`
	URL         string    `json:"url"`
}

func segmentFromURL(s string) string {
	if s == wholeFloor {
		return ""
	}
	return s
}

func segmentToURL(s string) string {
	if s == "" {
		return wholeFloor
	}
	return s
}

// newHTTPServer creates an HTTP server with all endpoints. history may be
// nil, in which case only in-memory plans are served.
func newHTTPServer(tracker *mesh.PlanTracker, history PlanHistory) http.Handler {
	mux := http.NewServeMux()

	// Health check endpoint
	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		status := struct {
			Status    string    `json:"status"`
			Timestamp time.Time `json:"timestamp"`
			HasMaps   bool      `json:"hasMaps"`
			Plans     int       `json:"plans"`
		}{
			Status:    "ok",
			Timestamp: time.Now(),
			HasMaps:   tracker.HasMaps(),
			Plans:     len(tracker.Plans()),
		}
		writeJSON(w, status)
	})

	mux.HandleFunc("GET /plans", func(w http.ResponseWriter, r *http.Request) {
		plans := tracker.Plans()
		out := make([]planSummary, 0, len(plans))
		for _, p := range plans {
			out = append(out, planSummary{
				ID:          p.ID,
				VacuumID:    p.VacuumID,
				SegmentID:   p.SegmentID,
				SegmentName: p.SegmentName,
				PoseCount:   len(p.Poses),
				Coverage:    p.Coverage,
				CreatedAt:   p.CreatedAt,
				URL:         "/plans/" + p.VacuumID + "/" + segmentToURL(p.SegmentID),
			})
		}
		writeJSON(w, out)
	})

	// {file} is "<segment>" or "<segment>.<ext>".
	mux.HandleFunc("GET /plans/{vacuum}/{file}", func(w http.ResponseWriter, r *http.Request) {
		vacuumID := r.PathValue("vacuum")
		file := r.PathValue("file")
		segment, ext := file, ""
		if i := strings.LastIndexByte(file, '.'); i > 0 {
			segment, ext = file[:i], file[i+1:]
		}
		segmentID := segmentFromURL(segment)

		switch ext {
		case "", "json":
			plan, ok := lookupPlan(r.Context(), tracker, history, vacuumID, segmentID)
			if !ok {
				http.Error(w, "No plan available", http.StatusNotFound)
				return
			}
			writeJSON(w, plan)
		case "geojson":
			plan, ok := lookupPlan(r.Context(), tracker, history, vacuumID, segmentID)
			if !ok {
				http.Error(w, "No plan available", http.StatusNotFound)
				return
			}
			fc, err := report.PlanFeatureCollection(plan)
			if err != nil {
				http.Error(w, err.Error(), http.StatusInternalServerError)
				return
			}
			data, err := fc.MarshalJSON()
			if err != nil {
				http.Error(w, err.Error(), http.StatusInternalServerError)
				return
			}
			w.Header().Set("Content-Type", "application/geo+json")
			w.Write(data)
		case "png":
			plan, ok := tracker.GetPlan(vacuumID, segmentID)
			if !ok || plan.Grid == nil {
				http.Error(w, "No plan drawing available", http.StatusNotFound)
				return
			}
			img, err := report.NewRasterRenderer(report.ColorOrDefault(tracker.Color(vacuumID))).Render(plan)
			if err != nil {
				http.Error(w, err.Error(), http.StatusInternalServerError)
				return
			}
			var buf bytes.Buffer
			if err := png.Encode(&buf, img); err != nil {
				log.Printf("Error encoding plan PNG: %v", err)
				http.Error(w, "encoding failed", http.StatusInternalServerError)
				return
			}
			writeImage(w, "image/png", buf.Bytes())
		case "svg":
			plan, ok := tracker.GetPlan(vacuumID, segmentID)
			if !ok || plan.Grid == nil {
				http.Error(w, "No plan drawing available", http.StatusNotFound)
				return
			}
			var buf bytes.Buffer
			if err := report.NewVectorRenderer(report.ColorOrDefault(tracker.Color(vacuumID))).RenderSVG(&buf, plan); err != nil {
				log.Printf("Error rendering plan SVG: %v", err)
				http.Error(w, "rendering failed", http.StatusInternalServerError)
				return
			}
			writeImage(w, "image/svg+xml", buf.Bytes())
		default:
			http.Error(w, "Unsupported format: "+ext, http.StatusNotFound)
		}
	})

	mux.HandleFunc("GET /plans/{vacuum}/{segment}/convergence.png", func(w http.ResponseWriter, r *http.Request) {
		plan, ok := tracker.GetPlan(r.PathValue("vacuum"), segmentFromURL(r.PathValue("segment")))
		if !ok || plan.Result == nil || plan.Result.Relaxation == nil {
			http.Error(w, "No planner run available", http.StatusNotFound)
			return
		}
		var buf bytes.Buffer
		if err := report.ConvergencePlot(&buf, plan.Result.Relaxation, len(plan.Result.Candidates), planTitle(plan)); err != nil {
			log.Printf("Error plotting convergence: %v", err)
			http.Error(w, "plotting failed", http.StatusInternalServerError)
			return
		}
		writeImage(w, "image/png", buf.Bytes())
	})

	mux.HandleFunc("GET /history/{vacuum}", func(w http.ResponseWriter, r *http.Request) {
		if history == nil {
			http.Error(w, "No plan archive configured", http.StatusNotFound)
			return
		}
		limit := 50
		if s := r.URL.Query().Get("limit"); s != "" {
			n, err := strconv.Atoi(s)
			if err != nil || n < 0 {
				http.Error(w, "invalid limit", http.StatusBadRequest)
				return
			}
			limit = n
		}
		records, err := history.List(r.Context(), r.PathValue("vacuum"), limit)
		if err != nil {
			log.Printf("Error listing plans: %v", err)
			http.Error(w, "listing failed", http.StatusInternalServerError)
			return
		}
		if records == nil {
			records = []*store.Record{}
		}
		writeJSON(w, records)
	})

	return withLogging(mux)
}

// lookupPlan prefers the in-memory plan and falls back to the archive.
func lookupPlan(ctx context.Context, tracker *mesh.PlanTracker, history PlanHistory, vacuumID, segmentID string) (*mesh.SegmentPlan, bool) {
	if plan, ok := tracker.GetPlan(vacuumID, segmentID); ok {
		return plan, true
	}
	if history == nil {
		return nil, false
	}
	rec, err := history.Latest(ctx, vacuumID, segmentID)
	if err != nil {
		if !errors.Is(err, store.ErrNotFound) {
			log.Printf("Error reading archived plan for %s/%s: %v", vacuumID, segmentID, err)
		}
		return nil, false
	}
	return rec.Plan(), true
}

func writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("Error encoding response: %v", err)
	}
}

func writeImage(w http.ResponseWriter, contentType string, data []byte) {
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Cache-Control", "no-cache")
	if _, err := w.Write(data); err != nil {
		log.Printf("Error writing %s: %v", contentType, err)
	}
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func withLogging(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		log.Printf("[HTTP] %s %s from %s: %d (%v)", r.Method, r.URL.Path, r.RemoteAddr, rec.status, time.Since(start).Round(time.Millisecond))
	})
}
