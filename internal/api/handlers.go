package api

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"nextsignal/internal/fusion"
	"nextsignal/internal/geo"
	"nextsignal/internal/insights"
	"nextsignal/internal/media"
	"nextsignal/internal/report"
	"nextsignal/internal/store"
	"nextsignal/queue"
)

type createReportRequest struct {
	Category    string    `json:"category"`
	Severity    string    `json:"severity"`
	Title       string    `json:"title"`
	Description string    `json:"description"`
	Location    geo.Point `json:"location"`
	Address     string    `json:"address"`
}

func (r *Router) reports(w http.ResponseWriter, req *http.Request) {
	if req.Method == http.MethodGet {
		r.listReports(w, req)
		return
	}
	if req.Method != http.MethodPost {
		writeError(w, KindInvalidArgument, "method not allowed")
		return
	}
	var body createReportRequest
	if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
		writeError(w, KindInvalidArgument, "invalid json body")
		return
	}
	rpt := report.Report{
		ID:          uuid.NewString(),
		Category:    body.Category,
		Severity:    body.Severity,
		Title:       body.Title,
		Description: body.Description,
		Location:    body.Location,
		Address:     body.Address,
		Status:      report.StatusPending,
		Timestamp:   time.Now().UTC(),
	}
	if err := rpt.Validate(); err != nil {
		writeError(w, KindInvalidArgument, err.Error())
		return
	}
	if err := r.store.InsertReport(req.Context(), rpt); err != nil {
		writeError(w, KindInternal, "failed to store report")
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	respondJSON(w, rpt)
}

// listReports returns recent reports, newest first. An optional sinceSec
// query bounds how far back the listing reaches.
func (r *Router) listReports(w http.ResponseWriter, req *http.Request) {
	limit := parseIntDefault(req.URL.Query().Get("limit"), 100)
	var cutoff time.Time
	if sinceSec := parseIntDefault(req.URL.Query().Get("sinceSec"), 0); sinceSec > 0 {
		cutoff = time.Now().UTC().Add(-time.Duration(sinceSec) * time.Second)
	}
	list, err := r.store.ReportsSince(req.Context(), cutoff, limit)
	if err != nil {
		writeError(w, KindInternal, "failed to list reports")
		return
	}
	if list == nil {
		list = []report.Report{}
	}
	respondJSON(w, map[string]interface{}{"reports": list})
}

// reportDetail serves /api/reports/{id} and /api/reports/{id}/analyze.
func (r *Router) reportDetail(w http.ResponseWriter, req *http.Request) {
	rest := strings.TrimPrefix(req.URL.Path, "/api/reports/")
	if id, ok := strings.CutSuffix(rest, "/analyze"); ok {
		r.analyzeReport(w, req, id)
		return
	}
	if req.Method != http.MethodGet {
		writeError(w, KindInvalidArgument, "method not allowed")
		return
	}
	rpt, err := r.store.GetReport(req.Context(), rest)
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, KindNotFound, "report not found")
		return
	}
	if err != nil {
		writeError(w, KindInternal, "failed to load report")
		return
	}
	respondJSON(w, rpt)
}

type analyzeRequest struct {
	MediaURLs []media.Item `json:"mediaUrls"`
}

// analyzeReport runs media analysis for a report and then kicks off a
// fire-and-forget fusion run around the report's location. A failed trigger
// is logged, never surfaced.
func (r *Router) analyzeReport(w http.ResponseWriter, req *http.Request, reportID string) {
	if req.Method != http.MethodPost {
		writeError(w, KindInvalidArgument, "method not allowed")
		return
	}
	if !r.authenticated(req) {
		writeError(w, KindUnauthenticated, "missing or invalid token")
		return
	}
	var body analyzeRequest
	if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
		writeError(w, KindInvalidArgument, "invalid json body")
		return
	}
	if len(body.MediaURLs) == 0 {
		writeError(w, KindInvalidArgument, "mediaUrls is required")
		return
	}

	rpt, err := r.store.GetReport(req.Context(), reportID)
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, KindNotFound, "report not found")
		return
	}
	if err != nil {
		writeError(w, KindInternal, "failed to load report")
		return
	}

	entries := r.analyzer.Analyze(req.Context(), body.MediaURLs)
	if err := r.store.AppendMediaAnalysis(req.Context(), rpt.ID, entries); err != nil {
		writeError(w, KindInternal, "failed to store media analysis")
		return
	}

	center := rpt.Location
	ok := r.queue.Enqueue(queue.Job{
		ID:   uuid.NewString(),
		Kind: queue.KindFusion,
		Work: func(ctx context.Context) error {
			_, err := r.fusion.Run(ctx, fusion.Params{Center: center})
			return err
		},
	})
	if !ok {
		log.Printf("fusion trigger dropped for report %s", rpt.ID)
	}

	respondJSON(w, map[string]interface{}{"mediaAnalysis": entries})
}

func (r *Router) runFusion(w http.ResponseWriter, req *http.Request) {
	if req.Method != http.MethodPost {
		writeError(w, KindInvalidArgument, "method not allowed")
		return
	}
	var params fusion.Params
	if err := json.NewDecoder(req.Body).Decode(&params); err != nil {
		writeError(w, KindInvalidArgument, "invalid json body")
		return
	}
	result, err := r.fusion.Run(req.Context(), params)
	if errors.Is(err, geo.ErrInvalidCoordinate) {
		writeError(w, KindInvalidArgument, "invalid center coordinate")
		return
	}
	if err != nil {
		// Partial success: report what was persisted alongside the error.
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusInternalServerError)
		respondJSON(w, map[string]interface{}{
			"error":       errorBody{Kind: KindInternal, Message: err.Error()},
			"events":      result.Events,
			"reportCount": result.ReportCount,
		})
		return
	}
	respondJSON(w, result)
}

func (r *Router) events(w http.ResponseWriter, req *http.Request) {
	if req.Method != http.MethodGet {
		writeError(w, KindInvalidArgument, "method not allowed")
		return
	}
	activeOnly := req.URL.Query().Get("active") == "true"
	limit := parseIntDefault(req.URL.Query().Get("limit"), 100)
	list, err := r.store.ListEvents(req.Context(), activeOnly, limit)
	if err != nil {
		writeError(w, KindInternal, "failed to list events")
		return
	}
	if list == nil {
		list = []report.Event{}
	}
	respondJSON(w, map[string]interface{}{"events": list})
}

func (r *Router) predictions(w http.ResponseWriter, req *http.Request) {
	if req.Method != http.MethodPost {
		writeError(w, KindInvalidArgument, "method not allowed")
		return
	}
	var params insights.PredictionParams
	if err := json.NewDecoder(req.Body).Decode(&params); err != nil {
		writeError(w, KindInvalidArgument, "invalid json body")
		return
	}
	predictions, err := r.predictor.Generate(req.Context(), params)
	if err != nil {
		writeError(w, KindInternal, err.Error())
		return
	}
	respondJSON(w, map[string]interface{}{"predictions": predictions})
}

func (r *Router) sentimentHandler(w http.ResponseWriter, req *http.Request) {
	if req.Method != http.MethodPost {
		writeError(w, KindInvalidArgument, "method not allowed")
		return
	}
	var params insights.SentimentParams
	if err := json.NewDecoder(req.Body).Decode(&params); err != nil {
		writeError(w, KindInvalidArgument, "invalid json body")
		return
	}
	summary, err := r.sentiment.Analyze(req.Context(), params)
	if err != nil {
		writeError(w, KindInternal, err.Error())
		return
	}
	respondJSON(w, summary)
}

func (r *Router) status(w http.ResponseWriter, req *http.Request) {
	respondJSON(w, map[string]interface{}{
		"queue":   r.queue.Stats(),
		"metrics": r.metrics.Snapshot(),
		"workers": r.cfg.WorkerCount,
	})
}

func (r *Router) health(w http.ResponseWriter, req *http.Request) {
	if err := r.store.Health(req.Context()); err != nil {
		writeError(w, KindUnavailable, err.Error())
		return
	}
	if !r.queue.Healthy() {
		writeError(w, KindUnavailable, "job queue not started")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func parseIntDefault(s string, def int) int {
	if s == "" {
		return def
	}
	v, err := strconv.Atoi(s)
	if err != nil || v <= 0 {
		return def
	}
	return v
}
