// Package api exposes the HTTP boundary: report ingestion, media analysis,
// fusion and insight triggers under /api, and the operational surface under
// /ops. Errors carry a kind tag so callers can react without parsing
// messages.
package api

import (
	"net/http"
	"strings"

	"nextsignal/config"
	"nextsignal/internal/fusion"
	"nextsignal/internal/insights"
	"nextsignal/internal/media"
	"nextsignal/internal/store"
	"nextsignal/metrics"
	"nextsignal/queue"
)

// Router builds the HTTP handlers for /api and /ops.
type Router struct {
	cfg       config.Config
	store     store.Store
	fusion    *fusion.Orchestrator
	analyzer  *media.Analyzer
	predictor *insights.Predictor
	sentiment *insights.SentimentAnalyzer
	queue     *queue.Queue
	metrics   *metrics.Metrics
}

// NewRouter wires the boundary over its collaborators.
func NewRouter(cfg config.Config, st store.Store, orch *fusion.Orchestrator, analyzer *media.Analyzer, predictor *insights.Predictor, sentiment *insights.SentimentAnalyzer, q *queue.Queue, m *metrics.Metrics) *Router {
	return &Router{
		cfg:       cfg,
		store:     st,
		fusion:    orch,
		analyzer:  analyzer,
		predictor: predictor,
		sentiment: sentiment,
		queue:     q,
		metrics:   m,
	}
}

// Register attaches every route to mux.
func (r *Router) Register(mux *http.ServeMux) {
	mux.HandleFunc("/api/reports", r.reports)
	mux.HandleFunc("/api/reports/", r.reportDetail)
	mux.HandleFunc("/api/fusion", r.runFusion)
	mux.HandleFunc("/api/events", r.events)
	mux.HandleFunc("/api/predictions", r.predictions)
	mux.HandleFunc("/api/sentiment", r.sentimentHandler)
	mux.HandleFunc("/ops/status", r.status)
	mux.HandleFunc("/ops/health", r.health)
}

// authenticated checks the bearer token when one is configured. An empty
// configured token leaves the boundary open, matching local development use.
func (r *Router) authenticated(req *http.Request) bool {
	token := strings.TrimSpace(r.cfg.APIToken)
	if token == "" {
		return true
	}
	header := req.Header.Get("Authorization")
	return strings.HasPrefix(header, "Bearer ") && strings.TrimPrefix(header, "Bearer ") == token
}
