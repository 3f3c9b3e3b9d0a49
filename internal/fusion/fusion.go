package fusion

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"nextsignal/config"
	"nextsignal/internal/geo"
	"nextsignal/internal/report"
	"nextsignal/internal/store"
	"nextsignal/metrics"
)

// Params describes one fusion invocation. Zero Radius/TimeWindow fall back to
// the configured defaults.
type Params struct {
	Center        geo.Point `json:"location"`
	RadiusMeters  float64   `json:"radius,omitempty"`
	TimeWindowSec int       `json:"timeWindow,omitempty"`
}

// Result is the fusion outcome: the events persisted this run and the number
// of candidate reports that fell inside the radius. On a partial persistence
// failure Events holds exactly the events that made it to the store.
type Result struct {
	Events      []report.Event `json:"events"`
	ReportCount int            `json:"reportCount"`
}

// Orchestrator runs the full pipeline: fetch, filter, group, synthesize,
// persist.
type Orchestrator struct {
	store   store.Store
	grouper *AIGrouper
	synth   *Synthesizer
	cfg     config.FusionConfig
	metrics *metrics.Metrics
}

// NewOrchestrator wires the pipeline over its collaborators.
func NewOrchestrator(st store.Store, grouper *AIGrouper, synth *Synthesizer, cfg config.FusionConfig, m *metrics.Metrics) *Orchestrator {
	return &Orchestrator{store: st, grouper: grouper, synth: synth, cfg: cfg, metrics: m}
}

// Run executes one fusion pass around p.Center. Store failures are hard
// errors; AI failures never are. With zero candidates in range the run is a
// true no-op: no grouping, synthesis, or store writes happen.
func (o *Orchestrator) Run(ctx context.Context, p Params) (Result, error) {
	if err := geo.Validate(p.Center); err != nil {
		return Result{}, err
	}
	radius := p.RadiusMeters
	if radius <= 0 {
		radius = o.cfg.DefaultRadiusMeters
	}
	windowSec := p.TimeWindowSec
	if windowSec <= 0 {
		windowSec = o.cfg.DefaultTimeWindowSec
	}
	o.metrics.RecordFusionRun()

	cutoff := time.Now().UTC().Add(-time.Duration(windowSec) * time.Second)
	fetched, err := o.store.ReportsSince(ctx, cutoff, o.cfg.MaxReports)
	if err != nil {
		return Result{}, fmt.Errorf("fetch candidate reports: %w", err)
	}

	candidates := make([]report.Report, 0, len(fetched))
	for _, r := range fetched {
		if geo.Distance(p.Center, r.Location) <= radius {
			candidates = append(candidates, r)
		}
	}
	if len(candidates) == 0 {
		return Result{Events: []report.Event{}, ReportCount: 0}, nil
	}

	groups := o.grouper.Group(ctx, candidates)

	// Groups are independent; synthesize concurrently, persist in order.
	events := make([]report.Event, len(groups))
	var wg sync.WaitGroup
	for i, g := range groups {
		wg.Add(1)
		go func(i int, g report.Group) {
			defer wg.Done()
			events[i] = o.synth.Synthesize(ctx, g)
		}(i, g)
	}
	wg.Wait()

	persisted := make([]report.Event, 0, len(events))
	for _, e := range events {
		if err := o.store.InsertEvent(ctx, e); err != nil {
			o.metrics.RecordEventsCreated(len(persisted))
			return Result{Events: persisted, ReportCount: len(candidates)},
				fmt.Errorf("persist event %s: %w", e.ID, err)
		}
		persisted = append(persisted, e)
	}
	o.metrics.RecordEventsCreated(len(persisted))
	log.Printf("fusion run created %d events from %d reports", len(persisted), len(candidates))

	return Result{Events: persisted, ReportCount: len(candidates)}, nil
}
