// Package app wires the pipeline components together and runs the service.
package app

import (
	"context"
	"log"
	"net/http"
	"time"

	"nextsignal/config"
	"nextsignal/internal/api"
	"nextsignal/internal/fusion"
	"nextsignal/internal/insights"
	"nextsignal/internal/llm"
	"nextsignal/internal/media"
	"nextsignal/internal/store"
	"nextsignal/internal/watch"
	"nextsignal/metrics"
	"nextsignal/queue"
)

// App owns the assembled service.
type App struct {
	cfg     config.Config
	store   *store.SQLite
	queue   *queue.Queue
	watcher *watch.Watcher
	mux     *http.ServeMux
}

// New assembles the service from configuration.
func New(cfg config.Config) (*App, error) {
	st, err := store.Open(cfg.DBPath)
	if err != nil {
		return nil, err
	}

	m := metrics.New()
	prompts := config.NewPromptManager(cfg.ConfigPath, cfg.Prompts)
	client := llm.NewClient(cfg.LLM, nil)

	fallback := fusion.SimilarityGrouper{RadiusMeters: cfg.Fusion.GroupRadiusMeters}
	orch := fusion.NewOrchestrator(st,
		fusion.NewAIGrouper(client, prompts, fallback, m),
		fusion.NewSynthesizer(client, prompts, m),
		cfg.Fusion, m)
	analyzer := media.NewAnalyzer(client, nil, prompts, m)
	predictor := insights.NewPredictor(st, client, prompts, cfg.Insights, m)
	sentiment := insights.NewSentimentAnalyzer(st, client, prompts, cfg.Insights, m)

	q := queue.New(cfg.JobQueueSize, cfg.WorkerCount, time.Duration(cfg.JobTimeoutSec)*time.Second, m)

	mux := http.NewServeMux()
	api.NewRouter(cfg, st, orch, analyzer, predictor, sentiment, q, m).Register(mux)

	return &App{
		cfg:     cfg,
		store:   st,
		queue:   q,
		watcher: watch.New(prompts),
		mux:     mux,
	}, nil
}

// Run starts the worker pool, the prompt watcher, and the HTTP server, and
// blocks until ctx is done or the server fails.
func (a *App) Run(ctx context.Context) error {
	a.queue.Start(ctx)
	if err := a.watcher.Start(ctx); err != nil {
		log.Printf("prompt watcher unavailable: %v", err)
	}

	srv := &http.Server{Addr: a.cfg.HTTPPort, Handler: a.mux}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		a.queue.Stop(shutdownCtx)
		_ = srv.Shutdown(shutdownCtx)
		_ = a.store.Close()
	}()
	log.Printf("http listening on %s", a.cfg.HTTPPort)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Mux exposes the handler for tests.
func (a *App) Mux() *http.ServeMux { return a.mux }
