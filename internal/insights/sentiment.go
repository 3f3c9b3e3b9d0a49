package insights

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/google/uuid"

	"nextsignal/config"
	"nextsignal/internal/llm"
	"nextsignal/internal/store"
	"nextsignal/metrics"
)

const sentimentTextLimit = 200

// SentimentParams describes one sentiment request. Zero values fall back to
// configured defaults; Sources defaults to ["reports"].
type SentimentParams struct {
	Area          string   `json:"area,omitempty"`
	TimeWindowSec int      `json:"timeWindow,omitempty"`
	Sources       []string `json:"sources,omitempty"`
}

// SentimentSummary is the area mood roll-up returned to the caller.
type SentimentSummary struct {
	SentimentCount int     `json:"sentimentCount"`
	AverageScore   float64 `json:"averageScore"`
	MoodCategory   string  `json:"moodCategory"`
	TimeWindow     int     `json:"timeWindow"`
	Area           string  `json:"area,omitempty"`
}

type sentimentScore struct {
	Score     float64 `json:"score"`
	Magnitude float64 `json:"magnitude"`
}

// SentimentAnalyzer scores recent report text and rolls the scores up into an
// area mood category.
type SentimentAnalyzer struct {
	store   store.Store
	client  llm.Client
	prompts *config.PromptManager
	cfg     config.InsightsConfig
	metrics *metrics.Metrics
}

// NewSentimentAnalyzer wires the sentiment boundary.
func NewSentimentAnalyzer(st store.Store, client llm.Client, prompts *config.PromptManager, cfg config.InsightsConfig, m *metrics.Metrics) *SentimentAnalyzer {
	return &SentimentAnalyzer{store: st, client: client, prompts: prompts, cfg: cfg, metrics: m}
}

// Analyze scores each text individually, skipping items the model cannot
// score, persists the scored batch, and returns the mood summary. Store
// failures are hard errors.
func (s *SentimentAnalyzer) Analyze(ctx context.Context, params SentimentParams) (SentimentSummary, error) {
	windowSec := params.TimeWindowSec
	if windowSec <= 0 {
		windowSec = s.cfg.SentimentWindowSec
	}
	sources := params.Sources
	if len(sources) == 0 {
		sources = []string{"reports"}
	}

	cutoff := time.Now().UTC().Add(-time.Duration(windowSec) * time.Second)
	var records []store.SentimentRecord
	if contains(sources, "reports") {
		reports, err := s.store.ReportsSince(ctx, cutoff, s.cfg.MaxSentimentTexts)
		if err != nil {
			return SentimentSummary{}, fmt.Errorf("fetch reports: %w", err)
		}
		for _, r := range reports {
			text := strings.TrimSpace(r.Title + " " + r.Description)
			score, err := s.scoreText(ctx, text)
			if err != nil {
				log.Printf("sentiment scoring failed for %s: %v", r.ID, err)
				continue
			}
			if len(text) > sentimentTextLimit {
				text = text[:sentimentTextLimit]
			}
			records = append(records, store.SentimentRecord{
				ID:         uuid.NewString(),
				SourceID:   r.ID,
				SourceType: "report",
				Score:      score.Score,
				Magnitude:  score.Magnitude,
				Location:   r.Location,
				Text:       text,
				SourceTime: r.Timestamp,
				Timestamp:  time.Now().UTC(),
			})
		}
	}

	if err := s.store.InsertSentimentBatch(ctx, records); err != nil {
		return SentimentSummary{}, fmt.Errorf("persist sentiment: %w", err)
	}

	summary := SentimentSummary{
		SentimentCount: len(records),
		MoodCategory:   "neutral",
		TimeWindow:     windowSec,
		Area:           params.Area,
	}
	if len(records) > 0 {
		var sum float64
		for _, rec := range records {
			sum += rec.Score
		}
		summary.AverageScore = sum / float64(len(records))
		summary.MoodCategory = moodCategory(summary.AverageScore)
	}
	return summary, nil
}

func (s *SentimentAnalyzer) scoreText(ctx context.Context, text string) (sentimentScore, error) {
	prompt := strings.TrimSpace(s.prompts.Current().SentimentPrompt) + "\n\nText: " + text
	var score sentimentScore
	if err := llm.Structured(ctx, s.client, llm.Request{Prompt: prompt}, &score); err != nil {
		s.metrics.RecordAICall(true)
		return sentimentScore{}, err
	}
	s.metrics.RecordAICall(false)
	return score, nil
}

func moodCategory(avg float64) string {
	switch {
	case avg > 0.1:
		return "positive"
	case avg < -0.1:
		return "negative"
	default:
		return "neutral"
	}
}

func contains(values []string, want string) bool {
	for _, v := range values {
		if v == want {
			return true
		}
	}
	return false
}
