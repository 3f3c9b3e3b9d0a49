// Package insights builds predictive analytics and sentiment summaries over
// the stored reports and events. Both follow the same AI-call/parse/fallback
// protocol as the fusion pipeline.
package insights

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/google/uuid"

	"nextsignal/config"
	"nextsignal/internal/llm"
	"nextsignal/internal/report"
	"nextsignal/internal/store"
	"nextsignal/metrics"
)

const generatedByAnalytics = "ai_analytics"

// Prediction is one forecast entry for city management.
type Prediction struct {
	Title             string   `json:"title"`
	Description       string   `json:"description"`
	Category          string   `json:"category"`
	Risk              string   `json:"risk"`
	Confidence        float64  `json:"confidence"`
	TimeFrame         string   `json:"timeFrame"`
	Likelihood        float64  `json:"likelihood"`
	Impact            string   `json:"impact"`
	PreventiveActions string   `json:"preventiveActions"`
	MonitoringPoints  []string `json:"monitoringPoints"`
}

// CategorySummary aggregates report/event volume per category.
type CategorySummary struct {
	Category    string  `json:"category"`
	ReportCount int     `json:"reportCount"`
	EventCount  int     `json:"eventCount"`
	AvgSeverity float64 `json:"avgSeverity"`
}

// TimePatterns captures when reports arrive.
type TimePatterns struct {
	PeakHour           int   `json:"peakHour"`
	PeakDay            int   `json:"peakDay"`
	HourlyDistribution []int `json:"hourlyDistribution"`
	DailyDistribution  []int `json:"dailyDistribution"`
}

// PredictionParams describes one prediction request. Zero values fall back to
// configured defaults.
type PredictionParams struct {
	Area          string `json:"area,omitempty"`
	TimeWindowSec int    `json:"timeWindow,omitempty"`
	AnalysisType  string `json:"analysisType,omitempty"`
}

// Predictor generates pattern predictions from historical data.
type Predictor struct {
	store   store.Store
	client  llm.Client
	prompts *config.PromptManager
	cfg     config.InsightsConfig
	metrics *metrics.Metrics
}

// NewPredictor wires the prediction boundary.
func NewPredictor(st store.Store, client llm.Client, prompts *config.PromptManager, cfg config.InsightsConfig, m *metrics.Metrics) *Predictor {
	return &Predictor{store: st, client: client, prompts: prompts, cfg: cfg, metrics: m}
}

// Generate fetches the historical window, derives per-category and time
// summaries, asks the model for predictions, and persists the analytics
// record. Store failures are hard errors; AI failures degrade to fallback
// predictions or an empty list.
func (p *Predictor) Generate(ctx context.Context, params PredictionParams) ([]Prediction, error) {
	windowSec := params.TimeWindowSec
	if windowSec <= 0 {
		windowSec = p.cfg.PredictionWindowSec
	}
	analysisType := strings.TrimSpace(params.AnalysisType)
	if analysisType == "" {
		analysisType = "pattern_detection"
	}

	cutoff := time.Now().UTC().Add(-time.Duration(windowSec) * time.Second)
	reports, err := p.store.ReportsSince(ctx, cutoff, p.cfg.MaxReports)
	if err != nil {
		return nil, fmt.Errorf("fetch reports: %w", err)
	}
	events, err := p.store.EventsSince(ctx, cutoff, p.cfg.MaxEvents)
	if err != nil {
		return nil, fmt.Errorf("fetch events: %w", err)
	}

	summary := categorySummary(reports, events)
	patterns := timePatterns(reports)
	predictions := p.analyzePatterns(ctx, reports, events, summary, patterns)

	predictionsJSON, _ := json.Marshal(predictions)
	rec := store.AnalyticsRecord{
		ID:           uuid.NewString(),
		AnalysisType: analysisType,
		Area:         params.Area,
		TimeWindow:   windowSec,
		DataPoints:   len(reports) + len(events),
		Predictions:  predictionsJSON,
		GeneratedBy:  generatedByAnalytics,
		Timestamp:    time.Now().UTC(),
	}
	if err := p.store.InsertAnalytics(ctx, rec); err != nil {
		return nil, fmt.Errorf("persist analytics: %w", err)
	}
	return predictions, nil
}

// analyzePatterns degrades in two stages: an unusable answer yields fallback
// predictions from the summaries, a failed call yields an empty list.
func (p *Predictor) analyzePatterns(ctx context.Context, reports []report.Report, events []report.Event, summary []CategorySummary, patterns TimePatterns) []Prediction {
	summaryJSON, _ := json.Marshal(summary)
	patternsJSON, _ := json.Marshal(patterns)

	var b strings.Builder
	b.WriteString(strings.TrimSpace(p.prompts.Current().PredictionPrompt))
	b.WriteString("\n\nData Summary:\n")
	fmt.Fprintf(&b, "- Total Reports: %d\n", len(reports))
	fmt.Fprintf(&b, "- Total Events: %d\n", len(events))
	fmt.Fprintf(&b, "- Category Breakdown: %s\n", summaryJSON)
	fmt.Fprintf(&b, "- Time Patterns: %s\n", patternsJSON)

	text, err := p.client.Generate(ctx, llm.Request{Prompt: b.String()})
	if err != nil {
		log.Printf("prediction call failed: %v", err)
		p.metrics.RecordAICall(true)
		return []Prediction{}
	}
	var predictions []Prediction
	if err := llm.DecodeJSON(text, &predictions); err != nil {
		log.Printf("prediction output unusable, using fallback: %v", err)
		p.metrics.RecordAICall(true)
		return fallbackPredictions(summary)
	}
	p.metrics.RecordAICall(false)
	return predictions
}

func categorySummary(reports []report.Report, events []report.Event) []CategorySummary {
	reportsByCategory := make(map[string][]report.Report)
	for _, r := range reports {
		reportsByCategory[r.Category] = append(reportsByCategory[r.Category], r)
	}
	eventCounts := make(map[string]int)
	for _, e := range events {
		eventCounts[e.Category]++
	}

	out := make([]CategorySummary, 0, len(reportsByCategory))
	for _, category := range []string{
		report.CategoryTraffic, report.CategorySafety, report.CategoryInfrastructure,
		report.CategoryEnvironment, report.CategoryEvents, report.CategoryEmergency,
	} {
		rs := reportsByCategory[category]
		if len(rs) == 0 && eventCounts[category] == 0 {
			continue
		}
		out = append(out, CategorySummary{
			Category:    category,
			ReportCount: len(rs),
			EventCount:  eventCounts[category],
			AvgSeverity: averageSeverity(rs),
		})
	}
	return out
}

func averageSeverity(reports []report.Report) float64 {
	if len(reports) == 0 {
		return 0
	}
	sum := 0
	for _, r := range reports {
		sum += report.SeverityRank(r.Severity)
	}
	return float64(sum) / float64(len(reports))
}

func timePatterns(reports []report.Report) TimePatterns {
	hours := make([]int, 24)
	days := make([]int, 7)
	for _, r := range reports {
		ts := r.Timestamp.UTC()
		hours[ts.Hour()]++
		days[int(ts.Weekday())]++
	}
	return TimePatterns{
		PeakHour:           maxIndex(hours),
		PeakDay:            maxIndex(days),
		HourlyDistribution: hours,
		DailyDistribution:  days,
	}
}

func maxIndex(counts []int) int {
	idx := 0
	for i, c := range counts {
		if c > counts[idx] {
			idx = i
		}
	}
	return idx
}

// fallbackPredictions derives a single trend prediction from the busiest
// category when it has enough volume to matter.
func fallbackPredictions(summary []CategorySummary) []Prediction {
	if len(summary) == 0 {
		return []Prediction{}
	}
	top := summary[0]
	for _, s := range summary[1:] {
		if s.ReportCount > top.ReportCount {
			top = s
		}
	}
	if top.ReportCount <= 5 {
		return []Prediction{}
	}
	risk := "medium"
	if top.AvgSeverity > 2 {
		risk = "high"
	}
	return []Prediction{{
		Title:             fmt.Sprintf("Increased %s incidents expected", top.Category),
		Description:       fmt.Sprintf("Based on recent patterns, expect continued %s issues", top.Category),
		Category:          top.Category,
		Risk:              risk,
		Confidence:        0.7,
		TimeFrame:         "next week",
		Likelihood:        0.6,
		Impact:            "Moderate disruption possible",
		PreventiveActions: "Increase monitoring and response capacity",
		MonitoringPoints:  []string{"Report frequency", "Severity trends"},
	}}
}
