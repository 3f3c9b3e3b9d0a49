package fusion

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/google/uuid"

	"nextsignal/config"
	"nextsignal/internal/llm"
	"nextsignal/internal/report"
	"nextsignal/metrics"
)

// Fallback confidence constants. The two values distinguish which path
// produced the event: 0.6 means the model answered but its output was
// unusable, 0.7 means the call itself failed.
const (
	parseFallbackConfidence = 0.6
	errorFallbackConfidence = 0.7
)

// Synthesizer reduces one report group to a single event. The AI result is
// used when it validates; otherwise a deterministic fallback event is built
// from the group itself. Synthesize never fails.
type Synthesizer struct {
	client  llm.Client
	prompts *config.PromptManager
	metrics *metrics.Metrics
}

// NewSynthesizer wires the event synthesis step.
func NewSynthesizer(client llm.Client, prompts *config.PromptManager, m *metrics.Metrics) *Synthesizer {
	return &Synthesizer{client: client, prompts: prompts, metrics: m}
}

type aiEvent struct {
	Title           string  `json:"title"`
	Description     string  `json:"description"`
	Category        string  `json:"category"`
	Severity        string  `json:"severity"`
	Confidence      float64 `json:"confidence"`
	AffectedArea    string  `json:"affectedArea"`
	Recommendations string  `json:"recommendations"`
	EstimatedImpact string  `json:"estimatedImpact"`
	Urgency         string  `json:"urgency"`
	ActionRequired  bool    `json:"actionRequired"`
}

// Synthesize builds the event for one non-empty group. The event's severity
// is never lower than the maximum severity across the group's reports, AI
// answer or not.
func (s *Synthesizer) Synthesize(ctx context.Context, g report.Group) report.Event {
	maxSeverity := g.MaxGroupSeverity()

	text, err := s.client.Generate(ctx, llm.Request{Prompt: s.buildPrompt(g)})
	if err != nil {
		log.Printf("event synthesis call failed for group %s: %v", g.GroupID, err)
		s.metrics.RecordAICall(true)
		return s.fallbackEvent(g, maxSeverity, errorFallbackConfidence,
			fmt.Sprintf("%s reports in area", g.PrimaryCategory))
	}

	var out aiEvent
	if err := llm.DecodeJSON(text, &out); err != nil || strings.TrimSpace(out.Title) == "" {
		log.Printf("event synthesis output unusable for group %s: %v", g.GroupID, err)
		s.metrics.RecordAICall(true)
		return s.fallbackEvent(g, maxSeverity, parseFallbackConfidence,
			fmt.Sprintf("%s issue in area", g.PrimaryCategory))
	}
	s.metrics.RecordAICall(false)

	category := strings.TrimSpace(out.Category)
	if !report.ValidCategory(category) {
		category = g.PrimaryCategory
	}
	urgency := strings.TrimSpace(out.Urgency)
	if !report.ValidUrgency(urgency) {
		urgency = report.UrgencyRoutine
	}
	confidence := out.Confidence
	if confidence < 0 {
		confidence = 0
	}
	if confidence > 1 {
		confidence = 1
	}

	return report.Event{
		ID:              uuid.NewString(),
		GroupKey:        g.Key(),
		Title:           strings.TrimSpace(out.Title),
		Description:     strings.TrimSpace(out.Description),
		Category:        category,
		Severity:        report.MaxSeverity(out.Severity, maxSeverity),
		Location:        g.CommonLocation,
		ReportCount:     len(g.ReportIDs),
		ReportIDs:       append([]string(nil), g.ReportIDs...),
		Confidence:      confidence,
		AffectedArea:    strings.TrimSpace(out.AffectedArea),
		Recommendations: strings.TrimSpace(out.Recommendations),
		EstimatedImpact: strings.TrimSpace(out.EstimatedImpact),
		Urgency:         urgency,
		ActionRequired:  out.ActionRequired,
		IsActive:        true,
		Source:          report.SourceAISynthesis,
		Timestamp:       time.Now().UTC(),
	}
}

func (s *Synthesizer) buildPrompt(g report.Group) string {
	var b strings.Builder
	b.WriteString(strings.TrimSpace(s.prompts.Current().SynthesisPrompt))
	b.WriteString("\n\nReports:\n")
	for _, r := range g.Reports {
		desc := r.Description
		if len(desc) > 300 {
			desc = desc[:300]
		}
		fmt.Fprintf(&b, "- [%s] %s (%s, %s): %s\n",
			r.Timestamp.Format(time.RFC3339), r.Title, r.Category, r.Severity, desc)
	}
	return b.String()
}

func (s *Synthesizer) fallbackEvent(g report.Group, severity string, confidence float64, title string) report.Event {
	return report.Event{
		ID:             uuid.NewString(),
		GroupKey:       g.Key(),
		Title:          title,
		Description:    fmt.Sprintf("%d %s reports in the same area", len(g.ReportIDs), g.PrimaryCategory),
		Category:       g.PrimaryCategory,
		Severity:       severity,
		Location:       g.CommonLocation,
		ReportCount:    len(g.ReportIDs),
		ReportIDs:      append([]string(nil), g.ReportIDs...),
		Confidence:     confidence,
		Urgency:        report.UrgencyRoutine,
		ActionRequired: true,
		IsActive:       true,
		Source:         report.SourceAISynthesis,
		Timestamp:      time.Now().UTC(),
	}
}
