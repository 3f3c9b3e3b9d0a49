// Package report defines the domain model shared by the fusion pipeline:
// citizen reports, transient report groups, and synthesized events.
package report

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"nextsignal/internal/geo"
)

// Report categories.
const (
	CategoryTraffic        = "traffic"
	CategorySafety         = "safety"
	CategoryInfrastructure = "infrastructure"
	CategoryEnvironment    = "environment"
	CategoryEvents         = "events"
	CategoryEmergency      = "emergency"
)

// Severity levels, ordered low < medium < high.
const (
	SeverityLow    = "low"
	SeverityMedium = "medium"
	SeverityHigh   = "high"
)

// Urgency levels for synthesized events.
const (
	UrgencyImmediate = "immediate"
	UrgencyHours     = "hours"
	UrgencyDays      = "days"
	UrgencyRoutine   = "routine"
)

// Report statuses driven by the external moderation workflow.
const (
	StatusPending   = "pending"
	StatusVerified  = "verified"
	StatusDismissed = "dismissed"
)

var categories = map[string]struct{}{
	CategoryTraffic: {}, CategorySafety: {}, CategoryInfrastructure: {},
	CategoryEnvironment: {}, CategoryEvents: {}, CategoryEmergency: {},
}

var severityRank = map[string]int{
	SeverityLow:    1,
	SeverityMedium: 2,
	SeverityHigh:   3,
}

var urgencies = map[string]struct{}{
	UrgencyImmediate: {}, UrgencyHours: {}, UrgencyDays: {}, UrgencyRoutine: {},
}

// ValidCategory reports whether c is a known report category.
func ValidCategory(c string) bool {
	_, ok := categories[c]
	return ok
}

// ValidSeverity reports whether s is a known severity level.
func ValidSeverity(s string) bool {
	_, ok := severityRank[s]
	return ok
}

// ValidUrgency reports whether u is a known urgency level.
func ValidUrgency(u string) bool {
	_, ok := urgencies[u]
	return ok
}

// SeverityRank returns the ordinal for a severity level; unknown values rank as medium.
func SeverityRank(s string) int {
	if r, ok := severityRank[s]; ok {
		return r
	}
	return severityRank[SeverityMedium]
}

// MaxSeverity returns the higher of two severity levels under low < medium < high.
func MaxSeverity(a, b string) string {
	if SeverityRank(b) > SeverityRank(a) {
		return b
	}
	return a
}

// MediaAnalysis is one per-media-item finding appended to a report. Either
// Finding or Error is set, never both.
type MediaAnalysis struct {
	MediaURL  string        `json:"mediaUrl"`
	MediaType string        `json:"mediaType"`
	Finding   *MediaFinding `json:"analysis,omitempty"`
	Error     string        `json:"error,omitempty"`
	Timestamp time.Time     `json:"timestamp"`
}

// MediaFinding is the structured result of a vision/text model run over one media item.
type MediaFinding struct {
	Category        string   `json:"category"`
	Severity        string   `json:"severity"`
	Description     string   `json:"description"`
	Impact          string   `json:"impact"`
	Recommendations string   `json:"recommendations"`
	Confidence      float64  `json:"confidence"`
	DetectedObjects []string `json:"detectedObjects"`
	Urgency         string   `json:"urgency"`
}

// Report is a single citizen-submitted observation.
type Report struct {
	ID            string          `json:"id"`
	Category      string          `json:"category"`
	Severity      string          `json:"severity"`
	Title         string          `json:"title"`
	Description   string          `json:"description"`
	Location      geo.Point       `json:"location"`
	Address       string          `json:"address,omitempty"`
	Status        string          `json:"status"`
	MediaAnalysis []MediaAnalysis `json:"mediaAnalysis,omitempty"`
	Timestamp     time.Time       `json:"timestamp"`
}

// Validate checks the invariants required before a report enters the store.
func (r Report) Validate() error {
	if strings.TrimSpace(r.ID) == "" {
		return errors.New("report id is required")
	}
	if !ValidCategory(r.Category) {
		return fmt.Errorf("unknown category %q", r.Category)
	}
	if !ValidSeverity(r.Severity) {
		return fmt.Errorf("unknown severity %q", r.Severity)
	}
	if strings.TrimSpace(r.Title) == "" {
		return errors.New("report title is required")
	}
	if err := geo.Validate(r.Location); err != nil {
		return err
	}
	return nil
}

// Group is a transient, pipeline-internal set of related reports. Reports carries
// the full objects for every ID in ReportIDs, in the same order.
type Group struct {
	GroupID         string    `json:"groupId"`
	ReportIDs       []string  `json:"reportIds"`
	Reports         []Report  `json:"-"`
	PrimaryCategory string    `json:"primaryCategory"`
	CommonLocation  geo.Point `json:"commonLocation"`
}

// MaxGroupSeverity computes the maximum severity across the group's reports.
func (g Group) MaxGroupSeverity() string {
	out := SeverityLow
	for _, r := range g.Reports {
		out = MaxSeverity(out, r.Severity)
	}
	return out
}

// Key returns the group's idempotency key: sha256 over the sorted report IDs.
// Two fusion runs over the same set of reports produce the same key, so a
// downstream deduper can be layered on without changing this pipeline.
func (g Group) Key() string {
	ids := append([]string(nil), g.ReportIDs...)
	sort.Strings(ids)
	h := sha256.Sum256([]byte(strings.Join(ids, ",")))
	return hex.EncodeToString(h[:])
}

// Event is the synthesized output entity, created once per group per fusion run
// and never mutated by the pipeline afterwards.
type Event struct {
	ID              string    `json:"id"`
	GroupKey        string    `json:"groupKey"`
	Title           string    `json:"title"`
	Description     string    `json:"description"`
	Category        string    `json:"category"`
	Severity        string    `json:"severity"`
	Location        geo.Point `json:"location"`
	ReportCount     int       `json:"reportCount"`
	ReportIDs       []string  `json:"reportIds"`
	Confidence      float64   `json:"confidence"`
	AffectedArea    string    `json:"affectedArea,omitempty"`
	Recommendations string    `json:"recommendations,omitempty"`
	EstimatedImpact string    `json:"estimatedImpact,omitempty"`
	Urgency         string    `json:"urgency"`
	ActionRequired  bool      `json:"actionRequired"`
	IsActive        bool      `json:"isActive"`
	Source          string    `json:"source"`
	Timestamp       time.Time `json:"timestamp"`
}

// SourceAISynthesis tags every event produced by the synthesis pipeline,
// AI-derived and deterministic fallback alike.
const SourceAISynthesis = "ai_synthesis"
