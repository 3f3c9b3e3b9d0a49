package store

import (
	"context"
	"encoding/json"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"nextsignal/internal/geo"
	"nextsignal/internal/report"
)

func openTestStore(t *testing.T) *SQLite {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func testReport(id string, ts time.Time) report.Report {
	return report.Report{
		ID:        id,
		Category:  report.CategoryTraffic,
		Severity:  report.SeverityMedium,
		Title:     "stalled vehicle",
		Location:  geo.Point{Lat: 40.7128, Lng: -74.0060},
		Status:    report.StatusPending,
		Timestamp: ts,
	}
}

func TestInsertAndGetReport(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	r := testReport("r1", time.Now().UTC())
	r.Description = "blocking the right lane"
	r.Address = "5th Ave and Main St"
	if err := s.InsertReport(ctx, r); err != nil {
		t.Fatalf("InsertReport: %v", err)
	}

	got, err := s.GetReport(ctx, "r1")
	if err != nil {
		t.Fatalf("GetReport: %v", err)
	}
	if got.Category != report.CategoryTraffic || got.Title != "stalled vehicle" {
		t.Fatalf("unexpected report: %+v", got)
	}
	if got.Description != "blocking the right lane" || got.Address != "5th Ave and Main St" {
		t.Fatalf("optional fields lost: %+v", got)
	}

	if _, err := s.GetReport(ctx, "missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestReportsSinceOrderingAndLimit(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	base := time.Now().UTC().Add(-time.Hour)

	for i := 0; i < 5; i++ {
		r := testReport(string(rune('a'+i)), base.Add(time.Duration(i)*time.Minute))
		if err := s.InsertReport(ctx, r); err != nil {
			t.Fatalf("InsertReport: %v", err)
		}
	}

	got, err := s.ReportsSince(ctx, base.Add(time.Minute), 3)
	if err != nil {
		t.Fatalf("ReportsSince: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("expected 3 reports, got %d", len(got))
	}
	// Most recent first.
	if got[0].ID != "e" || got[1].ID != "d" || got[2].ID != "c" {
		t.Fatalf("unexpected order: %s %s %s", got[0].ID, got[1].ID, got[2].ID)
	}
}

func TestAppendMediaAnalysis(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	r := testReport("r1", time.Now().UTC())
	r.MediaAnalysis = []report.MediaAnalysis{{MediaURL: "https://cdn/one.jpg", MediaType: "image", Timestamp: time.Now().UTC()}}
	if err := s.InsertReport(ctx, r); err != nil {
		t.Fatalf("InsertReport: %v", err)
	}

	entry := report.MediaAnalysis{
		MediaURL:  "https://cdn/two.jpg",
		MediaType: "image",
		Finding: &report.MediaFinding{
			Category:   report.CategoryInfrastructure,
			Severity:   report.SeverityHigh,
			Confidence: 0.9,
		},
		Timestamp: time.Now().UTC(),
	}
	if err := s.AppendMediaAnalysis(ctx, "r1", []report.MediaAnalysis{entry}); err != nil {
		t.Fatalf("AppendMediaAnalysis: %v", err)
	}

	got, err := s.GetReport(ctx, "r1")
	if err != nil {
		t.Fatalf("GetReport: %v", err)
	}
	if len(got.MediaAnalysis) != 2 {
		t.Fatalf("expected 2 media entries, got %d", len(got.MediaAnalysis))
	}
	if got.MediaAnalysis[0].MediaURL != "https://cdn/one.jpg" {
		t.Fatalf("existing entry rewritten: %+v", got.MediaAnalysis[0])
	}
	if got.MediaAnalysis[1].Finding == nil || got.MediaAnalysis[1].Finding.Severity != report.SeverityHigh {
		t.Fatalf("appended entry lost finding: %+v", got.MediaAnalysis[1])
	}

	if err := s.AppendMediaAnalysis(ctx, "missing", []report.MediaAnalysis{entry}); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestInsertAndListEvents(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	now := time.Now().UTC()

	e := report.Event{
		ID:              "ev1",
		GroupKey:        "abc123",
		Title:           "traffic issue in area",
		Description:     "multiple reports of congestion",
		Category:        report.CategoryTraffic,
		Severity:        report.SeverityHigh,
		Location:        geo.Point{Lat: 40.71, Lng: -74.0},
		ReportCount:     3,
		ReportIDs:       []string{"a", "b", "c"},
		Confidence:      0.85,
		AffectedArea:    "downtown corridor",
		Recommendations: "avoid 5th Ave",
		Urgency:         report.UrgencyHours,
		ActionRequired:  true,
		IsActive:        true,
		Source:          report.SourceAISynthesis,
		Timestamp:       now,
	}
	if err := s.InsertEvent(ctx, e); err != nil {
		t.Fatalf("InsertEvent: %v", err)
	}
	inactive := e
	inactive.ID = "ev2"
	inactive.IsActive = false
	inactive.Timestamp = now.Add(-time.Minute)
	if err := s.InsertEvent(ctx, inactive); err != nil {
		t.Fatalf("InsertEvent: %v", err)
	}

	all, err := s.ListEvents(ctx, false, 10)
	if err != nil {
		t.Fatalf("ListEvents: %v", err)
	}
	if len(all) != 2 {
		t.Fatalf("expected 2 events, got %d", len(all))
	}

	active, err := s.ListEvents(ctx, true, 10)
	if err != nil {
		t.Fatalf("ListEvents active: %v", err)
	}
	if len(active) != 1 || active[0].ID != "ev1" {
		t.Fatalf("unexpected active events: %+v", active)
	}
	got := active[0]
	if len(got.ReportIDs) != 3 || got.ReportIDs[0] != "a" {
		t.Fatalf("report ids lost: %+v", got.ReportIDs)
	}
	if !got.ActionRequired || !got.IsActive || got.Source != report.SourceAISynthesis {
		t.Fatalf("flags lost: %+v", got)
	}

	recent, err := s.EventsSince(ctx, now.Add(-30*time.Second), 10)
	if err != nil {
		t.Fatalf("EventsSince: %v", err)
	}
	if len(recent) != 1 || recent[0].ID != "ev1" {
		t.Fatalf("unexpected recent events: %+v", recent)
	}
}

func TestInsertAnalyticsAndSentiment(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	now := time.Now().UTC()

	predictions, _ := json.Marshal([]map[string]string{{"type": "traffic_congestion"}})
	rec := AnalyticsRecord{
		ID:           "an1",
		AnalysisType: "predictive",
		TimeWindow:   7 * 24 * 3600,
		DataPoints:   42,
		Predictions:  predictions,
		GeneratedBy:  "test",
		Timestamp:    now,
	}
	if err := s.InsertAnalytics(ctx, rec); err != nil {
		t.Fatalf("InsertAnalytics: %v", err)
	}

	batch := []SentimentRecord{
		{ID: "s1", SourceID: "r1", SourceType: "report", Score: 0.4, Magnitude: 0.4, Text: "fixed quickly, thanks", SourceTime: now, Timestamp: now},
		{ID: "s2", SourceID: "r2", SourceType: "report", Score: -0.6, Magnitude: 0.6, Text: "still broken", SourceTime: now, Timestamp: now},
	}
	if err := s.InsertSentimentBatch(ctx, batch); err != nil {
		t.Fatalf("InsertSentimentBatch: %v", err)
	}
	if err := s.InsertSentimentBatch(ctx, nil); err != nil {
		t.Fatalf("InsertSentimentBatch empty: %v", err)
	}
}

func TestHealth(t *testing.T) {
	s := openTestStore(t)
	if err := s.Health(context.Background()); err != nil {
		t.Fatalf("Health: %v", err)
	}
}
