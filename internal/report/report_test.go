package report

import (
	"testing"
	"time"

	"nextsignal/internal/geo"
)

func TestSeverityOrdering(t *testing.T) {
	if MaxSeverity(SeverityLow, SeverityHigh) != SeverityHigh {
		t.Fatalf("expected high to dominate low")
	}
	if MaxSeverity(SeverityMedium, SeverityLow) != SeverityMedium {
		t.Fatalf("expected medium to dominate low")
	}
	if MaxSeverity(SeverityHigh, SeverityHigh) != SeverityHigh {
		t.Fatalf("expected high for equal inputs")
	}
	if SeverityRank("bogus") != SeverityRank(SeverityMedium) {
		t.Fatalf("unknown severity should rank as medium")
	}
}

func TestGroupMaxSeverity(t *testing.T) {
	g := Group{Reports: []Report{
		{Severity: SeverityLow},
		{Severity: SeverityHigh},
		{Severity: SeverityMedium},
	}}
	if got := g.MaxGroupSeverity(); got != SeverityHigh {
		t.Fatalf("expected high, got %s", got)
	}
	empty := Group{}
	if got := empty.MaxGroupSeverity(); got != SeverityLow {
		t.Fatalf("expected low for empty group, got %s", got)
	}
}

func TestGroupKeyOrderIndependent(t *testing.T) {
	a := Group{ReportIDs: []string{"r1", "r2", "r3"}}
	b := Group{ReportIDs: []string{"r3", "r1", "r2"}}
	if a.Key() != b.Key() {
		t.Fatalf("group key must not depend on report id order")
	}
	c := Group{ReportIDs: []string{"r1", "r2"}}
	if a.Key() == c.Key() {
		t.Fatalf("different report sets must produce different keys")
	}
}

func TestReportValidate(t *testing.T) {
	valid := Report{
		ID:        "r1",
		Category:  CategoryTraffic,
		Severity:  SeverityLow,
		Title:     "stalled truck",
		Location:  geo.Point{Lat: 12.9716, Lng: 77.5946},
		Status:    StatusPending,
		Timestamp: time.Now(),
	}
	if err := valid.Validate(); err != nil {
		t.Fatalf("expected valid report: %v", err)
	}

	cases := []struct {
		name   string
		mutate func(*Report)
	}{
		{"missing id", func(r *Report) { r.ID = "" }},
		{"bad category", func(r *Report) { r.Category = "noise" }},
		{"bad severity", func(r *Report) { r.Severity = "catastrophic" }},
		{"missing title", func(r *Report) { r.Title = "  " }},
		{"bad latitude", func(r *Report) { r.Location.Lat = 120 }},
	}
	for _, tc := range cases {
		r := valid
		tc.mutate(&r)
		if err := r.Validate(); err == nil {
			t.Fatalf("%s: expected validation error", tc.name)
		}
	}
}
