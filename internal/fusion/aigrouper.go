package fusion

import (
	"context"
	"fmt"
	"log"
	"strings"

	"github.com/google/uuid"

	"nextsignal/config"
	"nextsignal/internal/geo"
	"nextsignal/internal/llm"
	"nextsignal/internal/report"
	"nextsignal/metrics"
)

// AIGrouper asks the generative model to partition candidate reports and
// validates the result against the candidate set. Any defect in the model's
// answer rejects it wholesale; the similarity grouper then runs over the full
// candidate set. Partial reconciliation between the two groupings is never
// attempted.
type AIGrouper struct {
	client   llm.Client
	prompts  *config.PromptManager
	fallback SimilarityGrouper
	metrics  *metrics.Metrics
}

// NewAIGrouper wires the AI grouping path over the given fallback.
func NewAIGrouper(client llm.Client, prompts *config.PromptManager, fallback SimilarityGrouper, m *metrics.Metrics) *AIGrouper {
	return &AIGrouper{client: client, prompts: prompts, fallback: fallback, metrics: m}
}

type groupResult struct {
	GroupID         string    `json:"groupId"`
	ReportIDs       []string  `json:"reportIds"`
	PrimaryCategory string    `json:"primaryCategory"`
	CommonLocation  geo.Point `json:"commonLocation"`
}

// Group partitions reports, preferring the AI result when it is usable.
// Never returns an error; the worst case is the similarity grouper's output.
func (a *AIGrouper) Group(ctx context.Context, reports []report.Report) []report.Group {
	if len(reports) == 0 {
		return nil
	}

	var raw []groupResult
	err := llm.Structured(ctx, a.client, llm.Request{Prompt: a.buildPrompt(reports)}, &raw)
	if err == nil {
		groups, ok := a.resolve(raw, reports)
		if ok {
			a.metrics.RecordAICall(false)
			return groups
		}
		err = fmt.Errorf("grouping result failed validation")
	}
	log.Printf("ai grouping unusable, falling back to similarity grouping: %v", err)
	a.metrics.RecordAICall(true)
	return a.fallback.Group(reports)
}

func (a *AIGrouper) buildPrompt(reports []report.Report) string {
	var b strings.Builder
	b.WriteString(strings.TrimSpace(a.prompts.Current().GroupingPrompt))
	b.WriteString("\n\nReports:\n")
	for _, r := range reports {
		desc := r.Description
		if len(desc) > 200 {
			desc = desc[:200]
		}
		fmt.Fprintf(&b, "- id=%s category=%s title=%q description=%q location=(%.4f, %.4f)\n",
			r.ID, r.Category, r.Title, desc, r.Location.Lat, r.Location.Lng)
	}
	return b.String()
}

// resolve checks the model's grouping against the candidate set and attaches
// the full report objects. The result is accepted only when every candidate
// appears in exactly one group and no group names an unknown id.
func (a *AIGrouper) resolve(raw []groupResult, reports []report.Report) ([]report.Group, bool) {
	if len(raw) == 0 {
		return nil, false
	}
	byID := make(map[string]report.Report, len(reports))
	for _, r := range reports {
		byID[r.ID] = r
	}

	seen := make(map[string]bool, len(reports))
	out := make([]report.Group, 0, len(raw))
	for _, g := range raw {
		if len(g.ReportIDs) == 0 {
			return nil, false
		}
		members := make([]report.Report, 0, len(g.ReportIDs))
		for _, id := range g.ReportIDs {
			r, ok := byID[id]
			if !ok || seen[id] {
				return nil, false
			}
			seen[id] = true
			members = append(members, r)
		}
		group := report.Group{
			GroupID:         strings.TrimSpace(g.GroupID),
			ReportIDs:       append([]string(nil), g.ReportIDs...),
			Reports:         members,
			PrimaryCategory: strings.TrimSpace(g.PrimaryCategory),
			CommonLocation:  g.CommonLocation,
		}
		if group.GroupID == "" {
			group.GroupID = uuid.NewString()
		}
		if !report.ValidCategory(group.PrimaryCategory) {
			group.PrimaryCategory = members[0].Category
		}
		if geo.Validate(group.CommonLocation) != nil || (group.CommonLocation == geo.Point{}) {
			points := make([]geo.Point, 0, len(members))
			for _, m := range members {
				points = append(points, m.Location)
			}
			group.CommonLocation = geo.Centroid(points)
		}
		out = append(out, group)
	}
	if len(seen) != len(reports) {
		return nil, false
	}
	return out, true
}
