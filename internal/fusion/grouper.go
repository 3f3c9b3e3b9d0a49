// Package fusion implements the report clustering and event-synthesis
// pipeline: candidate reports in a time/radius window are partitioned into
// groups, each group is reduced to a single synthesized event, and events are
// persisted. The AI path is best effort; deterministic fallbacks keep the
// pipeline producing output when the model is unavailable or unusable.
package fusion

import (
	"github.com/google/uuid"

	"nextsignal/internal/geo"
	"nextsignal/internal/report"
)

const defaultGroupRadiusMeters = 200

// SimilarityGrouper clusters reports by proximity and exact category match.
// It is the deterministic fallback behind the AI grouping path and is also
// usable standalone.
type SimilarityGrouper struct {
	RadiusMeters float64
}

// Group partitions reports into groups with a single greedy pass: each
// unassigned report seeds a new group and claims every later unassigned
// report within RadiusMeters of the seed that shares its category. Every
// input report lands in exactly one group. Group formation depends on input
// order; coverage does not.
func (g SimilarityGrouper) Group(reports []report.Report) []report.Group {
	if len(reports) == 0 {
		return nil
	}
	radius := g.RadiusMeters
	if radius <= 0 {
		radius = defaultGroupRadiusMeters
	}

	assigned := make([]bool, len(reports))
	var out []report.Group
	for i := range reports {
		if assigned[i] {
			continue
		}
		seed := reports[i]
		assigned[i] = true
		members := []report.Report{seed}
		for j := i + 1; j < len(reports); j++ {
			if assigned[j] {
				continue
			}
			other := reports[j]
			if other.Category != seed.Category {
				continue
			}
			if geo.Distance(seed.Location, other.Location) > radius {
				continue
			}
			assigned[j] = true
			members = append(members, other)
		}
		ids := make([]string, 0, len(members))
		for _, m := range members {
			ids = append(ids, m.ID)
		}
		out = append(out, report.Group{
			GroupID:         uuid.NewString(),
			ReportIDs:       ids,
			Reports:         members,
			PrimaryCategory: seed.Category,
			CommonLocation:  seed.Location,
		})
	}
	return out
}
