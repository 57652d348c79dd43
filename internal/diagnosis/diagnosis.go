// Package diagnosis groups validation flags by episode and enriches each
// group with a diagnostic narrative from the configured narrator. The
// narrator is optional: when it is absent or a call fails, the flags are
// reported as-is and the failure becomes a notice, never an error that
// stops the run.
package diagnosis

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"golang.org/x/sync/errgroup"

	"vbcaudit/domain/flags"
	"vbcaudit/domain/perf"
	"vbcaudit/internal"
	"vbcaudit/internal/validation"
	"vbcaudit/ports"
)

// Coordinator fans narrative requests out to the narrator with bounded
// concurrency and reassembles results in deterministic group order.
type Coordinator struct {
	narrator      ports.Narrator
	maxConcurrent int
	logger        *internal.Logger
}

// Result is the narrative enrichment outcome for one run: narratives in
// group order plus notices for groups that could not be narrated.
type Result struct {
	Narratives []ports.Narrative
	Notices    []string
}

func NewCoordinator(narrator ports.Narrator, maxConcurrent int, logger *internal.Logger) *Coordinator {
	if maxConcurrent <= 0 {
		maxConcurrent = 4
	}
	if logger == nil {
		logger = internal.DefaultLogger
	}
	return &Coordinator{narrator: narrator, maxConcurrent: maxConcurrent, logger: logger}
}

// Enrich generates one narrative per flag group across the run's
// contracts. Subordinate and GREEN flags stay in their groups as context
// but a group with nothing above GREEN is skipped.
func (c *Coordinator) Enrich(ctx context.Context, run validation.RunResult) Result {
	if c.narrator == nil {
		return Result{}
	}

	type group struct {
		label    string
		contract validation.ContractResult
		flags    []flags.Flag
	}

	var groups []group
	for _, cr := range run.Contracts {
		byLabel := make(map[string][]flags.Flag)
		var order []string
		for _, f := range cr.Flags {
			if f.EpisodeType == "" {
				continue
			}
			if _, seen := byLabel[f.EpisodeType]; !seen {
				order = append(order, f.EpisodeType)
			}
			byLabel[f.EpisodeType] = append(byLabel[f.EpisodeType], f)
		}
		sort.Strings(order)
		for _, label := range order {
			fs := byLabel[label]
			if !worthNarrating(fs) {
				continue
			}
			groups = append(groups, group{label: label, contract: cr, flags: fs})
		}
	}
	if len(groups) == 0 {
		return Result{}
	}

	narratives := make([]*ports.Narrative, len(groups))
	notices := make([]string, len(groups))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.maxConcurrent)
	for i, grp := range groups {
		i, grp := i, grp
		g.Go(func() error {
			req := ports.NarrativeRequest{
				Contract:       grp.contract.Contract,
				GroupLabel:     grp.label,
				Flags:          grp.flags,
				MetricsContext: metricsContext(grp.label, grp.contract),
			}
			n, err := c.narrator.Narrate(gctx, req)
			if err != nil {
				c.logger.Warn("[Diagnosis] narrative for %q unavailable: %v", grp.label, err)
				notices[i] = fmt.Sprintf("Narrative for %q unavailable: %v", grp.label, err)
				return nil
			}
			narratives[i] = n
			return nil
		})
	}
	g.Wait()

	var res Result
	for i := range groups {
		if narratives[i] != nil {
			res.Narratives = append(res.Narratives, *narratives[i])
		}
		if notices[i] != "" {
			res.Notices = append(res.Notices, notices[i])
		}
	}
	return res
}

func worthNarrating(fs []flags.Flag) bool {
	for _, f := range fs {
		if f.Severity > flags.Green && !f.Subordinate {
			return true
		}
	}
	return false
}

// metricsContext renders the bound rows matching a group label as plain
// key/value text for the prompt.
func metricsContext(label string, cr validation.ContractResult) string {
	var b strings.Builder

	for _, row := range cr.Episodes {
		if !strings.Contains(strings.ToLower(row.Label()), strings.ToLower(label)) &&
			!strings.Contains(strings.ToLower(label), strings.ToLower(row.Label())) {
			continue
		}
		fmt.Fprintf(&b, "--- episode %s ---\n", row.Label())
		writeNum(&b, "episode_count", row.EpisodeCount)
		writeNum(&b, "avg_episode_cost", row.AvgEpisodeCost)
		writeNum(&b, "target_price", row.TargetPrice)
		writeNum(&b, "total_cost", row.TotalCost)
		writeNum(&b, "total_target", row.TotalTarget)
		writeNum(&b, "variance_pct", row.VariancePct)
		writeNum(&b, "risk_score_actual", row.RiskScoreActual)
		writeNum(&b, "risk_score_expected", row.RiskScoreExpected)
		b.WriteString("\n")
	}
	for _, q := range cr.Quality {
		if !strings.Contains(strings.ToLower(q.MeasureName), strings.ToLower(label)) {
			continue
		}
		fmt.Fprintf(&b, "--- quality %s (%s) ---\n", q.MeasureName, q.MeasureID)
		writeNum(&b, "rate", q.Rate)
		writeNum(&b, "target", q.Target)
		writeNum(&b, "points_earned", q.PointsEarned)
		writeNum(&b, "max_points", q.MaxPoints)
		b.WriteString("\n")
	}
	for _, d := range cr.Drugs {
		if !strings.Contains(strings.ToLower(d.DrugName), strings.ToLower(label)) && label != "Drug Detail" {
			continue
		}
		fmt.Fprintf(&b, "--- drug %s ---\n", d.DrugName)
		writeNum(&b, "total_claims", d.TotalClaims)
		writeNum(&b, "total_cost", d.TotalCost)
		writeNum(&b, "avg_cost_per_claim", d.AvgCostPerClaim)
		writeNum(&b, "site_of_service_hopd_pct", d.SiteHOPDPct)
		b.WriteString("\n")
	}

	if b.Len() == 0 {
		return "No additional metrics found for this episode type."
	}
	return b.String()
}

func writeNum(b *strings.Builder, name string, v float64) {
	if perf.Has(v) {
		fmt.Fprintf(b, "  %s: %g\n", name, v)
	}
}
