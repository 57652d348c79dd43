package diagnosis

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"vbcaudit/domain/flags"
	"vbcaudit/domain/perf"
	"vbcaudit/domain/refdata"
	"vbcaudit/internal/validation"
	"vbcaudit/ports"
)

// stubNarrator records the groups it is asked about and answers from a
// canned script.
type stubNarrator struct {
	mu     sync.Mutex
	asked  []string
	failOn string
}

func (s *stubNarrator) Narrate(ctx context.Context, req ports.NarrativeRequest) (*ports.Narrative, error) {
	s.mu.Lock()
	s.asked = append(s.asked, req.GroupLabel)
	s.mu.Unlock()

	if req.GroupLabel == s.failOn {
		return nil, errors.New("model unavailable")
	}
	return &ports.Narrative{
		GroupLabel:       req.GroupLabel,
		DiagnosisSummary: "summary for " + req.GroupLabel,
	}, nil
}

func sampleRun() validation.RunResult {
	return validation.RunResult{
		Contracts: []validation.ContractResult{{
			Contract: refdata.Contract{ID: "MSK-2024-001", Specialty: refdata.SpecialtyMSK},
			Flags: []flags.Flag{
				{ID: "RANGE-001", Severity: flags.Red, EpisodeType: "TKR", Metric: "avg_episode_cost"},
				{ID: "MSK-001", Severity: flags.Yellow, EpisodeType: "Knee Arthroscopy", Metric: "arthroscopy_volume"},
				{ID: "SCHEMA-001", Severity: flags.Green, EpisodeType: "ALL", Metric: "schema_check"},
				{ID: "CROSS-001", Severity: flags.Yellow, EpisodeType: "End-of-Life Care", Subordinate: true},
			},
		}},
	}
}

func TestEnrichNarratesGroupsInLabelOrder(t *testing.T) {
	narrator := &stubNarrator{}
	c := NewCoordinator(narrator, 1, nil)

	res := c.Enrich(context.Background(), sampleRun())

	// ALL (green only) and End-of-Life Care (subordinate only) are skipped.
	require.Len(t, res.Narratives, 2)
	assert.Equal(t, "Knee Arthroscopy", res.Narratives[0].GroupLabel)
	assert.Equal(t, "TKR", res.Narratives[1].GroupLabel)
	assert.Empty(t, res.Notices)
	assert.ElementsMatch(t, []string{"Knee Arthroscopy", "TKR"}, narrator.asked)
}

func TestEnrichFailureBecomesNotice(t *testing.T) {
	narrator := &stubNarrator{failOn: "TKR"}
	c := NewCoordinator(narrator, 2, nil)

	res := c.Enrich(context.Background(), sampleRun())

	require.Len(t, res.Narratives, 1)
	assert.Equal(t, "Knee Arthroscopy", res.Narratives[0].GroupLabel)
	require.Len(t, res.Notices, 1)
	assert.Contains(t, res.Notices[0], "TKR")
	assert.Contains(t, res.Notices[0], "model unavailable")
}

func TestEnrichWithoutNarrator(t *testing.T) {
	c := NewCoordinator(nil, 4, nil)
	res := c.Enrich(context.Background(), sampleRun())
	assert.Empty(t, res.Narratives)
	assert.Empty(t, res.Notices)
}

func TestEnrichSkipsQuietRuns(t *testing.T) {
	narrator := &stubNarrator{}
	c := NewCoordinator(narrator, 4, nil)

	run := validation.RunResult{Contracts: []validation.ContractResult{{
		Flags: []flags.Flag{{ID: "SCHEMA-001", Severity: flags.Green, EpisodeType: "ALL"}},
	}}}
	res := c.Enrich(context.Background(), run)

	assert.Empty(t, res.Narratives)
	assert.Empty(t, narrator.asked)
}

func TestMetricsContextMatchesEpisodeLabel(t *testing.T) {
	cr := validation.ContractResult{
		Episodes: []perf.EpisodeRow{
			{EpisodeType: "TKR", EpisodeCount: 60, AvgEpisodeCost: 34000,
				TargetPrice: perf.Missing, TotalCost: perf.Missing, TotalTarget: perf.Missing,
				VariancePct: perf.Missing, RiskScoreActual: perf.Missing, RiskScoreExpected: perf.Missing},
		},
	}

	got := metricsContext("TKR", cr)
	assert.Contains(t, got, "episode TKR")
	assert.Contains(t, got, "episode_count: 60")
	assert.NotContains(t, got, "target_price", "missing values must be omitted")

	assert.Equal(t, "No additional metrics found for this episode type.",
		metricsContext("Quality Gate", cr))
}
