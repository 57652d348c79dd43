package reporting

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"vbcaudit/domain/flags"
	"vbcaudit/domain/perf"
	"vbcaudit/domain/refdata"
	"vbcaudit/internal/diagnosis"
	"vbcaudit/internal/profiling"
	"vbcaudit/internal/validation"
	"vbcaudit/ports"
)

func sampleContract() refdata.Contract {
	return refdata.Contract{
		ID:                 "MSK-2024-001",
		Name:               "Orthopedic Associates MSK Bundle",
		Specialty:          refdata.SpecialtyMSK,
		ContractType:       "episode_based",
		LOB:                "Medicare Advantage",
		PerformancePeriod:  "CY2024",
		SharingRateSavings: 0.50,
		SharingRateLosses:  0.30,
		QualityGateMinimum: 75.0,
	}
}

func sampleRun() validation.RunResult {
	return validation.RunResult{
		RunID:       "run-test",
		GeneratedAt: time.Date(2025, 3, 1, 9, 30, 0, 0, time.UTC),
		Contracts: []validation.ContractResult{{
			Contract: sampleContract(),
			Flags: []flags.Flag{
				{ID: "SCHEMA-001", Severity: flags.Green, Metric: "schema_check", EpisodeType: "ALL", Observed: "PASS"},
				{ID: "MSK-001", Severity: flags.Red, Metric: "implant_cost_ratio", EpisodeType: "TKR",
					Observed: "0.28", Expected: "<= 0.20", Description: "Implant cost share above cap",
					Detail: "implant $9,500 of $34,000 average episode"},
				{ID: "CROSS-002", Severity: flags.Yellow, Metric: "eol_measure_failure", EpisodeType: "End-of-Life Care",
					Subordinate: true},
			},
			Tally: flags.Tally{Red: 1, Yellow: 1, Green: 1},
			Normalizations: []validation.Normalization{
				{Column: "prom_collection_rate", Scale: 0.01, Note: "values on 0-100 percent scale, divided by 100"},
			},
			Episodes: []perf.EpisodeRow{
				{EpisodeType: "TKR", TotalCost: 2_100_000, TotalTarget: 2_040_000},
				{EpisodeType: "THR", TotalCost: 900_000, TotalTarget: perf.Missing},
			},
			Quality: []perf.QualityRow{
				{MeasureID: "MSK-COMP", PointsEarned: 82.0},
			},
		}},
		Tally: flags.Tally{Red: 1, Yellow: 1, Green: 1},
	}
}

func TestRenderWritesReport(t *testing.T) {
	out := filepath.Join(t.TempDir(), "output", "report.html")
	diag := diagnosis.Result{
		Narratives: []ports.Narrative{{
			GroupLabel:       "TKR",
			DiagnosisSummary: "Implant spend is running **well above** the regional norm.",
			ProbableCauses: []ports.ProbableCause{
				{Cause: "Premium implant vendor mix", Likelihood: "high", Evidence: "implant share 28% vs 20% cap"},
			},
			QuestionsForProvider:     []string{"Has the implant vendor contract changed this year?"},
			RecommendedInterventions: []ports.Intervention{{Intervention: "Renegotiate implant pricing", Timeframe: "90 days", ExpectedImpact: "$1,500 per episode"}},
			ContractImplications:     "At current volume the overage erodes the full savings pool.",
			FlagsAddressed:           []string{"MSK-001"},
		}},
		Notices: []string{"AI narrative for End-of-Life Care failed: model unavailable"},
	}
	profiles := map[string][]profiling.ColumnProfile{
		"MSK-2024-001": {{Column: "avg_episode_cost", Count: 2, Nulls: 0, Mean: 20250, Median: 20250}},
	}

	r := NewRenderer(nil)
	require.NoError(t, r.Render(sampleRun(), diag, profiles, out))

	raw, err := os.ReadFile(out)
	require.NoError(t, err)
	html := string(raw)

	assert.Contains(t, html, "Orthopedic Associates MSK Bundle")
	assert.Contains(t, html, "MSK-001")
	assert.Contains(t, html, "Implant cost share above cap")
	assert.Contains(t, html, "prom_collection_rate")
	assert.Contains(t, html, "avg_episode_cost")
	assert.Contains(t, html, "model unavailable")
	assert.Contains(t, html, "Has the implant vendor contract changed this year?")

	// Episodes total $3.0M against a $2.04M target (missing THR target
	// skipped), a $960K overage shared at the loss rate.
	assert.Contains(t, html, "$3,000,000")
	assert.Contains(t, html, "$2,040,000")
	assert.Contains(t, html, "$288,000")
	assert.Contains(t, html, "Shared Losses")

	// Composite 82 clears the 75 minimum.
	assert.Contains(t, html, "PASSING")

	// Narrative markdown emphasis renders as HTML.
	assert.Contains(t, html, "<strong>well above</strong>")
}

func TestRenderWithoutNarrativesOrProfiles(t *testing.T) {
	out := filepath.Join(t.TempDir(), "report.html")
	run := sampleRun()
	run.Contracts[0].Quality = nil

	r := NewRenderer(nil)
	require.NoError(t, r.Render(run, diagnosis.Result{}, nil, out))

	raw, err := os.ReadFile(out)
	require.NoError(t, err)
	html := string(raw)

	assert.NotContains(t, html, "Diagnostic Narratives")
	assert.NotContains(t, html, "Run Notices")
	assert.Contains(t, html, "Composite score not present")
}

func TestSummarizeFinancialsSavingsSide(t *testing.T) {
	cr := validation.ContractResult{
		Contract: sampleContract(),
		Episodes: []perf.EpisodeRow{
			{TotalCost: 1_800_000, TotalTarget: 2_000_000},
		},
	}

	fs := summarizeFinancials(cr)
	assert.True(t, fs.SharedIsGains)
	assert.InDelta(t, -200_000, fs.Variance, 0.01)
	assert.InDelta(t, -0.10, fs.VariancePct, 1e-9)
	assert.InDelta(t, 100_000, fs.SharedAmount, 0.01)
}

func TestGateStatusUnknownWithoutComposite(t *testing.T) {
	cr := validation.ContractResult{
		Contract: sampleContract(),
		Quality: []perf.QualityRow{
			{MeasureID: "MSK-Q-001", PointsEarned: 9},
			{MeasureID: "MSK-COMP", PointsEarned: perf.Missing},
		},
	}

	gs := gateStatus(cr)
	assert.False(t, gs.Known)
	assert.Equal(t, 75.0, gs.Minimum)
}

func TestGateStatusFailing(t *testing.T) {
	cr := validation.ContractResult{
		Contract: sampleContract(),
		Quality:  []perf.QualityRow{{MeasureID: "MSK-COMP", PointsEarned: 68.5}},
	}

	gs := gateStatus(cr)
	require.True(t, gs.Known)
	assert.False(t, gs.Passing)
	assert.Equal(t, 68.5, gs.Composite)
}

func TestDollars(t *testing.T) {
	cases := []struct {
		in   float64
		want string
	}{
		{0, "$0"},
		{999, "$999"},
		{1000, "$1,000"},
		{2040000, "$2,040,000"},
		{-288000, "-$288,000"},
		{1234567.4, "$1,234,567"},
	}
	for _, c := range cases {
		assert.Equal(t, c.want, dollars(c.in), "dollars(%v)", c.in)
	}
}
