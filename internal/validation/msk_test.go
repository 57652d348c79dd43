package validation

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"vbcaudit/domain/flags"
	"vbcaudit/domain/perf"
	"vbcaudit/internal/testkit"
)

func mskFlags(fs []flags.Flag, metric string) []flags.Flag {
	var out []flags.Flag
	for _, f := range fs {
		if f.Metric == metric {
			out = append(out, f)
		}
	}
	return out
}

func TestImplantRatioRule(t *testing.T) {
	tests := []struct {
		name        string
		episodeType string
		implant     float64
		avgCost     float64
		want        bool
	}{
		{"TKR over 20% cap", "TKR", 8500, 36000, true},    // 23.6%
		{"TKR under cap", "TKR", 6500, 36000, false},      // 18.1%
		{"fusion under 25% cap", "Spinal Fusion 1-2", 8500, 41200, false}, // 20.6%
		{"fusion over 25% cap", "Spinal Fusion 1-2", 12000, 41200, true},  // 29.1%
		{"conservative has no implants", "Conservative LBP", 500, 3500, false},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			e := testkit.Episode(tc.episodeType, 100, tc.avgCost, tc.avgCost)
			e.ImplantCostAvg = tc.implant
			got := mskFlags(CheckMSKRules([]perf.EpisodeRow{e}, nil, testkit.MSKContract()), "implant_cost_ratio")
			if tc.want {
				require.Len(t, got, 1)
				assert.Equal(t, flags.Red, got[0].Severity)
			} else {
				assert.Empty(t, got)
			}
		})
	}
}

func TestImplantRatioAttachesRiskCalibrationEvidence(t *testing.T) {
	e := testkit.Episode("TKR", 100, 36000, 34000)
	e.ImplantCostAvg = 8500
	notes := map[string]RiskNote{
		"TKR": {Actual: 1.08, Expected: 1.05, Deviation: 0.029},
	}
	got := mskFlags(CheckMSKRules([]perf.EpisodeRow{e}, notes, testkit.MSKContract()), "implant_cost_ratio")
	require.Len(t, got, 1)

	assert.Equal(t, false, got[0].Evidence["acuity_explained"])
	if !strings.Contains(got[0].Detail, "NOT explained by case complexity") {
		t.Errorf("calibrated risk scores should rule out acuity in the detail: %q", got[0].Detail)
	}
}

func TestArthroscopyVolumeRule(t *testing.T) {
	// 205 episodes for 6,200 members = 33.1/1,000, above the 25/1,000 cap.
	e := testkit.Episode("Knee Arthroscopy", 205, 6500, 6500)
	got := mskFlags(CheckMSKRules([]perf.EpisodeRow{e}, nil, testkit.MSKContract()), "arthroscopy_volume")
	require.Len(t, got, 1)
	assert.Equal(t, flags.Red, got[0].Severity)
	assert.Contains(t, got[0].Observed, "33.1")
}

func TestArthroscopyRatioRule(t *testing.T) {
	arth := testkit.Episode("Knee Arthroscopy", 205, 6500, 6500)
	cons := testkit.Episode("Conservative Joint", 320, 2800, 2800)
	got := mskFlags(CheckMSKRules([]perf.EpisodeRow{arth, cons}, nil, testkit.MSKContract()), "arthroscopy_to_conservative_ratio")
	require.Len(t, got, 1)
	assert.Equal(t, flags.Red, got[0].Severity)
	assert.Equal(t, "0.64:1", got[0].Observed)
}

func TestArthroscopyRatioUnderCapIsSilent(t *testing.T) {
	arth := testkit.Episode("Knee Arthroscopy", 100, 6500, 6500)
	cons := testkit.Episode("Conservative Joint", 320, 2800, 2800)
	got := mskFlags(CheckMSKRules([]perf.EpisodeRow{arth, cons}, nil, testkit.MSKContract()), "arthroscopy_to_conservative_ratio")
	assert.Empty(t, got)
}

func TestPostAcuteCostRule(t *testing.T) {
	e := testkit.Episode("THR", 80, 33000, 33000)
	e.PostAcuteCostAvg = 7500 // 22.7%
	got := mskFlags(CheckMSKRules([]perf.EpisodeRow{e}, nil, testkit.MSKContract()), "post_acute_cost_ratio")
	require.Len(t, got, 1)
	assert.Equal(t, flags.Yellow, got[0].Severity)

	// The rule is scoped to joint replacement episodes.
	f := testkit.Episode("Spinal Fusion 1-2", 100, 47000, 47000)
	f.PostAcuteCostAvg = 15000
	got = mskFlags(CheckMSKRules([]perf.EpisodeRow{f}, nil, testkit.MSKContract()), "post_acute_cost_ratio")
	assert.Empty(t, got)
}

func TestOpioidMMERule(t *testing.T) {
	tests := []struct {
		name    string
		mme     float64
		wantSev flags.Severity
		want    bool
	}{
		{"under threshold", 45, 0, false},
		{"exactly at threshold", 50, 0, false},
		{"over 50", 62, flags.Yellow, true},
		{"over 90", 95, flags.Red, true},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			e := testkit.Episode("TKR", 100, 34000, 34000)
			e.AvgOpioidMMEDischarge = tc.mme
			got := mskFlags(CheckMSKRules([]perf.EpisodeRow{e}, nil, testkit.MSKContract()), "opioid_mme_discharge")
			if tc.want {
				require.Len(t, got, 1)
				assert.Equal(t, tc.wantSev, got[0].Severity)
			} else {
				assert.Empty(t, got)
			}
		})
	}
}

func TestPROMReliabilityRule(t *testing.T) {
	e := testkit.Episode("TKR", 100, 34000, 34000)
	e.PROMCollectionRate = 0.42
	e.PROMImprovementRate = 0.78
	got := mskFlags(CheckMSKRules([]perf.EpisodeRow{e}, nil, testkit.MSKContract()), "prom_collection_reliability")
	require.Len(t, got, 1)
	assert.Equal(t, flags.Red, got[0].Severity)

	degraded, ok := got[0].Evidence["reliability_degraded_metrics"].([]string)
	require.True(t, ok, "outcome metrics measured via PROMs must be annotated as degraded")
	assert.Contains(t, degraded, "prom_improvement_rate")
	if !strings.Contains(got[0].Detail, "not failed") {
		t.Errorf("detail should state metrics are degraded, not failed: %q", got[0].Detail)
	}
}

func TestFusionComplexityRule(t *testing.T) {
	fus12 := testkit.Episode("Spinal Fusion 1-2", 60, 47000, 47000)
	fus3p := testkit.Episode("Spinal Fusion 3+", 40, 68000, 68000) // 40% of fusions
	got := mskFlags(CheckMSKRules([]perf.EpisodeRow{fus12, fus3p}, nil, testkit.MSKContract()), "fusion_complexity_distribution")
	require.Len(t, got, 1)
	assert.Equal(t, flags.Yellow, got[0].Severity)

	fus3p.EpisodeCount = 20 // 25%, under the 30% threshold
	got = mskFlags(CheckMSKRules([]perf.EpisodeRow{fus12, fus3p}, nil, testkit.MSKContract()), "fusion_complexity_distribution")
	assert.Empty(t, got)
}
