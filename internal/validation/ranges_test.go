package validation

import (
	"testing"

	"vbcaudit/domain/flags"
	"vbcaudit/domain/perf"
	"vbcaudit/internal/testkit"
)

func rangeFlags(res RangeResult, metric string) []flags.Flag {
	var out []flags.Flag
	for _, f := range res.Flags {
		if f.Metric == metric {
			out = append(out, f)
		}
	}
	return out
}

func TestEpisodeCostThreeTiers(t *testing.T) {
	// TKR reference: [28,000, 42,000], expected 34,000, width 14,000.
	tests := []struct {
		name    string
		avgCost float64
		wantSev flags.Severity
		want    bool
	}{
		{"near expected", 34500, 0, false},
		{"inside but far from expected", 40000, flags.Yellow, true}, // 43% of width
		{"above max", 43000, flags.Red, true},
		{"below min", 26000, flags.Red, true},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			e := testkit.Episode("TKR", 100, tc.avgCost, 34000)
			res := CheckRanges([]perf.EpisodeRow{e}, testkit.MSKRanges(), testkit.MSKContract())
			got := rangeFlags(res, "avg_episode_cost")
			if tc.want {
				if len(got) != 1 {
					t.Fatalf("want 1 flag, got %d", len(got))
				}
				if got[0].Severity != tc.wantSev {
					t.Errorf("severity = %s, want %s", got[0].Severity, tc.wantSev)
				}
			} else if len(got) != 0 {
				t.Errorf("want no flag for %v, got %+v", tc.avgCost, got)
			}
		})
	}
}

func TestQualityTargetStyleRanges(t *testing.T) {
	// readmit_90day: target 0.05, max acceptable 0.08.
	tests := []struct {
		name    string
		rate    float64
		wantSev flags.Severity
		want    bool
	}{
		{"below target", 0.04, 0, false},
		{"above target below max", 0.06, flags.Yellow, true},
		{"above max", 0.09, flags.Red, true},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			e := testkit.Episode("TKR", 100, 34000, 34000)
			e.ReadmissionRate = tc.rate
			res := CheckRanges([]perf.EpisodeRow{e}, testkit.MSKRanges(), testkit.MSKContract())
			got := rangeFlags(res, "readmission_rate")
			if tc.want {
				if len(got) != 1 {
					t.Fatalf("want 1 flag, got %d", len(got))
				}
				if got[0].Severity != tc.wantSev {
					t.Errorf("severity = %s, want %s", got[0].Severity, tc.wantSev)
				}
			} else if len(got) != 0 {
				t.Errorf("want no flag, got %+v", got)
			}
		})
	}
}

func TestConservativeEpisodesSkipOutcomeMetrics(t *testing.T) {
	e := testkit.Episode("Conservative LBP", 200, 3500, 3600)
	e.ReadmissionRate = 0.50 // structurally inapplicable, must be ignored
	e.AvgOpioidMMEDischarge = 120
	res := CheckRanges([]perf.EpisodeRow{e}, testkit.MSKRanges(), testkit.MSKContract())
	if len(res.Flags) != 0 {
		t.Errorf("conservative rows only check episode cost, got %+v", res.Flags)
	}
}

func TestUnknownEpisodeTypeIsAGapNotAFlag(t *testing.T) {
	e := testkit.Episode("Shoulder Replacement", 40, 30000, 30000)
	res := CheckRanges([]perf.EpisodeRow{e}, testkit.MSKRanges(), testkit.MSKContract())
	if len(res.Flags) != 0 {
		t.Errorf("unmapped episode type must not produce range flags, got %+v", res.Flags)
	}
	if len(res.Gaps) != 1 {
		t.Fatalf("want 1 gap, got %v", res.Gaps)
	}
}

func TestMissingReferenceEntryIsAGap(t *testing.T) {
	rs := testkit.MSKRanges()
	delete(rs.EpisodeCost, "TKR")
	e := testkit.Episode("TKR", 100, 34000, 34000)
	res := CheckRanges([]perf.EpisodeRow{e}, rs, testkit.MSKContract())
	if len(res.Gaps) != 1 {
		t.Fatalf("want 1 gap for the missing entry, got %v", res.Gaps)
	}
}

func TestPathwayAdherenceBenchmarks(t *testing.T) {
	tests := []struct {
		name      string
		adherence float64
		wantSev   flags.Severity
		want      bool
	}{
		{"above expected", 0.90, 0, false},
		{"below expected above minimum", 0.80, flags.Yellow, true},
		{"below minimum acceptable", 0.68, flags.Red, true},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			e := testkit.CancerEpisode("Lung", "NSCLC", "1L", 30, 135000, 135000)
			e.PathwayAdherenceRate = tc.adherence
			res := CheckRanges([]perf.EpisodeRow{e}, testkit.ONCRanges(), testkit.ONCContract())
			got := rangeFlags(res, "pathway_adherence_rate")
			if tc.want {
				if len(got) != 1 {
					t.Fatalf("want 1 flag, got %d", len(got))
				}
				if got[0].Severity != tc.wantSev {
					t.Errorf("severity = %s, want %s", got[0].Severity, tc.wantSev)
				}
			} else if len(got) != 0 {
				t.Errorf("want no flag, got %+v", got)
			}
		})
	}
}

func TestRangeFlagOrderIsDeterministic(t *testing.T) {
	rows := []perf.EpisodeRow{
		testkit.Episode("TKR", 100, 43000, 34000),
		testkit.Episode("THR", 80, 26000, 33000),
	}
	first := CheckRanges(rows, testkit.MSKRanges(), testkit.MSKContract())
	for i := 0; i < 5; i++ {
		again := CheckRanges(rows, testkit.MSKRanges(), testkit.MSKContract())
		if len(again.Flags) != len(first.Flags) {
			t.Fatalf("flag count changed between runs: %d vs %d", len(again.Flags), len(first.Flags))
		}
		for j := range again.Flags {
			if again.Flags[j].Metric != first.Flags[j].Metric || again.Flags[j].EpisodeType != first.Flags[j].EpisodeType {
				t.Fatalf("flag order changed between runs at %d", j)
			}
		}
	}
}
