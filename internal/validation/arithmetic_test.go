package validation

import (
	"strings"
	"testing"

	"vbcaudit/domain/flags"
	"vbcaudit/domain/perf"
	"vbcaudit/internal/testkit"
)

func TestCostReconciliationBands(t *testing.T) {
	tests := []struct {
		name      string
		totalCost float64 // against count=100, avg=30000 (derived 3,000,000)
		wantSev   flags.Severity
		wantFlag  bool
	}{
		{"exact", 3_000_000, flags.Green, false},
		{"at tolerance boundary", 3_030_000, flags.Green, false}, // exactly 1%, inclusive
		{"just over tolerance", 3_060_000, flags.Yellow, true},   // 2%
		{"over fail band", 3_300_000, flags.Red, true},           // 10% > 5x1%
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			e := testkit.Episode("TKR", 100, 30000, 32000)
			e.TotalCost = tc.totalCost
			res := CheckArithmetic([]perf.EpisodeRow{e}, nil, testkit.MSKContract())

			var got []flags.Flag
			for _, f := range res.Flags {
				if f.Metric == "episode_cost_reconciliation" {
					got = append(got, f)
				}
			}
			if tc.wantFlag {
				if len(got) != 1 {
					t.Fatalf("want 1 reconciliation flag, got %d", len(got))
				}
				if got[0].Severity != tc.wantSev {
					t.Errorf("severity = %s, want %s", got[0].Severity, tc.wantSev)
				}
			} else if len(got) != 0 {
				t.Errorf("want no reconciliation flag, got %+v", got)
			}
		})
	}
}

func TestVarianceBoundaryIsInclusive(t *testing.T) {
	e := testkit.Episode("THR", 50, 33000, 30000)
	// Derived variance is 0.10; reported exactly one point off must pass.
	e.VariancePct = 0.11
	res := CheckArithmetic([]perf.EpisodeRow{e}, nil, testkit.MSKContract())
	for _, f := range res.Flags {
		if f.Metric == "variance_calculation" {
			t.Errorf("deviation exactly at tolerance should not flag, got %+v", f)
		}
	}
}

func TestMissingFieldsProduceNoArithmeticFlags(t *testing.T) {
	e := testkit.BlankEpisode()
	e.EpisodeType = "TKR"
	e.EpisodeCount = 40
	res := CheckArithmetic([]perf.EpisodeRow{e}, nil, testkit.MSKContract())
	for _, f := range res.Flags {
		if f.Metric != "member_months_check" {
			t.Errorf("missing inputs must be skipped, not flagged: %+v", f)
		}
	}
}

func TestComponentSumUsesSpecialtyColumns(t *testing.T) {
	e := testkit.Episode("TKR", 100, 34000, 34000)
	e.ImplantCostAvg = 8000
	e.FacilityCostAvg = 15000
	e.ProfessionalCostAvg = 5000
	e.PostAcuteCostAvg = 3000
	e.ReadmissionCostAvg = 500
	// Sum 31,500 vs 34,000 is a 7.4% gap, inside the 25% fail band.
	res := CheckArithmetic([]perf.EpisodeRow{e}, nil, testkit.MSKContract())

	found := false
	for _, f := range res.Flags {
		if f.Metric == "cost_component_sum" {
			found = true
			if f.Severity != flags.Yellow {
				t.Errorf("severity = %s, want YELLOW", f.Severity)
			}
		}
	}
	if !found {
		t.Fatal("expected a cost_component_sum flag")
	}
}

func TestDispositionSumSkipsConservativeEpisodes(t *testing.T) {
	e := testkit.Episode("Conservative LBP", 200, 3500, 3600)
	e.DischargeHomePct = 0.5 // nonsense for a conservative row, must be ignored
	res := CheckArithmetic([]perf.EpisodeRow{e}, nil, testkit.MSKContract())
	for _, f := range res.Flags {
		if f.Metric == "discharge_disposition_sum" {
			t.Errorf("conservative episodes have no disposition identity: %+v", f)
		}
	}
}

func TestZeroDenominatorMarksRateUnusable(t *testing.T) {
	q := testkit.Quality("MSK-Q-003", "SSI Rate", 4, 0, 0.01, 10, 8)
	q.Rate = 0.012 // reported despite the zero denominator
	res := CheckArithmetic(nil, []perf.QualityRow{q}, testkit.MSKContract())

	if !res.UnusableRates["MSK-Q-003"] {
		t.Fatal("zero-denominator measure must be marked unusable")
	}
	found := false
	for _, f := range res.Flags {
		if f.Metric == "quality_rate_calculation" && f.Severity == flags.Red {
			found = true
			if !strings.Contains(f.Description, "zero denominator") {
				t.Errorf("description should name the zero denominator: %q", f.Description)
			}
		}
	}
	if !found {
		t.Fatal("expected a RED zero-denominator flag")
	}
}

func TestCompositeVsComponentPoints(t *testing.T) {
	rows := []perf.QualityRow{
		testkit.Quality("MSK-Q-001", "Readmission", 30, 600, 0.05, 20, 16),
		testkit.Quality("MSK-Q-002", "ER Visits", 55, 600, 0.10, 20, 18),
		testkit.Quality("MSK-COMP", "Composite", 0, 0, 0, 100, 95), // reports 95 vs derived 85
	}
	rows[2].Numerator = perf.Missing
	rows[2].Denominator = perf.Missing
	rows[2].Rate = perf.Missing

	res := CheckArithmetic(nil, rows, testkit.MSKContract())
	found := false
	for _, f := range res.Flags {
		if f.Metric == "quality_points_sum" {
			found = true
			if f.Severity != flags.Red {
				t.Errorf("a 10 point composite gap is past the 5 point band, want RED, got %s", f.Severity)
			}
		}
	}
	if !found {
		t.Fatal("expected a quality_points_sum flag")
	}
}

func TestMemberMonthsDrift(t *testing.T) {
	c := testkit.MSKContract()
	c.AttributedMembers = 6200
	c.MemberMonths = 68000 // members x 12 = 74,400, ~9.4% off
	res := CheckArithmetic(nil, nil, c)

	if len(res.Flags) != 1 || res.Flags[0].Metric != "member_months_check" {
		t.Fatalf("want exactly the member_months_check flag, got %+v", res.Flags)
	}
	if res.Flags[0].Severity != flags.Yellow {
		t.Errorf("severity = %s, want YELLOW", res.Flags[0].Severity)
	}
}
