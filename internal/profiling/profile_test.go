package profiling

import (
	"math"
	"testing"

	"vbcaudit/domain/tabular"
)

func costTable(values ...any) *tabular.Table {
	t := tabular.New("msk_episodes", []string{"episode_type", "avg_episode_cost"})
	for _, v := range values {
		cell := tabular.NullCell()
		if f, ok := v.(float64); ok {
			cell = tabular.NumCell(f)
		}
		_ = t.Append([]tabular.Cell{tabular.TextCell("TKR"), cell})
	}
	return t
}

var costSchema = tabular.Schema{
	Dataset: "msk_episodes",
	Columns: []tabular.ColumnSpec{
		{Name: "episode_type", Kind: tabular.KindText},
		{Name: "avg_episode_cost", Kind: tabular.KindNumeric},
		{Name: "not_in_table", Kind: tabular.KindNumeric},
	},
}

func TestProfileTableSkipsTextAndAbsentColumns(t *testing.T) {
	profiles := ProfileTable(costTable(30000.0, 32000.0), costSchema)
	if len(profiles) != 1 {
		t.Fatalf("want 1 profile, got %d", len(profiles))
	}
	if profiles[0].Column != "avg_episode_cost" {
		t.Errorf("got %s", profiles[0].Column)
	}
}

func TestProfileDescriptives(t *testing.T) {
	profiles := ProfileTable(costTable(30000.0, 32000.0, 34000.0, 36000.0, nil), costSchema)
	p := profiles[0]

	if p.Count != 4 || p.Nulls != 1 {
		t.Errorf("count/nulls: %d/%d", p.Count, p.Nulls)
	}
	if p.Mean != 33000 || p.Median != 33000 {
		t.Errorf("mean/median: %v/%v", p.Mean, p.Median)
	}
	if p.Min != 30000 || p.Max != 36000 {
		t.Errorf("min/max: %v/%v", p.Min, p.Max)
	}
	if p.StdDev <= 0 {
		t.Errorf("stddev: %v", p.StdDev)
	}

	// Symmetric data: skewness near zero, JB p-value well above any
	// rejection threshold.
	if math.Abs(p.Skewness) > 1e-9 {
		t.Errorf("skewness: %v", p.Skewness)
	}
	if math.IsNaN(p.NormalityP) || p.NormalityP < 0.05 {
		t.Errorf("normality p: %v", p.NormalityP)
	}
}

func TestProfileSmallSamplesSkipMoments(t *testing.T) {
	profiles := ProfileTable(costTable(30000.0, 36000.0), costSchema)
	p := profiles[0]

	if p.Skewness != 0 || p.Kurtosis != 0 {
		t.Errorf("moments should stay zero for n<4: %v/%v", p.Skewness, p.Kurtosis)
	}
	if !math.IsNaN(p.NormalityP) {
		t.Errorf("normality p should be NaN for n<4, got %v", p.NormalityP)
	}
}

func TestProfileEmptyColumn(t *testing.T) {
	profiles := ProfileTable(costTable(nil, nil), costSchema)
	p := profiles[0]

	if p.Count != 0 || p.Nulls != 2 {
		t.Errorf("count/nulls: %d/%d", p.Count, p.Nulls)
	}
	if !math.IsNaN(p.NormalityP) {
		t.Errorf("normality p should be NaN, got %v", p.NormalityP)
	}
}

func TestSkewedColumnRejectsNormality(t *testing.T) {
	// A long right tail typical of cost data.
	values := []any{
		1000.0, 1100.0, 1050.0, 980.0, 1020.0, 990.0, 1010.0,
		1200.0, 950.0, 1080.0, 1030.0, 1005.0, 995.0, 1025.0,
		20000.0,
	}
	profiles := ProfileTable(costTable(values...), costSchema)
	p := profiles[0]

	if p.Skewness <= 1 {
		t.Errorf("expected strong positive skew, got %v", p.Skewness)
	}
	if p.NormalityP > 0.05 {
		t.Errorf("JB should reject normality, got p=%v", p.NormalityP)
	}
}
