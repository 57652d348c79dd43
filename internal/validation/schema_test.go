package validation

import (
	"testing"

	"vbcaudit/domain/flags"
	"vbcaudit/domain/tabular"
	"vbcaudit/internal/testkit"
)

var miniSchema = tabular.Schema{
	Dataset: "mini",
	Columns: []tabular.ColumnSpec{
		critical("episode_type", tabular.KindText),
		critical("episode_count", tabular.KindNumeric),
		col("total_cost", tabular.KindNumeric),
		col("readmission_rate", tabular.KindRate),
	},
}

var miniColumns = []string{"episode_type", "episode_count", "total_cost", "readmission_rate"}

func schemaFlagsFor(res SchemaResult, metric string) []flags.Flag {
	var out []flags.Flag
	for _, f := range res.Flags {
		if f.Metric == metric {
			out = append(out, f)
		}
	}
	return out
}

func TestSchemaCleanTableGetsSingleGreen(t *testing.T) {
	tbl := testkit.Table("mini", miniColumns,
		[]any{"TKR", 100, 3400000.0, 0.04},
	)
	res := CheckSchema(tbl, miniSchema, testkit.MSKContract())
	if len(res.Flags) != 1 {
		t.Fatalf("want exactly one GREEN pass flag, got %+v", res.Flags)
	}
	if res.Flags[0].Severity != flags.Green || res.Flags[0].Observed != "PASS" {
		t.Errorf("got %+v", res.Flags[0])
	}
}

func TestSchemaMissingRequiredColumn(t *testing.T) {
	tbl := testkit.Table("mini", []string{"episode_type", "total_cost", "readmission_rate"},
		[]any{"TKR", 3400000.0, 0.04},
	)
	res := CheckSchema(tbl, miniSchema, testkit.MSKContract())
	got := schemaFlagsFor(res, "episode_count")
	if len(got) != 1 || got[0].Severity != flags.Red || got[0].Observed != "MISSING" {
		t.Fatalf("want RED MISSING flag for episode_count, got %+v", res.Flags)
	}
}

func TestSchemaExtraColumnIsYellow(t *testing.T) {
	tbl := testkit.Table("mini", append(miniColumns, "vendor_notes"),
		[]any{"TKR", 100, 3400000.0, 0.04, "ok"},
	)
	res := CheckSchema(tbl, miniSchema, testkit.MSKContract())
	got := schemaFlagsFor(res, "vendor_notes")
	if len(got) != 1 || got[0].Severity != flags.Yellow {
		t.Fatalf("want YELLOW extra-column flag, got %+v", res.Flags)
	}
}

func TestSchemaTypeCoercionFailure(t *testing.T) {
	tbl := testkit.Table("mini", miniColumns,
		[]any{"TKR", "about a hundred", 3400000.0, 0.04},
	)
	res := CheckSchema(tbl, miniSchema, testkit.MSKContract())
	got := schemaFlagsFor(res, "episode_count")
	if len(got) != 1 || got[0].Severity != flags.Red {
		t.Fatalf("want RED coercion flag, got %+v", res.Flags)
	}
}

func TestSchemaNullSeverityFollowsCriticality(t *testing.T) {
	tbl := testkit.Table("mini", miniColumns,
		[]any{"TKR", nil, nil, 0.04},
	)
	res := CheckSchema(tbl, miniSchema, testkit.MSKContract())

	crit := schemaFlagsFor(res, "episode_count")
	if len(crit) != 1 || crit[0].Severity != flags.Red {
		t.Errorf("critical null must be RED, got %+v", crit)
	}
	soft := schemaFlagsFor(res, "total_cost")
	if len(soft) != 1 || soft[0].Severity != flags.Yellow {
		t.Errorf("non-critical null must be YELLOW, got %+v", soft)
	}
}

func TestSchemaNegativeCostIsRed(t *testing.T) {
	tbl := testkit.Table("mini", miniColumns,
		[]any{"TKR", 100, -500.0, 0.04},
	)
	res := CheckSchema(tbl, miniSchema, testkit.MSKContract())
	got := schemaFlagsFor(res, "total_cost")
	if len(got) != 1 || got[0].Severity != flags.Red {
		t.Fatalf("want RED negative-value flag, got %+v", res.Flags)
	}
}

func TestSchemaPercentScaleNormalization(t *testing.T) {
	tbl := testkit.Table("mini", miniColumns,
		[]any{"TKR", 100, 3400000.0, 4.0},
		[]any{"THR", 80, 2640000.0, 6.5},
	)
	res := CheckSchema(tbl, miniSchema, testkit.MSKContract())

	if len(res.Normalizations) != 1 || res.Normalizations[0].Column != "readmission_rate" {
		t.Fatalf("want one normalization for readmission_rate, got %+v", res.Normalizations)
	}
	c, _ := res.Table.Cell(0, "readmission_rate")
	if c.Num != 0.04 {
		t.Errorf("normalized copy should hold 0.04, got %v", c.Num)
	}
	orig, _ := tbl.Cell(0, "readmission_rate")
	if orig.Num != 4.0 {
		t.Errorf("input table must stay untouched, got %v", orig.Num)
	}

	// Normalization is metadata, not a finding.
	for _, f := range res.Flags {
		if f.Metric == "readmission_rate" {
			t.Errorf("scale normalization must not flag: %+v", f)
		}
	}

	// Re-checking the normalized copy is a no-op.
	again := CheckSchema(res.Table, miniSchema, testkit.MSKContract())
	if len(again.Normalizations) != 0 {
		t.Errorf("normalization must be idempotent, got %+v", again.Normalizations)
	}
}

func TestSchemaMixedScaleIsRedNotNormalized(t *testing.T) {
	tbl := testkit.Table("mini", miniColumns,
		[]any{"TKR", 100, 3400000.0, 0.04},
		[]any{"THR", 80, 2640000.0, 6.5},
	)
	res := CheckSchema(tbl, miniSchema, testkit.MSKContract())

	got := schemaFlagsFor(res, "readmission_rate")
	if len(got) != 1 || got[0].Severity != flags.Red {
		t.Fatalf("mixed scales must be RED, got %+v", res.Flags)
	}
	if len(res.Normalizations) != 0 {
		t.Errorf("ambiguous scale must not be normalized, got %+v", res.Normalizations)
	}
	c, _ := res.Table.Cell(1, "readmission_rate")
	if c.Num != 6.5 {
		t.Errorf("values must be left as reported, got %v", c.Num)
	}
}

func TestSchemaOutOfAnyScaleIsRed(t *testing.T) {
	tbl := testkit.Table("mini", miniColumns,
		[]any{"TKR", 100, 3400000.0, 140.0},
	)
	res := CheckSchema(tbl, miniSchema, testkit.MSKContract())
	got := schemaFlagsFor(res, "readmission_rate")
	if len(got) != 1 || got[0].Severity != flags.Red {
		t.Fatalf("value above 100 fits no scale, want RED, got %+v", res.Flags)
	}
	if len(res.Normalizations) != 0 {
		t.Errorf("out-of-range values must not be normalized")
	}
}
