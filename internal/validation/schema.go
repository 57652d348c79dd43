package validation

import (
	"fmt"
	"strings"

	"vbcaudit/domain/flags"
	"vbcaudit/domain/refdata"
	"vbcaudit/domain/tabular"
)

// Normalization records a scale correction the schema checker applied to a
// rate column. Normalization is metadata, not a finding: the data was
// internally consistent, just on the wrong scale.
type Normalization struct {
	Column string
	Scale  float64
	Note   string
}

// SchemaResult carries the structural findings plus the normalized copy of
// the table every later checker consumes. The input table is untouched.
type SchemaResult struct {
	Flags          []flags.Flag
	Table          *tabular.Table
	Normalizations []Normalization
}

// CheckSchema validates a table against its expected column contract:
// presence, type coercion, nulls, domain constraints, and rate scale. It
// returns a normalized copy for downstream checkers.
func CheckSchema(t *tabular.Table, schema tabular.Schema, contract refdata.Contract) SchemaResult {
	out := SchemaResult{Table: t.Clone()}

	newFlag := func(severity flags.Severity, metric, observed, expected, description, detail string) {
		out.Flags = append(out.Flags, flags.Flag{
			Severity:    severity,
			Category:    flags.CategorySchema,
			Metric:      metric,
			Observed:    observed,
			Expected:    expected,
			EpisodeType: "ALL",
			ContractID:  contract.ID,
			Description: description,
			Detail:      detail,
		})
	}

	// Column presence.
	for _, spec := range schema.Columns {
		if spec.Required && !t.HasColumn(spec.Name) {
			newFlag(flags.Red, spec.Name, "MISSING", "column should exist",
				fmt.Sprintf("Missing expected column '%s' in %s", spec.Name, schema.Dataset),
				fmt.Sprintf("The column '%s' is expected in %s but was not found. Available columns: %s",
					spec.Name, schema.Dataset, strings.Join(t.Columns, ", ")))
		}
	}
	for _, name := range t.Columns {
		if _, ok := schema.Column(name); !ok {
			newFlag(flags.Yellow, name, "EXTRA", "column not expected",
				fmt.Sprintf("Unexpected column '%s' in %s", name, schema.Dataset),
				fmt.Sprintf("The column '%s' exists in %s but is not in the expected schema.", name, schema.Dataset))
		}
	}

	// Type coercion: numeric and rate columns must hold numbers.
	for _, spec := range schema.Columns {
		if spec.Kind == tabular.KindText || !t.HasColumn(spec.Name) {
			continue
		}
		bad := 0
		sample := ""
		for i := range t.Rows {
			c, _ := t.Cell(i, spec.Name)
			if c.Null || c.IsNum {
				continue
			}
			bad++
			if sample == "" {
				sample = c.Text
			}
		}
		if bad > 0 {
			newFlag(flags.Red, spec.Name, fmt.Sprintf("%d non-numeric value(s)", bad), spec.Kind.String(),
				fmt.Sprintf("Column '%s' in %s is not numeric", spec.Name, schema.Dataset),
				fmt.Sprintf("Expected %s type but %d value(s) could not be coerced. Sample: %q.",
					spec.Kind.String(), bad, sample))
		}
	}

	// Nulls: RED in critical columns, YELLOW elsewhere.
	for _, spec := range schema.Columns {
		if !t.HasColumn(spec.Name) {
			continue
		}
		nulls := 0
		for i := range t.Rows {
			c, _ := t.Cell(i, spec.Name)
			if c.Null {
				nulls++
			}
		}
		if nulls == 0 {
			continue
		}
		if spec.Critical {
			newFlag(flags.Red, spec.Name, fmt.Sprintf("%d nulls", nulls), "no nulls in critical field",
				fmt.Sprintf("Critical field '%s' has %d null value(s) in %s", spec.Name, nulls, schema.Dataset),
				fmt.Sprintf("The field '%s' is critical for downstream calculations and should not be null.", spec.Name))
		} else {
			newFlag(flags.Yellow, spec.Name, fmt.Sprintf("%d nulls", nulls), "no nulls",
				fmt.Sprintf("Field '%s' has %d null value(s) in %s", spec.Name, nulls, schema.Dataset),
				fmt.Sprintf("Null values in '%s' reduce coverage of the checks that consume it.", spec.Name))
		}
	}

	// Domain constraints: counts and costs must not be negative.
	for _, spec := range schema.Columns {
		if spec.Kind != tabular.KindNumeric || !t.HasColumn(spec.Name) {
			continue
		}
		if !strings.Contains(spec.Name, "count") && !strings.Contains(spec.Name, "cost") &&
			!strings.Contains(spec.Name, "claims") && !strings.Contains(spec.Name, "price") {
			continue
		}
		neg := 0
		for i := range t.Rows {
			c, _ := t.Cell(i, spec.Name)
			if !c.Null && c.IsNum && c.Num < 0 {
				neg++
			}
		}
		if neg > 0 {
			newFlag(flags.Red, spec.Name, fmt.Sprintf("%d negative value(s)", neg), ">= 0",
				fmt.Sprintf("Negative values in '%s' in %s", spec.Name, schema.Dataset),
				fmt.Sprintf("Counts and cost fields should not be negative. Found %d negative value(s).", neg))
		}
	}

	// Rate scale detection and normalization on the copy.
	for _, spec := range schema.Columns {
		if spec.Kind != tabular.KindRate || !t.HasColumn(spec.Name) {
			continue
		}
		proportion, percent, outOfRange := 0, 0, 0
		var maxVal float64
		for i := range t.Rows {
			c, _ := t.Cell(i, spec.Name)
			if c.Null || !c.IsNum {
				continue
			}
			v := c.Num
			if v > maxVal {
				maxVal = v
			}
			switch {
			case v < 0 || v > 100:
				outOfRange++
			case v > 1:
				percent++
			case v > 0:
				proportion++
			}
		}
		if outOfRange > 0 {
			newFlag(flags.Red, spec.Name, fmt.Sprintf("%d value(s) outside [0,100]", outOfRange), "0-1 proportion scale",
				fmt.Sprintf("Rate column '%s' has values outside any valid scale in %s", spec.Name, schema.Dataset),
				fmt.Sprintf("Found %d value(s) below 0 or above 100; neither proportion nor percentage scale fits.", outOfRange))
			continue
		}
		switch {
		case percent > 0 && proportion > 0:
			// Mixed scale within one column cannot be normalized safely.
			newFlag(flags.Red, spec.Name, fmt.Sprintf("max=%.4g, mixed scales", maxVal), "single 0-1 or 0-100 scale",
				fmt.Sprintf("Rate column '%s' mixes proportion and percentage scales in %s", spec.Name, schema.Dataset),
				fmt.Sprintf("Column holds %d value(s) in (0,1] and %d value(s) in (1,100]; ambiguous normalization.", proportion, percent))
		case percent > 0:
			for i := range t.Rows {
				c, _ := out.Table.Cell(i, spec.Name)
				if !c.Null && c.IsNum {
					out.Table.SetCell(i, spec.Name, tabular.NumCell(c.Num/100))
				}
			}
			out.Normalizations = append(out.Normalizations, Normalization{
				Column: spec.Name,
				Scale:  100,
				Note:   fmt.Sprintf("values up to %.4g interpreted as percentages and divided by 100", maxVal),
			})
		}
	}

	// All checks passed notification.
	if len(out.Flags) == 0 {
		newFlag(flags.Green, "schema_check", "PASS", "all checks pass",
			fmt.Sprintf("Schema validation passed for %s", schema.Dataset),
			fmt.Sprintf("All %d expected columns present, types correct, no critical nulls, constraints satisfied.",
				len(schema.Columns)))
	}

	return out
}
