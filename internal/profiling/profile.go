// Package profiling computes descriptive statistics for the numeric
// columns of an input table. The profiles back the report's data appendix
// and give reviewers a quick read on whether a submitted extract looks
// like the prior period.
package profiling

import (
	"math"

	"github.com/montanaflynn/stats"
	"gonum.org/v1/gonum/stat/distuv"

	"vbcaudit/domain/tabular"
)

// ColumnProfile summarizes one numeric column.
type ColumnProfile struct {
	Column   string
	Count    int
	Nulls    int
	Mean     float64
	Median   float64
	StdDev   float64
	Min      float64
	Max      float64
	Skewness float64
	Kurtosis float64

	// NormalityP is the Jarque-Bera p-value. Small values mean the column
	// is unlikely to be normally distributed; cost columns usually are not,
	// so this is informational, not a finding.
	NormalityP float64
}

// ProfileTable profiles every numeric or rate column in schema order.
func ProfileTable(t *tabular.Table, schema tabular.Schema) []ColumnProfile {
	var out []ColumnProfile
	for _, spec := range schema.Columns {
		if spec.Kind == tabular.KindText || !t.HasColumn(spec.Name) {
			continue
		}
		out = append(out, profileColumn(t, spec.Name))
	}
	return out
}

func profileColumn(t *tabular.Table, column string) ColumnProfile {
	values := t.ColumnValues(column)
	nulls := len(t.Rows) - len(values)

	p := ColumnProfile{Column: column, Count: len(values), Nulls: nulls, NormalityP: math.NaN()}
	if len(values) == 0 {
		return p
	}

	data := stats.Float64Data(values)
	p.Mean, _ = stats.Mean(data)
	p.Median, _ = stats.Median(data)
	p.StdDev, _ = stats.StandardDeviationSample(data)
	p.Min, _ = stats.Min(data)
	p.Max, _ = stats.Max(data)

	if len(values) >= 4 && p.StdDev > 0 {
		p.Skewness = moment(values, p.Mean, p.StdDev, 3)
		p.Kurtosis = moment(values, p.Mean, p.StdDev, 4)
		p.NormalityP = jarqueBeraP(float64(len(values)), p.Skewness, p.Kurtosis)
	}
	return p
}

func moment(values []float64, mean, sd float64, order float64) float64 {
	sum := 0.0
	for _, v := range values {
		sum += math.Pow((v-mean)/sd, order)
	}
	return sum / float64(len(values))
}

// jarqueBeraP tests the joint hypothesis that skewness is zero and
// kurtosis is three; the statistic is chi-squared with two degrees of
// freedom under normality.
func jarqueBeraP(n, skew, kurt float64) float64 {
	jb := n / 6 * (skew*skew + (kurt-3)*(kurt-3)/4)
	chi2 := distuv.ChiSquared{K: 2}
	return 1 - chi2.CDF(jb)
}
