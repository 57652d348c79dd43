package validation

import (
	"fmt"
	"strings"

	"vbcaudit/domain/flags"
	"vbcaudit/domain/perf"
	"vbcaudit/domain/refdata"
)

// mskEpisodeTypeKeys maps episode_type values to reference range keys.
var mskEpisodeTypeKeys = map[string]string{
	"TKR":                "TKR",
	"THR":                "THR",
	"Spinal Fusion 1-2":  "spinal_fusion_1_2",
	"Spinal Fusion 3+":   "spinal_fusion_3_plus",
	"Knee Arthroscopy":   "knee_arthroscopy",
	"Rotator Cuff":       "rotator_cuff",
	"Conservative LBP":   "conservative_lbp",
	"Conservative Joint": "conservative_joint",
}

type oncCohort struct {
	Cancer, Stage, Line string
}

var oncCohortKeys = map[oncCohort]string{
	{"Breast", "Early", "1L"}:          "breast_early",
	{"Breast", "Metastatic", "1L"}:     "breast_metastatic",
	{"Breast", "Metastatic", "2L+"}:    "breast_metastatic",
	{"Lung", "NSCLC", "1L"}:            "lung_nsclc_1L",
	{"Lung", "NSCLC", "2L+"}:           "lung_nsclc_2L_plus",
	{"Colorectal", "Adjuvant", "1L"}:   "colorectal_adjuvant",
	{"Colorectal", "Metastatic", "1L"}: "colorectal_metastatic",
	{"Prostate", "Early", "1L"}:        "prostate_early",
	{"Prostate", "Advanced", "1L"}:     "prostate_advanced",
}

// mskQualityTargetMetrics pairs episode-row outcome metrics with the
// quality_targets reference key they are judged against. Conservative
// episodes skip all of them.
var mskQualityTargetMetrics = []struct {
	Metric string
	RefKey string
	Value  func(perf.EpisodeRow) float64
}{
	{"readmission_rate", "readmit_90day", func(r perf.EpisodeRow) float64 { return r.ReadmissionRate }},
	{"er_visit_rate_90d", "er_visit_90day", func(r perf.EpisodeRow) float64 { return r.ERVisitRate90d }},
	{"ssi_rate", "ssi_rate", func(r perf.EpisodeRow) float64 { return r.SSIRate }},
	{"revision_rate_12mo", "revision_12mo", func(r perf.EpisodeRow) float64 { return r.RevisionRate12mo }},
}

// RangeResult carries the range findings plus the reference entries that
// were expected but absent. Gaps become configuration flags at
// finalization rather than silently narrowing coverage.
type RangeResult struct {
	Flags []flags.Flag
	Gaps  []string
}

// CheckRanges compares each observed metric against its reference range.
// A value outside [min, max] is RED; a value inside the range but more
// than 40% of the range width away from the expected value is YELLOW.
func CheckRanges(episodes []perf.EpisodeRow, ranges refdata.RangeSet, contract refdata.Contract) RangeResult {
	var res RangeResult
	switch contract.Specialty {
	case refdata.SpecialtyMSK:
		res = checkMSKRanges(episodes, ranges, contract)
	case refdata.SpecialtyOncology:
		res = checkOncologyRanges(episodes, ranges, contract)
	}
	return res
}

func checkMSKRanges(episodes []perf.EpisodeRow, ranges refdata.RangeSet, contract refdata.Contract) RangeResult {
	var res RangeResult

	for _, row := range episodes {
		refKey, known := mskEpisodeTypeKeys[row.EpisodeType]
		if !known {
			res.Gaps = append(res.Gaps, fmt.Sprintf("no episode cost range mapping for episode_type %q", row.EpisodeType))
			continue
		}
		rng, ok := ranges.EpisodeCost[refKey]
		if !ok {
			res.Gaps = append(res.Gaps, fmt.Sprintf("episode_cost_ranges missing entry %q", refKey))
		} else if f := classifyRange(row.AvgEpisodeCost, rng, "avg_episode_cost", row.EpisodeType, contract.ID); f != nil {
			res.Flags = append(res.Flags, *f)
		}

		if row.Conservative() {
			continue
		}

		for _, u := range []struct {
			RefKey, Metric string
			Value          float64
		}{
			{"opioid_mme_discharge_avg", "avg_opioid_mme_discharge", row.AvgOpioidMMEDischarge},
			{"prom_collection_rate", "prom_collection_rate", row.PROMCollectionRate},
		} {
			if !perf.Has(u.Value) {
				continue
			}
			rng, ok := ranges.Utilization[u.RefKey]
			if !ok {
				res.Gaps = append(res.Gaps, fmt.Sprintf("utilization_ranges_ma missing entry %q", u.RefKey))
				continue
			}
			if f := classifyRange(u.Value, rng, u.Metric, row.EpisodeType, contract.ID); f != nil {
				res.Flags = append(res.Flags, *f)
			}
		}

		for _, m := range mskQualityTargetMetrics {
			val := m.Value(row)
			if !perf.Has(val) {
				continue
			}
			rng, ok := ranges.QualityTargets[m.RefKey]
			if !ok {
				res.Gaps = append(res.Gaps, fmt.Sprintf("quality_targets missing entry %q", m.RefKey))
				continue
			}
			if f := classifyRange(val, rng, m.Metric, row.EpisodeType, contract.ID); f != nil {
				res.Flags = append(res.Flags, *f)
			}
		}
	}

	res.Gaps = dedupe(res.Gaps)
	return res
}

func checkOncologyRanges(episodes []perf.EpisodeRow, ranges refdata.RangeSet, contract refdata.Contract) RangeResult {
	var res RangeResult

	for _, row := range episodes {
		label := row.Label()
		refKey, known := oncCohortKeys[oncCohort{row.CancerType, row.StageGroup, row.LineOfTherapy}]
		if !known {
			res.Gaps = append(res.Gaps, fmt.Sprintf("no reference cohort for %s", label))
			continue
		}

		if rng, ok := ranges.EpisodeCost[refKey]; ok {
			if f := classifyRange(row.AvgEpisodeCost, rng, "avg_episode_cost", label, contract.ID); f != nil {
				res.Flags = append(res.Flags, *f)
			}
		} else {
			res.Gaps = append(res.Gaps, fmt.Sprintf("episode_cost_ranges missing entry %q", refKey))
		}

		if !perf.Has(row.PathwayAdherenceRate) {
			continue
		}
		bench, ok := ranges.PathwayAdherence[refKey]
		if !ok {
			res.Gaps = append(res.Gaps, fmt.Sprintf("pathway_adherence_benchmarks missing entry %q", refKey))
			continue
		}
		minAcceptable := deref(bench.MinAcceptable)
		expected := deref(bench.Expected)
		adherence := row.PathwayAdherenceRate
		switch {
		case adherence < minAcceptable:
			res.Flags = append(res.Flags, flags.Flag{
				Severity: flags.Red, Category: flags.CategoryRange,
				Metric:      "pathway_adherence_rate",
				Observed:    fmt.Sprintf("%.0f%%", adherence*100),
				Expected:    fmt.Sprintf("min acceptable %.0f%%, expected %.0f%%", minAcceptable*100, expected*100),
				EpisodeType: label, ContractID: contract.ID,
				Description: fmt.Sprintf("Pathway adherence %.0f%% below minimum acceptable %.0f%% for %s",
					adherence*100, minAcceptable*100, label),
				Detail: fmt.Sprintf("Expected adherence of %.0f%%. Current rate is significantly below benchmark.", expected*100),
				Evidence: map[string]any{
					"pathway_adherence_rate": adherence, "min_acceptable": minAcceptable, "expected": expected,
				},
			})
		case adherence < expected:
			res.Flags = append(res.Flags, flags.Flag{
				Severity: flags.Yellow, Category: flags.CategoryRange,
				Metric:      "pathway_adherence_rate",
				Observed:    fmt.Sprintf("%.0f%%", adherence*100),
				Expected:    fmt.Sprintf("expected %.0f%%", expected*100),
				EpisodeType: label, ContractID: contract.ID,
				Description: fmt.Sprintf("Pathway adherence %.0f%% below expected %.0f%% for %s",
					adherence*100, expected*100, label),
				Detail: fmt.Sprintf("Rate is above minimum acceptable (%.0f%%) but below expected benchmark.", minAcceptable*100),
				Evidence: map[string]any{
					"pathway_adherence_rate": adherence, "min_acceptable": minAcceptable, "expected": expected,
				},
			})
		}
	}

	res.Gaps = dedupe(res.Gaps)
	return res
}

// classifyRange applies one range definition to one value. Bounded ranges
// use the RED-outside / YELLOW-far-from-expected scheme; target-style
// definitions (max_acceptable with a target) flag only on exceedance.
func classifyRange(value float64, rng refdata.Range, metric, episodeType, contractID string) *flags.Flag {
	if !perf.Has(value) {
		return nil
	}

	min := coalesce(rng.Min, rng.MinAcceptable)
	max := coalesce(rng.Max, rng.MaxAcceptable)
	expected := coalesce(rng.Expected, rng.Target)

	if min != nil && max != nil {
		if value < *min || value > *max {
			return &flags.Flag{
				Severity: flags.Red, Category: flags.CategoryRange,
				Metric:      metric,
				Observed:    formatMetric(value),
				Expected:    fmt.Sprintf("range [%s, %s], expected ~%s", formatMetric(*min), formatMetric(*max), formatExpected(expected)),
				EpisodeType: episodeType, ContractID: contractID,
				Description: fmt.Sprintf("%s = %s is outside bounds [%s, %s] for %s",
					metric, formatMetric(value), formatMetric(*min), formatMetric(*max), episodeType),
				Detail: strings.TrimSpace(fmt.Sprintf("%s. Value %s falls outside the acceptable range. Expected approximately %s.",
					rng.Description, formatMetric(value), formatExpected(expected))),
				Evidence: map[string]any{"value": value, "min": *min, "max": *max},
			}
		}
		if expected != nil {
			width := *max - *min
			if width > 0 {
				deviation := abs(value-*expected) / width
				if deviation > 0.4 {
					return &flags.Flag{
						Severity: flags.Yellow, Category: flags.CategoryRange,
						Metric:      metric,
						Observed:    formatMetric(value),
						Expected:    fmt.Sprintf("expected ~%s (range [%s, %s])", formatMetric(*expected), formatMetric(*min), formatMetric(*max)),
						EpisodeType: episodeType, ContractID: contractID,
						Description: fmt.Sprintf("%s = %s is within bounds but significantly deviates from expected %s for %s",
							metric, formatMetric(value), formatMetric(*expected), episodeType),
						Detail: strings.TrimSpace(fmt.Sprintf("%s. Value is within [%s, %s] but deviates %.0f%% of range width from expected.",
							rng.Description, formatMetric(*min), formatMetric(*max), deviation*100)),
						Evidence: map[string]any{"value": value, "expected": *expected, "deviation_of_width": deviation},
					}
				}
			}
		}
		return nil
	}

	if max != nil {
		target := rng.Target
		if value > *max {
			return &flags.Flag{
				Severity: flags.Red, Category: flags.CategoryRange,
				Metric:      metric,
				Observed:    formatMetric(value),
				Expected:    fmt.Sprintf("target %s, max acceptable %s", formatExpected(target), formatMetric(*max)),
				EpisodeType: episodeType, ContractID: contractID,
				Description: fmt.Sprintf("%s = %s exceeds maximum acceptable %s for %s",
					metric, formatMetric(value), formatMetric(*max), episodeType),
				Detail: strings.TrimSpace(fmt.Sprintf("%s. Target is %s, maximum acceptable is %s.",
					rng.Description, formatExpected(target), formatMetric(*max))),
				Evidence: map[string]any{"value": value, "max_acceptable": *max},
			}
		}
		if target != nil && value > *target {
			return &flags.Flag{
				Severity: flags.Yellow, Category: flags.CategoryRange,
				Metric:      metric,
				Observed:    formatMetric(value),
				Expected:    fmt.Sprintf("target %s", formatMetric(*target)),
				EpisodeType: episodeType, ContractID: contractID,
				Description: fmt.Sprintf("%s = %s exceeds target %s for %s (but within acceptable range)",
					metric, formatMetric(value), formatMetric(*target), episodeType),
				Detail: strings.TrimSpace(fmt.Sprintf("%s. Value exceeds target but remains below maximum acceptable threshold of %s.",
					rng.Description, formatMetric(*max))),
				Evidence: map[string]any{"value": value, "target": *target, "max_acceptable": *max},
			}
		}
	}

	return nil
}

func coalesce(a, b *float64) *float64 {
	if a != nil {
		return a
	}
	return b
}

func deref(p *float64) float64 {
	if p == nil {
		return 0
	}
	return *p
}

func abs(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}

func formatMetric(v float64) string {
	if v == float64(int64(v)) && abs(v) < 1e9 {
		return fmt.Sprintf("%.0f", v)
	}
	return fmt.Sprintf("%.4g", v)
}

func formatExpected(p *float64) string {
	if p == nil {
		return "n/a"
	}
	return formatMetric(*p)
}

func dedupe(in []string) []string {
	if len(in) < 2 {
		return in
	}
	seen := make(map[string]bool, len(in))
	out := in[:0]
	for _, s := range in {
		if !seen[s] {
			seen[s] = true
			out = append(out, s)
		}
	}
	return out
}
