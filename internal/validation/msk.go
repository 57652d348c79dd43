package validation

import (
	"fmt"

	"vbcaudit/domain/flags"
	"vbcaudit/domain/perf"
	"vbcaudit/domain/refdata"
)

// implantRatioBenchmarks caps implant cost as a share of total episode
// cost, by procedure category.
var implantRatioBenchmarks = map[string]struct {
	MaxRatio float64
	Category string
}{
	"TKR":               {0.20, "joint_replacement"},
	"THR":               {0.20, "joint_replacement"},
	"Spinal Fusion 1-2": {0.25, "spinal_fusion"},
	"Spinal Fusion 3+":  {0.25, "spinal_fusion"},
	"Rotator Cuff":      {0.20, "joint_replacement"},
	"Knee Arthroscopy":  {0.10, "arthroscopy"},
}

// promOutcomeMetrics are the outcome metrics measured through PROM
// instruments; a low collection rate degrades their reliability.
var promOutcomeMetrics = []string{"prom_improvement_rate"}

// CheckMSKRules runs the musculoskeletal clinical and financial rules.
// riskNotes carries the correlator's within-tolerance risk calibration
// results so cost flags can state whether an overrun is acuity-explained.
func CheckMSKRules(episodes []perf.EpisodeRow, riskNotes map[string]RiskNote, contract refdata.Contract) []flags.Flag {
	var out []flags.Flag

	byType := make(map[string]perf.EpisodeRow, len(episodes))
	for _, row := range episodes {
		byType[row.EpisodeType] = row
	}

	for _, row := range episodes {
		out = append(out, implantRatioRule(row, riskNotes, contract)...)
	}
	out = append(out, arthroscopyVolumeRule(byType, contract)...)
	out = append(out, arthroscopyRatioRule(byType, contract)...)
	for _, row := range episodes {
		out = append(out, postAcuteCostRule(row, contract)...)
	}
	for _, row := range episodes {
		out = append(out, opioidMMERule(row, contract)...)
	}
	for _, row := range episodes {
		out = append(out, promReliabilityRule(row, contract)...)
	}
	out = append(out, fusionComplexityRule(byType, contract)...)

	return out
}

func implantRatioRule(row perf.EpisodeRow, riskNotes map[string]RiskNote, contract refdata.Contract) []flags.Flag {
	benchmark, ok := implantRatioBenchmarks[row.EpisodeType]
	if !ok {
		return nil
	}
	if !perf.Has(row.ImplantCostAvg) || !perf.Has(row.AvgEpisodeCost) || row.AvgEpisodeCost == 0 {
		return nil
	}
	ratio := row.ImplantCostAvg / row.AvgEpisodeCost
	if ratio <= benchmark.MaxRatio {
		return nil
	}

	evidence := map[string]any{
		"implant_cost_avg": row.ImplantCostAvg,
		"avg_episode_cost": row.AvgEpisodeCost,
		"implant_ratio":    ratio,
		"benchmark_max":    benchmark.MaxRatio,
	}
	acuityNote := ""
	if note, ok := riskNotes[row.EpisodeType]; ok {
		acuityNote = fmt.Sprintf(" Risk score actual (%.2f) vs expected (%.2f) is within calibration "+
			"tolerance, so the overrun is NOT explained by case complexity.", note.Actual, note.Expected)
		evidence["risk_score_actual"] = note.Actual
		evidence["risk_score_expected"] = note.Expected
		evidence["acuity_explained"] = false
	}

	return []flags.Flag{{
		Severity: flags.Red, Category: flags.CategoryMSK,
		Metric:      "implant_cost_ratio",
		Observed:    fmt.Sprintf("%.1f%%", ratio*100),
		Expected:    fmt.Sprintf("<%.0f%% for %s", benchmark.MaxRatio*100, benchmark.Category),
		EpisodeType: row.EpisodeType, ContractID: contract.ID,
		Description: fmt.Sprintf("%s: Implant cost is %.1f%% of total episode cost ($%.0f/$%.0f), exceeding %.0f%% benchmark",
			row.EpisodeType, ratio*100, row.ImplantCostAvg, row.AvgEpisodeCost, benchmark.MaxRatio*100),
		Detail: fmt.Sprintf("Implant cost avg $%.0f represents %.1f%% of total episode cost $%.0f. Industry "+
			"benchmark for %s is <%.0f%%. This may indicate premium device selection or unfavorable "+
			"vendor pricing.%s", row.ImplantCostAvg, ratio*100, row.AvgEpisodeCost,
			benchmark.Category, benchmark.MaxRatio*100, acuityNote),
		Evidence: evidence,
	}}
}

func arthroscopyVolumeRule(byType map[string]perf.EpisodeRow, contract refdata.Contract) []flags.Flag {
	row, ok := byType["Knee Arthroscopy"]
	if !ok || contract.AttributedMembers <= 0 || !perf.Has(row.EpisodeCount) {
		return nil
	}
	ratePer1000 := row.EpisodeCount / (contract.AttributedMembers / 1000)
	if ratePer1000 <= 25 {
		return nil
	}
	return []flags.Flag{{
		Severity: flags.Red, Category: flags.CategoryMSK,
		Metric:      "arthroscopy_volume",
		Observed:    fmt.Sprintf("%.1f/1,000 members", ratePer1000),
		Expected:    "15-25/1,000 for MA population",
		EpisodeType: "Knee Arthroscopy", ContractID: contract.ID,
		Description: fmt.Sprintf("Knee arthroscopy rate of %.1f/1,000 exceeds expected MA range — potential overutilization",
			ratePer1000),
		Detail: fmt.Sprintf("%.0f arthroscopy episodes for %.0f members = %.1f/1,000. Multiple RCTs show "+
			"arthroscopic debridement for knee OA (the most common MA-age indication) is clinically "+
			"ineffective. This rate significantly exceeds the expected MA range of 15-25/1,000.",
			row.EpisodeCount, contract.AttributedMembers, ratePer1000),
		Evidence: map[string]any{
			"episode_count": row.EpisodeCount, "attributed_members": contract.AttributedMembers,
			"rate_per_1000": ratePer1000,
		},
	}}
}

func arthroscopyRatioRule(byType map[string]perf.EpisodeRow, contract refdata.Contract) []flags.Flag {
	arth, okArth := byType["Knee Arthroscopy"]
	cons, okCons := byType["Conservative Joint"]
	if !okArth || !okCons || !perf.Has(arth.EpisodeCount) || !perf.Has(cons.EpisodeCount) || cons.EpisodeCount <= 0 {
		return nil
	}
	ratio := arth.EpisodeCount / cons.EpisodeCount
	if ratio <= 0.50 {
		return nil
	}
	return []flags.Flag{{
		Severity: flags.Red, Category: flags.CategoryMSK,
		Metric:      "arthroscopy_to_conservative_ratio",
		Observed:    fmt.Sprintf("%.2f:1", ratio),
		Expected:    "<0.50:1 (target 0.35:1)",
		EpisodeType: "Knee Arthroscopy", ContractID: contract.ID,
		Description: fmt.Sprintf("Arthroscopy-to-conservative joint ratio is %.2f:1, exceeding expected maximum of 0.50:1", ratio),
		Detail: fmt.Sprintf("Arthroscopy episodes (%.0f) vs conservative joint episodes (%.0f) yields ratio of "+
			"%.2f:1. Expected range is 0.30-0.40:1. High ratio suggests potential overutilization of "+
			"arthroscopy vs conservative management.", arth.EpisodeCount, cons.EpisodeCount, ratio),
		Evidence: map[string]any{
			"arthroscopy_count": arth.EpisodeCount, "conservative_joint_count": cons.EpisodeCount,
			"ratio": ratio,
		},
	}}
}

func postAcuteCostRule(row perf.EpisodeRow, contract refdata.Contract) []flags.Flag {
	if row.EpisodeType != "TKR" && row.EpisodeType != "THR" {
		return nil
	}
	if !perf.Has(row.PostAcuteCostAvg) || !perf.Has(row.AvgEpisodeCost) || row.AvgEpisodeCost == 0 {
		return nil
	}
	ratio := row.PostAcuteCostAvg / row.AvgEpisodeCost
	if ratio <= 0.20 {
		return nil
	}
	return []flags.Flag{{
		Severity: flags.Yellow, Category: flags.CategoryMSK,
		Metric:      "post_acute_cost_ratio",
		Observed:    fmt.Sprintf("%.1f%%", ratio*100),
		Expected:    "<20% of total episode cost",
		EpisodeType: row.EpisodeType, ContractID: contract.ID,
		Description: fmt.Sprintf("%s: Post-acute costs are %.1f%% of total episode cost ($%.0f/$%.0f)",
			row.EpisodeType, ratio*100, row.PostAcuteCostAvg, row.AvgEpisodeCost),
		Detail: fmt.Sprintf("Post-acute spending (SNF, IRF, home health) at %.1f%% of total episode cost exceeds "+
			"the 20%% benchmark. Consider care coordination improvements and discharge planning optimization.",
			ratio*100),
		Evidence: map[string]any{
			"post_acute_cost_avg": row.PostAcuteCostAvg, "avg_episode_cost": row.AvgEpisodeCost,
			"discharge_home_pct": row.DischargeHomePct, "discharge_snf_pct": row.DischargeSNFPct,
		},
	}}
}

func opioidMMERule(row perf.EpisodeRow, contract refdata.Contract) []flags.Flag {
	if row.Conservative() || !perf.Has(row.AvgOpioidMMEDischarge) || row.AvgOpioidMMEDischarge <= 50 {
		return nil
	}
	sev := flags.Yellow
	if row.AvgOpioidMMEDischarge > 90 {
		sev = flags.Red
	}
	return []flags.Flag{{
		Severity: sev, Category: flags.CategoryMSK,
		Metric:      "opioid_mme_discharge",
		Observed:    fmt.Sprintf("%.0f MME", row.AvgOpioidMMEDischarge),
		Expected:    "<50 MME (CDC guideline-informed)",
		EpisodeType: row.EpisodeType, ContractID: contract.ID,
		Description: fmt.Sprintf("%s: Average discharge opioid prescription of %.0f MME exceeds 50 MME threshold",
			row.EpisodeType, row.AvgOpioidMMEDischarge),
		Detail: fmt.Sprintf("CDC-informed guidelines suggest discharge opioid prescriptions should average "+
			"<50 MME. Current average of %.0f MME for %s may indicate opportunity for enhanced recovery "+
			"protocols or multimodal pain management.", row.AvgOpioidMMEDischarge, row.EpisodeType),
		Evidence: map[string]any{"avg_opioid_mme_discharge": row.AvgOpioidMMEDischarge},
	}}
}

// promReliabilityRule flags the collection metric itself when fewer than
// half of patients return PROMs, and annotates the PROM-derived outcome
// metrics as reliability-degraded without failing them outright.
func promReliabilityRule(row perf.EpisodeRow, contract refdata.Contract) []flags.Flag {
	if row.Conservative() || !perf.Has(row.PROMCollectionRate) || row.PROMCollectionRate >= 0.50 {
		return nil
	}

	var degraded []string
	if perf.Has(row.PROMImprovementRate) {
		degraded = append(degraded, promOutcomeMetrics...)
	}
	evidence := map[string]any{
		"prom_collection_rate":  row.PROMCollectionRate,
		"prom_improvement_rate": row.PROMImprovementRate,
	}
	if len(degraded) > 0 {
		evidence["reliability_degraded_metrics"] = degraded
	}

	return []flags.Flag{{
		Severity: flags.Red, Category: flags.CategoryMSK,
		Metric:      "prom_collection_reliability",
		Observed:    fmt.Sprintf("%.0f%% collection rate", row.PROMCollectionRate*100),
		Expected:    ">50% for reliable outcome measurement",
		EpisodeType: row.EpisodeType, ContractID: contract.ID,
		Description: fmt.Sprintf("%s: PROM collection rate of %.0f%% renders outcome measures unreliable",
			row.EpisodeType, row.PROMCollectionRate*100),
		Detail: fmt.Sprintf("With only %.0f%% PROM collection, the reported improvement rate of %.1f%% is "+
			"measured on a biased sample. Compliant patients who return PROMs likely have better outcomes "+
			"than non-responders. This is an operational/data capture problem, not a care quality problem — "+
			"the provider lacks a systematic PROM collection workflow. Outcome metrics derived from PROMs "+
			"are annotated as reliability degraded, not failed.",
			row.PROMCollectionRate*100, row.PROMImprovementRate*100),
		Evidence: evidence,
	}}
}

func fusionComplexityRule(byType map[string]perf.EpisodeRow, contract refdata.Contract) []flags.Flag {
	fus12, ok12 := byType["Spinal Fusion 1-2"]
	fus3p, ok3p := byType["Spinal Fusion 3+"]
	if !ok12 || !ok3p || !perf.Has(fus12.EpisodeCount) || !perf.Has(fus3p.EpisodeCount) {
		return nil
	}
	total := fus12.EpisodeCount + fus3p.EpisodeCount
	if total <= 0 {
		return nil
	}
	pct3p := fus3p.EpisodeCount / total
	if pct3p <= 0.30 {
		return nil
	}
	return []flags.Flag{{
		Severity: flags.Yellow, Category: flags.CategoryMSK,
		Metric:      "fusion_complexity_distribution",
		Observed:    fmt.Sprintf("%.0f%% are 3+ level fusions", pct3p*100),
		Expected:    "<30% of fusions should be 3+ levels",
		EpisodeType: "Spinal Fusion", ContractID: contract.ID,
		Description: fmt.Sprintf("Spinal fusion 3+ level cases are %.0f%% of total fusions — potential case complexity concern",
			pct3p*100),
		Detail: fmt.Sprintf("%.0f of %.0f fusion cases (%.0f%%) are 3+ levels. If >30%%, this warrants risk "+
			"adjustment review to ensure benchmarks adequately account for case complexity.",
			fus3p.EpisodeCount, total, pct3p*100),
		Evidence: map[string]any{
			"fusion_1_2_count": fus12.EpisodeCount, "fusion_3_plus_count": fus3p.EpisodeCount,
			"pct_3_plus": pct3p,
		},
	}}
}
