package validation

import (
	"fmt"
	"math"

	"vbcaudit/domain/flags"
	"vbcaudit/domain/perf"
	"vbcaudit/domain/refdata"
)

// tolerance is a two-band reconciliation tolerance. Deviations at or below
// Warn pass (inclusive bound), deviations above Warn and at or below Fail
// are YELLOW, deviations above Fail are RED.
type tolerance struct {
	Warn float64
	Fail float64
}

// The Fail bound is five times the documented tolerance for every
// identity; see DESIGN.md for the decision record.
func tol(warn float64) tolerance { return tolerance{Warn: warn, Fail: warn * 5} }

func (t tolerance) classify(dev float64) (flags.Severity, bool) {
	switch {
	case dev <= t.Warn:
		return flags.Green, false
	case dev <= t.Fail:
		return flags.Yellow, true
	default:
		return flags.Red, true
	}
}

var (
	tolCostReconciliation = tol(0.01)  // count x avg vs total, relative
	tolVariancePct        = tol(0.01)  // reported vs derived variance, absolute points
	tolComponentSum       = tol(0.05)  // uncategorized cost allowance, relative
	tolDispositionSum     = tol(0.02)  // discharge percentages vs 1.0, absolute points
	tolCompositePoints    = tol(1.0)   // composite score vs points ratio, absolute points
	tolMeasureRate        = tol(0.005) // numerator/denominator vs rate, absolute
	tolMemberMonths       = tol(0.05)  // enrollment drift allowance, relative
)

// mskCostComponents and oncCostComponents name the per-episode cost
// breakdown fields whose sum should reconcile to the average episode cost.
var mskCostComponents = []string{
	"implant_cost_avg", "facility_cost_avg", "professional_cost_avg",
	"post_acute_cost_avg", "readmission_cost_avg",
}

var oncCostComponents = []string{
	"drug_cost_avg", "administration_cost_avg", "inpatient_cost_avg",
	"er_cost_avg", "imaging_cost_avg", "lab_cost_avg",
	"supportive_care_cost_avg", "other_cost_avg",
}

// ArithmeticResult carries the reconciliation findings plus the set of
// quality measures whose reported rate is unusable downstream (zero or
// missing denominator): later checkers treat those rates as missing, not
// zero.
type ArithmeticResult struct {
	Flags         []flags.Flag
	UnusableRates map[string]bool
}

// CheckArithmetic verifies the fixed set of algebraic identities on episode
// and quality rows.
func CheckArithmetic(episodes []perf.EpisodeRow, quality []perf.QualityRow, contract refdata.Contract) ArithmeticResult {
	res := ArithmeticResult{UnusableRates: make(map[string]bool)}

	for _, row := range episodes {
		res.Flags = append(res.Flags, reconcileEpisode(row, contract)...)
	}
	res.Flags = append(res.Flags, reconcileQuality(quality, contract, res.UnusableRates)...)
	res.Flags = append(res.Flags, reconcileMemberMonths(contract)...)

	return res
}

func reconcileEpisode(row perf.EpisodeRow, contract refdata.Contract) []flags.Flag {
	var out []flags.Flag
	label := row.Label()

	if !perf.Has(row.EpisodeCount) || row.EpisodeCount == 0 {
		return nil
	}
	count := row.EpisodeCount

	// count x avg_cost vs total_cost.
	if perf.Has(row.AvgEpisodeCost) && perf.Has(row.TotalCost) && row.TotalCost != 0 {
		derived := count * row.AvgEpisodeCost
		dev := math.Abs(derived-row.TotalCost) / math.Abs(row.TotalCost)
		if sev, flagged := tolCostReconciliation.classify(dev); flagged {
			out = append(out, flags.Flag{
				Severity: sev, Category: flags.CategoryArith,
				Metric:      "episode_cost_reconciliation",
				Observed:    fmt.Sprintf("count(%.0f) x avg($%.0f) = $%.0f", count, row.AvgEpisodeCost, derived),
				Expected:    fmt.Sprintf("total_cost = $%.0f (within 1%%)", row.TotalCost),
				EpisodeType: label, ContractID: contract.ID,
				Description: fmt.Sprintf("Episode cost does not reconcile for %s: $%.0f vs $%.0f (%.1f%% difference)",
					label, derived, row.TotalCost, dev*100),
				Detail: fmt.Sprintf("episode_count (%.0f) x avg_episode_cost ($%.0f) = $%.0f, but total_cost = $%.0f. "+
					"Difference of %.1f%% exceeds the 1%% tolerance.", count, row.AvgEpisodeCost, derived, row.TotalCost, dev*100),
				Evidence: map[string]any{
					"episode_count": count, "avg_episode_cost": row.AvgEpisodeCost, "total_cost": row.TotalCost,
				},
			})
		}
	}

	// count x target_price vs total_target.
	if perf.Has(row.TargetPrice) && perf.Has(row.TotalTarget) && row.TotalTarget != 0 {
		derived := count * row.TargetPrice
		dev := math.Abs(derived-row.TotalTarget) / math.Abs(row.TotalTarget)
		if sev, flagged := tolCostReconciliation.classify(dev); flagged {
			out = append(out, flags.Flag{
				Severity: sev, Category: flags.CategoryArith,
				Metric:      "target_reconciliation",
				Observed:    fmt.Sprintf("count(%.0f) x target($%.0f) = $%.0f", count, row.TargetPrice, derived),
				Expected:    fmt.Sprintf("total_target = $%.0f (within 1%%)", row.TotalTarget),
				EpisodeType: label, ContractID: contract.ID,
				Description: fmt.Sprintf("Target does not reconcile for %s", label),
				Detail: fmt.Sprintf("episode_count (%.0f) x target_price ($%.0f) = $%.0f, but total_target = $%.0f.",
					count, row.TargetPrice, derived, row.TotalTarget),
				Evidence: map[string]any{
					"episode_count": count, "target_price": row.TargetPrice, "total_target": row.TotalTarget,
				},
			})
		}
	}

	// (avg_cost - target) / target vs variance_pct.
	if perf.Has(row.TargetPrice) && perf.Has(row.AvgEpisodeCost) && perf.Has(row.VariancePct) {
		if row.TargetPrice == 0 {
			out = append(out, zeroDenominatorFlag("variance_calculation", "target_price", label, contract.ID))
		} else {
			derived := (row.AvgEpisodeCost - row.TargetPrice) / row.TargetPrice
			dev := math.Abs(derived - row.VariancePct)
			if sev, flagged := tolVariancePct.classify(dev); flagged {
				out = append(out, flags.Flag{
					Severity: sev, Category: flags.CategoryArith,
					Metric:      "variance_calculation",
					Observed:    fmt.Sprintf("reported variance = %.4f", row.VariancePct),
					Expected:    fmt.Sprintf("calculated variance = %.4f (within 1 point)", derived),
					EpisodeType: label, ContractID: contract.ID,
					Description: fmt.Sprintf("Variance percentage does not match calculation for %s", label),
					Detail: fmt.Sprintf("(avg_cost - target) / target = (%.0f - %.0f) / %.0f = %.4f, but variance_pct = %.4f.",
						row.AvgEpisodeCost, row.TargetPrice, row.TargetPrice, derived, row.VariancePct),
					Evidence: map[string]any{
						"avg_episode_cost": row.AvgEpisodeCost, "target_price": row.TargetPrice, "variance_pct": row.VariancePct,
					},
				})
			}
		}
	}

	// Sum of declared cost components vs avg total cost.
	components := mskCostComponents
	values := []float64{row.ImplantCostAvg, row.FacilityCostAvg, row.ProfessionalCostAvg, row.PostAcuteCostAvg, row.ReadmissionCostAvg}
	if contract.Specialty == refdata.SpecialtyOncology {
		components = oncCostComponents
		values = []float64{row.DrugCostAvg, row.AdministrationCostAvg, row.InpatientCostAvg, row.ERCostAvg,
			row.ImagingCostAvg, row.LabCostAvg, row.SupportiveCareCostAvg, row.OtherCostAvg}
	}
	present := map[string]any{}
	sum := 0.0
	for i, name := range components {
		if perf.Has(values[i]) {
			present[name] = values[i]
			sum += values[i]
		}
	}
	if len(present) > 0 && perf.Has(row.AvgEpisodeCost) && row.AvgEpisodeCost > 0 {
		dev := math.Abs(sum-row.AvgEpisodeCost) / row.AvgEpisodeCost
		if sev, flagged := tolComponentSum.classify(dev); flagged {
			out = append(out, flags.Flag{
				Severity: sev, Category: flags.CategoryArith,
				Metric:      "cost_component_sum",
				Observed:    fmt.Sprintf("component sum = $%.0f", sum),
				Expected:    fmt.Sprintf("avg_episode_cost = $%.0f (within 5%%)", row.AvgEpisodeCost),
				EpisodeType: label, ContractID: contract.ID,
				Description: fmt.Sprintf("Cost components sum to $%.0f vs avg cost $%.0f for %s (%.1f%% difference)",
					sum, row.AvgEpisodeCost, label, dev*100),
				Detail: fmt.Sprintf("Sum of %d cost components = $%.0f. Difference of %.1f%% exceeds the 5%% tolerance "+
					"(may indicate uncategorized costs).", len(present), sum, dev*100),
				Evidence: present,
			})
		}
	}

	// Discharge disposition percentages sum to ~100% for surgical episodes.
	if !row.Conservative() {
		disp := []float64{row.DischargeHomePct, row.DischargeSNFPct, row.DischargeIRFPct, row.DischargeOtherPct}
		dispSum, n := 0.0, 0
		for _, v := range disp {
			if perf.Has(v) {
				dispSum += v
				n++
			}
		}
		if n > 0 {
			dev := math.Abs(dispSum - 1.0)
			if sev, flagged := tolDispositionSum.classify(dev); flagged {
				out = append(out, flags.Flag{
					Severity: sev, Category: flags.CategoryArith,
					Metric:      "discharge_disposition_sum",
					Observed:    fmt.Sprintf("%.4f", dispSum),
					Expected:    "~1.0 (within 2 points)",
					EpisodeType: label, ContractID: contract.ID,
					Description: fmt.Sprintf("Discharge dispositions sum to %.1f%% for %s", dispSum*100, label),
					Detail: fmt.Sprintf("Expected discharge percentages to sum to ~100%%; %d disposition value(s) sum to %.1f%%.",
						n, dispSum*100),
					Evidence: map[string]any{
						"discharge_home_pct": row.DischargeHomePct, "discharge_snf_pct": row.DischargeSNFPct,
						"discharge_irf_pct": row.DischargeIRFPct, "discharge_other_pct": row.DischargeOtherPct,
					},
				})
			}
		}
	}

	return out
}

func reconcileQuality(quality []perf.QualityRow, contract refdata.Contract, unusable map[string]bool) []flags.Flag {
	var out []flags.Flag

	var composite *perf.QualityRow
	var earnedSum, maxSum float64
	for i := range quality {
		if quality[i].Composite() {
			composite = &quality[i]
			continue
		}
		if perf.Has(quality[i].PointsEarned) {
			earnedSum += quality[i].PointsEarned
		}
		if perf.Has(quality[i].MaxPoints) {
			maxSum += quality[i].MaxPoints
		}
	}

	// points_earned/max_points x 100 vs composite at the aggregate level.
	if composite != nil && perf.Has(composite.PointsEarned) && perf.Has(composite.MaxPoints) {
		if composite.MaxPoints == 0 {
			out = append(out, zeroDenominatorFlag("quality_points_sum", "max_points", "Quality", contract.ID))
			unusable[composite.MeasureID] = true
		} else if maxSum > 0 {
			reported := composite.PointsEarned / composite.MaxPoints * 100
			derived := earnedSum / maxSum * 100
			dev := math.Abs(derived - reported)
			if sev, flagged := tolCompositePoints.classify(dev); flagged {
				out = append(out, flags.Flag{
					Severity: sev, Category: flags.CategoryArith,
					Metric:      "quality_points_sum",
					Observed:    fmt.Sprintf("composite reports %.0f/%.0f = %.1f", composite.PointsEarned, composite.MaxPoints, reported),
					Expected:    fmt.Sprintf("sum of components %.0f/%.0f = %.1f (within 1 point)", earnedSum, maxSum, derived),
					EpisodeType: "Quality", ContractID: contract.ID,
					Description: fmt.Sprintf("Composite quality score (%.1f) does not match the component point ratio (%.1f)",
						reported, derived),
					Detail: fmt.Sprintf("Individual measures sum to %.0f/%.0f points, but the composite row reports %.0f/%.0f.",
						earnedSum, maxSum, composite.PointsEarned, composite.MaxPoints),
					Evidence: map[string]any{
						"composite_earned": composite.PointsEarned, "composite_max": composite.MaxPoints,
						"component_earned_sum": earnedSum, "component_max_sum": maxSum,
					},
				})
			}
		}
	}

	// numerator / denominator vs rate for each individual measure.
	for _, q := range quality {
		if q.Composite() {
			continue
		}
		if !perf.Has(q.Numerator) || !perf.Has(q.Rate) {
			continue
		}
		if !perf.Has(q.Denominator) || q.Denominator == 0 {
			unusable[q.MeasureID] = true
			f := zeroDenominatorFlag("quality_rate_calculation", "denominator", "Quality", contract.ID)
			f.Description = fmt.Sprintf("Rate for '%s' is undefined — zero denominator", q.MeasureName)
			f.Detail = fmt.Sprintf("Measure '%s' (%s) reports a rate of %.4f but its denominator is zero or missing. "+
				"The reported rate is unusable and is treated as missing by downstream checks.", q.MeasureName, q.MeasureID, q.Rate)
			f.Evidence = map[string]any{"measure_id": q.MeasureID, "numerator": q.Numerator, "rate": q.Rate}
			out = append(out, f)
			continue
		}
		derived := q.Numerator / q.Denominator
		dev := math.Abs(derived - q.Rate)
		if sev, flagged := tolMeasureRate.classify(dev); flagged {
			out = append(out, flags.Flag{
				Severity: sev, Category: flags.CategoryArith,
				Metric:      "quality_rate_calculation",
				Observed:    fmt.Sprintf("reported rate = %.4f", q.Rate),
				Expected:    fmt.Sprintf("num/denom = %.0f/%.0f = %.4f (within 0.5 point)", q.Numerator, q.Denominator, derived),
				EpisodeType: "Quality", ContractID: contract.ID,
				Description: fmt.Sprintf("Rate calculation mismatch for '%s': reported %.3f vs calculated %.3f",
					q.MeasureName, q.Rate, derived),
				Detail: fmt.Sprintf("numerator (%.0f) / denominator (%.0f) = %.4f, but reported rate = %.4f.",
					q.Numerator, q.Denominator, derived, q.Rate),
				Evidence: map[string]any{
					"measure": q.MeasureName, "numerator": q.Numerator, "denominator": q.Denominator, "rate": q.Rate,
				},
			})
		}
	}

	return out
}

func reconcileMemberMonths(contract refdata.Contract) []flags.Flag {
	if contract.AttributedMembers <= 0 || contract.MemberMonths <= 0 {
		return nil
	}
	derived := contract.AttributedMembers * 12
	dev := math.Abs(derived-contract.MemberMonths) / contract.MemberMonths
	sev, flagged := tolMemberMonths.classify(dev)
	if !flagged {
		return nil
	}
	return []flags.Flag{{
		Severity: sev, Category: flags.CategoryArith,
		Metric:      "member_months_check",
		Observed:    fmt.Sprintf("member_months = %.0f", contract.MemberMonths),
		Expected:    fmt.Sprintf("members x 12 = %.0f (within 5%%)", derived),
		EpisodeType: "ALL", ContractID: contract.ID,
		Description: fmt.Sprintf("Member months (%.0f) don't align with attributed members (%.0f x 12 = %.0f)",
			contract.MemberMonths, contract.AttributedMembers, derived),
		Detail: fmt.Sprintf("Difference of %.1f%% may indicate mid-year enrollment changes.", dev*100),
		Evidence: map[string]any{
			"attributed_members": contract.AttributedMembers, "member_months": contract.MemberMonths,
		},
	}}
}

// zeroDenominatorFlag builds the RED arithmetic flag emitted when an
// identity cannot be evaluated because its denominator is zero or missing.
func zeroDenominatorFlag(metric, denominator, episodeType, contractID string) flags.Flag {
	return flags.Flag{
		Severity: flags.Red, Category: flags.CategoryArith,
		Metric:      metric,
		Observed:    "undefined — zero denominator",
		Expected:    fmt.Sprintf("non-zero %s", denominator),
		EpisodeType: episodeType, ContractID: contractID,
		Description: fmt.Sprintf("%s is undefined — zero denominator (%s)", metric, denominator),
		Detail: fmt.Sprintf("The %s identity divides by %s, which is zero or missing. "+
			"The derived value is treated as missing, not zero, by downstream checks.", metric, denominator),
	}
}
