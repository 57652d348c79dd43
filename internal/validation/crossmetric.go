package validation

import (
	"fmt"
	"math"
	"sort"
	"strings"

	"vbcaudit/domain/flags"
	"vbcaudit/domain/perf"
	"vbcaudit/domain/refdata"
)

// eolMeasures is the fixed set of end-of-life measures the clustering rule
// counts. Direction tells which side of target is a failure.
var eolMeasures = []struct {
	ID        string
	Name      string
	HighIsBad bool
}{
	{"ONC-Q-002", "Chemo Within 14 Days of Death", true},
	{"ONC-Q-003", "Hospice Enrollment", false},
	{"ONC-Q-004", "Hospice >7 Days Before Death", false},
	{"ONC-Q-005", "ICU Within 30 Days of Death", true},
	{"ONC-Q-006", "ER Within 30 Days of Death", true},
}

const acpMeasureID = "ONC-Q-009"

// RiskNote records a within-tolerance risk score comparison. Specialty
// packs attach these as evidence on cost flags: a calibrated risk score
// means a cost overrun is not explained by patient acuity.
type RiskNote struct {
	Actual    float64
	Expected  float64
	Deviation float64
}

// CrossResult carries cross-metric findings plus side channels consumed at
// later stages: risk calibration notes for the specialty packs, and the
// drug names covered by the compounding rule so their single-concern flags
// can be marked subordinate at finalization.
type CrossResult struct {
	Flags         []flags.Flag
	RiskNotes     map[string]RiskNote
	CompoundDrugs map[string]bool
	Gaps          []string
}

// CheckCrossMetrics evaluates relationships across two or more metrics,
// including current vs prior-year values. Each rule fires at most once per
// applicable row or contract.
func CheckCrossMetrics(episodes []perf.EpisodeRow, quality []perf.QualityRow, drugs []perf.DrugRow,
	unusableRates map[string]bool, ranges refdata.RangeSet, contract refdata.Contract) CrossResult {

	res := CrossResult{
		RiskNotes:     make(map[string]RiskNote),
		CompoundDrugs: make(map[string]bool),
	}

	if contract.Specialty == refdata.SpecialtyMSK {
		res.Flags = append(res.Flags, dischargeShiftERRule(episodes, contract)...)
		res.Flags = append(res.Flags, surgicalPipelineRule(episodes, contract)...)
	}
	res.Flags = append(res.Flags, riskCalibrationRule(episodes, contract, res.RiskNotes)...)
	res.Flags = append(res.Flags, volumeVsPopulationRule(episodes, ranges, contract, &res.Gaps)...)

	if contract.Specialty == refdata.SpecialtyOncology {
		res.Flags = append(res.Flags, pathwayCostCorrelationRule(episodes, ranges, contract)...)
		res.Flags = append(res.Flags, eolClusteringRule(quality, unusableRates, contract)...)
		res.Flags = append(res.Flags, biosimilarSiteCompoundingRule(drugs, contract, res.CompoundDrugs)...)
	}
	res.Flags = append(res.Flags, qualityGateProximityRule(episodes, quality, unusableRates, contract)...)

	res.Gaps = dedupe(res.Gaps)
	return res
}

// Rule 1: home-discharge share rising >10 points year-over-year while the
// 90-day ER visit rate rises >50% relative suggests patients discharged
// home without adequate support. Both thresholds exceeded twice over
// escalates to RED.
func dischargeShiftERRule(episodes []perf.EpisodeRow, contract refdata.Contract) []flags.Flag {
	var out []flags.Flag
	for _, row := range episodes {
		if row.Conservative() {
			continue
		}
		if !perf.Has(row.DischargeHomePct) || !perf.Has(row.ERVisitRate90d) ||
			!perf.Has(row.PriorYearDischargeHomePct) || !perf.Has(row.PriorYearERVisitRate) ||
			row.PriorYearERVisitRate <= 0 {
			continue
		}
		homeIncrease := row.DischargeHomePct - row.PriorYearDischargeHomePct
		erIncrease := (row.ERVisitRate90d - row.PriorYearERVisitRate) / row.PriorYearERVisitRate
		if homeIncrease <= 0.10 || erIncrease <= 0.50 {
			continue
		}
		sev := flags.Yellow
		if homeIncrease >= 0.20 && erIncrease >= 1.0 {
			sev = flags.Red
		}
		out = append(out, flags.Flag{
			Severity: sev, Category: flags.CategoryCross,
			Metric:      "discharge_shift_er_correlation",
			Observed:    fmt.Sprintf("home +%.0f points, ER +%.0f%%", homeIncrease*100, erIncrease*100),
			Expected:    "ER rate should not increase >50% when home discharge increases >10 points",
			EpisodeType: row.EpisodeType, ContractID: contract.ID,
			Description: fmt.Sprintf("%s: Discharge-to-home increased %.0f points (%.0f%%→%.0f%%) while ER visits increased %.0f%% (%.0f%%→%.0f%%)",
				row.EpisodeType, homeIncrease*100,
				row.PriorYearDischargeHomePct*100, row.DischargeHomePct*100,
				erIncrease*100, row.PriorYearERVisitRate*100, row.ERVisitRate90d*100),
			Detail: "Patients are being sent home earlier (reducing SNF utilization), but the increase in ER visits " +
				"suggests some patients who previously would have gone to SNF may lack adequate home health support. " +
				"The ER visits are not yet converting to readmissions, but this is an early warning sign.",
			Evidence: map[string]any{
				"discharge_home_pct":   row.DischargeHomePct,
				"prior_year_home_pct":  row.PriorYearDischargeHomePct,
				"er_visit_rate_90d":    row.ERVisitRate90d,
				"prior_year_er_rate":   row.PriorYearERVisitRate,
				"readmission_rate":     row.ReadmissionRate,
				"home_increase_points": homeIncrease,
				"er_increase_relative": erIncrease,
			},
		})
	}
	return out
}

// Rule 2: actual vs expected risk score divergence beyond 10% means
// case-mix normalization may be unreliable. Scores within 10% are recorded
// as notes instead: a cost overrun on that row is not explained by acuity.
func riskCalibrationRule(episodes []perf.EpisodeRow, contract refdata.Contract, notes map[string]RiskNote) []flags.Flag {
	var out []flags.Flag
	for _, row := range episodes {
		if !perf.Has(row.RiskScoreActual) || !perf.Has(row.RiskScoreExpected) || row.RiskScoreExpected <= 0 {
			continue
		}
		label := row.Label()
		dev := math.Abs(row.RiskScoreActual-row.RiskScoreExpected) / row.RiskScoreExpected
		if dev <= 0.10 {
			notes[label] = RiskNote{Actual: row.RiskScoreActual, Expected: row.RiskScoreExpected, Deviation: dev}
			continue
		}
		out = append(out, flags.Flag{
			Severity: flags.Yellow, Category: flags.CategoryCross,
			Metric:      "risk_score_calibration",
			Observed:    fmt.Sprintf("actual=%.3f, expected=%.3f", row.RiskScoreActual, row.RiskScoreExpected),
			Expected:    "within 10% of each other",
			EpisodeType: label, ContractID: contract.ID,
			Description: fmt.Sprintf("Risk score calibration concern for %s: actual %.3f vs expected %.3f (%.1f%% difference)",
				label, row.RiskScoreActual, row.RiskScoreExpected, dev*100),
			Detail: "A significant divergence between actual and expected risk scores may indicate benchmark " +
				"miscalibration or case-mix shift.",
			Evidence: map[string]any{
				"risk_score_actual": row.RiskScoreActual, "risk_score_expected": row.RiskScoreExpected,
			},
		})
	}
	return out
}

// Rule 5: episode volume per 1,000 attributed members against the
// specialty's incidence reference ranges, with the same three-tier
// severity scheme the range checker uses.
func volumeVsPopulationRule(episodes []perf.EpisodeRow, ranges refdata.RangeSet, contract refdata.Contract, gaps *[]string) []flags.Flag {
	if contract.AttributedMembers <= 0 || len(ranges.Incidence) == 0 {
		return nil
	}
	var out []flags.Flag
	for _, row := range episodes {
		if !perf.Has(row.EpisodeCount) || row.EpisodeCount == 0 {
			continue
		}
		var refKey string
		if contract.Specialty == refdata.SpecialtyMSK {
			refKey = mskEpisodeTypeKeys[row.EpisodeType]
		} else {
			refKey = oncCohortKeys[oncCohort{row.CancerType, row.StageGroup, row.LineOfTherapy}]
		}
		if refKey == "" {
			continue
		}
		rng, ok := ranges.Incidence[refKey]
		if !ok {
			continue
		}
		ratePer1000 := row.EpisodeCount / (contract.AttributedMembers / 1000)
		f := classifyRange(ratePer1000, rng, "volume_per_1000", row.Label(), contract.ID)
		if f == nil {
			continue
		}
		f.Category = flags.CategoryCross
		f.Observed = fmt.Sprintf("%.1f per 1,000", ratePer1000)
		f.Detail = fmt.Sprintf("%.0f episodes for %.0f attributed members = %.1f per 1,000. %s",
			row.EpisodeCount, contract.AttributedMembers, ratePer1000, f.Detail)
		f.Evidence = map[string]any{
			"episode_count": row.EpisodeCount, "attributed_members": contract.AttributedMembers,
			"rate_per_1000": math.Round(ratePer1000*10) / 10,
		}
		out = append(out, *f)
	}
	return out
}

// Rule 6: conservative volume falling while a linked surgical category's
// volume rises disproportionately suggests patients are being fast-tracked
// to surgery.
func surgicalPipelineRule(episodes []perf.EpisodeRow, contract refdata.Contract) []flags.Flag {
	byType := make(map[string]perf.EpisodeRow, len(episodes))
	for _, row := range episodes {
		byType[row.EpisodeType] = row
	}
	cons, okCons := byType["Conservative LBP"]
	fus, okFus := byType["Spinal Fusion 1-2"]
	if !okCons || !okFus {
		return nil
	}
	if !perf.Has(cons.PriorYearEpisodeCount) || !perf.Has(fus.PriorYearEpisodeCount) ||
		cons.PriorYearEpisodeCount <= 0 || fus.PriorYearEpisodeCount <= 0 ||
		!perf.Has(cons.EpisodeCount) || !perf.Has(fus.EpisodeCount) {
		return nil
	}

	consChange := (cons.EpisodeCount - cons.PriorYearEpisodeCount) / cons.PriorYearEpisodeCount
	fusChange := (fus.EpisodeCount - fus.PriorYearEpisodeCount) / fus.PriorYearEpisodeCount

	multiple := contract.SurgicalShiftMultiple
	if multiple <= 0 {
		multiple = 1.0
	}
	if consChange >= 0 || fusChange <= 0 || fusChange <= multiple*math.Abs(consChange) {
		return nil
	}

	impliedConversions := cons.PriorYearEpisodeCount - cons.EpisodeCount
	return []flags.Flag{{
		Severity: flags.Yellow, Category: flags.CategoryCross,
		Metric: "surgical_pipeline_acceleration",
		Observed: fmt.Sprintf("Conservative LBP %+.1f%%, Spinal Fusion 1-2 %+.1f%%",
			consChange*100, fusChange*100),
		Expected:    "volumes should not shift disproportionately toward surgery",
		EpisodeType: "Conservative LBP → Spinal Fusion", ContractID: contract.ID,
		Description: fmt.Sprintf("Potential surgical pipeline acceleration: Conservative LBP decreased %.1f%% (%.0f→%.0f) while Spinal Fusion 1-2 increased %.1f%% (%.0f→%.0f)",
			math.Abs(consChange)*100, cons.PriorYearEpisodeCount, cons.EpisodeCount,
			fusChange*100, fus.PriorYearEpisodeCount, fus.EpisodeCount),
		Detail: fmt.Sprintf("~%.0f fewer conservative LBP episodes coincide with %.0f additional spinal fusion cases. "+
			"This suggests an increasing conversion rate from conservative to surgical management, which may "+
			"indicate the provider is fast-tracking patients to surgery.",
			impliedConversions, fus.EpisodeCount-fus.PriorYearEpisodeCount),
		Evidence: map[string]any{
			"cons_lbp_current": cons.EpisodeCount, "cons_lbp_prior": cons.PriorYearEpisodeCount,
			"fusion_current": fus.EpisodeCount, "fusion_prior": fus.PriorYearEpisodeCount,
			"implied_conversions": impliedConversions, "shift_multiple": multiple,
		},
	}}
}

// Rule 3: low pathway adherence coinciding with a cost overrun. Solving
// adherence x pathway_cost + (1 - adherence) x non_pathway_cost = avg_cost
// for non_pathway_cost shows how much more the off-pathway regimens cost.
// The pathway cost comes from the reference benchmark when present, else
// the target price.
func pathwayCostCorrelationRule(episodes []perf.EpisodeRow, ranges refdata.RangeSet, contract refdata.Contract) []flags.Flag {
	var out []flags.Flag
	for _, row := range episodes {
		adherence := row.PathwayAdherenceRate
		avgCost := row.AvgEpisodeCost
		target := row.TargetPrice
		if !perf.Has(adherence) || !perf.Has(avgCost) || !perf.Has(target) {
			continue
		}
		if adherence >= 0.75 || avgCost <= target || adherence >= 1.0 {
			continue
		}
		overrun := (avgCost - target) / target
		if overrun <= 0.10 {
			continue
		}

		label := row.Label()
		pathwayCost := target
		if refKey := oncCohortKeys[oncCohort{row.CancerType, row.StageGroup, row.LineOfTherapy}]; refKey != "" {
			if bench, ok := ranges.PathwayCost[refKey]; ok && bench > 0 {
				pathwayCost = bench
			}
		}

		nonPathwayCost := (avgCost - adherence*pathwayCost) / (1 - adherence)
		if pathwayCost <= 0 {
			continue
		}
		diffPct := (nonPathwayCost - pathwayCost) / pathwayCost
		if diffPct <= 0.25 {
			continue
		}

		verification := adherence*pathwayCost + (1-adherence)*nonPathwayCost
		out = append(out, flags.Flag{
			Severity: flags.Red, Category: flags.CategoryCross,
			Metric:      "pathway_cost_correlation",
			Observed:    fmt.Sprintf("adherence=%.0f%%, cost overrun=%.1f%%", adherence*100, overrun*100),
			Expected:    "pathway adherence >75% when cost exceeds target by >10%",
			EpisodeType: label, ContractID: contract.ID,
			Description: fmt.Sprintf("%s: Cost overrun of %.1f%% correlated with pathway adherence of only %.0f%%",
				label, overrun*100, adherence*100),
			Detail: fmt.Sprintf("Back-calculation: pathway cases cost ~$%.0f, non-pathway cases cost ~$%.0f (+%.0f%%). "+
				"Verification: (%.0f%% x $%.0f) + (%.0f%% x $%.0f) = $%.0f ≈ $%.0f. "+
				"Non-pathway regimens are the primary cost driver.",
				pathwayCost, nonPathwayCost, diffPct*100,
				adherence*100, pathwayCost, (1-adherence)*100, nonPathwayCost, verification, avgCost),
			Evidence: map[string]any{
				"avg_episode_cost": avgCost, "target_price": target,
				"pathway_adherence": adherence, "est_pathway_cost": pathwayCost,
				"est_non_pathway_cost": math.Round(nonPathwayCost),
				"differential_pct":     diffPct,
			},
		})
	}
	return out
}

// Rule 4: three or more of the five end-of-life measures failing at once
// is a systemic palliative care integration failure, reported as one RED
// flag rather than five separate ones.
func eolClusteringRule(quality []perf.QualityRow, unusableRates map[string]bool, contract refdata.Contract) []flags.Flag {
	byID := make(map[string]perf.QualityRow, len(quality))
	for _, q := range quality {
		if !q.Composite() {
			byID[q.MeasureID] = q
		}
	}

	failures := 0
	var details []string
	var individual []flags.Flag
	for _, m := range eolMeasures {
		q, ok := byID[m.ID]
		if !ok || unusableRates[m.ID] || !perf.Has(q.Rate) || !perf.Has(q.Target) {
			continue
		}
		var expected string
		if m.HighIsBad && q.Rate > q.Target {
			expected = fmt.Sprintf("target <%.0f%%", q.Target*100)
		} else if !m.HighIsBad && q.Rate < q.Target {
			expected = fmt.Sprintf("target >%.0f%%", q.Target*100)
		} else {
			continue
		}
		failures++
		details = append(details, fmt.Sprintf("%s: %.1f%% (%s)", m.Name, q.Rate*100, expected))
		individual = append(individual, flags.Flag{
			Severity: flags.Yellow, Category: flags.CategoryCross,
			Metric:      "eol_measure_failure",
			Observed:    fmt.Sprintf("%.1f%%", q.Rate*100),
			Expected:    expected,
			EpisodeType: "End-of-Life Care", ContractID: contract.ID,
			Description: fmt.Sprintf("%s at %.1f%% misses its target", m.Name, q.Rate*100),
			Detail:      "Recorded for audit; the systemic end-of-life clustering flag is the primary finding.",
			Evidence:    map[string]any{"measure_id": m.ID, "rate": q.Rate, "target": q.Target},
			Subordinate: true,
		})
	}
	if failures < 3 {
		return nil
	}

	acpNote := ""
	evidence := map[string]any{"eol_failures": failures}
	if acp, ok := byID[acpMeasureID]; ok && !unusableRates[acpMeasureID] && perf.Has(acp.Rate) {
		evidence["acp_rate"] = acp.Rate
		if acp.Rate < 0.50 {
			acpNote = fmt.Sprintf(" Advance Care Planning documentation is only %.1f%% (target >65%%), "+
				"which is a root cause predictor for EOL metric failures.", acp.Rate*100)
		}
	}

	systemic := flags.Flag{
		Severity: flags.Red, Category: flags.CategoryCross,
		Metric:      "eol_systemic_failure",
		Observed:    fmt.Sprintf("%d/5 EOL metrics failing", failures),
		Expected:    "<3 EOL metric failures",
		EpisodeType: "End-of-Life Care", ContractID: contract.ID,
		Description: fmt.Sprintf("Systemic palliative care integration failure: %d of 5 EOL metrics are failing simultaneously", failures),
		Detail: fmt.Sprintf("Failing measures: %s.%s This pattern indicates a systemic failure to integrate "+
			"palliative care, not individual measure failures. Without goals-of-care conversations, patients "+
			"default to aggressive treatment at end of life.", strings.Join(details, "; "), acpNote),
		Evidence: evidence,
	}
	return append([]flags.Flag{systemic}, individual...)
}

// improvement is one candidate measure for closing a quality gate gap: how
// many additional numerator hits move it to its next point tier.
type improvement struct {
	Measure    string
	MeasureID  string
	Increments float64
}

// cheapestImprovements ranks non-composite measures below target by the
// numerator increments needed to earn one more point, cheapest first.
// Points scale linearly with rate up to target, so one point costs
// target/max_points in rate, or ceil of that times the denominator in
// numerator hits.
func cheapestImprovements(quality []perf.QualityRow, unusableRates map[string]bool) []improvement {
	var candidates []improvement
	for _, q := range quality {
		if q.Composite() || unusableRates[q.MeasureID] {
			continue
		}
		if !perf.Has(q.Rate) || !perf.Has(q.Target) || !perf.Has(q.Denominator) ||
			!perf.Has(q.MaxPoints) || q.Target <= 0 || q.Denominator <= 0 || q.MaxPoints <= 0 {
			continue
		}
		if q.Rate >= q.Target {
			continue
		}
		ratePerPoint := q.Target / q.MaxPoints
		increments := math.Ceil(ratePerPoint * q.Denominator)
		if increments <= 0 {
			continue
		}
		candidates = append(candidates, improvement{Measure: q.MeasureName, MeasureID: q.MeasureID, Increments: increments})
	}
	sort.SliceStable(candidates, func(i, j int) bool { return candidates[i].Increments < candidates[j].Increments })
	if len(candidates) > 2 {
		candidates = candidates[:2]
	}
	return candidates
}

// Rule 7: composite score within 5 points of the quality gate on either
// side. Failing-but-close is RED with the shared savings at stake and the
// cheapest path to passing; passing-but-close is YELLOW.
func qualityGateProximityRule(episodes []perf.EpisodeRow, quality []perf.QualityRow,
	unusableRates map[string]bool, contract refdata.Contract) []flags.Flag {

	if contract.QualityGateMinimum <= 0 {
		return nil
	}
	var composite *perf.QualityRow
	for i := range quality {
		if quality[i].Composite() {
			composite = &quality[i]
			break
		}
	}
	if composite == nil || !perf.Has(composite.PointsEarned) || !perf.Has(composite.MaxPoints) || composite.MaxPoints <= 0 {
		return nil
	}

	compositePct := composite.PointsEarned / composite.MaxPoints * 100
	gap := contract.QualityGateMinimum - compositePct
	if math.Abs(gap) > 5 {
		return nil
	}

	totalSavings := 0.0
	for _, row := range episodes {
		if perf.Has(row.TotalCost) && perf.Has(row.TotalTarget) {
			totalSavings += row.TotalTarget - row.TotalCost
		}
	}
	atRisk := math.Max(0, totalSavings) * contract.SharingRateSavings

	evidence := map[string]any{
		"composite_earned": composite.PointsEarned, "composite_max": composite.MaxPoints,
		"composite_pct": math.Round(compositePct*10) / 10,
		"gate_minimum":  contract.QualityGateMinimum,
		"estimated_savings_at_risk": math.Round(atRisk),
	}

	if gap > 0 {
		improvements := cheapestImprovements(quality, unusableRates)
		var paths []string
		for _, imp := range improvements {
			paths = append(paths, fmt.Sprintf("%s (+%.0f numerator hits for the next point)", imp.Measure, imp.Increments))
		}
		pathNote := ""
		if len(paths) > 0 {
			pathNote = " Lowest-effort measures to close the gap: " + strings.Join(paths, "; ") + "."
			evidence["improvement_candidates"] = improvements
		}
		return []flags.Flag{{
			Severity: flags.Red, Category: flags.CategoryCross,
			Metric:      "quality_gate_proximity",
			Observed:    fmt.Sprintf("composite %.1f%% (%.0f/%.0f)", compositePct, composite.PointsEarned, composite.MaxPoints),
			Expected:    fmt.Sprintf("gate minimum %.0f%%", contract.QualityGateMinimum),
			EpisodeType: "Quality Gate", ContractID: contract.ID,
			Description: fmt.Sprintf("Quality gate FAILURE: composite %.1f%% is %.1f points below the %.0f%% minimum — $%.0f in shared savings at risk",
				compositePct, gap, contract.QualityGateMinimum, atRisk),
			Detail: fmt.Sprintf("The quality composite score of %.0f/%.0f (%.1f%%) falls below the %.0f%% quality gate. "+
				"This means the provider's shared savings payout of ~$%.0f may be zeroed out. The gap is only "+
				"%.1f points.%s", composite.PointsEarned, composite.MaxPoints, compositePct,
				contract.QualityGateMinimum, atRisk, gap, pathNote),
			Evidence: evidence,
		}}
	}

	return []flags.Flag{{
		Severity: flags.Yellow, Category: flags.CategoryCross,
		Metric:      "quality_gate_proximity",
		Observed:    fmt.Sprintf("composite %.1f%% (%.0f/%.0f)", compositePct, composite.PointsEarned, composite.MaxPoints),
		Expected:    fmt.Sprintf("gate minimum %.0f%%", contract.QualityGateMinimum),
		EpisodeType: "Quality Gate", ContractID: contract.ID,
		Description: fmt.Sprintf("Quality gate passing with little margin: composite %.1f%% is only %.1f points above the %.0f%% minimum",
			compositePct, -gap, contract.QualityGateMinimum),
		Detail: fmt.Sprintf("A small decline in any measure could drop the composite below the gate and zero out "+
			"~$%.0f in shared savings.", atRisk),
		Evidence: evidence,
	}}
}

// Rule 8: a brand drug with low biosimilar uptake that is also infused
// mostly in hospital outpatient settings compounds two savings
// opportunities into one flag whose evidence sums both estimates.
func biosimilarSiteCompoundingRule(drugs []perf.DrugRow, contract refdata.Contract, compound map[string]bool) []flags.Flag {
	byName := make(map[string]perf.DrugRow, len(drugs))
	for _, d := range drugs {
		byName[d.DrugName] = d
	}

	var out []flags.Flag
	for _, pair := range biosimilarPairs {
		brand, okBrand := byName[pair.Brand]
		bio, okBio := byName[pair.Biosimilar]
		if !okBrand || !okBio {
			continue
		}
		totalClaims := brand.TotalClaims + bio.TotalClaims
		if !perf.Has(brand.TotalClaims) || !perf.Has(bio.TotalClaims) || totalClaims <= 0 {
			continue
		}
		brandShare := brand.TotalClaims / totalClaims
		if brandShare <= 0.50 {
			continue
		}
		if !perf.Has(brand.SiteHOPDPct) || brand.SiteHOPDPct <= 0.60 ||
			!perf.Has(brand.AvgCostPerClaim) || brand.AvgCostPerClaim <= 2000 {
			continue
		}

		bioSavings := biosimilarSavings(brand, bio)
		siteSavings := siteOfServiceSavings(brand)
		combined := bioSavings + siteSavings

		compound[brand.DrugName] = true
		out = append(out, flags.Flag{
			Severity: flags.Yellow, Category: flags.CategoryCross,
			Metric: "biosimilar_site_compounding",
			Observed: fmt.Sprintf("%s: %.0f%% brand share, %.0f%% HOPD, $%.0f/claim",
				brand.DrugName, brandShare*100, brand.SiteHOPDPct*100, brand.AvgCostPerClaim),
			Expected:    "biosimilar share >50% and HOPD administration <60%",
			EpisodeType: "Drug Detail", ContractID: contract.ID,
			Description: fmt.Sprintf("%s: low biosimilar uptake (%.0f%% brand) compounds with %.0f%% HOPD administration — combined savings opportunity ~$%.0f",
				brand.DrugName, brandShare*100, brand.SiteHOPDPct*100, combined),
			Detail: fmt.Sprintf("Switching brand claims to %s would save ~$%.0f; shifting excess HOPD infusions "+
				"to office administration would save ~$%.0f more. The two levers apply to the same claims, so "+
				"addressing both together is the efficient intervention.",
				pair.Biosimilar, bioSavings, siteSavings),
			Evidence: map[string]any{
				"drug_name": brand.DrugName, "biosimilar_name": pair.Biosimilar,
				"brand_share": brandShare, "hopd_pct": brand.SiteHOPDPct,
				"avg_cost_per_claim":     brand.AvgCostPerClaim,
				"biosimilar_savings_est": math.Round(bioSavings),
				"site_savings_est":       math.Round(siteSavings),
				"combined_savings_est":   math.Round(combined),
			},
		})
	}
	return out
}
