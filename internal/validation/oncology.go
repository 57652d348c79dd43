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

// biosimilarPairs maps each brand biologic to its biosimilar alternative.
var biosimilarPairs = []struct {
	Brand, Biosimilar string
}{
	{"Trastuzumab (Herceptin)", "Trastuzumab-dkst"},
	{"Bevacizumab (Avastin)", "Bevacizumab-awwb"},
	{"Pegfilgrastim (Neulasta)", "Pegfilgrastim-jmdb"},
}

var cancerTypeKeys = map[string]string{
	"Breast":     "breast",
	"Lung":       "lung",
	"Colorectal": "colorectal",
	"Prostate":   "prostate",
}

// ACPRootCause is set when advance care planning documentation is below
// 50% while the end-of-life measures are failing systemically. The
// orchestrator uses it to rewrite the systemic flag to name ACP as root
// cause rather than symptom.
type ACPRootCause struct {
	ACPRate     float64
	EOLFailures int
}

// OncologyResult carries the pack's flags plus the ACP root-cause finding
// consumed at finalization.
type OncologyResult struct {
	Flags        []flags.Flag
	ACPRootCause *ACPRootCause
}

// CheckOncologyRules runs the oncology clinical and financial rules.
func CheckOncologyRules(episodes []perf.EpisodeRow, quality []perf.QualityRow, drugs []perf.DrugRow,
	unusableRates map[string]bool, ranges refdata.RangeSet, contract refdata.Contract) OncologyResult {

	var res OncologyResult
	res.Flags = append(res.Flags, pathwayAdherenceCostRule(episodes, ranges, contract)...)
	res.Flags = append(res.Flags, biosimilarSavingsRule(drugs, episodes, contract)...)
	res.Flags = append(res.Flags, siteOfServiceRule(drugs, contract)...)
	res.ACPRootCause = detectACPRootCause(quality, unusableRates)
	res.Flags = append(res.Flags, novelTherapyCarveoutRule(drugs, episodes, contract)...)
	res.Flags = append(res.Flags, incidenceRule(episodes, ranges, contract)...)
	res.Flags = append(res.Flags, qualityGateImpactRule(quality, episodes, unusableRates, contract)...)
	return res
}

// biosimilarSavings is the exact savings if every brand claim switched to
// the biosimilar: brand_claims x (brand_cost - biosimilar_cost).
func biosimilarSavings(brand, bio perf.DrugRow) float64 {
	return brand.TotalClaims * (brand.AvgCostPerClaim - bio.AvgCostPerClaim)
}

// siteOfServiceSavings estimates facility fees recoverable by shifting the
// claims above a 40% HOPD share to office administration. No direct office
// cost is observed per drug, so HOPD is assumed to cost twice the office
// rate, making the per-claim saving half the average claim cost.
func siteOfServiceSavings(drug perf.DrugRow) float64 {
	excessClaims := drug.TotalClaims * (drug.SiteHOPDPct - 0.40)
	officeCost := drug.AvgCostPerClaim / 2
	return excessClaims * (drug.AvgCostPerClaim - officeCost)
}

func pathwayAdherenceCostRule(episodes []perf.EpisodeRow, ranges refdata.RangeSet, contract refdata.Contract) []flags.Flag {
	var out []flags.Flag
	adherenceTarget := contract.PathwayAdherenceTarget
	if adherenceTarget <= 0 {
		adherenceTarget = 0.80
	}

	for _, row := range episodes {
		label := row.Label()
		adherence := row.PathwayAdherenceRate
		avgCost := row.AvgEpisodeCost
		target := row.TargetPrice
		if !perf.Has(adherence) || !perf.Has(avgCost) || !perf.Has(target) {
			continue
		}
		if adherence >= adherenceTarget || avgCost <= target || adherence >= 1.0 {
			continue
		}
		overrun := (avgCost - target) / target
		if overrun <= 0.05 {
			continue
		}

		pathwayCost := target
		if refKey := oncCohortKeys[oncCohort{row.CancerType, row.StageGroup, row.LineOfTherapy}]; refKey != "" {
			if bench, ok := ranges.PathwayCost[refKey]; ok && bench > 0 {
				pathwayCost = bench
			}
		}
		nonPathwayCost := (avgCost - adherence*pathwayCost) / (1 - adherence)
		diffPct := (nonPathwayCost - pathwayCost) / pathwayCost
		if diffPct <= 0.25 {
			continue
		}

		nonPathwayCount := math.Floor(row.EpisodeCount * (1 - adherence))
		potentialSavings := nonPathwayCount * (nonPathwayCost - pathwayCost)

		out = append(out, flags.Flag{
			Severity: flags.Red, Category: flags.CategoryONC,
			Metric:      "pathway_cost_correlation",
			Observed:    fmt.Sprintf("adherence=%.0f%%, overrun=%.1f%%", adherence*100, overrun*100),
			Expected:    fmt.Sprintf("pathway adherence >%.0f%%", adherenceTarget*100),
			EpisodeType: label, ContractID: contract.ID,
			Description: fmt.Sprintf("%s: Non-pathway regimens cost $%.0f/episode vs $%.0f pathway (+%.0f%%), driving $%.0f in excess cost",
				label, nonPathwayCost, pathwayCost, diffPct*100, potentialSavings),
			Detail: fmt.Sprintf("Back-calculation: (%.0f%% x $%.0f) + (%.0f%% x $%.0f) = $%.0f ≈ $%.0f. "+
				"The %.0f%% non-pathway cases (%.0f episodes) are the primary cost driver. Improving pathway "+
				"adherence to %.0f%% would save approximately $%.0f across this episode type.",
				adherence*100, pathwayCost, (1-adherence)*100, nonPathwayCost,
				adherence*pathwayCost+(1-adherence)*nonPathwayCost, avgCost,
				(1-adherence)*100, nonPathwayCount, adherenceTarget*100, potentialSavings),
			Evidence: map[string]any{
				"pathway_adherence": adherence, "avg_episode_cost": avgCost, "target_price": target,
				"est_pathway_cost": pathwayCost, "est_non_pathway_cost": math.Round(nonPathwayCost),
				"potential_savings": math.Round(potentialSavings),
			},
		})
	}
	return out
}

func biosimilarSavingsRule(drugs []perf.DrugRow, episodes []perf.EpisodeRow, contract refdata.Contract) []flags.Flag {
	byName := make(map[string]perf.DrugRow, len(drugs))
	for _, d := range drugs {
		byName[d.DrugName] = d
	}

	var out []flags.Flag
	for _, pair := range biosimilarPairs {
		brand, okBrand := byName[pair.Brand]
		bio, okBio := byName[pair.Biosimilar]
		if !okBrand || !okBio || brand.IsBiosimilar {
			continue
		}
		totalClaims := brand.TotalClaims + bio.TotalClaims
		if !perf.Has(brand.TotalClaims) || !perf.Has(bio.TotalClaims) || totalClaims <= 0 {
			continue
		}
		brandPct := brand.TotalClaims / totalClaims
		if brandPct <= 0.50 {
			continue
		}

		savings := biosimilarSavings(brand, bio)
		episodeBase := episodeCountForCancers(episodes, brand.CancerTypesUsed)
		perEpisode := 0.0
		if episodeBase > 0 {
			perEpisode = savings / episodeBase
		}

		sev := flags.Yellow
		if brandPct > 0.80 {
			sev = flags.Red
		}
		out = append(out, flags.Flag{
			Severity: sev, Category: flags.CategoryONC,
			Metric:      "biosimilar_savings_opportunity",
			Observed:    fmt.Sprintf("%s: %.0f%% brand utilization", brand.DrugName, brandPct*100),
			Expected:    "brand utilization <50%",
			EpisodeType: "Drug Detail", ContractID: contract.ID,
			Description: fmt.Sprintf("%s: %.0f brand claims at $%.0f/claim vs biosimilar at $%.0f/claim — $%.0f savings opportunity ($%.0f/episode)",
				brand.DrugName, brand.TotalClaims, brand.AvgCostPerClaim, bio.AvgCostPerClaim, savings, perEpisode),
			Detail: fmt.Sprintf("Brand %s has %.0f claims at $%.0f/claim. Biosimilar %s has %.0f claims at "+
				"$%.0f/claim. Brand utilization is %.0f%% (%.0f/%.0f). If all brand claims switched to "+
				"biosimilar, savings would be %.0f x ($%.0f - $%.0f) = $%.0f, or $%.0f per episode across "+
				"%.0f applicable episodes.",
				brand.DrugName, brand.TotalClaims, brand.AvgCostPerClaim,
				bio.DrugName, bio.TotalClaims, bio.AvgCostPerClaim,
				brandPct*100, brand.TotalClaims, totalClaims,
				brand.TotalClaims, brand.AvgCostPerClaim, bio.AvgCostPerClaim, savings, perEpisode, episodeBase),
			Evidence: map[string]any{
				"brand_drug": brand.DrugName, "biosimilar_drug": bio.DrugName,
				"brand_claims": brand.TotalClaims, "biosimilar_claims": bio.TotalClaims,
				"brand_cost_per_claim": brand.AvgCostPerClaim, "biosimilar_cost_per_claim": bio.AvgCostPerClaim,
				"potential_savings": math.Round(savings), "per_episode_impact": math.Round(perEpisode),
			},
		})
	}
	return out
}

// episodeCountForCancers sums episode counts for the cancer types a drug
// is used in ("Breast; Lung"), falling back to all episodes when the drug
// row does not name its cancer types.
func episodeCountForCancers(episodes []perf.EpisodeRow, cancerTypesUsed string) float64 {
	applicable := make(map[string]bool)
	for _, c := range strings.Split(cancerTypesUsed, ";") {
		if c = strings.TrimSpace(c); c != "" {
			applicable[c] = true
		}
	}
	total := 0.0
	for _, row := range episodes {
		if !perf.Has(row.EpisodeCount) {
			continue
		}
		if len(applicable) == 0 || applicable[row.CancerType] {
			total += row.EpisodeCount
		}
	}
	return total
}

func siteOfServiceRule(drugs []perf.DrugRow, contract refdata.Contract) []flags.Flag {
	var out []flags.Flag
	for _, drug := range drugs {
		if !perf.Has(drug.AvgCostPerClaim) || drug.AvgCostPerClaim <= 2000 {
			continue
		}
		if !perf.Has(drug.SiteHOPDPct) || drug.SiteHOPDPct <= 0.60 {
			continue
		}
		savings := siteOfServiceSavings(drug)
		if savings < 5000 {
			continue
		}
		excessPct := drug.SiteHOPDPct - 0.40
		excessClaims := drug.TotalClaims * excessPct

		out = append(out, flags.Flag{
			Severity: flags.Yellow, Category: flags.CategoryONC,
			Metric:      "site_of_service_opportunity",
			Observed:    fmt.Sprintf("%s: %.0f%% HOPD, $%.0f/claim", drug.DrugName, drug.SiteHOPDPct*100, drug.AvgCostPerClaim),
			Expected:    "HOPD <60% for office-administrable drugs",
			EpisodeType: "Drug Detail", ContractID: contract.ID,
			Description: fmt.Sprintf("%s: %.0f%% administered at HOPD vs 40%% target — estimated $%.0f in excess facility costs",
				drug.DrugName, drug.SiteHOPDPct*100, savings),
			Detail: fmt.Sprintf("%s has %.0f claims at $%.0f/claim with %.0f%% HOPD administration. Shifting the "+
				"excess %.0f%% (%.0f claims) from HOPD to physician office could save an estimated $%.0f in "+
				"facility fees. HOPD infusion typically costs 2-3x physician office administration.",
				drug.DrugName, drug.TotalClaims, drug.AvgCostPerClaim, drug.SiteHOPDPct*100,
				excessPct*100, excessClaims, savings),
			Evidence: map[string]any{
				"drug_name": drug.DrugName, "hopd_pct": drug.SiteHOPDPct,
				"avg_cost_per_claim": drug.AvgCostPerClaim, "total_claims": drug.TotalClaims,
				"excess_hopd_claims": math.Round(excessClaims), "estimated_savings": math.Round(savings),
			},
		})
	}
	return out
}

// detectACPRootCause reports when advance care planning documentation is
// below 50% and at least three end-of-life measures fail. The systemic
// clustering flag already exists; this finding elevates it rather than
// adding a second flag for the same root cause.
func detectACPRootCause(quality []perf.QualityRow, unusableRates map[string]bool) *ACPRootCause {
	byID := make(map[string]perf.QualityRow, len(quality))
	for _, q := range quality {
		if !q.Composite() {
			byID[q.MeasureID] = q
		}
	}
	acp, ok := byID[acpMeasureID]
	if !ok || unusableRates[acpMeasureID] || !perf.Has(acp.Rate) || acp.Rate >= 0.50 {
		return nil
	}

	failures := 0
	for _, m := range eolMeasures {
		q, ok := byID[m.ID]
		if !ok || unusableRates[m.ID] || !perf.Has(q.Rate) || !perf.Has(q.Target) {
			continue
		}
		if (m.HighIsBad && q.Rate > q.Target) || (!m.HighIsBad && q.Rate < q.Target) {
			failures++
		}
	}
	if failures < 3 {
		return nil
	}
	return &ACPRootCause{ACPRate: acp.Rate, EOLFailures: failures}
}

func novelTherapyCarveoutRule(drugs []perf.DrugRow, episodes []perf.EpisodeRow, contract refdata.Contract) []flags.Flag {
	if !contract.NovelTherapyCarveout {
		return nil
	}
	asOf, err := contract.AsOf()
	if err != nil {
		return nil
	}
	lookback := contract.NovelTherapyLookbackMonths
	if lookback <= 0 {
		lookback = 18
	}
	cutoff := asOf.AddDate(0, -lookback, 0)

	var names []string
	var drugList []string
	novelTotalCost := 0.0
	for _, drug := range drugs {
		if !drug.IsNovelTherapy {
			continue
		}
		fdaDate, err := drug.ApprovedOn()
		if err != nil || fdaDate.Before(cutoff) {
			continue
		}
		names = append(names, drug.DrugName)
		drugList = append(drugList, fmt.Sprintf("%s ($%.0f)", drug.DrugName, drug.TotalCost))
		novelTotalCost += drug.TotalCost
	}
	if len(names) == 0 {
		return nil
	}

	var totalCost, totalTarget float64
	for _, row := range episodes {
		if perf.Has(row.TotalCost) {
			totalCost += row.TotalCost
		}
		if perf.Has(row.TotalTarget) {
			totalTarget += row.TotalTarget
		}
	}
	savingsBefore := totalTarget - totalCost
	savingsAfter := totalTarget - (totalCost - novelTotalCost)
	impact := (savingsAfter - savingsBefore) * contract.SharingRateSavings

	return []flags.Flag{{
		Severity: flags.Yellow, Category: flags.CategoryONC,
		Metric:      "novel_therapy_carveout",
		Observed:    fmt.Sprintf("$%.0f in novel therapy costs", novelTotalCost),
		Expected:    "these costs may be carved out per contract terms",
		EpisodeType: "Drug Detail", ContractID: contract.ID,
		Description: fmt.Sprintf("Novel therapy carve-out: $%.0f in costs from %d drug(s) approved within %d-month lookback may be excluded from savings calculation",
			novelTotalCost, len(names), lookback),
		Detail: fmt.Sprintf("Contract specifies novel therapy carve-out for drugs approved within %d months of %s. "+
			"Eligible drugs: %s. If carved out, total cost decreases by $%.0f, changing savings from $%.0f to "+
			"$%.0f. Impact on provider share: $%.0f. Both figures are reported; neither replaces the other.",
			lookback, contract.DataAsOf, strings.Join(drugList, "; "),
			novelTotalCost, savingsBefore, savingsAfter, impact),
		Evidence: map[string]any{
			"novel_drugs": names, "novel_total_cost": novelTotalCost,
			"savings_before_carveout": math.Round(savingsBefore),
			"savings_after_carveout":  math.Round(savingsAfter),
			"provider_share_impact":   math.Round(impact),
		},
	}}
}

// incidenceRule compares per-cancer episode volume against expected MA
// incidence. More than twice expected reads as an attribution problem;
// under half of expected reads as an access problem. Both are RED with
// opposite descriptions.
func incidenceRule(episodes []perf.EpisodeRow, ranges refdata.RangeSet, contract refdata.Contract) []flags.Flag {
	if contract.AttributedMembers <= 0 {
		return nil
	}

	volumes := make(map[string]float64)
	var order []string
	for _, row := range episodes {
		if !perf.Has(row.EpisodeCount) {
			continue
		}
		if _, seen := volumes[row.CancerType]; !seen {
			order = append(order, row.CancerType)
		}
		volumes[row.CancerType] += row.EpisodeCount
	}

	var out []flags.Flag
	for _, cancer := range order {
		refKey, ok := cancerTypeKeys[cancer]
		if !ok {
			continue
		}
		rng, ok := ranges.Incidence[refKey]
		if !ok || rng.Expected == nil || *rng.Expected <= 0 {
			continue
		}
		expected := *rng.Expected
		count := volumes[cancer]
		ratePer1000 := count / (contract.AttributedMembers / 1000)

		rangeText := fmt.Sprintf("expected %s/1,000", formatMetric(expected))
		if rng.Min != nil && rng.Max != nil {
			rangeText = fmt.Sprintf("%s-%s/1,000 (expected %s/1,000)",
				formatMetric(*rng.Min), formatMetric(*rng.Max), formatMetric(expected))
		}

		switch {
		case ratePer1000 > 2*expected:
			out = append(out, flags.Flag{
				Severity: flags.Red, Category: flags.CategoryONC,
				Metric:      "episode_volume_vs_incidence",
				Observed:    fmt.Sprintf("%s: %.1f/1,000", cancer, ratePer1000),
				Expected:    rangeText,
				EpisodeType: cancer + " Volume", ContractID: contract.ID,
				Description: fmt.Sprintf("%s episode rate of %.1f/1,000 is more than twice the expected %s/1,000 — potential attribution problem",
					cancer, ratePer1000, formatMetric(expected)),
				Detail: fmt.Sprintf("%.0f %s episodes for %.0f members = %.1f/1,000. Rate exceeding 2x expected "+
					"incidence suggests a potential attribution algorithm issue or duplicated episodes.",
					count, cancer, contract.AttributedMembers, ratePer1000),
				Evidence: map[string]any{
					"cancer_type": cancer, "episode_count": count,
					"rate_per_1000": math.Round(ratePer1000*10) / 10, "expected_rate": expected,
				},
			})
		case ratePer1000 < 0.5*expected:
			out = append(out, flags.Flag{
				Severity: flags.Red, Category: flags.CategoryONC,
				Metric:      "episode_volume_vs_incidence",
				Observed:    fmt.Sprintf("%s: %.1f/1,000", cancer, ratePer1000),
				Expected:    rangeText,
				EpisodeType: cancer + " Volume", ContractID: contract.ID,
				Description: fmt.Sprintf("%s episode rate of %.1f/1,000 is under half the expected %s/1,000 — potential access or underdiagnosis concern",
					cancer, ratePer1000, formatMetric(expected)),
				Detail: fmt.Sprintf("%.0f %s episodes for %.0f members = %.1f/1,000. Low rates may indicate "+
					"access barriers, underdiagnosis, or attribution gaps.",
					count, cancer, contract.AttributedMembers, ratePer1000),
				Evidence: map[string]any{
					"cancer_type": cancer, "episode_count": count,
					"rate_per_1000": math.Round(ratePer1000*10) / 10, "expected_rate": expected,
				},
			})
		}
	}
	return out
}

// qualityGateImpactRule reports any failing quality gate with the shared
// savings at stake and the measures closest to earning additional points,
// ranked by the smallest point gap.
func qualityGateImpactRule(quality []perf.QualityRow, episodes []perf.EpisodeRow,
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
	if gap <= 0 {
		return nil
	}

	totalSavings := 0.0
	for _, row := range episodes {
		if perf.Has(row.TotalCost) && perf.Has(row.TotalTarget) {
			totalSavings += row.TotalTarget - row.TotalCost
		}
	}
	atRisk := math.Max(0, totalSavings) * contract.SharingRateSavings

	type candidate struct {
		Measure       string
		CurrentPoints float64
		MaxPoints     float64
		Gap           float64
	}
	var candidates []candidate
	for _, q := range quality {
		if q.Composite() || unusableRates[q.MeasureID] {
			continue
		}
		if !perf.Has(q.PointsEarned) || !perf.Has(q.MaxPoints) {
			continue
		}
		if pointGap := q.MaxPoints - q.PointsEarned; pointGap > 0 {
			candidates = append(candidates, candidate{q.MeasureName, q.PointsEarned, q.MaxPoints, pointGap})
		}
	}
	sort.SliceStable(candidates, func(i, j int) bool { return candidates[i].Gap < candidates[j].Gap })
	if len(candidates) > 3 {
		candidates = candidates[:3]
	}
	var parts []string
	for _, c := range candidates {
		parts = append(parts, fmt.Sprintf("%s (%.0f/%.0f, gap=%.0fpts)", c.Measure, c.CurrentPoints, c.MaxPoints, c.Gap))
	}
	candidateText := strings.Join(parts, "; ")

	return []flags.Flag{{
		Severity: flags.Red, Category: flags.CategoryONC,
		Metric:      "quality_gate_improvement_path",
		Observed:    fmt.Sprintf("composite %.1f%%, need %.0f%%, $%.0f at risk", compositePct, contract.QualityGateMinimum, atRisk),
		Expected:    fmt.Sprintf("composite >= %.0f%%", contract.QualityGateMinimum),
		EpisodeType: "Quality Gate", ContractID: contract.ID,
		Description: fmt.Sprintf("Quality gate %.1f points from passing — $%.0f at risk. Easiest improvement: %s",
			gap, atRisk, candidateText),
		Detail: fmt.Sprintf("The quality composite of %.0f/%.0f (%.1f%%) is %.1f points below the %.0f%% gate. "+
			"Total shared savings at risk: $%.0f. Lowest-effort improvement candidates: %s. Closing this gap "+
			"requires gaining %.1f percentage points, equivalent to ~%.0f additional quality points.",
			composite.PointsEarned, composite.MaxPoints, compositePct, gap, contract.QualityGateMinimum,
			atRisk, candidateText, gap, gap*composite.MaxPoints/100),
		Evidence: map[string]any{
			"composite_pct": math.Round(compositePct*10) / 10,
			"gate_minimum":  contract.QualityGateMinimum,
			"gap_points":    math.Round(gap*10) / 10,
			"savings_at_risk": math.Round(atRisk),
			"improvement_candidates": candidates,
		},
	}}
}
