// Package testkit holds fixtures shared by engine tests: contract and
// reference-range stand-ins plus builders for typed rows and raw tables.
package testkit

import (
	"fmt"
	"reflect"

	"vbcaudit/domain/perf"
	"vbcaudit/domain/refdata"
	"vbcaudit/domain/tabular"
)

// Table builds a tabular.Table from literal rows. Supported cell values:
// float64/int (numeric), string (text), nil (null), bool (TRUE/FALSE text).
func Table(name string, columns []string, rows ...[]any) *tabular.Table {
	t := tabular.New(name, columns)
	for _, row := range rows {
		cells := make([]tabular.Cell, len(row))
		for i, v := range row {
			switch x := v.(type) {
			case nil:
				cells[i] = tabular.NullCell()
			case float64:
				cells[i] = tabular.NumCell(x)
			case int:
				cells[i] = tabular.NumCell(float64(x))
			case bool:
				if x {
					cells[i] = tabular.TextCell("TRUE")
				} else {
					cells[i] = tabular.TextCell("FALSE")
				}
			case string:
				cells[i] = tabular.TextCell(x)
			default:
				panic(fmt.Sprintf("testkit: unsupported cell value %T", v))
			}
		}
		if err := t.Append(cells); err != nil {
			panic(err)
		}
	}
	return t
}

// MSKContract mirrors the MSK bundled-payment contract used across tests.
func MSKContract() refdata.Contract {
	return refdata.Contract{
		ID:                 "MSK-2024-001",
		Name:               "Orthopedic Partners of Massachusetts",
		Specialty:          refdata.SpecialtyMSK,
		ContractType:       "Bundled Payment",
		LOB:                "Medicare Advantage",
		PerformancePeriod:  "2024",
		SharingRateSavings: 0.50,
		SharingRateLosses:  0.50,
		QualityGateMinimum: 70,
		AttributedMembers:  6200,
		MemberMonths:       74400,
		SurgicalShiftMultiple: 1.0,
		DataAsOf:              "2024-12-31",
	}
}

// ONCContract mirrors the oncology total-cost-of-care contract.
func ONCContract() refdata.Contract {
	return refdata.Contract{
		ID:                 "ONC-2024-001",
		Name:               "Commonwealth Cancer Alliance",
		Specialty:          refdata.SpecialtyOncology,
		ContractType:       "Total Cost of Care",
		LOB:                "Medicare Advantage",
		PerformancePeriod:  "2024",
		SharingRateSavings: 0.40,
		SharingRateLosses:  0.30,
		QualityGateMinimum: 55,
		AttributedMembers:  9800,
		MemberMonths:       117600,
		PathwayAdherenceTarget:     0.80,
		NovelTherapyCarveout:       true,
		NovelTherapyLookbackMonths: 18,
		DataAsOf:                   "2024-12-31",
	}
}

func rng(min, expected, max float64) refdata.Range {
	return refdata.Range{Min: refdata.Ptr(min), Expected: refdata.Ptr(expected), Max: refdata.Ptr(max)}
}

// MSKRanges returns a reference-range set covering the episode types and
// utilization metrics the MSK tests exercise.
func MSKRanges() refdata.RangeSet {
	return refdata.RangeSet{
		EpisodeCost: map[string]refdata.Range{
			"TKR":                 rng(28000, 34000, 42000),
			"THR":                 rng(27000, 33000, 41000),
			"spinal_fusion_1_2":   rng(38000, 47000, 58000),
			"spinal_fusion_3_plus": rng(55000, 68000, 85000),
			"knee_arthroscopy":    rng(4500, 6500, 9000),
			"rotator_cuff":        rng(12000, 16000, 21000),
			"conservative_lbp":    rng(2000, 3500, 6000),
			"conservative_joint":  rng(1500, 2800, 5000),
		},
		Utilization: map[string]refdata.Range{
			"opioid_mme_discharge_avg": rng(10, 30, 50),
			"prom_collection_rate":     rng(0.50, 0.75, 1.0),
		},
		QualityTargets: map[string]refdata.Range{
			"readmit_90day":  {Target: refdata.Ptr(0.05), Max: refdata.Ptr(0.08)},
			"er_visit_90day": {Target: refdata.Ptr(0.10), Max: refdata.Ptr(0.15)},
			"ssi_rate":       {Target: refdata.Ptr(0.01), Max: refdata.Ptr(0.02)},
			"revision_12mo":  {Target: refdata.Ptr(0.02), Max: refdata.Ptr(0.04)},
		},
		Incidence: map[string]refdata.Range{
			"knee_arthroscopy": rng(10, 16, 25),
			"TKR":              rng(6, 9, 12),
			"THR":              rng(4, 6, 8),
		},
	}
}

// ONCRanges covers the oncology cohorts, pathway benchmarks, and incidence
// rates the oncology tests exercise.
func ONCRanges() refdata.RangeSet {
	return refdata.RangeSet{
		EpisodeCost: map[string]refdata.Range{
			"breast_early":          rng(45000, 62000, 85000),
			"breast_metastatic":     rng(95000, 125000, 165000),
			"lung_nsclc_1L":         rng(105000, 135000, 175000),
			"lung_nsclc_2L_plus":    rng(85000, 115000, 155000),
			"colorectal_adjuvant":   rng(40000, 55000, 75000),
			"colorectal_metastatic": rng(90000, 120000, 160000),
			"prostate_early":        rng(25000, 35000, 50000),
			"prostate_advanced":     rng(60000, 80000, 105000),
		},
		PathwayAdherence: map[string]refdata.Range{
			"breast_early":          {MinAcceptable: refdata.Ptr(0.75), Expected: refdata.Ptr(0.85)},
			"breast_metastatic":     {MinAcceptable: refdata.Ptr(0.70), Expected: refdata.Ptr(0.80)},
			"lung_nsclc_1L":         {MinAcceptable: refdata.Ptr(0.75), Expected: refdata.Ptr(0.85)},
			"lung_nsclc_2L_plus":    {MinAcceptable: refdata.Ptr(0.70), Expected: refdata.Ptr(0.80)},
			"colorectal_adjuvant":   {MinAcceptable: refdata.Ptr(0.75), Expected: refdata.Ptr(0.85)},
			"colorectal_metastatic": {MinAcceptable: refdata.Ptr(0.70), Expected: refdata.Ptr(0.80)},
			"prostate_early":        {MinAcceptable: refdata.Ptr(0.75), Expected: refdata.Ptr(0.85)},
			"prostate_advanced":     {MinAcceptable: refdata.Ptr(0.70), Expected: refdata.Ptr(0.80)},
		},
		Incidence: map[string]refdata.Range{
			"breast":     rng(1.5, 2.4, 3.5),
			"lung":       rng(1.2, 1.9, 2.8),
			"colorectal": rng(0.8, 1.3, 2.0),
			"prostate":   rng(1.4, 2.2, 3.2),
		},
		PathwayCost: map[string]float64{
			"lung_nsclc_1L":     107000,
			"breast_metastatic": 98000,
		},
	}
}

// BlankEpisode returns an episode row with every numeric field set to the
// missing sentinel, so tests only assert on fields they explicitly plant.
func BlankEpisode() perf.EpisodeRow {
	var e perf.EpisodeRow
	blankFloats(&e)
	return e
}

// BlankQuality is BlankEpisode for quality rows.
func BlankQuality() perf.QualityRow {
	var q perf.QualityRow
	blankFloats(&q)
	return q
}

// BlankDrug is BlankEpisode for drug rows.
func BlankDrug() perf.DrugRow {
	var d perf.DrugRow
	blankFloats(&d)
	return d
}

func blankFloats(ptr any) {
	v := reflect.ValueOf(ptr).Elem()
	for i := 0; i < v.NumField(); i++ {
		if v.Field(i).Kind() == reflect.Float64 {
			v.Field(i).SetFloat(perf.Missing)
		}
	}
}

// Episode builds an episode row with internally consistent totals.
func Episode(episodeType string, count, avg, target float64) perf.EpisodeRow {
	e := BlankEpisode()
	e.EpisodeType = episodeType
	e.EpisodeCount = count
	e.AvgEpisodeCost = avg
	e.TargetPrice = target
	e.TotalCost = count * avg
	e.TotalTarget = count * target
	if target != 0 {
		e.VariancePct = (avg - target) / target
	}
	return e
}

// CancerEpisode builds an oncology episode row with consistent totals.
func CancerEpisode(cancer, stage, line string, count, avg, target float64) perf.EpisodeRow {
	e := Episode("", count, avg, target)
	e.CancerType = cancer
	e.StageGroup = stage
	e.LineOfTherapy = line
	return e
}

// Quality builds a quality-measure row with a derived rate.
func Quality(id, name string, numerator, denominator, target, maxPoints, pointsEarned float64) perf.QualityRow {
	q := BlankQuality()
	q.MeasureID = id
	q.MeasureName = name
	q.Numerator = numerator
	q.Denominator = denominator
	if denominator != 0 {
		q.Rate = numerator / denominator
	}
	q.Target = target
	q.MaxPoints = maxPoints
	q.PointsEarned = pointsEarned
	return q
}

// Drug builds a drug-detail row with consistent claim totals.
func Drug(name, category string, biosimilar bool, claims, avgCost float64) perf.DrugRow {
	d := BlankDrug()
	d.DrugName = name
	d.DrugCategory = category
	d.IsBiosimilar = biosimilar
	d.TotalClaims = claims
	d.AvgCostPerClaim = avgCost
	d.TotalCost = claims * avgCost
	return d
}
