package perf

import (
	"strings"

	"vbcaudit/domain/tabular"
)

// The binders convert a schema-checked, normalized table into typed rows.
// Absent or null numerics become Missing; absent text becomes "".

func num(t *tabular.Table, row int, column string) float64 {
	c, ok := t.Cell(row, column)
	if !ok || c.Null || !c.IsNum {
		return Missing
	}
	return c.Num
}

func text(t *tabular.Table, row int, column string) string {
	c, ok := t.Cell(row, column)
	if !ok || c.Null {
		return ""
	}
	return c.Text
}

func boolean(t *tabular.Table, row int, column string) bool {
	c, ok := t.Cell(row, column)
	if !ok || c.Null {
		return false
	}
	if c.IsNum {
		return c.Num != 0
	}
	return strings.EqualFold(strings.TrimSpace(c.Text), "true")
}

// BindEpisodes maps an episodes table (MSK or oncology) to typed rows.
func BindEpisodes(t *tabular.Table) []EpisodeRow {
	rows := make([]EpisodeRow, 0, len(t.Rows))
	for i := range t.Rows {
		rows = append(rows, EpisodeRow{
			EpisodeType:   text(t, i, "episode_type"),
			CancerType:    text(t, i, "cancer_type"),
			StageGroup:    text(t, i, "stage_group"),
			LineOfTherapy: text(t, i, "line_of_therapy"),

			EpisodeCount:   num(t, i, "episode_count"),
			AvgEpisodeCost: num(t, i, "avg_episode_cost"),
			TargetPrice:    num(t, i, "target_price"),
			TotalCost:      num(t, i, "total_cost"),
			TotalTarget:    num(t, i, "total_target"),
			VariancePct:    num(t, i, "variance_pct"),

			ImplantCostAvg:        num(t, i, "implant_cost_avg"),
			FacilityCostAvg:       num(t, i, "facility_cost_avg"),
			ProfessionalCostAvg:   num(t, i, "professional_cost_avg"),
			PostAcuteCostAvg:      num(t, i, "post_acute_cost_avg"),
			ReadmissionCostAvg:    num(t, i, "readmission_cost_avg"),
			DischargeHomePct:      num(t, i, "discharge_home_pct"),
			DischargeSNFPct:       num(t, i, "discharge_snf_pct"),
			DischargeIRFPct:       num(t, i, "discharge_irf_pct"),
			DischargeOtherPct:     num(t, i, "discharge_other_pct"),
			ReadmissionRate:       num(t, i, "readmission_rate"),
			ERVisitRate90d:        num(t, i, "er_visit_rate_90d"),
			SSIRate:               num(t, i, "ssi_rate"),
			RevisionRate12mo:      num(t, i, "revision_rate_12mo"),
			AvgLOSDays:            num(t, i, "avg_los_days"),
			AvgOpioidMMEDischarge: num(t, i, "avg_opioid_mme_discharge"),
			PROMCollectionRate:    num(t, i, "prom_collection_rate"),
			PROMImprovementRate:   num(t, i, "prom_improvement_rate"),

			DrugCostAvg:               num(t, i, "drug_cost_avg"),
			AdministrationCostAvg:     num(t, i, "administration_cost_avg"),
			InpatientCostAvg:          num(t, i, "inpatient_cost_avg"),
			ERCostAvg:                 num(t, i, "er_cost_avg"),
			ImagingCostAvg:            num(t, i, "imaging_cost_avg"),
			LabCostAvg:                num(t, i, "lab_cost_avg"),
			SupportiveCareCostAvg:     num(t, i, "supportive_care_cost_avg"),
			OtherCostAvg:              num(t, i, "other_cost_avg"),
			PathwayAdherenceRate:      num(t, i, "pathway_adherence_rate"),
			PathwayRegimenPct:         num(t, i, "pathway_regimen_pct"),
			NonPathwayRegimenPct:      num(t, i, "non_pathway_regimen_pct"),
			BiosimilarUtilizationRate: num(t, i, "biosimilar_utilization_rate"),
			OfficeInfusionPct:         num(t, i, "office_infusion_pct"),
			HOPDInfusionPct:           num(t, i, "hopd_infusion_pct"),
			HospitalizationRate:       num(t, i, "hospitalization_rate"),
			ERVisitRate:               num(t, i, "er_visit_rate"),

			PriorYearEpisodeCount:     num(t, i, "prior_year_episode_count"),
			PriorYearAvgCost:          num(t, i, "prior_year_avg_cost"),
			PriorYearDischargeHomePct: num(t, i, "prior_year_discharge_home_pct"),
			PriorYearERVisitRate:      num(t, i, "prior_year_er_visit_rate"),

			RiskScoreActual:   num(t, i, "risk_score_actual"),
			RiskScoreExpected: num(t, i, "risk_score_expected"),
		})
	}
	return rows
}

// BindQuality maps a quality-measure table to typed rows.
func BindQuality(t *tabular.Table) []QualityRow {
	rows := make([]QualityRow, 0, len(t.Rows))
	for i := range t.Rows {
		rows = append(rows, QualityRow{
			MeasureName:   text(t, i, "measure_name"),
			MeasureID:     text(t, i, "measure_id"),
			Numerator:     num(t, i, "numerator"),
			Denominator:   num(t, i, "denominator"),
			Rate:          num(t, i, "rate"),
			Target:        num(t, i, "target"),
			MaxPoints:     num(t, i, "max_points"),
			PointsEarned:  num(t, i, "points_earned"),
			PriorYearRate: num(t, i, "prior_year_rate"),
		})
	}
	return rows
}

// BindDrugs maps the oncology drug-detail table to typed rows.
func BindDrugs(t *tabular.Table) []DrugRow {
	rows := make([]DrugRow, 0, len(t.Rows))
	for i := range t.Rows {
		rows = append(rows, DrugRow{
			DrugCategory:       text(t, i, "drug_category"),
			DrugName:           text(t, i, "drug_name"),
			IsBiosimilar:       boolean(t, i, "is_biosimilar"),
			IsPathway:          boolean(t, i, "is_pathway"),
			IsNovelTherapy:     boolean(t, i, "is_novel_therapy"),
			CancerTypesUsed:    text(t, i, "cancer_types_used"),
			TotalClaims:        num(t, i, "total_claims"),
			TotalCost:          num(t, i, "total_cost"),
			AvgCostPerClaim:    num(t, i, "avg_cost_per_claim"),
			SiteOfficePct:      num(t, i, "site_of_service_office_pct"),
			SiteHOPDPct:        num(t, i, "site_of_service_hopd_pct"),
			SiteHomePct:        num(t, i, "site_of_service_home_pct"),
			PriorYearTotalCost: num(t, i, "prior_year_total_cost"),
			PriorYearClaims:    num(t, i, "prior_year_claims"),
			FDAApprovalDate:    text(t, i, "fda_approval_date"),
		})
	}
	return rows
}
