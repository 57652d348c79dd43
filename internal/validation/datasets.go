package validation

import "vbcaudit/domain/tabular"

// Dataset names used by loaders, schema checks, and flag wording.
const (
	DatasetMSKEpisodes   = "msk_episodes"
	DatasetMSKQuality    = "msk_quality"
	DatasetONCEpisodes   = "onc_episodes"
	DatasetONCQuality    = "onc_quality"
	DatasetONCDrugDetail = "onc_drug_detail"
)

func col(name string, kind tabular.Kind) tabular.ColumnSpec {
	return tabular.ColumnSpec{Name: name, Kind: kind, Required: true}
}

func critical(name string, kind tabular.Kind) tabular.ColumnSpec {
	return tabular.ColumnSpec{Name: name, Kind: kind, Required: true, Critical: true}
}

// MSKEpisodesSchema is the expected column contract for the MSK episode
// performance table.
var MSKEpisodesSchema = tabular.Schema{
	Dataset: DatasetMSKEpisodes,
	Columns: []tabular.ColumnSpec{
		critical("episode_type", tabular.KindText),
		critical("episode_count", tabular.KindNumeric),
		critical("avg_episode_cost", tabular.KindNumeric),
		critical("target_price", tabular.KindNumeric),
		col("total_cost", tabular.KindNumeric),
		col("total_target", tabular.KindNumeric),
		col("variance_pct", tabular.KindNumeric),
		col("implant_cost_avg", tabular.KindNumeric),
		col("facility_cost_avg", tabular.KindNumeric),
		col("professional_cost_avg", tabular.KindNumeric),
		col("post_acute_cost_avg", tabular.KindNumeric),
		col("readmission_cost_avg", tabular.KindNumeric),
		col("discharge_home_pct", tabular.KindRate),
		col("discharge_snf_pct", tabular.KindRate),
		col("discharge_irf_pct", tabular.KindRate),
		col("discharge_other_pct", tabular.KindRate),
		col("readmission_rate", tabular.KindRate),
		col("er_visit_rate_90d", tabular.KindRate),
		col("ssi_rate", tabular.KindRate),
		col("revision_rate_12mo", tabular.KindRate),
		col("avg_los_days", tabular.KindNumeric),
		col("avg_opioid_mme_discharge", tabular.KindNumeric),
		col("prom_collection_rate", tabular.KindRate),
		col("prom_improvement_rate", tabular.KindRate),
		col("prior_year_episode_count", tabular.KindNumeric),
		col("prior_year_avg_cost", tabular.KindNumeric),
		col("prior_year_discharge_home_pct", tabular.KindRate),
		col("prior_year_er_visit_rate", tabular.KindRate),
		col("risk_score_actual", tabular.KindNumeric),
		col("risk_score_expected", tabular.KindNumeric),
	},
}

// ONCEpisodesSchema is the expected column contract for the oncology
// episode performance table.
var ONCEpisodesSchema = tabular.Schema{
	Dataset: DatasetONCEpisodes,
	Columns: []tabular.ColumnSpec{
		critical("cancer_type", tabular.KindText),
		col("stage_group", tabular.KindText),
		col("line_of_therapy", tabular.KindText),
		critical("episode_count", tabular.KindNumeric),
		critical("avg_episode_cost", tabular.KindNumeric),
		critical("target_price", tabular.KindNumeric),
		col("total_cost", tabular.KindNumeric),
		col("total_target", tabular.KindNumeric),
		col("variance_pct", tabular.KindNumeric),
		col("drug_cost_avg", tabular.KindNumeric),
		col("administration_cost_avg", tabular.KindNumeric),
		col("inpatient_cost_avg", tabular.KindNumeric),
		col("er_cost_avg", tabular.KindNumeric),
		col("imaging_cost_avg", tabular.KindNumeric),
		col("lab_cost_avg", tabular.KindNumeric),
		col("supportive_care_cost_avg", tabular.KindNumeric),
		col("other_cost_avg", tabular.KindNumeric),
		col("pathway_adherence_rate", tabular.KindRate),
		col("pathway_regimen_pct", tabular.KindRate),
		col("non_pathway_regimen_pct", tabular.KindRate),
		col("biosimilar_utilization_rate", tabular.KindRate),
		col("office_infusion_pct", tabular.KindRate),
		col("hopd_infusion_pct", tabular.KindRate),
		col("hospitalization_rate", tabular.KindRate),
		col("er_visit_rate", tabular.KindRate),
		col("prior_year_episode_count", tabular.KindNumeric),
		col("prior_year_avg_cost", tabular.KindNumeric),
		col("risk_score_actual", tabular.KindNumeric),
		col("risk_score_expected", tabular.KindNumeric),
	},
}

// QualitySchema is shared by the MSK and oncology quality-measure tables.
func QualitySchema(dataset string) tabular.Schema {
	return tabular.Schema{
		Dataset: dataset,
		Columns: []tabular.ColumnSpec{
			critical("measure_name", tabular.KindText),
			critical("measure_id", tabular.KindText),
			col("numerator", tabular.KindNumeric),
			col("denominator", tabular.KindNumeric),
			col("rate", tabular.KindRate),
			col("target", tabular.KindRate),
			critical("max_points", tabular.KindNumeric),
			critical("points_earned", tabular.KindNumeric),
			col("prior_year_rate", tabular.KindRate),
		},
	}
}

// ONCDrugDetailSchema is the expected column contract for the oncology
// drug-detail table.
var ONCDrugDetailSchema = tabular.Schema{
	Dataset: DatasetONCDrugDetail,
	Columns: []tabular.ColumnSpec{
		col("drug_category", tabular.KindText),
		critical("drug_name", tabular.KindText),
		col("is_biosimilar", tabular.KindText),
		col("is_pathway", tabular.KindText),
		col("cancer_types_used", tabular.KindText),
		critical("total_claims", tabular.KindNumeric),
		critical("total_cost", tabular.KindNumeric),
		col("avg_cost_per_claim", tabular.KindNumeric),
		col("site_of_service_office_pct", tabular.KindRate),
		col("site_of_service_hopd_pct", tabular.KindRate),
		col("site_of_service_home_pct", tabular.KindRate),
		col("prior_year_total_cost", tabular.KindNumeric),
		col("prior_year_claims", tabular.KindNumeric),
		col("fda_approval_date", tabular.KindText),
		col("is_novel_therapy", tabular.KindText),
	},
}
