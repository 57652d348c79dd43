package perf

import (
	"math"
	"strings"
	"time"
)

// Missing is the sentinel for an absent numeric value. A missing value is
// never treated as zero by any checker.
var Missing = math.NaN()

// Has reports whether a numeric value is present.
func Has(v float64) bool { return !math.IsNaN(v) }

// EpisodeRow is one performance record per episode type (MSK) or cancer
// type / stage / line of therapy (oncology). Fields that do not apply to a
// specialty stay Missing.
type EpisodeRow struct {
	EpisodeType   string
	CancerType    string
	StageGroup    string
	LineOfTherapy string

	EpisodeCount   float64
	AvgEpisodeCost float64
	TargetPrice    float64
	TotalCost      float64
	TotalTarget    float64
	VariancePct    float64

	// MSK cost components and utilization.
	ImplantCostAvg        float64
	FacilityCostAvg       float64
	ProfessionalCostAvg   float64
	PostAcuteCostAvg      float64
	ReadmissionCostAvg    float64
	DischargeHomePct      float64
	DischargeSNFPct       float64
	DischargeIRFPct       float64
	DischargeOtherPct     float64
	ReadmissionRate       float64
	ERVisitRate90d        float64
	SSIRate               float64
	RevisionRate12mo      float64
	AvgLOSDays            float64
	AvgOpioidMMEDischarge float64
	PROMCollectionRate    float64
	PROMImprovementRate   float64

	// Oncology cost components and utilization.
	DrugCostAvg               float64
	AdministrationCostAvg     float64
	InpatientCostAvg          float64
	ERCostAvg                 float64
	ImagingCostAvg            float64
	LabCostAvg                float64
	SupportiveCareCostAvg     float64
	OtherCostAvg              float64
	PathwayAdherenceRate      float64
	PathwayRegimenPct         float64
	NonPathwayRegimenPct      float64
	BiosimilarUtilizationRate float64
	OfficeInfusionPct         float64
	HOPDInfusionPct           float64
	HospitalizationRate       float64
	ERVisitRate               float64

	// Prior-year values for year-over-year rules.
	PriorYearEpisodeCount     float64
	PriorYearAvgCost          float64
	PriorYearDischargeHomePct float64
	PriorYearERVisitRate      float64

	RiskScoreActual   float64
	RiskScoreExpected float64
}

// Label is the episode identity used on flags: the episode type for MSK,
// or "<cancer> <stage> <line>" for oncology.
func (r EpisodeRow) Label() string {
	if r.EpisodeType != "" {
		return r.EpisodeType
	}
	return strings.TrimSpace(strings.Join([]string{r.CancerType, r.StageGroup, r.LineOfTherapy}, " "))
}

// Conservative reports whether this row is a non-surgical category, which
// skips structurally inapplicable metrics (implants, dispositions,
// readmissions).
func (r EpisodeRow) Conservative() bool {
	return strings.Contains(r.EpisodeType, "Conservative")
}

// QualityRow is one quality measure record.
type QualityRow struct {
	MeasureName   string
	MeasureID     string
	Numerator     float64
	Denominator   float64
	Rate          float64
	Target        float64
	MaxPoints     float64
	PointsEarned  float64
	PriorYearRate float64
}

// Composite reports whether this row is the composite roll-up rather than
// an individual measure.
func (q QualityRow) Composite() bool {
	return strings.Contains(q.MeasureID, "COMP")
}

// DrugRow is one oncology drug-detail record.
type DrugRow struct {
	DrugCategory       string
	DrugName           string
	IsBiosimilar       bool
	IsPathway          bool
	IsNovelTherapy     bool
	CancerTypesUsed    string
	TotalClaims        float64
	TotalCost          float64
	AvgCostPerClaim    float64
	SiteOfficePct      float64
	SiteHOPDPct        float64
	SiteHomePct        float64
	PriorYearTotalCost float64
	PriorYearClaims    float64
	FDAApprovalDate    string
}

// ApprovedOn parses the drug's FDA approval date.
func (d DrugRow) ApprovedOn() (time.Time, error) {
	return time.Parse("2006-01-02", d.FDAApprovalDate)
}
