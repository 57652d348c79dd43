package refdata

import (
	"fmt"
	"time"
)

// Specialty values recognized by the rule dispatch table.
const (
	SpecialtyMSK      = "MSK"
	SpecialtyOncology = "Oncology"
)

// Contract holds the per-contract metadata every checker reads. Loaded once
// per run and never mutated.
type Contract struct {
	ID                 string  `json:"contract_id"`
	Name               string  `json:"contract_name"`
	Specialty          string  `json:"specialty"`
	ContractType       string  `json:"contract_type"`
	LOB                string  `json:"lob"`
	PerformancePeriod  string  `json:"performance_period"`
	SharingRateSavings float64 `json:"sharing_rate_savings"`
	SharingRateLosses  float64 `json:"sharing_rate_losses"`
	QualityGateMinimum float64 `json:"quality_gate_minimum"`
	AttributedMembers  float64 `json:"attributed_members"`
	MemberMonths       float64 `json:"member_months"`

	// Specialty-specific thresholds.
	PathwayAdherenceTarget     float64 `json:"pathway_adherence_target,omitempty"`
	NovelTherapyCarveout       bool    `json:"novel_therapy_carveout,omitempty"`
	NovelTherapyLookbackMonths int     `json:"novel_therapy_lookback_months,omitempty"`
	SurgicalShiftMultiple      float64 `json:"surgical_shift_multiple,omitempty"`
	DataAsOf                   string  `json:"data_as_of,omitempty"`
}

// AsOf parses the contract's data-as-of date.
func (c Contract) AsOf() (time.Time, error) {
	return time.Parse("2006-01-02", c.DataAsOf)
}

// Unit tags a reference range so checkers know whether a value is a 0-1
// proportion, a currency amount, or a rate per 1,000 members.
type Unit string

const (
	UnitProportion  Unit = "proportion"
	UnitCurrency    Unit = "currency"
	UnitRatePer1000 Unit = "rate_per_1000"
)

// Range is one reference entry keyed by (specialty, metric, procedure or
// cancer type). Pointer fields distinguish "absent" from zero.
type Range struct {
	Min           *float64 `json:"min,omitempty"`
	Max           *float64 `json:"max,omitempty"`
	Expected      *float64 `json:"expected,omitempty"`
	Target        *float64 `json:"target,omitempty"`
	MinAcceptable *float64 `json:"min_acceptable,omitempty"`
	MaxAcceptable *float64 `json:"max_acceptable,omitempty"`
	Unit          Unit     `json:"unit,omitempty"`
	Description   string   `json:"description,omitempty"`
}

// Validate enforces min <= expected <= max when all three are present.
func (r Range) Validate() error {
	if r.Min != nil && r.Max != nil && *r.Min > *r.Max {
		return fmt.Errorf("reference range has min %v > max %v", *r.Min, *r.Max)
	}
	if r.Min != nil && r.Expected != nil && *r.Expected < *r.Min {
		return fmt.Errorf("reference range has expected %v < min %v", *r.Expected, *r.Min)
	}
	if r.Max != nil && r.Expected != nil && *r.Expected > *r.Max {
		return fmt.Errorf("reference range has expected %v > max %v", *r.Expected, *r.Max)
	}
	return nil
}

// RangeSet is the complete reference book for one specialty.
type RangeSet struct {
	EpisodeCost      map[string]Range   `json:"episode_cost_ranges"`
	Utilization      map[string]Range   `json:"utilization_ranges_ma"`
	QualityTargets   map[string]Range   `json:"quality_targets"`
	PathwayAdherence map[string]Range   `json:"pathway_adherence_benchmarks"`
	Incidence        map[string]Range   `json:"incidence_rates_ma_per_1000"`
	PathwayCost      map[string]float64 `json:"pathway_cost_benchmarks"`
}

// Validate checks the ordering invariant on every entry.
func (rs RangeSet) Validate() error {
	groups := map[string]map[string]Range{
		"episode_cost_ranges":          rs.EpisodeCost,
		"utilization_ranges_ma":        rs.Utilization,
		"quality_targets":              rs.QualityTargets,
		"pathway_adherence_benchmarks": rs.PathwayAdherence,
		"incidence_rates_ma_per_1000":  rs.Incidence,
	}
	for group, entries := range groups {
		for key, r := range entries {
			if err := r.Validate(); err != nil {
				return fmt.Errorf("%s/%s: %w", group, key, err)
			}
		}
	}
	return nil
}

// Ptr is a convenience for building Range literals in config and fixtures.
func Ptr(v float64) *float64 { return &v }
