package ports

import (
	"context"

	"vbcaudit/domain/flags"
	"vbcaudit/domain/refdata"
)

// NarrativeRequest is one group of related flags to interpret, plus enough
// contract and metric context for the narrator to reason about causes.
type NarrativeRequest struct {
	Contract       refdata.Contract
	GroupLabel     string
	Flags          []flags.Flag
	MetricsContext string
}

// ProbableCause is one hypothesized root cause with its supporting
// evidence.
type ProbableCause struct {
	Cause      string `json:"cause"`
	Likelihood string `json:"likelihood"`
	Evidence   string `json:"evidence"`
}

// Intervention is one recommended corrective action.
type Intervention struct {
	Intervention   string `json:"intervention"`
	Timeframe      string `json:"timeframe"`
	ExpectedImpact string `json:"expected_impact"`
}

// Narrative is a structured diagnostic interpretation of a flag group,
// suitable for a Joint Operating Committee discussion.
type Narrative struct {
	GroupLabel               string          `json:"episode_type"`
	DiagnosisSummary         string          `json:"diagnosis_summary"`
	ProbableCauses           []ProbableCause `json:"probable_causes"`
	QuestionsForProvider     []string        `json:"questions_for_provider"`
	RecommendedInterventions []Intervention  `json:"recommended_interventions"`
	ContractImplications     string          `json:"contract_implications"`
	FlagsAddressed           []string        `json:"flags_addressed"`
}

// Narrator produces a diagnostic narrative for a flag group. A (nil, nil)
// return means the narrator is not configured; callers treat that as
// absence, not failure, and the flags themselves are never altered.
type Narrator interface {
	Narrate(ctx context.Context, req NarrativeRequest) (*Narrative, error)
}
