package ai

import (
	"context"
	"fmt"
	"strings"

	"vbcaudit/internal/config"
	"vbcaudit/internal/errors"
	"vbcaudit/ports"
)

// narrativePayload mirrors the JSON contract pinned in the prompt. The
// group label and flag IDs are filled in by the caller, not the model.
type narrativePayload struct {
	DiagnosisSummary         string                `json:"diagnosis_summary"`
	ProbableCauses           []ports.ProbableCause `json:"probable_causes"`
	QuestionsForProvider     []string              `json:"questions_for_provider"`
	RecommendedInterventions []ports.Intervention  `json:"recommended_interventions"`
	ContractImplications     string                `json:"contract_implications"`
}

// Narrator implements ports.Narrator over the structured OpenAI client.
// Without an API key it reports absence, never failure: the flags are
// complete without it.
type Narrator struct {
	client  *StructuredClient[narrativePayload]
	enabled bool
}

func NewNarrator(cfg config.AIConfig) *Narrator {
	if cfg.OpenAIKey == "" {
		return &Narrator{enabled: false}
	}
	if cfg.SystemContext == "" {
		cfg.SystemContext = DiagnosticSystemPrompt
	}
	return &Narrator{
		client:  NewStructuredClient[narrativePayload](cfg),
		enabled: true,
	}
}

// Narrate interprets one flag group. Returns (nil, nil) when no API key is
// configured.
func (n *Narrator) Narrate(ctx context.Context, req ports.NarrativeRequest) (*ports.Narrative, error) {
	if !n.enabled {
		return nil, nil
	}
	if len(req.Flags) == 0 {
		return nil, nil
	}

	prompt := fmt.Sprintf(diagnosticPromptTemplate,
		req.Contract.Specialty,
		req.Contract.Name,
		req.Contract.ContractType,
		req.Contract.LOB,
		req.Contract.PerformancePeriod,
		int(req.Contract.AttributedMembers),
		req.GroupLabel,
		formatFlags(req),
		req.MetricsContext,
	)

	payload, err := n.client.GetJsonResponse(ctx, prompt, DiagnosticSystemPrompt)
	if err != nil {
		return nil, errors.Wrapf(errors.ExternalServiceError("openai", err),
			"narrative generation failed for %q", req.GroupLabel)
	}

	flagIDs := make([]string, 0, len(req.Flags))
	for _, f := range req.Flags {
		flagIDs = append(flagIDs, f.ID)
	}
	return &ports.Narrative{
		GroupLabel:               req.GroupLabel,
		DiagnosisSummary:         payload.DiagnosisSummary,
		ProbableCauses:           payload.ProbableCauses,
		QuestionsForProvider:     payload.QuestionsForProvider,
		RecommendedInterventions: payload.RecommendedInterventions,
		ContractImplications:     payload.ContractImplications,
		FlagsAddressed:           flagIDs,
	}, nil
}

func formatFlags(req ports.NarrativeRequest) string {
	var b strings.Builder
	for i, f := range req.Flags {
		fmt.Fprintf(&b, "Flag %d:\n", i+1)
		fmt.Fprintf(&b, "  Severity: %s\n", f.Severity)
		fmt.Fprintf(&b, "  Metric: %s\n", f.Metric)
		fmt.Fprintf(&b, "  Actual Value: %s\n", f.Observed)
		fmt.Fprintf(&b, "  Expected Value: %s\n", f.Expected)
		fmt.Fprintf(&b, "  Description: %s\n", f.Description)
		fmt.Fprintf(&b, "  Detail: %s\n\n", f.Detail)
	}
	return b.String()
}
