package ai

// DiagnosticSystemPrompt frames the model as a payer-side analyst
// preparing material for a Joint Operating Committee review.
const DiagnosticSystemPrompt = `You are a senior analyst on a payer Provider Economics team reviewing a value-based care performance report. You provide concise, evidence-based diagnostic assessments of flagged issues in value-based care contracts. Your analysis should be actionable for a Joint Operating Committee (JOC) meeting. Respond with valid JSON.`

// diagnosticPromptTemplate is the per-group user prompt. It carries the
// contract header, the formatted flags for one episode group, and the
// matching raw metrics, then pins the exact response shape.
const diagnosticPromptTemplate = `You are reviewing a VBC performance report for a %s specialty contract.

Contract: %s
Type: %s
LOB: %s
Performance Period: %s
Attribution: %d members

The automated validation system has flagged the following issues for %s:

%s

Additional context — full metrics for this episode type:
%s

Respond in JSON with this exact structure:
{
  "diagnosis_summary": "2-3 sentence summary of the most likely root cause",
  "probable_causes": [
    {
      "cause": "description",
      "likelihood": "high/medium/low",
      "evidence": "which specific metrics support this"
    }
  ],
  "questions_for_provider": [
    "Specific question to ask at JOC meeting"
  ],
  "recommended_interventions": [
    {
      "intervention": "description",
      "timeframe": "immediate/short-term/contract-renewal",
      "expected_impact": "estimated financial or quality impact"
    }
  ],
  "contract_implications": "How this affects shared savings/losses and what contract amendments to consider"
}`
