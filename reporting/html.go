// Package reporting renders the validation run into a standalone HTML
// report for joint operating committee review.
package reporting

import (
	"fmt"
	"html/template"
	"os"
	"path/filepath"

	"github.com/gomarkdown/markdown"
	mdhtml "github.com/gomarkdown/markdown/html"
	"github.com/gomarkdown/markdown/parser"

	"vbcaudit/domain/flags"
	"vbcaudit/domain/perf"
	"vbcaudit/internal"
	"vbcaudit/internal/diagnosis"
	"vbcaudit/internal/errors"
	"vbcaudit/internal/profiling"
	"vbcaudit/internal/validation"
)

// FinancialSummary aggregates episode-level spend for one contract.
type FinancialSummary struct {
	TotalCost     float64
	TotalTarget   float64
	Variance      float64
	VariancePct   float64
	SharedAmount  float64
	SharedIsGains bool
}

// GateStatus is the contract's quality-gate outcome.
type GateStatus struct {
	Composite float64
	Minimum   float64
	Passing   bool
	Known     bool
}

// ContractSection is one contract's slice of the report.
type ContractSection struct {
	Result    validation.ContractResult
	Flags     []flags.Flag
	Financial FinancialSummary
	Gate      GateStatus
	Profiles  []profiling.ColumnProfile
}

// ReportData is everything the template consumes.
type ReportData struct {
	Run        validation.RunResult
	Sections   []ContractSection
	Narratives []renderedNarrative
	Notices    []string
}

type renderedNarrative struct {
	GroupLabel   string
	Summary      template.HTML
	Causes       []renderedCause
	Questions    []string
	Plays        []renderedPlay
	Implications template.HTML
	Addressed    []string
}

type renderedCause struct {
	Cause      string
	Likelihood string
	Evidence   string
}

type renderedPlay struct {
	Intervention   string
	Timeframe      string
	ExpectedImpact string
}

// Renderer writes the HTML report.
type Renderer struct {
	logger *internal.Logger
}

func NewRenderer(logger *internal.Logger) *Renderer {
	if logger == nil {
		logger = internal.DefaultLogger
	}
	return &Renderer{logger: logger}
}

// Render assembles the report and writes it to outputPath, creating the
// parent directory when needed. Profiles are keyed by contract ID.
func (r *Renderer) Render(run validation.RunResult, diag diagnosis.Result, profiles map[string][]profiling.ColumnProfile, outputPath string) error {
	data := ReportData{Run: run, Notices: diag.Notices}
	for _, cr := range run.Contracts {
		data.Sections = append(data.Sections, ContractSection{
			Result:    cr,
			Flags:     flags.SortBySeverity(cr.Flags),
			Financial: summarizeFinancials(cr),
			Gate:      gateStatus(cr),
			Profiles:  profiles[cr.Contract.ID],
		})
	}
	for _, n := range diag.Narratives {
		rn := renderedNarrative{
			GroupLabel:   n.GroupLabel,
			Summary:      renderMarkdown(n.DiagnosisSummary),
			Questions:    n.QuestionsForProvider,
			Implications: renderMarkdown(n.ContractImplications),
			Addressed:    n.FlagsAddressed,
		}
		for _, c := range n.ProbableCauses {
			rn.Causes = append(rn.Causes, renderedCause{Cause: c.Cause, Likelihood: c.Likelihood, Evidence: c.Evidence})
		}
		for _, p := range n.RecommendedInterventions {
			rn.Plays = append(rn.Plays, renderedPlay{Intervention: p.Intervention, Timeframe: p.Timeframe, ExpectedImpact: p.ExpectedImpact})
		}
		data.Narratives = append(data.Narratives, rn)
	}

	if dir := filepath.Dir(outputPath); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return errors.Wrapf(errors.New(errors.CodeInternalError, "report directory create failed"), "%s: %v", dir, err)
		}
	}
	f, err := os.Create(outputPath)
	if err != nil {
		return errors.Wrapf(errors.New(errors.CodeInternalError, "report file create failed"), "%s: %v", outputPath, err)
	}
	defer f.Close()
	if err := reportTemplate.Execute(f, data); err != nil {
		return errors.Wrapf(errors.New(errors.CodeInternalError, "report render failed"), "%v", err)
	}
	r.logger.Info("[Report] wrote %s (%d flags, %d narratives)", outputPath, run.Tally.Total(), len(data.Narratives))
	return nil
}

func summarizeFinancials(cr validation.ContractResult) FinancialSummary {
	var fs FinancialSummary
	for _, e := range cr.Episodes {
		if perf.Has(e.TotalCost) {
			fs.TotalCost += e.TotalCost
		}
		if perf.Has(e.TotalTarget) {
			fs.TotalTarget += e.TotalTarget
		}
	}
	fs.Variance = fs.TotalCost - fs.TotalTarget
	if fs.TotalTarget != 0 {
		fs.VariancePct = fs.Variance / fs.TotalTarget
	}
	if fs.Variance < 0 {
		fs.SharedIsGains = true
		fs.SharedAmount = -fs.Variance * cr.Contract.SharingRateSavings
	} else {
		fs.SharedAmount = fs.Variance * cr.Contract.SharingRateLosses
	}
	return fs
}

func gateStatus(cr validation.ContractResult) GateStatus {
	for _, q := range cr.Quality {
		if q.Composite() && perf.Has(q.PointsEarned) {
			return GateStatus{
				Composite: q.PointsEarned,
				Minimum:   cr.Contract.QualityGateMinimum,
				Passing:   q.PointsEarned >= cr.Contract.QualityGateMinimum,
				Known:     true,
			}
		}
	}
	return GateStatus{Minimum: cr.Contract.QualityGateMinimum}
}

// renderMarkdown converts narrative text to HTML. The model is prompted
// for plain prose but occasionally emits markdown emphasis and lists.
func renderMarkdown(text string) template.HTML {
	if text == "" {
		return ""
	}
	p := parser.NewWithExtensions(parser.CommonExtensions)
	renderer := mdhtml.NewRenderer(mdhtml.RendererOptions{Flags: mdhtml.CommonFlags})
	return template.HTML(markdown.ToHTML([]byte(text), p, renderer))
}

func dollars(v float64) string {
	sign := ""
	if v < 0 {
		sign = "-"
		v = -v
	}
	s := fmt.Sprintf("%.0f", v)
	for i := len(s) - 3; i > 0; i -= 3 {
		s = s[:i] + "," + s[i:]
	}
	return sign + "$" + s
}

var reportTemplate = template.Must(template.New("report").Funcs(template.FuncMap{
	"dollars": dollars,
	"pct":     func(v float64) string { return fmt.Sprintf("%.1f%%", v*100) },
	"num":     func(v float64) string { return fmt.Sprintf("%.2f", v) },
	"sevClass": func(s string) string {
		switch s {
		case "RED":
			return "sev-red"
		case "YELLOW":
			return "sev-yellow"
		}
		return "sev-green"
	},
}).Parse(reportHTML))

const reportHTML = `<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="utf-8">
<title>VBC Contract Performance Validation Report</title>
<style>
body { font-family: -apple-system, "Segoe UI", Roboto, sans-serif; margin: 2rem auto; max-width: 72rem; color: #1a202c; }
h1 { border-bottom: 3px solid #2b6cb0; padding-bottom: .5rem; }
h2 { color: #2b6cb0; margin-top: 2.5rem; }
h3 { margin-top: 1.5rem; }
table { border-collapse: collapse; width: 100%; margin: 1rem 0; font-size: .9rem; }
th, td { border: 1px solid #cbd5e0; padding: .4rem .6rem; text-align: left; vertical-align: top; }
th { background: #ebf4ff; }
.sev-red { background: #fed7d7; font-weight: 600; }
.sev-yellow { background: #fefcbf; }
.sev-green { background: #c6f6d5; }
.subordinate { color: #718096; font-style: italic; }
.tally { display: flex; gap: 1rem; }
.tally div { padding: .8rem 1.4rem; border-radius: .4rem; font-size: 1.2rem; font-weight: 700; }
.notice { background: #fffaf0; border-left: 4px solid #dd6b20; padding: .5rem .8rem; margin: .4rem 0; }
.narrative { background: #f7fafc; border: 1px solid #e2e8f0; border-radius: .4rem; padding: .2rem 1rem 1rem; margin: 1rem 0; }
.meta { color: #718096; font-size: .85rem; }
</style>
</head>
<body>
<h1>VBC Contract Performance Validation Report</h1>
<p class="meta">Run {{.Run.RunID}} &middot; generated {{.Run.GeneratedAt.Format "2006-01-02 15:04 MST"}}</p>

<h2>Executive Summary</h2>
<div class="tally">
  <div class="sev-red">{{.Run.Tally.Red}} RED</div>
  <div class="sev-yellow">{{.Run.Tally.Yellow}} YELLOW</div>
  <div class="sev-green">{{.Run.Tally.Green}} GREEN</div>
</div>

{{range .Sections}}
<h2>{{.Result.Contract.Name}} ({{.Result.Contract.ID}})</h2>
<p class="meta">{{.Result.Contract.Specialty}} &middot; {{.Result.Contract.ContractType}} &middot; {{.Result.Contract.LOB}} &middot; period {{.Result.Contract.PerformancePeriod}}</p>

<h3>Financial Summary</h3>
<table>
<tr><th>Total Episode Cost</th><th>Total Target</th><th>Variance</th><th>{{if .Financial.SharedIsGains}}Shared Savings (provider){{else}}Shared Losses (provider){{end}}</th></tr>
<tr>
  <td>{{dollars .Financial.TotalCost}}</td>
  <td>{{dollars .Financial.TotalTarget}}</td>
  <td>{{dollars .Financial.Variance}} ({{pct .Financial.VariancePct}})</td>
  <td>{{dollars .Financial.SharedAmount}}</td>
</tr>
</table>

<h3>Quality Gate</h3>
{{if .Gate.Known}}
<p>Composite score <strong>{{num .Gate.Composite}}</strong> vs minimum <strong>{{num .Gate.Minimum}}</strong> &mdash;
{{if .Gate.Passing}}<span class="sev-green">PASSING</span>{{else}}<span class="sev-red">FAILING</span>{{end}}</p>
{{else}}
<p class="meta">Composite score not present in submitted quality data.</p>
{{end}}

<h3>Flags ({{len .Flags}})</h3>
<table>
<tr><th>ID</th><th>Severity</th><th>Metric</th><th>Episode Type</th><th>Observed</th><th>Expected</th><th>Description</th></tr>
{{range .Flags}}
<tr{{if .Subordinate}} class="subordinate"{{end}}>
  <td>{{.ID}}</td>
  <td class="{{sevClass .SeverityLabel}}">{{.SeverityLabel}}</td>
  <td>{{.Metric}}</td>
  <td>{{.EpisodeType}}</td>
  <td>{{.Observed}}</td>
  <td>{{.Expected}}</td>
  <td>{{.Description}}{{if .Detail}}<br><span class="meta">{{.Detail}}</span>{{end}}</td>
</tr>
{{end}}
</table>

{{if .Result.Normalizations}}
<h3>Data Normalizations Applied</h3>
<table>
<tr><th>Column</th><th>Scale</th><th>Note</th></tr>
{{range .Result.Normalizations}}
<tr><td>{{.Column}}</td><td>{{num .Scale}}</td><td>{{.Note}}</td></tr>
{{end}}
</table>
{{end}}

{{if .Profiles}}
<h3>Column Profiles</h3>
<table>
<tr><th>Column</th><th>N</th><th>Nulls</th><th>Mean</th><th>Median</th><th>StdDev</th><th>Min</th><th>Max</th><th>Skew</th><th>Kurtosis</th><th>Normality p</th></tr>
{{range .Profiles}}
<tr>
  <td>{{.Column}}</td><td>{{.Count}}</td><td>{{.Nulls}}</td>
  <td>{{num .Mean}}</td><td>{{num .Median}}</td><td>{{num .StdDev}}</td>
  <td>{{num .Min}}</td><td>{{num .Max}}</td>
  <td>{{num .Skewness}}</td><td>{{num .Kurtosis}}</td><td>{{num .NormalityP}}</td>
</tr>
{{end}}
</table>
{{end}}
{{end}}

{{if .Narratives}}
<h2>Diagnostic Narratives</h2>
{{range .Narratives}}
<div class="narrative">
<h3>{{.GroupLabel}}</h3>
<div>{{.Summary}}</div>
{{if .Causes}}
<h4>Probable Causes</h4>
<table>
<tr><th>Cause</th><th>Likelihood</th><th>Evidence</th></tr>
{{range .Causes}}<tr><td>{{.Cause}}</td><td>{{.Likelihood}}</td><td>{{.Evidence}}</td></tr>{{end}}
</table>
{{end}}
{{if .Questions}}
<h4>Questions for Provider</h4>
<ul>{{range .Questions}}<li>{{.}}</li>{{end}}</ul>
{{end}}
{{if .Plays}}
<h4>Recommended Interventions</h4>
<table>
<tr><th>Intervention</th><th>Timeframe</th><th>Expected Impact</th></tr>
{{range .Plays}}<tr><td>{{.Intervention}}</td><td>{{.Timeframe}}</td><td>{{.ExpectedImpact}}</td></tr>{{end}}
</table>
{{end}}
{{if .Implications}}<h4>Contract Implications</h4><div>{{.Implications}}</div>{{end}}
{{if .Addressed}}<p class="meta">Flags addressed: {{range $i, $id := .Addressed}}{{if $i}}, {{end}}{{$id}}{{end}}</p>{{end}}
</div>
{{end}}
{{end}}

{{if .Notices}}
<h2>Run Notices</h2>
{{range .Notices}}<div class="notice">{{.}}</div>{{end}}
{{end}}

</body>
</html>
`
