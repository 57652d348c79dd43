package validation

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"vbcaudit/domain/flags"
	"vbcaudit/domain/perf"
	"vbcaudit/domain/refdata"
	"vbcaudit/domain/tabular"
	"vbcaudit/internal"
)

// ContractInput is everything the pipeline needs to validate one contract:
// the raw tables, the contract terms, and the specialty's reference
// ranges. The drug table is oncology-only and may be nil.
type ContractInput struct {
	Contract refdata.Contract
	Ranges   refdata.RangeSet
	Episodes *tabular.Table
	Quality  *tabular.Table
	Drugs    *tabular.Table
}

// ContractResult is the sealed outcome of validating one contract.
type ContractResult struct {
	Contract       refdata.Contract
	Flags          []flags.Flag
	Tally          flags.Tally
	Normalizations []Normalization
	Episodes       []perf.EpisodeRow
	Quality        []perf.QualityRow
	Drugs          []perf.DrugRow
}

// RunResult is the outcome of a full engine run across contracts.
type RunResult struct {
	RunID       string
	GeneratedAt time.Time
	Contracts   []ContractResult
	Tally       flags.Tally
}

// AllFlags returns every flag across contracts in pipeline order.
func (r RunResult) AllFlags() []flags.Flag {
	var out []flags.Flag
	for _, c := range r.Contracts {
		out = append(out, c.Flags...)
	}
	return out
}

// Pipeline runs the checkers in their fixed declared order: schema, then
// arithmetic, range, cross-metric, and the specialty pack. Later stages
// assume the schema stage's type-normalized tables. Flag identifiers are
// assigned once at finalization, in collection order, which keeps runs on
// identical input byte-identical.
type Pipeline struct {
	logger *internal.Logger
	seq    *flags.Sequencer
}

func NewPipeline(logger *internal.Logger) *Pipeline {
	if logger == nil {
		logger = internal.DefaultLogger
	}
	return &Pipeline{logger: logger, seq: flags.NewSequencer()}
}

// Run validates each contract in order and seals the results.
func (p *Pipeline) Run(inputs []ContractInput) RunResult {
	res := RunResult{
		RunID:       uuid.NewString(),
		GeneratedAt: time.Now(),
	}
	for _, in := range inputs {
		p.logger.Info("[Pipeline] validating contract %s (%s)", in.Contract.ID, in.Contract.Specialty)
		cr := p.runContract(in)
		p.logger.Info("[Pipeline] contract %s: %d flags (RED: %d, YELLOW: %d, GREEN: %d)",
			in.Contract.ID, cr.Tally.Total(), cr.Tally.Red, cr.Tally.Yellow, cr.Tally.Green)
		res.Contracts = append(res.Contracts, cr)
	}
	res.Tally = flags.Count(res.AllFlags())
	return res
}

// runState is the working set threaded through the stages of one contract.
type runState struct {
	in    ContractInput
	flags []flags.Flag
	gaps  []string

	episodes []perf.EpisodeRow
	quality  []perf.QualityRow
	drugs    []perf.DrugRow

	normalizations []Normalization
	unusableRates  map[string]bool
	riskNotes      map[string]RiskNote
	compoundDrugs  map[string]bool
	acpRootCause   *ACPRootCause
}

// stage is one dispatch table entry. Applies restricts a stage to a
// specialty; empty means both.
type stage struct {
	Name     string
	Category flags.Category
	Applies  string
	Run      func(*runState) []flags.Flag
}

// stages is the fixed pipeline dispatch table.
var stages = []stage{
	{"schema_check", flags.CategorySchema, "", (*runState).schemaStage},
	{"arithmetic_check", flags.CategoryArith, "", (*runState).arithmeticStage},
	{"range_check", flags.CategoryRange, "", (*runState).rangeStage},
	{"cross_metric_check", flags.CategoryCross, "", (*runState).crossMetricStage},
	{"msk_rules", flags.CategoryMSK, refdata.SpecialtyMSK, (*runState).mskStage},
	{"onc_rules", flags.CategoryONC, refdata.SpecialtyOncology, (*runState).oncologyStage},
}

func (p *Pipeline) runContract(in ContractInput) ContractResult {
	st := &runState{
		in:            in,
		unusableRates: make(map[string]bool),
		riskNotes:     make(map[string]RiskNote),
		compoundDrugs: make(map[string]bool),
	}

	for _, s := range stages {
		if s.Applies != "" && s.Applies != in.Contract.Specialty {
			continue
		}
		st.flags = append(st.flags, guard(s.Name, s.Category, in.Contract.ID, func() []flags.Flag {
			return s.Run(st)
		})...)
	}

	p.finalize(st)

	return ContractResult{
		Contract:       in.Contract,
		Flags:          st.flags,
		Tally:          flags.Count(st.flags),
		Normalizations: st.normalizations,
		Episodes:       st.episodes,
		Quality:        st.quality,
		Drugs:          st.drugs,
	}
}

func (st *runState) schemaStage() []flags.Flag {
	var out []flags.Flag

	episodeSchema := MSKEpisodesSchema
	qualityDataset := DatasetMSKQuality
	if st.in.Contract.Specialty == refdata.SpecialtyOncology {
		episodeSchema = ONCEpisodesSchema
		qualityDataset = DatasetONCQuality
	}

	if st.in.Episodes != nil {
		res := CheckSchema(st.in.Episodes, episodeSchema, st.in.Contract)
		out = append(out, res.Flags...)
		st.normalizations = append(st.normalizations, res.Normalizations...)
		st.episodes = perf.BindEpisodes(res.Table)
	} else {
		st.gaps = append(st.gaps, fmt.Sprintf("dataset %s not provided", episodeSchema.Dataset))
	}

	if st.in.Quality != nil {
		res := CheckSchema(st.in.Quality, QualitySchema(qualityDataset), st.in.Contract)
		out = append(out, res.Flags...)
		st.normalizations = append(st.normalizations, res.Normalizations...)
		st.quality = perf.BindQuality(res.Table)
	} else {
		st.gaps = append(st.gaps, fmt.Sprintf("dataset %s not provided", qualityDataset))
	}

	if st.in.Contract.Specialty == refdata.SpecialtyOncology {
		if st.in.Drugs != nil {
			res := CheckSchema(st.in.Drugs, ONCDrugDetailSchema, st.in.Contract)
			out = append(out, res.Flags...)
			st.normalizations = append(st.normalizations, res.Normalizations...)
			st.drugs = perf.BindDrugs(res.Table)
		} else {
			st.gaps = append(st.gaps, fmt.Sprintf("dataset %s not provided", DatasetONCDrugDetail))
		}
	}

	return out
}

func (st *runState) arithmeticStage() []flags.Flag {
	res := CheckArithmetic(st.episodes, st.quality, st.in.Contract)
	st.unusableRates = res.UnusableRates
	return res.Flags
}

func (st *runState) rangeStage() []flags.Flag {
	res := CheckRanges(st.episodes, st.in.Ranges, st.in.Contract)
	st.gaps = append(st.gaps, res.Gaps...)
	return res.Flags
}

func (st *runState) crossMetricStage() []flags.Flag {
	res := CheckCrossMetrics(st.episodes, st.quality, st.drugs, st.unusableRates, st.in.Ranges, st.in.Contract)
	st.riskNotes = res.RiskNotes
	st.compoundDrugs = res.CompoundDrugs
	st.gaps = append(st.gaps, res.Gaps...)
	return res.Flags
}

func (st *runState) mskStage() []flags.Flag {
	return CheckMSKRules(st.episodes, st.riskNotes, st.in.Contract)
}

func (st *runState) oncologyStage() []flags.Flag {
	res := CheckOncologyRules(st.episodes, st.quality, st.drugs, st.unusableRates, st.in.Ranges, st.in.Contract)
	st.acpRootCause = res.ACPRootCause
	return res.Flags
}

// finalize applies the cross-flag tie-break policy, appends configuration
// gap notices, and assigns identifiers. After this the flag list is
// sealed.
func (p *Pipeline) finalize(st *runState) {
	p.elevateACPRootCause(st)
	p.subordinateCompoundedFlags(st)
	p.subordinateCrossPathwayFlags(st)

	for _, gap := range dedupe(st.gaps) {
		st.flags = append(st.flags, flags.Flag{
			Severity: flags.Yellow, Category: flags.CategoryConfig,
			Metric:      "reference_configuration_gap",
			Observed:    gap,
			Expected:    "a reference entry for every metric the data reports",
			ContractID:  st.in.Contract.ID,
			Description: fmt.Sprintf("Reference configuration gap: %s", gap),
			Detail:      "The affected checks were skipped for the rows involved. Add the missing reference entry to restore coverage.",
		})
	}

	p.seq.Assign(st.flags)
}

// elevateACPRootCause rewrites the systemic EOL flag to name advance care
// planning as root cause rather than symptom.
func (p *Pipeline) elevateACPRootCause(st *runState) {
	if st.acpRootCause == nil {
		return
	}
	for i := range st.flags {
		f := &st.flags[i]
		if f.Metric != "eol_systemic_failure" {
			continue
		}
		f.Metric = "acp_root_cause"
		f.Observed = fmt.Sprintf("ACP rate %.1f%%, %d/5 EOL metrics failing", st.acpRootCause.ACPRate*100, st.acpRootCause.EOLFailures)
		f.Expected = "ACP >50% to support EOL quality metrics"
		f.Description = fmt.Sprintf("Advance Care Planning (%.1f%%) is the root cause of systemic EOL metric failure — %d/5 EOL measures failing",
			st.acpRootCause.ACPRate*100, st.acpRootCause.EOLFailures)
		f.Detail = fmt.Sprintf("The Advance Care Planning documentation rate of %.1f%% (target >65%%) is below "+
			"the 50%% threshold that predicts EOL metric failures. Without documented goals-of-care "+
			"conversations, patients default to aggressive end-of-life treatment. This is both the "+
			"highest-quality-impact and highest-cost issue: improving ACP is the single intervention that "+
			"addresses all %d failing EOL measures simultaneously. This is a process/workflow fix, not a "+
			"clinical quality problem.", st.acpRootCause.ACPRate*100, st.acpRootCause.EOLFailures)
		if f.Evidence == nil {
			f.Evidence = map[string]any{}
		}
		f.Evidence["acp_rate"] = st.acpRootCause.ACPRate
		f.Evidence["eol_failures"] = st.acpRootCause.EOLFailures
		return
	}
}

// subordinateCompoundedFlags marks the single-concern biosimilar and
// site-of-service flags as subordinate when the compounding rule already
// covers the same drug with a combined flag.
func (p *Pipeline) subordinateCompoundedFlags(st *runState) {
	if len(st.compoundDrugs) == 0 {
		return
	}
	for i := range st.flags {
		f := &st.flags[i]
		if f.Metric != "biosimilar_savings_opportunity" && f.Metric != "site_of_service_opportunity" {
			continue
		}
		if name, ok := f.Evidence["drug_name"].(string); ok && st.compoundDrugs[name] {
			f.Subordinate = true
		} else if name, ok := f.Evidence["brand_drug"].(string); ok && st.compoundDrugs[name] {
			f.Subordinate = true
		}
	}
}

// subordinateCrossPathwayFlags keeps the oncology pack's pathway flag
// (which carries the savings figure) primary over the correlator's flag
// for the same episode label.
func (p *Pipeline) subordinateCrossPathwayFlags(st *runState) {
	packLabels := make(map[string]bool)
	for _, f := range st.flags {
		if f.Category == flags.CategoryONC && f.Metric == "pathway_cost_correlation" {
			packLabels[f.EpisodeType] = true
		}
	}
	if len(packLabels) == 0 {
		return
	}
	for i := range st.flags {
		f := &st.flags[i]
		if f.Category == flags.CategoryCross && f.Metric == "pathway_cost_correlation" && packLabels[f.EpisodeType] {
			f.Subordinate = true
		}
	}
}
