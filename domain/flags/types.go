package flags

import (
	"fmt"
	"sort"
)

// Severity classifies a validation finding. The values are ordered so that
// a higher severity always compares greater: Green < Yellow < Red.
type Severity int

const (
	Green Severity = iota
	Yellow
	Red
)

func (s Severity) String() string {
	switch s {
	case Green:
		return "GREEN"
	case Yellow:
		return "YELLOW"
	case Red:
		return "RED"
	}
	return fmt.Sprintf("Severity(%d)", int(s))
}

// Category identifies which checker produced a flag. It is also the prefix
// of the flag's assigned identifier (e.g. "ARITH-004").
type Category string

const (
	CategorySchema Category = "SCHEMA"
	CategoryArith  Category = "ARITH"
	CategoryRange  Category = "RANGE"
	CategoryCross  Category = "CROSS"
	CategoryMSK    Category = "MSK"
	CategoryONC    Category = "ONC"
	CategoryConfig Category = "CONFIG"
)

// Flag is a single validation finding. Flags are created by checkers,
// collected and sealed by the pipeline, and read-only from then on.
type Flag struct {
	ID          string         `json:"flag_id"`
	Severity    Severity       `json:"-"`
	Category    Category       `json:"category"`
	Metric      string         `json:"metric_name"`
	Observed    string         `json:"metric_value"`
	Expected    string         `json:"expected_value"`
	EpisodeType string         `json:"episode_type"`
	ContractID  string         `json:"contract_id"`
	Description string         `json:"description"`
	Detail      string         `json:"detail"`
	Evidence    map[string]any `json:"related_metrics,omitempty"`

	// Subordinate marks a flag that is retained for audit but superseded by
	// a more specific/aggregated flag (e.g. individual EOL measure failures
	// under the systemic clustering flag).
	Subordinate bool `json:"subordinate,omitempty"`
}

// SeverityLabel exists for templates and JSON output.
func (f Flag) SeverityLabel() string { return f.Severity.String() }

// Tally is the severity count summary used by the executive section of the
// report.
type Tally struct {
	Red    int `json:"red"`
	Yellow int `json:"yellow"`
	Green  int `json:"green"`
}

func (t Tally) Total() int { return t.Red + t.Yellow + t.Green }

// Count tallies flags by severity.
func Count(fs []Flag) Tally {
	var t Tally
	for _, f := range fs {
		switch f.Severity {
		case Red:
			t.Red++
		case Yellow:
			t.Yellow++
		case Green:
			t.Green++
		}
	}
	return t
}

// Sequencer assigns stable identifiers of the form <CATEGORY>-NNN,
// sequential within each category. Identifiers are assigned once, in the
// final collection order of the run, which keeps output reproducible even
// if checkers were ever executed in parallel.
type Sequencer struct {
	counts map[Category]int
}

func NewSequencer() *Sequencer {
	return &Sequencer{counts: make(map[Category]int)}
}

// Assign sets IDs on the given flags in slice order.
func (s *Sequencer) Assign(fs []Flag) {
	for i := range fs {
		s.counts[fs[i].Category]++
		fs[i].ID = fmt.Sprintf("%s-%03d", fs[i].Category, s.counts[fs[i].Category])
	}
}

// SortBySeverity orders flags RED first, then YELLOW, then GREEN, keeping
// the original order within a severity. Used by the report renderer; the
// engine's own output order is pipeline order.
func SortBySeverity(fs []Flag) []Flag {
	out := make([]Flag, len(fs))
	copy(out, fs)
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Severity > out[j].Severity
	})
	return out
}
