package validation

import (
	"fmt"

	"vbcaudit/domain/flags"
	"vbcaudit/internal"
)

// guard runs one checker stage and converts a panic (division by zero on
// integer math, slice misuse, a bad reference entry) into a single RED
// flag instead of aborting the sibling stages.
func guard(stage string, category flags.Category, contractID string, fn func() []flags.Flag) (out []flags.Flag) {
	defer func() {
		if r := recover(); r != nil {
			internal.DefaultLogger.Error("[Pipeline] stage %s failed: %v", stage, r)
			out = []flags.Flag{{
				Severity: flags.Red, Category: category,
				Metric:      stage,
				Observed:    fmt.Sprintf("computation failed: %v", r),
				Expected:    "stage completes without error",
				ContractID:  contractID,
				Description: fmt.Sprintf("The %s stage failed with a computation error and was skipped", stage),
				Detail: fmt.Sprintf("Error: %v. The remaining stages continued to run; findings from this "+
					"stage are absent from the report.", r),
			}}
		}
	}()
	return fn()
}
