package conformance

import (
	"math"

	"github.com/carbonex/conformoor/pkg/store"
)

// Metrics is the aggregate verdict computed over a run's result list.
type Metrics struct {
	Status            RunStatus
	PassingPercentage int
	FailedMandatory   []string
}

// ComputeMetrics derives the run-level verdict from the full current result
// list. Pure function: it may be called repeatedly as results accumulate and
// always yields the same output for the same input.
//
// Only mandatory cases count. A mandatory result with any status other than
// SUCCESS counts as failing, deliberately including PENDING: an outstanding
// asynchronous case holds the run at FAIL until it resolves.
func ComputeMetrics(results []store.TestCaseResult) Metrics {
	var (
		mandatory  int
		failed     int
		failedKeys []string
	)

	for i := range results {
		if !results[i].Mandatory {
			continue
		}

		mandatory++

		if results[i].Status != string(StatusSuccess) {
			failed++
			failedKeys = append(failedKeys, results[i].CaseKey)
		}
	}

	percentage := 0
	if mandatory > 0 {
		percentage = int(math.Round(100 * float64(mandatory-failed) / float64(mandatory)))
	}

	status := RunStatusPass
	if failed > 0 {
		status = RunStatusFail
	}

	return Metrics{
		Status:            status,
		PassingPercentage: percentage,
		FailedMandatory:   failedKeys,
	}
}
