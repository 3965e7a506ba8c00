package conformance

import (
	"fmt"
	"strings"
)

// CorrelationID builds the request event id sent to the target for an
// asynchronous case: "<runId>-<classSuffix>". The target echoes it back as
// requestEventId in its callback.
func CorrelationID(runID string, class EventClass) string {
	return runID + "-" + string(class)
}

// RunIDFromCorrelation recovers the run id from a callback's requestEventId
// by stripping the trailing suffix segment. Run ids are UUIDs and contain
// the separator themselves, so only the final "-"-delimited segment is
// removed. Compatibility constraint: the concatenated format is what
// deployed targets echo back, so it cannot change unilaterally.
func RunIDFromCorrelation(id string) (string, error) {
	idx := strings.LastIndex(id, "-")
	if idx <= 0 {
		return "", fmt.Errorf("malformed request event id %q", id)
	}

	return id[:idx], nil
}
