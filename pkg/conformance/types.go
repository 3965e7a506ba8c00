package conformance

import (
	"slices"
	"strings"
)

// Status is the outcome of a single test case.
type Status string

// Test case statuses.
const (
	StatusPending Status = "PENDING"
	StatusSuccess Status = "SUCCESS"
	StatusFailure Status = "FAILURE"
)

// RunStatus is the aggregate outcome of a test run.
type RunStatus string

// Run statuses.
const (
	RunStatusPending RunStatus = "PENDING"
	RunStatusPass    RunStatus = "PASS"
	RunStatusFail    RunStatus = "FAIL"
)

// Messages accumulates human-readable failure detail from a case condition.
type Messages struct {
	msgs []string
}

// Add appends one failure message.
func (m *Messages) Add(msg string) {
	m.msgs = append(m.msgs, msg)
}

// All returns the accumulated messages in insertion order.
func (m *Messages) All() []string {
	return m.msgs
}

// Join returns the accumulated messages joined with sep.
func (m *Messages) Join(sep string) string {
	return strings.Join(m.msgs, sep)
}

// Condition is a custom predicate over the parsed response body. It returns
// false to fail the case, adding detail to msgs.
type Condition func(body any, msgs *Messages) bool

// TestCase is a declarative description of one conformance check.
type TestCase struct {
	// Key is the stable test-case identifier, unique within a run.
	Key  string
	Name string

	Method string

	// Path is joined with the target base URL. URL, when set, overrides
	// Path entirely.
	Path string
	URL  string

	Headers map[string]string
	Body    string

	// ExpectedStatusCodes is the acceptable HTTP status set. Empty means
	// any status is acceptable.
	ExpectedStatusCodes []int

	// SchemaName names the registry schema the response body must satisfy.
	SchemaName string

	// Condition is an optional predicate over the parsed response body.
	// ErrorMessage is appended to the condition's messages on failure.
	Condition    Condition
	ErrorMessage string

	// ExpectHTTPError inverts the outcome: a network failure or non-2xx
	// status is success, a working response is failure.
	ExpectHTTPError bool

	// CallbackDriven marks a case whose outcome arrives via webhook; the
	// executor records it as PENDING without issuing a request.
	CallbackDriven bool

	// MandatoryVersions lists the spec versions for which this case counts
	// toward the run verdict. Nil means never mandatory.
	MandatoryVersions []Version

	DocURL string
}

// MandatoryFor reports whether the case counts toward the pass/fail verdict
// for the given spec version.
func (c *TestCase) MandatoryFor(v Version) bool {
	return slices.Contains(c.MandatoryVersions, v)
}
