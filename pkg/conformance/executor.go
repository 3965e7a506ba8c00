package conformance

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"slices"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/alessio/shellescape"
	"github.com/carbonex/conformoor/pkg/schema"
	"github.com/carbonex/conformoor/pkg/store"
	"github.com/sirupsen/logrus"
)

// placeholderToken is used in reproduction commands instead of the real
// access token, which must never land in a stored record.
const placeholderToken = "$ACCESS_TOKEN"

// Executor runs one declarative test case against the target system and
// produces exactly one result. It never writes to storage.
type Executor struct {
	log     logrus.FieldLogger
	schemas *schema.Registry
	client  *http.Client
}

// NewExecutor creates an executor with a bounded per-request timeout.
func NewExecutor(
	log logrus.FieldLogger,
	schemas *schema.Registry,
	timeout time.Duration,
) *Executor {
	return &Executor{
		log:     log.WithField("component", "executor"),
		schemas: schemas,
		client:  &http.Client{Timeout: timeout},
	}
}

// Execute runs tc against baseURL and returns its result. Callback-driven
// cases return PENDING immediately without touching the network; every other
// failure mode is converted into a FAILURE result, never an error.
func (e *Executor) Execute(
	ctx context.Context,
	baseURL, token string,
	version Version,
	tc *TestCase,
) store.TestCaseResult {
	result := store.TestCaseResult{
		CaseKey:   tc.Key,
		Name:      tc.Name,
		Mandatory: tc.MandatoryFor(version),
		DocURL:    tc.DocURL,
	}

	url := tc.URL
	if url == "" {
		url = strings.TrimRight(baseURL, "/") + tc.Path
	}

	result.Curl = buildCurl(tc, url)

	if tc.CallbackDriven {
		result.Status = string(StatusPending)

		return result
	}

	resp, body, err := e.issue(ctx, url, token, tc)
	if err != nil {
		// A network failure or timeout is the expected outcome for
		// expect-HTTP-error cases.
		if tc.ExpectHTTPError {
			result.Status = string(StatusSuccess)

			return result
		}

		result.Status = string(StatusFailure)
		result.ErrorMessage = err.Error()

		return result
	}

	e.log.WithFields(logrus.Fields{
		"case":   tc.Key,
		"status": resp.StatusCode,
	}).Debug("Test case request completed")

	if tc.ExpectHTTPError {
		if resp.StatusCode < 200 || resp.StatusCode > 299 {
			result.Status = string(StatusSuccess)

			return result
		}

		result.Status = string(StatusFailure)
		result.ErrorMessage = fmt.Sprintf(
			"expected an HTTP error, got status %d", resp.StatusCode,
		)
		result.RawResponse = string(body)

		return result
	}

	if len(tc.ExpectedStatusCodes) > 0 &&
		!slices.Contains(tc.ExpectedStatusCodes, resp.StatusCode) {
		result.Status = string(StatusFailure)
		result.ErrorMessage = fmt.Sprintf(
			"expected status %s, got %d",
			formatStatusCodes(tc.ExpectedStatusCodes), resp.StatusCode,
		)
		result.RawResponse = string(body)

		return result
	}

	var parsed any

	if len(body) > 0 {
		if err := json.Unmarshal(body, &parsed); err != nil {
			result.Status = string(StatusFailure)
			result.ErrorMessage = fmt.Sprintf("parsing response body: %v", err)
			result.RawResponse = string(body)

			return result
		}
	}

	if tc.SchemaName != "" {
		if err := e.schemas.Validate(tc.SchemaName, parsed); err != nil {
			result.Status = string(StatusFailure)
			result.ErrorMessage = fmt.Sprintf("schema validation failed: %v", err)
			result.RawResponse = string(body)

			return result
		}
	}

	if tc.Condition != nil {
		var msgs Messages

		if !tc.Condition(parsed, &msgs) {
			parts := msgs.All()
			if tc.ErrorMessage != "" {
				parts = append(parts, tc.ErrorMessage)
			}

			result.Status = string(StatusFailure)
			result.ErrorMessage = strings.Join(parts, ", ")
			result.RawResponse = string(body)

			return result
		}
	}

	result.Status = string(StatusSuccess)

	return result
}

// issue performs the HTTP call for a test case and reads the full body.
func (e *Executor) issue(
	ctx context.Context,
	url, token string,
	tc *TestCase,
) (*http.Response, []byte, error) {
	var reqBody io.Reader
	if tc.Body != "" {
		reqBody = strings.NewReader(tc.Body)
	}

	req, err := http.NewRequestWithContext(ctx, tc.Method, url, reqBody)
	if err != nil {
		return nil, nil, fmt.Errorf("creating request: %w", err)
	}

	// Case-declared headers win over the defaults, so a case can probe
	// with a broken Authorization header.
	req.Header.Set("Authorization", "Bearer "+token)

	if tc.Body != "" {
		req.Header.Set("Content-Type", "application/json")
	}

	for k, v := range tc.Headers {
		req.Header.Set(k, v)
	}

	resp, err := e.client.Do(req)
	if err != nil {
		return nil, nil, fmt.Errorf("executing request: %w", err)
	}

	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, nil, fmt.Errorf("reading response: %w", err)
	}

	return resp, body, nil
}

// buildCurl renders an equivalent curl invocation for audit records. The
// real access token is replaced by a placeholder.
func buildCurl(tc *TestCase, url string) string {
	parts := []string{"curl", "-X", tc.Method, shellescape.Quote(url)}

	if _, ok := tc.Headers["Authorization"]; !ok {
		parts = append(parts, "-H",
			shellescape.Quote("Authorization: Bearer "+placeholderToken))
	}

	keys := make([]string, 0, len(tc.Headers))
	for k := range tc.Headers {
		keys = append(keys, k)
	}

	sort.Strings(keys)

	for _, k := range keys {
		parts = append(parts, "-H", shellescape.Quote(k+": "+tc.Headers[k]))
	}

	if tc.Body != "" {
		parts = append(parts, "-d", shellescape.Quote(tc.Body))
	}

	return strings.Join(parts, " ")
}

// formatStatusCodes renders an expected-status set for error messages.
func formatStatusCodes(codes []int) string {
	if len(codes) == 1 {
		return strconv.Itoa(codes[0])
	}

	rendered := make([]string, len(codes))
	for i, c := range codes {
		rendered[i] = strconv.Itoa(c)
	}

	return strings.Join(rendered, " or ")
}
