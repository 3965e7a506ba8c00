package conformance

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/carbonex/conformoor/pkg/store"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// RunParams are the caller-supplied inputs for one conformance run.
type RunParams struct {
	BaseURL      string `json:"baseUrl"`
	AuthBaseURL  string `json:"authBaseUrl,omitempty"`
	ClientID     string `json:"clientId"`
	ClientSecret string `json:"clientSecret"`
	Version      string `json:"version"`
	CompanyName  string `json:"companyName,omitempty"`
	AdminEmail   string `json:"adminEmail,omitempty"`
	AdminName    string `json:"adminName,omitempty"`
}

// RunOutcome is returned to the caller after the synchronous portion of a
// run completes. Callback-driven cases may still be PENDING.
type RunOutcome struct {
	RunID             string                 `json:"testRunId"`
	Status            RunStatus              `json:"status"`
	PassingPercentage int                    `json:"passingPercentage"`
	Results           []store.TestCaseResult `json:"results"`
}

// Orchestrator coordinates a full conformance run: authentication,
// reference-data fetch, sequential case execution, persistence, and
// aggregate status computation. The result store is injected; the
// orchestrator holds no global state.
type Orchestrator struct {
	log      logrus.FieldLogger
	store    store.Store
	executor *Executor
	client   *http.Client
}

// NewOrchestrator creates an orchestrator using the given store and
// executor. The timeout bounds the run-level prerequisite calls (token
// fetch, reference footprint fetch).
func NewOrchestrator(
	log logrus.FieldLogger,
	st store.Store,
	executor *Executor,
	timeout time.Duration,
) *Orchestrator {
	return &Orchestrator{
		log:      log.WithField("component", "orchestrator"),
		store:    st,
		executor: executor,
		client:   &http.Client{Timeout: timeout},
	}
}

// Run executes a full conformance run and returns its outcome. Test cases
// execute strictly sequentially: later cases depend on state mutated by
// earlier ones. Failures inside a single case become FAILURE results;
// failures in run-level prerequisites abort the run, leaving the record at
// its conservative FAIL default.
func (o *Orchestrator) Run(ctx context.Context, params *RunParams) (*RunOutcome, error) {
	version, err := validateParams(params)
	if err != nil {
		return nil, err
	}

	runID := uuid.NewString()

	log := o.log.WithFields(logrus.Fields{
		"run_id":  runID,
		"version": version,
	})
	log.Info("Starting conformance run")

	// Persist the run at FAIL before doing any work, so a crash mid-run
	// leaves a discoverable FAIL record rather than silence.
	if err := o.store.SaveTestRun(ctx, &store.TestRun{
		RunID:           runID,
		CompanyName:     params.CompanyName,
		AdminEmail:      params.AdminEmail,
		AdminName:       params.AdminName,
		TechSpecVersion: string(version),
		Status:          string(RunStatusFail),
	}); err != nil {
		return nil, fmt.Errorf("saving initial test run: %w", err)
	}

	authBase := params.AuthBaseURL
	if authBase == "" {
		authBase = params.BaseURL
	}

	tokenURL := resolveTokenEndpoint(ctx, o.client, authBase)

	token, err := fetchAccessToken(ctx, o.client, tokenURL, params.ClientID, params.ClientSecret)
	if err != nil {
		return nil, fmt.Errorf("authenticating against target: %w", err)
	}

	side, err := o.fetchReferenceData(ctx, params.BaseURL, token, version)
	if err != nil {
		return nil, fmt.Errorf("fetching reference footprints: %w", err)
	}

	side.RunID = runID

	if err := o.store.SaveTestData(ctx, side); err != nil {
		return nil, fmt.Errorf("saving test data: %w", err)
	}

	var productIDs []string
	_ = json.Unmarshal([]byte(side.ProductIDsJSON), &productIDs)

	cases := BuildSuite(&SuiteInput{
		RunID:       runID,
		BaseURL:     params.BaseURL,
		Version:     version,
		FootprintID: side.FootprintID,
		ProductIDs:  productIDs,
	})

	results := make([]store.TestCaseResult, 0, len(cases))

	for i := range cases {
		result := o.executor.Execute(ctx, params.BaseURL, token, version, &cases[i])

		log.WithFields(logrus.Fields{
			"case":   result.CaseKey,
			"status": result.Status,
		}).Info("Test case completed")

		results = append(results, result)
	}

	// overwriteExisting=false: a callback reconciled while the loop was
	// still running must not be clobbered by its own placeholder.
	if err := o.store.SaveTestCaseResults(ctx, runID, results); err != nil {
		return nil, fmt.Errorf("saving test case results: %w", err)
	}

	// Recompute from the authoritative stored list, not the in-memory
	// one, to pick up any reconciliation that already landed.
	_, stored, err := o.store.GetTestResults(ctx, runID)
	if err != nil {
		return nil, fmt.Errorf("reloading test results: %w", err)
	}

	metrics := ComputeMetrics(stored)

	if err := o.store.UpdateTestRunStatus(
		ctx, runID, string(metrics.Status), metrics.PassingPercentage,
	); err != nil {
		return nil, fmt.Errorf("updating test run status: %w", err)
	}

	log.WithFields(logrus.Fields{
		"status":     metrics.Status,
		"percentage": metrics.PassingPercentage,
	}).Info("Conformance run completed")

	return &RunOutcome{
		RunID:             runID,
		Status:            metrics.Status,
		PassingPercentage: metrics.PassingPercentage,
		Results:           stored,
	}, nil
}

// validateParams checks required inputs before any network call or storage
// write happens.
func validateParams(params *RunParams) (Version, error) {
	if params.BaseURL == "" {
		return "", NewValidationError("baseUrl is required")
	}

	if params.ClientID == "" {
		return "", NewValidationError("clientId is required")
	}

	if params.ClientSecret == "" {
		return "", NewValidationError("clientSecret is required")
	}

	version, err := ParseVersion(params.Version)
	if err != nil {
		return "", NewValidationError("%v", err)
	}

	return version, nil
}

// footprintsResponse is the subset of the footprint list the orchestrator
// needs for reference data.
type footprintsResponse struct {
	Data []struct {
		ID         string   `json:"id"`
		ProductIDs []string `json:"productIds"`
	} `json:"data"`
}

// fetchReferenceData retrieves the target's footprint list and derives the
// product identifiers and footprint id individual test cases reference.
func (o *Orchestrator) fetchReferenceData(
	ctx context.Context,
	baseURL, token string,
	version Version,
) (*store.TestRunSideData, error) {
	spec, _ := SpecFor(version)
	url := strings.TrimRight(baseURL, "/") + spec.FootprintsPath

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}

	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := o.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("executing request: %w", err)
	}

	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("target returned status %d", resp.StatusCode)
	}

	var footprints footprintsResponse
	if err := json.Unmarshal(body, &footprints); err != nil {
		return nil, fmt.Errorf("parsing footprint list: %w", err)
	}

	if len(footprints.Data) == 0 {
		return nil, fmt.Errorf("target returned no footprints")
	}

	productIDs := make([]string, 0, len(footprints.Data))
	for _, fp := range footprints.Data {
		productIDs = append(productIDs, fp.ProductIDs...)
	}

	renderedIDs, err := json.Marshal(productIDs)
	if err != nil {
		return nil, fmt.Errorf("serializing product ids: %w", err)
	}

	return &store.TestRunSideData{
		TechSpecVersion: string(version),
		ProductIDsJSON:  string(renderedIDs),
		FootprintID:     footprints.Data[0].ID,
		PaginationURL:   nextLink(resp.Header.Get("Link")),
	}, nil
}

// nextLink extracts the rel="next" target from a Link header, if any.
func nextLink(header string) string {
	for _, part := range strings.Split(header, ",") {
		if !strings.Contains(part, `rel="next"`) {
			continue
		}

		start := strings.Index(part, "<")
		end := strings.Index(part, ">")

		if start >= 0 && end > start {
			return part[start+1 : end]
		}
	}

	return ""
}
