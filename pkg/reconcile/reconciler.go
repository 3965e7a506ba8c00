package reconcile

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/carbonex/conformoor/pkg/conformance"
	"github.com/carbonex/conformoor/pkg/schema"
	"github.com/carbonex/conformoor/pkg/store"
	"github.com/sirupsen/logrus"
)

// Envelope is the inbound webhook event body.
type Envelope struct {
	Type        string          `json:"type"`
	ID          string          `json:"id"`
	SpecVersion string          `json:"specversion"`
	Source      string          `json:"source"`
	Data        json.RawMessage `json:"data"`
}

// eventData is the subset of the event payload the reconciler inspects
// directly; full structural validation goes through the schema registry.
type eventData struct {
	RequestEventID string `json:"requestEventId"`
	PFs            []struct {
		ProductIDs []string `json:"productIds"`
	} `json:"pfs"`
	Error *struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// Reconciler converts inbound asynchronous callbacks into terminal test
// case results and keeps the owning run's aggregate status current. It is
// an uncoordinated concurrent actor: it may fire while the synchronous
// case loop is still running, or long after it finished. Correctness
// relies on per-key overwrite upserts and on recomputing metrics from a
// fresh read.
type Reconciler struct {
	log     logrus.FieldLogger
	store   store.Store
	schemas *schema.Registry
}

// NewReconciler creates a reconciler using the given store and schema
// registry.
func NewReconciler(
	log logrus.FieldLogger,
	st store.Store,
	schemas *schema.Registry,
) *Reconciler {
	return &Reconciler{
		log:     log.WithField("component", "reconciler"),
		store:   st,
		schemas: schemas,
	}
}

// HandleEvent processes one inbound webhook event. The request path is
// semantic input: version families use disjoint URL prefixes, and a
// callback delivered on the wrong family's path fails the case.
//
// Event types outside the fulfilled/rejected classes are silently ignored.
// A processing failure aborts only this event; it never touches other runs
// or in-flight synchronous loops.
func (r *Reconciler) HandleEvent(ctx context.Context, requestPath string, env *Envelope) error {
	if env == nil || len(env.Data) == 0 || string(env.Data) == "null" {
		return conformance.NewValidationError("event payload is required")
	}

	var data eventData
	if err := json.Unmarshal(env.Data, &data); err != nil {
		return conformance.NewValidationError("parsing event payload: %v", err)
	}

	if data.RequestEventID == "" {
		return conformance.NewValidationError("event payload must carry a requestEventId")
	}

	runID, err := conformance.RunIDFromCorrelation(data.RequestEventID)
	if err != nil {
		return conformance.NewValidationError("%v", err)
	}

	// A callback for an unknown run cannot be reconciled.
	side, err := r.store.GetTestData(ctx, runID)
	if err != nil {
		return err
	}

	version := conformance.Version(side.TechSpecVersion)

	spec, ok := conformance.SpecFor(version)
	if !ok {
		return fmt.Errorf("run %q has unsupported stored version %q", runID, side.TechSpecVersion)
	}

	class := spec.Classify(env.Type)
	if class == conformance.EventUnknown {
		r.log.WithFields(logrus.Fields{
			"run_id": runID,
			"type":   env.Type,
		}).Debug("Ignoring event type outside the fulfilled/rejected classes")

		return nil
	}

	var failures []string

	switch class {
	case conformance.EventFulfilled:
		failures = r.checkFulfilled(spec, requestPath, env.Data, &data, side)
	case conformance.EventRejected:
		failures = checkRejected(spec, requestPath, &data)
	}

	tc, _ := conformance.CallbackCase(class)

	result := store.TestCaseResult{
		CaseKey:   tc.Key,
		Name:      tc.Name,
		Mandatory: tc.MandatoryFor(version),
		Status:    string(conformance.StatusSuccess),
	}

	if len(failures) > 0 {
		result.Status = string(conformance.StatusFailure)
		result.ErrorMessage = strings.Join(failures, "; ")
		result.RawResponse = string(env.Data)
	}

	// One-shot terminal transition with overwrite semantics: a re-delivered
	// event simply overwrites the previous result for this key.
	if err := r.store.SaveTestCaseResult(ctx, runID, &result, true); err != nil {
		return fmt.Errorf("saving reconciled result: %w", err)
	}

	r.log.WithFields(logrus.Fields{
		"run_id": runID,
		"case":   result.CaseKey,
		"status": result.Status,
	}).Info("Reconciled callback event")

	return r.refreshRunStatus(ctx, runID)
}

// checkFulfilled runs the three independent fulfilled-event checks and
// collects their failure messages.
func (r *Reconciler) checkFulfilled(
	spec conformance.VersionSpec,
	requestPath string,
	raw json.RawMessage,
	data *eventData,
	side *store.TestRunSideData,
) []string {
	var failures []string

	var doc any
	if err := json.Unmarshal(raw, &doc); err == nil {
		if err := r.schemas.Validate(spec.EventSchema, doc); err != nil {
			failures = append(failures, fmt.Sprintf("schema validation failed: %v", err))
		}
	}

	if requestPath != spec.EventsPath {
		failures = append(failures, invalidPath(spec.EventsPath, requestPath))
	}

	var known []string
	_ = json.Unmarshal([]byte(side.ProductIDsJSON), &known)

	if !containsKnownProduct(known, data) {
		failures = append(failures,
			"footprint product identifiers must include at least one requested product id")
	}

	return failures
}

// checkRejected validates the error object and the request path of a
// rejected-class event.
func checkRejected(
	spec conformance.VersionSpec,
	requestPath string,
	data *eventData,
) []string {
	var failures []string

	if data.Error == nil || data.Error.Code == "" || data.Error.Message == "" {
		failures = append(failures,
			"rejected event must contain an error object with a code and a message")
	}

	if requestPath != spec.EventsPath {
		failures = append(failures, invalidPath(spec.EventsPath, requestPath))
	}

	return failures
}

// refreshRunStatus recomputes the run aggregate from a fresh authoritative
// read. A missing run or an empty result list is a race with run creation;
// the update is skipped rather than failed.
func (r *Reconciler) refreshRunStatus(ctx context.Context, runID string) error {
	_, results, err := r.store.GetTestResults(ctx, runID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil
		}

		return fmt.Errorf("reloading test results: %w", err)
	}

	if len(results) == 0 {
		return nil
	}

	metrics := conformance.ComputeMetrics(results)

	if err := r.store.UpdateTestRunStatus(
		ctx, runID, string(metrics.Status), metrics.PassingPercentage,
	); err != nil {
		return fmt.Errorf("updating test run status: %w", err)
	}

	return nil
}

func invalidPath(expected, got string) string {
	return fmt.Sprintf("Invalid request path: expected %s, got %s", expected, got)
}

// containsKnownProduct reports whether any of the run's known product ids
// appears in the payload's footprint product lists.
func containsKnownProduct(known []string, data *eventData) bool {
	if len(known) == 0 {
		return false
	}

	knownSet := make(map[string]struct{}, len(known))
	for _, id := range known {
		knownSet[id] = struct{}{}
	}

	for _, pf := range data.PFs {
		for _, id := range pf.ProductIDs {
			if _, ok := knownSet[id]; ok {
				return true
			}
		}
	}

	return false
}
