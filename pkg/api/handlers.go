package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/carbonex/conformoor/pkg/conformance"
	"github.com/carbonex/conformoor/pkg/reconcile"
	"github.com/carbonex/conformoor/pkg/store"
	"github.com/go-chi/chi/v5"
)

const defaultListLimit = 50

// errorResponse is a standard error payload.
type errorResponse struct {
	Error string `json:"error"`
}

// writeJSON encodes v as JSON and writes it to w.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, "encoding response", http.StatusInternalServerError)
	}
}

// handleHealth returns server health status.
func (s *server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleCreateRun starts a conformance run against the target described in
// the request body and blocks until its synchronous portion completes.
func (s *server) handleCreateRun(w http.ResponseWriter, r *http.Request) {
	var params conformance.RunParams
	if err := json.NewDecoder(r.Body).Decode(&params); err != nil {
		writeJSON(w, http.StatusBadRequest,
			errorResponse{"invalid request body"})

		return
	}

	outcome, err := s.orchestrator.Run(r.Context(), &params)
	if err != nil {
		if conformance.IsValidationError(err) {
			writeJSON(w, http.StatusBadRequest, errorResponse{err.Error()})

			return
		}

		s.log.WithError(err).Error("Conformance run failed")
		writeJSON(w, http.StatusInternalServerError,
			errorResponse{"conformance run failed: " + err.Error()})

		return
	}

	writeJSON(w, http.StatusOK, outcome)
}

// handleGetRun returns one run's metadata and full result list.
func (s *server) handleGetRun(w http.ResponseWriter, r *http.Request) {
	runID := chi.URLParam(r, "id")

	run, results, err := s.store.GetTestResults(r.Context(), runID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeJSON(w, http.StatusNotFound,
				errorResponse{"test run not found"})

			return
		}

		s.log.WithError(err).Error("Failed to load test run")
		writeJSON(w, http.StatusInternalServerError,
			errorResponse{"loading test run"})

		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"run":     run,
		"results": results,
	})
}

// handleListRuns returns recent runs, newest first.
func (s *server) handleListRuns(w http.ResponseWriter, r *http.Request) {
	limit := defaultListLimit

	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			writeJSON(w, http.StatusBadRequest,
				errorResponse{"limit must be a positive integer"})

			return
		}

		limit = parsed
	}

	runs, err := s.store.ListTestRuns(r.Context(), limit)
	if err != nil {
		s.log.WithError(err).Error("Failed to list test runs")
		writeJSON(w, http.StatusInternalServerError,
			errorResponse{"listing test runs"})

		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"runs": runs})
}

// handleEvent receives an asynchronous callback from a target under test
// and hands it to the reconciler. The full request path is forwarded: it is
// part of what the reconciler checks.
func (s *server) handleEvent(w http.ResponseWriter, r *http.Request) {
	var env reconcile.Envelope
	if err := json.NewDecoder(r.Body).Decode(&env); err != nil {
		writeJSON(w, http.StatusBadRequest,
			errorResponse{"invalid event body"})

		return
	}

	if err := s.reconciler.HandleEvent(r.Context(), r.URL.Path, &env); err != nil {
		if conformance.IsValidationError(err) {
			writeJSON(w, http.StatusBadRequest, errorResponse{err.Error()})

			return
		}

		if errors.Is(err, store.ErrNotFound) {
			s.log.WithField("path", r.URL.Path).
				Warn("Received callback for unknown run")
			writeJSON(w, http.StatusNotFound,
				errorResponse{"no test run matches the event"})

			return
		}

		s.log.WithError(err).Error("Failed to reconcile event")
		writeJSON(w, http.StatusInternalServerError,
			errorResponse{"processing event"})

		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
