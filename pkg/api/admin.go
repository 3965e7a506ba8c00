package api

import (
	"context"
	"errors"
	"net/http"
	"sync/atomic"

	"github.com/carbonex/conformoor/pkg/conformance"
	"github.com/carbonex/conformoor/pkg/store"
	"golang.org/x/sync/errgroup"
)

const recomputeConcurrency = 8

// handleRecompute recomputes the aggregate status of every stored run from
// its persisted results. Useful after scoring changes or manual database
// surgery; recomputation is a pure function of the stored results, so the
// operation is safe to repeat.
func (s *server) handleRecompute(w http.ResponseWriter, r *http.Request) {
	runs, err := s.store.ListTestRuns(r.Context(), 0)
	if err != nil {
		s.log.WithError(err).Error("Failed to list runs for recompute")
		writeJSON(w, http.StatusInternalServerError,
			errorResponse{"listing test runs"})

		return
	}

	var updated, skipped atomic.Int64

	g, ctx := errgroup.WithContext(r.Context())
	g.SetLimit(recomputeConcurrency)

	for i := range runs {
		runID := runs[i].RunID

		g.Go(func() error {
			changed, err := s.recomputeRun(ctx, runID)
			if err != nil {
				return err
			}

			if changed {
				updated.Add(1)
			} else {
				skipped.Add(1)
			}

			return nil
		})
	}

	if err := g.Wait(); err != nil {
		s.log.WithError(err).Error("Recompute failed")
		writeJSON(w, http.StatusInternalServerError,
			errorResponse{"recomputing run statuses"})

		return
	}

	writeJSON(w, http.StatusOK, map[string]int64{
		"updated": updated.Load(),
		"skipped": skipped.Load(),
	})
}

// recomputeRun refreshes one run's aggregate fields. Runs with no stored
// results are skipped.
func (s *server) recomputeRun(ctx context.Context, runID string) (bool, error) {
	_, results, err := s.store.GetTestResults(ctx, runID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return false, nil
		}

		return false, err
	}

	if len(results) == 0 {
		return false, nil
	}

	metrics := conformance.ComputeMetrics(results)

	if err := s.store.UpdateTestRunStatus(
		ctx, runID, string(metrics.Status), metrics.PassingPercentage,
	); err != nil {
		return false, err
	}

	return true, nil
}
