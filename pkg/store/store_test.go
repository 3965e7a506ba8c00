package store_test

import (
	"context"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/carbonex/conformoor/pkg/config"
	"github.com/carbonex/conformoor/pkg/store"
)

func setupTestStore(t *testing.T) store.Store {
	t.Helper()

	cfg := &config.DatabaseConfig{
		Driver: "sqlite",
		SQLite: config.SQLiteConfig{Path: ":memory:"},
	}

	log := logrus.New()
	log.SetLevel(logrus.ErrorLevel)

	s := store.NewStore(log, cfg)
	require.NoError(t, s.Start(context.Background()))

	t.Cleanup(func() { _ = s.Stop() })

	return s
}

func TestStore_SaveAndGetTestRun(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	run := &store.TestRun{
		RunID:           "run-1",
		CompanyName:     "Acme",
		TechSpecVersion: "V2.3",
		Status:          "FAIL",
	}

	require.NoError(t, s.SaveTestRun(ctx, run))

	stored, results, err := s.GetTestResults(ctx, "run-1")
	require.NoError(t, err)
	assert.Equal(t, "Acme", stored.CompanyName)
	assert.Equal(t, "FAIL", stored.Status)
	assert.Empty(t, results)
}

func TestStore_GetTestResultsUnknownRun(t *testing.T) {
	s := setupTestStore(t)

	_, _, err := s.GetTestResults(context.Background(), "missing")
	require.ErrorIs(t, err, store.ErrNotFound)
}

func TestStore_UpdateTestRunStatus(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.SaveTestRun(ctx, &store.TestRun{
		RunID:  "run-1",
		Status: "FAIL",
	}))

	require.NoError(t, s.UpdateTestRunStatus(ctx, "run-1", "PASS", 100))

	stored, _, err := s.GetTestResults(ctx, "run-1")
	require.NoError(t, err)
	assert.Equal(t, "PASS", stored.Status)
	assert.Equal(t, 100, stored.PassingPercentage)
}

func TestStore_SaveTestCaseResultNoOverwrite(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.SaveTestRun(ctx, &store.TestRun{RunID: "run-1"}))

	first := store.TestCaseResult{
		CaseKey: "TESTCASE#8",
		Name:    "Receive the fulfilled request callback",
		Status:  "SUCCESS",
	}
	require.NoError(t, s.SaveTestCaseResult(ctx, "run-1", &first, true))

	// Without overwrite, an existing row must stay untouched. This is what
	// keeps a placeholder from clobbering an already reconciled callback.
	placeholder := store.TestCaseResult{
		CaseKey: "TESTCASE#8",
		Name:    "Receive the fulfilled request callback",
		Status:  "PENDING",
	}
	require.NoError(t, s.SaveTestCaseResult(ctx, "run-1", &placeholder, false))

	_, results, err := s.GetTestResults(ctx, "run-1")
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "SUCCESS", results[0].Status)
}

func TestStore_SaveTestCaseResultOverwrite(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.SaveTestRun(ctx, &store.TestRun{RunID: "run-1"}))

	pending := store.TestCaseResult{
		CaseKey:      "TESTCASE#10",
		Name:         "Receive the rejected request callback",
		Status:       "PENDING",
		Mandatory:    true,
		ErrorMessage: "",
	}
	require.NoError(t, s.SaveTestCaseResult(ctx, "run-1", &pending, false))

	reconciled := store.TestCaseResult{
		CaseKey:   "TESTCASE#10",
		Name:      "Receive the rejected request callback",
		Status:    "SUCCESS",
		Mandatory: true,
	}
	require.NoError(t, s.SaveTestCaseResult(ctx, "run-1", &reconciled, true))

	_, results, err := s.GetTestResults(ctx, "run-1")
	require.NoError(t, err)
	require.Len(t, results, 1, "overwrite must not duplicate the row")
	assert.Equal(t, "SUCCESS", results[0].Status)
}

func TestStore_OverwriteClearsZeroValues(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.SaveTestRun(ctx, &store.TestRun{RunID: "run-1"}))

	failed := store.TestCaseResult{
		CaseKey:      "TESTCASE#8",
		Status:       "FAILURE",
		Mandatory:    true,
		ErrorMessage: "schema validation failed",
	}
	require.NoError(t, s.SaveTestCaseResult(ctx, "run-1", &failed, false))

	// Zero-valued fields in the replacement must overwrite stored values.
	passed := store.TestCaseResult{
		CaseKey:   "TESTCASE#8",
		Status:    "SUCCESS",
		Mandatory: false,
	}
	require.NoError(t, s.SaveTestCaseResult(ctx, "run-1", &passed, true))

	_, results, err := s.GetTestResults(ctx, "run-1")
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "SUCCESS", results[0].Status)
	assert.False(t, results[0].Mandatory)
	assert.Empty(t, results[0].ErrorMessage)
}

func TestStore_ResultsOrderedByInsertion(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.SaveTestRun(ctx, &store.TestRun{RunID: "run-1"}))

	batch := []store.TestCaseResult{
		{CaseKey: "TESTCASE#1", Status: "SUCCESS"},
		{CaseKey: "TESTCASE#2", Status: "FAILURE"},
		{CaseKey: "TESTCASE#3", Status: "SUCCESS"},
	}
	require.NoError(t, s.SaveTestCaseResults(ctx, "run-1", batch))

	_, results, err := s.GetTestResults(ctx, "run-1")
	require.NoError(t, err)
	require.Len(t, results, 3)
	assert.Equal(t, "TESTCASE#1", results[0].CaseKey)
	assert.Equal(t, "TESTCASE#2", results[1].CaseKey)
	assert.Equal(t, "TESTCASE#3", results[2].CaseKey)
}

func TestStore_SaveAndGetTestData(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	data := &store.TestRunSideData{
		RunID:           "run-1",
		TechSpecVersion: "V3.0",
		ProductIDsJSON:  `["urn:pact:products:a"]`,
		FootprintID:     "fp-1",
	}
	require.NoError(t, s.SaveTestData(ctx, data))

	stored, err := s.GetTestData(ctx, "run-1")
	require.NoError(t, err)
	assert.Equal(t, "V3.0", stored.TechSpecVersion)
	assert.Equal(t, "fp-1", stored.FootprintID)

	_, err = s.GetTestData(ctx, "missing")
	require.ErrorIs(t, err, store.ErrNotFound)
}

func TestStore_ListTestRuns(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.SaveTestRun(ctx, &store.TestRun{RunID: "run-a"}))
	require.NoError(t, s.SaveTestRun(ctx, &store.TestRun{RunID: "run-b"}))
	require.NoError(t, s.SaveTestRun(ctx, &store.TestRun{RunID: "run-c"}))

	all, err := s.ListTestRuns(ctx, 0)
	require.NoError(t, err)
	assert.Len(t, all, 3)

	limited, err := s.ListTestRuns(ctx, 2)
	require.NoError(t, err)
	assert.Len(t, limited, 2)
}
