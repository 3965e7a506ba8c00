package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/carbonex/conformoor/pkg/config"
	"github.com/glebarez/sqlite"
	"github.com/sirupsen/logrus"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// ErrNotFound is returned when a referenced run or its side data does not exist.
var ErrNotFound = errors.New("not found")

// Store provides durable keyed persistence for runs, per-case results,
// and run-scoped side data. Every write is a single upsert keyed by
// run id or (run id, case key); no cross-write locking is performed.
type Store interface {
	Start(ctx context.Context) error
	Stop() error

	// SaveTestRun upserts run metadata by run id.
	SaveTestRun(ctx context.Context, run *TestRun) error

	// UpdateTestRunStatus upserts the two aggregate fields of a run.
	UpdateTestRunStatus(ctx context.Context, runID, status string, passingPercentage int) error

	// SaveTestCaseResult upserts one case result. When overwriteExisting is
	// false and a row for (runID, caseKey) already exists, the call is a
	// silent no-op.
	SaveTestCaseResult(ctx context.Context, runID string, result *TestCaseResult, overwriteExisting bool) error

	// SaveTestCaseResults bulk-saves results with overwriteExisting=false
	// semantics per item.
	SaveTestCaseResults(ctx context.Context, runID string, results []TestCaseResult) error

	// GetTestResults returns the run metadata and its full result list.
	GetTestResults(ctx context.Context, runID string) (*TestRun, []TestCaseResult, error)

	// ListTestRuns returns the most recent runs, newest first. A limit of
	// zero or less returns all runs.
	ListTestRuns(ctx context.Context, limit int) ([]TestRun, error)

	// SaveTestData / GetTestData access the per-run side data record.
	SaveTestData(ctx context.Context, data *TestRunSideData) error
	GetTestData(ctx context.Context, runID string) (*TestRunSideData, error)
}

// Compile-time interface check.
var _ Store = (*store)(nil)

type store struct {
	log logrus.FieldLogger
	cfg *config.DatabaseConfig
	db  *gorm.DB
}

// NewStore creates a new Store backed by the configured database driver.
func NewStore(
	log logrus.FieldLogger,
	cfg *config.DatabaseConfig,
) Store {
	return &store{
		log: log.WithField("component", "store"),
		cfg: cfg,
	}
}

// Start opens the database connection and runs migrations.
func (s *store) Start(ctx context.Context) error {
	var (
		dialector gorm.Dialector
		err       error
	)

	gormCfg := &gorm.Config{
		Logger: logger.Discard,
	}

	switch s.cfg.Driver {
	case "sqlite":
		dialector = sqlite.Open(s.cfg.SQLite.Path)
	case "postgres":
		dsn := fmt.Sprintf(
			"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
			s.cfg.Postgres.Host,
			s.cfg.Postgres.Port,
			s.cfg.Postgres.User,
			s.cfg.Postgres.Password,
			s.cfg.Postgres.Database,
			s.cfg.Postgres.SSLMode,
		)
		dialector = postgres.Open(dsn)
	default:
		return fmt.Errorf("unsupported database driver: %s", s.cfg.Driver)
	}

	s.db, err = gorm.Open(dialector, gormCfg)
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}

	if err := s.db.WithContext(ctx).AutoMigrate(
		&TestRun{},
		&TestCaseResult{},
		&TestRunSideData{},
	); err != nil {
		return fmt.Errorf("running migrations: %w", err)
	}

	s.log.WithField("driver", s.cfg.Driver).Info("Database connected")

	return nil
}

// Stop closes the underlying database connection.
func (s *store) Stop() error {
	if s.db == nil {
		return nil
	}

	sqlDB, err := s.db.DB()
	if err != nil {
		return fmt.Errorf("getting underlying db: %w", err)
	}

	return sqlDB.Close()
}

// --- Run metadata ---

func (s *store) SaveTestRun(ctx context.Context, run *TestRun) error {
	result := s.db.WithContext(ctx).
		Where("run_id = ?", run.RunID).
		Assign(map[string]interface{}{
			"company_name":       run.CompanyName,
			"admin_email":        run.AdminEmail,
			"admin_name":         run.AdminName,
			"tech_spec_version":  run.TechSpecVersion,
			"status":             run.Status,
			"passing_percentage": run.PassingPercentage,
		}).
		FirstOrCreate(run)
	if result.Error != nil {
		return fmt.Errorf("saving test run: %w", result.Error)
	}

	return nil
}

func (s *store) UpdateTestRunStatus(
	ctx context.Context, runID, status string, passingPercentage int,
) error {
	if err := s.db.WithContext(ctx).
		Model(&TestRun{}).
		Where("run_id = ?", runID).
		Updates(map[string]interface{}{
			"status":             status,
			"passing_percentage": passingPercentage,
		}).Error; err != nil {
		return fmt.Errorf("updating test run status: %w", err)
	}

	return nil
}

// --- Case results ---

func (s *store) SaveTestCaseResult(
	ctx context.Context, runID string, result *TestCaseResult, overwriteExisting bool,
) error {
	result.RunID = runID

	tx := s.db.WithContext(ctx).
		Where("run_id = ? AND case_key = ?", runID, result.CaseKey)

	if overwriteExisting {
		// Assign with an explicit map so zero values (cleared error
		// message, mandatory=false) overwrite the stored row too.
		tx = tx.Assign(map[string]interface{}{
			"name":          result.Name,
			"status":        result.Status,
			"mandatory":     result.Mandatory,
			"error_message": result.ErrorMessage,
			"raw_response":  result.RawResponse,
			"curl":          result.Curl,
			"doc_url":       result.DocURL,
		})
	}

	if err := tx.FirstOrCreate(result).Error; err != nil {
		return fmt.Errorf("saving test case result: %w", err)
	}

	return nil
}

func (s *store) SaveTestCaseResults(
	ctx context.Context, runID string, results []TestCaseResult,
) error {
	for i := range results {
		if err := s.SaveTestCaseResult(ctx, runID, &results[i], false); err != nil {
			return err
		}
	}

	return nil
}

func (s *store) GetTestResults(
	ctx context.Context, runID string,
) (*TestRun, []TestCaseResult, error) {
	var run TestRun
	if err := s.db.WithContext(ctx).
		Where("run_id = ?", runID).
		First(&run).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil, fmt.Errorf("test run %q: %w", runID, ErrNotFound)
		}

		return nil, nil, fmt.Errorf("getting test run: %w", err)
	}

	var results []TestCaseResult
	if err := s.db.WithContext(ctx).
		Where("run_id = ?", runID).
		Order("id ASC").
		Find(&results).Error; err != nil {
		return nil, nil, fmt.Errorf("listing test case results: %w", err)
	}

	return &run, results, nil
}

func (s *store) ListTestRuns(ctx context.Context, limit int) ([]TestRun, error) {
	q := s.db.WithContext(ctx).Order("created_at DESC")
	if limit > 0 {
		q = q.Limit(limit)
	}

	var runs []TestRun
	if err := q.Find(&runs).Error; err != nil {
		return nil, fmt.Errorf("listing test runs: %w", err)
	}

	return runs, nil
}

// --- Side data ---

func (s *store) SaveTestData(ctx context.Context, data *TestRunSideData) error {
	result := s.db.WithContext(ctx).
		Where("run_id = ?", data.RunID).
		Assign(map[string]interface{}{
			"tech_spec_version": data.TechSpecVersion,
			"product_ids_json":  data.ProductIDsJSON,
			"footprint_id":      data.FootprintID,
			"pagination_url":    data.PaginationURL,
		}).
		FirstOrCreate(data)
	if result.Error != nil {
		return fmt.Errorf("saving test data: %w", result.Error)
	}

	return nil
}

func (s *store) GetTestData(
	ctx context.Context, runID string,
) (*TestRunSideData, error) {
	var data TestRunSideData
	if err := s.db.WithContext(ctx).
		Where("run_id = ?", runID).
		First(&data).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("test data for run %q: %w", runID, ErrNotFound)
		}

		return nil, fmt.Errorf("getting test data: %w", err)
	}

	return &data, nil
}
