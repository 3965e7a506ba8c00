package store

import (
	"time"
)

// TestRun represents one conformance attempt against a target implementation.
type TestRun struct {
	RunID             string    `gorm:"primaryKey" json:"testRunId"`
	CompanyName       string    `json:"companyName"`
	AdminEmail        string    `json:"adminEmail"`
	AdminName         string    `json:"adminName"`
	TechSpecVersion   string    `gorm:"not null" json:"techSpecVersion"`
	Status            string    `gorm:"not null" json:"status"`
	PassingPercentage int       `json:"passingPercentage"`
	CreatedAt         time.Time `json:"createdAt"`
	UpdatedAt         time.Time `json:"-"`
}

// TestCaseResult is the stored outcome of a single test case within a run.
// The (run_id, case_key) pair is unique; a later write with the same key
// overwrites the earlier row, which is how PENDING becomes SUCCESS/FAILURE.
type TestCaseResult struct {
	ID           uint      `gorm:"primaryKey" json:"-"`
	RunID        string    `gorm:"not null;uniqueIndex:idx_results_run_case" json:"-"`
	CaseKey      string    `gorm:"not null;uniqueIndex:idx_results_run_case" json:"testKey"`
	Name         string    `json:"name"`
	Status       string    `gorm:"not null" json:"status"`
	Mandatory    bool      `json:"mandatory"`
	ErrorMessage string    `gorm:"type:text" json:"errorMessage,omitempty"`
	RawResponse  string    `gorm:"type:text" json:"rawResponse,omitempty"`
	Curl         string    `gorm:"type:text" json:"curl,omitempty"`
	DocURL       string    `json:"documentationUrl,omitempty"`
	CreatedAt    time.Time `json:"-"`
	UpdatedAt    time.Time `json:"-"`
}

// TestRunSideData holds the per-run auxiliary state the event reconciler
// needs to correlate and validate asynchronous callbacks.
type TestRunSideData struct {
	RunID           string `gorm:"primaryKey"`
	TechSpecVersion string `gorm:"not null"`

	// Product identifiers seen in the reference footprint fetch,
	// serialized as JSON.
	ProductIDsJSON string `gorm:"type:text"`

	FootprintID   string
	PaginationURL string
	CreatedAt     time.Time
	UpdatedAt     time.Time
}
