package conformance_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/carbonex/conformoor/pkg/conformance"
	"github.com/carbonex/conformoor/pkg/store"
)

func TestComputeMetrics_AllMandatoryPass(t *testing.T) {
	results := []store.TestCaseResult{
		{CaseKey: "TESTCASE#1", Status: "SUCCESS", Mandatory: true},
		{CaseKey: "TESTCASE#2", Status: "SUCCESS", Mandatory: true},
	}

	m := conformance.ComputeMetrics(results)
	assert.Equal(t, conformance.RunStatusPass, m.Status)
	assert.Equal(t, 100, m.PassingPercentage)
	assert.Empty(t, m.FailedMandatory)
}

func TestComputeMetrics_MandatoryFailure(t *testing.T) {
	results := []store.TestCaseResult{
		{CaseKey: "TESTCASE#1", Status: "SUCCESS", Mandatory: true},
		{CaseKey: "TESTCASE#2", Status: "FAILURE", Mandatory: true},
	}

	m := conformance.ComputeMetrics(results)
	assert.Equal(t, conformance.RunStatusFail, m.Status)
	assert.Equal(t, 50, m.PassingPercentage)
	assert.Equal(t, []string{"TESTCASE#2"}, m.FailedMandatory)
}

func TestComputeMetrics_PendingMandatoryCountsAsFailing(t *testing.T) {
	// An outstanding callback case holds the run at FAIL until it resolves.
	results := []store.TestCaseResult{
		{CaseKey: "TESTCASE#7", Status: "SUCCESS", Mandatory: true},
		{CaseKey: "TESTCASE#8", Status: "PENDING", Mandatory: true},
	}

	m := conformance.ComputeMetrics(results)
	assert.Equal(t, conformance.RunStatusFail, m.Status)
	assert.Equal(t, 50, m.PassingPercentage)
	assert.Equal(t, []string{"TESTCASE#8"}, m.FailedMandatory)
}

func TestComputeMetrics_OptionalFailureIgnored(t *testing.T) {
	results := []store.TestCaseResult{
		{CaseKey: "TESTCASE#1", Status: "SUCCESS", Mandatory: true},
		{CaseKey: "TESTCASE#5", Status: "FAILURE", Mandatory: false},
		{CaseKey: "TESTCASE#12", Status: "PENDING", Mandatory: false},
	}

	m := conformance.ComputeMetrics(results)
	assert.Equal(t, conformance.RunStatusPass, m.Status)
	assert.Equal(t, 100, m.PassingPercentage)
}

func TestComputeMetrics_OptionalSuccessDoesNotOffsetMandatoryFailure(t *testing.T) {
	results := []store.TestCaseResult{
		{CaseKey: "TESTCASE#1", Status: "FAILURE", Mandatory: true},
		{CaseKey: "TESTCASE#5", Status: "SUCCESS", Mandatory: false},
	}

	m := conformance.ComputeMetrics(results)
	assert.Equal(t, conformance.RunStatusFail, m.Status)
	assert.Equal(t, 0, m.PassingPercentage)
}

func TestComputeMetrics_NoMandatoryCases(t *testing.T) {
	results := []store.TestCaseResult{
		{CaseKey: "TESTCASE#5", Status: "SUCCESS", Mandatory: false},
	}

	m := conformance.ComputeMetrics(results)
	assert.Equal(t, conformance.RunStatusPass, m.Status)
	assert.Equal(t, 0, m.PassingPercentage)
}

func TestComputeMetrics_Idempotent(t *testing.T) {
	results := []store.TestCaseResult{
		{CaseKey: "TESTCASE#1", Status: "SUCCESS", Mandatory: true},
		{CaseKey: "TESTCASE#2", Status: "FAILURE", Mandatory: true},
		{CaseKey: "TESTCASE#3", Status: "PENDING", Mandatory: true},
	}

	first := conformance.ComputeMetrics(results)
	second := conformance.ComputeMetrics(results)
	assert.Equal(t, first, second)
}

func TestComputeMetrics_Rounding(t *testing.T) {
	// 2 of 3 mandatory passing rounds to 67.
	results := []store.TestCaseResult{
		{CaseKey: "TESTCASE#1", Status: "SUCCESS", Mandatory: true},
		{CaseKey: "TESTCASE#2", Status: "SUCCESS", Mandatory: true},
		{CaseKey: "TESTCASE#3", Status: "FAILURE", Mandatory: true},
	}

	m := conformance.ComputeMetrics(results)
	assert.Equal(t, 67, m.PassingPercentage)
}
