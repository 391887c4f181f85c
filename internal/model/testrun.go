package model

import "fmt"

// TestStatus is the verdict for a single test case.
type TestStatus int

const (
	StatusFailed TestStatus = iota
	StatusPassed
)

func (s TestStatus) String() string {
	if s == StatusPassed {
		return "passed"
	}
	return "failed"
}

// ParseTestStatus converts the service's PASSED/FAILED strings. Anything
// other than PASSED counts as a failure.
func ParseTestStatus(s string) TestStatus {
	if s == "PASSED" || s == "passed" {
		return StatusPassed
	}
	return StatusFailed
}

// TestCase is a single input/expected-output pair submitted with a run.
type TestCase struct {
	Name   string
	Input  string
	Expect string
}

// TestCaseOutcome is the execution result of one test case.
type TestCaseOutcome struct {
	Name         string
	Status       TestStatus
	Input        string
	Expected     string
	Actual       string
	ErrorMessage string
}

// Passed reports whether the outcome passed.
func (o TestCaseOutcome) Passed() bool {
	return o.Status == StatusPassed
}

// RunKind tags which variant a TestRunResult holds.
type RunKind int

const (
	RunOutcomes RunKind = iota
	RunCompileError
)

// TestRunResult is either a compile error (execution never reached the test
// cases) or an ordered list of outcomes with unique names.
type TestRunResult struct {
	Kind         RunKind
	CompileError string
	Outcomes     []TestCaseOutcome
}

// CompileFailure builds the compile-error variant.
func CompileFailure(msg string) TestRunResult {
	return TestRunResult{Kind: RunCompileError, CompileError: msg}
}

// Outcomes builds the outcome-list variant.
func Outcomes(outcomes []TestCaseOutcome) TestRunResult {
	return TestRunResult{Kind: RunOutcomes, Outcomes: outcomes}
}

// Validate checks that outcome names are unique.
func (r TestRunResult) Validate() error {
	if r.Kind != RunOutcomes {
		return nil
	}
	seen := make(map[string]bool, len(r.Outcomes))
	for _, o := range r.Outcomes {
		if seen[o.Name] {
			return fmt.Errorf("duplicate test case name %q", o.Name)
		}
		seen[o.Name] = true
	}
	return nil
}

// Counts returns the number of passed and failed outcomes.
func (r TestRunResult) Counts() (passed, failed int) {
	for _, o := range r.Outcomes {
		if o.Passed() {
			passed++
		} else {
			failed++
		}
	}
	return
}
