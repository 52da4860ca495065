package types

import (
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode"
)

// TestStatus represents the possible states of a test execution
type TestStatus string

const (
	TestStatusPass TestStatus = "pass"
	TestStatusFail TestStatus = "fail"
	// TestStatusError marks an internal-consistency problem (e.g. an
	// unrecognized status value in the result store), reported distinctly
	// from a normal failure.
	TestStatusError TestStatus = "error"
)

// TestCase identifies a single named unit of test logic: a shell function
// plus the source file it was enumerated from.
type TestCase struct {
	Name       string // function name, e.g. "test_parses_empty_input"
	SourceFile string // path to the shell file defining the function
}

// Validate checks the test-case invariants: the name must be non-empty and
// contain no whitespace, and the source file must be known.
func (tc TestCase) Validate() error {
	if tc.Name == "" {
		return errors.New("test name cannot be empty")
	}
	if strings.IndexFunc(tc.Name, unicode.IsSpace) >= 0 {
		return fmt.Errorf("test name %q contains whitespace", tc.Name)
	}
	if tc.SourceFile == "" {
		return fmt.Errorf("test %q has no source file", tc.Name)
	}
	return nil
}

// String returns the canonical "file:function" identifier for the test case.
func (tc TestCase) String() string {
	return fmt.Sprintf("%s:%s", tc.SourceFile, tc.Name)
}

// TestResult captures the outcome of a single test run
type TestResult struct {
	Case     TestCase
	Status   TestStatus
	Error    error         // failure/diagnostic message, nil when passing
	Duration time.Duration // wall-clock time of the subprocess
	Stdout   string        // combined stdout/stderr of the subprocess tree
	ExitCode int           // subprocess exit code, valid when HasExitCode
	// HasExitCode is false when the test died before writing its exit
	// status (crash, unexpected signal).
	HasExitCode bool
}

// Passed reports whether the test completed successfully.
func (tr *TestResult) Passed() bool {
	return tr.Status == TestStatusPass
}
