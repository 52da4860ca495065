package shtest

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// The end-to-end tests exercise the real binary: discovery, enumeration,
// subprocess isolation, the child-side assertion commands and the exit-code
// policy all in one piece.

var harnessBin string

func TestMain(m *testing.M) {
	dir, err := os.MkdirTemp("", "shtest-e2e")
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to create temp dir: %v\n", err)
		os.Exit(1)
	}
	harnessBin = filepath.Join(dir, "shtest")

	build := exec.Command("go", "build", "-o", harnessBin, "./cmd/shtest")
	if out, err := build.CombinedOutput(); err != nil {
		fmt.Fprintf(os.Stderr, "failed to build harness binary: %v\n%s", err, out)
		os.RemoveAll(dir)
		os.Exit(1)
	}

	code := m.Run()
	os.RemoveAll(dir)
	os.Exit(code)
}

// runHarness invokes the built binary with an isolated result directory and
// returns its combined output and exit code.
func runHarness(t *testing.T, args ...string) (string, int) {
	t.Helper()
	resultDir := filepath.Join(t.TempDir(), "results")
	cmd := exec.Command(harnessBin, append([]string{"--result-dir", resultDir}, args...)...)
	out, err := cmd.CombinedOutput()
	if err != nil {
		var exitErr *exec.ExitError
		require.ErrorAs(t, err, &exitErr, "unexpected invocation failure: %v\n%s", err, out)
	}
	return string(out), cmd.ProcessState.ExitCode()
}

func writeTestFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte("#!/bin/bash\n"+content), 0755))
	return path
}

func TestE2E_PassingAndFailingTests(t *testing.T) {
	dir := t.TempDir()
	writeTestFile(t, dir, "sample_test", `
test_bad() {
	assert_equals "a" "b"
}
test_ok() {
	assert_equals "a" "a"
}
`)

	out, code := runHarness(t, dir)
	assert.Equal(t, 1, code)
	assert.Contains(t, out, "Ran 2 tests. 1 passed. 1 failed.")
	assert.Contains(t, out, "test_bad: expected 'a' but was 'b'")
	assert.NotContains(t, out, "test_ok:")
}

func TestE2E_AllPassingExitsZero(t *testing.T) {
	dir := t.TempDir()
	writeTestFile(t, dir, "sample_test", `
test_strings() {
	assert_contains "hello world" "lo wo"
	assert_does_not_contain "hello" "bye"
	assert_matches '^v[0-9]+$' "v42"
}
test_commands() {
	assert_succeeds "true"
	assert_fails "false"
	assert_exit_value_equals 3 "exit 3"
}
`)

	out, code := runHarness(t, dir)
	assert.Equal(t, 0, code)
	assert.Contains(t, out, "Ran 2 tests. 2 passed. 0 failed.")
}

func TestE2E_FailedAssertionStopsTestBody(t *testing.T) {
	dir := t.TempDir()
	marker := filepath.Join(dir, "marker")
	writeTestFile(t, dir, "abort_test", fmt.Sprintf(`
test_aborts() {
	assert_equals "a" "b"
	touch %q
}
`, marker))

	out, code := runHarness(t, dir)
	assert.Equal(t, 1, code)
	assert.Contains(t, out, "expected 'a' but was 'b'")

	_, err := os.Stat(marker)
	assert.True(t, os.IsNotExist(err), "statements after a failed assertion must not run")
}

func TestE2E_FailPrimitiveReportsStackTrace(t *testing.T) {
	dir := t.TempDir()
	writeTestFile(t, dir, "explicit_test", `
check_precondition() {
	fail "precondition violated"
}
test_fails_explicitly() {
	check_precondition
}
`)

	out, code := runHarness(t, dir)
	assert.Equal(t, 1, code)
	assert.Contains(t, out, "precondition violated")
	assert.Contains(t, out, "(check_precondition)")
	assert.Contains(t, out, "(test_fails_explicitly)")
}

func TestE2E_ArrayEquality(t *testing.T) {
	dir := t.TempDir()
	writeTestFile(t, dir, "array_test", `
test_arrays_match() {
	local expected=("a" "b c" "d")
	local actual=("a" "b c" "d")
	assert_array_equals expected actual
}
test_arrays_differ() {
	local expected=("a" "b" "c")
	local actual=("a" "x" "c")
	assert_array_equals expected actual
}
test_empty_arrays() {
	local expected=()
	local actual=()
	assert_array_equals expected actual
}
`)

	out, code := runHarness(t, dir)
	assert.Equal(t, 1, code)
	assert.Contains(t, out, "Ran 3 tests. 2 passed. 1 failed.")
	assert.Contains(t, out, "element at index 1: expected 'b' but was 'x'")
}

func TestE2E_TestWithoutAssertionsFails(t *testing.T) {
	dir := t.TempDir()
	writeTestFile(t, dir, "lazy_test", `
test_lazy() {
	:
}
`)

	out, code := runHarness(t, dir)
	assert.Equal(t, 1, code)
	assert.Contains(t, out, "test_lazy: no assertions made")
}

func TestE2E_DyingTestDoesNotStopTheRun(t *testing.T) {
	dir := t.TempDir()
	writeTestFile(t, dir, "crash_test", `
test_a_dies() {
	assert_equals "a" "a"
	kill -9 0
}
test_b_survives() {
	assert_equals "b" "b"
}
`)

	out, code := runHarness(t, dir)
	assert.Equal(t, 1, code)
	assert.Contains(t, out, "no exit status: did the test die?")
	assert.Contains(t, out, "Ran 2 tests. 1 passed. 1 failed.")
}

func TestE2E_ExplicitExitCodeReported(t *testing.T) {
	dir := t.TempDir()
	writeTestFile(t, dir, "exit_test", `
test_bails_out() {
	assert_equals "a" "a"
	exit 3
}
`)

	out, code := runHarness(t, dir)
	assert.Equal(t, 1, code)
	assert.Contains(t, out, "test_bails_out: test exited with status 3")
}

func TestE2E_NoTestsIsAFailure(t *testing.T) {
	dir := t.TempDir()

	out, code := runHarness(t, dir)
	assert.Equal(t, 1, code)
	assert.Contains(t, out, "WARNING: RAN NO TESTS")
}

func TestE2E_SyntaxErrorAbortsRun(t *testing.T) {
	dir := t.TempDir()
	writeTestFile(t, dir, "broken_test", `
test_never_runs() {
`)
	writeTestFile(t, dir, "fine_test", `
test_fine() {
	assert_equals "a" "a"
}
`)

	out, code := runHarness(t, dir)
	assert.Equal(t, 1, code)
	assert.Contains(t, out, "syntax check failed")
	// The run stops before any summary.
	assert.NotContains(t, out, "Ran ")
}

func TestE2E_VerboseOutput(t *testing.T) {
	dir := t.TempDir()
	writeTestFile(t, dir, "sample_test", `
test_ok() {
	assert_equals "a" "a"
}
`)

	out, code := runHarness(t, "--verbose", dir)
	assert.Equal(t, 0, code)
	assert.Contains(t, out, "test_ok PASSED")
	assert.Contains(t, out, "Test Results")
}

func TestE2E_KeepPreservesPriorRuns(t *testing.T) {
	dir := t.TempDir()
	writeTestFile(t, dir, "sample_test", `
test_ok() {
	assert_equals "a" "a"
}
`)
	resultDir := filepath.Join(t.TempDir(), "results")

	for i := 0; i < 2; i++ {
		cmd := exec.Command(harnessBin, "--result-dir", resultDir, "--keep", dir)
		_, err := cmd.CombinedOutput()
		require.NoError(t, err)
	}

	entries, err := os.ReadDir(resultDir)
	require.NoError(t, err)
	assert.Len(t, entries, 2)
}

func TestE2E_DefaultCleanupWipesPriorRuns(t *testing.T) {
	dir := t.TempDir()
	writeTestFile(t, dir, "sample_test", `
test_ok() {
	assert_equals "a" "a"
}
`)
	resultDir := filepath.Join(t.TempDir(), "results")

	for i := 0; i < 2; i++ {
		cmd := exec.Command(harnessBin, "--result-dir", resultDir, dir)
		_, err := cmd.CombinedOutput()
		require.NoError(t, err)
	}

	entries, err := os.ReadDir(resultDir)
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestE2E_ExplicitFileArgument(t *testing.T) {
	dir := t.TempDir()
	// Explicit files bypass the suffix and shebang rules.
	file := filepath.Join(dir, "checks.sh")
	require.NoError(t, os.WriteFile(file, []byte(`test_direct() {
	assert_equals "a" "a"
}
`), 0755))

	out, code := runHarness(t, file)
	assert.Equal(t, 0, code)
	assert.Contains(t, out, "Ran 1 tests. 1 passed. 0 failed.")
}

func TestE2E_RecordFilesWrittenPerTest(t *testing.T) {
	dir := t.TempDir()
	writeTestFile(t, dir, "sample_test", `
test_ok() {
	echo "some output"
	assert_equals "a" "a"
}
`)
	resultDir := filepath.Join(t.TempDir(), "results")

	cmd := exec.Command(harnessBin, "--result-dir", resultDir, dir)
	_, err := cmd.CombinedOutput()
	require.NoError(t, err)

	runs, err := os.ReadDir(resultDir)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	recordDir := filepath.Join(resultDir, runs[0].Name(), "test_ok")

	status, err := os.ReadFile(filepath.Join(recordDir, "status"))
	require.NoError(t, err)
	assert.Equal(t, "SUCCESS", string(status))

	stdout, err := os.ReadFile(filepath.Join(recordDir, "stdout"))
	require.NoError(t, err)
	assert.Contains(t, string(stdout), "some output")

	assertions, err := os.ReadFile(filepath.Join(recordDir, "assertions"))
	require.NoError(t, err)
	assert.Contains(t, string(assertions), "assert_equals")

	exitCode, err := os.ReadFile(filepath.Join(recordDir, "exit_code"))
	require.NoError(t, err)
	assert.Equal(t, "0\n", string(exitCode))

	summary, err := os.ReadFile(filepath.Join(resultDir, runs[0].Name(), "summary.log"))
	require.NoError(t, err)
	assert.Contains(t, string(summary), "Ran 1 tests. 1 passed. 0 failed.")
}
