// Package runner implements the test executor: it spawns one isolated shell
// session per test case, wires it to the result store, waits for the
// subprocess tree to exit, and classifies the outcome from the record files.
package runner

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"syscall"
	"time"

	"github.com/acarl005/stripansi"
	"github.com/ethereum/go-ethereum/log"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"github.com/shelltools/shtest/metrics"
	"github.com/shelltools/shtest/resultstore"
	"github.com/shelltools/shtest/types"
)

// DefaultShellBinary is used when no shell is configured.
const DefaultShellBinary = "bash"

// TestRunner defines the interface for executing test cases.
type TestRunner interface {
	// RunTest executes a single test case in an isolated subprocess and
	// classifies its outcome. The returned error covers invocation problems
	// only (bad name, duplicate); a failing or crashing test is a normal
	// result, not an error.
	RunTest(ctx context.Context, tc types.TestCase) (*types.TestResult, error)
}

// runner struct implements the TestRunner interface
type runner struct {
	store         *resultstore.Store
	shellBinary   string
	harnessBinary string
	verbose       bool
	stdout        io.Writer
	log           log.Logger
	tracer        trace.Tracer
}

// Config holds configuration for creating a new runner
type Config struct {
	Store         *resultstore.Store
	ShellBinary   string // path to the shell used to run tests
	HarnessBinary string // path to the shtest binary the test script calls back into
	Verbose       bool
	Stdout        io.Writer // destination for per-test reporting; defaults to os.Stdout
	Log           log.Logger
}

// NewTestRunner creates a new test runner instance
func NewTestRunner(cfg Config) (TestRunner, error) {
	if cfg.Store == nil {
		return nil, fmt.Errorf("result store is required")
	}
	if cfg.Log == nil {
		cfg.Log = log.New()
		cfg.Log.Error("No logger provided, using default")
	}
	if cfg.ShellBinary == "" {
		cfg.ShellBinary = DefaultShellBinary
	}
	if cfg.HarnessBinary == "" {
		bin, err := os.Executable()
		if err != nil {
			return nil, fmt.Errorf("failed to resolve harness binary: %w", err)
		}
		cfg.HarnessBinary = bin
	}
	if cfg.Stdout == nil {
		cfg.Stdout = os.Stdout
	}

	cfg.Log.Debug("NewTestRunner()",
		"shellBinary", cfg.ShellBinary,
		"harnessBinary", cfg.HarnessBinary,
		"verbose", cfg.Verbose)

	return &runner{
		store:         cfg.Store,
		shellBinary:   cfg.ShellBinary,
		harnessBinary: cfg.HarnessBinary,
		verbose:       cfg.Verbose,
		stdout:        cfg.Stdout,
		log:           cfg.Log,
		tracer:        otel.Tracer("test runner"),
	}, nil
}

// RunTest implements the TestRunner interface
func (r *runner) RunTest(ctx context.Context, tc types.TestCase) (*types.TestResult, error) {
	ctx, span := r.tracer.Start(ctx, fmt.Sprintf("test %s", tc.Name))
	defer span.End()

	if err := tc.Validate(); err != nil {
		return nil, err
	}
	if r.store.Exists(tc.Name) {
		return nil, fmt.Errorf("test %q already ran", tc.Name)
	}

	rec, err := r.store.Create(tc.Name)
	if err != nil {
		return nil, err
	}

	script, err := renderScript(scriptParams{
		HarnessBinary: r.harnessBinary,
		RecordDir:     rec.Dir(),
		SourceFile:    tc.SourceFile,
		TestName:      tc.Name,
		ExitCodeFile:  rec.ExitCodePath(),
		Verbose:       r.verbose,
	})
	if err != nil {
		return nil, err
	}

	// --norc/--noprofile keep the child environment reproducible; Setsid
	// gives the test its own session so a runaway test cannot signal the
	// harness, and so the fail primitive can address the whole tree as one
	// process group.
	cmd := exec.CommandContext(ctx, r.shellBinary, "--norc", "--noprofile", "-c", script)
	cmd.SysProcAttr = &syscall.SysProcAttr{Setsid: true}

	var output bytes.Buffer
	cmd.Stdout = &output
	cmd.Stderr = &output

	r.log.Info("Running test", "test", tc.Name, "file", tc.SourceFile)
	start := time.Now()
	if runErr := cmd.Run(); runErr != nil {
		// The subprocess exit status carries no verdict; the record files
		// do. A non-zero exit here is expected for failing tests.
		r.log.Debug("Test subprocess exited non-zero", "test", tc.Name, "error", runErr)
	}
	duration := time.Since(start)

	captured := stripansi.Strip(output.String())
	if err := rec.WriteStdout(captured); err != nil {
		r.log.Error("Failed to persist captured output", "test", tc.Name, "error", err)
	}

	result := r.classify(rec, tc)
	result.Duration = duration
	result.Stdout = captured

	metrics.RecordTest(r.store.RunID(), tc.Name, result.Status)
	r.report(result)

	return result, nil
}

// classify derives the test verdict from the record files, in priority
// order:
//  1. an error-message field means an assertion or fail call recorded an
//     explicit failure;
//  2. a missing exit-code field means the test died before completing;
//  3. a non-zero exit code means the test aborted without calling fail;
//  4. an empty assertion log means the test passed vacuously, which counts
//     as a failure;
//  5. otherwise the test passed.
func (r *runner) classify(rec *resultstore.Record, tc types.TestCase) *types.TestResult {
	result := &types.TestResult{Case: tc}

	msg, hasError, err := rec.ReadError()
	if err != nil {
		r.log.Error("Failed to read error message", "test", tc.Name, "error", err)
	}
	code, hasCode, err := rec.ReadExitCode()
	if err != nil {
		r.log.Error("Failed to read exit code", "test", tc.Name, "error", err)
	}
	result.ExitCode = code
	result.HasExitCode = hasCode

	switch {
	case hasError:
		r.markFailed(rec, result, msg, false)
	case !hasCode:
		r.markFailed(rec, result, "no exit status: did the test die?", true)
	case code != 0:
		r.markFailed(rec, result, fmt.Sprintf("test exited with status %d", code), true)
	case !rec.HasAssertions():
		r.markFailed(rec, result, "no assertions made", true)
	default:
		result.Status = types.TestStatusPass
		if err := rec.WriteStatus(resultstore.StatusSuccess); err != nil {
			r.log.Error("Failed to write success status", "test", tc.Name, "error", err)
		}
	}

	// Cross-check the persisted status; an unrecognized value is an
	// internal-consistency error, reported distinctly from a failure.
	status, ok, err := rec.ReadStatus()
	if err != nil {
		r.log.Error("Failed to read back status", "test", tc.Name, "error", err)
	}
	if ok && status != resultstore.StatusSuccess && status != resultstore.StatusFailure {
		result.Status = types.TestStatusError
		result.Error = fmt.Errorf("internal error: unexpected status %q for test %s", status, tc.Name)
	}

	return result
}

// markFailed records a classification failure. For crash-classified
// failures (record=true) the diagnostic is also persisted so the record
// explains itself post-mortem; explicit fail-call failures already carry
// their own message.
func (r *runner) markFailed(rec *resultstore.Record, result *types.TestResult, msg string, record bool) {
	result.Status = types.TestStatusFail
	result.Error = errors.New(msg)
	if record {
		if err := rec.WriteError(msg); err != nil {
			r.log.Error("Failed to persist failure diagnostic", "test", result.Case.Name, "error", err)
		}
	}
	if err := rec.WriteStatus(resultstore.StatusFailure); err != nil {
		r.log.Error("Failed to write failure status", "test", result.Case.Name, "error", err)
	}
}

// report prints the per-test outcome. In verbose mode every test echoes its
// verdict; in quiet mode only failures are printed, without the word FAILED
// (the orchestrator's progress characters carry the verdict).
func (r *runner) report(result *types.TestResult) {
	name := result.Case.Name
	switch {
	case result.Status == types.TestStatusError:
		fmt.Fprintf(r.stdout, "INTERNAL ERROR %s: %v\n", name, result.Error)
	case r.verbose && result.Passed():
		fmt.Fprintf(r.stdout, "%s PASSED\n", name)
	case r.verbose:
		fmt.Fprintf(r.stdout, "%s FAILED: %v\n", name, result.Error)
	case !result.Passed():
		fmt.Fprintf(r.stdout, "\n%s: %v\n", name, result.Error)
	}
}
