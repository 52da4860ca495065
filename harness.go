// Package shtest implements the run orchestrator: it discovers shell test
// files, runs every test function in its own isolated subprocess, aggregates
// the recorded outcomes and maps them to a process exit code.
package shtest

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"github.com/shelltools/shtest/metrics"
	"github.com/shelltools/shtest/registry"
	"github.com/shelltools/shtest/resultstore"
	"github.com/shelltools/shtest/runner"
	"github.com/shelltools/shtest/types"
)

// Harness drives one or more test runs over the discovered test files.
type Harness struct {
	ctx      context.Context
	config   *Config
	version  string
	registry *registry.Registry
	result   *RunResult
	stdout   io.Writer
	tracer   trace.Tracer

	running atomic.Bool
	done    chan struct{}
	wg      sync.WaitGroup

	shutdownCallback func(error) // Callback to signal application shutdown
}

// RunResult aggregates one run's outcomes. Counts are recomputed from the
// result store after all tests complete, so the summary reflects what was
// actually recorded on disk.
type RunResult struct {
	RunID            string
	Results          []*types.TestResult
	Counts           resultstore.Counts
	InvocationErrors int // tests rejected before a record was created
	Duration         time.Duration
}

// Failed reports whether the run must exit non-zero: success requires at
// least one test ran and zero failures.
func (r *RunResult) Failed() bool {
	return r.Counts.Total == 0 || r.Counts.Failed > 0 || r.InvocationErrors > 0
}

// Status maps the run outcome onto a test status for metrics.
func (r *RunResult) Status() types.TestStatus {
	switch {
	case len(r.Counts.Unknown) > 0:
		return types.TestStatusError
	case r.Failed():
		return types.TestStatusFail
	default:
		return types.TestStatusPass
	}
}

// Summary returns the human-readable one-line run summary.
func (r *RunResult) Summary() string {
	if r.Counts.Total == 0 {
		return "WARNING: RAN NO TESTS"
	}
	return fmt.Sprintf("Ran %d tests. %d passed. %d failed.",
		r.Counts.Total, r.Counts.Passed, r.Counts.Failed)
}

// New creates a harness and discovers the test files for the configured
// paths.
func New(ctx context.Context, config *Config, version string, shutdownCallback func(error)) (*Harness, error) {
	if config == nil {
		return nil, errors.New("config is required")
	}

	config.Log.Debug("Creating harness with config",
		"paths", config.Paths,
		"resultDir", config.ResultDir,
		"shell", config.Shell,
		"suffix", config.Suffix,
		"runInterval", config.RunInterval,
		"runOnce", config.RunOnce,
		"cleanup", config.Cleanup)

	reg, err := registry.NewRegistry(registry.Config{
		Log:         config.Log,
		Paths:       config.Paths,
		Suffix:      config.Suffix,
		ShellBinary: config.Shell,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create registry: %w", err)
	}

	return &Harness{
		ctx:              ctx,
		config:           config,
		version:          version,
		registry:         reg,
		stdout:           os.Stdout,
		tracer:           otel.Tracer("test harness"),
		done:             make(chan struct{}),
		shutdownCallback: shutdownCallback,
	}, nil
}

// SetStdout redirects the harness's user-facing output. Used in tests.
func (h *Harness) SetStdout(w io.Writer) {
	h.stdout = w
}

// Result returns the most recent run's aggregated result.
func (h *Harness) Result() *RunResult {
	return h.result
}

// Start runs the tests, once or periodically at the configured interval.
func (h *Harness) Start(ctx context.Context) error {
	h.ctx = ctx
	h.done = make(chan struct{})
	h.running.Store(true)

	if h.config.RunOnce {
		h.config.Log.Info("Starting shtest in run-once mode")
	} else {
		h.config.Log.Info("Starting shtest in continuous mode", "interval", h.config.RunInterval)
	}

	if err := h.runTests(ctx); err != nil {
		return err
	}

	if h.config.RunOnce {
		h.running.Store(false)
		if h.result.Failed() {
			return NewTestFailureError(h.result.Summary())
		}
		go func() {
			h.shutdownCallback(nil)
		}()
		return nil
	}

	h.wg.Add(1)
	go func() {
		defer h.wg.Done()
		h.config.Log.Debug("Starting periodic test runner goroutine", "interval", h.config.RunInterval)

		for {
			select {
			case <-time.After(h.config.RunInterval):
				if !h.running.Load() {
					h.config.Log.Debug("Service stopped, exiting periodic test runner")
					return
				}
				h.config.Log.Info("Running periodic tests")
				if err := h.runTests(ctx); err != nil {
					h.config.Log.Error("Error running periodic tests", "error", err)
					metrics.RecordErrorDetails("periodic run failed", err)
				}

			case <-h.done:
				h.config.Log.Debug("Done signal received, stopping periodic test runner")
				return

			case <-ctx.Done():
				h.config.Log.Debug("Context canceled, stopping periodic test runner")
				h.running.Store(false)
				return
			}
		}
	}()
	h.config.Log.Debug("shtest started successfully")
	return nil
}

// runTests performs one full run: open a fresh result store, execute every
// enumerated test sequentially, then recount from the store and summarize.
func (h *Harness) runTests(ctx context.Context) error {
	ctx, span := h.tracer.Start(ctx, "test run")
	defer span.End()

	start := time.Now()
	runID := uuid.New().String()
	h.config.Log.Info("Running all tests...", "run_id", runID)

	store, err := resultstore.NewStore(resultstore.Config{
		BaseDir: h.config.ResultDir,
		RunID:   runID,
		Cleanup: h.config.Cleanup,
		Log:     h.config.Log,
	})
	if err != nil {
		return NewRuntimeError(fmt.Errorf("failed to initialize result store: %w", err))
	}

	testRunner, err := runner.NewTestRunner(runner.Config{
		Store:       store,
		ShellBinary: h.config.Shell,
		Verbose:     h.config.Verbose,
		Stdout:      h.stdout,
		Log:         h.config.Log,
	})
	if err != nil {
		return NewRuntimeError(fmt.Errorf("failed to create test runner: %w", err))
	}

	result := &RunResult{RunID: runID}
	for _, file := range h.registry.TestFiles() {
		if err := h.runFile(ctx, testRunner, file, result); err != nil {
			return err
		}
	}
	if !h.config.Verbose && len(result.Results)+result.InvocationErrors > 0 {
		fmt.Fprintln(h.stdout)
	}

	counts, err := store.Scan()
	if err != nil {
		return NewRuntimeError(fmt.Errorf("failed to recount results: %w", err))
	}
	result.Counts = counts
	result.Duration = time.Since(start)
	h.result = result

	for _, name := range counts.Unknown {
		fmt.Fprintf(h.stdout, "INTERNAL ERROR %s: unrecognized status value\n", name)
	}

	if h.config.Verbose {
		h.printResultsTable(result)
	}

	summary := result.Summary()
	fmt.Fprintln(h.stdout, summary)

	// The run directory stays on disk for post-mortem inspection; the
	// summary lands there too.
	summaryFile := filepath.Join(store.RunDir(), "summary.log")
	if err := os.WriteFile(summaryFile, []byte(summary+"\n"), 0644); err != nil {
		h.config.Log.Error("Failed to write summary file", "path", summaryFile, "error", err)
	}

	metrics.RecordRun(runID, result.Status(), counts.Total, counts.Passed, counts.Failed, result.Duration)
	h.config.Log.Info("Test run completed",
		"run_id", runID,
		"total", counts.Total,
		"passed", counts.Passed,
		"failed", counts.Failed,
		"duration", result.Duration)
	return nil
}

// runFile syntax-checks one test file, enumerates its test functions and
// executes each. A syntax or enumeration error aborts the entire run; a
// rejected test invocation (bad name, duplicate) fails only that test.
func (h *Harness) runFile(ctx context.Context, testRunner runner.TestRunner, file string, result *RunResult) error {
	ctx, span := h.tracer.Start(ctx, fmt.Sprintf("file %s", file))
	defer span.End()

	if err := h.registry.CheckSyntax(ctx, file); err != nil {
		return NewRuntimeError(err)
	}
	cases, err := h.registry.EnumerateTests(ctx, file)
	if err != nil {
		return NewRuntimeError(err)
	}

	for _, tc := range cases {
		res, err := testRunner.RunTest(ctx, tc)
		if err != nil {
			result.InvocationErrors++
			fmt.Fprintf(h.stdout, "\n%s: %v\n", tc.Name, err)
			metrics.RecordErrorDetails("test invocation rejected", err)
			continue
		}
		result.Results = append(result.Results, res)
		if !h.config.Verbose {
			if res.Passed() {
				fmt.Fprint(h.stdout, ".")
			} else {
				fmt.Fprint(h.stdout, "F")
			}
		}
	}
	return nil
}

// Stop stops the harness.
func (h *Harness) Stop(ctx context.Context) error {
	h.config.Log.Info("Stopping shtest")

	if !h.running.Load() {
		h.config.Log.Debug("Service already stopped, nothing to do")
		return nil
	}

	h.running.Store(false)
	close(h.done)

	h.config.Log.Info("shtest stopped successfully")
	return nil
}

// Stopped returns true if the harness is stopped.
func (h *Harness) Stopped() bool {
	return !h.running.Load()
}

// WaitForShutdown blocks until all goroutines have terminated.
func (h *Harness) WaitForShutdown(ctx context.Context) error {
	h.config.Log.Debug("Waiting for all goroutines to terminate")

	done := make(chan struct{})
	go func() {
		h.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		h.config.Log.Warn("Timed out waiting for goroutines to terminate", "error", ctx.Err())
		return ctx.Err()
	}
}
