// Package resultstore implements the filesystem-backed result area for a
// test run: one directory per test, holding status, error-message,
// exit-code, stdout and assertion-log files. The files double as the IPC
// channel between the harness and the test subprocess tree, and are left on
// disk after the run for post-mortem inspection.
package resultstore

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/ethereum/go-ethereum/log"
)

// Status values as persisted in a record's status file. Absence of the file
// means the test is still in flight.
const (
	StatusSuccess = "SUCCESS"
	StatusFailure = "FAILURE"
)

// Per-record file names.
const (
	StatusFile     = "status"
	ErrorFile      = "error_message"
	ExitCodeFile   = "exit_code"
	StdoutFile     = "stdout"
	AssertionsFile = "assertions"
)

// RunDirectoryPrefix is the standardized prefix for per-run directories
// under the store's base directory.
const RunDirectoryPrefix = "testrun-"

// CleanupPolicy controls when the base directory is cleared.
type CleanupPolicy string

const (
	// CleanupOnStart wipes the whole base directory when the store is
	// opened, so only the current run's artifacts exist at the well-known
	// path.
	CleanupOnStart CleanupPolicy = "start"
	// CleanupNever preserves prior runs; each run keeps its own
	// testrun-<runID> directory.
	CleanupNever CleanupPolicy = "never"
)

// ParseCleanupPolicy converts a string into a CleanupPolicy.
func ParseCleanupPolicy(s string) (CleanupPolicy, error) {
	switch CleanupPolicy(s) {
	case CleanupOnStart, CleanupNever:
		return CleanupPolicy(s), nil
	default:
		return "", fmt.Errorf("invalid cleanup policy %q (must be %q or %q)", s, CleanupOnStart, CleanupNever)
	}
}

// Store owns the result directory tree for one run. Records are partitioned
// per test name, so no locking is needed: each record is touched by exactly
// one subprocess tree at a time.
type Store struct {
	baseDir string
	runDir  string
	runID   string
	log     log.Logger
}

// Config holds configuration for opening a store.
type Config struct {
	BaseDir string
	RunID   string
	Cleanup CleanupPolicy
	Log     log.Logger
}

// NewStore prepares the result directory tree for a run, applying the
// configured cleanup policy to the base directory first.
func NewStore(cfg Config) (*Store, error) {
	if cfg.BaseDir == "" {
		return nil, fmt.Errorf("base directory is required")
	}
	if cfg.RunID == "" {
		return nil, fmt.Errorf("runID cannot be empty")
	}
	if cfg.Log == nil {
		cfg.Log = log.New()
	}
	if cfg.Cleanup == "" {
		cfg.Cleanup = CleanupOnStart
	}

	if cfg.Cleanup == CleanupOnStart {
		if err := os.RemoveAll(cfg.BaseDir); err != nil {
			return nil, fmt.Errorf("failed to clear result root %s: %w", cfg.BaseDir, err)
		}
	}

	runDir := filepath.Join(cfg.BaseDir, RunDirectoryPrefix+cfg.RunID)
	if err := os.MkdirAll(runDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create run directory %s: %w", runDir, err)
	}

	cfg.Log.Debug("Opened result store", "run_dir", runDir, "cleanup", cfg.Cleanup)

	return &Store{
		baseDir: cfg.BaseDir,
		runDir:  runDir,
		runID:   cfg.RunID,
		log:     cfg.Log,
	}, nil
}

// RunID returns the run identifier this store was opened for.
func (s *Store) RunID() string {
	return s.runID
}

// RunDir returns the per-run directory holding all test records.
func (s *Store) RunDir() string {
	return s.runDir
}

// Exists reports whether a record directory already exists for the test.
func (s *Store) Exists(testName string) bool {
	_, err := os.Stat(filepath.Join(s.runDir, testName))
	return err == nil
}

// Create makes a fresh record directory for the test. It fails if a
// directory for that name already exists, which doubles as duplicate
// test-name detection within a run.
func (s *Store) Create(testName string) (*Record, error) {
	if testName == "" {
		return nil, fmt.Errorf("test name cannot be empty")
	}
	dir := filepath.Join(s.runDir, testName)
	if err := os.Mkdir(dir, 0755); err != nil {
		if os.IsExist(err) {
			return nil, fmt.Errorf("record for test %q already exists", testName)
		}
		return nil, fmt.Errorf("failed to create record directory for %q: %w", testName, err)
	}
	return &Record{name: testName, dir: dir}, nil
}

// OpenRecord attaches to an existing record directory. Used by the
// child-side assertion commands, which receive the directory path from the
// generated test script.
func OpenRecord(dir string) (*Record, error) {
	info, err := os.Stat(dir)
	if err != nil {
		return nil, fmt.Errorf("record directory %s: %w", dir, err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("record path %s is not a directory", dir)
	}
	return &Record{name: filepath.Base(dir), dir: dir}, nil
}

// Counts aggregates recorded statuses across one run.
type Counts struct {
	Total   int
	Passed  int
	Failed  int
	Unknown []string // test names with unrecognized status values
}

// Scan walks the run directory and recomputes pass/fail counts from the
// recorded status files. Records without a status file count as failed (the
// test never completed classification).
func (s *Store) Scan() (Counts, error) {
	var counts Counts
	entries, err := os.ReadDir(s.runDir)
	if err != nil {
		return counts, fmt.Errorf("failed to scan run directory: %w", err)
	}
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		counts.Total++
		rec := &Record{name: entry.Name(), dir: filepath.Join(s.runDir, entry.Name())}
		status, ok, err := rec.ReadStatus()
		if err != nil {
			return counts, err
		}
		switch {
		case !ok:
			counts.Failed++
		case status == StatusSuccess:
			counts.Passed++
		case status == StatusFailure:
			counts.Failed++
		default:
			counts.Unknown = append(counts.Unknown, entry.Name())
		}
	}
	return counts, nil
}

// Record is the persisted outcome artifacts for one test case. It is owned
// exclusively by that test; the only discipline required is "create before
// write, never reuse a test's directory within a run".
type Record struct {
	name string
	dir  string
}

// Name returns the test name the record belongs to.
func (r *Record) Name() string { return r.name }

// Dir returns the record's directory path.
func (r *Record) Dir() string { return r.dir }

// ExitCodePath returns the path of the exit-code file. The generated test
// script writes the test function's exit status here on normal return.
func (r *Record) ExitCodePath() string {
	return filepath.Join(r.dir, ExitCodeFile)
}

// WriteStatus records the final status. The first writer wins: once a status
// has been written it is never overwritten.
func (r *Record) WriteStatus(status string) error {
	if status != StatusSuccess && status != StatusFailure {
		return fmt.Errorf("invalid status %q", status)
	}
	f, err := os.OpenFile(filepath.Join(r.dir, StatusFile), os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0644)
	if err != nil {
		if os.IsExist(err) {
			return nil
		}
		return fmt.Errorf("failed to write status for %q: %w", r.name, err)
	}
	defer f.Close()
	_, err = f.WriteString(status)
	return err
}

// ReadStatus returns the recorded status, with ok=false while the test is
// still in flight.
func (r *Record) ReadStatus() (status string, ok bool, err error) {
	data, err := os.ReadFile(filepath.Join(r.dir, StatusFile))
	if os.IsNotExist(err) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("failed to read status for %q: %w", r.name, err)
	}
	return strings.TrimSpace(string(data)), true, nil
}

// WriteError records the failure explanation. Like status, the first writer
// wins; a later write is silently dropped so the original failure cause is
// preserved.
func (r *Record) WriteError(message string) error {
	f, err := os.OpenFile(filepath.Join(r.dir, ErrorFile), os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0644)
	if err != nil {
		if os.IsExist(err) {
			return nil
		}
		return fmt.Errorf("failed to write error message for %q: %w", r.name, err)
	}
	defer f.Close()
	_, err = f.WriteString(message)
	return err
}

// HasError reports whether a failure explanation has been recorded.
func (r *Record) HasError() bool {
	_, err := os.Stat(filepath.Join(r.dir, ErrorFile))
	return err == nil
}

// ReadError returns the recorded failure explanation, if any.
func (r *Record) ReadError() (string, bool, error) {
	data, err := os.ReadFile(filepath.Join(r.dir, ErrorFile))
	if os.IsNotExist(err) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("failed to read error message for %q: %w", r.name, err)
	}
	return string(data), true, nil
}

// ReadExitCode returns the subprocess exit status, with ok=false when the
// test died before writing it.
func (r *Record) ReadExitCode() (code int, ok bool, err error) {
	data, err := os.ReadFile(r.ExitCodePath())
	if os.IsNotExist(err) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("failed to read exit code for %q: %w", r.name, err)
	}
	code, err = strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil {
		return 0, false, fmt.Errorf("malformed exit code for %q: %w", r.name, err)
	}
	return code, true, nil
}

// AppendAssertion adds one entry to the append-only assertion log, in call
// order.
func (r *Record) AppendAssertion(entry string) error {
	f, err := os.OpenFile(filepath.Join(r.dir, AssertionsFile), os.O_WRONLY|os.O_CREATE|os.O_APPEND, 0644)
	if err != nil {
		return fmt.Errorf("failed to open assertion log for %q: %w", r.name, err)
	}
	defer f.Close()
	_, err = f.WriteString(entry + "\n")
	return err
}

// HasAssertions reports whether any assertion was recorded for the test.
func (r *Record) HasAssertions() bool {
	info, err := os.Stat(filepath.Join(r.dir, AssertionsFile))
	return err == nil && info.Size() > 0
}

// ReadAssertions returns the recorded assertion entries in call order.
func (r *Record) ReadAssertions() ([]string, error) {
	data, err := os.ReadFile(filepath.Join(r.dir, AssertionsFile))
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read assertion log for %q: %w", r.name, err)
	}
	lines := strings.Split(strings.TrimRight(string(data), "\n"), "\n")
	if len(lines) == 1 && lines[0] == "" {
		return nil, nil
	}
	return lines, nil
}

// WriteStdout persists the captured combined output of the subprocess tree.
func (r *Record) WriteStdout(output string) error {
	return os.WriteFile(filepath.Join(r.dir, StdoutFile), []byte(output), 0644)
}

// ReadStdout returns the captured output of the subprocess tree.
func (r *Record) ReadStdout() (string, error) {
	data, err := os.ReadFile(filepath.Join(r.dir, StdoutFile))
	if os.IsNotExist(err) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to read stdout for %q: %w", r.name, err)
	}
	return string(data), nil
}
