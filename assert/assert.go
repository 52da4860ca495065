// Package assert implements the assertion engine and the fail primitive.
// Every predicate follows one contract: record the assertion attempt
// unconditionally (an audit trail even for passing assertions), evaluate the
// predicate, and on failure route through Fail, which marks the test failed
// idempotently and aborts the test's process group.
package assert

import (
	"fmt"
	"os"
	"regexp"
	"strings"
	"syscall"

	"github.com/ethereum/go-ethereum/log"

	"github.com/shelltools/shtest/resultstore"
)

// MaxStackDepth bounds how many shell frames are rendered into the
// error-message field on an explicit fail.
const MaxStackDepth = 10

// Frame is one level of the shell call chain at the point of failure.
type Frame struct {
	Source   string
	Line     int
	Function string
}

// ParseFrames decodes the newline-separated "source:line:function" stack
// representation produced by the generated test script, innermost first.
func ParseFrames(stack string) []Frame {
	var frames []Frame
	for _, line := range strings.Split(stack, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		// Split from the right: the source path may itself contain colons.
		fnIdx := strings.LastIndex(line, ":")
		if fnIdx <= 0 {
			continue
		}
		function := line[fnIdx+1:]
		rest := line[:fnIdx]
		lineIdx := strings.LastIndex(rest, ":")
		if lineIdx <= 0 {
			continue
		}
		var lineNo int
		_, _ = fmt.Sscanf(rest[lineIdx+1:], "%d", &lineNo)
		frames = append(frames, Frame{
			Source:   rest[:lineIdx],
			Line:     lineNo,
			Function: function,
		})
	}
	return frames
}

// Engine evaluates assertions against one test's result record. It runs in
// the child-side process the test script calls back into, so aborting the
// test is a cross-process concern: the abort signal goes to the test's
// process group, identified by the root process id.
type Engine struct {
	rec     *resultstore.Record
	rootPID int
	log     log.Logger
	kill    func(pid int, sig syscall.Signal) error
}

// Config holds configuration for creating an engine.
type Config struct {
	Record  *resultstore.Record
	RootPID int // process-group root of the running test; 0 disables the abort signal
	Log     log.Logger
	// Kill overrides the abort syscall. Tests inject a recorder here.
	Kill func(pid int, sig syscall.Signal) error
}

// NewEngine creates an assertion engine bound to a result record.
func NewEngine(cfg Config) (*Engine, error) {
	if cfg.Record == nil {
		return nil, fmt.Errorf("result record is required")
	}
	if cfg.Log == nil {
		cfg.Log = log.New()
	}
	if cfg.Kill == nil {
		cfg.Kill = syscall.Kill
	}
	return &Engine{
		rec:     cfg.Record,
		rootPID: cfg.RootPID,
		log:     cfg.Log,
		kill:    cfg.Kill,
	}, nil
}

// record appends an assertion-attempt entry: caller name plus arguments.
func (e *Engine) record(name string, args ...string) {
	entry := name
	for _, arg := range args {
		entry += fmt.Sprintf(" %q", arg)
	}
	if err := e.rec.AppendAssertion(entry); err != nil {
		e.log.Error("Failed to record assertion", "assertion", name, "error", err)
	}
}

// Fail marks the test failed, idempotently, and aborts the current test's
// process group. The message plus the rendered stack trace go into the
// error-message field only if no failure has been recorded yet (first writer
// wins). It returns false so call sites can early-return, but the actual
// termination is driven by the signal: fail may be invoked from a helper
// several stack frames below the point where execution must stop.
func (e *Engine) Fail(message string, frames []Frame) bool {
	e.record("fail", message)
	e.fail(message, frames)
	return false
}

func (e *Engine) fail(message string, frames []Frame) {
	if !e.rec.HasError() {
		if err := e.rec.WriteError(renderFailure(message, frames)); err != nil {
			e.log.Error("Failed to write error message", "error", err)
		}
		if err := e.rec.WriteStatus(resultstore.StatusFailure); err != nil {
			e.log.Error("Failed to write failure status", "error", err)
		}
	}
	if e.rootPID > 0 {
		// Negative pid addresses the whole process group, so helpers
		// spawned by the test body stop along with the test itself.
		if err := e.kill(-e.rootPID, syscall.SIGTERM); err != nil {
			e.log.Error("Failed to signal test process group", "root_pid", e.rootPID, "error", err)
		}
	}
}

// renderFailure formats the error-message field: the descriptive message,
// then the call chain innermost-first, one "at <source>:<line> (<function>)"
// frame per line, bounded by MaxStackDepth.
func renderFailure(message string, frames []Frame) string {
	var b strings.Builder
	b.WriteString(message)
	for i, f := range frames {
		if i >= MaxStackDepth {
			break
		}
		b.WriteString(fmt.Sprintf("\nat %s:%d (%s)", f.Source, f.Line, f.Function))
	}
	return b.String()
}

// prefix prepends the user-supplied message, when present, to the built-in
// description.
func prefix(userMsg, desc string) string {
	if userMsg == "" {
		return desc
	}
	return userMsg + ": " + desc
}

// Equals asserts string equality of expected and actual.
func (e *Engine) Equals(expected, actual, userMsg string) bool {
	e.record("assert_equals", expected, actual)
	if expected == actual {
		return true
	}
	return e.Fail(prefix(userMsg, fmt.Sprintf("expected '%s' but was '%s'", expected, actual)), nil)
}

// Contains asserts that haystack contains needle as a literal substring.
func (e *Engine) Contains(haystack, needle, userMsg string) bool {
	e.record("assert_contains", haystack, needle)
	if strings.Contains(haystack, needle) {
		return true
	}
	return e.Fail(prefix(userMsg, fmt.Sprintf("expected '%s' to contain '%s'", haystack, needle)), nil)
}

// NotContains asserts that haystack does not contain needle.
func (e *Engine) NotContains(haystack, needle, userMsg string) bool {
	e.record("assert_does_not_contain", haystack, needle)
	if !strings.Contains(haystack, needle) {
		return true
	}
	return e.Fail(prefix(userMsg, fmt.Sprintf("expected '%s' to not contain '%s'", haystack, needle)), nil)
}

// Matches asserts that value matches the regular expression pattern. A
// pattern that does not compile fails closed.
func (e *Engine) Matches(pattern, value, userMsg string) bool {
	e.record("assert_matches", pattern, value)
	re, err := regexp.Compile(pattern)
	if err != nil {
		return e.Fail(prefix(userMsg, fmt.Sprintf("invalid pattern '%s': %v", pattern, err)), nil)
	}
	if re.MatchString(value) {
		return true
	}
	return e.Fail(prefix(userMsg, fmt.Sprintf("expected '%s' to match '%s'", value, pattern)), nil)
}

// ArrayEquals asserts ordered element-wise equality of two sequences, with a
// length check first. Each step delegates to the standard failure path, so a
// length mismatch reports like any other failed assertion. The first
// differing index short-circuits further comparison.
func (e *Engine) ArrayEquals(expected, actual []string, userMsg string) bool {
	e.record("assert_array_equals",
		strings.Join(expected, " "), strings.Join(actual, " "))
	if len(expected) != len(actual) {
		return e.Fail(prefix(userMsg, fmt.Sprintf("expected array of length %d but was %d", len(expected), len(actual))), nil)
	}
	for i := range expected {
		if expected[i] != actual[i] {
			return e.Fail(prefix(userMsg, fmt.Sprintf("element at index %d: expected '%s' but was '%s'", i, expected[i], actual[i])), nil)
		}
	}
	return true
}

// ExitValueEquals asserts that a command's observed exit status equals the
// expected one. The command itself runs in the test shell; only the observed
// status crosses the process boundary.
func (e *Engine) ExitValueEquals(expected, actual int, command, userMsg string) bool {
	e.record("assert_exit_value_equals", fmt.Sprintf("%d", expected), fmt.Sprintf("%d", actual), command)
	if expected == actual {
		return true
	}
	return e.Fail(prefix(userMsg, fmt.Sprintf("command '%s' exited with status %d, expected %d", command, actual, expected)), nil)
}

// Succeeds asserts that a command exited with status zero.
func (e *Engine) Succeeds(command string, actual int, userMsg string) bool {
	e.record("assert_succeeds", command, fmt.Sprintf("%d", actual))
	if actual == 0 {
		return true
	}
	return e.Fail(prefix(userMsg, fmt.Sprintf("command '%s' failed with status %d", command, actual)), nil)
}

// Fails asserts that a command exited with a non-zero status.
func (e *Engine) Fails(command string, actual int, userMsg string) bool {
	e.record("assert_fails", command, fmt.Sprintf("%d", actual))
	if actual != 0 {
		return true
	}
	return e.Fail(prefix(userMsg, fmt.Sprintf("command '%s' succeeded, expected failure", command)), nil)
}

// FileDoesNotExist asserts that no file exists at path.
func (e *Engine) FileDoesNotExist(path, userMsg string) bool {
	e.record("assert_file_does_not_exist", path)
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return true
	}
	return e.Fail(prefix(userMsg, fmt.Sprintf("expected file '%s' to not exist", path)), nil)
}
