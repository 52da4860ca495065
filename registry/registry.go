// Package registry populates the test-case registry: it discovers candidate
// test files on the filesystem, validates their syntax, and enumerates the
// test functions each file declares. The core executor consumes only the
// ordered sequence of test cases this package exposes.
package registry

import (
	"bufio"
	"context"
	"fmt"
	"io/fs"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum/log"

	"github.com/shelltools/shtest/types"
)

const (
	// DefaultSuffix is the fixed file-name suffix test files must carry.
	DefaultSuffix = "_test"
	// TestFunctionPrefix selects which declared functions are test cases.
	TestFunctionPrefix = "test"
)

// Registry manages discovered test files and their test functions.
type Registry struct {
	config Config
	files  []string
	mu     sync.RWMutex
}

// Config contains registry configuration.
type Config struct {
	Log         log.Logger
	Paths       []string // files or directories to search; defaults to the current directory
	Suffix      string   // file-name suffix for discovery; defaults to DefaultSuffix
	ShellBinary string   // shell used for syntax checks and enumeration
}

// NewRegistry creates a new registry instance and discovers test files.
func NewRegistry(cfg Config) (*Registry, error) {
	if cfg.Log == nil {
		cfg.Log = log.New()
		cfg.Log.Error("No logger provided, using default")
	}
	if len(cfg.Paths) == 0 {
		cfg.Paths = []string{"."}
	}
	if cfg.Suffix == "" {
		cfg.Suffix = DefaultSuffix
	}
	if cfg.ShellBinary == "" {
		cfg.ShellBinary = "bash"
	}

	r := &Registry{config: cfg}
	if err := r.discover(); err != nil {
		return nil, fmt.Errorf("failed to discover test files: %w", err)
	}

	cfg.Log.Debug("Registry loaded", "len(files)", len(r.files))

	return r, nil
}

// discover walks the configured paths and collects qualifying test files.
// Files named explicitly are taken as-is; inside directories, only files
// whose name ends in the configured suffix and whose content identifies an
// executable shell script qualify.
func (r *Registry) discover() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	var files []string
	for _, path := range r.config.Paths {
		info, err := os.Stat(path)
		if err != nil {
			return fmt.Errorf("cannot access %s: %w", path, err)
		}
		if !info.IsDir() {
			files = append(files, path)
			continue
		}
		err = filepath.WalkDir(path, func(p string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if d.IsDir() {
				return nil
			}
			if !strings.HasSuffix(d.Name(), r.config.Suffix) {
				return nil
			}
			ok, err := isShellScript(p)
			if err != nil {
				return err
			}
			if ok {
				files = append(files, p)
			}
			return nil
		})
		if err != nil {
			return fmt.Errorf("walking %s: %w", path, err)
		}
	}
	sort.Strings(files)
	r.files = files
	return nil
}

// isShellScript reports whether the file's first line is a shell shebang.
func isShellScript(path string) (bool, error) {
	f, err := os.Open(path)
	if err != nil {
		return false, fmt.Errorf("opening %s: %w", path, err)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	if !scanner.Scan() {
		return false, scanner.Err()
	}
	line := scanner.Text()
	return strings.HasPrefix(line, "#!") && strings.Contains(line, "sh"), nil
}

// TestFiles returns the discovered test files in deterministic order.
func (r *Registry) TestFiles() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	files := make([]string, len(r.files))
	copy(files, r.files)
	return files
}

// CheckSyntax validates the file with the shell's no-exec mode. A syntax
// error is more severe than a test failure: the caller aborts the whole run.
func (r *Registry) CheckSyntax(ctx context.Context, file string) error {
	cmd := exec.CommandContext(ctx, r.config.ShellBinary, "--norc", "--noprofile", "-n", file)
	output, err := cmd.CombinedOutput()
	if err != nil {
		return fmt.Errorf("syntax check failed for %s: %s", file, strings.TrimSpace(string(output)))
	}
	return nil
}

// EnumerateTests sources the file in a throwaway subshell and returns the
// declared functions whose names match the test prefix, as ordered test
// cases. The subshell's own output is discarded so top-level noise in the
// file does not leak into the harness output.
func (r *Registry) EnumerateTests(ctx context.Context, file string) ([]types.TestCase, error) {
	script := fmt.Sprintf("set -e\nsource %s >/dev/null 2>&1\ndeclare -F", shellQuote(file))
	cmd := exec.CommandContext(ctx, r.config.ShellBinary, "--norc", "--noprofile", "-c", script)

	output, err := cmd.Output()
	if err != nil {
		return nil, fmt.Errorf("failed to enumerate tests in %s: %w", file, err)
	}

	var cases []types.TestCase
	for _, line := range strings.Split(string(output), "\n") {
		// declare -F prints "declare -f <name>" per declared function.
		fields := strings.Fields(line)
		if len(fields) != 3 {
			continue
		}
		name := fields[2]
		if !strings.HasPrefix(name, TestFunctionPrefix) {
			continue
		}
		cases = append(cases, types.TestCase{Name: name, SourceFile: file})
	}

	r.config.Log.Debug("Enumerated tests", "file", file, "count", len(cases))

	return cases, nil
}

// shellQuote single-quotes a string for safe embedding in a shell program.
func shellQuote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}
