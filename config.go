package shtest

import (
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"time"

	"github.com/ethereum/go-ethereum/log"
	"github.com/urfave/cli/v2"
	"gopkg.in/yaml.v3"

	"github.com/shelltools/shtest/flags"
	"github.com/shelltools/shtest/resultstore"
)

// Config holds the application configuration
type Config struct {
	Paths       []string                   // test files or directories to run
	ResultDir   string                     // root directory for result records
	Shell       string                     // resolved shell binary path
	Suffix      string                     // discovery file-name suffix
	Verbose     bool                       // per-test echoing + subprocess tracing
	Cleanup     resultstore.CleanupPolicy  // when the result root is wiped
	RunInterval time.Duration              // interval between runs in watch mode
	RunOnce     bool                       // exit after one run
	Tracing     bool                       // OpenTelemetry tracing enabled
	Log         log.Logger
}

// fileConfig mirrors the optional YAML config file. Flags that were set
// explicitly on the command line take precedence over file values.
type fileConfig struct {
	ResultDir string `yaml:"result_dir,omitempty"`
	Shell     string `yaml:"shell,omitempty"`
	Suffix    string `yaml:"suffix,omitempty"`
	Verbose   *bool  `yaml:"verbose,omitempty"`
}

// NewConfig creates a new Config from cli context
func NewConfig(ctx *cli.Context, logger log.Logger, paths []string) (*Config, error) {
	if logger == nil {
		return nil, errors.New("logger is required")
	}

	cfg := &Config{
		Paths:       paths,
		ResultDir:   ctx.String(flags.ResultDir.Name),
		Shell:       ctx.String(flags.Shell.Name),
		Suffix:      ctx.String(flags.Suffix.Name),
		Verbose:     ctx.Bool(flags.Verbose.Name),
		RunInterval: ctx.Duration(flags.RunInterval.Name),
		Tracing:     ctx.Bool(flags.Tracing.Name),
		Log:         logger,
	}
	cfg.RunOnce = cfg.RunInterval == 0

	cfg.Cleanup = resultstore.CleanupOnStart
	if ctx.Bool(flags.Keep.Name) {
		cfg.Cleanup = resultstore.CleanupNever
	}

	if configFile := ctx.String(flags.ConfigFile.Name); configFile != "" {
		if err := cfg.applyFile(ctx, configFile); err != nil {
			return nil, err
		}
	}

	if len(cfg.Paths) == 0 {
		cfg.Paths = []string{"."}
	}

	// The shell is a required external collaborator; resolving it up front
	// turns a missing binary into a setup error instead of a per-test one.
	shellPath, err := exec.LookPath(cfg.Shell)
	if err != nil {
		return nil, fmt.Errorf("shell binary %q not found: %w", cfg.Shell, err)
	}
	cfg.Shell = shellPath

	absResultDir, err := filepath.Abs(cfg.ResultDir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve absolute path for result directory '%s': %w", cfg.ResultDir, err)
	}
	cfg.ResultDir = absResultDir

	return cfg, nil
}

// applyFile overlays YAML file values onto the config for every flag the
// user did not set explicitly.
func (c *Config) applyFile(ctx *cli.Context, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading config file: %w", err)
	}

	var fc fileConfig
	if err := yaml.Unmarshal(data, &fc); err != nil {
		return fmt.Errorf("parsing config file: %w", err)
	}

	if fc.ResultDir != "" && !ctx.IsSet(flags.ResultDir.Name) {
		c.ResultDir = fc.ResultDir
	}
	if fc.Shell != "" && !ctx.IsSet(flags.Shell.Name) {
		c.Shell = fc.Shell
	}
	if fc.Suffix != "" && !ctx.IsSet(flags.Suffix.Name) {
		c.Suffix = fc.Suffix
	}
	if fc.Verbose != nil && !ctx.IsSet(flags.Verbose.Name) {
		c.Verbose = *fc.Verbose
	}

	c.Log.Debug("Applied config file", "path", path)

	return nil
}
