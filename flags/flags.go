package flags

import (
	"os"
	"path/filepath"

	"github.com/urfave/cli/v2"
)

const EnvVarPrefix = "SHTEST"

func prefixEnvVars(name string) []string {
	return []string{EnvVarPrefix + "_" + name}
}

var (
	Verbose = &cli.BoolFlag{
		Name:    "verbose",
		Aliases: []string{"v"},
		Value:   false,
		EnvVars: prefixEnvVars("VERBOSE"),
		Usage:   "Echo each test's verdict and trace test subprocesses instead of printing progress dots",
	}
	ResultDir = &cli.StringFlag{
		Name:    "result-dir",
		Value:   filepath.Join(os.TempDir(), "shtest"),
		EnvVars: prefixEnvVars("RESULT_DIR"),
		Usage:   "Root directory for per-test result records",
	}
	Shell = &cli.StringFlag{
		Name:    "shell",
		Value:   "bash",
		EnvVars: prefixEnvVars("SHELL"),
		Usage:   "Shell binary used to run tests",
	}
	Suffix = &cli.StringFlag{
		Name:    "suffix",
		Value:   "_test",
		EnvVars: prefixEnvVars("SUFFIX"),
		Usage:   "File-name suffix used to discover test files in directories",
	}
	Keep = &cli.BoolFlag{
		Name:    "keep",
		Value:   false,
		EnvVars: prefixEnvVars("KEEP"),
		Usage:   "Preserve result directories from previous runs instead of wiping the result root at startup",
	}
	RunInterval = &cli.DurationFlag{
		Name:    "run-interval",
		Value:   0,
		EnvVars: prefixEnvVars("RUN_INTERVAL"),
		Usage:   "Interval between test runs (e.g. '1h', '30m'). Set to 0 or omit for run-once mode.",
	}
	ConfigFile = &cli.StringFlag{
		Name:    "config",
		Value:   "",
		EnvVars: prefixEnvVars("CONFIG"),
		Usage:   "Path to a YAML config file supplying defaults (eg. 'shtest.yaml')",
	}
	LogLevel = &cli.StringFlag{
		Name:    "log-level",
		Value:   "info",
		EnvVars: prefixEnvVars("LOG_LEVEL"),
		Usage:   "Log level (trace, debug, info, warn, error, crit)",
	}
	Tracing = &cli.BoolFlag{
		Name:    "tracing",
		Value:   false,
		EnvVars: prefixEnvVars("TRACING"),
		Usage:   "Enable OpenTelemetry tracing",
	}
)

var Flags = []cli.Flag{
	Verbose,
	ResultDir,
	Shell,
	Suffix,
	Keep,
	RunInterval,
	ConfigFile,
	LogLevel,
	Tracing,
}
