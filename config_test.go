package shtest

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/urfave/cli/v2"

	"github.com/shelltools/shtest/flags"
	"github.com/shelltools/shtest/resultstore"
)

// buildConfig runs NewConfig through a real cli invocation so flag defaults,
// env handling and file overlay behave exactly as in production.
func buildConfig(t *testing.T, args []string, paths []string) (*Config, error) {
	t.Helper()
	var cfg *Config
	var cfgErr error
	app := cli.NewApp()
	app.Flags = flags.Flags
	app.Action = func(ctx *cli.Context) error {
		cfg, cfgErr = NewConfig(ctx, log.New(), paths)
		return nil
	}
	require.NoError(t, app.Run(append([]string{"shtest"}, args...)))
	return cfg, cfgErr
}

func TestNewConfig_Defaults(t *testing.T) {
	cfg, err := buildConfig(t, nil, []string{"./tests"})
	require.NoError(t, err)

	assert.Equal(t, []string{"./tests"}, cfg.Paths)
	assert.Equal(t, "_test", cfg.Suffix)
	assert.False(t, cfg.Verbose)
	assert.True(t, cfg.RunOnce)
	assert.Equal(t, resultstore.CleanupOnStart, cfg.Cleanup)
	assert.True(t, filepath.IsAbs(cfg.ResultDir))
	assert.True(t, filepath.IsAbs(cfg.Shell))
}

func TestNewConfig_NoPathsDefaultsToCurrentDirectory(t *testing.T) {
	cfg, err := buildConfig(t, nil, nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"."}, cfg.Paths)
}

func TestNewConfig_KeepFlagSelectsCleanupNever(t *testing.T) {
	cfg, err := buildConfig(t, []string{"--keep"}, nil)
	require.NoError(t, err)
	assert.Equal(t, resultstore.CleanupNever, cfg.Cleanup)
}

func TestNewConfig_RunIntervalEnablesContinuousMode(t *testing.T) {
	cfg, err := buildConfig(t, []string{"--run-interval", "30s"}, nil)
	require.NoError(t, err)
	assert.False(t, cfg.RunOnce)
	assert.Equal(t, 30*time.Second, cfg.RunInterval)
}

func TestNewConfig_MissingShellIsSetupError(t *testing.T) {
	_, err := buildConfig(t, []string{"--shell", "no-such-shell-anywhere"}, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not found")
}

func TestNewConfig_FileOverlay(t *testing.T) {
	dir := t.TempDir()
	cfgFile := filepath.Join(dir, "shtest.yaml")
	require.NoError(t, os.WriteFile(cfgFile, []byte("suffix: _check\nverbose: true\n"), 0644))

	cfg, err := buildConfig(t, []string{"--config", cfgFile}, nil)
	require.NoError(t, err)
	assert.Equal(t, "_check", cfg.Suffix)
	assert.True(t, cfg.Verbose)
}

func TestNewConfig_ExplicitFlagBeatsFile(t *testing.T) {
	dir := t.TempDir()
	cfgFile := filepath.Join(dir, "shtest.yaml")
	require.NoError(t, os.WriteFile(cfgFile, []byte("suffix: _check\n"), 0644))

	cfg, err := buildConfig(t, []string{"--config", cfgFile, "--suffix", "_cli"}, nil)
	require.NoError(t, err)
	assert.Equal(t, "_cli", cfg.Suffix)
}

func TestNewConfig_MalformedFileRejected(t *testing.T) {
	dir := t.TempDir()
	cfgFile := filepath.Join(dir, "shtest.yaml")
	require.NoError(t, os.WriteFile(cfgFile, []byte("suffix: [unterminated"), 0644))

	_, err := buildConfig(t, []string{"--config", cfgFile}, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "parsing config file")
}
