package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/ethereum/go-ethereum/log"
	"github.com/honeycombio/otel-config-go/otelconfig"
	"github.com/urfave/cli/v2"

	shtest "github.com/shelltools/shtest"
	"github.com/shelltools/shtest/exitcodes"
	"github.com/shelltools/shtest/flags"
	"github.com/shelltools/shtest/service"
)

var (
	Version   = "v0.1.0"
	GitCommit = ""
	GitDate   = ""
)

func main() {
	// The default version flag's "v" shorthand collides with the verbose
	// flag's alias and panics at startup; keep only the long form.
	cli.VersionFlag = &cli.BoolFlag{
		Name:  "version",
		Usage: "print the version",
	}

	app := cli.NewApp()
	app.Version = fmt.Sprintf("%s-%s-%s", Version, GitCommit, GitDate)
	app.Name = "shtest"
	app.Usage = "Unit testing harness for shell scripts"
	app.Description = "shtest discovers test functions in shell files and runs each one in its own isolated subprocess"
	app.ArgsUsage = "[FILE|DIR]..."
	app.Flags = flags.Flags
	app.Commands = []*cli.Command{
		assertCommand,
		failCommand,
	}
	app.Action = run
	app.ExitErrHandler = func(c *cli.Context, err error) {
		var exitErr cli.ExitCoder
		if errors.As(err, &exitErr) {
			cli.HandleExitCoder(exitErr)
		} else if err != nil {
			// Test failures and runtime errors alike exit 1; success is
			// reserved for "at least one test ran and none failed".
			cli.HandleExitCoder(cli.Exit(err.Error(), exitcodes.Failure))
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := app.RunContext(ctx, os.Args); err != nil {
		log.Crit("Application failed", "message", err)
	}
}

func run(cliCtx *cli.Context) error {
	logger := setupLogger(cliCtx)

	cfg, err := shtest.NewConfig(cliCtx, logger, cliCtx.Args().Slice())
	if err != nil {
		return shtest.NewRuntimeError(fmt.Errorf("failed to create config: %w", err))
	}

	if cfg.Tracing {
		shutdown, err := otelconfig.ConfigureOpenTelemetry(
			otelconfig.WithServiceName(cliCtx.App.Name),
			otelconfig.WithServiceVersion(cliCtx.App.Version),
		)
		if err != nil {
			return shtest.NewRuntimeError(fmt.Errorf("failed to set up tracing: %w", err))
		}
		defer shutdown()
	}

	appCtx, cancel := context.WithCancelCause(cliCtx.Context)
	defer cancel(nil)

	harness, err := shtest.New(appCtx, cfg, Version, func(err error) { cancel(err) })
	if err != nil {
		return shtest.NewRuntimeError(fmt.Errorf("failed to create harness: %w", err))
	}

	if cfg.RunOnce {
		return harness.Start(appCtx)
	}

	// Continuous mode runs as a long-lived service, so expose the health and
	// metrics endpoints for the duration.
	svc := service.New()
	svc.Start(appCtx)
	defer svc.Shutdown()

	if err := harness.Start(appCtx); err != nil {
		return err
	}

	<-appCtx.Done()
	if err := harness.Stop(context.Background()); err != nil {
		logger.Error("Failed to stop harness", "error", err)
	}

	waitCtx, waitCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer waitCancel()
	return harness.WaitForShutdown(waitCtx)
}

func setupLogger(ctx *cli.Context) log.Logger {
	level := log.LevelInfo
	switch strings.ToLower(ctx.String(flags.LogLevel.Name)) {
	case "trace":
		level = log.LevelTrace
	case "debug":
		level = log.LevelDebug
	case "info":
		level = log.LevelInfo
	case "warn":
		level = log.LevelWarn
	case "error":
		level = log.LevelError
	case "crit":
		level = log.LevelCrit
	}
	logger := log.NewLogger(log.NewTerminalHandlerWithLevel(os.Stderr, level, false))
	log.SetDefault(logger)
	return logger
}
