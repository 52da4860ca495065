package main

import (
	"fmt"
	"strconv"

	"github.com/ethereum/go-ethereum/log"
	"github.com/urfave/cli/v2"

	"github.com/shelltools/shtest/assert"
	"github.com/shelltools/shtest/exitcodes"
	"github.com/shelltools/shtest/resultstore"
)

// The assert and fail commands are the child-side half of the harness: the
// generated test script calls back into this same binary for every assertion.
// They are hidden because test authors never invoke them directly.

var (
	recordDirFlag = &cli.StringFlag{
		Name:     "dir",
		Usage:    "Result record directory of the running test",
		Required: true,
	}
	rootPIDFlag = &cli.IntFlag{
		Name:  "root-pid",
		Usage: "Process id of the test script's session leader",
	}
	stackFlag = &cli.StringFlag{
		Name:  "stack",
		Usage: "Newline-separated source:line:function shell frames",
	}
	expectedFlag = &cli.StringSliceFlag{
		Name:  "expected",
		Usage: "Expected array element (repeatable, in order)",
	}
	actualFlag = &cli.StringSliceFlag{
		Name:  "actual",
		Usage: "Actual array element (repeatable, in order)",
	}
)

var assertCommand = &cli.Command{
	Name:      "assert",
	Hidden:    true,
	Usage:     "Evaluate one assertion against a test's result record",
	ArgsUsage: "KIND -- ARG...",
	Flags: []cli.Flag{
		recordDirFlag,
		rootPIDFlag,
		expectedFlag,
		actualFlag,
	},
	Action: runAssert,
}

var failCommand = &cli.Command{
	Name:      "fail",
	Hidden:    true,
	Usage:     "Mark a test failed and abort its process group",
	ArgsUsage: "-- MESSAGE",
	Flags: []cli.Flag{
		recordDirFlag,
		rootPIDFlag,
		stackFlag,
	},
	Action: runFail,
}

// newEngine binds an assertion engine to the record directory the test
// script passed in.
func newEngine(ctx *cli.Context) (*assert.Engine, error) {
	rec, err := resultstore.OpenRecord(ctx.String(recordDirFlag.Name))
	if err != nil {
		return nil, err
	}
	return assert.NewEngine(assert.Config{
		Record:  rec,
		RootPID: ctx.Int(rootPIDFlag.Name),
		Log:     log.Root(),
	})
}

// trailingArgs returns the positional arguments, skipping the "--" separator
// the generated script inserts so assertion arguments are never mistaken for
// flags.
func trailingArgs(args []string) []string {
	if len(args) > 0 && args[0] == "--" {
		return args[1:]
	}
	return args
}

func runAssert(ctx *cli.Context) error {
	args := ctx.Args().Slice()
	if len(args) == 0 {
		return cli.Exit("assert: missing assertion kind", exitcodes.Failure)
	}
	kind := args[0]
	rest := trailingArgs(args[1:])
	arg := func(i int) string {
		if i < len(rest) {
			return rest[i]
		}
		return ""
	}

	eng, err := newEngine(ctx)
	if err != nil {
		return cli.Exit(fmt.Sprintf("assert: %v", err), exitcodes.Failure)
	}

	var ok bool
	switch kind {
	case "equals":
		ok = eng.Equals(arg(0), arg(1), arg(2))
	case "contains":
		ok = eng.Contains(arg(0), arg(1), arg(2))
	case "not_contains":
		ok = eng.NotContains(arg(0), arg(1), arg(2))
	case "matches":
		ok = eng.Matches(arg(0), arg(1), arg(2))
	case "file_does_not_exist":
		ok = eng.FileDoesNotExist(arg(0), arg(1))
	case "succeeds":
		rc, perr := strconv.Atoi(arg(1))
		if perr != nil {
			ok = eng.Fail(fmt.Sprintf("malformed exit status '%s'", arg(1)), nil)
			break
		}
		ok = eng.Succeeds(arg(0), rc, arg(2))
	case "fails":
		rc, perr := strconv.Atoi(arg(1))
		if perr != nil {
			ok = eng.Fail(fmt.Sprintf("malformed exit status '%s'", arg(1)), nil)
			break
		}
		ok = eng.Fails(arg(0), rc, arg(2))
	case "exit_code":
		expected, eerr := strconv.Atoi(arg(0))
		actual, aerr := strconv.Atoi(arg(1))
		if eerr != nil || aerr != nil {
			ok = eng.Fail(fmt.Sprintf("malformed exit status '%s'/'%s'", arg(0), arg(1)), nil)
			break
		}
		ok = eng.ExitValueEquals(expected, actual, arg(2), arg(3))
	case "array_equals":
		ok = eng.ArrayEquals(ctx.StringSlice(expectedFlag.Name), ctx.StringSlice(actualFlag.Name), arg(0))
	default:
		eng.Fail(fmt.Sprintf("unknown assertion kind '%s'", kind), nil)
		return cli.Exit(fmt.Sprintf("assert: unknown assertion kind %q", kind), exitcodes.Failure)
	}

	if !ok {
		return cli.Exit("", exitcodes.Failure)
	}
	return nil
}

func runFail(ctx *cli.Context) error {
	rest := trailingArgs(ctx.Args().Slice())
	message := "test failed"
	if len(rest) > 0 && rest[0] != "" {
		message = rest[0]
	}

	eng, err := newEngine(ctx)
	if err != nil {
		return cli.Exit(fmt.Sprintf("fail: %v", err), exitcodes.Failure)
	}

	frames := assert.ParseFrames(ctx.String(stackFlag.Name))
	eng.Fail(message, frames)
	return cli.Exit("", exitcodes.Failure)
}
