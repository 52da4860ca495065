// Package exitcodes defines the standard exit codes used by shtest.
package exitcodes

// Exit code constants used by the harness:
//
// * Success (0): at least one test ran and all of them passed
// * Failure (1): zero tests ran, a test failed, a file failed syntax
//   validation, or environment initialization failed
const (
	Success = 0
	Failure = 1
)
