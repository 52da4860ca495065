package metrics

import (
	"slices"
	"time"

	"github.com/ethereum/go-ethereum/log"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/shelltools/shtest/types"
)

const (
	MetricsNamespace = "shtest"
)

var (
	validResults = []types.TestStatus{types.TestStatusPass, types.TestStatusFail, types.TestStatusError}

	errorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: MetricsNamespace,
		Name:      "errors_total",
		Help:      "Count of errors",
	}, []string{
		"error",
	})

	testsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: MetricsNamespace,
		Name:      "tests_total",
		Help:      "Count of executed tests",
	}, []string{
		"run_id",
		"name",
		"result",
	})

	runResults = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: MetricsNamespace,
		Name:      "run_results",
		Help:      "Result of test runs",
	}, []string{
		"run_id",
		"result",
	})

	runTestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: MetricsNamespace,
		Name:      "run_tests_total",
		Help:      "Total number of tests in a run",
	}, []string{
		"run_id",
	})

	runTestsPassed = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: MetricsNamespace,
		Name:      "run_tests_passed",
		Help:      "Number of passed tests in a run",
	}, []string{
		"run_id",
	})

	runTestsFailed = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: MetricsNamespace,
		Name:      "run_tests_failed",
		Help:      "Number of failed tests in a run",
	}, []string{
		"run_id",
	})

	runDurationSeconds = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: MetricsNamespace,
		Name:      "run_duration_seconds",
		Help:      "Wall-clock duration of a test run",
	}, []string{
		"run_id",
	})
)

// RecordError increments the error counter for the given error label.
func RecordError(errorLabel string) {
	log.Debug("metric inc", "m", "errors_total", "error", errorLabel)
	errorsTotal.WithLabelValues(errorLabel).Inc()
}

// RecordErrorDetails concatenates the error message to the label and records
// the error.
func RecordErrorDetails(label string, err error) {
	label = label + ": " + err.Error()
	RecordError(label)
}

// RecordTest records the outcome of a single test execution.
func RecordTest(runID, name string, result types.TestStatus) {
	if !slices.Contains(validResults, result) {
		RecordError("invalid test result: " + string(result))
		return
	}
	testsTotal.WithLabelValues(runID, name, string(result)).Inc()
}

// RecordRun records the aggregate outcome of one test run.
func RecordRun(runID string, result types.TestStatus, total, passed, failed int, duration time.Duration) {
	if !slices.Contains(validResults, result) {
		RecordError("invalid run result: " + string(result))
		return
	}
	for _, r := range validResults {
		val := 0.0
		if r == result {
			val = 1.0
		}
		runResults.WithLabelValues(runID, string(r)).Set(val)
	}
	runTestsTotal.WithLabelValues(runID).Add(float64(total))
	runTestsPassed.WithLabelValues(runID).Add(float64(passed))
	runTestsFailed.WithLabelValues(runID).Add(float64(failed))
	runDurationSeconds.WithLabelValues(runID).Set(duration.Seconds())
}
