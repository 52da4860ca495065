package runner

import (
	"bytes"
	"fmt"
	"strings"
	"text/template"
)

// testScript is the shell program the executor runs for each test case, in
// its own session. It defines the assertion surface the test body sees; each
// assertion calls back into the harness binary, which records the attempt
// into the result record and, on failure, aborts the test's process group.
// All paths are baked in at render time, so the child discovers nothing via
// ambient environment variables.
//
// The test function itself runs under `set -e` inside a subshell: an
// unguarded failing command or an explicit `exit N` terminates the subshell
// only, letting the wrapper persist the exit status for classification.
const testScript = `set -u
__SHTEST_BIN={{q .HarnessBinary}}
__SHTEST_DIR={{q .RecordDir}}
__SHTEST_ROOT=$$
trap 'exit 143' TERM

__shtest_stack() {
	local i
	for ((i = 2; i < ${#FUNCNAME[@]}; i++)); do
		printf '%s:%s:%s\n' "${BASH_SOURCE[$i]:-unknown}" "${BASH_LINENO[$((i - 1))]:-0}" "${FUNCNAME[$i]:-main}"
	done
}

fail() {
	"$__SHTEST_BIN" fail --dir "$__SHTEST_DIR" --root-pid "$__SHTEST_ROOT" --stack "$(__shtest_stack)" -- "${1:-}"
	return 1
}

__shtest_assert() {
	local kind=$1
	shift
	"$__SHTEST_BIN" assert --dir "$__SHTEST_DIR" --root-pid "$__SHTEST_ROOT" "$kind" -- "$@"
}

assert_equals()              { __shtest_assert equals "$1" "$2" "${3:-}"; }
assert_contains()            { __shtest_assert contains "$1" "$2" "${3:-}"; }
assert_does_not_contain()    { __shtest_assert not_contains "$1" "$2" "${3:-}"; }
assert_matches()             { __shtest_assert matches "$1" "$2" "${3:-}"; }
assert_file_does_not_exist() { __shtest_assert file_does_not_exist "$1" "${2:-}"; }

assert_true() {
	local cmd=${1:-true} rc=0
	(eval "$cmd") >/dev/null 2>&1 || rc=$?
	__shtest_assert succeeds "$cmd" "$rc" "${2:-}"
}
assert_succeeds() { assert_true "$@"; }

assert_false() {
	local cmd=${1:-false} rc=0
	(eval "$cmd") >/dev/null 2>&1 || rc=$?
	__shtest_assert fails "$cmd" "$rc" "${2:-}"
}
assert_fails() { assert_false "$@"; }

assert_exit_value_equals() {
	local expected=$1 cmd=$2 rc=0
	(eval "$cmd") >/dev/null 2>&1 || rc=$?
	__shtest_assert exit_code "$expected" "$rc" "$cmd" "${3:-}"
}

assert_array_equals() {
	local __exp_name=$1 __act_name=$2 __msg=${3:-}
	if ! declare -p "$__exp_name" 2>/dev/null | grep -q 'declare -a'; then
		fail "expected '$__exp_name' to name an array variable"
		return 1
	fi
	if ! declare -p "$__act_name" 2>/dev/null | grep -q 'declare -a'; then
		fail "expected '$__act_name' to name an array variable"
		return 1
	fi
	local -n __exp=$__exp_name __act=$__act_name
	local __args=() __e
	for __e in ${__exp[@]+"${__exp[@]}"}; do __args+=(--expected "$__e"); done
	for __e in ${__act[@]+"${__act[@]}"}; do __args+=(--actual "$__e"); done
	"$__SHTEST_BIN" assert --dir "$__SHTEST_DIR" --root-pid "$__SHTEST_ROOT" ${__args[@]+"${__args[@]}"} array_equals -- "$__msg"
}

source {{q .SourceFile}}
(
	set -e
{{- if .Verbose}}
	set -x
{{- end}}
	if declare -F before_test >/dev/null; then
		before_test
	fi
	{{q .TestName}}
)
__shtest_rc=$?
printf '%s\n' "$__shtest_rc" >{{q .ExitCodeFile}}
`

var scriptTemplate = template.Must(
	template.New("testscript").Funcs(template.FuncMap{"q": shellQuote}).Parse(testScript))

// scriptParams are the per-test values baked into the generated script.
type scriptParams struct {
	HarnessBinary string
	RecordDir     string
	SourceFile    string
	TestName      string
	ExitCodeFile  string
	Verbose       bool
}

// renderScript produces the shell program for one test case.
func renderScript(p scriptParams) (string, error) {
	var buf bytes.Buffer
	if err := scriptTemplate.Execute(&buf, p); err != nil {
		return "", fmt.Errorf("failed to render test script: %w", err)
	}
	return buf.String(), nil
}

// shellQuote single-quotes a string for safe embedding in a shell program.
func shellQuote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}
