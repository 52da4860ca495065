package resultstore

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/ethereum/go-ethereum/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := NewStore(Config{
		BaseDir: filepath.Join(t.TempDir(), "results"),
		RunID:   "run-1",
		Cleanup: CleanupOnStart,
		Log:     log.New(),
	})
	require.NoError(t, err)
	return store
}

func TestNewStore_CreatesRunDirectory(t *testing.T) {
	store := newTestStore(t)

	info, err := os.Stat(store.RunDir())
	require.NoError(t, err)
	assert.True(t, info.IsDir())
	assert.Equal(t, "run-1", store.RunID())
	assert.Equal(t, RunDirectoryPrefix+"run-1", filepath.Base(store.RunDir()))
}

func TestNewStore_CleanupOnStartWipesPriorRuns(t *testing.T) {
	baseDir := filepath.Join(t.TempDir(), "results")
	stale := filepath.Join(baseDir, RunDirectoryPrefix+"old")
	require.NoError(t, os.MkdirAll(stale, 0755))

	_, err := NewStore(Config{BaseDir: baseDir, RunID: "new", Cleanup: CleanupOnStart, Log: log.New()})
	require.NoError(t, err)

	_, err = os.Stat(stale)
	assert.True(t, os.IsNotExist(err))
}

func TestNewStore_CleanupNeverPreservesPriorRuns(t *testing.T) {
	baseDir := filepath.Join(t.TempDir(), "results")
	stale := filepath.Join(baseDir, RunDirectoryPrefix+"old")
	require.NoError(t, os.MkdirAll(stale, 0755))

	_, err := NewStore(Config{BaseDir: baseDir, RunID: "new", Cleanup: CleanupNever, Log: log.New()})
	require.NoError(t, err)

	_, err = os.Stat(stale)
	assert.NoError(t, err)
}

func TestParseCleanupPolicy(t *testing.T) {
	p, err := ParseCleanupPolicy("start")
	require.NoError(t, err)
	assert.Equal(t, CleanupOnStart, p)

	p, err = ParseCleanupPolicy("never")
	require.NoError(t, err)
	assert.Equal(t, CleanupNever, p)

	_, err = ParseCleanupPolicy("sometimes")
	assert.Error(t, err)
}

func TestCreate_RejectsDuplicateTestName(t *testing.T) {
	store := newTestStore(t)

	_, err := store.Create("test_foo")
	require.NoError(t, err)
	assert.True(t, store.Exists("test_foo"))

	_, err = store.Create("test_foo")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "already exists")
}

func TestWriteStatus_FirstWriterWins(t *testing.T) {
	store := newTestStore(t)
	rec, err := store.Create("test_foo")
	require.NoError(t, err)

	require.NoError(t, rec.WriteStatus(StatusFailure))
	// A later write must not clobber the recorded verdict.
	require.NoError(t, rec.WriteStatus(StatusSuccess))

	status, ok, err := rec.ReadStatus()
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, StatusFailure, status)
}

func TestWriteStatus_RejectsUnknownValue(t *testing.T) {
	store := newTestStore(t)
	rec, err := store.Create("test_foo")
	require.NoError(t, err)

	assert.Error(t, rec.WriteStatus("MAYBE"))
}

func TestWriteError_FirstWriterWins(t *testing.T) {
	store := newTestStore(t)
	rec, err := store.Create("test_foo")
	require.NoError(t, err)

	assert.False(t, rec.HasError())
	require.NoError(t, rec.WriteError("first failure"))
	require.NoError(t, rec.WriteError("second failure"))
	assert.True(t, rec.HasError())

	msg, ok, err := rec.ReadError()
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "first failure", msg)
}

func TestReadStatus_MissingFileMeansInFlight(t *testing.T) {
	store := newTestStore(t)
	rec, err := store.Create("test_foo")
	require.NoError(t, err)

	_, ok, err := rec.ReadStatus()
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestReadExitCode(t *testing.T) {
	store := newTestStore(t)
	rec, err := store.Create("test_foo")
	require.NoError(t, err)

	_, ok, err := rec.ReadExitCode()
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, os.WriteFile(rec.ExitCodePath(), []byte("3\n"), 0644))
	code, ok, err := rec.ReadExitCode()
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, 3, code)

	require.NoError(t, os.WriteFile(rec.ExitCodePath(), []byte("banana"), 0644))
	_, _, err = rec.ReadExitCode()
	assert.Error(t, err)
}

func TestAssertionLog_AppendsInOrder(t *testing.T) {
	store := newTestStore(t)
	rec, err := store.Create("test_foo")
	require.NoError(t, err)

	assert.False(t, rec.HasAssertions())
	require.NoError(t, rec.AppendAssertion(`assert_equals "a" "a"`))
	require.NoError(t, rec.AppendAssertion(`assert_contains "abc" "b"`))
	assert.True(t, rec.HasAssertions())

	entries, err := rec.ReadAssertions()
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, `assert_equals "a" "a"`, entries[0])
	assert.Equal(t, `assert_contains "abc" "b"`, entries[1])
}

func TestOpenRecord(t *testing.T) {
	store := newTestStore(t)
	rec, err := store.Create("test_foo")
	require.NoError(t, err)

	reopened, err := OpenRecord(rec.Dir())
	require.NoError(t, err)
	assert.Equal(t, "test_foo", reopened.Name())

	_, err = OpenRecord(filepath.Join(store.RunDir(), "missing"))
	assert.Error(t, err)
}

func TestScan_CountsAllOutcomes(t *testing.T) {
	store := newTestStore(t)

	passed, err := store.Create("test_pass")
	require.NoError(t, err)
	require.NoError(t, passed.WriteStatus(StatusSuccess))

	failed, err := store.Create("test_fail")
	require.NoError(t, err)
	require.NoError(t, failed.WriteStatus(StatusFailure))

	// No status file: the test never finished, which counts as failed.
	_, err = store.Create("test_died")
	require.NoError(t, err)

	// A corrupted status value is reported separately.
	weird, err := store.Create("test_weird")
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(weird.Dir(), StatusFile), []byte("MAYBE"), 0644))

	counts, err := store.Scan()
	require.NoError(t, err)
	assert.Equal(t, 4, counts.Total)
	assert.Equal(t, 1, counts.Passed)
	assert.Equal(t, 2, counts.Failed)
	assert.Equal(t, []string{"test_weird"}, counts.Unknown)
}

func TestScan_EmptyRun(t *testing.T) {
	store := newTestStore(t)

	counts, err := store.Scan()
	require.NoError(t, err)
	assert.Equal(t, 0, counts.Total)
}

func TestStdoutRoundTrip(t *testing.T) {
	store := newTestStore(t)
	rec, err := store.Create("test_foo")
	require.NoError(t, err)

	require.NoError(t, rec.WriteStdout("hello\nworld\n"))
	out, err := rec.ReadStdout()
	require.NoError(t, err)
	assert.Equal(t, "hello\nworld\n", out)
}
