package scheduler

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/perchsec/kestrel/pkg/history"
	"github.com/perchsec/kestrel/pkg/loader"
	"github.com/perchsec/kestrel/pkg/scan"
	"github.com/perchsec/kestrel/pkg/throttle"
)

type stubSource struct {
	targets []loader.ProgramTarget
	err     error
	calls   int
}

func (s *stubSource) Fetch(ctx context.Context) ([]loader.ProgramTarget, error) {
	s.calls++
	return s.targets, s.err
}

type countingEngine struct {
	runs atomic.Int64
}

type countingScan struct {
	engine *countingEngine
}

func (e *countingEngine) NewScan(opts scan.Options) (scan.Scan, error) {
	return &countingScan{engine: e}, nil
}

func (s *countingScan) Run(ctx context.Context) ([]scan.Finding, error) {
	s.engine.runs.Add(1)
	return nil, nil
}

func (s *countingScan) Stop() error { return nil }

func testOptions(historyPath string) Options {
	return Options{
		PollInterval:       15 * time.Minute,
		ErrorBackoff:       time.Minute,
		ShutdownGrace:      time.Second,
		DailyLimit:         3,
		Cooldown:           4 * time.Hour,
		MaxConcurrentScans: 4,
		ScanTimeout:        5 * time.Second,
		DefaultRate:        5.0,
		HistoryPath:        historyPath,
	}
}

func newTestScheduler(opts Options, source loader.TargetSource, engine scan.Engine) (*Scheduler, *history.Store) {
	store := history.NewStore(opts.HistoryPath)
	executor := &scan.Executor{
		Engine:        engine,
		Registry:      throttle.NewRegistry(opts.DefaultRate),
		MaxConcurrent: opts.MaxConcurrentScans,
		ScanTimeout:   opts.ScanTimeout,
	}
	return New(opts, source, store, executor), store
}

func TestCycleScansAndPersists(t *testing.T) {
	opts := testOptions(filepath.Join(t.TempDir(), "scan_history.json"))
	source := &stubSource{targets: []loader.ProgramTarget{
		{Name: "acme", Assets: []string{"a.acme.com", "b.acme.com"}, Rate: 5.0},
	}}
	engine := &countingEngine{}
	sched, store := newTestScheduler(opts, source, engine)

	sleepFor := sched.runCycle(context.Background())

	assert.Equal(t, opts.PollInterval, sleepFor)
	assert.Equal(t, int64(2), engine.runs.Load()) // one task per asset

	records := store.Load()
	require.Contains(t, records, "acme")
	today := time.Now().UTC().Format(history.DateFormat)
	assert.Equal(t, 1, records["acme"].CountFor(today))
	require.NotNil(t, records["acme"].LastScan)
}

func TestCycleRespectsCooldownAcrossCycles(t *testing.T) {
	opts := testOptions(filepath.Join(t.TempDir(), "scan_history.json"))
	source := &stubSource{targets: []loader.ProgramTarget{
		{Name: "acme", Assets: []string{"a.acme.com"}, Rate: 5.0},
	}}
	engine := &countingEngine{}
	sched, _ := newTestScheduler(opts, source, engine)

	sched.runCycle(context.Background())
	sched.runCycle(context.Background()) // immediately again: cooldown active

	assert.Equal(t, int64(1), engine.runs.Load())
}

func TestFetchErrorSkipsCycle(t *testing.T) {
	opts := testOptions(filepath.Join(t.TempDir(), "scan_history.json"))
	source := &stubSource{err: errors.New("feed unreachable")}
	engine := &countingEngine{}
	sched, store := newTestScheduler(opts, source, engine)

	sleepFor := sched.runCycle(context.Background())

	// Transient fetch errors keep the regular interval.
	assert.Equal(t, opts.PollInterval, sleepFor)
	assert.Equal(t, int64(0), engine.runs.Load())
	assert.Empty(t, store.Load())
}

func TestEmptyFeedSkipsGating(t *testing.T) {
	opts := testOptions(filepath.Join(t.TempDir(), "scan_history.json"))
	source := &stubSource{}
	engine := &countingEngine{}
	sched, store := newTestScheduler(opts, source, engine)

	sleepFor := sched.runCycle(context.Background())

	assert.Equal(t, opts.PollInterval, sleepFor)
	assert.Equal(t, int64(0), engine.runs.Load())
	assert.NoFileExists(t, store.Path())
}

func TestPersistenceFailureBlocksScans(t *testing.T) {
	// Parent of the history path is a regular file, so saving must fail.
	dir := t.TempDir()
	blocker := filepath.Join(dir, "output")
	require.NoError(t, writeFile(blocker, "not a directory"))

	opts := testOptions(filepath.Join(blocker, "scan_history.json"))
	source := &stubSource{targets: []loader.ProgramTarget{
		{Name: "acme", Assets: []string{"a.acme.com"}, Rate: 5.0},
	}}
	engine := &countingEngine{}
	sched, _ := newTestScheduler(opts, source, engine)

	sleepFor := sched.runCycle(context.Background())

	assert.Equal(t, opts.ErrorBackoff, sleepFor)
	assert.Equal(t, int64(0), engine.runs.Load())
}

func TestDryRunCommitsWithoutScanning(t *testing.T) {
	opts := testOptions(filepath.Join(t.TempDir(), "scan_history.json"))
	opts.DryRun = true
	source := &stubSource{targets: []loader.ProgramTarget{
		{Name: "acme", Assets: []string{"a.acme.com"}, Rate: 5.0},
	}}
	engine := &countingEngine{}
	sched, store := newTestScheduler(opts, source, engine)

	sched.runCycle(context.Background())

	// The eligibility slot is consumed even though nothing ran.
	assert.Equal(t, int64(0), engine.runs.Load())
	today := time.Now().UTC().Format(history.DateFormat)
	assert.Equal(t, 1, store.Load()["acme"].CountFor(today))
}

func TestRunStopsOnCancellation(t *testing.T) {
	opts := testOptions(filepath.Join(t.TempDir(), "scan_history.json"))
	opts.PollInterval = time.Hour
	source := &stubSource{}
	engine := &countingEngine{}
	sched, _ := newTestScheduler(opts, source, engine)

	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() {
		done <- sched.Run(ctx)
	}()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("scheduler did not stop after cancellation")
	}

	assert.Equal(t, 1, source.calls)
}

func writeFile(path, content string) error {
	return os.WriteFile(path, []byte(content), 0644)
}
