package scan

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/perchsec/kestrel/pkg/gate"
	"github.com/perchsec/kestrel/pkg/throttle"
)

type fakeEngine struct {
	mu       sync.Mutex
	scans    []*fakeScan
	delay    time.Duration
	failFor  map[string]error
	blockFor map[string]bool

	active    int64
	maxActive int64
}

type fakeScan struct {
	engine  *fakeEngine
	asset   string
	stopped atomic.Bool
}

func (e *fakeEngine) NewScan(opts Options) (Scan, error) {
	s := &fakeScan{engine: e, asset: opts.Asset}
	e.mu.Lock()
	e.scans = append(e.scans, s)
	e.mu.Unlock()
	return s, nil
}

func (s *fakeScan) Run(ctx context.Context) ([]Finding, error) {
	e := s.engine

	active := atomic.AddInt64(&e.active, 1)
	for {
		max := atomic.LoadInt64(&e.maxActive)
		if active <= max || atomic.CompareAndSwapInt64(&e.maxActive, max, active) {
			break
		}
	}
	defer atomic.AddInt64(&e.active, -1)

	if e.blockFor[s.asset] {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	if e.delay > 0 {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(e.delay):
		}
	}
	if err, ok := e.failFor[s.asset]; ok {
		return nil, err
	}
	return []Finding{{Severity: "high", URL: "https://" + s.asset}}, nil
}

func (s *fakeScan) Stop() error {
	s.stopped.Store(true)
	return nil
}

func admitted(program string, rate float64, assets ...string) gate.Admitted {
	return gate.Admitted{Program: program, Assets: assets, Rate: rate}
}

func newExecutor(engine Engine, maxConcurrent int) *Executor {
	return &Executor{
		Engine:        engine,
		Registry:      throttle.NewRegistry(100.0),
		MaxConcurrent: maxConcurrent,
		ScanTimeout:   5 * time.Second,
	}
}

func TestExecuteRunsOneTaskPerAsset(t *testing.T) {
	engine := &fakeEngine{}
	executor := newExecutor(engine, 10)

	results := executor.Execute(context.Background(), []gate.Admitted{
		admitted("acme", 100, "a.acme.com", "b.acme.com"),
		admitted("globex", 100, "globex.com"),
	})

	require.Len(t, results, 3)
	for _, result := range results {
		assert.Equal(t, StatusCompleted, result.Status)
		assert.Len(t, result.Findings, 1)
	}
}

func TestConcurrencyCeiling(t *testing.T) {
	engine := &fakeEngine{delay: 100 * time.Millisecond}
	executor := newExecutor(engine, 2)

	results := executor.Execute(context.Background(), []gate.Admitted{
		admitted("acme", 100, "a1", "a2", "a3", "a4", "a5"),
	})

	require.Len(t, results, 5)
	assert.LessOrEqual(t, atomic.LoadInt64(&engine.maxActive), int64(2))
}

func TestFailureIsolation(t *testing.T) {
	engine := &fakeEngine{failFor: map[string]error{"a2": errors.New("dns blew up")}}
	executor := newExecutor(engine, 10)

	results := executor.Execute(context.Background(), []gate.Admitted{
		admitted("acme", 100, "a1", "a2", "a3"),
	})

	require.Len(t, results, 3)
	byAsset := make(map[string]TaskResult)
	for _, result := range results {
		byAsset[result.Asset] = result
	}
	assert.Equal(t, StatusCompleted, byAsset["a1"].Status)
	assert.Equal(t, StatusFailed, byAsset["a2"].Status)
	assert.Error(t, byAsset["a2"].Err)
	assert.Equal(t, StatusCompleted, byAsset["a3"].Status)
}

func TestTimeoutOutcomeStillStops(t *testing.T) {
	engine := &fakeEngine{blockFor: map[string]bool{"slow": true}}
	executor := newExecutor(engine, 10)
	executor.ScanTimeout = 50 * time.Millisecond

	results := executor.Execute(context.Background(), []gate.Admitted{
		admitted("acme", 100, "slow", "fast"),
	})

	require.Len(t, results, 2)
	byAsset := make(map[string]TaskResult)
	for _, result := range results {
		byAsset[result.Asset] = result
	}
	assert.Equal(t, StatusTimeout, byAsset["slow"].Status)
	assert.Equal(t, StatusCompleted, byAsset["fast"].Status)

	// Cleanup ran for every task, including the timed out one.
	for _, s := range engine.scans {
		assert.True(t, s.stopped.Load(), "scan for %s was not stopped", s.asset)
	}
}

func TestCancellationStopsBatch(t *testing.T) {
	engine := &fakeEngine{blockFor: map[string]bool{"b1": true, "b2": true}}
	executor := newExecutor(engine, 10)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(50 * time.Millisecond)
		cancel()
	}()

	results := executor.Execute(ctx, []gate.Admitted{
		admitted("acme", 100, "b1", "b2"),
	})

	require.Len(t, results, 2)
	for _, result := range results {
		assert.Equal(t, StatusCancelled, result.Status)
	}
	for _, s := range engine.scans {
		assert.True(t, s.stopped.Load())
	}
}

func TestFindingsHandlerInvoked(t *testing.T) {
	engine := &fakeEngine{}
	executor := newExecutor(engine, 10)

	var mu sync.Mutex
	received := make(map[string]int)
	executor.OnFindings = func(ctx context.Context, program string, findings []Finding) {
		mu.Lock()
		received[program] += len(findings)
		mu.Unlock()
	}

	executor.Execute(context.Background(), []gate.Admitted{
		admitted("acme", 100, "a1", "a2"),
	})

	assert.Equal(t, 2, received["acme"])
}

func TestProgramTasksShareLimiter(t *testing.T) {
	engine := &fakeEngine{}
	registry := throttle.NewRegistry(100.0)
	executor := &Executor{
		Engine:        engine,
		Registry:      registry,
		MaxConcurrent: 10,
	}

	executor.Execute(context.Background(), []gate.Admitted{
		admitted("acme", 2.0, "a1", "a2", "a3"),
	})

	assert.Equal(t, 1, registry.Size())
	assert.Equal(t, 2.0, registry.Get("acme", 0).Rate())
}
