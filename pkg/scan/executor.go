package scan

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/sourcegraph/conc/pool"

	"github.com/perchsec/kestrel/pkg/gate"
	"github.com/perchsec/kestrel/pkg/throttle"
)

// TaskStatus classifies how a scan task ended.
type TaskStatus string

const (
	StatusCompleted TaskStatus = "completed"
	StatusFailed    TaskStatus = "failed"
	StatusTimeout   TaskStatus = "timeout"
	StatusCancelled TaskStatus = "cancelled"
)

// TaskResult is the tagged outcome of one asset scan. Failures stay in
// the result instead of escaping the batch.
type TaskResult struct {
	Program  string
	Asset    string
	Status   TaskStatus
	Findings []Finding
	Duration time.Duration
	Err      error
}

// FindingsHandler receives the findings of a completed task.
type FindingsHandler func(ctx context.Context, program string, findings []Finding)

// Executor fans admitted programs out into one task per asset, bounded by
// MaxConcurrent. All tasks of a program share that program's limiter.
type Executor struct {
	Engine        Engine
	Registry      *throttle.Registry
	Client        *http.Client
	MaxConcurrent int
	ScanTimeout   time.Duration
	OnFindings    FindingsHandler
}

// Execute runs every asset of every admitted program and collects one
// result per task. Sibling tasks are isolated: a failure or timeout in
// one never aborts the batch. Cancelling ctx stops the batch, but each
// task still runs its engine cleanup before reporting.
func (e *Executor) Execute(ctx context.Context, admitted []gate.Admitted) []TaskResult {
	maxConcurrent := e.MaxConcurrent
	if maxConcurrent < 1 {
		maxConcurrent = 1
	}

	p := pool.NewWithResults[TaskResult]().WithMaxGoroutines(maxConcurrent)

	for _, program := range admitted {
		limiter := e.Registry.Get(program.Program, program.Rate)
		for _, asset := range program.Assets {
			program, asset := program, asset
			p.Go(func() TaskResult {
				return e.runTask(ctx, program, asset, limiter)
			})
		}
	}

	results := p.Wait()

	var completed, failed int
	for _, result := range results {
		if result.Status == StatusCompleted {
			completed++
		} else {
			failed++
		}
	}
	log.Info().
		Int("tasks", len(results)).
		Int("completed", completed).
		Int("failed", failed).
		Msg("Scan batch finished")

	return results
}

func (e *Executor) runTask(ctx context.Context, program gate.Admitted, asset string, limiter throttle.Limiter) TaskResult {
	result := TaskResult{
		Program: program.Program,
		Asset:   asset,
	}

	taskLog := log.With().
		Str("program", program.Program).
		Str("asset", asset).
		Logger()

	if err := ctx.Err(); err != nil {
		result.Status = StatusCancelled
		result.Err = err
		taskLog.Debug().Msg("Skipping scan task, shutdown in progress")
		return result
	}

	taskCtx := ctx
	var cancel context.CancelFunc
	if e.ScanTimeout > 0 {
		taskCtx, cancel = context.WithTimeout(ctx, e.ScanTimeout)
		defer cancel()
	}

	run, err := e.Engine.NewScan(Options{
		Asset:   asset,
		Program: program.Program,
		Rate:    program.Rate,
		Limiter: limiter,
		Client:  e.Client,
	})
	if err != nil {
		result.Status = StatusFailed
		result.Err = err
		taskLog.Error().Err(err).Msg("Failed to create scan")
		return result
	}

	start := time.Now()
	findings, runErr := run.Run(taskCtx)
	result.Duration = time.Since(start)
	result.Findings = findings

	// Cleanup runs on every path, including timeout and cancellation.
	if stopErr := run.Stop(); stopErr != nil {
		taskLog.Warn().Err(stopErr).Msg("Scan cleanup reported an error")
	}

	switch {
	case runErr == nil:
		result.Status = StatusCompleted
		taskLog.Info().
			Dur("duration", result.Duration).
			Int("findings", len(findings)).
			Msg("Scan completed")
		if e.OnFindings != nil && len(findings) > 0 {
			e.OnFindings(ctx, program.Program, findings)
		}
	case errors.Is(runErr, context.DeadlineExceeded) && ctx.Err() == nil:
		result.Status = StatusTimeout
		result.Err = runErr
		taskLog.Warn().Dur("duration", result.Duration).Msg("Scan timed out")
	case errors.Is(runErr, context.Canceled) || ctx.Err() != nil:
		result.Status = StatusCancelled
		result.Err = runErr
		taskLog.Info().Msg("Scan cancelled")
	default:
		result.Status = StatusFailed
		result.Err = runErr
		taskLog.Error().Err(runErr).Dur("duration", result.Duration).Msg("Scan failed")
	}

	return result
}
