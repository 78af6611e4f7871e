// Package scheduler drives the fetch, gate, execute, sleep cycle.
package scheduler

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/perchsec/kestrel/pkg/gate"
	"github.com/perchsec/kestrel/pkg/history"
	"github.com/perchsec/kestrel/pkg/loader"
	"github.com/perchsec/kestrel/pkg/scan"
)

// State is the scheduler's current phase, used for logging.
type State string

const (
	StateFetching     State = "fetching"
	StateGating       State = "gating"
	StateExecuting    State = "executing"
	StateSleeping     State = "sleeping"
	StateShuttingDown State = "shutting_down"
)

// Scheduler owns one cycle at a time: a new fetch never starts while the
// previous batch is still executing.
type Scheduler struct {
	opts     Options
	source   loader.TargetSource
	store    *history.Store
	executor *scan.Executor
}

func New(opts Options, source loader.TargetSource, store *history.Store, executor *scan.Executor) *Scheduler {
	return &Scheduler{
		opts:     opts,
		source:   source,
		store:    store,
		executor: executor,
	}
}

// Run loops until the context is cancelled. Every failure short of
// cancellation degrades to skipping the current cycle.
func (s *Scheduler) Run(ctx context.Context) error {
	log.Info().
		Dur("poll_interval", s.opts.PollInterval).
		Int("daily_limit", s.opts.DailyLimit).
		Dur("cooldown", s.opts.Cooldown).
		Int("max_concurrent_scans", s.opts.MaxConcurrentScans).
		Bool("dry_run", s.opts.DryRun).
		Msg("Scheduler started")

	for {
		sleepFor := s.runCycle(ctx)

		if ctx.Err() != nil {
			log.Info().Str("state", string(StateShuttingDown)).Msg("Scheduler stopping")
			return ctx.Err()
		}

		log.Debug().Str("state", string(StateSleeping)).Dur("duration", sleepFor).Msg("Cycle finished")
		if !sleepCtx(ctx, sleepFor) {
			log.Info().Str("state", string(StateShuttingDown)).Msg("Scheduler stopping")
			return ctx.Err()
		}
	}
}

// runCycle executes one fetch-gate-execute pass and returns how long to
// sleep before the next one.
func (s *Scheduler) runCycle(ctx context.Context) (sleepFor time.Duration) {
	sleepFor = s.opts.PollInterval

	cycleLog := log.With().Str("cycle", uuid.NewString()[:8]).Logger()

	// A single broken cycle must never take the process down.
	defer func() {
		if r := recover(); r != nil {
			cycleLog.Error().Interface("panic", r).Msg("Unexpected error in scan cycle")
			sleepFor = s.opts.ErrorBackoff
		}
	}()

	cycleLog.Debug().Str("state", string(StateFetching)).Msg("Fetching targets")
	targets, err := s.source.Fetch(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return
		}
		cycleLog.Error().Err(err).Msg("Failed to fetch targets, skipping cycle")
		return
	}
	if len(targets) == 0 {
		cycleLog.Warn().Msg("No programs in feed, skipping cycle")
		return
	}

	cycleLog.Debug().Str("state", string(StateGating)).Int("programs", len(targets)).Msg("Evaluating eligibility")
	records := s.store.Load()
	result := gate.Evaluate(targets, records, time.Now().UTC(), gate.Policy{
		DailyLimit: s.opts.DailyLimit,
		Cooldown:   s.opts.Cooldown,
	})
	logExclusions(cycleLog, result.Excluded)

	if len(result.Admitted) == 0 {
		cycleLog.Info().Msg("No programs eligible this cycle")
		return
	}

	// Scans are only authorized once the updated history is on disk.
	if err := s.store.Save(result.Records); err != nil {
		cycleLog.Error().Err(err).Msg("Failed to persist scan history, no scans this cycle")
		sleepFor = s.opts.ErrorBackoff
		return
	}

	if s.opts.DryRun {
		cycleLog.Info().Int("programs", len(result.Admitted)).Msg("Dry run: skipping scan execution")
		return
	}

	cycleLog.Info().Str("state", string(StateExecuting)).Int("programs", len(result.Admitted)).Msg("Starting scan batch")
	results := s.executor.Execute(ctx, result.Admitted)
	for _, taskResult := range results {
		if taskResult.Status != scan.StatusCompleted {
			cycleLog.Warn().
				Str("program", taskResult.Program).
				Str("asset", taskResult.Asset).
				Str("status", string(taskResult.Status)).
				Err(taskResult.Err).
				Msg("Scan task did not complete")
		}
	}

	return
}

func logExclusions(cycleLog zerolog.Logger, excluded []gate.Exclusion) {
	for _, exclusion := range excluded {
		cycleLog.Info().
			Str("program", exclusion.Program).
			Str("reason", string(exclusion.Reason)).
			Msg("Program excluded this cycle")
	}
}

func sleepCtx(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
