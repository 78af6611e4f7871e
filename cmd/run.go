package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/perchsec/kestrel/pkg/history"
	"github.com/perchsec/kestrel/pkg/http_utils"
	"github.com/perchsec/kestrel/pkg/loader"
	"github.com/perchsec/kestrel/pkg/probe"
	"github.com/perchsec/kestrel/pkg/report"
	"github.com/perchsec/kestrel/pkg/scan"
	"github.com/perchsec/kestrel/pkg/scheduler"
	"github.com/perchsec/kestrel/pkg/throttle"
)

// runCmd represents the run command
var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the continuous scan scheduler",
	Long: `Start the scheduler daemon. Each cycle it fetches the program feed,
admits the programs that are within their daily limit and cooldown,
persists the decision, and scans every admitted asset under the global
concurrency cap, pacing requests per program.

Examples:
  # Run against the configured feed
  kestrel run

  # One dry cycle: gate and commit history, but launch no scans
  kestrel run --dry-run`,
	Run: runScheduler,
}

var dryRun bool

func init() {
	rootCmd.AddCommand(runCmd)

	runCmd.Flags().BoolVar(&dryRun, "dry-run", false, "Gate and record eligibility without launching scans")
}

func runScheduler(cmd *cobra.Command, args []string) {
	if dryRun {
		viper.Set("scheduler.dry_run", true)
	}

	opts, err := scheduler.OptionsFromConfig()
	if err != nil {
		log.Fatal().Err(err).Msg("Invalid configuration")
	}

	// One pooled client shared by the feed loader, scans and notifier.
	client := http_utils.CreateHttpClient()

	store := history.NewStore(opts.HistoryPath)
	registry := throttle.NewRegistry(opts.DefaultRate)
	reporter := report.NewReporter(report.NewNtfyNotifier(client))

	executor := &scan.Executor{
		Engine:        probe.NewEngine(),
		Registry:      registry,
		Client:        client,
		MaxConcurrent: opts.MaxConcurrentScans,
		ScanTimeout:   opts.ScanTimeout,
		OnFindings:    reporter.Process,
	}

	sched := scheduler.New(opts, loader.NewFeedLoader(client), store, executor)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan struct{})
	go func() {
		defer close(done)
		if err := sched.Run(ctx); err != nil && err != context.Canceled {
			log.Error().Err(err).Msg("Scheduler exited with error")
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	sig := <-sigCh
	log.Info().Str("signal", sig.String()).Msg("Received shutdown signal")
	cancel()

	select {
	case <-done:
		log.Info().Msg("Graceful shutdown complete")
	case <-time.After(opts.ShutdownGrace):
		log.Warn().Dur("grace", opts.ShutdownGrace).Msg("Shutdown grace period elapsed, exiting")
	}
}
