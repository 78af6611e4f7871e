package cmd

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/fatih/color"
	"github.com/olekukonko/tablewriter"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/perchsec/kestrel/pkg/gate"
	"github.com/perchsec/kestrel/pkg/history"
	"github.com/perchsec/kestrel/pkg/loader"
	"github.com/perchsec/kestrel/pkg/scheduler"
)

// targetsCmd represents the targets command
var targetsCmd = &cobra.Command{
	Use:   "targets",
	Short: "Show the current targets and what the gate would decide",
	Long: `Fetch the program feed and evaluate eligibility against the persisted
scan history, without committing anything. Useful to preview what the
next scheduler cycle would scan.`,
	Run: runTargets,
}

func init() {
	rootCmd.AddCommand(targetsCmd)
}

func runTargets(cmd *cobra.Command, args []string) {
	opts, err := scheduler.OptionsFromConfig()
	if err != nil {
		log.Fatal().Err(err).Msg("Invalid configuration")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()

	targets, err := loader.NewFeedLoader(nil).Fetch(ctx)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to fetch targets")
	}
	if len(targets) == 0 {
		log.Warn().Msg("Feed returned no programs")
		return
	}

	records := history.NewStore(opts.HistoryPath).Load()
	result := gate.Evaluate(targets, records, time.Now().UTC(), gate.Policy{
		DailyLimit: opts.DailyLimit,
		Cooldown:   opts.Cooldown,
	})

	included := color.New(color.FgGreen).SprintFunc()
	excluded := color.New(color.FgYellow).SprintFunc()

	decisions := make(map[string]string, len(result.Excluded))
	for _, exclusion := range result.Excluded {
		decisions[exclusion.Program] = excluded(string(exclusion.Reason))
	}
	for _, admitted := range result.Admitted {
		decisions[admitted.Program] = included("eligible")
	}

	table := tablewriter.NewWriter(os.Stdout)
	table.SetHeader([]string{"Program", "Assets", "RPS", "Decision"})
	for _, target := range targets {
		table.Append([]string{
			target.Name,
			strings.Join(target.Assets, "\n"),
			fmt.Sprintf("%.1f", target.Rate),
			decisions[target.Name],
		})
	}
	table.SetBorder(true)
	table.Render()
}
