package cmd

import (
	"fmt"
	"os"
	"sort"
	"time"

	"github.com/olekukonko/tablewriter"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/perchsec/kestrel/pkg/history"
)

// historyCmd represents the history command
var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Show the persisted scan history",
	Long: `Render the per-program scan history: how many scans ran today, the
lifetime total on record, and when each program was last scanned.`,
	Run: runHistory,
}

func init() {
	rootCmd.AddCommand(historyCmd)
}

func runHistory(cmd *cobra.Command, args []string) {
	store := history.NewStore(viper.GetString("history.path"))
	records := store.Load()
	if len(records) == 0 {
		log.Info().Str("path", store.Path()).Msg("No scan history recorded yet")
		return
	}

	programs := make([]string, 0, len(records))
	for name := range records {
		programs = append(programs, name)
	}
	sort.Strings(programs)

	today := time.Now().UTC().Format(history.DateFormat)

	table := tablewriter.NewWriter(os.Stdout)
	table.SetHeader([]string{"Program", "Today", "Total", "Last Scan"})
	for _, name := range programs {
		record := records[name]

		total := 0
		for _, count := range record.DailyCounts {
			total += count
		}

		lastScan := "never"
		if record.LastScan != nil {
			lastScan = record.LastScan.UTC().Format(time.RFC3339)
		}

		table.Append([]string{
			name,
			fmt.Sprintf("%d", record.CountFor(today)),
			fmt.Sprintf("%d", total),
			lastScan,
		})
	}
	table.SetBorder(true)
	table.Render()
}
