// Package report turns scan findings into Markdown reports and push
// notifications. The scheduling core hands findings over and never looks
// at them again.
package report

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/viper"

	"github.com/perchsec/kestrel/lib"
	"github.com/perchsec/kestrel/pkg/scan"
)

var severityRank = map[string]int{
	"info":     0,
	"low":      1,
	"medium":   2,
	"high":     3,
	"critical": 4,
}

// Reporter filters findings by severity and payable tags, writes one
// Markdown file per accepted finding and optionally notifies via ntfy.
type Reporter struct {
	OutputDir   string
	MinSeverity string
	PayableTags []string
	Notifier    *NtfyNotifier
}

// NewReporter builds a reporter from viper configuration.
func NewReporter(notifier *NtfyNotifier) *Reporter {
	return &Reporter{
		OutputDir:   viper.GetString("report.output_dir"),
		MinSeverity: viper.GetString("report.min_severity"),
		PayableTags: viper.GetStringSlice("report.payable_tags"),
		Notifier:    notifier,
	}
}

// Process handles a batch of findings for one program. Failures are
// logged per finding and never propagate to the scan cycle.
func (r *Reporter) Process(ctx context.Context, program string, findings []scan.Finding) {
	for _, finding := range findings {
		if !r.accepts(finding) {
			log.Debug().
				Str("program", program).
				Str("severity", finding.Severity).
				Strs("tags", finding.Tags).
				Msg("Finding below reporting threshold")
			continue
		}

		if err := r.writeReport(program, finding); err != nil {
			log.Error().Err(err).Str("program", program).Str("finding", finding.ID).Msg("Failed to write report")
			continue
		}

		if r.Notifier != nil {
			if err := r.Notifier.Notify(ctx, program, finding); err != nil {
				log.Error().Err(err).Str("program", program).Str("finding", finding.ID).Msg("Failed to send notification")
			}
		}
	}
}

// accepts applies the severity floor and, when configured, the payable
// tag allowlist.
func (r *Reporter) accepts(finding scan.Finding) bool {
	minRank, ok := severityRank[strings.ToLower(r.MinSeverity)]
	if !ok {
		minRank = severityRank["high"]
	}
	rank, ok := severityRank[strings.ToLower(finding.Severity)]
	if !ok || rank < minRank {
		return false
	}

	if len(r.PayableTags) == 0 {
		return true
	}
	for _, tag := range finding.Tags {
		if lib.SliceContainsFold(r.PayableTags, tag) {
			return true
		}
	}
	return false
}

func (r *Reporter) writeReport(program string, finding scan.Finding) error {
	if err := os.MkdirAll(r.OutputDir, 0755); err != nil {
		return fmt.Errorf("failed to create report directory: %w", err)
	}

	content := renderMarkdown(program, finding)
	path := filepath.Join(r.OutputDir, finding.ID+".md")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		return fmt.Errorf("failed to write report file: %w", err)
	}

	log.Info().Str("program", program).Str("path", path).Str("severity", finding.Severity).Msg("Report written")
	return nil
}

func renderMarkdown(program string, finding scan.Finding) string {
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("# [%s] %s\n\n", strings.ToUpper(finding.Severity), program))
	sb.WriteString(fmt.Sprintf("**URL:** %s\n\n", finding.URL))
	sb.WriteString(fmt.Sprintf("**Detected:** %s\n\n", time.Now().UTC().Format(time.RFC3339)))
	sb.WriteString("## Description\n\n")
	sb.WriteString(finding.Description + "\n\n")
	if len(finding.Tags) > 0 {
		sb.WriteString("## Tags\n\n")
		sb.WriteString(lib.StringsSliceToText(finding.Tags))
		sb.WriteString("\n")
	}
	sb.WriteString(fmt.Sprintf("---\nFinding ID: `%s`\n", finding.ID))
	return sb.String()
}
