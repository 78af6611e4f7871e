package config

import (
	"github.com/rs/zerolog/log"
	"github.com/spf13/viper"
)

func LoadConfig() {
	viper.SetConfigName("kestrel")       // name of config file (without extension)
	viper.SetConfigType("yaml")          // REQUIRED if the config file does not have the extension in the name
	viper.AddConfigPath("/etc/kestrel/") // path to look for the config file in
	viper.AddConfigPath(".")             // optionally look for config in the working directory

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			log.Warn().Msg("Config file not found, using defaults")
		} else {
			log.Panic().Err(err).Msg("Fatal error reading config file")
		}
	}
	SetDefaultConfig()
}

func SetDefaultConfig() {

	// Target feed
	viper.SetDefault("feed.url", "")
	viper.SetDefault("feed.timeout", 30)
	viper.SetDefault("feed.manual_run", false)
	viper.SetDefault("feed.manual_targets", []map[string]interface{}{})

	// Eligibility gate
	viper.SetDefault("gate.daily_scan_limit_per_program", 3)
	viper.SetDefault("gate.min_hours_between_scans", 4.0)

	// Scan execution
	viper.SetDefault("scan.max_concurrent_scans", 10)
	viper.SetDefault("scan.timeout_seconds", 1800)

	// Scheduler
	viper.SetDefault("scheduler.poll_interval", 900)
	viper.SetDefault("scheduler.error_backoff", 60)
	viper.SetDefault("scheduler.shutdown_grace", 30)
	viper.SetDefault("scheduler.dry_run", false)

	// Request throttling
	viper.SetDefault("throttle.default_rps", 5.0)
	viper.SetDefault("throttle.program_overrides", map[string]float64{})

	// Scan history
	viper.SetDefault("history.path", "scan_history.json")

	// Reporting
	viper.SetDefault("report.output_dir", "reports")
	viper.SetDefault("report.min_severity", "high")
	viper.SetDefault("report.payable_tags", []string{})
	viper.SetDefault("report.ntfy.server", "")
	viper.SetDefault("report.ntfy.topic", "")

	// Navigation
	viper.SetDefault("navigation.user_agent", "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36")
	viper.SetDefault("navigation.proxy", "")
	viper.SetDefault("navigation.bug_bounty_header", "")

	// Logging
	viper.SetDefault("logging.file.enabled", true)
	viper.SetDefault("logging.file.path", "kestrel.log")
}
