package scheduler

import (
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

// Options holds the scheduler policy knobs, resolved from configuration.
type Options struct {
	PollInterval       time.Duration `validate:"required,min=1s"`
	ErrorBackoff       time.Duration `validate:"required,min=1s"`
	ShutdownGrace      time.Duration `validate:"min=0"`
	DailyLimit         int           `validate:"min=1"`
	Cooldown           time.Duration `validate:"min=0"`
	MaxConcurrentScans int           `validate:"min=1,max=1000"`
	ScanTimeout        time.Duration `validate:"min=0"`
	DefaultRate        float64       `validate:"gt=0"`
	HistoryPath        string        `validate:"required"`
	DryRun             bool
}

// OptionsFromConfig reads the scheduler options from viper and validates
// them.
func OptionsFromConfig() (Options, error) {
	opts := Options{
		PollInterval:       time.Duration(viper.GetInt("scheduler.poll_interval")) * time.Second,
		ErrorBackoff:       time.Duration(viper.GetInt("scheduler.error_backoff")) * time.Second,
		ShutdownGrace:      time.Duration(viper.GetInt("scheduler.shutdown_grace")) * time.Second,
		DailyLimit:         viper.GetInt("gate.daily_scan_limit_per_program"),
		Cooldown:           time.Duration(viper.GetFloat64("gate.min_hours_between_scans") * float64(time.Hour)),
		MaxConcurrentScans: viper.GetInt("scan.max_concurrent_scans"),
		ScanTimeout:        time.Duration(viper.GetInt("scan.timeout_seconds")) * time.Second,
		DefaultRate:        viper.GetFloat64("throttle.default_rps"),
		HistoryPath:        viper.GetString("history.path"),
		DryRun:             viper.GetBool("scheduler.dry_run"),
	}

	validate := validator.New()
	if err := validate.Struct(opts); err != nil {
		return opts, fmt.Errorf("invalid scheduler configuration: %w", err)
	}
	return opts, nil
}
