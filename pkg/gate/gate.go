// Package gate decides which programs may be scanned in a cycle.
package gate

import (
	"time"

	"github.com/perchsec/kestrel/pkg/history"
	"github.com/perchsec/kestrel/pkg/loader"
)

// ExclusionReason explains why a program was skipped this cycle.
type ExclusionReason string

const (
	ReasonNoAssets   ExclusionReason = "no_assets"
	ReasonDailyLimit ExclusionReason = "daily_limit"
	ReasonCooldown   ExclusionReason = "cooldown"
)

// Policy holds the gating thresholds.
type Policy struct {
	DailyLimit int
	Cooldown   time.Duration
}

// Admitted is a program cleared to scan this cycle.
type Admitted struct {
	Program string
	Assets  []string
	Rate    float64
}

// Exclusion records a skipped program with its reason.
type Exclusion struct {
	Program string
	Reason  ExclusionReason
}

// Result is the outcome of one gate evaluation.
type Result struct {
	Admitted []Admitted
	Excluded []Exclusion
	Records  history.Records
}

// Evaluate applies the daily-limit and cooldown policy to the fetched
// targets against a history snapshot. The input records are never
// mutated; updates land on the returned copy, which the caller persists
// before any admitted scan runs.
func Evaluate(targets []loader.ProgramTarget, records history.Records, now time.Time, policy Policy) Result {
	result := Result{
		Records: records.Clone(),
	}
	today := now.UTC().Format(history.DateFormat)

	for _, target := range targets {
		if len(target.Assets) == 0 {
			result.Excluded = append(result.Excluded, Exclusion{Program: target.Name, Reason: ReasonNoAssets})
			continue
		}

		rec := result.Records[target.Name]
		if rec.CountFor(today) >= policy.DailyLimit {
			result.Excluded = append(result.Excluded, Exclusion{Program: target.Name, Reason: ReasonDailyLimit})
			continue
		}
		if rec != nil && rec.LastScan != nil && now.Sub(*rec.LastScan) < policy.Cooldown {
			result.Excluded = append(result.Excluded, Exclusion{Program: target.Name, Reason: ReasonCooldown})
			continue
		}

		result.Records.Ensure(target.Name).MarkScanned(now.UTC(), today)
		result.Admitted = append(result.Admitted, Admitted{
			Program: target.Name,
			Assets:  target.Assets,
			Rate:    target.Rate,
		})
	}

	return result
}
