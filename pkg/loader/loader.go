// Package loader fetches the program targets to consider each cycle.
package loader

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/viper"

	"github.com/perchsec/kestrel/pkg/http_utils"
)

// ProgramTarget is one named program with its scannable assets and the
// effective request rate to use against it. Produced fresh each cycle.
type ProgramTarget struct {
	Name   string
	Assets []string
	Rate   float64
}

// TargetSource supplies the program list for a cycle.
type TargetSource interface {
	Fetch(ctx context.Context) ([]ProgramTarget, error)
}

type feedAsset struct {
	Asset    string `json:"asset"`
	Eligible bool   `json:"eligible"`
}

type feedPolicy struct {
	MaxRequestsPerSecond *float64 `json:"max_requests_per_second"`
}

type feedProgram struct {
	Name   string      `json:"name"`
	Assets []feedAsset `json:"assets"`
	Policy feedPolicy  `json:"policy"`
}

type feedPayload struct {
	Programs []feedProgram `json:"programs"`
}

// FeedLoader pulls targets from a remote JSON feed, or from the
// manual_targets config block when manual mode is enabled.
type FeedLoader struct {
	URL         string
	Client      *http.Client
	DefaultRate float64
	Overrides   map[string]float64
}

// NewFeedLoader builds a loader from viper configuration, sharing the
// given HTTP client. A nil client gets the standard pooled one.
func NewFeedLoader(client *http.Client) *FeedLoader {
	if client == nil {
		client = http_utils.CreateHttpClient()
	}
	// Viper lowercases map keys, so overrides are keyed lowercase and
	// looked up case-insensitively.
	overrides := make(map[string]float64)
	for program, rate := range viper.GetStringMap("throttle.program_overrides") {
		switch v := rate.(type) {
		case float64:
			overrides[strings.ToLower(program)] = v
		case int:
			overrides[strings.ToLower(program)] = float64(v)
		default:
			log.Warn().Str("program", program).Interface("value", rate).Msg("Ignoring invalid rate override")
		}
	}
	return &FeedLoader{
		URL:         viper.GetString("feed.url"),
		Client:      client,
		DefaultRate: viper.GetFloat64("throttle.default_rps"),
		Overrides:   overrides,
	}
}

// Fetch returns the current cycle's targets. Only assets flagged eligible
// in the feed are kept; programs without any are dropped here.
func (l *FeedLoader) Fetch(ctx context.Context) ([]ProgramTarget, error) {
	if viper.GetBool("feed.manual_run") {
		return l.manualTargets(), nil
	}

	if l.URL == "" {
		return nil, fmt.Errorf("no feed url configured")
	}

	timeout := time.Duration(viper.GetInt("feed.timeout")) * time.Second
	reqCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, l.URL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build feed request: %w", err)
	}
	http_utils.SetStandardHeaders(req)

	resp, err := l.Client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch target feed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("target feed returned status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read target feed: %w", err)
	}

	var payload feedPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, fmt.Errorf("failed to parse target feed: %w", err)
	}

	targets := make([]ProgramTarget, 0, len(payload.Programs))
	for _, program := range payload.Programs {
		var assets []string
		for _, asset := range program.Assets {
			if asset.Eligible {
				assets = append(assets, asset.Asset)
			}
		}
		if len(assets) == 0 {
			log.Debug().Str("program", program.Name).Msg("Program has no eligible assets")
			continue
		}
		targets = append(targets, ProgramTarget{
			Name:   program.Name,
			Assets: assets,
			Rate:   l.resolveRate(program.Name, program.Policy.MaxRequestsPerSecond),
		})
	}

	log.Info().Int("programs", len(targets)).Msg("Fetched target feed")
	return targets, nil
}

// resolveRate picks the effective rate: per-program override wins, then
// the rate the feed advertises, then the configured default. Override
// names match case-insensitively.
func (l *FeedLoader) resolveRate(program string, advertised *float64) float64 {
	if rate, ok := l.Overrides[strings.ToLower(program)]; ok {
		return rate
	}
	if advertised != nil && *advertised > 0 {
		return *advertised
	}
	return l.DefaultRate
}

func (l *FeedLoader) manualTargets() []ProgramTarget {
	var entries []struct {
		Program string   `mapstructure:"program"`
		Assets  []string `mapstructure:"assets"`
		RPS     float64  `mapstructure:"rps"`
	}
	if err := viper.UnmarshalKey("feed.manual_targets", &entries); err != nil {
		log.Error().Err(err).Msg("Failed to parse manual targets")
		return nil
	}

	targets := make([]ProgramTarget, 0, len(entries))
	for _, entry := range entries {
		rate := entry.RPS
		if rate <= 0 {
			rate = l.DefaultRate
		}
		if override, ok := l.Overrides[strings.ToLower(entry.Program)]; ok {
			rate = override
		}
		targets = append(targets, ProgramTarget{
			Name:   entry.Program,
			Assets: entry.Assets,
			Rate:   rate,
		})
	}

	log.Info().Int("programs", len(targets)).Msg("Using manual targets from config")
	return targets
}
