// Package probe is the built-in scan engine: a small set of paced HTTP
// checks per asset. It exists so the scheduler is useful out of the box;
// heavier engines plug in through the same interface.
package probe

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/perchsec/kestrel/pkg/http_utils"
	"github.com/perchsec/kestrel/pkg/scan"
)

const maxBodySample = 4096

// Engine implements scan.Engine with HTTP-level probes.
type Engine struct{}

func NewEngine() *Engine {
	return &Engine{}
}

func (e *Engine) NewScan(opts scan.Options) (scan.Scan, error) {
	if opts.Asset == "" {
		return nil, fmt.Errorf("probe scan requires an asset")
	}
	if opts.Limiter == nil {
		return nil, fmt.Errorf("probe scan requires a rate limiter")
	}

	client := opts.Client
	if client == nil {
		client = http_utils.CreateHttpClient()
	}

	return &probeScan{
		opts:   opts,
		client: client,
		done:   make(chan struct{}),
	}, nil
}

type probeScan struct {
	opts     scan.Options
	client   *http.Client
	stopOnce sync.Once
	done     chan struct{}
}

// Run walks the probe list for the asset, pacing every request through
// the program limiter. It returns the findings gathered so far when the
// context ends early.
func (s *probeScan) Run(ctx context.Context) ([]scan.Finding, error) {
	base, err := normalizeAsset(s.opts.Asset)
	if err != nil {
		return nil, err
	}

	scanLog := log.With().
		Str("program", s.opts.Program).
		Str("asset", s.opts.Asset).
		Logger()
	scanLog.Debug().Float64("rps", s.opts.Rate).Msg("Starting probe scan")

	var findings []scan.Finding
	for _, check := range defaultChecks() {
		select {
		case <-s.done:
			return findings, context.Canceled
		default:
		}

		if err := s.opts.Limiter.Wait(ctx); err != nil {
			return findings, err
		}

		result, err := s.request(ctx, base, check.Path)
		if err != nil {
			if ctx.Err() != nil {
				return findings, ctx.Err()
			}
			scanLog.Debug().Err(err).Str("path", check.Path).Msg("Probe request failed")
			continue
		}

		for _, finding := range check.Inspect(result) {
			finding.ID = uuid.NewString()
			findings = append(findings, finding)
		}
	}

	return findings, nil
}

// Stop aborts an in-flight run. Safe to call multiple times and after
// the run already returned.
func (s *probeScan) Stop() error {
	s.stopOnce.Do(func() {
		close(s.done)
	})
	return nil
}

type probeResponse struct {
	URL        string
	StatusCode int
	Header     http.Header
	Body       string
}

func (s *probeScan) request(ctx context.Context, base *url.URL, path string) (*probeResponse, error) {
	target := *base
	target.Path = path

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target.String(), nil)
	if err != nil {
		return nil, err
	}
	http_utils.SetStandardHeaders(req)

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySample))
	if err != nil {
		return nil, err
	}

	return &probeResponse{
		URL:        target.String(),
		StatusCode: resp.StatusCode,
		Header:     resp.Header,
		Body:       string(body),
	}, nil
}

func normalizeAsset(asset string) (*url.URL, error) {
	raw := asset
	if !strings.Contains(raw, "://") {
		raw = "https://" + raw
	}
	parsed, err := url.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("invalid asset %q: %w", asset, err)
	}
	if parsed.Host == "" {
		return nil, fmt.Errorf("invalid asset %q: no host", asset)
	}
	return parsed, nil
}
