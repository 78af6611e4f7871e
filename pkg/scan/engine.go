// Package scan runs the admitted scan tasks of a cycle under a global
// concurrency ceiling.
package scan

import (
	"context"
	"net/http"

	"github.com/perchsec/kestrel/pkg/throttle"
)

// Finding is one result event emitted by a scan engine. The executor
// forwards findings without inspecting them.
type Finding struct {
	ID          string   `json:"id"`
	Severity    string   `json:"severity"`
	Tags        []string `json:"tags"`
	URL         string   `json:"url"`
	Description string   `json:"description"`
}

// Options describes one scan task handed to an engine.
type Options struct {
	Asset   string
	Program string
	Rate    float64
	Limiter throttle.Limiter
	Client  *http.Client
}

// Scan is a single in-flight engine run. Stop must be safe to call after
// partial execution or cancellation, and more than once.
type Scan interface {
	Run(ctx context.Context) ([]Finding, error)
	Stop() error
}

// Engine creates scans. Implementations must pace every outgoing request
// through the limiter in Options and honor context cancellation.
type Engine interface {
	NewScan(opts Options) (Scan, error)
}
