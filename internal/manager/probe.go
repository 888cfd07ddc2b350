package manager

import (
	"context"
	"time"

	"github.com/loykin/duelr/internal/engine"
	"golang.org/x/sync/errgroup"
)

// ProbeResult is the liveness of one engine address.
type ProbeResult struct {
	URL     string `json:"url"`
	Running bool   `json:"running"`
}

// Probe checks the liveness of already running engines in parallel.
func Probe(ctx context.Context, urls []string, timeout time.Duration) []ProbeResult {
	out := make([]ProbeResult, len(urls))
	var g errgroup.Group
	for i, u := range urls {
		g.Go(func() error {
			c := engine.New(engine.Config{BaseURL: u, Timeout: timeout})
			out[i] = ProbeResult{URL: c.BaseURL(), Running: c.IsRunning(ctx)}
			return nil
		})
	}
	_ = g.Wait()
	return out
}
