// File: internal/screenshot/fetcher.go

// Package screenshot retrieves per-agent browser screenshots over the
// bridge's HTTP side channel. Failures here are local: they never affect
// the socket pipeline.
package screenshot

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/xkilldash9x/lancet/internal/config"
)

// ErrThrottled is returned when a fetch is dropped by the rate limiter.
// Rapid reselection should not queue requests, so excess calls are shed.
var ErrThrottled = errors.New("screenshot fetch throttled")

// Result is one fetched screenshot. PNG is nil when the agent has no
// capture yet.
type Result struct {
	AgentID string
	URL     string
	PNG     []byte
}

// payload mirrors the /api/screenshot/{agent_id} response body.
type payload struct {
	Screenshot *string `json:"screenshot"`
	URL        string  `json:"url"`
	AgentID    string  `json:"agent_id"`
}

// Fetcher issues screenshot requests against the bridge HTTP origin.
type Fetcher struct {
	base    string
	client  *http.Client
	limiter *rate.Limiter
	logger  *zap.Logger
}

// NewFetcher builds a Fetcher. base is the HTTP origin, without a trailing
// slash.
func NewFetcher(base string, cfg config.ScreenshotConfig, logger *zap.Logger) *Fetcher {
	rps := cfg.RequestsPerSecond
	if rps <= 0 {
		rps = 2.0
	}
	burst := cfg.Burst
	if burst <= 0 {
		burst = 1
	}
	return &Fetcher{
		base:    base,
		client:  &http.Client{Timeout: cfg.Timeout},
		limiter: rate.NewLimiter(rate.Limit(rps), burst),
		logger:  logger.Named("screenshot"),
	}
}

// Fetch retrieves the latest screenshot for one agent. Throttled calls
// return ErrThrottled immediately instead of waiting for a token.
//
// There is no sequencing between concurrent fetches; when two complete out
// of order the later response wins at the display layer.
func (f *Fetcher) Fetch(ctx context.Context, agentID string) (*Result, error) {
	if !f.limiter.Allow() {
		return nil, ErrThrottled
	}

	endpoint := f.base + "/api/screenshot/" + url.PathEscape(agentID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("build screenshot request: %w", err)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch screenshot for %s: %w", agentID, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetch screenshot for %s: status %d", agentID, resp.StatusCode)
	}

	var body payload
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("decode screenshot response for %s: %w", agentID, err)
	}

	result := &Result{AgentID: agentID, URL: body.URL}
	if body.Screenshot == nil || *body.Screenshot == "" {
		return result, nil
	}

	png, err := base64.StdEncoding.DecodeString(*body.Screenshot)
	if err != nil {
		return nil, fmt.Errorf("decode screenshot payload for %s: %w", agentID, err)
	}
	result.PNG = png

	f.logger.Debug("Fetched screenshot.", zap.String("agent_id", agentID), zap.Int("bytes", len(png)))
	return result, nil
}
