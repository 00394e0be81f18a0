package collector

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/newthinker/nvtrotate/internal/core"
	"github.com/newthinker/nvtrotate/internal/metrics"
	"go.uber.org/zap"
)

// HTTPOptions configures an HTTPClient.
type HTTPOptions struct {
	Provider   string
	Timeout    time.Duration
	Throttle   time.Duration
	MaxRetries int
	Headers    map[string]string
	Metrics    *metrics.Registry
	Logger     *zap.Logger
}

// HTTPClient is a throttled JSON client shared by the providers.
type HTTPClient struct {
	client     *http.Client
	provider   string
	throttle   *Throttle
	maxRetries int
	headers    map[string]string
	metrics    *metrics.Registry
	logger     *zap.Logger
}

// NewHTTPClient creates an HTTPClient.
func NewHTTPClient(opts HTTPOptions) *HTTPClient {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &HTTPClient{
		client:     &http.Client{Timeout: timeout},
		provider:   opts.Provider,
		throttle:   NewThrottle(opts.Throttle),
		maxRetries: opts.MaxRetries,
		headers:    opts.Headers,
		metrics:    opts.Metrics,
		logger:     logger.With(zap.String("provider", opts.Provider)),
	}
}

// GetJSON fetches url and decodes the body into out. Transient failures
// (network errors, 429, 5xx) are retried up to MaxRetries times, each
// attempt waiting for the throttle.
func (c *HTTPClient) GetJSON(ctx context.Context, url string, out any) error {
	var err error
	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if attempt > 0 {
			c.logger.Warn("retrying request", zap.Int("attempt", attempt), zap.Error(err))
		}
		err = c.getOnce(ctx, url, out)
		if err == nil || !core.Retryable(err) {
			return err
		}
		if ctx.Err() != nil {
			return err
		}
	}
	return err
}

func (c *HTTPClient) getOnce(ctx context.Context, url string, out any) error {
	if err := c.throttle.Wait(ctx); err != nil {
		return core.WrapError(core.ErrTransient, fmt.Errorf("waiting for throttle: %w", err))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return core.WrapError(core.ErrUnavailable, fmt.Errorf("creating request: %w", err))
	}
	req.Header.Set("Accept", "application/json")
	for k, v := range c.headers {
		req.Header.Set(k, v)
	}

	start := time.Now()
	resp, err := c.client.Do(req)
	if err != nil {
		c.metrics.RecordFetch(c.provider, 0, time.Since(start).Seconds())
		return core.WrapError(core.ErrTransient, fmt.Errorf("sending request: %w", err))
	}
	defer resp.Body.Close()
	c.metrics.RecordFetch(c.provider, resp.StatusCode, time.Since(start).Seconds())

	c.logger.Debug("upstream response",
		zap.Int("status", resp.StatusCode),
		zap.Duration("elapsed", time.Since(start)),
	)

	switch {
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
		io.Copy(io.Discard, resp.Body)
		return core.WrapError(core.ErrTransient, fmt.Errorf("unexpected status: %d", resp.StatusCode))
	case resp.StatusCode == http.StatusNotFound:
		io.Copy(io.Discard, resp.Body)
		return core.WrapError(core.ErrNotFound, fmt.Errorf("unexpected status: %d", resp.StatusCode))
	case resp.StatusCode != http.StatusOK:
		io.Copy(io.Discard, resp.Body)
		return core.WrapError(core.ErrUnavailable, fmt.Errorf("unexpected status: %d", resp.StatusCode))
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return core.WrapError(core.ErrUnavailable, fmt.Errorf("decoding response: %w", err))
	}
	return nil
}
