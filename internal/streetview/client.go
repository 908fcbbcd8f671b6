package streetview

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/JakeFAU/streetview-harvester/internal/metrics"
	"github.com/JakeFAU/streetview-harvester/internal/ratelimit"
	"go.uber.org/zap"
)

// Default endpoints.
const (
	DefaultSearchEndpoint   = "https://maps.googleapis.com/maps/api/js/GeoPhotoService.SingleImageSearch"
	DefaultMetadataEndpoint = "https://maps.googleapis.com/maps/api/streetview/metadata"
)

// Rate limiter keys.
const (
	ServiceSearch   = "search"
	ServiceMetadata = "metadata"
)

const maxBodyBytes = 4 << 20

// Config controls the HTTP behaviour shared by both clients.
type Config struct {
	SearchEndpoint   string
	MetadataEndpoint string
	APIKey           string
	Timeout          time.Duration
	UserAgent        string
	MaxRetries       int
	// SearchRadius is the lookup radius in meters.
	SearchRadius int
}

func (c Config) withDefaults() Config {
	if c.SearchEndpoint == "" {
		c.SearchEndpoint = DefaultSearchEndpoint
	}
	if c.MetadataEndpoint == "" {
		c.MetadataEndpoint = DefaultMetadataEndpoint
	}
	if c.Timeout <= 0 {
		c.Timeout = 15 * time.Second
	}
	if c.UserAgent == "" {
		c.UserAgent = "streetview-harvester/0.1"
	}
	if c.SearchRadius <= 0 {
		c.SearchRadius = 50
	}
	return c
}

// transport is the retrying, rate limited GET shared by the clients.
type transport struct {
	http    *http.Client
	limiter *ratelimit.Limiter
	retry   *RetryPolicy
	agent   string
	logger  *zap.Logger
}

func newTransport(cfg Config, hc *http.Client, limiter *ratelimit.Limiter, logger *zap.Logger) *transport {
	if hc == nil {
		hc = &http.Client{Timeout: cfg.Timeout}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &transport{
		http:    hc,
		limiter: limiter,
		retry:   NewRetryPolicy(cfg.MaxRetries),
		agent:   cfg.UserAgent,
		logger:  logger,
	}
}

// get fetches rawURL and returns the body, retrying per the policy. The
// limiter is consulted before every attempt.
func (t *transport) get(ctx context.Context, service, rawURL string) ([]byte, error) {
	for attempt := 1; ; attempt++ {
		body, err := t.once(ctx, service, rawURL)
		if err == nil {
			return body, nil
		}
		if ctx.Err() != nil || !t.retry.ShouldRetry(err, attempt) {
			return nil, err
		}
		metrics.ObserveRetry(service)
		wait := t.retry.Backoff(attempt)
		t.logger.Debug("retrying external call",
			zap.String("service", service),
			zap.Int("attempt", attempt),
			zap.Duration("backoff", wait),
			zap.Error(err),
		)
		if err := sleepCtx(ctx, wait); err != nil {
			return nil, err
		}
	}
}

func (t *transport) once(ctx context.Context, service, rawURL string) ([]byte, error) {
	if err := t.limiter.Wait(ctx, service); err != nil {
		return nil, err
	}
	start := time.Now()
	body, err := t.do(ctx, rawURL)
	result := "ok"
	if err != nil {
		result = "error"
		var se *statusError
		if errors.As(err, &se) {
			result = fmt.Sprintf("http_%d", se.code)
		}
	}
	metrics.ObserveExternalCall(service, rawURL, result, time.Since(start))
	return body, err
}

func (t *transport) do(ctx context.Context, rawURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("User-Agent", t.agent)
	resp, err := t.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("do request: %w", err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxBodyBytes))
		return nil, &statusError{code: resp.StatusCode}
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}
	return body, nil
}
