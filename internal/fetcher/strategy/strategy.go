// Package strategy combines the primary HTTP transport with the headless
// fallback: bounded retries with linear backoff, and an early switch to the
// browser when a site answers 403.
package strategy

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/festival-crawler/internal/crawler"
	"github.com/JakeFAU/festival-crawler/internal/metrics"
)

// Defaults for the primary transport.
const (
	DefaultRetries       = 3
	DefaultTimeout       = 10 * time.Second
	DefaultBackoffFactor = 500 * time.Millisecond
)

// Config controls retry and fallback behavior.
type Config struct {
	Retries         int
	Timeout         time.Duration
	BackoffFactor   time.Duration
	FallbackEnabled bool
}

// Strategy implements crawler.Fetcher on top of a primary and an optional
// fallback transport.
type Strategy struct {
	primary  crawler.Fetcher
	fallback crawler.Fetcher
	cfg      Config
	logger   *zap.Logger
	sleep    func(ctx context.Context, d time.Duration) error
}

// New builds a Strategy. A nil fallback disables the fallback path.
func New(primary, fallback crawler.Fetcher, cfg Config, logger *zap.Logger) (*Strategy, error) {
	if primary == nil {
		return nil, errors.New("primary fetcher is required")
	}
	if cfg.Retries < 0 {
		return nil, fmt.Errorf("retries must be >= 0, got %d", cfg.Retries)
	}
	if cfg.Retries == 0 {
		cfg.Retries = DefaultRetries
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.BackoffFactor < 0 {
		return nil, fmt.Errorf("backoff factor must be >= 0, got %s", cfg.BackoffFactor)
	}
	if fallback == nil {
		cfg.FallbackEnabled = false
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Strategy{
		primary:  primary,
		fallback: fallback,
		cfg:      cfg,
		logger:   logger.Named("fetch"),
		sleep:    sleepContext,
	}, nil
}

// Config returns the effective configuration after defaults.
func (s *Strategy) Config() Config {
	return s.cfg
}

// Fetch retrieves rawURL. Any status other than 403 is returned as-is from
// the primary transport. Failures are wrapped in crawler.ErrFetchFailure.
func (s *Strategy) Fetch(ctx context.Context, rawURL string) (crawler.FetchResult, error) {
	var lastErr error
	for attempt := 1; attempt <= s.cfg.Retries; attempt++ {
		res, err := s.attempt(ctx, rawURL)
		switch {
		case err == nil && res.StatusCode == http.StatusForbidden && s.cfg.FallbackEnabled:
			metrics.ObserveFetch(rawURL, metrics.OutcomeStatus)
			s.logger.Info("403 from primary transport, switching to headless",
				zap.String("url", rawURL), zap.Int("attempt", attempt))
			return s.runFallback(ctx, rawURL, "forbidden", errors.New("403 detected"))
		case err == nil:
			if res.StatusCode == http.StatusOK {
				metrics.ObserveFetch(rawURL, metrics.OutcomeOK)
			} else {
				metrics.ObserveFetch(rawURL, metrics.OutcomeStatus)
			}
			return res, nil
		}

		metrics.ObserveFetch(rawURL, metrics.OutcomeError)
		lastErr = err
		if ctx.Err() != nil {
			return crawler.FetchResult{}, fmt.Errorf("%w: %s: %w", crawler.ErrFetchFailure, rawURL, ctx.Err())
		}
		s.logger.Debug("fetch attempt failed",
			zap.String("url", rawURL),
			zap.Int("attempt", attempt),
			zap.Int("retries", s.cfg.Retries),
			zap.Error(err),
		)
		if attempt == s.cfg.Retries {
			break
		}
		if err := s.sleep(ctx, s.Backoff(attempt)); err != nil {
			return crawler.FetchResult{}, fmt.Errorf("%w: %s: %w", crawler.ErrFetchFailure, rawURL, err)
		}
	}

	if s.cfg.FallbackEnabled {
		s.logger.Info("retries exhausted, switching to headless",
			zap.String("url", rawURL), zap.Error(lastErr))
		return s.runFallback(ctx, rawURL, "exhausted", lastErr)
	}
	return crawler.FetchResult{}, fmt.Errorf("%w: %s: %w", crawler.ErrFetchFailure, rawURL, lastErr)
}

// Backoff returns the linear delay applied after the given 1-based attempt.
func (s *Strategy) Backoff(attempt int) time.Duration {
	return s.cfg.BackoffFactor * time.Duration(attempt)
}

func (s *Strategy) attempt(ctx context.Context, rawURL string) (crawler.FetchResult, error) {
	attemptCtx, cancel := context.WithTimeout(ctx, s.cfg.Timeout)
	defer cancel()
	res, err := s.primary.Fetch(attemptCtx, rawURL)
	if err != nil {
		return crawler.FetchResult{}, fmt.Errorf("primary fetch: %w", err)
	}
	return res, nil
}

func (s *Strategy) runFallback(ctx context.Context, rawURL, reason string, cause error) (crawler.FetchResult, error) {
	metrics.ObserveFallback(reason)
	res, err := s.fallback.Fetch(ctx, rawURL)
	if err != nil {
		metrics.ObserveFetch(rawURL, metrics.OutcomeFallbackError)
		return crawler.FetchResult{}, fmt.Errorf("%w: %s: fallback after %v: %w",
			crawler.ErrFetchFailure, rawURL, cause, err)
	}
	metrics.ObserveFetch(rawURL, metrics.OutcomeFallbackOK)
	res.UsedFallback = true
	if res.StatusCode == 0 {
		res.StatusCode = http.StatusOK
	}
	return res, nil
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return fmt.Errorf("backoff canceled: %w", ctx.Err())
	case <-timer.C:
		return nil
	}
}
