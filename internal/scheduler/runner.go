package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/festival-crawler/internal/crawler"
)

// SeedLoader returns the seed URLs used when the frontier is empty.
type SeedLoader func() ([]string, error)

// RunOptions controls how many batches Run executes.
type RunOptions struct {
	// Continuous keeps running batches until one processes nothing.
	Continuous bool
}

// RunSummary totals the batches executed by one Run call.
type RunSummary struct {
	Batches           int `json:"batches"`
	Processed         int `json:"processed"`
	Festivals         int `json:"festivals"`
	Errors            int `json:"errors"`
	FrontierRemaining int `json:"frontier_remaining"`
}

// Status is a point-in-time view of the runner for the status server.
type Status struct {
	Running       bool         `json:"running"`
	Batches       int          `json:"batches"`
	LastBatch     *BatchResult `json:"last_batch,omitempty"`
	Visited       int          `json:"visited"`
	FestivalCount int          `json:"festival_count"`
	ErrorCount    int          `json:"error_count"`
	FrontierSize  int          `json:"frontier_size"`
	UpdatedAt     time.Time    `json:"updated_at"`
}

// Runner loads the checkpoint, seeds the frontier and drives batches.
type Runner struct {
	scheduler *Scheduler
	seeds     SeedLoader
	logger    *zap.Logger

	mu     sync.RWMutex
	status Status
}

// NewRunner constructs a Runner around s.
func NewRunner(s *Scheduler, seeds SeedLoader, logger *zap.Logger) (*Runner, error) {
	if s == nil {
		return nil, errors.New("runner: scheduler is required")
	}
	if seeds == nil {
		return nil, errors.New("runner: seed loader is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Runner{
		scheduler: s,
		seeds:     seeds,
		logger:    logger.Named("runner"),
	}, nil
}

// Run executes one batch, or batches until the frontier drains when
// opts.Continuous is set. Cancelling ctx stops the loop between batches. A
// corrupt checkpoint is returned as an error wrapping crawler.ErrCorruptState.
func (r *Runner) Run(ctx context.Context, opts RunOptions) (RunSummary, error) {
	var summary RunSummary

	state, err := r.scheduler.store.Load(ctx)
	if err != nil {
		return summary, fmt.Errorf("load checkpoint: %w", err)
	}
	if len(state.Frontier) == 0 {
		state, err = r.seed(state)
		if err != nil {
			return summary, err
		}
	}

	r.setRunning(true, state)
	defer func() { r.setRunning(false, state) }()

	for {
		if err := ctx.Err(); err != nil {
			r.logger.Info("crawl interrupted between batches", zap.Error(err))
			break
		}
		next, result, err := r.scheduler.RunBatch(ctx, state)
		if err != nil {
			return summary, err
		}
		state = next
		summary.Batches++
		summary.Processed += result.Processed
		summary.Festivals += result.Festivals
		summary.Errors += result.Errors
		summary.FrontierRemaining = result.FrontierRemaining
		r.recordBatch(result, state)

		r.logger.Info("batch done",
			zap.Int("processed", result.Processed),
			zap.Int("festivals", result.Festivals),
			zap.Int("errors", result.Errors),
			zap.Int("remaining", result.FrontierRemaining),
		)
		if !opts.Continuous || result.Processed == 0 {
			break
		}
	}

	r.logger.Info("crawl finished",
		zap.Int("batches", summary.Batches),
		zap.Int("processed", summary.Processed),
		zap.Int("festival_count", state.FestivalCount),
		zap.Int("error_count", state.ErrorCount),
	)
	return summary, nil
}

// Status returns the latest snapshot.
func (r *Runner) Status() Status {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := r.status
	if r.status.LastBatch != nil {
		last := *r.status.LastBatch
		out.LastBatch = &last
	}
	return out
}

func (r *Runner) seed(state crawler.CrawlState) (crawler.CrawlState, error) {
	urls, err := r.seeds()
	if err != nil {
		return state, fmt.Errorf("load seeds: %w", err)
	}
	frontier := crawler.NewFrontier(state.Frontier)
	for _, u := range urls {
		frontier.PushBack(crawler.FrontierEntry{URL: u, Depth: 0})
	}
	state.Frontier = frontier.Entries()
	r.logger.Info("frontier seeded", zap.Int("seeds", len(state.Frontier)))
	return state, nil
}

func (r *Runner) setRunning(running bool, state crawler.CrawlState) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.status.Running = running
	r.fillCounters(state)
}

func (r *Runner) recordBatch(result BatchResult, state crawler.CrawlState) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.status.Batches++
	r.status.LastBatch = &result
	r.fillCounters(state)
}

func (r *Runner) fillCounters(state crawler.CrawlState) {
	r.status.Visited = len(state.Visited)
	r.status.FestivalCount = state.FestivalCount
	r.status.ErrorCount = state.ErrorCount
	r.status.FrontierSize = len(state.Frontier)
	r.status.UpdatedAt = r.scheduler.clock.Now()
}
