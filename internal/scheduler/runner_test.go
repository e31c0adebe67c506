package scheduler

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/festival-crawler/internal/crawler"
)

func staticSeeds(urls ...string) SeedLoader {
	return func() ([]string, error) {
		return urls, nil
	}
}

func newTestRunner(t *testing.T, f *fixture, cfg Config, seeds SeedLoader) *Runner {
	t.Helper()
	r, err := NewRunner(f.scheduler(t, cfg), seeds, nil)
	require.NoError(t, err)
	return r
}

func TestNewRunnerRequiresCollaborators(t *testing.T) {
	t.Parallel()

	_, err := NewRunner(nil, staticSeeds(), nil)
	require.Error(t, err)

	f := newFixture()
	_, err = NewRunner(f.scheduler(t, Config{}), nil, nil)
	require.Error(t, err)
}

func TestRunSingleBatchSeedsFrontier(t *testing.T) {
	t.Parallel()

	f := newFixture()
	f.fetcher.page(seedURL, seedPage)
	r := newTestRunner(t, f, Config{}, staticSeeds(seedURL))

	summary, err := r.Run(context.Background(), RunOptions{})
	require.NoError(t, err)
	assert.Equal(t, RunSummary{Batches: 1, Processed: 1, Festivals: 1, FrontierRemaining: 3}, summary)

	saved, err := f.store.Load(context.Background())
	require.NoError(t, err)
	assert.True(t, saved.IsVisited(seedURL))
	assert.Len(t, saved.Frontier, 3)

	status := r.Status()
	assert.False(t, status.Running)
	assert.Equal(t, 1, status.Batches)
	require.NotNil(t, status.LastBatch)
	assert.Equal(t, 1, status.LastBatch.Processed)
	assert.Equal(t, 1, status.FestivalCount)
	assert.Equal(t, 3, status.FrontierSize)
	assert.Equal(t, 1, status.Visited)
}

func TestRunContinuousDrainsFrontier(t *testing.T) {
	t.Parallel()

	f := newFixture()
	f.fetcher.page(seedURL, seedPage)
	f.fetcher.page(nextURL, plainPage)
	f.fetcher.page(linkA, plainPage)
	f.fetcher.page(linkB, plainPage)
	r := newTestRunner(t, f, Config{BatchSize: 2}, staticSeeds(seedURL))

	summary, err := r.Run(context.Background(), RunOptions{Continuous: true})
	require.NoError(t, err)
	assert.Equal(t, 4, summary.Processed)
	assert.Equal(t, 0, summary.FrontierRemaining)
	assert.Equal(t, 4, summary.Batches, "three working batches and one empty batch")

	saved, err := f.store.Load(context.Background())
	require.NoError(t, err)
	assert.Len(t, saved.Visited, 4)
	assert.Empty(t, saved.Frontier)
}

func TestRunResumesFromCheckpoint(t *testing.T) {
	t.Parallel()

	f := newFixture()
	f.fetcher.page(linkA, plainPage)
	existing := stateWithFrontier(crawler.FrontierEntry{URL: linkA, Depth: 1})
	existing.MarkVisited(seedURL)
	existing.FestivalCount = 7
	f.store.state = &existing

	seeded := false
	r := newTestRunner(t, f, Config{}, func() ([]string, error) {
		seeded = true
		return []string{seedURL}, nil
	})

	_, err := r.Run(context.Background(), RunOptions{})
	require.NoError(t, err)
	assert.False(t, seeded, "seeds are only read for an empty frontier")
	assert.Equal(t, []string{linkA}, f.fetcher.called())

	saved, err := f.store.Load(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 7, saved.FestivalCount)
	assert.Equal(t, []string{seedURL, linkA}, saved.VisitedList())
}

func TestRunCorruptCheckpointIsFatal(t *testing.T) {
	t.Parallel()

	f := newFixture()
	f.store.loadErr = fmt.Errorf("%w: unexpected EOF", crawler.ErrCorruptState)
	r := newTestRunner(t, f, Config{}, staticSeeds(seedURL))

	_, err := r.Run(context.Background(), RunOptions{})
	require.Error(t, err)
	assert.ErrorIs(t, err, crawler.ErrCorruptState)
	assert.Empty(t, f.fetcher.called())
}

func TestRunSeedLoadFailure(t *testing.T) {
	t.Parallel()

	f := newFixture()
	r := newTestRunner(t, f, Config{}, func() ([]string, error) {
		return nil, errors.New("no such file")
	})

	_, err := r.Run(context.Background(), RunOptions{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "load seeds")
}

func TestRunStopsWhenCanceledBetweenBatches(t *testing.T) {
	t.Parallel()

	f := newFixture()
	f.fetcher.page(seedURL, seedPage)
	r := newTestRunner(t, f, Config{}, staticSeeds(seedURL))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	summary, err := r.Run(ctx, RunOptions{Continuous: true})
	require.NoError(t, err)
	assert.Zero(t, summary.Batches)
	assert.Empty(t, f.fetcher.called())
	assert.Zero(t, f.store.saves)
}

func TestRunSaveFailureStops(t *testing.T) {
	t.Parallel()

	f := newFixture()
	f.fetcher.page(seedURL, seedPage)
	f.store.saveErr = errors.New("disk full")
	r := newTestRunner(t, f, Config{}, staticSeeds(seedURL))

	_, err := r.Run(context.Background(), RunOptions{Continuous: true})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "disk full")
	assert.Zero(t, r.Status().Batches)
}
