package scheduler

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/festival-crawler/internal/analyzer"
	"github.com/JakeFAU/festival-crawler/internal/clock"
	"github.com/JakeFAU/festival-crawler/internal/crawler"
	"github.com/JakeFAU/festival-crawler/internal/extract"
	"github.com/JakeFAU/festival-crawler/internal/fetcher/strategy"
	"github.com/JakeFAU/festival-crawler/internal/id"
	"github.com/JakeFAU/festival-crawler/internal/storage/memory"
)

const (
	seedURL = "https://festivals.example/"
	nextURL = "https://festivals.example/?page=2"
	linkA   = "https://festivals.example/a"
	linkB   = "https://festivals.example/b"
)

const seedPage = `<html><body>
<h1>Foo Film Festival</h1><p>Deadline: March 31, 2025</p>
<a href="/a">A</a>
<a href="/b">B</a>
<a href="https://elsewhere.example/c">C</a>
<a href="/?page=2" rel="next">Next</a>
</body></html>`

const plainPage = `<html><body><p>Nothing to see.</p></body></html>`

type stubFetcher struct {
	mu    sync.Mutex
	pages map[string]crawler.FetchResult
	errs  map[string]error
	calls []string
}

func newStubFetcher() *stubFetcher {
	return &stubFetcher{
		pages: make(map[string]crawler.FetchResult),
		errs:  make(map[string]error),
	}
}

func (f *stubFetcher) page(rawURL, html string) {
	f.pages[rawURL] = crawler.FetchResult{StatusCode: 200, Body: []byte(html)}
}

func (f *stubFetcher) Fetch(_ context.Context, rawURL string) (crawler.FetchResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, rawURL)
	if err, ok := f.errs[rawURL]; ok {
		return crawler.FetchResult{}, err
	}
	if res, ok := f.pages[rawURL]; ok {
		res.URL = rawURL
		res.FinalURL = rawURL
		return res, nil
	}
	return crawler.FetchResult{URL: rawURL, StatusCode: 404}, nil
}

func (f *stubFetcher) called() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.calls))
	copy(out, f.calls)
	return out
}

type memoryCheckpoint struct {
	mu      sync.Mutex
	state   *crawler.CrawlState
	saves   int
	saveErr error
	loadErr error
}

func (m *memoryCheckpoint) Load(context.Context) (crawler.CrawlState, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.loadErr != nil {
		return crawler.CrawlState{}, m.loadErr
	}
	if m.state == nil {
		return crawler.NewCrawlState(), nil
	}
	return m.state.Clone(), nil
}

func (m *memoryCheckpoint) Save(_ context.Context, state crawler.CrawlState) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.saveErr != nil {
		return m.saveErr
	}
	saved := state.Clone()
	m.state = &saved
	m.saves++
	return nil
}

type recordingSink struct {
	mu         sync.Mutex
	records    []crawler.FestivalRecord
	errors     []crawler.ErrorRecord
	failRecord error
}

func (s *recordingSink) AppendRecord(_ context.Context, record crawler.FestivalRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failRecord != nil {
		return s.failRecord
	}
	s.records = append(s.records, record)
	return nil
}

func (s *recordingSink) AppendError(_ context.Context, record crawler.ErrorRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.errors = append(s.errors, record)
	return nil
}

type panicExtractor struct{}

func (panicExtractor) Extract([]byte, string) []crawler.FestivalRecord {
	panic("selector exploded")
}

type fixture struct {
	fetcher *stubFetcher
	store   *memoryCheckpoint
	sink    *recordingSink
	archive *memory.BlobStore
	clock   *clock.Fixed
	deps    Deps
}

func newFixture() *fixture {
	clk := clock.NewFixed(time.Date(2025, 1, 15, 12, 0, 0, 0, time.UTC))
	f := &fixture{
		fetcher: newStubFetcher(),
		store:   &memoryCheckpoint{},
		sink:    &recordingSink{},
		archive: memory.NewBlobStore(),
		clock:   clk,
	}
	f.deps = Deps{
		Fetcher:   f.fetcher,
		Extractor: extract.NewDispatcher(nil, clk, nil),
		Analyzer:  analyzer.New(),
		Store:     f.store,
		Sink:      f.sink,
		Archive:   f.archive,
		IDs:       id.NewSequence("id"),
		Clock:     clk,
	}
	return f
}

func (f *fixture) scheduler(t *testing.T, cfg Config) *Scheduler {
	t.Helper()
	s, err := New(cfg, f.deps)
	require.NoError(t, err)
	return s
}

func stateWithFrontier(entries ...crawler.FrontierEntry) crawler.CrawlState {
	state := crawler.NewCrawlState()
	state.Frontier = entries
	return state
}

func assertNoDuplicatePending(t *testing.T, state crawler.CrawlState) {
	t.Helper()
	seen := make(map[string]bool)
	for _, e := range state.Frontier {
		assert.False(t, seen[e.URL], "duplicate pending url %s", e.URL)
		assert.False(t, state.IsVisited(e.URL), "pending url %s already visited", e.URL)
		seen[e.URL] = true
	}
}

func TestNewValidatesDeps(t *testing.T) {
	t.Parallel()

	f := newFixture()
	deps := f.deps
	deps.Fetcher = nil
	_, err := New(Config{}, deps)
	require.Error(t, err)

	deps = f.deps
	deps.Store = nil
	_, err = New(Config{}, deps)
	require.Error(t, err)

	s, err := New(Config{}, f.deps)
	require.NoError(t, err)
	assert.Equal(t, DefaultMaxDepth, s.Config().MaxDepth)
	assert.Equal(t, DefaultBatchSize, s.Config().BatchSize)
}

func TestRunBatchFreshCrawl(t *testing.T) {
	t.Parallel()

	f := newFixture()
	f.fetcher.page(seedURL, seedPage)
	s := f.scheduler(t, Config{MaxDepth: 3, BatchSize: 10, ArchivePrefix: "/pages/"})

	input := stateWithFrontier(crawler.FrontierEntry{URL: seedURL, Depth: 0})
	next, result, err := s.RunBatch(context.Background(), input)
	require.NoError(t, err)

	assert.Equal(t, []crawler.FrontierEntry{
		{URL: nextURL, Depth: 0},
		{URL: linkA, Depth: 1},
		{URL: linkB, Depth: 1},
	}, next.Frontier)
	assert.Equal(t, []string{seedURL}, next.VisitedList())
	assert.Equal(t, 1, next.FestivalCount)
	assert.Equal(t, 0, next.ErrorCount)
	assertNoDuplicatePending(t, next)

	assert.Equal(t, "id-1", result.BatchID)
	assert.Equal(t, 1, result.Processed)
	assert.Equal(t, 1, result.Festivals)
	assert.Equal(t, 0, result.Errors)
	assert.Equal(t, 3, result.FrontierRemaining)

	require.Len(t, f.sink.records, 1)
	rec := f.sink.records[0]
	assert.Equal(t, "Foo Film Festival", rec.Name)
	assert.Equal(t, []string{"2025-03-31"}, rec.Deadlines)
	assert.Equal(t, seedURL, rec.SourceURL)
	assert.Equal(t, 0, rec.Depth)
	assert.Equal(t, "id-2", rec.RecordID)
	assert.Empty(t, f.sink.errors)

	keys := f.archive.Keys()
	require.Len(t, keys, 1)
	assert.Regexp(t, `^pages/festivals\.example/[0-9a-f]{64}\.html$`, keys[0])

	assert.Equal(t, 1, f.store.saves)
	assert.Equal(t, []crawler.FrontierEntry{{URL: seedURL, Depth: 0}}, input.Frontier, "input state must not change")
	assert.Empty(t, input.Visited)
}

func TestRunBatchDepthExhaustion(t *testing.T) {
	t.Parallel()

	f := newFixture()
	f.fetcher.page(linkA, plainPage)
	s := f.scheduler(t, Config{MaxDepth: 2, BatchSize: 10})

	input := stateWithFrontier(
		crawler.FrontierEntry{URL: linkB, Depth: 2},
		crawler.FrontierEntry{URL: linkA, Depth: 1},
	)
	next, result, err := s.RunBatch(context.Background(), input)
	require.NoError(t, err)

	assert.Equal(t, []string{linkA}, f.fetcher.called())
	assert.False(t, next.IsVisited(linkB))
	assert.True(t, next.IsVisited(linkA))
	assert.Equal(t, 1, result.Discarded)
	assert.Equal(t, 1, result.Processed)
	assert.Empty(t, next.Frontier)
}

func TestRunBatchSkipsVisited(t *testing.T) {
	t.Parallel()

	f := newFixture()
	f.fetcher.page(linkB, plainPage)
	s := f.scheduler(t, Config{BatchSize: 1})

	input := stateWithFrontier(
		crawler.FrontierEntry{URL: linkA, Depth: 0},
		crawler.FrontierEntry{URL: linkB, Depth: 0},
	)
	input.MarkVisited(linkA)
	next, result, err := s.RunBatch(context.Background(), input)
	require.NoError(t, err)

	assert.Equal(t, []string{linkB}, f.fetcher.called())
	assert.Equal(t, 1, result.Processed)
	assert.Equal(t, []string{linkA, linkB}, next.VisitedList())
}

func TestRunBatchNeverRevisits(t *testing.T) {
	t.Parallel()

	f := newFixture()
	f.fetcher.page(seedURL, seedPage)
	f.fetcher.page(nextURL, `<a href="/">home</a><a href="/a">A</a>`)
	f.fetcher.page(linkA, `<a href="/">home</a>`)
	f.fetcher.page(linkB, `<a href="/?page=2">back</a>`)
	s := f.scheduler(t, Config{MaxDepth: 5, BatchSize: 2})

	state := stateWithFrontier(crawler.FrontierEntry{URL: seedURL, Depth: 0})
	for range 5 {
		var err error
		state, _, err = s.RunBatch(context.Background(), state)
		require.NoError(t, err)
		assertNoDuplicatePending(t, state)
	}

	counts := make(map[string]int)
	for _, u := range f.fetcher.called() {
		counts[u]++
	}
	for u, n := range counts {
		assert.Equal(t, 1, n, "url %s fetched more than once", u)
	}
	assert.Len(t, counts, 4)
	assert.Empty(t, state.Frontier)
}

func TestRunBatchRecordsFailures(t *testing.T) {
	t.Parallel()

	f := newFixture()
	f.fetcher.errs[linkA] = errors.New("connection reset")
	f.fetcher.pages[linkB] = crawler.FetchResult{StatusCode: 200}
	s := f.scheduler(t, Config{})

	input := stateWithFrontier(
		crawler.FrontierEntry{URL: linkA, Depth: 1},
		crawler.FrontierEntry{URL: linkB, Depth: 0},
		crawler.FrontierEntry{URL: nextURL, Depth: 2},
	)
	next, result, err := s.RunBatch(context.Background(), input)
	require.NoError(t, err)

	assert.Equal(t, 3, result.Errors)
	assert.Equal(t, 3, next.ErrorCount)
	assert.Equal(t, []string{nextURL, linkA, linkB}, next.VisitedList())

	require.Len(t, f.sink.errors, 3)
	assert.Equal(t, linkA, f.sink.errors[0].URL)
	assert.Equal(t, 1, f.sink.errors[0].Depth)
	assert.Contains(t, f.sink.errors[0].Error, "connection reset")
	assert.Equal(t, linkB, f.sink.errors[1].URL)
	assert.Contains(t, f.sink.errors[1].Error, "status 200")
	assert.Equal(t, nextURL, f.sink.errors[2].URL)
	assert.Contains(t, f.sink.errors[2].Error, "status 404")
	assert.Equal(t, 2, f.sink.errors[2].Depth)
}

func TestRunBatchProcessesInSelectionOrder(t *testing.T) {
	t.Parallel()

	f := newFixture()
	urls := []string{linkB, seedURL, linkA}
	for _, u := range urls {
		f.fetcher.page(u, `<h1>Foo Film Festival</h1><p>Deadline: March 31, 2025</p>`)
	}
	s := f.scheduler(t, Config{})

	entries := make([]crawler.FrontierEntry, 0, len(urls))
	for _, u := range urls {
		entries = append(entries, crawler.FrontierEntry{URL: u})
	}
	_, result, err := s.RunBatch(context.Background(), stateWithFrontier(entries...))
	require.NoError(t, err)
	assert.Equal(t, 3, result.Festivals)

	require.Len(t, f.sink.records, 3)
	for i, u := range urls {
		assert.Equal(t, u, f.sink.records[i].SourceURL)
	}
}

func TestRunBatchFallbackSuccess(t *testing.T) {
	t.Parallel()

	f := newFixture()
	primary := newStubFetcher()
	primary.pages[seedURL] = crawler.FetchResult{StatusCode: 403, Body: []byte("blocked")}
	fallback := newStubFetcher()
	fallback.page(seedURL, `<h1>Foo Film Festival</h1><p>Deadline: March 31, 2025</p>`)

	strat, err := strategy.New(primary, fallback, strategy.Config{Retries: 3, FallbackEnabled: true}, nil)
	require.NoError(t, err)
	f.deps.Fetcher = strat
	s := f.scheduler(t, Config{})

	next, result, err := s.RunBatch(context.Background(), stateWithFrontier(crawler.FrontierEntry{URL: seedURL}))
	require.NoError(t, err)

	assert.Equal(t, 0, result.Errors)
	assert.Empty(t, f.sink.errors)
	assert.Equal(t, 1, next.FestivalCount)
	require.Len(t, f.sink.records, 1)
	assert.Equal(t, "Foo Film Festival", f.sink.records[0].Name)
	assert.Equal(t, []string{seedURL}, primary.called())
	assert.Equal(t, []string{seedURL}, fallback.called())
}

func TestRunBatchAnalysisPanic(t *testing.T) {
	t.Parallel()

	f := newFixture()
	f.fetcher.page(seedURL, seedPage)
	f.deps.Extractor = panicExtractor{}
	s := f.scheduler(t, Config{})

	next, result, err := s.RunBatch(context.Background(), stateWithFrontier(crawler.FrontierEntry{URL: seedURL}))
	require.NoError(t, err)

	assert.Equal(t, 1, result.Errors)
	assert.Empty(t, next.Frontier, "a failed page contributes no links")
	require.Len(t, f.sink.errors, 1)
	assert.Contains(t, f.sink.errors[0].Error, crawler.ErrAnalysis.Error())
	assert.Contains(t, f.sink.errors[0].Error, "selector exploded")
}

func TestRunBatchRecordAppendFailure(t *testing.T) {
	t.Parallel()

	f := newFixture()
	f.fetcher.page(seedURL, seedPage)
	f.sink.failRecord = errors.New("disk full")
	s := f.scheduler(t, Config{})

	next, result, err := s.RunBatch(context.Background(), stateWithFrontier(crawler.FrontierEntry{URL: seedURL}))
	require.NoError(t, err)

	assert.Equal(t, 0, next.FestivalCount)
	assert.Equal(t, 1, next.ErrorCount)
	assert.Equal(t, 1, result.Errors)
	require.Len(t, f.sink.errors, 1)
	assert.Contains(t, f.sink.errors[0].Error, "disk full")
	assert.True(t, next.IsVisited(seedURL))
}

func TestRunBatchSaveFailureKeepsState(t *testing.T) {
	t.Parallel()

	f := newFixture()
	f.fetcher.page(seedURL, seedPage)
	f.store.saveErr = errors.New("read-only filesystem")
	s := f.scheduler(t, Config{})

	input := stateWithFrontier(crawler.FrontierEntry{URL: seedURL})
	out, _, err := s.RunBatch(context.Background(), input)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "save checkpoint")
	assert.Equal(t, input.Frontier, out.Frontier)
	assert.Empty(t, out.Visited)
	assert.Zero(t, out.FestivalCount)
}

func TestRunBatchIgnoresCancellation(t *testing.T) {
	t.Parallel()

	f := newFixture()
	f.fetcher.page(linkA, plainPage)
	s := f.scheduler(t, Config{})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	next, result, err := s.RunBatch(ctx, stateWithFrontier(crawler.FrontierEntry{URL: linkA}))
	require.NoError(t, err)
	assert.Equal(t, 1, result.Processed)
	assert.True(t, next.IsVisited(linkA))
	assert.Equal(t, 1, f.store.saves)
}

func TestBuildArchivePath(t *testing.T) {
	t.Parallel()

	f := newFixture()
	s := f.scheduler(t, Config{ArchivePrefix: "raw/"})
	assert.Equal(t, "raw/festivals.example/abc.html", s.buildArchivePath("https://Festivals.Example/x", "abc"))

	s = f.scheduler(t, Config{})
	assert.Equal(t, "unknown/abc.html", s.buildArchivePath("::bad", "abc"))
}
