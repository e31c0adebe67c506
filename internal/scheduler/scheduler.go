// Package scheduler runs crawl batches: it selects frontier entries, fetches
// them concurrently, processes the outcomes in order and checkpoints the
// resulting state.
package scheduler

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/JakeFAU/festival-crawler/internal/clock"
	"github.com/JakeFAU/festival-crawler/internal/crawler"
	"github.com/JakeFAU/festival-crawler/internal/hash"
	"github.com/JakeFAU/festival-crawler/internal/id"
	"github.com/JakeFAU/festival-crawler/internal/metrics"
	"github.com/JakeFAU/festival-crawler/internal/telemetry"
)

const (
	// DefaultMaxDepth bounds discovery depth; entries at this depth are dropped.
	DefaultMaxDepth = 3
	// DefaultBatchSize is the number of entries fetched per batch.
	DefaultBatchSize = 10

	archiveContentType = "text/html; charset=utf-8"
)

// Page error kinds reported to metrics.
const (
	kindFetch    = "fetch"
	kindStatus   = "status"
	kindAnalysis = "analysis"
	kindSink     = "sink"
)

// Config controls batch selection and page archiving.
type Config struct {
	MaxDepth      int
	BatchSize     int
	ArchivePrefix string
}

// Deps are the collaborators a Scheduler drives. Fetcher, Extractor,
// Analyzer, Store and Sink are required.
type Deps struct {
	Fetcher   crawler.Fetcher
	Extractor crawler.Extractor
	Analyzer  crawler.PageAnalyzer
	Store     crawler.CheckpointStore
	Sink      crawler.RecordSink
	Archive   crawler.PageArchive
	Hasher    crawler.Hasher
	IDs       crawler.IDGenerator
	Clock     crawler.Clock
	Logger    *zap.Logger
}

// BatchResult summarizes one batch.
type BatchResult struct {
	BatchID           string        `json:"batch_id"`
	Processed         int           `json:"processed"`
	Festivals         int           `json:"festivals"`
	Errors            int           `json:"errors"`
	Discarded         int           `json:"discarded"`
	FrontierRemaining int           `json:"frontier_remaining"`
	Duration          time.Duration `json:"duration"`
}

// Scheduler executes crawl batches.
type Scheduler struct {
	cfg       Config
	fetcher   crawler.Fetcher
	extractor crawler.Extractor
	analyzer  crawler.PageAnalyzer
	store     crawler.CheckpointStore
	sink      crawler.RecordSink
	archive   crawler.PageArchive
	hasher    crawler.Hasher
	ids       crawler.IDGenerator
	clock     crawler.Clock
	logger    *zap.Logger
	tracer    trace.Tracer
}

// New validates deps and applies defaults.
func New(cfg Config, deps Deps) (*Scheduler, error) {
	switch {
	case deps.Fetcher == nil:
		return nil, errors.New("scheduler: fetcher is required")
	case deps.Extractor == nil:
		return nil, errors.New("scheduler: extractor is required")
	case deps.Analyzer == nil:
		return nil, errors.New("scheduler: analyzer is required")
	case deps.Store == nil:
		return nil, errors.New("scheduler: checkpoint store is required")
	case deps.Sink == nil:
		return nil, errors.New("scheduler: record sink is required")
	}
	if cfg.MaxDepth <= 0 {
		cfg.MaxDepth = DefaultMaxDepth
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = DefaultBatchSize
	}
	if deps.Hasher == nil {
		deps.Hasher = hash.NewSHA256()
	}
	if deps.IDs == nil {
		deps.IDs = id.NewUUIDv7()
	}
	if deps.Clock == nil {
		deps.Clock = clock.NewSystem()
	}
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	return &Scheduler{
		cfg:       cfg,
		fetcher:   deps.Fetcher,
		extractor: deps.Extractor,
		analyzer:  deps.Analyzer,
		store:     deps.Store,
		sink:      deps.Sink,
		archive:   deps.Archive,
		hasher:    deps.Hasher,
		ids:       deps.IDs,
		clock:     deps.Clock,
		logger:    deps.Logger.Named("scheduler"),
		tracer:    telemetry.Tracer("scheduler"),
	}, nil
}

// Config returns the effective configuration.
func (s *Scheduler) Config() Config {
	return s.cfg
}

type fetchOutcome struct {
	result crawler.FetchResult
	err    error
}

// RunBatch runs one batch against a copy of state and returns the new state
// once it has been checkpointed. The input state is never modified; when the
// checkpoint cannot be saved the error is returned and callers keep state.
//
// Cancelling ctx does not interrupt a batch in flight. Fetches are bounded by
// the fetcher's own timeouts.
func (s *Scheduler) RunBatch(ctx context.Context, state crawler.CrawlState) (crawler.CrawlState, BatchResult, error) {
	ctx = context.WithoutCancel(ctx)
	start := s.clock.Now()
	next := state.Clone()

	batchID, err := s.ids.NewID()
	if err != nil {
		batchID = fmt.Sprintf("batch-%d", start.UnixNano())
	}
	result := BatchResult{BatchID: batchID}

	ctx, span := s.tracer.Start(ctx, "scheduler.batch", trace.WithAttributes(attribute.String("batch.id", batchID)))
	defer span.End()
	logger := s.logger.With(zap.String("batch_id", batchID), zap.String("trace_id", telemetry.TraceID(ctx)))

	frontier := crawler.NewFrontier(next.Frontier)
	selected, discarded := s.selectEntries(frontier, next)
	result.Processed = len(selected)
	result.Discarded = discarded

	outcomes := s.fetchAll(ctx, selected)
	for i, entry := range selected {
		festivals, failed := s.processEntry(ctx, logger, frontier, next, entry, outcomes[i])
		result.Festivals += festivals
		if failed {
			result.Errors++
		}
	}

	next.Frontier = frontier.Entries()
	next.FestivalCount += result.Festivals
	next.ErrorCount += result.Errors
	result.FrontierRemaining = len(next.Frontier)

	if err := s.store.Save(ctx, next); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "checkpoint failed")
		return state, result, fmt.Errorf("save checkpoint: %w", err)
	}

	result.Duration = s.clock.Now().Sub(start)
	metrics.ObserveBatch(result.Duration, result.FrontierRemaining)
	span.SetAttributes(
		attribute.Int("batch.processed", result.Processed),
		attribute.Int("batch.festivals", result.Festivals),
		attribute.Int("batch.errors", result.Errors),
	)
	logger.Info("batch complete",
		zap.Int("processed", result.Processed),
		zap.Int("festivals", result.Festivals),
		zap.Int("errors", result.Errors),
		zap.Int("discarded", result.Discarded),
		zap.Int("remaining", result.FrontierRemaining),
		zap.Duration("duration", result.Duration),
	)
	return next, result, nil
}

// selectEntries pops up to BatchSize fetchable entries off the head of the
// frontier and marks them visited. Visited entries are skipped and entries at
// or beyond MaxDepth are dropped without being marked.
func (s *Scheduler) selectEntries(frontier *crawler.Frontier, state crawler.CrawlState) ([]crawler.FrontierEntry, int) {
	selected := make([]crawler.FrontierEntry, 0, s.cfg.BatchSize)
	discarded := 0
	for len(selected) < s.cfg.BatchSize {
		entry, ok := frontier.Pop()
		if !ok {
			break
		}
		if state.IsVisited(entry.URL) {
			continue
		}
		if entry.Depth >= s.cfg.MaxDepth {
			discarded++
			continue
		}
		state.MarkVisited(entry.URL)
		selected = append(selected, entry)
	}
	return selected, discarded
}

func (s *Scheduler) fetchAll(ctx context.Context, entries []crawler.FrontierEntry) []fetchOutcome {
	outcomes := make([]fetchOutcome, len(entries))
	var g errgroup.Group
	for i, entry := range entries {
		g.Go(func() error {
			fetchCtx, span := s.tracer.Start(ctx, "scheduler.fetch", trace.WithAttributes(
				attribute.String("url.full", entry.URL),
				attribute.Int("crawl.depth", entry.Depth),
			))
			defer span.End()
			res, err := s.fetcher.Fetch(fetchCtx, entry.URL)
			if err != nil {
				span.RecordError(err)
				span.SetStatus(codes.Error, "fetch failed")
			} else {
				span.SetAttributes(
					attribute.Int("http.response.status_code", res.StatusCode),
					attribute.Bool("fetch.fallback", res.UsedFallback),
				)
			}
			outcomes[i] = fetchOutcome{result: res, err: err}
			return nil
		})
	}
	_ = g.Wait()
	return outcomes
}

// processEntry handles one fetched page and reports the number of records
// appended and whether the page failed.
func (s *Scheduler) processEntry(
	ctx context.Context,
	logger *zap.Logger,
	frontier *crawler.Frontier,
	state crawler.CrawlState,
	entry crawler.FrontierEntry,
	outcome fetchOutcome,
) (int, bool) {
	if outcome.err != nil {
		s.recordFailure(ctx, logger, entry, kindFetch, outcome.err)
		return 0, true
	}
	res := outcome.result
	if res.StatusCode != http.StatusOK || len(res.Body) == 0 {
		err := fmt.Errorf("%w: status %d with %d byte body", crawler.ErrFetchFailure, res.StatusCode, len(res.Body))
		s.recordFailure(ctx, logger, entry, kindStatus, err)
		return 0, true
	}

	page, err := s.analyze(entry, res.Body)
	if err != nil {
		s.recordFailure(ctx, logger, entry, kindAnalysis, err)
		return 0, true
	}

	appended := 0
	for _, record := range page.records {
		if record.SourceURL == "" {
			record.SourceURL = entry.URL
		}
		record.Depth = entry.Depth
		if recordID, err := s.ids.NewID(); err == nil {
			record.RecordID = recordID
		}
		if err := s.sink.AppendRecord(ctx, record); err != nil {
			metrics.ObserveRecords(entry.URL, appended)
			s.recordFailure(ctx, logger, entry, kindSink, fmt.Errorf("append record: %w", err))
			return appended, true
		}
		appended++
	}
	metrics.ObserveRecords(entry.URL, appended)

	s.archivePage(ctx, logger, entry, res.Body)

	// The continuation goes first so it keeps its depth when it is also an
	// outbound link.
	if page.next != "" && !state.IsVisited(page.next) {
		frontier.PushFront(crawler.FrontierEntry{URL: page.next, Depth: entry.Depth})
	}
	for _, link := range page.links {
		if !state.IsVisited(link) {
			frontier.PushBack(crawler.FrontierEntry{URL: link, Depth: entry.Depth + 1})
		}
	}

	logger.Debug("page processed",
		zap.String("url", entry.URL),
		zap.Int("depth", entry.Depth),
		zap.Int("records", appended),
		zap.Int("links", len(page.links)),
		zap.Bool("fallback", res.UsedFallback),
	)
	return appended, false
}

type pageAnalysis struct {
	records []crawler.FestivalRecord
	links   []string
	next    string
}

// analyze runs extraction and discovery, turning panics into ErrAnalysis.
func (s *Scheduler) analyze(entry crawler.FrontierEntry, body []byte) (page pageAnalysis, err error) {
	defer func() {
		if r := recover(); r != nil {
			page = pageAnalysis{}
			err = fmt.Errorf("%w: %v", crawler.ErrAnalysis, r)
		}
	}()

	page.records = s.extractor.Extract(body, entry.URL)

	links, err := s.analyzer.FindLinks(body, entry.URL)
	if err != nil {
		return pageAnalysis{}, fmt.Errorf("%w: find links: %v", crawler.ErrAnalysis, err)
	}
	page.links = links

	next, ok, err := s.analyzer.FindNextPage(body, entry.URL)
	if err != nil {
		return pageAnalysis{}, fmt.Errorf("%w: find next page: %v", crawler.ErrAnalysis, err)
	}
	if ok {
		page.next = next
	}
	return page, nil
}

func (s *Scheduler) recordFailure(
	ctx context.Context,
	logger *zap.Logger,
	entry crawler.FrontierEntry,
	kind string,
	cause error,
) {
	metrics.ObservePageError(kind)
	logger.Warn("page failed",
		zap.String("url", entry.URL),
		zap.Int("depth", entry.Depth),
		zap.String("kind", kind),
		zap.Error(cause),
	)
	rec := crawler.ErrorRecord{URL: entry.URL, Error: cause.Error(), Depth: entry.Depth}
	if err := s.sink.AppendError(ctx, rec); err != nil {
		logger.Error("append error record failed", zap.String("url", entry.URL), zap.Error(err))
	}
}

// archivePage stores the raw body when an archive is configured. Archive
// failures are logged and do not fail the page.
func (s *Scheduler) archivePage(ctx context.Context, logger *zap.Logger, entry crawler.FrontierEntry, body []byte) {
	if s.archive == nil {
		return
	}
	digest, err := s.hasher.Hash(body)
	if err != nil {
		logger.Warn("hash page body failed", zap.String("url", entry.URL), zap.Error(err))
		return
	}
	path := s.buildArchivePath(entry.URL, digest)
	uri, err := s.archive.PutObject(ctx, path, archiveContentType, bytes.NewReader(body))
	if err != nil {
		logger.Warn("archive page failed", zap.String("url", entry.URL), zap.String("path", path), zap.Error(err))
		return
	}
	logger.Debug("page archived", zap.String("url", entry.URL), zap.String("uri", uri))
}

func (s *Scheduler) buildArchivePath(rawURL, digest string) string {
	host := "unknown"
	if u, err := url.Parse(rawURL); err == nil && u.Hostname() != "" {
		host = strings.ToLower(u.Hostname())
	}
	prefix := strings.Trim(s.cfg.ArchivePrefix, "/")
	if prefix == "" {
		return fmt.Sprintf("%s/%s.html", host, digest)
	}
	return fmt.Sprintf("%s/%s/%s.html", prefix, host, digest)
}
