package cmd

import (
	"context"
	"fmt"
	"net/http"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/JakeFAU/festival-crawler/internal/crawler"
	"github.com/JakeFAU/festival-crawler/internal/seeds"
)

// newPreviewCmd creates the 'preview' subcommand. It fetches a URL list once
// and writes whatever the extractors find, without touching the checkpoint
// or following links.
func newPreviewCmd() *cobra.Command {
	var urlsPath string

	cmd := &cobra.Command{
		Use:   "preview",
		Short: "Extracts records from a URL list without crawling",
		Long: `Fetches every URL in the list (the seeds file by default), runs the
matching extractor on each page and appends the records to the output log.
Failures go to the error log. No links are followed and the crawl
checkpoint is neither read nor written.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runPreview(cmd, urlsPath)
		},
	}
	cmd.Flags().StringVar(&urlsPath, "urls", "", "file with one URL per line (defaults to the seeds file)")
	return cmd
}

type previewResult struct {
	url     string
	records []crawler.FestivalRecord
	err     error
}

func runPreview(cmd *cobra.Command, urlsPath string) error {
	appInstance, err := resolveApp(cmd.Context())
	if err != nil {
		return err
	}
	cfg := appInstance.Config()
	logger := appInstance.Logger().Named("preview")
	if urlsPath == "" {
		urlsPath = cfg.Crawl.SeedsPath
	}

	urls, err := seeds.Load(urlsPath)
	if err != nil {
		return fmt.Errorf("load urls: %w", err)
	}

	ctx := cmd.Context()
	results := make([]previewResult, len(urls))
	g := new(errgroup.Group)
	g.SetLimit(cfg.Crawl.BatchSize)
	for i, u := range urls {
		g.Go(func() error {
			results[i] = previewURL(ctx, appInstance.Fetcher(), appInstance.Extractor(), u)
			return nil
		})
	}
	_ = g.Wait()

	sink := appInstance.Sink()
	var records, failures int
	for _, res := range results {
		if res.err != nil {
			failures++
			logger.Warn("preview fetch failed", zap.String("url", res.url), zap.Error(res.err))
			if err := sink.AppendError(ctx, crawler.ErrorRecord{URL: res.url, Error: res.err.Error()}); err != nil {
				return fmt.Errorf("append error record: %w", err)
			}
			continue
		}
		for _, rec := range res.records {
			if err := sink.AppendRecord(ctx, rec); err != nil {
				return fmt.Errorf("append record: %w", err)
			}
			records++
		}
		logger.Info("previewed page", zap.String("url", res.url), zap.Int("records", len(res.records)))
	}

	fmt.Fprintf(cmd.OutOrStdout(), "urls=%d records=%d errors=%d\n", len(urls), records, failures)
	return nil
}

func previewURL(ctx context.Context, fetcher crawler.Fetcher, extractor crawler.Extractor, rawURL string) previewResult {
	res, err := fetcher.Fetch(ctx, rawURL)
	if err != nil {
		return previewResult{url: rawURL, err: err}
	}
	if res.StatusCode != http.StatusOK || len(res.Body) == 0 {
		return previewResult{
			url: rawURL,
			err: fmt.Errorf("%w: status %d with %d byte body", crawler.ErrFetchFailure, res.StatusCode, len(res.Body)),
		}
	}
	records := extractor.Extract(res.Body, rawURL)
	for i := range records {
		if records[i].SourceURL == "" {
			records[i].SourceURL = rawURL
		}
	}
	return previewResult{url: rawURL, records: records}
}
