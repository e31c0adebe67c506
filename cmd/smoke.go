package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JakeFAU/festival-crawler/internal/app"
	"github.com/JakeFAU/festival-crawler/internal/checkpoint"
	"github.com/JakeFAU/festival-crawler/internal/crawler"
)

// smokeOnlineURL answers 200 with a JSON echo that includes the request URL.
const smokeOnlineURL = "https://httpbin.org/get"

const smokeBaseURL = "https://festivals.example/"

const smokePage = `<html><body>
<h1>Foo Film Festival</h1>
<p>Deadline: March 31, 2025</p>
<a href="/submit">Submit</a>
<a href="?page=2">Next &raquo;</a>
</body></html>`

type smokeCheck struct {
	name string
	run  func(context.Context, *app.App) error
}

// newSmokeCmd creates the 'smoke' subcommand: quick offline checks of the
// analyzer, extractor and checkpoint layers, plus an optional live fetch.
func newSmokeCmd() *cobra.Command {
	var online bool

	cmd := &cobra.Command{
		Use:   "smoke",
		Short: "Runs self-checks of the crawl pipeline",
		RunE: func(cmd *cobra.Command, _ []string) error {
			appInstance, err := resolveApp(cmd.Context())
			if err != nil {
				return err
			}
			checks := []smokeCheck{
				{name: "analyzer", run: smokeAnalyzer},
				{name: "extractor", run: smokeExtractor},
				{name: "checkpoint", run: smokeCheckpoint},
			}
			if online {
				checks = append(checks, smokeCheck{name: "fetch", run: smokeFetch})
			}

			logger := appInstance.Logger().Named("smoke")
			var errs []error
			for _, c := range checks {
				if err := c.run(cmd.Context(), appInstance); err != nil {
					logger.Error("smoke check failed", zap.String("check", c.name), zap.Error(err))
					fmt.Fprintf(cmd.OutOrStdout(), "FAIL %s: %v\n", c.name, err)
					errs = append(errs, fmt.Errorf("%s: %w", c.name, err))
					continue
				}
				fmt.Fprintf(cmd.OutOrStdout(), "ok   %s\n", c.name)
			}
			return errors.Join(errs...)
		},
	}
	cmd.Flags().BoolVar(&online, "online", false, "also fetch "+smokeOnlineURL+" through the configured fetcher")
	return cmd
}

func smokeAnalyzer(_ context.Context, a *app.App) error {
	analyzer := a.Analyzer()
	links, err := analyzer.FindLinks([]byte(smokePage), smokeBaseURL)
	if err != nil {
		return err
	}
	want := smokeBaseURL + "submit"
	if !slices.Contains(links, want) {
		return fmt.Errorf("links %v missing %s", links, want)
	}

	next, ok, err := analyzer.FindNextPage([]byte(smokePage), smokeBaseURL)
	if err != nil {
		return err
	}
	if !ok || next != smokeBaseURL+"?page=2" {
		return fmt.Errorf("next page = %q, %v", next, ok)
	}
	return nil
}

func smokeExtractor(_ context.Context, a *app.App) error {
	records := a.Extractor().Extract([]byte(smokePage), smokeBaseURL)
	if len(records) != 1 {
		return fmt.Errorf("expected 1 record, got %d", len(records))
	}
	rec := records[0]
	if rec.Name != "Foo Film Festival" || len(rec.Deadlines) != 1 || rec.Deadlines[0] != "2025-03-31" {
		return fmt.Errorf("unexpected record %+v", rec)
	}
	return nil
}

func smokeCheckpoint(ctx context.Context, _ *app.App) error {
	dir, err := os.MkdirTemp("", "festcrawl-smoke-")
	if err != nil {
		return fmt.Errorf("create temp dir: %w", err)
	}
	defer func() { _ = os.RemoveAll(dir) }()

	store, err := checkpoint.NewFileStore(filepath.Join(dir, "state.json"))
	if err != nil {
		return err
	}
	state := crawler.NewCrawlState()
	state.MarkVisited(smokeBaseURL)
	state.Frontier = append(state.Frontier, crawler.FrontierEntry{URL: smokeBaseURL + "submit", Depth: 1})
	state.FestivalCount = 1
	if err := store.Save(ctx, state); err != nil {
		return err
	}
	loaded, err := store.Load(ctx)
	if err != nil {
		return err
	}
	if !loaded.IsVisited(smokeBaseURL) || len(loaded.Frontier) != 1 || loaded.FestivalCount != 1 {
		return fmt.Errorf("state did not round-trip: %+v", loaded)
	}

	log, err := checkpoint.NewRecordLog(filepath.Join(dir, "data.jsonl"))
	if err != nil {
		return err
	}
	if err := log.AppendRecord(ctx, crawler.FestivalRecord{Name: "Foo Film Festival", SourceURL: smokeBaseURL}); err != nil {
		return err
	}
	data, err := os.ReadFile(log.RecordsPath()) // #nosec G304 -- path under our temp dir
	if err != nil {
		return fmt.Errorf("read record log: %w", err)
	}
	if !strings.HasSuffix(string(data), "\n") || strings.Count(string(data), "\n") != 1 {
		return fmt.Errorf("record log is not one JSON line: %q", data)
	}
	return nil
}

func smokeFetch(ctx context.Context, a *app.App) error {
	res, err := a.Fetcher().Fetch(ctx, smokeOnlineURL)
	if err != nil {
		return err
	}
	if res.StatusCode != http.StatusOK {
		return fmt.Errorf("status %d", res.StatusCode)
	}
	if !strings.Contains(string(res.Body), "url") {
		return errors.New("response body missing url field")
	}
	return nil
}
