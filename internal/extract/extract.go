// Package extract maps fetched festival pages to structured deadline
// records. Site-specific extractors are kept in an ordered table keyed by a
// host fragment; pages from unknown hosts go through a generic heuristic.
package extract

import (
	"bytes"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"

	"github.com/JakeFAU/festival-crawler/internal/clock"
	"github.com/JakeFAU/festival-crawler/internal/crawler"
)

// GenericSource names the fallback extractor.
const GenericSource = "generic"

// SourceFunc extracts records from a parsed page. Implementations must not
// keep references to doc.
type SourceFunc func(doc *goquery.Document, pageURL string, dates *DateParser) []crawler.FestivalRecord

// Source is one row of the dispatch table.
type Source struct {
	Name         string
	HostFragment string
	Extract      SourceFunc
}

// DefaultSources returns the built-in dispatch table in match order.
func DefaultSources() []Source {
	return []Source{
		{Name: "asianfilmfestivals", HostFragment: "asianfilmfestivals.com", Extract: extractBlogArchive},
		{Name: "filmfestivalsdeadlines", HostFragment: "filmfestivalsdeadlines.com", Extract: extractDeadlineTable},
		{Name: "filmfreeway", HostFragment: "filmfreeway.com", Extract: extractFilmFreeway},
	}
}

// Dispatcher implements crawler.Extractor.
type Dispatcher struct {
	sources []Source
	generic SourceFunc
	dates   *DateParser
	clock   crawler.Clock
	logger  *zap.Logger
}

// NewDispatcher builds a dispatcher over sources. A nil sources slice uses
// DefaultSources.
func NewDispatcher(sources []Source, clk crawler.Clock, logger *zap.Logger) *Dispatcher {
	if sources == nil {
		sources = DefaultSources()
	}
	if clk == nil {
		clk = clock.NewSystem()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Dispatcher{
		sources: sources,
		generic: extractGeneric,
		dates:   NewDateParser(clk),
		clock:   clk,
		logger:  logger.Named("extract"),
	}
}

// SourceFor returns the name of the extractor that handles pageURL.
func (d *Dispatcher) SourceFor(pageURL string) string {
	if src, ok := d.match(pageURL); ok {
		return src.Name
	}
	return GenericSource
}

// Extract returns the records found in markup. A miss is an empty slice.
func (d *Dispatcher) Extract(markup []byte, pageURL string) []crawler.FestivalRecord {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(markup))
	if err != nil {
		d.logger.Debug("markup not parseable", zap.String("url", pageURL), zap.Error(err))
		return nil
	}

	fn := d.generic
	name := GenericSource
	if src, ok := d.match(pageURL); ok {
		fn = src.Extract
		name = src.Name
	}

	records := fn(doc, pageURL, d.dates)
	if len(records) == 0 {
		return nil
	}
	stamp := d.clock.Now().UTC().Format(time.RFC3339)
	for i := range records {
		if records[i].SourceURL == "" {
			records[i].SourceURL = pageURL
		}
		if records[i].Deadlines == nil {
			records[i].Deadlines = []string{}
		}
		records[i].ExtractedAt = stamp
	}
	d.logger.Debug("records extracted",
		zap.String("url", pageURL),
		zap.String("source", name),
		zap.Int("count", len(records)),
	)
	return records
}

func (d *Dispatcher) match(pageURL string) (Source, bool) {
	u, err := url.Parse(pageURL)
	if err != nil {
		return Source{}, false
	}
	host := strings.ToLower(u.Host)
	for _, src := range d.sources {
		if src.HostFragment != "" && strings.Contains(host, strings.ToLower(src.HostFragment)) {
			return src, true
		}
	}
	return Source{}, false
}
