package crawler

import (
	"time"
)

// FrontierEntry is a pending crawl target.
type FrontierEntry struct {
	URL   string `json:"url"`
	Depth int    `json:"depth"`
}

// DateItem is one labelled date from a source's dates-and-deadlines listing.
type DateItem struct {
	Date  string `json:"date"`
	Label string `json:"label"`
}

// FestivalRecord is one extracted festival deadline entry. Optional fields
// are source dependent and omitted when the source does not provide them.
type FestivalRecord struct {
	RecordID    string     `json:"record_id,omitempty"`
	Name        string     `json:"name"`
	Deadlines   []string   `json:"deadlines"`
	OpeningDate string     `json:"opening_date,omitempty"`
	ArticleDate string     `json:"article_date,omitempty"`
	Location    string     `json:"location,omitempty"`
	DateItems   []DateItem `json:"all_date_items,omitempty"`
	SourceURL   string     `json:"source_url"`
	Depth       int        `json:"depth"`
	ExtractedAt string     `json:"extracted_at"`
}

// ErrorRecord captures a per-URL failure written to the error log.
type ErrorRecord struct {
	URL   string `json:"url"`
	Error string `json:"error"`
	Depth int    `json:"depth"`
}

// FetchResult is returned by Fetcher implementations.
type FetchResult struct {
	URL          string
	FinalURL     string
	StatusCode   int
	Body         []byte
	Duration     time.Duration
	UsedFallback bool
}
