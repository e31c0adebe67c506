package crawler

import (
	"context"
	"io"
	"time"
)

// Fetcher fetches a URL and returns its status and body.
type Fetcher interface {
	Fetch(ctx context.Context, rawURL string) (FetchResult, error)
}

// Extractor turns fetched markup into zero or more festival records. It never
// fails; a parse miss yields an empty slice.
type Extractor interface {
	Extract(markup []byte, pageURL string) []FestivalRecord
}

// PageAnalyzer discovers outbound links and pagination continuations.
type PageAnalyzer interface {
	FindLinks(markup []byte, baseURL string) ([]string, error)
	FindNextPage(markup []byte, baseURL string) (string, bool, error)
}

// CheckpointStore persists the crawl state as a whole document.
type CheckpointStore interface {
	Load(ctx context.Context) (CrawlState, error)
	Save(ctx context.Context, state CrawlState) error
}

// RecordSink appends records and errors to durable logs.
type RecordSink interface {
	AppendRecord(ctx context.Context, record FestivalRecord) error
	AppendError(ctx context.Context, record ErrorRecord) error
}

// PageArchive writes raw fetched pages and returns a URI.
type PageArchive interface {
	PutObject(ctx context.Context, path string, contentType string, data io.Reader) (string, error)
}

// Publisher pushes record notifications to Pub/Sub (or similar).
type Publisher interface {
	Publish(ctx context.Context, topic string, payload any) (string, error)
}

// Hasher computes content digests.
type Hasher interface {
	Hash(data []byte) (string, error)
}

// Clock returns the current time (useful for testing).
type Clock interface {
	Now() time.Time
}

// IDGenerator produces record and batch IDs.
type IDGenerator interface {
	NewID() (string, error)
}
