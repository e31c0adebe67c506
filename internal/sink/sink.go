// Package sink fans festival records out from the durable JSONL log to
// optional mirrors.
package sink

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"github.com/JakeFAU/festival-crawler/internal/crawler"
	"github.com/JakeFAU/festival-crawler/internal/metrics"
)

// RecordStore persists records in a database.
type RecordStore interface {
	StoreRecord(ctx context.Context, record crawler.FestivalRecord) error
}

// Config wires the fan-out.
type Config struct {
	// Primary is the durable record log. Its failures are returned.
	Primary crawler.RecordSink
	// Store and Publisher are optional mirrors. Their failures are logged
	// and counted only.
	Store     RecordStore
	Publisher crawler.Publisher
	Topic     string
	Logger    *zap.Logger
}

// Fanout implements crawler.RecordSink.
type Fanout struct {
	primary   crawler.RecordSink
	store     RecordStore
	publisher crawler.Publisher
	topic     string
	logger    *zap.Logger
}

// New validates cfg and returns a Fanout.
func New(cfg Config) (*Fanout, error) {
	if cfg.Primary == nil {
		return nil, errors.New("primary record sink is required")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Fanout{
		primary:   cfg.Primary,
		store:     cfg.Store,
		publisher: cfg.Publisher,
		topic:     cfg.Topic,
		logger:    logger.Named("sink"),
	}, nil
}

// AppendRecord writes to the primary log, then to each mirror.
func (f *Fanout) AppendRecord(ctx context.Context, record crawler.FestivalRecord) error {
	if err := f.primary.AppendRecord(ctx, record); err != nil {
		return err
	}
	if f.store != nil {
		if err := f.store.StoreRecord(ctx, record); err != nil {
			metrics.ObserveMirrorFailure("postgres")
			f.logger.Warn("postgres mirror failed",
				zap.String("record_id", record.RecordID),
				zap.String("url", record.SourceURL),
				zap.Error(err),
			)
		}
	}
	if f.publisher != nil {
		if _, err := f.publisher.Publish(ctx, f.topic, record); err != nil {
			metrics.ObserveMirrorFailure("pubsub")
			f.logger.Warn("pubsub mirror failed",
				zap.String("record_id", record.RecordID),
				zap.String("url", record.SourceURL),
				zap.Error(err),
			)
		}
	}
	return nil
}

// AppendError writes to the primary error log only.
func (f *Fanout) AppendError(ctx context.Context, record crawler.ErrorRecord) error {
	return f.primary.AppendError(ctx, record)
}
