package checkpoint

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/JakeFAU/festival-crawler/internal/crawler"
)

// ErrorLogSuffix is appended to the record output path to name the error log.
const ErrorLogSuffix = ".errors.jsonl"

// ErrorLogPath derives the error log location from the record log path.
func ErrorLogPath(recordsPath string) string {
	return recordsPath + ErrorLogSuffix
}

// RecordLog appends festival and error records as JSON Lines. Each call
// writes exactly one newline-terminated object so readers can tail the files
// while a crawl is running.
type RecordLog struct {
	mu          sync.Mutex
	recordsPath string
	errorsPath  string
}

// NewRecordLog returns a log writing records to recordsPath and errors to the
// derived error path.
func NewRecordLog(recordsPath string) (*RecordLog, error) {
	if recordsPath == "" {
		return nil, fmt.Errorf("output path is required")
	}
	return &RecordLog{
		recordsPath: recordsPath,
		errorsPath:  ErrorLogPath(recordsPath),
	}, nil
}

// RecordsPath returns the record log location.
func (l *RecordLog) RecordsPath() string {
	return l.recordsPath
}

// ErrorsPath returns the error log location.
func (l *RecordLog) ErrorsPath() string {
	return l.errorsPath
}

// AppendRecord writes one festival record.
func (l *RecordLog) AppendRecord(ctx context.Context, record crawler.FestivalRecord) error {
	if record.Deadlines == nil {
		record.Deadlines = []string{}
	}
	return l.appendLine(ctx, l.recordsPath, record)
}

// AppendError writes one error record.
func (l *RecordLog) AppendError(ctx context.Context, record crawler.ErrorRecord) error {
	return l.appendLine(ctx, l.errorsPath, record)
}

func (l *RecordLog) appendLine(ctx context.Context, path string, v any) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("context canceled: %w", err)
	}
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("marshal log line: %w", err)
	}
	line := buf.Bytes()

	l.mu.Lock()
	defer l.mu.Unlock()

	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return fmt.Errorf("creating log dir %s: %w", dir, err)
		}
	}
	// #nosec G304 -- log paths come from operator configuration.
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
	if err != nil {
		return fmt.Errorf("open log %s: %w", path, err)
	}
	if _, err := f.Write(line); err != nil {
		_ = f.Close()
		return fmt.Errorf("append to %s: %w", path, err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("close log %s: %w", path, err)
	}
	return nil
}
