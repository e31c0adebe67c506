package checkpoint

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/JakeFAU/festival-crawler/internal/crawler"
)

// FileStore keeps the checkpoint in a single JSON file.
type FileStore struct {
	path string
}

// NewFileStore returns a store writing to path.
func NewFileStore(path string) (*FileStore, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("checkpoint path is required")
	}
	return &FileStore{path: path}, nil
}

// Path returns the checkpoint file location.
func (s *FileStore) Path() string {
	return s.path
}

// Load reads the checkpoint, returning an empty state when none exists.
func (s *FileStore) Load(ctx context.Context) (crawler.CrawlState, error) {
	if err := ctx.Err(); err != nil {
		return crawler.CrawlState{}, fmt.Errorf("context canceled: %w", err)
	}
	// #nosec G304 -- the checkpoint path is operator supplied configuration.
	data, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return crawler.NewCrawlState(), nil
	}
	if err != nil {
		return crawler.CrawlState{}, fmt.Errorf("read checkpoint %s: %w", s.path, err)
	}
	state, err := crawler.DecodeState(data)
	if err != nil {
		return crawler.CrawlState{}, fmt.Errorf("decode checkpoint %s: %w", s.path, err)
	}
	return state, nil
}

// Save replaces the checkpoint atomically via write-to-temp then rename.
func (s *FileStore) Save(ctx context.Context, state crawler.CrawlState) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("context canceled: %w", err)
	}
	data, err := crawler.EncodeState(state)
	if err != nil {
		return err
	}
	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return fmt.Errorf("creating checkpoint dir %s: %w", dir, err)
	}
	tmp, err := os.CreateTemp(dir, filepath.Base(s.path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("create temp checkpoint: %w", err)
	}
	tmpName := tmp.Name()
	committed := false
	defer func() {
		if !committed {
			_ = os.Remove(tmpName)
		}
	}()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("write temp checkpoint: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("sync temp checkpoint: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp checkpoint: %w", err)
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		return fmt.Errorf("replace checkpoint %s: %w", s.path, err)
	}
	committed = true
	return nil
}
