package crawler

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
)

// CrawlState is the checkpointed crawl progress. It is passed into and
// returned from each batch; nothing else holds crawl state.
type CrawlState struct {
	Visited       map[string]struct{}
	Frontier      []FrontierEntry
	FestivalCount int
	ErrorCount    int
}

// NewCrawlState returns the empty state used for a fresh crawl.
func NewCrawlState() CrawlState {
	return CrawlState{
		Visited:  make(map[string]struct{}),
		Frontier: []FrontierEntry{},
	}
}

// Clone returns a deep copy so the receiver is unaffected by later mutation.
func (s CrawlState) Clone() CrawlState {
	out := CrawlState{
		Visited:       make(map[string]struct{}, len(s.Visited)),
		Frontier:      make([]FrontierEntry, len(s.Frontier)),
		FestivalCount: s.FestivalCount,
		ErrorCount:    s.ErrorCount,
	}
	for u := range s.Visited {
		out.Visited[u] = struct{}{}
	}
	copy(out.Frontier, s.Frontier)
	return out
}

// IsVisited reports whether url has already been selected for fetching.
func (s CrawlState) IsVisited(url string) bool {
	_, ok := s.Visited[url]
	return ok
}

// MarkVisited records url as visited. Visited only grows.
func (s CrawlState) MarkVisited(url string) {
	s.Visited[url] = struct{}{}
}

// VisitedList returns the visited set sorted for stable output.
func (s CrawlState) VisitedList() []string {
	out := make([]string, 0, len(s.Visited))
	for u := range s.Visited {
		out = append(out, u)
	}
	sort.Strings(out)
	return out
}

type stateDocument struct {
	Visited       []string        `json:"visited"`
	Frontier      []FrontierEntry `json:"frontier"`
	FestivalCount int             `json:"festival_count"`
	ErrorCount    int             `json:"error_count"`
}

// EncodeState renders the checkpoint document.
func EncodeState(s CrawlState) ([]byte, error) {
	frontier := s.Frontier
	if frontier == nil {
		frontier = []FrontierEntry{}
	}
	doc := stateDocument{
		Visited:       s.VisitedList(),
		Frontier:      frontier,
		FestivalCount: s.FestivalCount,
		ErrorCount:    s.ErrorCount,
	}
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshal crawl state: %w", err)
	}
	return data, nil
}

// DecodeState parses a checkpoint document. Any shape or value problem is
// reported as ErrCorruptState.
func DecodeState(data []byte) (CrawlState, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	var parsed *stateDocument
	if err := dec.Decode(&parsed); err != nil {
		return CrawlState{}, fmt.Errorf("%w: %v", ErrCorruptState, err)
	}
	if parsed == nil {
		return CrawlState{}, fmt.Errorf("%w: null document", ErrCorruptState)
	}
	doc := *parsed
	if dec.More() {
		return CrawlState{}, fmt.Errorf("%w: trailing data after document", ErrCorruptState)
	}
	if doc.FestivalCount < 0 || doc.ErrorCount < 0 {
		return CrawlState{}, fmt.Errorf("%w: negative counter", ErrCorruptState)
	}
	state := NewCrawlState()
	state.FestivalCount = doc.FestivalCount
	state.ErrorCount = doc.ErrorCount
	for _, u := range doc.Visited {
		if u == "" {
			return CrawlState{}, fmt.Errorf("%w: empty visited url", ErrCorruptState)
		}
		state.Visited[u] = struct{}{}
	}
	for i, e := range doc.Frontier {
		if e.URL == "" {
			return CrawlState{}, fmt.Errorf("%w: frontier entry %d has empty url", ErrCorruptState, i)
		}
		if e.Depth < 0 {
			return CrawlState{}, fmt.Errorf("%w: frontier entry %d has negative depth", ErrCorruptState, i)
		}
	}
	state.Frontier = NewFrontier(doc.Frontier).Entries()
	return state, nil
}
