package crawler

// Frontier is the ordered queue of pending crawl targets. Discovery appends to
// the tail; pagination continuations are inserted at the head. A URL is never
// pending twice.
type Frontier struct {
	entries []FrontierEntry
	pending map[string]struct{}
}

// NewFrontier builds a frontier from a persisted entry list, keeping the first
// occurrence of any repeated URL.
func NewFrontier(entries []FrontierEntry) *Frontier {
	f := &Frontier{
		entries: make([]FrontierEntry, 0, len(entries)),
		pending: make(map[string]struct{}, len(entries)),
	}
	for _, e := range entries {
		f.PushBack(e)
	}
	return f
}

// PushBack appends e unless its URL is already pending.
func (f *Frontier) PushBack(e FrontierEntry) bool {
	if e.URL == "" || f.Contains(e.URL) {
		return false
	}
	f.pending[e.URL] = struct{}{}
	f.entries = append(f.entries, e)
	return true
}

// PushFront inserts e at the head unless its URL is already pending.
func (f *Frontier) PushFront(e FrontierEntry) bool {
	if e.URL == "" || f.Contains(e.URL) {
		return false
	}
	f.pending[e.URL] = struct{}{}
	f.entries = append(f.entries, FrontierEntry{})
	copy(f.entries[1:], f.entries)
	f.entries[0] = e
	return true
}

// Pop removes and returns the head entry.
func (f *Frontier) Pop() (FrontierEntry, bool) {
	if len(f.entries) == 0 {
		return FrontierEntry{}, false
	}
	head := f.entries[0]
	f.entries[0] = FrontierEntry{}
	f.entries = f.entries[1:]
	delete(f.pending, head.URL)
	return head, true
}

// Len reports the number of pending entries.
func (f *Frontier) Len() int {
	return len(f.entries)
}

// Contains reports whether url is pending.
func (f *Frontier) Contains(url string) bool {
	_, ok := f.pending[url]
	return ok
}

// Entries returns a copy of the pending entries in order.
func (f *Frontier) Entries() []FrontierEntry {
	out := make([]FrontierEntry, len(f.entries))
	copy(out, f.entries)
	return out
}
