package workflow

import (
	"sync"
	"time"
)

const defaultHistoryCap = 50

// HistoryEntry records one successful generation for later reuse, e.g.
// dragging a past result back onto the canvas as a new source node.
type HistoryEntry struct {
	Image     string    `json:"image"`
	Prompt    string    `json:"prompt"`
	Model     string    `json:"model"`
	Timestamp time.Time `json:"timestamp"`
}

// History is a bounded, most-recent-first ring of generation results.
type History struct {
	mu      sync.Mutex
	cap     int
	entries []HistoryEntry
}

// NewHistory creates a history holding at most capacity entries; a
// non-positive capacity falls back to the default of 50.
func NewHistory(capacity int) *History {
	if capacity <= 0 {
		capacity = defaultHistoryCap
	}
	return &History{cap: capacity}
}

// Append records an entry at the front, evicting the oldest past capacity.
func (h *History) Append(e HistoryEntry) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.entries = append([]HistoryEntry{e}, h.entries...)
	if len(h.entries) > h.cap {
		h.entries = h.entries[:h.cap]
	}
}

// Entries returns a copy of the history, most recent first.
func (h *History) Entries() []HistoryEntry {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]HistoryEntry, len(h.entries))
	copy(out, h.entries)
	return out
}
