// Package history is the session history of the preview client: a list of
// visited document paths with a cursor, mirroring the browser's
// pushState/back/forward model.
package history

import "sync"

// History is safe for concurrent use.
type History struct {
	mu      sync.Mutex
	entries []string
	cursor  int
}

// New starts a history whose only entry is the initially loaded path.
func New(initial string) *History {
	return &History{entries: []string{initial}}
}

// Push records a client-driven navigation. Entries after the cursor are
// discarded, as a browser does when navigating after going back.
func (h *History) Push(path string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.entries = append(h.entries[:h.cursor+1], path)
	h.cursor++
}

// Back moves the cursor one entry back and returns the path the caller must
// deliver as a popstate target. ok is false at the oldest entry.
func (h *History) Back() (path string, ok bool) {
	return h.Go(-1)
}

// Forward is the inverse of Back.
func (h *History) Forward() (path string, ok bool) {
	return h.Go(1)
}

// Go moves the cursor by delta entries. The cursor does not move when the
// target is out of range.
func (h *History) Go(delta int) (path string, ok bool) {
	h.mu.Lock()
	defer h.mu.Unlock()

	target := h.cursor + delta
	if delta == 0 || target < 0 || target >= len(h.entries) {
		return "", false
	}
	h.cursor = target

	return h.entries[target], true
}

// Current returns the path at the cursor.
func (h *History) Current() string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.entries[h.cursor]
}

// Len returns the number of entries.
func (h *History) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.entries)
}

// Entries returns a copy of the entries and the cursor position.
func (h *History) Entries() ([]string, int) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]string(nil), h.entries...), h.cursor
}
