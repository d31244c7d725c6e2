package history

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPushBackForward(t *testing.T) {
	h := New("/a")
	h.Push("/b")
	h.Push("/c")
	assert.Equal(t, "/c", h.Current())
	assert.Equal(t, 3, h.Len())

	path, ok := h.Back()
	assert.True(t, ok)
	assert.Equal(t, "/b", path)

	path, ok = h.Back()
	assert.True(t, ok)
	assert.Equal(t, "/a", path)

	_, ok = h.Back()
	assert.False(t, ok)
	assert.Equal(t, "/a", h.Current())

	path, ok = h.Forward()
	assert.True(t, ok)
	assert.Equal(t, "/b", path)
}

func TestPushTruncatesForwardEntries(t *testing.T) {
	h := New("/a")
	h.Push("/b")
	h.Push("/c")
	h.Back()
	h.Back()

	h.Push("/d")
	entries, cursor := h.Entries()
	assert.Equal(t, []string{"/a", "/d"}, entries)
	assert.Equal(t, 1, cursor)

	_, ok := h.Forward()
	assert.False(t, ok)
}

func TestGoOutOfRange(t *testing.T) {
	h := New("/a")
	h.Push("/b")

	_, ok := h.Go(5)
	assert.False(t, ok)
	_, ok = h.Go(0)
	assert.False(t, ok)

	path, ok := h.Go(-1)
	assert.True(t, ok)
	assert.Equal(t, "/a", path)
}
