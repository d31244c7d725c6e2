// Package testutils provides a scripted preview server for tests: it serves
// host pages and contents fragments over HTTP and pushes frames over the
// websocket endpoint, the two interfaces the client consumes.
package testutils

import (
	"context"
	"fmt"
	"html"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/stretchr/testify/require"

	"github.com/conneroisu/livepreview/internal/protocol"
)

// ContentsFragment renders what the contents endpoint returns for a document:
// the word-count and built-content regions wrapped in <main>.
func ContentsFragment(body string, words int) string {
	return fmt.Sprintf(`<main><span id="word-count">%d</span><div id="built-content">%s</div></main>`, words, body)
}

// SidebarFragment renders the document listing the way the server does.
func SidebarFragment(paths ...string) string {
	sorted := append([]string(nil), paths...)
	sort.Strings(sorted)

	var b strings.Builder
	for _, p := range sorted {
		escaped := (&url.URL{Path: p}).EscapedPath()
		fmt.Fprintf(&b, `<div class="file"><a href="%s">%s</a></div>`, escaped, html.EscapeString(p))
	}

	return b.String()
}

// HostPage renders a complete page as served for a document path.
func HostPage(title, sidebar, contents string) string {
	return fmt.Sprintf(`<!DOCTYPE html><html><head><meta charset="utf-8"><title>%s</title></head>`+
		`<body><nav id="sidebar">%s</nav><div id="contents">%s</div></body></html>`,
		html.EscapeString(title), sidebar, contents)
}

// Document is one page known to the Server.
type Document struct {
	Body  string
	Words int
}

// Server is a scripted preview server.
type Server struct {
	*httptest.Server

	mu       sync.Mutex
	docs     map[string]Document
	conns    map[*websocket.Conn]struct{}
	held     map[string]chan struct{}
	requests []string
	dials    int
}

// NewServer starts a Server that is closed with the test.
func NewServer(t *testing.T) *Server {
	t.Helper()

	s := &Server{
		docs:  make(map[string]Document),
		conns: make(map[*websocket.Conn]struct{}),
		held:  make(map[string]chan struct{}),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/.ws", s.handleWS)
	mux.HandleFunc("/.contents/", s.handleContents)
	mux.HandleFunc("/", s.handlePage)
	s.Server = httptest.NewServer(mux)

	t.Cleanup(func() {
		s.DropConnections()
		s.Server.Close()
	})

	return s
}

// PageURL returns the absolute URL of a document page.
func (s *Server) PageURL(path string) string {
	return s.Server.URL + (&url.URL{Path: path}).EscapedPath()
}

// SetDocument registers or replaces a document under its decoded path.
func (s *Server) SetDocument(path, body string, words int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.docs[path] = Document{Body: body, Words: words}
}

// Sidebar renders the current listing.
func (s *Server) Sidebar() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	paths := make([]string, 0, len(s.docs))
	for p := range s.docs {
		paths = append(paths, p)
	}

	return SidebarFragment(paths...)
}

// Hold makes contents requests for path block until the returned release
// function is called.
func (s *Server) Hold(path string) (release func()) {
	ch := make(chan struct{})
	s.mu.Lock()
	s.held[path] = ch
	s.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			delete(s.held, path)
			s.mu.Unlock()
			close(ch)
		})
	}
}

// Requests returns the request paths seen so far, in order.
func (s *Server) Requests() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.requests...)
}

// Dials returns how many websocket connections were accepted.
func (s *Server) Dials() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.dials
}

// Clients returns the number of open websocket connections.
func (s *Server) Clients() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.conns)
}

// WaitForClients blocks until n websocket connections are open.
func (s *Server) WaitForClients(t *testing.T, n int) {
	t.Helper()
	require.Eventually(t, func() bool { return s.Clients() >= n }, 5*time.Second, 10*time.Millisecond)
}

// Push sends msg to every connected client.
func (s *Server) Push(t *testing.T, msg protocol.Message) {
	t.Helper()
	raw, err := protocol.Encode(msg)
	require.NoError(t, err)
	s.PushRaw(t, raw)
}

// PushRaw sends raw bytes as a text frame to every connected client.
func (s *Server) PushRaw(t *testing.T, raw []byte) {
	t.Helper()
	s.mu.Lock()
	conns := make([]*websocket.Conn, 0, len(s.conns))
	for c := range s.conns {
		conns = append(conns, c)
	}
	s.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	for _, c := range conns {
		require.NoError(t, c.Write(ctx, websocket.MessageText, raw))
	}
}

// DropConnections closes every websocket connection from the server side.
func (s *Server) DropConnections() {
	s.mu.Lock()
	conns := s.conns
	s.conns = make(map[*websocket.Conn]struct{})
	s.mu.Unlock()

	for c := range conns {
		_ = c.CloseNow()
	}
}

func (s *Server) record(r *http.Request) {
	s.mu.Lock()
	s.requests = append(s.requests, r.URL.Path)
	s.mu.Unlock()
}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	s.record(r)
	conn, err := websocket.Accept(w, r, nil)
	if err != nil {
		return
	}

	s.mu.Lock()
	s.conns[conn] = struct{}{}
	s.dials++
	s.mu.Unlock()

	// The client never sends data frames; reading keeps pings answered and
	// notices the disconnect.
	for {
		if _, _, err := conn.Read(r.Context()); err != nil {
			break
		}
	}

	s.mu.Lock()
	delete(s.conns, conn)
	s.mu.Unlock()
}

func (s *Server) handleContents(w http.ResponseWriter, r *http.Request) {
	s.record(r)
	path := strings.TrimPrefix(r.URL.Path, "/.contents")

	s.mu.Lock()
	hold := s.held[path]
	s.mu.Unlock()
	if hold != nil {
		select {
		case <-hold:
		case <-r.Context().Done():
			return
		}
	}

	s.mu.Lock()
	doc, ok := s.docs[path]
	s.mu.Unlock()

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if !ok {
		w.WriteHeader(http.StatusNotFound)
		fmt.Fprint(w, "<main>404 - Not found</main>")
		return
	}
	fmt.Fprint(w, ContentsFragment(doc.Body, doc.Words))
}

func (s *Server) handlePage(w http.ResponseWriter, r *http.Request) {
	s.record(r)
	path := r.URL.Path

	s.mu.Lock()
	doc, ok := s.docs[path]
	s.mu.Unlock()

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if !ok {
		w.WriteHeader(http.StatusNotFound)
		fmt.Fprint(w, HostPage(path, s.Sidebar(), "<main>404 - Not found</main>"))
		return
	}
	fmt.Fprint(w, HostPage(path, s.Sidebar(), ContentsFragment(doc.Body, doc.Words)))
}
