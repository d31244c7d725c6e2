package navigation

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	perrors "github.com/conneroisu/livepreview/internal/errors"
	"github.com/conneroisu/livepreview/internal/history"
	"github.com/conneroisu/livepreview/internal/page"
	"github.com/conneroisu/livepreview/internal/testutils"
)

// lockedSurface serializes page access with a mutex instead of an event loop.
type lockedSurface struct {
	mu sync.Mutex
	p  *page.Page
}

func (s *lockedSurface) Update(ctx context.Context, fn func(p *page.Page) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return fn(s.p)
}

func (s *lockedSurface) read(fn func(p *page.Page)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fn(s.p)
}

func loadPage(t *testing.T, srv *testutils.Server, path string) *page.Page {
	t.Helper()
	resp, err := http.Get(srv.PageURL(path))
	require.NoError(t, err)
	defer resp.Body.Close()

	origin, err := url.Parse(srv.URL)
	require.NoError(t, err)
	p, err := page.Parse(resp.Body, origin, (&url.URL{Path: path}).EscapedPath())
	require.NoError(t, err)
	return p
}

type fixture struct {
	srv     *testutils.Server
	surface *lockedSurface
	ctrl    *Controller
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	srv := testutils.NewServer(t)
	srv.SetDocument("/a", "<p>A</p>", 1)
	srv.SetDocument("/docs/intro", "<h1>Intro</h1>", 1)
	srv.SetDocument("/notes/café.md", "<p>café</p>", 1)

	surface := &lockedSurface{p: loadPage(t, srv, "/a")}
	ctrl := New(surface, history.New("/a"), Options{}, nil)
	require.NoError(t, surface.Update(context.Background(), func(p *page.Page) error {
		assert.Equal(t, 3, ctrl.InterceptLinks(p))
		return nil
	}))

	return &fixture{srv: srv, surface: surface, ctrl: ctrl}
}

func (f *fixture) built() string {
	var out string
	f.surface.read(func(p *page.Page) { out = p.BuiltContentHTML() })
	return out
}

func TestActivateLoadsDocumentAndPushesHistory(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	require.NoError(t, f.ctrl.Activate(ctx, "/docs/intro"))

	f.surface.read(func(p *page.Page) {
		assert.Equal(t, "<h1>Intro</h1>", p.BuiltContentHTML())
		assert.Equal(t, "/docs/intro", p.Title())
		assert.Equal(t, "/docs/intro", p.Location())
	})
	entries, cursor := f.ctrl.History().Entries()
	assert.Equal(t, []string{"/a", "/docs/intro"}, entries)
	assert.Equal(t, 1, cursor)
	assert.Contains(t, f.srv.Requests(), "/.contents/docs/intro")
}

func TestNavigationRoundTrip(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	var before string
	f.surface.read(func(p *page.Page) { before = p.ContentsHTML() })

	require.NoError(t, f.ctrl.Activate(ctx, "/docs/intro"))
	require.NoError(t, f.ctrl.Back(ctx))

	f.surface.read(func(p *page.Page) {
		assert.Equal(t, before, p.ContentsHTML())
		assert.Equal(t, "/a", p.Location())
	})

	require.NoError(t, f.ctrl.Forward(ctx))
	assert.Equal(t, "<h1>Intro</h1>", f.built())

	err := f.ctrl.Forward(ctx)
	require.Error(t, err)
	assert.True(t, perrors.IsType(err, perrors.ErrorTypeNavigation))
}

func TestPopStateDoesNotPushHistory(t *testing.T) {
	f := newFixture(t)

	require.NoError(t, f.ctrl.OnPopState(context.Background(), "/docs/intro"))
	assert.Equal(t, "<h1>Intro</h1>", f.built())
	assert.Equal(t, 1, f.ctrl.History().Len())
}

func TestPopStateControlPathReloads(t *testing.T) {
	f := newFixture(t)

	require.NoError(t, f.ctrl.OnPopState(context.Background(), "/.raw/a"))

	assert.Contains(t, f.srv.Requests(), "/.raw/a")
	assert.NotContains(t, f.srv.Requests(), "/.contents/.raw/a")
	f.surface.read(func(p *page.Page) {
		assert.Equal(t, "/.raw/a", p.Location())
		assert.Contains(t, p.ContentsHTML(), "404 - Not found")
	})
}

func TestLoadFailureLeavesPage(t *testing.T) {
	f := newFixture(t)
	before := f.built()

	err := f.ctrl.LoadDocument(context.Background(), "/missing")
	require.Error(t, err)
	assert.True(t, errors.Is(err, perrors.ErrBadStatus))

	f.surface.read(func(p *page.Page) {
		assert.Equal(t, before, p.BuiltContentHTML())
		assert.Equal(t, "/a", p.Location())
		assert.Equal(t, "/a", p.Title())
	})
	assert.Equal(t, StateIdle, f.ctrl.State())
}

func TestActivateFailureDoesNotPushHistory(t *testing.T) {
	f := newFixture(t)
	f.srv.Close()

	err := f.ctrl.Activate(context.Background(), "/docs/intro")
	require.Error(t, err)
	assert.True(t, perrors.IsType(err, perrors.ErrorTypeNetwork))
	assert.Equal(t, 1, f.ctrl.History().Len())
	assert.Equal(t, "<p>A</p>", f.built())
}

func TestStaleResponseIsDiscarded(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	release := f.srv.Hold("/docs/intro")
	defer release()

	slow := make(chan error, 1)
	go func() { slow <- f.ctrl.LoadDocument(ctx, "/docs/intro") }()

	require.Eventually(t, func() bool {
		for _, r := range f.srv.Requests() {
			if r == "/.contents/docs/intro" {
				return true
			}
		}
		return false
	}, 5*time.Second, 5*time.Millisecond)
	assert.Equal(t, StateFetching, f.ctrl.State())

	require.NoError(t, f.ctrl.LoadDocument(ctx, "/a"))
	release()

	err := <-slow
	require.Error(t, err)
	assert.True(t, errors.Is(err, perrors.ErrSuperseded))

	assert.Equal(t, "<p>A</p>", f.built())
	assert.Equal(t, StateIdle, f.ctrl.State())
}

func TestActivateCrossOrigin(t *testing.T) {
	f := newFixture(t)

	err := f.ctrl.Activate(context.Background(), "https://example.com/docs")
	require.Error(t, err)
	assert.True(t, errors.Is(err, perrors.ErrCrossOrigin))
	assert.Equal(t, 1, f.ctrl.History().Len())
}

func TestActivateUnregisteredLinkReloads(t *testing.T) {
	f := newFixture(t)
	f.srv.SetDocument("/new", "<p>new</p>", 1)

	require.NoError(t, f.ctrl.Activate(context.Background(), "/new"))

	assert.Contains(t, f.srv.Requests(), "/new")
	assert.NotContains(t, f.srv.Requests(), "/.contents/new")
	assert.Equal(t, "<p>new</p>", f.built())
	assert.Equal(t, "/new", f.ctrl.History().Current())
	// The reloaded sidebar lists /new, so it is intercepted from now on.
	assert.True(t, f.ctrl.Intercepts("/new"))
}

func TestActivateEncodedPath(t *testing.T) {
	f := newFixture(t)
	href := (&url.URL{Path: "/notes/café.md"}).EscapedPath()
	require.True(t, f.ctrl.Intercepts(href))

	require.NoError(t, f.ctrl.Activate(context.Background(), href))

	assert.Contains(t, f.srv.Requests(), "/.contents/notes/café.md")
	f.surface.read(func(p *page.Page) {
		assert.Equal(t, "<p>café</p>", p.BuiltContentHTML())
		assert.Equal(t, href, p.Location())
	})
}

func TestNavigateRunsCallbackOnce(t *testing.T) {
	f := newFixture(t)
	calls := 0

	require.NoError(t, f.ctrl.Navigate(context.Background(), Intent{Path: "/docs/intro", OnLoaded: func() { calls++ }}))
	assert.Equal(t, 1, calls)

	err := f.ctrl.Navigate(context.Background(), Intent{Path: "/missing", OnLoaded: func() { calls++ }})
	require.Error(t, err)
	assert.Equal(t, 1, calls)
}

// rawServer serves host pages, contents fragments that echo the escaped
// request path, and text/plain under /.raw.
type rawServer struct {
	*httptest.Server

	mu       sync.Mutex
	requests []string
}

func newRawServer(t *testing.T) *rawServer {
	t.Helper()
	s := &rawServer{}
	s.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.mu.Lock()
		s.requests = append(s.requests, r.URL.EscapedPath())
		s.mu.Unlock()

		switch {
		case strings.HasPrefix(r.URL.Path, "/.raw/"):
			w.Header().Set("Content-Type", "text/plain; charset=utf-8")
			fmt.Fprint(w, "# raw markdown")
		case strings.HasPrefix(r.URL.Path, "/.contents/"):
			w.Header().Set("Content-Type", "text/html; charset=utf-8")
			fmt.Fprint(w, testutils.ContentsFragment("<p>"+strings.TrimPrefix(r.URL.EscapedPath(), "/.contents")+"</p>", 1))
		default:
			w.Header().Set("Content-Type", "text/html; charset=utf-8")
			fmt.Fprint(w, testutils.HostPage(r.URL.Path, testutils.SidebarFragment("/a", "/b"),
				testutils.ContentsFragment("<p>"+r.URL.EscapedPath()+"</p>", 1)))
		}
	}))
	t.Cleanup(s.Close)

	return s
}

func (s *rawServer) seen() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.requests...)
}

func newRawFixture(t *testing.T) (*rawServer, *lockedSurface, *Controller) {
	t.Helper()
	srv := newRawServer(t)
	origin, err := url.Parse(srv.URL)
	require.NoError(t, err)

	src := testutils.HostPage("/a", testutils.SidebarFragment("/a", "/b"), testutils.ContentsFragment("<p>/a</p>", 1))
	p, err := page.Parse(strings.NewReader(src), origin, "/a")
	require.NoError(t, err)

	surface := &lockedSurface{p: p}
	ctrl := New(surface, history.New("/a"), Options{}, nil)
	require.NoError(t, surface.Update(context.Background(), func(p *page.Page) error {
		ctrl.InterceptLinks(p)
		return nil
	}))

	return srv, surface, ctrl
}

func TestPopStateControlPathShowsPlainText(t *testing.T) {
	_, surface, ctrl := newRawFixture(t)
	ctx := context.Background()

	require.NoError(t, ctrl.OnPopState(ctx, "/.raw/a"))

	surface.read(func(p *page.Page) {
		assert.False(t, p.Bound())
		assert.Equal(t, "/.raw/a", p.Location())
		assert.Equal(t, "/.raw/a", p.Title())
		assert.Contains(t, p.BuiltContentHTML(), "# raw markdown")
	})
	assert.False(t, ctrl.Intercepts("/b"))

	err := ctrl.LoadDocument(ctx, "/b")
	require.Error(t, err)
	assert.ErrorIs(t, err, perrors.ErrMissingRegion)
	surface.read(func(p *page.Page) {
		assert.Equal(t, "/.raw/a", p.Location())
	})
}

func TestActivateControlLinkThenBack(t *testing.T) {
	srv, surface, ctrl := newRawFixture(t)
	ctx := context.Background()

	require.NoError(t, ctrl.Activate(ctx, "/.raw/a"))
	entries, cursor := ctrl.History().Entries()
	assert.Equal(t, []string{"/a", "/.raw/a"}, entries)
	assert.Equal(t, 1, cursor)

	// The raw view has no regions, so going back reloads the host page.
	require.NoError(t, ctrl.Back(ctx))
	surface.read(func(p *page.Page) {
		assert.True(t, p.Bound())
		assert.Equal(t, "/a", p.Location())
		assert.Equal(t, "<p>/a</p>", p.BuiltContentHTML())
	})
	assert.Equal(t, "/a", ctrl.History().Current())
	assert.True(t, ctrl.Intercepts("/b"))
	assert.NotContains(t, srv.seen(), "/.contents/a")
}

func TestFailedTraversalRestoresCursor(t *testing.T) {
	srv, surface, ctrl := newRawFixture(t)
	ctx := context.Background()

	require.NoError(t, ctrl.Activate(ctx, "/b"))
	require.Equal(t, "/b", ctrl.History().Current())
	srv.Close()

	err := ctrl.Back(ctx)
	require.Error(t, err)
	assert.True(t, perrors.IsType(err, perrors.ErrorTypeNetwork))

	var location string
	surface.read(func(p *page.Page) { location = p.Location() })
	assert.Equal(t, "/b", location)
	assert.Equal(t, location, ctrl.History().Current())

	_, cursor := ctrl.History().Entries()
	assert.Equal(t, 1, cursor)
}

func TestRequestsKeepEscapedSeparators(t *testing.T) {
	srv, surface, ctrl := newRawFixture(t)
	ctx := context.Background()

	require.NoError(t, ctrl.LoadDocument(ctx, "/dir%2Fname.md"))
	assert.Contains(t, srv.seen(), "/.contents/dir%2Fname.md")
	surface.read(func(p *page.Page) {
		assert.Equal(t, "<p>/dir%2Fname.md</p>", p.BuiltContentHTML())
	})

	require.NoError(t, ctrl.Reload(ctx, "/dir%2Fname.md"))
	assert.Contains(t, srv.seen(), "/dir%2Fname.md")
}
