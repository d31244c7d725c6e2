// Package navigation implements in-app navigation for the preview client:
// activating a sidebar link, or moving through history, fetches the rendered
// body of the target document and swaps it into the page instead of loading
// a whole new page.
//
// Every load takes a number from a monotonic sequence before it starts. When
// its response arrives, it is applied only if no newer load has started in
// the meantime; otherwise it is dropped with ErrSuperseded. A slow response
// can therefore never overwrite the document the user navigated to later.
package navigation

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/conneroisu/livepreview/internal/docpath"
	perrors "github.com/conneroisu/livepreview/internal/errors"
	"github.com/conneroisu/livepreview/internal/history"
	"github.com/conneroisu/livepreview/internal/logging"
	"github.com/conneroisu/livepreview/internal/page"
	"github.com/conneroisu/livepreview/internal/version"
)

// Surface gives access to the page. Update runs fn on the goroutine that owns
// the page and returns fn's error.
type Surface interface {
	Update(ctx context.Context, fn func(p *page.Page) error) error
}

// State of the controller.
type State int

const (
	StateIdle State = iota
	StateFetching
)

// String returns the string representation of the state
func (s State) String() string {
	if s == StateFetching {
		return "fetching"
	}
	return "idle"
}

// Intent is a navigation request: a target path plus a callback run once the
// document is displayed.
type Intent struct {
	Path     string
	OnLoaded func()
}

// Options configures a Controller.
type Options struct {
	// ContentsPrefix is prepended to a document path to fetch its rendered
	// body, "/.contents" by default.
	ContentsPrefix string
	HTTPClient     *http.Client
}

// Controller is the navigation controller of one page.
type Controller struct {
	surface Surface
	history *history.History
	client  *http.Client
	prefix  string
	logger  logging.Logger

	seq      atomic.Uint64
	inflight atomic.Int32

	mu    sync.RWMutex
	links map[string]bool
}

// New creates a controller. A nil HTTP client means a client with a 30s
// timeout.
func New(surface Surface, hist *history.History, opts Options, logger logging.Logger) *Controller {
	client := opts.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	prefix := opts.ContentsPrefix
	if prefix == "" {
		prefix = "/.contents"
	}

	return &Controller{
		surface: surface,
		history: hist,
		client:  client,
		prefix:  prefix,
		logger:  logging.OrNop(logger).WithComponent("navigation"),
		links:   make(map[string]bool),
	}
}

// History returns the session history the controller records into.
func (c *Controller) History() *history.History {
	return c.history
}

// State reports whether a load is in flight.
func (c *Controller) State() State {
	if c.inflight.Load() > 0 {
		return StateFetching
	}
	return StateIdle
}

// InterceptLinks registers every sidebar link currently on p for in-app
// navigation, replacing earlier registrations. It must run on the page's
// goroutine (inside Surface.Update).
func (c *Controller) InterceptLinks(p *page.Page) int {
	base := pageURL(p)
	links := make(map[string]bool)
	for _, href := range p.SidebarLinks() {
		target, err := base.Parse(href)
		if err != nil || !sameOrigin(base, target) {
			continue
		}
		links[target.EscapedPath()] = true
	}

	c.mu.Lock()
	c.links = links
	c.mu.Unlock()

	return len(links)
}

// Intercepts reports whether a link to path is handled in-app.
func (c *Controller) Intercepts(path string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.links[path]
}

// Activate follows a link. Intercepted links load in-app and push a history
// entry once displayed; links that were not registered (for instance ones
// added to the sidebar after load) and control paths get a full page load,
// which a browser would do for them too. Cross-origin targets are refused
// with ErrCrossOrigin.
func (c *Controller) Activate(ctx context.Context, href string) error {
	var target *url.URL
	err := c.surface.Update(ctx, func(p *page.Page) error {
		base := pageURL(p)
		u, err := base.Parse(href)
		if err != nil {
			return perrors.NewNavigationError(perrors.ErrCodeInvalidURL, "invalid link "+href)
		}
		if !sameOrigin(base, u) {
			return perrors.NewNavigationError(perrors.ErrCodeCrossOrigin, "link leaves the preview: "+u.String())
		}
		target = u
		return nil
	})
	if err != nil {
		return err
	}

	path := target.EscapedPath()
	if path == "" {
		path = "/"
	}
	push := func() { c.history.Push(path) }

	if docpath.IsControl(path) || !c.Intercepts(path) {
		if err := c.Reload(ctx, path); err != nil {
			return err
		}
		push()
		return nil
	}

	return c.Navigate(ctx, Intent{Path: path, OnLoaded: push})
}

// Navigate consumes an intent: the document is loaded and, on success, the
// intent's callback runs.
func (c *Controller) Navigate(ctx context.Context, intent Intent) error {
	if err := c.LoadDocument(ctx, intent.Path); err != nil {
		return err
	}
	if intent.OnLoaded != nil {
		intent.OnLoaded()
	}
	return nil
}

// OnPopState handles a history move to path. Control paths are reloaded in
// full; document paths are loaded in-app without touching history, which
// already moved. A page without regions (a raw view, say) cannot take an
// in-app load, so leaving it is a full reload as well.
func (c *Controller) OnPopState(ctx context.Context, path string) error {
	if docpath.IsControl(path) {
		return c.Reload(ctx, path)
	}

	var bound bool
	if err := c.surface.Update(ctx, func(p *page.Page) error {
		bound = p.Bound()
		return nil
	}); err != nil {
		return err
	}
	if !bound {
		return c.Reload(ctx, path)
	}

	return c.LoadDocument(ctx, path)
}

// Back moves history one entry back and displays it.
func (c *Controller) Back(ctx context.Context) error {
	return c.traverse(ctx, -1, "no previous entry")
}

// Forward moves history one entry forward and displays it.
func (c *Controller) Forward(ctx context.Context) error {
	return c.traverse(ctx, 1, "no next entry")
}

// traverse moves the cursor by delta and displays the entry. When the entry
// cannot be displayed the cursor is moved back so that it keeps naming the
// shown document. A superseded load leaves the cursor to the newer
// navigation.
func (c *Controller) traverse(ctx context.Context, delta int, empty string) error {
	path, ok := c.history.Go(delta)
	if !ok {
		return perrors.NewNavigationError(perrors.ErrCodeNoHistory, empty)
	}

	err := c.OnPopState(ctx, path)
	if err != nil && !errors.Is(err, perrors.ErrSuperseded) {
		c.history.Go(-delta)
	}

	return err
}

// LoadDocument fetches the rendered body of path and swaps it into the
// contents region. The title and location become path. On any failure the
// page is left as it was; a page without regions fails with
// ErrCodeMissingRegion before anything is fetched.
func (c *Controller) LoadDocument(ctx context.Context, path string) error {
	seq := c.seq.Add(1)
	c.inflight.Add(1)
	defer c.inflight.Add(-1)

	perf := logging.StartOperation(c.logger, "load_document")

	var origin *url.URL
	if err := c.surface.Update(ctx, func(p *page.Page) error {
		if !p.Bound() {
			err := perrors.NewInternalError(perrors.ErrCodeMissingRegion, "page has no contents region", nil).WithPath(path)
			err.Recoverable = true
			return err
		}
		origin = p.Origin()
		return nil
	}); err != nil {
		perf.EndWithError(ctx, err)
		return err
	}

	body, err := c.get(ctx, origin, docpath.Join(c.prefix, path), path)
	if err != nil {
		perf.EndWithError(ctx, err)
		return err
	}

	err = c.surface.Update(ctx, func(p *page.Page) error {
		if c.seq.Load() != seq {
			return perrors.NewNavigationError(perrors.ErrCodeSuperseded, "a newer navigation started").WithPath(path)
		}
		if err := p.ReplaceContents(body); err != nil {
			return err
		}
		p.SetTitle(path)
		p.SetLocation(path)
		return nil
	})
	if err != nil {
		return err
	}

	perf.End(ctx)
	c.logger.Debug(ctx, "Document loaded", "path", path)

	return nil
}

// Reload replaces the whole page with whatever is served at path, the
// equivalent of a full browser navigation. Sidebar links are registered
// again; a response that is not a host page leaves none registered.
func (c *Controller) Reload(ctx context.Context, path string) error {
	seq := c.seq.Add(1)
	c.inflight.Add(1)
	defer c.inflight.Add(-1)

	var origin *url.URL
	if err := c.surface.Update(ctx, func(p *page.Page) error {
		origin = p.Origin()
		return nil
	}); err != nil {
		return err
	}

	body, contentType, err := c.getPage(ctx, origin, path)
	if err != nil {
		return err
	}
	next, err := page.Load(body, contentType, origin, path)
	if err != nil {
		return err
	}

	return c.surface.Update(ctx, func(p *page.Page) error {
		if c.seq.Load() != seq {
			return perrors.NewNavigationError(perrors.ErrCodeSuperseded, "a newer navigation started").WithPath(path)
		}
		p.ReplaceDocument(next)
		c.InterceptLinks(p)
		c.logger.Debug(ctx, "Page reloaded", "path", path)
		return nil
	})
}

// get fetches a contents fragment; any non-2xx status is an error.
func (c *Controller) get(ctx context.Context, origin *url.URL, endpoint, path string) (string, error) {
	resp, err := c.do(ctx, origin, endpoint, path)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_, _ = io.Copy(io.Discard, resp.Body)
		return "", perrors.ErrStatus(path, resp.StatusCode)
	}

	body, err := readBody(resp, path)
	return string(body), err
}

// getPage fetches a full page and its media type. Like a browser, it displays
// whatever the server answers with, error pages included.
func (c *Controller) getPage(ctx context.Context, origin *url.URL, path string) ([]byte, string, error) {
	resp, err := c.do(ctx, origin, path, path)
	if err != nil {
		return nil, "", err
	}
	defer resp.Body.Close()

	body, err := readBody(resp, path)
	return body, resp.Header.Get("Content-Type"), err
}

// requestURL addresses endpoint on origin. endpoint is sent as given, so an
// escaped separator such as %2F stays inside its segment.
func requestURL(origin *url.URL, endpoint string) string {
	u := url.URL{Scheme: origin.Scheme, Host: origin.Host, Path: endpoint}
	if decoded, err := url.PathUnescape(endpoint); err == nil {
		u.Path = decoded
		u.RawPath = endpoint
	}
	return u.String()
}

func (c *Controller) do(ctx context.Context, origin *url.URL, endpoint, path string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, requestURL(origin, endpoint), nil)
	if err != nil {
		return nil, perrors.NewNavigationError(perrors.ErrCodeInvalidURL, "cannot build request: "+err.Error()).WithPath(path)
	}
	req.Header.Set("Accept", "text/html, */*;q=0.8")
	req.Header.Set("User-Agent", version.UserAgent())

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, perrors.NewNetworkError(perrors.ErrCodeFetchFailed, "fetch failed", err).WithPath(path)
	}

	return resp, nil
}

func readBody(resp *http.Response, path string) ([]byte, error) {
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, perrors.NewNetworkError(perrors.ErrCodeFetchFailed, "reading response failed", err).WithPath(path)
	}
	return body, nil
}

func pageURL(p *page.Page) *url.URL {
	base := p.Origin()
	loc, err := url.Parse(p.Location())
	if err != nil {
		base.Path = "/"
		return base
	}
	return base.ResolveReference(loc)
}

func sameOrigin(a, b *url.URL) bool {
	return strings.EqualFold(a.Scheme, b.Scheme) && strings.EqualFold(a.Host, b.Host)
}
