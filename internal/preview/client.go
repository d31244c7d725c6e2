// Package preview runs the live-preview client: it loads the host page, keeps
// it current with frames pushed over the update channel and serves in-app
// navigation.
//
// One goroutine, the event loop, owns the page. Push frames, navigation
// results and resync reloads are all posted to it through Update, so a region
// replacement is never interleaved with another. HTTP fetches run on the
// caller's goroutine and only their results are posted.
package preview

import (
	"context"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/conneroisu/livepreview/internal/channel"
	"github.com/conneroisu/livepreview/internal/docpath"
	perrors "github.com/conneroisu/livepreview/internal/errors"
	"github.com/conneroisu/livepreview/internal/history"
	"github.com/conneroisu/livepreview/internal/logging"
	"github.com/conneroisu/livepreview/internal/navigation"
	"github.com/conneroisu/livepreview/internal/page"
	"github.com/conneroisu/livepreview/internal/protocol"
	"github.com/conneroisu/livepreview/internal/version"
)

// View is notified after every change to the page. Render runs on the event
// loop and must not call back into the client.
type View interface {
	Render(ctx context.Context, p *page.Page)
}

// Options configures a Client.
type Options struct {
	Channel    channel.Options
	Navigation navigation.Options
	HTTPClient *http.Client

	// RebindSidebar re-registers link interception after every sidebar
	// push. When false, links that only appear in a pushed sidebar get a
	// full page load.
	RebindSidebar bool

	Enhancer page.Enhancer
	View     View
}

// DefaultOptions returns the options used when nothing is configured.
func DefaultOptions() Options {
	return Options{
		Channel:    channel.DefaultOptions(nil),
		HTTPClient: &http.Client{Timeout: 30 * time.Second},
	}
}

// Snapshot is a read-only copy of what the page shows.
type Snapshot struct {
	Location    string
	Title       string
	Contents    string
	BuiltHTML   string
	WordCount   string
	HasWords    bool
	SidebarHTML string
	Version     uint64
}

type event struct {
	fn     func(p *page.Page) error
	result chan error
}

// Client is a running preview of one server.
type Client struct {
	page    *page.Page
	nav     *navigation.Controller
	channel *channel.Channel
	view    View
	opts    Options

	logger  logging.Logger
	handler *perrors.ErrorHandler

	ctx    context.Context
	cancel context.CancelFunc

	events chan event
	quit   chan struct{}
	done   chan struct{}

	rendered  uint64
	resyncs   sync.WaitGroup
	closeOnce sync.Once
}

// FetchPage loads and parses the host page at target. Any status is
// accepted, as a browser would display an error page too.
func FetchPage(ctx context.Context, client *http.Client, target *url.URL) (*page.Page, error) {
	if client == nil {
		client = http.DefaultClient
	}
	if target == nil || target.Host == "" {
		return nil, perrors.NewConfigError(perrors.ErrCodeInvalidURL, "preview URL has no host")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target.String(), nil)
	if err != nil {
		return nil, perrors.NewConfigError(perrors.ErrCodeInvalidURL, "invalid preview URL: "+err.Error())
	}
	req.Header.Set("Accept", "text/html")
	req.Header.Set("User-Agent", version.UserAgent())

	resp, err := client.Do(req)
	if err != nil {
		return nil, perrors.NewNetworkError(perrors.ErrCodeFetchFailed, "cannot load host page", err).WithPath(target.Path)
	}
	defer resp.Body.Close()

	origin := &url.URL{Scheme: target.Scheme, Host: target.Host}
	location := target.EscapedPath()
	if location == "" {
		location = "/"
	}

	return page.Parse(resp.Body, origin, location)
}

// Open loads the page at target, starts the event loop and opens the update
// channel. The returned client runs until Close.
func Open(ctx context.Context, target *url.URL, opts Options, logger logging.Logger) (*Client, error) {
	logger = logging.OrNop(logger).WithComponent("preview")
	if opts.HTTPClient == nil {
		opts.HTTPClient = &http.Client{Timeout: 30 * time.Second}
	}
	if opts.Navigation.HTTPClient == nil {
		opts.Navigation.HTTPClient = opts.HTTPClient
	}

	p, err := FetchPage(ctx, opts.HTTPClient, target)
	if err != nil {
		return nil, err
	}
	if opts.Enhancer != nil {
		p.SetEnhancer(opts.Enhancer)
		p.EnhanceContents()
	}

	runCtx, cancel := context.WithCancel(context.Background())
	c := &Client{
		page:    p,
		view:    opts.View,
		opts:    opts,
		logger:  logger,
		handler: perrors.NewErrorHandler(logger),
		ctx:     runCtx,
		cancel:  cancel,
		events:  make(chan event),
		quit:    make(chan struct{}),
		done:    make(chan struct{}),
	}
	go c.loop()

	c.nav = navigation.New(c, history.New(p.Location()), opts.Navigation, logger)
	if err := c.Update(ctx, func(p *page.Page) error {
		n := c.nav.InterceptLinks(p)
		c.logger.Debug(ctx, "Sidebar links intercepted", "count", n)
		c.draw(p)
		return nil
	}); err != nil {
		c.stopLoop()
		return nil, err
	}

	chOpts := opts.Channel
	chOpts.Origin = p.Origin()
	ch, err := channel.New(chOpts, c.dispatch, logger)
	if err != nil {
		c.stopLoop()
		return nil, err
	}
	ch.OnResync(c.resync)
	if err := ch.Open(ctx); err != nil {
		c.stopLoop()
		return nil, err
	}
	c.channel = ch

	c.logger.Info(ctx, "Preview started", "url", target.String(), "endpoint", ch.Endpoint())

	return c, nil
}

// Update runs fn on the event loop and returns its error. It returns
// ErrClosed once the client is closed.
func (c *Client) Update(ctx context.Context, fn func(p *page.Page) error) error {
	ev := event{fn: fn, result: make(chan error, 1)}
	select {
	case c.events <- ev:
	case <-c.quit:
		return perrors.NewInternalError(perrors.ErrCodeClosed, "preview client is closed", nil)
	case <-ctx.Done():
		return ctx.Err()
	}

	return <-ev.result
}

// Navigator returns the navigation controller of the page.
func (c *Client) Navigator() *navigation.Controller {
	return c.nav
}

// ChannelState returns the state of the update channel.
func (c *Client) ChannelState() channel.State {
	return c.channel.State()
}

// Done is closed once the update channel has stopped for good: after Close,
// or after the connection was lost with reconnecting disabled.
func (c *Client) Done() <-chan struct{} {
	return c.channel.Done()
}

// Snapshot copies what the page currently shows.
func (c *Client) Snapshot(ctx context.Context) (Snapshot, error) {
	var s Snapshot
	err := c.Update(ctx, func(p *page.Page) error {
		words, ok := p.WordCount()
		s = Snapshot{
			Location:    p.Location(),
			Title:       p.Title(),
			Contents:    p.ContentsHTML(),
			BuiltHTML:   p.BuiltContentHTML(),
			WordCount:   words,
			HasWords:    ok,
			SidebarHTML: p.SidebarHTML(),
			Version:     p.Version(),
		}
		return nil
	})

	return s, err
}

// Close shuts the channel down, waits for pending resyncs and stops the
// event loop. It is safe to call more than once.
func (c *Client) Close() error {
	c.closeOnce.Do(func() {
		if c.channel != nil {
			_ = c.channel.Close()
		}
		c.cancel()
		c.resyncs.Wait()
		c.stopLoop()
		c.logger.Info(context.Background(), "Preview stopped")
	})

	return nil
}

func (c *Client) stopLoop() {
	select {
	case <-c.quit:
	default:
		close(c.quit)
	}
	<-c.done
	c.cancel()
}

func (c *Client) loop() {
	defer close(c.done)

	for {
		select {
		case ev := <-c.events:
			ev.result <- ev.fn(c.page)
			if c.page.Version() != c.rendered {
				c.draw(c.page)
			}
		case <-c.quit:
			return
		}
	}
}

func (c *Client) draw(p *page.Page) {
	c.rendered = p.Version()
	if c.view != nil {
		c.view.Render(c.ctx, p)
	}
}

// dispatch handles one frame from the update channel. It blocks until the
// frame has been applied, which keeps frames in arrival order.
func (c *Client) dispatch(raw []byte) {
	msg, err := protocol.Decode(raw)
	if err != nil {
		c.handler.Handle(c.ctx, err)
		return
	}
	if !msg.Known() {
		c.logger.Debug(c.ctx, "Ignored frame with unknown action", "action", msg.Action)
		return
	}

	if err := c.Update(c.ctx, func(p *page.Page) error { return c.apply(p, msg) }); err != nil {
		if c.ctx.Err() != nil {
			return
		}
		c.handler.Handle(c.ctx, err)
	}
}

func (c *Client) apply(p *page.Page, msg protocol.Message) error {
	switch msg.Action {
	case protocol.ActionUpdateContent:
		if !docpath.Same(p.Location(), msg.Path) {
			c.logger.Debug(c.ctx, "Discarded update for another document", "path", msg.Path, "location", p.Location())
			return nil
		}
		if err := p.ReplaceBuiltContent(msg.Content.HTML); err != nil {
			return err
		}
		if msg.Content.WordCount != nil {
			p.SetWordCount(*msg.Content.WordCount)
		}

	case protocol.ActionUpdateSidebar:
		if err := p.ReplaceSidebar(msg.Content.HTML); err != nil {
			return err
		}
		if c.opts.RebindSidebar {
			c.nav.InterceptLinks(p)
		}
	}

	return nil
}

// resync reloads the current document after the channel reconnected, since
// frames pushed while disconnected are lost.
func (c *Client) resync() {
	c.resyncs.Add(1)
	go func() {
		defer c.resyncs.Done()

		var location string
		if err := c.Update(c.ctx, func(p *page.Page) error {
			location = p.Location()
			return nil
		}); err != nil {
			return
		}

		c.logger.Info(c.ctx, "Resynchronizing after reconnect", "path", location)
		if err := c.nav.Reload(c.ctx, location); err != nil && c.ctx.Err() == nil {
			c.handler.Handle(c.ctx, err)
		}
	}()
}
