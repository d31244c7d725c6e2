// Package channel owns the push connection between the preview client and the
// server.
//
// Exactly one Channel exists per displayed page. It is opened once, closed
// once, and the only thing it exposes to the rest of the client is the
// dispatch callback it was created with: frames are delivered to that
// callback one at a time, in arrival order. Nothing else writes to the
// connection.
//
// Reconnection: when the connection drops, or a heartbeat ping goes
// unanswered, the channel redials with exponential backoff. Frames pushed
// while disconnected are lost, so after every successful redial the resync
// hook runs and the client re-fetches what it displays. With reconnection
// disabled a lost connection is logged and the channel stays closed; the page
// is left as it was.
package channel

import (
	"context"
	"net/http"
	"net/url"
	"sync"
	"sync/atomic"
	"time"

	"github.com/coder/websocket"

	perrors "github.com/conneroisu/livepreview/internal/errors"
	"github.com/conneroisu/livepreview/internal/logging"
	"github.com/conneroisu/livepreview/internal/version"
)

// State of the connection.
type State int32

const (
	StateIdle State = iota
	StateConnecting
	StateOpen
	StateReconnecting
	StateClosed
)

// String returns the string representation of the state
func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateConnecting:
		return "connecting"
	case StateOpen:
		return "open"
	case StateReconnecting:
		return "reconnecting"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// Dispatcher receives every text frame.
type Dispatcher func(raw []byte)

// Options configures a Channel.
type Options struct {
	// Origin is the scheme and host the page was served from.
	Origin *url.URL
	// Path is the reserved endpoint path, "/.ws" by default.
	Path string

	Heartbeat      time.Duration
	Reconnect      bool
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
	DialTimeout    time.Duration
	ReadLimit      int64
}

// DefaultOptions returns the options used when nothing is configured.
func DefaultOptions(origin *url.URL) Options {
	return Options{
		Origin:         origin,
		Path:           "/.ws",
		Heartbeat:      30 * time.Second,
		Reconnect:      true,
		InitialBackoff: 500 * time.Millisecond,
		MaxBackoff:     30 * time.Second,
		DialTimeout:    10 * time.Second,
		ReadLimit:      8 << 20,
	}
}

// Endpoint derives the websocket URL from the page origin.
func Endpoint(origin *url.URL, path string) (string, error) {
	if origin == nil || origin.Host == "" {
		return "", perrors.NewConfigError(perrors.ErrCodeInvalidURL, "page origin has no host")
	}

	scheme := "ws"
	switch origin.Scheme {
	case "https", "wss":
		scheme = "wss"
	case "http", "ws", "":
	default:
		return "", perrors.NewConfigError(perrors.ErrCodeInvalidURL, "unsupported origin scheme "+origin.Scheme)
	}
	if path == "" {
		path = "/.ws"
	}

	u := url.URL{Scheme: scheme, Host: origin.Host, Path: path}
	return u.String(), nil
}

// Channel is the push connection.
type Channel struct {
	opts     Options
	endpoint string
	dispatch Dispatcher
	onResync func()
	logger   logging.Logger

	state  atomic.Int32
	opened atomic.Bool

	mu     sync.Mutex
	conn   *websocket.Conn
	cancel context.CancelFunc
	done   chan struct{}

	closeOnce sync.Once
}

// New creates a closed channel. dispatch must not be nil.
func New(opts Options, dispatch Dispatcher, logger logging.Logger) (*Channel, error) {
	if dispatch == nil {
		return nil, perrors.NewInternalError(perrors.ErrCodeConfigInvalid, "channel needs a dispatcher", nil)
	}
	endpoint, err := Endpoint(opts.Origin, opts.Path)
	if err != nil {
		return nil, err
	}
	if opts.InitialBackoff <= 0 {
		opts.InitialBackoff = 500 * time.Millisecond
	}
	if opts.MaxBackoff < opts.InitialBackoff {
		opts.MaxBackoff = opts.InitialBackoff
	}

	return &Channel{
		opts:     opts,
		endpoint: endpoint,
		dispatch: dispatch,
		logger:   logging.OrNop(logger).WithComponent("channel"),
		done:     make(chan struct{}),
	}, nil
}

// OnResync installs the hook run after every successful reconnect. It must be
// set before Open.
func (c *Channel) OnResync(fn func()) {
	c.onResync = fn
}

// Endpoint returns the websocket URL.
func (c *Channel) Endpoint() string {
	return c.endpoint
}

// State returns the current connection state.
func (c *Channel) State() State {
	return State(c.state.Load())
}

// Done is closed once the channel has stopped for good.
func (c *Channel) Done() <-chan struct{} {
	return c.done
}

// Open dials the server and starts delivering frames. It may be called once;
// the initial dial is synchronous so a wrong address fails fast.
func (c *Channel) Open(ctx context.Context) error {
	if !c.opened.CompareAndSwap(false, true) {
		return perrors.NewInternalError(perrors.ErrCodeAlreadyOpen, "channel already opened", nil)
	}

	c.state.Store(int32(StateConnecting))
	conn, err := c.dial(ctx)
	if err != nil {
		c.state.Store(int32(StateClosed))
		close(c.done)
		return err
	}

	runCtx, cancel := context.WithCancel(context.Background())
	c.mu.Lock()
	if c.State() == StateClosed {
		c.mu.Unlock()
		cancel()
		_ = conn.CloseNow()
		close(c.done)
		return perrors.NewInternalError(perrors.ErrCodeClosed, "channel closed while opening", nil)
	}
	c.conn = conn
	c.cancel = cancel
	c.state.Store(int32(StateOpen))
	c.mu.Unlock()
	c.logger.Info(ctx, "Update channel open", "endpoint", c.endpoint)

	go c.run(runCtx, conn)

	return nil
}

// Close tears the connection down and waits for the read loop to exit. No
// frame is dispatched after Close returns. Closing an unopened channel only
// marks it closed.
func (c *Channel) Close() error {
	c.closeOnce.Do(func() {
		wasOpen := c.opened.Swap(true)

		c.mu.Lock()
		c.state.Store(int32(StateClosed))
		cancel := c.cancel
		conn := c.conn
		c.mu.Unlock()

		if cancel != nil {
			cancel()
		}
		if conn != nil {
			_ = conn.Close(websocket.StatusNormalClosure, "page closed")
		}
		if !wasOpen {
			close(c.done)
			return
		}
		<-c.done
	})

	return nil
}

// setState moves to s unless the channel was closed in the meantime.
func (c *Channel) setState(s State) {
	for {
		cur := c.state.Load()
		if State(cur) == StateClosed {
			return
		}
		if c.state.CompareAndSwap(cur, int32(s)) {
			return
		}
	}
}

func (c *Channel) run(ctx context.Context, conn *websocket.Conn) {
	defer close(c.done)

	for {
		err := c.readLoop(ctx, conn)
		if ctx.Err() != nil {
			return
		}

		lost := perrors.NewNetworkError(perrors.ErrCodeConnectionLost, "update channel lost", err)
		if !c.opts.Reconnect {
			c.logger.Warn(ctx, lost, "Update channel closed; live updates stopped")
			c.setState(StateClosed)
			return
		}
		c.logger.Warn(ctx, lost, "Update channel lost; reconnecting")
		c.setState(StateReconnecting)

		conn = c.redial(ctx)
		if conn == nil {
			return
		}
		c.setState(StateOpen)
		c.logger.Info(ctx, "Update channel reconnected", "endpoint", c.endpoint)

		if c.onResync != nil {
			c.onResync()
		}
	}
}

// readLoop delivers frames until the connection fails. A heartbeat goroutine
// pings the server; a failed ping closes the connection, which ends the read.
func (c *Channel) readLoop(ctx context.Context, conn *websocket.Conn) error {
	loopCtx, stop := context.WithCancel(ctx)
	defer stop()

	if c.opts.Heartbeat > 0 {
		go c.heartbeat(loopCtx, conn)
	}

	for {
		typ, data, err := conn.Read(loopCtx)
		if err != nil {
			return err
		}
		if typ != websocket.MessageText {
			c.logger.Debug(loopCtx, "Ignoring binary frame", "bytes", len(data))
			continue
		}
		c.dispatch(data)
	}
}

func (c *Channel) heartbeat(ctx context.Context, conn *websocket.Conn) {
	ticker := time.NewTicker(c.opts.Heartbeat)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			pingCtx, cancel := context.WithTimeout(ctx, c.opts.Heartbeat)
			err := conn.Ping(pingCtx)
			cancel()
			if err != nil {
				if ctx.Err() == nil {
					c.logger.Debug(ctx, "Heartbeat failed", "error", err.Error())
					_ = conn.CloseNow()
				}
				return
			}
			c.logger.Debug(ctx, "Heartbeat answered")
		}
	}
}

// redial retries with exponential backoff until it connects or ctx ends.
func (c *Channel) redial(ctx context.Context) *websocket.Conn {
	delay := c.opts.InitialBackoff
	for attempt := 1; ; attempt++ {
		select {
		case <-ctx.Done():
			return nil
		case <-time.After(delay):
		}

		conn, err := c.dial(ctx)
		if err == nil {
			c.mu.Lock()
			c.conn = conn
			c.mu.Unlock()
			if ctx.Err() != nil {
				_ = conn.CloseNow()
				return nil
			}
			return conn
		}

		c.logger.Debug(ctx, "Reconnect attempt failed", "attempt", attempt, "retry_in", delay.String(), "error", err.Error())
		delay *= 2
		if delay > c.opts.MaxBackoff {
			delay = c.opts.MaxBackoff
		}
	}
}

func (c *Channel) dial(ctx context.Context) (*websocket.Conn, error) {
	dialCtx := ctx
	if c.opts.DialTimeout > 0 {
		var cancel context.CancelFunc
		dialCtx, cancel = context.WithTimeout(ctx, c.opts.DialTimeout)
		defer cancel()
	}

	conn, resp, err := websocket.Dial(dialCtx, c.endpoint, &websocket.DialOptions{
		HTTPHeader: http.Header{"User-Agent": []string{version.UserAgent()}},
	})
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}
	if err != nil {
		return nil, perrors.NewNetworkError(perrors.ErrCodeDialFailed, "cannot open update channel", err).
			WithContext("endpoint", c.endpoint)
	}
	if c.opts.ReadLimit > 0 {
		conn.SetReadLimit(c.opts.ReadLimit)
	}

	return conn, nil
}
