package stream

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

var ErrUnexpectedStatus = errors.New("unexpected stream status")
var ErrIdleTimeout = errors.New("stream idle timeout")

const DefaultIdleTimeout = 30 * time.Second

// Conn identifies one Connect call. Seq grows with every new connection so
// listeners can tell a stale read loop from the live one.
type Conn struct {
	GameID string
	Seq    uint64
}

// Listener receives everything a read loop produces, on the loop's goroutine.
type Listener interface {
	StreamEvent(c Conn, ev Event)
	StreamState(c Conn, st State)
}

type Option func(*Transport)

func WithHTTPClient(c *http.Client) Option {
	return func(t *Transport) { t.client = c }
}

func WithLogger(l *zap.Logger) Option {
	return func(t *Transport) { t.logger = l }
}

// WithIdleTimeout fails the stream when no line arrives for d. Zero disables it.
func WithIdleTimeout(d time.Duration) Option {
	return func(t *Transport) { t.idleTimeout = d }
}

// Transport holds at most one bingo-stream connection at a time.
type Transport struct {
	baseURL     string
	client      *http.Client
	logger      *zap.Logger
	idleTimeout time.Duration

	mu        sync.Mutex
	connected bool
	seq       uint64
	current   Conn
	cancel    context.CancelFunc
	done      chan struct{}
}

func New(baseURL string, opts ...Option) *Transport {
	t := &Transport{
		baseURL:     strings.TrimRight(baseURL, "/"),
		client:      &http.Client{},
		logger:      zap.NewNop(),
		idleTimeout: DefaultIdleTimeout,
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Connect opens the stream for gameID unless a connection is already
// connecting or live, in which case it returns that connection and false.
func (t *Transport) Connect(gameID string, l Listener) (Conn, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.connected {
		return t.current, false
	}

	t.connected = true
	t.seq++
	conn := Conn{GameID: gameID, Seq: t.seq}
	t.current = conn

	ctx, cancel := context.WithCancel(context.Background())
	t.cancel = cancel
	t.done = make(chan struct{})

	go t.run(ctx, conn, l, t.done)
	return conn, true
}

// Disconnect drops the live connection, if any. It does not wait for the
// read loop to finish.
func (t *Transport) Disconnect() {
	t.mu.Lock()
	t.connected = false
	cancel := t.cancel
	t.cancel = nil
	t.mu.Unlock()

	if cancel != nil {
		cancel()
	}
}

// Close disconnects and waits for the read loop to return.
func (t *Transport) Close() {
	t.mu.Lock()
	done := t.done
	t.mu.Unlock()

	t.Disconnect()
	if done != nil {
		<-done
	}
}

func (t *Transport) isConnected() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.connected
}

func (t *Transport) run(ctx context.Context, conn Conn, l Listener, done chan struct{}) {
	defer close(done)
	log := t.logger.With(zap.String("game_id", conn.GameID), zap.Uint64("conn", conn.Seq))

	l.StreamState(conn, State{Kind: Connecting})
	err := t.read(ctx, conn, l)

	final := State{Kind: Disconnected}
	if err != nil && ctx.Err() == nil {
		final = ErrorState(err.Error())
		log.Warn("bingo stream failed", zap.Error(err))
	} else {
		log.Debug("bingo stream closed")
	}

	// Clear the flag before reporting so a listener may reconnect right away.
	t.mu.Lock()
	if t.seq == conn.Seq {
		t.connected = false
		t.cancel = nil
	}
	t.mu.Unlock()

	l.StreamState(conn, final)
}

func (t *Transport) read(ctx context.Context, conn Conn, l Listener) error {
	readCtx, cancelRead := context.WithCancel(ctx)
	defer cancelRead()

	var idled atomic.Bool
	touch := func() {}
	if t.idleTimeout > 0 {
		timer := time.AfterFunc(t.idleTimeout, func() {
			idled.Store(true)
			cancelRead()
		})
		defer timer.Stop()
		touch = func() { timer.Reset(t.idleTimeout) }
	}

	req, err := http.NewRequestWithContext(readCtx, http.MethodGet, t.streamURL(conn.GameID), nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "text/event-stream")
	req.Header.Set("Cache-Control", "no-cache")

	resp, err := t.client.Do(req)
	if err != nil {
		if idled.Load() {
			return ErrIdleTimeout
		}
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("%w: %d", ErrUnexpectedStatus, resp.StatusCode)
	}

	touch()
	l.StreamState(conn, State{Kind: Connected})

	err = Decode(resp.Body, func(ev Event) { l.StreamEvent(conn, ev) }, touch)
	if idled.Load() {
		return ErrIdleTimeout
	}
	return err
}

func (t *Transport) streamURL(gameID string) string {
	return t.baseURL + "/bingo-stream/" + url.PathEscape(gameID)
}
