package poller

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/Wardmisp/Bingo/internal/game"
)

const DefaultInterval = 3 * time.Second

// ErrorPolicy decides what a failed fetch does to the loop.
type ErrorPolicy string

const (
	ContinueOnError ErrorPolicy = "continue"
	StopOnError     ErrorPolicy = "stop"
)

func ParseErrorPolicy(s string) (ErrorPolicy, error) {
	switch ErrorPolicy(s) {
	case ContinueOnError, StopOnError:
		return ErrorPolicy(s), nil
	default:
		return "", fmt.Errorf("unknown poll error policy %q (want continue or stop)", s)
	}
}

// FetchFunc loads the roster for one game.
type FetchFunc func(ctx context.Context, gameID string) ([]game.Player, error)

// Tick is the outcome of one fetch.
type Tick struct {
	GameID  string
	Players []game.Player
	Err     error
}

// SinkFunc receives every tick. It must return once ctx is done.
type SinkFunc func(ctx context.Context, tick Tick)

type Option func(*Poller)

func WithInterval(d time.Duration) Option {
	return func(p *Poller) { p.interval = d }
}

func WithErrorPolicy(policy ErrorPolicy) Option {
	return func(p *Poller) { p.policy = policy }
}

func WithLogger(l *zap.Logger) Option {
	return func(p *Poller) { p.logger = l }
}

// Poller runs at most one roster loop at a time.
type Poller struct {
	fetch    FetchFunc
	sink     SinkFunc
	interval time.Duration
	policy   ErrorPolicy
	logger   *zap.Logger

	mu     sync.Mutex
	gameID string
	cancel context.CancelFunc
	done   chan struct{}
}

func New(fetch FetchFunc, sink SinkFunc, opts ...Option) *Poller {
	p := &Poller{
		fetch:    fetch,
		sink:     sink,
		interval: DefaultInterval,
		policy:   ContinueOnError,
		logger:   zap.NewNop(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Start replaces any running loop with one for gameID. The previous loop has
// fully exited by the time Start returns.
func (p *Poller) Start(parent context.Context, gameID string) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.stopLocked()

	ctx, cancel := context.WithCancel(parent)
	p.gameID = gameID
	p.cancel = cancel
	p.done = make(chan struct{})

	go p.loop(ctx, gameID, p.done)
}

// Stop cancels the running loop, if any, and waits for it.
func (p *Poller) Stop() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.stopLocked()
}

// active returns the game being polled.
func (p *Poller) active() (string, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.done == nil {
		return "", false
	}
	select {
	case <-p.done:
		return "", false
	default:
		return p.gameID, true
	}
}

func (p *Poller) stopLocked() {
	if p.cancel == nil {
		return
	}
	p.cancel()
	<-p.done
	p.cancel = nil
	p.done = nil
	p.gameID = ""
}

func (p *Poller) loop(ctx context.Context, gameID string, done chan struct{}) {
	defer close(done)
	log := p.logger.With(zap.String("game_id", gameID))
	log.Debug("polling started", zap.Duration("interval", p.interval))

	timer := time.NewTimer(0)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Debug("polling stopped")
			return
		case <-timer.C:
		}

		players, err := p.fetch(ctx, gameID)
		if ctx.Err() != nil {
			return
		}
		p.sink(ctx, Tick{GameID: gameID, Players: players, Err: err})

		if err != nil {
			log.Warn("roster fetch failed", zap.Error(err))
			if p.policy == StopOnError {
				log.Info("polling halted after error")
				return
			}
		}
		timer.Reset(p.interval)
	}
}
