// Package session holds the single authoritative state of a bingo session.
// Roster polls, stream events and user actions all reach it as messages on
// one inbox and are applied in order by one goroutine.
package session

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/Wardmisp/Bingo/internal/game"
	"github.com/Wardmisp/Bingo/internal/persist"
	"github.com/Wardmisp/Bingo/internal/poller"
	"github.com/Wardmisp/Bingo/internal/stream"
)

const (
	DefaultReconnectDelay = 5 * time.Second
	persistTimeout        = 5 * time.Second
)

var (
	ErrClosed      = errors.New("session store closed")
	ErrBlankName   = errors.New("player name must not be blank")
	ErrBlankGameID = errors.New("game id must not be blank")
)

// Actions are the remote game operations the store drives.
type Actions interface {
	CreateGame(ctx context.Context, playerName string) (game.Registration, error)
	JoinGame(ctx context.Context, playerName, gameID string) (game.Registration, error)
	FetchPlayers(ctx context.Context, gameID string) ([]game.Player, error)
	FetchBingoCard(ctx context.Context, gameID, playerID string) (game.BingoCard, error)
	FetchBingoCardByCardID(ctx context.Context, cardID string) (game.BingoCard, error)
	ClickNumber(ctx context.Context, number int, cardID string) (bool, error)
	LaunchGame(ctx context.Context, gameID string) error
	RemovePlayer(ctx context.Context, gameID, playerID string) error
}

// Streamer is the bingo event stream. *stream.Transport satisfies it.
type Streamer interface {
	Connect(gameID string, l stream.Listener) (stream.Conn, bool)
	Disconnect()
	Close()
}

type Option func(*Store)

func WithLogger(l *zap.Logger) Option {
	return func(s *Store) { s.logger = l }
}

// WithKeeper persists the session so Restore can resume it later.
func WithKeeper(k persist.Keeper) Option {
	return func(s *Store) { s.keeper = k }
}

func WithPollInterval(d time.Duration) Option {
	return func(s *Store) { s.pollOpts = append(s.pollOpts, poller.WithInterval(d)) }
}

func WithPollErrorPolicy(p poller.ErrorPolicy) Option {
	return func(s *Store) { s.pollOpts = append(s.pollOpts, poller.WithErrorPolicy(p)) }
}

func WithReconnectDelay(d time.Duration) Option {
	return func(s *Store) { s.reconnectDelay = d }
}

// WithAutoStream loads the card and opens the stream as soon as the game is
// seen to have started.
func WithAutoStream(on bool) Option {
	return func(s *Store) { s.autoStream = on }
}

type Store struct {
	inbox  chan Msg
	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}
	wg     sync.WaitGroup
	once   sync.Once

	actions        Actions
	streamer       Streamer
	poller         *poller.Poller
	pollOpts       []poller.Option
	keeper         persist.Keeper
	logger         *zap.Logger
	reconnectDelay time.Duration
	autoStream     bool
	flight         singleflight.Group
	cardSeq        atomic.Uint64

	// Owned by the loop.
	version    int
	epoch      uint64
	session    game.Session
	ui         UIState
	players    []game.Player
	started    bool
	card       *game.BingoCard
	drawn      *int
	status     string
	conn       stream.State
	streamConn stream.Conn

	// cardApplied is the seq of the newest card read applied so far.
	cardApplied uint64

	reconnectSeq     uint64
	pendingReconnect uint64
	reconnectTimer   *time.Timer

	subs map[string]chan Snapshot
}

func New(parent context.Context, actions Actions, streamer Streamer, opts ...Option) *Store {
	ctx, cancel := context.WithCancel(parent)

	s := &Store{
		inbox:          make(chan Msg, 64),
		ctx:            ctx,
		cancel:         cancel,
		done:           make(chan struct{}),
		actions:        actions,
		streamer:       streamer,
		logger:         zap.NewNop(),
		reconnectDelay: DefaultReconnectDelay,
		ui:             UIInitial{},
		conn:           stream.State{Kind: stream.Disconnected},
		subs:           make(map[string]chan Snapshot),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.Named("session")
	s.poller = poller.New(actions.FetchPlayers, s.deliverTick,
		append([]poller.Option{poller.WithLogger(s.logger.Named("poller"))}, s.pollOpts...)...)

	go s.loop()
	return s
}

// Close stops the loop. The poller and the stream are both down by the time
// it returns.
func (s *Store) Close() {
	s.once.Do(func() {
		s.cancel()
		<-s.done
		s.wg.Wait()
	})
}

func (s *Store) loop() {
	defer close(s.done)
	for {
		select {
		case <-s.ctx.Done():
			s.shutdown()
			return
		case m := <-s.inbox:
			if s.handle(m) {
				s.version++
				s.broadcast(s.snapshot())
			}
		}
	}
}

// handle applies one message and reports whether the snapshot changed.
func (s *Store) handle(m Msg) bool {
	switch msg := m.(type) {
	case setLoading:
		s.ui = UILoading{}
		return true

	case actionFailed:
		if msg.scoped && msg.epoch != s.epoch {
			return false
		}
		s.ui = UIError{Message: msg.message}
		return true

	case sessionStarted:
		s.startSession(msg.session, msg.persist)
		close(msg.reply)
		return true

	case rosterTick:
		return s.applyRoster(msg.tick)

	case streamEvent:
		return s.applyStreamEvent(msg.conn, msg.ev)

	case streamState:
		if !s.isCurrent(msg.conn) {
			s.logger.Debug("dropping state from stale stream", zap.Uint64("conn", msg.conn.Seq))
			return false
		}
		s.conn = msg.state
		if msg.state.IsError() {
			s.scheduleReconnect()
		}
		return true

	case connectStream:
		if !s.session.Valid() {
			msg.reply <- connectResult{err: game.ErrNoSession}
			return false
		}
		opened := s.connect()
		msg.reply <- connectResult{opened: opened}
		return true

	case disconnectStream:
		s.cancelReconnect()
		s.dropStream()
		close(msg.reply)
		return true

	case reconnectFire:
		return s.fireReconnect(msg)

	case cardLoaded:
		if msg.epoch != s.epoch || msg.gameID != s.session.GameID || msg.seq < s.cardApplied {
			s.logger.Debug("dropping stale card", zap.Uint64("seq", msg.seq))
			return false
		}
		s.cardApplied = msg.seq
		c := msg.card.Clone()
		s.card = &c
		return true

	case launched:
		if msg.epoch != s.epoch || !s.session.Valid() {
			return false
		}
		// Poll right away so the started flag shows up without waiting a tick.
		s.poller.Start(s.ctx, s.session.GameID)
		return false

	case clearSession:
		msg.reply <- s.clear()
		return true

	case subscribe:
		ch := make(chan Snapshot, 1)
		if old, ok := s.subs[msg.id]; ok {
			close(old)
		}
		s.subs[msg.id] = ch
		ch <- s.snapshot()
		msg.reply <- ch
		return false

	case unsubscribe:
		if ch, ok := s.subs[msg.id]; ok {
			close(ch)
			delete(s.subs, msg.id)
		}
		return false

	case getState:
		msg.reply <- s.snapshot()
		return false
	}
	return false
}

func (s *Store) startSession(sess game.Session, save bool) {
	if s.session.Valid() {
		s.logger.Info("replacing session",
			zap.String("old_game_id", s.session.GameID), zap.String("game_id", sess.GameID))
		s.cancelReconnect()
		s.dropStream()
	}
	s.epoch++
	s.session = sess
	s.resetGame()
	s.ui = UILoading{}

	s.poller.Start(s.ctx, sess.GameID)
	if save {
		s.save()
	}
	s.logger.Info("session started",
		zap.String("game_id", sess.GameID),
		zap.String("player_id", sess.PlayerID),
		zap.Bool("host", sess.IsHost))
}

func (s *Store) applyRoster(t poller.Tick) bool {
	if !s.session.Valid() || t.GameID != s.session.GameID {
		s.logger.Debug("dropping roster for inactive game", zap.String("game_id", t.GameID))
		return false
	}
	if t.Err != nil {
		s.ui = UIError{Message: t.Err.Error()}
		return true
	}

	if me, ok := game.FindPlayer(t.Players, s.session.PlayerID); ok && me.GameID != "" && me.GameID != s.session.GameID {
		s.switchGame(me.GameID)
		return true
	}

	s.players = t.Players
	s.ui = UISuccess{Players: t.Players}
	if !s.started && game.DeriveStarted(t.Players) {
		s.started = true
		s.logger.Info("game started", zap.String("game_id", s.session.GameID))
		if s.autoStream {
			s.connect()
			s.loadCardAsync()
		}
	}
	return true
}

// switchGame follows our player into another game. The session epoch is
// kept so a pending reconnect lands on the new game.
func (s *Store) switchGame(gameID string) {
	s.logger.Info("game id changed",
		zap.String("old_game_id", s.session.GameID), zap.String("game_id", gameID))
	s.dropStream()
	s.session.GameID = gameID
	s.resetGame()
	s.ui = UILoading{}
	s.poller.Start(s.ctx, gameID)
	s.save()
}

func (s *Store) applyStreamEvent(c stream.Conn, ev stream.Event) bool {
	if !s.isCurrent(c) {
		s.logger.Debug("dropping event from stale stream", zap.String("event", ev.Name))
		return false
	}
	switch ev.Name {
	case stream.EventBingoNumber:
		n, err := game.ParseDrawnNumber(ev.Data)
		if err != nil {
			s.logger.Warn("dropping malformed drawn number", zap.String("data", ev.Data), zap.Error(err))
			return false
		}
		s.drawn = &n
		return true
	case stream.EventGameOver:
		s.status = ev.Data
		return true
	default:
		s.logger.Debug("unhandled stream event", zap.String("event", ev.Name))
		return false
	}
}

func (s *Store) isCurrent(c stream.Conn) bool {
	return c.Seq != 0 && c == s.streamConn && c.GameID == s.session.GameID
}

func (s *Store) connect() bool {
	conn, opened := s.streamer.Connect(s.session.GameID, listener{s})
	s.streamConn = conn
	if !opened {
		s.logger.Debug("stream already open", zap.String("game_id", conn.GameID))
	}
	return opened
}

func (s *Store) dropStream() {
	s.streamer.Disconnect()
	s.streamConn = stream.Conn{}
	s.conn = stream.State{Kind: stream.Disconnected}
}

func (s *Store) scheduleReconnect() {
	if s.pendingReconnect != 0 || !s.session.Valid() {
		return
	}
	s.reconnectSeq++
	fire := reconnectFire{token: s.reconnectSeq, epoch: s.epoch}
	s.pendingReconnect = fire.token
	s.logger.Info("stream failed, reconnecting", zap.Duration("delay", s.reconnectDelay))
	s.reconnectTimer = time.AfterFunc(s.reconnectDelay, func() { s.postInternal(fire) })
}

func (s *Store) fireReconnect(msg reconnectFire) bool {
	if msg.token != s.pendingReconnect {
		return false
	}
	s.pendingReconnect = 0
	s.reconnectTimer = nil
	if msg.epoch != s.epoch || !s.session.Valid() {
		s.logger.Info("reconnect abandoned, session changed")
		return false
	}
	s.connect()
	return true
}

func (s *Store) cancelReconnect() {
	if s.reconnectTimer != nil {
		s.reconnectTimer.Stop()
		s.reconnectTimer = nil
	}
	s.pendingReconnect = 0
}

func (s *Store) clear() error {
	s.cancelReconnect()
	s.poller.Stop()
	s.dropStream()
	s.epoch++
	s.session = game.Session{}
	s.resetGame()
	s.ui = UIInitial{}

	if s.keeper == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(s.ctx, persistTimeout)
	defer cancel()
	return s.keeper.Clear(ctx)
}

func (s *Store) resetGame() {
	s.players = nil
	s.started = false
	s.card = nil
	s.drawn = nil
	s.status = ""
}

func (s *Store) save() {
	if s.keeper == nil {
		return
	}
	ctx, cancel := context.WithTimeout(s.ctx, persistTimeout)
	defer cancel()
	rec := persist.Record{GameID: s.session.GameID, PlayerID: s.session.PlayerID, IsHost: s.session.IsHost}
	if err := s.keeper.Save(ctx, rec); err != nil {
		s.logger.Warn("could not save session", zap.Error(err))
	}
}

func (s *Store) loadCardAsync() {
	sess, epoch := s.session, s.epoch
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		res, err := s.loadCard(s.ctx, sess)
		if err != nil {
			if s.ctx.Err() == nil {
				s.logger.Warn("could not load bingo card", zap.Error(err))
				s.postInternal(actionFailed{message: err.Error(), scoped: true, epoch: epoch})
			}
			return
		}
		s.postInternal(cardLoaded{epoch: epoch, gameID: sess.GameID, seq: res.seq, card: res.card})
	}()
}

func (s *Store) shutdown() {
	s.cancelReconnect()
	s.poller.Stop()
	s.streamer.Close()
	for id, ch := range s.subs {
		close(ch)
		delete(s.subs, id)
	}
}

func (s *Store) snapshot() Snapshot {
	snap := Snapshot{
		Version:       s.version,
		Session:       s.session,
		UI:            s.ui,
		Players:       s.players,
		GameStarted:   s.started,
		StatusMessage: s.status,
		Connection:    s.conn,
		StreamGameID:  s.streamConn.GameID,
		epoch:         s.epoch,
	}
	if s.card != nil {
		c := s.card.Clone()
		snap.Card = &c
	}
	if s.drawn != nil {
		n := *s.drawn
		snap.DrawnNumber = &n
	}
	return snap
}

// broadcast keeps only the newest snapshot for observers that fall behind.
func (s *Store) broadcast(snap Snapshot) {
	for _, ch := range s.subs {
		select {
		case ch <- snap:
			continue
		default:
		}
		select {
		case <-ch:
		default:
		}
		ch <- snap
	}
}

func (s *Store) postInternal(m Msg) {
	select {
	case s.inbox <- m:
	case <-s.ctx.Done():
	}
}

func (s *Store) deliverTick(ctx context.Context, t poller.Tick) {
	select {
	case s.inbox <- rosterTick{tick: t}:
	case <-ctx.Done():
	case <-s.ctx.Done():
	}
}

// listener feeds stream callbacks into the inbox.
type listener struct{ s *Store }

func (l listener) StreamEvent(c stream.Conn, ev stream.Event) {
	l.s.postInternal(streamEvent{conn: c, ev: ev})
}

func (l listener) StreamState(c stream.Conn, st stream.State) {
	l.s.postInternal(streamState{conn: c, state: st})
}
