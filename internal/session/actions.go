package session

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"github.com/Wardmisp/Bingo/internal/game"
)

// CreateGame registers a new game with the caller as host and makes it the
// current session.
func (s *Store) CreateGame(ctx context.Context, playerName string) (game.Session, error) {
	name := strings.TrimSpace(playerName)
	if name == "" {
		return game.Session{}, ErrBlankName
	}
	if err := s.post(ctx, setLoading{}); err != nil {
		return game.Session{}, err
	}

	reg, err := s.actions.CreateGame(ctx, name)
	if err != nil {
		s.fail(err)
		return game.Session{}, err
	}
	sess := game.Session{GameID: reg.GameID, PlayerID: reg.PlayerID, IsHost: true}
	return sess, s.start(ctx, sess, true)
}

// JoinGame registers the caller in an existing game.
func (s *Store) JoinGame(ctx context.Context, playerName, gameID string) (game.Session, error) {
	name := strings.TrimSpace(playerName)
	if name == "" {
		return game.Session{}, ErrBlankName
	}
	gameID = strings.TrimSpace(gameID)
	if gameID == "" {
		return game.Session{}, ErrBlankGameID
	}
	if err := s.post(ctx, setLoading{}); err != nil {
		return game.Session{}, err
	}

	reg, err := s.actions.JoinGame(ctx, name, gameID)
	if err != nil {
		s.fail(err)
		return game.Session{}, err
	}
	sess := game.Session{GameID: reg.GameID, PlayerID: reg.PlayerID}
	return sess, s.start(ctx, sess, true)
}

// Restore resumes the session saved by a previous run, if there is one.
func (s *Store) Restore(ctx context.Context) (game.Session, bool, error) {
	if s.keeper == nil {
		return game.Session{}, false, nil
	}
	rec, ok, err := s.keeper.Load(ctx)
	if err != nil || !ok {
		return game.Session{}, false, err
	}
	sess := game.Session{GameID: rec.GameID, PlayerID: rec.PlayerID, IsHost: rec.IsHost}
	if err := s.start(ctx, sess, false); err != nil {
		return game.Session{}, false, err
	}
	s.logger.Info("session restored", zap.String("game_id", sess.GameID))
	return sess, true, nil
}

// Leave drops the session: polling stops, the stream closes and the saved
// record is removed.
func (s *Store) Leave(ctx context.Context) error {
	reply := make(chan error, 1)
	if err := s.post(ctx, clearSession{reply: reply}); err != nil {
		return err
	}
	return s.await(ctx, reply)
}

// ConnectToBingoStream opens the drawn-number stream for the current game.
// It reports false when a connection was already open.
func (s *Store) ConnectToBingoStream(ctx context.Context) (bool, error) {
	reply := make(chan connectResult, 1)
	if err := s.post(ctx, connectStream{reply: reply}); err != nil {
		return false, err
	}
	select {
	case res := <-reply:
		return res.opened, res.err
	case <-ctx.Done():
		return false, ctx.Err()
	case <-s.done:
		return false, ErrClosed
	}
}

func (s *Store) DisconnectFromBingoStream(ctx context.Context) error {
	reply := make(chan struct{})
	if err := s.post(ctx, disconnectStream{reply: reply}); err != nil {
		return err
	}
	select {
	case <-reply:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-s.done:
		return ErrClosed
	}
}

// FetchBingoCard loads the player's card for the current game.
func (s *Store) FetchBingoCard(ctx context.Context) (game.BingoCard, error) {
	snap, err := s.sessionView(ctx)
	if err != nil {
		return game.BingoCard{}, err
	}
	res, err := s.loadCard(ctx, snap.Session)
	if err != nil {
		s.failScoped(snap.epoch, err)
		return game.BingoCard{}, err
	}
	s.postInternal(cardLoaded{epoch: snap.epoch, gameID: snap.Session.GameID, seq: res.seq, card: res.card})
	return res.card, nil
}

func (s *Store) FetchBingoCardByCardID(ctx context.Context, cardID string) (game.BingoCard, error) {
	snap, err := s.sessionView(ctx)
	if err != nil {
		return game.BingoCard{}, err
	}
	res, err := s.loadCardByID(ctx, cardID)
	if err != nil {
		s.failScoped(snap.epoch, err)
		return game.BingoCard{}, err
	}
	s.postInternal(cardLoaded{epoch: snap.epoch, gameID: snap.Session.GameID, seq: res.seq, card: res.card})
	return res.card, nil
}

// ClickNumber marks number on the loaded card. When the server accepts the
// mark the card is fetched again.
func (s *Store) ClickNumber(ctx context.Context, number int) (bool, error) {
	snap, err := s.sessionView(ctx)
	if err != nil {
		return false, err
	}
	if snap.Card == nil || snap.Card.CardID == "" {
		return false, game.ErrNoCard
	}

	ok, err := s.actions.ClickNumber(ctx, number, snap.Card.CardID)
	if err != nil {
		s.failScoped(snap.epoch, err)
		return false, err
	}
	if !ok {
		return false, nil
	}

	res, err := s.loadCardByID(ctx, snap.Card.CardID)
	if err != nil {
		s.failScoped(snap.epoch, err)
		return true, err
	}
	s.postInternal(cardLoaded{epoch: snap.epoch, gameID: snap.Session.GameID, seq: res.seq, card: res.card})
	return true, nil
}

// LaunchGame starts the round. Host-ness is left to the server.
func (s *Store) LaunchGame(ctx context.Context) error {
	snap, err := s.sessionView(ctx)
	if err != nil {
		return err
	}
	if err := s.actions.LaunchGame(ctx, snap.Session.GameID); err != nil {
		s.failScoped(snap.epoch, err)
		return err
	}
	s.postInternal(launched{epoch: snap.epoch})
	return nil
}

func (s *Store) RemovePlayer(ctx context.Context) error {
	snap, err := s.sessionView(ctx)
	if err != nil {
		return err
	}
	if err := s.actions.RemovePlayer(ctx, snap.Session.GameID, snap.Session.PlayerID); err != nil {
		s.failScoped(snap.epoch, err)
		return err
	}
	return nil
}

// Subscribe returns a channel that gets the current snapshot at once and
// then every later one. A slow reader only ever misses intermediate
// snapshots, never the newest. The channel closes on Unsubscribe or Close.
func (s *Store) Subscribe(ctx context.Context, id string) (<-chan Snapshot, error) {
	reply := make(chan (<-chan Snapshot), 1)
	if err := s.post(ctx, subscribe{id: id, reply: reply}); err != nil {
		return nil, err
	}
	select {
	case ch := <-reply:
		return ch, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-s.done:
		return nil, ErrClosed
	}
}

func (s *Store) Unsubscribe(id string) {
	s.postInternal(unsubscribe{id: id})
}

// View returns the current snapshot.
func (s *Store) View(ctx context.Context) (Snapshot, error) {
	reply := make(chan Snapshot, 1)
	if err := s.post(ctx, getState{reply: reply}); err != nil {
		return Snapshot{}, err
	}
	select {
	case snap := <-reply:
		return snap, nil
	case <-ctx.Done():
		return Snapshot{}, ctx.Err()
	case <-s.done:
		return Snapshot{}, ErrClosed
	}
}

func (s *Store) sessionView(ctx context.Context) (Snapshot, error) {
	snap, err := s.View(ctx)
	if err != nil {
		return Snapshot{}, err
	}
	if !snap.HasSession() {
		return Snapshot{}, game.ErrNoSession
	}
	return snap, nil
}

func (s *Store) start(ctx context.Context, sess game.Session, save bool) error {
	// The server already registered the player, so the result is applied
	// even if the caller stops waiting.
	reply := make(chan struct{})
	s.postInternal(sessionStarted{session: sess, persist: save, reply: reply})
	select {
	case <-reply:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-s.done:
		return ErrClosed
	}
}

// cardFetch is a card read together with the order it was started in.
type cardFetch struct {
	card game.BingoCard
	seq  uint64
}

// loadCard shares one in-flight read per player. The read runs under the
// store's lifetime so one caller giving up does not fail the others.
func (s *Store) loadCard(ctx context.Context, sess game.Session) (cardFetch, error) {
	ch := s.flight.DoChan("card/"+sess.GameID+"/"+sess.PlayerID, func() (any, error) {
		seq := s.cardSeq.Add(1)
		card, err := s.actions.FetchBingoCard(s.ctx, sess.GameID, sess.PlayerID)
		return cardFetch{card: card, seq: seq}, err
	})
	select {
	case res := <-ch:
		if res.Err != nil {
			return cardFetch{}, res.Err
		}
		return res.Val.(cardFetch), nil
	case <-ctx.Done():
		return cardFetch{}, ctx.Err()
	}
}

// loadCardByID always issues a fresh read; after a mark it must start after
// the mark landed.
func (s *Store) loadCardByID(ctx context.Context, cardID string) (cardFetch, error) {
	seq := s.cardSeq.Add(1)
	card, err := s.actions.FetchBingoCardByCardID(ctx, cardID)
	if err != nil {
		return cardFetch{}, err
	}
	return cardFetch{card: card, seq: seq}, nil
}

// fail reports a finished remote call. It is posted even when the caller's
// context is gone so the UI never stays in Loading.
func (s *Store) fail(err error) {
	s.postInternal(actionFailed{message: err.Error()})
}

func (s *Store) failScoped(epoch uint64, err error) {
	s.postInternal(actionFailed{message: err.Error(), scoped: true, epoch: epoch})
}

func (s *Store) await(ctx context.Context, reply chan error) error {
	select {
	case err := <-reply:
		return err
	case <-ctx.Done():
		return ctx.Err()
	case <-s.done:
		return ErrClosed
	}
}

func (s *Store) post(ctx context.Context, m Msg) error {
	select {
	case s.inbox <- m:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-s.ctx.Done():
		return ErrClosed
	}
}
