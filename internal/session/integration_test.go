package session

import (
	"context"
	"errors"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/Wardmisp/Bingo/internal/gateway"
	"github.com/Wardmisp/Bingo/internal/poller"
	"github.com/Wardmisp/Bingo/internal/stream"
	"github.com/Wardmisp/Bingo/internal/testserver"
)

func newLiveStore(t *testing.T, srv *testserver.Server, opts ...Option) *Store {
	t.Helper()
	log := zaptest.NewLogger(t)
	gw := gateway.New(srv.URL, gateway.WithLogger(log))
	tr := stream.New(srv.URL, stream.WithLogger(log))
	opts = append([]Option{WithLogger(log), WithPollInterval(20 * time.Millisecond)}, opts...)
	s := New(context.Background(), gw, tr, opts...)
	t.Cleanup(s.Close)
	return s
}

func TestLive_HostPlaysARound(t *testing.T) {
	srv := testserver.New(t)
	s := newLiveStore(t, srv, WithAutoStream(true))
	ctx := context.Background()

	sess, err := s.CreateGame(ctx, "Alice")
	require.NoError(t, err)
	require.True(t, sess.IsHost)
	gameID := sess.GameID

	waitFor(t, s, "lobby roster", func(s Snapshot) bool {
		p, ok := rosterOf(s)
		return ok && len(p) == 1 && p[0].Name == "Alice"
	})

	require.NoError(t, s.LaunchGame(ctx))
	assert.Equal(t, 1, srv.Hits("launch-game/"+gameID))

	snap := waitFor(t, s, "streaming with a card", func(s Snapshot) bool {
		return s.GameStarted && s.Card != nil && s.Connection.Kind == stream.Connected
	})
	require.Eventually(t, func() bool { return srv.Streams(gameID) == 1 }, 2*time.Second, 5*time.Millisecond)

	first := snap.Card.Grid[0][0].Number
	require.Equal(t, 1, srv.Push(gameID, stream.EventBingoNumber, strconv.Itoa(first)))
	snap = waitFor(t, s, "drawn number", func(s Snapshot) bool { return s.DrawnNumber != nil })
	assert.Equal(t, first, *snap.DrawnNumber)

	ok, err := s.ClickNumber(ctx, first)
	require.NoError(t, err)
	assert.True(t, ok)
	snap = view(t, s)
	assert.True(t, snap.Card.Grid[0][0].Marked())

	opened, err := s.ConnectToBingoStream(ctx)
	require.NoError(t, err)
	assert.False(t, opened)
	assert.Equal(t, 1, srv.Hits("bingo-stream/"+gameID))

	srv.Push(gameID, stream.EventGameOver, "Alice wins")
	waitFor(t, s, "game over", func(s Snapshot) bool { return s.StatusMessage == "Alice wins" })

	err = s.RemovePlayer(ctx)
	assert.ErrorIs(t, err, gateway.ErrNotImplemented)
	assert.Zero(t, srv.Hits("remove-player"))

	require.NoError(t, s.Leave(ctx))
	require.Eventually(t, func() bool { return srv.Streams(gameID) == 0 }, 2*time.Second, 5*time.Millisecond)
}

func TestLive_JoinDuplicateName(t *testing.T) {
	srv := testserver.New(t)
	srv.AddGame("99", "Bob")
	s := newLiveStore(t, srv)

	_, err := s.JoinGame(context.Background(), "Bob", "99")
	var dup *gateway.DuplicateNameError
	require.True(t, errors.As(err, &dup))
	assert.Contains(t, err.Error(), "Bob")

	snap := view(t, s)
	require.IsType(t, UIError{}, snap.UI)
	assert.Contains(t, snap.UI.(UIError).Message, "Bob")
	assert.Contains(t, snap.UI.(UIError).Message, "already exists")
	assert.False(t, snap.HasSession())
}

func TestLive_PollErrorPolicyStop(t *testing.T) {
	srv := testserver.New(t)
	srv.FailPlayers(503)
	s := newLiveStore(t, srv, WithPollErrorPolicy(poller.StopOnError))

	sess, err := s.CreateGame(context.Background(), "Alice")
	require.NoError(t, err)

	waitFor(t, s, "error surfaced", func(s Snapshot) bool {
		_, isErr := s.UI.(UIError)
		return isErr
	})
	time.Sleep(100 * time.Millisecond)
	assert.Equal(t, 1, srv.Hits("players/"+sess.GameID))
}
