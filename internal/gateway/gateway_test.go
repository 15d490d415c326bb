package gateway

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Wardmisp/Bingo/internal/game"
	"github.com/Wardmisp/Bingo/internal/testserver"
)

func TestGateway_CreateJoinAndFetchPlayers(t *testing.T) {
	srv := testserver.New(t)
	gw := New(srv.URL)
	ctx := context.Background()

	host, err := gw.CreateGame(ctx, "Alice")
	require.NoError(t, err)
	assert.NotEmpty(t, host.GameID)
	assert.NotEmpty(t, host.PlayerID, "numeric player ids must decode")

	guest, err := gw.JoinGame(ctx, "Bob", host.GameID)
	require.NoError(t, err)
	assert.Equal(t, host.GameID, guest.GameID)

	players, err := gw.FetchPlayers(ctx, host.GameID)
	require.NoError(t, err)
	require.Len(t, players, 2)
	assert.Equal(t, game.Player{PlayerID: host.PlayerID, Name: "Alice", GameID: host.GameID, IsHost: true}, players[0])
	assert.Equal(t, "Bob", players[1].Name)
	assert.False(t, players[1].IsHost)
}

func TestGateway_JoinConflictNamesThePlayer(t *testing.T) {
	srv := testserver.New(t)
	srv.AddGame("99", "Bob")
	gw := New(srv.URL)

	_, err := gw.JoinGame(context.Background(), "Bob", "99")
	require.Error(t, err)

	var dup *DuplicateNameError
	require.ErrorAs(t, err, &dup)
	assert.Equal(t, "Bob", dup.Name)
	assert.Contains(t, err.Error(), "Bob")
	assert.Contains(t, err.Error(), "already exists")
}

func TestGateway_APIErrorCarriesStatus(t *testing.T) {
	srv := testserver.New(t)
	gw := New(srv.URL)

	_, err := gw.JoinGame(context.Background(), "Carol", "does-not-exist")

	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusNotFound, apiErr.StatusCode)
	assert.Equal(t, "API error: 404 - game not found", err.Error())
}

func TestGateway_NetworkError(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	gw := New(url)
	_, err := gw.FetchPlayers(context.Background(), "42")

	var netErr *NetworkError
	require.ErrorAs(t, err, &netErr)
	assert.Equal(t, "fetch-players", netErr.Op)
	assert.Contains(t, err.Error(), "network error")
}

func TestGateway_EmptyAndBadBodies(t *testing.T) {
	cases := []struct {
		name string
		body string
		call func(*Gateway) error
	}{
		{
			name: "create with no body",
			body: "",
			call: func(g *Gateway) error { _, err := g.CreateGame(context.Background(), "A"); return err },
		},
		{
			name: "create without ids",
			body: `{"status":"success","message":"ok"}`,
			call: func(g *Gateway) error { _, err := g.CreateGame(context.Background(), "A"); return err },
		},
		{
			name: "players null",
			body: "null",
			call: func(g *Gateway) error { _, err := g.FetchPlayers(context.Background(), "1"); return err },
		},
		{
			name: "card not json",
			body: "<html>",
			call: func(g *Gateway) error { _, err := g.FetchBingoCardByCardID(context.Background(), "c"); return err },
		},
		{
			name: "card without grid",
			body: `{"cardId":"c"}`,
			call: func(g *Gateway) error { _, err := g.FetchBingoCard(context.Background(), "1", "2"); return err },
		},
		{
			name: "click without flag",
			body: "",
			call: func(g *Gateway) error { _, err := g.ClickNumber(context.Background(), 3, "c"); return err },
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				_, _ = w.Write([]byte(tc.body))
			}))
			defer srv.Close()

			err := tc.call(New(srv.URL))
			assert.True(t, errors.Is(err, ErrEmptyResponse), "want ErrEmptyResponse, got %v", err)
		})
	}
}

func TestGateway_CardClickAndRefetch(t *testing.T) {
	srv := testserver.New(t)
	pid := srv.AddGame("42", "Alice")
	cardID := srv.SetCard("42", pid, [][]int{{1, 2, 3}, {4, 5, 6}, {7, 8, 9}})
	gw := New(srv.URL)
	ctx := context.Background()

	card, err := gw.FetchBingoCard(ctx, "42", pid)
	require.NoError(t, err)
	assert.Equal(t, cardID, card.CardID)
	assert.True(t, card.Contains(5))

	ok, err := gw.ClickNumber(ctx, 5, cardID)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = gw.ClickNumber(ctx, 25, cardID)
	require.NoError(t, err)
	assert.False(t, ok)

	again, err := gw.FetchBingoCardByCardID(ctx, cardID)
	require.NoError(t, err)
	assert.True(t, again.Grid[1][1].Marked())
	assert.False(t, again.Contains(5))
}

func TestGateway_LaunchGame(t *testing.T) {
	srv := testserver.New(t)
	srv.AddGame("42", "Alice")
	gw := New(srv.URL)
	ctx := context.Background()

	require.NoError(t, gw.LaunchGame(ctx, "42"))

	players, err := gw.FetchPlayers(ctx, "42")
	require.NoError(t, err)
	assert.True(t, game.DeriveStarted(players))

	var apiErr *APIError
	require.ErrorAs(t, gw.LaunchGame(ctx, "nope"), &apiErr)
}

func TestGateway_RemovePlayerIsAStub(t *testing.T) {
	srv := testserver.New(t)
	gw := New(srv.URL)

	err := gw.RemovePlayer(context.Background(), "42", "1")
	assert.ErrorIs(t, err, ErrNotImplemented)
	assert.Zero(t, srv.Hits("remove-player"), "stub must not reach the server")
}

func TestGateway_Timeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(time.Second):
		}
	}))
	defer srv.Close()

	gw := New(srv.URL, WithTimeout(50*time.Millisecond))
	_, err := gw.FetchPlayers(context.Background(), "42")

	var netErr *NetworkError
	require.ErrorAs(t, err, &netErr)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestFlexID(t *testing.T) {
	cases := map[string]string{`"abc"`: "abc", `12`: "12", `null`: ""}
	for raw, want := range cases {
		var id flexID
		require.NoError(t, id.UnmarshalJSON([]byte(raw)))
		assert.Equal(t, want, string(id))
	}
	var id flexID
	assert.Error(t, id.UnmarshalJSON([]byte(`true`)))
}
