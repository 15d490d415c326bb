package session

import (
	"github.com/Wardmisp/Bingo/internal/game"
	"github.com/Wardmisp/Bingo/internal/poller"
	"github.com/Wardmisp/Bingo/internal/stream"
)

// Msg is anything the store loop accepts. Only this package can add kinds.
type Msg interface{ isSessionMsg() }

type setLoading struct{}

func (setLoading) isSessionMsg() {}

// actionFailed puts a remote failure on the UI. When scoped, it only applies
// to the session epoch it was issued under.
type actionFailed struct {
	message string
	scoped  bool
	epoch   uint64
}

func (actionFailed) isSessionMsg() {}

type sessionStarted struct {
	session game.Session
	persist bool
	reply   chan struct{}
}

func (sessionStarted) isSessionMsg() {}

type rosterTick struct {
	tick poller.Tick
}

func (rosterTick) isSessionMsg() {}

type streamEvent struct {
	conn stream.Conn
	ev   stream.Event
}

func (streamEvent) isSessionMsg() {}

type streamState struct {
	conn  stream.Conn
	state stream.State
}

func (streamState) isSessionMsg() {}

type connectStream struct {
	reply chan connectResult
}

func (connectStream) isSessionMsg() {}

type connectResult struct {
	opened bool
	err    error
}

type disconnectStream struct {
	reply chan struct{}
}

func (disconnectStream) isSessionMsg() {}

type reconnectFire struct {
	token uint64
	epoch uint64
}

func (reconnectFire) isSessionMsg() {}

// cardLoaded carries a card read; seq orders reads by when they started.
type cardLoaded struct {
	epoch  uint64
	gameID string
	seq    uint64
	card   game.BingoCard
}

func (cardLoaded) isSessionMsg() {}

type launched struct {
	epoch uint64
}

func (launched) isSessionMsg() {}

type clearSession struct {
	reply chan error
}

func (clearSession) isSessionMsg() {}

type subscribe struct {
	id    string
	reply chan (<-chan Snapshot)
}

func (subscribe) isSessionMsg() {}

type unsubscribe struct{ id string }

func (unsubscribe) isSessionMsg() {}

type getState struct {
	reply chan Snapshot
}

func (getState) isSessionMsg() {}
