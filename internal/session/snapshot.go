package session

import (
	"github.com/Wardmisp/Bingo/internal/game"
	"github.com/Wardmisp/Bingo/internal/stream"
)

// UIState is what the roster view should show. Exactly one of UIInitial,
// UILoading, UISuccess or UIError holds at a time.
type UIState interface{ isUIState() }

type UIInitial struct{}

type UILoading struct{}

type UISuccess struct {
	Players []game.Player
}

type UIError struct {
	Message string
}

func (UIInitial) isUIState() {}
func (UILoading) isUIState() {}
func (UISuccess) isUIState() {}
func (UIError) isUIState()   {}

// Snapshot is an immutable copy of the store, published after every change.
type Snapshot struct {
	Version int
	Session game.Session
	UI      UIState
	// Players is the last successful roster. It survives a failed poll.
	Players       []game.Player
	GameStarted   bool
	Card          *game.BingoCard
	DrawnNumber   *int
	StatusMessage string
	Connection    stream.State
	StreamGameID  string

	epoch uint64
}

func (s Snapshot) HasSession() bool { return s.Session.Valid() }
