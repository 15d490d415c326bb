// Package types is the JSON protocol spoken over the local UI websocket.
//
// Client -> bridge
//
//	CreateGame:  name
//	JoinGame:    name, game_id
//	LaunchGame:  {}
//	FetchCard:   {}
//	ClickNumber: number
//	Connect:     {}
//	Leave:       {}
//
// Bridge -> client
//
//	Snapshot: version, state
//	Error:    error
package types

import (
	"github.com/Wardmisp/Bingo/internal/game"
	"github.com/Wardmisp/Bingo/internal/session"
)

type ClientMessage struct {
	Type   string `json:"type"`
	Name   string `json:"name,omitempty"`
	GameID string `json:"game_id,omitempty"`
	Number int    `json:"number,omitempty"`
}

type ServerMessage struct {
	Type    string     `json:"type"` // "Snapshot" | "Error"
	Version int        `json:"version,omitempty"`
	State   *StateView `json:"state,omitempty"`
	Error   string     `json:"error,omitempty"`
}

type SessionView struct {
	GameID   string `json:"game_id"`
	PlayerID string `json:"player_id"`
	IsHost   bool   `json:"is_host"`
}

type StateView struct {
	Session         *SessionView    `json:"session,omitempty"`
	UI              string          `json:"ui"` // "initial" | "loading" | "success" | "error"
	UIError         string          `json:"ui_error,omitempty"`
	Players         []game.Player   `json:"players"`
	GameStarted     bool            `json:"game_started"`
	Card            *game.BingoCard `json:"card,omitempty"`
	DrawnNumber     *int            `json:"drawn_number,omitempty"`
	StatusMessage   string          `json:"status_message,omitempty"`
	Connection      string          `json:"connection"`
	ConnectionError string          `json:"connection_error,omitempty"`
}

func FromSnapshot(s session.Snapshot) StateView {
	v := StateView{
		Players:       s.Players,
		GameStarted:   s.GameStarted,
		Card:          s.Card,
		DrawnNumber:   s.DrawnNumber,
		StatusMessage: s.StatusMessage,
		Connection:    s.Connection.Kind.String(),
	}
	if v.Players == nil {
		v.Players = []game.Player{}
	}
	if s.Connection.IsError() {
		v.ConnectionError = s.Connection.Message
	}
	if s.HasSession() {
		v.Session = &SessionView{GameID: s.Session.GameID, PlayerID: s.Session.PlayerID, IsHost: s.Session.IsHost}
	}

	switch ui := s.UI.(type) {
	case session.UILoading:
		v.UI = "loading"
	case session.UISuccess:
		v.UI = "success"
		v.Players = ui.Players
		if v.Players == nil {
			v.Players = []game.Player{}
		}
	case session.UIError:
		v.UI = "error"
		v.UIError = ui.Message
	default:
		v.UI = "initial"
	}
	return v
}
