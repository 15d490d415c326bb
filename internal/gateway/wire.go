package gateway

import (
	"encoding/json"
	"fmt"

	"github.com/Wardmisp/Bingo/internal/game"
)

// flexID accepts ids sent either as JSON strings or JSON numbers.
type flexID string

func (id *flexID) UnmarshalJSON(b []byte) error {
	if string(b) == "null" {
		*id = ""
		return nil
	}
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*id = flexID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return fmt.Errorf("id must be a string or number: %w", err)
	}
	*id = flexID(n.String())
	return nil
}

type registrationRequest struct {
	Name   string `json:"name"`
	GameID string `json:"gameId,omitempty"`
}

type registrationWire struct {
	Status   string `json:"status"`
	Message  string `json:"message"`
	PlayerID flexID `json:"playerId"`
	GameID   flexID `json:"gameId"`
}

func (w registrationWire) toGame() game.Registration {
	return game.Registration{
		Status:   w.Status,
		Message:  w.Message,
		PlayerID: string(w.PlayerID),
		GameID:   string(w.GameID),
	}
}

type playerWire struct {
	PlayerID    flexID `json:"playerId"`
	Name        string `json:"name"`
	GameID      flexID `json:"gameId"`
	GameStarted bool   `json:"gameStarted"`
	IsHost      bool   `json:"isHost"`
}

func (w playerWire) toGame() game.Player {
	return game.Player{
		PlayerID:    string(w.PlayerID),
		Name:        w.Name,
		GameID:      string(w.GameID),
		IsHost:      w.IsHost,
		GameStarted: w.GameStarted,
	}
}

type cardWire struct {
	CardID flexID        `json:"cardId"`
	Card   [][]game.Cell `json:"card"`
}

type errorWire struct {
	Message string `json:"message"`
	Error   string `json:"error"`
}
