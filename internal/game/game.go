package game

import (
	"bytes"
	"encoding/json"
	"errors"
	"slices"
)

var ErrBadDrawnNumber = errors.New("invalid drawn number")
var ErrNoSession = errors.New("no active session")
var ErrNoCard = errors.New("no bingo card loaded")

// MarkedCell is the value the server writes into a cell once it has been matched.
const MarkedCell = -1

// Session identifies this client's seat in one game.
type Session struct {
	GameID   string `json:"gameId"`
	PlayerID string `json:"playerId"`
	IsHost   bool   `json:"isHost"`
}

func (s Session) Valid() bool {
	return s.GameID != "" && s.PlayerID != ""
}

type Player struct {
	PlayerID    string `json:"playerId"`
	Name        string `json:"name"`
	GameID      string `json:"gameId"`
	IsHost      bool   `json:"isHost"`
	GameStarted bool   `json:"gameStarted"`
}

// Registration is what create-game and join-game hand back.
type Registration struct {
	Status   string `json:"status"`
	Message  string `json:"message"`
	PlayerID string `json:"playerId"`
	GameID   string `json:"gameId"`
}

// Cell is one square of a card: a number, the marked sentinel, or a free space.
type Cell struct {
	Number int
	Free   bool
}

func NumberCell(n int) Cell { return Cell{Number: n} }

func FreeCell() Cell { return Cell{Free: true} }

func (c Cell) Marked() bool {
	return !c.Free && c.Number == MarkedCell
}

func (c Cell) MarshalJSON() ([]byte, error) {
	if c.Free {
		return []byte("null"), nil
	}
	return json.Marshal(c.Number)
}

func (c *Cell) UnmarshalJSON(b []byte) error {
	if bytes.Equal(bytes.TrimSpace(b), []byte("null")) {
		*c = FreeCell()
		return nil
	}
	var n int
	if err := json.Unmarshal(b, &n); err != nil {
		return err
	}
	*c = NumberCell(n)
	return nil
}

type BingoCard struct {
	CardID string   `json:"cardId,omitempty"`
	Grid   [][]Cell `json:"card"`
}

// Contains reports whether n is still an unmarked number on the card.
func (c BingoCard) Contains(n int) bool {
	if n == MarkedCell {
		return false
	}
	for _, row := range c.Grid {
		if slices.Contains(row, NumberCell(n)) {
			return true
		}
	}
	return false
}

func (c BingoCard) Clone() BingoCard {
	out := BingoCard{CardID: c.CardID, Grid: make([][]Cell, len(c.Grid))}
	for i, row := range c.Grid {
		out.Grid[i] = slices.Clone(row)
	}
	return out
}
