// Package persist keeps the resumable part of a session ({gameId, playerId})
// across restarts.
package persist

import (
	"context"
	"errors"
	"sync"
)

var ErrInvalidRecord = errors.New("saved session needs a game id and a player id")

type Record struct {
	GameID   string `json:"gameId"`
	PlayerID string `json:"playerId"`
	IsHost   bool   `json:"isHost"`
}

func (r Record) validate() error {
	if r.GameID == "" || r.PlayerID == "" {
		return ErrInvalidRecord
	}
	return nil
}

// Keeper stores at most one Record.
type Keeper interface {
	Save(ctx context.Context, r Record) error
	Load(ctx context.Context) (Record, bool, error)
	Clear(ctx context.Context) error
}

type Memory struct {
	mu  sync.Mutex
	rec *Record
}

func NewMemory() *Memory { return &Memory{} }

func (m *Memory) Save(_ context.Context, r Record) error {
	if err := r.validate(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rec = &r
	return nil
}

func (m *Memory) Load(_ context.Context) (Record, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.rec == nil {
		return Record{}, false, nil
	}
	return *m.rec, true, nil
}

func (m *Memory) Clear(_ context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rec = nil
	return nil
}
