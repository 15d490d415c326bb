// Package testserver is an in-process bingo server for tests. It speaks the
// same HTTP and event-stream protocol as the real game server.
package testserver

import (
	"encoding/json"
	"fmt"
	"math/rand"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
)

type player struct {
	id     int
	name   string
	isHost bool
}

type card struct {
	id   string
	grid [][]int
}

type gameState struct {
	id      string
	started bool
	players []*player
	cards   map[int]*card // by player id
}

type Server struct {
	*httptest.Server

	mu          sync.Mutex
	games       map[string]*gameState
	cards       map[string]*card
	nextGame    int
	nextPlayer  int
	hits        map[string]int
	failPlayers int
	streams     map[string]map[chan string]struct{}
}

// New starts a server that is shut down when the test ends.
func New(t testing.TB) *Server {
	t.Helper()
	s := &Server{
		games:    make(map[string]*gameState),
		cards:    make(map[string]*card),
		nextGame: 100000,
		hits:     make(map[string]int),
		streams:  make(map[string]map[chan string]struct{}),
	}
	s.Server = httptest.NewServer(s.routes())
	t.Cleanup(s.shutdown)
	return s
}

func (s *Server) routes() http.Handler {
	r := chi.NewRouter()
	r.Post("/create-game", s.createGame)
	r.Post("/join-game", s.joinGame)
	r.Get("/players/{gameId}", s.players)
	r.Delete("/players/{gameId}/{playerId}", s.removePlayer)
	r.Get("/player-card/{gameId}/{playerId}", s.playerCard)
	r.Get("/player-card/{cardId}", s.cardByID)
	r.Post("/player-card/{cardId}/{number}", s.clickNumber)
	r.Post("/launch-game/{gameId}", s.launchGame)
	r.Get("/bingo-stream/{gameId}", s.bingoStream)
	return r
}

func (s *Server) shutdown() {
	s.mu.Lock()
	for id, subs := range s.streams {
		for ch := range subs {
			close(ch)
		}
		delete(s.streams, id)
	}
	s.mu.Unlock()
	s.Close()
}

// Hits counts requests by route key, e.g. "players/42" or "bingo-stream/42".
func (s *Server) Hits(key string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.hits[key]
}

// FailPlayers makes the roster endpoint answer with status. Zero restores it.
func (s *Server) FailPlayers(status int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failPlayers = status
}

// AddGame registers a game with the given host and returns the host's player id.
func (s *Server) AddGame(gameID, hostName string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	g := &gameState{id: gameID, cards: make(map[int]*card)}
	s.games[gameID] = g
	return strconv.Itoa(s.addPlayer(g, hostName, true).id)
}

// SetCard fixes the card a player receives.
func (s *Server) SetCard(gameID, playerID string, grid [][]int) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	g := s.games[gameID]
	pid, _ := strconv.Atoi(playerID)
	c := &card{id: uuid.NewString(), grid: grid}
	g.cards[pid] = c
	s.cards[c.id] = c
	return c.id
}

// StartGame flips the started flag as launch-game would.
func (s *Server) StartGame(gameID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if g := s.games[gameID]; g != nil {
		g.started = true
	}
}

// Push sends one frame to every open stream of gameID and reports how many got it.
func (s *Server) Push(gameID, event, data string) int {
	frame := fmt.Sprintf("event: %s\ndata: %s\n\n", event, data)
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for ch := range s.streams[gameID] {
		select {
		case ch <- frame:
			n++
		default:
		}
	}
	return n
}

// Streams reports how many streams are open for gameID.
func (s *Server) Streams(gameID string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.streams[gameID])
}

// DropStreams ends every open stream of gameID from the server side.
func (s *Server) DropStreams(gameID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for ch := range s.streams[gameID] {
		close(ch)
	}
	delete(s.streams, gameID)
}

func (s *Server) hit(key string) {
	s.mu.Lock()
	s.hits[key]++
	s.mu.Unlock()
}

func (s *Server) addPlayer(g *gameState, name string, host bool) *player {
	s.nextPlayer++
	p := &player{id: s.nextPlayer, name: name, isHost: host}
	g.players = append(g.players, p)
	return p
}

type registration struct {
	Name   string `json:"name"`
	GameID string `json:"gameId"`
}

func (s *Server) createGame(w http.ResponseWriter, r *http.Request) {
	s.hit("create-game")
	var req registration
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || strings.TrimSpace(req.Name) == "" {
		writeError(w, http.StatusBadRequest, "name is required")
		return
	}

	s.mu.Lock()
	s.nextGame++
	g := &gameState{id: strconv.Itoa(s.nextGame), cards: make(map[int]*card)}
	s.games[g.id] = g
	p := s.addPlayer(g, req.Name, true)
	s.mu.Unlock()

	writeJSON(w, http.StatusCreated, map[string]any{
		"status":   "success",
		"message":  "game created",
		"playerId": p.id,
		"gameId":   g.id,
	})
}

func (s *Server) joinGame(w http.ResponseWriter, r *http.Request) {
	s.hit("join-game")
	var req registration
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || strings.TrimSpace(req.Name) == "" {
		writeError(w, http.StatusBadRequest, "name is required")
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	g := s.games[req.GameID]
	if g == nil {
		writeError(w, http.StatusNotFound, "game not found")
		return
	}
	for _, p := range g.players {
		if p.name == req.Name {
			writeError(w, http.StatusConflict, "player already exists")
			return
		}
	}
	p := s.addPlayer(g, req.Name, false)

	writeJSON(w, http.StatusCreated, map[string]any{
		"status":   "success",
		"message":  "joined",
		"playerId": p.id,
		"gameId":   g.id,
	})
}

func (s *Server) players(w http.ResponseWriter, r *http.Request) {
	gameID := chi.URLParam(r, "gameId")
	s.hit("players/" + gameID)

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failPlayers != 0 {
		writeError(w, s.failPlayers, "roster unavailable")
		return
	}
	g := s.games[gameID]
	if g == nil {
		writeError(w, http.StatusNotFound, "game not found")
		return
	}

	out := make([]map[string]any, 0, len(g.players))
	for _, p := range g.players {
		out = append(out, map[string]any{
			"playerId":    strconv.Itoa(p.id),
			"name":        p.name,
			"gameId":      g.id,
			"gameStarted": g.started,
			"isHost":      p.isHost,
		})
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) removePlayer(w http.ResponseWriter, r *http.Request) {
	s.hit("remove-player")
	writeError(w, http.StatusNotImplemented, "not implemented")
}

func (s *Server) playerCard(w http.ResponseWriter, r *http.Request) {
	gameID := chi.URLParam(r, "gameId")
	s.hit("player-card/" + gameID)
	pid, err := strconv.Atoi(chi.URLParam(r, "playerId"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "bad player id")
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	g := s.games[gameID]
	if g == nil {
		writeError(w, http.StatusNotFound, "game not found")
		return
	}
	c := g.cards[pid]
	if c == nil {
		c = &card{id: uuid.NewString(), grid: randomGrid()}
		g.cards[pid] = c
		s.cards[c.id] = c
	}
	writeJSON(w, http.StatusOK, map[string]any{"cardId": c.id, "card": c.grid})
}

func (s *Server) cardByID(w http.ResponseWriter, r *http.Request) {
	s.hit("player-card")
	s.mu.Lock()
	defer s.mu.Unlock()
	c := s.cards[chi.URLParam(r, "cardId")]
	if c == nil {
		writeError(w, http.StatusNotFound, "card not found")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"cardId": c.id, "card": c.grid})
}

func (s *Server) clickNumber(w http.ResponseWriter, r *http.Request) {
	s.hit("click")
	n, err := strconv.Atoi(chi.URLParam(r, "number"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "bad number")
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	c := s.cards[chi.URLParam(r, "cardId")]
	if c == nil {
		writeError(w, http.StatusNotFound, "card not found")
		return
	}
	for _, row := range c.grid {
		for i, v := range row {
			if v == n {
				row[i] = -1
				writeJSON(w, http.StatusOK, true)
				return
			}
		}
	}
	writeJSON(w, http.StatusOK, false)
}

func (s *Server) launchGame(w http.ResponseWriter, r *http.Request) {
	gameID := chi.URLParam(r, "gameId")
	s.hit("launch-game/" + gameID)

	s.mu.Lock()
	defer s.mu.Unlock()
	g := s.games[gameID]
	if g == nil {
		writeError(w, http.StatusNotFound, "game not found")
		return
	}
	g.started = true
	writeJSON(w, http.StatusOK, map[string]string{"status": "success"})
}

func (s *Server) bingoStream(w http.ResponseWriter, r *http.Request) {
	gameID := chi.URLParam(r, "gameId")
	s.hit("bingo-stream/" + gameID)

	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	ch := make(chan string, 16)
	s.mu.Lock()
	if s.streams[gameID] == nil {
		s.streams[gameID] = make(map[chan string]struct{})
	}
	s.streams[gameID][ch] = struct{}{}
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		if subs := s.streams[gameID]; subs != nil {
			delete(subs, ch)
		}
		s.mu.Unlock()
	}()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	for {
		select {
		case <-r.Context().Done():
			return
		case frame, ok := <-ch:
			if !ok {
				return
			}
			fmt.Fprint(w, frame)
			flusher.Flush()
		}
	}
}

// randomGrid deals a 3x3 card from 1..25.
func randomGrid() [][]int {
	nums := rand.Perm(25)[:9]
	grid := make([][]int, 3)
	for i := range grid {
		grid[i] = make([]int, 3)
		for j := range grid[i] {
			grid[i][j] = nums[i*3+j] + 1
		}
	}
	return grid
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"status": "error", "message": msg})
}
