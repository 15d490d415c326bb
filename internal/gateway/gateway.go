package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/Wardmisp/Bingo/internal/game"
)

const (
	DefaultTimeout  = 10 * time.Second
	maxErrorBody    = 4 << 10
	maxResponseBody = 1 << 20
)

type Option func(*Gateway)

func WithHTTPClient(c *http.Client) Option {
	return func(g *Gateway) { g.client = c }
}

func WithLogger(l *zap.Logger) Option {
	return func(g *Gateway) { g.logger = l }
}

func WithTimeout(d time.Duration) Option {
	return func(g *Gateway) { g.timeout = d }
}

// Gateway performs the remote game operations against the bingo server.
// Every call is a single request/response.
type Gateway struct {
	baseURL string
	client  *http.Client
	logger  *zap.Logger
	timeout time.Duration
}

func New(baseURL string, opts ...Option) *Gateway {
	g := &Gateway{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{},
		logger:  zap.NewNop(),
		timeout: DefaultTimeout,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

func (g *Gateway) CreateGame(ctx context.Context, playerName string) (game.Registration, error) {
	return g.register(ctx, "create-game", registrationRequest{Name: playerName})
}

func (g *Gateway) JoinGame(ctx context.Context, playerName, gameID string) (game.Registration, error) {
	return g.register(ctx, "join-game", registrationRequest{Name: playerName, GameID: gameID})
}

func (g *Gateway) register(ctx context.Context, op string, req registrationRequest) (game.Registration, error) {
	var out registrationWire
	err := g.do(ctx, op, http.MethodPost, "/"+op, req, &out)

	var apiErr *APIError
	if errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusConflict {
		return game.Registration{}, &DuplicateNameError{Name: req.Name, GameID: req.GameID}
	}
	if err != nil {
		return game.Registration{}, err
	}

	reg := out.toGame()
	if reg.GameID == "" || reg.PlayerID == "" {
		return game.Registration{}, fmt.Errorf("%s: %w: missing registration data", op, ErrEmptyResponse)
	}
	return reg, nil
}

func (g *Gateway) FetchPlayers(ctx context.Context, gameID string) ([]game.Player, error) {
	var out []playerWire
	if err := g.do(ctx, "fetch-players", http.MethodGet, "/players/"+url.PathEscape(gameID), nil, &out); err != nil {
		return nil, err
	}

	players := make([]game.Player, 0, len(out))
	for _, p := range out {
		players = append(players, p.toGame())
	}
	return players, nil
}

func (g *Gateway) FetchBingoCard(ctx context.Context, gameID, playerID string) (game.BingoCard, error) {
	path := "/player-card/" + url.PathEscape(gameID) + "/" + url.PathEscape(playerID)
	return g.fetchCard(ctx, "fetch-card", path)
}

func (g *Gateway) FetchBingoCardByCardID(ctx context.Context, cardID string) (game.BingoCard, error) {
	return g.fetchCard(ctx, "fetch-card-by-id", "/player-card/"+url.PathEscape(cardID))
}

func (g *Gateway) fetchCard(ctx context.Context, op, path string) (game.BingoCard, error) {
	var out cardWire
	if err := g.do(ctx, op, http.MethodGet, path, nil, &out); err != nil {
		return game.BingoCard{}, err
	}
	if out.Card == nil {
		return game.BingoCard{}, fmt.Errorf("%s: %w: missing card grid", op, ErrEmptyResponse)
	}
	return game.BingoCard{CardID: string(out.CardID), Grid: out.Card}, nil
}

// ClickNumber asks the server to mark number on the card. The card is not
// re-fetched here.
func (g *Gateway) ClickNumber(ctx context.Context, number int, cardID string) (bool, error) {
	path := "/player-card/" + url.PathEscape(cardID) + "/" + strconv.Itoa(number)
	var accepted *bool
	if err := g.do(ctx, "click-number", http.MethodPost, path, nil, &accepted); err != nil {
		return false, err
	}
	if accepted == nil {
		return false, fmt.Errorf("click-number: %w", ErrEmptyResponse)
	}
	return *accepted, nil
}

// LaunchGame starts the round server-side. Host-ness is not checked locally;
// the server decides.
func (g *Gateway) LaunchGame(ctx context.Context, gameID string) error {
	return g.do(ctx, "launch-game", http.MethodPost, "/launch-game/"+url.PathEscape(gameID), nil, nil)
}

// RemovePlayer is not wired on the server side yet.
func (g *Gateway) RemovePlayer(ctx context.Context, gameID, playerID string) error {
	return fmt.Errorf("remove-player: %w", ErrNotImplemented)
}

func (g *Gateway) do(ctx context.Context, op, method, path string, in, out any) error {
	if g.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, g.timeout)
		defer cancel()
	}

	var body io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("%s: encode request: %w", op, err)
		}
		body = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, g.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("%s: build request: %w", op, err)
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	start := time.Now()
	resp, err := g.client.Do(req)
	if err != nil {
		g.logger.Debug("request failed", zap.String("op", op), zap.Error(err))
		return &NetworkError{Op: op, Err: err}
	}
	defer resp.Body.Close()

	g.logger.Debug("request done",
		zap.String("op", op),
		zap.Int("status", resp.StatusCode),
		zap.Duration("took", time.Since(start)),
	)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &APIError{Op: op, StatusCode: resp.StatusCode, Message: errorMessage(resp)}
	}
	if out == nil {
		return nil
	}

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBody))
	if err != nil {
		return &NetworkError{Op: op, Err: err}
	}
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return fmt.Errorf("%s: %w", op, ErrEmptyResponse)
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("%s: %w: %v", op, ErrEmptyResponse, err)
	}
	return nil
}

func errorMessage(resp *http.Response) string {
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	var ew errorWire
	if json.Unmarshal(raw, &ew) == nil {
		if ew.Message != "" {
			return ew.Message
		}
		if ew.Error != "" {
			return ew.Error
		}
	}
	if text := http.StatusText(resp.StatusCode); text != "" {
		return text
	}
	return strings.TrimSpace(string(raw))
}
