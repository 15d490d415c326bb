package ws

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/coder/websocket"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/Wardmisp/Bingo/internal/game"
	"github.com/Wardmisp/Bingo/internal/session"
	"github.com/Wardmisp/Bingo/internal/types"
)

const (
	writeTimeout = 3 * time.Second
	readTimeout  = 2 * time.Minute
)

var errUnknownType = errors.New("unknown type")

// Store is the part of the session store a UI socket drives.
type Store interface {
	Subscribe(ctx context.Context, id string) (<-chan session.Snapshot, error)
	Unsubscribe(id string)
	CreateGame(ctx context.Context, playerName string) (game.Session, error)
	JoinGame(ctx context.Context, playerName, gameID string) (game.Session, error)
	LaunchGame(ctx context.Context) error
	FetchBingoCard(ctx context.Context) (game.BingoCard, error)
	ClickNumber(ctx context.Context, number int) (bool, error)
	ConnectToBingoStream(ctx context.Context) (bool, error)
	Leave(ctx context.Context) error
}

func Handler(st Store, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
			OriginPatterns: []string{"localhost:*", "127.0.0.1:*"},
		})
		if err != nil {
			logger.Debug("websocket accept failed", zap.Error(err))
			return
		}
		defer conn.Close(websocket.StatusNormalClosure, "bye")

		clientID := uuid.NewString()
		log := logger.With(zap.String("client_id", clientID))

		snaps, err := st.Subscribe(r.Context(), clientID)
		if err != nil {
			conn.Close(websocket.StatusInternalError, "session store unavailable")
			return
		}
		defer st.Unsubscribe(clientID)
		log.Debug("ui client connected")

		// Writer goroutine
		writeCtx, writeCancel := context.WithCancel(r.Context())
		defer writeCancel()
		go func() {
			for snap := range snaps {
				view := types.FromSnapshot(snap)
				send(writeCtx, conn, types.ServerMessage{Type: "Snapshot", Version: snap.Version, State: &view})
			}
		}()

		// Reader loop
		for {
			ctx, cancel := context.WithTimeout(r.Context(), readTimeout)
			_, data, err := conn.Read(ctx)
			cancel()
			if err != nil {
				switch websocket.CloseStatus(err) {
				case websocket.StatusNormalClosure, websocket.StatusGoingAway:
					log.Debug("ui client left")
				default:
					log.Debug("ui client dropped", zap.Error(err))
				}
				return
			}

			var cm types.ClientMessage
			if err := json.Unmarshal(data, &cm); err != nil {
				send(r.Context(), conn, types.ServerMessage{Type: "Error", Error: "bad json"})
				continue
			}

			if err := dispatch(r.Context(), st, cm); err != nil {
				log.Debug("ui action failed", zap.String("type", cm.Type), zap.Error(err))
				send(r.Context(), conn, types.ServerMessage{Type: "Error", Error: err.Error()})
			}
		}
	}
}

func dispatch(ctx context.Context, st Store, m types.ClientMessage) error {
	var err error
	switch m.Type {
	case "CreateGame":
		_, err = st.CreateGame(ctx, m.Name)
	case "JoinGame":
		_, err = st.JoinGame(ctx, m.Name, m.GameID)
	case "LaunchGame":
		err = st.LaunchGame(ctx)
	case "FetchCard":
		_, err = st.FetchBingoCard(ctx)
	case "ClickNumber":
		_, err = st.ClickNumber(ctx, m.Number)
	case "Connect":
		_, err = st.ConnectToBingoStream(ctx)
	case "Leave":
		err = st.Leave(ctx)
	default:
		err = errUnknownType
	}
	return err
}

func send(ctx context.Context, conn *websocket.Conn, msg types.ServerMessage) {
	payload, err := json.Marshal(msg)
	if err != nil {
		return
	}
	ctx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()
	_ = conn.Write(ctx, websocket.MessageText, payload)
}
