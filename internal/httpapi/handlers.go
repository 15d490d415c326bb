package httpapi

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/skip2/go-qrcode"
	"go.uber.org/zap"

	"github.com/Wardmisp/Bingo/internal/session"
	"github.com/Wardmisp/Bingo/internal/types"
	"github.com/Wardmisp/Bingo/internal/ws"
)

const qrSize = 256

// Store is everything the HTTP surface needs from the session store.
type Store interface {
	ws.Store
	View(ctx context.Context) (session.Snapshot, error)
}

func State(st Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		snap, err := st.View(r.Context())
		if err != nil {
			http.Error(w, err.Error(), http.StatusServiceUnavailable)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(types.ServerMessage{
			Type:    "Snapshot",
			Version: snap.Version,
			State:   ptr(types.FromSnapshot(snap)),
		})
	}
}

// QRCode renders the current game id so another player can scan it to join.
func QRCode(st Store, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		snap, err := st.View(r.Context())
		if err != nil {
			http.Error(w, err.Error(), http.StatusServiceUnavailable)
			return
		}
		if !snap.HasSession() {
			http.Error(w, "no active game", http.StatusNotFound)
			return
		}

		png, err := qrcode.Encode(snap.Session.GameID, qrcode.Medium, qrSize)
		if err != nil {
			logger.Error("qr encode failed", zap.Error(err))
			http.Error(w, "failed to render code", http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "image/png")
		w.Header().Set("Cache-Control", "no-store")
		_, _ = w.Write(png)
	}
}

func Healthz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
}

func ptr[T any](v T) *T { return &v }
