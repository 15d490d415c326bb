package httpapi

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/Wardmisp/Bingo/internal/ws"
)

func SetupRoutes(st Store, logger *zap.Logger) http.Handler {
	r := chi.NewRouter()

	r.Get("/healthz", Healthz)
	r.Get("/state", State(st))
	r.Get("/qr", QRCode(st, logger))
	r.Get("/ws", ws.Handler(st, logger))
	return r
}
