package httpapi

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/planningdeck/poker-backend/internal/hub"
	"github.com/planningdeck/poker-backend/internal/store"
	"github.com/planningdeck/poker-backend/internal/ws"
)

func pathParam(r *http.Request, name string) string {
	return chi.URLParam(r, name)
}

func SetupRoutes(h *hub.Hub, st store.Store, log *zap.Logger, originPatterns []string) http.Handler {
	a := &api{hub: h, store: st, log: log}

	r := chi.NewRouter()
	r.Post("/sessions", a.createSession)
	r.Get("/sessions", a.listSessions)
	r.Get("/sessions/{code}", a.getSessionByCode)
	r.Delete("/sessions/{id}", a.deleteSession)
	r.Get("/saves", a.listSaves)
	r.Post("/sessions/resume", a.resumeSession)
	r.Get("/healthz", healthz)
	r.Get("/ws", ws.Handler(h, log, originPatterns))
	return r
}
