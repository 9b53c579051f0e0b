package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/smartdevicelink/sdl-core-go/internal/requestctl"
)

// RequestsHandler exposes the request controller's worker-pool and
// rate-limit counters for operators watching for a stuck pool or a
// rate-limit threshold that needs retuning.
type RequestsHandler struct {
	ctl *requestctl.Controller
}

func NewRequestsHandler(ctl *requestctl.Controller) *RequestsHandler {
	return &RequestsHandler{ctl: ctl}
}

func (h *RequestsHandler) Routes(r chi.Router) {
	r.Get("/requests/stats", h.Stats)
}

func (h *RequestsHandler) Stats(w http.ResponseWriter, r *http.Request) {
	stats := h.ctl.Stats()
	WriteJSON(w, http.StatusOK, map[string]any{
		"completed":        stats.Completed,
		"failed":           stats.Failed,
		"tracked_requests": stats.Tracked,
	})
}
