package handler

import (
	"log/slog"
	"net/http"

	"github.com/givers/message-service/internal/logging"
)

type healthResponse struct {
	Status  string `json:"status"`
	Service string `json:"service"`
}

// Health handles GET /health. It reports liveness only.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, healthResponse{
		Status:  "healthy",
		Service: logging.ServiceName,
	})
}

// Ready handles GET /health/ready and fails with 503 while the store is unreachable.
func (h *Handler) Ready(w http.ResponseWriter, r *http.Request) {
	if err := h.db.Ping(r.Context()); err != nil {
		slog.Warn("readiness check failed", "error", err)
		writeJSON(w, http.StatusServiceUnavailable, healthResponse{
			Status:  "unavailable",
			Service: logging.ServiceName,
		})
		return
	}
	writeJSON(w, http.StatusOK, healthResponse{
		Status:  "ready",
		Service: logging.ServiceName,
	})
}
