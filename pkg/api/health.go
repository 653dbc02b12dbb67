package api

import (
	"net/http"
)

// HealthResponse represents the health check response
type HealthResponse struct {
	Status       string `json:"status"`
	MaxBatchSize int    `json:"max_batch_size"`
}

// HandleHealth reports liveness and the backend's per-batch cap
func (h *Handler) HandleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, HealthResponse{
		Status:       "healthy",
		MaxBatchSize: h.conn.MaxBatchSize(),
	})
}
