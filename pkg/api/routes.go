package api

import (
	"github.com/gorilla/mux"
)

// RegisterRoutes registers all API routes with the given router
func (h *Handler) RegisterRoutes(router *mux.Router) {
	router.HandleFunc("/health", h.HandleHealth).Methods("GET")

	// Bulk writes
	router.HandleFunc("/collections/{coll}/bulk", h.HandleBulkWrite).Methods("POST")

	// Reads
	router.HandleFunc("/collections/{coll}/documents/{id}", h.HandleGetById).Methods("GET")
	router.HandleFunc("/collections/{coll}/find", h.HandleFindAll).Methods("GET")
}
