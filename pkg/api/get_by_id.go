package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/adfharrison1/go-db-bulk/pkg/domain"
)

// HandleGetById handles GET requests to retrieve a specific document by ID
func (h *Handler) HandleGetById(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	collName := vars["coll"]
	docId := vars["id"]

	doc, err := h.reader.GetById(collName, docId)
	if errors.Is(err, domain.ErrNotFound) {
		h.logger.Debug().Str("collection", collName).Str("id", docId).Msg("document not found")
		WriteJSONError(w, http.StatusNotFound, err.Error())
		return
	}
	if err != nil {
		h.logger.Error().Err(err).Str("collection", collName).Str("id", docId).Msg("get by id failed")
		WriteJSONError(w, http.StatusInternalServerError, err.Error())
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(doc)
}
