package api

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"github.com/adfharrison1/go-db-bulk/pkg/domain"
)

// HandleFindAll handles GET requests to find documents with filter criteria.
// The limit and offset query parameters page the result; every other
// parameter is an equality filter.
func (h *Handler) HandleFindAll(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	collName := vars["coll"]

	options := domain.DefaultPaginationOptions()
	filter := make(map[string]interface{})

	for key, values := range r.URL.Query() {
		if len(values) == 0 {
			continue
		}
		value := values[0]

		switch key {
		case "limit", "offset":
			n, err := strconv.Atoi(value)
			if err != nil {
				WriteJSONError(w, http.StatusBadRequest, "invalid "+key+": "+value)
				return
			}
			if key == "limit" {
				options.Limit = n
			} else {
				options.Offset = n
			}
		default:
			// Numbers compare by printed value, so 30 and 30.0 both match
			if num, err := strconv.ParseFloat(value, 64); err == nil {
				filter[key] = num
			} else {
				filter[key] = value
			}
		}
	}

	if err := options.Validate(); err != nil {
		WriteJSONError(w, http.StatusBadRequest, err.Error())
		return
	}

	result, err := h.reader.FindAll(collName, filter, options)
	if err != nil {
		h.logger.Error().Err(err).Str("collection", collName).Msg("find failed")
		WriteJSONError(w, http.StatusInternalServerError, err.Error())
		return
	}

	h.logger.Debug().
		Str("collection", collName).
		Int("returned", len(result.Documents)).
		Int64("total", result.Total).
		Interface("filter", filter).
		Msg("find")

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(result)
}
