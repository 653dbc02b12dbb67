package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/google/uuid"
	"github.com/gorilla/mux"

	"github.com/adfharrison1/go-db-bulk/pkg/batch"
	"github.com/adfharrison1/go-db-bulk/pkg/domain"
)

// MaxBulkOperations caps a single request body
const MaxBulkOperations = 10000

// BulkOperation is one entry of a bulk request
type BulkOperation struct {
	Op          string                 `json:"op"` // set, update or delete
	ID          string                 `json:"id,omitempty"`
	Data        map[string]interface{} `json:"data,omitempty"`
	Merge       bool                   `json:"merge,omitempty"`
	MergeFields []string               `json:"merge_fields,omitempty"`
}

// BulkWriteRequest represents the request body for bulk writes
type BulkWriteRequest struct {
	Operations []BulkOperation `json:"operations"`
}

// BatchSummary describes how one underlying batch fared
type BatchSummary struct {
	Index      int    `json:"index"`
	Operations int    `json:"operations"`
	Error      string `json:"error,omitempty"`
}

// BulkWriteResponse is returned for both full and partial success
type BulkWriteResponse struct {
	Success       bool           `json:"success"`
	Collection    string         `json:"collection"`
	Operations    int            `json:"operations"`
	IDs           []string       `json:"ids"`
	Batches       []BatchSummary `json:"batches"`
	FailedBatches []int          `json:"failed_batches,omitempty"`
}

// HandleBulkWrite stages every operation of the request through an
// Aggregator and commits them together. Each underlying batch is atomic but
// the request as a whole is not. A partial failure answers 207 and a failure
// of every batch answers 422, both listing the failed batch indexes.
func (h *Handler) HandleBulkWrite(w http.ResponseWriter, r *http.Request) {
	collName := mux.Vars(r)["coll"]

	var req BulkWriteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.logger.Warn().Err(err).Str("collection", collName).Msg("decoding bulk body failed")
		WriteJSONError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	if len(req.Operations) == 0 {
		WriteJSONError(w, http.StatusBadRequest, "No operations provided")
		return
	}
	if len(req.Operations) > MaxBulkOperations {
		WriteJSONError(w, http.StatusBadRequest, fmt.Sprintf("Maximum %d operations allowed per request", MaxBulkOperations))
		return
	}

	// Validate everything before staging so a bad entry stages nothing
	ids := make([]string, len(req.Operations))
	for i, op := range req.Operations {
		id, err := op.ResolveID()
		if err != nil {
			WriteJSONError(w, http.StatusBadRequest, fmt.Sprintf("operation %d: %v", i, err))
			return
		}
		ids[i] = id
	}

	agg, err := batch.New(h.conn, h.batchOptions...)
	if err != nil {
		h.logger.Error().Err(err).Msg("building aggregator failed")
		WriteJSONError(w, http.StatusInternalServerError, err.Error())
		return
	}

	for i, op := range req.Operations {
		op.StageInto(agg, domain.Ref(collName, ids[i]))
	}

	results, err := agg.Commit(r.Context())

	response := BulkWriteResponse{
		Success:    err == nil,
		Collection: collName,
		Operations: len(req.Operations),
		IDs:        ids,
		Batches:    make([]BatchSummary, len(results)),
	}
	for i, res := range results {
		response.Batches[i] = BatchSummary{Index: res.Index, Operations: res.Operations}
		if res.Err != nil {
			response.Batches[i].Error = res.Err.Error()
		}
	}

	var commitErr *batch.CommitError
	switch {
	case err == nil:
		h.logger.Info().
			Str("collection", collName).
			Int("operations", len(req.Operations)).
			Int("batches", len(results)).
			Msg("bulk write committed")
		writeJSON(w, http.StatusOK, response)
	case errors.As(err, &commitErr):
		response.FailedBatches = commitErr.FailedIndexes()

		// 207 only when some batches landed; nothing applied is a plain failure
		status, msg := http.StatusMultiStatus, "bulk write partially failed"
		if !commitErr.Partial() {
			status, msg = http.StatusUnprocessableEntity, "bulk write failed in every batch"
		}
		h.logger.Warn().
			Err(err).
			Str("collection", collName).
			Ints("failed_batches", response.FailedBatches).
			Int("status", status).
			Msg(msg)
		writeJSON(w, status, response)
	default:
		h.logger.Error().Err(err).Str("collection", collName).Msg("bulk write failed")
		WriteJSONError(w, http.StatusInternalServerError, err.Error())
	}
}

// ResolveID checks the op kind and returns the document ID to use, minting
// one for sets that do not name a document.
func (op BulkOperation) ResolveID() (string, error) {
	switch op.Op {
	case "set":
		if op.Merge && len(op.MergeFields) > 0 {
			return "", errors.New("merge and merge_fields are mutually exclusive")
		}
		if op.ID == "" {
			return uuid.New().String(), nil
		}
		return op.ID, nil
	case "update", "delete":
		if op.ID == "" {
			return "", fmt.Errorf("%s requires an id", op.Op)
		}
		return op.ID, nil
	default:
		return "", fmt.Errorf("unknown op %q", op.Op)
	}
}

// StageInto stages op against ref. The op must have passed ResolveID.
func (op BulkOperation) StageInto(agg *batch.Aggregator, ref domain.DocumentRef) {
	switch op.Op {
	case "set":
		agg.Set(ref, domain.Document(op.Data), op.setOptions()...)
	case "update":
		agg.Update(ref, domain.Document(op.Data))
	case "delete":
		agg.Delete(ref)
	}
}

func (op BulkOperation) setOptions() []domain.SetOption {
	switch {
	case op.Merge:
		return []domain.SetOption{domain.MergeAll()}
	case len(op.MergeFields) > 0:
		return []domain.SetOption{domain.MergeFields(op.MergeFields...)}
	}
	return nil
}
