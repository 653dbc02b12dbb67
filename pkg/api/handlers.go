package api

import (
	"github.com/rs/zerolog"

	"github.com/adfharrison1/go-db-bulk/pkg/batch"
	"github.com/adfharrison1/go-db-bulk/pkg/domain"
)

// Handler provides HTTP handlers for the database API
type Handler struct {
	conn         domain.Connection
	reader       domain.Reader
	batchOptions []batch.Option
	logger       zerolog.Logger
}

// NewHandler creates a new API handler. Every bulk request builds its own
// Aggregator over conn with batchOptions.
func NewHandler(conn domain.Connection, reader domain.Reader, logger zerolog.Logger, batchOptions ...batch.Option) *Handler {
	return &Handler{
		conn:         conn,
		reader:       reader,
		batchOptions: batchOptions,
		logger:       logger,
	}
}
