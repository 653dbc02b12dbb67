package domain

import "context"

// DefaultMaxBatchSize is used when a Connection does not report its own
// per-batch operation cap.
const DefaultMaxBatchSize = 500

// Connection hands out empty batch handles. This is the only capability the
// batch writer needs from a database driver.
type Connection interface {
	NewBatch() BatchHandle
	// MaxBatchSize is the hard cap on operations in a single handle.
	// A non-positive value means the driver does not advertise one.
	MaxBatchSize() int
}

// BatchHandle is one atomic unit of work. Staging methods never fail on
// their own; any rejection is reported by Commit.
type BatchHandle interface {
	Delete(ref DocumentRef)
	Set(ref DocumentRef, data Document, opts ...SetOption)
	Update(ref DocumentRef, data Document)
	Commit(ctx context.Context) ([]WriteResult, error)
}

// Reader is the read side exposed over HTTP. Both backends implement it.
type Reader interface {
	GetById(collName, docId string) (Document, error)
	FindAll(collName string, filter map[string]interface{}, options *PaginationOptions) (*PaginationResult, error)
}
