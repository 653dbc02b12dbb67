package storage

import (
	"context"
	"sync"

	"github.com/adfharrison1/go-db-bulk/pkg/domain"
)

// WriteBatch stages operations in memory until Commit, which applies all of
// them as one WAL entry or none of them.
type WriteBatch struct {
	engine *StorageEngine

	mu  sync.Mutex
	ops []WALOp
}

// Delete implements domain.BatchHandle
func (b *WriteBatch) Delete(ref domain.DocumentRef) {
	b.stage(WALOp{Kind: OpDelete, Ref: ref})
}

// Set implements domain.BatchHandle
func (b *WriteBatch) Set(ref domain.DocumentRef, data domain.Document, opts ...domain.SetOption) {
	b.stage(WALOp{Kind: OpSet, Ref: ref, Data: data.Clone(), Options: opts})
}

// Update implements domain.BatchHandle
func (b *WriteBatch) Update(ref domain.DocumentRef, data domain.Document) {
	b.stage(WALOp{Kind: OpUpdate, Ref: ref, Data: data.Clone()})
}

// Commit implements domain.BatchHandle. Committing the same batch again
// re-applies its operations.
func (b *WriteBatch) Commit(ctx context.Context) ([]domain.WriteResult, error) {
	b.mu.Lock()
	ops := append([]WALOp(nil), b.ops...)
	b.mu.Unlock()

	return b.engine.commitBatch(ctx, ops)
}

// Len returns the number of staged operations
func (b *WriteBatch) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.ops)
}

func (b *WriteBatch) stage(op WALOp) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.ops = append(b.ops, op)
}
