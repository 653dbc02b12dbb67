package batch

import (
	"context"
	"sync"
	"time"

	"github.com/adfharrison1/go-db-bulk/pkg/domain"
)

type stagedOp struct {
	kind string
	ref  domain.DocumentRef
	data domain.Document
	opts []domain.SetOption
}

// mockHandle records staged operations and commit calls
type mockHandle struct {
	mu       sync.Mutex
	index    int
	ops      []stagedOp
	commits  int
	commitFn func(ctx context.Context, h *mockHandle) error
}

func (h *mockHandle) Delete(ref domain.DocumentRef) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.ops = append(h.ops, stagedOp{kind: "delete", ref: ref})
}

func (h *mockHandle) Set(ref domain.DocumentRef, data domain.Document, opts ...domain.SetOption) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.ops = append(h.ops, stagedOp{kind: "set", ref: ref, data: data, opts: opts})
}

func (h *mockHandle) Update(ref domain.DocumentRef, data domain.Document) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.ops = append(h.ops, stagedOp{kind: "update", ref: ref, data: data})
}

func (h *mockHandle) Commit(ctx context.Context) ([]domain.WriteResult, error) {
	h.mu.Lock()
	h.commits++
	fn := h.commitFn
	ops := append([]stagedOp(nil), h.ops...)
	h.mu.Unlock()

	if fn != nil {
		if err := fn(ctx, h); err != nil {
			return nil, err
		}
	}

	now := time.Now()
	results := make([]domain.WriteResult, len(ops))
	for i, op := range ops {
		results[i] = domain.WriteResult{Ref: op.ref, UpdateTime: now}
	}
	return results, nil
}

func (h *mockHandle) opCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.ops)
}

func (h *mockHandle) commitCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.commits
}

// mockConnection hands out mockHandles and keeps every one it created
type mockConnection struct {
	mu       sync.Mutex
	maxSize  int
	handles  []*mockHandle
	commitFn func(ctx context.Context, h *mockHandle) error
}

func newMockConnection(maxSize int) *mockConnection {
	return &mockConnection{maxSize: maxSize}
}

func (c *mockConnection) NewBatch() domain.BatchHandle {
	c.mu.Lock()
	defer c.mu.Unlock()
	h := &mockHandle{index: len(c.handles), commitFn: c.commitFn}
	c.handles = append(c.handles, h)
	return h
}

func (c *mockConnection) MaxBatchSize() int {
	return c.maxSize
}

func (c *mockConnection) created() []*mockHandle {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]*mockHandle(nil), c.handles...)
}
