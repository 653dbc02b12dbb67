package batch

import (
	"context"
	"sync"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/adfharrison1/go-db-bulk/pkg/domain"
)

// BatchResult is the outcome of committing one underlying handle
type BatchResult struct {
	Index      int
	Operations int
	Results    []domain.WriteResult
	Err        error
}

// Aggregator stages delete/set/update operations across batch handles
// obtained from a Connection, never placing more than Limit() operations in
// one handle. Handles are filled strictly in creation order.
//
// An Aggregator is safe for concurrent use; a Commit blocks staging until it
// returns.
type Aggregator struct {
	conn  domain.Connection
	limit int

	mu      sync.Mutex
	batches []domain.BatchHandle
	pending int

	desiredLimit      int
	limitSet          bool
	commitConcurrency int
	resetOnFailure    bool
	logger            zerolog.Logger
	metrics           *Metrics
}

// New creates an Aggregator over conn. Without WithLimit the connection's
// maximum batch size is used.
func New(conn domain.Connection, options ...Option) (*Aggregator, error) {
	if conn == nil {
		return nil, &ConfigurationError{Field: "connection", Value: nil, Err: ErrNilConnection}
	}

	a := &Aggregator{
		conn:   conn,
		logger: zerolog.Nop(),
	}

	for _, option := range options {
		option(a)
	}

	maxSize := conn.MaxBatchSize()
	if maxSize <= 0 {
		maxSize = domain.DefaultMaxBatchSize
	}

	a.limit = maxSize
	if a.limitSet {
		if a.desiredLimit <= 0 {
			return nil, &ConfigurationError{Field: "limit", Value: a.desiredLimit, Err: ErrInvalidLimit}
		}
		if a.desiredLimit < maxSize {
			a.limit = a.desiredLimit
		}
	}

	a.batches = []domain.BatchHandle{a.newHandle()}
	return a, nil
}

// Limit returns the effective number of operations permitted per handle
func (a *Aggregator) Limit() int {
	return a.limit
}

// BatchCount returns the number of handles currently staged
func (a *Aggregator) BatchCount() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.batches)
}

// Pending returns the number of operations in the last handle
func (a *Aggregator) Pending() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.pending
}

// OperationCount returns the number of operations staged since the last
// successful commit.
func (a *Aggregator) OperationCount() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return (len(a.batches)-1)*a.limit + a.pending
}

// Delete stages a delete of ref
func (a *Aggregator) Delete(ref domain.DocumentRef) *Aggregator {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.acquireTarget().Delete(ref)
	a.pending++
	a.metrics.staged("delete")
	return a
}

// Set stages a write of data to ref. Options are forwarded only when given.
func (a *Aggregator) Set(ref domain.DocumentRef, data domain.Document, opts ...domain.SetOption) *Aggregator {
	a.mu.Lock()
	defer a.mu.Unlock()

	target := a.acquireTarget()
	if len(opts) > 0 {
		target.Set(ref, data, opts...)
	} else {
		target.Set(ref, data)
	}
	a.pending++
	a.metrics.staged("set")
	return a
}

// Update stages a partial update of ref
func (a *Aggregator) Update(ref domain.DocumentRef, data domain.Document) *Aggregator {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.acquireTarget().Update(ref, data)
	a.pending++
	a.metrics.staged("update")
	return a
}

// Commit commits every staged handle concurrently and waits for all of them.
// A failing handle does not stop the others. On success the Aggregator is
// reset to a single empty handle. On failure the staged handles are kept,
// unless WithResetOnFailure was set, and a *CommitError is returned together
// with the per-handle results.
func (a *Aggregator) Commit(ctx context.Context) ([]BatchResult, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if timer := a.metrics.timer(); timer != nil {
		defer timer.ObserveDuration()
	}

	results := make([]BatchResult, len(a.batches))

	var g errgroup.Group
	if a.commitConcurrency > 0 {
		g.SetLimit(a.commitConcurrency)
	}
	for i, handle := range a.batches {
		ops := a.operationsIn(i)
		g.Go(func() error {
			writes, err := handle.Commit(ctx)
			results[i] = BatchResult{Index: i, Operations: ops, Results: writes, Err: err}
			a.metrics.committed(err)
			return err
		})
	}

	if err := g.Wait(); err != nil {
		commitErr := &CommitError{Total: len(results)}
		for _, r := range results {
			if r.Err != nil {
				commitErr.Failures = append(commitErr.Failures, BatchFailure{Index: r.Index, Operations: r.Operations, Err: r.Err})
			}
		}

		a.logger.Error().
			Err(err).
			Ints("failed_batches", commitErr.FailedIndexes()).
			Int("batches", len(results)).
			Bool("reset", a.resetOnFailure).
			Msg("bulk commit failed")

		if a.resetOnFailure {
			a.reset()
		}
		return results, commitErr
	}

	a.logger.Debug().
		Int("batches", len(results)).
		Int("operations", (len(a.batches)-1)*a.limit+a.pending).
		Msg("bulk commit succeeded")

	a.reset()
	return results, nil
}

// acquireTarget returns the handle the next operation belongs in, opening a
// new one when the current handle is full. Callers must hold a.mu.
func (a *Aggregator) acquireTarget() domain.BatchHandle {
	if a.pending < a.limit {
		return a.batches[len(a.batches)-1]
	}

	handle := a.newHandle()
	a.batches = append(a.batches, handle)
	a.pending = 0

	a.logger.Debug().Int("batches", len(a.batches)).Int("limit", a.limit).Msg("opened new batch handle")
	return handle
}

func (a *Aggregator) operationsIn(i int) int {
	if i == len(a.batches)-1 {
		return a.pending
	}
	return a.limit
}

func (a *Aggregator) reset() {
	a.batches = []domain.BatchHandle{a.newHandle()}
	a.pending = 0
}

func (a *Aggregator) newHandle() domain.BatchHandle {
	a.metrics.allocated()
	return a.conn.NewBatch()
}
