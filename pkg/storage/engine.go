package storage

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog"

	"github.com/adfharrison1/go-db-bulk/pkg/domain"
)

// NewStorageEngine creates a storage engine, creating its directories and
// recovering any state left by a previous run.
func NewStorageEngine(options ...StorageOption) (*StorageEngine, error) {
	engine := &StorageEngine{
		walDir:          "./wal",
		dataDir:         ".",
		durabilityLevel: DurabilityOS,
		maxBatchSize:    domain.DefaultMaxBatchSize,
		logger:          zerolog.Nop(),
		stats:           &StorageStats{},
	}

	// Apply options
	for _, option := range options {
		option(engine)
	}

	// Initialize components
	engine.walEngine = NewWALEngine(engine.walDir, engine.durabilityLevel)
	engine.checkpointMgr = NewCheckpointManager(engine)
	engine.recoveryMgr = NewRecoveryManager(engine)
	engine.memoryMgr = NewMemoryManager()

	if err := os.MkdirAll(engine.walDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create WAL directory: %w", err)
	}
	if err := os.MkdirAll(engine.dataDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	if err := engine.recoveryMgr.Recover(); err != nil {
		return nil, fmt.Errorf("recovery failed: %w", err)
	}

	return engine, nil
}

// NewBatch implements domain.Connection
func (se *StorageEngine) NewBatch() domain.BatchHandle {
	return &WriteBatch{engine: se}
}

// MaxBatchSize implements domain.Connection
func (se *StorageEngine) MaxBatchSize() int {
	return se.maxBatchSize
}

// GetById returns a copy of the stored document
func (se *StorageEngine) GetById(collName, docId string) (domain.Document, error) {
	return se.memoryMgr.GetById(collName, docId)
}

// FindAll returns documents matching filter, ordered by id
func (se *StorageEngine) FindAll(collName string, filter map[string]interface{}, options *domain.PaginationOptions) (*domain.PaginationResult, error) {
	return se.memoryMgr.FindAll(collName, filter, options)
}

// Checkpoint writes a snapshot and truncates the WAL
func (se *StorageEngine) Checkpoint() error {
	if se.isClosed() {
		return ErrEngineClosed
	}
	return se.checkpointMgr.Checkpoint()
}

// Close flushes a final checkpoint and closes the WAL
func (se *StorageEngine) Close() error {
	se.closedMu.Lock()
	if se.closed {
		se.closedMu.Unlock()
		return nil
	}
	se.closed = true
	se.closedMu.Unlock()

	if err := se.checkpointMgr.Checkpoint(); err != nil {
		se.walEngine.Close()
		return fmt.Errorf("final checkpoint failed: %w", err)
	}
	return se.walEngine.Close()
}

// GetMemoryStats returns engine statistics
func (se *StorageEngine) GetMemoryStats() map[string]interface{} {
	se.statsMu.RLock()
	stats := map[string]interface{}{
		"wal_entries_written":   se.stats.WALEntriesWritten,
		"batches_committed":     se.stats.BatchesCommitted,
		"batches_rejected":      se.stats.BatchesRejected,
		"operations_applied":    se.stats.OperationsApplied,
		"checkpoints_performed": se.stats.CheckpointsPerformed,
		"recovery_time_ms":      se.stats.RecoveryTime.Milliseconds(),
		"last_checkpoint":       se.stats.LastCheckpoint,
		"max_batch_size":        se.maxBatchSize,
	}
	se.statsMu.RUnlock()

	for k, v := range se.memoryMgr.GetMemoryStats() {
		stats[k] = v
	}
	return stats
}

// commitBatch validates ops, logs them as one WAL entry and applies them.
// Nothing is applied unless every op is valid and the entry is written.
func (se *StorageEngine) commitBatch(ctx context.Context, ops []WALOp) ([]domain.WriteResult, error) {
	if se.isClosed() {
		return nil, ErrEngineClosed
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if len(ops) > se.maxBatchSize {
		se.updateStats(func(s *StorageStats) { s.BatchesRejected++ })
		return nil, fmt.Errorf("%w: %d operations, maximum is %d", ErrBatchTooLarge, len(ops), se.maxBatchSize)
	}
	if len(ops) == 0 {
		return []domain.WriteResult{}, nil
	}

	mm := se.memoryMgr
	mm.mu.Lock()
	defer mm.mu.Unlock()

	changes, err := mm.planLocked(ops)
	if err != nil {
		se.updateStats(func(s *StorageStats) { s.BatchesRejected++ })
		return nil, err
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	now := time.Now()
	entry := &WALEntry{
		Type:      WALEntryBatch,
		Timestamp: now.UnixNano(),
		Ops:       ops,
	}
	if err := se.walEngine.WriteEntry(entry); err != nil {
		return nil, fmt.Errorf("failed to write WAL entry: %w", err)
	}

	mm.applyLocked(changes)

	se.updateStats(func(s *StorageStats) {
		s.WALEntriesWritten++
		s.BatchesCommitted++
		s.OperationsApplied += int64(len(ops))
	})

	results := make([]domain.WriteResult, len(ops))
	for i, op := range ops {
		results[i] = domain.WriteResult{Ref: op.Ref, UpdateTime: now}
	}
	return results, nil
}

func (se *StorageEngine) isClosed() bool {
	se.closedMu.RLock()
	defer se.closedMu.RUnlock()
	return se.closed
}

func (se *StorageEngine) updateStats(updater func(*StorageStats)) {
	se.statsMu.Lock()
	defer se.statsMu.Unlock()
	updater(se.stats)
}
