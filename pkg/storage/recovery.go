package storage

import (
	"errors"
	"fmt"
	"os"
	"time"
)

// NewRecoveryManager creates a new recovery manager
func NewRecoveryManager(engine *StorageEngine) *RecoveryManager {
	return &RecoveryManager{
		engine: engine,
	}
}

// Recover restores the snapshot, if any, then replays the WAL entries it
// does not cover.
func (rm *RecoveryManager) Recover() error {
	start := time.Now()
	defer func() {
		rm.engine.updateStats(func(s *StorageStats) {
			s.RecoveryTime = time.Since(start)
		})
	}()

	mm := rm.engine.memoryMgr
	mm.mu.Lock()
	defer mm.mu.Unlock()

	snapshot, err := rm.engine.checkpointMgr.LoadSnapshot()
	if err != nil {
		return fmt.Errorf("failed to load snapshot: %w", err)
	}

	startLSN := int64(0)
	if snapshot != nil {
		mm.restoreLocked(snapshot.Collections)
		startLSN = snapshot.LSN
		rm.engine.walEngine.setCurrentLSN(startLSN)
		rm.engine.logger.Info().Int64("lsn", startLSN).Int("collections", len(snapshot.Collections)).Msg("restored snapshot")
	}

	replayed, err := rm.replayWAL(startLSN)
	if err != nil {
		return fmt.Errorf("failed to replay WAL entries: %w", err)
	}

	rm.engine.logger.Info().Int("entries", replayed).Dur("took", time.Since(start)).Msg("recovery completed")
	return nil
}

// replayWAL applies batch entries with LSN >= startLSN. Callers must hold
// the memory manager lock.
func (rm *RecoveryManager) replayWAL(startLSN int64) (int, error) {
	walFiles, err := rm.engine.walEngine.GetWALFiles()
	if err != nil {
		return 0, fmt.Errorf("failed to get WAL files: %w", err)
	}

	replayed := 0
	for i, walFile := range walFiles {
		entries, err := rm.engine.walEngine.ReadEntries(walFile)
		var torn *TornTailError
		if errors.As(err, &torn) && i == len(walFiles)-1 {
			// A crash mid-append; the entry was never acknowledged
			rm.engine.logger.Warn().
				Err(err).
				Str("file", walFile).
				Int64("offset", torn.Offset).
				Msg("dropping torn WAL tail")
			if err := os.Truncate(walFile, torn.Offset); err != nil {
				return replayed, fmt.Errorf("failed to truncate torn WAL tail: %w", err)
			}
		} else if err != nil {
			return replayed, fmt.Errorf("failed to read WAL file %s: %w", walFile, err)
		}

		for _, entry := range entries {
			if entry.LSN < startLSN {
				continue
			}
			if err := rm.replayEntry(entry); err != nil {
				return replayed, fmt.Errorf("failed to replay WAL entry LSN %d: %w", entry.LSN, err)
			}
			rm.engine.walEngine.setCurrentLSN(entry.LSN + 1)
			replayed++
		}
	}

	return replayed, nil
}

func (rm *RecoveryManager) replayEntry(entry *WALEntry) error {
	switch entry.Type {
	case WALEntryBatch:
		changes, err := rm.engine.memoryMgr.planLocked(entry.Ops)
		if err != nil {
			return err
		}
		rm.engine.memoryMgr.applyLocked(changes)
		return nil
	case WALEntryCheckpoint:
		return nil
	default:
		return fmt.Errorf("unknown WAL entry type: %d", entry.Type)
	}
}
