package storage

import "github.com/rs/zerolog"

// StorageOption configures the storage engine
type StorageOption func(*StorageEngine)

// WithWALDir sets the directory for WAL files
func WithWALDir(dir string) StorageOption {
	return func(engine *StorageEngine) {
		engine.walDir = dir
	}
}

// WithDataDir sets the directory for snapshot files
func WithDataDir(dir string) StorageOption {
	return func(engine *StorageEngine) {
		engine.dataDir = dir
	}
}

// WithDurabilityLevel sets the durability guarantee level
func WithDurabilityLevel(level DurabilityLevel) StorageOption {
	return func(engine *StorageEngine) {
		engine.durabilityLevel = level
	}
}

// WithMaxBatchSize sets the hard cap on operations per WriteBatch
func WithMaxBatchSize(n int) StorageOption {
	return func(engine *StorageEngine) {
		engine.maxBatchSize = n
	}
}

// WithLogger sets the engine logger
func WithLogger(logger zerolog.Logger) StorageOption {
	return func(engine *StorageEngine) {
		engine.logger = logger
	}
}
