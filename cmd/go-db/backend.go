package main

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"

	"github.com/adfharrison1/go-db-bulk/pkg/batch"
	"github.com/adfharrison1/go-db-bulk/pkg/boltstore"
	"github.com/adfharrison1/go-db-bulk/pkg/config"
	"github.com/adfharrison1/go-db-bulk/pkg/domain"
	"github.com/adfharrison1/go-db-bulk/pkg/storage"
)

// backend is whichever store the config selected
type backend struct {
	conn   domain.Connection
	reader domain.Reader
	close  func() error
}

func openBackend(cfg *config.Config, log zerolog.Logger) (*backend, error) {
	switch cfg.Storage.Backend {
	case "bolt":
		store, err := boltstore.Open(cfg.Storage.BoltPath,
			boltstore.WithMaxBatchSize(cfg.Batch.MaxSize),
			boltstore.WithLogger(log.With().Str("component", "boltstore").Logger()),
		)
		if err != nil {
			return nil, err
		}
		return &backend{conn: store, reader: store, close: store.Close}, nil

	case "wal":
		durability, err := storage.ParseDurabilityLevel(cfg.Storage.Durability)
		if err != nil {
			return nil, err
		}
		engine, err := storage.NewStorageEngine(
			storage.WithWALDir(cfg.Storage.WALDir),
			storage.WithDataDir(cfg.Storage.DataDir),
			storage.WithDurabilityLevel(durability),
			storage.WithMaxBatchSize(cfg.Batch.MaxSize),
			storage.WithLogger(log.With().Str("component", "storage").Logger()),
		)
		if err != nil {
			return nil, err
		}
		return &backend{conn: engine, reader: engine, close: engine.Close}, nil
	}

	return nil, fmt.Errorf("unknown storage backend %q", cfg.Storage.Backend)
}

// batchOptions translates the batch section of the config. A zero limit
// leaves the Aggregator at the backend maximum.
func batchOptions(cfg *config.Config, log zerolog.Logger, reg prometheus.Registerer) []batch.Option {
	options := []batch.Option{
		batch.WithCommitConcurrency(cfg.Batch.CommitConcurrency),
		batch.WithResetOnFailure(cfg.Batch.ResetOnFailure),
		batch.WithLogger(log.With().Str("component", "batch").Logger()),
	}
	if cfg.Batch.Limit > 0 {
		options = append(options, batch.WithLimit(cfg.Batch.Limit))
	}
	if reg != nil {
		options = append(options, batch.WithMetrics(batch.NewMetrics(reg)))
	}
	return options
}
