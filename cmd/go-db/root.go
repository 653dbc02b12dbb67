package main

import (
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/adfharrison1/go-db-bulk/pkg/config"
)

// app carries state shared by every subcommand once the root has run
type app struct {
	cfgPath  string
	logLevel string

	cfg *config.Config
	log zerolog.Logger
}

func newRootCmd() *cobra.Command {
	a := &app{log: zerolog.Nop()}

	root := &cobra.Command{
		Use:   "go-db",
		Short: "In-memory document database with bulk writes",
		Long: `go-db is a small document database. Writes go through a bulk writer that
splits any number of operations into batches no larger than the storage
backend accepts and commits them concurrently.

Configuration comes from --config (YAML or TOML), then GODB_* environment
variables, e.g. GODB_BATCH_LIMIT=200 or GODB_STORAGE_BACKEND=bolt.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(a.cfgPath)
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("log-level") {
				cfg.Log.Level = a.logLevel
			}

			logger, err := newLogger(cfg.Log.Level, cfg.Log.Pretty)
			if err != nil {
				return err
			}

			a.cfg = cfg
			a.log = logger
			return nil
		},
	}

	root.PersistentFlags().StringVar(&a.cfgPath, "config", "", "path to config file")
	root.PersistentFlags().StringVar(&a.logLevel, "log-level", "info", "log level (debug, info, warn, error)")

	root.AddCommand(newServeCmd(a))
	root.AddCommand(newImportCmd(a))

	return root
}

func newLogger(level string, pretty bool) (zerolog.Logger, error) {
	lvl, err := zerolog.ParseLevel(level)
	if err != nil {
		return zerolog.Nop(), fmt.Errorf("invalid log level %q: %w", level, err)
	}

	logger := zerolog.New(os.Stderr)
	if pretty {
		logger = logger.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})
	}
	return logger.Level(lvl).With().Timestamp().Logger(), nil
}
