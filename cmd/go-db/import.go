package main

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/adfharrison1/go-db-bulk/pkg/api"
	"github.com/adfharrison1/go-db-bulk/pkg/batch"
	"github.com/adfharrison1/go-db-bulk/pkg/domain"
)

// importSummary totals a run of the import command
type importSummary struct {
	Operations    int
	Commits       int
	FailedBatches int
}

func newImportCmd(a *app) *cobra.Command {
	var chunk int

	cmd := &cobra.Command{
		Use:   "import <collection> [file]",
		Short: "Bulk-write newline-delimited JSON operations",
		Long: `Reads one operation per line, in the same shape as the bulk endpoint:

  {"op":"set","id":"1","data":{"name":"Alice"}}
  {"op":"update","id":"1","data":{"age":31}}
  {"op":"delete","id":"2"}

Operations are committed every --chunk lines. Reads stdin when no file is given.`,
		Args: cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			in := cmd.InOrStdin()
			if len(args) == 2 && args[1] != "-" {
				f, err := os.Open(args[1])
				if err != nil {
					return err
				}
				defer f.Close()
				in = f
			}

			be, err := openBackend(a.cfg, a.log)
			if err != nil {
				return fmt.Errorf("open %s backend: %w", a.cfg.Storage.Backend, err)
			}
			defer be.close()

			summary, err := runImport(cmd.Context(), in, args[0], be.conn, chunk, a.log, batchOptions(a.cfg, a.log, nil)...)
			a.log.Info().
				Str("collection", args[0]).
				Int("operations", summary.Operations).
				Int("commits", summary.Commits).
				Int("failed_batches", summary.FailedBatches).
				Msg("import finished")
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "imported %d operations into %s\n", summary.Operations, args[0])
			return nil
		},
	}

	cmd.Flags().IntVar(&chunk, "chunk", 10000, "operations per commit")
	return cmd
}

// runImport streams operations from r into coll, committing every chunk
// operations. It stops at the first malformed line or failed commit; chunks
// committed before that stay committed.
func runImport(ctx context.Context, r io.Reader, coll string, conn domain.Connection, chunk int, log zerolog.Logger, options ...batch.Option) (importSummary, error) {
	var summary importSummary
	if chunk <= 0 {
		return summary, fmt.Errorf("chunk must be positive, got %d", chunk)
	}

	agg, err := batch.New(conn, options...)
	if err != nil {
		return summary, err
	}

	commit := func() error {
		results, err := agg.Commit(ctx)
		summary.Commits++
		for _, res := range results {
			if res.Err == nil {
				summary.Operations += res.Operations
			} else {
				summary.FailedBatches++
			}
		}
		return err
	}

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), 16*1024*1024)

	line := 0
	for scanner.Scan() {
		line++
		raw := scanner.Bytes()
		if len(raw) == 0 {
			continue
		}

		var op api.BulkOperation
		if err := json.Unmarshal(raw, &op); err != nil {
			return summary, fmt.Errorf("line %d: %w", line, err)
		}
		id, err := op.ResolveID()
		if err != nil {
			return summary, fmt.Errorf("line %d: %w", line, err)
		}
		op.StageInto(agg, domain.Ref(coll, id))

		if agg.OperationCount() >= chunk {
			if err := commit(); err != nil {
				return summary, err
			}
			log.Debug().Int("line", line).Int("operations", summary.Operations).Msg("import chunk committed")
		}
	}
	if err := scanner.Err(); err != nil {
		return summary, fmt.Errorf("read input: %w", err)
	}

	if agg.OperationCount() > 0 {
		if err := commit(); err != nil {
			return summary, err
		}
	}
	return summary, nil
}
