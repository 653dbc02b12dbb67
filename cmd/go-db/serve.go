package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"

	"github.com/adfharrison1/go-db-bulk/pkg/server"
)

func newServeCmd(a *app) *cobra.Command {
	var port int

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		Example: `  go-db serve
  go-db serve --port 9090 --config ./godb.yaml
  GODB_STORAGE_BACKEND=bolt go-db serve`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if cmd.Flags().Changed("port") {
				a.cfg.Server.Port = port
			}
			return runServe(a)
		},
	}

	cmd.Flags().IntVar(&port, "port", 8080, "HTTP port (overrides server.port)")
	return cmd
}

func runServe(a *app) error {
	be, err := openBackend(a.cfg, a.log)
	if err != nil {
		return fmt.Errorf("open %s backend: %w", a.cfg.Storage.Backend, err)
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	srv := server.NewServer(be.conn, be.reader,
		server.WithLogger(a.log),
		server.WithGatherer(reg),
		server.WithBatchOptions(batchOptions(a.cfg, a.log, reg)...),
	)

	httpServer := &http.Server{
		Addr:    fmt.Sprintf(":%d", a.cfg.Server.Port),
		Handler: srv.Router(),
	}

	errCh := make(chan error, 1)
	go func() {
		a.log.Info().
			Int("port", a.cfg.Server.Port).
			Str("backend", a.cfg.Storage.Backend).
			Int("max_batch_size", be.conn.MaxBatchSize()).
			Msg("starting go-db server")
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	var serveErr error
	select {
	case <-quit:
		a.log.Info().Msg("shutting down server")
	case serveErr = <-errCh:
		a.log.Error().Err(serveErr).Msg("server failed")
	}

	// Give outstanding requests a deadline for completion
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := httpServer.Shutdown(ctx); err != nil {
		a.log.Error().Err(err).Msg("server forced to shutdown")
	}

	// Closing the WAL engine writes a final checkpoint
	if err := be.close(); err != nil {
		a.log.Error().Err(err).Msg("closing backend failed")
		return errors.Join(serveErr, err)
	}

	a.log.Info().Msg("server exited")
	return serveErr
}
