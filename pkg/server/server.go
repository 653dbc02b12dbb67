package server

import (
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/adfharrison1/go-db-bulk/pkg/api"
	"github.com/adfharrison1/go-db-bulk/pkg/batch"
	"github.com/adfharrison1/go-db-bulk/pkg/domain"
)

// Server wires the API handlers onto a router
type Server struct {
	router       *mux.Router
	handler      *api.Handler
	logger       zerolog.Logger
	gatherer     prometheus.Gatherer
	batchOptions []batch.Option
}

// Option configures a Server
type Option func(*Server)

// WithLogger sets the request and handler logger
func WithLogger(logger zerolog.Logger) Option {
	return func(s *Server) {
		s.logger = logger
	}
}

// WithGatherer exposes the given registry on /metrics
func WithGatherer(g prometheus.Gatherer) Option {
	return func(s *Server) {
		s.gatherer = g
	}
}

// WithBatchOptions is passed to every Aggregator built for a bulk request
func WithBatchOptions(options ...batch.Option) Option {
	return func(s *Server) {
		s.batchOptions = append(s.batchOptions, options...)
	}
}

// NewServer creates a new instance of Server over a write connection and
// its read side.
func NewServer(conn domain.Connection, reader domain.Reader, options ...Option) *Server {
	s := &Server{
		router:   mux.NewRouter(),
		logger:   zerolog.Nop(),
		gatherer: prometheus.DefaultGatherer,
	}
	for _, option := range options {
		option(s)
	}

	s.handler = api.NewHandler(conn, reader, s.logger, s.batchOptions...)
	s.handler.RegisterRoutes(s.router)
	s.router.Handle("/metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{})).Methods("GET")

	// Use the logging middleware for all routes
	s.router.Use(s.requestLoggerMiddleware)

	// Customize NotFoundHandler to log 404s
	s.router.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.logger.Warn().Str("method", r.Method).Str("path", r.URL.Path).Msg("no route found")
		api.WriteJSONError(w, http.StatusNotFound, "no route for "+r.Method+" "+r.URL.Path)
	})

	return s
}

// Router exposes the internal mux.Router
func (s *Server) Router() http.Handler {
	return s.router
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

// requestLoggerMiddleware logs the method, path, status and duration for
// each request.
func (s *Server) requestLoggerMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)

		s.logger.Info().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", rec.status).
			Dur("elapsed", time.Since(start)).
			Msg("request")
	})
}
