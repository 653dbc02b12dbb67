package batch

import (
	"github.com/rs/zerolog"
)

// Option configures an Aggregator
type Option func(*Aggregator)

// WithLimit sets the desired number of operations per batch handle. The
// effective limit never exceeds the connection's maximum.
func WithLimit(n int) Option {
	return func(a *Aggregator) {
		a.desiredLimit = n
		a.limitSet = true
	}
}

// WithCommitConcurrency bounds how many handles commit at once. Zero or a
// negative value commits every handle at the same time.
func WithCommitConcurrency(n int) Option {
	return func(a *Aggregator) {
		a.commitConcurrency = n
	}
}

// WithResetOnFailure discards staged handles after a failed commit instead
// of keeping them for inspection or retry.
func WithResetOnFailure(reset bool) Option {
	return func(a *Aggregator) {
		a.resetOnFailure = reset
	}
}

// WithLogger sets the logger used for commit diagnostics
func WithLogger(logger zerolog.Logger) Option {
	return func(a *Aggregator) {
		a.logger = logger
	}
}

// WithMetrics records staging and commit activity on m
func WithMetrics(m *Metrics) Option {
	return func(a *Aggregator) {
		a.metrics = m
	}
}
