package batch

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrInvalidLimit is returned by New when an explicit limit is not positive.
	ErrInvalidLimit = errors.New("batch limit must be a positive integer")

	// ErrNilConnection is returned by New when no Connection is given.
	ErrNilConnection = errors.New("connection must not be nil")

	// ErrCommitFailed is matched by every *CommitError.
	ErrCommitFailed = errors.New("batch commit failed")
)

// ConfigurationError reports an unusable Aggregator configuration.
type ConfigurationError struct {
	Field string
	Value interface{}
	Err   error
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("invalid %s %v: %v", e.Field, e.Value, e.Err)
}

func (e *ConfigurationError) Unwrap() error {
	return e.Err
}

// BatchFailure pairs a failed handle's position with its commit error.
type BatchFailure struct {
	Index      int
	Operations int
	Err        error
}

// CommitError is returned when at least one underlying handle failed to
// commit. Handles not listed in Failures were applied.
type CommitError struct {
	Total    int
	Failures []BatchFailure
}

func (e *CommitError) Error() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "%d of %d batches failed to commit", len(e.Failures), e.Total)
	for _, f := range e.Failures {
		fmt.Fprintf(&sb, "; batch %d (%d ops): %v", f.Index, f.Operations, f.Err)
	}
	return sb.String()
}

// Is lets errors.Is(err, ErrCommitFailed) match.
func (e *CommitError) Is(target error) bool {
	return target == ErrCommitFailed
}

// Unwrap exposes each handle's error to errors.Is and errors.As.
func (e *CommitError) Unwrap() []error {
	errs := make([]error, 0, len(e.Failures))
	for _, f := range e.Failures {
		errs = append(errs, f.Err)
	}
	return errs
}

// FailedIndexes lists the positions of the handles that failed.
func (e *CommitError) FailedIndexes() []int {
	idx := make([]int, 0, len(e.Failures))
	for _, f := range e.Failures {
		idx = append(idx, f.Index)
	}
	return idx
}

// Partial reports whether some handles committed while others failed.
func (e *CommitError) Partial() bool {
	return len(e.Failures) > 0 && len(e.Failures) < e.Total
}
