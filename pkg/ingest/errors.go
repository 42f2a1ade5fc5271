package ingest

import (
	"errors"
	"fmt"
)

// Source failure kinds. The adapter wraps transport and parse failures in a
// SourceError so the orchestrator can map them to exit codes.
const (
	SourceKindUnavailable = "unavailable"
	SourceKindMalformed   = "malformed"
	SourceKindTimeout     = "timeout"
)

type SourceError struct {
	Kind   string
	Source string
	cause  error
}

func (e *SourceError) Error() string {
	return fmt.Sprintf("source %s %s: %v", e.Source, e.Kind, e.cause)
}

func (e *SourceError) Unwrap() error { return e.cause }

func newSourceError(kind, source string, cause error) *SourceError {
	return &SourceError{Kind: kind, Source: source, cause: cause}
}

// IsSourceUnavailable reports whether err is a transport-level source failure.
func IsSourceUnavailable(err error) bool {
	var se *SourceError
	return errors.As(err, &se) && se.Kind == SourceKindUnavailable
}

// ErrDeadlineExceeded marks a run the reconciler cut short at the deadline.
// Counters reflect the partial work; the retire pass did not run.
var ErrDeadlineExceeded = errors.New("deadline exceeded")

// RejectError is the normalizer's per-record rejection. Rejected records are
// counted into metadata but never fail a sync.
type RejectError struct {
	Reason string
}

func (e *RejectError) Error() string { return "record rejected: " + e.Reason }

func rejected(format string, args ...interface{}) *RejectError {
	return &RejectError{Reason: fmt.Sprintf(format, args...)}
}

// IsRejected reports whether err is a normalizer rejection.
func IsRejected(err error) bool {
	var re *RejectError
	return errors.As(err, &re)
}
