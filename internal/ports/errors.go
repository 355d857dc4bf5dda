// Package ports defines the external collaborator interfaces the
// surveillance core consumes, plus the error-kind taxonomy every
// component uses to decide whether to retry, skip, or abort.
package ports

import "errors"

// Kind classifies an error by how the caller should react to it.
type Kind int

const (
	// KindTransientIO covers network failures, webhook 5xx, upstream
	// timeouts. Safe to retry with backoff.
	KindTransientIO Kind = iota
	// KindUpstreamRejection covers webhook 4xx and validation-rejected
	// config updates. Not retried; surfaced to the caller.
	KindUpstreamRejection
	// KindDataShape covers malformed order books, missing prices. The
	// record is skipped, not the loop.
	KindDataShape
	// KindStatInsufficient covers n < minSample. Treated as "no signal",
	// not an error.
	KindStatInsufficient
	// KindInternal covers singular covariance, divide-by-zero, index out
	// of range. Logged, a neutral value is returned, loop continues.
	KindInternal
	// KindFatal covers failure to bind a required port at startup.
	// Aborts initialization.
	KindFatal
)

func (k Kind) String() string {
	switch k {
	case KindTransientIO:
		return "transient_io"
	case KindUpstreamRejection:
		return "upstream_rejection"
	case KindDataShape:
		return "data_shape"
	case KindStatInsufficient:
		return "stat_insufficient"
	case KindInternal:
		return "internal"
	case KindFatal:
		return "fatal"
	default:
		return "unknown"
	}
}

// Error is a taxonomy-tagged error. Wrap underlying causes with %w via
// Wrap so errors.Is/errors.As keep working across the boundary.
type Error struct {
	Kind Kind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return e.Op + ": " + e.Kind.String()
	}
	return e.Op + ": " + e.Kind.String() + ": " + e.Err.Error()
}

func (e *Error) Unwrap() error { return e.Err }

// Wrap tags err with a Kind and the operation that produced it.
func Wrap(kind Kind, op string, err error) error {
	if err == nil {
		return nil
	}
	return &Error{Kind: kind, Op: op, Err: err}
}

// KindOf extracts the Kind from err, defaulting to KindInternal when err
// carries no *Error in its chain.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// IsFatal reports whether err should abort initialization.
func IsFatal(err error) bool {
	return KindOf(err) == KindFatal
}
