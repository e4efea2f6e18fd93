// Package errkind classifies the error kinds of the reconciliation engine so
// task runners can decide propagation without parsing error strings.
package errkind

import "errors"

// Kind is one of the four error kinds the engine distinguishes.
type Kind int

const (
	// Parse is a bad field format or unexpected record type. Recorded per
	// line with an index and reason; never thrown, always accumulated.
	Parse Kind = iota
	// Validation is a rollup-amount mismatch, a missing ACTIVE reference
	// where one was required, or an unknown short name. Aborts the single
	// record; earlier records in the same run stay committed.
	Validation
	// External is a CFS timeout or 5xx. Dispatch tasks probe-and-adopt;
	// reconcilers log and skip, leaving the record for the next run.
	External
	// Integrity is a fatal invariant violation (two effective CfsAccounts,
	// an unrecognized credit site). The file is aborted and must be
	// re-processed after manual correction.
	Integrity
)

func (k Kind) String() string {
	switch k {
	case Parse:
		return "parse"
	case Validation:
		return "validation"
	case External:
		return "external"
	case Integrity:
		return "integrity"
	default:
		return "unknown"
	}
}

// Error wraps an underlying error with its kind.
type Error struct {
	Kind Kind
	Err  error
}

func (e *Error) Error() string { return e.Kind.String() + ": " + e.Err.Error() }
func (e *Error) Unwrap() error { return e.Err }

// Wrap tags err with kind. Returns nil if err is nil.
func Wrap(kind Kind, err error) error {
	if err == nil {
		return nil
	}
	return &Error{Kind: kind, Err: err}
}

// Is reports whether err was tagged with kind.
func Is(err error, kind Kind) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind == kind
	}
	return false
}
