// Package apperr implements the error taxonomy of spec section 7:
// Validation, Conflict, Transient, Operational, Not-Found. Pure
// components return only Validation errors; the Store, Engine, and
// Session Facade use them to decide what gets retried, absorbed, or
// surfaced.
package apperr

import "errors"

// Kind classifies an error for retry and HTTP-status-mapping purposes.
type Kind int

const (
	// Validation is bad input. Never retried, surfaced to the caller.
	Validation Kind = iota
	// Conflict is a precondition no longer holding (already queued,
	// lost a binding race, match not ACTIVE). Retried inside the
	// Engine where the spec allows it; otherwise surfaced.
	Conflict
	// Transient is a recoverable store error; retried with bounded
	// backoff by the caller.
	Transient
	// Operational is a store failure after retries exhausted, or an
	// invariant violation. Surfaced, and causes the affected ticket
	// to expire.
	Operational
	// NotFound is an unknown match or user.
	NotFound
)

func (k Kind) String() string {
	switch k {
	case Validation:
		return "validation"
	case Conflict:
		return "conflict"
	case Transient:
		return "transient"
	case Operational:
		return "operational"
	case NotFound:
		return "not_found"
	default:
		return "unknown"
	}
}

// E is a Kind-tagged error. Components construct one with the
// matching helper below; callers inspect it with KindOf.
type E struct {
	Kind Kind
	Msg  string
	Err  error
}

func (e *E) Error() string {
	if e.Err != nil {
		return e.Msg + ": " + e.Err.Error()
	}
	return e.Msg
}

func (e *E) Unwrap() error { return e.Err }

func newE(k Kind, msg string, cause error) error {
	return &E{Kind: k, Msg: msg, Err: cause}
}

func Validationf(msg string) error         { return newE(Validation, msg, nil) }
func Conflictf(msg string) error           { return newE(Conflict, msg, nil) }
func Transientf(msg string, cause error) error { return newE(Transient, msg, cause) }
func Operationalf(msg string, cause error) error {
	return newE(Operational, msg, cause)
}
func NotFoundf(msg string) error { return newE(NotFound, msg, nil) }

// KindOf reports the Kind of err, walking its Unwrap chain. Errors not
// constructed through this package report Operational, the safest
// default for an unclassified failure.
func KindOf(err error) Kind {
	if err == nil {
		return -1
	}
	var e *E
	if errors.As(err, &e) {
		return e.Kind
	}
	return Operational
}

// Is reports whether err carries the given Kind.
func Is(err error, k Kind) bool {
	return err != nil && KindOf(err) == k
}
