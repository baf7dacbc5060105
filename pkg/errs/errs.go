// Package errs defines the error-kind taxonomy shared across every layer of
// the service, so that callers can branch on what kind of failure occurred
// without string-matching error text.
package errs

import "fmt"

// Kind classifies an Error by the kind of failure it reports.
type Kind string

const (
	// InvalidInput means the caller supplied a malformed or out-of-range
	// argument (empty text, invalid ttl, unknown scope, bad context key).
	InvalidInput Kind = "invalid_input"
	// NotFound means the referenced memory, job or context key does not exist.
	NotFound Kind = "not_found"
	// Conflict means the operation is refused because of the current state
	// of the record (e.g. recategorizing the system primer).
	Conflict Kind = "conflict"
	// EmbeddingDimMismatch means the configured embedding model's vector
	// width does not match the dimension recorded in the embedding column.
	EmbeddingDimMismatch Kind = "embedding_dim_mismatch"
	// LLMUnavailable means the embedding/completion backend could not be
	// reached or exhausted its retry budget.
	LLMUnavailable Kind = "llm_unavailable"
	// StoreUnavailable means the database could not service the request.
	StoreUnavailable Kind = "store_unavailable"
	// NoSectionsProduced means segmentation returned zero usable sections
	// for a piece of ingested text.
	NoSectionsProduced Kind = "no_sections_produced"
	// Internal is the catch-all for unexpected failures.
	Internal Kind = "internal"
)

// Error is the structured error type returned by every package. Wrap an
// underlying cause with Wrap so callers can both branch on Kind and still
// unwrap to the original error via errors.Is/As.
type Error struct {
	Kind    Kind
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// New constructs an Error of the given kind with a formatted message.
func New(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Wrap constructs an Error of the given kind around an existing cause.
func Wrap(kind Kind, cause error, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...), Cause: cause}
}

// KindOf extracts the Kind of err if it is (or wraps) an *Error, defaulting
// to Internal for anything else.
func KindOf(err error) Kind {
	var e *Error
	if asError(err, &e) {
		return e.Kind
	}
	return Internal
}

// asError walks err's single-error Unwrap chain and reports the first *Error
// it finds, the narrow case of errors.As that KindOf needs.
func asError(err error, target **Error) bool {
	for err != nil {
		if e, ok := err.(*Error); ok {
			*target = e
			return true
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			return false
		}
		err = u.Unwrap()
	}
	return false
}
