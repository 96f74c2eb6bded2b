package hxcommunity

import (
	"errors"
	"fmt"
)

// Validation and mutation errors. Validation errors are returned before any
// network call is made.
var (
	ErrEmptyContent       = errors.New("content is empty")
	ErrNotSignedIn        = errors.New("no signed-in user")
	ErrMissingCredentials = errors.New("username and password are required")
	ErrMutationInFlight   = errors.New("mutation already in flight for this item")
	ErrNotFound           = errors.New("not found")
	ErrMalformedPayload   = errors.New("malformed remote payload")
)

// DispatchError is a failed action dispatch surfaced as an error.
type DispatchError struct {
	Action  string
	Status  Status
	Message string
}

func (e *DispatchError) Error() string {
	msg := e.Message
	if msg == "" {
		msg = "request failed"
	}
	if e.Action != "" {
		return fmt.Sprintf("%s: %s", e.Action, msg)
	}
	return msg
}

// ErrorCategory tells callers whether retrying by hand makes sense.
type ErrorCategory int

const (
	// Recoverable errors may succeed if the user re-triggers the action.
	Recoverable ErrorCategory = iota
	// Irrecoverable errors will fail the same way again.
	Irrecoverable
)

func (c ErrorCategory) String() string {
	switch c {
	case Recoverable:
		return "Recoverable"
	case Irrecoverable:
		return "Irrecoverable"
	default:
		return fmt.Sprintf("Unknown(%d)", int(c))
	}
}

// HTTPError is a non-2xx response from one of the remote endpoints.
type HTTPError struct {
	Op         string
	StatusCode int
	Body       string
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("%s: HTTP %d", e.Op, e.StatusCode)
}

// Category classifies the status code. 408 and 429 are recoverable along
// with every 5xx; other 4xx codes are not.
func (e *HTTPError) Category() ErrorCategory {
	switch {
	case e.StatusCode == 408, e.StatusCode == 429:
		return Recoverable
	case e.StatusCode >= 400 && e.StatusCode < 500:
		return Irrecoverable
	default:
		return Recoverable
	}
}

// IsIrrecoverable reports whether err wraps an *HTTPError that should not be
// retried.
func IsIrrecoverable(err error) bool {
	var he *HTTPError
	if errors.As(err, &he) {
		return he.Category() == Irrecoverable
	}
	return false
}
