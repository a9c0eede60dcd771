package operator

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrNotFound indicates the requested object or prefix does not exist.
var ErrNotFound = errors.New("object not found")

// Error wraps a provider failure with the operation and key, and the HTTP
// status code of the provider response if one was received.
type Error struct {
	// Op is the failed operation ("list", "stat", "read").
	Op string
	// Key is the object key or listing prefix.
	Key string
	// StatusCode of the provider response, or zero.
	StatusCode int
	// Err is the underlying error.
	Err error
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s %q: %v", e.Op, e.Key, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// NotFound returns an *Error for a missing |key|.
func NotFound(op, key string) error {
	return &Error{Op: op, Key: key, StatusCode: http.StatusNotFound, Err: ErrNotFound}
}

// StatusCode returns the provider status code carried by |err|, or zero.
func StatusCode(err error) int {
	var oe *Error
	if errors.As(err, &oe) {
		return oe.StatusCode
	}
	return 0
}
