package backend

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	// ErrInvalidParameter is returned when no registered Backend serves a
	// URL's scheme, or when a request Range is out of bounds.
	ErrInvalidParameter = errors.New("invalid parameter")
	// ErrInvalidURI is returned when a URL fails to parse, or lacks a
	// component required by its origin.
	ErrInvalidURI = errors.New("invalid URI")
	// ErrPlugin is returned when an extension module cannot be loaded.
	ErrPlugin = errors.New("plugin error")
)

// InvalidURIError returns an error wrapping ErrInvalidURI for |url|.
func InvalidURIError(url string) error {
	return fmt.Errorf("%w: %s", ErrInvalidURI, url)
}

// BackendError is a failure attributable to the remote origin, or to missing
// or insufficient credentials for it. Provider-specific error shapes are
// never surfaced: they're flattened into Message and StatusCode.
type BackendError struct {
	// Message describing the failure.
	Message string
	// StatusCode of the origin response, or zero if unknown.
	StatusCode int
	// Header of the origin response, if any.
	Header http.Header
}

func (e *BackendError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("backend error: %s (status %d)", e.Message, e.StatusCode)
	}
	return "backend error: " + e.Message
}

// PluginError is a failure to load an extension module.
type PluginError struct {
	// Path of the module.
	Path string
	// Err is the cause.
	Err error
}

func (e *PluginError) Error() string {
	return fmt.Sprintf("%s: %s: %v", ErrPlugin, e.Path, e.Err)
}

// Unwrap supports errors.Is(err, ErrPlugin) and access to the cause.
func (e *PluginError) Unwrap() []error { return []error{ErrPlugin, e.Err} }

// IsBackendError returns the *BackendError of |err|, if there is one.
func IsBackendError(err error) (*BackendError, bool) {
	var be *BackendError
	var ok = errors.As(err, &be)
	return be, ok
}
