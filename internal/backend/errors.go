package backend

import (
	"errors"
	"fmt"
)

// ErrStopped is returned once Shutdown has been called.
var ErrStopped = errors.New("backend manager stopped")

// modelNotFoundError means no model file could be resolved.
type modelNotFoundError struct{ msg string }

func (e modelNotFoundError) Error() string { return "model not found: " + e.msg }

// ErrModelNotFound constructs a modelNotFoundError.
func ErrModelNotFound(msg string) error { return modelNotFoundError{msg: msg} }

// IsModelNotFound reports whether err indicates a missing model file.
func IsModelNotFound(err error) bool {
	var e modelNotFoundError
	return errors.As(err, &e)
}

// executableNotFoundError signals that llama-server could not be located.
type executableNotFoundError struct{ msg string }

func (e executableNotFoundError) Error() string { return e.msg }

// ErrExecutableNotFound constructs an executableNotFoundError.
func ErrExecutableNotFound(msg string) error { return executableNotFoundError{msg: msg} }

// IsExecutableNotFound reports whether err indicates a missing llama-server binary.
func IsExecutableNotFound(err error) bool {
	var e executableNotFoundError
	return errors.As(err, &e)
}

// unhealthyError means the backend was launched but never became healthy, or
// exited. Tail carries the last bytes of its output.
type unhealthyError struct {
	reason string
	tail   string
	err    error
}

func (e unhealthyError) Error() string {
	s := "backend unhealthy: " + e.reason
	if e.err != nil {
		s += ": " + e.err.Error()
	}
	if e.tail != "" {
		s += "; output tail: " + e.tail
	}
	return s
}

func (e unhealthyError) Unwrap() error { return e.err }

// ErrBackendUnhealthy constructs an unhealthyError.
func ErrBackendUnhealthy(reason, tail string, err error) error {
	return unhealthyError{reason: reason, tail: tail, err: err}
}

// IsBackendUnhealthy reports whether err indicates a backend that is not serving.
func IsBackendUnhealthy(err error) bool {
	var e unhealthyError
	return errors.As(err, &e)
}

// requestFailedError covers transport failures and non-2xx responses.
type requestFailedError struct {
	status int
	body   string
	err    error
}

func (e requestFailedError) Error() string {
	if e.err != nil {
		return "backend request failed: " + e.err.Error()
	}
	return fmt.Sprintf("backend request failed: status %d: %s", e.status, e.body)
}

func (e requestFailedError) Unwrap() error { return e.err }

// StatusCode returns the HTTP status of the failed response, or 0.
func (e requestFailedError) StatusCode() int { return e.status }

// IsRequestFailed reports whether err is a failed backend request.
func IsRequestFailed(err error) bool {
	var e requestFailedError
	return errors.As(err, &e)
}

// IsConnectionFailure reports whether err is a backend request that never
// got an HTTP response, such as a refused or reset connection.
func IsConnectionFailure(err error) bool {
	var e requestFailedError
	return errors.As(err, &e) && e.status == 0 && e.err != nil
}

// malformedResponseError means the backend answered 2xx with an unusable body.
type malformedResponseError struct{ err error }

func (e malformedResponseError) Error() string { return "malformed backend response: " + e.err.Error() }
func (e malformedResponseError) Unwrap() error { return e.err }

// IsMalformedResponse reports whether err is a malformed backend response.
func IsMalformedResponse(err error) bool {
	var e malformedResponseError
	return errors.As(err, &e)
}

// cancelledError wraps a context error raised during a backend call.
type cancelledError struct{ err error }

func (e cancelledError) Error() string { return "backend request cancelled: " + e.err.Error() }
func (e cancelledError) Unwrap() error { return e.err }

// IsCancelled reports whether err is a cancelled backend call.
func IsCancelled(err error) bool {
	var e cancelledError
	return errors.As(err, &e)
}
