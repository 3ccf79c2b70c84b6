package restful

import (
	"errors"
	"net/http"
)

// Error is the structured error used to short-circuit request handling. It
// carries the HTTP status to respond with and a client-facing message which
// is rendered as `{"msg": "..."}` in the negotiated content type. Handlers
// return (or panic with) an *Error and the error boundary middleware turns
// it into the response.
type Error struct {
	// Msg is the client-facing message. It is the only field written to the
	// response body.
	Msg string `json:"msg" yaml:"msg"`
	// Status provides the HTTP status code for the response. It is never
	// serialized; the transport carries it.
	Status int `json:"-" yaml:"-"`
}

// Error satisfies the `error` interface.
func (e *Error) Error() string {
	return e.Msg
}

// GetStatus satisfies the `StatusError` interface.
func (e *Error) GetStatus() int {
	return e.Status
}

// StatusError is an error that has an HTTP status code. When returned from
// a handler, this sets the response status code. Detection is by type,
// via `errors.As`, so wrapped errors are still recognized and message text
// is never inspected.
type StatusError interface {
	GetStatus() int
	Error() string
}

// NewError creates a new instance of the structured error with the given
// status code and message. Replace this function to use your own error type;
// anything implementing `StatusError` is handled by the boundary.
var NewError = func(status int, msg string) StatusError {
	if msg == "" {
		msg = http.StatusText(status)
	}
	return &Error{
		Msg:    msg,
		Status: status,
	}
}

// AsStatusError returns the structured error inside err, if there is one.
// Errors produced by anything other than this package's constructors (or
// another `StatusError` implementation) report false, so plain errors can
// never be mistaken for an intentional response.
func AsStatusError(err error) (StatusError, bool) {
	var se StatusError
	if errors.As(err, &se) {
		return se, true
	}
	return nil, false
}

// Status304NotModified returns a 304. This is not really an error, but
// provides a way to send non-default responses.
func Status304NotModified() StatusError {
	return NewError(http.StatusNotModified, "")
}

// Error400BadRequest returns a 400.
func Error400BadRequest(msg string) StatusError {
	return NewError(http.StatusBadRequest, msg)
}

// Error401Unauthorized returns a 401.
func Error401Unauthorized(msg string) StatusError {
	return NewError(http.StatusUnauthorized, msg)
}

// Error403Forbidden returns a 403.
func Error403Forbidden(msg string) StatusError {
	return NewError(http.StatusForbidden, msg)
}

// Error404NotFound returns a 404.
func Error404NotFound(msg string) StatusError {
	return NewError(http.StatusNotFound, msg)
}

// Error405MethodNotAllowed returns a 405.
func Error405MethodNotAllowed(msg string) StatusError {
	return NewError(http.StatusMethodNotAllowed, msg)
}

// Error406NotAcceptable returns a 406.
func Error406NotAcceptable(msg string) StatusError {
	return NewError(http.StatusNotAcceptable, msg)
}

// Error409Conflict returns a 409.
func Error409Conflict(msg string) StatusError {
	return NewError(http.StatusConflict, msg)
}

// Error415UnsupportedMediaType returns a 415.
func Error415UnsupportedMediaType(msg string) StatusError {
	return NewError(http.StatusUnsupportedMediaType, msg)
}

// Error422UnprocessableEntity returns a 422.
func Error422UnprocessableEntity(msg string) StatusError {
	return NewError(http.StatusUnprocessableEntity, msg)
}

// Error500InternalServerError returns a 500.
func Error500InternalServerError(msg string) StatusError {
	return NewError(http.StatusInternalServerError, msg)
}
