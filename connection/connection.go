// Package connection contains the transport layer of the driver. It dispatches
// a single request to the database server and delivers the decoded JSON
// response, or a typed error when the server rejects the request.
package connection

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
)

type Request struct {
	Method string
	Path   string
	Query  url.Values

	// Body is marshaled to JSON when non-nil.
	Body any
}

// Connection dispatches one request and decodes the response body into result
// when result is non-nil. Server-side rejections surface as *StatusError.
type Connection interface {
	Do(ctx context.Context, req Request, result any) error
}

// StatusError is the server's rejection of a request, carrying the HTTP status
// code and, when the server provided one, its own error number and message.
type StatusError struct {
	Code     int
	ErrorNum int
	Message  string
}

func (e *StatusError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("server returned %d (errorNum %d): %s", e.Code, e.ErrorNum, e.Message)
	}
	return fmt.Sprintf("server returned %d", e.Code)
}

func (e *StatusError) StatusCode() int {
	return e.Code
}

func IsStatusCode(err error, code int) bool {
	var se *StatusError
	if !errors.As(err, &se) {
		return false
	}
	return se.Code == code
}

func IsNotFound(err error) bool {
	return IsStatusCode(err, http.StatusNotFound)
}

func IsConflict(err error) bool {
	return IsStatusCode(err, http.StatusConflict)
}
