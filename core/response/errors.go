// Copyright 2021 Dalarub & Ettrich GmbH - All Rights Reserved
// Unauthorized copying of this file, via any medium is strictly prohibited
// Proprietary and confidential
// info@dalarub.com
//

package response

import (
	"errors"
	"net/http"

	"github.com/goccy/go-json"

	"github.com/relabs-tech/pret/core/logger"
)

// Error is an error with a HTTP status code. Handlers return it to answer
// with a specific status.
type Error struct {
	Status  int
	Message string
	Details interface{}
	Err     error
}

func (e *Error) Error() string {
	if e.Message != "" {
		return e.Message
	}
	if e.Err != nil {
		return e.Err.Error()
	}
	return http.StatusText(e.Status)
}

// StatusCode returns the HTTP status code
func (e *Error) StatusCode() int {
	return e.Status
}

// Unwrap returns the wrapped error
func (e *Error) Unwrap() error {
	return e.Err
}

// NewError returns an error with the given status and message
func NewError(status int, message string) *Error {
	return &Error{Status: status, Message: message}
}

// BadRequest returns a 400 error
func BadRequest(message string) *Error { return NewError(http.StatusBadRequest, message) }

// Unauthorized returns a 401 error
func Unauthorized(message string) *Error { return NewError(http.StatusUnauthorized, message) }

// Forbidden returns a 403 error
func Forbidden(message string) *Error { return NewError(http.StatusForbidden, message) }

// NotFound returns a 404 error
func NotFound(message string) *Error { return NewError(http.StatusNotFound, message) }

// Conflict returns a 409 error
func Conflict(message string) *Error { return NewError(http.StatusConflict, message) }

// Gone returns a 410 error
func Gone(message string) *Error { return NewError(http.StatusGone, message) }

// TooManyRequests returns a 429 error
func TooManyRequests(message string) *Error { return NewError(http.StatusTooManyRequests, message) }

// Internal wraps err as a 500 error. The message of err is not exposed.
func Internal(err error) *Error {
	return &Error{Status: http.StatusInternalServerError, Message: http.StatusText(http.StatusInternalServerError), Err: err}
}

// ErrorBody is the body written for errors
type ErrorBody struct {
	Success    bool        `json:"success"`
	StatusCode int         `json:"statusCode"`
	Message    string      `json:"message"`
	Error      string      `json:"error"`
	Details    interface{} `json:"details,omitempty"`
}

type statusCoder interface {
	StatusCode() int
}

type detailer interface {
	Details() interface{}
}

// ErrorWriter writes an error response
type ErrorWriter func(w http.ResponseWriter, r *http.Request, err error)

// WriteError is the default ErrorWriter. Errors which carry a status code are
// written with their own message. Any other error is logged and answered
// with a plain 500, without exposing its text.
func WriteError(w http.ResponseWriter, r *http.Request, err error) {
	status := http.StatusInternalServerError
	message := http.StatusText(status)
	var details interface{}

	var sc statusCoder
	if errors.As(err, &sc) {
		status = sc.StatusCode()
		message = err.Error()
		var d detailer
		if errors.As(err, &d) {
			details = d.Details()
		} else if e, ok := sc.(*Error); ok {
			details = e.Details
		}
	}
	if status >= http.StatusInternalServerError {
		logger.FromContext(r.Context()).WithError(err).Errorf("%s %s failed with %d", r.Method, r.URL.Path, status)
	}

	body, _ := json.MarshalNoEscape(ErrorBody{
		Success:    false,
		StatusCode: status,
		Message:    message,
		Error:      http.StatusText(status),
		Details:    details,
	})
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	w.Write(body)
}
