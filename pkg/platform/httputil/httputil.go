// Package httputil holds the JSON response helpers shared by HTTP handlers.
package httputil

import (
	"encoding/json"
	"errors"
	"net/http"
)

// Error codes exposed to clients.
const (
	CodeBadRequest  = "bad_request"
	CodeNotFound    = "not_found"
	CodeBadGateway  = "bad_gateway"
	CodeUnavailable = "service_unavailable"
	CodeInternal    = "internal_error"
)

var codeStatus = map[string]int{
	CodeBadRequest:  http.StatusBadRequest,
	CodeNotFound:    http.StatusNotFound,
	CodeBadGateway:  http.StatusBadGateway,
	CodeUnavailable: http.StatusServiceUnavailable,
	CodeInternal:    http.StatusInternalServerError,
}

// Error is an error with a client-facing code.
type Error struct {
	Code    string
	Message string
	Err     error
}

func New(code, message string) *Error {
	return &Error{Code: code, Message: message}
}

// Wrap attaches a client-facing code to err.
func Wrap(code, message string, err error) *Error {
	return &Error{Code: code, Message: message, Err: err}
}

func (e *Error) Error() string {
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Err }

// Status maps the code to an HTTP status.
func (e *Error) Status() int {
	if status, ok := codeStatus[e.Code]; ok {
		return status
	}
	return http.StatusInternalServerError
}

type errorResponse struct {
	Error       string `json:"error"`
	Description string `json:"error_description,omitempty"`
}

// WriteError writes err as a JSON error body. Uncoded errors and internal
// errors never leak their message.
func WriteError(w http.ResponseWriter, err error) {
	var e *Error
	if !errors.As(err, &e) {
		e = New(CodeInternal, "")
	}
	body := errorResponse{Error: e.Code}
	if e.Code != CodeInternal {
		body.Description = e.Message
	}
	WriteJSON(w, e.Status(), body)
}

// WriteJSON writes v with the given status.
func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
