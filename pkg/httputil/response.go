package httputil

import (
	"encoding/json"
	"errors"
	"net/http"
)

// Envelope is the body of every successful API response
type Envelope struct {
	Code int         `json:"code"`
	Msg  string      `json:"msg"`
	Data interface{} `json:"data"`
}

// ErrorResponse is the body of every error response
type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
}

// APIError is implemented by domain errors that know how they are reported
type APIError interface {
	error
	HTTPStatus() int
	ErrorCode() string
	PublicMessage() string
}

// WriteJSON writes a JSON response with the given status code
func WriteJSON(w http.ResponseWriter, status int, data interface{}) error {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	return json.NewEncoder(w).Encode(data)
}

// WriteData wraps data in the response envelope
func WriteData(w http.ResponseWriter, status int, data interface{}) error {
	return WriteJSON(w, status, Envelope{Code: 0, Data: data})
}

// WriteSuccess writes data with 200 OK
func WriteSuccess(w http.ResponseWriter, data interface{}) error {
	return WriteData(w, http.StatusOK, data)
}

// WriteCreated writes data with 201 Created
func WriteCreated(w http.ResponseWriter, data interface{}) error {
	return WriteData(w, http.StatusCreated, data)
}

// WriteMessage writes a data-less envelope carrying msg
func WriteMessage(w http.ResponseWriter, msg string) error {
	return WriteJSON(w, http.StatusOK, Envelope{Code: 0, Msg: msg})
}

// WriteErrorCode writes an error body with a machine readable code
func WriteErrorCode(w http.ResponseWriter, status int, code, message string) {
	WriteJSON(w, status, ErrorResponse{Error: message, Code: code})
}

// WriteErrorMessage writes a JSON error response with a custom message
func WriteErrorMessage(w http.ResponseWriter, status int, message string) {
	WriteErrorCode(w, status, "", message)
}

// WriteError reports err. Errors implementing APIError choose their own
// status and message; anything else is an opaque 500.
func WriteError(w http.ResponseWriter, err error) {
	var apiErr APIError
	if errors.As(err, &apiErr) {
		WriteErrorCode(w, apiErr.HTTPStatus(), apiErr.ErrorCode(), apiErr.PublicMessage())
		return
	}
	WriteInternalError(w)
}

// WriteBadRequest writes a bad request error (400)
func WriteBadRequest(w http.ResponseWriter, message string) {
	WriteErrorCode(w, http.StatusBadRequest, "bad_request", message)
}

// WriteValidationError writes a validation error (422)
func WriteValidationError(w http.ResponseWriter, message string) {
	WriteErrorCode(w, http.StatusUnprocessableEntity, "validation_error", message)
}

// WriteNotFound writes a not found error (404)
func WriteNotFound(w http.ResponseWriter, message string) {
	WriteErrorCode(w, http.StatusNotFound, "not_found", message)
}

// WriteForbidden writes a forbidden error (403)
func WriteForbidden(w http.ResponseWriter, message string) {
	WriteErrorCode(w, http.StatusForbidden, "forbidden", message)
}

// WriteConflict writes a conflict error (409)
func WriteConflict(w http.ResponseWriter, message string) {
	WriteErrorCode(w, http.StatusConflict, "conflict", message)
}

// WriteTooManyRequests writes a rate limit error (429)
func WriteTooManyRequests(w http.ResponseWriter, message string) {
	WriteErrorCode(w, http.StatusTooManyRequests, "rate_limited", message)
}

// WriteServiceUnavailable writes a service unavailable error (503)
func WriteServiceUnavailable(w http.ResponseWriter, message string) {
	WriteErrorCode(w, http.StatusServiceUnavailable, "unavailable", message)
}

// WriteInternalError writes a generic 500 without leaking the cause
func WriteInternalError(w http.ResponseWriter) {
	WriteErrorCode(w, http.StatusInternalServerError, "internal", "internal server error")
}
