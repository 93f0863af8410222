// Package httputil provides HTTP handler utilities for the JSON response
// envelope, consistent error handling, and request parsing.
package httputil

import (
	"encoding/json"
	"net/http"

	"github.com/vendorgate/vendorgate/pkg/contextkeys"
)

// Envelope is the uniform response shape for every API endpoint.
type Envelope struct {
	OK        bool        `json:"ok"`
	Data      interface{} `json:"data,omitempty"`
	Error     *ErrorBody  `json:"error,omitempty"`
	RequestID string      `json:"request_id,omitempty"`
}

// ErrorBody is the client-visible error payload.
type ErrorBody struct {
	Code    Code   `json:"code"`
	Message string `json:"message"`
}

// WriteJSON writes a success envelope with the given status code
func WriteJSON(w http.ResponseWriter, r *http.Request, status int, data interface{}) error {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	return json.NewEncoder(w).Encode(Envelope{
		OK:        true,
		Data:      data,
		RequestID: contextkeys.GetRequestID(r.Context()),
	})
}

// WriteSuccess writes a 200 OK envelope
func WriteSuccess(w http.ResponseWriter, r *http.Request, data interface{}) error {
	return WriteJSON(w, r, http.StatusOK, data)
}

// WriteCreated writes a 201 Created envelope
func WriteCreated(w http.ResponseWriter, r *http.Request, data interface{}) error {
	return WriteJSON(w, r, http.StatusCreated, data)
}

// WriteNoContent writes a 204 No Content response
func WriteNoContent(w http.ResponseWriter) {
	w.WriteHeader(http.StatusNoContent)
}

// WriteError converts err into the error envelope. Internal causes are not
// serialized; callers are expected to have logged them already.
func WriteError(w http.ResponseWriter, r *http.Request, err error) {
	apiErr := AsAPIError(err)
	WriteErrorCode(w, r, apiErr.Code, apiErr.Message)
}

// WriteErrorCode writes an error envelope with an explicit code and message
func WriteErrorCode(w http.ResponseWriter, r *http.Request, code Code, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(StatusForCode(code))
	json.NewEncoder(w).Encode(Envelope{
		OK:        false,
		Error:     &ErrorBody{Code: code, Message: message},
		RequestID: contextkeys.GetRequestID(r.Context()),
	})
}

// WriteValidationError writes a VALIDATION_FAILED envelope (400)
func WriteValidationError(w http.ResponseWriter, r *http.Request, message string) {
	WriteErrorCode(w, r, CodeValidation, message)
}

// WriteUnauthenticated writes an UNAUTHENTICATED envelope (401)
func WriteUnauthenticated(w http.ResponseWriter, r *http.Request) {
	WriteErrorCode(w, r, CodeUnauthenticated, "authentication required")
}

// WriteForbidden writes a FORBIDDEN envelope (403) with the generic message
func WriteForbidden(w http.ResponseWriter, r *http.Request) {
	WriteErrorCode(w, r, CodeForbidden, "access denied")
}
