package web

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5/middleware"
)

// MaxBodyBytes caps request bodies read by handlers.
const MaxBodyBytes = 1 << 20

// Envelope is the body shape of every JSON response.
type Envelope struct {
	Data  any       `json:"data,omitempty"`
	Meta  any       `json:"meta,omitempty"`
	Error *ErrorBody `json:"error,omitempty"`
}

// ErrorBody carries enough context for a client to retry the specific
// action that failed.
type ErrorBody struct {
	Message string `json:"message"`
	Kind    string `json:"kind,omitempty"`
	Ref     string `json:"ref,omitempty"`
}

// Respond writes data wrapped in the standard envelope.
func Respond(w http.ResponseWriter, status int, data any, meta any) {
	write(w, status, Envelope{Data: data, Meta: meta})
}

// RespondError writes a plain error message.
func RespondError(w http.ResponseWriter, status int, message string) {
	write(w, status, Envelope{Error: &ErrorBody{Message: message}})
}

// RespondTypedError writes an error carrying its kind and the reference
// it is about.
func RespondTypedError(w http.ResponseWriter, status int, message, kind, ref string) {
	write(w, status, Envelope{Error: &ErrorBody{Message: message, Kind: kind, Ref: ref}})
}

func write(w http.ResponseWriter, status int, body Envelope) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

// RequestIDFrom returns the request ID set by chi's RequestID middleware.
func RequestIDFrom(r *http.Request) string {
	return middleware.GetReqID(r.Context())
}
