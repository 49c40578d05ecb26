package server

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/soapscribe/soapscribe/internal/identity"
	"github.com/soapscribe/soapscribe/internal/notegen"
	"github.com/soapscribe/soapscribe/internal/notes"
	"github.com/soapscribe/soapscribe/internal/session"
	"github.com/soapscribe/soapscribe/pkg/capture"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("json encode failed", slog.String("error", err.Error()))
	}
}

type errResponse struct {
	Error string `json:"error"`
}

func errorBody(msg string) errResponse {
	return errResponse{Error: msg}
}

// decodeJSON decodes the request body into v with a size cap. Unknown fields
// are rejected so client typos surface as 400s instead of silent no-ops.
func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	r.Body = http.MaxBytesReader(w, r.Body, 1<<20)
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}

// writeError maps domain errors onto HTTP status codes.
func writeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, session.ErrUnauthenticated), errors.Is(err, identity.ErrNoIdentity):
		writeJSON(w, http.StatusUnauthorized, errorBody(err.Error()))
	case errors.Is(err, notes.ErrNotFound):
		writeJSON(w, http.StatusNotFound, errorBody("not found"))
	case errors.Is(err, notes.ErrMissingSubject), errors.Is(err, notes.ErrMissingOwner):
		writeJSON(w, http.StatusBadRequest, errorBody(err.Error()))
	case errors.Is(err, session.ErrInvalidTransition), errors.Is(err, capture.ErrDeviceUnavailable):
		writeJSON(w, http.StatusConflict, errorBody(err.Error()))
	case errors.Is(err, session.ErrTranscriptionFailed), errors.Is(err, notegen.ErrGenerationFailed):
		writeJSON(w, http.StatusBadGateway, errorBody(err.Error()))
	default:
		slog.Error("request failed", slog.String("error", err.Error()))
		writeJSON(w, http.StatusInternalServerError, errorBody("internal error"))
	}
}
