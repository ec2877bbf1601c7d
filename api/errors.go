package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/jmcleod/gatekeeper/credential"
	"github.com/jmcleod/gatekeeper/storage"
)

const (
	// maxAuthBodySize bounds bodies carrying usernames and passwords.
	maxAuthBodySize = 4 << 10
	// maxSmallBodySize bounds every other request body.
	maxSmallBodySize = 16 << 10
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, ErrorResponse{Error: msg})
}

// writeInternalError logs err and returns a generic 500 so internal
// details never reach the client.
func (a *API) writeInternalError(w http.ResponseWriter, msg string, err error) {
	a.logger.Error(msg, "component", "api", "error", err)
	writeError(w, http.StatusInternalServerError, msg)
}

func (a *API) mapError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, credential.ErrUnauthenticated),
		errors.Is(err, credential.ErrExpired),
		errors.Is(err, credential.ErrMalformed):
		writeError(w, http.StatusUnauthorized, err.Error())
	case errors.Is(err, credential.ErrUnauthorized):
		writeError(w, http.StatusForbidden, err.Error())
	case errors.Is(err, credential.ErrUserNotFound),
		errors.Is(err, credential.ErrNotFound),
		errors.Is(err, storage.ErrNotFound),
		errors.Is(err, storage.ErrNamespaceNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, credential.ErrConflict):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, credential.ErrInvalidArgument):
		writeError(w, http.StatusUnprocessableEntity, err.Error())
	default:
		a.writeInternalError(w, "internal error", err)
	}
}

// decodeJSON reads a JSON body of at most limit bytes into a T, writing a
// 400 or 413 and returning false on failure.
func decodeJSON[T any](w http.ResponseWriter, r *http.Request, limit int64) (T, bool) {
	var v T
	r.Body = http.MaxBytesReader(w, r.Body, limit)
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&v); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, fmt.Sprintf("request body exceeds %d bytes", limit))
			return v, false
		}
		writeError(w, http.StatusBadRequest, "invalid request body")
		return v, false
	}
	return v, true
}
