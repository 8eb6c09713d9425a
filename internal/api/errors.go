package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/citrusbyte/lemonade-core/internal/auth"
	"github.com/citrusbyte/lemonade-core/internal/stand"
)

// Error is the JSON envelope for every non-2xx response.
type Error struct {
	Status  int    `json:"status"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v != nil {
		json.NewEncoder(w).Encode(v)
	}
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, Error{Status: status, Code: code, Message: message})
}

func writeUnauthorized(w http.ResponseWriter, message string) {
	writeError(w, http.StatusUnauthorized, "unauthorised", message)
}

func writeForbidden(w http.ResponseWriter) {
	writeError(w, http.StatusForbidden, "invalid_permissions", "insufficient permissions")
}

func writeUnprocessable(w http.ResponseWriter, message string) {
	writeError(w, http.StatusUnprocessableEntity, "unprocessable_entity", message)
}

func writeBadRequest(w http.ResponseWriter, message string) {
	writeError(w, http.StatusBadRequest, "bad_request", message)
}

func writeNotFound(w http.ResponseWriter) {
	writeError(w, http.StatusNotFound, "not_found", "resource not found")
}

func writeConflict(w http.ResponseWriter, message string) {
	writeError(w, http.StatusConflict, "conflict", message)
}

func writeInternalError(w http.ResponseWriter) {
	writeError(w, http.StatusInternalServerError, "internal_error", "internal server error")
}

// writeDomainError maps sentinel errors from the domain packages onto the
// HTTP contract. Unknown errors become opaque 500s.
func (s *Server) writeDomainError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, auth.ErrExpiredToken):
		writeError(w, http.StatusUnauthorized, "expired_token", "token has expired")
	case errors.Is(err, auth.ErrInvalidCredentials):
		writeUnauthorized(w, "invalid credentials")
	case errors.Is(err, auth.ErrInvalidPermissions):
		writeForbidden(w)
	case errors.Is(err, auth.ErrUserExists):
		writeConflict(w, "a user with this email already exists")
	case errors.Is(err, stand.ErrStandExists):
		writeConflict(w, "a lemonade stand with this name already exists")
	case errors.Is(err, auth.ErrTokenConflict):
		writeBadRequest(w, "could not persist token pair")
	case errors.Is(err, auth.ErrUserNotFound), errors.Is(err, stand.ErrStandNotFound):
		writeNotFound(w)
	default:
		s.log.Error("request failed", "error", err)
		writeInternalError(w)
	}
}
