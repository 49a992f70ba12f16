package server

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"

	"github.com/soofff/boofi/internal/apps"
	"github.com/soofff/boofi/internal/auth"
	"github.com/soofff/boofi/internal/files"
	"github.com/soofff/boofi/internal/journal"
	"github.com/soofff/boofi/internal/sanitize"
	"github.com/soofff/boofi/internal/system"
	"github.com/soofff/boofi/internal/task"
)

// ErrorResponse is the standard JSON error envelope returned by all HTTP error responses.
type ErrorResponse struct {
	Error string `json:"error"`
}

// requestError is a caller mistake detected before the controller is
// involved.
type requestError struct {
	message string
}

func (e requestError) Error() string { return e.message }

var errUnknownService = errors.New("service not found")

// writeError writes a JSON error response with the given HTTP status code and message.
func writeError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(ErrorResponse{Error: message}); err != nil {
		log.Printf("[APIServer] failed to write error response: %v", err)
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("[APIServer] failed to write response: %v", err)
	}
}

// writeFailure maps err to a status code and writes it.
func writeFailure(w http.ResponseWriter, err error) {
	status := statusFor(err)
	if status == http.StatusUnauthorized {
		w.Header().Set("WWW-Authenticate", basicChallenge)
	}
	writeError(w, status, sanitize.Diagnostic(err.Error()))
}

func statusFor(err error) int {
	var (
		reqErr      requestError
		deserialize apps.DeserializeError
		credErr     system.CredentialError
		notMatched  files.NotMatchedError
		notCapable  files.NotCapableError
		taskMissing task.NotFoundError
	)
	switch {
	case errors.As(err, &reqErr), errors.As(err, &deserialize):
		return http.StatusBadRequest
	case errors.As(err, &credErr):
		if credErr.Reason == system.ReasonHost {
			return http.StatusBadGateway
		}
		return http.StatusUnauthorized
	case errors.Is(err, auth.ErrNotFound), errors.Is(err, auth.ErrExpired):
		return http.StatusUnauthorized
	case errors.Is(err, errUnknownService), errors.Is(err, apps.ErrAppNotFound),
		errors.As(err, &notMatched), errors.As(err, &taskMissing), journal.IsNotFound(err):
		return http.StatusNotFound
	case errors.As(err, &notCapable):
		return http.StatusMethodNotAllowed
	}
	return http.StatusInternalServerError
}
