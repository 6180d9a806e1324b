package backend

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
)

var (
	// ErrNotAuthenticated means no signed-in user is available. The user may
	// sign in later, so queued work treats it as a retryable failure.
	ErrNotAuthenticated = errors.New("backend: not authenticated")
	// ErrNotFound is returned when a single-row read finds nothing.
	ErrNotFound = errors.New("backend: not found")
)

// APIError is a non-2xx response from the backend.
type APIError struct {
	Status  int    `json:"-"`
	Code    string `json:"code,omitempty"`
	Message string `json:"message"`
	Details string `json:"details,omitempty"`
	Hint    string `json:"hint,omitempty"`
}

func (e *APIError) Error() string {
	msg := e.Message
	if msg == "" {
		msg = http.StatusText(e.Status)
	}
	if e.Code != "" {
		return fmt.Sprintf("backend: http %d: %s: %s", e.Status, e.Code, msg)
	}
	return fmt.Sprintf("backend: http %d: %s", e.Status, msg)
}

// Transient reports whether the failure is on the server or connection
// side: any 5xx, PostgREST connection errors (PGRST000-PGRST003) and
// Postgres connection exceptions (SQLSTATE class 08).
func (e *APIError) Transient() bool {
	if e.Status >= 500 {
		return true
	}
	switch e.Code {
	case "PGRST000", "PGRST001", "PGRST002", "PGRST003":
		return true
	}
	return len(e.Code) == 5 && strings.HasPrefix(e.Code, "08")
}

// IsStatus reports whether err is an APIError with the given status.
func IsStatus(err error, status int) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.Status == status
}
