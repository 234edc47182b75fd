package visit

import (
	"errors"
	"fmt"
)

var (
	// ErrMissingIdentity is returned without contacting the backend when no user is signed in
	ErrMissingIdentity = errors.New("visit: missing user identity")
	// ErrNetwork wraps transport failures talking to the backend
	ErrNetwork = errors.New("visit: network error")
	// ErrQueueFull means an exit arrived while the submission queue was saturated; the report is dropped
	ErrQueueFull = errors.New("visit: submission queue full")
	ErrStopped   = errors.New("visit: recorder stopped")
)

// RejectedError is a non-2xx answer from the backend
type RejectedError struct {
	Status  int
	Message string
}

func (e *RejectedError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("visit: rejected with status %d", e.Status)
	}
	return fmt.Sprintf("visit: rejected with status %d: %s", e.Status, e.Message)
}

// apiError is the backend error envelope {"error":{"status":..,"message":..}}
type apiError struct {
	Error struct {
		Status  int    `json:"status"`
		Name    string `json:"name"`
		Message string `json:"message"`
	} `json:"error"`
}
