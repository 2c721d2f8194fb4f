package domain

import (
	"errors"
	"fmt"
	"net/http"
)

// Domain errors - used across all layers
var (
	// ErrNotFound indicates the requested resource was not found
	ErrNotFound = errors.New("not found")

	// ErrInvalidInput indicates the input is invalid
	ErrInvalidInput = errors.New("invalid input")

	// ErrUnauthorized indicates credentials are missing or the token was rejected
	ErrUnauthorized = errors.New("unauthorized")

	// ErrRemoteQuery indicates the remote query service rejected a call or reported a failed query
	ErrRemoteQuery = errors.New("remote query failed")

	// ErrQueryTimeout indicates polling gave up before the remote query reached a terminal status
	ErrQueryTimeout = errors.New("query timeout")

	// ErrStoreUnavailable indicates the persistence layer could not be reached
	ErrStoreUnavailable = errors.New("store unavailable")

	// ErrConflict indicates a compare-and-patch guard did not match
	ErrConflict = errors.New("conflict")

	// ErrJobFinished indicates a control action targeted a job that already reached a terminal status
	ErrJobFinished = errors.New("job already finished")

	// ErrSyncInProgress indicates a sync is already running for the table
	ErrSyncInProgress = errors.New("sync already in progress")
)

// RemoteQueryError describes a non-2xx response from the remote query service.
type RemoteQueryError struct {
	Op         string
	StatusCode int
	Body       string
}

func (e *RemoteQueryError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("%s: remote query service returned %d", e.Op, e.StatusCode)
	}
	return fmt.Sprintf("%s: remote query service returned %d: %s", e.Op, e.StatusCode, e.Body)
}

// Unwrap lets callers match with errors.Is. A 401 that survived the token
// retry is an auth failure, everything else is a remote query failure.
func (e *RemoteQueryError) Unwrap() error {
	if e.StatusCode == http.StatusUnauthorized {
		return ErrUnauthorized
	}
	return ErrRemoteQuery
}
