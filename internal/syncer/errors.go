// Package syncer contains the background replicator that drains the outbox
// to the remote service and the lifecycle manager that sequences startup,
// periodic, and shutdown synchronization.
package syncer

import "fmt"

// NetworkError marks transient transport failures. The engine maps these to
// the offline status and retries automatically on the next cycle.
type NetworkError struct {
	Err error
}

func (e *NetworkError) Error() string { return "network: " + e.Err.Error() }
func (e *NetworkError) Unwrap() error { return e.Err }

// AuthError marks rejected credentials. Non-retriable until the user
// re-authenticates; the engine never re-authenticates itself.
type AuthError struct {
	StatusCode int
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("authentication rejected (HTTP %d)", e.StatusCode)
}

// RemoteError marks a reachable remote answering with a non-auth HTTP
// failure (e.g. a 5xx). Entries stay queued for the next cycle.
type RemoteError struct {
	StatusCode int
	Body       string
}

func (e *RemoteError) Error() string {
	if e.Body != "" {
		return fmt.Sprintf("remote returned HTTP %d: %s", e.StatusCode, e.Body)
	}
	return fmt.Sprintf("remote returned HTTP %d", e.StatusCode)
}

// RejectedError reports a reachable remote that refused to apply some
// entries of a batch. Acknowledged entries are already cleared; the rest
// stay queued.
type RejectedError struct {
	Count int
	First string // first rejection message, for the status line
}

func (e *RejectedError) Error() string {
	if e.First != "" {
		return fmt.Sprintf("remote rejected %d entries: %s", e.Count, e.First)
	}
	return fmt.Sprintf("remote rejected %d entries", e.Count)
}
