package catchup

import (
	"errors"
	"fmt"
)

// ErrMalformedSnapshot reports a snapshot payload that cannot be
// deserialized. The snapshot is discarded whole; the caller re-requests it.
var ErrMalformedSnapshot = errors.New("catchup: malformed snapshot")

// ConsistencyError reports a failed pre-batch consistency check. No
// partition has been mutated when it is returned.
type ConsistencyError struct {
	Err error
}

// Error implements the error interface.
func (e *ConsistencyError) Error() string {
	return fmt.Sprintf("catchup: consistency check failed: %v", e.Err)
}

// Unwrap returns the underlying check failure.
func (e *ConsistencyError) Unwrap() error { return e.Err }

// FetchError reports a file pull that exhausted all retry attempts.
type FetchError struct {
	Path     string
	Node     string
	Attempts int
	Err      error
}

// Error implements the error interface.
func (e *FetchError) Error() string {
	return fmt.Sprintf("catchup: pull %s from %s failed after %d attempts: %v",
		e.Path, e.Node, e.Attempts, e.Err)
}

// Unwrap returns the last attempt's failure.
func (e *FetchError) Unwrap() error { return e.Err }

// InstallError reports a slot install that aborted. The slot keeps its
// pre-abort status so a later catch-up can resume it.
type InstallError struct {
	Slot uint32
	Err  error
}

// Error implements the error interface.
func (e *InstallError) Error() string {
	return fmt.Sprintf("catchup: install slot %d: %v", e.Slot, e.Err)
}

// Unwrap returns the phase failure that aborted the install.
func (e *InstallError) Unwrap() error { return e.Err }
