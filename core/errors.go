package core

import (
	"errors"
	"fmt"
)

// Sentinel errors forming the framework's failure taxonomy. Callers classify
// failures with errors.Is; wrapping preserves contextual detail.
var (
	// ErrEmptyDecomposition is fatal to a goal: the router produced no tasks.
	ErrEmptyDecomposition = errors.New("empty decomposition")
	// ErrNoWorkerAvailable is raised at dispatch time when no idle worker of
	// the required specialization appears within the bounded wait.
	ErrNoWorkerAvailable = errors.New("no worker available")
	// ErrGatewayTimeout is a retryable gateway failure: the call exceeded its
	// bounded timeout.
	ErrGatewayTimeout = errors.New("gateway timeout")
	// ErrGatewayUnavailable is a retryable gateway transport failure.
	ErrGatewayUnavailable = errors.New("gateway unavailable")
	// ErrWorkerFailure means a task exhausted its retry budget.
	ErrWorkerFailure = errors.New("worker failure")
	// ErrSessionAborted means the aggregation strategy's failure tolerance
	// was exceeded and the whole session aborted.
	ErrSessionAborted = errors.New("session aborted")
	// ErrMemoryWriteConflict signals concurrent writers for one fingerprint
	// class were detected. Never fatal to the triggering task; the store
	// retries internally.
	ErrMemoryWriteConflict = errors.New("memory write conflict")
	// ErrCancelled is reported by workers whose session was cancelled.
	ErrCancelled = errors.New("cancelled")
)

// Retryable reports whether an error may be retried by the caller within its
// own budget. Gateway timeouts and transport failures qualify; everything
// else is terminal for the attempt.
func Retryable(err error) bool {
	return errors.Is(err, ErrGatewayTimeout) || errors.Is(err, ErrGatewayUnavailable)
}

// GatewayError carries structured detail about a failed gateway invocation.
// It wraps one of the gateway sentinels so errors.Is classification works.
type GatewayError struct {
	Kind   GatewayKind `json:"kind"`
	Name   string      `json:"name"`
	Detail string      `json:"detail,omitempty"`
	Err    error       `json:"-"`
}

func (e *GatewayError) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("gateway %s/%s: %v: %s", e.Kind, e.Name, e.Err, e.Detail)
	}
	return fmt.Sprintf("gateway %s/%s: %v", e.Kind, e.Name, e.Err)
}

// Unwrap exposes the wrapped sentinel for errors.Is / errors.As.
func (e *GatewayError) Unwrap() error { return e.Err }

// NewGatewayError creates a GatewayError wrapping the given sentinel.
func NewGatewayError(kind GatewayKind, name string, sentinel error, detail string) *GatewayError {
	return &GatewayError{Kind: kind, Name: name, Err: sentinel, Detail: detail}
}
