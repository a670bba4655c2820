package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidQuery signals a client-correctable query or parameter problem.
	ErrInvalidQuery = errors.New("invalid query")
	// ErrRetrievalFailure signals a backend or transport failure.
	ErrRetrievalFailure = errors.New("retrieval failure")
	// ErrNoMoreElements signals a batch taken from an exhausted iterator.
	ErrNoMoreElements = errors.New("no more elements")
	// ErrStreamAborted signals a streamed response cut short mid-write.
	ErrStreamAborted = errors.New("stream aborted")
	// ErrNotFound signals an unknown or expired job or entity.
	ErrNotFound = errors.New("not found")
	// ErrCapacityExceeded signals a saturated job queue.
	ErrCapacityExceeded = errors.New("capacity exceeded")
	// ErrJobNotReady signals results requested for a job that is still running.
	ErrJobNotReady = errors.New("job not finished")
	// ErrJobFailed signals results requested for a job that ended in ERROR.
	ErrJobFailed = errors.New("job failed")
)

// InvalidQueryError carries the client-facing detail of an ErrInvalidQuery.
type InvalidQueryError struct {
	Detail string
}

func (e *InvalidQueryError) Error() string {
	if e.Detail == "" {
		return ErrInvalidQuery.Error()
	}
	return ErrInvalidQuery.Error() + ": " + e.Detail
}

func (e *InvalidQueryError) Unwrap() error { return ErrInvalidQuery }

// NewInvalidQuery creates an invalid query error with a client-facing detail.
func NewInvalidQuery(format string, args ...any) error {
	return &InvalidQueryError{Detail: fmt.Sprintf(format, args...)}
}

// RetrievalError wraps ErrRetrievalFailure with the backend cause.
// The cause is kept for diagnostics and never rendered to clients.
type RetrievalError struct {
	Cause error
}

func (e *RetrievalError) Error() string {
	return fmt.Sprintf("%s: %v", ErrRetrievalFailure.Error(), e.Cause)
}

// Is matches ErrRetrievalFailure; Unwrap exposes the cause.
func (e *RetrievalError) Is(target error) bool { return target == ErrRetrievalFailure }

func (e *RetrievalError) Unwrap() error { return e.Cause }

// NewRetrievalFailure creates a retrieval failure error.
func NewRetrievalFailure(cause error) error {
	return &RetrievalError{Cause: cause}
}

// StreamAbortedError wraps ErrStreamAborted with the failure that stopped the stream.
type StreamAbortedError struct {
	Written int
	Cause   error
}

func (e *StreamAbortedError) Error() string {
	return fmt.Sprintf("%s after %d entities: %v", ErrStreamAborted.Error(), e.Written, e.Cause)
}

// Is matches ErrStreamAborted; Unwrap exposes the cause.
func (e *StreamAbortedError) Is(target error) bool { return target == ErrStreamAborted }

func (e *StreamAbortedError) Unwrap() error { return e.Cause }

// JobFailedError carries the display-safe message recorded on a failed job.
type JobFailedError struct {
	Message string
}

func (e *JobFailedError) Error() string {
	return ErrJobFailed.Error() + ": " + e.Message
}

func (e *JobFailedError) Unwrap() error { return ErrJobFailed }
