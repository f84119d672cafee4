package aiqueue

import "errors"

// ErrRecordNotFound is returned when no record has the requested id.
var ErrRecordNotFound = errors.New("aiqueue: record not found")

// ErrNotRetryable is returned when a record is not in a retryable status.
var ErrNotRetryable = errors.New("aiqueue: record is not retryable")

// ErrUnknownStatus is returned when an invalid status is parsed.
var ErrUnknownStatus = errors.New("aiqueue: unknown status")

// ErrShutdown is returned by operations attempted after Shutdown.
var ErrShutdown = errors.New("aiqueue: orchestrator is shut down")
