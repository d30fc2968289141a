package schedule

import "errors"

var (
	// ErrClosed is returned for tasks scheduled on, or still queued in, a closed Scheduler.
	ErrClosed = errors.New("scheduler closed")

	// ErrTaskPanicked wraps the value recovered from a panicking task.
	ErrTaskPanicked = errors.New("task panicked")

	// ErrInvalidMaxConcurrent is returned when the concurrency limit is less than 1.
	ErrInvalidMaxConcurrent = errors.New("max concurrent must be at least 1")

	// ErrInvalidMinInterval is returned when the minimum interval is negative.
	ErrInvalidMinInterval = errors.New("min interval cannot be negative")
)
