package scheduler

import "errors"

var (
	// ErrSchedulerNotRunning rejects jobs enqueued before Start or after Stop.
	ErrSchedulerNotRunning = errors.New("listing worker pool is not running")
	// ErrJobQueueFull means every worker is busy and the queue is at capacity;
	// the listing stays dirty and the next sweep picks it up.
	ErrJobQueueFull  = errors.New("listing job queue is full")
	ErrInvalidConfig = errors.New("invalid scheduler configuration")
)
