package listing

import (
	"time"

	"github.com/bundlesync/engine/internal/domain/shared"
)

// RetryPolicy bounds how long a listing may stay pending.
type RetryPolicy struct {
	// MaxRetries is the number of re-polls (or re-submits after transport
	// errors) allowed before the listing is marked failed.
	MaxRetries int
	// InitialPollDelay is the wait between a submit and its first poll.
	InitialPollDelay time.Duration
	BaseDelay        time.Duration
	MaxDelay         time.Duration
}

// DefaultRetryPolicy returns the default retry policy
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxRetries:       10,
		InitialPollDelay: 30 * time.Second,
		BaseDelay:        time.Minute,
		MaxDelay:         5 * time.Minute,
	}
}

// Delay returns the wait before the given retry attempt (1-based).
func (p RetryPolicy) Delay(attempt int) time.Duration {
	return shared.ExponentialBackoff(p.BaseDelay, p.MaxDelay, attempt)
}

// PollAction tells the caller what to schedule after a state change.
type PollAction string

const (
	// PollActionNone means nothing is pending for this listing.
	PollActionNone PollAction = "none"
	// PollActionPoll means poll the current batch at Decision.At.
	PollActionPoll PollAction = "poll"
	// PollActionSubmit means (re)send the listing at Decision.At.
	PollActionSubmit PollAction = "submit"
)

// Decision is the follow-up work implied by a listing transition.
type Decision struct {
	Action PollAction
	At     time.Time
}
