package listing

import (
	"context"
	"time"

	"github.com/bundlesync/engine/internal/domain/listing"
	"github.com/google/uuid"
)

// JobKind is the remote step a sync job performs.
type JobKind string

const (
	JobKindSubmit JobKind = "submit"
	JobKindPoll   JobKind = "poll"
	JobKindPush   JobKind = "push"
)

// Job asks a worker to run one remote step for a listing at or after NotBefore.
// Jobs carry no state of their own: the worker reloads the listing and drops
// the job when the listing no longer waits for that step.
type Job struct {
	Kind      JobKind
	ListingID uuid.UUID
	AccountID string
	NotBefore time.Time
}

// FlightKey is the single-flight key of the job's listing.
func (j Job) FlightKey() string {
	return "listing:" + j.ListingID.String()
}

// JobQueue accepts sync jobs for asynchronous execution.
type JobQueue interface {
	Enqueue(ctx context.Context, job Job) error
}

// JobQueueFunc adapts a function to JobQueue.
type JobQueueFunc func(ctx context.Context, job Job) error

// Enqueue calls f.
func (f JobQueueFunc) Enqueue(ctx context.Context, job Job) error {
	return f(ctx, job)
}

// FlightLock guards a listing so only one submit or poll runs for it at a time.
type FlightLock interface {
	// TryLock returns ok=false without waiting when the key is held.
	// The lock expires after ttl if unlock is never called.
	TryLock(ctx context.Context, key string, ttl time.Duration) (unlock func(), ok bool, err error)
}

func jobFor(l *listing.Listing, d listing.Decision) (Job, bool) {
	var kind JobKind
	switch d.Action {
	case listing.PollActionSubmit:
		kind = JobKindSubmit
	case listing.PollActionPoll:
		kind = JobKindPoll
	default:
		return Job{}, false
	}
	return Job{Kind: kind, ListingID: l.ID, AccountID: l.AccountID, NotBefore: d.At}, true
}
