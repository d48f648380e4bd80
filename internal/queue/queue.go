package queue

import (
	"context"
	"errors"
	"time"

	"github.com/orgball2608/video-distributor/internal/domain"
)

var (
	// ErrDuplicate is returned when a post id is enqueued twice.
	ErrDuplicate = errors.New("post already enqueued")

	// ErrPreempted is the cancellation cause handed to in-flight work when
	// a breaking post arrives.
	ErrPreempted = errors.New("preempted by breaking post")
)

// Client is the priority queue owning every pending post. Ordering is
// (priority class, schedule time, insertion order); DequeueReady never
// returns a post scheduled in the future.
type Client interface {
	// Enqueue persists and queues a post. Duplicate ids are rejected with
	// ErrDuplicate; the queue length does not change.
	Enqueue(ctx context.Context, post *domain.Post) error

	// DequeueReady pops the highest-priority ready post, or nil when
	// nothing is ready. The post is marked in_progress before it is
	// handed out.
	DequeueReady(ctx context.Context) (*domain.Post, error)

	// Requeue puts a dispatched post back at its original priority after a
	// transient failure or preemption. Only the worker owning the in-flight
	// post may call it; any other id is rejected with ErrDuplicate.
	Requeue(ctx context.Context, post *domain.Post) error

	// Recover adopts a stored pending post the in-memory queue does not
	// know about. Any known id, queued or in flight, is rejected with
	// ErrDuplicate so reconciliation can never double-dispatch a post.
	Recover(ctx context.Context, post *domain.Post) error

	// Preempt enqueues a breaking post and signals every in-flight
	// non-breaking operation to cancel at its next safe checkpoint.
	Preempt(ctx context.Context, post *domain.Post) error

	// TrackInFlight registers the cancel handle for a dispatched post so
	// Preempt can reach it.
	TrackInFlight(post *domain.Post, cancel context.CancelCauseFunc)

	// Release drops a post from in-flight tracking once it reached a
	// terminal state.
	Release(postID string)

	// Restore reloads pending and interrupted posts from the store at
	// boot. Interrupted (in_progress) posts re-enter as pending with an
	// incremented attempt counter.
	Restore(ctx context.Context) error

	Len() int

	// OldestPendingAge is the age of the oldest queued post, zero when
	// the queue is empty. Feeds the backlog watchdog.
	OldestPendingAge() time.Duration
}
