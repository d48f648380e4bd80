package queueimpl

import (
	"container/heap"
	"context"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/orgball2608/video-distributor/internal/domain"
	"github.com/orgball2608/video-distributor/internal/queue"
	postrepo "github.com/orgball2608/video-distributor/internal/repositories/post"
	apperrors "github.com/orgball2608/video-distributor/pkg/errors"
	"github.com/orgball2608/video-distributor/pkg/logger"
	"go.uber.org/fx"
)

type Opts struct {
	fx.In

	PostRepo postrepo.Repository
	Logger   logger.Logger
	Clock    clockwork.Clock
}

// QueueImpl is the durable-backed priority queue. The mutex guards only the
// in-memory structures; store writes happen outside it so no I/O ever
// suspends while holding the lock.
type QueueImpl struct {
	PostRepo postrepo.Repository
	Logger   logger.Logger
	Clock    clockwork.Clock

	mu       sync.Mutex
	items    postHeap
	ids      map[string]struct{} // queued or in-flight
	inFlight map[string]*flight
	seq      uint64
}

type flight struct {
	post   *domain.Post
	cancel context.CancelCauseFunc
	// preempted marks a flight whose cancel handle was not registered yet
	// when a breaking post arrived; the cancel fires on registration.
	preempted bool
}

func New(opts Opts) *QueueImpl {
	return &QueueImpl{
		PostRepo: opts.PostRepo,
		Logger:   opts.Logger,
		Clock:    opts.Clock,
		ids:      make(map[string]struct{}),
		inFlight: make(map[string]*flight),
	}
}

var _ queue.Client = (*QueueImpl)(nil)

func (q *QueueImpl) Enqueue(ctx context.Context, post *domain.Post) error {
	q.mu.Lock()
	if _, exists := q.ids[post.ID]; exists {
		q.mu.Unlock()
		return queue.ErrDuplicate
	}
	// Reserve the id before the store write so a concurrent enqueue of the
	// same post cannot slip in while we are off the lock.
	q.ids[post.ID] = struct{}{}
	q.mu.Unlock()

	if post.CreatedAt.IsZero() {
		post.CreatedAt = q.Clock.Now()
	}
	post.Status = domain.PostStatusPending

	if err := q.PostRepo.Create(ctx, post); err != nil {
		q.mu.Lock()
		delete(q.ids, post.ID)
		q.mu.Unlock()
		if apperrors.Is(err, postrepo.ErrAlreadyExists) {
			return queue.ErrDuplicate
		}
		return apperrors.Wrap(err, apperrors.KindStoreUnavailable, "failed to persist post")
	}

	q.push(post)
	q.Logger.Info("Post enqueued", "post_id", post.ID, "priority", post.Priority.String())
	return nil
}

func (q *QueueImpl) DequeueReady(ctx context.Context) (*domain.Post, error) {
	now := q.Clock.Now()

	q.mu.Lock()
	// The heap min may be a high-priority post scheduled in the future;
	// scan past it so a ready lower-priority post is not starved.
	var skipped []*item
	var picked *item
	for q.items.Len() > 0 {
		it := heap.Pop(&q.items).(*item)
		if it.effectiveAt.After(now) {
			skipped = append(skipped, it)
			continue
		}
		picked = it
		break
	}
	for _, it := range skipped {
		heap.Push(&q.items, it)
	}
	if picked == nil {
		q.mu.Unlock()
		return nil, nil
	}
	q.inFlight[picked.post.ID] = &flight{post: picked.post}
	q.mu.Unlock()

	post := picked.post
	if err := q.PostRepo.UpdateStatus(ctx, post.ID, domain.PostStatusInProgress, post.Attempt); err != nil {
		q.mu.Lock()
		delete(q.inFlight, post.ID)
		heap.Push(&q.items, picked)
		q.mu.Unlock()
		return nil, apperrors.Wrap(err, apperrors.KindStoreUnavailable, "failed to mark post in_progress")
	}

	post.Status = domain.PostStatusInProgress
	return post, nil
}

func (q *QueueImpl) Requeue(ctx context.Context, post *domain.Post) error {
	q.mu.Lock()
	if _, flying := q.inFlight[post.ID]; !flying {
		// Only the worker that dequeued a post owns its requeue; anything
		// else is already queued or not ours to touch.
		q.mu.Unlock()
		return queue.ErrDuplicate
	}
	delete(q.inFlight, post.ID)
	q.ids[post.ID] = struct{}{}
	q.mu.Unlock()

	post.Status = domain.PostStatusPending
	if err := q.PostRepo.UpdateStatus(ctx, post.ID, domain.PostStatusPending, post.Attempt); err != nil {
		return apperrors.Wrap(err, apperrors.KindStoreUnavailable, "failed to requeue post")
	}

	q.push(post)
	q.Logger.Info("Post requeued", "post_id", post.ID, "attempt", post.Attempt)
	return nil
}

func (q *QueueImpl) Recover(_ context.Context, post *domain.Post) error {
	q.mu.Lock()
	if _, known := q.ids[post.ID]; known {
		// Queued or owned by a worker right now; a stale pending row in the
		// store must not produce a second dispatch.
		q.mu.Unlock()
		return queue.ErrDuplicate
	}
	q.ids[post.ID] = struct{}{}
	q.mu.Unlock()

	post.Status = domain.PostStatusPending
	q.push(post)
	q.Logger.Info("Post recovered into queue", "post_id", post.ID)
	return nil
}

func (q *QueueImpl) Preempt(ctx context.Context, post *domain.Post) error {
	if !post.Priority.Preempts() {
		return q.Enqueue(ctx, post)
	}

	if err := q.Enqueue(ctx, post); err != nil {
		return err
	}

	q.mu.Lock()
	var cancels []context.CancelCauseFunc
	for id, fl := range q.inFlight {
		if fl.post.Priority.Preempts() {
			continue
		}
		if fl.cancel == nil {
			fl.preempted = true
			q.Logger.Info("Deferred preemption for post awaiting registration", "post_id", id)
			continue
		}
		cancels = append(cancels, fl.cancel)
	}
	q.mu.Unlock()

	// Cancellation is cooperative; cascades observe it at their next
	// strategy boundary and the orchestrator requeues the work.
	for _, cancel := range cancels {
		cancel(queue.ErrPreempted)
	}

	q.Logger.Info("Preemption signalled", "post_id", post.ID, "cancelled", len(cancels))
	return nil
}

func (q *QueueImpl) TrackInFlight(post *domain.Post, cancel context.CancelCauseFunc) {
	q.mu.Lock()
	fl, ok := q.inFlight[post.ID]
	if !ok {
		fl = &flight{post: post}
		q.inFlight[post.ID] = fl
	}
	fl.cancel = cancel
	fire := fl.preempted
	fl.preempted = false
	q.mu.Unlock()

	if fire {
		// A breaking post arrived between dequeue and registration.
		cancel(queue.ErrPreempted)
	}
}

func (q *QueueImpl) Release(postID string) {
	q.mu.Lock()
	defer q.mu.Unlock()
	delete(q.inFlight, postID)
	delete(q.ids, postID)
}

func (q *QueueImpl) Restore(ctx context.Context) error {
	posts, err := q.PostRepo.ListByStatus(ctx, domain.PostStatusPending, domain.PostStatusInProgress)
	if err != nil {
		return apperrors.Wrap(err, apperrors.KindStoreUnavailable, "failed to reload queue")
	}

	for _, post := range posts {
		if post.Status == domain.PostStatusInProgress {
			// Interrupted by a crash; resume with a fresh attempt.
			post.Attempt++
			if err := q.PostRepo.UpdateStatus(ctx, post.ID, domain.PostStatusPending, post.Attempt); err != nil {
				return apperrors.Wrap(err, apperrors.KindStoreUnavailable, "failed to reset interrupted post")
			}
			post.Status = domain.PostStatusPending
		}

		q.mu.Lock()
		if _, exists := q.ids[post.ID]; exists {
			q.mu.Unlock()
			continue
		}
		q.ids[post.ID] = struct{}{}
		q.mu.Unlock()

		q.push(post)
	}

	if len(posts) > 0 {
		q.Logger.Info("Queue restored from store", "count", len(posts))
	}
	return nil
}

func (q *QueueImpl) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.items.Len()
}

func (q *QueueImpl) OldestPendingAge() time.Duration {
	now := q.Clock.Now()

	q.mu.Lock()
	defer q.mu.Unlock()

	var oldest time.Time
	for _, it := range q.items {
		if it.effectiveAt.After(now) {
			// Not due yet; waiting on its schedule, not on us.
			continue
		}
		if oldest.IsZero() || it.effectiveAt.Before(oldest) {
			oldest = it.effectiveAt
		}
	}
	if oldest.IsZero() {
		return 0
	}
	return now.Sub(oldest)
}

func (q *QueueImpl) push(post *domain.Post) {
	effectiveAt := q.Clock.Now()
	if post.ScheduleAt != nil {
		effectiveAt = *post.ScheduleAt
	}

	q.mu.Lock()
	defer q.mu.Unlock()
	q.seq++
	heap.Push(&q.items, &item{post: post, effectiveAt: effectiveAt, seq: q.seq})
}
