package schedulerimpl

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/orgball2608/video-distributor/internal/alert"
	"github.com/orgball2608/video-distributor/internal/domain"
	"github.com/orgball2608/video-distributor/internal/queue"
	"github.com/orgball2608/video-distributor/pkg/config"
	"github.com/orgball2608/video-distributor/pkg/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubQueue struct {
	mu        sync.Mutex
	recovered []string
	known     map[string]bool
	oldestAge time.Duration
	depth     int
}

func (s *stubQueue) Enqueue(context.Context, *domain.Post) error        { return nil }
func (s *stubQueue) DequeueReady(context.Context) (*domain.Post, error) { return nil, nil }
func (s *stubQueue) Requeue(context.Context, *domain.Post) error        { return nil }

func (s *stubQueue) Recover(_ context.Context, post *domain.Post) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.known[post.ID] {
		return queue.ErrDuplicate
	}
	s.recovered = append(s.recovered, post.ID)
	return nil
}

func (s *stubQueue) Preempt(context.Context, *domain.Post) error         { return nil }
func (s *stubQueue) TrackInFlight(*domain.Post, context.CancelCauseFunc) {}
func (s *stubQueue) Release(string)                                      {}
func (s *stubQueue) Restore(context.Context) error                       { return nil }
func (s *stubQueue) Len() int                                            { return s.depth }
func (s *stubQueue) OldestPendingAge() time.Duration                     { return s.oldestAge }

type listRepo struct {
	posts []*domain.Post
}

func (r *listRepo) Create(context.Context, *domain.Post) error { return nil }
func (r *listRepo) GetByID(context.Context, string) (*domain.Post, error) {
	return nil, nil
}
func (r *listRepo) UpdateStatus(context.Context, string, domain.PostStatus, int) error { return nil }
func (r *listRepo) AppendOutcome(context.Context, *domain.PlatformOutcome) error       { return nil }
func (r *listRepo) ListByStatus(context.Context, ...domain.PostStatus) ([]*domain.Post, error) {
	return r.posts, nil
}

type countingAlerts struct {
	mu   sync.Mutex
	high int
}

func (c *countingAlerts) Notify(severity alert.Severity, _ string, _ map[string]string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if severity == alert.SeverityHigh {
		c.high++
	}
}

func (c *countingAlerts) highCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.high
}

func newTestScheduler(t *testing.T) (*SchedulerImpl, *stubQueue, *listRepo, *countingAlerts, *clockwork.FakeClock) {
	t.Helper()
	q := &stubQueue{known: make(map[string]bool)}
	repo := &listRepo{}
	alerts := &countingAlerts{}
	clock := clockwork.NewFakeClock()
	cfg := &config.Config{}
	cfg.Orchestrator.BacklogAlertAge = 2 * time.Hour

	s := &SchedulerImpl{
		Queue:    q,
		PostRepo: repo,
		Alerts:   alerts,
		Logger:   logger.NewNop(),
		Clock:    clock,
		Config:   cfg,
	}
	return s, q, repo, alerts, clock
}

func TestReconcile_RecoversUnknownPendingPosts(t *testing.T) {
	s, q, repo, _, _ := newTestScheduler(t)
	repo.posts = []*domain.Post{
		{ID: "known-1", Status: domain.PostStatusPending},
		{ID: "lost-1", Status: domain.PostStatusPending},
	}
	q.known["known-1"] = true

	s.reconcile(context.Background())
	assert.Equal(t, []string{"lost-1"}, q.recovered)

	// A second pass finds nothing new.
	q.known["lost-1"] = true
	s.reconcile(context.Background())
	assert.Equal(t, []string{"lost-1"}, q.recovered)
}

func TestCheckBacklog_AlertsPastThreshold(t *testing.T) {
	s, q, _, alerts, clock := newTestScheduler(t)

	q.oldestAge = time.Hour
	s.checkBacklog()
	assert.Equal(t, 0, alerts.highCount())

	q.oldestAge = 3 * time.Hour
	s.checkBacklog()
	require.Equal(t, 1, alerts.highCount())

	// Inside the alert cool-down the watchdog stays quiet.
	s.checkBacklog()
	assert.Equal(t, 1, alerts.highCount())

	clock.Advance(backlogAlertCooldown)
	s.checkBacklog()
	assert.Equal(t, 2, alerts.highCount())
}
