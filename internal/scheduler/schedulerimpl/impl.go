package schedulerimpl

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/go-co-op/gocron/v2"
	"github.com/jonboulle/clockwork"
	"github.com/orgball2608/video-distributor/internal/alert"
	"github.com/orgball2608/video-distributor/internal/domain"
	"github.com/orgball2608/video-distributor/internal/queue"
	postrepo "github.com/orgball2608/video-distributor/internal/repositories/post"
	"github.com/orgball2608/video-distributor/internal/scheduler"
	"github.com/orgball2608/video-distributor/pkg/config"
	apperrors "github.com/orgball2608/video-distributor/pkg/errors"
	"github.com/orgball2608/video-distributor/pkg/logger"
	"go.uber.org/fx"
)

const (
	reconcileInterval = time.Minute
	watchdogInterval  = time.Minute

	// backlogAlertCooldown keeps the watchdog from re-alerting every minute
	// while the same backlog drains.
	backlogAlertCooldown = 30 * time.Minute
)

type Opts struct {
	fx.In

	Queue    queue.Client
	PostRepo postrepo.Repository
	Alerts   alert.Client
	Logger   logger.Logger
	Clock    clockwork.Clock
	Config   *config.Config
}

type SchedulerImpl struct {
	Queue    queue.Client
	PostRepo postrepo.Repository
	Alerts   alert.Client
	Logger   logger.Logger
	Clock    clockwork.Clock
	Config   *config.Config

	mu               sync.Mutex
	lastBacklogAlert time.Time
}

func New(opts Opts) *SchedulerImpl {
	return &SchedulerImpl{
		Queue:    opts.Queue,
		PostRepo: opts.PostRepo,
		Alerts:   opts.Alerts,
		Logger:   opts.Logger,
		Clock:    opts.Clock,
		Config:   opts.Config,
	}
}

var _ scheduler.Client = (*SchedulerImpl)(nil)

func (s *SchedulerImpl) Start(ctx context.Context) error {
	sched, err := gocron.NewScheduler()
	if err != nil {
		return fmt.Errorf("failed to create maintenance scheduler: %w", err)
	}

	_, err = sched.NewJob(
		gocron.DurationJob(reconcileInterval),
		gocron.NewTask(func() {
			if ctx.Err() != nil {
				return
			}
			jobCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
			defer cancel()
			s.reconcile(jobCtx)
		}),
	)
	if err != nil {
		return fmt.Errorf("failed to schedule queue reconciliation: %w", err)
	}

	_, err = sched.NewJob(
		gocron.DurationJob(watchdogInterval),
		gocron.NewTask(func() {
			if ctx.Err() != nil {
				return
			}
			s.checkBacklog()
		}),
	)
	if err != nil {
		return fmt.Errorf("failed to schedule backlog watchdog: %w", err)
	}

	sched.Start()

	go func() {
		<-ctx.Done()
		s.Logger.Info("Stopping maintenance scheduler")
		if err := sched.Shutdown(); err != nil {
			s.Logger.Error("Failed to shut down maintenance scheduler", "error", err)
		}
	}()

	return nil
}

// reconcile adopts stored pending posts the in-memory queue does not know
// about. Known ids, queued or in flight, are rejected by Recover, so the
// job is safe to run repeatedly and can never double-dispatch.
func (s *SchedulerImpl) reconcile(ctx context.Context) {
	posts, err := s.PostRepo.ListByStatus(ctx, domain.PostStatusPending)
	if err != nil {
		s.Logger.Error("Failed to list pending posts for reconciliation", "error", err)
		return
	}

	recovered := 0
	for _, p := range posts {
		if err := s.Queue.Recover(ctx, p); err != nil {
			if apperrors.Is(err, queue.ErrDuplicate) {
				continue
			}
			s.Logger.Error("Failed to recover pending post", "post_id", p.ID, "error", err)
			continue
		}
		recovered++
	}

	if recovered > 0 {
		s.Logger.Info("Reconciled stored pending posts into queue", "count", recovered)
	}
}

func (s *SchedulerImpl) checkBacklog() {
	age := s.Queue.OldestPendingAge()
	if age <= s.Config.Orchestrator.BacklogAlertAge {
		return
	}

	s.mu.Lock()
	now := s.Clock.Now()
	if now.Sub(s.lastBacklogAlert) < backlogAlertCooldown {
		s.mu.Unlock()
		return
	}
	s.lastBacklogAlert = now
	s.mu.Unlock()

	s.Logger.Warn("Queue backlog exceeds threshold", "oldest_age", age, "depth", s.Queue.Len())
	s.Alerts.Notify(alert.SeverityHigh, "Distribution queue backlog", map[string]string{
		"oldest_age": age.String(),
		"depth":      fmt.Sprintf("%d", s.Queue.Len()),
	})
}
