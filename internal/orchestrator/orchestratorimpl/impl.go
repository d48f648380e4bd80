package orchestratorimpl

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/orgball2608/video-distributor/internal/alert"
	"github.com/orgball2608/video-distributor/internal/cascade"
	"github.com/orgball2608/video-distributor/internal/domain"
	"github.com/orgball2608/video-distributor/internal/metrics"
	"github.com/orgball2608/video-distributor/internal/orchestrator"
	"github.com/orgball2608/video-distributor/internal/platform"
	"github.com/orgball2608/video-distributor/internal/queue"
	postrepo "github.com/orgball2608/video-distributor/internal/repositories/post"
	"github.com/orgball2608/video-distributor/internal/throttle"
	"github.com/orgball2608/video-distributor/pkg/config"
	apperrors "github.com/orgball2608/video-distributor/pkg/errors"
	"github.com/orgball2608/video-distributor/pkg/logger"
	"github.com/panjf2000/ants/v2"
	"go.uber.org/fx"
	"golang.org/x/sync/errgroup"
)

// consecutiveFailureAlert is the threshold for the HIGH severity alert on
// one platform.
const consecutiveFailureAlert = 3

type Opts struct {
	fx.In

	Queue    queue.Client
	Throttle throttle.Client
	Cascade  cascade.Client
	PostRepo postrepo.Repository
	Registry *platform.Registry
	Alerts   alert.Client
	Metrics  *metrics.Collector
	Logger   logger.Logger
	Clock    clockwork.Clock
	Config   *config.Config
}

type OrchestratorImpl struct {
	Queue    queue.Client
	Throttle throttle.Client
	Cascade  cascade.Client
	PostRepo postrepo.Repository
	Registry *platform.Registry
	Alerts   alert.Client
	Metrics  *metrics.Collector
	Logger   logger.Logger
	Clock    clockwork.Clock

	workers      int
	pollInterval time.Duration

	// gates serialize upload attempts per platform across posts; the
	// throttler's spacing invariant depends on it.
	gatesMu sync.Mutex
	gates   map[string]*sync.Mutex

	failuresMu sync.Mutex
	failures   map[string]int
}

func New(opts Opts) *OrchestratorImpl {
	return &OrchestratorImpl{
		Queue:        opts.Queue,
		Throttle:     opts.Throttle,
		Cascade:      opts.Cascade,
		PostRepo:     opts.PostRepo,
		Registry:     opts.Registry,
		Alerts:       opts.Alerts,
		Metrics:      opts.Metrics,
		Logger:       opts.Logger,
		Clock:        opts.Clock,
		workers:      opts.Config.Orchestrator.Workers,
		pollInterval: opts.Config.Orchestrator.PollInterval,
		gates:        make(map[string]*sync.Mutex),
		failures:     make(map[string]int),
	}
}

var _ orchestrator.Client = (*OrchestratorImpl)(nil)

func (o *OrchestratorImpl) Submit(ctx context.Context, post *domain.Post) error {
	if post.ID == "" {
		post.ID = uuid.NewString()
	}
	if post.Outcomes == nil {
		post.Outcomes = make(map[string]*domain.PlatformOutcome)
	}

	if post.Priority.Preempts() {
		return o.Queue.Preempt(ctx, post)
	}
	return o.Queue.Enqueue(ctx, post)
}

func (o *OrchestratorImpl) Run(ctx context.Context) error {
	if err := o.Queue.Restore(ctx); err != nil {
		return o.fatal(err)
	}
	if err := o.Throttle.Warm(ctx); err != nil {
		return o.fatal(err)
	}

	pool, err := ants.NewPool(o.workers)
	if err != nil {
		return err
	}
	defer pool.Release()

	var wg sync.WaitGroup
	fatal := make(chan error, 1)

	o.Logger.Info("Orchestrator started", "workers", o.workers)
	for {
		select {
		case <-ctx.Done():
			wg.Wait()
			o.Logger.Info("Orchestrator stopped")
			return nil
		case err := <-fatal:
			wg.Wait()
			return err
		default:
		}

		post, err := o.Queue.DequeueReady(ctx)
		if err != nil {
			wg.Wait()
			return o.fatal(err)
		}
		o.Metrics.SetQueueDepth(o.Queue.Len())

		if post == nil {
			select {
			case <-ctx.Done():
			case <-o.Clock.After(o.pollInterval):
			}
			continue
		}

		wg.Add(1)
		p := post
		if err := pool.Submit(func() {
			defer wg.Done()
			if perr := o.process(ctx, p); perr != nil {
				select {
				case fatal <- perr:
				default:
				}
			}
		}); err != nil {
			wg.Done()
			o.Logger.Error("Failed to submit post to worker pool", "post_id", p.ID, "error", err)
			if rerr := o.Queue.Requeue(ctx, p); rerr != nil {
				return o.fatal(rerr)
			}
		}
	}
}

// process runs one post end to end. The returned error is reserved for
// infrastructure faults that must halt the orchestrator.
func (o *OrchestratorImpl) process(ctx context.Context, post *domain.Post) error {
	log := o.Logger.With("post_id", post.ID, "priority", post.Priority.String())

	if err := o.validate(post); err != nil {
		log.Warn("Post rejected by validation", "error", err)
		if uerr := o.PostRepo.UpdateStatus(ctx, post.ID, domain.PostStatusFailed, post.Attempt); uerr != nil {
			return o.fatal(apperrors.Wrap(uerr, apperrors.KindStoreUnavailable, "failed to mark post failed"))
		}
		o.Queue.Release(post.ID)
		return nil
	}

	postCtx, cancel := context.WithCancelCause(ctx)
	defer cancel(nil)
	o.Queue.TrackInFlight(post, cancel)

	var mu sync.Mutex
	validationFailed := false

	g := new(errgroup.Group)
	for _, pl := range post.RemainingPlatforms() {
		pl := pl
		g.Go(func() error {
			return o.runPlatform(postCtx, post, pl, &mu, &validationFailed)
		})
	}
	gerr := g.Wait()

	if gerr != nil {
		return o.fatal(gerr)
	}

	if preempted(postCtx) {
		// Lossless: succeeded platforms stay in post.Outcomes and are
		// not re-attempted after the requeue.
		o.Metrics.IncPreemptions()
		post.Attempt++
		log.Info("Post preempted, requeueing", "attempt", post.Attempt)
		if rerr := o.Queue.Requeue(ctx, post); rerr != nil {
			return o.fatal(rerr)
		}
		return nil
	}

	status, terminal := o.aggregateStatus(post, validationFailed)
	if !terminal {
		// Shutdown mid-flight; the post stays in_progress and the boot
		// restore path resumes it.
		return nil
	}

	if uerr := o.PostRepo.UpdateStatus(ctx, post.ID, status, post.Attempt); uerr != nil {
		return o.fatal(apperrors.Wrap(uerr, apperrors.KindStoreUnavailable, "failed to finalize post"))
	}
	o.Queue.Release(post.ID)
	log.Info("Post finished", "status", string(status))
	return nil
}

func (o *OrchestratorImpl) runPlatform(ctx context.Context, post *domain.Post, pl string, mu *sync.Mutex, validationFailed *bool) error {
	gate := o.gate(pl)
	gate.Lock()
	defer gate.Unlock()

	if err := o.waitForThrottle(ctx, post, pl); err != nil {
		return err
	}
	if ctx.Err() != nil {
		return nil
	}

	start := o.Clock.Now()
	outcome, err := o.Cascade.Execute(ctx, post, pl)
	took := o.Clock.Now().Sub(start)

	if err != nil {
		if ctx.Err() != nil {
			// Cancelled at a strategy boundary; no outcome recorded for
			// this attempt.
			return nil
		}
		switch apperrors.KindOf(err) {
		case apperrors.KindValidation:
			mu.Lock()
			*validationFailed = true
			if outcome != nil {
				post.Outcomes[pl] = outcome
			}
			mu.Unlock()
			o.Metrics.ObserveUpload(pl, outcomeStrategy(outcome), "validation", took)
			return nil
		case apperrors.KindStoreUnavailable:
			return err
		default:
			o.Logger.Error("Cascade returned unexpected error", "platform", pl, "error", err)
			o.trackFailure(pl)
			return nil
		}
	}

	mu.Lock()
	post.Outcomes[pl] = outcome
	mu.Unlock()

	if outcome.Success {
		if rerr := o.Throttle.RecordPost(ctx, pl, outcome.RecordedAt, post.Priority); rerr != nil {
			return rerr
		}
		o.Metrics.ObserveUpload(pl, outcome.Strategy, "success", took)
		o.resetFailure(pl)
		return nil
	}

	if outcome.Escalated {
		o.Metrics.IncEscalations()
		o.Metrics.ObserveUpload(pl, outcome.Strategy, "escalated", took)
		o.trackFailure(pl)
	}
	return nil
}

// waitForThrottle blocks until the platform gate opens for this post's
// priority. Breaking posts pass immediately.
func (o *OrchestratorImpl) waitForThrottle(ctx context.Context, post *domain.Post, pl string) error {
	for {
		ok, err := o.Throttle.MayPostNow(ctx, pl, post.Priority)
		if err != nil {
			return err
		}
		if ok {
			return nil
		}

		next, err := o.Throttle.NextAllowedTime(ctx, pl)
		if err != nil {
			return err
		}
		recommended, err := o.Throttle.RecommendedNextTime(ctx, pl)
		if err != nil {
			return err
		}

		wait := next.Sub(o.Clock.Now())
		if wait < time.Second {
			wait = time.Second
		}
		o.Logger.Info("Throttled, waiting",
			"post_id", post.ID,
			"platform", pl,
			"next_allowed", next,
			"recommended", recommended,
		)

		select {
		case <-ctx.Done():
			return nil
		case <-o.Clock.After(wait):
		}
	}
}

// aggregateStatus derives the post's terminal state. terminal is false if
// any platform still lacks a current outcome (shutdown mid-flight).
func (o *OrchestratorImpl) aggregateStatus(post *domain.Post, validationFailed bool) (domain.PostStatus, bool) {
	if validationFailed {
		return domain.PostStatusFailed, true
	}

	allSucceeded := true
	anyEscalated := false
	for _, pl := range post.Platforms {
		outcome, ok := post.Outcomes[pl]
		if !ok {
			return "", false
		}
		if !outcome.Success {
			allSucceeded = false
		}
		if outcome.Escalated {
			anyEscalated = true
		}
	}

	switch {
	case allSucceeded:
		return domain.PostStatusCompleted, true
	case anyEscalated:
		return domain.PostStatusEscalated, true
	default:
		return domain.PostStatusFailed, true
	}
}

func (o *OrchestratorImpl) validate(post *domain.Post) error {
	if len(post.Platforms) == 0 {
		return apperrors.New(apperrors.KindValidation, "post has no target platforms")
	}
	if post.ContentRef == "" {
		return apperrors.New(apperrors.KindValidation, "post has no content reference")
	}
	for _, pl := range post.Platforms {
		if !o.Registry.Has(pl) {
			return apperrors.New(apperrors.KindValidation, "unknown target platform "+pl)
		}
	}
	return nil
}

func (o *OrchestratorImpl) fatal(err error) error {
	o.Alerts.Notify(alert.SeverityCritical, "Orchestrator halting", map[string]string{
		"error": err.Error(),
	})
	o.Logger.Error("Orchestrator fatal error", "error", err)
	return err
}

func (o *OrchestratorImpl) gate(pl string) *sync.Mutex {
	o.gatesMu.Lock()
	defer o.gatesMu.Unlock()
	g, ok := o.gates[pl]
	if !ok {
		g = &sync.Mutex{}
		o.gates[pl] = g
	}
	return g
}

func (o *OrchestratorImpl) trackFailure(pl string) {
	o.failuresMu.Lock()
	o.failures[pl]++
	count := o.failures[pl]
	o.failuresMu.Unlock()

	if count == consecutiveFailureAlert {
		o.Alerts.Notify(alert.SeverityHigh, "Consecutive failures on platform", map[string]string{
			"platform": pl,
			"count":    "3",
		})
	}
}

func (o *OrchestratorImpl) resetFailure(pl string) {
	o.failuresMu.Lock()
	o.failures[pl] = 0
	o.failuresMu.Unlock()
}

func preempted(ctx context.Context) bool {
	return ctx.Err() != nil && apperrors.Is(context.Cause(ctx), queue.ErrPreempted)
}

func outcomeStrategy(outcome *domain.PlatformOutcome) string {
	if outcome == nil {
		return "none"
	}
	return outcome.Strategy
}
