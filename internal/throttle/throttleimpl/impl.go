package throttleimpl

import (
	"context"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/orgball2608/video-distributor/internal/domain"
	"github.com/orgball2608/video-distributor/internal/repositories/throttlestate"
	"github.com/orgball2608/video-distributor/internal/throttle"
	"github.com/orgball2608/video-distributor/pkg/config"
	apperrors "github.com/orgball2608/video-distributor/pkg/errors"
	"github.com/orgball2608/video-distributor/pkg/logger"
	"go.uber.org/fx"
)

type Opts struct {
	fx.In

	StateRepo throttlestate.Repository
	Logger    logger.Logger
	Config    *config.Config
	Clock     clockwork.Clock
}

// ThrottleImpl keeps one mutable cell per platform, each behind its own
// mutex, so queries for different platforms never contend.
type ThrottleImpl struct {
	StateRepo throttlestate.Repository
	Logger    logger.Logger
	Clock     clockwork.Clock

	minInterval         time.Duration
	recommendedInterval time.Duration

	mu    sync.Mutex
	cells map[string]*cell
}

type cell struct {
	mu         sync.Mutex
	lastPostAt time.Time
	loaded     bool
}

func New(opts Opts) *ThrottleImpl {
	return &ThrottleImpl{
		StateRepo:           opts.StateRepo,
		Logger:              opts.Logger,
		Clock:               opts.Clock,
		minInterval:         opts.Config.Throttle.MinInterval,
		recommendedInterval: opts.Config.Throttle.RecommendedInterval,
		cells:               make(map[string]*cell),
	}
}

var _ throttle.Client = (*ThrottleImpl)(nil)

func (t *ThrottleImpl) MayPostNow(ctx context.Context, platform string, priority domain.PriorityClass) (bool, error) {
	// Breaking never waits. It still records a timestamp on success, so
	// the answer here does not consult history at all.
	if priority.BypassesThrottle() {
		return true, nil
	}

	last, err := t.lastPostAt(ctx, platform)
	if err != nil {
		return false, err
	}
	if last.IsZero() {
		return true, nil
	}
	return t.Clock.Now().Sub(last) >= t.minInterval, nil
}

func (t *ThrottleImpl) NextAllowedTime(ctx context.Context, platform string) (time.Time, error) {
	return t.nextTime(ctx, platform, t.minInterval)
}

func (t *ThrottleImpl) RecommendedNextTime(ctx context.Context, platform string) (time.Time, error) {
	return t.nextTime(ctx, platform, t.recommendedInterval)
}

func (t *ThrottleImpl) nextTime(ctx context.Context, platform string, interval time.Duration) (time.Time, error) {
	last, err := t.lastPostAt(ctx, platform)
	if err != nil {
		return time.Time{}, err
	}
	now := t.Clock.Now()
	if last.IsZero() {
		return now, nil
	}
	next := last.Add(interval)
	if next.Before(now) {
		return now, nil
	}
	return next, nil
}

func (t *ThrottleImpl) RecordPost(ctx context.Context, platform string, at time.Time, priority domain.PriorityClass) error {
	c := t.cell(platform)
	c.mu.Lock()
	defer c.mu.Unlock()

	// Never move the baseline backwards; a slow writer must not undo a
	// later success.
	if !c.lastPostAt.IsZero() && at.Before(c.lastPostAt) {
		return nil
	}

	state := &domain.ThrottleState{Platform: platform, LastPostAt: at}
	if err := t.StateRepo.Upsert(ctx, state); err != nil {
		return apperrors.Wrap(err, apperrors.KindStoreUnavailable, "failed to persist throttle state")
	}

	c.lastPostAt = at
	c.loaded = true
	t.Logger.Debug("Throttle baseline updated", "platform", platform, "at", at, "priority", priority.String())
	return nil
}

func (t *ThrottleImpl) Warm(ctx context.Context) error {
	states, err := t.StateRepo.All(ctx)
	if err != nil {
		return apperrors.Wrap(err, apperrors.KindStoreUnavailable, "failed to load throttle state")
	}

	for _, state := range states {
		c := t.cell(state.Platform)
		c.mu.Lock()
		c.lastPostAt = state.LastPostAt
		c.loaded = true
		c.mu.Unlock()
	}

	return nil
}

func (t *ThrottleImpl) lastPostAt(ctx context.Context, platform string) (time.Time, error) {
	c := t.cell(platform)
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.loaded {
		state, err := t.StateRepo.Get(ctx, platform)
		switch {
		case err == nil:
			c.lastPostAt = state.LastPostAt
		case apperrors.Is(err, throttlestate.ErrNotFound):
			// No history yet.
		default:
			return time.Time{}, apperrors.Wrap(err, apperrors.KindStoreUnavailable, "failed to load throttle state")
		}
		c.loaded = true
	}

	return c.lastPostAt, nil
}

func (t *ThrottleImpl) cell(platform string) *cell {
	t.mu.Lock()
	defer t.mu.Unlock()
	c, ok := t.cells[platform]
	if !ok {
		c = &cell{}
		t.cells[platform] = c
	}
	return c
}
