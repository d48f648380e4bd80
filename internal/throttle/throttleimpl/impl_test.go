package throttleimpl

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/orgball2608/video-distributor/internal/domain"
	"github.com/orgball2608/video-distributor/internal/repositories/throttlestate"
	"github.com/orgball2608/video-distributor/pkg/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeStateRepo struct {
	mu     sync.Mutex
	states map[string]*domain.ThrottleState
}

func newFakeStateRepo() *fakeStateRepo {
	return &fakeStateRepo{states: make(map[string]*domain.ThrottleState)}
}

func (f *fakeStateRepo) Get(_ context.Context, platform string) (*domain.ThrottleState, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.states[platform]
	if !ok {
		return nil, throttlestate.ErrNotFound
	}
	return s, nil
}

func (f *fakeStateRepo) Upsert(_ context.Context, state *domain.ThrottleState) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.states[state.Platform] = state
	return nil
}

func (f *fakeStateRepo) All(_ context.Context) ([]*domain.ThrottleState, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*domain.ThrottleState
	for _, s := range f.states {
		out = append(out, s)
	}
	return out, nil
}

func newTestThrottle(t *testing.T) (*ThrottleImpl, *fakeStateRepo, *clockwork.FakeClock) {
	t.Helper()
	repo := newFakeStateRepo()
	clock := clockwork.NewFakeClock()
	return &ThrottleImpl{
		StateRepo:           repo,
		Logger:              logger.NewNop(),
		Clock:               clock,
		minInterval:         30 * time.Minute,
		recommendedInterval: 45 * time.Minute,
		cells:               make(map[string]*cell),
	}, repo, clock
}

func TestMayPostNow_NoHistoryAllows(t *testing.T) {
	th, _, _ := newTestThrottle(t)

	ok, err := th.MayPostNow(context.Background(), "alpha", domain.PriorityNormal)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestMayPostNow_WithinMinIntervalBlocks(t *testing.T) {
	th, _, clock := newTestThrottle(t)
	ctx := context.Background()

	require.NoError(t, th.RecordPost(ctx, "alpha", clock.Now(), domain.PriorityNormal))
	clock.Advance(10 * time.Minute)

	ok, err := th.MayPostNow(ctx, "alpha", domain.PriorityNormal)
	require.NoError(t, err)
	assert.False(t, ok)

	// 10 minutes after the last post, the hard gate opens 20 minutes out
	// and the recommendation is 35 minutes out.
	next, err := th.NextAllowedTime(ctx, "alpha")
	require.NoError(t, err)
	assert.Equal(t, 20*time.Minute, next.Sub(clock.Now()))

	recommended, err := th.RecommendedNextTime(ctx, "alpha")
	require.NoError(t, err)
	assert.Equal(t, 35*time.Minute, recommended.Sub(clock.Now()))
}

func TestMayPostNow_AfterMinIntervalAllows(t *testing.T) {
	th, _, clock := newTestThrottle(t)
	ctx := context.Background()

	require.NoError(t, th.RecordPost(ctx, "alpha", clock.Now(), domain.PriorityNormal))
	clock.Advance(30 * time.Minute)

	ok, err := th.MayPostNow(ctx, "alpha", domain.PriorityNormal)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestMayPostNow_BreakingBypasses(t *testing.T) {
	th, _, clock := newTestThrottle(t)
	ctx := context.Background()

	require.NoError(t, th.RecordPost(ctx, "alpha", clock.Now(), domain.PriorityNormal))
	clock.Advance(time.Minute)

	ok, err := th.MayPostNow(ctx, "alpha", domain.PriorityBreaking)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestRecordPost_BreakingResetsBaseline(t *testing.T) {
	th, _, clock := newTestThrottle(t)
	ctx := context.Background()

	require.NoError(t, th.RecordPost(ctx, "alpha", clock.Now(), domain.PriorityNormal))
	clock.Advance(5 * time.Minute)

	// A breaking post bypasses the gate but still moves the baseline, so
	// the next normal post waits relative to it.
	require.NoError(t, th.RecordPost(ctx, "alpha", clock.Now(), domain.PriorityBreaking))

	next, err := th.NextAllowedTime(ctx, "alpha")
	require.NoError(t, err)
	assert.Equal(t, 30*time.Minute, next.Sub(clock.Now()))
}

func TestRecordPost_NeverMovesBaselineBackwards(t *testing.T) {
	th, repo, clock := newTestThrottle(t)
	ctx := context.Background()

	later := clock.Now()
	earlier := later.Add(-10 * time.Minute)

	require.NoError(t, th.RecordPost(ctx, "alpha", later, domain.PriorityNormal))
	require.NoError(t, th.RecordPost(ctx, "alpha", earlier, domain.PriorityNormal))

	assert.Equal(t, later, repo.states["alpha"].LastPostAt)
}

func TestThrottle_PlatformsAreIndependent(t *testing.T) {
	th, _, clock := newTestThrottle(t)
	ctx := context.Background()

	require.NoError(t, th.RecordPost(ctx, "alpha", clock.Now(), domain.PriorityNormal))

	ok, err := th.MayPostNow(ctx, "beta", domain.PriorityNormal)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestWarm_LoadsPersistedState(t *testing.T) {
	th, repo, clock := newTestThrottle(t)
	ctx := context.Background()

	repo.states["alpha"] = &domain.ThrottleState{
		Platform:   "alpha",
		LastPostAt: clock.Now().Add(-5 * time.Minute),
	}
	require.NoError(t, th.Warm(ctx))

	ok, err := th.MayPostNow(ctx, "alpha", domain.PriorityNormal)
	require.NoError(t, err)
	assert.False(t, ok)
}
