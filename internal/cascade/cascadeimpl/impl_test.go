package cascadeimpl

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/orgball2608/video-distributor/internal/alert"
	"github.com/orgball2608/video-distributor/internal/cascade"
	"github.com/orgball2608/video-distributor/internal/domain"
	postrepo "github.com/orgball2608/video-distributor/internal/repositories/post"
	apperrors "github.com/orgball2608/video-distributor/pkg/errors"
	"github.com/orgball2608/video-distributor/pkg/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubStrategy struct {
	name  string
	mu    sync.Mutex
	errs  []error
	calls int
}

func (s *stubStrategy) Name() string { return s.name }

func (s *stubStrategy) Run(_ context.Context, _ *domain.Post, _ string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var err error
	if s.calls < len(s.errs) {
		err = s.errs[s.calls]
	}
	s.calls++
	if err != nil {
		return "", err
	}
	return "ext-" + s.name, nil
}

func (s *stubStrategy) callCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

type recordingPostRepo struct {
	mu       sync.Mutex
	outcomes []*domain.PlatformOutcome
}

func (r *recordingPostRepo) Create(context.Context, *domain.Post) error { return nil }
func (r *recordingPostRepo) GetByID(context.Context, string) (*domain.Post, error) {
	return nil, postrepo.ErrNotFound
}
func (r *recordingPostRepo) UpdateStatus(context.Context, string, domain.PostStatus, int) error {
	return nil
}
func (r *recordingPostRepo) AppendOutcome(_ context.Context, outcome *domain.PlatformOutcome) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.outcomes = append(r.outcomes, outcome)
	return nil
}
func (r *recordingPostRepo) ListByStatus(context.Context, ...domain.PostStatus) ([]*domain.Post, error) {
	return nil, nil
}

type recordingEscalationRepo struct {
	mu      sync.Mutex
	records []*domain.EscalationRecord
}

func (r *recordingEscalationRepo) Create(_ context.Context, record *domain.EscalationRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.records = append(r.records, record)
	return nil
}
func (r *recordingEscalationRepo) GetByID(context.Context, string) (*domain.EscalationRecord, error) {
	return nil, errors.New("not implemented")
}
func (r *recordingEscalationRepo) ListPending(context.Context) ([]*domain.EscalationRecord, error) {
	return nil, nil
}
func (r *recordingEscalationRepo) Resolve(context.Context, string, string, string) error {
	return nil
}

type fakeSessions struct {
	mu         sync.Mutex
	refreshes  int
	refreshErr error
}

func (f *fakeSessions) Load(context.Context, string) (*domain.Session, error) {
	return &domain.Session{Platform: "alpha", Blob: []byte("[]")}, nil
}
func (f *fakeSessions) Save(context.Context, *domain.Session) error { return nil }
func (f *fakeSessions) Refresh(context.Context, string) (*domain.Session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.refreshes++
	if f.refreshErr != nil {
		return nil, f.refreshErr
	}
	return &domain.Session{Platform: "alpha", Blob: []byte("[]")}, nil
}

type recordedAlert struct {
	severity alert.Severity
	message  string
}

type recordingAlerts struct {
	mu   sync.Mutex
	sent []recordedAlert
}

func (r *recordingAlerts) Notify(severity alert.Severity, message string, _ map[string]string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sent = append(r.sent, recordedAlert{severity: severity, message: message})
}

func (r *recordingAlerts) bySeverity(s alert.Severity) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, a := range r.sent {
		if a.severity == s {
			n++
		}
	}
	return n
}

type cascadeFixture struct {
	impl        *CascadeImpl
	postRepo    *recordingPostRepo
	escalations *recordingEscalationRepo
	sessions    *fakeSessions
	alerts      *recordingAlerts
	clock       *clockwork.FakeClock
}

func newCascadeFixture(t *testing.T, strategies ...cascade.Strategy) *cascadeFixture {
	t.Helper()
	f := &cascadeFixture{
		postRepo:    &recordingPostRepo{},
		escalations: &recordingEscalationRepo{},
		sessions:    &fakeSessions{},
		alerts:      &recordingAlerts{},
		clock:       clockwork.NewFakeClock(),
	}
	f.impl = &CascadeImpl{
		Strategies:     strategies,
		PostRepo:       f.postRepo,
		EscalationRepo: f.escalations,
		Sessions:       f.sessions,
		Alerts:         f.alerts,
		Logger:         logger.NewNop(),
		Clock:          f.clock,
	}
	return f
}

func testPost() *domain.Post {
	return &domain.Post{
		ID:         "post-1",
		Platforms:  []string{"alpha"},
		ContentRef: "s3://bucket/post-1",
		Priority:   domain.PriorityNormal,
		Outcomes:   make(map[string]*domain.PlatformOutcome),
	}
}

func platformErr(msg string) error {
	return apperrors.New(apperrors.KindPlatform, msg)
}

func TestExecute_FirstStrategySucceeds(t *testing.T) {
	first := &stubStrategy{name: cascade.StrategyAPI}
	second := &stubStrategy{name: cascade.StrategyAPIViaEgress}
	f := newCascadeFixture(t, first, second)

	outcome, err := f.impl.Execute(context.Background(), testPost(), "alpha")
	require.NoError(t, err)
	assert.True(t, outcome.Success)
	assert.Equal(t, cascade.StrategyAPI, outcome.Strategy)
	assert.Equal(t, 0, outcome.StrategyIx)
	assert.Equal(t, "ext-api", outcome.ExternalID)
	assert.Equal(t, 0, second.callCount())
	require.Len(t, f.postRepo.outcomes, 1)
	assert.Empty(t, f.escalations.records)
}

func TestExecute_FallsThroughToNextStrategy(t *testing.T) {
	first := &stubStrategy{name: cascade.StrategyAPI, errs: []error{platformErr("upload rejected")}}
	second := &stubStrategy{name: cascade.StrategyAPIViaEgress}
	f := newCascadeFixture(t, first, second)

	outcome, err := f.impl.Execute(context.Background(), testPost(), "alpha")
	require.NoError(t, err)
	assert.True(t, outcome.Success)
	assert.Equal(t, cascade.StrategyAPIViaEgress, outcome.Strategy)
	assert.Equal(t, 1, outcome.StrategyIx)

	// The single-strategy failure raised a MEDIUM alert.
	assert.Equal(t, 1, f.alerts.bySeverity(alert.SeverityMedium))
}

func TestExecute_AllStrategiesFailEscalates(t *testing.T) {
	first := &stubStrategy{name: cascade.StrategyAPI, errs: []error{platformErr("down")}}
	second := &stubStrategy{name: cascade.StrategyAPIViaEgress, errs: []error{platformErr("also down")}}
	f := newCascadeFixture(t, first, second)

	outcome, err := f.impl.Execute(context.Background(), testPost(), "alpha")
	require.NoError(t, err)
	assert.False(t, outcome.Success)
	assert.True(t, outcome.Escalated)
	assert.Equal(t, cascade.StrategyManual, outcome.Strategy)
	assert.Equal(t, 2, outcome.StrategyIx)

	require.Len(t, f.escalations.records, 1)
	record := f.escalations.records[0]
	assert.Equal(t, "post-1", record.PostID)
	assert.Equal(t, domain.EscalationStatusPending, record.Status)
	require.Len(t, record.Attempts, 2)
	assert.Equal(t, cascade.StrategyAPI, record.Attempts[0].Strategy)
	assert.Equal(t, cascade.StrategyAPIViaEgress, record.Attempts[1].Strategy)

	assert.Equal(t, 1, f.alerts.bySeverity(alert.SeverityCritical))
}

func TestExecute_ValidationAbortsCascade(t *testing.T) {
	first := &stubStrategy{name: cascade.StrategyAPI, errs: []error{
		apperrors.New(apperrors.KindValidation, "unsupported codec"),
	}}
	second := &stubStrategy{name: cascade.StrategyAPIViaEgress}
	f := newCascadeFixture(t, first, second)

	outcome, err := f.impl.Execute(context.Background(), testPost(), "alpha")
	require.Error(t, err)
	assert.True(t, apperrors.IsValidation(err))
	require.NotNil(t, outcome)
	assert.False(t, outcome.Success)
	assert.False(t, outcome.Escalated)

	// No fallback, no manual hand-off for caller errors.
	assert.Equal(t, 0, second.callCount())
	assert.Empty(t, f.escalations.records)
}

func TestExecute_EgressExhaustedMovesOn(t *testing.T) {
	first := &stubStrategy{name: cascade.StrategyAPIViaEgress, errs: []error{
		apperrors.New(apperrors.KindEgressExhausted, "no path verified"),
	}}
	second := &stubStrategy{name: cascade.StrategyReplay}
	f := newCascadeFixture(t, first, second)

	outcome, err := f.impl.Execute(context.Background(), testPost(), "alpha")
	require.NoError(t, err)
	assert.True(t, outcome.Success)
	assert.Equal(t, cascade.StrategyReplay, outcome.Strategy)
	assert.Equal(t, 1, f.alerts.bySeverity(alert.SeverityCritical))
}

func TestExecute_AuthTriggersOneRefresh(t *testing.T) {
	authErr := apperrors.New(apperrors.KindAuth, "session expired")
	strat := &stubStrategy{name: cascade.StrategyReplay, errs: []error{authErr}}
	f := newCascadeFixture(t, strat)

	outcome, err := f.impl.Execute(context.Background(), testPost(), "alpha")
	require.NoError(t, err)
	assert.True(t, outcome.Success)
	assert.Equal(t, 1, f.sessions.refreshes)
	assert.Equal(t, 2, strat.callCount())
}

func TestExecute_SecondAuthFailureEndsStrategy(t *testing.T) {
	authErr := apperrors.New(apperrors.KindAuth, "session expired")
	strat := &stubStrategy{name: cascade.StrategyReplay, errs: []error{authErr, authErr}}
	f := newCascadeFixture(t, strat)

	outcome, err := f.impl.Execute(context.Background(), testPost(), "alpha")
	require.NoError(t, err)
	assert.True(t, outcome.Escalated)
	assert.Equal(t, 1, f.sessions.refreshes)
	assert.Equal(t, 2, strat.callCount())
}

func TestExecute_RateLimitPausesThenRetries(t *testing.T) {
	limited := apperrors.RateLimited(errors.New("429"), 2*time.Minute)
	strat := &stubStrategy{name: cascade.StrategyAPI, errs: []error{limited}}
	f := newCascadeFixture(t, strat)

	type result struct {
		outcome *domain.PlatformOutcome
		err     error
	}
	done := make(chan result, 1)
	go func() {
		outcome, err := f.impl.Execute(context.Background(), testPost(), "alpha")
		done <- result{outcome, err}
	}()

	// The cascade parks on the clock until the platform-reported reset.
	f.clock.BlockUntil(1)
	f.clock.Advance(2 * time.Minute)

	select {
	case res := <-done:
		require.NoError(t, res.err)
		assert.True(t, res.outcome.Success)
		assert.Equal(t, cascade.StrategyAPI, res.outcome.Strategy)
		// The pause did not advance the strategy index.
		assert.Equal(t, 0, res.outcome.StrategyIx)
	case <-time.After(5 * time.Second):
		t.Fatal("cascade never resumed after rate-limit pause")
	}

	assert.Equal(t, 1, f.alerts.bySeverity(alert.SeverityMedium))
}

func TestExecute_CancelledBeforeStrategyBoundary(t *testing.T) {
	strat := &stubStrategy{name: cascade.StrategyAPI}
	f := newCascadeFixture(t, strat)

	cause := errors.New("preempted by breaking post")
	ctx, cancel := context.WithCancelCause(context.Background())
	cancel(cause)

	_, err := f.impl.Execute(ctx, testPost(), "alpha")
	require.Error(t, err)
	assert.ErrorIs(t, err, cause)
	assert.Equal(t, 0, strat.callCount())
}
