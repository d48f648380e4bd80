package cascadeimpl

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/orgball2608/video-distributor/internal/alert"
	"github.com/orgball2608/video-distributor/internal/cascade"
	"github.com/orgball2608/video-distributor/internal/domain"
	escalationrepo "github.com/orgball2608/video-distributor/internal/repositories/escalation"
	postrepo "github.com/orgball2608/video-distributor/internal/repositories/post"
	"github.com/orgball2608/video-distributor/internal/session"
	apperrors "github.com/orgball2608/video-distributor/pkg/errors"
	"github.com/orgball2608/video-distributor/pkg/logger"
	"github.com/orgball2608/video-distributor/pkg/retry"
	"go.uber.org/fx"
)

// defaultRateLimitWait applies when a platform reports a rate limit without
// a reset time.
const defaultRateLimitWait = 5 * time.Minute

type Opts struct {
	fx.In

	Strategies     []cascade.Strategy `name:"cascade_strategies"`
	PostRepo       postrepo.Repository
	EscalationRepo escalationrepo.Repository
	Sessions       session.Provider
	Alerts         alert.Client
	Logger         logger.Logger
	Clock          clockwork.Clock
}

type CascadeImpl struct {
	Strategies     []cascade.Strategy
	PostRepo       postrepo.Repository
	EscalationRepo escalationrepo.Repository
	Sessions       session.Provider
	Alerts         alert.Client
	Logger         logger.Logger
	Clock          clockwork.Clock
}

func New(opts Opts) *CascadeImpl {
	return &CascadeImpl{
		Strategies:     opts.Strategies,
		PostRepo:       opts.PostRepo,
		EscalationRepo: opts.EscalationRepo,
		Sessions:       opts.Sessions,
		Alerts:         opts.Alerts,
		Logger:         opts.Logger,
		Clock:          opts.Clock,
	}
}

var _ cascade.Client = (*CascadeImpl)(nil)

func (c *CascadeImpl) Execute(ctx context.Context, post *domain.Post, platform string) (*domain.PlatformOutcome, error) {
	log := c.Logger.With("post_id", post.ID, "platform", platform)
	var attempts []domain.StrategyAttempt

	for ix, strat := range c.Strategies {
		// Cancellation is observed only here, at strategy boundaries, so
		// an external call is never torn down mid-flight.
		if err := ctx.Err(); err != nil {
			return nil, context.Cause(ctx)
		}

		log.Info("Attempting strategy", "strategy", strat.Name(), "index", ix)
		externalID, err := c.runStrategy(ctx, strat, post, platform)
		if err == nil {
			outcome := &domain.PlatformOutcome{
				PostID:     post.ID,
				Platform:   platform,
				Strategy:   strat.Name(),
				StrategyIx: ix,
				Success:    true,
				ExternalID: externalID,
				Attempt:    post.Attempt,
				RecordedAt: c.Clock.Now(),
			}
			if err := c.PostRepo.AppendOutcome(ctx, outcome); err != nil {
				return nil, apperrors.Wrap(err, apperrors.KindStoreUnavailable, "failed to record outcome")
			}
			log.Info("Upload succeeded", "strategy", strat.Name(), "external_id", externalID)
			return outcome, nil
		}

		if ctx.Err() != nil {
			// The failure was the cancellation itself; leave no outcome
			// for this attempt.
			return nil, context.Cause(ctx)
		}

		if apperrors.IsValidation(err) {
			// Caller error: abort the whole cascade, report, never
			// escalate to the manual queue.
			outcome := &domain.PlatformOutcome{
				PostID:      post.ID,
				Platform:    platform,
				Strategy:    strat.Name(),
				StrategyIx:  ix,
				ErrorDetail: err.Error(),
				Attempt:     post.Attempt,
				RecordedAt:  c.Clock.Now(),
			}
			if aerr := c.PostRepo.AppendOutcome(ctx, outcome); aerr != nil {
				return nil, apperrors.Wrap(aerr, apperrors.KindStoreUnavailable, "failed to record outcome")
			}
			return outcome, err
		}

		attempts = append(attempts, domain.StrategyAttempt{
			Strategy: strat.Name(),
			Error:    err.Error(),
			At:       c.Clock.Now(),
		})

		if apperrors.IsEgressExhausted(err) {
			// Strategy unavailable, not a platform failure.
			log.Warn("Strategy unavailable, egress exhausted", "strategy", strat.Name())
			c.Alerts.Notify(alert.SeverityCritical, "Egress pool exhausted", map[string]string{
				"post_id":  post.ID,
				"platform": platform,
			})
			continue
		}

		log.Warn("Strategy failed", "strategy", strat.Name(), "error", err)
		c.Alerts.Notify(alert.SeverityMedium, "Upload strategy failed", map[string]string{
			"post_id":  post.ID,
			"platform": platform,
			"strategy": strat.Name(),
			"error":    err.Error(),
		})
	}

	return c.escalate(ctx, post, platform, attempts)
}

// runStrategy executes one strategy with its internal policy: transient
// errors retried with 1s/2s/4s backoff, one session refresh on an auth
// error, and a full pause on rate limits that does not consume attempts or
// advance strategies.
func (c *CascadeImpl) runStrategy(ctx context.Context, strat cascade.Strategy, post *domain.Post, platform string) (string, error) {
	authRefreshed := false

	for {
		var externalID string
		attemptErr := retry.Do(ctx, c.Logger, "upload/"+platform+"/"+strat.Name(), func() error {
			id, err := strat.Run(ctx, post, platform)
			if err != nil {
				if apperrors.IsTransient(err) {
					return err
				}
				return retry.Permanent(err)
			}
			externalID = id
			return nil
		}, retry.StrategyConfig())

		if attemptErr == nil {
			return externalID, nil
		}

		switch apperrors.KindOf(attemptErr) {
		case apperrors.KindAuth:
			if authRefreshed {
				return "", attemptErr
			}
			authRefreshed = true
			if _, err := c.Sessions.Refresh(ctx, platform); err != nil {
				c.Logger.Warn("Session refresh failed", "platform", platform, "error", err)
				return "", attemptErr
			}
			// Retry the strategy once with the fresh session.
			continue

		case apperrors.KindRateLimit:
			wait := apperrors.RetryAfterOf(attemptErr)
			if wait <= 0 {
				wait = defaultRateLimitWait
			}
			c.Logger.Warn("Rate limited, pausing cascade", "platform", platform, "wait", wait)
			c.Alerts.Notify(alert.SeverityMedium, "Rate limit encountered", map[string]string{
				"post_id":  post.ID,
				"platform": platform,
				"wait":     wait.String(),
			})
			select {
			case <-ctx.Done():
				return "", context.Cause(ctx)
			case <-c.Clock.After(wait):
			}
			continue

		default:
			return "", attemptErr
		}
	}
}

// escalate is the terminal manual strategy. It cannot fail upload-wise: it
// only records the hand-off, so every cascade ends in success or an
// escalation record.
func (c *CascadeImpl) escalate(ctx context.Context, post *domain.Post, platform string, attempts []domain.StrategyAttempt) (*domain.PlatformOutcome, error) {
	record := &domain.EscalationRecord{
		ID:        uuid.NewString(),
		PostID:    post.ID,
		Platform:  platform,
		Attempts:  attempts,
		Status:    domain.EscalationStatusPending,
		CreatedAt: c.Clock.Now(),
	}
	if err := c.EscalationRepo.Create(ctx, record); err != nil {
		return nil, apperrors.Wrap(err, apperrors.KindStoreUnavailable, "failed to create escalation")
	}

	outcome := &domain.PlatformOutcome{
		PostID:      post.ID,
		Platform:    platform,
		Strategy:    cascade.StrategyManual,
		StrategyIx:  len(c.Strategies),
		Escalated:   true,
		ErrorDetail: "all automated strategies exhausted",
		Attempt:     post.Attempt,
		RecordedAt:  c.Clock.Now(),
	}
	if err := c.PostRepo.AppendOutcome(ctx, outcome); err != nil {
		return nil, apperrors.Wrap(err, apperrors.KindStoreUnavailable, "failed to record outcome")
	}

	c.Logger.Error("All strategies exhausted, escalated to manual queue",
		"post_id", post.ID,
		"platform", platform,
		"escalation_id", record.ID,
	)
	c.Alerts.Notify(alert.SeverityCritical, "All upload strategies exhausted", map[string]string{
		"post_id":       post.ID,
		"platform":      platform,
		"escalation_id": record.ID,
		"strategies":    joinAttempts(attempts),
	})

	return outcome, nil
}

func joinAttempts(attempts []domain.StrategyAttempt) string {
	out := ""
	for i, a := range attempts {
		if i > 0 {
			out += ", "
		}
		out += a.Strategy
	}
	return out
}
