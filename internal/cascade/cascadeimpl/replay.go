package cascadeimpl

import (
	"context"
	"encoding/json"

	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"
	"github.com/orgball2608/video-distributor/internal/cascade"
	"github.com/orgball2608/video-distributor/internal/domain"
	"github.com/orgball2608/video-distributor/internal/platform"
	"github.com/orgball2608/video-distributor/internal/session"
	apperrors "github.com/orgball2608/video-distributor/pkg/errors"
	"github.com/orgball2608/video-distributor/pkg/logger"
)

// replayCookie is the shape of one entry in a session blob.
type replayCookie struct {
	Name   string `json:"name"`
	Value  string `json:"value"`
	Domain string `json:"domain"`
	Path   string `json:"path"`
}

// ReplayStrategy drives a headless browser seeded with the platform's
// stored session, proving the session still holds before handing it to the
// adapter. A missing or rejected session surfaces as an auth error so the
// cascade runs its single refresh.
type ReplayStrategy struct {
	Registry *platform.Registry
	Sessions session.Provider
	Logger   logger.Logger
}

func NewReplayStrategy(registry *platform.Registry, sessions session.Provider, log logger.Logger) *ReplayStrategy {
	return &ReplayStrategy{Registry: registry, Sessions: sessions, Logger: log}
}

var _ cascade.Strategy = (*ReplayStrategy)(nil)

func (s *ReplayStrategy) Name() string { return cascade.StrategyReplay }

func (s *ReplayStrategy) Run(ctx context.Context, post *domain.Post, platformName string) (string, error) {
	adapter, err := s.Registry.Get(platformName)
	if err != nil {
		return "", apperrors.Wrap(err, apperrors.KindValidation, "no adapter for platform")
	}

	sess, err := s.Sessions.Load(ctx, platformName)
	if err != nil {
		if apperrors.Is(err, session.ErrNotFound) {
			return "", apperrors.Wrap(err, apperrors.KindAuth, "no replayable session for "+platformName)
		}
		return "", err
	}

	if err := s.warmSession(ctx, sess, adapter.Endpoint()); err != nil {
		return "", err
	}

	in := uploadInput(post)
	in.Session = sess

	result, err := adapter.Upload(ctx, in)
	if err != nil {
		return "", err
	}
	return result.ExternalID, nil
}

// warmSession replays the stored cookies in a headless browser against the
// platform endpoint. The navigation either lands authenticated, or the
// session is dead and we report auth so a refresh can happen.
func (s *ReplayStrategy) warmSession(ctx context.Context, sess *domain.Session, endpoint string) error {
	var cookies []replayCookie
	if err := json.Unmarshal(sess.Blob, &cookies); err != nil {
		return apperrors.Wrap(err, apperrors.KindAuth, "session blob is not replayable")
	}

	allocCtx, cancelAlloc := chromedp.NewExecAllocator(ctx, chromedp.DefaultExecAllocatorOptions[:]...)
	defer cancelAlloc()
	browserCtx, cancelBrowser := chromedp.NewContext(allocCtx)
	defer cancelBrowser()

	tasks := chromedp.Tasks{
		chromedp.ActionFunc(func(ctx context.Context) error {
			for _, ck := range cookies {
				path := ck.Path
				if path == "" {
					path = "/"
				}
				err := network.SetCookie(ck.Name, ck.Value).
					WithDomain(ck.Domain).
					WithPath(path).
					Do(ctx)
				if err != nil {
					return err
				}
			}
			return nil
		}),
		chromedp.Navigate(endpoint),
	}

	if err := chromedp.Run(browserCtx, tasks); err != nil {
		if ctx.Err() != nil {
			return context.Cause(ctx)
		}
		return apperrors.Wrap(err, apperrors.KindNetwork, "session replay navigation failed")
	}

	s.Logger.Debug("Session replay warmed", "platform", sess.Platform, "endpoint", endpoint)
	return nil
}
