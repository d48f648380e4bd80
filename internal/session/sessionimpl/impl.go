package sessionimpl

import (
	"context"
	"sync"

	"github.com/jonboulle/clockwork"
	"github.com/orgball2608/video-distributor/internal/domain"
	sessionrepo "github.com/orgball2608/video-distributor/internal/repositories/session"
	"github.com/orgball2608/video-distributor/internal/session"
	apperrors "github.com/orgball2608/video-distributor/pkg/errors"
	"github.com/orgball2608/video-distributor/pkg/logger"
	"go.uber.org/fx"
)

type Opts struct {
	fx.In

	SessionRepo sessionrepo.Repository
	Refresher   session.Refresher `optional:"true"`
	Logger      logger.Logger
	Clock       clockwork.Clock
}

type SessionImpl struct {
	SessionRepo sessionrepo.Repository
	Refresher   session.Refresher
	Logger      logger.Logger
	Clock       clockwork.Clock

	mu    sync.RWMutex
	cache map[string]*domain.Session
}

func New(opts Opts) *SessionImpl {
	return &SessionImpl{
		SessionRepo: opts.SessionRepo,
		Refresher:   opts.Refresher,
		Logger:      opts.Logger,
		Clock:       opts.Clock,
		cache:       make(map[string]*domain.Session),
	}
}

var _ session.Provider = (*SessionImpl)(nil)

func (s *SessionImpl) Load(ctx context.Context, platform string) (*domain.Session, error) {
	s.mu.RLock()
	cached := s.cache[platform]
	s.mu.RUnlock()

	if cached == nil {
		stored, err := s.SessionRepo.Get(ctx, platform)
		if err != nil {
			if apperrors.Is(err, sessionrepo.ErrNotFound) {
				return nil, session.ErrNotFound
			}
			return nil, apperrors.Wrap(err, apperrors.KindStoreUnavailable, "failed to load session")
		}
		s.swap(platform, stored)
		cached = stored
	}

	if cached.Expired(s.Clock.Now()) {
		return nil, session.ErrNotFound
	}
	return cached, nil
}

func (s *SessionImpl) Save(ctx context.Context, sess *domain.Session) error {
	if err := s.SessionRepo.Upsert(ctx, sess); err != nil {
		return apperrors.Wrap(err, apperrors.KindStoreUnavailable, "failed to save session")
	}
	s.swap(sess.Platform, sess)
	return nil
}

func (s *SessionImpl) Refresh(ctx context.Context, platform string) (*domain.Session, error) {
	if s.Refresher == nil {
		return nil, session.ErrRefreshUnavailable
	}

	fresh, err := s.Refresher.Refresh(ctx, platform)
	if err != nil {
		return nil, err
	}

	if err := s.Save(ctx, fresh); err != nil {
		return nil, err
	}

	s.Logger.Info("Session refreshed", "platform", platform)
	return fresh, nil
}

// swap publishes a complete session value; in-flight readers keep the old
// pointer, new readers see the new one.
func (s *SessionImpl) swap(platform string, sess *domain.Session) {
	s.mu.Lock()
	s.cache[platform] = sess
	s.mu.Unlock()
}
