package session

import (
	"context"
	"errors"

	"github.com/orgball2608/video-distributor/internal/domain"
)

var (
	ErrNotFound = errors.New("no session for platform")

	// ErrRefreshUnavailable means no refresh flow is wired for the
	// platform; the cascade treats the auth failure as final for the
	// strategy.
	ErrRefreshUnavailable = errors.New("session refresh unavailable")
)

// Provider serves replayable authenticated sessions. Reads are concurrent;
// refresh swaps in a fresh copy so readers never observe a half-written
// session.
type Provider interface {
	Load(ctx context.Context, platform string) (*domain.Session, error)
	Save(ctx context.Context, session *domain.Session) error
	Refresh(ctx context.Context, platform string) (*domain.Session, error)
}

// Refresher is the external re-authentication flow (login automation,
// token exchange). Wired per deployment.
type Refresher interface {
	Refresh(ctx context.Context, platform string) (*domain.Session, error)
}
