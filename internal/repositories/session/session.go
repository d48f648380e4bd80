package session

import (
	"context"
	"errors"

	"github.com/orgball2608/video-distributor/internal/domain"
)

var ErrNotFound = errors.New("session not found")

//go:generate go run go.uber.org/mock/mockgen -source=session.go -destination=mocks/mock.go
type Repository interface {
	// Get returns the stored session for a platform.
	Get(ctx context.Context, platform string) (*domain.Session, error)

	// Upsert replaces the stored session for a platform.
	Upsert(ctx context.Context, session *domain.Session) error
}
