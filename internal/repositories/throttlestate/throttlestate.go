package throttlestate

import (
	"context"
	"errors"

	"github.com/orgball2608/video-distributor/internal/domain"
)

var ErrNotFound = errors.New("throttle state not found")

//go:generate go run go.uber.org/mock/mockgen -source=throttlestate.go -destination=mocks/mock.go
type Repository interface {
	// Get returns the state for a platform, ErrNotFound if never posted.
	Get(ctx context.Context, platform string) (*domain.ThrottleState, error)

	// Upsert persists the last-post timestamp for a platform.
	Upsert(ctx context.Context, state *domain.ThrottleState) error

	// All returns every recorded platform state, for warm-up at boot.
	All(ctx context.Context) ([]*domain.ThrottleState, error)
}
