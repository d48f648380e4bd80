package throttle

import (
	"context"
	"time"

	"github.com/orgball2608/video-distributor/internal/domain"
)

// Client enforces the minimum spacing between successful posts to one
// platform. Breaking posts bypass the gate but still move the baseline.
type Client interface {
	// MayPostNow reports whether a post of the given priority may go out
	// to the platform right now.
	MayPostNow(ctx context.Context, platform string, priority domain.PriorityClass) (bool, error)

	// NextAllowedTime is the earliest instant the hard gate opens for the
	// platform. Returns the current time when the platform has no history.
	NextAllowedTime(ctx context.Context, platform string) (time.Time, error)

	// RecommendedNextTime is the softer, recommended spacing used for
	// suggested waits.
	RecommendedNextTime(ctx context.Context, platform string) (time.Time, error)

	// RecordPost persists a successful post timestamp. Called for every
	// priority class, breaking included.
	RecordPost(ctx context.Context, platform string, at time.Time, priority domain.PriorityClass) error

	// Warm preloads persisted timestamps at boot.
	Warm(ctx context.Context) error
}
