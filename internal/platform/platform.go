package platform

import (
	"context"
	"errors"

	"github.com/orgball2608/video-distributor/internal/domain"
)

var ErrUnknownPlatform = errors.New("unknown platform")

// UploadInput carries everything an adapter needs for one upload attempt.
type UploadInput struct {
	ContentRef  string
	Title       string
	Description string
	Tags        []string
	// ProxyURL routes the request through an egress path when set.
	ProxyURL string
	// Session seeds adapters that replay an authenticated session.
	Session *domain.Session
}

type UploadResult struct {
	ExternalID string
}

// Adapter is the per-platform boundary. Implementations classify failures
// with pkg/errors kinds; the cascade's control flow depends on it.
type Adapter interface {
	Name() string

	// Endpoint is the target of the cheap reachability probe.
	Endpoint() string

	Upload(ctx context.Context, in UploadInput) (*UploadResult, error)

	CheckReachable(ctx context.Context) bool
}
