package egress

import (
	"context"

	"github.com/orgball2608/video-distributor/internal/domain"
)

// Handle is exclusive ownership of one verified egress path. Release must
// be called exactly once, upload failure included.
type Handle struct {
	Path    *domain.EgressPath
	release func()
}

func (h *Handle) Release() {
	if h.release != nil {
		h.release()
		h.release = nil
	}
}

// NewHandle binds a verified path to its release hook.
func NewHandle(path *domain.EgressPath, release func()) *Handle {
	return &Handle{Path: path, release: release}
}

// Pool hands out verified egress paths in configured priority order.
type Pool interface {
	// Acquire returns the first path that connects and passes the channel
	// probe against the platform's endpoint. When every configured path
	// fails verification it returns a KindEgressExhausted error; the
	// cascade treats that as "strategy unavailable", not upload failure.
	Acquire(ctx context.Context, platform string) (*Handle, error)
}

// Provider is the external egress capability (VPN or proxy fabric).
type Provider interface {
	Connect(ctx context.Context, path *domain.EgressPath) error
	Disconnect(ctx context.Context, path *domain.EgressPath) error
}

// Prober is the channel probe: a cheap reachability check against a
// platform endpoint through a path, never a real upload.
type Prober interface {
	Verify(ctx context.Context, path *domain.EgressPath, endpoint string) error
}
