package cascade

import (
	"context"

	"github.com/orgball2608/video-distributor/internal/domain"
)

// Strategy names, in the default fallback order.
const (
	StrategyAPI          = "api"
	StrategyAPIViaEgress = "api_via_egress"
	StrategyReplay       = "interface_replay"
	StrategyManual       = "manual"
)

// Client runs the ordered fallback strategies for one (post, platform)
// upload. Every run terminates in a recorded PlatformOutcome: success,
// validation failure, or an explicit hand-off to the manual escalation
// queue. There is no silent drop.
type Client interface {
	Execute(ctx context.Context, post *domain.Post, platform string) (*domain.PlatformOutcome, error)
}

// Strategy is one automated upload approach for a platform.
type Strategy interface {
	Name() string
	Run(ctx context.Context, post *domain.Post, platform string) (externalID string, err error)
}
