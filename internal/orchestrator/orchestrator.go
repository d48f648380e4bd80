package orchestrator

import (
	"context"

	"github.com/orgball2608/video-distributor/internal/domain"
)

// Client is the top-level coordinator: it pulls ready work from the
// priority queue, gates it through the throttler, fans one strategy
// cascade per target platform and records the aggregate result.
type Client interface {
	// Run is the long-lived coordination loop. It returns when ctx is
	// cancelled, or with an error on infrastructure faults (store
	// unavailable) that make continuing unsafe.
	Run(ctx context.Context) error

	// Submit is the intake path for new posts. Breaking posts preempt
	// in-flight lower-priority work.
	Submit(ctx context.Context, post *domain.Post) error
}
