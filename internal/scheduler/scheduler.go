package scheduler

import "context"

// Client owns the background maintenance jobs: reconciling stored pending
// posts into the in-memory queue and watching for backlog buildup.
type Client interface {
	Start(ctx context.Context) error
}
