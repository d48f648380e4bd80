package post

import (
	"context"
	"errors"

	"github.com/orgball2608/video-distributor/internal/domain"
)

var (
	ErrAlreadyExists = errors.New("post already exists")
	ErrNotFound      = errors.New("post not found")
)

//go:generate go run go.uber.org/mock/mockgen -source=post.go -destination=mocks/mock.go
type Repository interface {
	// Create persists a new post. Enqueue relies on this to reject
	// duplicate ids before the post becomes visible.
	Create(ctx context.Context, post *domain.Post) error

	// GetByID returns the post with its current per-platform outcomes.
	GetByID(ctx context.Context, id string) (*domain.Post, error)

	// UpdateStatus moves the post lifecycle and stores the attempt counter.
	UpdateStatus(ctx context.Context, id string, status domain.PostStatus, attempt int) error

	// AppendOutcome appends a platform outcome record. Outcome rows are
	// never mutated; retries append a new row with a higher attempt.
	AppendOutcome(ctx context.Context, outcome *domain.PlatformOutcome) error

	// ListByStatus returns all posts in any of the given states, outcomes
	// included, ordered by creation time.
	ListByStatus(ctx context.Context, statuses ...domain.PostStatus) ([]*domain.Post, error)
}
