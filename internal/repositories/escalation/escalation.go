package escalation

import (
	"context"
	"errors"

	"github.com/orgball2608/video-distributor/internal/domain"
)

var (
	ErrNotFound        = errors.New("escalation not found")
	ErrAlreadyResolved = errors.New("escalation already resolved")
)

//go:generate go run go.uber.org/mock/mockgen -source=escalation.go -destination=mocks/mock.go
type Repository interface {
	// Create persists a new escalation with its full attempt log.
	Create(ctx context.Context, record *domain.EscalationRecord) error

	// GetByID returns one escalation.
	GetByID(ctx context.Context, id string) (*domain.EscalationRecord, error)

	// ListPending returns unresolved escalations oldest-first, for operator
	// export.
	ListPending(ctx context.Context) ([]*domain.EscalationRecord, error)

	// Resolve marks an escalation resolved with the operator's result.
	Resolve(ctx context.Context, id, externalURL, operatorNote string) error
}
