package cascadeimpl

import (
	"context"
	"strings"

	"github.com/orgball2608/video-distributor/internal/cascade"
	"github.com/orgball2608/video-distributor/internal/domain"
	"github.com/orgball2608/video-distributor/internal/egress"
	"github.com/orgball2608/video-distributor/internal/platform"
	apperrors "github.com/orgball2608/video-distributor/pkg/errors"
	"github.com/orgball2608/video-distributor/pkg/logger"
)

// APIStrategy uploads straight through the platform adapter over the
// default network path.
type APIStrategy struct {
	Registry *platform.Registry
}

func NewAPIStrategy(registry *platform.Registry) *APIStrategy {
	return &APIStrategy{Registry: registry}
}

var _ cascade.Strategy = (*APIStrategy)(nil)

func (s *APIStrategy) Name() string { return cascade.StrategyAPI }

func (s *APIStrategy) Run(ctx context.Context, post *domain.Post, platformName string) (string, error) {
	adapter, err := s.Registry.Get(platformName)
	if err != nil {
		return "", apperrors.Wrap(err, apperrors.KindValidation, "no adapter for platform")
	}

	result, err := adapter.Upload(ctx, uploadInput(post))
	if err != nil {
		return "", err
	}
	return result.ExternalID, nil
}

// EgressStrategy retries the API upload through an alternate egress path
// for geo-restricted platforms. The path is held for exactly one attempt
// and released even on failure.
type EgressStrategy struct {
	Registry *platform.Registry
	Pool     egress.Pool
	Logger   logger.Logger
}

func NewEgressStrategy(registry *platform.Registry, pool egress.Pool, log logger.Logger) *EgressStrategy {
	return &EgressStrategy{Registry: registry, Pool: pool, Logger: log}
}

var _ cascade.Strategy = (*EgressStrategy)(nil)

func (s *EgressStrategy) Name() string { return cascade.StrategyAPIViaEgress }

func (s *EgressStrategy) Run(ctx context.Context, post *domain.Post, platformName string) (string, error) {
	adapter, err := s.Registry.Get(platformName)
	if err != nil {
		return "", apperrors.Wrap(err, apperrors.KindValidation, "no adapter for platform")
	}

	handle, err := s.Pool.Acquire(ctx, platformName)
	if err != nil {
		return "", err
	}
	defer handle.Release()

	in := uploadInput(post)
	in.ProxyURL = handle.Path.ProxyURL

	result, err := adapter.Upload(ctx, in)
	if err != nil {
		return "", err
	}

	s.Logger.Info("Upload via egress succeeded",
		"post_id", post.ID,
		"platform", platformName,
		"path", handle.Path.Name,
	)
	return result.ExternalID, nil
}

// ParseOrder splits the configured strategy order into names.
func ParseOrder(raw string) []string {
	var out []string
	for _, name := range strings.Split(raw, ",") {
		name = strings.TrimSpace(name)
		if name != "" {
			out = append(out, name)
		}
	}
	return out
}

func uploadInput(post *domain.Post) platform.UploadInput {
	return platform.UploadInput{
		ContentRef:  post.ContentRef,
		Title:       post.Title,
		Description: post.Description,
		Tags:        post.Tags,
	}
}
