package egressimpl

import (
	"context"
	"net/url"

	"github.com/orgball2608/video-distributor/internal/domain"
	"github.com/orgball2608/video-distributor/internal/egress"
	apperrors "github.com/orgball2608/video-distributor/pkg/errors"
	"github.com/orgball2608/video-distributor/pkg/logger"
	"go.uber.org/fx"
)

type ProviderOpts struct {
	fx.In

	Logger logger.Logger
}

// ProxyProvider is the egress provider for proxy-style paths: there is no
// tunnel to establish, so Connect only validates the proxy address and
// Disconnect is a no-op. VPN-style providers replace this behind the same
// interface.
type ProxyProvider struct {
	Logger logger.Logger
}

func NewProvider(opts ProviderOpts) *ProxyProvider {
	return &ProxyProvider{Logger: opts.Logger}
}

var _ egress.Provider = (*ProxyProvider)(nil)

func (p *ProxyProvider) Connect(_ context.Context, path *domain.EgressPath) error {
	u, err := url.Parse(path.ProxyURL)
	if err != nil || u.Host == "" {
		return apperrors.New(apperrors.KindValidation, "invalid proxy url for path "+path.Name)
	}
	p.Logger.Debug("Egress path connected", "path", path.Name, "region", path.Region)
	return nil
}

func (p *ProxyProvider) Disconnect(_ context.Context, path *domain.EgressPath) error {
	p.Logger.Debug("Egress path disconnected", "path", path.Name)
	return nil
}
