package egressimpl

import (
	"context"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/orgball2608/video-distributor/internal/domain"
	"github.com/orgball2608/video-distributor/internal/egress"
	"github.com/orgball2608/video-distributor/pkg/config"
	apperrors "github.com/orgball2608/video-distributor/pkg/errors"
	"github.com/orgball2608/video-distributor/pkg/logger"
	"go.uber.org/fx"
	"golang.org/x/time/rate"
)

// probeInterval paces reachability checks per path so a flapping cascade
// cannot hammer a platform endpoint.
const probeInterval = 5 * time.Second

type ProbeOpts struct {
	fx.In

	Logger logger.Logger
	Config *config.Config
}

// HTTPProber performs the channel probe: a HEAD request to the platform
// endpoint routed through the path's proxy, bounded by the probe timeout.
type HTTPProber struct {
	Logger  logger.Logger
	timeout time.Duration

	mu       sync.Mutex
	limiters map[string]*rate.Limiter
}

func NewProber(opts ProbeOpts) *HTTPProber {
	return &HTTPProber{
		Logger:   opts.Logger,
		timeout:  opts.Config.Egress.ProbeTimeout,
		limiters: make(map[string]*rate.Limiter),
	}
}

var _ egress.Prober = (*HTTPProber)(nil)

func (p *HTTPProber) Verify(ctx context.Context, path *domain.EgressPath, endpoint string) error {
	if err := p.limiter(path.Name).Wait(ctx); err != nil {
		return err
	}

	proxyURL, err := url.Parse(path.ProxyURL)
	if err != nil {
		return apperrors.Wrap(err, apperrors.KindValidation, "bad proxy url for path "+path.Name)
	}

	client := &http.Client{
		Timeout: p.timeout,
		Transport: &http.Transport{
			Proxy: http.ProxyURL(proxyURL),
		},
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodHead, endpoint, nil)
	if err != nil {
		return apperrors.Wrap(err, apperrors.KindValidation, "bad probe endpoint "+endpoint)
	}

	resp, err := client.Do(req)
	if err != nil {
		return apperrors.Wrap(err, apperrors.KindNetwork, "probe failed via "+path.Name)
	}
	defer resp.Body.Close()

	// Any response below 500 proves the channel works; auth and geo walls
	// are the upload strategy's problem, not the probe's.
	if resp.StatusCode >= http.StatusInternalServerError {
		return apperrors.New(apperrors.KindNetwork, "probe got server error via "+path.Name)
	}

	p.Logger.Debug("Channel probe ok", "path", path.Name, "endpoint", endpoint, "status", resp.StatusCode)
	return nil
}

func (p *HTTPProber) limiter(pathName string) *rate.Limiter {
	p.mu.Lock()
	defer p.mu.Unlock()
	l, ok := p.limiters[pathName]
	if !ok {
		l = rate.NewLimiter(rate.Every(probeInterval), 1)
		p.limiters[pathName] = l
	}
	return l
}
