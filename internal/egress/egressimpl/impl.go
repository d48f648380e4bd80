package egressimpl

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/orgball2608/video-distributor/internal/domain"
	"github.com/orgball2608/video-distributor/internal/egress"
	"github.com/orgball2608/video-distributor/internal/platform"
	"github.com/orgball2608/video-distributor/pkg/config"
	apperrors "github.com/orgball2608/video-distributor/pkg/errors"
	"github.com/orgball2608/video-distributor/pkg/logger"
	"go.uber.org/fx"
)

type Opts struct {
	fx.In

	Provider egress.Provider
	Prober   egress.Prober
	Registry *platform.Registry
	Logger   logger.Logger
	Config   *config.Config
	Clock    clockwork.Clock
}

// PoolImpl owns the configured egress paths. Each path has a single owner
// at a time; callers queue on the pool when every path is held.
type PoolImpl struct {
	Provider egress.Provider
	Prober   egress.Prober
	Registry *platform.Registry
	Logger   logger.Logger
	Clock    clockwork.Clock

	cooldown time.Duration

	mu    sync.Mutex
	paths []*pathState
	freed chan struct{}
}

type pathState struct {
	path *domain.EgressPath
	busy bool
}

func New(opts Opts) (*PoolImpl, error) {
	paths, err := ParsePaths(opts.Config.Egress.Paths)
	if err != nil {
		return nil, err
	}

	states := make([]*pathState, 0, len(paths))
	for _, p := range paths {
		states = append(states, &pathState{path: p})
	}

	return &PoolImpl{
		Provider: opts.Provider,
		Prober:   opts.Prober,
		Registry: opts.Registry,
		Logger:   opts.Logger,
		Clock:    opts.Clock,
		cooldown: opts.Config.Egress.Cooldown,
		paths:    states,
		freed:    make(chan struct{}, 1),
	}, nil
}

var _ egress.Pool = (*PoolImpl)(nil)

func (p *PoolImpl) Acquire(ctx context.Context, platformName string) (*egress.Handle, error) {
	adapter, err := p.Registry.Get(platformName)
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.KindValidation, "cannot acquire egress for unknown platform")
	}
	endpoint := adapter.Endpoint()

	for {
		handle, anyBusy, err := p.scan(ctx, platformName, endpoint)
		if err != nil {
			return nil, err
		}
		if handle != nil {
			return handle, nil
		}
		if !anyBusy {
			return nil, apperrors.New(apperrors.KindEgressExhausted, "every egress path failed verification for "+platformName)
		}

		// All candidate paths are held by other cascades; queue until one
		// frees up.
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-p.freed:
		}
	}
}

// scan walks the paths in configured order and returns the first one that
// connects and verifies. anyBusy reports whether a held path was skipped,
// which distinguishes "wait" from "exhausted".
func (p *PoolImpl) scan(ctx context.Context, platformName, endpoint string) (*egress.Handle, bool, error) {
	anyBusy := false

	for _, ps := range p.paths {
		p.mu.Lock()
		if ps.busy {
			anyBusy = true
			p.mu.Unlock()
			continue
		}
		if ps.path.State == domain.EgressStateFailed && p.Clock.Now().Sub(ps.path.LastChecked) < p.cooldown {
			// Recently failed; excluded from this scan, retried after the
			// cool-down window.
			p.mu.Unlock()
			continue
		}
		ps.busy = true
		p.mu.Unlock()

		if err := p.connectAndVerify(ctx, ps.path, endpoint); err != nil {
			if ctx.Err() != nil {
				p.markFree(ps)
				return nil, false, ctx.Err()
			}
			p.Logger.Warn("Egress path failed verification",
				"path", ps.path.Name,
				"region", ps.path.Region,
				"platform", platformName,
				"error", err,
			)
			p.mu.Lock()
			ps.path.State = domain.EgressStateFailed
			ps.path.LastChecked = p.Clock.Now()
			p.mu.Unlock()
			p.markFree(ps)
			continue
		}

		p.mu.Lock()
		ps.path.State = domain.EgressStateVerified
		ps.path.LastChecked = p.Clock.Now()
		p.mu.Unlock()

		p.Logger.Info("Egress path acquired", "path", ps.path.Name, "platform", platformName)
		path := ps.path
		handle := egress.NewHandle(path, func() {
			if err := p.Provider.Disconnect(context.Background(), path); err != nil {
				p.Logger.Warn("Egress disconnect failed", "path", path.Name, "error", err)
			}
			p.markFree(ps)
		})
		return handle, false, nil
	}

	return nil, anyBusy, nil
}

func (p *PoolImpl) connectAndVerify(ctx context.Context, path *domain.EgressPath, endpoint string) error {
	if err := p.Provider.Connect(ctx, path); err != nil {
		return err
	}

	if err := p.Prober.Verify(ctx, path, endpoint); err != nil {
		if derr := p.Provider.Disconnect(ctx, path); derr != nil {
			p.Logger.Warn("Egress disconnect failed after probe failure", "path", path.Name, "error", derr)
		}
		return err
	}

	return nil
}

func (p *PoolImpl) markFree(ps *pathState) {
	p.mu.Lock()
	ps.busy = false
	p.mu.Unlock()

	select {
	case p.freed <- struct{}{}:
	default:
	}
}

// ParsePaths parses the EGRESS_PATHS config value: comma-separated
// name:region:proxy_url triples, scan order = declaration order.
func ParsePaths(raw string) ([]*domain.EgressPath, error) {
	if strings.TrimSpace(raw) == "" {
		return nil, nil
	}

	var paths []*domain.EgressPath
	for _, entry := range strings.Split(raw, ",") {
		parts := strings.SplitN(strings.TrimSpace(entry), ":", 3)
		if len(parts) != 3 {
			return nil, apperrors.New(apperrors.KindValidation, "malformed egress path entry: "+entry)
		}
		paths = append(paths, &domain.EgressPath{
			Name:     parts[0],
			Region:   parts[1],
			ProxyURL: parts[2],
			State:    domain.EgressStateUnknown,
		})
	}
	return paths, nil
}
