package alertimpl

import (
	"context"
	"time"

	"github.com/orgball2608/video-distributor/internal/alert"
	"github.com/orgball2608/video-distributor/internal/metrics"
	"github.com/orgball2608/video-distributor/pkg/logger"
	"github.com/panjf2000/ants/v2"
	"go.uber.org/fx"
)

const (
	dispatchPoolSize = 8
	sendTimeout      = 15 * time.Second
)

type Opts struct {
	fx.In

	LC       fx.Lifecycle
	Channels []alert.Channel `group:"alert_channels"`
	Logger   logger.Logger
	Metrics  *metrics.Collector
}

// AlertImpl dispatches alerts on a bounded worker pool so a slow channel
// can never block the upload path.
type AlertImpl struct {
	Channels []alert.Channel
	Logger   logger.Logger
	Metrics  *metrics.Collector

	pool *ants.Pool
}

func New(opts Opts) (*AlertImpl, error) {
	pool, err := ants.NewPool(dispatchPoolSize, ants.WithNonblocking(true))
	if err != nil {
		return nil, err
	}

	a := &AlertImpl{
		Channels: opts.Channels,
		Logger:   opts.Logger,
		Metrics:  opts.Metrics,
		pool:     pool,
	}

	opts.LC.Append(fx.Hook{
		OnStop: func(context.Context) error {
			pool.Release()
			return nil
		},
	})

	return a, nil
}

var _ alert.Client = (*AlertImpl)(nil)

func (a *AlertImpl) Notify(severity alert.Severity, message string, alertContext map[string]string) {
	a.Metrics.IncAlerts(severity.String())

	for _, ch := range a.Channels {
		channel := ch
		err := a.pool.Submit(func() {
			ctx, cancel := context.WithTimeout(context.Background(), sendTimeout)
			defer cancel()

			if err := channel.Send(ctx, severity, message, alertContext); err != nil {
				// Best-effort logged, never escalated recursively.
				a.Logger.Warn("Alert channel delivery failed",
					"channel", channel.Name(),
					"severity", severity.String(),
					"error", err,
				)
			}
		})
		if err != nil {
			a.Logger.Warn("Alert dropped, dispatch pool saturated",
				"channel", channel.Name(),
				"severity", severity.String(),
			)
		}
	}

	a.Logger.Info("Alert dispatched", "severity", severity.String(), "message", message)
}
