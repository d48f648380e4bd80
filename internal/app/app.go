package app

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/jonboulle/clockwork"
	_ "github.com/lib/pq"
	"github.com/orgball2608/video-distributor/internal/alert"
	"github.com/orgball2608/video-distributor/internal/alert/alertimpl"
	"github.com/orgball2608/video-distributor/internal/cascade"
	"github.com/orgball2608/video-distributor/internal/cascade/cascadeimpl"
	"github.com/orgball2608/video-distributor/internal/egress"
	"github.com/orgball2608/video-distributor/internal/egress/egressimpl"
	"github.com/orgball2608/video-distributor/internal/metrics"
	_ "github.com/orgball2608/video-distributor/internal/migrations"
	"github.com/orgball2608/video-distributor/internal/orchestrator"
	"github.com/orgball2608/video-distributor/internal/orchestrator/orchestratorimpl"
	"github.com/orgball2608/video-distributor/internal/platform"
	"github.com/orgball2608/video-distributor/internal/queue"
	"github.com/orgball2608/video-distributor/internal/queue/queueimpl"
	"github.com/orgball2608/video-distributor/internal/repositories/escalation"
	repositories "github.com/orgball2608/video-distributor/internal/repositories/fx"
	"github.com/orgball2608/video-distributor/internal/scheduler"
	"github.com/orgball2608/video-distributor/internal/scheduler/schedulerimpl"
	"github.com/orgball2608/video-distributor/internal/session"
	"github.com/orgball2608/video-distributor/internal/session/sessionimpl"
	"github.com/orgball2608/video-distributor/internal/throttle"
	"github.com/orgball2608/video-distributor/internal/throttle/throttleimpl"
	"github.com/orgball2608/video-distributor/pkg/config"
	"github.com/orgball2608/video-distributor/pkg/logger"
	"github.com/orgball2608/video-distributor/pkg/pgx"
	"github.com/pressly/goose/v3"
	"go.uber.org/fx"
)

var Module = fx.Options(
	fx.Provide(
		config.New,
		logger.FxOption,
		pgx.New,
		metrics.New,
		func() clockwork.Clock { return clockwork.NewRealClock() },
		newRegistry,
	),
	fx.Provide(
		fx.Annotate(
			queueimpl.New,
			fx.As(new(queue.Client)),
		),
		fx.Annotate(
			throttleimpl.New,
			fx.As(new(throttle.Client)),
		),
		fx.Annotate(
			egressimpl.NewProvider,
			fx.As(new(egress.Provider)),
		),
		fx.Annotate(
			egressimpl.NewProber,
			fx.As(new(egress.Prober)),
		),
		fx.Annotate(
			egressimpl.New,
			fx.As(new(egress.Pool)),
		),
		fx.Annotate(
			sessionimpl.New,
			fx.As(new(session.Provider)),
		),
		fx.Annotate(
			cascadeimpl.New,
			fx.As(new(cascade.Client)),
		),
		fx.Annotate(
			orchestratorimpl.New,
			fx.As(new(orchestrator.Client)),
		),
		fx.Annotate(
			schedulerimpl.New,
			fx.As(new(scheduler.Client)),
		),
		fx.Annotate(
			alertimpl.New,
			fx.As(new(alert.Client)),
		),
	),
	fx.Provide(
		fx.Annotate(
			newStrategies,
			fx.ResultTags(`name:"cascade_strategies"`),
		),
		fx.Annotate(
			newAlertChannels,
			fx.ResultTags(`group:"alert_channels,flatten"`),
		),
	),
	repositories.Module,
	fx.Invoke(migrate),
	fx.Invoke(run),
)

func newRegistry(cfg *config.Config) (*platform.Registry, error) {
	adapters, err := platform.ParseEndpoints(cfg.Platform.Endpoints)
	if err != nil {
		return nil, err
	}
	return platform.NewRegistry(adapters...), nil
}

// newStrategies builds the automated strategy chain in the configured
// order. "manual" is not a strategy here: the cascade's escalation path is
// the terminal hand-off and always applies.
func newStrategies(
	cfg *config.Config,
	registry *platform.Registry,
	pool egress.Pool,
	sessions session.Provider,
	log logger.Logger,
) ([]cascade.Strategy, error) {
	available := map[string]cascade.Strategy{
		cascade.StrategyAPI:          cascadeimpl.NewAPIStrategy(registry),
		cascade.StrategyAPIViaEgress: cascadeimpl.NewEgressStrategy(registry, pool, log),
		cascade.StrategyReplay:       cascadeimpl.NewReplayStrategy(registry, sessions, log),
	}

	var out []cascade.Strategy
	for _, name := range cascadeimpl.ParseOrder(cfg.Cascade.Order) {
		if name == cascade.StrategyManual {
			continue
		}
		strat, ok := available[name]
		if !ok {
			return nil, fmt.Errorf("unknown cascade strategy %q in CASCADE_ORDER", name)
		}
		out = append(out, strat)
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("CASCADE_ORDER configures no automated strategies")
	}
	return out, nil
}

func newAlertChannels(cfg *config.Config, log logger.Logger) ([]alert.Channel, error) {
	channels := []alert.Channel{alertimpl.NewLogChannel(log)}

	if cfg.Telegram.Token != "" {
		tg, err := alertimpl.NewTelegramChannel(alertimpl.TelegramOpts{Config: cfg, Logger: log})
		if err != nil {
			return nil, err
		}
		channels = append(channels, tg)
	}
	if cfg.Slack.Token != "" {
		channels = append(channels, alertimpl.NewSlackChannel(alertimpl.SlackOpts{Config: cfg}))
	}
	return channels, nil
}

func migrate(cfg *config.Config, log logger.Logger) error {
	if err := goose.SetDialect("postgres"); err != nil {
		return err
	}

	db, err := sql.Open("postgres", cfg.GetDSN())
	if err != nil {
		return err
	}
	defer db.Close()

	// Migrations are compiled in; the directory argument only anchors
	// goose's version scan.
	if err := goose.Up(db, "."); err != nil {
		return err
	}
	log.Info("Migrations applied")
	return nil
}

func run(
	lc fx.Lifecycle,
	log logger.Logger,
	cfg *config.Config,
	orch orchestrator.Client,
	sched scheduler.Client,
	collector *metrics.Collector,
	escalations escalation.Repository,
) {
	var cancel context.CancelFunc
	server := &http.Server{Addr: fmt.Sprintf(":%d", cfg.App.Port)}

	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			runCtx, c := context.WithCancel(context.Background())
			cancel = c

			go startHTTPServer(server, log, collector, escalations)

			if err := sched.Start(runCtx); err != nil {
				cancel()
				return err
			}

			go func() {
				if err := orch.Run(runCtx); err != nil {
					log.Error("Orchestrator exited", "error", err)
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			if cancel != nil {
				cancel()
			}
			return server.Shutdown(ctx)
		},
	})
}

func startHTTPServer(server *http.Server, log logger.Logger, collector *metrics.Collector, escalations escalation.Repository) {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain")
		if _, err := w.Write([]byte("ok")); err != nil {
			log.Error("Failed to write health response", "error", err)
		}
	})
	mux.Handle("/metrics", collector.Handler())
	mux.HandleFunc("GET /escalations", func(w http.ResponseWriter, r *http.Request) {
		records, err := escalations.ListPending(r.Context())
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(records); err != nil {
			log.Error("Failed to write escalation export", "error", err)
		}
	})
	mux.HandleFunc("POST /escalations/resolve", func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			ID           string `json:"id"`
			ExternalURL  string `json:"external_url"`
			OperatorNote string `json:"operator_note"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.ID == "" {
			http.Error(w, "invalid resolve request", http.StatusBadRequest)
			return
		}
		switch err := escalations.Resolve(r.Context(), req.ID, req.ExternalURL, req.OperatorNote); {
		case errors.Is(err, escalation.ErrNotFound):
			http.Error(w, err.Error(), http.StatusNotFound)
		case errors.Is(err, escalation.ErrAlreadyResolved):
			http.Error(w, err.Error(), http.StatusConflict)
		case err != nil:
			http.Error(w, err.Error(), http.StatusInternalServerError)
		default:
			w.WriteHeader(http.StatusNoContent)
		}
	})
	server.Handler = mux

	log.Info("Starting http server", "addr", server.Addr)
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Error("Http server failed", "error", err)
	}
}
