package config

import (
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
)

type Config struct {
	App struct {
		Env       string `env:"APP_ENV" env-default:"development"`
		Port      int    `env:"APP_PORT" env-default:"8080"`
		SentryUrl string `env:"SENTRY_URL"`
	}
	Postgres struct {
		Port    int    `env:"POSTGRES_PORT"`
		Host    string `env:"POSTGRES_HOST"`
		User    string `env:"POSTGRES_USER"`
		Pass    string `env:"POSTGRES_PASS"`
		Name    string `env:"POSTGRES_NAME"`
		SslMode string `env:"POSTGRES_SSL_MODE" env-default:"disable"`
	}
	Telegram struct {
		User    int64  `env:"TELEGRAM_USER"`
		Token   string `env:"TELEGRAM_TOKEN"`
		Channel string `env:"TELEGRAM_CHANNEL"`
	}
	Slack struct {
		Token   string `env:"SLACK_TOKEN"`
		Channel string `env:"SLACK_CHANNEL"`
	}
	Platform struct {
		// Endpoints is a comma-separated list of name=base_url pairs, one
		// ingest gateway per target platform.
		Endpoints string `env:"PLATFORM_ENDPOINTS"`
	}
	Throttle struct {
		MinInterval         time.Duration `env:"THROTTLE_MIN_INTERVAL" env-default:"30m"`
		RecommendedInterval time.Duration `env:"THROTTLE_RECOMMENDED_INTERVAL" env-default:"45m"`
	}
	Egress struct {
		// Paths is a comma-separated list of name:region:proxy_url triples.
		// Scan order is declaration order.
		Paths        string        `env:"EGRESS_PATHS"`
		Cooldown     time.Duration `env:"EGRESS_COOLDOWN" env-default:"10m"`
		ProbeTimeout time.Duration `env:"EGRESS_PROBE_TIMEOUT" env-default:"10s"`
	}
	Cascade struct {
		// Order is the default strategy order for every platform.
		Order string `env:"CASCADE_ORDER" env-default:"api,api_via_egress,interface_replay,manual"`
	}
	Orchestrator struct {
		Workers         int           `env:"ORCHESTRATOR_WORKERS" env-default:"5"`
		PollInterval    time.Duration `env:"ORCHESTRATOR_POLL_INTERVAL" env-default:"5s"`
		BacklogAlertAge time.Duration `env:"ORCHESTRATOR_BACKLOG_ALERT_AGE" env-default:"2h"`
	}
}

var (
	once sync.Once
	cfg  *Config
)

func New() (*Config, error) {
	once.Do(func() {
		cfg = &Config{}
		if err := cleanenv.ReadEnv(cfg); err != nil {
			help, _ := cleanenv.GetDescription(cfg, nil)
			log.Fatalf("Failed to read configuration: %v\n%v", err, help)
		}
	})
	return cfg, nil
}

// GetDSN returns the postgres connection string used by goose and pgx.
func (c *Config) GetDSN() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		c.Postgres.User,
		c.Postgres.Pass,
		c.Postgres.Host,
		c.Postgres.Port,
		c.Postgres.Name,
		c.Postgres.SslMode,
	)
}
