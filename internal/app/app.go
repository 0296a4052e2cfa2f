// Package app wires the wallet service from configuration. The API server
// and the operator CLI share it so both run against the same stack.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"slices"
	"time"

	"github.com/fastprodman/billwallet/internal/cache"
	"github.com/fastprodman/billwallet/internal/config"
	"github.com/fastprodman/billwallet/internal/gateway"
	"github.com/fastprodman/billwallet/internal/gateway/vtpass"
	"github.com/fastprodman/billwallet/internal/infra/pgutils"
	"github.com/fastprodman/billwallet/internal/metrics"
	"github.com/fastprodman/billwallet/internal/notify"
	"github.com/fastprodman/billwallet/internal/repos/ledger"
	"github.com/fastprodman/billwallet/internal/repos/ledger/memory"
	ledgerpg "github.com/fastprodman/billwallet/internal/repos/ledger/postgres"
	"github.com/fastprodman/billwallet/internal/services/wallet"
	"github.com/fastprodman/billwallet/pkg/shutdownqueue"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

const (
	BackendPostgres = "postgres"
	BackendMemory   = "memory"
)

// Config is the environment shared by every binary that runs the service.
type Config struct {
	LogLevel        slog.Level    `env:"APP_LOG_LEVEL" default:"INFO"`
	ShutdownTimeout time.Duration `env:"APP_SHUTDOWN_TIMEOUT" default:"15s"`
	LedgerBackend   string        `env:"LEDGER_BACKEND" default:"postgres"`
	AllowedOrigins  []string      `env:"HTTP_ALLOWED_ORIGINS" default:""`

	Postgres   config.PostgresConfig
	Redis      config.RedisConfig
	Kafka      config.KafkaConfig
	VTpass     config.VTpassConfig
	Settlement config.SettlementConfig
	Sweep      config.SweepConfig
	Wallet     config.WalletConfig
}

type App struct {
	Service  *wallet.Service
	Store    ledger.Store
	Hub      *notify.Hub
	Metrics  *metrics.Metrics
	Registry *prometheus.Registry
}

// Build connects the configured backends and returns the wired service.
// Every opened resource is registered with shutdownqueue.
func Build(ctx context.Context, cfg Config) (*App, error) {
	store, err := openStore(ctx, cfg)
	if err != nil {
		return nil, err
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	m := metrics.New(reg)

	var balances wallet.BalanceCache

	if cfg.Redis.Enabled {
		client := cache.NewClient(cfg.Redis)
		shutdownqueue.Add("redis", func(context.Context) error { return client.Close() })

		c := cache.NewBalanceCache(client, cfg.Redis.TTL, m)

		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()

		err = c.Ping(pingCtx)
		if err != nil {
			return nil, fmt.Errorf("redis: %w", err)
		}

		balances = c
	}

	hub := notify.NewHub(originChecker(cfg.AllowedOrigins))
	shutdownqueue.Add("websocket", hub.Close)

	notifier := notify.Multi{notify.LogEmitter{}, hub}
	alerts := notify.Multi{notify.LogEmitter{}}

	if cfg.Kafka.Enabled {
		k := notify.NewKafkaEmitter(notify.NewKafkaWriter(cfg.Kafka))
		shutdownqueue.Add("kafka", func(context.Context) error { return k.Close() })

		notifier = append(notifier, k)
		alerts = append(alerts, k)
	}

	svc := wallet.New(wallet.Deps{
		Store:     store,
		Providers: gateway.NewRegistry(vtpass.New(cfg.VTpass)),
		Notifier:  notifier,
		Alerts:    alerts,
		Cache:     balances,
		Metrics:   m,
	}, wallet.Config{
		Settlement:   cfg.Settlement,
		Sweep:        cfg.Sweep,
		DefaultLimit: cfg.Wallet.DefaultLimit,
	})

	return &App{
		Service:  svc,
		Store:    store,
		Hub:      hub,
		Metrics:  m,
		Registry: reg,
	}, nil
}

func openStore(ctx context.Context, cfg Config) (ledger.Store, error) {
	switch cfg.LedgerBackend {
	case BackendPostgres:
		db, err := pgutils.Connect(ctx, cfg.Postgres)
		if err != nil {
			return nil, fmt.Errorf("postgres: %w", err)
		}

		shutdownqueue.Add("postgres", func(context.Context) error { return db.Close() })

		return ledgerpg.New(db), nil
	case BackendMemory:
		slog.Warn("using in-memory ledger, balances are lost on restart")

		return memory.New(), nil
	default:
		return nil, fmt.Errorf("unknown ledger backend %q", cfg.LedgerBackend)
	}
}

// originChecker allows websocket upgrades from the listed origins. With no
// list only same-origin requests are accepted.
func originChecker(origins []string) func(*http.Request) bool {
	if len(origins) == 0 {
		return nil
	}

	if slices.Contains(origins, "*") {
		return func(*http.Request) bool { return true }
	}

	return func(r *http.Request) bool {
		return slices.Contains(origins, r.Header.Get("Origin"))
	}
}
