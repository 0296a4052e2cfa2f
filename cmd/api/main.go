package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/fastprodman/billwallet/internal/api"
	"github.com/fastprodman/billwallet/internal/app"
	"github.com/fastprodman/billwallet/internal/infra/logging"
	"github.com/fastprodman/billwallet/internal/services/wallet"
	"github.com/fastprodman/billwallet/pkg/envconf"
	"github.com/fastprodman/billwallet/pkg/shutdownqueue"
	"github.com/joho/godotenv"
	"golang.org/x/sync/errgroup"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	err := run(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error running api: %v", err)
		//nolint:gocritic
		os.Exit(1)
	}
}

func run(ctx context.Context) (retErr error) {
	_ = godotenv.Load()

	cfg := new(apiConfig)

	err := envconf.Load(cfg)
	if err != nil {
		return fmt.Errorf("init config: %w", err)
	}

	logging.SetupJSON(cfg.LogLevel, "api")

	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()

		serr := shutdownqueue.Shutdown(shutdownCtx)
		if serr != nil {
			retErr = errors.Join(retErr, serr)
		}
	}()

	// --- Infra ---
	a, err := app.Build(ctx, cfg.Config)
	if err != nil {
		return fmt.Errorf("build app: %w", err)
	}

	// --- Reconciliation sweep ---
	if cfg.Sweep.Enabled {
		sched, err := wallet.NewSweepScheduler(ctx, a.Service, cfg.Sweep.Interval)
		if err != nil {
			return fmt.Errorf("sweep scheduler: %w", err)
		}

		sched.Start()

		shutdownqueue.Add("sweep", func(c context.Context) error {
			slog.Info("Stop sweep scheduler")

			select {
			case <-sched.Stop().Done():
				return nil
			case <-c.Done():
				return fmt.Errorf("wait for running sweep: %w", c.Err())
			}
		})
	}

	// --- HTTP server ---
	h := api.NewHandler(a.Service, a.Hub, cfg.DefaultProvider)
	router := api.NewRouter(h, api.RouterConfig{
		Auth:           api.NewAuthenticator(cfg.Auth.JWTSecret, cfg.Auth.Issuer),
		Metrics:        a.Metrics,
		Gatherer:       a.Registry,
		AllowedOrigins: cfg.AllowedOrigins,
	})
	srv := api.NewServer(cfg.Port, router)

	// Registered last so it shuts down first.
	shutdownqueue.Add("http", func(c context.Context) error {
		slog.Info("Shut down server")

		err := srv.Shutdown(c)
		if err != nil {
			return fmt.Errorf("shutdown srv: %w", err)
		}

		return nil
	})

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		serr := srv.ListenAndServe()
		// http.ErrServerClosed is the normal path during Shutdown
		if serr != nil && !errors.Is(serr, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", serr)
		}

		return nil
	})

	slog.Info("API started", "port", cfg.Port, "ledger", cfg.LedgerBackend)

	// --- Wait until either context cancels or server errors out ---
	<-gctx.Done()

	if ctx.Err() != nil {
		// graceful path; deferred shutdownqueue.Shutdown will run
		return nil
	}

	return g.Wait()
}
