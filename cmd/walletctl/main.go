// Command walletctl is the operator tool for reconciling wallet
// transactions: list stuck entries, resolve them by hand, run a sweep.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/fastprodman/billwallet/internal/app"
	"github.com/fastprodman/billwallet/internal/infra/logging"
	"github.com/fastprodman/billwallet/pkg/envconf"
	"github.com/fastprodman/billwallet/pkg/shutdownqueue"
	"github.com/joho/godotenv"
)

var Version = "dev"

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	err := newRootCmd(buildApp).ExecuteContext(ctx)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		//nolint:gocritic
		os.Exit(1)
	}
}

// buildApp wires the service from the environment. Logs go to stderr so
// command output stays clean.
func buildApp(ctx context.Context) (*app.App, func(context.Context) error, error) {
	_ = godotenv.Load()

	cfg := new(app.Config)

	err := envconf.Load(cfg)
	if err != nil {
		return nil, nil, fmt.Errorf("load config: %w", err)
	}

	slog.SetDefault(logging.New(os.Stderr, cfg.LogLevel, "walletctl"))

	a, err := app.Build(ctx, *cfg)
	if err != nil {
		_ = shutdownqueue.Shutdown(ctx)
		return nil, nil, fmt.Errorf("build app: %w", err)
	}

	return a, shutdownqueue.Shutdown, nil
}
