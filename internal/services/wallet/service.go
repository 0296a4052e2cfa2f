// Package wallet implements the wallet debit-reconcile protocol: reserve
// funds with a pending ledger entry, call the provider, then settle the
// entry as completed or refund it.
package wallet

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/fastprodman/billwallet/internal/cache"
	"github.com/fastprodman/billwallet/internal/config"
	"github.com/fastprodman/billwallet/internal/gateway"
	"github.com/fastprodman/billwallet/internal/metrics"
	"github.com/fastprodman/billwallet/internal/models"
	"github.com/fastprodman/billwallet/internal/notify"
	"github.com/fastprodman/billwallet/internal/repos/ledger"
	"github.com/fastprodman/billwallet/pkg/reference"
	"golang.org/x/crypto/bcrypt"
)

// BalanceCache is a read-through cache of wallet balances.
type BalanceCache interface {
	Get(ctx context.Context, ownerID string) (models.Balance, error)
	Set(ctx context.Context, b models.Balance) error
	Invalidate(ctx context.Context, ownerIDs ...string) error
}

type Deps struct {
	Store     ledger.Store
	Providers *gateway.Registry
	// Notifier receives user-facing settlement notifications.
	Notifier notify.Emitter
	// Alerts receives operator alerts for inconsistent settlements.
	Alerts  notify.Emitter
	Cache   BalanceCache
	Metrics *metrics.Metrics
}

type Config struct {
	Settlement   config.SettlementConfig
	Sweep        config.SweepConfig
	DefaultLimit int64
}

type Service struct {
	store     ledger.Store
	providers *gateway.Registry
	notifier  notify.Emitter
	alerts    notify.Emitter
	cache     BalanceCache
	metrics   *metrics.Metrics
	refs      *reference.Generator
	cfg       Config

	now     func() time.Time
	sleep   func(ctx context.Context, d time.Duration) error
	pinCost int
}

func New(deps Deps, cfg Config) *Service {
	s := &Service{
		store:     deps.Store,
		providers: deps.Providers,
		notifier:  deps.Notifier,
		alerts:    deps.Alerts,
		cache:     deps.Cache,
		metrics:   deps.Metrics,
		refs:      reference.NewGenerator(),
		cfg:       cfg,
		now:       time.Now,
		sleep:     sleepCtx,
		pinCost:   bcrypt.DefaultCost,
	}

	if s.providers == nil {
		s.providers = gateway.NewRegistry()
	}
	if s.notifier == nil {
		s.notifier = notify.Discard{}
	}
	if s.alerts == nil {
		s.alerts = notify.LogEmitter{}
	}
	if s.cfg.Settlement.RetryAttempts < 1 {
		s.cfg.Settlement.RetryAttempts = 1
	}

	return s
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func (s *Service) invalidate(ctx context.Context, ownerIDs ...string) {
	if s.cache == nil {
		return
	}

	err := s.cache.Invalidate(ctx, ownerIDs...)
	if err != nil {
		slog.WarnContext(ctx, "balance cache invalidation failed", "owner_ids", ownerIDs, "error", err)
	}
}

func (s *Service) emit(ctx context.Context, n notify.Notification) {
	if n.At.IsZero() {
		n.At = s.now()
	}

	err := s.notifier.Emit(ctx, n)
	if err != nil {
		slog.WarnContext(ctx, "notification not delivered", "reference", n.Reference, "error", err)
	}
}

func (s *Service) alert(ctx context.Context, n notify.Notification) {
	n.Kind = notify.KindAlert
	if n.At.IsZero() {
		n.At = s.now()
	}

	err := s.alerts.Emit(ctx, n)
	if err != nil {
		slog.ErrorContext(ctx, "operator alert not delivered", "reference", n.Reference, "error", err)
	}
}

func resultLabel(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, ErrInsufficientFunds):
		return "insufficient_funds"
	case errors.Is(err, ErrDuplicateReference):
		return "duplicate_reference"
	case errors.Is(err, ErrWalletNotFound):
		return "wallet_not_found"
	case errors.Is(err, ErrInvalidAmount):
		return "invalid_amount"
	default:
		return "error"
	}
}

func (s *Service) EnsureWallet(ctx context.Context, ownerID string, limit int64) (models.Balance, error) {
	if limit <= 0 {
		limit = s.cfg.DefaultLimit
	}

	err := s.store.CreateWallet(ctx, ownerID, limit)
	if err != nil {
		return models.Balance{}, fmt.Errorf("ensure wallet: %w", err)
	}

	s.invalidate(ctx, ownerID)

	return s.Balance(ctx, ownerID)
}

// Balance reads through the cache. Cache failures fall back to the store.
func (s *Service) Balance(ctx context.Context, ownerID string) (models.Balance, error) {
	if s.cache != nil {
		b, err := s.cache.Get(ctx, ownerID)
		if err == nil {
			return b, nil
		}

		if !errors.Is(err, cache.ErrMiss) {
			slog.WarnContext(ctx, "balance cache read failed", "owner_id", ownerID, "error", err)
		}
	}

	w, err := s.store.Wallet(ctx, ownerID)
	if err != nil {
		return models.Balance{}, fmt.Errorf("get balance: %w", err)
	}

	b := w.View()

	if s.cache != nil {
		err = s.cache.Set(ctx, b)
		if err != nil {
			slog.WarnContext(ctx, "balance cache write failed", "owner_id", ownerID, "error", err)
		}
	}

	return b, nil
}

const (
	defaultPageSize = 20
	maxPageSize     = 100
)

func (s *Service) History(ctx context.Context, ownerID string, limit, offset int) ([]models.Transaction, error) {
	if limit <= 0 {
		limit = defaultPageSize
	}
	limit = min(limit, maxPageSize)
	offset = max(offset, 0)

	list, err := s.store.Transactions(ctx, ownerID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("history: %w", err)
	}

	return list, nil
}

// Transaction returns one entry of ownerID. Entries of other owners are
// reported as not found.
func (s *Service) Transaction(ctx context.Context, ownerID, ref string) (models.Transaction, error) {
	t, err := s.store.Transaction(ctx, ref)
	if err != nil {
		return models.Transaction{}, fmt.Errorf("get transaction: %w", err)
	}

	if t.OwnerID != ownerID {
		return models.Transaction{}, fmt.Errorf("get transaction: %w", ErrTransactionNotFound)
	}

	return t, nil
}

// PendingOlderThan lists pending entries created more than age ago.
func (s *Service) PendingOlderThan(ctx context.Context, age time.Duration, limit int) ([]models.Transaction, error) {
	list, err := s.store.PendingBefore(ctx, s.now().Add(-age), limit)
	if err != nil {
		return nil, fmt.Errorf("list pending: %w", err)
	}

	return list, nil
}
