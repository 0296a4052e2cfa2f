// Package memory is an in-process ledger.Store. Units of work are serialized
// by one mutex and their writes are staged, so a unit that returns an error
// leaves no trace.
package memory

import (
	"cmp"
	"context"
	"fmt"
	"maps"
	"slices"
	"sync"
	"time"

	"github.com/fastprodman/billwallet/internal/models"
	"github.com/fastprodman/billwallet/internal/repos/ledger"
)

var (
	_ ledger.Store = (*Store)(nil)
	_ ledger.Tx    = (*unit)(nil)
)

type Store struct {
	mu      sync.Mutex
	now     func() time.Time
	wallets map[string]models.Wallet
	txns    map[string]models.Transaction
}

type Option func(*Store)

// WithClock overrides the time source used for created/updated stamps.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

func New(opts ...Option) *Store {
	s := &Store{
		now:     time.Now,
		wallets: make(map[string]models.Wallet),
		txns:    make(map[string]models.Transaction),
	}

	for _, opt := range opts {
		opt(s)
	}

	return s
}

func (s *Store) InTx(ctx context.Context, fn func(ledger.Tx) error) error {
	err := ctx.Err()
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	u := &unit{
		s:       s,
		wallets: make(map[string]models.Wallet),
		txns:    make(map[string]models.Transaction),
	}

	err = fn(u)
	if err != nil {
		return fmt.Errorf("fn: %w", err)
	}

	maps.Copy(s.wallets, u.wallets)
	maps.Copy(s.txns, u.txns)

	return nil
}

func (s *Store) CreateWallet(ctx context.Context, ownerID string, limit int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.wallets[ownerID]; ok {
		return nil
	}

	now := s.now()
	s.wallets[ownerID] = models.Wallet{
		OwnerID:   ownerID,
		Limit:     limit,
		CreatedAt: now,
		UpdatedAt: now,
	}

	return nil
}

// SeedWallet stores w as is. Test helper.
func (s *Store) SeedWallet(w models.Wallet) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if w.CreatedAt.IsZero() {
		w.CreatedAt = s.now()
		w.UpdatedAt = w.CreatedAt
	}

	s.wallets[w.OwnerID] = w
}

func (s *Store) Wallet(ctx context.Context, ownerID string) (models.Wallet, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	w, ok := s.wallets[ownerID]
	if !ok {
		return models.Wallet{}, fmt.Errorf("get wallet: %w", ledger.ErrWalletNotFound)
	}

	return w, nil
}

func (s *Store) SetPINHash(ctx context.Context, ownerID, hash string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	w, ok := s.wallets[ownerID]
	if !ok {
		return ledger.ErrWalletNotFound
	}

	w.PINHash = hash
	w.UpdatedAt = s.now()
	s.wallets[ownerID] = w

	return nil
}

func (s *Store) Transaction(ctx context.Context, reference string) (models.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.txns[reference]
	if !ok {
		return models.Transaction{}, fmt.Errorf("get transaction: %w", ledger.ErrTransactionNotFound)
	}

	return cloneTx(t), nil
}

func (s *Store) Transactions(ctx context.Context, ownerID string, limit, offset int) ([]models.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []models.Transaction

	for _, t := range s.txns {
		if t.OwnerID == ownerID {
			out = append(out, cloneTx(t))
		}
	}

	slices.SortFunc(out, func(a, b models.Transaction) int {
		if c := b.CreatedAt.Compare(a.CreatedAt); c != 0 {
			return c
		}

		return cmp.Compare(b.Reference, a.Reference)
	})

	return page(out, limit, offset), nil
}

func (s *Store) PendingBefore(ctx context.Context, before time.Time, limit int) ([]models.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []models.Transaction

	for _, t := range s.txns {
		if t.Status == models.StatusPending && t.CreatedAt.Before(before) {
			out = append(out, cloneTx(t))
		}
	}

	slices.SortFunc(out, func(a, b models.Transaction) int {
		return a.CreatedAt.Compare(b.CreatedAt)
	})

	return page(out, limit, 0), nil
}

func page(ts []models.Transaction, limit, offset int) []models.Transaction {
	if offset >= len(ts) {
		return nil
	}

	ts = ts[offset:]
	if limit > 0 && limit < len(ts) {
		ts = ts[:limit]
	}

	return ts
}

func cloneTx(t models.Transaction) models.Transaction {
	t.Metadata = maps.Clone(t.Metadata)
	return t
}

// unit stages writes on top of the committed maps. The store mutex is held
// for its whole life, so every row it reads is effectively locked.
type unit struct {
	s       *Store
	wallets map[string]models.Wallet
	txns    map[string]models.Transaction
}

func (u *unit) wallet(ownerID string) (models.Wallet, bool) {
	if w, ok := u.wallets[ownerID]; ok {
		return w, true
	}

	w, ok := u.s.wallets[ownerID]

	return w, ok
}

func (u *unit) txn(reference string) (models.Transaction, bool) {
	if t, ok := u.txns[reference]; ok {
		return t, true
	}

	t, ok := u.s.txns[reference]

	return t, ok
}

func (u *unit) LockWallet(ownerID string) (models.Wallet, error) {
	w, ok := u.wallet(ownerID)
	if !ok {
		return models.Wallet{}, fmt.Errorf("lock/get wallet: %w", ledger.ErrWalletNotFound)
	}

	return w, nil
}

func (u *unit) DebitWallet(ownerID string, amount int64) error {
	w, ok := u.wallet(ownerID)
	if !ok || w.Balance < amount {
		return ledger.ErrInsufficientFunds
	}

	w.Balance -= amount
	w.UpdatedAt = u.s.now()
	u.wallets[ownerID] = w

	return nil
}

func (u *unit) CreditWallet(ownerID string, amount int64) error {
	w, ok := u.wallet(ownerID)
	if !ok {
		return ledger.ErrWalletNotFound
	}

	w.Balance += amount
	w.UpdatedAt = u.s.now()
	u.wallets[ownerID] = w

	return nil
}

func (u *unit) PendingDebitTotal(ownerID string) (int64, error) {
	var total int64

	seen := make(map[string]struct{}, len(u.txns))

	for ref, t := range u.txns {
		seen[ref] = struct{}{}
		if t.OwnerID == ownerID && t.Direction == models.Debit && t.Status == models.StatusPending {
			total += t.Amount
		}
	}

	for ref, t := range u.s.txns {
		if _, ok := seen[ref]; ok {
			continue
		}
		if t.OwnerID == ownerID && t.Direction == models.Debit && t.Status == models.StatusPending {
			total += t.Amount
		}
	}

	return total, nil
}

func (u *unit) InsertTransaction(t models.Transaction) (models.Transaction, error) {
	if _, ok := u.txn(t.Reference); ok {
		return models.Transaction{}, ledger.ErrDuplicateReference
	}

	if _, ok := u.wallet(t.OwnerID); !ok {
		return models.Transaction{}, fmt.Errorf("insert transaction: %w", ledger.ErrWalletNotFound)
	}

	if t.Amount <= 0 {
		return models.Transaction{}, fmt.Errorf("insert transaction: amount must be positive, got %d", t.Amount)
	}

	now := u.s.now()
	t.CreatedAt = now
	t.UpdatedAt = now
	t.Metadata = maps.Clone(t.Metadata)
	if t.Metadata == nil {
		t.Metadata = map[string]any{}
	}

	u.txns[t.Reference] = t

	return cloneTx(t), nil
}

func (u *unit) LockTransaction(reference string) (models.Transaction, error) {
	t, ok := u.txn(reference)
	if !ok {
		return models.Transaction{}, fmt.Errorf("lock transaction: %w", ledger.ErrTransactionNotFound)
	}

	return cloneTx(t), nil
}

func (u *unit) UpdateTransaction(reference string, status models.Status, metadata map[string]any) error {
	t, ok := u.txn(reference)
	if !ok || t.Status != models.StatusPending {
		return fmt.Errorf("update %s: %w", reference, ledger.ErrTransactionNotFound)
	}

	t = cloneTx(t)
	if t.Metadata == nil {
		t.Metadata = map[string]any{}
	}
	maps.Copy(t.Metadata, metadata)

	t.Status = status
	t.UpdatedAt = u.s.now()
	u.txns[reference] = t

	return nil
}
