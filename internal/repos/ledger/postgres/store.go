package ledger

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/fastprodman/billwallet/internal/infra/pgutils"
	"github.com/fastprodman/billwallet/internal/models"
	"github.com/fastprodman/billwallet/internal/repos/ledger"
	"github.com/fastprodman/billwallet/internal/repos/transactions"
	pgtransactions "github.com/fastprodman/billwallet/internal/repos/transactions/postgres"
	"github.com/fastprodman/billwallet/internal/repos/wallets"
	pgwallets "github.com/fastprodman/billwallet/internal/repos/wallets/postgres"
)

var (
	_ ledger.Store = (*Store)(nil)
	_ ledger.Tx    = (*unitOfWork)(nil)
)

type Store struct {
	db      *sql.DB
	wallets wallets.Wallets
	txns    transactions.Transactions
}

func New(db *sql.DB) *Store {
	return &Store{
		db:      db,
		wallets: pgwallets.New(db),
		txns:    pgtransactions.New(db),
	}
}

func (s *Store) InTx(ctx context.Context, fn func(ledger.Tx) error) error {
	return pgutils.WithTx(ctx, s.db, func(tx *sql.Tx) error {
		return fn(&unitOfWork{ctx: ctx, tx: tx, wallets: s.wallets, txns: s.txns})
	})
}

func (s *Store) CreateWallet(ctx context.Context, ownerID string, limit int64) error {
	return s.wallets.Create(ctx, ownerID, limit)
}

func (s *Store) Wallet(ctx context.Context, ownerID string) (models.Wallet, error) {
	return s.wallets.Get(ctx, ownerID)
}

func (s *Store) SetPINHash(ctx context.Context, ownerID, hash string) error {
	return s.wallets.SetPINHash(ctx, ownerID, hash)
}

func (s *Store) Transaction(ctx context.Context, reference string) (models.Transaction, error) {
	return s.txns.Get(ctx, reference)
}

func (s *Store) Transactions(ctx context.Context, ownerID string, limit, offset int) ([]models.Transaction, error) {
	return s.txns.ListByOwner(ctx, ownerID, limit, offset)
}

func (s *Store) PendingBefore(ctx context.Context, before time.Time, limit int) ([]models.Transaction, error) {
	return s.txns.ListPendingBefore(ctx, before, limit)
}

// unitOfWork binds the repos to one *sql.Tx and the context it was opened with.
type unitOfWork struct {
	ctx     context.Context
	tx      *sql.Tx
	wallets wallets.Wallets
	txns    transactions.Transactions
}

func (u *unitOfWork) LockWallet(ownerID string) (models.Wallet, error) {
	return u.wallets.LockAndGet(u.ctx, u.tx, ownerID)
}

func (u *unitOfWork) DebitWallet(ownerID string, amount int64) error {
	return u.wallets.DecreaseBalance(u.ctx, u.tx, ownerID, amount)
}

func (u *unitOfWork) CreditWallet(ownerID string, amount int64) error {
	return u.wallets.IncreaseBalance(u.ctx, u.tx, ownerID, amount)
}

func (u *unitOfWork) PendingDebitTotal(ownerID string) (int64, error) {
	return u.txns.PendingDebitTotal(u.ctx, u.tx, ownerID)
}

func (u *unitOfWork) InsertTransaction(t models.Transaction) (models.Transaction, error) {
	return u.txns.Insert(u.ctx, u.tx, t)
}

func (u *unitOfWork) LockTransaction(reference string) (models.Transaction, error) {
	return u.txns.LockByReference(u.ctx, u.tx, reference)
}

func (u *unitOfWork) UpdateTransaction(reference string, status models.Status, metadata map[string]any) error {
	err := u.txns.UpdateStatus(u.ctx, u.tx, reference, status, metadata)
	if err != nil {
		return fmt.Errorf("update %s: %w", reference, err)
	}

	return nil
}
