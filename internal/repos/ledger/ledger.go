// Package ledger is the storage boundary for wallets and their transactions.
// Every balance mutation happens inside a unit of work (Store.InTx) so the
// wallet row and its ledger entries commit or roll back together.
package ledger

import (
	"context"
	"time"

	"github.com/fastprodman/billwallet/internal/models"
	"github.com/fastprodman/billwallet/internal/repos/transactions"
	"github.com/fastprodman/billwallet/internal/repos/wallets"
)

var (
	ErrWalletNotFound      = wallets.ErrWalletNotFound
	ErrInsufficientFunds   = wallets.ErrInsufficientFunds
	ErrDuplicateReference  = transactions.ErrDuplicateReference
	ErrTransactionNotFound = transactions.ErrTransactionNotFound
)

type Store interface {
	// InTx runs fn in one unit of work. It commits when fn returns nil and
	// rolls back otherwise.
	InTx(ctx context.Context, fn func(Tx) error) error

	CreateWallet(ctx context.Context, ownerID string, limit int64) error
	Wallet(ctx context.Context, ownerID string) (models.Wallet, error)
	SetPINHash(ctx context.Context, ownerID, hash string) error

	Transaction(ctx context.Context, reference string) (models.Transaction, error)
	Transactions(ctx context.Context, ownerID string, limit, offset int) ([]models.Transaction, error)
	PendingBefore(ctx context.Context, before time.Time, limit int) ([]models.Transaction, error)
}

// Tx is a unit of work. Lock methods hold the row until the unit ends.
type Tx interface {
	LockWallet(ownerID string) (models.Wallet, error)
	DebitWallet(ownerID string, amount int64) error
	CreditWallet(ownerID string, amount int64) error
	PendingDebitTotal(ownerID string) (int64, error)

	InsertTransaction(t models.Transaction) (models.Transaction, error)
	LockTransaction(reference string) (models.Transaction, error)
	UpdateTransaction(reference string, status models.Status, metadata map[string]any) error
}
