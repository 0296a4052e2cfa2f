package wallets

import (
	"context"
	"database/sql"
	"errors"

	"github.com/fastprodman/billwallet/internal/models"
)

var (
	ErrWalletNotFound    = errors.New("wallet not found")
	ErrInsufficientFunds = errors.New("insufficient funds")
)

type Wallets interface {
	Create(ctx context.Context, ownerID string, limit int64) error
	Get(ctx context.Context, ownerID string) (models.Wallet, error)
	SetPINHash(ctx context.Context, ownerID, hash string) error
	LockAndGet(ctx context.Context, tx *sql.Tx, ownerID string) (models.Wallet, error)
	IncreaseBalance(ctx context.Context, tx *sql.Tx, ownerID string, amount int64) error
	DecreaseBalance(ctx context.Context, tx *sql.Tx, ownerID string, amount int64) error
}
