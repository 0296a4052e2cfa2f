package transactions

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/fastprodman/billwallet/internal/models"
)

var (
	ErrDuplicateReference  = errors.New("duplicate reference")
	ErrTransactionNotFound = errors.New("transaction not found")
)

type Transactions interface {
	Insert(ctx context.Context, tx *sql.Tx, t models.Transaction) (models.Transaction, error)
	LockByReference(ctx context.Context, tx *sql.Tx, reference string) (models.Transaction, error)
	UpdateStatus(ctx context.Context, tx *sql.Tx, reference string, status models.Status, metadata map[string]any) error
	PendingDebitTotal(ctx context.Context, tx *sql.Tx, ownerID string) (int64, error)

	Get(ctx context.Context, reference string) (models.Transaction, error)
	ListByOwner(ctx context.Context, ownerID string, limit, offset int) ([]models.Transaction, error)
	ListPendingBefore(ctx context.Context, before time.Time, limit int) ([]models.Transaction, error)
}
