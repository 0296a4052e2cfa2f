package transactions

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/fastprodman/billwallet/internal/models"
	"github.com/fastprodman/billwallet/internal/repos/transactions"
	"github.com/jackc/pgx/v5/pgconn"
)

var _ transactions.Transactions = (*transactionsRepo)(nil)

type transactionsRepo struct{ db *sql.DB }

func New(db *sql.DB) *transactionsRepo {
	return &transactionsRepo{db: db}
}

const transactionColumns = `reference, owner_id, amount, direction, description, status,
	provider, metadata, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTransaction(row rowScanner) (models.Transaction, error) {
	var (
		t        models.Transaction
		meta     []byte
		dir, sts string
	)

	err := row.Scan(&t.Reference, &t.OwnerID, &t.Amount, &dir, &t.Description, &sts,
		&t.Provider, &meta, &t.CreatedAt, &t.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return models.Transaction{}, transactions.ErrTransactionNotFound
		}

		return models.Transaction{}, err
	}

	t.Direction = models.Direction(dir)
	t.Status = models.Status(sts)

	if len(meta) > 0 {
		err = json.Unmarshal(meta, &t.Metadata)
		if err != nil {
			return models.Transaction{}, fmt.Errorf("decode metadata: %w", err)
		}
	}

	return t, nil
}

func encodeMetadata(m map[string]any) (string, error) {
	if m == nil {
		return "{}", nil
	}

	b, err := json.Marshal(m)
	if err != nil {
		return "", fmt.Errorf("encode metadata: %w", err)
	}

	return string(b), nil
}

// Insert writes a new ledger entry. The reference is the primary key, so a
// replayed reference fails with ErrDuplicateReference.
func (r *transactionsRepo) Insert(ctx context.Context, tx *sql.Tx, t models.Transaction) (models.Transaction, error) {
	meta, err := encodeMetadata(t.Metadata)
	if err != nil {
		return models.Transaction{}, err
	}

	out, err := scanTransaction(tx.QueryRowContext(ctx, `
		INSERT INTO transactions (reference, owner_id, amount, direction, description, status, provider, metadata)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8::jsonb)
		RETURNING `+transactionColumns,
		t.Reference, t.OwnerID, t.Amount, string(t.Direction), t.Description, string(t.Status), t.Provider, meta))
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) {
			if pgErr.Code == "23505" { // unique_violation
				return models.Transaction{}, transactions.ErrDuplicateReference
			}
		}

		return models.Transaction{}, fmt.Errorf("insert transaction: %w", err)
	}

	return out, nil
}

func (r *transactionsRepo) LockByReference(ctx context.Context, tx *sql.Tx, reference string) (models.Transaction, error) {
	t, err := scanTransaction(tx.QueryRowContext(ctx, `
		SELECT `+transactionColumns+`
		FROM transactions
		WHERE reference = $1
		FOR UPDATE
	`, reference))
	if err != nil {
		return models.Transaction{}, fmt.Errorf("lock transaction: %w", err)
	}

	return t, nil
}

// UpdateStatus moves a pending entry to status and merges metadata into the
// stored document. Entries that are no longer pending are not touched.
func (r *transactionsRepo) UpdateStatus(
	ctx context.Context,
	tx *sql.Tx,
	reference string,
	status models.Status,
	metadata map[string]any,
) error {
	meta, err := encodeMetadata(metadata)
	if err != nil {
		return err
	}

	res, err := tx.ExecContext(ctx, `
		UPDATE transactions
		SET status = $2,
		    metadata = metadata || $3::jsonb,
		    updated_at = now()
		WHERE reference = $1
		  AND status = 'pending'
	`, reference, string(status), meta)
	if err != nil {
		return fmt.Errorf("update transaction status: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}

	if affected == 0 {
		return transactions.ErrTransactionNotFound
	}

	return nil
}

func (r *transactionsRepo) PendingDebitTotal(ctx context.Context, tx *sql.Tx, ownerID string) (int64, error) {
	var total int64

	err := tx.QueryRowContext(ctx, `
		SELECT COALESCE(SUM(amount), 0)
		FROM transactions
		WHERE owner_id = $1
		  AND direction = 'debit'
		  AND status = 'pending'
	`, ownerID).Scan(&total)
	if err != nil {
		return 0, fmt.Errorf("pending debit total: %w", err)
	}

	return total, nil
}

func (r *transactionsRepo) Get(ctx context.Context, reference string) (models.Transaction, error) {
	t, err := scanTransaction(r.db.QueryRowContext(ctx, `
		SELECT `+transactionColumns+`
		FROM transactions
		WHERE reference = $1
	`, reference))
	if err != nil {
		return models.Transaction{}, fmt.Errorf("get transaction: %w", err)
	}

	return t, nil
}

func (r *transactionsRepo) ListByOwner(ctx context.Context, ownerID string, limit, offset int) ([]models.Transaction, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+transactionColumns+`
		FROM transactions
		WHERE owner_id = $1
		ORDER BY created_at DESC, reference DESC
		LIMIT NULLIF($2::int, 0) OFFSET $3
	`, ownerID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list transactions: %w", err)
	}

	return collect(rows)
}

// ListPendingBefore returns the oldest pending entries created before the
// cutoff, oldest first. A zero limit returns all of them.
func (r *transactionsRepo) ListPendingBefore(ctx context.Context, before time.Time, limit int) ([]models.Transaction, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+transactionColumns+`
		FROM transactions
		WHERE status = 'pending'
		  AND created_at < $1
		ORDER BY created_at ASC
		LIMIT NULLIF($2::int, 0)
	`, before, limit)
	if err != nil {
		return nil, fmt.Errorf("list pending transactions: %w", err)
	}

	return collect(rows)
}

func collect(rows *sql.Rows) ([]models.Transaction, error) {
	defer rows.Close()

	var out []models.Transaction

	for rows.Next() {
		t, err := scanTransaction(rows)
		if err != nil {
			return nil, fmt.Errorf("scan transaction: %w", err)
		}

		out = append(out, t)
	}

	err := rows.Err()
	if err != nil {
		return nil, fmt.Errorf("iterate transactions: %w", err)
	}

	return out, nil
}
