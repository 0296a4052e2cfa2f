package wallets

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/fastprodman/billwallet/internal/models"
	"github.com/fastprodman/billwallet/internal/repos/wallets"
)

var _ wallets.Wallets = (*walletsRepo)(nil)

type walletsRepo struct{ db *sql.DB }

func New(db *sql.DB) *walletsRepo {
	return &walletsRepo{db: db}
}

const walletColumns = `owner_id, balance, balance_limit, COALESCE(pin_hash, ''), created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanWallet(row rowScanner) (models.Wallet, error) {
	var w models.Wallet

	err := row.Scan(&w.OwnerID, &w.Balance, &w.Limit, &w.PINHash, &w.CreatedAt, &w.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return models.Wallet{}, wallets.ErrWalletNotFound
		}

		return models.Wallet{}, err
	}

	return w, nil
}

// Create inserts a zero-balance wallet. An existing wallet is left untouched.
func (r *walletsRepo) Create(ctx context.Context, ownerID string, limit int64) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO wallets (owner_id, balance, balance_limit)
		VALUES ($1, 0, $2)
		ON CONFLICT (owner_id) DO NOTHING
	`, ownerID, limit)
	if err != nil {
		return fmt.Errorf("create wallet: %w", err)
	}

	return nil
}

func (r *walletsRepo) Get(ctx context.Context, ownerID string) (models.Wallet, error) {
	w, err := scanWallet(r.db.QueryRowContext(ctx, `
		SELECT `+walletColumns+`
		FROM wallets
		WHERE owner_id = $1
	`, ownerID))
	if err != nil {
		return models.Wallet{}, fmt.Errorf("get wallet: %w", err)
	}

	return w, nil
}

func (r *walletsRepo) SetPINHash(ctx context.Context, ownerID, hash string) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE wallets
		SET pin_hash = $2, updated_at = now()
		WHERE owner_id = $1
	`, ownerID, hash)
	if err != nil {
		return fmt.Errorf("set pin hash: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}

	if affected == 0 {
		return wallets.ErrWalletNotFound
	}

	return nil
}
