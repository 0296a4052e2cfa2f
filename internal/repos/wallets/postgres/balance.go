package wallets

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/fastprodman/billwallet/internal/models"
	"github.com/fastprodman/billwallet/internal/repos/wallets"
)

// LockAndGet reads the wallet row and holds its lock until tx ends.
func (r *walletsRepo) LockAndGet(ctx context.Context, tx *sql.Tx, ownerID string) (models.Wallet, error) {
	w, err := scanWallet(tx.QueryRowContext(ctx, `
		SELECT `+walletColumns+`
		FROM wallets
		WHERE owner_id = $1
		FOR UPDATE
	`, ownerID))
	if err != nil {
		return models.Wallet{}, fmt.Errorf("lock/get wallet: %w", err)
	}

	return w, nil
}

func (r *walletsRepo) IncreaseBalance(ctx context.Context, tx *sql.Tx, ownerID string, amount int64) error {
	res, err := tx.ExecContext(ctx, `
		UPDATE wallets
		SET balance = balance + $2, updated_at = now()
		WHERE owner_id = $1
	`, ownerID, amount)
	if err != nil {
		return fmt.Errorf("increase balance: %w", err)
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

func (r *walletsRepo) DecreaseBalance(ctx context.Context, tx *sql.Tx, ownerID string, amount int64) error {
	res, err := tx.ExecContext(ctx, `
		UPDATE wallets
		SET balance = balance - $2, updated_at = now()
		WHERE owner_id = $1
		  AND balance >= $2
	`, ownerID, amount)
	if err != nil {
		return fmt.Errorf("decrease balance: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}

	if affected == 0 {
		return wallets.ErrInsufficientFunds
	}

	return nil
}
