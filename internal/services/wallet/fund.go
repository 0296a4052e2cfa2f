package wallet

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/fastprodman/billwallet/internal/models"
	"github.com/fastprodman/billwallet/internal/repos/ledger"
)

// Fund credits a wallet after an external payment was verified. Funding is
// rejected when the balance plus outstanding reservations plus amount would
// exceed the limit, so refunding those reservations later can never push the
// balance over it.
func (s *Service) Fund(ctx context.Context, req FundRequest) (models.Transaction, error) {
	if req.Amount <= 0 {
		return models.Transaction{}, fmt.Errorf("fund: %w", ErrInvalidAmount)
	}

	ref := req.Reference
	if ref == "" {
		ref = s.refs.Generate()
	} else if !validReference(ref) {
		return models.Transaction{}, fmt.Errorf("fund: %w", ErrInvalidReference)
	}

	var out models.Transaction

	err := s.store.InTx(ctx, func(tx ledger.Tx) error {
		w, err := tx.LockWallet(req.OwnerID)
		if err != nil {
			return fmt.Errorf("lock wallet: %w", err)
		}

		err = checkLimit(tx, w, req.Amount)
		if err != nil {
			return err
		}

		err = tx.CreditWallet(req.OwnerID, req.Amount)
		if err != nil {
			return fmt.Errorf("credit wallet: %w", err)
		}

		out, err = tx.InsertTransaction(models.Transaction{
			Reference:   ref,
			OwnerID:     req.OwnerID,
			Amount:      req.Amount,
			Direction:   models.Credit,
			Description: req.Description,
			Status:      models.StatusCompleted,
			Metadata:    map[string]any{"source": req.Source},
		})
		if err != nil {
			return fmt.Errorf("insert transaction: %w", err)
		}

		return nil
	})
	if err != nil {
		return models.Transaction{}, fmt.Errorf("fund: %w", err)
	}

	s.invalidate(ctx, req.OwnerID)

	slog.InfoContext(ctx, "wallet funded", "reference", ref, "owner_id", req.OwnerID, "amount", req.Amount)

	return out, nil
}

// checkLimit must run on a locked wallet.
func checkLimit(tx ledger.Tx, w models.Wallet, amount int64) error {
	pending, err := tx.PendingDebitTotal(w.OwnerID)
	if err != nil {
		return fmt.Errorf("pending debit total: %w", err)
	}

	// Compare against the headroom; the sum of amount and balance can overflow.
	if amount > w.Limit-w.Balance-pending {
		return fmt.Errorf("credit %d on balance %d (+%d pending) over limit %d: %w",
			amount, w.Balance, pending, w.Limit, ErrLimitExceeded)
	}

	return nil
}
