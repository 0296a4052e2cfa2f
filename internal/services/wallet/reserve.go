package wallet

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/fastprodman/billwallet/internal/models"
	"github.com/fastprodman/billwallet/internal/repos/ledger"
)

// Reserve debits the wallet and records a pending entry in one unit of work:
//
// 1) Lock the wallet row.
// 2) Check the balance against the locked value.
// 3) Guarded decrement.
// 4) Insert the pending debit (unique reference -> ErrDuplicateReference).
//
// Any failure rolls the whole unit back.
func (s *Service) Reserve(ctx context.Context, req ReserveRequest) (Reservation, error) {
	if req.Amount <= 0 {
		s.metrics.Reservation(resultLabel(ErrInvalidAmount))
		return Reservation{}, fmt.Errorf("reserve: %w", ErrInvalidAmount)
	}

	ref := req.Reference
	if ref == "" {
		ref = s.refs.Generate()
	} else if !validReference(ref) {
		return Reservation{}, fmt.Errorf("reserve: %w", ErrInvalidReference)
	}

	var res Reservation

	err := s.store.InTx(ctx, func(tx ledger.Tx) error {
		w, err := tx.LockWallet(req.OwnerID)
		if err != nil {
			return fmt.Errorf("lock wallet: %w", err)
		}

		if w.Balance < req.Amount {
			return fmt.Errorf("pre-check debit: %w", ErrInsufficientFunds)
		}

		err = tx.DebitWallet(req.OwnerID, req.Amount)
		if err != nil {
			return fmt.Errorf("debit wallet: %w", err)
		}

		t, err := tx.InsertTransaction(models.Transaction{
			Reference:   ref,
			OwnerID:     req.OwnerID,
			Amount:      req.Amount,
			Direction:   models.Debit,
			Description: req.Description,
			Status:      models.StatusPending,
			Provider:    req.Provider,
			Metadata:    req.Metadata,
		})
		if err != nil {
			return fmt.Errorf("insert transaction: %w", err)
		}

		res = Reservation{
			Reference:     t.Reference,
			OwnerID:       t.OwnerID,
			Amount:        t.Amount,
			BalanceBefore: w.Balance,
			Provider:      t.Provider,
			CreatedAt:     t.CreatedAt,
		}

		return nil
	})

	s.metrics.Reservation(resultLabel(err))

	if err != nil {
		return Reservation{}, fmt.Errorf("reserve: %w", err)
	}

	s.invalidate(ctx, req.OwnerID)

	slog.InfoContext(ctx, "funds reserved",
		"reference", res.Reference,
		"owner_id", res.OwnerID,
		"amount", res.Amount,
		"provider", res.Provider,
	)

	return res, nil
}
