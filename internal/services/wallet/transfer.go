package wallet

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/fastprodman/billwallet/internal/models"
	"github.com/fastprodman/billwallet/internal/repos/ledger"
)

// creditSuffix marks the recipient's half of a transfer.
const creditSuffix = "-cr"

// Transfer moves funds between two wallets in one unit of work. Both rows
// are locked in owner id order so opposing transfers cannot deadlock.
func (s *Service) Transfer(ctx context.Context, req TransferRequest) (TransferResult, error) {
	if req.Amount <= 0 {
		return TransferResult{}, fmt.Errorf("transfer: %w", ErrInvalidAmount)
	}

	if req.FromOwnerID == req.ToOwnerID {
		return TransferResult{}, fmt.Errorf("transfer: %w", ErrSameWallet)
	}

	ref := req.Reference
	if ref == "" {
		ref = s.refs.Generate()
	} else if !validReference(ref) {
		return TransferResult{}, fmt.Errorf("transfer: %w", ErrInvalidReference)
	}

	err := s.VerifyPIN(ctx, req.FromOwnerID, req.PIN)
	if err != nil {
		return TransferResult{}, fmt.Errorf("transfer: %w", err)
	}

	var res TransferResult

	err = s.store.InTx(ctx, func(tx ledger.Tx) error {
		locked := make(map[string]models.Wallet, 2)

		first, second := req.FromOwnerID, req.ToOwnerID
		if second < first {
			first, second = second, first
		}

		for _, id := range []string{first, second} {
			w, err := tx.LockWallet(id)
			if err != nil {
				return fmt.Errorf("lock wallet %s: %w", id, err)
			}

			locked[id] = w
		}

		from, to := locked[req.FromOwnerID], locked[req.ToOwnerID]

		if from.Balance < req.Amount {
			return fmt.Errorf("pre-check debit: %w", ErrInsufficientFunds)
		}

		err := checkLimit(tx, to, req.Amount)
		if err != nil {
			return err
		}

		err = tx.DebitWallet(from.OwnerID, req.Amount)
		if err != nil {
			return fmt.Errorf("debit sender: %w", err)
		}

		err = tx.CreditWallet(to.OwnerID, req.Amount)
		if err != nil {
			return fmt.Errorf("credit recipient: %w", err)
		}

		res.Debit, err = tx.InsertTransaction(models.Transaction{
			Reference:   ref,
			OwnerID:     from.OwnerID,
			Amount:      req.Amount,
			Direction:   models.Debit,
			Description: req.Description,
			Status:      models.StatusCompleted,
			Metadata:    map[string]any{"counterparty": to.OwnerID, "kind": "transfer"},
		})
		if err != nil {
			return fmt.Errorf("insert debit: %w", err)
		}

		res.Credit, err = tx.InsertTransaction(models.Transaction{
			Reference:   ref + creditSuffix,
			OwnerID:     to.OwnerID,
			Amount:      req.Amount,
			Direction:   models.Credit,
			Description: req.Description,
			Status:      models.StatusCompleted,
			Metadata:    map[string]any{"counterparty": from.OwnerID, "kind": "transfer"},
		})
		if err != nil {
			return fmt.Errorf("insert credit: %w", err)
		}

		return nil
	})
	if err != nil {
		return TransferResult{}, fmt.Errorf("transfer: %w", err)
	}

	s.invalidate(ctx, req.FromOwnerID, req.ToOwnerID)

	slog.InfoContext(ctx, "transfer completed",
		"reference", ref, "from", req.FromOwnerID, "to", req.ToOwnerID, "amount", req.Amount)

	return res, nil
}
