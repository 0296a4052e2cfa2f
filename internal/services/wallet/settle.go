package wallet

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"

	"github.com/fastprodman/billwallet/internal/gateway"
	"github.com/fastprodman/billwallet/internal/models"
	"github.com/fastprodman/billwallet/internal/notify"
	"github.com/fastprodman/billwallet/internal/repos/ledger"
)

// Settle applies a provider outcome to a reservation. Success completes the
// entry, failure refunds the amount and marks it failed in the same unit of
// work, and pending changes nothing. Settling an entry that is already
// terminal is a no-op that reports the stored state.
//
// Store errors while applying a definitive outcome are retried with
// exponential backoff. When retries run out the error wraps
// ErrSettlementInconsistent and an operator alert is emitted.
func (s *Service) Settle(ctx context.Context, r Reservation, out gateway.Outcome) (FinalState, error) {
	return s.settle(ctx, r.Reference, out, models.StatusFailed, "")
}

// ForceResolve settles a pending entry without a fresh provider answer. A
// forced failure is recorded as refunded.
func (s *Service) ForceResolve(ctx context.Context, ref string, class gateway.Class, reason string) (FinalState, error) {
	if class != gateway.Success && class != gateway.Failed {
		return FinalState{}, fmt.Errorf("force resolve: %w", ErrInvalidOutcome)
	}

	out := gateway.Outcome{Class: class, Description: reason}

	fs, err := s.settle(ctx, ref, out, models.StatusRefunded, reason)
	if err != nil {
		return fs, fmt.Errorf("force resolve: %w", err)
	}

	slog.InfoContext(ctx, "transaction force resolved",
		"reference", ref, "status", fs.Status, "applied", fs.Applied, "reason", reason)

	return fs, nil
}

func (s *Service) settle(
	ctx context.Context,
	ref string,
	out gateway.Outcome,
	failStatus models.Status,
	reason string,
) (FinalState, error) {
	if !out.Definitive() {
		t, err := s.store.Transaction(ctx, ref)
		if err != nil {
			return FinalState{Reference: ref, Status: models.StatusPending}, fmt.Errorf("settle: %w", err)
		}

		s.metrics.Settlement(string(gateway.Pending), string(t.Status))

		return stateOf(t), nil
	}

	retry := s.cfg.Settlement
	delay := retry.RetryInitial

	var lastErr error

	for attempt := 1; attempt <= retry.RetryAttempts; attempt++ {
		fs, err := s.apply(ctx, ref, out, failStatus, reason)
		if err == nil {
			s.afterApply(ctx, fs, out)
			return fs, nil
		}

		if errors.Is(err, ErrTransactionNotFound) {
			return FinalState{Reference: ref}, fmt.Errorf("settle: %w", err)
		}

		lastErr = err

		slog.WarnContext(ctx, "settlement attempt failed",
			"reference", ref, "attempt", attempt, "outcome", out.Class, "error", err)

		if attempt == retry.RetryAttempts {
			break
		}

		serr := s.sleep(ctx, delay)
		if serr != nil {
			lastErr = errors.Join(lastErr, serr)
			break
		}

		delay = min(delay*2, retry.RetryMax)
	}

	serr := &SettlementError{Reference: ref, Outcome: out.Class, Err: lastErr}

	slog.ErrorContext(ctx, "settlement inconsistent",
		"reference", ref, "outcome", out.Class, "error", lastErr)
	s.metrics.SettlementInconsistent()
	s.alert(ctx, notify.Notification{
		Reference: ref,
		Status:    models.StatusPending,
		Message:   serr.Error(),
	})

	return FinalState{Reference: ref, Status: models.StatusPending}, serr
}

// apply runs one settlement unit of work.
func (s *Service) apply(
	ctx context.Context,
	ref string,
	out gateway.Outcome,
	failStatus models.Status,
	reason string,
) (FinalState, error) {
	var fs FinalState

	err := s.store.InTx(ctx, func(tx ledger.Tx) error {
		t, err := tx.LockTransaction(ref)
		if err != nil {
			return fmt.Errorf("lock transaction: %w", err)
		}

		fs = stateOf(t)

		if t.Status.Terminal() {
			return nil
		}

		if t.Direction != models.Debit {
			return fmt.Errorf("transaction %s is not a reservation", ref)
		}

		meta := settlementMetadata(out, reason)

		switch out.Class {
		case gateway.Success:
			err = tx.UpdateTransaction(ref, models.StatusCompleted, meta)
			if err != nil {
				return fmt.Errorf("complete transaction: %w", err)
			}

			fs.Status = models.StatusCompleted

		case gateway.Failed:
			_, err = tx.LockWallet(t.OwnerID)
			if err != nil {
				return fmt.Errorf("lock wallet: %w", err)
			}

			err = tx.CreditWallet(t.OwnerID, t.Amount)
			if err != nil {
				return fmt.Errorf("refund: %w", err)
			}

			err = tx.UpdateTransaction(ref, failStatus, meta)
			if err != nil {
				return fmt.Errorf("fail transaction: %w", err)
			}

			fs.Status = failStatus
			fs.Refunded = true

		default:
			return fmt.Errorf("invalid outcome class %q", out.Class)
		}

		fs.Applied = true

		return nil
	})
	if err != nil {
		return FinalState{}, err
	}

	return fs, nil
}

func (s *Service) afterApply(ctx context.Context, fs FinalState, out gateway.Outcome) {
	s.metrics.Settlement(string(out.Class), string(fs.Status))

	if !fs.Applied {
		slog.InfoContext(ctx, "settlement skipped, already terminal", "reference", fs.Reference, "status", fs.Status)
		return
	}

	if fs.Refunded {
		s.invalidate(ctx, fs.OwnerID)
	}

	slog.InfoContext(ctx, "transaction settled",
		"reference", fs.Reference, "status", fs.Status, "refunded", fs.Refunded)

	s.emit(ctx, notify.Notification{
		Kind:      notify.KindSettlement,
		Reference: fs.Reference,
		OwnerID:   fs.OwnerID,
		Status:    fs.Status,
		Message:   notify.MessageFor(fs.Status, fs.Refunded),
		Amount:    fs.Amount,
	})
}

func settlementMetadata(out gateway.Outcome, reason string) map[string]any {
	meta := make(map[string]any, len(out.Payload)+3)
	maps.Copy(meta, out.Payload)

	if out.Code != "" {
		meta["provider_code"] = out.Code
	}
	if out.Description != "" {
		meta["provider_description"] = out.Description
	}
	if reason != "" {
		meta["resolution_reason"] = reason
	}

	return meta
}
