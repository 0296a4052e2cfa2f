// Package ledgertest holds the behavioral suite every ledger.Store
// implementation must pass.
package ledgertest

import (
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/fastprodman/billwallet/internal/models"
	"github.com/fastprodman/billwallet/internal/repos/ledger"
	"github.com/google/uuid"
)

// Fixture is a fresh, empty store plus a way to put wallets into it.
type Fixture struct {
	Store ledger.Store
	Seed  func(t *testing.T, ownerID string, balance, limit int64)
}

func reserve(owner, ref string, amount int64) func(ledger.Tx) error {
	return func(tx ledger.Tx) error {
		w, err := tx.LockWallet(owner)
		if err != nil {
			return err
		}

		if w.Balance < amount {
			return ledger.ErrInsufficientFunds
		}

		err = tx.DebitWallet(owner, amount)
		if err != nil {
			return err
		}

		_, err = tx.InsertTransaction(models.Transaction{
			Reference: ref,
			OwnerID:   owner,
			Amount:    amount,
			Direction: models.Debit,
			Status:    models.StatusPending,
			Provider:  "test",
			Metadata:  map[string]any{"phone": "08030000000"},
		})

		return err
	}
}

func balance(t *testing.T, s ledger.Store, owner string) int64 {
	t.Helper()

	w, err := s.Wallet(t.Context(), owner)
	if err != nil {
		t.Fatalf("wallet: %v", err)
	}

	return w.Balance
}

//nolint:gocognit
func Run(t *testing.T, newFixture func(t *testing.T) Fixture) {
	t.Run("reserve_debits_and_records_pending", func(t *testing.T) {
		t.Parallel()

		f := newFixture(t)
		owner := uuid.NewString()
		f.Seed(t, owner, 10_000, 1_000_000)

		err := f.Store.InTx(t.Context(), reserve(owner, "ref-1", 2_500))
		if err != nil {
			t.Fatalf("reserve: %v", err)
		}

		if got := balance(t, f.Store, owner); got != 7_500 {
			t.Fatalf("balance = %d, want 7500", got)
		}

		txn, err := f.Store.Transaction(t.Context(), "ref-1")
		if err != nil {
			t.Fatalf("get transaction: %v", err)
		}
		if txn.Status != models.StatusPending || txn.Direction != models.Debit || txn.Amount != 2_500 {
			t.Fatalf("unexpected transaction: %+v", txn)
		}
		if txn.Metadata["phone"] != "08030000000" {
			t.Fatalf("metadata not stored: %+v", txn.Metadata)
		}

		err = f.Store.InTx(t.Context(), func(tx ledger.Tx) error {
			total, err := tx.PendingDebitTotal(owner)
			if err != nil {
				return err
			}
			if total != 2_500 {
				return fmt.Errorf("pending total = %d, want 2500", total)
			}
			return nil
		})
		if err != nil {
			t.Fatal(err)
		}
	})

	t.Run("duplicate_reference_rolls_back_debit", func(t *testing.T) {
		t.Parallel()

		f := newFixture(t)
		owner := uuid.NewString()
		f.Seed(t, owner, 10_000, 1_000_000)

		err := f.Store.InTx(t.Context(), reserve(owner, "dup", 1_000))
		if err != nil {
			t.Fatalf("first reserve: %v", err)
		}

		err = f.Store.InTx(t.Context(), reserve(owner, "dup", 1_000))
		if !errors.Is(err, ledger.ErrDuplicateReference) {
			t.Fatalf("expected ErrDuplicateReference, got %v", err)
		}

		if got := balance(t, f.Store, owner); got != 9_000 {
			t.Fatalf("balance = %d, want 9000 (second debit must roll back)", got)
		}
	})

	t.Run("guarded_debit_rejects_overdraft", func(t *testing.T) {
		t.Parallel()

		f := newFixture(t)
		owner := uuid.NewString()
		f.Seed(t, owner, 500, 1_000_000)

		err := f.Store.InTx(t.Context(), func(tx ledger.Tx) error {
			return tx.DebitWallet(owner, 501)
		})
		if !errors.Is(err, ledger.ErrInsufficientFunds) {
			t.Fatalf("expected ErrInsufficientFunds, got %v", err)
		}

		if got := balance(t, f.Store, owner); got != 500 {
			t.Fatalf("balance = %d, want 500", got)
		}
	})

	t.Run("missing_wallet", func(t *testing.T) {
		t.Parallel()

		f := newFixture(t)

		err := f.Store.InTx(t.Context(), func(tx ledger.Tx) error {
			_, err := tx.LockWallet(uuid.NewString())
			return err
		})
		if !errors.Is(err, ledger.ErrWalletNotFound) {
			t.Fatalf("expected ErrWalletNotFound, got %v", err)
		}

		_, err = f.Store.Wallet(t.Context(), uuid.NewString())
		if !errors.Is(err, ledger.ErrWalletNotFound) {
			t.Fatalf("expected ErrWalletNotFound, got %v", err)
		}
	})

	t.Run("update_only_moves_pending", func(t *testing.T) {
		t.Parallel()

		f := newFixture(t)
		owner := uuid.NewString()
		f.Seed(t, owner, 10_000, 1_000_000)

		err := f.Store.InTx(t.Context(), reserve(owner, "upd", 1_000))
		if err != nil {
			t.Fatalf("reserve: %v", err)
		}

		err = f.Store.InTx(t.Context(), func(tx ledger.Tx) error {
			return tx.UpdateTransaction("upd", models.StatusCompleted, map[string]any{"token": "1234"})
		})
		if err != nil {
			t.Fatalf("complete: %v", err)
		}

		err = f.Store.InTx(t.Context(), func(tx ledger.Tx) error {
			return tx.UpdateTransaction("upd", models.StatusFailed, nil)
		})
		if !errors.Is(err, ledger.ErrTransactionNotFound) {
			t.Fatalf("expected terminal entry to be untouched, got %v", err)
		}

		txn, err := f.Store.Transaction(t.Context(), "upd")
		if err != nil {
			t.Fatalf("get: %v", err)
		}
		if txn.Status != models.StatusCompleted {
			t.Fatalf("status = %s", txn.Status)
		}
		if txn.Metadata["token"] != "1234" || txn.Metadata["phone"] != "08030000000" {
			t.Fatalf("metadata not merged: %+v", txn.Metadata)
		}
	})

	t.Run("listing", func(t *testing.T) {
		t.Parallel()

		f := newFixture(t)
		owner := uuid.NewString()
		other := uuid.NewString()
		f.Seed(t, owner, 10_000, 1_000_000)
		f.Seed(t, other, 10_000, 1_000_000)

		for i, ref := range []string{"l-1", "l-2", "l-3"} {
			err := f.Store.InTx(t.Context(), reserve(owner, ref, int64(100*(i+1))))
			if err != nil {
				t.Fatalf("reserve %s: %v", ref, err)
			}
		}

		err := f.Store.InTx(t.Context(), reserve(other, "o-1", 100))
		if err != nil {
			t.Fatalf("reserve other: %v", err)
		}

		err = f.Store.InTx(t.Context(), func(tx ledger.Tx) error {
			return tx.UpdateTransaction("l-2", models.StatusCompleted, nil)
		})
		if err != nil {
			t.Fatalf("complete: %v", err)
		}

		list, err := f.Store.Transactions(t.Context(), owner, 10, 0)
		if err != nil {
			t.Fatalf("list: %v", err)
		}
		if len(list) != 3 {
			t.Fatalf("got %d transactions, want 3", len(list))
		}

		paged, err := f.Store.Transactions(t.Context(), owner, 2, 2)
		if err != nil {
			t.Fatalf("list page: %v", err)
		}
		if len(paged) != 1 {
			t.Fatalf("got %d transactions on page 2, want 1", len(paged))
		}

		pending, err := f.Store.PendingBefore(t.Context(), time.Now().Add(time.Hour), 10)
		if err != nil {
			t.Fatalf("pending: %v", err)
		}
		if len(pending) != 3 {
			t.Fatalf("got %d pending, want 3", len(pending))
		}
		for _, p := range pending {
			if p.Reference == "l-2" {
				t.Fatal("completed entry listed as pending")
			}
		}

		none, err := f.Store.PendingBefore(t.Context(), time.Now().Add(-time.Hour), 10)
		if err != nil {
			t.Fatalf("pending before: %v", err)
		}
		if len(none) != 0 {
			t.Fatalf("got %d pending older than an hour, want 0", len(none))
		}
	})

	t.Run("wallet_lifecycle", func(t *testing.T) {
		t.Parallel()

		f := newFixture(t)
		owner := uuid.NewString()

		for range 2 {
			err := f.Store.CreateWallet(t.Context(), owner, 5_000)
			if err != nil {
				t.Fatalf("create: %v", err)
			}
		}

		w, err := f.Store.Wallet(t.Context(), owner)
		if err != nil {
			t.Fatalf("wallet: %v", err)
		}
		if w.Balance != 0 || w.Limit != 5_000 || w.HasPIN() {
			t.Fatalf("unexpected wallet: %+v", w)
		}

		err = f.Store.SetPINHash(t.Context(), owner, "hash")
		if err != nil {
			t.Fatalf("set pin: %v", err)
		}

		w, err = f.Store.Wallet(t.Context(), owner)
		if err != nil {
			t.Fatalf("wallet: %v", err)
		}
		if w.PINHash != "hash" {
			t.Fatalf("pin hash = %q", w.PINHash)
		}

		err = f.Store.SetPINHash(t.Context(), uuid.NewString(), "hash")
		if !errors.Is(err, ledger.ErrWalletNotFound) {
			t.Fatalf("expected ErrWalletNotFound, got %v", err)
		}
	})

	// Concurrent reservations on one wallet: at most balance/amount succeed
	// and the balance never goes negative.
	t.Run("no_double_spend", func(t *testing.T) {
		t.Parallel()

		f := newFixture(t)
		owner := uuid.NewString()
		f.Seed(t, owner, 1_000, 1_000_000)

		const (
			workers = 10
			amount  = 300
		)

		var (
			wg       sync.WaitGroup
			mu       sync.Mutex
			ok, fail int
			other    []error
		)

		for i := range workers {
			wg.Add(1)

			go func(i int) {
				defer wg.Done()

				err := f.Store.InTx(t.Context(), reserve(owner, fmt.Sprintf("race-%d", i), amount))

				mu.Lock()
				defer mu.Unlock()

				switch {
				case err == nil:
					ok++
				case errors.Is(err, ledger.ErrInsufficientFunds):
					fail++
				default:
					other = append(other, err)
				}
			}(i)
		}

		wg.Wait()

		if len(other) > 0 {
			t.Fatalf("unexpected errors: %v", other)
		}
		if ok != 1_000/amount || fail != workers-ok {
			t.Fatalf("ok=%d fail=%d, want ok=%d", ok, fail, 1_000/amount)
		}
		if got := balance(t, f.Store, owner); got != 1_000-int64(ok)*amount {
			t.Fatalf("balance = %d, want %d", got, 1_000-int64(ok)*amount)
		}
	})
}
