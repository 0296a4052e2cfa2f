package wallet

import (
	"errors"
	"testing"

	"github.com/fastprodman/billwallet/internal/gateway"
	"github.com/fastprodman/billwallet/internal/models"
	"github.com/fastprodman/billwallet/internal/notify"
)

// Reserve 400 of 1000, provider declines, refund restores 1000. Settling the
// same outcome again must not refund twice.
func TestSettle_FailedRefundsOnce(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	owner := f.wallet(t, 1_000)

	res, err := f.svc.Reserve(t.Context(), ReserveRequest{
		OwnerID: owner, Amount: 400, Description: "Airtime", Reference: "ref-1",
	})
	if err != nil {
		t.Fatalf("reserve: %v", err)
	}

	if got := f.balance(t, owner); got != 600 {
		t.Fatalf("balance after reserve = %d, want 600", got)
	}
	if got := f.status(t, "ref-1"); got != models.StatusPending {
		t.Fatalf("status = %s, want pending", got)
	}

	fs, err := f.svc.Settle(t.Context(), res, failed)
	if err != nil {
		t.Fatalf("settle: %v", err)
	}
	if fs.Status != models.StatusFailed || !fs.Refunded || !fs.Applied {
		t.Fatalf("unexpected final state: %+v", fs)
	}
	if got := f.balance(t, owner); got != 1_000 {
		t.Fatalf("balance after refund = %d, want 1000", got)
	}

	again, err := f.svc.Settle(t.Context(), res, failed)
	if err != nil {
		t.Fatalf("second settle: %v", err)
	}
	if again.Applied || again.Status != models.StatusFailed || !again.Refunded {
		t.Fatalf("second settle must be a no-op reporting the stored state: %+v", again)
	}
	if got := f.balance(t, owner); got != 1_000 {
		t.Fatalf("balance after second settle = %d, want 1000", got)
	}

	f.assertConsistent(t, owner, 1_000)

	notes := f.notes.all()
	if len(notes) != 1 {
		t.Fatalf("got %d notifications, want 1", len(notes))
	}
	if notes[0].Message != notify.MsgRefunded || notes[0].Amount != 400 || notes[0].OwnerID != owner {
		t.Fatalf("unexpected notification: %+v", notes[0])
	}
}

// Reserve the whole 500, provider succeeds, balance stays 0.
func TestSettle_SuccessCompletes(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	owner := f.wallet(t, 500)

	res, err := f.svc.Reserve(t.Context(), ReserveRequest{
		OwnerID: owner, Amount: 500, Description: "Data", Reference: "ref-2",
	})
	if err != nil {
		t.Fatalf("reserve: %v", err)
	}

	out := success
	out.Payload = map[string]any{"purchased_code": "Token : 99"}

	fs, err := f.svc.Settle(t.Context(), res, out)
	if err != nil {
		t.Fatalf("settle: %v", err)
	}
	if fs.Status != models.StatusCompleted || fs.Refunded || !fs.Applied {
		t.Fatalf("unexpected final state: %+v", fs)
	}
	if got := f.balance(t, owner); got != 0 {
		t.Fatalf("balance = %d, want 0", got)
	}

	txn, err := f.mem.Transaction(t.Context(), "ref-2")
	if err != nil {
		t.Fatalf("transaction: %v", err)
	}
	if txn.Metadata["purchased_code"] != "Token : 99" || txn.Metadata["provider_code"] != "000" {
		t.Fatalf("provider payload not merged: %+v", txn.Metadata)
	}

	f.assertConsistent(t, owner, 500)
}

func TestSettle_PendingChangesNothing(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	owner := f.wallet(t, 1_000)

	res, err := f.svc.Reserve(t.Context(), ReserveRequest{OwnerID: owner, Amount: 250})
	if err != nil {
		t.Fatalf("reserve: %v", err)
	}

	fs, err := f.svc.Settle(t.Context(), res, pending)
	if err != nil {
		t.Fatalf("settle: %v", err)
	}
	if fs.Status != models.StatusPending || fs.Applied || fs.Refunded {
		t.Fatalf("unexpected final state: %+v", fs)
	}
	if got := f.balance(t, owner); got != 750 {
		t.Fatalf("balance = %d, want 750", got)
	}
	if len(f.notes.all()) != 0 {
		t.Fatal("pending settle must not notify")
	}
}

// A definitive outcome that arrives after another one was applied must not
// flip the entry.
func TestSettle_TerminalIsSticky(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		first      gateway.Outcome
		second     gateway.Outcome
		wantStatus models.Status
		wantBal    int64
	}{
		{name: "success_then_failed", first: success, second: failed, wantStatus: models.StatusCompleted, wantBal: 600},
		{name: "failed_then_success", first: failed, second: success, wantStatus: models.StatusFailed, wantBal: 1_000},
		{name: "success_twice", first: success, second: success, wantStatus: models.StatusCompleted, wantBal: 600},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			f := newFixture(t)
			owner := f.wallet(t, 1_000)

			res, err := f.svc.Reserve(t.Context(), ReserveRequest{OwnerID: owner, Amount: 400})
			if err != nil {
				t.Fatalf("reserve: %v", err)
			}

			_, err = f.svc.Settle(t.Context(), res, tt.first)
			if err != nil {
				t.Fatalf("first settle: %v", err)
			}

			fs, err := f.svc.Settle(t.Context(), res, tt.second)
			if err != nil {
				t.Fatalf("second settle: %v", err)
			}

			if fs.Applied || fs.Status != tt.wantStatus {
				t.Fatalf("unexpected final state: %+v", fs)
			}
			if got := f.balance(t, owner); got != tt.wantBal {
				t.Fatalf("balance = %d, want %d", got, tt.wantBal)
			}

			f.assertConsistent(t, owner, 1_000)
		})
	}
}

func TestSettle_RetriesTransientStoreErrors(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	owner := f.wallet(t, 1_000)

	res, err := f.svc.Reserve(t.Context(), ReserveRequest{OwnerID: owner, Amount: 400})
	if err != nil {
		t.Fatalf("reserve: %v", err)
	}

	f.store.failNext(2)

	fs, err := f.svc.Settle(t.Context(), res, failed)
	if err != nil {
		t.Fatalf("settle: %v", err)
	}
	if !fs.Applied || fs.Status != models.StatusFailed {
		t.Fatalf("unexpected final state: %+v", fs)
	}
	if got := f.balance(t, owner); got != 1_000 {
		t.Fatalf("balance = %d, want 1000", got)
	}

	if len(f.sleeps) != 2 || f.sleeps[0] != f.svc.cfg.Settlement.RetryInitial || f.sleeps[1] != 2*f.svc.cfg.Settlement.RetryInitial {
		t.Fatalf("unexpected backoff: %v", f.sleeps)
	}
	if len(f.alerts.all()) != 0 {
		t.Fatal("recovered settlement must not alert")
	}
}

func TestSettle_ExhaustedRetriesAreInconsistent(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	owner := f.wallet(t, 1_000)

	res, err := f.svc.Reserve(t.Context(), ReserveRequest{OwnerID: owner, Amount: 400})
	if err != nil {
		t.Fatalf("reserve: %v", err)
	}

	f.store.failNext(100)

	fs, err := f.svc.Settle(t.Context(), res, failed)
	if !errors.Is(err, ErrSettlementInconsistent) {
		t.Fatalf("expected ErrSettlementInconsistent, got %v", err)
	}
	if !errors.Is(err, errStoreDown) {
		t.Fatalf("last store error must be wrapped, got %v", err)
	}

	var serr *SettlementError
	if !errors.As(err, &serr) || serr.Reference != res.Reference || serr.Outcome != gateway.Failed {
		t.Fatalf("expected SettlementError for %s, got %v", res.Reference, err)
	}

	if fs.Status != models.StatusPending || fs.Applied {
		t.Fatalf("unexpected final state: %+v", fs)
	}

	// Backoff doubles and is capped.
	want := []int64{100, 200, 250}
	if len(f.sleeps) != len(want) {
		t.Fatalf("sleeps = %v", f.sleeps)
	}
	for i, ms := range want {
		if f.sleeps[i].Milliseconds() != ms {
			t.Fatalf("sleep %d = %v, want %dms", i, f.sleeps[i], ms)
		}
	}

	alerts := f.alerts.all()
	if len(alerts) != 1 || alerts[0].Kind != notify.KindAlert || alerts[0].Reference != res.Reference {
		t.Fatalf("expected one operator alert, got %+v", alerts)
	}

	// Nothing changed: the entry is still pending and the funds reserved.
	f.store.failNext(0)

	if got := f.status(t, res.Reference); got != models.StatusPending {
		t.Fatalf("status = %s, want pending", got)
	}
	if got := f.balance(t, owner); got != 600 {
		t.Fatalf("balance = %d, want 600", got)
	}
}

func TestSettle_UnknownReference(t *testing.T) {
	t.Parallel()

	f := newFixture(t)

	_, err := f.svc.Settle(t.Context(), Reservation{Reference: "nope"}, success)
	if !errors.Is(err, ErrTransactionNotFound) {
		t.Fatalf("expected ErrTransactionNotFound, got %v", err)
	}
	if len(f.alerts.all()) != 0 {
		t.Fatal("unknown reference must not alert")
	}
}

func TestForceResolve(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		class      gateway.Class
		wantErr    error
		wantStatus models.Status
		wantBal    int64
	}{
		{name: "failed_is_refunded", class: gateway.Failed, wantStatus: models.StatusRefunded, wantBal: 1_000},
		{name: "success_completes", class: gateway.Success, wantStatus: models.StatusCompleted, wantBal: 700},
		{name: "pending_rejected", class: gateway.Pending, wantErr: ErrInvalidOutcome, wantStatus: models.StatusPending, wantBal: 700},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			f := newFixture(t)
			owner := f.wallet(t, 1_000)

			res, err := f.svc.Reserve(t.Context(), ReserveRequest{OwnerID: owner, Amount: 300})
			if err != nil {
				t.Fatalf("reserve: %v", err)
			}

			_, err = f.svc.ForceResolve(t.Context(), res.Reference, tt.class, "operator confirmed")
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("unexpected error: got %v, want %v", err, tt.wantErr)
			}

			if got := f.status(t, res.Reference); got != tt.wantStatus {
				t.Fatalf("status = %s, want %s", got, tt.wantStatus)
			}
			if got := f.balance(t, owner); got != tt.wantBal {
				t.Fatalf("balance = %d, want %d", got, tt.wantBal)
			}

			f.assertConsistent(t, owner, 1_000)
		})
	}
}
