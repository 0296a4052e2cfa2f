package wallet

import (
	"errors"
	"math"
	"testing"

	"github.com/fastprodman/billwallet/internal/models"
	"github.com/google/uuid"
)

func TestService_Fund(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name        string
		reserve     int64
		amount      int64
		reference   string
		wantErr     error
		wantBalance int64
	}{
		{name: "ok", amount: 400, wantBalance: 900},
		{name: "up_to_limit", amount: 500, wantBalance: 1_000},
		{name: "over_limit", amount: 501, wantErr: ErrLimitExceeded, wantBalance: 500},
		// 200 + 300 reserved + 501 > 1000
		{name: "pending_counts_toward_limit", reserve: 300, amount: 501, wantErr: ErrLimitExceeded, wantBalance: 200},
		{name: "pending_within_limit", reserve: 300, amount: 500, wantBalance: 700},
		{name: "max_amount", amount: math.MaxInt64, wantErr: ErrLimitExceeded, wantBalance: 500},
		{name: "max_amount_with_pending", reserve: 300, amount: math.MaxInt64, wantErr: ErrLimitExceeded, wantBalance: 200},
		{name: "invalid_amount", amount: 0, wantErr: ErrInvalidAmount, wantBalance: 500},
		{name: "invalid_reference", amount: 10, reference: "bad ref", wantErr: ErrInvalidReference, wantBalance: 500},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			f := newFixture(t)

			owner := uuid.NewString()
			f.mem.SeedWallet(models.Wallet{OwnerID: owner, Balance: 500, Limit: 1_000})

			if tt.reserve > 0 {
				_, err := f.svc.Reserve(t.Context(), ReserveRequest{OwnerID: owner, Amount: tt.reserve})
				if err != nil {
					t.Fatalf("reserve: %v", err)
				}
			}

			txn, err := f.svc.Fund(t.Context(), FundRequest{
				OwnerID:   owner,
				Amount:    tt.amount,
				Reference: tt.reference,
				Source:    "card",
			})

			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("unexpected error: got %v, want %v", err, tt.wantErr)
				}
			} else {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				if txn.Direction != models.Credit || txn.Status != models.StatusCompleted || txn.Amount != tt.amount {
					t.Fatalf("unexpected transaction: %+v", txn)
				}
			}

			if got := f.balance(t, owner); got != tt.wantBalance {
				t.Fatalf("balance = %d, want %d", got, tt.wantBalance)
			}

			f.assertConsistent(t, owner, 500)
		})
	}
}

func TestService_Fund_DuplicateReference(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	owner := f.wallet(t, 0)

	req := FundRequest{OwnerID: owner, Amount: 100, Reference: "fund-1"}

	_, err := f.svc.Fund(t.Context(), req)
	if err != nil {
		t.Fatalf("first fund: %v", err)
	}

	_, err = f.svc.Fund(t.Context(), req)
	if !errors.Is(err, ErrDuplicateReference) {
		t.Fatalf("expected ErrDuplicateReference, got %v", err)
	}

	if got := f.balance(t, owner); got != 100 {
		t.Fatalf("balance = %d, want 100", got)
	}
}
