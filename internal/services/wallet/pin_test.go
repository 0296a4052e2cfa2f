package wallet

import (
	"errors"
	"testing"
)

func TestService_SetPIN(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	owner := f.wallet(t, 0)

	for _, pin := range []string{"", "123", "1234567", "12a4", " 1234"} {
		err := f.svc.SetPIN(t.Context(), owner, pin, "")
		if !errors.Is(err, ErrPINFormat) {
			t.Fatalf("pin %q: expected ErrPINFormat, got %v", pin, err)
		}
	}

	err := f.svc.VerifyPIN(t.Context(), owner, "")
	if err != nil {
		t.Fatalf("wallet without pin must accept: %v", err)
	}

	err = f.svc.SetPIN(t.Context(), owner, "1234", "")
	if err != nil {
		t.Fatalf("set pin: %v", err)
	}

	b, err := f.svc.Balance(t.Context(), owner)
	if err != nil {
		t.Fatalf("balance: %v", err)
	}
	if !b.HasPIN {
		t.Fatal("expected HasPIN")
	}

	tests := []struct {
		name    string
		pin     string
		wantErr error
	}{
		{name: "match", pin: "1234"},
		{name: "mismatch", pin: "4321", wantErr: ErrInvalidPIN},
		{name: "empty", pin: "", wantErr: ErrPINRequired},
	}

	for _, tt := range tests {
		err := f.svc.VerifyPIN(t.Context(), owner, tt.pin)
		if !errors.Is(err, tt.wantErr) {
			t.Fatalf("%s: got %v, want %v", tt.name, err, tt.wantErr)
		}
	}
}

func TestService_SetPIN_ChangeRequiresCurrent(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	owner := f.wallet(t, 0)

	err := f.svc.SetPIN(t.Context(), owner, "1234", "")
	if err != nil {
		t.Fatalf("set pin: %v", err)
	}

	err = f.svc.SetPIN(t.Context(), owner, "5678", "")
	if !errors.Is(err, ErrPINRequired) {
		t.Fatalf("expected ErrPINRequired, got %v", err)
	}

	err = f.svc.SetPIN(t.Context(), owner, "5678", "0000")
	if !errors.Is(err, ErrInvalidPIN) {
		t.Fatalf("expected ErrInvalidPIN, got %v", err)
	}

	err = f.svc.SetPIN(t.Context(), owner, "5678", "1234")
	if err != nil {
		t.Fatalf("change pin: %v", err)
	}

	err = f.svc.VerifyPIN(t.Context(), owner, "5678")
	if err != nil {
		t.Fatalf("verify new pin: %v", err)
	}
}

func TestService_VerifyPIN_MissingWallet(t *testing.T) {
	t.Parallel()

	f := newFixture(t)

	err := f.svc.VerifyPIN(t.Context(), "00000000-0000-0000-0000-000000000000", "1234")
	if !errors.Is(err, ErrWalletNotFound) {
		t.Fatalf("expected ErrWalletNotFound, got %v", err)
	}
}
