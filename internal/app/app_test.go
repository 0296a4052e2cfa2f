package app

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/fastprodman/billwallet/internal/config"
	"github.com/fastprodman/billwallet/internal/models"
)

func TestBuild_Memory(t *testing.T) {
	t.Parallel()

	a, err := Build(t.Context(), Config{
		LedgerBackend: BackendMemory,
		Wallet:        config.WalletConfig{DefaultLimit: 2_000},
	})
	if err != nil {
		t.Fatalf("build: %v", err)
	}

	b, err := a.Service.EnsureWallet(t.Context(), "7f1c1a8e-4a5e-4c63-9d65-2f7c1b0a1111", 0)
	if err != nil {
		t.Fatalf("ensure wallet: %v", err)
	}

	want := models.Balance{OwnerID: "7f1c1a8e-4a5e-4c63-9d65-2f7c1b0a1111", Limit: 2_000}
	if b.OwnerID != want.OwnerID || b.Limit != want.Limit || b.Balance != 0 {
		t.Fatalf("unexpected wallet: %+v", b)
	}

	if a.Hub == nil || a.Registry == nil {
		t.Fatal("hub and registry must be wired")
	}
}

func TestBuild_UnknownBackend(t *testing.T) {
	t.Parallel()

	_, err := Build(t.Context(), Config{LedgerBackend: "sqlite"})
	if err == nil {
		t.Fatal("expected error")
	}
}

func TestOriginChecker(t *testing.T) {
	t.Parallel()

	if originChecker(nil) != nil {
		t.Fatal("no origins must fall back to the same-origin check")
	}

	req := httptest.NewRequest(http.MethodGet, "/v1/wallet/events", nil)
	req.Header.Set("Origin", "https://app.example.com")

	if !originChecker([]string{"*"})(req) {
		t.Fatal("wildcard must allow any origin")
	}
	if !originChecker([]string{"https://app.example.com"})(req) {
		t.Fatal("listed origin must be allowed")
	}
	if originChecker([]string{"https://admin.example.com"})(req) {
		t.Fatal("unlisted origin must be rejected")
	}
}
