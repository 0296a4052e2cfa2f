package e2etests

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// The suite runs against a live API started with LEDGER_BACKEND=postgres or
// memory. It is skipped unless BILLWALLET_E2E_URL is set; the token secret
// must match the server's AUTH_JWT_SECRET.
const (
	timeout   = 5 * time.Second
	waitReady = 20 * time.Second
)

var httpClient = &http.Client{Timeout: timeout}

type env struct {
	baseURL string
	secret  string
}

func setup(t *testing.T) env {
	t.Helper()

	base := os.Getenv("BILLWALLET_E2E_URL")
	if base == "" {
		t.Skip("BILLWALLET_E2E_URL not set")
	}

	e := env{baseURL: base, secret: os.Getenv("BILLWALLET_E2E_JWT_SECRET")}
	e.waitUntilReady(t)

	return e
}

func TestE2E_WalletFlow(t *testing.T) {
	e := setup(t)

	owner := uuid.NewString()
	tok := e.token(t, owner)
	fundTok := e.token(t, owner, "wallet:fund")

	t.Run("create_wallet", func(t *testing.T) {
		code, body := e.call(t, http.MethodPost, "/v1/wallet", tok, nil)
		if code != http.StatusOK || body["balance"] != "0.00" {
			t.Fatalf("create: want 200 with 0.00, got %d (%v)", code, body)
		}
	})

	t.Run("fund", func(t *testing.T) {
		ref := uniqRef("fund")

		code, body := e.call(t, http.MethodPost, "/v1/wallet/fund", fundTok, map[string]string{
			"amount": "150.25", "reference": ref, "source": "e2e",
		})
		if code != http.StatusOK {
			t.Fatalf("fund: want 200, got %d (%v)", code, body)
		}

		code, _ = e.call(t, http.MethodPost, "/v1/wallet/fund", fundTok, map[string]string{
			"amount": "150.25", "reference": ref,
		})
		if code != http.StatusConflict {
			t.Fatalf("duplicate fund: want 409, got %d", code)
		}

		if got := e.balance(t, tok); got != "150.25" {
			t.Fatalf("after fund: want 150.25, got %s", got)
		}
	})

	t.Run("purchase_insufficient_funds_takes_nothing", func(t *testing.T) {
		code, body := e.call(t, http.MethodPost, "/v1/purchases/airtime", tok, map[string]string{
			"service_code": "mtn", "recipient": "08011111111", "amount": "1000",
		})
		if code != http.StatusConflict {
			t.Fatalf("purchase: want 409, got %d (%v)", code, body)
		}

		if got := e.balance(t, tok); got != "150.25" {
			t.Fatalf("after declined purchase: want 150.25, got %s", got)
		}
	})

	t.Run("transfer", func(t *testing.T) {
		to := uuid.NewString()

		code, _ := e.call(t, http.MethodPost, "/v1/wallet", e.token(t, to), nil)
		if code != http.StatusOK {
			t.Fatalf("create recipient: %d", code)
		}

		code, body := e.call(t, http.MethodPost, "/v1/wallet/transfer", tok, map[string]string{
			"to": to, "amount": "50.25", "reference": uniqRef("tr"),
		})
		if code != http.StatusOK {
			t.Fatalf("transfer: want 200, got %d (%v)", code, body)
		}

		if got := e.balance(t, tok); got != "100.00" {
			t.Fatalf("sender: want 100.00, got %s", got)
		}
		if got := e.balance(t, e.token(t, to)); got != "50.25" {
			t.Fatalf("recipient: want 50.25, got %s", got)
		}
	})

	t.Run("history", func(t *testing.T) {
		code, body := e.call(t, http.MethodGet, "/v1/transactions", tok, nil)
		if code != http.StatusOK {
			t.Fatalf("history: %d (%v)", code, body)
		}

		list, _ := body["transactions"].([]any)
		if len(list) != 2 {
			t.Fatalf("history: want 2 entries, got %d", len(list))
		}
	})
}

func TestE2E_Validation(t *testing.T) {
	e := setup(t)

	tok := e.token(t, uuid.NewString())

	tests := []struct {
		name   string
		method string
		path   string
		tok    string
		body   any
		want   int
	}{
		{name: "no_token", method: http.MethodGet, path: "/v1/wallet", want: http.StatusUnauthorized},
		{name: "wallet_missing", method: http.MethodGet, path: "/v1/wallet", tok: tok, want: http.StatusNotFound},
		{name: "fund_without_scope", method: http.MethodPost, path: "/v1/wallet/fund", tok: tok, body: map[string]string{"amount": "1"}, want: http.StatusForbidden},
		{name: "bad_precision", method: http.MethodPost, path: "/v1/purchases/data", tok: tok, body: map[string]string{"service_code": "mtn-data", "recipient": "1", "amount": "1.234"}, want: http.StatusBadRequest},
		{name: "unknown_category", method: http.MethodPost, path: "/v1/purchases/lottery", tok: tok, body: map[string]string{}, want: http.StatusNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			code, body := e.call(t, tt.method, tt.path, tt.tok, tt.body)
			if code != tt.want {
				t.Fatalf("want %d, got %d (%v)", tt.want, code, body)
			}
		})
	}
}

/* -------------------- helpers -------------------- */

func (e env) token(t *testing.T, subject string, scopes ...string) string {
	t.Helper()

	claims := jwt.MapClaims{
		"sub": subject,
		"exp": time.Now().Add(10 * time.Minute).Unix(),
	}
	if len(scopes) > 0 {
		claims["scope"] = scopes[0]
	}

	s, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(e.secret))
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}

	return s
}

func (e env) call(t *testing.T, method, path, tok string, body any) (int, map[string]any) {
	t.Helper()

	var rdr io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal: %v", err)
		}

		rdr = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(t.Context(), method, e.baseURL+path, rdr)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}

	req.Header.Set("Content-Type", "application/json")
	if tok != "" {
		req.Header.Set("Authorization", "Bearer "+tok)
	}

	resp, err := httpClient.Do(req)
	if err != nil {
		t.Fatalf("do request: %v", err)
	}
	defer resp.Body.Close()

	out := map[string]any{}

	raw, _ := io.ReadAll(resp.Body)
	if len(raw) > 0 {
		_ = json.Unmarshal(raw, &out)
	}

	return resp.StatusCode, out
}

func (e env) balance(t *testing.T, tok string) string {
	t.Helper()

	code, body := e.call(t, http.MethodGet, "/v1/wallet", tok, nil)
	if code != http.StatusOK {
		t.Fatalf("GET /v1/wallet: want 200, got %d (%v)", code, body)
	}

	s, ok := body["balance"].(string)
	if !ok {
		t.Fatalf("balance missing: %v", body)
	}

	return s
}

// waitUntilReady waits until GET /healthz responds 200 or times out.
func (e env) waitUntilReady(t *testing.T) {
	t.Helper()

	ctx, cancel := context.WithTimeout(t.Context(), waitReady)
	defer cancel()

	u := e.baseURL + "/healthz"

	tick := time.NewTicker(200 * time.Millisecond)
	defer tick.Stop()

	for {
		select {
		case <-ctx.Done():
			t.Fatalf("service not ready at %s within %s", u, waitReady)
		case <-tick.C:
			req, _ := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)

			resp, err := httpClient.Do(req)
			if err != nil {
				// keep waiting while the server comes up
				continue
			}

			_ = resp.Body.Close()
			if resp.StatusCode == http.StatusOK {
				return
			}
		}
	}
}

func uniqRef(prefix string) string {
	return fmt.Sprintf("%s-%d", prefix, time.Now().UnixNano())
}
