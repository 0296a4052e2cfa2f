package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/fastprodman/billwallet/internal/gateway"
	"github.com/fastprodman/billwallet/internal/models"
	"github.com/fastprodman/billwallet/internal/notify"
	"github.com/fastprodman/billwallet/internal/services/wallet"
	"github.com/fastprodman/billwallet/pkg/money"
)

// WalletService is the part of wallet.Service the HTTP API uses.
type WalletService interface {
	EnsureWallet(ctx context.Context, ownerID string, limit int64) (models.Balance, error)
	Balance(ctx context.Context, ownerID string) (models.Balance, error)
	SetPIN(ctx context.Context, ownerID, pin, currentPIN string) error
	Fund(ctx context.Context, req wallet.FundRequest) (models.Transaction, error)
	Transfer(ctx context.Context, req wallet.TransferRequest) (wallet.TransferResult, error)
	Purchase(ctx context.Context, req wallet.PurchaseRequest) (wallet.PurchaseResult, error)
	History(ctx context.Context, ownerID string, limit, offset int) ([]models.Transaction, error)
	Transaction(ctx context.Context, ownerID, reference string) (models.Transaction, error)
}

var _ WalletService = (*wallet.Service)(nil)

// HandlerProvider wraps a WalletService and exposes HTTP handlers.
type HandlerProvider struct {
	svc             WalletService
	hub             *notify.Hub
	defaultProvider string
}

// NewHandler returns a new Handler provider. Purchases that name no provider
// go to defaultProvider. hub may be nil, which disables the events stream.
func NewHandler(svc WalletService, hub *notify.Hub, defaultProvider string) *HandlerProvider {
	return &HandlerProvider{svc: svc, hub: hub, defaultProvider: defaultProvider}
}

// --- Helpers ---

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	err := json.NewEncoder(w).Encode(v)
	if err != nil {
		slog.Error("failed to encode JSON response", "error", err)
	}
}

type errorResponse struct {
	Error     string `json:"error"`
	Message   string `json:"message,omitempty"`
	Reference string `json:"reference,omitempty"`
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}

// decodeJSON limits the body size and disallows unknown fields.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	r.Body = http.MaxBytesReader(w, r.Body, 1<<20)
	defer r.Body.Close()

	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()

	err := dec.Decode(dst)
	if err != nil {
		if errors.Is(err, io.EOF) {
			return errors.New("empty body")
		}

		return errors.New("invalid JSON")
	}

	return nil
}

func parseAmount(s string) (int64, error) {
	amt, err := money.Parse(s)
	if err != nil {
		return 0, err
	}

	if amt <= 0 {
		return 0, errors.New("amount must be > 0")
	}

	return amt, nil
}

func queryInt(r *http.Request, name string) (int, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return 0, nil
	}

	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return 0, fmt.Errorf("invalid %s", name)
	}

	return n, nil
}

// statusFor maps domain errors to HTTP status codes and short messages.
func statusFor(err error) (int, string) {
	switch {
	case errors.Is(err, wallet.ErrInvalidAmount),
		errors.Is(err, wallet.ErrInvalidReference),
		errors.Is(err, wallet.ErrSameWallet),
		errors.Is(err, wallet.ErrPINFormat),
		errors.Is(err, gateway.ErrUnknownProvider):
		return http.StatusBadRequest, rootMessage(err)
	case errors.Is(err, wallet.ErrPINRequired), errors.Is(err, wallet.ErrInvalidPIN):
		return http.StatusForbidden, rootMessage(err)
	case errors.Is(err, wallet.ErrWalletNotFound):
		return http.StatusNotFound, "wallet not found"
	case errors.Is(err, wallet.ErrTransactionNotFound):
		return http.StatusNotFound, "transaction not found"
	case errors.Is(err, wallet.ErrDuplicateReference):
		return http.StatusConflict, "duplicate reference"
	case errors.Is(err, wallet.ErrInsufficientFunds):
		return http.StatusConflict, "insufficient funds"
	case errors.Is(err, wallet.ErrLimitExceeded):
		return http.StatusConflict, "wallet limit exceeded"
	case errors.Is(err, wallet.ErrSettlementInconsistent):
		return http.StatusInternalServerError, "settlement inconsistent"
	default:
		return http.StatusInternalServerError, "internal error"
	}
}

// rootMessage is the text of the innermost wrapped error.
func rootMessage(err error) string {
	for {
		next := errors.Unwrap(err)
		if next == nil {
			return err.Error()
		}

		err = next
	}
}

func (h *HandlerProvider) fail(w http.ResponseWriter, r *http.Request, err error) {
	status, msg := statusFor(err)
	if status >= http.StatusInternalServerError {
		slog.ErrorContext(r.Context(), "request failed", "path", r.URL.Path, "error", err)
	}

	writeError(w, status, msg)
}

type balanceResponse struct {
	OwnerID   string    `json:"owner_id"`
	Balance   string    `json:"balance"`
	Limit     string    `json:"limit"`
	HasPIN    bool      `json:"has_pin"`
	UpdatedAt time.Time `json:"updated_at"`
}

func toBalanceResponse(b models.Balance) balanceResponse {
	return balanceResponse{
		OwnerID:   b.OwnerID,
		Balance:   money.Format(b.Balance),
		Limit:     money.Format(b.Limit),
		HasPIN:    b.HasPIN,
		UpdatedAt: b.UpdatedAt,
	}
}

type transactionResponse struct {
	Reference   string         `json:"reference"`
	Amount      string         `json:"amount"`
	Direction   string         `json:"direction"`
	Status      string         `json:"status"`
	Description string         `json:"description,omitempty"`
	Provider    string         `json:"provider,omitempty"`
	Metadata    map[string]any `json:"metadata,omitempty"`
	CreatedAt   time.Time      `json:"created_at"`
	UpdatedAt   time.Time      `json:"updated_at"`
}

func toTransactionResponse(t models.Transaction) transactionResponse {
	return transactionResponse{
		Reference:   t.Reference,
		Amount:      money.Format(t.Amount),
		Direction:   string(t.Direction),
		Status:      string(t.Status),
		Description: t.Description,
		Provider:    t.Provider,
		Metadata:    t.Metadata,
		CreatedAt:   t.CreatedAt,
		UpdatedAt:   t.UpdatedAt,
	}
}
