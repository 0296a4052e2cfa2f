package api

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/fastprodman/billwallet/internal/models"
	"github.com/fastprodman/billwallet/internal/notify"
	"github.com/fastprodman/billwallet/internal/services/wallet"
	"github.com/fastprodman/billwallet/pkg/money"
	"github.com/go-chi/chi/v5"
)

// Bill categories sold through the purchase endpoint.
var categories = map[string]struct{}{
	"airtime": {},
	"data":    {},
	"tv":      {},
	"betting": {},
}

type purchaseRequest struct {
	Provider      string `json:"provider"`
	ServiceCode   string `json:"service_code"`
	Recipient     string `json:"recipient"`
	VariationCode string `json:"variation_code"`
	Phone         string `json:"phone"`
	Amount        string `json:"amount"`
	PIN           string `json:"pin"`
	Description   string `json:"description"`
	Reference     string `json:"reference"`
}

type purchaseResponse struct {
	Reference    string         `json:"reference"`
	Status       string         `json:"status"`
	Amount       string         `json:"amount"`
	Refunded     bool           `json:"refunded"`
	Message      string         `json:"message"`
	ProviderCode string         `json:"provider_code,omitempty"`
	Details      map[string]any `json:"details,omitempty"`
}

// PurchaseHandler handles POST /v1/purchases/{category}
//
// 200 when the purchase settled (completed or refunded), 202 when the
// provider has not confirmed yet.
func (h *HandlerProvider) PurchaseHandler(w http.ResponseWriter, r *http.Request) {
	owner, _ := OwnerID(r.Context())

	category := chi.URLParam(r, "category")
	if _, ok := categories[category]; !ok {
		writeError(w, http.StatusNotFound, "unknown category")
		return
	}

	var req purchaseRequest

	err := decodeJSON(w, r, &req)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	amount, err := parseAmount(req.Amount)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	if req.ServiceCode == "" || req.Recipient == "" {
		writeError(w, http.StatusBadRequest, "service_code and recipient required")
		return
	}

	provider := req.Provider
	if provider == "" {
		provider = h.defaultProvider
	}

	description := req.Description
	if description == "" {
		description = category + " " + req.ServiceCode
	}

	res, err := h.svc.Purchase(r.Context(), wallet.PurchaseRequest{
		OwnerID:       owner,
		PIN:           req.PIN,
		Provider:      provider,
		Category:      category,
		ServiceCode:   req.ServiceCode,
		Recipient:     req.Recipient,
		VariationCode: req.VariationCode,
		Phone:         req.Phone,
		Amount:        amount,
		Description:   description,
		Reference:     req.Reference,
	})
	if err != nil {
		h.failPurchase(w, r, err)
		return
	}

	status := http.StatusOK
	if res.Status == models.StatusPending {
		status = http.StatusAccepted
	}

	writeJSON(w, status, purchaseResponse{
		Reference:    res.Reference,
		Status:       string(res.Status),
		Amount:       money.Format(res.Amount),
		Refunded:     res.Refunded,
		Message:      res.Message,
		ProviderCode: res.Outcome.Code,
		Details:      res.Outcome.Payload,
	})
}

// failPurchase tells the user whether money was taken. Every error except an
// inconsistent settlement happens before the reservation commits.
func (h *HandlerProvider) failPurchase(w http.ResponseWriter, r *http.Request, err error) {
	status, msg := statusFor(err)

	resp := errorResponse{Error: msg, Message: notify.MsgNotStarted}

	var serr *wallet.SettlementError
	if errors.As(err, &serr) {
		resp.Reference = serr.Reference
		resp.Message = notify.MsgPending
	}

	if status >= http.StatusInternalServerError {
		slog.ErrorContext(r.Context(), "purchase failed", "reference", resp.Reference, "error", err)
	}

	writeJSON(w, status, resp)
}
