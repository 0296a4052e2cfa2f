package api

import (
	"log/slog"
	"net/http"

	"github.com/fastprodman/billwallet/internal/services/wallet"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
)

type ensureWalletRequest struct {
	// Limit is optional; the configured default applies when empty.
	Limit string `json:"limit"`
}

// EnsureWalletHandler handles POST /v1/wallet
func (h *HandlerProvider) EnsureWalletHandler(w http.ResponseWriter, r *http.Request) {
	owner, _ := OwnerID(r.Context())

	var req ensureWalletRequest
	if r.ContentLength > 0 {
		err := decodeJSON(w, r, &req)
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
	}

	var limit int64
	if req.Limit != "" {
		var err error

		limit, err = parseAmount(req.Limit)
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
	}

	b, err := h.svc.EnsureWallet(r.Context(), owner, limit)
	if err != nil {
		h.fail(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, toBalanceResponse(b))
}

// GetBalanceHandler handles GET /v1/wallet
func (h *HandlerProvider) GetBalanceHandler(w http.ResponseWriter, r *http.Request) {
	owner, _ := OwnerID(r.Context())

	b, err := h.svc.Balance(r.Context(), owner)
	if err != nil {
		h.fail(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, toBalanceResponse(b))
}

type setPINRequest struct {
	PIN        string `json:"pin"`
	CurrentPIN string `json:"current_pin"`
}

// SetPINHandler handles PUT /v1/wallet/pin
func (h *HandlerProvider) SetPINHandler(w http.ResponseWriter, r *http.Request) {
	owner, _ := OwnerID(r.Context())

	var req setPINRequest

	err := decodeJSON(w, r, &req)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	err = h.svc.SetPIN(r.Context(), owner, req.PIN, req.CurrentPIN)
	if err != nil {
		h.fail(w, r, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

type fundRequest struct {
	Amount      string `json:"amount"`
	Reference   string `json:"reference"`
	Description string `json:"description"`
	Source      string `json:"source"`
}

// FundHandler handles POST /v1/wallet/fund
func (h *HandlerProvider) FundHandler(w http.ResponseWriter, r *http.Request) {
	owner, _ := OwnerID(r.Context())

	var req fundRequest

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

	t, err := h.svc.Fund(r.Context(), wallet.FundRequest{
		OwnerID:     owner,
		Amount:      amount,
		Reference:   req.Reference,
		Description: req.Description,
		Source:      req.Source,
	})
	if err != nil {
		h.fail(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, toTransactionResponse(t))
}

type transferRequest struct {
	To          string `json:"to"`
	Amount      string `json:"amount"`
	PIN         string `json:"pin"`
	Description string `json:"description"`
	Reference   string `json:"reference"`
}

type transferResponse struct {
	Debit  transactionResponse `json:"debit"`
	Credit transactionResponse `json:"credit"`
}

// TransferHandler handles POST /v1/wallet/transfer
func (h *HandlerProvider) TransferHandler(w http.ResponseWriter, r *http.Request) {
	owner, _ := OwnerID(r.Context())

	var req transferRequest

	err := decodeJSON(w, r, &req)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	if req.To == "" {
		writeError(w, http.StatusBadRequest, "to required")
		return
	}

	to, err := uuid.Parse(req.To)
	if err != nil {
		writeError(w, http.StatusBadRequest, "to must be a wallet owner id")
		return
	}

	amount, err := parseAmount(req.Amount)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	res, err := h.svc.Transfer(r.Context(), wallet.TransferRequest{
		FromOwnerID: owner,
		ToOwnerID:   to.String(),
		Amount:      amount,
		PIN:         req.PIN,
		Description: req.Description,
		Reference:   req.Reference,
	})
	if err != nil {
		h.fail(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, transferResponse{
		Debit:  toTransactionResponse(res.Debit),
		Credit: toTransactionResponse(res.Credit),
	})
}

// HistoryHandler handles GET /v1/transactions?limit=&offset=
func (h *HandlerProvider) HistoryHandler(w http.ResponseWriter, r *http.Request) {
	owner, _ := OwnerID(r.Context())

	limit, err := queryInt(r, "limit")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	offset, err := queryInt(r, "offset")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	list, err := h.svc.History(r.Context(), owner, limit, offset)
	if err != nil {
		h.fail(w, r, err)
		return
	}

	out := make([]transactionResponse, 0, len(list))
	for _, t := range list {
		out = append(out, toTransactionResponse(t))
	}

	writeJSON(w, http.StatusOK, map[string]any{"transactions": out})
}

// GetTransactionHandler handles GET /v1/transactions/{reference}
func (h *HandlerProvider) GetTransactionHandler(w http.ResponseWriter, r *http.Request) {
	owner, _ := OwnerID(r.Context())

	t, err := h.svc.Transaction(r.Context(), owner, chi.URLParam(r, "reference"))
	if err != nil {
		h.fail(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, toTransactionResponse(t))
}

// EventsHandler handles GET /v1/wallet/events (websocket)
func (h *HandlerProvider) EventsHandler(w http.ResponseWriter, r *http.Request) {
	if h.hub == nil {
		writeError(w, http.StatusNotFound, "events disabled")
		return
	}

	owner, _ := OwnerID(r.Context())

	err := h.hub.Serve(w, r, owner)
	if err != nil {
		slog.WarnContext(r.Context(), "events stream failed", "owner_id", owner, "error", err)
	}
}
