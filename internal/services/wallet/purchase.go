package wallet

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/fastprodman/billwallet/internal/gateway"
	"github.com/fastprodman/billwallet/internal/models"
	"github.com/fastprodman/billwallet/internal/notify"
)

// Purchase runs the whole flow for one bill payment: verify PIN, reserve,
// call the provider, poll while pending, settle, notify.
//
// Errors returned before the reservation mean no funds were taken. Once the
// reservation exists, cancelling ctx only stops the provider calls; the
// settlement itself always runs and a still-pending entry is left for the
// sweep.
func (s *Service) Purchase(ctx context.Context, req PurchaseRequest) (PurchaseResult, error) {
	provider, err := s.providers.Get(req.Provider)
	if err != nil {
		return PurchaseResult{}, fmt.Errorf("purchase: %w", err)
	}

	err = s.VerifyPIN(ctx, req.OwnerID, req.PIN)
	if err != nil {
		return PurchaseResult{}, fmt.Errorf("purchase: %w", err)
	}

	res, err := s.Reserve(ctx, ReserveRequest{
		OwnerID:     req.OwnerID,
		Amount:      req.Amount,
		Description: req.Description,
		Reference:   req.Reference,
		Provider:    provider.Name(),
		Metadata: map[string]any{
			"category":       req.Category,
			"service_code":   req.ServiceCode,
			"recipient":      req.Recipient,
			"variation_code": req.VariationCode,
			"phone":          req.Phone,
		},
	})
	if err != nil {
		return PurchaseResult{}, fmt.Errorf("purchase: %w", err)
	}

	out := s.fulfill(ctx, provider, res, req)

	settleCtx := context.WithoutCancel(ctx)

	fs, err := s.Settle(settleCtx, res, out)
	result := PurchaseResult{
		FinalState: fs,
		Outcome:    out,
		Message:    notify.MessageFor(fs.Status, fs.Refunded),
	}

	if err != nil {
		return result, fmt.Errorf("purchase: %w", err)
	}

	if fs.Status == models.StatusPending {
		s.emit(settleCtx, notify.Notification{
			Kind:      notify.KindSettlement,
			Reference: fs.Reference,
			OwnerID:   fs.OwnerID,
			Status:    fs.Status,
			Message:   result.Message,
			Amount:    fs.Amount,
		})
	}

	return result, nil
}

// fulfill submits the purchase and polls Requery while the outcome stays
// pending. Transport errors are already folded into the outcome.
func (s *Service) fulfill(ctx context.Context, p gateway.Provider, res Reservation, req PurchaseRequest) gateway.Outcome {
	start := time.Now()

	out, err := p.Purchase(ctx, gateway.Request{
		Reference:     res.Reference,
		ServiceCode:   req.ServiceCode,
		Recipient:     req.Recipient,
		VariationCode: req.VariationCode,
		Amount:        res.Amount,
		Phone:         req.Phone,
	})
	s.metrics.GatewayCall(p.Name(), "purchase", string(out.Class), time.Since(start))

	if err != nil {
		slog.WarnContext(ctx, "provider purchase failed",
			"reference", res.Reference, "provider", p.Name(), "class", out.Class, "error", err)
	}

	poll := s.cfg.Settlement

	for i := 0; i < poll.PollAttempts && out.Class == gateway.Pending; i++ {
		err = s.sleep(ctx, poll.PollInterval)
		if err != nil {
			break
		}

		start = time.Now()
		next, err := p.Requery(ctx, res.Reference)
		s.metrics.GatewayCall(p.Name(), "requery", string(next.Class), time.Since(start))

		if err != nil {
			slog.WarnContext(ctx, "provider requery failed",
				"reference", res.Reference, "provider", p.Name(), "attempt", i+1, "error", err)
		}

		if next.Class == "" {
			continue
		}

		out = next
	}

	return out
}
