// Package notify delivers final transaction states to users and operators.
package notify

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/fastprodman/billwallet/internal/models"
)

type Kind string

const (
	// KindSettlement tells a user how their transaction ended.
	KindSettlement Kind = "settlement"
	// KindAlert asks an operator to reconcile a transaction by hand.
	KindAlert Kind = "alert"
)

type Notification struct {
	Kind      Kind          `json:"kind"`
	Reference string        `json:"reference"`
	OwnerID   string        `json:"owner_id"`
	Status    models.Status `json:"status"`
	Message   string        `json:"message"`
	Amount    int64         `json:"amount"`
	At        time.Time     `json:"at"`
}

type Emitter interface {
	Emit(ctx context.Context, n Notification) error
}

const (
	MsgNotStarted = "Your payment did not go through. No funds were taken."
	MsgCompleted  = "Your payment was successful."
	MsgRefunded   = "Your payment failed. The funds have been returned to your wallet."
	MsgPending    = "We are still confirming your payment. You will be notified once it completes."
)

// MessageFor returns the user-facing text for a settled status.
func MessageFor(status models.Status, refunded bool) string {
	switch status {
	case models.StatusCompleted:
		return MsgCompleted
	case models.StatusFailed, models.StatusRefunded:
		if refunded {
			return MsgRefunded
		}

		return MsgNotStarted
	default:
		return MsgPending
	}
}

// Multi fans a notification out to every emitter and joins their errors.
type Multi []Emitter

func (m Multi) Emit(ctx context.Context, n Notification) error {
	var errs []error

	for _, e := range m {
		if e == nil {
			continue
		}

		err := e.Emit(ctx, n)
		if err != nil {
			errs = append(errs, err)
		}
	}

	return errors.Join(errs...)
}

// LogEmitter writes notifications to a structured logger. Alerts are logged
// at error level.
type LogEmitter struct {
	Logger *slog.Logger
}

func (l LogEmitter) Emit(ctx context.Context, n Notification) error {
	logger := l.Logger
	if logger == nil {
		logger = slog.Default()
	}

	level := slog.LevelInfo
	if n.Kind == KindAlert {
		level = slog.LevelError
	}

	logger.Log(ctx, level, "notification",
		"kind", n.Kind,
		"reference", n.Reference,
		"owner_id", n.OwnerID,
		"status", n.Status,
		"amount", n.Amount,
		"message", n.Message,
	)

	return nil
}

// Discard drops every notification.
type Discard struct{}

func (Discard) Emit(context.Context, Notification) error { return nil }
