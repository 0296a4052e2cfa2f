package models

import "time"

type Direction string

const (
	Credit Direction = "credit"
	Debit  Direction = "debit"
)

type Status string

const (
	StatusPending   Status = "pending"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
	StatusRefunded  Status = "refunded"
)

// Terminal reports whether no further transition is allowed from s.
func (s Status) Terminal() bool {
	switch s {
	case StatusCompleted, StatusFailed, StatusRefunded:
		return true
	default:
		return false
	}
}

func (s Status) Valid() bool {
	return s == StatusPending || s.Terminal()
}

// Transaction is one ledger entry, keyed by its reference.
type Transaction struct {
	Reference   string
	OwnerID     string
	Amount      int64
	Direction   Direction
	Description string
	Status      Status
	Provider    string
	Metadata    map[string]any
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// BalanceDelta is the signed effect a transaction in its current state has
// on its owner's wallet.
func (t Transaction) BalanceDelta() int64 {
	switch {
	case t.Direction == Credit && t.Status == StatusCompleted:
		return t.Amount
	case t.Direction == Debit && (t.Status == StatusPending || t.Status == StatusCompleted):
		return -t.Amount
	default:
		return 0
	}
}
