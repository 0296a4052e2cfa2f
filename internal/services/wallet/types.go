package wallet

import (
	"errors"
	"fmt"
	"time"

	"github.com/fastprodman/billwallet/internal/gateway"
	"github.com/fastprodman/billwallet/internal/models"
	"github.com/fastprodman/billwallet/internal/repos/ledger"
)

// Reservation-time errors. None of them leaves a side effect behind, so
// the caller may retry with a new reference.
var (
	ErrInsufficientFunds   = ledger.ErrInsufficientFunds
	ErrDuplicateReference  = ledger.ErrDuplicateReference
	ErrWalletNotFound      = ledger.ErrWalletNotFound
	ErrTransactionNotFound = ledger.ErrTransactionNotFound
	ErrLimitExceeded       = errors.New("wallet limit exceeded")
	ErrInvalidAmount       = errors.New("amount must be positive")
	ErrInvalidReference    = errors.New("invalid reference")
	ErrSameWallet          = errors.New("cannot transfer to the same wallet")
	ErrInvalidPIN          = errors.New("invalid pin")
	ErrPINRequired         = errors.New("pin required")
	ErrPINFormat           = errors.New("pin must be 4 to 6 digits")
	ErrInvalidOutcome      = errors.New("outcome must be success or failed")
)

// ErrSettlementInconsistent means a definitive provider outcome could not be
// written to the ledger. The transaction stays pending until an operator or
// the sweep resolves it.
var ErrSettlementInconsistent = errors.New("settlement inconsistent")

// SettlementError carries the reference of an inconsistent settlement.
type SettlementError struct {
	Reference string
	Outcome   gateway.Class
	Err       error
}

func (e *SettlementError) Error() string {
	return fmt.Sprintf("settlement inconsistent for %s (outcome %s): %v", e.Reference, e.Outcome, e.Err)
}

func (e *SettlementError) Unwrap() []error {
	return []error{ErrSettlementInconsistent, e.Err}
}

type ReserveRequest struct {
	OwnerID     string
	Amount      int64
	Description string
	// Reference is generated when empty.
	Reference string
	Provider  string
	Metadata  map[string]any
}

// Reservation is a committed pending debit.
type Reservation struct {
	Reference     string
	OwnerID       string
	Amount        int64
	BalanceBefore int64
	Provider      string
	CreatedAt     time.Time
}

// FinalState is the ledger state of a transaction after a settlement call.
// Applied is false when the call changed nothing.
type FinalState struct {
	Reference string
	OwnerID   string
	Amount    int64
	Status    models.Status
	Refunded  bool
	Applied   bool
}

func stateOf(t models.Transaction) FinalState {
	return FinalState{
		Reference: t.Reference,
		OwnerID:   t.OwnerID,
		Amount:    t.Amount,
		Status:    t.Status,
		Refunded:  t.Direction == models.Debit && (t.Status == models.StatusFailed || t.Status == models.StatusRefunded),
	}
}

type PurchaseRequest struct {
	OwnerID       string
	PIN           string
	Provider      string
	Category      string
	ServiceCode   string
	Recipient     string
	VariationCode string
	Phone         string
	Amount        int64
	Description   string
	Reference     string
}

type PurchaseResult struct {
	FinalState
	Outcome gateway.Outcome
	Message string
}

type FundRequest struct {
	OwnerID     string
	Amount      int64
	Reference   string
	Description string
	// Source names the external payment that backs the credit.
	Source string
}

type TransferRequest struct {
	FromOwnerID string
	ToOwnerID   string
	Amount      int64
	PIN         string
	Description string
	Reference   string
}

type TransferResult struct {
	Debit  models.Transaction
	Credit models.Transaction
}

type SweepReport struct {
	Scanned      int
	Completed    int
	Failed       int
	Refunded     int
	StillPending int
	Errors       int
}

const maxReferenceLen = 96

// validReference accepts caller supplied references: printable ASCII without
// spaces, short enough to carry the transfer credit suffix.
func validReference(ref string) bool {
	if ref == "" || len(ref) > maxReferenceLen {
		return false
	}

	for i := range len(ref) {
		if ref[i] <= ' ' || ref[i] > '~' {
			return false
		}
	}

	return true
}
