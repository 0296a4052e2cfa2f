package models

import "time"

// Wallet is a customer's spendable balance. Amounts are minor units (kobo).
type Wallet struct {
	OwnerID   string
	Balance   int64
	Limit     int64
	PINHash   string
	CreatedAt time.Time
	UpdatedAt time.Time
}

func (w Wallet) HasPIN() bool {
	return w.PINHash != ""
}

// Balance is the public view of a wallet.
type Balance struct {
	OwnerID   string    `json:"owner_id"`
	Balance   int64     `json:"balance"`
	Limit     int64     `json:"limit"`
	HasPIN    bool      `json:"has_pin"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (w Wallet) View() Balance {
	return Balance{
		OwnerID:   w.OwnerID,
		Balance:   w.Balance,
		Limit:     w.Limit,
		HasPIN:    w.HasPIN(),
		UpdatedAt: w.UpdatedAt,
	}
}
