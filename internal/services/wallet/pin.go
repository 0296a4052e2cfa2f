package wallet

import (
	"context"
	"errors"
	"fmt"
	"regexp"

	"golang.org/x/crypto/bcrypt"
)

var pinPattern = regexp.MustCompile(`^[0-9]{4,6}$`)

// SetPIN stores a bcrypt hash of pin. Replacing an existing PIN requires the
// current one.
func (s *Service) SetPIN(ctx context.Context, ownerID, pin, currentPIN string) error {
	if !pinPattern.MatchString(pin) {
		return fmt.Errorf("set pin: %w", ErrPINFormat)
	}

	err := s.VerifyPIN(ctx, ownerID, currentPIN)
	if err != nil {
		return fmt.Errorf("set pin: %w", err)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(pin), s.pinCost)
	if err != nil {
		return fmt.Errorf("hash pin: %w", err)
	}

	err = s.store.SetPINHash(ctx, ownerID, string(hash))
	if err != nil {
		return fmt.Errorf("set pin: %w", err)
	}

	s.invalidate(ctx, ownerID)

	return nil
}

// VerifyPIN checks pin against the wallet's PIN. Wallets without a PIN
// accept anything.
func (s *Service) VerifyPIN(ctx context.Context, ownerID, pin string) error {
	w, err := s.store.Wallet(ctx, ownerID)
	if err != nil {
		return fmt.Errorf("verify pin: %w", err)
	}

	if !w.HasPIN() {
		return nil
	}

	if pin == "" {
		return ErrPINRequired
	}

	err = bcrypt.CompareHashAndPassword([]byte(w.PINHash), []byte(pin))
	if err != nil {
		if errors.Is(err, bcrypt.ErrMismatchedHashAndPassword) {
			return ErrInvalidPIN
		}

		return fmt.Errorf("compare pin: %w", err)
	}

	return nil
}
