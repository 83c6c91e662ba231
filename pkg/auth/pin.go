package auth

import (
	"errors"
	"fmt"

	"golang.org/x/crypto/bcrypt"
)

const (
	MinPINLen = 4
	MaxPINLen = 8
)

// ErrInvalidPIN is returned for PINs that are not 4-8 ASCII digits
var ErrInvalidPIN = errors.New("invalid pin")

// ValidatePIN checks that a parental-lock PIN is 4-8 ASCII digits
func ValidatePIN(pin string) error {
	if len(pin) < MinPINLen || len(pin) > MaxPINLen {
		return ErrInvalidPIN
	}
	for i := 0; i < len(pin); i++ {
		if pin[i] < '0' || pin[i] > '9' {
			return ErrInvalidPIN
		}
	}
	return nil
}

// HashPIN validates and bcrypt-hashes a parental-lock PIN
func HashPIN(pin string) (string, error) {
	if err := ValidatePIN(pin); err != nil {
		return "", err
	}
	hashed, err := bcrypt.GenerateFromPassword([]byte(pin), BcryptCost)
	if err != nil {
		return "", fmt.Errorf("failed to hash pin: %w", err)
	}
	return string(hashed), nil
}

// ComparePIN reports whether pin matches the stored hash. An empty hash never
// matches, so a student with no PIN set cannot unlock.
func ComparePIN(hashedPIN, pin string) bool {
	if hashedPIN == "" || ValidatePIN(pin) != nil {
		return false
	}
	return bcrypt.CompareHashAndPassword([]byte(hashedPIN), []byte(pin)) == nil
}
