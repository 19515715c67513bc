package secret

import (
	"crypto/sha256"
	"errors"
	"fmt"

	"golang.org/x/crypto/pbkdf2"
)

const pinLength = 8

var (
	// ErrInvalidPIN reports a PIN that is not exactly eight digits.
	ErrInvalidPIN = errors.New("pin must be exactly 8 digits")
	// ErrWeakPIN reports a PIN made of one repeated digit or a plain sequence.
	ErrWeakPIN = errors.New("pin is too weak")
)

var sequentialPINs = map[string]struct{}{
	"12345678": {},
	"87654321": {},
	"01234567": {},
	"76543210": {},
}

// ValidatePIN checks that pin is eight ASCII digits and not trivially guessable.
func ValidatePIN(pin string) error {
	if len(pin) != pinLength {
		return ErrInvalidPIN
	}
	same := true
	for i := 0; i < len(pin); i++ {
		if pin[i] < '0' || pin[i] > '9' {
			return ErrInvalidPIN
		}
		if pin[i] != pin[0] {
			same = false
		}
	}
	if same {
		return fmt.Errorf("%w: all digits are the same", ErrWeakPIN)
	}
	if _, ok := sequentialPINs[pin]; ok {
		return fmt.Errorf("%w: avoid sequential patterns", ErrWeakPIN)
	}
	return nil
}

// DeriveKey stretches pin into a signing key with PBKDF2-HMAC-SHA256 using the
// salt, iteration count and key length from cfg.
func DeriveKey(pin string, cfg KDFConfig) ([]byte, error) {
	if err := ValidatePIN(pin); err != nil {
		return nil, err
	}
	cfg.normalize()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	salt, err := cfg.SaltBytes()
	if err != nil {
		return nil, err
	}
	return pbkdf2.Key([]byte(pin), salt, cfg.Iterations, cfg.KeyLength, sha256.New), nil
}
