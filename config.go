package gpsjwt

import (
	"errors"
	"time"
)

const (
	// DefaultTTL is the lifetime given to claims whose expiry is not set by the caller.
	DefaultTTL = 30 * time.Second

	maxNonceLength = 128
)

// CodecConfig describes how tokens are signed and verified.
type CodecConfig struct {
	// Secret is the shared HMAC key. Treated as read-only.
	Secret []byte
	// KeyID is written to the "kid" header when set.
	KeyID string
	// TTL is applied when a claim has no expiry.
	TTL time.Duration
	// ClockSkew tolerates issuers whose clock runs ahead of the verifier.
	ClockSkew time.Duration
	// MaxLifetime rejects tokens older than this, regardless of exp. Zero disables.
	MaxLifetime time.Duration
	// Clock supplies the issue time for new claims.
	Clock func() time.Time
}

// normalize sets default values for optional fields.
func (c *CodecConfig) normalize() {
	if c.TTL <= 0 {
		c.TTL = DefaultTTL
	}
	if c.ClockSkew < 0 {
		c.ClockSkew = 0
	}
	if c.MaxLifetime < 0 {
		c.MaxLifetime = 0
	}
	if c.Clock == nil {
		c.Clock = time.Now
	}
}

// validate ensures the codec configuration is usable.
func (c CodecConfig) validate() error {
	if len(c.Secret) == 0 {
		return newError(ErrCodeInvalidSecret, errors.New("secret must not be empty"))
	}
	return nil
}
