// Package replay keeps track of nonces that have already been accepted so a
// location token can be used at most once.
//
// A Cache performs compare-and-insert: the first caller to claim a nonce wins
// and every later caller, concurrent or not, is told the nonce was seen. Entries
// only need to outlive the token they belong to, so each claim carries the
// token expiry and caches may drop entries once it has passed.
package replay

import (
	"context"
	"errors"
	"fmt"
	"time"

	gpsjwt "github.com/bionicotaku/lingo-utils-gpsjwt"
)

// Cache records nonces.
type Cache interface {
	// Claim records nonce until expiresAt. It reports true when the nonce was
	// not seen before.
	Claim(ctx context.Context, nonce string, expiresAt time.Time) (bool, error)
}

// Guard decodes tokens and rejects replays.
type Guard struct {
	codec *gpsjwt.Codec
	cache Cache
}

// NewGuard builds a Guard from a codec and a nonce cache.
func NewGuard(codec *gpsjwt.Codec, cache Cache) (*Guard, error) {
	if codec == nil {
		return nil, errors.New("codec is required")
	}
	if cache == nil {
		return nil, errors.New("cache is required")
	}
	return &Guard{codec: codec, cache: cache}, nil
}

// Verify decodes token at now and claims its nonce. A nonce seen before yields
// an error with code gpsjwt.ErrCodeReplayed.
func (g *Guard) Verify(ctx context.Context, token string, now time.Time) (*gpsjwt.LocationClaim, error) {
	claim, err := g.codec.Decode(token, now)
	if err != nil {
		return nil, err
	}
	fresh, err := g.cache.Claim(ctx, claim.Nonce, claim.ExpiresAt)
	if err != nil {
		return nil, gpsjwt.NewError(gpsjwt.ErrCodeInternal, fmt.Errorf("replay cache: %w", err))
	}
	if !fresh {
		return nil, gpsjwt.NewError(gpsjwt.ErrCodeReplayed, fmt.Errorf("nonce %q already used", claim.Nonce))
	}
	return claim, nil
}
