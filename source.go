package gpsjwt

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/oauth2"
)

// FixFunc returns the observation to sign for the next token.
type FixFunc func(context.Context) (LocationClaim, error)

// StaticFix always reports the coordinates and metadata of claim.
// Issue time, expiry and nonce are cleared so every token is fresh.
func StaticFix(claim LocationClaim) FixFunc {
	base := claim.Clone()
	base.IssuedAt = time.Time{}
	base.ExpiresAt = time.Time{}
	base.Nonce = ""
	return func(context.Context) (LocationClaim, error) {
		return base.Clone(), nil
	}
}

// SourceOption customizes a TokenSource.
type SourceOption func(*TokenSource)

// WithSubject sets the subject on claims that do not carry one.
func WithSubject(subject string) SourceOption {
	return func(s *TokenSource) {
		s.subject = subject
	}
}

// TokenSource mints a new location token on every Token call.
// It implements oauth2.TokenSource so it can drive oauth2.Transport; it must
// not be wrapped in oauth2.ReuseTokenSource since each request needs its own nonce.
type TokenSource struct {
	ctx     context.Context
	codec   *Codec
	fix     FixFunc
	subject string
}

var _ oauth2.TokenSource = (*TokenSource)(nil)

// NewTokenSource builds a TokenSource signing fixes from fix with codec.
// ctx is passed to every fix lookup, so cancelling it stops a blocked reader.
func NewTokenSource(ctx context.Context, codec *Codec, fix FixFunc, opts ...SourceOption) (*TokenSource, error) {
	if codec == nil {
		return nil, errors.New("codec is required")
	}
	if fix == nil {
		return nil, errors.New("fix function is required")
	}
	if ctx == nil {
		ctx = context.Background()
	}
	s := &TokenSource{
		ctx:   ctx,
		codec: codec,
		fix:   fix,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Token implements oauth2.TokenSource.
func (s *TokenSource) Token() (*oauth2.Token, error) {
	claim, err := s.fix(s.ctx)
	if err != nil {
		return nil, fmt.Errorf("fetch fix: %w", err)
	}
	if claim.Subject == "" {
		claim.Subject = s.subject
	}
	token, sealed, err := s.codec.Seal(claim)
	if err != nil {
		return nil, err
	}
	return &oauth2.Token{
		AccessToken: token,
		TokenType:   "Bearer",
		Expiry:      sealed.ExpiresAt,
	}, nil
}
