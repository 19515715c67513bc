package gpsjwt

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/lestrrat-go/jwx/v2/jwa"
	"github.com/lestrrat-go/jwx/v2/jws"
	"github.com/lestrrat-go/jwx/v2/jwt"
)

const tokenType = "JWT"

// segmentEncoding rejects non-canonical encodings of a segment.
var segmentEncoding = base64.RawURLEncoding.Strict()

var (
	newNonce = uuid.NewString

	errSignature = errors.New("signature verification failed")
)

// Codec encodes location claims into HS256-signed tokens and decodes them back.
// A Codec is immutable and safe for concurrent use.
type Codec struct {
	cfg CodecConfig
}

// NewCodec builds a codec from the given configuration.
func NewCodec(cfg CodecConfig) (*Codec, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	clone := cfg
	clone.Secret = append([]byte(nil), cfg.Secret...)
	clone.normalize()
	return &Codec{cfg: clone}, nil
}

// TTL reports the lifetime applied to claims without an expiry.
func (c *Codec) TTL() time.Duration {
	return c.cfg.TTL
}

// Prepare fills issue time, expiry and nonce when unset, then validates the claim.
func (c *Codec) Prepare(claim LocationClaim) (LocationClaim, error) {
	out := claim.Clone()
	if out.IssuedAt.IsZero() {
		out.IssuedAt = c.cfg.Clock()
	}
	out.IssuedAt = unixSeconds(out.IssuedAt)
	if out.ExpiresAt.IsZero() {
		out.ExpiresAt = out.IssuedAt.Add(c.cfg.TTL)
	}
	out.ExpiresAt = unixSeconds(out.ExpiresAt)
	if out.Nonce == "" {
		out.Nonce = newNonce()
	}

	if err := validateClaim(out); err != nil {
		return LocationClaim{}, err
	}
	if !out.ExpiresAt.After(out.IssuedAt) {
		return LocationClaim{}, fieldError(ErrCodeOutOfRange, jwt.ExpirationKey,
			fmt.Errorf("expiry %d must be after issue time %d", out.ExpiresAt.Unix(), out.IssuedAt.Unix()))
	}
	return out, nil
}

// Seal prepares and signs the claim, returning the token and the claim as signed.
func (c *Codec) Seal(claim LocationClaim) (string, LocationClaim, error) {
	prepared, err := c.Prepare(claim)
	if err != nil {
		return "", LocationClaim{}, err
	}
	token, err := c.sign(prepared)
	if err != nil {
		return "", LocationClaim{}, err
	}
	return token, prepared, nil
}

// Encode prepares and signs the claim.
func (c *Codec) Encode(claim LocationClaim) (string, error) {
	token, _, err := c.Seal(claim)
	return token, err
}

// Decode verifies token against the codec secret and validates it at now.
func (c *Codec) Decode(token string, now time.Time) (*LocationClaim, error) {
	return decode(token, c.cfg.Secret, now, c.cfg.ClockSkew, c.cfg.MaxLifetime)
}

// DecodeOption customizes a single package-level Decode call.
type DecodeOption func(*decodeOptions)

type decodeOptions struct {
	clockSkew   time.Duration
	maxLifetime time.Duration
}

// WithClockSkew accepts tokens issued up to d in the future.
func WithClockSkew(d time.Duration) DecodeOption {
	return func(o *decodeOptions) {
		o.clockSkew = d
	}
}

// WithMaxLifetime rejects tokens issued more than d before now.
func WithMaxLifetime(d time.Duration) DecodeOption {
	return func(o *decodeOptions) {
		o.maxLifetime = d
	}
}

// Encode signs claim with secret using the default policy.
func Encode(claim LocationClaim, secret []byte) (string, error) {
	codec, err := NewCodec(CodecConfig{Secret: secret})
	if err != nil {
		return "", err
	}
	return codec.Encode(claim)
}

// Decode verifies token with secret and validates it at now.
func Decode(token string, secret []byte, now time.Time, opts ...DecodeOption) (*LocationClaim, error) {
	var o decodeOptions
	for _, opt := range opts {
		opt(&o)
	}
	codec, err := NewCodec(CodecConfig{
		Secret:      secret,
		ClockSkew:   o.clockSkew,
		MaxLifetime: o.maxLifetime,
	})
	if err != nil {
		return nil, err
	}
	return codec.Decode(token, now)
}

func (c *Codec) sign(claim LocationClaim) (string, error) {
	builder := jwt.NewBuilder().
		IssuedAt(claim.IssuedAt).
		Expiration(claim.ExpiresAt).
		JwtID(claim.Nonce).
		Claim(LatitudeKey, *claim.Latitude).
		Claim(LongitudeKey, *claim.Longitude)
	if claim.Subject != "" {
		builder = builder.Subject(claim.Subject)
	}
	for key, value := range optionalFields(claim) {
		builder = builder.Claim(key, value)
	}

	tok, err := builder.Build()
	if err != nil {
		return "", newError(ErrCodeInternal, fmt.Errorf("build claims: %w", err))
	}

	hdrs := jws.NewHeaders()
	if err := hdrs.Set(jws.TypeKey, tokenType); err != nil {
		return "", newError(ErrCodeInternal, err)
	}
	if c.cfg.KeyID != "" {
		if err := hdrs.Set(jws.KeyIDKey, c.cfg.KeyID); err != nil {
			return "", newError(ErrCodeInternal, err)
		}
	}

	signed, err := jwt.Sign(tok, jwt.WithKey(jwa.HS256, c.cfg.Secret, jws.WithProtectedHeaders(hdrs)))
	if err != nil {
		return "", newError(ErrCodeInternal, fmt.Errorf("sign token: %w", err))
	}
	return string(signed), nil
}

func decode(token string, secret []byte, now time.Time, skew, maxLifetime time.Duration) (*LocationClaim, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, newError(ErrCodeMalformedToken, errors.New("token is empty"))
	}
	if strings.Count(token, ".") != 2 {
		return nil, newError(ErrCodeMalformedToken, errors.New("token must have three segments"))
	}
	segments := strings.Split(token, ".")
	for i, name := range []string{"header", "payload"} {
		if _, err := segmentEncoding.DecodeString(segments[i]); err != nil {
			return nil, newError(ErrCodeMalformedToken, fmt.Errorf("decode %s: %w", name, err))
		}
	}
	raw := []byte(token)

	msg, err := jws.Parse(raw)
	if err != nil {
		return nil, newError(ErrCodeMalformedToken, err)
	}
	sigs := msg.Signatures()
	if len(sigs) != 1 {
		return nil, newError(ErrCodeMalformedToken, fmt.Errorf("expected one signature, got %d", len(sigs)))
	}

	// Wrong algorithm, wrong key and tampering all report the same error.
	hdrs := sigs[0].ProtectedHeaders()
	if hdrs.Algorithm() != jwa.HS256 {
		return nil, newError(ErrCodeSignatureMismatch, errSignature)
	}
	// jws decodes leniently, so unused trailing bits would otherwise go unchecked.
	if _, err := segmentEncoding.DecodeString(segments[2]); err != nil {
		return nil, newError(ErrCodeSignatureMismatch, errSignature)
	}
	if _, err := jws.Verify(raw, jws.WithKey(jwa.HS256, secret)); err != nil {
		return nil, newError(ErrCodeSignatureMismatch, errSignature)
	}
	if typ := hdrs.Type(); typ != "" && !strings.EqualFold(typ, tokenType) {
		return nil, newError(ErrCodeMalformedToken, fmt.Errorf("unsupported token type %q", typ))
	}

	parsed, err := jwt.ParseInsecure(raw)
	if err != nil {
		return nil, newError(ErrCodeMalformedToken, err)
	}
	claim, err := extractClaim(parsed)
	if err != nil {
		return nil, err
	}

	now = now.UTC()
	if !now.Before(claim.ExpiresAt) {
		return nil, newError(ErrCodeExpired, fmt.Errorf("expired at %s", claim.ExpiresAt.Format(time.RFC3339)))
	}
	if maxLifetime > 0 {
		if age := now.Sub(claim.IssuedAt); age > maxLifetime {
			return nil, newError(ErrCodeExpired, fmt.Errorf("token age %s exceeds maximum %s", age, maxLifetime))
		}
	}
	if now.Add(skew).Before(claim.IssuedAt) {
		return nil, newError(ErrCodeNotYetValid, fmt.Errorf("issued at %s", claim.IssuedAt.Format(time.RFC3339)))
	}

	if err := validateClaim(*claim); err != nil {
		return nil, err
	}
	return claim, nil
}

func extractClaim(token jwt.Token) (*LocationClaim, error) {
	for _, key := range []string{jwt.IssuedAtKey, jwt.ExpirationKey, jwt.JwtIDKey} {
		if _, ok := token.Get(key); !ok {
			return nil, fieldError(ErrCodeMissingField, key, nil)
		}
	}

	claim := &LocationClaim{
		IssuedAt:  unixSeconds(token.IssuedAt()),
		ExpiresAt: unixSeconds(token.Expiration()),
		Nonce:     token.JwtID(),
		Subject:   token.Subject(),
	}

	fields := []struct {
		key string
		dst **float64
	}{
		{LatitudeKey, &claim.Latitude},
		{LongitudeKey, &claim.Longitude},
		{AccuracyKey, &claim.Accuracy},
		{AltitudeKey, &claim.Altitude},
		{SpeedKey, &claim.Speed},
		{HeadingKey, &claim.Heading},
	}
	for _, f := range fields {
		v, err := floatClaim(token, f.key)
		if err != nil {
			return nil, err
		}
		*f.dst = v
	}
	return claim, nil
}

func floatClaim(token jwt.Token, key string) (*float64, error) {
	v, ok := token.Get(key)
	if !ok || v == nil {
		return nil, nil
	}
	switch n := v.(type) {
	case float64:
		return Float64(n), nil
	case json.Number:
		f, err := n.Float64()
		if err != nil {
			return nil, fieldError(ErrCodeMalformedToken, key, err)
		}
		return Float64(f), nil
	case int64:
		return Float64(float64(n)), nil
	}
	return nil, fieldError(ErrCodeMalformedToken, key, fmt.Errorf("expected number, got %T", v))
}

func optionalFields(claim LocationClaim) map[string]float64 {
	out := make(map[string]float64, 4)
	if claim.Accuracy != nil {
		out[AccuracyKey] = *claim.Accuracy
	}
	if claim.Altitude != nil {
		out[AltitudeKey] = *claim.Altitude
	}
	if claim.Speed != nil {
		out[SpeedKey] = *claim.Speed
	}
	if claim.Heading != nil {
		out[HeadingKey] = *claim.Heading
	}
	return out
}

func validateClaim(c LocationClaim) error {
	if c.Latitude == nil {
		return fieldError(ErrCodeMissingField, LatitudeKey, nil)
	}
	if c.Longitude == nil {
		return fieldError(ErrCodeMissingField, LongitudeKey, nil)
	}
	if !inRange(*c.Latitude, -90, 90) {
		return fieldError(ErrCodeOutOfRange, LatitudeKey, fmt.Errorf("latitude %v outside [-90, 90]", *c.Latitude))
	}
	if !inRange(*c.Longitude, -180, 180) {
		return fieldError(ErrCodeOutOfRange, LongitudeKey, fmt.Errorf("longitude %v outside [-180, 180]", *c.Longitude))
	}
	if c.Accuracy != nil && !inRange(*c.Accuracy, 0, math.MaxFloat64) {
		return fieldError(ErrCodeOutOfRange, AccuracyKey, fmt.Errorf("accuracy %v must be non-negative", *c.Accuracy))
	}
	if c.Speed != nil && !inRange(*c.Speed, 0, math.MaxFloat64) {
		return fieldError(ErrCodeOutOfRange, SpeedKey, fmt.Errorf("speed %v must be non-negative", *c.Speed))
	}
	if c.Heading != nil && !inRange(*c.Heading, 0, 360) {
		return fieldError(ErrCodeOutOfRange, HeadingKey, fmt.Errorf("heading %v outside [0, 360]", *c.Heading))
	}
	if c.Altitude != nil && !inRange(*c.Altitude, -math.MaxFloat64, math.MaxFloat64) {
		return fieldError(ErrCodeOutOfRange, AltitudeKey, fmt.Errorf("altitude %v is not finite", *c.Altitude))
	}
	if !validNonce(c.Nonce) {
		return fieldError(ErrCodeOutOfRange, jwt.JwtIDKey, fmt.Errorf("invalid nonce %q", c.Nonce))
	}
	return nil
}

func inRange(v, lo, hi float64) bool {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return false
	}
	return v >= lo && v <= hi
}

func validNonce(nonce string) bool {
	if nonce == "" || len(nonce) > maxNonceLength {
		return false
	}
	for _, r := range nonce {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
		default:
			return false
		}
	}
	return true
}

func unixSeconds(t time.Time) time.Time {
	if t.IsZero() {
		return t
	}
	return time.Unix(t.Unix(), 0).UTC()
}
