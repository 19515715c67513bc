package gpsjwt

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"golang.org/x/oauth2"
)

func TestTokenSource_FreshTokenPerCall(t *testing.T) {
	codec := newTestCodec(t, CodecConfig{Secret: []byte("source")})
	source, err := NewTokenSource(context.Background(), codec, StaticFix(DefaultDevFix().Claim()))
	if err != nil {
		t.Fatalf("NewTokenSource: %v", err)
	}

	first, err := source.Token()
	if err != nil {
		t.Fatalf("Token: %v", err)
	}
	second, err := source.Token()
	if err != nil {
		t.Fatalf("Token second call: %v", err)
	}
	if first.AccessToken == second.AccessToken {
		t.Fatal("expected a new token on every call")
	}
	if first.Type() != "Bearer" {
		t.Fatalf("unexpected token type: %s", first.Type())
	}

	a, err := codec.Decode(first.AccessToken, time.Now())
	if err != nil {
		t.Fatalf("Decode first: %v", err)
	}
	b, err := codec.Decode(second.AccessToken, time.Now())
	if err != nil {
		t.Fatalf("Decode second: %v", err)
	}
	if a.Nonce == b.Nonce {
		t.Fatalf("expected distinct nonces, got %s twice", a.Nonce)
	}
	if !first.Expiry.Equal(a.ExpiresAt) {
		t.Fatalf("oauth2 expiry %s does not match claim expiry %s", first.Expiry, a.ExpiresAt)
	}
	if a.Subject != "testuser" {
		t.Fatalf("unexpected subject: %s", a.Subject)
	}
}

func TestTokenSource_DefaultSubject(t *testing.T) {
	codec := newTestCodec(t, CodecConfig{Secret: []byte("source")})
	source, err := NewTokenSource(context.Background(), codec, StaticFix(NewLocationClaim(1, 2)), WithSubject("device-7"))
	if err != nil {
		t.Fatalf("NewTokenSource: %v", err)
	}
	tok, err := source.Token()
	if err != nil {
		t.Fatalf("Token: %v", err)
	}
	claim, err := codec.Decode(tok.AccessToken, time.Now())
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if claim.Subject != "device-7" {
		t.Fatalf("unexpected subject: %s", claim.Subject)
	}
}

func TestTokenSource_FixError(t *testing.T) {
	expected := errors.New("no satellite fix")
	codec := newTestCodec(t, CodecConfig{Secret: []byte("source")})
	source, err := NewTokenSource(context.Background(), codec, func(context.Context) (LocationClaim, error) {
		return LocationClaim{}, expected
	})
	if err != nil {
		t.Fatalf("NewTokenSource: %v", err)
	}
	if _, err := source.Token(); !errors.Is(err, expected) {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestTokenSource_InvalidFix(t *testing.T) {
	codec := newTestCodec(t, CodecConfig{Secret: []byte("source")})
	source, err := NewTokenSource(context.Background(), codec, StaticFix(NewLocationClaim(95, 0)))
	if err != nil {
		t.Fatalf("NewTokenSource: %v", err)
	}
	_, err = source.Token()
	assertCode(t, err, ErrCodeOutOfRange)
}

func TestTokenSource_PropagatesCancellation(t *testing.T) {
	codec := newTestCodec(t, CodecConfig{Secret: []byte("source")})

	var calls int32
	ctx, cancel := context.WithCancel(context.Background())
	source, err := NewTokenSource(ctx, codec, func(ctx context.Context) (LocationClaim, error) {
		atomic.AddInt32(&calls, 1)
		if err := ctx.Err(); err != nil {
			return LocationClaim{}, err
		}
		return NewLocationClaim(1, 1), nil
	})
	if err != nil {
		t.Fatalf("NewTokenSource: %v", err)
	}

	if _, err := source.Token(); err != nil {
		t.Fatalf("Token before cancel: %v", err)
	}
	cancel()
	if _, err := source.Token(); !errors.Is(err, context.Canceled) {
		t.Fatalf("Token after cancel: expected context.Canceled, got %v", err)
	}
	if got := atomic.LoadInt32(&calls); got != 2 {
		t.Fatalf("expected fix invoked twice, got %d", got)
	}
}

func TestTokenSource_DrivesOAuth2Transport(t *testing.T) {
	codec := newTestCodec(t, CodecConfig{Secret: []byte("transport")})
	source, err := NewTokenSource(context.Background(), codec, StaticFix(NewLocationClaim(51.5, -0.12)))
	if err != nil {
		t.Fatalf("NewTokenSource: %v", err)
	}

	seen := make(map[string]struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token, err := BearerToken(r.Header.Get("Authorization"))
		if err != nil {
			w.WriteHeader(HTTPStatus(err))
			return
		}
		claim, err := codec.Decode(token, time.Now())
		if err != nil {
			w.WriteHeader(HTTPStatus(err))
			return
		}
		seen[claim.Nonce] = struct{}{}
		w.WriteHeader(http.StatusOK)
	}))
	t.Cleanup(server.Close)

	client := &http.Client{Transport: &oauth2.Transport{Source: source}}
	for i := 0; i < 3; i++ {
		resp, err := client.Post(server.URL+"/api/v2/gps", "application/json", nil)
		if err != nil {
			t.Fatalf("POST: %v", err)
		}
		resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			t.Fatalf("unexpected status: %d", resp.StatusCode)
		}
	}
	if len(seen) != 3 {
		t.Fatalf("expected 3 distinct nonces, got %d", len(seen))
	}
}

func TestNewTokenSource_RequiresArguments(t *testing.T) {
	codec := newTestCodec(t, CodecConfig{Secret: []byte("source")})
	if _, err := NewTokenSource(context.Background(), nil, StaticFix(NewLocationClaim(1, 1))); err == nil {
		t.Fatal("expected error for nil codec")
	}
	if _, err := NewTokenSource(context.Background(), codec, nil); err == nil {
		t.Fatal("expected error for nil fix")
	}
}
