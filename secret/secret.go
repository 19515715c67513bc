// Package secret loads the shared HMAC key used to sign location tokens.
//
// Keys come from an inline value, the GPSJWT_SECRET environment variable or a
// key file. Key files hold a hex encoded key (the format the verifier daemon
// reads), a JSON Web Key of type "oct", or raw text.
package secret

import (
	"bytes"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/lestrrat-go/jwx/v2/jwa"
	"github.com/lestrrat-go/jwx/v2/jwk"

	gpsjwt "github.com/bionicotaku/lingo-utils-gpsjwt"
)

const (
	// EnvSecret holds the secret text itself.
	EnvSecret = "GPSJWT_SECRET"
	// EnvKeyFile points at a key file.
	EnvKeyFile = "GPSJWT_KEY_FILE"

	minHexKeyLength = 32
)

// Format selects how a key file is interpreted.
type Format string

const (
	FormatAuto Format = "auto"
	FormatHex  Format = "hex"
	FormatRaw  Format = "raw"
	FormatJWK  Format = "jwk"
)

// ErrNoSecret is returned by Resolve when no source provides a key.
var ErrNoSecret = errors.New("no secret configured")

// ParseFormat converts a flag value into a Format. Empty means auto.
func ParseFormat(s string) (Format, error) {
	switch f := Format(strings.ToLower(strings.TrimSpace(s))); f {
	case "":
		return FormatAuto, nil
	case FormatAuto, FormatHex, FormatRaw, FormatJWK:
		return f, nil
	default:
		return "", fmt.Errorf("unknown key format %q", s)
	}
}

// Load reads a key file.
func Load(path string, format Format) ([]byte, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read key file %s: %w", path, err)
	}
	key, err := Parse(data, format)
	if err != nil {
		return nil, fmt.Errorf("key file %s: %w", path, err)
	}
	return key, nil
}

// Parse decodes key material. In auto mode a JSON object is read as a JWK, an
// even-length hex string of at least 32 characters is decoded, and anything
// else is used as raw text. Surrounding whitespace is ignored.
func Parse(data []byte, format Format) ([]byte, error) {
	trimmed := bytes.TrimSpace(data)
	if format == FormatAuto {
		format = detect(trimmed)
	}

	var key []byte
	switch format {
	case FormatHex:
		decoded, err := hex.DecodeString(string(trimmed))
		if err != nil {
			return nil, fmt.Errorf("decode hex key: %w", err)
		}
		key = decoded
	case FormatJWK:
		decoded, err := parseJWK(trimmed)
		if err != nil {
			return nil, err
		}
		key = decoded
	case FormatRaw:
		key = append([]byte(nil), trimmed...)
	default:
		return nil, fmt.Errorf("unknown key format %q", format)
	}

	if len(key) == 0 {
		return nil, gpsjwt.NewError(gpsjwt.ErrCodeInvalidSecret, errors.New("key is empty"))
	}
	return key, nil
}

// Resolve picks the first configured source: inline value, keyFile, then the
// GPSJWT_SECRET and GPSJWT_KEY_FILE environment variables.
func Resolve(inline, keyFile string, format Format) ([]byte, error) {
	if inline != "" {
		return []byte(inline), nil
	}
	if keyFile != "" {
		return Load(keyFile, format)
	}
	return FromEnv(format)
}

// FromEnv reads the key from GPSJWT_SECRET or, failing that, the file named by
// GPSJWT_KEY_FILE.
func FromEnv(format Format) ([]byte, error) {
	if v := os.Getenv(EnvSecret); v != "" {
		return []byte(v), nil
	}
	if path := strings.TrimSpace(os.Getenv(EnvKeyFile)); path != "" {
		return Load(path, format)
	}
	return nil, ErrNoSecret
}

func detect(data []byte) Format {
	if len(data) > 0 && data[0] == '{' {
		return FormatJWK
	}
	if len(data) >= minHexKeyLength && len(data)%2 == 0 && isHex(data) {
		return FormatHex
	}
	return FormatRaw
}

func isHex(data []byte) bool {
	for _, c := range data {
		switch {
		case c >= '0' && c <= '9', c >= 'a' && c <= 'f', c >= 'A' && c <= 'F':
		default:
			return false
		}
	}
	return true
}

func parseJWK(data []byte) ([]byte, error) {
	key, err := jwk.ParseKey(data)
	if err != nil {
		return nil, fmt.Errorf("parse jwk: %w", err)
	}
	if key.KeyType() != jwa.OctetSeq {
		return nil, fmt.Errorf("jwk key type %q is not %q", key.KeyType(), jwa.OctetSeq)
	}
	var raw []byte
	if err := key.Raw(&raw); err != nil {
		return nil, fmt.Errorf("extract jwk key: %w", err)
	}
	return raw, nil
}
