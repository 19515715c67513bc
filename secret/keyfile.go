package secret

import (
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"

	"github.com/lestrrat-go/jwx/v2/jwk"
)

const keyFileMode os.FileMode = 0o600

// ErrInsecurePermissions reports a key file readable by group or others.
var ErrInsecurePermissions = errors.New("key file has insecure permissions")

// WriteKeyFile stores key at path with owner-only permissions. The key is
// written as hex, or as an "oct" JWK carrying kid when format is FormatJWK.
func WriteKeyFile(path string, key []byte, format Format, kid string) error {
	var data []byte
	switch format {
	case FormatHex, FormatAuto, "":
		data = []byte(hex.EncodeToString(key) + "\n")
	case FormatJWK:
		encoded, err := encodeJWK(key, kid)
		if err != nil {
			return err
		}
		data = encoded
	default:
		return fmt.Errorf("cannot write key file as %q", format)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return fmt.Errorf("create key dir: %w", err)
	}
	if err := os.WriteFile(path, data, keyFileMode); err != nil {
		return fmt.Errorf("write key file %s: %w", path, err)
	}
	// WriteFile keeps the mode of an existing file.
	if err := os.Chmod(path, keyFileMode); err != nil {
		return fmt.Errorf("chmod key file %s: %w", path, err)
	}
	return nil
}

// CheckKeyFile verifies that path exists and is only accessible by its owner.
func CheckKeyFile(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("stat key file: %w", err)
	}
	if info.IsDir() {
		return fmt.Errorf("key file %s is a directory", path)
	}
	if runtime.GOOS == "windows" {
		return nil
	}
	if perm := info.Mode().Perm(); perm&0o077 != 0 {
		return fmt.Errorf("%w: %s has mode %04o", ErrInsecurePermissions, path, perm)
	}
	return nil
}

// ValidateKeyFile loads path and checks the key length in bytes.
func ValidateKeyFile(path string, format Format, length int) ([]byte, error) {
	key, err := Load(path, format)
	if err != nil {
		return nil, err
	}
	if len(key) != length {
		return nil, fmt.Errorf("key file %s holds %d bytes, expected %d", path, len(key), length)
	}
	return key, nil
}

func encodeJWK(key []byte, kid string) ([]byte, error) {
	k, err := jwk.FromRaw(key)
	if err != nil {
		return nil, fmt.Errorf("build jwk: %w", err)
	}
	if kid != "" {
		if err := k.Set(jwk.KeyIDKey, kid); err != nil {
			return nil, fmt.Errorf("set kid: %w", err)
		}
	}
	data, err := json.MarshalIndent(k, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encode jwk: %w", err)
	}
	return append(data, '\n'), nil
}
