package secret

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

const (
	DefaultIterations  = 100_000
	DefaultKeyLength   = 32
	DefaultKeyFilePath = "/etc/keys/jwt-key.txt"

	defaultSaltText = "gpsjwt_default_salt"
	saltLength      = 32
)

// KDFConfig is the on-disk configuration of the PIN key tool.
type KDFConfig struct {
	Salt        string `yaml:"salt"`          // Hex encoded PBKDF2 salt
	Iterations  int    `yaml:"iterations"`    // PBKDF2 iteration count
	KeyLength   int    `yaml:"key_length"`    // Derived key length in bytes
	KeyFilePath string `yaml:"key_file_path"` // Where the derived key is written
	Format      Format `yaml:"format"`        // Key file encoding: hex or jwk
}

// DefaultKDFConfig returns the configuration used when no file exists.
func DefaultKDFConfig() KDFConfig {
	return KDFConfig{
		Salt:        hex.EncodeToString([]byte(defaultSaltText)),
		Iterations:  DefaultIterations,
		KeyLength:   DefaultKeyLength,
		KeyFilePath: DefaultKeyFilePath,
		Format:      FormatHex,
	}
}

// LoadKDFConfig reads a YAML config. A missing file yields the defaults; keys
// absent from the file keep their default values.
func LoadKDFConfig(path string) (KDFConfig, error) {
	cfg := DefaultKDFConfig()
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return cfg, nil
	}
	if err != nil {
		return KDFConfig{}, fmt.Errorf("read config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return KDFConfig{}, fmt.Errorf("parse config %s: %w", path, err)
	}
	cfg.normalize()
	if err := cfg.validate(); err != nil {
		return KDFConfig{}, fmt.Errorf("config %s: %w", path, err)
	}
	return cfg, nil
}

// Save writes cfg as YAML, creating parent directories as needed.
func (c KDFConfig) Save(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("encode config: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write config %s: %w", path, err)
	}
	return nil
}

// GenerateSalt replaces the salt with 32 random bytes.
func (c *KDFConfig) GenerateSalt() error {
	buf := make([]byte, saltLength)
	if _, err := rand.Read(buf); err != nil {
		return fmt.Errorf("generate salt: %w", err)
	}
	c.Salt = hex.EncodeToString(buf)
	return nil
}

// SaltBytes decodes the hex salt.
func (c KDFConfig) SaltBytes() ([]byte, error) {
	salt, err := hex.DecodeString(strings.TrimSpace(c.Salt))
	if err != nil {
		return nil, fmt.Errorf("invalid salt: %w", err)
	}
	if len(salt) == 0 {
		return nil, errors.New("salt is empty")
	}
	return salt, nil
}

func (c *KDFConfig) normalize() {
	if c.Iterations == 0 {
		c.Iterations = DefaultIterations
	}
	if c.KeyLength == 0 {
		c.KeyLength = DefaultKeyLength
	}
	if c.KeyFilePath == "" {
		c.KeyFilePath = DefaultKeyFilePath
	}
	if c.Format == "" || c.Format == FormatAuto {
		c.Format = FormatHex
	}
}

func (c KDFConfig) validate() error {
	if c.Iterations < 0 {
		return fmt.Errorf("iterations must be positive, got %d", c.Iterations)
	}
	if c.KeyLength < 16 {
		return fmt.Errorf("key_length must be at least 16 bytes, got %d", c.KeyLength)
	}
	if c.Format != FormatHex && c.Format != FormatJWK {
		return fmt.Errorf("key file format %q is not hex or jwk", c.Format)
	}
	if _, err := c.SaltBytes(); err != nil {
		return err
	}
	return nil
}
