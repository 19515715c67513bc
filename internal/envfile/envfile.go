// Package envfile loads KEY=VALUE files into the process environment for the
// command line tools.
package envfile

import (
	"bufio"
	"os"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog"
)

// PathEnv names the variable that overrides the default file location.
const PathEnv = "GPSJWT_ENV_FILE"

// DefaultPath returns $GPSJWT_ENV_FILE or ".env".
func DefaultPath() string {
	if path := os.Getenv(PathEnv); path != "" {
		return path
	}
	return ".env"
}

// Load sets every variable in path that is not already present in the
// environment. A missing file is not an error. Malformed lines are logged and
// skipped.
func Load(path string, logger zerolog.Logger) error {
	if path == "" {
		return nil
	}
	file, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	lineNum := 0
	for scanner.Scan() {
		lineNum++
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") || strings.HasPrefix(line, ";") {
			continue
		}
		line = strings.TrimPrefix(line, "export ")
		key, value, ok := strings.Cut(line, "=")
		if !ok {
			logger.Warn().Str("file", filepath.Base(path)).Int("line", lineNum).Msg("invalid env line")
			continue
		}
		key = strings.TrimSpace(key)
		value = strings.Trim(strings.TrimSpace(value), `"'`)
		if key == "" {
			continue
		}
		if _, present := os.LookupEnv(key); present {
			continue
		}
		if err := os.Setenv(key, value); err != nil {
			logger.Warn().Err(err).Str("key", key).Msg("set env")
		}
	}
	return scanner.Err()
}

// Lookup returns the value of key, or fallback when it is unset or empty.
func Lookup(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
