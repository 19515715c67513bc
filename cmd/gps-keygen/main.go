package main

import (
	"bufio"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/bionicotaku/lingo-utils-gpsjwt/internal/cli"
	"github.com/bionicotaku/lingo-utils-gpsjwt/internal/envfile"
	"github.com/bionicotaku/lingo-utils-gpsjwt/secret"
)

const pinEnv = "GPS_JWT_PIN"

func main() {
	logger := cli.NewLogger(os.Stderr, false)
	envPath := envfile.DefaultPath()
	cli.LoadEnv(envPath, logger)

	configPath := flag.String("config", envfile.Lookup("GPSJWT_KDF_CONFIG", "/etc/gpsjwt/kdf.yaml"), "KDF config file (env GPSJWT_KDF_CONFIG)")
	pin := flag.String("pin", "", "8-digit PIN")
	input := flag.String("input", "flag", "PIN source: flag, stdin or env ("+pinEnv+")")
	kid := flag.String("kid", "", "Key id stored in JWK key files")
	generateSalt := flag.Bool("generate-salt", false, "Generate a new random salt and save it to the config")
	validateKey := flag.Bool("validate-key", false, "Check that the configured key file holds a key of the configured length")
	check := flag.Bool("check", false, "Check key file presence, permissions and "+secret.EnvKeyFile)
	envFlag := flag.String("env", envPath, "Path to .env file")
	verbose := flag.Bool("v", false, "Verbose logging")
	flag.Parse()

	logger = cli.NewLogger(os.Stderr, *verbose)
	if *envFlag != "" && *envFlag != envPath {
		cli.LoadEnv(*envFlag, logger)
	}

	cfg, err := secret.LoadKDFConfig(*configPath)
	if err != nil {
		logger.Fatal().Err(err).Msg("load config")
	}
	logger.Debug().
		Str("config", *configPath).
		Int("iterations", cfg.Iterations).
		Int("key_length", cfg.KeyLength).
		Str("key_file", cfg.KeyFilePath).
		Msg("configuration loaded")

	switch {
	case *generateSalt:
		if err := cfg.GenerateSalt(); err != nil {
			logger.Fatal().Err(err).Msg("generate salt")
		}
		if err := cfg.Save(*configPath); err != nil {
			logger.Fatal().Err(err).Msg("save config")
		}
		logger.Info().Str("config", *configPath).Str("salt", cfg.Salt).Msg("new salt generated and saved")

	case *check:
		if err := secret.CheckKeyFile(cfg.KeyFilePath); err != nil {
			logger.Fatal().Err(err).Msg("key file check failed")
		}
		logger.Info().Str("key_file", cfg.KeyFilePath).Msg("key file present with owner-only permissions")
		switch path := os.Getenv(secret.EnvKeyFile); {
		case path == "":
			logger.Warn().Msg(secret.EnvKeyFile + " is not set")
		case path != cfg.KeyFilePath:
			logger.Warn().Str("env", path).Str("expected", cfg.KeyFilePath).Msg(secret.EnvKeyFile + " points elsewhere")
		default:
			logger.Info().Str("env", path).Msg(secret.EnvKeyFile + " matches")
		}

	case *validateKey:
		if _, err := secret.ValidateKeyFile(cfg.KeyFilePath, cfg.Format, cfg.KeyLength); err != nil {
			logger.Fatal().Err(err).Msg("key validation failed")
		}
		logger.Info().Str("key_file", cfg.KeyFilePath).Int("bytes", cfg.KeyLength).Msg("key validation successful")

	default:
		value, err := readPIN(*input, *pin, os.Stdin, os.Stderr)
		if err != nil {
			logger.Fatal().Err(err).Msg("read pin")
		}
		key, err := secret.DeriveKey(value, cfg)
		if err != nil {
			logger.Fatal().Err(err).Msg("derive key")
		}
		logger.Debug().Int("bytes", len(key)).Msg("key derived")
		if err := secret.WriteKeyFile(cfg.KeyFilePath, key, cfg.Format, *kid); err != nil {
			logger.Fatal().Err(err).Msg("write key file")
		}
		logger.Info().Str("key_file", cfg.KeyFilePath).Str("format", string(cfg.Format)).Msg("key generated")
	}
}

func readPIN(method, value string, stdin io.Reader, prompt io.Writer) (string, error) {
	switch method {
	case "flag":
		if value == "" {
			return "", errors.New("-pin is required with -input=flag")
		}
		return value, nil
	case "stdin":
		fmt.Fprint(prompt, "Enter 8-digit PIN: ")
		line, err := bufio.NewReader(stdin).ReadString('\n')
		if err != nil && !errors.Is(err, io.EOF) {
			return "", err
		}
		line = strings.TrimSpace(line)
		if line == "" {
			return "", errors.New("no PIN entered")
		}
		return line, nil
	case "env":
		v := os.Getenv(pinEnv)
		if v == "" {
			return "", fmt.Errorf("environment variable %s not set", pinEnv)
		}
		return v, nil
	}
	return "", fmt.Errorf("unknown input method %q", method)
}
