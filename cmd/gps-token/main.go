package main

import (
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/bionicotaku/lingo-utils-gpsjwt"
	"github.com/bionicotaku/lingo-utils-gpsjwt/internal/cli"
	"github.com/bionicotaku/lingo-utils-gpsjwt/internal/envfile"
	"github.com/bionicotaku/lingo-utils-gpsjwt/report"
	"github.com/bionicotaku/lingo-utils-gpsjwt/secret"
)

func main() {
	logger := cli.NewLogger(os.Stderr, false)
	envPath := envfile.DefaultPath()
	cli.LoadEnv(envPath, logger)

	dev := gpsjwt.DefaultDevFix()
	var meta cli.Metadata

	secretFlag := flag.String("secret", "", "Signing secret (env GPSJWT_SECRET, falls back to the development secret)")
	keyFile := flag.String("key-file", "", "Key file holding the secret (env GPSJWT_KEY_FILE)")
	keyFormat := flag.String("key-format", string(secret.FormatAuto), "Key file format: auto, hex, raw or jwk")
	lat := flag.Float64("lat", dev.Latitude, "Latitude in degrees")
	lon := flag.Float64("lon", dev.Longitude, "Longitude in degrees")
	subject := flag.String("subject", "", "Optional subject claim")
	kid := flag.String("kid", "", "Optional key id header")
	ttl := flag.Duration("ttl", gpsjwt.DefaultTTL, "Token lifetime")
	endpoint := flag.String("endpoint", envfile.Lookup("GPSJWT_ENDPOINT", "http://127.0.0.1:8080"), "Endpoint used in the printed curl command (env GPSJWT_ENDPOINT)")
	curl := flag.Bool("curl", true, "Print a curl command using the token")
	envFlag := flag.String("env", envPath, "Path to .env file")
	verbose := flag.Bool("v", false, "Verbose logging")
	meta.Register(flag.CommandLine)
	flag.Parse()

	logger = cli.NewLogger(os.Stderr, *verbose)
	if *envFlag != "" && *envFlag != envPath {
		cli.LoadEnv(*envFlag, logger)
	}

	format, err := secret.ParseFormat(*keyFormat)
	if err != nil {
		logger.Fatal().Err(err).Msg("invalid -key-format")
	}
	key, err := secret.Resolve(*secretFlag, *keyFile, format)
	if err != nil {
		logger.Warn().Err(err).Msg("using development secret")
		key = []byte(dev.Secret)
	}

	codec, err := gpsjwt.NewCodec(gpsjwt.CodecConfig{Secret: key, KeyID: *kid, TTL: *ttl})
	if err != nil {
		logger.Fatal().Err(err).Msg("create codec")
	}

	claim := gpsjwt.NewLocationClaim(*lat, *lon)
	claim.Subject = *subject
	meta.Apply(&claim)

	token, sealed, err := codec.Seal(claim)
	if err != nil {
		logger.Fatal().Err(err).Msg("encode token")
	}
	logger.Debug().
		Str("jti", sealed.Nonce).
		Time("iat", sealed.IssuedAt).
		Time("exp", sealed.ExpiresAt).
		Msg("token sealed")

	fmt.Println(token)
	if *curl {
		reporter, err := report.New(*endpoint, logger)
		if err != nil {
			logger.Fatal().Err(err).Msg("invalid -endpoint")
		}
		fmt.Fprintf(os.Stderr, "\ncurl -X POST -H 'Authorization: Bearer %s' -H 'Content-Type: application/json' -d '{}' %s\n", token, reporter.Endpoint())
		fmt.Fprintf(os.Stderr, "valid until %s\n", sealed.ExpiresAt.Local().Format(time.RFC3339))
	}
}
