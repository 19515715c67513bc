package main

import (
	"bufio"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/bionicotaku/lingo-utils-gpsjwt"
	"github.com/bionicotaku/lingo-utils-gpsjwt/internal/cli"
	"github.com/bionicotaku/lingo-utils-gpsjwt/internal/envfile"
	"github.com/bionicotaku/lingo-utils-gpsjwt/secret"
)

func main() {
	logger := cli.NewLogger(os.Stderr, false)
	envPath := envfile.DefaultPath()
	cli.LoadEnv(envPath, logger)

	secretFlag := flag.String("secret", "", "Signing secret (env GPSJWT_SECRET)")
	keyFile := flag.String("key-file", "", "Key file holding the secret (env GPSJWT_KEY_FILE)")
	keyFormat := flag.String("key-format", string(secret.FormatAuto), "Key file format: auto, hex, raw or jwk")
	token := flag.String("token", os.Getenv("GPSJWT_TOKEN"), "Token to verify; '-' reads stdin (env GPSJWT_TOKEN)")
	at := flag.Int64("at", 0, "Verify as of this unix time instead of now")
	skew := flag.Duration("skew", 0, "Accepted clock skew for tokens issued in the future")
	maxAge := flag.Duration("max-age", 0, "Reject tokens older than this (0 disables)")
	envFlag := flag.String("env", envPath, "Path to .env file")
	verbose := flag.Bool("v", false, "Verbose logging")
	flag.Parse()

	logger = cli.NewLogger(os.Stderr, *verbose)
	if *envFlag != "" && *envFlag != envPath {
		cli.LoadEnv(*envFlag, logger)
		if *token == "" {
			*token = os.Getenv("GPSJWT_TOKEN")
		}
	}

	if *token == "" && flag.NArg() > 0 {
		*token = flag.Arg(0)
	}
	if *token == "-" {
		line, err := bufio.NewReader(os.Stdin).ReadString('\n')
		if err != nil && line == "" {
			logger.Fatal().Err(err).Msg("read token from stdin")
		}
		*token = strings.TrimSpace(line)
	}
	if *token == "" {
		flag.Usage()
		logger.Fatal().Msg("token is required (via -token, argument, or GPSJWT_TOKEN)")
	}

	format, err := secret.ParseFormat(*keyFormat)
	if err != nil {
		logger.Fatal().Err(err).Msg("invalid -key-format")
	}
	key, err := secret.Resolve(*secretFlag, *keyFile, format)
	if err != nil {
		logger.Fatal().Err(err).Msg("resolve secret")
	}

	codec, err := gpsjwt.NewCodec(gpsjwt.CodecConfig{Secret: key, ClockSkew: *skew, MaxLifetime: *maxAge})
	if err != nil {
		logger.Fatal().Err(err).Msg("create codec")
	}

	now := time.Now()
	if *at != 0 {
		now = time.Unix(*at, 0)
	}
	claim, err := codec.Decode(*token, now)
	if err != nil {
		logger.Error().
			Str("code", string(gpsjwt.CodeOf(err))).
			Int("http_status", gpsjwt.HTTPStatus(err)).
			Err(err).
			Msg("verification failed")
		os.Exit(1)
	}

	printClaim(claim, now)
}

func printClaim(claim *gpsjwt.LocationClaim, now time.Time) {
	fmt.Println("== Location token verified ==")
	fmt.Printf("latitude     : %v\n", *claim.Latitude)
	fmt.Printf("longitude    : %v\n", *claim.Longitude)
	printOptional("accuracy     : %v m\n", claim.Accuracy)
	printOptional("altitude     : %v m\n", claim.Altitude)
	printOptional("speed        : %v m/s\n", claim.Speed)
	printOptional("heading      : %v°\n", claim.Heading)
	if claim.Subject != "" {
		fmt.Printf("subject      : %s\n", claim.Subject)
	}
	fmt.Printf("nonce        : %s\n", claim.Nonce)
	fmt.Printf("issued_at    : %s\n", claim.IssuedAt.Format(time.RFC3339))
	fmt.Printf("expires_at   : %s (in %s)\n", claim.ExpiresAt.Format(time.RFC3339), claim.ExpiresAt.Sub(now).Truncate(time.Second))
}

func printOptional(format string, v *float64) {
	if v != nil {
		fmt.Printf(format, *v)
	}
}
