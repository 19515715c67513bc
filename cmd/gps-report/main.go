package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/lestrrat-go/jwx/v2/jwa"
	"github.com/lestrrat-go/jwx/v2/jwt"
	"github.com/rs/zerolog"

	"github.com/bionicotaku/lingo-utils-gpsjwt"
	"github.com/bionicotaku/lingo-utils-gpsjwt/internal/cli"
	"github.com/bionicotaku/lingo-utils-gpsjwt/internal/envfile"
	"github.com/bionicotaku/lingo-utils-gpsjwt/position"
	"github.com/bionicotaku/lingo-utils-gpsjwt/report"
	"github.com/bionicotaku/lingo-utils-gpsjwt/secret"
)

var scenarios = []string{"valid", "replay", "expired", "wrong-key", "missing-fields"}

func main() {
	logger := cli.NewLogger(os.Stderr, false)
	envPath := envfile.DefaultPath()
	cli.LoadEnv(envPath, logger)

	dev := gpsjwt.DefaultDevFix()
	var meta cli.Metadata

	endpoint := flag.String("endpoint", envfile.Lookup("GPSJWT_ENDPOINT", "http://127.0.0.1:8080"), "Endpoint base URL or full URL (env GPSJWT_ENDPOINT)")
	secretFlag := flag.String("secret", "", "Signing secret (env GPSJWT_SECRET)")
	keyFile := flag.String("key-file", "", "Key file holding the secret (env GPSJWT_KEY_FILE)")
	keyFormat := flag.String("key-format", string(secret.FormatAuto), "Key file format: auto, hex, raw or jwk")
	scenario := flag.String("scenario", "all", "One of all, "+strings.Join(scenarios, ", "))
	lat := flag.Float64("lat", dev.Latitude, "Latitude in degrees")
	lon := flag.Float64("lon", dev.Longitude, "Longitude in degrees")
	subject := flag.String("subject", dev.Subject, "Subject claim")
	nmeaFile := flag.String("nmea", "", "Read fixes from an NMEA log file instead of -lat/-lon")
	serialPort := flag.String("serial", "", "Read fixes from a GPS receiver on this serial port")
	baud := flag.Int("baud", 9600, "Serial baud rate")
	count := flag.Int("count", 1, "Number of valid reports to send (0 runs until interrupted)")
	interval := flag.Duration("interval", 5*time.Second, "Delay between valid reports")
	timeout := flag.Duration("timeout", 10*time.Second, "HTTP timeout")
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
	codec, err := gpsjwt.NewCodec(gpsjwt.CodecConfig{Secret: key})
	if err != nil {
		logger.Fatal().Err(err).Msg("create codec")
	}
	reporter, err := report.New(*endpoint, logger, report.WithTimeout(*timeout))
	if err != nil {
		logger.Fatal().Err(err).Msg("create reporter")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	fix, closeFix, err := openFix(*nmeaFile, *serialPort, *baud)
	if err != nil {
		logger.Fatal().Err(err).Msg("open fix source")
	}
	defer closeFix()
	if fix == nil {
		base := gpsjwt.NewLocationClaim(*lat, *lon)
		meta.Apply(&base)
		fix = gpsjwt.StaticFix(base)
	}

	d := driver{
		ctx:      ctx,
		logger:   logger,
		codec:    codec,
		reporter: reporter,
		fix:      fix,
		subject:  *subject,
	}

	selected := scenarios
	if *scenario != "all" {
		selected = []string{*scenario}
	}
	failed := false
	for _, name := range selected {
		var err error
		switch name {
		case "valid":
			err = d.valid(*count, *interval)
		case "replay":
			err = d.replay()
		case "expired":
			err = d.expired()
		case "wrong-key":
			err = d.wrongKey()
		case "missing-fields":
			err = d.missingFields(key)
		default:
			logger.Fatal().Str("scenario", name).Msg("unknown scenario")
		}
		if err != nil {
			failed = true
			logger.Error().Err(err).Str("scenario", name).Msg("scenario failed")
		}
	}
	if failed {
		os.Exit(1)
	}
}

func openFix(nmeaFile, serialPort string, baud int) (gpsjwt.FixFunc, func(), error) {
	switch {
	case nmeaFile != "" && serialPort != "":
		return nil, nil, errors.New("-nmea and -serial are mutually exclusive")
	case nmeaFile != "":
		f, err := os.Open(nmeaFile)
		if err != nil {
			return nil, nil, err
		}
		return position.NewReader(f).Next, func() { _ = f.Close() }, nil
	case serialPort != "":
		r, err := position.OpenSerial(serialPort, baud, 0)
		if err != nil {
			return nil, nil, err
		}
		return r.Next, func() { _ = r.Close() }, nil
	}
	return nil, func() {}, nil
}

type driver struct {
	ctx      context.Context
	logger   zerolog.Logger
	codec    *gpsjwt.Codec
	reporter *report.Reporter
	fix      gpsjwt.FixFunc
	subject  string
}

func (d driver) valid(count int, interval time.Duration) error {
	source, err := gpsjwt.NewTokenSource(d.ctx, d.codec, d.fix, gpsjwt.WithSubject(d.subject))
	if err != nil {
		return err
	}
	for i := 0; count == 0 || i < count; i++ {
		if i > 0 {
			select {
			case <-d.ctx.Done():
				return nil
			case <-time.After(interval):
			}
		}
		result, err := d.reporter.Report(d.ctx, source)
		if err != nil {
			return err
		}
		printResult("valid", result)
		if !result.OK() {
			return fmt.Errorf("valid token rejected with %d", result.StatusCode)
		}
	}
	return nil
}

func (d driver) replay() error {
	claim, err := d.fix(d.ctx)
	if err != nil {
		return err
	}
	claim.Subject = d.subject
	token, err := d.codec.Encode(claim)
	if err != nil {
		return err
	}
	for i, want := range []bool{true, false} {
		result, err := d.reporter.ReportToken(d.ctx, token)
		if err != nil {
			return err
		}
		printResult(fmt.Sprintf("replay #%d", i+1), result)
		if result.OK() != want {
			return fmt.Errorf("attempt %d answered %d", i+1, result.StatusCode)
		}
	}
	return nil
}

func (d driver) expired() error {
	claim, err := d.fix(d.ctx)
	if err != nil {
		return err
	}
	now := time.Now()
	claim.Subject = d.subject
	claim.IssuedAt = now.Add(-90 * time.Second)
	claim.ExpiresAt = now.Add(-60 * time.Second)
	token, err := d.codec.Encode(claim)
	if err != nil {
		return err
	}
	return d.expectRejected("expired", token)
}

func (d driver) wrongKey() error {
	claim, err := d.fix(d.ctx)
	if err != nil {
		return err
	}
	claim.Subject = d.subject
	token, err := gpsjwt.Encode(claim, []byte("wrongkey"))
	if err != nil {
		return err
	}
	return d.expectRejected("wrong-key", token)
}

// missingFields signs a token without lat/lon, which the codec refuses to build.
func (d driver) missingFields(key []byte) error {
	now := time.Now()
	tok, err := jwt.NewBuilder().
		Subject(d.subject).
		IssuedAt(now).
		Expiration(now.Add(gpsjwt.DefaultTTL)).
		JwtID(uuid.NewString()).
		Build()
	if err != nil {
		return err
	}
	signed, err := jwt.Sign(tok, jwt.WithKey(jwa.HS256, key))
	if err != nil {
		return err
	}
	return d.expectRejected("missing-fields", string(signed))
}

func (d driver) expectRejected(name, token string) error {
	result, err := d.reporter.ReportToken(d.ctx, token)
	if err != nil {
		return err
	}
	printResult(name, result)
	if result.OK() {
		return fmt.Errorf("%s token was accepted", name)
	}
	return nil
}

func printResult(name string, result *report.Result) {
	fmt.Printf("== %s ==\n", name)
	fmt.Printf("status       : %d\n", result.StatusCode)
	switch {
	case result.Ack != nil:
		fmt.Printf("message      : %s\n", result.Ack.Message)
		fmt.Printf("position     : %v, %v\n", result.Ack.Data.Latitude, result.Ack.Data.Longitude)
		if result.Ack.Data.Timestamp != 0 {
			fmt.Printf("timestamp    : %s\n", time.Unix(result.Ack.Data.Timestamp, 0).Format(time.RFC3339))
		}
	case result.Rejection != nil:
		fmt.Printf("error        : %s\n", result.Rejection.Error)
		if result.Rejection.Code != "" {
			fmt.Printf("code         : %s\n", result.Rejection.Code)
		}
	default:
		fmt.Printf("body         : %s\n", strings.TrimSpace(string(result.Body)))
	}
}
