// Package report posts location tokens to a GPS ingestion endpoint.
package report

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/oauth2"

	gpsjwt "github.com/bionicotaku/lingo-utils-gpsjwt"
)

const (
	// DefaultPath is the ingestion route of the verifier daemon.
	DefaultPath    = "/api/v2/gps"
	defaultTimeout = 10 * time.Second
	maxBodyBytes   = 1 << 20
)

// Ack is the body returned for an accepted token.
type Ack struct {
	Status   string    `json:"status"`
	Message  string    `json:"message"`
	Data     AckData   `json:"data"`
	Security *Security `json:"security,omitempty"`
}

// AckData echoes the reading taken from the token.
type AckData struct {
	Latitude         float64  `json:"latitude"`
	Longitude        float64  `json:"longitude"`
	Timestamp        int64    `json:"timestamp"`
	ProcessingTimeMS uint64   `json:"processing_time_ms"`
	Accuracy         *float64 `json:"accuracy"`
	Altitude         *float64 `json:"altitude"`
	Speed            *float64 `json:"speed"`
	Heading          *float64 `json:"heading"`
}

// Security summarizes the checks the endpoint performed.
type Security struct {
	TokenValidated          bool   `json:"token_validated"`
	ClaimsIntegrityVerified bool   `json:"claims_integrity_verified"`
	ReplayProtectionActive  bool   `json:"replay_protection_active"`
	TokenLifetimeSeconds    uint64 `json:"token_lifetime_seconds"`
	JTIVerified             bool   `json:"jti_verified"`
}

// Rejection is the body returned for a refused token.
type Rejection struct {
	Status          string `json:"status"`
	Error           string `json:"error"`
	Code            string `json:"code"`
	SecurityDetails string `json:"security_details,omitempty"`
}

// Result captures the endpoint response. Ack or Rejection is set when the
// body decodes as the matching JSON document.
type Result struct {
	StatusCode int
	Header     http.Header
	Body       []byte
	Ack        *Ack
	Rejection  *Rejection
}

// OK reports whether the endpoint accepted the token.
func (r *Result) OK() bool {
	return r.StatusCode == http.StatusOK
}

// Option customizes a Reporter.
type Option func(*Reporter)

// WithHTTPClient replaces the HTTP client. Its Transport is used as the base
// of the bearer transport in Report.
func WithHTTPClient(client *http.Client) Option {
	return func(r *Reporter) {
		if client != nil {
			r.client = client
		}
	}
}

// WithTimeout bounds each request.
func WithTimeout(d time.Duration) Option {
	return func(r *Reporter) {
		r.timeout = d
	}
}

// Reporter sends tokens to one endpoint.
type Reporter struct {
	endpoint string
	client   *http.Client
	timeout  time.Duration
	logger   zerolog.Logger
}

// New builds a Reporter. endpoint may be a base URL with no path or "/", in
// which case DefaultPath is used.
func New(endpoint string, logger zerolog.Logger, opts ...Option) (*Reporter, error) {
	endpoint = strings.TrimSpace(endpoint)
	if endpoint == "" {
		return nil, errors.New("endpoint is required")
	}
	u, err := url.Parse(endpoint)
	if err != nil {
		return nil, fmt.Errorf("parse endpoint: %w", err)
	}
	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return nil, fmt.Errorf("endpoint %q must be an http or https URL", endpoint)
	}
	if u.Path == "" || u.Path == "/" {
		u.Path = DefaultPath
		endpoint = u.String()
	}
	r := &Reporter{
		endpoint: endpoint,
		client:   http.DefaultClient,
		timeout:  defaultTimeout,
		logger:   logger.With().Str("endpoint", endpoint).Logger(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r, nil
}

// Endpoint returns the URL tokens are posted to.
func (r *Reporter) Endpoint() string {
	return r.endpoint
}

// Report posts once, taking the bearer token from source through
// oauth2.Transport.
func (r *Reporter) Report(ctx context.Context, source oauth2.TokenSource) (*Result, error) {
	if source == nil {
		return nil, errors.New("token source is required")
	}
	client := &http.Client{
		Transport: &oauth2.Transport{Source: source, Base: r.client.Transport},
		Timeout:   r.client.Timeout,
	}
	return r.post(ctx, client, nil)
}

// ReportToken posts an already encoded token.
func (r *Reporter) ReportToken(ctx context.Context, token string) (*Result, error) {
	return r.post(ctx, r.client, func(req *http.Request) {
		gpsjwt.SetBearer(req, token)
	})
}

func (r *Reporter) post(ctx context.Context, client *http.Client, authorize func(*http.Request)) (*Result, error) {
	if r.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.endpoint, bytes.NewReader([]byte("{}")))
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if authorize != nil {
		authorize(req)
	}

	start := time.Now()
	resp, err := client.Do(req)
	if err != nil {
		r.logger.Error().Err(err).Msg("post location token")
		return nil, fmt.Errorf("post %s: %w", r.endpoint, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	result := &Result{StatusCode: resp.StatusCode, Header: resp.Header, Body: body}
	r.decode(result)

	lvl := zerolog.InfoLevel
	if !result.OK() {
		lvl = zerolog.WarnLevel
	}
	r.logger.WithLevel(lvl).Int("status", resp.StatusCode).Dur("elapsed", time.Since(start)).Msg("location token posted")
	return result, nil
}

func (r *Reporter) decode(result *Result) {
	if len(result.Body) == 0 {
		return
	}
	if result.OK() {
		var ack Ack
		if err := json.Unmarshal(result.Body, &ack); err != nil {
			r.logger.Debug().Err(err).Msg("response is not an acknowledgement")
			return
		}
		result.Ack = &ack
		return
	}
	var rej Rejection
	if err := json.Unmarshal(result.Body, &rej); err != nil {
		r.logger.Debug().Err(err).Msg("response is not a rejection document")
		return
	}
	result.Rejection = &rej
}
