package position

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/adrianmo/go-nmea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	gpsjwt "github.com/bionicotaku/lingo-utils-gpsjwt"
)

// sentence frames body with the leading '$' and its XOR checksum.
func sentence(body string) string {
	var sum byte
	for i := 0; i < len(body); i++ {
		sum ^= body[i]
	}
	return fmt.Sprintf("$%s*%02X", body, sum)
}

const (
	ggaBody        = "GPGGA,123519,4807.038,N,01131.000,E,1,08,0.9,545.4,M,46.9,M,,"
	ggaNoFixBody   = "GPGGA,123518,4807.038,N,01131.000,E,0,00,,,M,,M,,"
	ggaNoAltBody   = "GPGGA,123519,4807.038,N,01131.000,E,1,08,0.9,,M,,M,,"
	rmcBody        = "GPRMC,123519,A,4807.038,N,01131.000,E,022.4,084.4,230394,003.1,W"
	rmcVoidBody    = "GPRMC,123519,V,4807.038,N,01131.000,E,022.4,084.4,230394,003.1,W"
	rmcOtherEpoch  = "GPRMC,123517,A,4807.038,N,01131.000,E,022.4,084.4,230394,003.1,W"
	wantLatitude   = 48.1173
	wantLongitude  = 11.516667
	wantAltitude   = 545.4
	wantAccuracy   = 4.5
	wantSpeed      = 22.4 * knotsToMetersPerSecond
	wantHeading    = 84.4
	coordTolerance = 1e-5
)

func TestFix_GGA(t *testing.T) {
	s, err := nmea.Parse(sentence(ggaBody))
	require.NoError(t, err)

	var fix Fix
	require.True(t, fix.Apply(s))
	require.True(t, fix.Valid())

	claim := fix.Claim()
	assert.InDelta(t, wantLatitude, *claim.Latitude, coordTolerance)
	assert.InDelta(t, wantLongitude, *claim.Longitude, coordTolerance)
	require.NotNil(t, claim.Altitude)
	assert.InDelta(t, wantAltitude, *claim.Altitude, 1e-9)
	require.NotNil(t, claim.Accuracy)
	assert.InDelta(t, wantAccuracy, *claim.Accuracy, 1e-9)
	assert.Nil(t, claim.Speed)
	assert.Nil(t, claim.Heading)
}

func TestFix_GGAWithoutAltitude(t *testing.T) {
	var fix Fix
	s, err := nmea.Parse(sentence(ggaBody))
	require.NoError(t, err)
	require.True(t, fix.Apply(s))
	require.NotNil(t, fix.Claim().Altitude)

	s, err = nmea.Parse(sentence(ggaNoAltBody))
	require.NoError(t, err)
	require.True(t, fix.Apply(s))

	claim := fix.Claim()
	assert.Nil(t, claim.Altitude, "empty altitude field must not become 0")
	require.NotNil(t, claim.Accuracy)
	assert.InDelta(t, wantAccuracy, *claim.Accuracy, 1e-9)
}

func TestFix_InvalidQualityIgnored(t *testing.T) {
	s, err := nmea.Parse(sentence(ggaNoFixBody))
	require.NoError(t, err)

	var fix Fix
	assert.False(t, fix.Apply(s))
	assert.False(t, fix.Valid())
}

func TestReader_CombinesRMCAndGGA(t *testing.T) {
	input := strings.Join([]string{
		"garbage",
		sentence(rmcBody),
		sentence(ggaBody),
	}, "\r\n")

	claim, err := NewReader(strings.NewReader(input)).Next(context.Background())
	require.NoError(t, err)
	require.NotNil(t, claim.Speed)
	assert.InDelta(t, wantSpeed, *claim.Speed, 1e-9)
	require.NotNil(t, claim.Heading)
	assert.InDelta(t, wantHeading, *claim.Heading, 1e-9)
	assert.InDelta(t, wantLatitude, *claim.Latitude, coordTolerance)
}

func TestReader_DropsMotionFromOtherEpoch(t *testing.T) {
	input := strings.Join([]string{sentence(rmcOtherEpoch), sentence(ggaBody)}, "\n")

	claim, err := NewReader(strings.NewReader(input)).Next(context.Background())
	require.NoError(t, err)
	assert.Nil(t, claim.Speed)
	assert.Nil(t, claim.Heading)
}

func TestReader_VoidRMCIgnored(t *testing.T) {
	input := strings.Join([]string{sentence(rmcVoidBody), sentence(ggaBody)}, "\n")

	claim, err := NewReader(strings.NewReader(input)).Next(context.Background())
	require.NoError(t, err)
	assert.Nil(t, claim.Speed)
}

func TestReader_SkipsBadChecksum(t *testing.T) {
	bad := "$" + ggaBody + "*00"
	input := strings.Join([]string{bad, sentence(ggaNoFixBody)}, "\n")

	_, err := NewReader(strings.NewReader(input)).Next(context.Background())
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrNoFix))
	assert.Contains(t, err.Error(), "last parse error")
}

func TestReader_SuccessiveFixes(t *testing.T) {
	second := strings.Replace(ggaBody, "123519", "123520", 1)
	input := strings.Join([]string{sentence(ggaBody), sentence(second)}, "\n")
	r := NewReader(strings.NewReader(input))

	_, err := r.Next(context.Background())
	require.NoError(t, err)
	_, err = r.Next(context.Background())
	require.NoError(t, err)
	_, err = r.Next(context.Background())
	assert.ErrorIs(t, err, ErrNoFix)
}

func TestReader_CanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewReader(strings.NewReader(sentence(ggaBody))).Next(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestReader_FeedsTokenSource(t *testing.T) {
	codec, err := gpsjwt.NewCodec(gpsjwt.CodecConfig{Secret: []byte("s3cr3t")})
	require.NoError(t, err)

	r := NewReader(strings.NewReader(sentence(ggaBody)))
	source, err := gpsjwt.NewTokenSource(context.Background(), codec, r.Next)
	require.NoError(t, err)

	tok, err := source.Token()
	require.NoError(t, err)

	claim, err := codec.Decode(tok.AccessToken, tok.Expiry.Add(-codec.TTL()))
	require.NoError(t, err)
	assert.InDelta(t, wantLatitude, *claim.Latitude, coordTolerance)
	assert.InDelta(t, wantAltitude, *claim.Altitude, 1e-9)
}

// timeoutPort behaves like a serial port with a read timeout: reads come back
// empty until the after-th call, then data is served when set.
type timeoutPort struct {
	reads  int32
	cancel context.CancelFunc
	after  int32
	data   *strings.Reader
}

func (p *timeoutPort) Read(b []byte) (int, error) {
	n := atomic.AddInt32(&p.reads, 1)
	if p.cancel != nil && n == p.after {
		p.cancel()
	}
	if p.data != nil && n > p.after {
		return p.data.Read(b)
	}
	return 0, io.EOF
}

func TestPollingReader_StopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	port := &timeoutPort{cancel: cancel, after: 3}

	_, err := newPollingReader(port).Next(ctx)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, int32(3), atomic.LoadInt32(&port.reads))
}

func TestPollingReader_WaitsThroughTimeouts(t *testing.T) {
	port := &timeoutPort{after: 5, data: strings.NewReader(sentence(ggaBody) + "\n")}

	claim, err := newPollingReader(port).Next(context.Background())
	require.NoError(t, err)
	assert.InDelta(t, wantLatitude, *claim.Latitude, coordTolerance)
}

func TestReader_CanceledTokenSource(t *testing.T) {
	codec, err := gpsjwt.NewCodec(gpsjwt.CodecConfig{Secret: []byte("s3cr3t")})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	source, err := gpsjwt.NewTokenSource(ctx, codec, newPollingReader(&timeoutPort{}).Next)
	require.NoError(t, err)

	_, err = source.Token()
	assert.ErrorIs(t, err, context.Canceled)
}

func TestOpenSerial_RequiresPort(t *testing.T) {
	_, err := OpenSerial("", 9600, 0)
	assert.Error(t, err)
}
