package position

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/adrianmo/go-nmea"
	"github.com/tarm/serial"

	gpsjwt "github.com/bionicotaku/lingo-utils-gpsjwt"
)

// ErrNoFix is returned when the input ends before a valid position is read.
var ErrNoFix = errors.New("no valid GPS fix found")

const defaultReadTimeout = time.Second

// Reader reads NMEA sentences line by line.
type Reader struct {
	scanner *bufio.Scanner
	fix     Fix
	lastErr error
	ctx     context.Context
}

// NewReader wraps r. Reaching the end of r ends the stream.
func NewReader(r io.Reader) *Reader {
	return &Reader{scanner: bufio.NewScanner(r), ctx: context.Background()}
}

// newPollingReader wraps a source whose empty reads mean "no data yet", such
// as a serial port with a read timeout. Empty reads are retried until the
// context passed to Next is done.
func newPollingReader(src io.Reader) *Reader {
	r := &Reader{ctx: context.Background()}
	r.scanner = bufio.NewScanner(&pollReader{src: src, owner: r})
	return r
}

type pollReader struct {
	src   io.Reader
	owner *Reader
}

func (p *pollReader) Read(b []byte) (int, error) {
	for {
		n, err := p.src.Read(b)
		if n > 0 || (err != nil && !errors.Is(err, io.EOF)) {
			return n, err
		}
		if err := p.owner.ctx.Err(); err != nil {
			return 0, err
		}
	}
}

// Next reads until the next complete fix and returns it as a claim. Lines that
// fail to parse are skipped. Next has the gpsjwt.FixFunc signature so a Reader
// can feed a TokenSource directly.
func (r *Reader) Next(ctx context.Context) (gpsjwt.LocationClaim, error) {
	if err := ctx.Err(); err != nil {
		return gpsjwt.LocationClaim{}, err
	}
	r.ctx = ctx
	defer func() { r.ctx = context.Background() }()

	for r.scanner.Scan() {
		if err := ctx.Err(); err != nil {
			return gpsjwt.LocationClaim{}, err
		}
		line := strings.TrimSpace(r.scanner.Text())
		if line == "" || (line[0] != '$' && line[0] != '!') {
			continue
		}
		sentence, err := nmea.Parse(line)
		if err != nil {
			r.lastErr = err
			continue
		}
		if r.fix.Apply(sentence) {
			return r.fix.Claim(), nil
		}
	}
	if err := r.scanner.Err(); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return gpsjwt.LocationClaim{}, ctxErr
		}
		return gpsjwt.LocationClaim{}, fmt.Errorf("read nmea: %w", err)
	}
	if r.lastErr != nil {
		return gpsjwt.LocationClaim{}, fmt.Errorf("%w (last parse error: %v)", ErrNoFix, r.lastErr)
	}
	return gpsjwt.LocationClaim{}, ErrNoFix
}

// SerialReader reads fixes from a receiver attached to a serial port.
type SerialReader struct {
	*Reader
	port *serial.Port
}

// OpenSerial opens the named port. readTimeout bounds each read so Next can
// notice cancellation; zero or less means one second.
func OpenSerial(name string, baud int, readTimeout time.Duration) (*SerialReader, error) {
	if name == "" {
		return nil, errors.New("serial port is required")
	}
	if baud <= 0 {
		baud = 9600
	}
	if readTimeout <= 0 {
		readTimeout = defaultReadTimeout
	}
	port, err := serial.OpenPort(&serial.Config{Name: name, Baud: baud, ReadTimeout: readTimeout})
	if err != nil {
		return nil, fmt.Errorf("open serial %s: %w", name, err)
	}
	return &SerialReader{Reader: newPollingReader(port), port: port}, nil
}

// Close releases the port.
func (s *SerialReader) Close() error {
	return s.port.Close()
}
