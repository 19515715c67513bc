// Package cli holds flag and logging helpers shared by the gps-* tools.
package cli

import (
	"flag"
	"io"
	"strconv"
	"time"

	"github.com/rs/zerolog"

	gpsjwt "github.com/bionicotaku/lingo-utils-gpsjwt"
	"github.com/bionicotaku/lingo-utils-gpsjwt/internal/envfile"
)

// NewLogger returns a console logger on w; verbose enables debug output.
func NewLogger(w io.Writer, verbose bool) zerolog.Logger {
	level := zerolog.InfoLevel
	if verbose {
		level = zerolog.DebugLevel
	}
	return zerolog.New(zerolog.ConsoleWriter{Out: w, TimeFormat: time.TimeOnly}).
		Level(level).
		With().Timestamp().Logger()
}

// LoadEnv loads path into the environment, logging failures.
func LoadEnv(path string, logger zerolog.Logger) {
	if err := envfile.Load(path, logger); err != nil {
		logger.Warn().Err(err).Str("file", path).Msg("load env file")
	}
}

// OptionalFloat is a float flag that remembers whether it was set.
type OptionalFloat struct {
	value *float64
}

// String implements flag.Value.
func (f *OptionalFloat) String() string {
	if f == nil || f.value == nil {
		return ""
	}
	return strconv.FormatFloat(*f.value, 'f', -1, 64)
}

// Set implements flag.Value.
func (f *OptionalFloat) Set(s string) error {
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return err
	}
	f.value = gpsjwt.Float64(v)
	return nil
}

// Ptr returns the parsed value, or nil when the flag was not given.
func (f *OptionalFloat) Ptr() *float64 {
	return f.value
}

// Metadata groups the optional reading flags.
type Metadata struct {
	Accuracy OptionalFloat
	Altitude OptionalFloat
	Speed    OptionalFloat
	Heading  OptionalFloat
}

// Register adds -accuracy, -altitude, -speed and -heading to fs.
func (m *Metadata) Register(fs *flag.FlagSet) {
	fs.Var(&m.Accuracy, "accuracy", "Horizontal accuracy in meters (optional)")
	fs.Var(&m.Altitude, "altitude", "Altitude in meters (optional)")
	fs.Var(&m.Speed, "speed", "Speed in m/s (optional)")
	fs.Var(&m.Heading, "heading", "Heading in degrees 0-360 (optional)")
}

// Apply copies the flags that were set onto claim.
func (m *Metadata) Apply(claim *gpsjwt.LocationClaim) {
	if v := m.Accuracy.Ptr(); v != nil {
		claim.Accuracy = v
	}
	if v := m.Altitude.Ptr(); v != nil {
		claim.Altitude = v
	}
	if v := m.Speed.Ptr(); v != nil {
		claim.Speed = v
	}
	if v := m.Heading.Ptr(); v != nil {
		claim.Heading = v
	}
}
