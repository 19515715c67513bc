// Package position turns NMEA 0183 output of a GPS receiver into location
// claims.
package position

import (
	"github.com/adrianmo/go-nmea"

	gpsjwt "github.com/bionicotaku/lingo-utils-gpsjwt"
)

const (
	// knotsToMetersPerSecond converts RMC speed over ground.
	knotsToMetersPerSecond = 0.514444
	// hdopToMeters approximates horizontal accuracy from HDOP.
	hdopToMeters = 5.0
	// ggaAltitudeField is the index of the antenna altitude in a GGA sentence.
	ggaAltitudeField = 8
)

// Fix accumulates the latest position reported by GGA and RMC sentences.
type Fix struct {
	Latitude  float64
	Longitude float64
	Altitude  *float64
	Accuracy  *float64
	Speed     *float64
	Heading   *float64

	valid   bool
	rmcTime nmea.Time
	motion  bool
}

// Apply folds a parsed sentence into the fix. It reports true when the
// sentence was a GGA carrying a valid position, which completes an epoch.
func (f *Fix) Apply(s nmea.Sentence) bool {
	switch m := s.(type) {
	case nmea.GGA:
		if m.FixQuality == nmea.Invalid {
			return false
		}
		f.Latitude = m.Latitude
		f.Longitude = m.Longitude
		f.Altitude = nil
		if len(m.Fields) > ggaAltitudeField && m.Fields[ggaAltitudeField] != "" {
			f.Altitude = gpsjwt.Float64(m.Altitude)
		}
		f.Accuracy = nil
		if m.HDOP > 0 {
			f.Accuracy = gpsjwt.Float64(m.HDOP * hdopToMeters)
		}
		f.valid = true
		if !f.motion || f.rmcTime != m.Time {
			f.Speed, f.Heading = nil, nil
		}
		return true
	case nmea.RMC:
		if m.Validity != nmea.ValidRMC {
			f.motion = false
			return false
		}
		f.Speed = gpsjwt.Float64(m.Speed * knotsToMetersPerSecond)
		f.Heading = nil
		if m.Course >= 0 && m.Course <= 360 {
			f.Heading = gpsjwt.Float64(m.Course)
		}
		f.rmcTime = m.Time
		f.motion = true
	}
	return false
}

// Valid reports whether a GGA fix has been seen.
func (f *Fix) Valid() bool {
	return f.valid
}

// Claim converts the fix into an unsigned location claim.
func (f *Fix) Claim() gpsjwt.LocationClaim {
	claim := gpsjwt.NewLocationClaim(f.Latitude, f.Longitude)
	claim.Altitude = f.Altitude
	claim.Accuracy = f.Accuracy
	claim.Speed = f.Speed
	claim.Heading = f.Heading
	return claim.Clone()
}
