package gpsjwt

import "time"

// Claim names used on the wire.
const (
	LatitudeKey  = "lat"
	LongitudeKey = "lon"
	AccuracyKey  = "accuracy"
	AltitudeKey  = "altitude"
	SpeedKey     = "speed"
	HeadingKey   = "heading"
)

// LocationClaim is the signed payload describing one GPS observation.
// Pointer fields are absent when nil.
type LocationClaim struct {
	Latitude  *float64
	Longitude *float64

	Accuracy *float64 // meters
	Altitude *float64 // meters
	Speed    *float64 // m/s
	Heading  *float64 // degrees

	IssuedAt  time.Time
	ExpiresAt time.Time
	Nonce     string
	Subject   string
}

// Float64 returns a pointer to v, for populating optional claim fields.
func Float64(v float64) *float64 {
	return &v
}

// NewLocationClaim returns a claim for the given coordinates with all other fields unset.
func NewLocationClaim(lat, lon float64) LocationClaim {
	return LocationClaim{Latitude: Float64(lat), Longitude: Float64(lon)}
}

// Lifetime returns the span between issue and expiry.
func (c LocationClaim) Lifetime() time.Duration {
	if c.IssuedAt.IsZero() || c.ExpiresAt.IsZero() {
		return 0
	}
	return c.ExpiresAt.Sub(c.IssuedAt)
}

// Clone returns a deep copy of the claim.
func (c LocationClaim) Clone() LocationClaim {
	out := c
	out.Latitude = cloneFloat(c.Latitude)
	out.Longitude = cloneFloat(c.Longitude)
	out.Accuracy = cloneFloat(c.Accuracy)
	out.Altitude = cloneFloat(c.Altitude)
	out.Speed = cloneFloat(c.Speed)
	out.Heading = cloneFloat(c.Heading)
	return out
}

func cloneFloat(v *float64) *float64 {
	if v == nil {
		return nil
	}
	return Float64(*v)
}
