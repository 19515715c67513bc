package gpsjwt

// DevFix holds the observation used by the tools when no fix is supplied.
type DevFix struct {
	Latitude  float64
	Longitude float64
	Subject   string
	Secret    string
}

// Claim converts the development fix into an unsigned claim.
func (d DevFix) Claim() LocationClaim {
	claim := NewLocationClaim(d.Latitude, d.Longitude)
	claim.Subject = d.Subject
	return claim
}

// DefaultDevFix returns a baseline fix suitable for local testing against a dev endpoint.
func DefaultDevFix() DevFix {
	return DevFix{
		Latitude:  37.7749,
		Longitude: -122.4194,
		Subject:   "testuser",
		Secret:    "test_secret",
	}
}
