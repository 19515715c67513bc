package gpsjwt

import "context"

type locationClaimKey struct{}

// BindLocationClaim stores a verified claim inside the context for downstream consumers.
func BindLocationClaim(ctx context.Context, claim *LocationClaim) context.Context {
	return context.WithValue(ctx, locationClaimKey{}, claim)
}

// LocationClaimFromContext retrieves a claim previously stored in the context.
func LocationClaimFromContext(ctx context.Context) (*LocationClaim, bool) {
	if ctx == nil {
		return nil, false
	}
	claim, ok := ctx.Value(locationClaimKey{}).(*LocationClaim)
	if !ok || claim == nil {
		return nil, false
	}
	return claim, true
}
