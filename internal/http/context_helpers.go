package httpx

import (
	"context"

	domainauth "github.com/itiportal/portal-session/internal/domain/auth"
)

// stateKey is an unexported context key type to avoid collisions across packages.
type stateKey struct{}

// SetStateInContext returns a child context carrying the session snapshot a
// guard admitted the request with.
func SetStateInContext(ctx context.Context, st domainauth.State) context.Context {
	return context.WithValue(ctx, stateKey{}, st)
}

// GetStateFromContext returns the admitted session snapshot and whether one is present.
func GetStateFromContext(ctx context.Context) (domainauth.State, bool) {
	st, ok := ctx.Value(stateKey{}).(domainauth.State)
	return st, ok
}
