package shared

import (
	"context"
	"net/http"
	"strconv"
)

// Identity carries the authenticated tenant and actor for a request. Token
// verification happens upstream; by the time a request reaches the handlers
// the gateway has resolved it to these two ids.
type Identity struct {
	BusinessID int64
	ActorID    int64
}

type identityContextKey struct{}

// HeaderBusinessID and HeaderActorID name the trusted identity headers set by
// the auth gateway.
const (
	HeaderBusinessID = "X-Business-ID"
	HeaderActorID    = "X-Actor-ID"
)

// ContextWithIdentity stores the identity in the context.
func ContextWithIdentity(ctx context.Context, id Identity) context.Context {
	return context.WithValue(ctx, identityContextKey{}, id)
}

// IdentityFromContext retrieves the request identity, zero-valued when absent.
func IdentityFromContext(ctx context.Context) Identity {
	if id, ok := ctx.Value(identityContextKey{}).(Identity); ok {
		return id
	}
	return Identity{}
}

// IdentityMiddleware resolves the identity headers into the request context.
func IdentityMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var id Identity
		if v, err := strconv.ParseInt(r.Header.Get(HeaderBusinessID), 10, 64); err == nil {
			id.BusinessID = v
		}
		if v, err := strconv.ParseInt(r.Header.Get(HeaderActorID), 10, 64); err == nil {
			id.ActorID = v
		}
		next.ServeHTTP(w, r.WithContext(ContextWithIdentity(r.Context(), id)))
	})
}
