package handlers

import (
	"context"
	"net/http"
	"strings"

	"github.com/md-rashed-zaman/shopbook/libs/auth"
	"github.com/md-rashed-zaman/shopbook/services/booking-service/internal/model"
)

// Headers a trusted gateway sets after authenticating the caller itself.
const (
	HeaderUserID = "X-User-Id"
	HeaderRole   = "X-Role"
)

type actorKey struct{}

func ActorFromContext(ctx context.Context) (model.Actor, bool) {
	a, ok := ctx.Value(actorKey{}).(model.Actor)
	return a, ok
}

func WithActor(ctx context.Context, a model.Actor) context.Context {
	return context.WithValue(ctx, actorKey{}, a)
}

// Authenticator resolves the caller from a bearer token, or from gateway headers when
// trustHeaders is set. Requests without a caller are rejected with 401.
type Authenticator struct {
	verifier     *auth.Verifier
	trustHeaders bool
}

func NewAuthenticator(verifier *auth.Verifier, trustHeaders bool) *Authenticator {
	return &Authenticator{verifier: verifier, trustHeaders: trustHeaders}
}

func (a *Authenticator) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		actor, ok := a.resolve(r)
		if !ok {
			w.Header().Set("WWW-Authenticate", `Bearer realm="booking"`)
			writeJSON(w, http.StatusUnauthorized, errorBody{Error: "authentication required"})
			return
		}
		next.ServeHTTP(w, r.WithContext(WithActor(r.Context(), actor)))
	})
}

func (a *Authenticator) resolve(r *http.Request) (model.Actor, bool) {
	if token, ok := auth.BearerToken(r.Header.Get("Authorization")); ok && a.verifier != nil {
		claims, err := a.verifier.Verify(r.Context(), token)
		if err != nil || strings.TrimSpace(claims.Sub) == "" {
			return model.Actor{}, false
		}
		return model.Actor{ID: claims.Sub, Role: roleOf(claims.Role)}, true
	}
	if a.trustHeaders {
		id := strings.TrimSpace(r.Header.Get(HeaderUserID))
		if id == "" {
			return model.Actor{}, false
		}
		return model.Actor{ID: id, Role: roleOf(r.Header.Get(HeaderRole))}, true
	}
	return model.Actor{}, false
}

// Anything but an explicit admin role is a client.
func roleOf(raw string) model.Role {
	if strings.EqualFold(strings.TrimSpace(raw), string(model.RoleAdmin)) {
		return model.RoleAdmin
	}
	return model.RoleClient
}
