package http

import (
	"context"
	"net/http"
	"slices"
	"strings"

	"github.com/NavanKen/Eventify/internal/domain"
)

// Identity headers are set by the gateway after it authenticates the caller.
const (
	headerUserID   = "X-User-ID"
	headerUserRole = "X-User-Role"
	headerUserName = "X-User-Name"
)

type actorKey struct{}

func actorFromContext(ctx context.Context) (domain.Actor, bool) {
	actor, ok := ctx.Value(actorKey{}).(domain.Actor)
	return actor, ok
}

// Identify attaches the caller's Actor to the request context when the
// identity headers are present. A request without them stays anonymous.
func Identify(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		userID := strings.TrimSpace(r.Header.Get(headerUserID))
		if userID == "" {
			next.ServeHTTP(w, r)
			return
		}
		role, ok := domain.ParseRole(strings.ToLower(strings.TrimSpace(r.Header.Get(headerUserRole))))
		if !ok {
			writeError(w, http.StatusUnauthorized, codeUnauthenticated, "unknown role")
			return
		}
		actor := domain.Actor{
			UserID: userID,
			Name:   strings.TrimSpace(r.Header.Get(headerUserName)),
			Role:   role,
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), actorKey{}, actor)))
	})
}

// RequireRole rejects anonymous callers with 401 and callers outside roles
// with 403. With no roles any authenticated caller passes.
func RequireRole(roles ...domain.Role) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			actor, ok := actorFromContext(r.Context())
			if !ok {
				writeError(w, http.StatusUnauthorized, codeUnauthenticated, "authentication required")
				return
			}
			if len(roles) > 0 && !slices.Contains(roles, actor.Role) {
				writeError(w, http.StatusForbidden, codeForbidden, domain.ErrForbidden.Error())
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
