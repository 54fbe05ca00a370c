package rbac

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/meridian-hms/meridian/internal/platform/httpx"
	"github.com/meridian-hms/meridian/internal/shared"
)

// Middleware guards routes with the same Policy the services consult.
type Middleware struct {
	Policy *Policy
	Logger *slog.Logger
}

// RequireAny admits actors holding at least one of perms.
func (m Middleware) RequireAny(perms ...string) func(http.Handler) http.Handler {
	required := normalizePermissions(perms)
	return m.guard(required, func(actor shared.Actor) bool {
		for _, perm := range required {
			if m.Policy.Allowed(actor, perm) {
				return true
			}
		}
		return false
	})
}

// RequireAll admits actors holding every one of perms.
func (m Middleware) RequireAll(perms ...string) func(http.Handler) http.Handler {
	required := normalizePermissions(perms)
	return m.guard(required, func(actor shared.Actor) bool {
		for _, perm := range required {
			if !m.Policy.Allowed(actor, perm) {
				return false
			}
		}
		return true
	})
}

// guard answers 401 without an actor and 403 when allowed rejects it.
// An empty requirement admits everyone.
func (m Middleware) guard(required []string, allowed func(shared.Actor) bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if len(required) == 0 {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			actor, found := shared.ActorFromContext(r.Context())
			switch {
			case !found || actor.IsZero():
				httpx.RespondError(w, httpx.ErrUnauthorized)
			case allowed(actor):
				next.ServeHTTP(w, r)
			default:
				if m.Logger != nil {
					m.Logger.Debug("permission denied",
						slog.Int64("actor_id", actor.ID),
						slog.String("role", actor.Role),
						slog.String("path", r.URL.Path),
						slog.String("required", strings.Join(required, ",")))
				}
				httpx.RespondError(w, shared.ErrForbidden)
			}
		})
	}
}

func normalizePermissions(perms []string) []string {
	seen := make(map[string]bool, len(perms))
	out := make([]string, 0, len(perms))
	for _, p := range perms {
		p = strings.ToLower(strings.TrimSpace(p))
		if p == "" || seen[p] {
			continue
		}
		seen[p] = true
		out = append(out, p)
	}
	return out
}
