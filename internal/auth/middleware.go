package auth

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/meridian-hms/meridian/internal/platform/httpx"
	"github.com/meridian-hms/meridian/internal/shared"
)

// Middleware resolves the bearer token into a shared.Actor on the request
// context. Paths accepted by skip pass through unauthenticated.
func Middleware(v *Verifier, logger *slog.Logger, skip func(path string) bool) func(http.Handler) http.Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if skip != nil && skip(r.URL.Path) {
				next.ServeHTTP(w, r)
				return
			}
			claims, err := v.Verify(bearerToken(r))
			if err != nil {
				if !errors.Is(err, ErrMissingToken) {
					logger.Warn("token rejected", slog.String("path", r.URL.Path), slog.Any("error", err))
				}
				httpx.RespondError(w, httpx.ErrUnauthorized)
				return
			}
			ctx := shared.ContextWithActor(r.Context(), claims.Actor())
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// SkipPaths returns a skip func matching exact paths.
func SkipPaths(paths ...string) func(string) bool {
	set := make(map[string]struct{}, len(paths))
	for _, p := range paths {
		set[p] = struct{}{}
	}
	return func(path string) bool {
		_, ok := set[path]
		return ok
	}
}

func bearerToken(r *http.Request) string {
	header := r.Header.Get("Authorization")
	if len(header) < 7 || !strings.EqualFold(header[:7], "bearer ") {
		return ""
	}
	return strings.TrimSpace(header[7:])
}
