package middleware

import (
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/RomuloBreno/project-easy-briefing/internal/domain"
)

const (
	// UserIDHeader carries the caller id set by the upstream auth proxy.
	UserIDHeader = "X-User-ID"

	// UserEmailHeader optionally carries the caller's email.
	UserEmailHeader = "X-User-Email"
)

// WithUser resolves the caller from the proxy headers and adds it to the
// request context. Requests without a valid id continue anonymously.
func WithUser(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw := strings.TrimSpace(r.Header.Get(UserIDHeader))
		if raw == "" {
			next.ServeHTTP(w, r)
			return
		}

		id, err := uuid.Parse(raw)
		if err != nil || id == uuid.Nil {
			next.ServeHTTP(w, r)
			return
		}

		user := &domain.User{
			ID:    id,
			Email: strings.TrimSpace(r.Header.Get(UserEmailHeader)),
		}
		next.ServeHTTP(w, r.WithContext(domain.NewContextWithUser(r.Context(), user)))
	})
}

// RequireUser rejects requests without a resolved caller with 401.
// It resolves the caller itself when WithUser has not run.
func RequireUser(next http.Handler) http.Handler {
	check := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !domain.IsAuthenticated(r.Context()) {
			respondUnauthorized(w, r, "A valid "+UserIDHeader+" header is required")
			return
		}
		next.ServeHTTP(w, r)
	})

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if domain.IsAuthenticated(r.Context()) {
			check.ServeHTTP(w, r)
			return
		}
		WithUser(check).ServeHTTP(w, r)
	})
}
