// Package api holds the JSON handlers behind /api. Every route expects the
// caller id resolved by middleware.RequireUser.
package api

import (
	"net/http"
	"time"

	"github.com/RomuloBreno/project-easy-briefing/internal/domain"
	"github.com/RomuloBreno/project-easy-briefing/internal/handler"
)

// currentUser returns the resolved caller or writes a 401 and returns nil.
func currentUser(w http.ResponseWriter, r *http.Request) *domain.User {
	user := domain.UserFromContext(r.Context())
	if user == nil {
		handler.ErrorResponse(w, r, domain.Unauthorized("", "Authentication required"))
		return nil
	}
	return user
}

func formatTime(t *time.Time) *string {
	if t == nil || t.IsZero() {
		return nil
	}
	s := t.UTC().Format(time.RFC3339)
	return &s
}
