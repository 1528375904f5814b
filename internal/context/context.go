package context

import (
	"context"
	"net/http"
)

type contextKey string

const (
	authenticatedAdminContextKey = contextKey("authenticatedAdmin")
)

// Admin identifies who made an administrative request, for audit logs.
type Admin struct {
	Username string
	// Method is "basic" or "token"
	Method string
}

func ContextSetAuthenticatedAdmin(r *http.Request, admin *Admin) *http.Request {
	ctx := context.WithValue(r.Context(), authenticatedAdminContextKey, admin)
	return r.WithContext(ctx)
}

func ContextGetAuthenticatedAdmin(r *http.Request) *Admin {
	admin, ok := r.Context().Value(authenticatedAdminContextKey).(*Admin)
	if !ok {
		return nil
	}

	return admin
}
