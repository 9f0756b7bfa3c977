package httpapi

import (
	"net/http"

	"gestix.app/internal/auth"
)

// sessionHandler serves a protected resource for a validated session.
type sessionHandler func(w http.ResponseWriter, r *http.Request, req *auth.Request)

// requireSession guards next: invalid sessions are audited and redirected to
// the login page with no body, and next is not called.
func (a *API) requireSession(next sessionHandler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		req := a.auth.For(w, r)
		if !req.RequireAuth(r.Context(), "") {
			return
		}
		ctx := auth.ContextWithUser(r.Context(), *req.CurrentUser())
		next(w, r.WithContext(ctx), req)
	})
}
