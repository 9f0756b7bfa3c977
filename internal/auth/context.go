package auth

import "context"

type userContextKey struct{}

// ContextWithUser attaches the authenticated user to the context.
func ContextWithUser(ctx context.Context, user CurrentUser) context.Context {
	return context.WithValue(ctx, userContextKey{}, &user)
}

// UserFromContext extracts the authenticated user from the context.
func UserFromContext(ctx context.Context) (CurrentUser, bool) {
	if ctx == nil {
		return CurrentUser{}, false
	}
	v, ok := ctx.Value(userContextKey{}).(*CurrentUser)
	if !ok || v == nil {
		return CurrentUser{}, false
	}
	return *v, true
}
