package auth

import (
	"context"
	"time"
)

// UserStore is the read side used on every request.
type UserStore interface {
	// UserByEmail returns the user with CompanyName populated.
	UserByEmail(ctx context.Context, email string) (User, error)
	UserByID(ctx context.Context, id string) (User, error)
	TouchLastAccess(ctx context.Context, userID string, at time.Time) error
}

// AccountStore manages companies and users.
type AccountStore interface {
	UserStore
	CreateCompany(ctx context.Context, c Company) (Company, error)
	CompanyByID(ctx context.Context, id string) (Company, error)
	CreateUser(ctx context.Context, u User) (User, error)
	SetUserStatus(ctx context.Context, userID, status string) error
}
