// Package session holds per-visitor server-side state keyed by an opaque token.
package session

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"time"
)

var (
	// ErrNotFound is returned when no session exists for a token.
	ErrNotFound = errors.New("session: not found")
	// ErrUnavailable wraps failures of the backing store.
	ErrUnavailable = errors.New("session: store unavailable")
)

// Session is the server-held record of an authenticated visitor.
type Session struct {
	UserID       string    `json:"user_id"`
	CompanyID    string    `json:"company_id"`
	Name         string    `json:"name"`
	Email        string    `json:"email"`
	Role         string    `json:"role"`
	CompanyName  string    `json:"company_name"`
	Logged       bool      `json:"logged"`
	LoginAt      time.Time `json:"login_at"`
	LastActivity time.Time `json:"last_activity"`
}

// Store persists sessions by token. Implementations must be safe for concurrent use.
type Store interface {
	Get(ctx context.Context, token string) (*Session, error)
	Save(ctx context.Context, token string, sess *Session, ttl time.Duration) error
	Delete(ctx context.Context, token string) error
	// Touch rewrites a session that still exists and returns ErrNotFound
	// when it has been deleted or has expired. It never creates a record.
	Touch(ctx context.Context, token string, sess *Session, ttl time.Duration) error
}

const tokenBytes = 32

// NewToken returns a random URL-safe session token.
func NewToken() (string, error) {
	buf := make([]byte, tokenBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("session: generate token: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}

// validToken rejects values that could not have come from NewToken.
func validToken(token string) bool {
	if len(token) != base64.RawURLEncoding.EncodedLen(tokenBytes) {
		return false
	}
	_, err := base64.RawURLEncoding.DecodeString(token)
	return err == nil
}
