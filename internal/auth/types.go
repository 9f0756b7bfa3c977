package auth

import "time"

const (
	UserStatusActive   = "active"
	UserStatusInactive = "inactive"
)

// Company is the tenant every user belongs to.
type Company struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	ContactEmail string    `json:"contact_email"`
	CreatedAt    time.Time `json:"created_at"`
}

// User is a person allowed to sign in on behalf of a company.
type User struct {
	ID           string     `json:"id"`
	CompanyID    string     `json:"company_id"`
	CompanyName  string     `json:"company_name,omitempty"`
	Name         string     `json:"name"`
	Email        string     `json:"email"`
	PasswordHash string     `json:"-"`
	Role         string     `json:"role"`
	Status       string     `json:"status"`
	LastAccessAt *time.Time `json:"last_access_at,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
}

// Active reports whether the account may authenticate.
func (u User) Active() bool { return u.Status == UserStatusActive }

// CurrentUser is the identity held by an authenticated session.
type CurrentUser struct {
	ID          string `json:"id"`
	CompanyID   string `json:"company_id"`
	Name        string `json:"name"`
	Email       string `json:"email"`
	Role        string `json:"role"`
	CompanyName string `json:"company_name"`
}
