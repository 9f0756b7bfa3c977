package auth

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strings"
)

// Accounts manages companies and their users. Registration forms and the
// admin CLI go through it; the request path only reads users.
type Accounts struct {
	store AccountStore
}

func NewAccounts(store AccountStore) (*Accounts, error) {
	if store == nil {
		return nil, errors.New("account store is required")
	}
	return &Accounts{store: store}, nil
}

func (s *Accounts) RegisterCompany(ctx context.Context, name, contactEmail string) (Company, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return Company{}, fmt.Errorf("%w: company name is required", ErrInvalidInput)
	}
	contactEmail, err := normalizeEmail(contactEmail)
	if err != nil {
		return Company{}, err
	}
	return s.store.CreateCompany(ctx, Company{Name: name, ContactEmail: contactEmail})
}

// RegisterUser creates a user bound to an existing company.
func (s *Accounts) RegisterUser(ctx context.Context, companyID, name, email, password, role string) (User, error) {
	companyID = strings.TrimSpace(companyID)
	if companyID == "" {
		return User{}, fmt.Errorf("%w: company_id is required", ErrInvalidInput)
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return User{}, fmt.Errorf("%w: name is required", ErrInvalidInput)
	}
	email, err := normalizeEmail(email)
	if err != nil {
		return User{}, err
	}
	if strings.TrimSpace(password) == "" {
		return User{}, fmt.Errorf("%w: password is required", ErrInvalidInput)
	}
	company, err := s.store.CompanyByID(ctx, companyID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return User{}, fmt.Errorf("%w: company %s does not exist", ErrInvalidInput, companyID)
		}
		return User{}, err
	}
	hash, err := HashPassword(password)
	if err != nil {
		return User{}, err
	}
	user, err := s.store.CreateUser(ctx, User{
		CompanyID:    company.ID,
		Name:         name,
		Email:        email,
		PasswordHash: hash,
		Role:         strings.TrimSpace(role),
		Status:       UserStatusActive,
	})
	if err != nil {
		return User{}, err
	}
	user.CompanyName = company.Name
	return user, nil
}

// SetUserStatus activates or deactivates a user. Deactivation takes effect on
// the user's next request because sessions re-check status on validation.
func (s *Accounts) SetUserStatus(ctx context.Context, userID, status string) error {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return fmt.Errorf("%w: user_id is required", ErrInvalidInput)
	}
	status = strings.TrimSpace(strings.ToLower(status))
	if status != UserStatusActive && status != UserStatusInactive {
		return fmt.Errorf("%w: unsupported status %s", ErrInvalidInput, status)
	}
	return s.store.SetUserStatus(ctx, userID, status)
}

// normalizeEmail lower-cases and validates a bare address.
func normalizeEmail(email string) (string, error) {
	email = strings.TrimSpace(strings.ToLower(email))
	if email == "" {
		return "", fmt.Errorf("%w: email is required", ErrInvalidInput)
	}
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email || !strings.Contains(email[strings.LastIndex(email, "@")+1:], ".") {
		return "", fmt.Errorf("%w: invalid email %q", ErrInvalidInput, email)
	}
	return email, nil
}
