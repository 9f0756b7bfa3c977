package pg

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"

	"gestix.app/internal/auth"
	"gestix.app/internal/ids"
)

const (
	pgErrUniqueViolation     = "23505"
	pgErrForeignKeyViolation = "23503"
)

const userColumns = `u.id, u.company_id, coalesce(c.name, ''), u.name, u.email, u.password_hash,
		u.role, u.status, u.last_access_at, u.created_at`

func (s *Store) CreateCompany(ctx context.Context, c auth.Company) (auth.Company, error) {
	if s.db == nil {
		return auth.Company{}, errNoDB
	}
	if c.ID == "" {
		c.ID = ids.New()
	}
	row := s.db.QueryRowContext(ctx, `
		insert into companies (id, name, contact_email)
		values ($1, $2, $3)
		returning id, name, contact_email, created_at
	`, c.ID, c.Name, c.ContactEmail)
	var out auth.Company
	if err := row.Scan(&out.ID, &out.Name, &out.ContactEmail, &out.CreatedAt); err != nil {
		if pgErr, ok := maybePgError(err); ok && pgErr.Code == pgErrUniqueViolation {
			return auth.Company{}, auth.ErrConflict
		}
		return auth.Company{}, err
	}
	return out, nil
}

func (s *Store) CompanyByID(ctx context.Context, id string) (auth.Company, error) {
	if s.db == nil {
		return auth.Company{}, errNoDB
	}
	var c auth.Company
	err := s.db.QueryRowContext(ctx, `
		select id, name, contact_email, created_at
		from companies
		where id = $1
	`, id).Scan(&c.ID, &c.Name, &c.ContactEmail, &c.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return auth.Company{}, auth.ErrNotFound
	}
	if err != nil {
		return auth.Company{}, err
	}
	return c, nil
}

func (s *Store) CreateUser(ctx context.Context, u auth.User) (auth.User, error) {
	if s.db == nil {
		return auth.User{}, errNoDB
	}
	if u.ID == "" {
		u.ID = ids.New()
	}
	var out auth.User
	row := s.db.QueryRowContext(ctx, `
		insert into users (id, company_id, name, email, password_hash, role, status)
		values ($1, $2, $3, $4, $5, $6, $7)
		returning id, company_id, name, email, role, status, created_at
	`, u.ID, u.CompanyID, u.Name, u.Email, u.PasswordHash, nullIfEmpty(u.Role), u.Status)
	var role sql.NullString
	if err := row.Scan(&out.ID, &out.CompanyID, &out.Name, &out.Email, &role, &out.Status, &out.CreatedAt); err != nil {
		if pgErr, ok := maybePgError(err); ok {
			switch pgErr.Code {
			case pgErrUniqueViolation:
				return auth.User{}, auth.ErrConflict
			case pgErrForeignKeyViolation:
				return auth.User{}, auth.ErrNotFound
			}
		}
		return auth.User{}, err
	}
	out.Role = role.String
	out.PasswordHash = u.PasswordHash
	return out, nil
}

// UserByEmail joins the company so that the session can carry its name.
func (s *Store) UserByEmail(ctx context.Context, email string) (auth.User, error) {
	return s.userWhere(ctx, `lower(u.email) = lower($1)`, email)
}

func (s *Store) UserByID(ctx context.Context, id string) (auth.User, error) {
	return s.userWhere(ctx, `u.id = $1`, id)
}

func (s *Store) userWhere(ctx context.Context, cond string, arg string) (auth.User, error) {
	if s.db == nil {
		return auth.User{}, errNoDB
	}
	row := s.db.QueryRowContext(ctx, `
		select `+userColumns+`
		from users u
		left join companies c on c.id = u.company_id
		where `+cond, strings.TrimSpace(arg))
	user, err := scanUser(row)
	if errors.Is(err, sql.ErrNoRows) {
		return auth.User{}, auth.ErrNotFound
	}
	if err != nil {
		return auth.User{}, err
	}
	return user, nil
}

func (s *Store) TouchLastAccess(ctx context.Context, userID string, at time.Time) error {
	if s.db == nil {
		return errNoDB
	}
	_, err := s.db.ExecContext(ctx, `update users set last_access_at = $2 where id = $1`, userID, at.UTC())
	return err
}

func (s *Store) SetUserStatus(ctx context.Context, userID, status string) error {
	if s.db == nil {
		return errNoDB
	}
	res, err := s.db.ExecContext(ctx, `update users set status = $2 where id = $1`, userID, status)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return auth.ErrNotFound
	}
	return nil
}

// ListUsers returns the users of a company ordered by email.
func (s *Store) ListUsers(ctx context.Context, companyID string) ([]auth.User, error) {
	if s.db == nil {
		return nil, errNoDB
	}
	rows, err := s.db.QueryContext(ctx, `
		select `+userColumns+`
		from users u
		left join companies c on c.id = u.company_id
		where u.company_id = $1
		order by u.email
	`, companyID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var users []auth.User
	for rows.Next() {
		user, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		users = append(users, user)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return users, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanUser(row rowScanner) (auth.User, error) {
	var (
		user       auth.User
		role       sql.NullString
		lastAccess sql.NullTime
	)
	if err := row.Scan(&user.ID, &user.CompanyID, &user.CompanyName, &user.Name, &user.Email,
		&user.PasswordHash, &role, &user.Status, &lastAccess, &user.CreatedAt); err != nil {
		return auth.User{}, err
	}
	user.Role = role.String
	if lastAccess.Valid {
		t := lastAccess.Time
		user.LastAccessAt = &t
	}
	return user, nil
}

func maybePgError(err error) (*pgconn.PgError, bool) {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr, true
	}
	return nil, false
}

func nullIfEmpty(s string) sql.NullString {
	s = strings.TrimSpace(s)
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}
