package auth

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
	"golang.org/x/crypto/bcrypt"

	"gestix.app/internal/audit"
	"gestix.app/internal/session"
)

type fakeAccounts struct {
	mu        sync.Mutex
	companies map[string]Company
	users     map[string]User
	lookupErr error
	touched   map[string]time.Time
}

func newFakeAccounts() *fakeAccounts {
	return &fakeAccounts{
		companies: map[string]Company{},
		users:     map[string]User{},
		touched:   map[string]time.Time{},
	}
}

func (f *fakeAccounts) UserByEmail(_ context.Context, email string) (User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.lookupErr != nil {
		return User{}, f.lookupErr
	}
	for _, u := range f.users {
		if u.Email == email {
			u.CompanyName = f.companies[u.CompanyID].Name
			return u, nil
		}
	}
	return User{}, ErrNotFound
}

func (f *fakeAccounts) UserByID(_ context.Context, id string) (User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.lookupErr != nil {
		return User{}, f.lookupErr
	}
	u, ok := f.users[id]
	if !ok {
		return User{}, ErrNotFound
	}
	return u, nil
}

func (f *fakeAccounts) TouchLastAccess(_ context.Context, userID string, at time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.touched[userID] = at
	return nil
}

func (f *fakeAccounts) CreateCompany(_ context.Context, c Company) (Company, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, existing := range f.companies {
		if existing.Name == c.Name {
			return Company{}, ErrConflict
		}
	}
	if c.ID == "" {
		c.ID = "company-" + c.Name
	}
	f.companies[c.ID] = c
	return c, nil
}

func (f *fakeAccounts) CompanyByID(_ context.Context, id string) (Company, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	c, ok := f.companies[id]
	if !ok {
		return Company{}, ErrNotFound
	}
	return c, nil
}

func (f *fakeAccounts) CreateUser(_ context.Context, u User) (User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, existing := range f.users {
		if existing.Email == u.Email {
			return User{}, ErrConflict
		}
	}
	if u.ID == "" {
		u.ID = "user-" + u.Email
	}
	f.users[u.ID] = u
	return u, nil
}

func (f *fakeAccounts) SetUserStatus(_ context.Context, userID, status string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.users[userID]
	if !ok {
		return ErrNotFound
	}
	u.Status = status
	f.users[userID] = u
	return nil
}

func (f *fakeAccounts) setLookupErr(err error) {
	f.mu.Lock()
	f.lookupErr = err
	f.mu.Unlock()
}

type auditRecorder struct {
	mu      sync.Mutex
	entries []audit.Entry
	err     error
}

func (a *auditRecorder) AppendAudit(_ context.Context, e *audit.Entry) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.err != nil {
		return a.err
	}
	a.entries = append(a.entries, *e)
	return nil
}

func (a *auditRecorder) fail(err error) {
	a.mu.Lock()
	a.err = err
	a.mu.Unlock()
}

func (a *auditRecorder) ofType(eventType string) []audit.Entry {
	a.mu.Lock()
	defer a.mu.Unlock()
	var out []audit.Entry
	for _, e := range a.entries {
		if e.EventType == eventType {
			out = append(out, e)
		}
	}
	return out
}

func (a *auditRecorder) count() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.entries)
}

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

type harness struct {
	accounts *fakeAccounts
	audits   *auditRecorder
	sessions *session.MemoryStore
	clock    *fakeClock
	manager  *Manager
	opLogs   *observer.ObservedLogs
}

const testPassword = "segredo123"

func newHarness(t *testing.T) *harness {
	t.Helper()
	h := &harness{
		accounts: newFakeAccounts(),
		audits:   &auditRecorder{},
		sessions: session.NewMemoryStore(),
		clock:    &fakeClock{now: time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC)},
	}
	core, logs := observer.New(zapcore.DebugLevel)
	h.opLogs = logs
	op := zap.New(core)

	auditLog := audit.NewLogger(h.audits, audit.WithClock(h.clock.Now), audit.WithOperatorLog(op))
	cookies := session.NewCookies(session.CookieConfig{Name: "GESTIXSESSID", Path: "/"})
	m, err := NewManager(h.accounts, h.sessions, cookies, auditLog, WithClock(h.clock.Now), WithLogger(op))
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}
	h.manager = m

	h.accounts.companies["c1"] = Company{ID: "c1", Name: "Padaria Central", ContactEmail: "contato@padaria.com.br"}
	hash, err := bcrypt.GenerateFromPassword([]byte(testPassword), bcrypt.MinCost)
	if err != nil {
		t.Fatalf("bcrypt: %v", err)
	}
	h.accounts.users["u1"] = User{
		ID:           "u1",
		CompanyID:    "c1",
		Name:         "Ana Souza",
		Email:        "ana@padaria.com.br",
		PasswordHash: string(hash),
		Role:         "Gerente",
		Status:       UserStatusActive,
	}
	return h
}

var errStoreDown = errors.New("dial tcp 127.0.0.1:5432: connection refused")
