package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"gestix.app/internal/audit"
	"gestix.app/internal/obs"
	"gestix.app/internal/session"
)

const (
	// DefaultTimeout is the idle window after which a session is closed.
	DefaultTimeout = 7200 * time.Second
	// DefaultLoginRedirect is where the guard sends anonymous visitors.
	DefaultLoginRedirect = "/pages/registro/login/login.html"
)

// Reasons reported by gestix_forced_logouts_total.
const (
	reasonExpired    = "expired"
	reasonMissing    = "user_missing"
	reasonInactive   = "user_inactive"
	reasonStoreError = "store_error"
	// The stored record was removed by another request (logout, a newer
	// login). That request already wrote the logout entry.
	reasonEnded = "session_ended"
)

var forcedLogoutDescriptions = map[string]string{
	reasonExpired:    "Sessão expirada por inatividade",
	reasonMissing:    "Usuário não encontrado",
	reasonInactive:   "Conta inativa",
	reasonStoreError: "Falha ao validar sessão",
}

// Manager owns the collaborators shared by all requests. Per-request state
// lives in Request, obtained through For.
type Manager struct {
	users         UserStore
	sessions      session.Store
	cookies       *session.Cookies
	audit         *audit.Logger
	timeout       time.Duration
	loginRedirect string
	now           func() time.Time
	log           *zap.Logger
}

// ManagerOption configures Manager.
type ManagerOption func(*Manager)

// WithTimeout overrides the idle session timeout.
func WithTimeout(d time.Duration) ManagerOption {
	return func(m *Manager) {
		if d > 0 {
			m.timeout = d
		}
	}
}

// WithLoginRedirect sets the default guard redirect target.
func WithLoginRedirect(target string) ManagerOption {
	return func(m *Manager) {
		if strings.TrimSpace(target) != "" {
			m.loginRedirect = strings.TrimSpace(target)
		}
	}
}

// WithClock overrides time source (useful for tests).
func WithClock(fn func() time.Time) ManagerOption {
	return func(m *Manager) {
		if fn != nil {
			m.now = fn
		}
	}
}

// WithLogger sets the operator logger.
func WithLogger(log *zap.Logger) ManagerOption {
	return func(m *Manager) {
		if log != nil {
			m.log = log
		}
	}
}

// NewManager wires the auth core.
func NewManager(users UserStore, sessions session.Store, cookies *session.Cookies, auditLog *audit.Logger, opts ...ManagerOption) (*Manager, error) {
	if users == nil {
		return nil, errors.New("auth: user store is required")
	}
	if sessions == nil {
		return nil, errors.New("auth: session store is required")
	}
	if cookies == nil {
		return nil, errors.New("auth: cookie codec is required")
	}
	if auditLog == nil {
		return nil, errors.New("auth: audit logger is required")
	}
	m := &Manager{
		users:         users,
		sessions:      sessions,
		cookies:       cookies,
		audit:         auditLog,
		timeout:       DefaultTimeout,
		loginRedirect: DefaultLoginRedirect,
		now:           time.Now,
		log:           obs.Logger(),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m, nil
}

// Timeout returns the configured idle timeout.
func (m *Manager) Timeout() time.Duration { return m.timeout }

// LoginRedirect returns the default guard redirect target.
func (m *Manager) LoginRedirect() string { return m.loginRedirect }

// sessionTTL keeps an idle session in the store past the timeout so that the
// next request can still close it and record the logout.
func (m *Manager) sessionTTL() time.Duration { return 2 * m.timeout }

// For resolves the session carried by r. Store failures leave the request
// anonymous.
func (m *Manager) For(w http.ResponseWriter, r *http.Request) *Request {
	q := &Request{m: m, w: w, ip: audit.ClientIP(r), ua: audit.UserAgent(r)}
	token, err := m.cookies.Read(r)
	if err != nil {
		if errors.Is(err, session.ErrInvalidCookie) {
			m.log.Debug("session cookie rejected", zap.String("ip", q.ip))
		}
		return q
	}
	q.token = token
	sess, err := m.sessions.Get(r.Context(), token)
	switch {
	case err == nil:
		q.sess = sess
	case errors.Is(err, session.ErrNotFound):
	default:
		m.log.Warn("session lookup failed", zap.Error(err))
	}
	return q
}

// Request is the auth view of a single HTTP request. It is not safe for
// concurrent use.
type Request struct {
	m     *Manager
	w     http.ResponseWriter
	token string
	sess  *session.Session
	ip    string
	ua    string
}

// IsAuthenticated reports whether the session carries a logged-in identity.
// It performs no I/O.
func (q *Request) IsAuthenticated() bool {
	return q.sess != nil && q.sess.Logged && strings.TrimSpace(q.sess.Email) != ""
}

// ValidateSession enforces the idle timeout and re-checks the account
// against the user store. Any failure closes the session.
func (q *Request) ValidateSession(ctx context.Context) bool {
	if !q.IsAuthenticated() {
		return false
	}
	now := q.m.now()
	if now.Sub(q.sess.LastActivity) > q.m.timeout {
		q.forceLogout(ctx, reasonExpired, nil)
		return false
	}
	if now.After(q.sess.LastActivity) {
		q.sess.LastActivity = now
	}

	user, err := q.m.users.UserByID(ctx, q.sess.UserID)
	switch {
	case errors.Is(err, ErrNotFound):
		q.forceLogout(ctx, reasonMissing, nil)
		return false
	case err != nil:
		q.forceLogout(ctx, reasonStoreError, err)
		return false
	case !user.Active():
		q.forceLogout(ctx, reasonInactive, nil)
		return false
	}

	err = q.m.sessions.Touch(ctx, q.token, q.sess, q.m.sessionTTL())
	switch {
	case errors.Is(err, session.ErrNotFound):
		q.forceLogout(ctx, reasonEnded, nil)
		return false
	case err != nil:
		q.forceLogout(ctx, reasonStoreError, err)
		return false
	}
	return true
}

func (q *Request) forceLogout(ctx context.Context, reason string, cause error) {
	obs.ForcedLogoutsTotal.WithLabelValues(reason).Inc()
	fields := []zap.Field{zap.String("reason", reason), zap.String("user_id", q.sess.UserID)}
	if cause != nil {
		q.m.log.Error("session validation failed", append(fields, zap.Error(cause))...)
	} else {
		q.m.log.Info("session terminated", fields...)
	}
	if reason == reasonEnded {
		q.discard(ctx)
		if q.w != nil {
			q.m.cookies.Clear(q.w)
		}
		return
	}
	q.logout(ctx, forcedLogoutDescriptions[reason])
}

// Login verifies credentials and starts a fresh session. The login audit
// entry is best effort; its failure does not fail the login.
func (q *Request) Login(ctx context.Context, email, password string) (CurrentUser, error) {
	email, err := normalizeEmail(email)
	if err != nil {
		obs.LoginsTotal.WithLabelValues("invalid_input").Inc()
		return CurrentUser{}, err
	}
	if password == "" {
		obs.LoginsTotal.WithLabelValues("invalid_input").Inc()
		return CurrentUser{}, fmt.Errorf("%w: password is required", ErrInvalidInput)
	}

	user, err := q.m.users.UserByEmail(ctx, email)
	if errors.Is(err, ErrNotFound) {
		q.loginFailed(ctx, "email_not_found", email)
		return CurrentUser{}, ErrEmailNotFound
	}
	if err != nil {
		obs.LoginsTotal.WithLabelValues("error").Inc()
		return CurrentUser{}, fmt.Errorf("auth: lookup user: %w", err)
	}
	if !user.Active() {
		q.loginFailed(ctx, "inactive", email)
		if q.sess != nil && q.sess.UserID == user.ID {
			q.logout(ctx, forcedLogoutDescriptions[reasonInactive])
		}
		return CurrentUser{}, ErrAccountInactive
	}
	if err := VerifyPassword(user.PasswordHash, password); err != nil {
		if !errors.Is(err, errMismatch) {
			q.m.log.Warn("stored password hash unusable", zap.String("user_id", user.ID), zap.Error(err))
		}
		q.loginFailed(ctx, "bad_password", email)
		return CurrentUser{}, ErrIncorrectPassword
	}

	// A new identity always gets a new token.
	q.discard(ctx)

	token, err := session.NewToken()
	if err != nil {
		obs.LoginsTotal.WithLabelValues("error").Inc()
		return CurrentUser{}, err
	}
	now := q.m.now()
	sess := &session.Session{
		UserID:       user.ID,
		CompanyID:    user.CompanyID,
		Name:         user.Name,
		Email:        user.Email,
		Role:         user.Role,
		CompanyName:  user.CompanyName,
		Logged:       true,
		LoginAt:      now,
		LastActivity: now,
	}
	if err := q.m.sessions.Save(ctx, token, sess, q.m.sessionTTL()); err != nil {
		obs.LoginsTotal.WithLabelValues("error").Inc()
		return CurrentUser{}, fmt.Errorf("auth: store session: %w", err)
	}
	if err := q.m.cookies.Write(q.w, token); err != nil {
		_ = q.m.sessions.Delete(ctx, token)
		obs.LoginsTotal.WithLabelValues("error").Inc()
		return CurrentUser{}, fmt.Errorf("auth: write cookie: %w", err)
	}
	q.token, q.sess = token, sess

	if err := q.m.users.TouchLastAccess(ctx, user.ID, now); err != nil {
		q.m.log.Warn("last access update failed", zap.String("user_id", user.ID), zap.Error(err))
	}
	q.LogLogin(ctx, user.ID, user.CompanyID, q.ip, q.ua)
	obs.LoginsTotal.WithLabelValues("success").Inc()
	return *q.CurrentUser(), nil
}

func (q *Request) loginFailed(ctx context.Context, outcome, email string) {
	obs.LoginsTotal.WithLabelValues(outcome).Inc()
	q.m.audit.Record(ctx, audit.Event{
		Type:        audit.TypeLoginFailed,
		Status:      audit.StatusFailure,
		Description: fmt.Sprintf("email=%s motivo=%s", email, outcome),
		IP:          q.ip,
		UserAgent:   q.ua,
	})
}

// LogLogin records a successful login and stamps the session timestamps.
func (q *Request) LogLogin(ctx context.Context, userID, companyID, ip, userAgent string) bool {
	if q.sess != nil && q.sess.UserID == userID {
		now := q.m.now()
		q.sess.LoginAt = now
		q.sess.LastActivity = now
	}
	var desc string
	if companyID != "" {
		desc = "company_id=" + companyID
	}
	return q.m.audit.Record(ctx, audit.Event{
		ActorUserID: userID,
		Type:        audit.TypeLogin,
		Description: desc,
		IP:          ip,
		UserAgent:   userAgent,
	})
}

// LogLogout records a logout for userID.
func (q *Request) LogLogout(ctx context.Context, userID, ip, userAgent string) bool {
	return q.recordLogout(ctx, userID, "", ip, userAgent)
}

func (q *Request) recordLogout(ctx context.Context, userID, description, ip, userAgent string) bool {
	return q.m.audit.Record(ctx, audit.Event{
		ActorUserID: userID,
		Type:        audit.TypeLogout,
		Description: description,
		IP:          ip,
		UserAgent:   userAgent,
	})
}

// LogActivity records an arbitrary event. An empty userID is stored as null;
// empty ip and userAgent fall back to the values derived from the request.
func (q *Request) LogActivity(ctx context.Context, userID, eventType, description, ip, userAgent string) bool {
	if ip == "" {
		ip = q.ip
	}
	if userAgent == "" {
		userAgent = q.ua
	}
	return q.m.audit.Record(ctx, audit.Event{
		ActorUserID: userID,
		Type:        eventType,
		Description: description,
		IP:          ip,
		UserAgent:   userAgent,
	})
}

// Logout records the logout when a user is present, then clears the session
// and expires the cookie. It never fails from the caller's point of view.
func (q *Request) Logout(ctx context.Context) {
	q.logout(ctx, "Logout do sistema")
}

func (q *Request) logout(ctx context.Context, description string) {
	if q.sess != nil && q.sess.UserID != "" {
		q.recordLogout(ctx, q.sess.UserID, description, q.ip, q.ua)
	}
	q.discard(ctx)
	if q.w != nil {
		q.m.cookies.Clear(q.w)
	}
}

// discard drops the stored session without recording anything.
func (q *Request) discard(ctx context.Context) {
	if q.token != "" {
		if err := q.m.sessions.Delete(context.WithoutCancel(ctx), q.token); err != nil {
			q.m.log.Warn("session delete failed", zap.Error(err))
		}
	}
	q.token = ""
	q.sess = nil
}

// RequireAuth is the guard for protected resources. On an invalid session it
// records the denied access, writes a redirect to target (or the configured
// login location) with no body and returns false; the caller must stop.
func (q *Request) RequireAuth(ctx context.Context, target string) bool {
	if q.ValidateSession(ctx) {
		return true
	}
	obs.AccessDeniedTotal.Inc()
	q.LogActivity(ctx, "", audit.TypeAccessDenied, "Tentativa de acesso sem autenticação", q.ip, q.ua)
	if strings.TrimSpace(target) == "" {
		target = q.m.loginRedirect
	}
	if q.w != nil {
		q.w.Header().Set("Location", target)
		q.w.WriteHeader(http.StatusFound)
	}
	return false
}

// CurrentUser returns the session identity, or nil when not authenticated.
func (q *Request) CurrentUser() *CurrentUser {
	if !q.IsAuthenticated() {
		return nil
	}
	return &CurrentUser{
		ID:          q.sess.UserID,
		CompanyID:   q.sess.CompanyID,
		Name:        q.sess.Name,
		Email:       q.sess.Email,
		Role:        q.sess.Role,
		CompanyName: q.sess.CompanyName,
	}
}

// LastActivity returns the session's last-activity time, zero when anonymous.
func (q *Request) LastActivity() time.Time {
	if q.sess == nil {
		return time.Time{}
	}
	return q.sess.LastActivity
}
