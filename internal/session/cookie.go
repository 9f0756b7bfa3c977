package session

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const cookieIssuer = "gestix"

// ErrInvalidCookie indicates a session cookie that failed verification.
var ErrInvalidCookie = errors.New("session: invalid cookie")

// CookieConfig mirrors the cookie scope used when issuing and clearing.
type CookieConfig struct {
	Name   string
	Path   string
	Domain string
	Secure bool
	// Secret signs the cookie value; when empty the bare token is used.
	Secret []byte
}

// Cookies carries the session token between server and browser.
type Cookies struct {
	cfg CookieConfig
	now func() time.Time
}

// NewCookies constructs a cookie codec.
func NewCookies(cfg CookieConfig) *Cookies {
	if cfg.Name == "" {
		cfg.Name = "GESTIXSESSID"
	}
	if cfg.Path == "" {
		cfg.Path = "/"
	}
	return &Cookies{cfg: cfg, now: time.Now}
}

// Name returns the cookie name.
func (c *Cookies) Name() string { return c.cfg.Name }

// Write sets a browser-session cookie carrying token.
func (c *Cookies) Write(w http.ResponseWriter, token string) error {
	value, err := c.encode(token)
	if err != nil {
		return err
	}
	http.SetCookie(w, c.cookie(value, time.Time{}, 0))
	return nil
}

// Read extracts and verifies the session token from the request.
func (c *Cookies) Read(r *http.Request) (string, error) {
	ck, err := r.Cookie(c.cfg.Name)
	if err != nil {
		return "", http.ErrNoCookie
	}
	value := strings.TrimSpace(ck.Value)
	if value == "" {
		return "", http.ErrNoCookie
	}
	return c.decode(value)
}

// Clear invalidates the cookie with the same scope it was issued with.
func (c *Cookies) Clear(w http.ResponseWriter) {
	http.SetCookie(w, c.cookie("", c.now().Add(-42000*time.Second), -1))
}

func (c *Cookies) cookie(value string, expires time.Time, maxAge int) *http.Cookie {
	return &http.Cookie{
		Name:     c.cfg.Name,
		Value:    value,
		Path:     c.cfg.Path,
		Domain:   c.cfg.Domain,
		Expires:  expires,
		MaxAge:   maxAge,
		Secure:   c.cfg.Secure,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	}
}

func (c *Cookies) encode(token string) (string, error) {
	if len(c.cfg.Secret) == 0 {
		return token, nil
	}
	claims := jwt.RegisteredClaims{
		Issuer:   cookieIssuer,
		ID:       token,
		IssuedAt: jwt.NewNumericDate(c.now().UTC()),
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(c.cfg.Secret)
	if err != nil {
		return "", err
	}
	return signed, nil
}

func (c *Cookies) decode(value string) (string, error) {
	if len(c.cfg.Secret) == 0 {
		if !validToken(value) {
			return "", ErrInvalidCookie
		}
		return value, nil
	}
	var claims jwt.RegisteredClaims
	parsed, err := jwt.ParseWithClaims(value, &claims, func(t *jwt.Token) (any, error) {
		return c.cfg.Secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(cookieIssuer),
		jwt.WithTimeFunc(c.now),
	)
	if err != nil || !parsed.Valid {
		return "", ErrInvalidCookie
	}
	if !validToken(claims.ID) {
		return "", ErrInvalidCookie
	}
	return claims.ID, nil
}
