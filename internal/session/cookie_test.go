package session

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testSecret = []byte("0123456789abcdef0123456789abcdef")

func roundTrip(t *testing.T, c *Cookies, token string) (*http.Cookie, *http.Request) {
	t.Helper()
	rr := httptest.NewRecorder()
	require.NoError(t, c.Write(rr, token))
	cookies := rr.Result().Cookies()
	require.Len(t, cookies, 1)

	req := httptest.NewRequest(http.MethodGet, "/dashboard", nil)
	req.AddCookie(cookies[0])
	return cookies[0], req
}

func TestCookiesSignedRoundTrip(t *testing.T) {
	c := NewCookies(CookieConfig{Name: "SID", Path: "/app", Domain: "gestix.test", Secure: true, Secret: testSecret})
	token, err := NewToken()
	require.NoError(t, err)

	issued, req := roundTrip(t, c, token)
	assert.True(t, issued.HttpOnly)
	assert.True(t, issued.Secure)
	assert.Equal(t, "/app", issued.Path)
	assert.NotEqual(t, token, issued.Value, "signed cookie must not expose the raw token")

	got, err := c.Read(req)
	require.NoError(t, err)
	assert.Equal(t, token, got)
}

func TestCookiesRejectTampering(t *testing.T) {
	c := NewCookies(CookieConfig{Name: "SID", Secret: testSecret})
	token, err := NewToken()
	require.NoError(t, err)
	issued, _ := roundTrip(t, c, token)

	other := NewCookies(CookieConfig{Name: "SID", Secret: []byte("ffffffffffffffffffffffffffffffff")})
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(issued)
	_, err = other.Read(req)
	assert.ErrorIs(t, err, ErrInvalidCookie)

	parts := strings.Split(issued.Value, ".")
	require.Len(t, parts, 3)
	forged := &http.Cookie{Name: "SID", Value: parts[0] + "." + parts[1] + ".AAAA"}
	req = httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(forged)
	_, err = c.Read(req)
	assert.ErrorIs(t, err, ErrInvalidCookie)
}

func TestCookiesUnsigned(t *testing.T) {
	c := NewCookies(CookieConfig{Name: "SID"})
	token, err := NewToken()
	require.NoError(t, err)

	issued, req := roundTrip(t, c, token)
	assert.Equal(t, token, issued.Value)
	got, err := c.Read(req)
	require.NoError(t, err)
	assert.Equal(t, token, got)

	req = httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(&http.Cookie{Name: "SID", Value: "user-42"})
	_, err = c.Read(req)
	assert.ErrorIs(t, err, ErrInvalidCookie)
}

func TestCookiesMissing(t *testing.T) {
	c := NewCookies(CookieConfig{Name: "SID", Secret: testSecret})
	_, err := c.Read(httptest.NewRequest(http.MethodGet, "/", nil))
	assert.ErrorIs(t, err, http.ErrNoCookie)
}

func TestCookiesClearKeepsScope(t *testing.T) {
	c := NewCookies(CookieConfig{Name: "SID", Path: "/app", Domain: "gestix.test", Secure: true, Secret: testSecret})
	now := time.Date(2025, 5, 10, 9, 0, 0, 0, time.UTC)
	c.now = func() time.Time { return now }

	rr := httptest.NewRecorder()
	c.Clear(rr)

	header := rr.Header().Get("Set-Cookie")
	assert.Contains(t, header, "SID=;")
	assert.Contains(t, header, "Path=/app")
	assert.Contains(t, header, "Domain=gestix.test")
	assert.Contains(t, header, "Max-Age=0")
	assert.Contains(t, header, "HttpOnly")
	assert.Contains(t, header, "Secure")
	assert.Contains(t, header, "Expires=")
}
