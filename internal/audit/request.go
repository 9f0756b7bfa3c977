package audit

import (
	"context"
	"net"
	"net/http"
	"net/netip"
	"strings"
)

var reservedPrefixes = []netip.Prefix{
	netip.MustParsePrefix("0.0.0.0/8"),
	netip.MustParsePrefix("100.64.0.0/10"),
	netip.MustParsePrefix("240.0.0.0/4"),
	netip.MustParsePrefix("::ffff:0:0/96"),
}

// ClientIP derives the caller address: the Client-IP header, then the first
// public address in X-Forwarded-For, then the transport peer, else "unknown".
func ClientIP(r *http.Request) string {
	if r == nil {
		return "unknown"
	}
	for _, header := range []string{"Client-IP", "X-Forwarded-For"} {
		for _, candidate := range strings.Split(r.Header.Get(header), ",") {
			if addr, ok := publicAddr(candidate); ok {
				return addr
			}
		}
	}
	remote := strings.TrimSpace(r.RemoteAddr)
	if remote == "" {
		return "unknown"
	}
	if host, _, err := net.SplitHostPort(remote); err == nil {
		return host
	}
	return remote
}

// UserAgent returns the request user agent truncated for storage.
func UserAgent(r *http.Request) string {
	if r == nil {
		return "unknown"
	}
	return truncateUserAgent(r.UserAgent())
}

func publicAddr(raw string) (string, bool) {
	addr, err := netip.ParseAddr(strings.TrimSpace(raw))
	if err != nil {
		return "", false
	}
	addr = addr.WithZone("")
	if addr.IsPrivate() || addr.IsLoopback() || addr.IsLinkLocalUnicast() ||
		addr.IsLinkLocalMulticast() || addr.IsMulticast() || addr.IsUnspecified() {
		return "", false
	}
	for _, p := range reservedPrefixes {
		if p.Contains(addr) {
			return "", false
		}
	}
	return addr.String(), true
}

type ctxKey string

const (
	requestIDKey ctxKey = "audit_request_id"
	clientIPKey  ctxKey = "audit_client_ip"
	userAgentKey ctxKey = "audit_user_agent"
)

// WithRequestID attaches the request identifier to the context for audit logging.
func WithRequestID(ctx context.Context, requestID string) context.Context {
	requestID = strings.TrimSpace(requestID)
	if requestID == "" {
		return ctx
	}
	return context.WithValue(ctx, requestIDKey, requestID)
}

// WithRequest stores the caller address and user agent of r in ctx so that
// events recorded without explicit values inherit them.
func WithRequest(ctx context.Context, r *http.Request) context.Context {
	ctx = context.WithValue(ctx, clientIPKey, ClientIP(r))
	return context.WithValue(ctx, userAgentKey, UserAgent(r))
}

func requestIDFromContext(ctx context.Context) string {
	return stringFromContext(ctx, requestIDKey)
}

func stringFromContext(ctx context.Context, key ctxKey) string {
	if ctx == nil {
		return ""
	}
	if v, ok := ctx.Value(key).(string); ok {
		return v
	}
	return ""
}
