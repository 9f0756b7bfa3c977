package httpapi

import (
	"context"
	"math"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/cors"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"gestix.app/internal/audit"
	"gestix.app/internal/obs"
)

const requestIDHeader = "X-Request-ID"

type requestIDKey struct{}

// RequestIDFromContext returns the id assigned by RequestID.
func RequestIDFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	v, _ := ctx.Value(requestIDKey{}).(string)
	return v
}

// RequestID assigns every request an id (reusing a sane inbound X-Request-ID),
// echoes it in the response and makes it, together with the caller address and
// user agent, available to audit logging.
func RequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rid := strings.TrimSpace(r.Header.Get(requestIDHeader))
		if rid == "" || len(rid) > 128 || strings.ContainsAny(rid, " \t\r\n") {
			rid = uuid.NewString()
		}
		w.Header().Set(requestIDHeader, rid)

		ctx := context.WithValue(r.Context(), requestIDKey{}, rid)
		ctx = audit.WithRequestID(ctx, rid)
		ctx = audit.WithRequest(ctx, r)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

type statusWriter struct {
	http.ResponseWriter
	code  int
	bytes int
}

func (w *statusWriter) WriteHeader(code int) {
	w.code = code
	w.ResponseWriter.WriteHeader(code)
}

func (w *statusWriter) Write(b []byte) (int, error) {
	n, err := w.ResponseWriter.Write(b)
	w.bytes += n
	return n, err
}

// LoggingJSON: one structured line per request.
func LoggingJSON(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sw := &statusWriter{ResponseWriter: w, code: http.StatusOK}
		start := time.Now()
		next.ServeHTTP(sw, r)
		obs.Logger().Info("request_complete",
			zap.String("request_id", RequestIDFromContext(r.Context())),
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", sw.code),
			zap.Int("bytes", sw.bytes),
			zap.Float64("duration_ms", float64(time.Since(start).Microseconds())/1000),
			zap.String("remote_ip", peerIP(r)),
			zap.String("client_ip", audit.ClientIP(r)),
			zap.String("user_agent", r.UserAgent()),
		)
	})
}

// SecurityHeaders: hardening for pages that carry session cookies.
func SecurityHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("X-XSS-Protection", "0")
		w.Header().Set("Referrer-Policy", "no-referrer")
		w.Header().Set("Cache-Control", "no-store")
		w.Header().Set("Content-Security-Policy", "default-src 'self'; frame-ancestors 'none'")
		next.ServeHTTP(w, r)
	})
}

// CORS: explicit origins when configured, local development origins otherwise.
// Credentials are allowed so that the session cookie travels.
func CORS(next http.Handler, allowedOrigins []string) http.Handler {
	opts := cors.Options{
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders:   []string{"Content-Type", requestIDHeader},
		ExposedHeaders:   []string{requestIDHeader},
		AllowCredentials: true,
		MaxAge:           600,
	}
	if len(allowedOrigins) > 0 {
		opts.AllowedOrigins = allowedOrigins
	} else {
		opts.AllowOriginFunc = isLocalOrigin
	}
	return cors.New(opts).Handler(next)
}

// MaxBodyBytes: limit request body size
func MaxBodyBytes(next http.Handler, maxBytes int64) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Body != nil {
			r.Body = http.MaxBytesReader(w, r.Body, maxBytes)
		}
		next.ServeHTTP(w, r)
	})
}

// rateLimiter: token bucket per client IP. Idle buckets are swept lazily.
type rateLimiter struct {
	mu        sync.Mutex
	buckets   map[string]*bucket
	burst     int
	perSecond float64
	ttl       time.Duration
	lastSweep time.Time
	now       func() time.Time
}

type bucket struct {
	lim *rate.Limiter
	ts  time.Time
}

func newRateLimiter(burst int, perSecond float64) *rateLimiter {
	return &rateLimiter{
		buckets:   make(map[string]*bucket),
		burst:     burst,
		perSecond: perSecond,
		ttl:       5 * time.Minute,
		now:       time.Now,
	}
}

func (l *rateLimiter) allow(key string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	now := l.now()
	if now.Sub(l.lastSweep) > time.Minute {
		for k, b := range l.buckets {
			if now.Sub(b.ts) > l.ttl {
				delete(l.buckets, k)
			}
		}
		l.lastSweep = now
	}
	b, ok := l.buckets[key]
	if !ok {
		b = &bucket{lim: rate.NewLimiter(rate.Limit(l.perSecond), l.burst)}
		l.buckets[key] = b
	}
	b.ts = now
	return b.lim.AllowN(now, 1)
}

func (l *rateLimiter) retryAfter() string {
	secs := int(math.Ceil(1 / l.perSecond))
	if secs < 1 {
		secs = 1
	}
	return strconv.Itoa(secs)
}

func (l *rateLimiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !l.allow(peerIP(r)) {
			w.Header().Set("Retry-After", l.retryAfter())
			writeError(w, r, http.StatusTooManyRequests, "rate limit exceeded")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// peerIP is the address of the connection itself. Client-IP and
// X-Forwarded-For are caller controlled and only go into audit rows.
func peerIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func isLocalOrigin(o string) bool {
	// allow localhost during dev; extend list for prod domains later
	return strings.HasPrefix(o, "http://localhost:") || strings.HasPrefix(o, "http://127.0.0.1:")
}
