package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"gestix.app/internal/auth"
	"gestix.app/internal/obs"
)

// Pinger is a dependency that can report liveness.
type Pinger interface {
	Ping(ctx context.Context) error
}

// ReadyProbe: проверка готовности зависимостей (БД, хранилище сессий).
type ReadyProbe struct {
	Database Pinger
	Sessions Pinger
}

func (rp ReadyProbe) Check(ctx context.Context) error {
	if rp.Database != nil {
		if err := rp.Database.Ping(ctx); err != nil {
			return fmt.Errorf("database: %w", err)
		}
	}
	if rp.Sessions != nil {
		if err := rp.Sessions.Ping(ctx); err != nil {
			return fmt.Errorf("sessions: %w", err)
		}
	}
	return nil
}

type readinessChecker interface {
	Check(ctx context.Context) error
}

// Config holds the transport settings.
type Config struct {
	Version        string
	AllowedOrigins []string
	MaxBodyBytes   int64
	LoginBurst     int
	LoginPerSecond float64
	// SessionPollInterval is sent with every /check_session response.
	SessionPollInterval time.Duration
}

// API: HTTP слой.
type API struct {
	router     *mux.Router
	auth       *auth.Manager
	readyProbe readinessChecker
	cfg        Config
	log        *zap.Logger
	loginLimit *rateLimiter
}

func New(mgr *auth.Manager, rp readinessChecker, cfg Config) *API {
	if cfg.MaxBodyBytes <= 0 {
		cfg.MaxBodyBytes = 1 << 20
	}
	if cfg.LoginBurst <= 0 {
		cfg.LoginBurst = 10
	}
	if cfg.LoginPerSecond <= 0 {
		cfg.LoginPerSecond = 1
	}
	if cfg.SessionPollInterval <= 0 {
		cfg.SessionPollInterval = 5 * time.Minute
	}
	a := &API{
		router:     mux.NewRouter(),
		auth:       mgr,
		readyProbe: rp,
		cfg:        cfg,
		log:        obs.Logger(),
	}
	a.loginLimit = newRateLimiter(cfg.LoginBurst, cfg.LoginPerSecond)

	r := a.router
	r.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, r, http.StatusNotFound, "resource not found")
	})
	r.MethodNotAllowedHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, r, http.StatusMethodNotAllowed, "method not allowed")
	})

	// health/ready
	r.HandleFunc("/healthz", a.Healthz).Methods(http.MethodGet)
	r.HandleFunc("/readyz", a.Ready).Methods(http.MethodGet)
	r.Handle("/metrics", obs.Handler()).Methods(http.MethodGet)

	// session lifecycle
	r.Handle("/login", a.loginLimit.Middleware(http.HandlerFunc(a.handleLogin))).Methods(http.MethodPost)
	r.HandleFunc("/check_session", a.handleCheckSession).Methods(http.MethodGet)
	r.HandleFunc("/logout", a.handleLogout).Methods(http.MethodPost)

	// protected pages
	r.Handle("/dashboard", a.requireSession(a.handleDashboard)).Methods(http.MethodGet)

	return a
}

// Handler возвращает http.Handler со всей цепочкой middleware.
func (a *API) Handler() http.Handler {
	var h http.Handler = a.router
	h = MaxBodyBytes(h, a.cfg.MaxBodyBytes)
	h = obs.Instrument(h)
	h = CORS(h, a.cfg.AllowedOrigins)
	h = SecurityHeaders(h)
	h = LoggingJSON(h)
	return RequestID(h)
}

// --- Handlers ---

func (a *API) Healthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"service": serviceName,
		"version": a.cfg.Version,
		"time":    time.Now().UTC().Format(time.RFC3339),
	})
}

func (a *API) Ready(w http.ResponseWriter, r *http.Request) {
	if a.readyProbe != nil {
		if err := a.readyProbe.Check(r.Context()); err != nil {
			obs.SetReady(false)
			writeJSON(w, http.StatusServiceUnavailable, map[string]any{
				"status": "not_ready",
				"error":  err.Error(),
			})
			return
		}
	}
	obs.SetReady(true)
	writeJSON(w, http.StatusOK, map[string]any{
		"status": "ready",
	})
}

// --- helpers ---

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, r *http.Request, code int, msg string) {
	payload := map[string]any{
		"error": msg,
	}
	if rid := RequestIDFromContext(r.Context()); rid != "" {
		payload["request_id"] = rid
	}
	writeJSON(w, code, payload)
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	reader := http.MaxBytesReader(w, r.Body, 1<<20)
	defer reader.Close()
	dec := json.NewDecoder(reader)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return errors.New("request body is required")
		}
		return err
	}
	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		if err == nil {
			return errors.New("unexpected data after JSON body")
		}
		return err
	}
	return nil
}

func isJSON(r *http.Request) bool {
	ct := strings.ToLower(r.Header.Get("Content-Type"))
	return strings.HasPrefix(ct, "application/json")
}
