package audit

import (
	"context"
	"errors"
	"strings"
	"time"

	"go.uber.org/zap"

	"gestix.app/internal/ids"
	"gestix.app/internal/obs"
)

const (
	defaultServerID     = 1
	defaultWriteTimeout = 2 * time.Second
)

// Logger turns events into audit entries. Write failures are reported to the
// operator log and metrics, never to the caller.
type Logger struct {
	store        Store
	serverID     int
	writeTimeout time.Duration
	now          func() time.Time
	log          *zap.Logger
	mirror       *zap.Logger
}

// Option configures Logger.
type Option func(*Logger)

// WithServerID sets the node identifier stamped on each entry.
func WithServerID(id int) Option {
	return func(l *Logger) {
		if id > 0 {
			l.serverID = id
		}
	}
}

// WithWriteTimeout bounds how long a single insert may take.
func WithWriteTimeout(d time.Duration) Option {
	return func(l *Logger) {
		if d > 0 {
			l.writeTimeout = d
		}
	}
}

// WithClock overrides the time source.
func WithClock(fn func() time.Time) Option {
	return func(l *Logger) {
		if fn != nil {
			l.now = fn
		}
	}
}

// WithOperatorLog sets the logger that receives write failures.
func WithOperatorLog(log *zap.Logger) Option {
	return func(l *Logger) {
		if log != nil {
			l.log = log
		}
	}
}

// WithMirror copies every recorded entry, as one JSON line, to log.
func WithMirror(log *zap.Logger) Option {
	return func(l *Logger) {
		l.mirror = log
	}
}

// NewLogger constructs a Logger writing to store.
func NewLogger(store Store, opts ...Option) *Logger {
	l := &Logger{
		store:        store,
		serverID:     defaultServerID,
		writeTimeout: defaultWriteTimeout,
		now:          time.Now,
		log:          obs.Logger(),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Record appends exactly one entry for ev and reports whether it was stored.
func (l *Logger) Record(ctx context.Context, ev Event) bool {
	if ctx == nil {
		ctx = context.Background()
	}
	entry := l.build(ctx, ev)

	if l.store == nil {
		l.fail(ctx, entry, errors.New("audit store not configured"))
		return false
	}

	// The write outlives a cancelled request but not the configured timeout.
	writeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), l.writeTimeout)
	defer cancel()

	if err := l.store.AppendAudit(writeCtx, entry); err != nil {
		l.fail(ctx, entry, err)
		return false
	}
	obs.AuditWritesTotal.WithLabelValues(entry.EventType).Inc()
	l.mirrorEntry(ctx, entry)
	return true
}

func (l *Logger) build(ctx context.Context, ev Event) *Entry {
	eventType := strings.TrimSpace(ev.Type)
	if eventType == "" {
		eventType = "atividade"
	}
	status := strings.TrimSpace(ev.Status)
	if status == "" {
		status = StatusSuccess
	}
	ip := strings.TrimSpace(ev.IP)
	if ip == "" {
		ip = stringFromContext(ctx, clientIPKey)
	}
	if ip == "" {
		ip = "unknown"
	}
	ua := ev.UserAgent
	if strings.TrimSpace(ua) == "" {
		ua = stringFromContext(ctx, userAgentKey)
	}

	now := l.now().UTC()
	entry := &Entry{
		ID:              ids.NewAt(now),
		ServerID:        l.serverID,
		EventType:       eventType,
		Category:        category(eventType),
		Status:          status,
		SourceIP:        ip,
		UserAgent:       truncateUserAgent(ua),
		Keyword:         keyword(eventType),
		Description:     strings.TrimSpace(ev.Description),
		IsActivityEntry: true,
		OccurredAt:      now,
	}
	if actor := strings.TrimSpace(ev.ActorUserID); actor != "" {
		entry.ActorUserID = &actor
	}
	return entry
}

func (l *Logger) fail(ctx context.Context, entry *Entry, err error) {
	obs.AuditWriteFailuresTotal.WithLabelValues(entry.EventType).Inc()
	fields := append(entryFields(entry), zap.Error(err))
	if rid := requestIDFromContext(ctx); rid != "" {
		fields = append(fields, zap.String("request_id", rid))
	}
	l.log.Error("audit write failed", fields...)
}

func (l *Logger) mirrorEntry(ctx context.Context, entry *Entry) {
	if l.mirror == nil {
		return
	}
	fields := append([]zap.Field{zap.String("type", "audit")}, entryFields(entry)...)
	if rid := requestIDFromContext(ctx); rid != "" {
		fields = append(fields, zap.String("request_id", rid))
	}
	l.mirror.Info(entry.EventType, fields...)
}

func entryFields(entry *Entry) []zap.Field {
	actor := ""
	if entry.ActorUserID != nil {
		actor = *entry.ActorUserID
	}
	return []zap.Field{
		zap.String("audit_id", entry.ID),
		zap.Int("server_id", entry.ServerID),
		zap.String("actor_user_id", actor),
		zap.String("event_type", entry.EventType),
		zap.String("category", entry.Category),
		zap.String("status", entry.Status),
		zap.String("source_ip", entry.SourceIP),
		zap.String("user_agent", entry.UserAgent),
		zap.String("keyword", entry.Keyword),
		zap.String("description", entry.Description),
	}
}
