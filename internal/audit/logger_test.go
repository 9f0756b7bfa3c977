package audit

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

type recordingStore struct {
	mu      sync.Mutex
	entries []Entry
	err     error
	block   bool
}

func (s *recordingStore) AppendAudit(ctx context.Context, entry *Entry) error {
	if s.block {
		<-ctx.Done()
		return ctx.Err()
	}
	if s.err != nil {
		return s.err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = append(s.entries, *entry)
	return nil
}

var fixedNow = time.Date(2025, 6, 2, 14, 30, 0, 0, time.UTC)

func newTestLogger(store Store, opts ...Option) (*Logger, *observer.ObservedLogs) {
	core, logs := observer.New(zapcore.DebugLevel)
	base := []Option{WithClock(func() time.Time { return fixedNow }), WithOperatorLog(zap.New(core))}
	return NewLogger(store, append(base, opts...)...), logs
}

func TestRecordLoginEntry(t *testing.T) {
	store := &recordingStore{}
	logger, logs := newTestLogger(store, WithServerID(3))

	ok := logger.Record(context.Background(), Event{
		ActorUserID: "user-1",
		Type:        TypeLogin,
		IP:          "203.0.113.9",
		UserAgent:   "Mozilla/5.0",
	})
	if !ok {
		t.Fatal("expected record to succeed")
	}
	if len(store.entries) != 1 {
		t.Fatalf("expected one entry, got %d", len(store.entries))
	}
	e := store.entries[0]
	if e.ServerID != 3 || e.EventType != "login" || e.Category != "LOGIN" || e.Keyword != "login_usuario" {
		t.Fatalf("unexpected entry: %+v", e)
	}
	if e.Status != StatusSuccess || !e.IsActivityEntry {
		t.Fatalf("unexpected status/flag: %+v", e)
	}
	if e.ActorUserID == nil || *e.ActorUserID != "user-1" {
		t.Fatalf("unexpected actor: %v", e.ActorUserID)
	}
	if e.ID == "" || !e.OccurredAt.Equal(fixedNow) {
		t.Fatalf("unexpected id/time: %s %v", e.ID, e.OccurredAt)
	}
	if logs.Len() != 0 {
		t.Fatalf("expected no operator log lines, got %d", logs.Len())
	}
}

func TestRecordAnonymousActivityUsesRequestContext(t *testing.T) {
	store := &recordingStore{}
	logger, _ := newTestLogger(store)

	req := httptest.NewRequest(http.MethodGet, "/dashboard", nil)
	req.RemoteAddr = "198.51.100.7:51000"
	req.Header.Set("User-Agent", strings.Repeat("x", 150))
	ctx := WithRequest(context.Background(), req)

	logger.Record(ctx, Event{Type: TypeAccessDenied, Description: "Tentativa de acesso sem autenticação"})

	e := store.entries[0]
	if e.ActorUserID != nil {
		t.Fatalf("expected null actor, got %q", *e.ActorUserID)
	}
	if e.SourceIP != "198.51.100.7" {
		t.Fatalf("unexpected ip: %s", e.SourceIP)
	}
	if len(e.UserAgent) != MaxUserAgentLen {
		t.Fatalf("expected truncated user agent, got %d chars", len(e.UserAgent))
	}
	if e.Category != "ACESSO_NEGADO" || e.Keyword != "acesso_negado_atividade" {
		t.Fatalf("unexpected category/keyword: %s %s", e.Category, e.Keyword)
	}
	if e.Description != "Tentativa de acesso sem autenticação" {
		t.Fatalf("unexpected description: %s", e.Description)
	}
}

func TestRecordFailureIsSwallowedAndReported(t *testing.T) {
	store := &recordingStore{err: errors.New("connection refused")}
	logger, logs := newTestLogger(store)

	ctx := WithRequestID(context.Background(), "req-9")
	if logger.Record(ctx, Event{ActorUserID: "user-1", Type: TypeLogout}) {
		t.Fatal("expected record to report failure")
	}
	failures := logs.FilterMessage("audit write failed").All()
	if len(failures) != 1 {
		t.Fatalf("expected one operator log line, got %d", len(failures))
	}
	fields := failures[0].ContextMap()
	if fields["event_type"] != "logout" || fields["request_id"] != "req-9" {
		t.Fatalf("unexpected fields: %v", fields)
	}
	if !strings.Contains(fields["error"].(string), "connection refused") {
		t.Fatalf("expected error field, got %v", fields["error"])
	}
}

func TestRecordHonoursWriteTimeout(t *testing.T) {
	store := &recordingStore{block: true}
	logger, logs := newTestLogger(store, WithWriteTimeout(20*time.Millisecond))

	start := time.Now()
	if logger.Record(context.Background(), Event{Type: TypeLogin}) {
		t.Fatal("expected timeout failure")
	}
	if time.Since(start) > time.Second {
		t.Fatal("record blocked past the write timeout")
	}
	if logs.FilterMessage("audit write failed").Len() != 1 {
		t.Fatal("expected timeout to be reported")
	}
}

func TestRecordSurvivesCancelledRequest(t *testing.T) {
	store := &recordingStore{}
	logger, _ := newTestLogger(store)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if !logger.Record(ctx, Event{ActorUserID: "user-1", Type: TypeLogout}) {
		t.Fatal("expected write to proceed after request cancellation")
	}
}

func TestRecordWithoutStore(t *testing.T) {
	logger, logs := newTestLogger(nil)
	if logger.Record(context.Background(), Event{Type: TypeLogin}) {
		t.Fatal("expected failure without store")
	}
	if logs.Len() != 1 {
		t.Fatalf("expected one operator log line, got %d", logs.Len())
	}
}

func TestMirrorReceivesEntries(t *testing.T) {
	core, mirrored := observer.New(zapcore.InfoLevel)
	logger, _ := newTestLogger(&recordingStore{}, WithMirror(zap.New(core)))

	logger.Record(WithRequestID(context.Background(), "req-1"), Event{ActorUserID: "u", Type: "relatorio_exportado"})

	lines := mirrored.All()
	if len(lines) != 1 {
		t.Fatalf("expected one mirrored line, got %d", len(lines))
	}
	fields := lines[0].ContextMap()
	if lines[0].Message != "relatorio_exportado" || fields["type"] != "audit" || fields["request_id"] != "req-1" {
		t.Fatalf("unexpected mirror line: %s %v", lines[0].Message, fields)
	}
	if fields["keyword"] != "relatorio_exportado_atividade" {
		t.Fatalf("unexpected keyword: %v", fields["keyword"])
	}
}
