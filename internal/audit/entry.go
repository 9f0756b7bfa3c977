// Package audit records security-relevant events to the append-only audit log.
package audit

import (
	"context"
	"strings"
	"time"
)

// Event types with stable meaning. Callers may record any other label.
const (
	TypeLogin           = "login"
	TypeLogout          = "logout"
	TypeAccessDenied    = "acesso_negado"
	TypeLoginFailed     = "login_falha"
	TypeDashboardAccess = "dashboard_acesso"
)

// Outcome values stored in Entry.Status.
const (
	StatusSuccess = "sucesso"
	StatusFailure = "falha"
)

// MaxUserAgentLen bounds the stored user-agent string, in runes.
const MaxUserAgentLen = 100

// Entry is one immutable row of the audit log.
type Entry struct {
	ID              string    `json:"id"`
	ServerID        int       `json:"server_id"`
	ActorUserID     *string   `json:"actor_user_id"`
	EventType       string    `json:"event_type"`
	Category        string    `json:"category"`
	Status          string    `json:"status"`
	SourceIP        string    `json:"source_ip"`
	UserAgent       string    `json:"user_agent"`
	Keyword         string    `json:"keyword"`
	Description     string    `json:"description,omitempty"`
	IsActivityEntry bool      `json:"is_activity_entry"`
	OccurredAt      time.Time `json:"occurred_at"`
}

// Event is the logical input to Logger.Record.
type Event struct {
	// ActorUserID is empty for unauthenticated events and stored as null.
	ActorUserID string
	Type        string
	// Status defaults to StatusSuccess.
	Status      string
	Description string
	IP          string
	UserAgent   string
}

// Store appends entries. Implementations never update or delete rows.
type Store interface {
	AppendAudit(ctx context.Context, entry *Entry) error
}

// category is the upper-case class of an event ("LOGIN", "ACESSO_NEGADO").
func category(eventType string) string {
	return strings.ToUpper(eventType)
}

// keyword is the search tag stored with each entry.
func keyword(eventType string) string {
	switch eventType {
	case TypeLogin:
		return "login_usuario"
	case TypeLogout:
		return "logout_usuario"
	default:
		return eventType + "_atividade"
	}
}

func truncateUserAgent(ua string) string {
	ua = strings.TrimSpace(ua)
	if ua == "" {
		return "unknown"
	}
	runes := []rune(ua)
	if len(runes) > MaxUserAgentLen {
		return string(runes[:MaxUserAgentLen])
	}
	return ua
}
