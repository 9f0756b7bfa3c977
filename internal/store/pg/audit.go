package pg

import (
	"context"
	"database/sql"

	"gestix.app/internal/audit"
)

// AppendAudit inserts one audit row. The table has no update or delete path.
func (s *Store) AppendAudit(ctx context.Context, e *audit.Entry) error {
	if s.db == nil {
		return errNoDB
	}
	_, err := s.db.ExecContext(ctx, `
		insert into audit_log (id, server_id, actor_user_id, event_type, category, status,
			source_ip, user_agent, keyword, description, is_activity_entry, occurred_at)
		values ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`, e.ID, e.ServerID, actorArg(e.ActorUserID), e.EventType, e.Category, e.Status,
		e.SourceIP, e.UserAgent, e.Keyword, nullIfEmpty(e.Description), e.IsActivityEntry, e.OccurredAt)
	return err
}

// RecentAudit returns the newest entries first.
func (s *Store) RecentAudit(ctx context.Context, limit int) ([]audit.Entry, error) {
	if s.db == nil {
		return nil, errNoDB
	}
	if limit <= 0 || limit > 1000 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx, `
		select id, server_id, actor_user_id, event_type, category, status,
			source_ip, user_agent, keyword, coalesce(description, ''), is_activity_entry, occurred_at
		from audit_log
		order by occurred_at desc, id desc
		limit $1
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []audit.Entry
	for rows.Next() {
		var (
			e     audit.Entry
			actor sql.NullString
		)
		if err := rows.Scan(&e.ID, &e.ServerID, &actor, &e.EventType, &e.Category, &e.Status,
			&e.SourceIP, &e.UserAgent, &e.Keyword, &e.Description, &e.IsActivityEntry, &e.OccurredAt); err != nil {
			return nil, err
		}
		if actor.Valid {
			a := actor.String
			e.ActorUserID = &a
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

func actorArg(actor *string) sql.NullString {
	if actor == nil {
		return sql.NullString{}
	}
	return nullIfEmpty(*actor)
}
