package store

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"discord-agent/backend/internal/state"
)

// InsertAudit appends an audit entry, assigning ID and CreatedAt when empty
func (s *Store) InsertAudit(ctx context.Context, entry state.AuditEntry) (state.AuditEntry, error) {
	if entry.ID == "" {
		entry.ID = uuid.New().String()
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now()
	}

	_, err := s.db.ExecContext(ctx,
		"INSERT INTO audit_logs (id, guild_id, action, actor_id, details, created_at) VALUES (?, ?, ?, ?, ?, ?)",
		entry.ID, entry.GuildID, entry.Action, entry.ActorID, entry.Details, entry.CreatedAt.UnixNano(),
	)
	if err != nil {
		return entry, fmt.Errorf("failed to insert audit entry: %w", err)
	}
	return entry, nil
}

// ListAudit returns the newest entries for a guild, newest first
func (s *Store) ListAudit(ctx context.Context, guildID string, limit int) ([]state.AuditEntry, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx,
		"SELECT id, guild_id, action, actor_id, details, created_at FROM audit_logs WHERE guild_id = ? ORDER BY created_at DESC LIMIT ?",
		guildID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list audit entries: %w", err)
	}
	defer rows.Close()

	entries := []state.AuditEntry{}
	for rows.Next() {
		var e state.AuditEntry
		var createdAt int64
		if err := rows.Scan(&e.ID, &e.GuildID, &e.Action, &e.ActorID, &e.Details, &createdAt); err != nil {
			return nil, fmt.Errorf("failed to scan audit entry: %w", err)
		}
		e.CreatedAt = time.Unix(0, createdAt)
		entries = append(entries, e)
	}
	return entries, rows.Err()
}
