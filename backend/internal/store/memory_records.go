package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"go.uber.org/zap"

	"discord-agent/backend/internal/state"
)

const memoryColumns = "id, content, summary, guild_id, channel_id, user_id, message_id, tags, created_at"

// InsertMemory writes the full record. CreatedAt is set if zero.
func (s *Store) InsertMemory(ctx context.Context, rec state.MemoryRecord) error {
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now()
	}
	tags, err := encodeTags(rec.Tags)
	if err != nil {
		return err
	}

	query := fmt.Sprintf("INSERT INTO memory_records (%s) VALUES (%s)", memoryColumns, placeholders(9))
	_, err = s.db.ExecContext(ctx, query,
		rec.ID, rec.Text, rec.Summary, rec.GuildID, rec.ChannelID,
		rec.UserID, rec.MessageID, tags, rec.CreatedAt.UnixNano(),
	)
	if err != nil {
		return fmt.Errorf("failed to insert memory %s: %w", rec.ID, err)
	}
	return nil
}

// GetMemory returns a single record or ErrNotFound
func (s *Store) GetMemory(ctx context.Context, id string) (*state.MemoryRecord, error) {
	query := fmt.Sprintf("SELECT %s FROM memory_records WHERE id = ?", memoryColumns)
	rec, err := scanMemory(s.db.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get memory %s: %w", id, err)
	}
	return rec, nil
}

// GetMemories returns the records found for ids, keyed by id. Missing ids are absent.
func (s *Store) GetMemories(ctx context.Context, ids []string) (map[string]state.MemoryRecord, error) {
	out := make(map[string]state.MemoryRecord, len(ids))
	if len(ids) == 0 {
		return out, nil
	}

	query := fmt.Sprintf("SELECT %s FROM memory_records WHERE id IN (%s)", memoryColumns, placeholders(len(ids)))
	rows, err := s.db.QueryContext(ctx, query, stringArgs(ids)...)
	if err != nil {
		return nil, fmt.Errorf("failed to get memories: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		rec, err := scanMemory(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan memory: %w", err)
		}
		out[rec.ID] = *rec
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read memories: %w", err)
	}
	return out, nil
}

// ListMemoryIDs enumerates ids in insertion order, optionally restricted to one guild
func (s *Store) ListMemoryIDs(ctx context.Context, guildID string) ([]string, error) {
	query := "SELECT id FROM memory_records ORDER BY created_at, id"
	args := []interface{}{}
	if guildID != "" {
		query = "SELECT id FROM memory_records WHERE guild_id = ? ORDER BY created_at, id"
		args = append(args, guildID)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list memory ids: %w", err)
	}
	defer rows.Close()

	ids := []string{}
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan memory id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// DeleteMemory removes a record and reports whether it existed
func (s *Store) DeleteMemory(ctx context.Context, id string) (bool, error) {
	n, err := s.DeleteMemories(ctx, []string{id})
	return n > 0, err
}

// DeleteMemories removes records by id and returns how many rows were deleted
func (s *Store) DeleteMemories(ctx context.Context, ids []string) (int, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	query := fmt.Sprintf("DELETE FROM memory_records WHERE id IN (%s)", placeholders(len(ids)))
	res, err := s.db.ExecContext(ctx, query, stringArgs(ids)...)
	if err != nil {
		return 0, fmt.Errorf("failed to delete memories: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to count deleted memories: %w", err)
	}
	return int(n), nil
}

// AddTags merges tags into a record's tag set. Returns ErrNotFound for unknown ids.
func (s *Store) AddTags(ctx context.Context, id string, tags []string) ([]string, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var raw string
	err = tx.QueryRowContext(ctx, "SELECT tags FROM memory_records WHERE id = ?", id).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read tags for %s: %w", id, err)
	}

	merged := mergeTags(decodeTags(raw), tags)
	encoded, err := encodeTags(merged)
	if err != nil {
		return nil, err
	}
	if _, err := tx.ExecContext(ctx, "UPDATE memory_records SET tags = ? WHERE id = ?", encoded, id); err != nil {
		return nil, fmt.Errorf("failed to update tags for %s: %w", id, err)
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit tags for %s: %w", id, err)
	}

	s.logger.Debug("Memory tags updated", zap.String("memory_id", id), zap.Strings("tags", merged))
	return merged, nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanMemory(row rowScanner) (*state.MemoryRecord, error) {
	var rec state.MemoryRecord
	var tags string
	var createdAt int64
	if err := row.Scan(&rec.ID, &rec.Text, &rec.Summary, &rec.GuildID, &rec.ChannelID,
		&rec.UserID, &rec.MessageID, &tags, &createdAt); err != nil {
		return nil, err
	}
	rec.Tags = decodeTags(tags)
	rec.CreatedAt = time.Unix(0, createdAt)
	return &rec, nil
}

func encodeTags(tags []string) (string, error) {
	if tags == nil {
		tags = []string{}
	}
	b, err := json.Marshal(tags)
	if err != nil {
		return "", fmt.Errorf("failed to encode tags: %w", err)
	}
	return string(b), nil
}

func decodeTags(raw string) []string {
	var tags []string
	if raw == "" || json.Unmarshal([]byte(raw), &tags) != nil {
		return nil
	}
	if len(tags) == 0 {
		return nil
	}
	return tags
}

// mergeTags returns the sorted union of existing and added, without empties
func mergeTags(existing, added []string) []string {
	set := make(map[string]struct{}, len(existing)+len(added))
	for _, t := range existing {
		if t != "" {
			set[t] = struct{}{}
		}
	}
	for _, t := range added {
		if t != "" {
			set[t] = struct{}{}
		}
	}
	out := make([]string, 0, len(set))
	for t := range set {
		out = append(out, t)
	}
	sort.Strings(out)
	return out
}
