package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"discord-agent/backend/internal/state"
	apperrors "discord-agent/backend/pkg/errors"
)

// GetGuildProfile returns the guild's persona and configuration.
// A guild without a config row, or whose persona row is missing, yields ErrPersonaNotFound.
func (s *Store) GetGuildProfile(ctx context.Context, guildID string) (*state.GuildProfile, error) {
	query := `
		SELECT c.guild_id, c.owner_id, c.persona_id, c.allowed_commands,
		       p.id, p.name, p.age, p.gender, p.country, p.backstory,
		       p.sarcastic_sweet, p.chaotic_calm, p.meme_frequency
		FROM server_configs c
		JOIN personas p ON p.id = c.persona_id
		WHERE c.guild_id = ?
	`

	var profile state.GuildProfile
	cfg, p := &profile.Config, &profile.Persona
	err := s.db.QueryRowContext(ctx, query, guildID).Scan(
		&cfg.GuildID, &cfg.OwnerID, &cfg.PersonaID, &cfg.AllowedCommands,
		&p.ID, &p.Name, &p.Age, &p.Gender, &p.Country, &p.Backstory,
		&p.SarcasticSweet, &p.ChaoticCalm, &p.MemeFrequency,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperrors.NewPersonaNotFound(guildID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load guild profile %s: %w", guildID, err)
	}
	return &profile, nil
}

// GetServerConfig returns a guild's configuration row or ErrGuildNotConfigured
func (s *Store) GetServerConfig(ctx context.Context, guildID string) (*state.ServerConfig, error) {
	var cfg state.ServerConfig
	err := s.db.QueryRowContext(ctx,
		"SELECT guild_id, owner_id, persona_id, allowed_commands FROM server_configs WHERE guild_id = ?",
		guildID,
	).Scan(&cfg.GuildID, &cfg.OwnerID, &cfg.PersonaID, &cfg.AllowedCommands)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperrors.NewGuildNotConfigured(guildID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load server config %s: %w", guildID, err)
	}
	return &cfg, nil
}

// SaveGuild replaces the guild's persona and configuration in one transaction
func (s *Store) SaveGuild(ctx context.Context, persona state.Persona, cfg state.ServerConfig) error {
	if persona.ID == "" || cfg.GuildID == "" {
		return fmt.Errorf("persona id and guild id are required")
	}
	cfg.PersonaID = persona.ID

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, "DELETE FROM personas WHERE id = ?", persona.ID); err != nil {
		return fmt.Errorf("failed to replace persona: %w", err)
	}
	_, err = tx.ExecContext(ctx, `
		INSERT INTO personas (id, name, age, gender, country, backstory, sarcastic_sweet, chaotic_calm, meme_frequency)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		persona.ID, persona.Name, persona.Age, persona.Gender, persona.Country, persona.Backstory,
		persona.SarcasticSweet, persona.ChaoticCalm, persona.MemeFrequency,
	)
	if err != nil {
		return fmt.Errorf("failed to insert persona: %w", err)
	}

	if _, err := tx.ExecContext(ctx, "DELETE FROM server_configs WHERE guild_id = ?", cfg.GuildID); err != nil {
		return fmt.Errorf("failed to replace server config: %w", err)
	}
	_, err = tx.ExecContext(ctx,
		"INSERT INTO server_configs (guild_id, owner_id, persona_id, allowed_commands) VALUES (?, ?, ?, ?)",
		cfg.GuildID, cfg.OwnerID, cfg.PersonaID, cfg.AllowedCommands,
	)
	if err != nil {
		return fmt.Errorf("failed to insert server config: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit guild %s: %w", cfg.GuildID, err)
	}

	s.logger.Info("Guild configuration saved",
		zap.String("guild_id", cfg.GuildID),
		zap.String("persona", persona.Name),
		zap.String("allowed_commands", cfg.AllowedCommands),
	)
	return nil
}
