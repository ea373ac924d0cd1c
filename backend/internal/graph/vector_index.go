package graph

import (
	"context"
	"fmt"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
	"go.uber.org/zap"

	"discord-agent/backend/internal/state"
)

// EnsureIndex verifies the vector index exists with the configured dimensionality
// and creates it if absent, along with the id constraint and the guildId index
// Search relies on. Safe to call concurrently from several processes.
func (r *Repository) EnsureIndex(ctx context.Context) error {
	dims, found, err := r.indexDimensions(ctx)
	if err != nil {
		return err
	}
	if found && dims != r.dimensions {
		return ErrDimensionMismatch{Expected: r.dimensions, Actual: dims}
	}

	session := r.session(ctx, neo4j.AccessModeWrite)
	defer session.Close(ctx)

	for _, stmt := range schemaStatements() {
		if err := runAndConsume(ctx, session, stmt, nil); err != nil && !isAlreadyExists(err) {
			return fmt.Errorf("failed to create schema: %w", err)
		}
	}
	if found {
		return nil
	}

	// Index options cannot be parameterised
	query := fmt.Sprintf(`
		CREATE VECTOR INDEX %s IF NOT EXISTS
		FOR (v:%s) ON (v.embedding)
		OPTIONS {indexConfig: {
			`+"`vector.dimensions`"+`: %d,
			`+"`vector.similarity_function`"+`: 'cosine'
		}}
	`, VectorIndexName, VectorLabel, r.dimensions)

	if err := runAndConsume(ctx, session, query, nil); err != nil {
		if isAlreadyExists(err) {
			r.logger.Debug("Vector index created concurrently", zap.String("index", VectorIndexName))
			return nil
		}
		return fmt.Errorf("failed to create vector index: %w", err)
	}

	r.logger.Info("Vector index created",
		zap.String("index", VectorIndexName),
		zap.Int("dimensions", r.dimensions),
	)
	return nil
}

// schemaStatements are the idempotent constraint and property index statements
func schemaStatements() []string {
	return []string{
		fmt.Sprintf("CREATE CONSTRAINT memory_vector_id IF NOT EXISTS FOR (v:%s) REQUIRE v.id IS UNIQUE", VectorLabel),
		fmt.Sprintf("CREATE INDEX %s IF NOT EXISTS FOR (v:%s) ON (v.guildId)", GuildIndexName, VectorLabel),
	}
}

func (r *Repository) indexDimensions(ctx context.Context) (int, bool, error) {
	session := r.session(ctx, neo4j.AccessModeRead)
	defer session.Close(ctx)

	query := fmt.Sprintf("SHOW INDEXES YIELD name, options WHERE name = '%s' RETURN options", VectorIndexName)
	result, err := session.Run(ctx, query, nil)
	if err != nil {
		return 0, false, fmt.Errorf("failed to inspect indexes: %w", err)
	}

	if !result.Next(ctx) {
		if err := result.Err(); err != nil {
			return 0, false, fmt.Errorf("failed to inspect indexes: %w", err)
		}
		return 0, false, nil
	}

	options, _ := result.Record().Get("options")
	dims, ok := indexDimensions(options)
	if !ok {
		return 0, true, fmt.Errorf("index %s has no vector dimensions", VectorIndexName)
	}
	return dims, true, nil
}

// Upsert writes a memory vector with its minimal payload
func (r *Repository) Upsert(ctx context.Context, point state.VectorPoint) error {
	if len(point.Vector) != r.dimensions {
		return ErrDimensionMismatch{Expected: r.dimensions, Actual: len(point.Vector)}
	}

	session := r.session(ctx, neo4j.AccessModeWrite)
	defer session.Close(ctx)

	query := fmt.Sprintf(`
		MERGE (v:%s {id: $id})
		SET v.embedding = $embedding,
		    v.guildId = $guildId,
		    v.channelId = $channelId,
		    v.updated_at = datetime()
	`, VectorLabel)

	err := runAndConsume(ctx, session, query, map[string]interface{}{
		"id":        point.ID,
		"embedding": point.Vector,
		"guildId":   point.GuildID,
		"channelId": point.ChannelID,
	})
	if err != nil {
		return fmt.Errorf("failed to upsert vector: %w", err)
	}
	return nil
}

// Search returns the topK most similar vectors belonging to guildID, best first.
// The guild filter is applied before ranking so other guilds never compete for slots.
func (r *Repository) Search(ctx context.Context, vector []float64, guildID string, topK int) ([]state.VectorHit, error) {
	if topK <= 0 {
		return []state.VectorHit{}, nil
	}
	if len(vector) != r.dimensions {
		return nil, ErrDimensionMismatch{Expected: r.dimensions, Actual: len(vector)}
	}

	session := r.session(ctx, neo4j.AccessModeRead)
	defer session.Close(ctx)

	query := fmt.Sprintf(`
		MATCH (v:%s {guildId: $guildId})
		WITH v, vector.similarity.cosine(v.embedding, $embedding) AS score
		ORDER BY score DESC
		LIMIT $topK
		RETURN v.id AS id, v.guildId AS guild_id, score
	`, VectorLabel)

	result, err := session.Run(ctx, query, map[string]interface{}{
		"guildId":   guildID,
		"embedding": vector,
		"topK":      int64(topK),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to search vectors: %w", err)
	}

	hits := make([]state.VectorHit, 0, topK)
	for result.Next(ctx) {
		record := result.Record()
		if getStringFromRecord(record, "guild_id") != guildID {
			continue
		}
		hits = append(hits, state.VectorHit{
			ID:    getStringFromRecord(record, "id"),
			Score: getFloat64FromRecord(record, "score"),
		})
	}
	if err := result.Err(); err != nil {
		return nil, fmt.Errorf("failed to read search results: %w", err)
	}

	return hits, nil
}

// Delete removes a single vector. Deleting a missing id is not an error.
func (r *Repository) Delete(ctx context.Context, id string) error {
	_, err := r.DeleteMany(ctx, []string{id})
	return err
}

// DeleteMany removes vectors by id and returns how many nodes were deleted
func (r *Repository) DeleteMany(ctx context.Context, ids []string) (int, error) {
	if len(ids) == 0 {
		return 0, nil
	}

	session := r.session(ctx, neo4j.AccessModeWrite)
	defer session.Close(ctx)

	query := fmt.Sprintf(`
		UNWIND $ids AS id
		MATCH (v:%s {id: id})
		DETACH DELETE v
	`, VectorLabel)

	result, err := session.Run(ctx, query, map[string]interface{}{"ids": ids})
	if err != nil {
		return 0, fmt.Errorf("failed to delete vectors: %w", err)
	}
	summary, err := result.Consume(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to delete vectors: %w", err)
	}

	deleted := summary.Counters().NodesDeleted()
	r.logger.Debug("Vectors deleted",
		zap.Int("requested", len(ids)),
		zap.Int("deleted", deleted),
	)
	return deleted, nil
}

// ListIDs enumerates vector ids, optionally restricted to one guild
func (r *Repository) ListIDs(ctx context.Context, guildID string) ([]string, error) {
	session := r.session(ctx, neo4j.AccessModeRead)
	defer session.Close(ctx)

	query := fmt.Sprintf(`
		MATCH (v:%s)
		WHERE $guildId = '' OR v.guildId = $guildId
		RETURN collect(v.id) AS ids
	`, VectorLabel)

	result, err := session.Run(ctx, query, map[string]interface{}{"guildId": guildID})
	if err != nil {
		return nil, fmt.Errorf("failed to list vector ids: %w", err)
	}
	if !result.Next(ctx) {
		if err := result.Err(); err != nil {
			return nil, fmt.Errorf("failed to list vector ids: %w", err)
		}
		return []string{}, nil
	}

	return getStringSliceFromRecord(result.Record(), "ids"), nil
}

func runAndConsume(ctx context.Context, session neo4j.SessionWithContext, query string, params map[string]interface{}) error {
	result, err := session.Run(ctx, query, params)
	if err != nil {
		return err
	}
	_, err = result.Consume(ctx)
	return err
}
