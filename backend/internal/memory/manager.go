package memory

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"discord-agent/backend/internal/state"
	"discord-agent/backend/internal/store"
	apperrors "discord-agent/backend/pkg/errors"
	"discord-agent/backend/pkg/logger"
)

// VectorIndex is the similarity side of memory storage
type VectorIndex interface {
	EnsureIndex(ctx context.Context) error
	Upsert(ctx context.Context, point state.VectorPoint) error
	Search(ctx context.Context, vector []float64, guildID string, topK int) ([]state.VectorHit, error)
	Delete(ctx context.Context, id string) error
	DeleteMany(ctx context.Context, ids []string) (int, error)
	ListIDs(ctx context.Context, guildID string) ([]string, error)
}

// MetadataStore is the relational side of memory storage
type MetadataStore interface {
	InsertMemory(ctx context.Context, rec state.MemoryRecord) error
	GetMemory(ctx context.Context, id string) (*state.MemoryRecord, error)
	GetMemories(ctx context.Context, ids []string) (map[string]state.MemoryRecord, error)
	ListMemoryIDs(ctx context.Context, guildID string) ([]string, error)
	DeleteMemories(ctx context.Context, ids []string) (int, error)
	DeleteMemory(ctx context.Context, id string) (bool, error)
	AddTags(ctx context.Context, id string, tags []string) ([]string, error)
}

// Embedder maps text to a vector
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float64, error)
}

// Manager owns the vector index and the metadata store and keeps them in step.
// Writes go vector first and single deletes go metadata first, so a failure between
// the two steps leaves an orphan vector. A guild purge drops vectors first so that
// nothing purged is retrievable even if the metadata delete fails; the leftover rows
// are deleted by the Reconciler.
type Manager struct {
	vectors    VectorIndex
	metadata   MetadataStore
	embedder   Embedder
	dimensions int
	timeout    time.Duration
	logger     *zap.Logger

	bootMu sync.Mutex
	booted bool
}

// NewManager creates a memory manager. timeout bounds each store call; zero disables it.
func NewManager(vectors VectorIndex, metadata MetadataStore, embedder Embedder, dimensions int, timeout time.Duration) *Manager {
	return &Manager{
		vectors:    vectors,
		metadata:   metadata,
		embedder:   embedder,
		dimensions: dimensions,
		timeout:    timeout,
		logger:     logger.Named("memory"),
	}
}

// Bootstrap makes sure the vector index exists. Concurrent callers block on one
// attempt; a failed attempt is retried by the next caller.
func (m *Manager) Bootstrap(ctx context.Context) error {
	m.bootMu.Lock()
	defer m.bootMu.Unlock()
	if m.booted {
		return nil
	}

	ctx, cancel := m.withTimeout(ctx)
	defer cancel()
	if err := m.vectors.EnsureIndex(ctx); err != nil {
		return apperrors.NewMemoryStoreFailed("vector", "bootstrap", err)
	}
	m.booted = true
	return nil
}

// Retrieve returns up to topK memories of guildID most similar to text, best first,
// ties broken by insertion order. An embedding failure yields an empty result.
func (m *Manager) Retrieve(ctx context.Context, text, guildID string, topK int) ([]state.ScoredMemory, error) {
	if topK <= 0 || guildID == "" {
		return []state.ScoredMemory{}, nil
	}
	if err := m.Bootstrap(ctx); err != nil {
		return nil, err
	}

	vector, err := m.embed(ctx, text)
	if err != nil {
		m.logger.Warn("Embedding failed, continuing without memories",
			zap.String("guild_id", guildID),
			zap.Error(err),
		)
		return []state.ScoredMemory{}, nil
	}

	sctx, cancel := m.withTimeout(ctx)
	hits, err := m.vectors.Search(sctx, vector, guildID, topK)
	cancel()
	if err != nil {
		return nil, apperrors.NewMemoryStoreFailed("vector", "search", err)
	}
	if len(hits) == 0 {
		return []state.ScoredMemory{}, nil
	}

	ids := make([]string, len(hits))
	for i, h := range hits {
		ids[i] = h.ID
	}

	mctx, cancel := m.withTimeout(ctx)
	records, err := m.metadata.GetMemories(mctx, ids)
	cancel()
	if err != nil {
		return nil, apperrors.NewMemoryStoreFailed("metadata", "get", err)
	}

	out := make([]state.ScoredMemory, 0, len(hits))
	for _, h := range hits {
		rec, ok := records[h.ID]
		if !ok {
			m.logger.Warn("Orphan vector: no metadata for search hit",
				zap.String("memory_id", h.ID),
				zap.String("guild_id", guildID),
			)
			continue
		}
		if rec.GuildID != guildID {
			m.logger.Error("Dropping cross-guild memory from search results",
				zap.String("memory_id", h.ID),
				zap.String("guild_id", guildID),
				zap.String("record_guild_id", rec.GuildID),
			)
			continue
		}
		out = append(out, state.ScoredMemory{Record: rec, Score: h.Score})
	}

	sortScored(out)
	if len(out) > topK {
		out = out[:topK]
	}
	return out, nil
}

// sortScored orders by descending score, then earliest insertion, then id
func sortScored(memories []state.ScoredMemory) {
	sort.SliceStable(memories, func(i, j int) bool {
		a, b := memories[i], memories[j]
		if a.Score != b.Score {
			return a.Score > b.Score
		}
		if !a.Record.CreatedAt.Equal(b.Record.CreatedAt) {
			return a.Record.CreatedAt.Before(b.Record.CreatedAt)
		}
		return a.Record.ID < b.Record.ID
	})
}

// Upsert stores rec under a freshly generated id and returns it. rec.Embedding is
// used when it has the index's dimensionality, otherwise rec.Text is embedded.
func (m *Manager) Upsert(ctx context.Context, rec state.MemoryRecord) (string, error) {
	if err := rec.Validate(); err != nil {
		return "", err
	}
	if rec.Summary == "" {
		rec.Summary = rec.Text
	}
	if err := m.Bootstrap(ctx); err != nil {
		return "", err
	}

	vector := rec.Embedding
	if len(vector) == 0 || (m.dimensions > 0 && len(vector) != m.dimensions) {
		var err error
		if vector, err = m.embed(ctx, rec.Text); err != nil {
			m.logger.Warn("Embedding failed, memory not stored",
				zap.String("guild_id", rec.GuildID),
				zap.Error(err),
			)
			return "", err
		}
	}

	rec.ID = uuid.New().String()
	rec.Embedding = vector
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now()
	}

	vctx, cancel := m.withTimeout(ctx)
	err := m.vectors.Upsert(vctx, state.VectorPoint{
		ID:        rec.ID,
		Vector:    vector,
		GuildID:   rec.GuildID,
		ChannelID: rec.ChannelID,
	})
	cancel()
	if err != nil {
		return "", apperrors.NewMemoryStoreFailed("vector", "upsert", err)
	}

	mctx, cancel := m.withTimeout(ctx)
	err = m.metadata.InsertMemory(mctx, rec)
	cancel()
	if err != nil {
		m.logger.Error("Metadata write failed after vector write",
			zap.String("memory_id", rec.ID),
			zap.String("guild_id", rec.GuildID),
			zap.String("channel_id", rec.ChannelID),
			zap.Error(err),
		)
		return "", apperrors.NewPartialConsistency("upsert", []string{rec.ID}, true, false, err)
	}

	m.logger.Debug("Memory stored",
		zap.String("memory_id", rec.ID),
		zap.String("guild_id", rec.GuildID),
	)
	return rec.ID, nil
}

// Get returns a memory's full record or store.ErrNotFound
func (m *Manager) Get(ctx context.Context, id string) (*state.MemoryRecord, error) {
	ctx, cancel := m.withTimeout(ctx)
	defer cancel()
	return m.metadata.GetMemory(ctx, id)
}

// Delete removes a memory from both stores. Deleting an unknown id succeeds.
func (m *Manager) Delete(ctx context.Context, id string) error {
	mctx, cancel := m.withTimeout(ctx)
	_, err := m.metadata.DeleteMemory(mctx, id)
	cancel()
	if err != nil {
		m.logger.Error("Metadata delete failed", zap.String("memory_id", id), zap.Error(err))
		return apperrors.NewMemoryStoreFailed("metadata", "delete", err)
	}

	vctx, cancel := m.withTimeout(ctx)
	err = m.vectors.Delete(vctx, id)
	cancel()
	if err != nil {
		m.logger.Error("Vector delete failed after metadata delete",
			zap.String("memory_id", id),
			zap.Error(err),
		)
		return apperrors.NewPartialConsistency("delete", []string{id}, false, true, err)
	}
	return nil
}

// Tag merges tags into a memory's metadata
func (m *Manager) Tag(ctx context.Context, id string, tags []string) ([]string, error) {
	ctx, cancel := m.withTimeout(ctx)
	defer cancel()
	merged, err := m.metadata.AddTags(ctx, id, tags)
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		return nil, apperrors.NewMemoryStoreFailed("metadata", "tag", err)
	}
	return merged, err
}

// PurgeGuild deletes every memory of guildID. The count is the number of ids
// targeted, returned even when a step failed.
func (m *Manager) PurgeGuild(ctx context.Context, guildID string) (int, error) {
	lctx, cancel := m.withTimeout(ctx)
	ids, err := m.metadata.ListMemoryIDs(lctx, guildID)
	cancel()
	if err != nil {
		return 0, apperrors.NewMemoryStoreFailed("metadata", "list", err)
	}
	if len(ids) == 0 {
		return 0, nil
	}

	vctx, cancel := m.withTimeout(ctx)
	_, vecErr := m.vectors.DeleteMany(vctx, ids)
	cancel()

	mctx, cancel := m.withTimeout(ctx)
	_, metaErr := m.metadata.DeleteMemories(mctx, ids)
	cancel()

	if vecErr == nil && metaErr == nil {
		m.logger.Info("Guild memories purged", zap.String("guild_id", guildID), zap.Int("count", len(ids)))
		return len(ids), nil
	}

	m.logger.Error("Guild purge incomplete",
		zap.String("guild_id", guildID),
		zap.Int("count", len(ids)),
		zap.NamedError("vector_error", vecErr),
		zap.NamedError("metadata_error", metaErr),
	)
	return len(ids), apperrors.NewPartialConsistency("purge", ids, vecErr == nil, metaErr == nil, errors.Join(vecErr, metaErr))
}

// StoreIDs enumerates the ids held by each store, optionally restricted to one guild
func (m *Manager) StoreIDs(ctx context.Context, guildID string) (vectorIDs, metadataIDs []string, err error) {
	vctx, cancel := m.withTimeout(ctx)
	vectorIDs, err = m.vectors.ListIDs(vctx, guildID)
	cancel()
	if err != nil {
		return nil, nil, apperrors.NewMemoryStoreFailed("vector", "list", err)
	}

	mctx, cancel := m.withTimeout(ctx)
	metadataIDs, err = m.metadata.ListMemoryIDs(mctx, guildID)
	cancel()
	if err != nil {
		return nil, nil, apperrors.NewMemoryStoreFailed("metadata", "list", err)
	}
	return vectorIDs, metadataIDs, nil
}

func (m *Manager) embed(ctx context.Context, text string) ([]float64, error) {
	ctx, cancel := m.withTimeout(ctx)
	defer cancel()
	vector, err := m.embedder.Embed(ctx, text)
	if err != nil {
		if apperrors.IsErrorType(err, apperrors.ErrorTypeAnalysis) {
			return nil, err
		}
		return nil, apperrors.NewEmbeddingFailure(err)
	}
	if m.dimensions > 0 && len(vector) != m.dimensions {
		return nil, apperrors.NewEmbeddingFailure(
			fmt.Errorf("embedding has %d dimensions, expected %d", len(vector), m.dimensions))
	}
	return vector, nil
}

func (m *Manager) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if m.timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, m.timeout)
}
