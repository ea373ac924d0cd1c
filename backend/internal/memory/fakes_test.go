package memory

import (
	"context"
	"errors"
	"hash/fnv"
	"math"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/require"

	"discord-agent/backend/internal/state"
	"discord-agent/backend/internal/store"
)

const testDims = 32

// bagOfWords embeds text by hashing lower-cased words into testDims buckets
type bagOfWords struct {
	fail atomic.Bool
}

func (b *bagOfWords) Embed(ctx context.Context, text string) ([]float64, error) {
	if b.fail.Load() {
		return nil, errors.New("embedding service unreachable")
	}
	vec := make([]float64, testDims)
	for _, w := range strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !(r >= 'a' && r <= 'z' || r >= '0' && r <= '9')
	}) {
		h := fnv.New32a()
		_, _ = h.Write([]byte(w))
		vec[h.Sum32()%testDims]++
	}
	return vec, nil
}

// memIndex is an in-memory VectorIndex with exact cosine search
type memIndex struct {
	mu          sync.Mutex
	points      map[string]state.VectorPoint
	ensureCalls atomic.Int32
	ignoreGuild bool
	failUpsert  bool
	failDelete  bool
}

func newMemIndex() *memIndex {
	return &memIndex{points: make(map[string]state.VectorPoint)}
}

func (m *memIndex) EnsureIndex(ctx context.Context) error {
	m.ensureCalls.Add(1)
	return nil
}

func (m *memIndex) Upsert(ctx context.Context, p state.VectorPoint) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failUpsert {
		return errors.New("vector index down")
	}
	m.points[p.ID] = p
	return nil
}

func (m *memIndex) Search(ctx context.Context, vector []float64, guildID string, topK int) ([]state.VectorHit, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	hits := []state.VectorHit{}
	for _, p := range m.points {
		if !m.ignoreGuild && p.GuildID != guildID {
			continue
		}
		hits = append(hits, state.VectorHit{ID: p.ID, Score: cosine(vector, p.Vector)})
	}
	sort.Slice(hits, func(i, j int) bool {
		if hits[i].Score != hits[j].Score {
			return hits[i].Score > hits[j].Score
		}
		return hits[i].ID < hits[j].ID
	})
	if len(hits) > topK {
		hits = hits[:topK]
	}
	return hits, nil
}

func (m *memIndex) Delete(ctx context.Context, id string) error {
	_, err := m.DeleteMany(ctx, []string{id})
	return err
}

func (m *memIndex) DeleteMany(ctx context.Context, ids []string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failDelete {
		return 0, errors.New("vector index down")
	}
	n := 0
	for _, id := range ids {
		if _, ok := m.points[id]; ok {
			delete(m.points, id)
			n++
		}
	}
	return n, nil
}

func (m *memIndex) ListIDs(ctx context.Context, guildID string) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	ids := []string{}
	for id, p := range m.points {
		if guildID == "" || p.GuildID == guildID {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	return ids, nil
}

func (m *memIndex) has(id string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.points[id]
	return ok
}

// flakyMetadata wraps a real store and fails selected writes
type flakyMetadata struct {
	MetadataStore
	failInsert bool
	failDelete bool
}

func (f *flakyMetadata) InsertMemory(ctx context.Context, rec state.MemoryRecord) error {
	if f.failInsert {
		return errors.New("metadata store down")
	}
	return f.MetadataStore.InsertMemory(ctx, rec)
}

func (f *flakyMetadata) DeleteMemory(ctx context.Context, id string) (bool, error) {
	if f.failDelete {
		return false, errors.New("metadata store down")
	}
	return f.MetadataStore.DeleteMemory(ctx, id)
}

func (f *flakyMetadata) DeleteMemories(ctx context.Context, ids []string) (int, error) {
	if f.failDelete {
		return 0, errors.New("metadata store down")
	}
	return f.MetadataStore.DeleteMemories(ctx, ids)
}

func cosine(a, b []float64) float64 {
	var dot, na, nb float64
	for i := range a {
		dot += a[i] * b[i]
		na += a[i] * a[i]
		nb += b[i] * b[i]
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}

type fixture struct {
	manager  *Manager
	index    *memIndex
	metadata *flakyMetadata
	embedder *bagOfWords
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	s, err := store.Open(context.Background(), store.DriverSQLite, ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })

	f := &fixture{
		index:    newMemIndex(),
		metadata: &flakyMetadata{MetadataStore: s},
		embedder: &bagOfWords{},
	}
	f.manager = NewManager(f.index, f.metadata, f.embedder, testDims, 0)
	return f
}
