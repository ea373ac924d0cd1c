package memory

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"discord-agent/backend/internal/state"
)

func TestReconciler_OrphanVectorNeedsTwoPasses(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.metadata.failInsert = true
	_, err := f.manager.Upsert(ctx, record("G", "orphaned"))
	require.Error(t, err)
	f.metadata.failInsert = false

	r := NewReconciler(f.manager)

	report, err := r.Reconcile(ctx, false)
	require.NoError(t, err)
	assert.Len(t, report.OrphanVectors, 1)
	assert.Equal(t, 1, report.Deferred)
	assert.Equal(t, 0, report.VectorsDeleted)

	report, err = r.Reconcile(ctx, false)
	require.NoError(t, err)
	assert.Equal(t, 1, report.VectorsDeleted)

	vectorIDs, _, err := f.manager.StoreIDs(ctx, "")
	require.NoError(t, err)
	assert.Empty(t, vectorIDs)
}

func TestReconciler_ImmediateDeletesOrphanVectors(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	require.NoError(t, f.index.Upsert(ctx, state.VectorPoint{ID: "stray", Vector: make([]float64, testDims), GuildID: "G"}))

	report, err := NewReconciler(f.manager).Reconcile(ctx, true)
	require.NoError(t, err)
	assert.Equal(t, []string{"stray"}, report.OrphanVectors)
	assert.Equal(t, 1, report.VectorsDeleted)
	assert.False(t, f.index.has("stray"))
}

func TestReconciler_DeletesOrphanMetadata(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	require.NoError(t, f.metadata.InsertMemory(ctx, state.MemoryRecord{
		ID: "meta-only", Text: "the deadline is Friday", GuildID: "G", ChannelID: "c", CreatedAt: time.Now(),
	}))

	report, err := NewReconciler(f.manager).Reconcile(ctx, false)
	require.NoError(t, err)
	assert.Equal(t, []string{"meta-only"}, report.OrphanMetadata)
	assert.Equal(t, 1, report.MetadataDeleted)
	assert.Equal(t, 0, report.Failed)
	assert.False(t, f.index.has("meta-only"))

	_, metadataIDs, err := f.manager.StoreIDs(ctx, "")
	require.NoError(t, err)
	assert.Empty(t, metadataIDs)
}

func TestReconciler_PartialPurgeStaysPurged(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.manager.Upsert(ctx, record("G", "the deadline is Friday"))
	require.NoError(t, err)

	f.metadata.failDelete = true
	n, err := f.manager.PurgeGuild(ctx, "G")
	require.Error(t, err)
	assert.Equal(t, 1, n)
	f.metadata.failDelete = false

	got, err := f.manager.Retrieve(ctx, "when is the deadline", "G", 5)
	require.NoError(t, err)
	assert.Empty(t, got)

	report, err := NewReconciler(f.manager).Reconcile(ctx, false)
	require.NoError(t, err)
	assert.Len(t, report.OrphanMetadata, 1)
	assert.Equal(t, 1, report.MetadataDeleted)

	got, err = f.manager.Retrieve(ctx, "when is the deadline", "G", 5)
	require.NoError(t, err)
	assert.Empty(t, got)

	vectorIDs, metadataIDs, err := f.manager.StoreIDs(ctx, "G")
	require.NoError(t, err)
	assert.Empty(t, vectorIDs)
	assert.Empty(t, metadataIDs)
}

func TestReconciler_OrphanMetadataDeleteFailureIsCounted(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	require.NoError(t, f.metadata.InsertMemory(ctx, state.MemoryRecord{
		ID: "meta-only", Text: "stale", GuildID: "G", ChannelID: "c", CreatedAt: time.Now(),
	}))
	f.metadata.failDelete = true

	report, err := NewReconciler(f.manager).Reconcile(ctx, true)
	require.NoError(t, err)
	assert.Equal(t, 0, report.MetadataDeleted)
	assert.Equal(t, 1, report.Failed)
	assert.False(t, f.index.has("meta-only"))
}

func TestReconciler_ConsistentStoresAreUntouched(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.manager.Upsert(ctx, record("G", "fine"))
	require.NoError(t, err)

	report, err := NewReconciler(f.manager).Reconcile(ctx, true)
	require.NoError(t, err)
	assert.Empty(t, report.OrphanVectors)
	assert.Empty(t, report.OrphanMetadata)
	assert.Equal(t, 1, report.VectorIDs)
	assert.Equal(t, 1, report.MetadataIDs)
}

func TestReconciler_Schedule(t *testing.T) {
	f := newFixture(t)
	r := NewReconciler(f.manager)

	c, err := r.Schedule("@every 1h", time.Minute)
	require.NoError(t, err)
	assert.Len(t, c.Entries(), 1)

	_, err = r.Schedule("not a schedule", time.Minute)
	assert.Error(t, err)
}

func TestDifference(t *testing.T) {
	assert.Equal(t, []string{"a", "c"}, difference([]string{"a", "b", "c"}, []string{"b", "d"}))
	assert.Equal(t, []string{}, difference(nil, []string{"x"}))
}
