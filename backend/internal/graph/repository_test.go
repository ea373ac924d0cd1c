package graph

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"discord-agent/backend/internal/state"
)

func TestIndexDimensions(t *testing.T) {
	dims, ok := indexDimensions(map[string]interface{}{
		"indexProvider": "vector-2.0",
		"indexConfig": map[string]interface{}{
			"vector.dimensions":          int64(384),
			"vector.similarity_function": "COSINE",
		},
	})
	assert.True(t, ok)
	assert.Equal(t, 384, dims)

	_, ok = indexDimensions(map[string]interface{}{"indexConfig": map[string]interface{}{}})
	assert.False(t, ok)

	_, ok = indexDimensions(nil)
	assert.False(t, ok)
}

func TestIsAlreadyExists(t *testing.T) {
	err := fmt.Errorf("wrapped: %w", &neo4j.Neo4jError{
		Code: "Neo.ClientError.Schema.EquivalentSchemaRuleAlreadyExists",
		Msg:  "An equivalent index already exists",
	})
	assert.True(t, isAlreadyExists(err))

	assert.False(t, isAlreadyExists(&neo4j.Neo4jError{Code: "Neo.ClientError.Statement.SyntaxError"}))
	assert.False(t, isAlreadyExists(fmt.Errorf("plain")))
}

func TestRepository_RejectsWrongDimensions(t *testing.T) {
	repo := &Repository{dimensions: 3}
	err := repo.Upsert(context.Background(), state.VectorPoint{ID: "x", Vector: []float64{1, 2}})
	var mismatch ErrDimensionMismatch
	require.ErrorAs(t, err, &mismatch)
	assert.Equal(t, 3, mismatch.Expected)
	assert.Equal(t, 2, mismatch.Actual)

	_, err = repo.Search(context.Background(), []float64{1}, "g", 5)
	assert.Error(t, err)

	hits, err := repo.Search(context.Background(), []float64{1}, "g", 0)
	require.NoError(t, err)
	assert.Empty(t, hits)
}

func TestSchemaStatements(t *testing.T) {
	stmts := schemaStatements()
	require.Len(t, stmts, 2)
	assert.Contains(t, stmts[0], "REQUIRE v.id IS UNIQUE")
	assert.Equal(t, "CREATE INDEX memory_vector_guild IF NOT EXISTS FOR (v:MemoryVector) ON (v.guildId)", stmts[1])
	for _, stmt := range stmts {
		assert.Contains(t, stmt, "IF NOT EXISTS")
	}
}

// TestRepository_VectorRoundTrip requires a running Neo4j 5.18+ instance.
// Set NEO4J_URI, NEO4J_USER, NEO4J_PASSWORD environment variables.
func TestRepository_VectorRoundTrip(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test")
	}
	driver := createTestDriver(t)

	ctx := context.Background()
	repo := NewRepository(driver, "", 3)
	require.NoError(t, repo.EnsureIndex(ctx))
	// Second call sees the existing index
	require.NoError(t, repo.EnsureIndex(ctx))

	indexed := func() bool {
		session := driver.NewSession(ctx, neo4j.SessionConfig{AccessMode: neo4j.AccessModeRead})
		defer session.Close(ctx)
		result, err := session.Run(ctx,
			fmt.Sprintf("SHOW INDEXES YIELD name WHERE name = '%s' RETURN name", GuildIndexName), nil)
		require.NoError(t, err)
		return result.Next(ctx)
	}
	assert.True(t, indexed(), "guildId index should exist")

	suffix := time.Now().Format("20060102150405.000")
	guildA, guildB := "guild-a-"+suffix, "guild-b-"+suffix
	near, far, foreign := "near-"+suffix, "far-"+suffix, "foreign-"+suffix

	defer func() {
		_, _ = repo.DeleteMany(ctx, []string{near, far, foreign})
	}()

	require.NoError(t, repo.Upsert(ctx, state.VectorPoint{ID: near, Vector: []float64{1, 0, 0}, GuildID: guildA, ChannelID: "c"}))
	require.NoError(t, repo.Upsert(ctx, state.VectorPoint{ID: far, Vector: []float64{0, 1, 0}, GuildID: guildA, ChannelID: "c"}))
	require.NoError(t, repo.Upsert(ctx, state.VectorPoint{ID: foreign, Vector: []float64{1, 0, 0}, GuildID: guildB, ChannelID: "c"}))

	hits, err := repo.Search(ctx, []float64{1, 0, 0}, guildA, 5)
	require.NoError(t, err)
	require.Len(t, hits, 2)
	assert.Equal(t, near, hits[0].ID)
	assert.Equal(t, far, hits[1].ID)

	ids, err := repo.ListIDs(ctx, guildB)
	require.NoError(t, err)
	assert.Equal(t, []string{foreign}, ids)

	deleted, err := repo.DeleteMany(ctx, []string{near, far})
	require.NoError(t, err)
	assert.Equal(t, 2, deleted)

	ids, err = repo.ListIDs(ctx, guildA)
	require.NoError(t, err)
	assert.Empty(t, ids)
}

func createTestDriver(t *testing.T) neo4j.DriverWithContext {
	t.Helper()
	uri := os.Getenv("NEO4J_URI")
	if uri == "" {
		t.Skip("NEO4J_URI not set")
	}
	user := os.Getenv("NEO4J_USER")
	if user == "" {
		user = "neo4j"
	}

	ctx := context.Background()
	driver, err := NewDriver(ctx, uri, user, os.Getenv("NEO4J_PASSWORD"))
	if err != nil {
		t.Fatalf("Failed to create driver: %v", err)
	}
	t.Cleanup(func() { _ = driver.Close(ctx) })
	return driver
}
