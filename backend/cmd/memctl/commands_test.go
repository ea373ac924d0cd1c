package main

import (
	"bytes"
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"discord-agent/backend/internal/memory"
	"discord-agent/backend/internal/state"
	"discord-agent/backend/internal/store"
)

func runCmd(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func useTempStore(t *testing.T) string {
	t.Helper()
	dsn := filepath.Join(t.TempDir(), "agent.db")
	t.Setenv("METADATA_DRIVER", "sqlite")
	t.Setenv("METADATA_DSN", dsn)
	return dsn
}

func TestSeedGuild(t *testing.T) {
	dsn := useTempStore(t)

	out, err := runCmd(t, "seed-guild", "g1", "--owner", "o1", "--country", "UK", "--name", "Pip", "--allowed", "send_message,ban")
	require.NoError(t, err)
	assert.Contains(t, out, "guild g1 configured with persona Pip (UK)")

	st, err := store.Open(context.Background(), store.DriverSQLite, dsn)
	require.NoError(t, err)
	defer st.Close()

	profile, err := st.GetGuildProfile(context.Background(), "g1")
	require.NoError(t, err)
	assert.Equal(t, "Pip", profile.Persona.Name)
	assert.Equal(t, "UK", profile.Persona.Country)
	assert.Equal(t, "o1", profile.Config.OwnerID)
	assert.True(t, profile.Config.Allows("ban"))
}

func TestAudit(t *testing.T) {
	dsn := useTempStore(t)

	out, err := runCmd(t, "audit", "g1")
	require.NoError(t, err)
	assert.Contains(t, out, "No audit entries found.")

	st, err := store.Open(context.Background(), store.DriverSQLite, dsn)
	require.NoError(t, err)
	_, err = st.InsertAudit(context.Background(), state.AuditEntry{GuildID: "g1", Action: "kick", ActorID: "bot"})
	require.NoError(t, err)
	require.NoError(t, st.Close())

	out, err = runCmd(t, "audit", "g1")
	require.NoError(t, err)
	assert.Contains(t, out, "kick")
}

func TestArgsAreValidated(t *testing.T) {
	_, err := runCmd(t, "purge")
	assert.Error(t, err)

	_, err = runCmd(t, "seed-guild")
	assert.Error(t, err)
}

func TestPrintReport(t *testing.T) {
	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)

	printReport(cmd, memory.Report{
		VectorIDs:       3,
		MetadataIDs:     3,
		OrphanVectors:   []string{"a"},
		OrphanMetadata:  []string{"b"},
		VectorsDeleted:  1,
		MetadataDeleted: 1,
		Failed:          1,
	})

	assert.Contains(t, out.String(), "orphan vectors:   1 (deleted 1, deferred 0)")
	assert.Contains(t, out.String(), "orphan metadata:  1 (deleted 1)")
	assert.Contains(t, out.String(), "failed:           1")
}
