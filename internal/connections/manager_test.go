package connections_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/grokking-vietnam/querybench/internal/connections"
	"github.com/grokking-vietnam/querybench/internal/engine"
)

func newManager(t *testing.T) *connections.Manager {
	t.Helper()
	return connections.NewManager(t.TempDir())
}

func TestSaveAssignsIdentity(t *testing.T) {
	m := newManager(t)

	stored, err := m.Save(&engine.ConnectionDescriptor{
		Name:     "local postgres",
		Engine:   engine.PostgreSQL,
		Host:     "localhost",
		Database: "appdb",
		Username: "dev",
		Secret:   "vault://pg/dev",
	})
	require.NoError(t, err)
	require.NotEmpty(t, stored.ID)
	require.False(t, stored.CreatedAt.IsZero())

	// Saving again with an id keeps it.
	again, err := m.Save(stored)
	require.NoError(t, err)
	require.Equal(t, stored.ID, again.ID)
}

func TestSaveRejectsInvalidInput(t *testing.T) {
	m := newManager(t)

	_, err := m.Save(nil)
	require.Error(t, err)

	_, err = m.Save(&engine.ConnectionDescriptor{Name: "x", Engine: "oracle"})
	require.ErrorContains(t, err, "unknown engine")

	_, err = m.Save(&engine.ConnectionDescriptor{Name: "   ", Engine: engine.MySQL})
	require.ErrorContains(t, err, "name cannot be empty")
}

func TestGetRoundTrip(t *testing.T) {
	m := newManager(t)

	stored, err := m.Save(&engine.ConnectionDescriptor{
		Name:     "warehouse",
		Engine:   engine.Snowflake,
		Host:     "acme.snowflakecomputing.com",
		Port:     443,
		Database: "warehouse",
		Username: "svc",
		Secret:   "vault://snowflake/svc",
		SSL:      true,
	})
	require.NoError(t, err)

	got, err := m.Get(stored.ID)
	require.NoError(t, err)
	require.Equal(t, stored.Name, got.Name)
	require.Equal(t, engine.Snowflake, got.Engine)
	require.Equal(t, 443, got.Port)
	require.True(t, got.SSL)
	require.Equal(t, "vault://snowflake/svc", got.Secret)
	require.Equal(t, engine.StatusDisconnected, got.Status)

	_, err = m.Get("missing")
	require.ErrorContains(t, err, "connection not found")

	_, err = m.Get("  ")
	require.Error(t, err)
}

func TestProfileFileStoresReferenceOnly(t *testing.T) {
	m := newManager(t)

	stored, err := m.Save(&engine.ConnectionDescriptor{
		Name:   "prod mysql",
		Engine: engine.MySQL,
		Host:   "mysql.internal",
		Secret: "vault://mysql/prod",
	})
	require.NoError(t, err)

	data, err := os.ReadFile(filepath.Join(m.Directory(), stored.ID+".yaml"))
	require.NoError(t, err)
	require.Contains(t, string(data), "secret_ref: vault://mysql/prod")

	info, err := os.Stat(filepath.Join(m.Directory(), stored.ID+".yaml"))
	require.NoError(t, err)
	require.Equal(t, os.FileMode(0o600), info.Mode().Perm())
}

func TestListFiltersAndSorts(t *testing.T) {
	m := newManager(t)

	for _, c := range []struct {
		name   string
		engine engine.ID
	}{
		{"zeta", engine.PostgreSQL},
		{"alpha", engine.PostgreSQL},
		{"midway", engine.SQLite},
	} {
		_, err := m.Save(&engine.ConnectionDescriptor{Name: c.name, Engine: c.engine, Host: "h", Database: "d"})
		require.NoError(t, err)
	}

	all, err := m.List("")
	require.NoError(t, err)
	require.Len(t, all, 3)
	require.Equal(t, "alpha", all[0].Name)
	require.Equal(t, "midway", all[1].Name)
	require.Equal(t, "zeta", all[2].Name)

	pg, err := m.List(engine.PostgreSQL)
	require.NoError(t, err)
	require.Len(t, pg, 2)

	empty := connections.NewManager(filepath.Join(t.TempDir(), "nowhere"))
	none, err := empty.List("")
	require.NoError(t, err)
	require.Empty(t, none)
}

func TestTouchUpdatesLastUsed(t *testing.T) {
	m := newManager(t)

	stored, err := m.Save(&engine.ConnectionDescriptor{Name: "t", Engine: engine.SQLite, Database: "/tmp/a.db"})
	require.NoError(t, err)
	require.True(t, stored.LastUsed.IsZero())

	require.NoError(t, m.Touch(stored.ID))

	got, err := m.Get(stored.ID)
	require.NoError(t, err)
	require.False(t, got.LastUsed.IsZero())

	require.Error(t, m.Touch("missing"))
}

func TestDelete(t *testing.T) {
	m := newManager(t)

	stored, err := m.Save(&engine.ConnectionDescriptor{Name: "gone", Engine: engine.MySQL, Host: "h", Database: "d"})
	require.NoError(t, err)

	require.NoError(t, m.Delete(stored.ID))
	_, err = m.Get(stored.ID)
	require.ErrorContains(t, err, "connection not found")

	require.ErrorContains(t, m.Delete(stored.ID), "connection not found")
	require.Error(t, m.Delete(" "))
}

func TestNoopDecrypt(t *testing.T) {
	secret, err := connections.NoopDecrypt("vault://anything")
	require.NoError(t, err)
	require.Equal(t, "vault://anything", secret)
}
