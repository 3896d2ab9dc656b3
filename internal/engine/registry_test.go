package engine_test

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/grokking-vietnam/querybench/internal/engine"
	"github.com/grokking-vietnam/querybench/pkg/logger"
)

// mockPlugin records lifecycle calls; the capability accessors are not under
// test here and return nil.
type mockPlugin struct {
	id          engine.ID
	caps        engine.Capabilities
	initialized int
	disposed    int
	initErr     error
}

func (m *mockPlugin) ID() engine.ID                     { return m.id }
func (m *mockPlugin) Capabilities() engine.Capabilities { return m.caps }

func (m *mockPlugin) Initialize(cfg engine.Config) error {
	m.initialized++
	return m.initErr
}

func (m *mockPlugin) Dispose() error {
	m.disposed++
	return nil
}

func (m *mockPlugin) Connections() engine.ConnectionManager { return nil }
func (m *mockPlugin) Executor() engine.QueryExecutor        { return nil }
func (m *mockPlugin) Schemas() engine.SchemaProvider        { return nil }
func (m *mockPlugin) Language() engine.LanguageService      { return nil }
func (m *mockPlugin) Results() engine.ResultProcessor       { return nil }
func (m *mockPlugin) Metadata() engine.MetadataExtractor    { return nil }

func mockRegistration(id engine.ID, plugin *mockPlugin) engine.Registration {
	return engine.Registration{
		ID:          id,
		DisplayName: string(id),
		Capabilities: engine.Capabilities{
			SupportedAuthMethods: []string{"password"},
		},
		Factory: func() (engine.Plugin, error) {
			return plugin, nil
		},
	}
}

func newTestRegistry(t *testing.T) *engine.Registry {
	t.Helper()
	return engine.NewRegistry(engine.Config{}, logger.NewNop())
}

func TestRegistryGetReturnsSameInstance(t *testing.T) {
	registry := newTestRegistry(t)
	plugin := &mockPlugin{id: engine.PostgreSQL}
	require.NoError(t, registry.Register(mockRegistration(engine.PostgreSQL, plugin)))

	first, err := registry.Get(engine.PostgreSQL)
	require.NoError(t, err)
	second, err := registry.Get(engine.PostgreSQL)
	require.NoError(t, err)

	require.Same(t, first, second)
	require.Equal(t, 1, plugin.initialized, "Initialize must run exactly once")
}

func TestRegistryGetUnregisteredEngine(t *testing.T) {
	registry := newTestRegistry(t)
	_, err := registry.Get(engine.MySQL)
	require.ErrorContains(t, err, "not registered")
}

func TestRegistryDuplicateRegistration(t *testing.T) {
	registry := newTestRegistry(t)
	plugin := &mockPlugin{id: engine.SQLite}
	require.NoError(t, registry.Register(mockRegistration(engine.SQLite, plugin)))

	err := registry.Register(mockRegistration(engine.SQLite, plugin))
	require.ErrorContains(t, err, "already registered")
}

func TestRegistryRejectsInvalidRegistrations(t *testing.T) {
	registry := newTestRegistry(t)
	plugin := &mockPlugin{id: engine.MySQL}

	tests := []struct {
		name   string
		mutate func(*engine.Registration)
		want   string
	}{
		{"unknown id", func(r *engine.Registration) { r.ID = "oracle" }, "unknown engine id"},
		{"nil factory", func(r *engine.Registration) { r.Factory = nil }, "factory is required"},
		{"nil auth methods", func(r *engine.Registration) { r.Capabilities.SupportedAuthMethods = nil }, "auth methods"},
		{"negative max connections", func(r *engine.Registration) { r.Capabilities.MaxConnections = -1 }, "must not be negative"},
		{"pooling without max", func(r *engine.Registration) { r.Capabilities.SupportsPooling = true }, "max connections"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			reg := mockRegistration(engine.MySQL, plugin)
			tt.mutate(&reg)
			require.ErrorContains(t, registry.Register(reg), tt.want)
		})
	}
}

func TestRegistryInitializeFailureIsNotCached(t *testing.T) {
	registry := newTestRegistry(t)
	plugin := &mockPlugin{id: engine.BigQuery, initErr: fmt.Errorf("boom")}
	require.NoError(t, registry.Register(mockRegistration(engine.BigQuery, plugin)))

	_, err := registry.Get(engine.BigQuery)
	require.ErrorContains(t, err, "bigquery")
	require.ErrorContains(t, err, "boom")

	plugin.initErr = nil
	got, err := registry.Get(engine.BigQuery)
	require.NoError(t, err)
	require.Same(t, plugin, got.(*mockPlugin))
	require.Equal(t, 2, plugin.initialized)
}

func TestRegistryUnregisterDisposesLiveInstance(t *testing.T) {
	registry := newTestRegistry(t)
	plugin := &mockPlugin{id: engine.Snowflake}
	require.NoError(t, registry.Register(mockRegistration(engine.Snowflake, plugin)))

	_, err := registry.Get(engine.Snowflake)
	require.NoError(t, err)

	require.NoError(t, registry.Unregister(engine.Snowflake))
	require.Equal(t, 1, plugin.disposed)
	require.False(t, registry.IsRegistered(engine.Snowflake))

	require.ErrorContains(t, registry.Unregister(engine.Snowflake), "not registered")
}

func TestRegistryRegisteredSortedByID(t *testing.T) {
	registry := newTestRegistry(t)
	for _, id := range []engine.ID{engine.Snowflake, engine.BigQuery, engine.MySQL} {
		require.NoError(t, registry.Register(mockRegistration(id, &mockPlugin{id: id})))
	}

	regs := registry.Registered()
	require.Len(t, regs, 3)
	require.Equal(t, engine.BigQuery, regs[0].ID)
	require.Equal(t, engine.MySQL, regs[1].ID)
	require.Equal(t, engine.Snowflake, regs[2].ID)
}

func TestRegistryFindByCapability(t *testing.T) {
	registry := newTestRegistry(t)

	pooled := mockRegistration(engine.PostgreSQL, &mockPlugin{id: engine.PostgreSQL})
	pooled.Capabilities.SupportsPooling = true
	pooled.Capabilities.MaxConnections = 10
	require.NoError(t, registry.Register(pooled))
	require.NoError(t, registry.Register(mockRegistration(engine.SQLite, &mockPlugin{id: engine.SQLite})))

	ids := registry.FindByCapability(func(caps engine.Capabilities) bool {
		return caps.SupportsPooling
	})
	require.Equal(t, []engine.ID{engine.PostgreSQL}, ids)
}

func TestRegistryWithFeatures(t *testing.T) {
	registry := newTestRegistry(t)

	full := mockRegistration(engine.PostgreSQL, &mockPlugin{id: engine.PostgreSQL})
	full.Capabilities.SupportsTransactions = true
	full.Capabilities.SupportsStreaming = true
	full.Capabilities.SupportsSSL = true
	full.Capabilities.SupportsPooling = true
	full.Capabilities.SupportsConcurrentQuery = true
	full.Capabilities.MaxConnections = 10
	require.NoError(t, registry.Register(full))

	txOnly := mockRegistration(engine.SQLite, &mockPlugin{id: engine.SQLite})
	txOnly.Capabilities.SupportsTransactions = true
	require.NoError(t, registry.Register(txOnly))

	require.Equal(t, []engine.ID{engine.PostgreSQL, engine.SQLite}, registry.WithFeatures("transactions"))
	require.Equal(t, []engine.ID{engine.PostgreSQL}, registry.WithFeatures("transactions", "pooling"))
	require.Equal(t, []engine.ID{engine.PostgreSQL}, registry.WithFeatures(" Concurrent-Queries ", "ssl", "streaming"))
	require.Empty(t, registry.WithFeatures("teleportation"))

	// No constraints matches everything registered.
	require.Equal(t, []engine.ID{engine.PostgreSQL, engine.SQLite}, registry.WithFeatures())
}

func TestRegistryDisposeAll(t *testing.T) {
	registry := newTestRegistry(t)
	plugins := map[engine.ID]*mockPlugin{
		engine.PostgreSQL: {id: engine.PostgreSQL},
		engine.MySQL:      {id: engine.MySQL},
	}
	for id, plugin := range plugins {
		require.NoError(t, registry.Register(mockRegistration(id, plugin)))
		_, err := registry.Get(id)
		require.NoError(t, err)
	}

	registry.DisposeAll()

	for id, plugin := range plugins {
		require.Equal(t, 1, plugin.disposed, "engine %s", id)
	}

	// Instances are dropped; the registrations survive.
	require.True(t, registry.IsRegistered(engine.PostgreSQL))
	_, err := registry.Get(engine.PostgreSQL)
	require.NoError(t, err)
	require.Equal(t, 2, plugins[engine.PostgreSQL].initialized)
}
