package schema

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/grokking-vietnam/querybench/internal/engine"
	"github.com/grokking-vietnam/querybench/pkg/logger"
)

type countingIntrospector struct {
	calls int
	fail  bool
}

func (c *countingIntrospector) Introspect(ctx context.Context, desc *engine.ConnectionDescriptor) (*engine.IntrospectionResult, error) {
	c.calls++
	if c.fail {
		return nil, fmt.Errorf("connection refused")
	}
	return SyntheticIntrospection(desc.Engine, desc.Database), nil
}

type mapSource map[string]*engine.ConnectionDescriptor

func (m mapSource) Get(connectionID string) (*engine.ConnectionDescriptor, error) {
	desc, ok := m[connectionID]
	if !ok {
		return nil, fmt.Errorf("no such connection")
	}
	return desc, nil
}

func newTestService(intr Introspector) *Service {
	source := mapSource{
		"conn1": {ID: "conn1", Engine: engine.PostgreSQL, Database: "appdb"},
	}
	return NewService(intr, source, Options{Logger: logger.NewNop()})
}

func TestGetConnectionSchemaCachesSnapshot(t *testing.T) {
	intr := &countingIntrospector{}
	svc := newTestService(intr)
	ctx := context.Background()

	roots, err := svc.GetConnectionSchema(ctx, "conn1")
	require.NoError(t, err)
	require.Len(t, roots, 1)
	require.Equal(t, "appdb", roots[0].Name)

	_, err = svc.GetConnectionSchema(ctx, "conn1")
	require.NoError(t, err)
	require.Equal(t, 1, intr.calls, "second read inside the TTL must hit the cache")
}

// slowIntrospector counts calls atomically and holds each one long enough for
// concurrent readers to pile up behind it.
type slowIntrospector struct {
	calls atomic.Int32
	delay time.Duration
}

func (s *slowIntrospector) Introspect(ctx context.Context, desc *engine.ConnectionDescriptor) (*engine.IntrospectionResult, error) {
	s.calls.Add(1)
	time.Sleep(s.delay)
	return SyntheticIntrospection(desc.Engine, desc.Database), nil
}

func TestConcurrentReadsCoalesceIntoOneLoad(t *testing.T) {
	intr := &slowIntrospector{delay: 50 * time.Millisecond}
	svc := newTestService(intr)
	ctx := context.Background()

	const readers = 8
	var wg sync.WaitGroup
	errs := make([]error, readers)
	for i := 0; i < readers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			roots, err := svc.GetConnectionSchema(ctx, "conn1")
			if err == nil && len(roots) != 1 {
				err = fmt.Errorf("got %d roots", len(roots))
			}
			errs[i] = err
		}(i)
	}
	wg.Wait()

	for i, err := range errs {
		require.NoError(t, err, "reader %d", i)
	}
	require.Equal(t, int32(1), intr.calls.Load(), "concurrent readers for one connection must share a single load")
}

func TestGetConnectionSchemaReloadsAfterExpiry(t *testing.T) {
	intr := &countingIntrospector{}
	svc := newTestService(intr)
	ctx := context.Background()

	base := time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)
	now := base
	svc.cache.now = func() time.Time { return now }

	_, err := svc.GetConnectionSchema(ctx, "conn1")
	require.NoError(t, err)

	now = base.Add(DefaultTTL + time.Second)
	_, err = svc.GetConnectionSchema(ctx, "conn1")
	require.NoError(t, err)
	require.Equal(t, 2, intr.calls)
}

func TestGetConnectionSchemaUnknownConnection(t *testing.T) {
	svc := newTestService(&countingIntrospector{})
	_, err := svc.GetConnectionSchema(context.Background(), "missing")
	require.ErrorContains(t, err, "unknown connection")
}

func TestGetSchemaChildren(t *testing.T) {
	svc := newTestService(&countingIntrospector{})
	ctx := context.Background()

	schemas, err := svc.GetSchemaChildren(ctx, "conn1", []string{"appdb"})
	require.NoError(t, err)
	require.Len(t, schemas, 1)
	require.Equal(t, "public", schemas[0].Name)

	relations, err := svc.GetSchemaChildren(ctx, "conn1", []string{"appdb", "public"})
	require.NoError(t, err)
	require.Len(t, relations, 4)

	// Unknown and non-expandable paths yield empty results, not errors.
	none, err := svc.GetSchemaChildren(ctx, "conn1", []string{"appdb", "nope"})
	require.NoError(t, err)
	require.Empty(t, none)

	leaf, err := svc.GetSchemaChildren(ctx, "conn1", []string{"appdb", "public", "users", "email"})
	require.NoError(t, err)
	require.Empty(t, leaf)
}

func TestSearchSchemaRanking(t *testing.T) {
	svc := newTestService(&countingIntrospector{})

	result, err := svc.SearchSchema(context.Background(), "conn1", "users", nil)
	require.NoError(t, err)
	require.Equal(t, 3, result.TotalCount)

	names := make([]string, len(result.Nodes))
	for i, node := range result.Nodes {
		names[i] = node.Name
	}
	// Exact match first, then tables before views.
	require.Equal(t, []string{"users", "user_sessions", "active_users"}, names)
}

func TestSearchSchemaCaseInsensitive(t *testing.T) {
	svc := newTestService(&countingIntrospector{})

	result, err := svc.SearchSchema(context.Background(), "conn1", "USERS", nil)
	require.NoError(t, err)
	require.Equal(t, 3, result.TotalCount)
}

func TestSearchSchemaTypeFilter(t *testing.T) {
	svc := newTestService(&countingIntrospector{})

	result, err := svc.SearchSchema(context.Background(), "conn1", "users", &SearchFilters{Types: []NodeType{NodeView}})
	require.NoError(t, err)
	require.Equal(t, 1, result.TotalCount)
	require.Equal(t, "active_users", result.Nodes[0].Name)
}

func TestSearchSchemaNoMatchesIsEmptyNotError(t *testing.T) {
	svc := newTestService(&countingIntrospector{})

	result, err := svc.SearchSchema(context.Background(), "conn1", "zzz_nothing", nil)
	require.NoError(t, err)
	require.Zero(t, result.TotalCount)
	require.Empty(t, result.Nodes)

	result, err = svc.SearchSchema(context.Background(), "conn1", "users", &SearchFilters{Schemas: []string{"no_such_schema"}})
	require.NoError(t, err)
	require.Zero(t, result.TotalCount)
}

func TestGetTableMetadata(t *testing.T) {
	svc := newTestService(&countingIntrospector{})

	meta, err := svc.GetTableMetadata(context.Background(), "conn1", []string{"appdb", "public", "orders"})
	require.NoError(t, err)
	require.Equal(t, int64(8930), meta["rowCount"])

	missing, err := svc.GetTableMetadata(context.Background(), "conn1", []string{"appdb", "public", "nope"})
	require.NoError(t, err)
	require.Nil(t, missing)
}

func TestRefreshSchemaEvictsAndReloads(t *testing.T) {
	intr := &countingIntrospector{}
	svc := newTestService(intr)
	ctx := context.Background()

	_, err := svc.GetConnectionSchema(ctx, "conn1")
	require.NoError(t, err)

	require.NoError(t, svc.RefreshSchema(ctx, "conn1"))
	require.Equal(t, 2, intr.calls)
}

func TestDemoModeServesSyntheticSchemaOnFailure(t *testing.T) {
	intr := &countingIntrospector{fail: true}
	source := mapSource{
		"conn1": {ID: "conn1", Engine: engine.PostgreSQL, Database: "appdb"},
	}
	svc := NewService(intr, source, Options{DemoMode: true, Logger: logger.NewNop()})

	roots, err := svc.GetConnectionSchema(context.Background(), "conn1")
	require.NoError(t, err)
	require.Len(t, roots, 1)
	require.Equal(t, "appdb", roots[0].Name)
}

func TestIntrospectionFailurePropagatesWithoutDemoMode(t *testing.T) {
	intr := &countingIntrospector{fail: true}
	svc := newTestService(intr)

	_, err := svc.GetConnectionSchema(context.Background(), "conn1")
	require.ErrorContains(t, err, "introspection")
	require.ErrorContains(t, err, "connection refused")
}
