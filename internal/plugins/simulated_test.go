package plugins

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/grokking-vietnam/querybench/internal/engine"
	"github.com/grokking-vietnam/querybench/internal/sqlformat"
	"github.com/grokking-vietnam/querybench/pkg/logger"
)

func newReadySim(t *testing.T, d *simDialect) *simPlugin {
	t.Helper()
	p := newSimPlugin(d)
	require.NoError(t, p.Initialize(engine.Config{}))
	return p
}

func bqDescriptor() *engine.ConnectionDescriptor {
	return &engine.ConnectionDescriptor{
		ID:       "conn-bq",
		Name:     "analytics",
		Engine:   engine.BigQuery,
		Host:     "bigquery.googleapis.com",
		Database: "analytics",
		Username: "svc@project.iam",
	}
}

func TestSimulatedReadyGating(t *testing.T) {
	p := newSimPlugin(newBigQueryDialect())

	var notInit *engine.NotInitializedError
	err := p.Connect(context.Background(), bqDescriptor())
	require.ErrorAs(t, err, &notInit)

	_, err = p.Execute(context.Background(), "SELECT 1", engine.ExecutionOptions{})
	require.ErrorAs(t, err, &notInit)

	_, err = p.Schema(context.Background(), "conn-bq")
	require.ErrorAs(t, err, &notInit)

	_, err = p.TestConnection(context.Background(), bqDescriptor())
	require.ErrorAs(t, err, &notInit)
}

func TestSimulatedConnectLifecycle(t *testing.T) {
	p := newReadySim(t, newBigQueryDialect())

	require.False(t, p.IsConnected())
	require.NoError(t, p.Connect(context.Background(), bqDescriptor()))
	require.True(t, p.IsConnected())

	info := p.ConnectionInfo()
	require.Equal(t, "conn-bq", info.ConnectionID)
	require.Equal(t, engine.StatusConnected, info.Status)
	require.Equal(t, "analytics", info.Database)

	// A second connect implicitly tears down the first session: exactly one
	// disconnect before the second session is live.
	second := bqDescriptor()
	second.ID = "conn-bq-2"
	require.NoError(t, p.Connect(context.Background(), second))
	require.Equal(t, 1, p.disconnects)
	require.Equal(t, "conn-bq-2", p.ConnectionInfo().ConnectionID)

	require.NoError(t, p.Disconnect(context.Background()))
	require.False(t, p.IsConnected())
	require.Equal(t, 2, p.disconnects)

	// Disconnecting again is a no-op.
	require.NoError(t, p.Disconnect(context.Background()))
	require.Equal(t, 2, p.disconnects)
}

func TestSimulatedConnectResolvesCredential(t *testing.T) {
	p := newSimPlugin(newSnowflakeDialect())
	require.NoError(t, p.Initialize(engine.Config{
		Decrypt: func(ref string) (string, error) {
			if ref != "vault://snowflake/svc" {
				return "", fmt.Errorf("unknown credential reference %q", ref)
			}
			return "resolved", nil
		},
	}))

	desc := &engine.ConnectionDescriptor{
		ID:       "conn-sf",
		Engine:   engine.Snowflake,
		Host:     "acme.snowflakecomputing.com",
		Database: "warehouse",
		Secret:   "vault://snowflake/svc",
	}
	require.NoError(t, p.Connect(context.Background(), desc))

	bad := &engine.ConnectionDescriptor{ID: "conn-bad", Engine: engine.Snowflake, Secret: "vault://nope"}
	err := p.Connect(context.Background(), bad)
	var connErr *engine.ConnectionError
	require.ErrorAs(t, err, &connErr)
	require.Contains(t, err.Error(), "failed to resolve credential")
}

func TestSimulatedExecute(t *testing.T) {
	p := newReadySim(t, newBigQueryDialect())
	require.NoError(t, p.Connect(context.Background(), bqDescriptor()))

	// Empty query never surfaces as an error.
	result, err := p.Execute(context.Background(), "", engine.ExecutionOptions{})
	require.NoError(t, err)
	require.False(t, result.Success)
	require.Equal(t, "Query cannot be empty", result.Error)
	require.Zero(t, result.RowCount)

	// No FROM clause evaluates to a single scalar row.
	result, err = p.Execute(context.Background(), "SELECT 1", engine.ExecutionOptions{})
	require.NoError(t, err)
	require.True(t, result.Success)
	require.Equal(t, 1, result.RowCount)
	require.Equal(t, "result", result.Columns[0].Name)
	require.Equal(t, int64(1), result.Rows[0][0])

	// Known table returns the full dataset.
	result, err = p.Execute(context.Background(), "SELECT * FROM events.page_views", engine.ExecutionOptions{})
	require.NoError(t, err)
	require.True(t, result.Success)
	require.Equal(t, 4, result.RowCount)
	require.Len(t, result.Columns, 5)
	require.Equal(t, "event_id", result.Columns[0].Name)
	require.False(t, result.Columns[0].Nullable)
	require.Equal(t, false, result.Metadata["truncated"])
	require.Equal(t, "bigquery", result.Metadata["engine"])

	// Timestamps come back RFC 3339.
	require.Equal(t, "2026-03-14T09:12:04Z", result.Rows[0][3])

	// Unknown table is a failed result, not an error.
	result, err = p.Execute(context.Background(), "SELECT * FROM events.nope", engine.ExecutionOptions{})
	require.NoError(t, err)
	require.False(t, result.Success)
	require.Equal(t, `Table "events.nope" does not exist`, result.Error)

	// MaxRows truncates and flags the result.
	result, err = p.Execute(context.Background(), "SELECT * FROM page_views", engine.ExecutionOptions{MaxRows: 2})
	require.NoError(t, err)
	require.True(t, result.Success)
	require.Equal(t, 2, result.RowCount)
	require.Equal(t, true, result.Metadata["truncated"])
}

func TestSimulatedExecuteNotConnected(t *testing.T) {
	p := newReadySim(t, newSparkSQLDialect())
	_, err := p.Execute(context.Background(), "SELECT * FROM trips", engine.ExecutionOptions{})
	var notConn *engine.NotConnectedError
	require.ErrorAs(t, err, &notConn)
}

func TestSimulatedCancelUnknown(t *testing.T) {
	p := newReadySim(t, newBigQueryDialect())
	require.False(t, p.Cancel("no-such-execution"))
}

func TestSimulatedSchemaIntrospection(t *testing.T) {
	p := newReadySim(t, newBigQueryDialect())

	_, err := p.Schema(context.Background(), "conn-bq")
	var notConn *engine.NotConnectedError
	require.ErrorAs(t, err, &notConn)

	require.NoError(t, p.Connect(context.Background(), bqDescriptor()))
	result, err := p.Schema(context.Background(), "conn-bq")
	require.NoError(t, err)
	require.Equal(t, "analytics", result.DatabaseName)
	require.Len(t, result.Schemas, 1)

	events := result.Schemas[0]
	require.Equal(t, "events", events.Name)
	require.Len(t, events.Tables, 2)
	require.Len(t, events.Views, 1)

	pageViews := events.Tables[0]
	require.Equal(t, "page_views", pageViews.Name)
	require.Equal(t, int64(4), pageViews.RowCount)
	require.Equal(t, []string{"event_id"}, pageViews.PrimaryKeys)
	require.False(t, pageViews.Columns[0].Nullable)
	require.True(t, pageViews.Columns[1].Nullable)

	// Fixed dataset: refresh serves the same catalog.
	refreshed, err := p.RefreshSchema(context.Background(), "conn-bq")
	require.NoError(t, err)
	require.Equal(t, result.Schemas, refreshed.Schemas)
}

func TestSimulatedTableAndViewInfo(t *testing.T) {
	p := newReadySim(t, newSparkSQLDialect())
	require.NoError(t, p.Connect(context.Background(), &engine.ConnectionDescriptor{
		ID: "conn-spark", Engine: engine.SparkSQL, Host: "spark.internal", Database: "lakehouse",
	}))

	table, err := p.TableInfo(context.Background(), "", "TRIPS")
	require.NoError(t, err)
	require.Equal(t, "trips", table.Name)
	require.Equal(t, int64(5), table.RowCount)

	view, err := p.ViewInfo(context.Background(), "default", "trip_distances")
	require.NoError(t, err)
	require.NotEmpty(t, view.Definition)

	_, err = p.TableInfo(context.Background(), "", "absent")
	require.Error(t, err)
}

func TestSimulatedTableMetadata(t *testing.T) {
	p := newReadySim(t, newSnowflakeDialect())
	require.NoError(t, p.Connect(context.Background(), &engine.ConnectionDescriptor{
		ID: "conn-sf", Engine: engine.Snowflake, Host: "acme.snowflakecomputing.com", Database: "warehouse",
	}))

	meta, err := p.TableMetadata(context.Background(), "public", "customers")
	require.NoError(t, err)
	require.Equal(t, "customers", meta.Table.Name)
	require.Len(t, meta.Indexes, 1)
	require.Equal(t, "customers_pkey", meta.Indexes[0].Name)
	require.True(t, meta.Indexes[0].Primary)
	require.Len(t, meta.Constraints, 1)
	require.Equal(t, engine.ConstraintPrimary, meta.Constraints[0].Type)
}

func TestSimulatedTestConnection(t *testing.T) {
	p := newReadySim(t, newBigQueryDialect())

	report, err := p.TestConnection(context.Background(), bqDescriptor())
	require.NoError(t, err)
	require.True(t, report.Success)
	require.Equal(t, "BigQuery Standard SQL 2.0", report.ServerVersion)
	require.Equal(t, []string{"analytics", "billing"}, report.Databases)

	report, err = p.TestConnection(context.Background(), nil)
	require.NoError(t, err)
	require.False(t, report.Success)
}

func TestSimulatedDialectValidation(t *testing.T) {
	bq := newReadySim(t, newBigQueryDialect())
	report := bq.ValidateQuery("SELECT * FROM TABLE_DATE_RANGE(events.page_views, '2026-01-01', '2026-01-31')")
	requireIssueCode(t, report.Warnings, "deprecated.bigquery.table-range")

	spark := newReadySim(t, newSparkSQLDialect())
	report = spark.ValidateQuery("CACHE TABLE trips")
	requireIssueCode(t, report.Warnings, "sparksql.cache-table")

	sf := newReadySim(t, newSnowflakeDialect())
	report = sf.ValidateQuery("SELECT * FROM customers JOIN invoices ON customers.id = invoices.customer_id")
	requireIssueCode(t, report.Warnings, "snowflake.select-star-join")
}

func requireIssueCode(t *testing.T, issues []engine.ValidationIssue, code string) {
	t.Helper()
	for _, issue := range issues {
		if issue.Code == code {
			return
		}
	}
	t.Fatalf("issue %q not found in %+v", code, issues)
}

func TestSimulatedCompletionServesDatasetTables(t *testing.T) {
	p := newReadySim(t, newBigQueryDialect())

	query := "SELECT * FROM pa"
	items := p.CompletionItems(query, len(query))
	require.NotEmpty(t, items)
	require.Equal(t, "page_views", items[0].Label)
	require.Equal(t, engine.CompletionTable, items[0].Kind)

	// Column names complete in expression position.
	query = "SELECT * FROM page_views WHERE event_t"
	items = p.CompletionItems(query, len(query))
	require.NotEmpty(t, items)
	require.Equal(t, "event_timestamp", items[0].Label)
	require.Equal(t, engine.CompletionColumn, items[0].Kind)
}

func TestSimulatedVocabularyAndFormat(t *testing.T) {
	p := newReadySim(t, newBigQueryDialect())

	require.Contains(t, p.Keywords(), "QUALIFY")
	require.Contains(t, p.Functions(), "APPROX_COUNT_DISTINCT")
	require.Contains(t, p.DataTypes(), "GEOGRAPHY")

	formatted := p.FormatQuery("select event_id from page_views qualify row_number() over (partition by user_pseudo_id order by event_timestamp) = 1", sqlformat.Options{})
	require.Contains(t, formatted, "\nQUALIFY")
}

func TestSimulatedDispose(t *testing.T) {
	p := newReadySim(t, newBigQueryDialect())
	require.NoError(t, p.Connect(context.Background(), bqDescriptor()))

	require.NoError(t, p.Dispose())
	require.False(t, p.IsConnected())
	require.Equal(t, 1, p.disconnects)

	// Dispose is idempotent.
	require.NoError(t, p.Dispose())
	require.Equal(t, 1, p.disconnects)
}

func TestRegistrationsCoverAllEngines(t *testing.T) {
	regs := Registrations()
	require.Len(t, regs, len(engine.All()))

	seen := make(map[engine.ID]bool)
	for _, reg := range regs {
		require.NotNil(t, reg.Factory, "engine %s", reg.ID)
		require.NotEmpty(t, reg.DisplayName, "engine %s", reg.ID)
		require.NotEmpty(t, reg.Capabilities.SupportedAuthMethods, "engine %s", reg.ID)
		seen[reg.ID] = true
	}
	for _, id := range engine.All() {
		require.True(t, seen[id], "engine %s missing", id)
	}
}

func TestRegisterAll(t *testing.T) {
	registry := engine.NewRegistry(engine.Config{DefaultTimeout: time.Second}, logger.NewNop())
	require.NoError(t, RegisterAll(registry))
	require.Len(t, registry.Registered(), len(engine.All()))

	// Registering twice collides on every id.
	require.Error(t, RegisterAll(registry))
}
