package schema

import (
	"time"

	"github.com/grokking-vietnam/querybench/internal/engine"
)

// SyntheticIntrospection builds the deterministic demo schema served when
// demo mode is on and live introspection is unavailable. Same input, same
// output: tests and demos rely on the shape being stable.
func SyntheticIntrospection(id engine.ID, databaseName string) *engine.IntrospectionResult {
	if databaseName == "" {
		databaseName = "demo"
	}

	varchar := func(name string, pos int) engine.ColumnInfo {
		return engine.ColumnInfo{Name: name, DataType: "varchar", Nullable: true, Position: pos}
	}
	pk := func(name string) engine.ColumnInfo {
		return engine.ColumnInfo{Name: name, DataType: "bigint", Position: 1, PrimaryKey: true}
	}
	ts := func(name string, pos int) engine.ColumnInfo {
		return engine.ColumnInfo{Name: name, DataType: "timestamp", Nullable: true, Position: pos}
	}

	return &engine.IntrospectionResult{
		DatabaseName: databaseName,
		CollectedAt:  time.Unix(0, 0).UTC(),
		Schemas: []engine.SchemaInfo{
			{
				Name: "public",
				Tables: []engine.TableInfo{
					{
						Schema: "public",
						Name:   "users",
						Columns: []engine.ColumnInfo{
							pk("id"),
							varchar("email", 2),
							varchar("full_name", 3),
							ts("created_at", 4),
						},
						PrimaryKeys: []string{"id"},
						RowCount:    1204,
					},
					{
						Schema: "public",
						Name:   "user_sessions",
						Columns: []engine.ColumnInfo{
							pk("id"),
							{Name: "user_id", DataType: "bigint", Position: 2, ForeignKey: true},
							varchar("token", 3),
							ts("expires_at", 4),
						},
						PrimaryKeys: []string{"id"},
						RowCount:    5417,
					},
					{
						Schema: "public",
						Name:   "orders",
						Columns: []engine.ColumnInfo{
							pk("id"),
							{Name: "user_id", DataType: "bigint", Position: 2, ForeignKey: true},
							{Name: "total_cents", DataType: "bigint", Position: 3},
							varchar("status", 4),
							ts("placed_at", 5),
						},
						PrimaryKeys: []string{"id"},
						RowCount:    8930,
					},
				},
				Views: []engine.ViewInfo{
					{
						Schema: "public",
						Name:   "active_users",
						Columns: []engine.ColumnInfo{
							pk("id"),
							varchar("email", 2),
						},
						Definition: "SELECT id, email FROM users WHERE created_at > now() - interval '30 days'",
					},
				},
			},
		},
	}
}
