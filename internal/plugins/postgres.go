package plugins

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "github.com/lib/pq"

	"github.com/grokking-vietnam/querybench/internal/engine"
)

var postgresQueries = infoSchemaQueries{
	tables: `
		SELECT table_schema, table_name, table_type
		FROM information_schema.tables
		WHERE table_type IN ('BASE TABLE', 'VIEW')
		AND table_schema NOT IN ('information_schema', 'pg_catalog', 'pg_toast')
		ORDER BY table_schema, table_name`,
	columns: `
		SELECT column_name, data_type, is_nullable, column_default,
			character_maximum_length, ordinal_position
		FROM information_schema.columns
		WHERE table_schema = $1 AND table_name = $2
		ORDER BY ordinal_position`,
	primaryKeys: `
		SELECT kcu.column_name
		FROM information_schema.table_constraints tc
		JOIN information_schema.key_column_usage kcu
			ON tc.constraint_name = kcu.constraint_name
			AND tc.table_schema = kcu.table_schema
		WHERE tc.table_schema = $1 AND tc.table_name = $2
		AND tc.constraint_type = 'PRIMARY KEY'
		ORDER BY kcu.ordinal_position`,
}

func postgresDSN(desc *engine.ConnectionDescriptor, secret string) (string, error) {
	if desc.Host == "" || desc.Database == "" {
		return "", fmt.Errorf("postgres connection requires host and database")
	}
	port := desc.Port
	if port == 0 {
		port = 5432
	}
	sslMode := "disable"
	if desc.SSL {
		sslMode = "require"
	}
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		desc.Host, port, desc.Username, secret, desc.Database, sslMode,
	), nil
}

func postgresIndexes(ctx context.Context, db *sql.DB, schemaName, tableName string) ([]engine.IndexInfo, error) {
	query := `
		SELECT i.relname, ix.indisunique, ix.indisprimary, am.amname,
			array_to_string(array_agg(a.attname ORDER BY a.attnum), ',')
		FROM pg_index ix
		JOIN pg_class i ON i.oid = ix.indexrelid
		JOIN pg_class t ON t.oid = ix.indrelid
		JOIN pg_namespace n ON n.oid = t.relnamespace
		JOIN pg_am am ON am.oid = i.relam
		JOIN pg_attribute a ON a.attrelid = t.oid AND a.attnum = ANY(ix.indkey)
		WHERE n.nspname = $1 AND t.relname = $2
		GROUP BY i.relname, ix.indisunique, ix.indisprimary, am.amname`

	rows, err := db.QueryContext(ctx, query, schemaName, tableName)
	if err != nil {
		return nil, fmt.Errorf("failed to query index metadata: %w", err)
	}
	defer rows.Close()

	var out []engine.IndexInfo
	for rows.Next() {
		var info engine.IndexInfo
		var columns string
		if err := rows.Scan(&info.Name, &info.Unique, &info.Primary, &info.IndexType, &columns); err != nil {
			return nil, fmt.Errorf("failed to read index metadata: %w", err)
		}
		info.Table = tableName
		info.Columns = strings.Split(columns, ",")
		out = append(out, info)
	}
	return out, rows.Err()
}

func postgresConstraints(ctx context.Context, db *sql.DB, schemaName, tableName string) ([]engine.ConstraintInfo, error) {
	query := `
		SELECT tc.constraint_name, tc.constraint_type,
			COALESCE(string_agg(kcu.column_name, ',' ORDER BY kcu.ordinal_position), ''),
			COALESCE(ccu.table_name, ''),
			COALESCE(string_agg(DISTINCT ccu.column_name, ','), '')
		FROM information_schema.table_constraints tc
		LEFT JOIN information_schema.key_column_usage kcu
			ON tc.constraint_name = kcu.constraint_name
			AND tc.table_schema = kcu.table_schema
		LEFT JOIN information_schema.constraint_column_usage ccu
			ON tc.constraint_name = ccu.constraint_name
			AND tc.constraint_type = 'FOREIGN KEY'
		WHERE tc.table_schema = $1 AND tc.table_name = $2
		GROUP BY tc.constraint_name, tc.constraint_type, ccu.table_name`

	rows, err := db.QueryContext(ctx, query, schemaName, tableName)
	if err != nil {
		return nil, fmt.Errorf("failed to query constraint metadata: %w", err)
	}
	defer rows.Close()

	var out []engine.ConstraintInfo
	for rows.Next() {
		var info engine.ConstraintInfo
		var nativeType, columns, refColumns string
		if err := rows.Scan(&info.Name, &nativeType, &columns, &info.ReferencedTable, &refColumns); err != nil {
			return nil, fmt.Errorf("failed to read constraint metadata: %w", err)
		}
		info.Table = tableName
		info.Type = normalizeConstraintType(nativeType)
		if columns != "" {
			info.Columns = strings.Split(columns, ",")
		}
		if refColumns != "" {
			info.ReferencedColumns = strings.Split(refColumns, ",")
		}
		out = append(out, info)
	}
	return out, rows.Err()
}

func newPostgresDialect() *dialect {
	return &dialect{
		id:          engine.PostgreSQL,
		driver:      "postgres",
		displayName: "PostgreSQL",
		description: "PostgreSQL over lib/pq",
		caps: engine.Capabilities{
			SupportsTransactions:    true,
			SupportsStreaming:       true,
			SupportsSSL:             true,
			SupportsPooling:         true,
			SupportsConcurrentQuery: true,
			MaxConnections:          100,
			SupportedAuthMethods:    []string{"password", "md5", "scram-sha-256"},
		},
		buildDSN: postgresDSN,
		quoteIdent: func(name string) string {
			return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
		},
		versionQuery: "SELECT version()",
		listDatabases: func(ctx context.Context, db *sql.DB) ([]string, error) {
			return listDatabasesQuery(ctx, db, "SELECT datname FROM pg_database WHERE datistemplate = false ORDER BY datname")
		},
		introspect: func(ctx context.Context, db *sql.DB, database string) (*engine.IntrospectionResult, error) {
			return introspectInformationSchema(ctx, db, database, postgresQueries)
		},
		indexes:     postgresIndexes,
		constraints: postgresConstraints,
		keywords: []string{
			"RETURNING", "ILIKE", "CONFLICT", "DO", "NOTHING", "LATERAL",
			"TABLESAMPLE", "WINDOW", "FILTER", "OVER", "PARTITION",
		},
		functions: []string{
			"STRING_AGG", "ARRAY_AGG", "JSONB_AGG", "JSON_BUILD_OBJECT",
			"TO_CHAR", "TO_TIMESTAMP", "DATE_TRUNC", "GENERATE_SERIES", "AGE",
		},
		dataTypes: []string{
			"SERIAL", "BIGSERIAL", "UUID", "JSON", "JSONB", "BYTEA",
			"INET", "CIDR", "TIMESTAMPTZ", "INTERVAL", "ARRAY",
		},
		breakoutKeywords: []string{"RETURNING", "ON CONFLICT"},
		typeMap: map[string]string{
			"int2": "smallint", "int4": "integer", "int8": "bigint",
			"float4": "real", "float8": "double precision",
			"bool": "boolean", "bpchar": "char",
			"timestamptz": "timestamp with time zone",
		},
		binaryTypes: map[string]struct{}{"bytea": {}},
		jsonTypes:   map[string]struct{}{"json": {}, "jsonb": {}},
		validate: func(query string) []engine.ValidationIssue {
			var issues []engine.ValidationIssue
			if strings.Contains(strings.ToUpper(query), "MONEY") {
				issues = append(issues, engine.ValidationIssue{
					Code:    "postgres.type.money",
					Message: "the money type has locale pitfalls; prefer numeric",
				})
			}
			return issues
		},
		defaultTimeout: 30 * time.Second,
		defaultMaxRows: 1000,
	}
}

func postgresRegistration() engine.Registration {
	d := newPostgresDialect()
	return engine.Registration{
		ID:           d.id,
		DisplayName:  d.displayName,
		Description:  d.description,
		Capabilities: d.caps,
		Factory: func() (engine.Plugin, error) {
			return newSQLPlugin(d), nil
		},
	}
}
