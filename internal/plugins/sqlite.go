package plugins

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/grokking-vietnam/querybench/internal/engine"
)

func sqliteDSN(desc *engine.ConnectionDescriptor, secret string) (string, error) {
	// SQLite addresses a file, not a server; Database carries the path and
	// the secret is unused.
	if desc.Database == "" {
		return "", fmt.Errorf("sqlite connection requires a database file path")
	}
	return desc.Database, nil
}

// sqliteIntrospect walks sqlite_master and PRAGMA table_info, since SQLite
// has no information_schema.
func sqliteIntrospect(ctx context.Context, db *sql.DB, database string) (*engine.IntrospectionResult, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT name, type, COALESCE(sql, '')
		FROM sqlite_master
		WHERE type IN ('table', 'view') AND name NOT LIKE 'sqlite_%'
		ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("failed to query sqlite_master: %w", err)
	}
	defer rows.Close()

	type relation struct {
		name, kind, ddl string
	}
	var relations []relation
	for rows.Next() {
		var r relation
		if err := rows.Scan(&r.name, &r.kind, &r.ddl); err != nil {
			return nil, fmt.Errorf("failed to read sqlite_master row: %w", err)
		}
		relations = append(relations, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate sqlite_master: %w", err)
	}

	schema := engine.SchemaInfo{Name: "main"}
	for _, rel := range relations {
		columns, err := sqliteColumns(ctx, db, rel.name)
		if err != nil {
			return nil, err
		}
		if rel.kind == "view" {
			schema.Views = append(schema.Views, engine.ViewInfo{
				Schema: "main", Name: rel.name, Columns: columns, Definition: rel.ddl,
			})
			continue
		}
		schema.Tables = append(schema.Tables, engine.TableInfo{
			Schema:      "main",
			Name:        rel.name,
			Columns:     columns,
			PrimaryKeys: primaryKeyColumns(columns),
		})
	}

	if database == "" {
		database = "main"
	}
	return &engine.IntrospectionResult{
		DatabaseName: database,
		Schemas:      []engine.SchemaInfo{schema},
	}, nil
}

func sqliteColumns(ctx context.Context, db *sql.DB, tableName string) ([]engine.ColumnInfo, error) {
	rows, err := db.QueryContext(ctx, fmt.Sprintf("PRAGMA table_info(%s)", sqliteQuote(tableName)))
	if err != nil {
		return nil, fmt.Errorf("failed to read table info for %s: %w", tableName, err)
	}
	defer rows.Close()

	var columns []engine.ColumnInfo
	for rows.Next() {
		var cid, notNull, pk int
		var name, dataType string
		var defaultValue sql.NullString
		if err := rows.Scan(&cid, &name, &dataType, &notNull, &defaultValue, &pk); err != nil {
			return nil, fmt.Errorf("failed to read column info: %w", err)
		}
		col := engine.ColumnInfo{
			Name:       name,
			DataType:   strings.ToLower(dataType),
			Nullable:   notNull == 0,
			Position:   cid + 1,
			PrimaryKey: pk > 0,
		}
		if defaultValue.Valid {
			col.Default = &defaultValue.String
		}
		columns = append(columns, col)
	}
	return columns, rows.Err()
}

func sqliteIndexes(ctx context.Context, db *sql.DB, schemaName, tableName string) ([]engine.IndexInfo, error) {
	rows, err := db.QueryContext(ctx, fmt.Sprintf("PRAGMA index_list(%s)", sqliteQuote(tableName)))
	if err != nil {
		return nil, fmt.Errorf("failed to read index list for %s: %w", tableName, err)
	}
	defer rows.Close()

	type indexEntry struct {
		name   string
		unique bool
		origin string
	}
	var entries []indexEntry
	for rows.Next() {
		var seq, unique, partial int
		var name, origin string
		if err := rows.Scan(&seq, &name, &unique, &origin, &partial); err != nil {
			return nil, fmt.Errorf("failed to read index list row: %w", err)
		}
		entries = append(entries, indexEntry{name: name, unique: unique == 1, origin: origin})
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	var out []engine.IndexInfo
	for _, entry := range entries {
		columns, err := sqliteIndexColumns(ctx, db, entry.name)
		if err != nil {
			return nil, err
		}
		out = append(out, engine.IndexInfo{
			Name:      entry.name,
			Table:     tableName,
			Columns:   columns,
			Unique:    entry.unique,
			Primary:   entry.origin == "pk",
			IndexType: "btree",
		})
	}
	return out, nil
}

func sqliteIndexColumns(ctx context.Context, db *sql.DB, indexName string) ([]string, error) {
	rows, err := db.QueryContext(ctx, fmt.Sprintf("PRAGMA index_info(%s)", sqliteQuote(indexName)))
	if err != nil {
		return nil, fmt.Errorf("failed to read index info for %s: %w", indexName, err)
	}
	defer rows.Close()

	var columns []string
	for rows.Next() {
		var seqno, cid int
		var name sql.NullString
		if err := rows.Scan(&seqno, &cid, &name); err != nil {
			return nil, fmt.Errorf("failed to read index column: %w", err)
		}
		if name.Valid {
			columns = append(columns, name.String)
		}
	}
	return columns, rows.Err()
}

func sqliteConstraints(ctx context.Context, db *sql.DB, schemaName, tableName string) ([]engine.ConstraintInfo, error) {
	columns, err := sqliteColumns(ctx, db, tableName)
	if err != nil {
		return nil, err
	}

	var out []engine.ConstraintInfo
	if pks := primaryKeyColumns(columns); len(pks) > 0 {
		out = append(out, engine.ConstraintInfo{
			Name:    "pk_" + tableName,
			Table:   tableName,
			Type:    engine.ConstraintPrimary,
			Columns: pks,
		})
	}

	rows, err := db.QueryContext(ctx, fmt.Sprintf("PRAGMA foreign_key_list(%s)", sqliteQuote(tableName)))
	if err != nil {
		return nil, fmt.Errorf("failed to read foreign keys for %s: %w", tableName, err)
	}
	defer rows.Close()

	for rows.Next() {
		var id, seq int
		var refTable, from, to, onUpdate, onDelete, match string
		if err := rows.Scan(&id, &seq, &refTable, &from, &to, &onUpdate, &onDelete, &match); err != nil {
			return nil, fmt.Errorf("failed to read foreign key row: %w", err)
		}
		out = append(out, engine.ConstraintInfo{
			Name:              fmt.Sprintf("fk_%s_%d", tableName, id),
			Table:             tableName,
			Type:              engine.ConstraintForeign,
			Columns:           []string{from},
			ReferencedTable:   refTable,
			ReferencedColumns: []string{to},
		})
	}
	return out, rows.Err()
}

func sqliteQuote(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

func newSQLiteDialect() *dialect {
	return &dialect{
		id:          engine.SQLite,
		driver:      "sqlite",
		displayName: "SQLite",
		description: "SQLite over modernc.org/sqlite",
		caps: engine.Capabilities{
			SupportsTransactions:    true,
			SupportsStreaming:       false,
			SupportsSSL:             false,
			SupportsPooling:         false,
			SupportsConcurrentQuery: false,
			MaxConnections:          1,
			SupportedAuthMethods:    []string{"none"},
		},
		buildDSN:     sqliteDSN,
		quoteIdent:   sqliteQuote,
		versionQuery: "SELECT sqlite_version()",
		listDatabases: func(ctx context.Context, db *sql.DB) ([]string, error) {
			return []string{"main"}, nil
		},
		introspect:  sqliteIntrospect,
		indexes:     sqliteIndexes,
		constraints: sqliteConstraints,
		keywords: []string{
			"PRAGMA", "VACUUM", "ATTACH", "DETACH", "REINDEX",
			"AUTOINCREMENT", "GLOB", "REGEXP", "WITHOUT", "ROWID",
		},
		functions: []string{
			"IFNULL", "TYPEOF", "RANDOM", "JULIANDAY", "STRFTIME",
			"GROUP_CONCAT", "TOTAL", "LAST_INSERT_ROWID",
		},
		dataTypes:        []string{"NUMERIC", "INT", "ANY"},
		breakoutKeywords: []string{"PRAGMA"},
		typeMap: map[string]string{
			"integer": "integer", "real": "real", "text": "text", "blob": "blob",
		},
		binaryTypes: map[string]struct{}{"blob": {}},
		jsonTypes:   map[string]struct{}{},
		validate: func(query string) []engine.ValidationIssue {
			var issues []engine.ValidationIssue
			upper := strings.ToUpper(query)
			if strings.Contains(upper, "RIGHT JOIN") || strings.Contains(upper, "FULL OUTER JOIN") {
				issues = append(issues, engine.ValidationIssue{
					Code:    "sqlite.join.unsupported",
					Message: "RIGHT and FULL OUTER JOIN require SQLite 3.39 or newer",
				})
			}
			return issues
		},
		defaultTimeout: 10 * time.Second,
		defaultMaxRows: 1000,
	}
}

func sqliteRegistration() engine.Registration {
	d := newSQLiteDialect()
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
