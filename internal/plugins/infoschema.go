package plugins

import (
	"context"
	"database/sql"
	"fmt"
	"sort"

	"github.com/grokking-vietnam/querybench/internal/engine"
)

// infoSchemaQueries drives the generic information_schema introspection
// shared by PostgreSQL and MySQL. Placeholder style is the dialect's own,
// so the query text is supplied per engine.
type infoSchemaQueries struct {
	// tables returns (table_schema, table_name, table_type) rows; table_type
	// is 'BASE TABLE' or 'VIEW'.
	tables string
	// columns takes (schema, table) and returns (column_name, data_type,
	// is_nullable, column_default, character_maximum_length,
	// ordinal_position) rows.
	columns string
	// primaryKeys takes (schema, table) and returns column_name rows.
	primaryKeys string
}

// introspectInformationSchema walks the catalog through q and assembles the
// flat result grouped by schema.
func introspectInformationSchema(ctx context.Context, db *sql.DB, database string, q infoSchemaQueries) (*engine.IntrospectionResult, error) {
	rows, err := db.QueryContext(ctx, q.tables)
	if err != nil {
		return nil, fmt.Errorf("failed to query tables: %w", err)
	}
	defer rows.Close()

	type relation struct {
		schema, name, kind string
	}
	var relations []relation
	for rows.Next() {
		var r relation
		if err := rows.Scan(&r.schema, &r.name, &r.kind); err != nil {
			return nil, fmt.Errorf("failed to read table metadata: %w", err)
		}
		relations = append(relations, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate tables: %w", err)
	}

	schemas := make(map[string]*engine.SchemaInfo)
	var order []string
	for _, rel := range relations {
		sch, ok := schemas[rel.schema]
		if !ok {
			sch = &engine.SchemaInfo{Name: rel.schema}
			schemas[rel.schema] = sch
			order = append(order, rel.schema)
		}

		columns, err := introspectColumns(ctx, db, q, rel.schema, rel.name)
		if err != nil {
			return nil, err
		}

		if rel.kind == "VIEW" {
			sch.Views = append(sch.Views, engine.ViewInfo{Schema: rel.schema, Name: rel.name, Columns: columns})
			continue
		}
		sch.Tables = append(sch.Tables, engine.TableInfo{
			Schema:      rel.schema,
			Name:        rel.name,
			Columns:     columns,
			PrimaryKeys: primaryKeyColumns(columns),
		})
	}

	sort.Strings(order)
	result := &engine.IntrospectionResult{DatabaseName: database}
	for _, name := range order {
		result.Schemas = append(result.Schemas, *schemas[name])
	}
	return result, nil
}

func introspectColumns(ctx context.Context, db *sql.DB, q infoSchemaQueries, schemaName, tableName string) ([]engine.ColumnInfo, error) {
	pks := make(map[string]struct{})
	if q.primaryKeys != "" {
		rows, err := db.QueryContext(ctx, q.primaryKeys, schemaName, tableName)
		if err != nil {
			return nil, fmt.Errorf("failed to query primary keys for %s.%s: %w", schemaName, tableName, err)
		}
		for rows.Next() {
			var name string
			if err := rows.Scan(&name); err != nil {
				rows.Close()
				return nil, fmt.Errorf("failed to read primary key metadata: %w", err)
			}
			pks[name] = struct{}{}
		}
		rows.Close()
		if err := rows.Err(); err != nil {
			return nil, fmt.Errorf("failed to iterate primary keys: %w", err)
		}
	}

	rows, err := db.QueryContext(ctx, q.columns, schemaName, tableName)
	if err != nil {
		return nil, fmt.Errorf("failed to query columns for %s.%s: %w", schemaName, tableName, err)
	}
	defer rows.Close()

	var columns []engine.ColumnInfo
	for rows.Next() {
		var col engine.ColumnInfo
		var nullable string
		var defaultValue sql.NullString
		var maxLength sql.NullInt64

		if err := rows.Scan(&col.Name, &col.DataType, &nullable, &defaultValue, &maxLength, &col.Position); err != nil {
			return nil, fmt.Errorf("failed to read column metadata: %w", err)
		}
		col.Nullable = nullable == "YES"
		if defaultValue.Valid {
			col.Default = &defaultValue.String
		}
		if maxLength.Valid {
			length := int(maxLength.Int64)
			col.MaxLength = &length
		}
		if _, ok := pks[col.Name]; ok {
			col.PrimaryKey = true
		}
		columns = append(columns, col)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate columns: %w", err)
	}
	return columns, nil
}

func primaryKeyColumns(columns []engine.ColumnInfo) []string {
	var out []string
	for _, col := range columns {
		if col.PrimaryKey {
			out = append(out, col.Name)
		}
	}
	return out
}

// listDatabasesQuery runs a single-column query and collects the names.
func listDatabasesQuery(ctx context.Context, db *sql.DB, query string) ([]string, error) {
	rows, err := db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list databases: %w", err)
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("failed to read database name: %w", err)
		}
		names = append(names, name)
	}
	return names, rows.Err()
}
