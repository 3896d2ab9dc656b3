package plugins

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "github.com/go-sql-driver/mysql"

	"github.com/grokking-vietnam/querybench/internal/engine"
)

var mysqlQueries = infoSchemaQueries{
	tables: `
		SELECT table_schema, table_name,
			CASE table_type WHEN 'VIEW' THEN 'VIEW' ELSE 'BASE TABLE' END
		FROM information_schema.tables
		WHERE table_schema = DATABASE()
		ORDER BY table_name`,
	columns: `
		SELECT column_name, data_type, is_nullable, column_default,
			character_maximum_length, ordinal_position
		FROM information_schema.columns
		WHERE table_schema = ? AND table_name = ?
		ORDER BY ordinal_position`,
	primaryKeys: `
		SELECT column_name
		FROM information_schema.key_column_usage
		WHERE table_schema = ? AND table_name = ?
		AND constraint_name = 'PRIMARY'
		ORDER BY ordinal_position`,
}

func mysqlDSN(desc *engine.ConnectionDescriptor, secret string) (string, error) {
	if desc.Host == "" || desc.Database == "" {
		return "", fmt.Errorf("mysql connection requires host and database")
	}
	port := desc.Port
	if port == 0 {
		port = 3306
	}
	dsn := fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?parseTime=true",
		desc.Username, secret, desc.Host, port, desc.Database)
	if desc.SSL {
		dsn += "&tls=true"
	}
	return dsn, nil
}

func mysqlIndexes(ctx context.Context, db *sql.DB, schemaName, tableName string) ([]engine.IndexInfo, error) {
	query := `
		SELECT index_name, non_unique, index_type,
			GROUP_CONCAT(column_name ORDER BY seq_in_index)
		FROM information_schema.statistics
		WHERE table_schema = COALESCE(NULLIF(?, ''), DATABASE()) AND table_name = ?
		GROUP BY index_name, non_unique, index_type`

	rows, err := db.QueryContext(ctx, query, schemaName, tableName)
	if err != nil {
		return nil, fmt.Errorf("failed to query index metadata: %w", err)
	}
	defer rows.Close()

	var out []engine.IndexInfo
	for rows.Next() {
		var info engine.IndexInfo
		var nonUnique int
		var columns string
		if err := rows.Scan(&info.Name, &nonUnique, &info.IndexType, &columns); err != nil {
			return nil, fmt.Errorf("failed to read index metadata: %w", err)
		}
		info.Table = tableName
		info.Unique = nonUnique == 0
		info.Primary = info.Name == "PRIMARY"
		info.Columns = strings.Split(columns, ",")
		out = append(out, info)
	}
	return out, rows.Err()
}

func mysqlConstraints(ctx context.Context, db *sql.DB, schemaName, tableName string) ([]engine.ConstraintInfo, error) {
	query := `
		SELECT tc.constraint_name, tc.constraint_type,
			COALESCE(GROUP_CONCAT(kcu.column_name ORDER BY kcu.ordinal_position), ''),
			COALESCE(kcu.referenced_table_name, ''),
			COALESCE(GROUP_CONCAT(kcu.referenced_column_name ORDER BY kcu.ordinal_position), '')
		FROM information_schema.table_constraints tc
		LEFT JOIN information_schema.key_column_usage kcu
			ON tc.constraint_name = kcu.constraint_name
			AND tc.table_schema = kcu.table_schema
			AND tc.table_name = kcu.table_name
		WHERE tc.table_schema = COALESCE(NULLIF(?, ''), DATABASE()) AND tc.table_name = ?
		GROUP BY tc.constraint_name, tc.constraint_type, kcu.referenced_table_name`

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

func newMySQLDialect() *dialect {
	return &dialect{
		id:          engine.MySQL,
		driver:      "mysql",
		displayName: "MySQL",
		description: "MySQL over go-sql-driver",
		caps: engine.Capabilities{
			SupportsTransactions:    true,
			SupportsStreaming:       true,
			SupportsSSL:             true,
			SupportsPooling:         true,
			SupportsConcurrentQuery: true,
			MaxConnections:          151,
			SupportedAuthMethods:    []string{"password", "caching_sha2_password", "mysql_native_password"},
		},
		buildDSN: mysqlDSN,
		quoteIdent: func(name string) string {
			return "`" + strings.ReplaceAll(name, "`", "``") + "`"
		},
		versionQuery: "SELECT VERSION()",
		listDatabases: func(ctx context.Context, db *sql.DB) ([]string, error) {
			return listDatabasesQuery(ctx, db, "SHOW DATABASES")
		},
		introspect: func(ctx context.Context, db *sql.DB, database string) (*engine.IntrospectionResult, error) {
			return introspectInformationSchema(ctx, db, database, mysqlQueries)
		},
		indexes:     mysqlIndexes,
		constraints: mysqlConstraints,
		keywords: []string{
			"AUTO_INCREMENT", "ENGINE", "CHARSET", "COLLATE", "DUPLICATE",
			"IGNORE", "STRAIGHT_JOIN", "LOCK", "UNLOCK",
		},
		functions: []string{
			"GROUP_CONCAT", "IFNULL", "DATE_FORMAT", "STR_TO_DATE",
			"UNIX_TIMESTAMP", "FROM_UNIXTIME", "JSON_EXTRACT", "JSON_OBJECT",
		},
		dataTypes: []string{
			"TINYINT", "MEDIUMINT", "ENUM", "SET", "YEAR",
			"TINYTEXT", "MEDIUMTEXT", "LONGTEXT", "VARBINARY", "JSON", "DATETIME",
		},
		breakoutKeywords: []string{"ENGINE =", "ON DUPLICATE KEY UPDATE"},
		typeMap: map[string]string{
			"tinyint": "tinyint", "varchar": "varchar",
			"longblob": "blob", "mediumblob": "blob", "tinyblob": "blob",
			"datetime": "datetime",
		},
		binaryTypes: map[string]struct{}{
			"blob": {}, "varbinary": {}, "binary": {},
		},
		jsonTypes: map[string]struct{}{"json": {}},
		validate: func(query string) []engine.ValidationIssue {
			var issues []engine.ValidationIssue
			if strings.Contains(strings.ToUpper(query), "SQL_CALC_FOUND_ROWS") {
				issues = append(issues, engine.ValidationIssue{
					Code:    "deprecated.mysql.sql-calc-found-rows",
					Message: "SQL_CALC_FOUND_ROWS is deprecated; run a separate COUNT(*) query",
				})
			}
			return issues
		},
		defaultTimeout: 30 * time.Second,
		defaultMaxRows: 1000,
	}
}

func mysqlRegistration() engine.Registration {
	d := newMySQLDialect()
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
