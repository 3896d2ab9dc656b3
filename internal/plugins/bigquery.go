package plugins

import (
	"regexp"
	"time"

	"github.com/grokking-vietnam/querybench/internal/engine"
)

var bqLegacyFnRe = regexp.MustCompile(`(?i)\b(TABLE_DATE_RANGE|TABLE_QUERY)\s*\(`)

func newBigQueryDialect() *simDialect {
	return &simDialect{
		id:            engine.BigQuery,
		displayName:   "Google BigQuery",
		description:   "Serverless analytics warehouse with Standard SQL",
		serverVersion: "BigQuery Standard SQL 2.0",
		databases:     []string{"analytics", "billing"},
		defaultSchema: "events",
		caps: engine.Capabilities{
			SupportsTransactions:    false,
			SupportsStreaming:       true,
			SupportsSSL:             true,
			SupportsPooling:         false,
			SupportsConcurrentQuery: true,
			MaxConnections:          0,
			SupportedAuthMethods:    []string{"service-account", "oauth"},
		},
		tables: []simTable{
			{
				schema: "events",
				name:   "page_views",
				columns: []simColumn{
					{name: "event_id", dataType: "string", pk: true},
					{name: "user_pseudo_id", dataType: "string"},
					{name: "page_path", dataType: "string"},
					{name: "event_timestamp", dataType: "timestamp"},
					{name: "device", dataType: "struct"},
				},
				rows: [][]any{
					{"ev-001", "u-9f3c", "/pricing", time.Date(2026, 3, 14, 9, 12, 4, 0, time.UTC), `{"category":"desktop","browser":"firefox"}`},
					{"ev-002", "u-9f3c", "/docs/quickstart", time.Date(2026, 3, 14, 9, 13, 41, 0, time.UTC), `{"category":"desktop","browser":"firefox"}`},
					{"ev-003", "u-22ab", "/", time.Date(2026, 3, 14, 10, 2, 55, 0, time.UTC), `{"category":"mobile","browser":"chrome"}`},
					{"ev-004", "u-81de", "/pricing", time.Date(2026, 3, 14, 11, 47, 19, 0, time.UTC), `{"category":"tablet","browser":"safari"}`},
				},
			},
			{
				schema: "events",
				name:   "sessions",
				columns: []simColumn{
					{name: "session_id", dataType: "string", pk: true},
					{name: "user_pseudo_id", dataType: "string"},
					{name: "started_at", dataType: "timestamp"},
					{name: "duration_seconds", dataType: "integer"},
				},
				rows: [][]any{
					{"s-1001", "u-9f3c", time.Date(2026, 3, 14, 9, 11, 58, 0, time.UTC), int64(312)},
					{"s-1002", "u-22ab", time.Date(2026, 3, 14, 10, 2, 40, 0, time.UTC), int64(95)},
					{"s-1003", "u-81de", time.Date(2026, 3, 14, 11, 46, 2, 0, time.UTC), int64(847)},
				},
			},
		},
		views: []simView{
			{
				schema: "events",
				name:   "daily_active_users",
				columns: []simColumn{
					{name: "day", dataType: "date"},
					{name: "active_users", dataType: "integer"},
				},
				definition: "SELECT DATE(event_timestamp) AS day, COUNT(DISTINCT user_pseudo_id) AS active_users FROM events.page_views GROUP BY day",
			},
		},
		keywords: []string{
			"STRUCT", "UNNEST", "QUALIFY", "EXCEPT", "REPLACE", "TABLESAMPLE",
			"PARTITION BY", "CLUSTER BY", "OPTIONS", "MATERIALIZED",
		},
		functions: []string{
			"ARRAY_AGG", "ARRAY_CONCAT", "GENERATE_ARRAY", "TIMESTAMP_TRUNC",
			"DATE_TRUNC", "PARSE_TIMESTAMP", "FORMAT_TIMESTAMP", "REGEXP_EXTRACT",
			"REGEXP_CONTAINS", "SAFE_CAST", "SAFE_DIVIDE", "APPROX_COUNT_DISTINCT",
			"APPROX_QUANTILES", "ST_GEOGPOINT", "FARM_FINGERPRINT",
		},
		dataTypes: []string{
			"STRING", "BYTES", "INT64", "FLOAT64", "NUMERIC", "BIGNUMERIC",
			"BOOL", "TIMESTAMP", "DATETIME", "GEOGRAPHY", "ARRAY", "STRUCT", "JSON",
		},
		breakoutKeywords: []string{"QUALIFY", "PARTITION BY", "CLUSTER BY"},
		validate: func(query string) []engine.ValidationIssue {
			var issues []engine.ValidationIssue
			if m := bqLegacyFnRe.FindStringSubmatch(query); m != nil {
				issues = append(issues, engine.ValidationIssue{
					Code:    "deprecated.bigquery.table-range",
					Message: m[1] + " is a legacy SQL function; use wildcard tables with _TABLE_SUFFIX instead",
				})
			}
			return issues
		},
		defaultTimeout: 60 * time.Second,
		defaultMaxRows: 1000,
	}
}

func bigqueryRegistration() engine.Registration {
	return simRegistration(newBigQueryDialect())
}
