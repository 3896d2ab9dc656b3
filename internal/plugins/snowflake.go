package plugins

import (
	"regexp"
	"time"

	"github.com/grokking-vietnam/querybench/internal/engine"
)

var sfSelectStarJoinRe = regexp.MustCompile(`(?is)\bSELECT\s+\*\s+FROM\s+\S+\s+.*\bJOIN\b`)

func newSnowflakeDialect() *simDialect {
	return &simDialect{
		id:            engine.Snowflake,
		displayName:   "Snowflake",
		description:   "Cloud data warehouse with semi-structured data support",
		serverVersion: "8.17.2",
		databases:     []string{"warehouse", "raw"},
		defaultSchema: "public",
		caps: engine.Capabilities{
			SupportsTransactions:    true,
			SupportsStreaming:       false,
			SupportsSSL:             true,
			SupportsPooling:         true,
			SupportsConcurrentQuery: true,
			MaxConnections:          20,
			SupportedAuthMethods:    []string{"password", "key-pair", "oauth"},
		},
		tables: []simTable{
			{
				schema: "public",
				name:   "customers",
				columns: []simColumn{
					{name: "customer_id", dataType: "integer", pk: true},
					{name: "company", dataType: "string"},
					{name: "region", dataType: "string"},
					{name: "attributes", dataType: "variant"},
				},
				rows: [][]any{
					{int64(1), "Fjord Logistics", "EMEA", `{"tier":"gold","seats":140}`},
					{int64(2), "Kepler Foods", "AMER", `{"tier":"silver","seats":35}`},
					{int64(3), "Mitsuba Retail", "APAC", `{"tier":"gold","seats":420}`},
				},
			},
			{
				schema: "public",
				name:   "invoices",
				columns: []simColumn{
					{name: "invoice_id", dataType: "integer", pk: true},
					{name: "customer_id", dataType: "integer"},
					{name: "amount", dataType: "decimal"},
					{name: "issued_at", dataType: "timestamp"},
				},
				rows: [][]any{
					{int64(9001), int64(1), 1840.00, time.Date(2026, 1, 31, 0, 0, 0, 0, time.UTC)},
					{int64(9002), int64(1), 1840.00, time.Date(2026, 2, 28, 0, 0, 0, 0, time.UTC)},
					{int64(9003), int64(2), 455.50, time.Date(2026, 2, 28, 0, 0, 0, 0, time.UTC)},
					{int64(9004), int64(3), 5530.75, time.Date(2026, 3, 31, 0, 0, 0, 0, time.UTC)},
				},
			},
		},
		views: []simView{
			{
				schema: "public",
				name:   "revenue_by_region",
				columns: []simColumn{
					{name: "region", dataType: "string"},
					{name: "total_amount", dataType: "decimal"},
				},
				definition: "SELECT c.region, SUM(i.amount) AS total_amount FROM invoices i JOIN customers c ON c.customer_id = i.customer_id GROUP BY c.region",
			},
		},
		keywords: []string{
			"QUALIFY", "ILIKE", "SAMPLE", "PIVOT", "UNPIVOT", "MATCH_RECOGNIZE",
			"CLONE", "WAREHOUSE", "STAGE", "TASK", "STREAM",
		},
		functions: []string{
			"FLATTEN", "PARSE_JSON", "TO_VARIANT", "OBJECT_CONSTRUCT", "ARRAY_CONSTRUCT",
			"GET_PATH", "TRY_CAST", "IFF", "NVL", "ZEROIFNULL", "LISTAGG",
			"DATEADD", "DATEDIFF", "LAST_QUERY_ID",
		},
		dataTypes: []string{
			"NUMBER", "FLOAT", "VARCHAR", "BINARY", "BOOLEAN", "DATE", "TIME",
			"TIMESTAMP_LTZ", "TIMESTAMP_NTZ", "TIMESTAMP_TZ", "VARIANT", "OBJECT", "ARRAY",
		},
		breakoutKeywords: []string{"QUALIFY", "SAMPLE", "PIVOT", "UNPIVOT"},
		validate: func(query string) []engine.ValidationIssue {
			var issues []engine.ValidationIssue
			if sfSelectStarJoinRe.MatchString(query) {
				issues = append(issues, engine.ValidationIssue{
					Code:    "snowflake.select-star-join",
					Message: "SELECT * over a join scans every column of both tables; project the columns you need to reduce credits",
				})
			}
			return issues
		},
		defaultTimeout: 60 * time.Second,
		defaultMaxRows: 1000,
	}
}

func snowflakeRegistration() engine.Registration {
	return simRegistration(newSnowflakeDialect())
}
