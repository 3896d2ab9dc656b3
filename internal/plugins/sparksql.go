package plugins

import (
	"regexp"
	"time"

	"github.com/grokking-vietnam/querybench/internal/engine"
)

var sparkCacheRe = regexp.MustCompile(`(?i)\bCACHE\s+TABLE\b`)

func newSparkSQLDialect() *simDialect {
	return &simDialect{
		id:            engine.SparkSQL,
		displayName:   "Spark SQL",
		description:   "Distributed SQL over Spark clusters",
		serverVersion: "Spark 3.5.1",
		databases:     []string{"lakehouse"},
		defaultSchema: "default",
		caps: engine.Capabilities{
			SupportsTransactions:    false,
			SupportsStreaming:       true,
			SupportsSSL:             true,
			SupportsPooling:         false,
			SupportsConcurrentQuery: true,
			MaxConnections:          0,
			SupportedAuthMethods:    []string{"kerberos", "token"},
		},
		tables: []simTable{
			{
				schema: "default",
				name:   "trips",
				columns: []simColumn{
					{name: "trip_id", dataType: "bigint", pk: true},
					{name: "vehicle_id", dataType: "string"},
					{name: "distance_km", dataType: "double"},
					{name: "started_at", dataType: "timestamp"},
				},
				rows: [][]any{
					{int64(70001), "veh-04", 12.4, time.Date(2026, 5, 2, 6, 15, 0, 0, time.UTC)},
					{int64(70002), "veh-04", 3.8, time.Date(2026, 5, 2, 7, 40, 0, 0, time.UTC)},
					{int64(70003), "veh-11", 28.9, time.Date(2026, 5, 2, 8, 5, 0, 0, time.UTC)},
					{int64(70004), "veh-07", 0.9, time.Date(2026, 5, 2, 8, 12, 0, 0, time.UTC)},
					{int64(70005), "veh-11", 17.2, time.Date(2026, 5, 2, 9, 58, 0, 0, time.UTC)},
				},
			},
			{
				schema: "default",
				name:   "vehicles",
				columns: []simColumn{
					{name: "vehicle_id", dataType: "string", pk: true},
					{name: "model", dataType: "string"},
					{name: "capacity", dataType: "integer"},
				},
				rows: [][]any{
					{"veh-04", "Transit 350", int64(12)},
					{"veh-07", "Sprinter 2500", int64(10)},
					{"veh-11", "E-Crafter", int64(8)},
				},
			},
		},
		views: []simView{
			{
				schema: "default",
				name:   "trip_distances",
				columns: []simColumn{
					{name: "vehicle_id", dataType: "string"},
					{name: "total_km", dataType: "double"},
				},
				definition: "SELECT vehicle_id, SUM(distance_km) AS total_km FROM trips GROUP BY vehicle_id",
			},
		},
		keywords: []string{
			"LATERAL VIEW", "DISTRIBUTE BY", "CLUSTER BY", "SORT BY", "TBLPROPERTIES",
			"PARTITIONED BY", "STORED AS", "USING", "CACHE", "UNCACHE", "MSCK",
		},
		functions: []string{
			"EXPLODE", "POSEXPLODE", "COLLECT_LIST", "COLLECT_SET", "NAMED_STRUCT",
			"MAP_KEYS", "MAP_VALUES", "DATE_FORMAT", "FROM_UNIXTIME", "UNIX_TIMESTAMP",
			"APPROX_PERCENTILE", "ARRAY_CONTAINS", "SIZE", "TRANSFORM",
		},
		dataTypes: []string{
			"TINYINT", "SMALLINT", "INT", "BIGINT", "FLOAT", "DOUBLE", "STRING",
			"BINARY", "TIMESTAMP", "DATE", "ARRAY", "MAP", "STRUCT",
		},
		breakoutKeywords: []string{"LATERAL VIEW", "DISTRIBUTE BY", "CLUSTER BY", "SORT BY"},
		validate: func(query string) []engine.ValidationIssue {
			var issues []engine.ValidationIssue
			if sparkCacheRe.MatchString(query) {
				issues = append(issues, engine.ValidationIssue{
					Code:    "sparksql.cache-table",
					Message: "CACHE TABLE pins the table in cluster memory until explicitly uncached",
				})
			}
			return issues
		},
		defaultTimeout: 120 * time.Second,
		defaultMaxRows: 1000,
	}
}

func sparksqlRegistration() engine.Registration {
	return simRegistration(newSparkSQLDialect())
}
