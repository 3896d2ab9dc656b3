package engine

import (
	"time"
)

// ID identifies a supported database engine. It is used as a map key across
// the registry, the schema cache, and connection descriptors.
type ID string

const (
	PostgreSQL ID = "postgresql"
	MySQL      ID = "mysql"
	SQLite     ID = "sqlite"
	BigQuery   ID = "bigquery"
	SparkSQL   ID = "sparksql"
	Snowflake  ID = "snowflake"
)

// All returns every engine id this build knows about.
func All() []ID {
	return []ID{PostgreSQL, MySQL, SQLite, BigQuery, SparkSQL, Snowflake}
}

// Valid reports whether id names a known engine.
func (id ID) Valid() bool {
	switch id {
	case PostgreSQL, MySQL, SQLite, BigQuery, SparkSQL, Snowflake:
		return true
	}
	return false
}

func (id ID) String() string {
	return string(id)
}

// ConnectionStatus tracks the lifecycle of a connection descriptor.
type ConnectionStatus string

const (
	StatusDisconnected ConnectionStatus = "disconnected"
	StatusConnecting   ConnectionStatus = "connecting"
	StatusConnected    ConnectionStatus = "connected"
	StatusError        ConnectionStatus = "error"
)

// ConnectionDescriptor describes one saved connection. It is owned by the
// connection-management layer; the engine core only reads it. Secret holds a
// credential reference, never a plaintext password — managers resolve it
// through the configured DecryptFunc right before connecting.
type ConnectionDescriptor struct {
	ID        string
	Name      string
	Engine    ID
	Host      string
	Port      int
	Database  string
	Username  string
	Secret    string
	SSL       bool
	RawDSN    string
	Status    ConnectionStatus
	CreatedAt time.Time
	LastUsed  time.Time
}

// DecryptFunc resolves a credential reference into a usable secret. Provided
// by the encryption collaborator outside this package.
type DecryptFunc func(secretRef string) (string, error)

// Capabilities describes what an engine supports. Validated by the registry
// when a plugin is registered.
type Capabilities struct {
	SupportsTransactions    bool
	SupportsStreaming       bool
	SupportsSSL             bool
	SupportsPooling         bool
	SupportsConcurrentQuery bool
	MaxConnections          int
	SupportedAuthMethods    []string
}

// Config is passed to Plugin.Initialize. Caller values are merged over the
// engine's own defaults.
type Config struct {
	DefaultTimeout time.Duration
	MaxRows        int
	Decrypt        DecryptFunc
	Options        map[string]string
}

// ExecutionOptions bound a single query execution.
type ExecutionOptions struct {
	Timeout    time.Duration
	MaxRows    int
	Streaming  bool
	Parameters map[string]any
}

// ColumnDefinition describes one column of a result set.
type ColumnDefinition struct {
	Name      string
	Type      string
	Nullable  bool
	Length    int
	Precision int
	Scale     int
}

// ExecutionResult is the normalized outcome of one Execute call. A failed
// query is reported through Success/Error, not through the error return:
// interactive editors run broken SQL constantly, so failure is data here.
// When Success is true every row has exactly len(Columns) values.
type ExecutionResult struct {
	ExecutionID   string
	Success       bool
	Columns       []ColumnDefinition
	Rows          [][]any
	RowCount      int
	ExecutionTime time.Duration
	Error         string
	Metadata      map[string]any
}

// TestReport is the outcome of ConnectionManager.TestConnection.
type TestReport struct {
	Success       bool
	ServerVersion string
	Latency       time.Duration
	Databases     []string
	Error         string
}

// ConnectionInfo is a read-only snapshot of a manager's current session.
type ConnectionInfo struct {
	ConnectionID string
	Engine       ID
	Host         string
	Database     string
	Status       ConnectionStatus
	ConnectedAt  time.Time
}

// ColumnInfo describes a table or view column from introspection.
type ColumnInfo struct {
	Name       string
	DataType   string
	Nullable   bool
	Default    *string
	MaxLength  *int
	Position   int
	PrimaryKey bool
	ForeignKey bool
}

// TableInfo describes one introspected table.
type TableInfo struct {
	Schema      string
	Name        string
	Columns     []ColumnInfo
	PrimaryKeys []string
	RowCount    int64
	SizeBytes   int64
}

// ViewInfo describes one introspected view.
type ViewInfo struct {
	Schema     string
	Name       string
	Columns    []ColumnInfo
	Definition string
}

// SchemaInfo groups the tables and views of one namespace.
type SchemaInfo struct {
	Name   string
	Tables []TableInfo
	Views  []ViewInfo
}

// IntrospectionResult is the flat outcome of a full schema introspection for
// one connection. The schema service turns it into a browsable tree.
type IntrospectionResult struct {
	DatabaseName string
	Schemas      []SchemaInfo
	CollectedAt  time.Time
}

// IndexInfo is the engine-neutral shape for an index.
type IndexInfo struct {
	Name      string
	Table     string
	Columns   []string
	Unique    bool
	Primary   bool
	IndexType string
}

// ConstraintType is the normalized constraint classification. Engine-native
// spellings ("PRIMARY KEY", "R", "f", ...) are mapped onto these four.
type ConstraintType string

const (
	ConstraintPrimary ConstraintType = "primary"
	ConstraintForeign ConstraintType = "foreign"
	ConstraintUnique  ConstraintType = "unique"
	ConstraintCheck   ConstraintType = "check"
)

// ConstraintInfo is the engine-neutral shape for a constraint.
type ConstraintInfo struct {
	Name              string
	Table             string
	Type              ConstraintType
	Columns           []string
	ReferencedTable   string
	ReferencedColumns []string
	Definition        string
}

// TableMetadata is the free-form bag returned for a table node.
type TableMetadata struct {
	Table       TableInfo
	Indexes     []IndexInfo
	Constraints []ConstraintInfo
}

// CompletionKind tags a completion candidate.
type CompletionKind string

const (
	CompletionKeyword  CompletionKind = "keyword"
	CompletionFunction CompletionKind = "function"
	CompletionDataType CompletionKind = "datatype"
	CompletionTable    CompletionKind = "table"
	CompletionColumn   CompletionKind = "column"
)

// CompletionItem is one ranked autocomplete candidate.
type CompletionItem struct {
	Label  string
	Kind   CompletionKind
	Detail string
	Rank   int
}

// ExportFormat selects a result serialization format.
type ExportFormat string

const (
	ExportCSV  ExportFormat = "csv"
	ExportJSON ExportFormat = "json"
)

// ValidationIssue is one finding from ValidateQuery.
type ValidationIssue struct {
	Code    string
	Message string
}

// ValidationReport separates blocking errors from advisory warnings.
type ValidationReport struct {
	Errors   []ValidationIssue
	Warnings []ValidationIssue
}

// Valid reports whether the query may be executed.
func (r ValidationReport) Valid() bool {
	return len(r.Errors) == 0
}
