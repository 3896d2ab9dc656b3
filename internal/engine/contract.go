package engine

import (
	"context"

	"github.com/grokking-vietnam/querybench/internal/sqlformat"
)

// ConnectionManager owns at most one live session. Connect while already
// connected implicitly disconnects the previous session first.
type ConnectionManager interface {
	Connect(ctx context.Context, desc *ConnectionDescriptor) error
	Disconnect(ctx context.Context) error
	// TestConnection runs a connect/validate/measure/list-databases/disconnect
	// cycle on a throwaway session without touching the manager's own state.
	TestConnection(ctx context.Context, desc *ConnectionDescriptor) (*TestReport, error)
	IsConnected() bool
	ConnectionInfo() *ConnectionInfo
}

// QueryExecutor runs SQL against the active session and normalizes the
// engine-native result. Cancel is best-effort: some engines can only cancel
// by tearing down the session.
type QueryExecutor interface {
	Execute(ctx context.Context, query string, opts ExecutionOptions) (*ExecutionResult, error)
	Cancel(executionID string) bool
	ValidateQuery(query string) ValidationReport
}

// SchemaProvider performs catalog introspection with a per-connection cache.
type SchemaProvider interface {
	Schema(ctx context.Context, connectionID string) (*IntrospectionResult, error)
	RefreshSchema(ctx context.Context, connectionID string) (*IntrospectionResult, error)
	TableInfo(ctx context.Context, schemaName, tableName string) (*TableInfo, error)
	ViewInfo(ctx context.Context, schemaName, viewName string) (*ViewInfo, error)
}

// LanguageService exposes the engine's SQL vocabulary and editor services.
// Vocabulary methods return the shared cross-engine set plus the dialect's
// own extensions.
type LanguageService interface {
	Keywords() []string
	DataTypes() []string
	Functions() []string
	CompletionItems(query string, cursor int) []CompletionItem
	FormatQuery(query string, opts sqlformat.Options) string
}

// ResultProcessor normalizes engine-native scalars and serializes results.
type ResultProcessor interface {
	FormatValue(value any, declaredType string) any
	ExportResults(result *ExecutionResult, format ExportFormat) ([]byte, error)
}

// MetadataExtractor maps engine-specific catalog queries onto the common
// index/constraint shapes.
type MetadataExtractor interface {
	TableMetadata(ctx context.Context, schemaName, tableName string) (*TableMetadata, error)
	IndexInfo(ctx context.Context, schemaName, tableName string) ([]IndexInfo, error)
	Constraints(ctx context.Context, schemaName, tableName string) ([]ConstraintInfo, error)
}

// Plugin bundles the six capability implementations for one engine. A plugin
// is a singleton per engine id for the life of the registry; Initialize must
// be called before any other operation, Dispose is idempotent.
type Plugin interface {
	ID() ID
	Capabilities() Capabilities
	Initialize(cfg Config) error
	Dispose() error

	Connections() ConnectionManager
	Executor() QueryExecutor
	Schemas() SchemaProvider
	Language() LanguageService
	Results() ResultProcessor
	Metadata() MetadataExtractor
}

// Factory constructs a plugin instance. Invoked lazily by the registry on
// first Get for the engine id.
type Factory func() (Plugin, error)

// Registration binds an engine id to its factory and capability descriptor.
type Registration struct {
	ID           ID
	DisplayName  string
	Description  string
	Capabilities Capabilities
	Factory      Factory
}
