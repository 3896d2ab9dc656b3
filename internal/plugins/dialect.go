// Package plugins contains the concrete engine plugins, one file per
// engine. PostgreSQL, MySQL and SQLite ride database/sql drivers through a
// shared dialect table; BigQuery, Spark SQL and Snowflake are simulated over
// deterministic in-memory datasets.
package plugins

import (
	"context"
	"database/sql"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"regexp"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/grokking-vietnam/querybench/internal/engine"
	"github.com/grokking-vietnam/querybench/internal/sqlformat"
)

// dialect is the flat data-plus-hooks table driving one driver-backed
// engine. Protocol specifics live here; the surrounding plugin machinery is
// shared by all three SQL engines.
type dialect struct {
	id          engine.ID
	driver      string
	displayName string
	description string
	caps        engine.Capabilities

	buildDSN     func(desc *engine.ConnectionDescriptor, secret string) (string, error)
	quoteIdent   func(name string) string
	versionQuery string

	listDatabases func(ctx context.Context, db *sql.DB) ([]string, error)
	introspect    func(ctx context.Context, db *sql.DB, database string) (*engine.IntrospectionResult, error)
	indexes       func(ctx context.Context, db *sql.DB, schemaName, tableName string) ([]engine.IndexInfo, error)
	constraints   func(ctx context.Context, db *sql.DB, schemaName, tableName string) ([]engine.ConstraintInfo, error)

	keywords  []string
	functions []string
	dataTypes []string

	// Dialect keywords the formatter forces onto their own line after the
	// shared pass (RETURNING, ON CONFLICT, ENGINE =, PRAGMA, ...).
	breakoutKeywords []string

	typeMap     map[string]string
	binaryTypes map[string]struct{}
	jsonTypes   map[string]struct{}

	validate func(query string) []engine.ValidationIssue

	defaultTimeout time.Duration
	defaultMaxRows int
}

// sqlPlugin composes the six capability objects for one dialect.
type sqlPlugin struct {
	d *dialect

	mu          sync.Mutex
	cfg         engine.Config
	initialized bool

	conn    *sqlConnectionManager
	exec    *sqlExecutor
	schemas *sqlSchemaProvider
	lang    *dialectLanguage
	results *dialectResults
	meta    *sqlMetadata
}

func newSQLPlugin(d *dialect) *sqlPlugin {
	p := &sqlPlugin{d: d}
	p.conn = &sqlConnectionManager{p: p}
	p.results = &dialectResults{p: p}
	p.exec = &sqlExecutor{p: p, inflight: make(map[string]context.CancelFunc)}
	p.schemas = &sqlSchemaProvider{p: p, cache: make(map[string]*cachedIntrospection)}
	p.lang = &dialectLanguage{p: p, analyzer: engine.NewRegexContextAnalyzer()}
	p.meta = &sqlMetadata{p: p}
	return p
}

func (p *sqlPlugin) ID() engine.ID                         { return p.d.id }
func (p *sqlPlugin) Capabilities() engine.Capabilities     { return p.d.caps }
func (p *sqlPlugin) Connections() engine.ConnectionManager { return p.conn }
func (p *sqlPlugin) Executor() engine.QueryExecutor        { return p.exec }
func (p *sqlPlugin) Schemas() engine.SchemaProvider        { return p.schemas }
func (p *sqlPlugin) Language() engine.LanguageService      { return p.lang }
func (p *sqlPlugin) Results() engine.ResultProcessor       { return p.results }
func (p *sqlPlugin) Metadata() engine.MetadataExtractor    { return p.meta }

// Initialize merges the caller config over the dialect defaults and marks
// the plugin ready.
func (p *sqlPlugin) Initialize(cfg engine.Config) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if cfg.DefaultTimeout <= 0 {
		cfg.DefaultTimeout = p.d.defaultTimeout
	}
	if cfg.MaxRows <= 0 {
		cfg.MaxRows = p.d.defaultMaxRows
	}
	p.cfg = cfg
	p.initialized = true
	return nil
}

// Dispose disconnects any live session and clears caches. Idempotent.
func (p *sqlPlugin) Dispose() error {
	p.mu.Lock()
	if !p.initialized {
		p.mu.Unlock()
		return nil
	}
	p.initialized = false
	p.mu.Unlock()

	err := p.conn.Disconnect(context.Background())
	p.schemas.clear()
	return err
}

func (p *sqlPlugin) ready(op string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.initialized {
		return &engine.NotInitializedError{Engine: p.d.id, Op: op}
	}
	return nil
}

func (p *sqlPlugin) config() engine.Config {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.cfg
}

// sqlConnectionManager holds at most one live database/sql handle.
type sqlConnectionManager struct {
	p *sqlPlugin

	mu          sync.Mutex
	db          *sql.DB
	desc        *engine.ConnectionDescriptor
	status      engine.ConnectionStatus
	connectedAt time.Time
	disconnects int
}

// Connect opens a session for desc, implicitly disconnecting any previous
// session first. On failure the manager resets to an error state and the
// returned error wraps the cause with the engine id.
func (m *sqlConnectionManager) Connect(ctx context.Context, desc *engine.ConnectionDescriptor) error {
	if err := m.p.ready("connect"); err != nil {
		return err
	}
	if desc == nil {
		return &engine.ConnectionError{Engine: m.p.d.id, Cause: fmt.Errorf("connection descriptor is nil")}
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.db != nil {
		m.closeLocked()
	}
	m.status = engine.StatusConnecting

	db, err := m.open(ctx, desc)
	if err != nil {
		m.status = engine.StatusError
		m.desc = nil
		return &engine.ConnectionError{Engine: m.p.d.id, Cause: err}
	}

	m.db = db
	m.desc = desc
	m.status = engine.StatusConnected
	m.connectedAt = time.Now()
	return nil
}

func (m *sqlConnectionManager) open(ctx context.Context, desc *engine.ConnectionDescriptor) (*sql.DB, error) {
	secret := desc.Secret
	if decrypt := m.p.config().Decrypt; decrypt != nil && secret != "" {
		resolved, err := decrypt(secret)
		if err != nil {
			return nil, fmt.Errorf("failed to resolve credential: %w", err)
		}
		secret = resolved
	}

	dsn := desc.RawDSN
	if dsn == "" {
		built, err := m.p.d.buildDSN(desc, secret)
		if err != nil {
			return nil, err
		}
		dsn = built
	}

	db, err := sql.Open(m.p.d.driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database connection: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("unable to reach database: %w", err)
	}
	return db, nil
}

// Disconnect closes the current session. Disconnecting while already
// disconnected is a no-op.
func (m *sqlConnectionManager) Disconnect(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.db == nil {
		m.status = engine.StatusDisconnected
		return nil
	}
	err := m.closeLocked()
	return err
}

func (m *sqlConnectionManager) closeLocked() error {
	err := m.db.Close()
	m.db = nil
	m.desc = nil
	m.status = engine.StatusDisconnected
	m.disconnects++
	return err
}

// TestConnection runs a full connect/validate/measure/list/disconnect cycle
// on a throwaway session. The manager's own state is never touched.
func (m *sqlConnectionManager) TestConnection(ctx context.Context, desc *engine.ConnectionDescriptor) (*engine.TestReport, error) {
	if err := m.p.ready("test connection"); err != nil {
		return nil, err
	}

	start := time.Now()
	db, err := m.open(ctx, desc)
	if err != nil {
		return &engine.TestReport{Success: false, Error: err.Error()}, nil
	}
	defer db.Close()

	report := &engine.TestReport{Success: true, Latency: time.Since(start)}
	if m.p.d.versionQuery != "" {
		if err := db.QueryRowContext(ctx, m.p.d.versionQuery).Scan(&report.ServerVersion); err != nil {
			report.ServerVersion = ""
		}
	}
	if m.p.d.listDatabases != nil {
		if dbs, err := m.p.d.listDatabases(ctx, db); err == nil {
			report.Databases = dbs
		}
	}
	return report, nil
}

func (m *sqlConnectionManager) IsConnected() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.db != nil
}

func (m *sqlConnectionManager) ConnectionInfo() *engine.ConnectionInfo {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.desc == nil {
		return &engine.ConnectionInfo{Engine: m.p.d.id, Status: engine.StatusDisconnected}
	}
	return &engine.ConnectionInfo{
		ConnectionID: m.desc.ID,
		Engine:       m.p.d.id,
		Host:         m.desc.Host,
		Database:     m.desc.Database,
		Status:       m.status,
		ConnectedAt:  m.connectedAt,
	}
}

func (m *sqlConnectionManager) handle() (*sql.DB, *engine.ConnectionDescriptor) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.db, m.desc
}

// sqlExecutor runs SQL through the active session and normalizes results.
type sqlExecutor struct {
	p *sqlPlugin

	mu       sync.Mutex
	inflight map[string]context.CancelFunc
}

// Execute runs query and returns the normalized result. Execution failures
// are returned as a success:false result, not as an error; the error return
// is reserved for lifecycle problems (not initialized, not connected).
func (e *sqlExecutor) Execute(ctx context.Context, query string, opts engine.ExecutionOptions) (*engine.ExecutionResult, error) {
	if err := e.p.ready("execute"); err != nil {
		return nil, err
	}

	executionID := engine.NewExecutionID()
	start := time.Now()

	if strings.TrimSpace(query) == "" {
		return engine.FailedResult(executionID, "Query cannot be empty", time.Since(start)), nil
	}

	db, _ := e.p.conn.handle()
	if db == nil {
		return nil, &engine.NotConnectedError{Engine: e.p.d.id, Op: "execute"}
	}

	runCtx, cancel := engine.ApplyTimeout(ctx, opts, e.p.config().DefaultTimeout)
	defer cancel()
	e.track(executionID, cancel)
	defer e.untrack(executionID)

	rows, err := db.QueryContext(runCtx, query)
	if err != nil {
		msg := err.Error()
		if runCtx.Err() == context.DeadlineExceeded {
			msg = "query timed out; the server-side query may still be running"
		}
		return engine.FailedResult(executionID, msg, time.Since(start)), nil
	}
	defer rows.Close()

	columns, err := e.columnDefinitions(rows)
	if err != nil {
		return engine.FailedResult(executionID, err.Error(), time.Since(start)), nil
	}

	maxRows := opts.MaxRows
	if maxRows <= 0 {
		maxRows = e.p.config().MaxRows
	}

	var out [][]any
	truncated := false
	for rows.Next() {
		if maxRows > 0 && len(out) >= maxRows {
			truncated = true
			break
		}
		raw := make([]any, len(columns))
		ptrs := make([]any, len(columns))
		for i := range raw {
			ptrs[i] = &raw[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return engine.FailedResult(executionID, err.Error(), time.Since(start)), nil
		}
		row := make([]any, len(columns))
		for i, v := range raw {
			row[i] = e.p.results.FormatValue(v, columns[i].Type)
		}
		out = append(out, row)
	}
	if err := rows.Err(); err != nil {
		return engine.FailedResult(executionID, err.Error(), time.Since(start)), nil
	}

	return &engine.ExecutionResult{
		ExecutionID:   executionID,
		Success:       true,
		Columns:       columns,
		Rows:          out,
		RowCount:      len(out),
		ExecutionTime: time.Since(start),
		Metadata: map[string]any{
			"engine":    e.p.d.id.String(),
			"truncated": truncated,
		},
	}, nil
}

func (e *sqlExecutor) columnDefinitions(rows *sql.Rows) ([]engine.ColumnDefinition, error) {
	types, err := rows.ColumnTypes()
	if err != nil {
		return nil, fmt.Errorf("failed to read result columns: %w", err)
	}
	columns := make([]engine.ColumnDefinition, len(types))
	for i, ct := range types {
		col := engine.ColumnDefinition{Name: ct.Name(), Type: mapType(e.p.d.typeMap, ct.DatabaseTypeName())}
		if nullable, ok := ct.Nullable(); ok {
			col.Nullable = nullable
		}
		if length, ok := ct.Length(); ok {
			col.Length = int(length)
		}
		if precision, scale, ok := ct.DecimalSize(); ok {
			col.Precision = int(precision)
			col.Scale = int(scale)
		}
		columns[i] = col
	}
	return columns, nil
}

func (e *sqlExecutor) track(id string, cancel context.CancelFunc) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.inflight[id] = cancel
}

func (e *sqlExecutor) untrack(id string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	delete(e.inflight, id)
}

// Cancel interrupts a tracked execution by cancelling its context. Returns
// false when the id is unknown, meaning the execution already completed or
// never existed. Best-effort: the driver decides what cancellation means.
func (e *sqlExecutor) Cancel(executionID string) bool {
	e.mu.Lock()
	cancel, ok := e.inflight[executionID]
	e.mu.Unlock()
	if !ok {
		return false
	}
	cancel()
	return true
}

// ValidateQuery combines the engine-agnostic checks with dialect rules.
func (e *sqlExecutor) ValidateQuery(query string) engine.ValidationReport {
	report := engine.ValidateCommon(query)
	if e.p.d.validate != nil {
		report.Warnings = append(report.Warnings, e.p.d.validate(query)...)
	}
	return report
}

type cachedIntrospection struct {
	result    *engine.IntrospectionResult
	expiresAt time.Time
}

// sqlSchemaProvider caches one introspection snapshot per connection id.
type sqlSchemaProvider struct {
	p *sqlPlugin

	mu    sync.Mutex
	cache map[string]*cachedIntrospection
}

const providerCacheTTL = 5 * time.Minute

func (s *sqlSchemaProvider) Schema(ctx context.Context, connectionID string) (*engine.IntrospectionResult, error) {
	if err := s.p.ready("schema introspection"); err != nil {
		return nil, err
	}

	s.mu.Lock()
	if entry, ok := s.cache[connectionID]; ok && time.Now().Before(entry.expiresAt) {
		s.mu.Unlock()
		return entry.result, nil
	}
	s.mu.Unlock()

	return s.loadAndCache(ctx, connectionID)
}

func (s *sqlSchemaProvider) RefreshSchema(ctx context.Context, connectionID string) (*engine.IntrospectionResult, error) {
	if err := s.p.ready("schema refresh"); err != nil {
		return nil, err
	}
	s.mu.Lock()
	delete(s.cache, connectionID)
	s.mu.Unlock()
	return s.loadAndCache(ctx, connectionID)
}

func (s *sqlSchemaProvider) loadAndCache(ctx context.Context, connectionID string) (*engine.IntrospectionResult, error) {
	db, desc := s.p.conn.handle()
	if db == nil {
		return nil, &engine.NotConnectedError{Engine: s.p.d.id, Op: "schema introspection"}
	}

	result, err := s.p.d.introspect(ctx, db, desc.Database)
	if err != nil {
		return nil, fmt.Errorf("%s introspection failed: %w", s.p.d.id, err)
	}
	result.CollectedAt = time.Now()

	s.mu.Lock()
	s.cache[connectionID] = &cachedIntrospection{result: result, expiresAt: time.Now().Add(providerCacheTTL)}
	s.mu.Unlock()
	return result, nil
}

func (s *sqlSchemaProvider) clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cache = make(map[string]*cachedIntrospection)
}

// vocabulary flattens every live cached snapshot into table and column name
// lists for completion. Cache-only: completion never triggers a round trip.
func (s *sqlSchemaProvider) vocabulary() (tables, columns []string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	seenTables := make(map[string]struct{})
	seenColumns := make(map[string]struct{})
	add := func(dst *[]string, seen map[string]struct{}, name string) {
		if _, ok := seen[name]; ok {
			return
		}
		seen[name] = struct{}{}
		*dst = append(*dst, name)
	}

	now := time.Now()
	for _, entry := range s.cache {
		if now.After(entry.expiresAt) {
			continue
		}
		for _, sch := range entry.result.Schemas {
			for _, tbl := range sch.Tables {
				add(&tables, seenTables, tbl.Name)
				for _, col := range tbl.Columns {
					add(&columns, seenColumns, col.Name)
				}
			}
			for _, view := range sch.Views {
				add(&tables, seenTables, view.Name)
				for _, col := range view.Columns {
					add(&columns, seenColumns, col.Name)
				}
			}
		}
	}
	sort.Strings(tables)
	sort.Strings(columns)
	return tables, columns
}

func (s *sqlSchemaProvider) TableInfo(ctx context.Context, schemaName, tableName string) (*engine.TableInfo, error) {
	db, desc := s.p.conn.handle()
	if db == nil {
		return nil, &engine.NotConnectedError{Engine: s.p.d.id, Op: "table info"}
	}
	result, err := s.p.d.introspect(ctx, db, desc.Database)
	if err != nil {
		return nil, err
	}
	for _, sch := range result.Schemas {
		if schemaName != "" && !strings.EqualFold(sch.Name, schemaName) {
			continue
		}
		for i := range sch.Tables {
			if strings.EqualFold(sch.Tables[i].Name, tableName) {
				return &sch.Tables[i], nil
			}
		}
	}
	return nil, fmt.Errorf("table %q not found", tableName)
}

func (s *sqlSchemaProvider) ViewInfo(ctx context.Context, schemaName, viewName string) (*engine.ViewInfo, error) {
	db, desc := s.p.conn.handle()
	if db == nil {
		return nil, &engine.NotConnectedError{Engine: s.p.d.id, Op: "view info"}
	}
	result, err := s.p.d.introspect(ctx, db, desc.Database)
	if err != nil {
		return nil, err
	}
	for _, sch := range result.Schemas {
		if schemaName != "" && !strings.EqualFold(sch.Name, schemaName) {
			continue
		}
		for i := range sch.Views {
			if strings.EqualFold(sch.Views[i].Name, viewName) {
				return &sch.Views[i], nil
			}
		}
	}
	return nil, fmt.Errorf("view %q not found", viewName)
}

// dialectLanguage merges the shared vocabulary with dialect extensions and
// applies dialect post-passes after the shared formatter.
type dialectLanguage struct {
	p        *sqlPlugin
	analyzer engine.ContextAnalyzer
}

func (l *dialectLanguage) Keywords() []string {
	return engine.MergeVocabulary(engine.SharedKeywords(), l.p.d.keywords)
}

func (l *dialectLanguage) DataTypes() []string {
	return engine.MergeVocabulary(engine.SharedDataTypes(), l.p.d.dataTypes)
}

func (l *dialectLanguage) Functions() []string {
	return engine.MergeVocabulary(engine.SharedFunctions(), l.p.d.functions)
}

func (l *dialectLanguage) CompletionItems(query string, cursor int) []engine.CompletionItem {
	tables, columns := l.p.schemas.vocabulary()
	return engine.CompleteFrom(l.analyzer, query, cursor, engine.Vocabulary{
		Keywords:  l.Keywords(),
		Functions: l.Functions(),
		DataTypes: l.DataTypes(),
		Tables:    tables,
		Columns:   columns,
	})
}

func (l *dialectLanguage) FormatQuery(query string, opts sqlformat.Options) string {
	return breakoutPass(sqlformat.Format(query, opts), l.p.d.breakoutKeywords)
}

// breakoutPass forces dialect-special keywords onto their own line.
func breakoutPass(formatted string, keywords []string) string {
	for _, kw := range keywords {
		re := regexp.MustCompile(`(?i)[ \t]+` + regexp.QuoteMeta(kw) + `\b`)
		formatted = re.ReplaceAllString(formatted, "\n"+kw)
	}
	return formatted
}

// dialectResults normalizes engine-native scalars into JSON-safe values.
type dialectResults struct {
	p *sqlPlugin
}

// FormatValue maps one scalar through the dialect's per-type table: binary
// types to base64, JSON columns to parsed values, timestamps to RFC 3339,
// raw byte slices to strings.
func (r *dialectResults) FormatValue(value any, declaredType string) any {
	if value == nil {
		return nil
	}
	typ := strings.ToLower(declaredType)

	switch v := value.(type) {
	case time.Time:
		return v.Format(time.RFC3339)
	case []byte:
		if _, ok := r.p.d.binaryTypes[typ]; ok {
			return base64.StdEncoding.EncodeToString(v)
		}
		if _, ok := r.p.d.jsonTypes[typ]; ok {
			var parsed any
			if err := json.Unmarshal(v, &parsed); err == nil {
				return parsed
			}
		}
		return string(v)
	default:
		return value
	}
}

func (r *dialectResults) ExportResults(result *engine.ExecutionResult, format engine.ExportFormat) ([]byte, error) {
	return engine.Export(result, format)
}

// sqlMetadata maps dialect catalog queries onto the common metadata shapes.
type sqlMetadata struct {
	p *sqlPlugin
}

func (m *sqlMetadata) TableMetadata(ctx context.Context, schemaName, tableName string) (*engine.TableMetadata, error) {
	table, err := m.p.schemas.TableInfo(ctx, schemaName, tableName)
	if err != nil {
		return nil, err
	}
	indexes, err := m.IndexInfo(ctx, schemaName, tableName)
	if err != nil {
		return nil, err
	}
	constraints, err := m.Constraints(ctx, schemaName, tableName)
	if err != nil {
		return nil, err
	}
	return &engine.TableMetadata{Table: *table, Indexes: indexes, Constraints: constraints}, nil
}

func (m *sqlMetadata) IndexInfo(ctx context.Context, schemaName, tableName string) ([]engine.IndexInfo, error) {
	db, _ := m.p.conn.handle()
	if db == nil {
		return nil, &engine.NotConnectedError{Engine: m.p.d.id, Op: "index info"}
	}
	if m.p.d.indexes == nil {
		return nil, nil
	}
	return m.p.d.indexes(ctx, db, schemaName, tableName)
}

func (m *sqlMetadata) Constraints(ctx context.Context, schemaName, tableName string) ([]engine.ConstraintInfo, error) {
	db, _ := m.p.conn.handle()
	if db == nil {
		return nil, &engine.NotConnectedError{Engine: m.p.d.id, Op: "constraint info"}
	}
	if m.p.d.constraints == nil {
		return nil, nil
	}
	return m.p.d.constraints(ctx, db, schemaName, tableName)
}

func mapType(typeMap map[string]string, native string) string {
	if mapped, ok := typeMap[strings.ToLower(native)]; ok {
		return mapped
	}
	return strings.ToLower(native)
}

// normalizeConstraintType maps engine-native constraint spellings onto the
// four common classifications.
func normalizeConstraintType(native string) engine.ConstraintType {
	switch strings.ToUpper(strings.TrimSpace(native)) {
	case "PRIMARY KEY", "PRIMARY", "P", "PK":
		return engine.ConstraintPrimary
	case "FOREIGN KEY", "FOREIGN", "R", "F", "FK":
		return engine.ConstraintForeign
	case "UNIQUE", "U", "UQ":
		return engine.ConstraintUnique
	default:
		return engine.ConstraintCheck
	}
}
