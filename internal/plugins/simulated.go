package plugins

import (
	"context"
	"fmt"
	"regexp"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/grokking-vietnam/querybench/internal/engine"
	"github.com/grokking-vietnam/querybench/internal/sqlformat"
)

// simColumn describes one column of a simulated table or view.
type simColumn struct {
	name     string
	dataType string
	pk       bool
}

// simTable is one deterministic in-memory table. Rows are returned verbatim
// by Execute, so every row must have exactly len(columns) values.
type simTable struct {
	schema  string
	name    string
	columns []simColumn
	rows    [][]any
}

type simView struct {
	schema     string
	name       string
	columns    []simColumn
	definition string
}

// simDialect is the data table driving one simulated engine. These engines
// have no host driver, so connections, queries, and catalogs are served from
// fixed datasets. The language surface is real: vocabulary, completion,
// formatting, and validation behave exactly like the driver-backed engines.
type simDialect struct {
	id            engine.ID
	displayName   string
	description   string
	caps          engine.Capabilities
	serverVersion string
	databases     []string
	defaultSchema string

	tables []simTable
	views  []simView

	keywords         []string
	functions        []string
	dataTypes        []string
	breakoutKeywords []string

	validate func(query string) []engine.ValidationIssue

	defaultTimeout time.Duration
	defaultMaxRows int
}

// simPlugin implements all six capability interfaces over a simDialect. One
// struct serves every role; the accessor methods return the plugin itself.
type simPlugin struct {
	d        *simDialect
	analyzer engine.ContextAnalyzer

	mu          sync.Mutex
	cfg         engine.Config
	initialized bool
	desc        *engine.ConnectionDescriptor
	status      engine.ConnectionStatus
	connectedAt time.Time
	disconnects int
	inflight    map[string]context.CancelFunc
}

func newSimPlugin(d *simDialect) *simPlugin {
	return &simPlugin{
		d:        d,
		analyzer: engine.NewRegexContextAnalyzer(),
		status:   engine.StatusDisconnected,
		inflight: make(map[string]context.CancelFunc),
	}
}

func (p *simPlugin) ID() engine.ID                         { return p.d.id }
func (p *simPlugin) Capabilities() engine.Capabilities     { return p.d.caps }
func (p *simPlugin) Connections() engine.ConnectionManager { return p }
func (p *simPlugin) Executor() engine.QueryExecutor        { return p }
func (p *simPlugin) Schemas() engine.SchemaProvider        { return p }
func (p *simPlugin) Language() engine.LanguageService      { return p }
func (p *simPlugin) Results() engine.ResultProcessor       { return p }
func (p *simPlugin) Metadata() engine.MetadataExtractor    { return p }

func (p *simPlugin) Initialize(cfg engine.Config) error {
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

func (p *simPlugin) Dispose() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.initialized {
		return nil
	}
	p.initialized = false
	if p.desc != nil {
		p.disconnectLocked()
	}
	return nil
}

func (p *simPlugin) ready(op string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.initialized {
		return &engine.NotInitializedError{Engine: p.d.id, Op: op}
	}
	return nil
}

// Connect validates the credential reference and records the session.
// Connecting while already connected implicitly disconnects first, same as
// the driver-backed managers.
func (p *simPlugin) Connect(ctx context.Context, desc *engine.ConnectionDescriptor) error {
	if err := p.ready("connect"); err != nil {
		return err
	}
	if desc == nil {
		return &engine.ConnectionError{Engine: p.d.id, Cause: fmt.Errorf("connection descriptor is nil")}
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if p.desc != nil {
		p.disconnectLocked()
	}
	p.status = engine.StatusConnecting

	if decrypt := p.cfg.Decrypt; decrypt != nil && desc.Secret != "" {
		if _, err := decrypt(desc.Secret); err != nil {
			p.status = engine.StatusError
			return &engine.ConnectionError{Engine: p.d.id, Cause: fmt.Errorf("failed to resolve credential: %w", err)}
		}
	}

	p.desc = desc
	p.status = engine.StatusConnected
	p.connectedAt = time.Now()
	return nil
}

func (p *simPlugin) Disconnect(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.desc == nil {
		p.status = engine.StatusDisconnected
		return nil
	}
	p.disconnectLocked()
	return nil
}

func (p *simPlugin) disconnectLocked() {
	p.desc = nil
	p.status = engine.StatusDisconnected
	p.disconnects++
}

func (p *simPlugin) TestConnection(ctx context.Context, desc *engine.ConnectionDescriptor) (*engine.TestReport, error) {
	if err := p.ready("test connection"); err != nil {
		return nil, err
	}
	if desc == nil {
		return &engine.TestReport{Success: false, Error: "connection descriptor is nil"}, nil
	}
	start := time.Now()
	if decrypt := p.config().Decrypt; decrypt != nil && desc.Secret != "" {
		if _, err := decrypt(desc.Secret); err != nil {
			return &engine.TestReport{Success: false, Error: fmt.Sprintf("failed to resolve credential: %v", err)}, nil
		}
	}
	return &engine.TestReport{
		Success:       true,
		ServerVersion: p.d.serverVersion,
		Latency:       time.Since(start),
		Databases:     append([]string(nil), p.d.databases...),
	}, nil
}

func (p *simPlugin) IsConnected() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.desc != nil
}

func (p *simPlugin) ConnectionInfo() *engine.ConnectionInfo {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.desc == nil {
		return &engine.ConnectionInfo{Engine: p.d.id, Status: engine.StatusDisconnected}
	}
	return &engine.ConnectionInfo{
		ConnectionID: p.desc.ID,
		Engine:       p.d.id,
		Host:         p.desc.Host,
		Database:     p.desc.Database,
		Status:       p.status,
		ConnectedAt:  p.connectedAt,
	}
}

func (p *simPlugin) config() engine.Config {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.cfg
}

var simTableRefRe = regexp.MustCompile(`(?is)\bfrom\s+([A-Za-z_][\w.]*)`)

// Execute resolves the first FROM reference against the dataset and returns
// its rows. Queries without a table reference evaluate to a single scalar
// row, mirroring SELECT 1 on a real engine. Failures are data, not errors.
func (p *simPlugin) Execute(ctx context.Context, query string, opts engine.ExecutionOptions) (*engine.ExecutionResult, error) {
	if err := p.ready("execute"); err != nil {
		return nil, err
	}

	executionID := engine.NewExecutionID()
	start := time.Now()

	if strings.TrimSpace(query) == "" {
		return engine.FailedResult(executionID, "Query cannot be empty", time.Since(start)), nil
	}
	if !p.IsConnected() {
		return nil, &engine.NotConnectedError{Engine: p.d.id, Op: "execute"}
	}

	runCtx, cancel := engine.ApplyTimeout(ctx, opts, p.config().DefaultTimeout)
	defer cancel()
	p.track(executionID, cancel)
	defer p.untrack(executionID)

	if err := runCtx.Err(); err != nil {
		return engine.FailedResult(executionID, err.Error(), time.Since(start)), nil
	}

	match := simTableRefRe.FindStringSubmatch(query)
	if match == nil {
		return &engine.ExecutionResult{
			ExecutionID:   executionID,
			Success:       true,
			Columns:       []engine.ColumnDefinition{{Name: "result", Type: "integer"}},
			Rows:          [][]any{{int64(1)}},
			RowCount:      1,
			ExecutionTime: time.Since(start),
			Metadata:      map[string]any{"engine": p.d.id.String(), "truncated": false},
		}, nil
	}

	table := p.lookupTable(match[1])
	if table == nil {
		msg := fmt.Sprintf("Table %q does not exist", match[1])
		return engine.FailedResult(executionID, msg, time.Since(start)), nil
	}

	maxRows := opts.MaxRows
	if maxRows <= 0 {
		maxRows = p.config().MaxRows
	}

	columns := make([]engine.ColumnDefinition, len(table.columns))
	for i, c := range table.columns {
		columns[i] = engine.ColumnDefinition{Name: c.name, Type: c.dataType, Nullable: !c.pk}
	}

	rows := table.rows
	truncated := false
	if maxRows > 0 && len(rows) > maxRows {
		rows = rows[:maxRows]
		truncated = true
	}
	out := make([][]any, len(rows))
	for i, row := range rows {
		formatted := make([]any, len(row))
		for j, v := range row {
			formatted[j] = p.FormatValue(v, columns[j].Type)
		}
		out[i] = formatted
	}

	return &engine.ExecutionResult{
		ExecutionID:   executionID,
		Success:       true,
		Columns:       columns,
		Rows:          out,
		RowCount:      len(out),
		ExecutionTime: time.Since(start),
		Metadata: map[string]any{
			"engine":    p.d.id.String(),
			"truncated": truncated,
		},
	}, nil
}

// lookupTable resolves a possibly qualified reference (schema.table or
// project.dataset.table) by its last segment, case-insensitively.
func (p *simPlugin) lookupTable(ref string) *simTable {
	parts := strings.Split(ref, ".")
	name := parts[len(parts)-1]
	for i := range p.d.tables {
		if strings.EqualFold(p.d.tables[i].name, name) {
			return &p.d.tables[i]
		}
	}
	return nil
}

func (p *simPlugin) track(id string, cancel context.CancelFunc) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.inflight[id] = cancel
}

func (p *simPlugin) untrack(id string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.inflight, id)
}

// Cancel returns false for completed or unknown executions. Simulated
// queries finish synchronously, so in practice there is nothing to cancel.
func (p *simPlugin) Cancel(executionID string) bool {
	p.mu.Lock()
	cancel, ok := p.inflight[executionID]
	p.mu.Unlock()
	if !ok {
		return false
	}
	cancel()
	return true
}

func (p *simPlugin) ValidateQuery(query string) engine.ValidationReport {
	report := engine.ValidateCommon(query)
	if p.d.validate != nil {
		report.Warnings = append(report.Warnings, p.d.validate(query)...)
	}
	return report
}

func (p *simPlugin) Schema(ctx context.Context, connectionID string) (*engine.IntrospectionResult, error) {
	if err := p.ready("schema introspection"); err != nil {
		return nil, err
	}
	if !p.IsConnected() {
		return nil, &engine.NotConnectedError{Engine: p.d.id, Op: "schema introspection"}
	}
	return p.introspection(), nil
}

func (p *simPlugin) RefreshSchema(ctx context.Context, connectionID string) (*engine.IntrospectionResult, error) {
	// The dataset is fixed, so refresh and read are the same operation.
	return p.Schema(ctx, connectionID)
}

// introspection assembles the catalog snapshot from the dataset. Column rows
// carry live row counts so the tree view matches what Execute returns.
func (p *simPlugin) introspection() *engine.IntrospectionResult {
	schemas := make(map[string]*engine.SchemaInfo)
	order := []string{}
	get := func(name string) *engine.SchemaInfo {
		if s, ok := schemas[name]; ok {
			return s
		}
		s := &engine.SchemaInfo{Name: name}
		schemas[name] = s
		order = append(order, name)
		return s
	}

	for _, t := range p.d.tables {
		info := engine.TableInfo{Schema: t.schema, Name: t.name, RowCount: int64(len(t.rows))}
		for i, c := range t.columns {
			info.Columns = append(info.Columns, engine.ColumnInfo{
				Name:       c.name,
				DataType:   c.dataType,
				Nullable:   !c.pk,
				Position:   i + 1,
				PrimaryKey: c.pk,
			})
			if c.pk {
				info.PrimaryKeys = append(info.PrimaryKeys, c.name)
			}
		}
		s := get(t.schema)
		s.Tables = append(s.Tables, info)
	}
	for _, v := range p.d.views {
		info := engine.ViewInfo{Schema: v.schema, Name: v.name, Definition: v.definition}
		for i, c := range v.columns {
			info.Columns = append(info.Columns, engine.ColumnInfo{
				Name:     c.name,
				DataType: c.dataType,
				Nullable: true,
				Position: i + 1,
			})
		}
		s := get(v.schema)
		s.Views = append(s.Views, info)
	}

	result := &engine.IntrospectionResult{CollectedAt: time.Now()}
	p.mu.Lock()
	if p.desc != nil {
		result.DatabaseName = p.desc.Database
	}
	p.mu.Unlock()
	if result.DatabaseName == "" && len(p.d.databases) > 0 {
		result.DatabaseName = p.d.databases[0]
	}
	for _, name := range order {
		result.Schemas = append(result.Schemas, *schemas[name])
	}
	return result
}

func (p *simPlugin) TableInfo(ctx context.Context, schemaName, tableName string) (*engine.TableInfo, error) {
	if !p.IsConnected() {
		return nil, &engine.NotConnectedError{Engine: p.d.id, Op: "table info"}
	}
	result := p.introspection()
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

func (p *simPlugin) ViewInfo(ctx context.Context, schemaName, viewName string) (*engine.ViewInfo, error) {
	if !p.IsConnected() {
		return nil, &engine.NotConnectedError{Engine: p.d.id, Op: "view info"}
	}
	result := p.introspection()
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

func (p *simPlugin) Keywords() []string {
	return engine.MergeVocabulary(engine.SharedKeywords(), p.d.keywords)
}

func (p *simPlugin) DataTypes() []string {
	return engine.MergeVocabulary(engine.SharedDataTypes(), p.d.dataTypes)
}

func (p *simPlugin) Functions() []string {
	return engine.MergeVocabulary(engine.SharedFunctions(), p.d.functions)
}

func (p *simPlugin) CompletionItems(query string, cursor int) []engine.CompletionItem {
	tables, columns := p.datasetVocabulary()
	return engine.CompleteFrom(p.analyzer, query, cursor, engine.Vocabulary{
		Keywords:  p.Keywords(),
		Functions: p.Functions(),
		DataTypes: p.DataTypes(),
		Tables:    tables,
		Columns:   columns,
	})
}

// datasetVocabulary lists the table, view and column names of the fixed
// dataset for completion.
func (p *simPlugin) datasetVocabulary() (tables, columns []string) {
	seen := make(map[string]struct{})
	addColumns := func(cols []simColumn) {
		for _, c := range cols {
			if _, ok := seen[c.name]; ok {
				continue
			}
			seen[c.name] = struct{}{}
			columns = append(columns, c.name)
		}
	}
	for _, t := range p.d.tables {
		tables = append(tables, t.name)
		addColumns(t.columns)
	}
	for _, v := range p.d.views {
		tables = append(tables, v.name)
		addColumns(v.columns)
	}
	sort.Strings(tables)
	sort.Strings(columns)
	return tables, columns
}

func (p *simPlugin) FormatQuery(query string, opts sqlformat.Options) string {
	return breakoutPass(sqlformat.Format(query, opts), p.d.breakoutKeywords)
}

func (p *simPlugin) FormatValue(value any, declaredType string) any {
	if value == nil {
		return nil
	}
	switch v := value.(type) {
	case time.Time:
		return v.Format(time.RFC3339)
	case []byte:
		return string(v)
	default:
		return value
	}
}

func (p *simPlugin) ExportResults(result *engine.ExecutionResult, format engine.ExportFormat) ([]byte, error) {
	return engine.Export(result, format)
}

func (p *simPlugin) TableMetadata(ctx context.Context, schemaName, tableName string) (*engine.TableMetadata, error) {
	table, err := p.TableInfo(ctx, schemaName, tableName)
	if err != nil {
		return nil, err
	}
	indexes, err := p.IndexInfo(ctx, schemaName, tableName)
	if err != nil {
		return nil, err
	}
	constraints, err := p.Constraints(ctx, schemaName, tableName)
	if err != nil {
		return nil, err
	}
	return &engine.TableMetadata{Table: *table, Indexes: indexes, Constraints: constraints}, nil
}

// IndexInfo synthesizes a primary-key index per table; the simulated engines
// keep no secondary indexes.
func (p *simPlugin) IndexInfo(ctx context.Context, schemaName, tableName string) ([]engine.IndexInfo, error) {
	table, err := p.TableInfo(ctx, schemaName, tableName)
	if err != nil {
		return nil, err
	}
	if len(table.PrimaryKeys) == 0 {
		return nil, nil
	}
	return []engine.IndexInfo{{
		Name:      table.Name + "_pkey",
		Table:     table.Name,
		Columns:   append([]string(nil), table.PrimaryKeys...),
		Unique:    true,
		Primary:   true,
		IndexType: "clustered",
	}}, nil
}

func (p *simPlugin) Constraints(ctx context.Context, schemaName, tableName string) ([]engine.ConstraintInfo, error) {
	table, err := p.TableInfo(ctx, schemaName, tableName)
	if err != nil {
		return nil, err
	}
	if len(table.PrimaryKeys) == 0 {
		return nil, nil
	}
	return []engine.ConstraintInfo{{
		Name:    table.Name + "_pkey",
		Table:   table.Name,
		Type:    engine.ConstraintPrimary,
		Columns: append([]string(nil), table.PrimaryKeys...),
	}}, nil
}

func simRegistration(d *simDialect) engine.Registration {
	return engine.Registration{
		ID:           d.id,
		DisplayName:  d.displayName,
		Description:  d.description,
		Capabilities: d.caps,
		Factory: func() (engine.Plugin, error) {
			return newSimPlugin(d), nil
		},
	}
}
