// Package app wires the engine registry, connection store, and schema
// service into the workbench facade the CLI drives.
package app

import (
	"context"
	"fmt"
	"sort"

	"github.com/grokking-vietnam/querybench/internal/config"
	"github.com/grokking-vietnam/querybench/internal/connections"
	"github.com/grokking-vietnam/querybench/internal/engine"
	"github.com/grokking-vietnam/querybench/internal/plugins"
	"github.com/grokking-vietnam/querybench/internal/schema"
	"github.com/grokking-vietnam/querybench/internal/sqlformat"
	"github.com/grokking-vietnam/querybench/internal/validate"
	"github.com/grokking-vietnam/querybench/pkg/logger"
)

// Workbench is the top-level service. One instance serves the whole process.
type Workbench struct {
	cfg      *config.Config
	log      *logger.Logger
	registry *engine.Registry
	store    *connections.Manager
	schemas  *schema.Service
}

// NewWorkbench builds a fully wired workbench from the loaded config. Every
// built-in engine is registered; plugin instances are still constructed
// lazily on first use.
func NewWorkbench(cfg *config.Config, log *logger.Logger) (*Workbench, error) {
	if cfg == nil {
		cfg = config.DefaultConfig()
	}
	if log == nil {
		log = logger.NewLogger(false)
	}

	registry := engine.NewRegistry(engine.Config{
		DefaultTimeout: cfg.QueryTimeout(),
		MaxRows:        cfg.Query.MaxRows,
		Decrypt:        connections.NoopDecrypt,
	}, log)
	if err := plugins.RegisterAll(registry); err != nil {
		return nil, err
	}

	store := connections.NewManager(cfg.ConnectionsDir)

	w := &Workbench{
		cfg:      cfg,
		log:      log,
		registry: registry,
		store:    store,
	}
	w.schemas = schema.NewService(&connectingIntrospector{w: w}, store, schema.Options{
		TTL:      cfg.SchemaCacheTTL(),
		DemoMode: cfg.Schema.DemoMode,
		Logger:   log,
	})
	return w, nil
}

// Registry exposes the engine registry for direct plugin access.
func (w *Workbench) Registry() *engine.Registry { return w.registry }

// Connections exposes the connection store.
func (w *Workbench) Connections() *connections.Manager { return w.store }

// Schemas exposes the schema tree service.
func (w *Workbench) Schemas() *schema.Service { return w.schemas }

// Close disposes every live plugin instance.
func (w *Workbench) Close() {
	w.registry.DisposeAll()
}

// EngineSummary is one row of the engine listing.
type EngineSummary struct {
	ID           engine.ID
	DisplayName  string
	Description  string
	Capabilities engine.Capabilities
}

// Engines lists the registered engines sorted by id.
func (w *Workbench) Engines() []EngineSummary {
	regs := w.registry.Registered()
	out := make([]EngineSummary, len(regs))
	for i, reg := range regs {
		out[i] = EngineSummary{
			ID:           reg.ID,
			DisplayName:  reg.DisplayName,
			Description:  reg.Description,
			Capabilities: reg.Capabilities,
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// TestConnection probes desc against its engine without persisting anything.
func (w *Workbench) TestConnection(ctx context.Context, desc *engine.ConnectionDescriptor) (*engine.TestReport, error) {
	plugin, err := w.registry.Get(desc.Engine)
	if err != nil {
		return nil, err
	}
	return plugin.Connections().TestConnection(ctx, desc)
}

// connect resolves connectionID, ensures its plugin holds a live session for
// it, and returns both.
func (w *Workbench) connect(ctx context.Context, connectionID string) (engine.Plugin, *engine.ConnectionDescriptor, error) {
	desc, err := w.store.Get(connectionID)
	if err != nil {
		return nil, nil, err
	}
	plugin, err := w.registry.Get(desc.Engine)
	if err != nil {
		return nil, nil, err
	}

	info := plugin.Connections().ConnectionInfo()
	if info.Status != engine.StatusConnected || info.ConnectionID != desc.ID {
		if err := plugin.Connections().Connect(ctx, desc); err != nil {
			return nil, nil, err
		}
	}
	return plugin, desc, nil
}

// Execute runs query over the saved connection and updates its last-used
// timestamp on success.
func (w *Workbench) Execute(ctx context.Context, connectionID, query string, opts engine.ExecutionOptions) (*engine.ExecutionResult, error) {
	plugin, desc, err := w.connect(ctx, connectionID)
	if err != nil {
		return nil, err
	}

	result, err := plugin.Executor().Execute(ctx, query, opts)
	if err != nil {
		return nil, err
	}
	if result.Success {
		if err := w.store.Touch(desc.ID); err != nil {
			w.log.Debugf("failed to update last-used for %s: %v", desc.ID, err)
		}
	}
	return result, nil
}

// Format pretty-prints query using the engine's language service. The engine
// needs no live connection for this.
func (w *Workbench) Format(engineID engine.ID, query string, opts sqlformat.Options) (string, error) {
	plugin, err := w.registry.Get(engineID)
	if err != nil {
		return "", err
	}
	return plugin.Language().FormatQuery(query, opts), nil
}

// Validate runs the static checks plus the engine plugin's own rules. When a
// connection id is supplied, table references are checked against the cached
// schema tree.
func (w *Workbench) Validate(ctx context.Context, engineID engine.ID, connectionID, query string) ([]validate.Diagnostic, error) {
	var opts *validate.Options
	if connectionID != "" {
		names, err := w.knownTables(ctx, connectionID)
		if err != nil {
			w.log.Debugf("skipping reference checks: %v", err)
		} else if len(names) > 0 {
			opts = &validate.Options{TableNames: names}
		}
	}

	diags := validate.Check(query, engineID, opts)

	plugin, err := w.registry.Get(engineID)
	if err != nil {
		return nil, err
	}
	report := plugin.Executor().ValidateQuery(query)
	for _, issue := range report.Errors {
		diags = append(diags, validate.Diagnostic{Line: 1, Column: 1, Severity: validate.SeverityError, Code: issue.Code, Message: issue.Message})
	}
	for _, issue := range report.Warnings {
		diags = append(diags, validate.Diagnostic{Line: 1, Column: 1, Severity: validate.SeverityWarning, Code: issue.Code, Message: issue.Message})
	}
	return diags, nil
}

func (w *Workbench) knownTables(ctx context.Context, connectionID string) ([]string, error) {
	result, err := w.schemas.SearchSchema(ctx, connectionID, "", &schema.SearchFilters{
		Types: []schema.NodeType{schema.NodeTable, schema.NodeView},
	})
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(result.Nodes))
	for _, node := range result.Nodes {
		names = append(names, node.Name)
	}
	return names, nil
}

// Export serializes a result through the engine's result processor.
func (w *Workbench) Export(engineID engine.ID, result *engine.ExecutionResult, format engine.ExportFormat) ([]byte, error) {
	plugin, err := w.registry.Get(engineID)
	if err != nil {
		return nil, err
	}
	return plugin.Results().ExportResults(result, format)
}

// connectingIntrospector routes schema loads through the workbench so the
// plugin is connected before its schema provider is asked for a snapshot.
type connectingIntrospector struct {
	w *Workbench
}

func (c *connectingIntrospector) Introspect(ctx context.Context, desc *engine.ConnectionDescriptor) (*engine.IntrospectionResult, error) {
	plugin, _, err := c.w.connect(ctx, desc.ID)
	if err != nil {
		return nil, fmt.Errorf("cannot introspect %s: %w", desc.ID, err)
	}
	return plugin.Schemas().Schema(ctx, desc.ID)
}
