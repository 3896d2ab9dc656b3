package main

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"github.com/grokking-vietnam/querybench/internal/app"
	"github.com/grokking-vietnam/querybench/internal/config"
	"github.com/grokking-vietnam/querybench/internal/engine"
	"github.com/grokking-vietnam/querybench/internal/schema"
	"github.com/grokking-vietnam/querybench/internal/sqlformat"
	"github.com/grokking-vietnam/querybench/pkg/interactive"
	"github.com/grokking-vietnam/querybench/pkg/logger"
	"github.com/grokking-vietnam/querybench/pkg/progress"
)

const appName = "querybench"

var rootCmd = &cobra.Command{
	Use:   appName,
	Short: "Multi-engine SQL workbench",
	Long:  `A developer-friendly CLI to run queries, browse schemas, and validate SQL across PostgreSQL, MySQL, SQLite, BigQuery, Spark SQL and Snowflake.`,
}

var enginesCmd = &cobra.Command{
	Use:   "engines",
	Short: "List supported database engines",
	RunE:  runEngines,
}

var connectionsCmd = &cobra.Command{
	Use:   "connections",
	Short: "Manage saved connections",
}

var connectionsAddCmd = &cobra.Command{
	Use:   "add",
	Short: "Save a new connection",
	RunE:  runConnectionsAdd,
}

var connectionsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List saved connections",
	RunE:  runConnectionsList,
}

var connectionsDeleteCmd = &cobra.Command{
	Use:   "delete <connection-id>",
	Short: "Delete a saved connection",
	Args:  cobra.ExactArgs(1),
	RunE:  runConnectionsDelete,
}

var testCmd = &cobra.Command{
	Use:   "test <connection-id>",
	Short: "Test a saved connection",
	Args:  cobra.ExactArgs(1),
	RunE:  runTest,
}

var queryCmd = &cobra.Command{
	Use:   "query <connection-id> <sql>",
	Short: "Execute a query",
	Args:  cobra.ExactArgs(2),
	RunE:  runQuery,
}

var formatCmd = &cobra.Command{
	Use:   "format <engine> <sql>",
	Short: "Pretty-print a SQL statement",
	Args:  cobra.ExactArgs(2),
	RunE:  runFormat,
}

var validateCmd = &cobra.Command{
	Use:   "validate <engine> <sql>",
	Short: "Run static checks over a SQL statement",
	Args:  cobra.ExactArgs(2),
	RunE:  runValidate,
}

var schemaCmd = &cobra.Command{
	Use:   "schema <connection-id>",
	Short: "Browse the schema tree of a connection",
	Args:  cobra.ExactArgs(1),
	RunE:  runSchema,
}

var searchCmd = &cobra.Command{
	Use:   "search <connection-id> <text>",
	Short: "Search schema objects by name",
	Args:  cobra.ExactArgs(2),
	RunE:  runSearch,
}

var refreshCmd = &cobra.Command{
	Use:   "refresh <connection-id>",
	Short: "Refresh the cached schema of a connection",
	Args:  cobra.ExactArgs(1),
	RunE:  runRefresh,
}

var (
	configPath string
	verbose    bool

	connEngine    string
	connName      string
	connHost      string
	connPort      int
	connDatabase  string
	connUsername  string
	connSecretRef string
	connSSL       bool
	connDSN       string

	queryTimeout   time.Duration
	queryMaxRows   int
	exportFormat   string
	validateTarget string
	keywordCase    string
	commaPosition  string
	indentSize     int
	searchTypes    []string
	searchSchemas  []string
	schemaPath     []string
	skipConfirm    bool
)

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "querybench.yaml", "Path to the workbench configuration file")
	rootCmd.PersistentFlags().BoolVar(&verbose, "verbose", false, "Enable verbose logging")

	connectionsAddCmd.Flags().StringVar(&connEngine, "engine", "", "Engine id (postgresql, mysql, sqlite, bigquery, sparksql, snowflake)")
	connectionsAddCmd.Flags().StringVar(&connName, "name", "", "Display name for the connection")
	connectionsAddCmd.Flags().StringVar(&connHost, "host", "", "Server host")
	connectionsAddCmd.Flags().IntVar(&connPort, "port", 0, "Server port")
	connectionsAddCmd.Flags().StringVar(&connDatabase, "database", "", "Database name or file path")
	connectionsAddCmd.Flags().StringVar(&connUsername, "username", "", "Username")
	connectionsAddCmd.Flags().StringVar(&connSecretRef, "secret-ref", "", "Credential reference resolved at connect time")
	connectionsAddCmd.Flags().BoolVar(&connSSL, "ssl", false, "Require TLS")
	connectionsAddCmd.Flags().StringVar(&connDSN, "dsn", "", "Raw DSN overriding the individual fields")
	connectionsAddCmd.MarkFlagRequired("engine")
	connectionsAddCmd.MarkFlagRequired("name")

	connectionsListCmd.Flags().StringVar(&connEngine, "engine", "", "Only list connections for this engine")

	connectionsDeleteCmd.Flags().BoolVar(&skipConfirm, "yes", false, "Delete without asking for confirmation")

	queryCmd.Flags().DurationVar(&queryTimeout, "timeout", 0, "Per-query timeout (default from config)")
	queryCmd.Flags().IntVar(&queryMaxRows, "max-rows", 0, "Row cap for the result (default from config)")
	queryCmd.Flags().StringVar(&exportFormat, "export", "", "Write the result to stdout as csv or json instead of a table")

	formatCmd.Flags().StringVar(&keywordCase, "keyword-case", "upper", "Keyword case: upper, lower or capitalize")
	formatCmd.Flags().StringVar(&commaPosition, "commas", "trailing", "Comma position: trailing or leading")
	formatCmd.Flags().IntVar(&indentSize, "indent", 2, "Indent width in spaces")

	validateCmd.Flags().StringVar(&validateTarget, "connection", "", "Check table references against this connection's schema")

	schemaCmd.Flags().StringSliceVar(&schemaPath, "path", nil, "Expand the node at this path instead of the roots")

	searchCmd.Flags().StringSliceVar(&searchTypes, "types", nil, "Only match these node types (table, view, column, ...)")
	searchCmd.Flags().StringSliceVar(&searchSchemas, "schemas", nil, "Only match objects in these schemas")

	connectionsCmd.AddCommand(connectionsAddCmd)
	connectionsCmd.AddCommand(connectionsListCmd)
	connectionsCmd.AddCommand(connectionsDeleteCmd)

	rootCmd.AddCommand(enginesCmd)
	rootCmd.AddCommand(connectionsCmd)
	rootCmd.AddCommand(testCmd)
	rootCmd.AddCommand(queryCmd)
	rootCmd.AddCommand(formatCmd)
	rootCmd.AddCommand(validateCmd)
	rootCmd.AddCommand(schemaCmd)
	rootCmd.AddCommand(searchCmd)
	rootCmd.AddCommand(refreshCmd)

	cobra.OnInitialize(func() {
		rootCmd.SilenceUsage = true
		rootCmd.SilenceErrors = true
	})
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}

func newWorkbench() (*app.Workbench, error) {
	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		return nil, fmt.Errorf("cannot load config: %w", err)
	}
	return app.NewWorkbench(cfg, logger.NewLogger(verbose))
}

func runEngines(cmd *cobra.Command, args []string) error {
	wb, err := newWorkbench()
	if err != nil {
		return err
	}
	defer wb.Close()

	table := tablewriter.NewWriter(os.Stdout)
	table.SetHeader([]string{"ID", "Name", "Transactions", "Streaming", "Pooling", "Auth Methods"})
	for _, eng := range wb.Engines() {
		table.Append([]string{
			eng.ID.String(),
			eng.DisplayName,
			yesNo(eng.Capabilities.SupportsTransactions),
			yesNo(eng.Capabilities.SupportsStreaming),
			yesNo(eng.Capabilities.SupportsPooling),
			strings.Join(eng.Capabilities.SupportedAuthMethods, ", "),
		})
	}
	table.Render()
	return nil
}

func runConnectionsAdd(cmd *cobra.Command, args []string) error {
	wb, err := newWorkbench()
	if err != nil {
		return err
	}
	defer wb.Close()

	desc, err := wb.Connections().Save(&engine.ConnectionDescriptor{
		Name:     connName,
		Engine:   engine.ID(strings.ToLower(connEngine)),
		Host:     connHost,
		Port:     connPort,
		Database: connDatabase,
		Username: connUsername,
		Secret:   connSecretRef,
		SSL:      connSSL,
		RawDSN:   connDSN,
	})
	if err != nil {
		return err
	}
	fmt.Printf("Saved connection %s (%s)\n", desc.Name, desc.ID)
	return nil
}

func runConnectionsList(cmd *cobra.Command, args []string) error {
	wb, err := newWorkbench()
	if err != nil {
		return err
	}
	defer wb.Close()

	descs, err := wb.Connections().List(engine.ID(strings.ToLower(connEngine)))
	if err != nil {
		return err
	}
	if len(descs) == 0 {
		fmt.Println("No saved connections.")
		return nil
	}

	table := tablewriter.NewWriter(os.Stdout)
	table.SetHeader([]string{"ID", "Name", "Engine", "Host", "Database", "Last Used"})
	for _, desc := range descs {
		lastUsed := "never"
		if !desc.LastUsed.IsZero() {
			lastUsed = desc.LastUsed.Format("2006-01-02 15:04")
		}
		table.Append([]string{desc.ID, desc.Name, desc.Engine.String(), desc.Host, desc.Database, lastUsed})
	}
	table.Render()
	return nil
}

func runConnectionsDelete(cmd *cobra.Command, args []string) error {
	wb, err := newWorkbench()
	if err != nil {
		return err
	}
	defer wb.Close()

	desc, err := wb.Connections().Get(args[0])
	if err != nil {
		return err
	}
	if !skipConfirm {
		selector := interactive.NewConnectionSelector(os.Stdin, os.Stdout)
		if !selector.Confirm("delete", desc.Name) {
			fmt.Println("Aborted.")
			return nil
		}
	}

	if err := wb.Connections().Delete(args[0]); err != nil {
		return err
	}
	fmt.Println("Connection deleted.")
	return nil
}

func runTest(cmd *cobra.Command, args []string) error {
	wb, err := newWorkbench()
	if err != nil {
		return err
	}
	defer wb.Close()

	desc, err := wb.Connections().Get(args[0])
	if err != nil {
		return err
	}

	report, err := wb.TestConnection(context.Background(), desc)
	if err != nil {
		return err
	}
	if !report.Success {
		return fmt.Errorf("connection test failed: %s", report.Error)
	}

	fmt.Println("Connection OK.")
	if report.ServerVersion != "" {
		fmt.Printf("Server:    %s\n", report.ServerVersion)
	}
	fmt.Printf("Latency:   %s\n", report.Latency.Round(time.Millisecond))
	if len(report.Databases) > 0 {
		fmt.Printf("Databases: %s\n", strings.Join(report.Databases, ", "))
	}
	return nil
}

func runQuery(cmd *cobra.Command, args []string) error {
	wb, err := newWorkbench()
	if err != nil {
		return err
	}
	defer wb.Close()

	result, err := wb.Execute(context.Background(), args[0], args[1], engine.ExecutionOptions{
		Timeout: queryTimeout,
		MaxRows: queryMaxRows,
	})
	if err != nil {
		return err
	}
	if !result.Success {
		return fmt.Errorf("query failed: %s", result.Error)
	}

	if exportFormat != "" {
		desc, err := wb.Connections().Get(args[0])
		if err != nil {
			return err
		}
		data, err := wb.Export(desc.Engine, result, engine.ExportFormat(strings.ToLower(exportFormat)))
		if err != nil {
			return err
		}
		os.Stdout.Write(data)
		return nil
	}

	printResult(result)
	return nil
}

func printResult(result *engine.ExecutionResult) {
	headers := make([]string, len(result.Columns))
	for i, col := range result.Columns {
		headers[i] = col.Name
	}

	table := tablewriter.NewWriter(os.Stdout)
	table.SetHeader(headers)
	for _, row := range result.Rows {
		cells := make([]string, len(row))
		for i, v := range row {
			if v == nil {
				cells[i] = "NULL"
				continue
			}
			cells[i] = fmt.Sprintf("%v", v)
		}
		table.Append(cells)
	}
	table.Render()

	fmt.Printf("%d row(s) in %s\n", result.RowCount, result.ExecutionTime.Round(time.Millisecond))
	if truncated, ok := result.Metadata["truncated"].(bool); ok && truncated {
		fmt.Println("Result truncated by the row cap.")
	}
}

func runFormat(cmd *cobra.Command, args []string) error {
	wb, err := newWorkbench()
	if err != nil {
		return err
	}
	defer wb.Close()

	opts := sqlformat.Options{
		IndentSize:    indentSize,
		KeywordCase:   sqlformat.KeywordCase(keywordCase),
		CommaPosition: sqlformat.CommaPosition(commaPosition),
	}
	formatted, err := wb.Format(engine.ID(strings.ToLower(args[0])), args[1], opts)
	if err != nil {
		return err
	}
	fmt.Println(formatted)
	return nil
}

func runValidate(cmd *cobra.Command, args []string) error {
	wb, err := newWorkbench()
	if err != nil {
		return err
	}
	defer wb.Close()

	diags, err := wb.Validate(context.Background(), engine.ID(strings.ToLower(args[0])), validateTarget, args[1])
	if err != nil {
		return err
	}
	if len(diags) == 0 {
		fmt.Println("No issues found.")
		return nil
	}

	for _, d := range diags {
		fmt.Printf("%d:%d  %-7s  %s  (%s)\n", d.Line, d.Column, d.Severity, d.Message, d.Code)
	}
	return nil
}

func runSchema(cmd *cobra.Command, args []string) error {
	wb, err := newWorkbench()
	if err != nil {
		return err
	}
	defer wb.Close()

	ctx := context.Background()
	var nodes []*schema.TreeNode
	if len(schemaPath) > 0 {
		nodes, err = wb.Schemas().GetSchemaChildren(ctx, args[0], schemaPath)
	} else {
		nodes, err = wb.Schemas().GetConnectionSchema(ctx, args[0])
	}
	if err != nil {
		return err
	}
	if len(nodes) == 0 {
		fmt.Println("No schema objects found.")
		return nil
	}

	for _, node := range nodes {
		marker := " "
		if node.HasChildren {
			marker = "+"
		}
		fmt.Printf("%s %s %-10s %s\n", marker, node.Icon, node.Type, strings.Join(node.Path, "."))
	}
	return nil
}

func runSearch(cmd *cobra.Command, args []string) error {
	wb, err := newWorkbench()
	if err != nil {
		return err
	}
	defer wb.Close()

	filters := &schema.SearchFilters{Schemas: searchSchemas}
	for _, t := range searchTypes {
		filters.Types = append(filters.Types, schema.NodeType(strings.ToLower(t)))
	}

	result, err := wb.Schemas().SearchSchema(context.Background(), args[0], args[1], filters)
	if err != nil {
		return err
	}
	if result.TotalCount == 0 {
		fmt.Println("No matches.")
		return nil
	}

	table := tablewriter.NewWriter(os.Stdout)
	table.SetHeader([]string{"Type", "Name", "Path"})
	for _, node := range result.Nodes {
		table.Append([]string{string(node.Type), node.Name, strings.Join(node.Path, ".")})
	}
	table.Render()
	fmt.Printf("%d match(es) in %s\n", result.TotalCount, result.SearchTime.Round(time.Millisecond))
	return nil
}

func runRefresh(cmd *cobra.Command, args []string) error {
	wb, err := newWorkbench()
	if err != nil {
		return err
	}
	defer wb.Close()

	spinner := progress.NewSpinner("Refreshing schema")
	err = wb.Schemas().RefreshSchema(context.Background(), args[0])
	spinner.Finish()
	if err != nil {
		return err
	}
	fmt.Println("Schema refreshed.")
	return nil
}

func yesNo(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}
