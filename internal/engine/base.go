package engine

import (
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/grokking-vietnam/querybench/internal/sqlformat"
)

// NewExecutionID returns a fresh opaque execution identifier.
func NewExecutionID() string {
	return uuid.NewString()
}

// FailedResult builds a success:false result carrying the error message.
func FailedResult(executionID, message string, elapsed time.Duration) *ExecutionResult {
	return &ExecutionResult{
		ExecutionID:   executionID,
		Success:       false,
		Columns:       nil,
		Rows:          nil,
		RowCount:      0,
		ExecutionTime: elapsed,
		Error:         message,
	}
}

// ApplyTimeout derives a bounded context from the execution options, falling
// back to the plugin default. The returned cancel must always be called. The
// timeout is advisory: when it fires the call fails but the server-side query
// may keep running.
func ApplyTimeout(ctx context.Context, opts ExecutionOptions, fallback time.Duration) (context.Context, context.CancelFunc) {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = fallback
	}
	if timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, timeout)
}

var (
	selectStarRe = regexp.MustCompile(`(?i)\bselect\s+\*`)
	bareDMLRe    = regexp.MustCompile(`(?i)^\s*(update|delete)\b`)
	whereRe      = regexp.MustCompile(`(?i)\bwhere\b`)
	multiStmtRe  = regexp.MustCompile(`;\s*\S`)
)

// ValidateCommon runs the engine-agnostic structural checks shared by every
// executor. Dialect-specific checks are appended by the plugin.
func ValidateCommon(query string) ValidationReport {
	var report ValidationReport

	if strings.TrimSpace(query) == "" {
		report.Errors = append(report.Errors, ValidationIssue{
			Code:    "query.empty",
			Message: "Query cannot be empty",
		})
		return report
	}

	if selectStarRe.MatchString(query) {
		report.Warnings = append(report.Warnings, ValidationIssue{
			Code:    "statement.select.no-select-all",
			Message: "SELECT * is discouraged; list the columns you need",
		})
	}

	if bareDMLRe.MatchString(query) && !whereRe.MatchString(query) {
		report.Warnings = append(report.Warnings, ValidationIssue{
			Code:    "statement.where.require.update-delete",
			Message: "UPDATE/DELETE without a WHERE clause affects every row",
		})
	}

	if multiStmtRe.MatchString(strings.TrimRight(strings.TrimSpace(query), "; \t\n")) {
		report.Warnings = append(report.Warnings, ValidationIssue{
			Code:    "statement.multiple",
			Message: "Multiple statements in one request; only the first result is returned",
		})
	}

	return report
}

// Export serializes a result set. CSV follows RFC 4180 quoting via
// encoding/csv; JSON is an array of row objects keyed by column name.
func Export(result *ExecutionResult, format ExportFormat) ([]byte, error) {
	if result == nil {
		return nil, fmt.Errorf("result cannot be nil")
	}
	switch format {
	case ExportCSV:
		return exportCSV(result)
	case ExportJSON:
		return exportJSON(result)
	default:
		return nil, &UnsupportedFormatError{Format: format}
	}
}

func exportCSV(result *ExecutionResult) ([]byte, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)

	header := make([]string, len(result.Columns))
	for i, col := range result.Columns {
		header[i] = col.Name
	}
	if err := w.Write(header); err != nil {
		return nil, fmt.Errorf("failed to write csv header: %w", err)
	}

	record := make([]string, len(result.Columns))
	for _, row := range result.Rows {
		for i := range record {
			record[i] = ""
			if i < len(row) && row[i] != nil {
				record[i] = fmt.Sprintf("%v", row[i])
			}
		}
		if err := w.Write(record); err != nil {
			return nil, fmt.Errorf("failed to write csv row: %w", err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return nil, fmt.Errorf("failed to flush csv: %w", err)
	}
	return buf.Bytes(), nil
}

func exportJSON(result *ExecutionResult) ([]byte, error) {
	rows := make([]map[string]any, 0, len(result.Rows))
	for _, row := range result.Rows {
		obj := make(map[string]any, len(result.Columns))
		for i, col := range result.Columns {
			if i < len(row) {
				obj[col.Name] = row[i]
			} else {
				obj[col.Name] = nil
			}
		}
		rows = append(rows, obj)
	}
	return json.MarshalIndent(rows, "", "  ")
}

// Shared cross-engine vocabulary. Each dialect appends its own extensions
// through MergeVocabulary.
var (
	sharedFunctions = []string{
		"COUNT", "SUM", "AVG", "MIN", "MAX",
		"COALESCE", "NULLIF", "CAST", "ABS", "ROUND",
		"LENGTH", "LOWER", "UPPER", "TRIM", "SUBSTRING", "REPLACE", "CONCAT",
		"NOW", "CURRENT_DATE", "CURRENT_TIMESTAMP",
		"ROW_NUMBER", "RANK", "DENSE_RANK", "LAG", "LEAD",
	}
	sharedDataTypes = []string{
		"INTEGER", "BIGINT", "SMALLINT", "DECIMAL", "NUMERIC",
		"REAL", "DOUBLE", "FLOAT", "BOOLEAN",
		"CHAR", "VARCHAR", "TEXT",
		"DATE", "TIME", "TIMESTAMP",
		"BLOB",
	}
)

// SharedKeywords returns the cross-engine keyword set.
func SharedKeywords() []string {
	return sqlformat.Keywords()
}

// SharedFunctions returns the cross-engine function set.
func SharedFunctions() []string {
	out := make([]string, len(sharedFunctions))
	copy(out, sharedFunctions)
	return out
}

// SharedDataTypes returns the cross-engine data type set.
func SharedDataTypes() []string {
	out := make([]string, len(sharedDataTypes))
	copy(out, sharedDataTypes)
	return out
}

// MergeVocabulary appends extensions to base, dropping case-insensitive
// duplicates while preserving order.
func MergeVocabulary(base, extensions []string) []string {
	seen := make(map[string]struct{}, len(base)+len(extensions))
	out := make([]string, 0, len(base)+len(extensions))
	for _, list := range [][]string{base, extensions} {
		for _, word := range list {
			key := strings.ToUpper(word)
			if _, ok := seen[key]; ok {
				continue
			}
			seen[key] = struct{}{}
			out = append(out, word)
		}
	}
	return out
}
