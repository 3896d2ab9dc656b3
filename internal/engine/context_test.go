package engine_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/grokking-vietnam/querybench/internal/engine"
)

func TestRegexContextAnalyzer(t *testing.T) {
	analyzer := engine.NewRegexContextAnalyzer()

	tests := []struct {
		name  string
		query string
		want  engine.CompletionContext
	}{
		{"after from", "SELECT * FROM ", engine.ContextTableName},
		{"after join", "SELECT * FROM a JOIN b", engine.ContextTableName},
		{"after update", "UPDATE us", engine.ContextTableName},
		{"after select", "SELECT co", engine.ContextExpression},
		{"after where", "SELECT * FROM t WHERE na", engine.ContextExpression},
		{"in cast", "SELECT CAST(x AS VAR", engine.ContextDataType},
		{"statement start", "SEL", engine.ContextKeyword},
		{"empty", "", engine.ContextKeyword},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.Equal(t, tt.want, analyzer.Analyze(tt.query, len(tt.query)))
		})
	}
}

func TestAnalyzeClampsCursor(t *testing.T) {
	analyzer := engine.NewRegexContextAnalyzer()
	require.Equal(t, engine.ContextTableName, analyzer.Analyze("SELECT * FROM ", 200))
	require.NotPanics(t, func() { analyzer.Analyze("SELECT", -5) })
}

func TestCompleteFromFiltersByPrefix(t *testing.T) {
	items := engine.CompleteFrom(nil, "SELECT co", len("SELECT co"), engine.Vocabulary{
		Keywords:  []string{"COMMIT", "SELECT"},
		Functions: []string{"COUNT", "COALESCE", "SUM"},
	})

	labels := make([]string, len(items))
	for i, item := range items {
		labels[i] = item.Label
	}
	// Expression context ranks functions ahead of keywords.
	require.Equal(t, []string{"COALESCE", "COUNT", "COMMIT"}, labels)
	require.Equal(t, engine.CompletionFunction, items[0].Kind)
	require.Equal(t, engine.CompletionKeyword, items[2].Kind)
}

func TestCompleteFromTableContext(t *testing.T) {
	query := "SELECT * FROM us"
	items := engine.CompleteFrom(nil, query, len(query), engine.Vocabulary{
		Keywords: []string{"USING", "SELECT"},
		Tables:   []string{"users", "user_sessions", "orders"},
	})

	labels := make([]string, len(items))
	for i, item := range items {
		labels[i] = item.Label
	}
	// Schema tables rank ahead of keywords after FROM.
	require.Equal(t, []string{"user_sessions", "users", "USING"}, labels)
	require.Equal(t, engine.CompletionTable, items[0].Kind)
	require.Equal(t, engine.CompletionTable, items[1].Kind)
	require.Equal(t, engine.CompletionKeyword, items[2].Kind)
}

func TestCompleteFromColumnContext(t *testing.T) {
	query := "SELECT * FROM users WHERE em"
	items := engine.CompleteFrom(nil, query, len(query), engine.Vocabulary{
		Keywords:  []string{"EXISTS"},
		Functions: []string{"EXTRACT"},
		Columns:   []string{"email", "created_at"},
	})

	require.Equal(t, "email", items[0].Label)
	require.Equal(t, engine.CompletionColumn, items[0].Kind)
}

func TestCompleteFromDataTypeContext(t *testing.T) {
	query := "SELECT CAST(x AS "
	items := engine.CompleteFrom(nil, query, len(query), engine.Vocabulary{
		Keywords:  []string{"SELECT"},
		Functions: []string{"COUNT"},
		DataTypes: []string{"VARCHAR", "INTEGER"},
	})

	require.Len(t, items, 2)
	for _, item := range items {
		require.Equal(t, engine.CompletionDataType, item.Kind)
	}
}

func TestCompleteFromKeywordContextAtStart(t *testing.T) {
	items := engine.CompleteFrom(nil, "SEL", 3, engine.Vocabulary{
		Keywords:  []string{"SELECT", "SET"},
		Functions: []string{"SUM"},
	})

	require.Len(t, items, 1)
	require.Equal(t, "SELECT", items[0].Label)
	require.Equal(t, engine.CompletionKeyword, items[0].Kind)
}
