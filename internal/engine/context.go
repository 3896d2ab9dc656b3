package engine

import (
	"regexp"
	"sort"
	"strings"
)

// CompletionContext classifies what the cursor position is expecting.
type CompletionContext string

const (
	ContextExpression CompletionContext = "expression"
	ContextTableName  CompletionContext = "table"
	ContextDataType   CompletionContext = "datatype"
	ContextKeyword    CompletionContext = "keyword"
)

// ContextAnalyzer resolves the completion context at a cursor position. The
// regex implementation is approximate; it is an interface so a tokenizer
// driven analyzer can replace it without touching callers.
type ContextAnalyzer interface {
	Analyze(query string, cursor int) CompletionContext
}

type regexContextAnalyzer struct{}

// NewRegexContextAnalyzer returns the default heuristic analyzer.
func NewRegexContextAnalyzer() ContextAnalyzer {
	return regexContextAnalyzer{}
}

var (
	afterFromRe     = regexp.MustCompile(`(?i)\b(from|join|into|update|table)\s+[\w.]*$`)
	afterDataTypeRe = regexp.MustCompile(`(?i)\b(create\s+table\b.*\(\s*|\badd\s+column\b|\bcast\s*\(\s*[\w.]+\s+as)\s*[\w]*$`)
	afterExprRe     = regexp.MustCompile(`(?i)\b(select|where|having|on|and|or|set|by)\s+[^()]*$`)
)

func (regexContextAnalyzer) Analyze(query string, cursor int) CompletionContext {
	if cursor < 0 {
		cursor = 0
	}
	if cursor > len(query) {
		cursor = len(query)
	}
	head := query[:cursor]

	switch {
	case afterFromRe.MatchString(head):
		return ContextTableName
	case afterDataTypeRe.MatchString(head):
		return ContextDataType
	case afterExprRe.MatchString(head):
		return ContextExpression
	default:
		return ContextKeyword
	}
}

// Vocabulary bundles the candidate word lists completion draws from. Tables
// and Columns come from the plugin's cached schema snapshot and are empty
// until an introspection has run.
type Vocabulary struct {
	Keywords  []string
	Functions []string
	DataTypes []string
	Tables    []string
	Columns   []string
}

// CompleteFrom builds a ranked candidate list for the analyzed context from
// the supplied vocabulary, filtered by the partial word under the cursor.
func CompleteFrom(analyzer ContextAnalyzer, query string, cursor int, vocab Vocabulary) []CompletionItem {
	if analyzer == nil {
		analyzer = NewRegexContextAnalyzer()
	}
	cctx := analyzer.Analyze(query, cursor)
	prefix := wordPrefix(query, cursor)

	var items []CompletionItem
	add := func(words []string, kind CompletionKind, rank int) {
		for _, w := range words {
			if prefix != "" && !strings.HasPrefix(strings.ToUpper(w), strings.ToUpper(prefix)) {
				continue
			}
			items = append(items, CompletionItem{Label: w, Kind: kind, Rank: rank})
		}
	}

	switch cctx {
	case ContextExpression:
		add(vocab.Columns, CompletionColumn, 0)
		add(vocab.Functions, CompletionFunction, 1)
		add(vocab.Keywords, CompletionKeyword, 2)
	case ContextDataType:
		add(vocab.DataTypes, CompletionDataType, 0)
	case ContextTableName:
		add(vocab.Tables, CompletionTable, 0)
		add(vocab.Keywords, CompletionKeyword, 1)
	default:
		add(vocab.Keywords, CompletionKeyword, 0)
		add(vocab.Functions, CompletionFunction, 1)
	}

	sort.SliceStable(items, func(i, j int) bool {
		if items[i].Rank != items[j].Rank {
			return items[i].Rank < items[j].Rank
		}
		return items[i].Label < items[j].Label
	})
	return items
}

func wordPrefix(query string, cursor int) string {
	if cursor > len(query) {
		cursor = len(query)
	}
	start := cursor
	for start > 0 {
		c := query[start-1]
		if c == '_' || c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z' || c >= '0' && c <= '9' {
			start--
			continue
		}
		break
	}
	return query[start:cursor]
}
