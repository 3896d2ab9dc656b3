package sqlformat_test

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/grokking-vietnam/querybench/internal/sqlformat"
)

func TestTokenizeClassifiesTokens(t *testing.T) {
	tokens := sqlformat.Tokenize("SELECT id FROM users WHERE name = 'bob' -- done")

	var types []sqlformat.TokenType
	var texts []string
	for _, tok := range tokens {
		if tok.Type == sqlformat.TokenWhitespace {
			continue
		}
		types = append(types, tok.Type)
		texts = append(texts, tok.Text)
	}

	require.Equal(t, []string{"SELECT", "id", "FROM", "users", "WHERE", "name", "=", "'bob'", "-- done"}, texts)
	require.Equal(t, []sqlformat.TokenType{
		sqlformat.TokenKeyword,
		sqlformat.TokenIdentifier,
		sqlformat.TokenKeyword,
		sqlformat.TokenIdentifier,
		sqlformat.TokenKeyword,
		sqlformat.TokenIdentifier,
		sqlformat.TokenOperator,
		sqlformat.TokenString,
		sqlformat.TokenComment,
	}, types)
}

func TestTokenizeRoundTripsInput(t *testing.T) {
	inputs := []string{
		"SELECT * FROM t WHERE a <= 10 AND b <> 'x'",
		"/* block\ncomment */ select 1;",
		"INSERT INTO t (a, b) VALUES (1.5, 'it''s')",
		"select `weird id`, \"Another\" from t",
		"broken 'unterminated string",
		"emoji 🙂 passthrough",
	}
	for _, input := range inputs {
		tokens := sqlformat.Tokenize(input)
		var b strings.Builder
		for _, tok := range tokens {
			b.WriteString(tok.Text)
		}
		require.Equal(t, input, b.String(), "token texts must concatenate back to the input")
	}
}

func TestTokenizeDoubledQuoteEscape(t *testing.T) {
	tokens := sqlformat.Tokenize("'it''s fine'")
	require.Len(t, tokens, 1)
	require.Equal(t, sqlformat.TokenString, tokens[0].Type)
	require.Equal(t, "'it''s fine'", tokens[0].Text)
}

func TestTokenizeTwoCharOperatorsAreGreedy(t *testing.T) {
	tokens := sqlformat.Tokenize("a<>b")
	require.Len(t, tokens, 3)
	require.Equal(t, "<>", tokens[1].Text)
	require.Equal(t, sqlformat.TokenOperator, tokens[1].Type)
}

func TestTokenizeOffsets(t *testing.T) {
	input := "ab  cd"
	tokens := sqlformat.Tokenize(input)
	require.Len(t, tokens, 3)
	require.Equal(t, 0, tokens[0].Offset)
	require.Equal(t, 2, tokens[1].Offset)
	require.Equal(t, 4, tokens[2].Offset)
}

func TestIsKeywordCaseInsensitive(t *testing.T) {
	require.True(t, sqlformat.IsKeyword("select"))
	require.True(t, sqlformat.IsKeyword("Select"))
	require.False(t, sqlformat.IsKeyword("users"))
}
