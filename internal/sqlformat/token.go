package sqlformat

import "strings"

// TokenType classifies one lexed token.
type TokenType int

const (
	TokenUnknown TokenType = iota
	TokenKeyword
	TokenIdentifier
	TokenString
	TokenNumber
	TokenOperator
	TokenComment
	TokenWhitespace
)

func (t TokenType) String() string {
	switch t {
	case TokenKeyword:
		return "keyword"
	case TokenIdentifier:
		return "identifier"
	case TokenString:
		return "string"
	case TokenNumber:
		return "number"
	case TokenOperator:
		return "operator"
	case TokenComment:
		return "comment"
	case TokenWhitespace:
		return "whitespace"
	default:
		return "unknown"
	}
}

// Token is one lexed unit. Offset is the byte offset into the source text.
type Token struct {
	Type   TokenType
	Text   string
	Offset int
}

var keywordSet = func() map[string]struct{} {
	words := []string{
		"SELECT", "FROM", "WHERE", "GROUP", "BY", "HAVING", "ORDER",
		"INSERT", "INTO", "VALUES", "UPDATE", "SET", "DELETE",
		"CREATE", "ALTER", "DROP", "TABLE", "VIEW", "INDEX", "DATABASE", "SCHEMA",
		"JOIN", "INNER", "LEFT", "RIGHT", "FULL", "OUTER", "CROSS", "ON", "USING",
		"AND", "OR", "NOT", "IN", "EXISTS", "BETWEEN", "LIKE", "IS", "NULL",
		"AS", "DISTINCT", "ALL", "UNION", "INTERSECT", "EXCEPT",
		"LIMIT", "OFFSET", "ASC", "DESC", "CASE", "WHEN", "THEN", "ELSE", "END",
		"WITH", "RECURSIVE", "CAST", "PRIMARY", "FOREIGN", "KEY", "REFERENCES",
		"UNIQUE", "CHECK", "DEFAULT", "CONSTRAINT", "ADD", "COLUMN",
		"TRUE", "FALSE", "GRANT", "REVOKE", "TRUNCATE", "EXPLAIN", "ANALYZE",
		"DESCRIBE", "SHOW", "BEGIN", "COMMIT", "ROLLBACK", "TRANSACTION",
	}
	set := make(map[string]struct{}, len(words))
	for _, w := range words {
		set[w] = struct{}{}
	}
	return set
}()

// IsKeyword reports whether word is in the shared SQL keyword set,
// case-insensitively.
func IsKeyword(word string) bool {
	_, ok := keywordSet[strings.ToUpper(word)]
	return ok
}

// Keywords returns the shared keyword set in no particular order.
func Keywords() []string {
	out := make([]string, 0, len(keywordSet))
	for w := range keywordSet {
		out = append(out, w)
	}
	return out
}
