package sqlformat

import (
	"strings"
	"unicode/utf8"
)

var twoCharOperators = []string{"<=", ">=", "!=", "<>", "||", "&&"}

const singleCharOperators = "(),.;=<>+-*/%"

// Tokenize scans input once, left to right, producing a token for each
// maximal run. Unrecognized characters become single-rune unknown tokens and
// survive verbatim, so the formatter can always rebuild the input.
func Tokenize(input string) []Token {
	var tokens []Token
	i := 0
	for i < len(input) {
		c := input[i]

		switch {
		case isSpace(c):
			j := i
			for j < len(input) && isSpace(input[j]) {
				j++
			}
			tokens = append(tokens, Token{TokenWhitespace, input[i:j], i})
			i = j

		case c == '-' && i+1 < len(input) && input[i+1] == '-':
			j := strings.IndexByte(input[i:], '\n')
			if j < 0 {
				j = len(input)
			} else {
				j += i
			}
			tokens = append(tokens, Token{TokenComment, input[i:j], i})
			i = j

		case c == '/' && i+1 < len(input) && input[i+1] == '*':
			end := strings.Index(input[i+2:], "*/")
			var j int
			if end < 0 {
				j = len(input)
			} else {
				j = i + 2 + end + 2
			}
			tokens = append(tokens, Token{TokenComment, input[i:j], i})
			i = j

		case c == '\'' || c == '"' || c == '`':
			j := scanQuoted(input, i, c)
			tokens = append(tokens, Token{TokenString, input[i:j], i})
			i = j

		case isIdentStart(c):
			j := i + 1
			for j < len(input) && isIdentPart(input[j]) {
				j++
			}
			word := input[i:j]
			typ := TokenIdentifier
			if IsKeyword(word) {
				typ = TokenKeyword
			}
			tokens = append(tokens, Token{typ, word, i})
			i = j

		case c >= '0' && c <= '9':
			j := i + 1
			for j < len(input) && (input[j] >= '0' && input[j] <= '9' || input[j] == '.') {
				j++
			}
			tokens = append(tokens, Token{TokenNumber, input[i:j], i})
			i = j

		default:
			if op, ok := matchOperator(input, i); ok {
				tokens = append(tokens, Token{TokenOperator, op, i})
				i += len(op)
				break
			}
			_, size := utf8.DecodeRuneInString(input[i:])
			tokens = append(tokens, Token{TokenUnknown, input[i : i+size], i})
			i += size
		}
	}
	return tokens
}

// scanQuoted returns the index just past the closing delimiter, honoring
// doubled-quote escaping (” inside '...' is an embedded quote).
func scanQuoted(input string, start int, quote byte) int {
	j := start + 1
	for j < len(input) {
		if input[j] != quote {
			j++
			continue
		}
		if j+1 < len(input) && input[j+1] == quote {
			j += 2
			continue
		}
		return j + 1
	}
	return j
}

func matchOperator(input string, i int) (string, bool) {
	if i+1 < len(input) {
		pair := input[i : i+2]
		for _, op := range twoCharOperators {
			if pair == op {
				return op, true
			}
		}
	}
	if strings.IndexByte(singleCharOperators, input[i]) >= 0 {
		return input[i : i+1], true
	}
	return "", false
}

func isSpace(c byte) bool {
	return c == ' ' || c == '\t' || c == '\n' || c == '\r'
}

func isIdentStart(c byte) bool {
	return c == '_' || c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z'
}

func isIdentPart(c byte) bool {
	return isIdentStart(c) || c >= '0' && c <= '9'
}
