package sqlformat

import (
	"strings"
)

// KeywordCase selects how keywords are rewritten.
type KeywordCase string

const (
	KeywordUpper      KeywordCase = "upper"
	KeywordLower      KeywordCase = "lower"
	KeywordCapitalize KeywordCase = "capitalize"
)

// CommaPosition selects where list commas sit relative to line breaks.
type CommaPosition string

const (
	CommaTrailing CommaPosition = "trailing"
	CommaLeading  CommaPosition = "leading"
)

// Options configure Format. Zero or unrecognized values fall back to
// defaults; options never cause an error.
type Options struct {
	IndentSize         int
	MaxLineLength      int
	KeywordCase        KeywordCase
	CommaPosition      CommaPosition
	AlignKeywords      bool
	PreserveWhitespace bool
}

// DefaultOptions returns the formatter defaults.
func DefaultOptions() Options {
	return Options{
		IndentSize:    2,
		MaxLineLength: 120,
		KeywordCase:   KeywordUpper,
		CommaPosition: CommaTrailing,
	}
}

func (o Options) normalized() Options {
	if o.IndentSize <= 0 {
		o.IndentSize = 2
	}
	switch o.KeywordCase {
	case KeywordUpper, KeywordLower, KeywordCapitalize:
	default:
		o.KeywordCase = KeywordUpper
	}
	switch o.CommaPosition {
	case CommaTrailing, CommaLeading:
	default:
		o.CommaPosition = CommaTrailing
	}
	return o
}

// Keywords that force a line break at the current indent level.
var majorKeywords = map[string]struct{}{
	"SELECT": {}, "FROM": {}, "WHERE": {}, "GROUP": {}, "HAVING": {},
	"ORDER": {}, "INSERT": {}, "UPDATE": {}, "DELETE": {},
	"CREATE": {}, "ALTER": {}, "DROP": {},
	"UNION": {}, "JOIN": {}, "LEFT": {}, "RIGHT": {}, "INNER": {}, "OUTER": {},
}

// Format rebuilds sql from its token stream with regenerated whitespace.
// It is fail-soft: on any internal failure, or if the input is empty or
// whitespace-only, the original text is returned unchanged.
func Format(sql string, opts Options) (out string) {
	defer func() {
		if recover() != nil {
			out = sql
		}
	}()

	if strings.TrimSpace(sql) == "" {
		return sql
	}
	opts = opts.normalized()
	if opts.PreserveWhitespace {
		return sql
	}

	tokens := significant(Tokenize(sql))
	if len(tokens) == 0 {
		return sql
	}

	w := &writer{indentUnit: strings.Repeat(" ", opts.IndentSize)}
	var prev *Token
	for i := range tokens {
		tok := tokens[i]
		switch tok.Type {
		case TokenComment:
			w.newline(w.indent)
			w.write(tok.Text)
			w.newlinePendingAt(w.indent)

		case TokenKeyword:
			upper := strings.ToUpper(tok.Text)
			_, major := majorKeywords[upper]
			if major && prev != nil && !joinChain(prev) {
				w.newline(w.indent)
			} else if needSpace(prev, tok) {
				w.space()
			}
			w.write(applyCase(tok.Text, opts.KeywordCase))

		case TokenOperator:
			switch tok.Text {
			case "(":
				if needSpace(prev, tok) {
					w.space()
				}
				w.write("(")
				w.indent++
			case ")":
				if w.indent > 0 {
					w.indent--
				}
				w.write(")")
			case ",":
				if opts.CommaPosition == CommaLeading {
					w.newline(w.indent + 1)
					w.write(",")
				} else {
					w.write(",")
					w.newlinePendingAt(w.indent + 1)
				}
			default:
				if needSpace(prev, tok) {
					w.space()
				}
				w.write(tok.Text)
			}

		default:
			if needSpace(prev, tok) {
				w.space()
			}
			w.write(tok.Text)
		}
		prev = &tokens[i]
	}
	return w.String()
}

// joinChain reports whether prev is a join modifier, so that LEFT OUTER JOIN
// stays on one line instead of breaking before each word.
func joinChain(prev *Token) bool {
	if prev == nil || prev.Type != TokenKeyword {
		return false
	}
	switch strings.ToUpper(prev.Text) {
	case "LEFT", "RIGHT", "INNER", "OUTER", "FULL", "CROSS":
		return true
	}
	return false
}

func significant(tokens []Token) []Token {
	out := tokens[:0:0]
	for _, t := range tokens {
		if t.Type != TokenWhitespace {
			out = append(out, t)
		}
	}
	return out
}

// needSpace decides whether one space separates prev and cur. Word-like
// tokens always get one space between them; punctuation binds tight except
// that keywords keep a space before an opening parenthesis (IN (...)).
func needSpace(prev *Token, cur Token) bool {
	if prev == nil {
		return false
	}
	switch cur.Text {
	case ",", ";", ")", ".":
		return false
	case "(":
		return prev.Type == TokenKeyword
	}
	switch prev.Text {
	case "(", ".":
		return false
	}
	return true
}

func applyCase(word string, kc KeywordCase) string {
	switch kc {
	case KeywordLower:
		return strings.ToLower(word)
	case KeywordCapitalize:
		lower := strings.ToLower(word)
		return strings.ToUpper(lower[:1]) + lower[1:]
	default:
		return strings.ToUpper(word)
	}
}

type writer struct {
	b            strings.Builder
	indentUnit   string
	indent       int
	breakPending bool
	breakLevel   int
	started      bool
}

func (w *writer) write(s string) {
	if w.breakPending {
		w.breakPending = false
		w.newline(w.breakLevel)
	}
	w.b.WriteString(s)
	w.started = true
}

func (w *writer) space() {
	if w.breakPending {
		return
	}
	w.b.WriteByte(' ')
}

func (w *writer) newline(level int) {
	w.breakPending = false
	if !w.started {
		return
	}
	w.b.WriteByte('\n')
	for i := 0; i < level; i++ {
		w.b.WriteString(w.indentUnit)
	}
}

func (w *writer) newlinePendingAt(level int) {
	w.breakPending = true
	w.breakLevel = level
}

func (w *writer) String() string {
	return w.b.String()
}
