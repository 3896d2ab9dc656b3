// Package validate performs static diagnostics over SQL text: balance
// checks, structural heuristics, and optional schema reference checks. It is
// pure and synchronous; editors run it on every keystroke.
package validate

import (
	"regexp"
	"strings"

	"github.com/grokking-vietnam/querybench/internal/engine"
)

// Severity grades a diagnostic.
type Severity string

const (
	SeverityError   Severity = "error"
	SeverityWarning Severity = "warning"
	SeverityInfo    Severity = "info"
)

// Diagnostic is one finding, positioned with 1-based line and column.
type Diagnostic struct {
	Line     int
	Column   int
	Severity Severity
	Code     string
	Message  string
}

// Options supply optional context for reference checking.
type Options struct {
	// TableNames are the known table names from the cached schema. When
	// empty, reference checks are skipped.
	TableNames []string
}

type pos struct {
	line, col int
}

// Engines where a SELECT without FROM is idiomatic rather than suspicious.
var bareSelectEngines = map[engine.ID]struct{}{
	engine.MySQL:    {},
	engine.SQLite:   {},
	engine.BigQuery: {},
}

// Check runs every validator over sql and accumulates the findings into one
// list. It never stops at the first problem and never returns an error.
func Check(sql string, engineID engine.ID, opts *Options) []Diagnostic {
	if strings.TrimSpace(sql) == "" {
		return nil
	}

	code, diags := stripAndBalance(sql)
	diags = append(diags, structuralChecks(code, engineID)...)
	if opts != nil && len(opts.TableNames) > 0 {
		diags = append(diags, referenceChecks(code, opts.TableNames)...)
	}
	diags = append(diags, dialectChecks(code, engineID)...)
	return diags
}

// stripAndBalance scans the input once, producing a copy with strings and
// comments blanked out (positions preserved) while checking parenthesis and
// quote balance.
func stripAndBalance(sql string) (string, []Diagnostic) {
	var diags []Diagnostic
	code := []byte(sql)

	line, col := 1, 1
	var parens []pos
	var inString bool
	var quote byte
	var stringOpen pos
	var inBlockComment bool
	var inLineComment bool

	blank := func(i int) {
		if code[i] != '\n' {
			code[i] = ' '
		}
	}

	for i := 0; i < len(sql); i++ {
		c := sql[i]

		switch {
		case inLineComment:
			if c == '\n' {
				inLineComment = false
			} else {
				blank(i)
			}

		case inBlockComment:
			if c == '*' && i+1 < len(sql) && sql[i+1] == '/' {
				inBlockComment = false
				blank(i)
				blank(i + 1)
				i++
				col++
			} else {
				blank(i)
			}

		case inString:
			if c == quote {
				if i+1 < len(sql) && sql[i+1] == quote {
					blank(i)
					blank(i + 1)
					i++
					col++
				} else {
					inString = false
					blank(i)
				}
			} else if c == '\n' {
				// Quote state is tracked per line: a string still open at
				// end of line is reported and the scan resynchronizes.
				diags = append(diags, Diagnostic{
					Line:     stringOpen.line,
					Column:   stringOpen.col,
					Severity: SeverityError,
					Code:     "syntax.string.unclosed",
					Message:  "unclosed string literal",
				})
				inString = false
			} else {
				blank(i)
			}

		default:
			switch c {
			case '-':
				if i+1 < len(sql) && sql[i+1] == '-' {
					inLineComment = true
					blank(i)
				}
			case '/':
				if i+1 < len(sql) && sql[i+1] == '*' {
					inBlockComment = true
					blank(i)
				}
			case '\'', '"', '`':
				inString = true
				quote = c
				stringOpen = pos{line, col}
				blank(i)
			case '(':
				parens = append(parens, pos{line, col})
			case ')':
				if len(parens) == 0 {
					diags = append(diags, Diagnostic{
						Line:     line,
						Column:   col,
						Severity: SeverityError,
						Code:     "syntax.paren.unmatched-close",
						Message:  "unmatched closing parenthesis",
					})
				} else {
					parens = parens[:len(parens)-1]
				}
			}
		}

		if c == '\n' {
			line++
			col = 1
		} else {
			col++
		}
	}

	if inString {
		diags = append(diags, Diagnostic{
			Line:     stringOpen.line,
			Column:   stringOpen.col,
			Severity: SeverityError,
			Code:     "syntax.string.unclosed",
			Message:  "unclosed string literal",
		})
	}
	if len(parens) > 0 {
		last := parens[len(parens)-1]
		diags = append(diags, Diagnostic{
			Line:     last.line,
			Column:   last.col,
			Severity: SeverityError,
			Code:     "syntax.paren.unmatched-open",
			Message:  "unmatched opening parenthesis",
		})
	}
	return string(code), diags
}

var (
	selectRe        = regexp.MustCompile(`(?i)\bselect\b`)
	fromRe          = regexp.MustCompile(`(?i)\bfrom\b`)
	trivialSelectRe = regexp.MustCompile(`(?i)\bselect\s+[\d(]`)
)

func structuralChecks(code string, engineID engine.ID) []Diagnostic {
	var diags []Diagnostic

	if loc := selectRe.FindStringIndex(code); loc != nil {
		_, bareOK := bareSelectEngines[engineID]
		hasFrom := fromRe.MatchString(code[loc[1]:])
		trivial := trivialSelectRe.MatchString(code[loc[0]:])
		if !hasFrom && !bareOK && !trivial {
			line, col := position(code, loc[0])
			diags = append(diags, Diagnostic{
				Line:     line,
				Column:   col,
				Severity: SeverityWarning,
				Code:     "statement.select.missing-from",
				Message:  "SELECT statement has no FROM clause",
			})
		}
	}

	trimmed := strings.TrimRight(code, " \t\n\r")
	if trimmed != "" && !strings.HasSuffix(trimmed, ";") {
		line, col := position(code, len(trimmed)-1)
		diags = append(diags, Diagnostic{
			Line:     line,
			Column:   col + 1,
			Severity: SeverityInfo,
			Code:     "style.missing-terminator",
			Message:  "statement does not end with a semicolon",
		})
	}
	return diags
}

var tableRefRe = regexp.MustCompile(`(?i)\b(?:from|join)\s+([a-zA-Z_][\w.]*)`)

func referenceChecks(code string, tableNames []string) []Diagnostic {
	known := make(map[string]struct{}, len(tableNames))
	for _, name := range tableNames {
		known[strings.ToLower(name)] = struct{}{}
	}

	var diags []Diagnostic
	for _, match := range tableRefRe.FindAllStringSubmatchIndex(code, -1) {
		start, end := match[2], match[3]
		name := code[start:end]
		// Qualified names are looked up by their final segment.
		if dot := strings.LastIndexByte(name, '.'); dot >= 0 {
			name = name[dot+1:]
		}
		if _, ok := known[strings.ToLower(name)]; ok {
			continue
		}
		line, col := position(code, start)
		diags = append(diags, Diagnostic{
			Line:     line,
			Column:   col,
			Severity: SeverityError,
			Code:     "schema.table.unknown",
			Message:  "unknown table: " + code[start:end],
		})
	}
	return diags
}

var (
	bqLegacyRangeRe = regexp.MustCompile(`(?i)\bTABLE_(DATE_RANGE|QUERY)\s*\(`)
	mysqlCalcRowsRe = regexp.MustCompile(`(?i)\bSQL_CALC_FOUND_ROWS\b`)
)

func dialectChecks(code string, engineID engine.ID) []Diagnostic {
	var diags []Diagnostic

	switch engineID {
	case engine.BigQuery:
		if loc := bqLegacyRangeRe.FindStringIndex(code); loc != nil {
			line, col := position(code, loc[0])
			diags = append(diags, Diagnostic{
				Line:     line,
				Column:   col,
				Severity: SeverityWarning,
				Code:     "deprecated.bigquery.table-range",
				Message:  "legacy table range functions are deprecated; use wildcard tables with _TABLE_SUFFIX",
			})
		}
	case engine.MySQL:
		if loc := mysqlCalcRowsRe.FindStringIndex(code); loc != nil {
			line, col := position(code, loc[0])
			diags = append(diags, Diagnostic{
				Line:     line,
				Column:   col,
				Severity: SeverityWarning,
				Code:     "deprecated.mysql.sql-calc-found-rows",
				Message:  "SQL_CALC_FOUND_ROWS is deprecated; run a separate COUNT(*) query",
			})
		}
	}
	return diags
}

// position converts a byte offset into 1-based line and column.
func position(text string, offset int) (int, int) {
	line, col := 1, 1
	for i := 0; i < offset && i < len(text); i++ {
		if text[i] == '\n' {
			line++
			col = 1
		} else {
			col++
		}
	}
	return line, col
}
