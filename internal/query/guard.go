package query

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

var (
	ErrRejected = errors.New("sql rejected")
	ErrTimeout  = errors.New("query timed out")
)

// ValidationError is returned when a statement is refused before it reaches
// the database.
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string {
	return ErrRejected.Error() + ": " + e.Reason
}

func (e *ValidationError) Unwrap() error {
	return ErrRejected
}

var mutatingVerbs = map[string]struct{}{
	"create":   {},
	"drop":     {},
	"insert":   {},
	"update":   {},
	"delete":   {},
	"alter":    {},
	"truncate": {},
	"replace":  {},
	"copy":     {},
}

var readVerbs = map[string]struct{}{
	"select":    {},
	"with":      {},
	"from":      {},
	"values":    {},
	"table":     {},
	"show":      {},
	"describe":  {},
	"summarize": {},
	"explain":   {},
}

// limitableVerbs accept a trailing LIMIT clause.
var limitableVerbs = map[string]struct{}{
	"select": {},
	"with":   {},
	"from":   {},
	"values": {},
	"table":  {},
}

// IsReadVerb reports whether keyword, as returned by LeadingKeyword, may open
// a statement the sandbox accepts.
func IsReadVerb(keyword string) bool {
	_, ok := readVerbs[keyword]
	return ok
}

// Validate returns the single read-only statement contained in sqlText with
// comments removed. Anything else is refused with a *ValidationError.
func Validate(sqlText string) (string, error) {
	statements := SplitStatements(sqlText)
	if len(statements) == 0 {
		return "", &ValidationError{Reason: "no statement found"}
	}
	for _, statement := range statements {
		verb := LeadingKeyword(statement)
		if _, ok := mutatingVerbs[verb]; ok {
			return "", &ValidationError{Reason: strings.ToUpper(verb) + " statements are not allowed"}
		}
	}
	if len(statements) > 1 {
		return "", &ValidationError{Reason: fmt.Sprintf("expected one statement, got %d", len(statements))}
	}
	statement := statements[0]
	verb := LeadingKeyword(statement)
	if _, ok := readVerbs[verb]; !ok {
		return "", &ValidationError{Reason: fmt.Sprintf("statement must start with a read-only keyword, got %q", verb)}
	}
	return statement, nil
}

// SplitStatements splits sqlText on semicolons that sit outside comments,
// string literals and quoted identifiers. Comments are dropped from the
// returned statements and blank statements are skipped.
func SplitStatements(sqlText string) []string {
	var (
		statements []string
		current    strings.Builder
	)
	flush := func() {
		if statement := strings.TrimSpace(current.String()); statement != "" {
			statements = append(statements, statement)
		}
		current.Reset()
	}

	s := sqlText
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case c == '-' && strings.HasPrefix(s[i:], "--"):
			end := strings.IndexByte(s[i:], '\n')
			if end < 0 {
				i = len(s)
				continue
			}
			i += end
			current.WriteByte('\n')
		case c == '/' && strings.HasPrefix(s[i:], "/*"):
			end := strings.Index(s[i+2:], "*/")
			if end < 0 {
				i = len(s)
				continue
			}
			i += end + 3
			current.WriteByte(' ')
		case c == '\'' || c == '"':
			end := closingQuote(s, i)
			current.WriteString(s[i:end])
			i = end - 1
		case c == ';':
			flush()
		default:
			current.WriteByte(c)
		}
	}
	flush()
	return statements
}

// LeadingKeyword returns the first word of a comment-free statement in lower
// case, skipping opening parentheses.
func LeadingKeyword(statement string) string {
	trimmed := strings.TrimLeft(statement, " \t\r\n(")
	end := 0
	for end < len(trimmed) && isWordByte(trimmed[end]) {
		end++
	}
	return strings.ToLower(trimmed[:end])
}

// EnsureLimit appends LIMIT rowCap to a select-shaped statement that has no
// LIMIT clause of its own at the outermost level.
func EnsureLimit(statement string, rowCap int) string {
	if rowCap <= 0 {
		return statement
	}
	if _, ok := limitableVerbs[LeadingKeyword(statement)]; !ok {
		return statement
	}
	if HasTopLevelLimit(statement) {
		return statement
	}
	return strings.TrimRight(statement, " \t\r\n") + " LIMIT " + strconv.Itoa(rowCap)
}

// HasTopLevelLimit reports whether LIMIT appears outside parentheses and
// quotes in a comment-free statement.
func HasTopLevelLimit(statement string) bool {
	depth := 0
	s := statement
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case c == '\'' || c == '"':
			i = closingQuote(s, i) - 1
		case c == '(':
			depth++
		case c == ')':
			if depth > 0 {
				depth--
			}
		case isWordByte(c):
			start := i
			for i < len(s) && isWordByte(s[i]) {
				i++
			}
			if depth == 0 && strings.EqualFold(s[start:i], "limit") {
				return true
			}
			i--
		}
	}
	return false
}

// closingQuote returns the index just past the quoted run that opens at
// s[start]. A doubled quote character is an escape.
func closingQuote(s string, start int) int {
	quote := s[start]
	for i := start + 1; i < len(s); i++ {
		if s[i] != quote {
			continue
		}
		if i+1 < len(s) && s[i+1] == quote {
			i++
			continue
		}
		return i + 1
	}
	return len(s)
}

func isWordByte(c byte) bool {
	return c == '_' || c >= '0' && c <= '9' || c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z' || c >= 0x80
}
