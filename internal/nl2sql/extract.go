package nl2sql

import (
	"regexp"
	"strings"

	"github.com/medinsight/medinsight/internal/query"
)

var (
	fencedBlock    = regexp.MustCompile("(?s)```([A-Za-z0-9_+-]*)[^\\n]*\\n(.*?)```")
	// A WITH only opens a statement when a CTE name and AS follow, so prose
	// like "With pleasure" is skipped.
	statementStart = regexp.MustCompile(`(?im)^[ \t(]*(select\b|with\s+(recursive\s+)?("[^"\n]+"|\w+)\s*(\([^)\n]*\)\s*)?as\b)`)
	// Inline statements are only trusted when the keyword is upper case.
	selectKeyword = regexp.MustCompile(`\bSELECT\b`)
)

// ExtractSQL pulls the statement out of a model reply. A ```sql block wins
// over any other fenced block, which wins over the bare reply. Only the first
// statement is kept. A bare reply without a recognisable read statement,
// such as a refusal, yields ErrNoSQL.
func ExtractSQL(reply string) (string, error) {
	candidate := ""
	blocks := fencedBlock.FindAllStringSubmatch(reply, -1)
	for _, block := range blocks {
		lang := strings.ToLower(block[1])
		if lang == "sql" || lang == "duckdb" {
			candidate = block[2]
			break
		}
	}
	if candidate == "" && len(blocks) > 0 {
		candidate = blocks[0][2]
	}
	if candidate == "" {
		return extractBare(stripFences(reply))
	}

	statements := query.SplitStatements(candidate)
	if len(statements) == 0 {
		return "", ErrNoSQL
	}
	return statements[0], nil
}

func extractBare(reply string) (string, error) {
	loc := statementStart.FindStringIndex(reply)
	if loc == nil {
		loc = selectKeyword.FindStringIndex(reply)
	}
	if loc == nil {
		return "", ErrNoSQL
	}
	statements := query.SplitStatements(reply[loc[0]:])
	if len(statements) == 0 || !query.IsReadVerb(query.LeadingKeyword(statements[0])) {
		return "", ErrNoSQL
	}
	return statements[0], nil
}

func stripFences(value string) string {
	trimmed := strings.TrimSpace(value)
	if strings.HasPrefix(trimmed, "```") {
		if newline := strings.IndexByte(trimmed, '\n'); newline >= 0 {
			trimmed = trimmed[newline+1:]
		} else {
			trimmed = strings.TrimLeft(trimmed, "`")
		}
	}
	trimmed = strings.TrimSuffix(strings.TrimSpace(trimmed), "```")
	return strings.TrimSpace(trimmed)
}
