package agent

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/medinsight/medinsight/internal/llm"
	"github.com/medinsight/medinsight/internal/prompts"
	"github.com/medinsight/medinsight/internal/query"
)

const defaultPreviewRows = 40

type NarratorConfig struct {
	PreviewRows int
	// Language is a language code such as "ru" or "en".
	Language string
}

// Narrator asks the model for a grounded summary of a result table.
type Narrator struct {
	completer   llm.Completer
	catalog     *prompts.Catalog
	previewRows int
	language    string
}

func NewNarrator(completer llm.Completer, catalog *prompts.Catalog, cfg NarratorConfig) (*Narrator, error) {
	if completer == nil {
		return nil, fmt.Errorf("completer is required")
	}
	if catalog == nil {
		return nil, fmt.Errorf("prompt catalog is required")
	}
	previewRows := cfg.PreviewRows
	if previewRows <= 0 {
		previewRows = defaultPreviewRows
	}
	return &Narrator{
		completer:   completer,
		catalog:     catalog,
		previewRows: previewRows,
		language:    prompts.LanguageName(cfg.Language),
	}, nil
}

// Narrate returns the catalog's no-data message for an empty or nil table
// without calling the model.
func (n *Narrator) Narrate(ctx context.Context, question, sql string, table *query.Table) (string, error) {
	if table == nil || table.Empty() {
		return n.catalog.Messages.NoData, nil
	}
	prompt, err := n.buildPrompt(question, sql, *table)
	if err != nil {
		return "", err
	}
	return n.completer.Complete(ctx, prompt)
}

func (n *Narrator) buildPrompt(question, sql string, table query.Table) (llm.Prompt, error) {
	preview := table.Head(n.previewRows)
	truncated := ""
	if len(preview.Rows) < len(table.Rows) || table.Capped {
		var err error
		truncated, err = n.catalog.Render(prompts.NarrationTruncated, map[string]any{
			"Shown":  len(preview.Rows),
			"Total":  len(table.Rows),
			"Capped": table.Capped,
		})
		if err != nil {
			return llm.Prompt{}, err
		}
	}

	system, err := n.catalog.Render(prompts.NarrationSystem, map[string]any{"Language": n.language})
	if err != nil {
		return llm.Prompt{}, err
	}
	user, err := n.catalog.Render(prompts.NarrationUser, map[string]any{
		"Question":  strings.TrimSpace(question),
		"SQL":       strings.TrimSpace(sql),
		"Shown":     len(preview.Rows),
		"Table":     RenderTable(preview),
		"Truncated": truncated,
	})
	if err != nil {
		return llm.Prompt{}, err
	}
	return llm.Prompt{Operation: "narrate", System: system, User: user}, nil
}

// RenderTable formats a table as a pipe table.
func RenderTable(table query.Table) string {
	var b strings.Builder
	b.WriteString("| ")
	b.WriteString(strings.Join(escapeCells(table.ColumnNames()), " | "))
	b.WriteString(" |\n|")
	for range table.Columns {
		b.WriteString(" --- |")
	}
	b.WriteString("\n")
	for _, row := range table.Rows {
		cells := make([]string, len(row))
		for i, value := range row {
			cells[i] = FormatValue(value)
		}
		b.WriteString("| ")
		b.WriteString(strings.Join(escapeCells(cells), " | "))
		b.WriteString(" |\n")
	}
	return b.String()
}

// FormatValue renders a normalized table value for display.
func FormatValue(value any) string {
	switch v := value.(type) {
	case nil:
		return ""
	case string:
		return v
	case int64:
		return strconv.FormatInt(v, 10)
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(v)
	case time.Time:
		if v.Hour() == 0 && v.Minute() == 0 && v.Second() == 0 && v.Nanosecond() == 0 {
			return v.Format(time.DateOnly)
		}
		return v.Format(time.DateTime)
	default:
		return fmt.Sprint(v)
	}
}

func escapeCells(cells []string) []string {
	out := make([]string, len(cells))
	for i, cell := range cells {
		cell = strings.ReplaceAll(cell, "\n", " ")
		out[i] = strings.ReplaceAll(cell, "|", `\|`)
	}
	return out
}
