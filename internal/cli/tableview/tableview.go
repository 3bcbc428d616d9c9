// Package tableview prints result tables to a terminal.
package tableview

import (
	"fmt"
	"io"

	"github.com/pterm/pterm"

	"github.com/medinsight/medinsight/internal/agent"
	"github.com/medinsight/medinsight/internal/query"
)

// Render writes table with a header row. A capped table gets a note below it.
func Render(w io.Writer, table query.Table) error {
	if len(table.Columns) == 0 {
		return nil
	}
	data := make(pterm.TableData, 0, len(table.Rows)+1)
	data = append(data, table.ColumnNames())
	for _, row := range table.Rows {
		cells := make([]string, len(table.Columns))
		for i := range cells {
			if i < len(row) {
				cells[i] = agent.FormatValue(row[i])
			}
		}
		data = append(data, cells)
	}
	out, err := pterm.DefaultTable.WithHasHeader().WithBoxed().WithData(data).Srender()
	if err != nil {
		return fmt.Errorf("render table: %w", err)
	}
	if _, err := fmt.Fprintln(w, out); err != nil {
		return err
	}
	if table.Capped {
		_, err = fmt.Fprintf(w, "(showing the first %d rows)\n", len(table.Rows))
	}
	return err
}
