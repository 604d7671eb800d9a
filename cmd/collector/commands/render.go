package commands

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"propdata-backend/lib/table"

	pretty "github.com/jedib0t/go-pretty/v6/table"
)

func parseDate(value string) (time.Time, error) {
	t, err := time.Parse(time.DateOnly, value)
	if err != nil {
		return time.Time{}, fmt.Errorf("dates are YYYY-MM-DD, got %q", value)
	}
	return t, nil
}

// renderBatch prints at most limit rows of a batch, limit <= 0 prints all
// of them.
func renderBatch(w io.Writer, batch table.Batch, limit int) {
	t := pretty.NewWriter()
	t.SetOutputMirror(w)

	header := make(pretty.Row, len(batch.Columns))
	for i, c := range batch.Columns {
		header[i] = c
	}
	t.AppendHeader(header)

	shown := batch.Len()
	if limit > 0 && shown > limit {
		shown = limit
	}
	for _, r := range batch.Rows[:shown] {
		row := make(pretty.Row, len(batch.Columns))
		for i, c := range batch.Columns {
			v := table.Scalar(r[c])
			if v == nil {
				v = ""
			}
			row[i] = v
		}
		t.AppendRow(row)
	}
	if shown < batch.Len() {
		t.AppendFooter(pretty.Row{fmt.Sprintf("%d more rows", batch.Len()-shown)})
	}

	t.SetStyle(pretty.StyleRounded)
	t.Render()
}

// output either persists batch into the --out table or prints it.
func output(ctx context.Context, batch table.Batch, flags outputFlags) error {
	if flags.table == "" {
		renderBatch(os.Stdout, batch, flags.limit)
		return nil
	}
	written, err := app.sink.Persist(ctx, batch, flags.table)
	if err != nil {
		return err
	}
	slog.Info("persisted rows", "table", flags.table, "rows", written)
	return nil
}
