package queryservice

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/tracewell/collector/internal/sqlengine"
)

// Formatter renders a query Result for a local presentation tool.
// spec.md §9 names text, jsonl, and csv as the baseline set; adding a
// fourth format means writing one more implementation of this interface
// and registering it in Formatters.
type Formatter interface {
	Format(w io.Writer, res *sqlengine.Result) error
}

// Formatters is the registry of formats cmd/tracewell-query's --format
// flag selects from.
var Formatters = map[string]Formatter{
	"text":  TextFormatter{},
	"jsonl": JSONLFormatter{},
	"csv":   CSVFormatter{},
}

// TextFormatter renders a Result as an aligned, human-readable table.
type TextFormatter struct{}

func (TextFormatter) Format(w io.Writer, res *sqlengine.Result) error {
	if len(res.Rows) == 0 {
		_, err := fmt.Fprintln(w, "(no rows)")
		return err
	}

	widths := make([]int, len(res.Columns))
	for i, c := range res.Columns {
		widths[i] = len(c)
	}
	cells := make([][]string, len(res.Rows))
	for i, row := range res.Rows {
		cells[i] = make([]string, len(res.Columns))
		for j, c := range res.Columns {
			s := cellString(row[c])
			cells[i][j] = s
			if len(s) > widths[j] {
				widths[j] = len(s)
			}
		}
	}

	if err := writeTextRow(w, res.Columns, widths); err != nil {
		return err
	}
	for _, row := range cells {
		if err := writeTextRow(w, row, widths); err != nil {
			return err
		}
	}
	return nil
}

func writeTextRow(w io.Writer, cells []string, widths []int) error {
	padded := make([]string, len(cells))
	for i, c := range cells {
		padded[i] = c + strings.Repeat(" ", widths[i]-len(c))
	}
	_, err := fmt.Fprintln(w, strings.Join(padded, "  "))
	return err
}

func cellString(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case map[string]any:
		b, _ := json.Marshal(t)
		return string(b)
	default:
		return fmt.Sprintf("%v", t)
	}
}

// JSONLFormatter renders one JSON object per row, newline-delimited.
type JSONLFormatter struct{}

func (JSONLFormatter) Format(w io.Writer, res *sqlengine.Result) error {
	enc := json.NewEncoder(w)
	for _, row := range res.Rows {
		if err := enc.Encode(row); err != nil {
			return err
		}
	}
	return nil
}

// CSVFormatter renders a header row followed by one row per result,
// flattening nested resource/attributes maps to their JSON text.
type CSVFormatter struct{}

func (CSVFormatter) Format(w io.Writer, res *sqlengine.Result) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(res.Columns); err != nil {
		return err
	}
	for _, row := range res.Rows {
		record := make([]string, len(res.Columns))
		for i, c := range res.Columns {
			record[i] = cellString(row[c])
		}
		if err := cw.Write(record); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}
