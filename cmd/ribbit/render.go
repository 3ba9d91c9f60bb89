package main

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"

	"github.com/FocuswithJustin/RibbitDB/core/ribbit"
)

// Output formats accepted by --format and .mode.
const (
	formatTable = "table"
	formatJSON  = "json"
	formatCSV   = "csv"
)

func validFormat(f string) bool {
	switch f {
	case formatTable, formatJSON, formatCSV:
		return true
	}
	return false
}

// renderResult writes res in the given format. Non-row results print
// their message or affected count.
func renderResult(w io.Writer, res *ribbit.Result, format string) error {
	switch res.Kind {
	case ribbit.KindCount:
		_, err := fmt.Fprintf(w, "%d row(s) affected\n", res.Affected)
		return err
	case ribbit.KindBool, ribbit.KindMessage:
		if res.Message == "" {
			return nil
		}
		_, err := fmt.Fprintln(w, res.Message)
		return err
	}

	switch format {
	case formatJSON:
		return renderJSON(w, res)
	case formatCSV:
		return renderRows(w, res, func(t table.Writer) { t.RenderCSV() })
	default:
		if len(res.Rows) == 0 {
			_, err := fmt.Fprintln(w, "(0 rows)")
			return err
		}
		if err := renderRows(w, res, func(t table.Writer) { t.Render() }); err != nil {
			return err
		}
		_, err := fmt.Fprintf(w, "(%d rows)\n", len(res.Rows))
		return err
	}
}

func renderRows(w io.Writer, res *ribbit.Result, render func(table.Writer)) error {
	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetStyle(table.StyleLight)

	header := make(table.Row, len(res.Columns))
	for i, c := range res.Columns {
		header[i] = c
	}
	t.AppendHeader(header)
	for _, r := range res.Rows {
		row := make(table.Row, len(r))
		for i, v := range r {
			row[i] = formatValue(v)
		}
		t.AppendRow(row)
	}
	render(t)
	return nil
}

func renderJSON(w io.Writer, res *ribbit.Result) error {
	out := make([]map[string]any, len(res.Rows))
	for i, r := range res.Rows {
		m := make(map[string]any, len(r))
		for j, c := range res.Columns {
			if b, ok := r[j].([]byte); ok {
				m[c] = hex.EncodeToString(b)
				continue
			}
			m[c] = r[j]
		}
		out[i] = m
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(out)
}

func formatValue(v any) string {
	switch x := v.(type) {
	case nil:
		return "NULL"
	case []byte:
		return "x'" + strings.ToUpper(hex.EncodeToString(x)) + "'"
	}
	return fmt.Sprintf("%v", v)
}
