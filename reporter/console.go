package reporter

import (
	"fmt"
	"io"
	"maps"
	"os"
	"reflect"
	"regexp"
	"slices"
	"strings"

	"github.com/mlbench/mlbench/internal/format"
	"github.com/mlbench/mlbench/record"
)

// resultColumns is the column order of the console table.
var resultColumns = []string{"name", "function", "description", "date", "value", "error_occurred", "error_message", "parameters", "tags", "time_ns"}

// Console prints records as a table.
type Console struct {
	Out io.Writer
	// Filter is a case-insensitive regular expression on benchmark names.
	Filter string
	// Context lists prefixes of flattened context keys to add as columns.
	Context []string
	// KeepEmpty keeps columns whose values are empty in every row.
	KeepEmpty bool
	// Formatters override how the values of a column are rendered.
	Formatters map[string]func(any) string
}

// Display writes rec as a table, one row per result.
func (c Console) Display(rec *record.Record) error {
	out := c.Out
	if out == nil {
		out = os.Stdout
	}
	var re *regexp.Regexp
	if c.Filter != "" {
		var err error
		if re, err = regexp.Compile("(?i)" + c.Filter); err != nil {
			return fmt.Errorf("benchmark filter: %w", err)
		}
	}
	rows, err := rec.Compact(record.Omit, record.DefaultSep)
	if err != nil {
		return err
	}

	flat := rec.Context.Flatten(record.DefaultSep)
	var ctxCols []string
	for _, k := range slices.Sorted(maps.Keys(flat)) {
		if slices.ContainsFunc(c.Context, func(p string) bool { return strings.HasPrefix(k, p) }) {
			ctxCols = append(ctxCols, k)
		}
	}

	var kept []map[string]any
	for _, row := range rows {
		if name, _ := row["name"].(string); re != nil && !re.MatchString(name) {
			continue
		}
		for _, k := range ctxCols {
			row[k] = flat[k]
		}
		kept = append(kept, row)
	}

	columns := append(slices.Clone(resultColumns), ctxCols...)
	if !c.KeepEmpty {
		columns = slices.DeleteFunc(columns, func(col string) bool {
			return !slices.ContainsFunc(kept, func(row map[string]any) bool { return truthy(row[col]) })
		})
	}

	table := make([][]string, 0, len(kept))
	for _, row := range kept {
		line := make([]string, len(columns))
		for i, col := range columns {
			line[i] = c.cell(col, row)
		}
		table = append(table, line)
	}
	format.TableTo(out, columns, table)
	return nil
}

func (c Console) cell(col string, row map[string]any) string {
	v := row[col]
	if f, ok := c.Formatters[col]; ok {
		return f(v)
	}
	switch col {
	case "value":
		if failed, _ := row["error_occurred"].(bool); failed {
			msg, _ := row["error_message"].(string)
			return "ERROR: " + msg
		}
	case "time_ns":
		if ns, ok := toFloat(v); ok {
			return format.Duration(int64(ns))
		}
	}
	return format.Cell(v)
}

// truthy reports whether v carries information worth a column.
func truthy(v any) bool {
	if v == nil {
		return false
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Map, reflect.Slice, reflect.String, reflect.Array:
		return rv.Len() > 0
	}
	return !rv.IsZero()
}
