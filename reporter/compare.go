package reporter

import (
	"io"
	"os"

	"github.com/mlbench/mlbench/internal/format"
	"github.com/mlbench/mlbench/record"
)

// Missing is shown for a metric a record does not contain.
const Missing = "-----"

// CompareOptions selects the extra columns of a comparison table.
type CompareOptions struct {
	// Parameters are shown as "Params->name" columns.
	Parameters []string
	// Context values, in dotted syntax for nested keys.
	Context []string
	// Extra are result fields (e.g. time_ns, function) of each record's
	// first result that carries them.
	Extra []string
}

// Compare writes records side by side: one row per record, one column per
// benchmark name in order of first appearance.
func Compare(w io.Writer, records []*record.Record, opts CompareOptions) error {
	if w == nil {
		w = os.Stdout
	}
	columns := []string{"Benchmark run"}
	var names []string
	seen := map[string]bool{}
	for _, rec := range records {
		for _, b := range rec.Benchmarks {
			if !seen[b.Name] {
				seen[b.Name] = true
				names = append(names, b.Name)
			}
		}
	}
	columns = append(columns, names...)
	for _, p := range opts.Parameters {
		columns = append(columns, "Params->"+p)
	}
	columns = append(columns, opts.Context...)
	columns = append(columns, opts.Extra...)

	var rows [][]string
	for _, rec := range records {
		row := []string{rec.Run}
		for _, name := range names {
			row = append(row, valueByName(rec, name))
		}
		for _, p := range opts.Parameters {
			row = append(row, firstParam(rec, p))
		}
		flat := rec.Context.Flatten(record.DefaultSep)
		for _, k := range opts.Context {
			v, ok := flat[k]
			if !ok {
				row = append(row, Missing)
				continue
			}
			row = append(row, format.Cell(v))
		}
		if len(opts.Extra) > 0 {
			compact, err := rec.Compact(record.Omit, record.DefaultSep)
			if err != nil {
				return err
			}
			for _, field := range opts.Extra {
				row = append(row, firstField(compact, field))
			}
		}
		rows = append(rows, row)
	}
	format.TableTo(w, columns, rows)
	return nil
}

// valueByName renders the value of the first result called name, its
// error message if it failed, or Missing.
func valueByName(rec *record.Record, name string) string {
	for _, b := range rec.Benchmarks {
		if b.Name != name {
			continue
		}
		if b.ErrorOccurred {
			msg := b.ErrorMessage
			if msg == "" {
				msg = "<unknown>"
			}
			return "ERROR: " + msg
		}
		return format.Cell(b.Value)
	}
	return Missing
}

// firstParam looks a parameter up across all results of rec.
func firstParam(rec *record.Record, name string) string {
	for _, b := range rec.Benchmarks {
		if v, ok := b.Parameters[name]; ok {
			return format.Cell(v)
		}
	}
	return Missing
}

func firstField(rows []map[string]any, field string) string {
	for _, row := range rows {
		if v, ok := row[field]; ok && v != nil {
			if field == "time_ns" {
				if ns, ok := toFloat(v); ok {
					return format.Duration(int64(ns))
				}
			}
			return format.Cell(v)
		}
	}
	return Missing
}
