// Package format renders tables and structured output for the CLI.
package format

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"text/tabwriter"
	"time"

	"github.com/cheynewallace/tabby"
	"github.com/dustin/go-humanize"
	"gopkg.in/yaml.v3"
)

// OutputFormat determines how results are displayed.
type OutputFormat string

const (
	FormatTable OutputFormat = "table"
	FormatJSON  OutputFormat = "json"
	FormatYAML  OutputFormat = "yaml"
	FormatCSV   OutputFormat = "csv"
)

// Parse validates a user supplied format name.
func Parse(s string) (OutputFormat, error) {
	switch f := OutputFormat(s); f {
	case FormatTable, FormatJSON, FormatYAML, FormatCSV:
		return f, nil
	case "":
		return FormatTable, nil
	default:
		return "", fmt.Errorf("unknown output format %q (want table, json, yaml or csv)", s)
	}
}

// TableTo renders rows as an aligned table with a dashed header separator.
func TableTo(w io.Writer, headers []string, rows [][]string) {
	t := tabby.NewCustom(tabwriter.NewWriter(w, 0, 0, 2, ' ', 0))
	t.AddHeader(toAny(headers)...)
	for _, row := range rows {
		t.AddLine(toAny(row)...)
	}
	t.Print()
}

func toAny(ss []string) []any {
	out := make([]any, len(ss))
	for i, s := range ss {
		out[i] = s
	}
	return out
}

// JSONTo renders v as indented JSON to the given writer.
func JSONTo(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// YAMLTo renders v as YAML to the given writer.
func YAMLTo(w io.Writer, v any) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(v); err != nil {
		return err
	}
	return enc.Close()
}

// CSV writes headers and rows as CSV to the given writer.
func CSV(w io.Writer, headers []string, rows [][]string) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(headers); err != nil {
		return err
	}
	for _, row := range rows {
		if err := cw.Write(row); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// Cell formats a single table value. Floats lose trailing zeros, nested
// values are rendered as compact JSON and nil is empty.
func Cell(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	case float64:
		return humanize.FtoaWithDigits(x, 6)
	case float32:
		return humanize.FtoaWithDigits(float64(x), 6)
	case int:
		return strconv.Itoa(x)
	case int64:
		return strconv.FormatInt(x, 10)
	case bool:
		return strconv.FormatBool(x)
	case time.Time:
		return x.Format(time.RFC3339)
	case fmt.Stringer:
		return x.String()
	case map[string]any, []any:
		b, err := json.Marshal(x)
		if err != nil {
			return fmt.Sprint(x)
		}
		return string(b)
	default:
		return fmt.Sprint(x)
	}
}

// Duration formats a nanosecond count for display.
func Duration(ns int64) string {
	return time.Duration(ns).Round(time.Microsecond).String()
}

// Ago formats a timestamp relative to now, e.g. "3 hours ago".
func Ago(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return humanize.Time(t)
}
