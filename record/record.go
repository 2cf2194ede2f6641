// Package record holds the outcome of a benchmark run: one Result per
// benchmark plus the Context the run executed in.
package record

import (
	"encoding/json"
	"fmt"
	"maps"
	"slices"
	"time"

	"github.com/google/uuid"
)

// Result is the outcome of one benchmark execution.
type Result struct {
	Name          string         `json:"name" yaml:"name"`
	Function      string         `json:"function" yaml:"function"`
	Description   string         `json:"description" yaml:"description"`
	Date          time.Time      `json:"date" yaml:"date"`
	Value         any            `json:"value" yaml:"value"`
	ErrorOccurred bool           `json:"error_occurred" yaml:"error_occurred"`
	ErrorMessage  string         `json:"error_message" yaml:"error_message"`
	Parameters    map[string]any `json:"parameters" yaml:"parameters"`
	Tags          []string       `json:"tags,omitempty" yaml:"tags,omitempty"`
	TimeNs        int64          `json:"time_ns" yaml:"time_ns"`
}

// Record is the output of a single run.
type Record struct {
	Run        string   `json:"run" yaml:"run"`
	Context    Context  `json:"context" yaml:"context"`
	Benchmarks []Result `json:"benchmarks" yaml:"benchmarks"`
}

// New creates a record with a fresh run ID.
func New(ctx Context, results []Result) *Record {
	if ctx == nil {
		ctx = Context{}
	}
	if results == nil {
		results = []Result{}
	}
	return &Record{Run: uuid.NewString(), Context: ctx, Benchmarks: results}
}

// Clone returns a deep copy so transforms never touch the original.
func (r *Record) Clone() *Record {
	out := &Record{Run: r.Run, Context: r.Context.Clone(), Benchmarks: make([]Result, len(r.Benchmarks))}
	for i, b := range r.Benchmarks {
		b.Parameters = cloneMap(b.Parameters)
		b.Tags = slices.Clone(b.Tags)
		out.Benchmarks[i] = b
	}
	return out
}

// CompactMode selects how Compact handles the run context.
type CompactMode string

const (
	// Inline stores the nested context under a "context" key of each row.
	Inline CompactMode = "inline"
	// Flatten merges the flattened context into each row and lists the
	// added keys under "_contextkeys".
	Flatten CompactMode = "flatten"
	// Omit drops the context.
	Omit CompactMode = "omit"
)

// ContextKeysField lists the context columns of a flattened row.
const ContextKeysField = "_contextkeys"

// Compact converts the record into one row per result, each carrying the
// run ID and, depending on mode, the context.
func (r *Record) Compact(mode CompactMode, sep string) ([]map[string]any, error) {
	if sep == "" {
		sep = DefaultSep
	}
	var flat map[string]any
	var keys []string
	switch mode {
	case Inline, Omit:
	case Flatten:
		flat = r.Context.Flatten(sep)
		keys = slices.Sorted(maps.Keys(flat))
	default:
		return nil, fmt.Errorf("unknown compact mode %q", mode)
	}

	rows := make([]map[string]any, 0, len(r.Benchmarks))
	for _, res := range r.Benchmarks {
		row, err := resultMap(res)
		if err != nil {
			return nil, err
		}
		row["run"] = r.Run
		switch mode {
		case Inline:
			row["context"] = map[string]any(r.Context.Clone())
		case Flatten:
			maps.Copy(row, flat)
			row[ContextKeysField] = slices.Clone(keys)
		}
		rows = append(rows, row)
	}
	return rows, nil
}

// Expand reverses Compact for rows of a single run.
func Expand(rows []map[string]any) (*Record, error) {
	recs, err := ExpandAll(rows)
	if err != nil {
		return nil, err
	}
	switch len(recs) {
	case 0:
		return New(nil, nil), nil
	case 1:
		return recs[0], nil
	}
	return nil, fmt.Errorf("expand: rows belong to %d runs", len(recs))
}

// ExpandAll reverses Compact, grouping rows into records by run ID in order
// of first appearance.
func ExpandAll(rows []map[string]any) ([]*Record, error) {
	var out []*Record
	byRun := map[string]*Record{}
	for i, row := range rows {
		row = maps.Clone(row)
		run, _ := row["run"].(string)
		delete(row, "run")

		ctx := Context{}
		if c, ok := asMap(row["context"]); ok {
			ctx = Context(cloneMap(c))
			delete(row, "context")
		} else if keys, ok := row[ContextKeysField]; ok {
			flat := map[string]any{}
			for _, k := range toStrings(keys) {
				flat[k] = row[k]
				delete(row, k)
			}
			delete(row, ContextKeysField)
			ctx = MakeContext(flat)
		}

		res, err := mapResult(row)
		if err != nil {
			return nil, fmt.Errorf("expand row %d: %w", i, err)
		}

		rec, ok := byRun[run]
		if !ok {
			rec = &Record{Run: run, Context: ctx, Benchmarks: []Result{}}
			if run == "" {
				rec.Run = uuid.NewString()
			}
			byRun[run] = rec
			out = append(out, rec)
		}
		rec.Benchmarks = append(rec.Benchmarks, res)
	}
	return out, nil
}

func toStrings(v any) []string {
	switch t := v.(type) {
	case []string:
		return t
	case []any:
		out := make([]string, 0, len(t))
		for _, s := range t {
			out = append(out, fmt.Sprint(s))
		}
		return out
	case string:
		var out []string
		if err := json.Unmarshal([]byte(t), &out); err == nil {
			return out
		}
	}
	return nil
}

func resultMap(r Result) (map[string]any, error) {
	data, err := json.Marshal(r)
	if err != nil {
		return nil, fmt.Errorf("marshal result %s: %w", r.Name, err)
	}
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, err
	}
	// Keep the native value rather than its JSON rendition.
	m["value"] = r.Value
	m["parameters"] = r.Parameters
	return m, nil
}

func mapResult(m map[string]any) (Result, error) {
	data, err := json.Marshal(m)
	if err != nil {
		return Result{}, err
	}
	var r Result
	if err := json.Unmarshal(data, &r); err != nil {
		return Result{}, err
	}
	return r, nil
}
