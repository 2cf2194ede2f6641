package reporter

import (
	"bufio"
	"bytes"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"maps"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"

	"github.com/natefinch/atomic"
	"gopkg.in/yaml.v3"

	"github.com/mlbench/mlbench/record"
)

// Codec encodes and decodes the compact rows of one or more records. Rows
// carry their run ID and inline context, so a file can hold many runs.
type Codec interface {
	Encode(w io.Writer, rows []map[string]any) error
	Decode(r io.Reader) ([]map[string]any, error)
}

var (
	codecsMu sync.RWMutex
	codecs   = map[string]Codec{
		".json":   jsonCodec{},
		".ndjson": ndjsonCodec{},
		".yaml":   yamlCodec{},
		".yml":    yamlCodec{},
		".csv":    csvCodec{},
	}
)

// RegisterFileIO makes c the codec for files with extension ext (".json").
func RegisterFileIO(ext string, c Codec) {
	if !strings.HasPrefix(ext, ".") {
		ext = "." + ext
	}
	codecsMu.Lock()
	defer codecsMu.Unlock()
	codecs[ext] = c
}

func codecFor(name string) (Codec, error) {
	ext := filepath.Ext(name)
	codecsMu.RLock()
	defer codecsMu.RUnlock()
	c, ok := codecs[ext]
	if !ok {
		return nil, fmt.Errorf("unimplemented benchmark file format %q", ext)
	}
	return c, nil
}

// WriteFile appends rec to the file at path, creating it if needed. The
// format follows the extension; the file is replaced atomically.
func WriteFile(path string, rec *record.Record) error {
	if filepath.Ext(path) == ".prom" {
		return writePrometheus(path, rec)
	}
	c, err := codecFor(path)
	if err != nil {
		return err
	}
	existing, err := os.ReadFile(path)
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("read %s: %w", path, err)
	}
	data, err := appendRecord(c, existing, rec)
	if err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory: %w", err)
		}
	}
	if err := atomic.WriteFile(path, bytes.NewReader(data)); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	return nil
}

// ReadFile loads every record stored in the file at path.
func ReadFile(path string) ([]*record.Record, error) {
	c, err := codecFor(path)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	recs, err := decodeRecords(c, f)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	return recs, nil
}

// appendRecord decodes existing, adds the rows of rec and re-encodes.
func appendRecord(c Codec, existing []byte, rec *record.Record) ([]byte, error) {
	var rows []map[string]any
	if len(bytes.TrimSpace(existing)) > 0 {
		var err error
		if rows, err = c.Decode(bytes.NewReader(existing)); err != nil {
			return nil, fmt.Errorf("decode existing records: %w", err)
		}
	}
	add, err := rec.Compact(record.Inline, record.DefaultSep)
	if err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	if err := c.Encode(&buf, append(rows, add...)); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func decodeRecords(c Codec, r io.Reader) ([]*record.Record, error) {
	rows, err := c.Decode(r)
	if err != nil {
		return nil, err
	}
	return record.ExpandAll(rows)
}

type jsonCodec struct{}

func (jsonCodec) Encode(w io.Writer, rows []map[string]any) error {
	if rows == nil {
		rows = []map[string]any{}
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(rows)
}

func (jsonCodec) Decode(r io.Reader) ([]map[string]any, error) {
	var rows []map[string]any
	if err := json.NewDecoder(r).Decode(&rows); err != nil {
		return nil, err
	}
	return rows, nil
}

// ndjsonCodec stores one row per line.
type ndjsonCodec struct{}

func (ndjsonCodec) Encode(w io.Writer, rows []map[string]any) error {
	enc := json.NewEncoder(w)
	for _, row := range rows {
		if err := enc.Encode(row); err != nil {
			return err
		}
	}
	return nil
}

func (ndjsonCodec) Decode(r io.Reader) ([]map[string]any, error) {
	var rows []map[string]any
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 16<<20)
	for sc.Scan() {
		line := bytes.TrimSpace(sc.Bytes())
		if len(line) == 0 {
			continue
		}
		var row map[string]any
		if err := json.Unmarshal(line, &row); err != nil {
			return nil, err
		}
		rows = append(rows, row)
	}
	return rows, sc.Err()
}

type yamlCodec struct{}

func (yamlCodec) Encode(w io.Writer, rows []map[string]any) error {
	// Round-trip through JSON so values are plain maps, slices and scalars.
	data, err := json.Marshal(rows)
	if err != nil {
		return err
	}
	var plain any
	if err := json.Unmarshal(data, &plain); err != nil {
		return err
	}
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(plain); err != nil {
		return err
	}
	return enc.Close()
}

func (yamlCodec) Decode(r io.Reader) ([]map[string]any, error) {
	var raw []map[string]any
	if err := yaml.NewDecoder(r).Decode(&raw); err != nil && !errors.Is(err, io.EOF) {
		return nil, err
	}
	// YAML keeps integers apart from floats; JSON numbers do not.
	data, err := json.Marshal(raw)
	if err != nil {
		return nil, err
	}
	var rows []map[string]any
	if err := json.Unmarshal(data, &rows); err != nil {
		return nil, err
	}
	return rows, nil
}

// csvCodec writes one column per result field. Structured fields are stored
// as JSON text.
type csvCodec struct{}

var (
	csvColumns     = []string{"run", "name", "function", "description", "date", "value", "error_occurred", "error_message", "parameters", "tags", "time_ns", "context"}
	csvTextColumns = []string{"run", "name", "function", "description", "date", "error_message"}
)

func (csvCodec) Encode(w io.Writer, rows []map[string]any) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(csvColumns); err != nil {
		return err
	}
	for _, row := range rows {
		line := make([]string, len(csvColumns))
		for i, col := range csvColumns {
			v, ok := row[col]
			if !ok || v == nil {
				continue
			}
			if s, isStr := v.(string); isStr && slices.Contains(csvTextColumns, col) {
				line[i] = s
				continue
			}
			b, err := json.Marshal(v)
			if err != nil {
				return fmt.Errorf("encode %s: %w", col, err)
			}
			line[i] = string(b)
		}
		if err := cw.Write(line); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

func (csvCodec) Decode(r io.Reader) ([]map[string]any, error) {
	cr := csv.NewReader(r)
	header, err := cr.Read()
	if errors.Is(err, io.EOF) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var rows []map[string]any
	for {
		line, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, err
		}
		row := make(map[string]any, len(header))
		for i, col := range header {
			cell := line[i]
			if cell == "" {
				continue
			}
			if slices.Contains(csvTextColumns, col) {
				row[col] = cell
				continue
			}
			var v any
			if err := json.Unmarshal([]byte(cell), &v); err != nil {
				return nil, fmt.Errorf("decode column %s: %w", col, err)
			}
			row[col] = v
		}
		rows = append(rows, row)
	}
	return rows, nil
}

// FileExtensions returns the registered file extensions in sorted order.
func FileExtensions() []string {
	codecsMu.RLock()
	defer codecsMu.RUnlock()
	return append(slices.Sorted(maps.Keys(codecs)), ".prom")
}
