package reporter

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager"
	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"

	"github.com/mlbench/mlbench/internal/api"
	"github.com/mlbench/mlbench/internal/database"
	"github.com/mlbench/mlbench/record"
)

func sampleRecord(run string) *record.Record {
	date := time.Date(2026, 10, 1, 12, 0, 0, 0, time.UTC)
	return &record.Record{
		Run:     run,
		Context: record.Context{"system": "linux", "git": map[string]any{"commit": "abc", "dirty": false}},
		Benchmarks: []record.Result{
			{
				Name:       "accuracy_k=1",
				Function:   "accuracy",
				Date:       date,
				Value:      0.5,
				Parameters: map[string]any{"k": 1.0},
				Tags:       []string{"metric"},
				TimeNs:     1_500_000,
			},
			{
				Name:          "accuracy_k=2",
				Function:      "accuracy",
				Date:          date,
				ErrorOccurred: true,
				ErrorMessage:  "boom",
				Parameters:    map[string]any{"k": 2.0},
				TimeNs:        900,
			},
		},
	}
}

// recordOpts compares records after a trip through a text format, where
// empty and nil collections are indistinguishable.
var recordOpts = cmp.Options{cmpopts.EquateEmpty()}

func TestProtocol(t *testing.T) {
	tests := []struct{ uri, want string }{
		{"results.json", "file"},
		{"/tmp/out/results.yaml", "file"},
		{"file:///tmp/r.json", "file"},
		{"s3://bucket/key.json", "s3"},
		{"sqlite://bench.db", "sqlite"},
		{"gs::bucket/key", "gs"},
		{"postgres://u:p@h/db#run", "postgres"},
	}
	for _, tt := range tests {
		if got := Protocol(tt.uri); got != tt.want {
			t.Errorf("Protocol(%q) = %q, want %q", tt.uri, got, tt.want)
		}
	}
}

func TestFileRoundTrip(t *testing.T) {
	for _, ext := range []string{".json", ".ndjson", ".yaml", ".yml", ".csv"} {
		t.Run(ext, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "nested", "results"+ext)
			ctx := context.Background()

			first, second := sampleRecord("run-1"), sampleRecord("run-2")
			second.Context = record.Context{"system": "darwin"}
			if err := Write(ctx, first, path); err != nil {
				t.Fatalf("write first: %v", err)
			}
			if err := Write(ctx, second, "file://"+path); err != nil {
				t.Fatalf("write second: %v", err)
			}

			got, err := Read(ctx, path)
			if err != nil {
				t.Fatalf("read: %v", err)
			}
			if diff := cmp.Diff([]*record.Record{first, second}, got, recordOpts); diff != "" {
				t.Errorf("records mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestFileUnknownExtension(t *testing.T) {
	err := Write(context.Background(), sampleRecord("r"), filepath.Join(t.TempDir(), "out.parquet"))
	if err == nil || !strings.Contains(err.Error(), `".parquet"`) {
		t.Errorf("expected unimplemented format error, got %v", err)
	}
}

type aliasCodec struct{ jsonCodec }

func TestRegisterFileIO(t *testing.T) {
	RegisterFileIO("bench", aliasCodec{})
	path := filepath.Join(t.TempDir(), "out.bench")
	if err := WriteFile(path, sampleRecord("r")); err != nil {
		t.Fatalf("write: %v", err)
	}
	recs, err := ReadFile(path)
	if err != nil || len(recs) != 1 {
		t.Fatalf("read: %v, %v", recs, err)
	}
}

func TestPrometheusFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bench.prom")
	rec := sampleRecord("run-1")
	if err := Write(context.Background(), rec, path); err != nil {
		t.Fatalf("write: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	out := string(data)
	for _, want := range []string{
		`mlbench_benchmark_value{benchmark="accuracy_k=1",function="accuracy",run="run-1"} 0.5`,
		`mlbench_benchmark_failures_total{run="run-1"} 1`,
	} {
		if !strings.Contains(out, want) {
			t.Errorf("missing %q in:\n%s", want, out)
		}
	}
	if strings.Contains(out, `benchmark="accuracy_k=2"`) {
		t.Error("failed result exported as a value")
	}
}

func TestRegisterServiceIO(t *testing.T) {
	if err := RegisterServiceIO("s3", &S3IO{}, false); err == nil {
		t.Error("expected error registering an existing protocol")
	}
	fake := &memoryIO{}
	if err := RegisterServiceIO("mem", fake, false); err != nil {
		t.Fatalf("register: %v", err)
	}
	ctx := context.Background()
	if err := Write(ctx, sampleRecord("r"), "mem://x"); err != nil {
		t.Fatal(err)
	}
	if recs, _ := Read(ctx, "mem://x"); len(recs) != 1 {
		t.Errorf("expected 1 record, got %d", len(recs))
	}
	if _, err := Read(ctx, "nope://x"); err == nil {
		t.Error("expected error for unsupported protocol")
	}
}

type memoryIO struct{ recs []*record.Record }

func (m *memoryIO) Read(context.Context, string) ([]*record.Record, error) { return m.recs, nil }
func (m *memoryIO) Write(_ context.Context, rec *record.Record, _ string) error {
	m.recs = append(m.recs, rec)
	return nil
}

func TestSQLite(t *testing.T) {
	uri := "sqlite://" + filepath.Join(t.TempDir(), "bench.db")
	ctx := context.Background()
	first, second := sampleRecord("run-1"), sampleRecord("run-2")
	for _, rec := range []*record.Record{first, second} {
		if err := Write(ctx, rec, uri); err != nil {
			t.Fatalf("write: %v", err)
		}
	}

	got, err := Read(ctx, uri)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if diff := cmp.Diff([]*record.Record{first, second}, got, recordOpts); diff != "" {
		t.Errorf("records mismatch (-want +got):\n%s", diff)
	}

	one, err := Read(ctx, uri+"#run-2")
	if err != nil || len(one) != 1 || one[0].Run != "run-2" {
		t.Errorf("run selector: %v, %v", one, err)
	}

	if _, err := Read(ctx, "sqlite://"+filepath.Join(t.TempDir(), "missing.db")); err == nil {
		t.Error("expected error for a missing database")
	}
}

type fakeSecrets map[string]string

func (f fakeSecrets) GetSecretValue(_ context.Context, in *secretsmanager.GetSecretValueInput, _ ...func(*secretsmanager.Options)) (*secretsmanager.GetSecretValueOutput, error) {
	v, ok := f[aws.ToString(in.SecretId)]
	if !ok {
		return nil, errors.New("ResourceNotFoundException")
	}
	return &secretsmanager.GetSecretValueOutput{SecretString: aws.String(v)}, nil
}

func TestPostgresIO(t *testing.T) {
	repo := database.NewMockRepo()
	var dsns []string
	pg := &PostgresIO{
		Open: func(_ context.Context, dsn string) (database.Repo, error) {
			dsns = append(dsns, dsn)
			return repo, nil
		},
		Secrets: fakeSecrets{"bench/db": "postgres://u:p@db/results"},
	}
	ctx := context.Background()

	if err := pg.Write(ctx, sampleRecord("run-1"), "postgres://u:p@db/results"); err != nil {
		t.Fatalf("write: %v", err)
	}
	if err := pg.Write(ctx, sampleRecord("run-2"), "secretsmanager://bench/db"); err != nil {
		t.Fatalf("write via secret: %v", err)
	}
	if diff := cmp.Diff([]string{"postgres://u:p@db/results", "postgres://u:p@db/results"}, dsns); diff != "" {
		t.Errorf("dsn mismatch (-want +got):\n%s", diff)
	}

	got, err := pg.Read(ctx, "postgres://u:p@db/results#run-1")
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if diff := cmp.Diff([]*record.Record{sampleRecord("run-1")}, got, recordOpts); diff != "" {
		t.Errorf("record mismatch (-want +got):\n%s", diff)
	}
	all, err := pg.Read(ctx, "postgres://u:p@db/results")
	if err != nil || len(all) != 2 {
		t.Errorf("read all: %d records, %v", len(all), err)
	}
	if _, err := pg.Read(ctx, "postgres://u:p@db/results#nope"); err == nil {
		t.Error("expected error for unknown run")
	}
	if err := pg.Write(ctx, sampleRecord("x"), "secretsmanager://missing"); err == nil {
		t.Error("expected error for unknown secret")
	}
}

func TestHTTPIO(t *testing.T) {
	srv := api.NewServer(database.NewMockRepo(), slog.New(slog.NewTextHandler(io.Discard, nil)))
	mux := http.NewServeMux()
	srv.RegisterRoutes(mux)
	ts := httptest.NewServer(mux)
	defer ts.Close()

	ctx := context.Background()
	if err := Write(ctx, sampleRecord("run-1"), ts.URL); err != nil {
		t.Fatalf("write: %v", err)
	}
	got, err := Read(ctx, ts.URL+"#run-1")
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if diff := cmp.Diff([]*record.Record{sampleRecord("run-1")}, got, recordOpts); diff != "" {
		t.Errorf("record mismatch (-want +got):\n%s", diff)
	}
}

type fakeS3 map[string][]byte

func (f fakeS3) GetObject(_ context.Context, in *s3.GetObjectInput, _ ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	data, ok := f[aws.ToString(in.Bucket)+"/"+aws.ToString(in.Key)]
	if !ok {
		return nil, &s3types.NoSuchKey{}
	}
	return &s3.GetObjectOutput{Body: io.NopCloser(bytes.NewReader(data))}, nil
}

func (f fakeS3) PutObject(_ context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	data, err := io.ReadAll(in.Body)
	if err != nil {
		return nil, err
	}
	f[aws.ToString(in.Bucket)+"/"+aws.ToString(in.Key)] = data
	return &s3.PutObjectOutput{}, nil
}

func TestS3IO(t *testing.T) {
	store := fakeS3{}
	s := &S3IO{Client: store}
	ctx := context.Background()

	if _, err := s.Read(ctx, "s3://bench/results.json"); err == nil {
		t.Error("expected error for a missing object")
	}
	for _, run := range []string{"run-1", "run-2"} {
		if err := s.Write(ctx, sampleRecord(run), "s3://bench/results/2026.json"); err != nil {
			t.Fatalf("write: %v", err)
		}
	}
	got, err := s.Read(ctx, "s3://bench/results/2026.json")
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if len(got) != 2 || got[1].Run != "run-2" {
		t.Errorf("unexpected records %v", got)
	}
	if _, ok := store["bench/results/2026.json"]; !ok {
		t.Error("object stored under the wrong key")
	}
	if err := s.Write(ctx, sampleRecord("r"), "s3://bucket-only"); err == nil {
		t.Error("expected error for a missing key")
	}
}

func TestConsoleDisplay(t *testing.T) {
	var buf bytes.Buffer
	c := Console{Out: &buf, Context: []string{"git."}}
	if err := c.Display(sampleRecord("run-1")); err != nil {
		t.Fatal(err)
	}
	out := buf.String()
	for _, want := range []string{"name", "accuracy_k=1", "ERROR: boom", "git.commit", "1.5ms"} {
		if !strings.Contains(out, want) {
			t.Errorf("missing %q in:\n%s", want, out)
		}
	}
	// description and git.dirty are empty in every row.
	for _, absent := range []string{"description", "git.dirty", "system"} {
		if strings.Contains(out, absent) {
			t.Errorf("unexpected column %q in:\n%s", absent, out)
		}
	}

	buf.Reset()
	c = Console{Out: &buf, Filter: "K=2$", KeepEmpty: true}
	if err := c.Display(sampleRecord("run-1")); err != nil {
		t.Fatal(err)
	}
	out = buf.String()
	if strings.Contains(out, "accuracy_k=1") || !strings.Contains(out, "accuracy_k=2") {
		t.Errorf("filter not applied:\n%s", out)
	}
	if !strings.Contains(out, "description") {
		t.Errorf("expected empty columns to be kept:\n%s", out)
	}

	if err := (Console{Out: &buf, Filter: "("}).Display(sampleRecord("r")); err == nil {
		t.Error("expected error for an invalid filter")
	}
}

func TestCompare(t *testing.T) {
	a := sampleRecord("run-a")
	b := sampleRecord("run-b")
	b.Benchmarks = b.Benchmarks[:1]
	b.Benchmarks[0].Value = 0.75
	b.Context["git"] = map[string]any{"commit": "def"}

	var buf bytes.Buffer
	err := Compare(&buf, []*record.Record{a, b}, CompareOptions{
		Parameters: []string{"k"},
		Context:    []string{"git.commit", "missing.key"},
		Extra:      []string{"function"},
	})
	if err != nil {
		t.Fatal(err)
	}
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 4 {
		t.Fatalf("expected header, separator and 2 rows, got:\n%s", buf.String())
	}
	header := strings.Fields(lines[0])
	want := []string{"Benchmark", "run", "accuracy_k=1", "accuracy_k=2", "Params->k", "git.commit", "missing.key", "function"}
	if diff := cmp.Diff(want, header); diff != "" {
		t.Errorf("header mismatch (-want +got):\n%s", diff)
	}
	rowA, rowB := strings.Fields(lines[2]), strings.Fields(lines[3])
	if diff := cmp.Diff([]string{"run-a", "0.5", "ERROR:", "boom", "1", "abc", Missing, "accuracy"}, rowA); diff != "" {
		t.Errorf("row a mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]string{"run-b", "0.75", Missing, "1", "def", Missing, "accuracy"}, rowB); diff != "" {
		t.Errorf("row b mismatch (-want +got):\n%s", diff)
	}
}
