package client

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/mlbench/mlbench/internal/api"
	"github.com/mlbench/mlbench/internal/database"
	"github.com/mlbench/mlbench/record"
)

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()
	srv := api.NewServer(database.NewMockRepo(), slog.New(slog.NewTextHandler(io.Discard, nil)))
	mux := http.NewServeMux()
	srv.RegisterRoutes(mux)
	ts := httptest.NewServer(mux)
	t.Cleanup(ts.Close)
	return ts
}

func TestRecordRoundTrip(t *testing.T) {
	ts := newTestServer(t)
	c := New(ts.URL + "/")
	ctx := context.Background()

	rec := &record.Record{
		Run:     "run-1",
		Context: record.Context{"system": "linux"},
		Benchmarks: []record.Result{{
			Name:       "add_a=1_b=2",
			Function:   "add",
			Date:       time.Date(2026, 10, 1, 0, 0, 0, 0, time.UTC),
			Value:      3.0,
			Parameters: map[string]any{"a": 1.0, "b": 2.0},
		}},
	}
	if err := c.CreateRecord(ctx, rec); err != nil {
		t.Fatalf("CreateRecord: %v", err)
	}

	got, err := c.GetRecord(ctx, "run-1")
	if err != nil {
		t.Fatalf("GetRecord: %v", err)
	}
	if got.Benchmarks[0].Value != 3.0 || got.Context["system"] != "linux" {
		t.Errorf("unexpected record %+v", got)
	}

	items, err := c.ListRecords(ctx, database.RecordFilter{Benchmark: "add", Limit: 5})
	if err != nil {
		t.Fatalf("ListRecords: %v", err)
	}
	if len(items) != 1 || items[0].Benchmarks != 1 {
		t.Errorf("unexpected summaries %+v", items)
	}

	if err := c.DeleteRecord(ctx, "run-1"); err != nil {
		t.Fatalf("DeleteRecord: %v", err)
	}
	if _, err := c.GetRecord(ctx, "run-1"); !IsNotFound(err) {
		t.Errorf("expected not found after delete, got %v", err)
	}
}

func TestListRecords_Query(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		if q.Get("benchmark") != "acc" || q.Get("since") != "2026-10-01T00:00:00Z" || q.Get("offset") != "3" {
			t.Errorf("unexpected query: %s", r.URL.RawQuery)
		}
		w.Write([]byte("[]"))
	}))
	defer srv.Close()

	_, err := New(srv.URL).ListRecords(context.Background(), database.RecordFilter{
		Benchmark: "acc",
		Since:     time.Date(2026, 10, 1, 0, 0, 0, 0, time.UTC),
		Offset:    3,
	})
	if err != nil {
		t.Fatal(err)
	}
}

func TestErrorResponse(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		body    string
		wantMsg string
	}{
		{"json error", http.StatusBadRequest, `{"error":"run is required"}`, "API error 400: run is required"},
		{"plain error", http.StatusBadGateway, "upstream down", "API error 502: upstream down"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			err := New(srv.URL).CreateRecord(context.Background(), &record.Record{Run: "x"})
			if err == nil || err.Error() != tt.wantMsg {
				t.Errorf("error = %v, want %q", err, tt.wantMsg)
			}
			if IsNotFound(err) {
				t.Error("unexpected not found")
			}
		})
	}
}
