package database

import (
	"context"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/mlbench/mlbench/record"
)

// MockRepo is an in-memory implementation of Repo. It backs tests and the
// records service when no database is configured.
type MockRepo struct {
	mu      sync.Mutex
	records map[string]*storedRecord // keyed by run ID
	now     func() time.Time
}

type storedRecord struct {
	rec       *record.Record
	createdAt time.Time
}

// NewMockRepo creates a new MockRepo.
func NewMockRepo() *MockRepo {
	return &MockRepo{
		records: make(map[string]*storedRecord),
		now:     time.Now,
	}
}

// SaveRecord stores a copy of rec. Saving an existing run appends its
// results and merges its context.
func (m *MockRepo) SaveRecord(_ context.Context, rec *record.Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	c := rec.Clone()
	if s, ok := m.records[rec.Run]; ok {
		if err := s.rec.Context.Update(c.Context, true); err != nil {
			return err
		}
		s.rec.Benchmarks = append(s.rec.Benchmarks, c.Benchmarks...)
		return nil
	}
	m.records[rec.Run] = &storedRecord{rec: c, createdAt: m.now()}
	return nil
}

// GetRecord returns a copy of a stored record, or nil if not found.
func (m *MockRepo) GetRecord(_ context.Context, run string) (*record.Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.records[run]
	if !ok {
		return nil, nil
	}
	return s.rec.Clone(), nil
}

// ListRecords returns summaries of stored records matching the filter,
// newest first.
func (m *MockRepo) ListRecords(_ context.Context, f RecordFilter) ([]RecordSummary, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var matched []*storedRecord
	for _, s := range m.records {
		if !f.Since.IsZero() && s.createdAt.Before(f.Since) {
			continue
		}
		if f.Benchmark != "" && !slices.ContainsFunc(s.rec.Benchmarks, func(r record.Result) bool {
			return strings.Contains(strings.ToLower(r.Name), strings.ToLower(f.Benchmark))
		}) {
			continue
		}
		matched = append(matched, s)
	}
	slices.SortFunc(matched, func(a, b *storedRecord) int {
		if c := b.createdAt.Compare(a.createdAt); c != 0 {
			return c
		}
		return strings.Compare(a.rec.Run, b.rec.Run)
	})

	offset := max(f.Offset, 0)
	if offset >= len(matched) {
		return nil, nil
	}
	matched = matched[offset:]
	if limit := f.limit(); len(matched) > limit {
		matched = matched[:limit]
	}

	items := make([]RecordSummary, 0, len(matched))
	for _, s := range matched {
		item := RecordSummary{Run: s.rec.Run, CreatedAt: s.createdAt, Benchmarks: len(s.rec.Benchmarks)}
		for _, r := range s.rec.Benchmarks {
			if r.ErrorOccurred {
				item.Failed++
			}
		}
		items = append(items, item)
	}
	return items, nil
}

// DeleteRecord removes a record from the mock store.
func (m *MockRepo) DeleteRecord(_ context.Context, run string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.records[run]
	delete(m.records, run)
	return ok, nil
}

// Close is a no-op.
func (m *MockRepo) Close() {}
