package database

import (
	"context"

	"github.com/mlbench/mlbench/record"
)

// Repo defines the interface for benchmark record storage.
// The concrete *Repository satisfies this interface. Use this interface
// as a dependency in consumers to enable testing with mocks.
type Repo interface {
	SaveRecord(ctx context.Context, rec *record.Record) error
	GetRecord(ctx context.Context, run string) (*record.Record, error)
	ListRecords(ctx context.Context, f RecordFilter) ([]RecordSummary, error)
	DeleteRecord(ctx context.Context, run string) (bool, error)
	Close()
}

// Compile-time checks that both stores implement Repo.
var (
	_ Repo = (*Repository)(nil)
	_ Repo = (*MockRepo)(nil)
)
