package reporter

import (
	"context"

	"github.com/mlbench/mlbench/internal/client"
	"github.com/mlbench/mlbench/record"
)

// HTTPIO exchanges records with the records service, addressed by its base
// URL. A "#run" suffix selects a single run when reading.
type HTTPIO struct{}

// Write implements ServiceIO.
func (HTTPIO) Write(ctx context.Context, rec *record.Record, uri string) error {
	base, _ := splitRun(uri)
	return client.New(base).CreateRecord(ctx, rec)
}

// Read implements ServiceIO.
func (HTTPIO) Read(ctx context.Context, uri string) ([]*record.Record, error) {
	base, run := splitRun(uri)
	return readRepo(ctx, client.New(base), run)
}
