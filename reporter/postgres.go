package reporter

import (
	"context"
	"fmt"
	"slices"

	"github.com/aws/aws-sdk-go-v2/service/secretsmanager"

	"github.com/mlbench/mlbench/internal/awsconf"
	"github.com/mlbench/mlbench/internal/database"
	"github.com/mlbench/mlbench/internal/secrets"
	"github.com/mlbench/mlbench/record"
)

// PostgresIO stores records through internal/database. It accepts
// postgres:// DSNs and secretsmanager://<secret-id> references to a stored
// DSN or RDS credentials. A "#run" suffix selects a single run when reading.
type PostgresIO struct {
	// Open connects to the database. Defaults to a migrated pgx Repository.
	Open func(ctx context.Context, dsn string) (database.Repo, error)
	// Secrets resolves secretsmanager:// references. Defaults to a client
	// built from the ambient AWS configuration.
	Secrets secrets.API
}

// Connect opens the repository at uri, resolving a secretsmanager://
// reference first. Callers close the returned repository.
func (p *PostgresIO) Connect(ctx context.Context, uri string) (database.Repo, error) {
	dsn := uri
	if secrets.IsReference(uri) {
		client := p.Secrets
		if client == nil {
			cfg, err := awsconf.Load(ctx, "")
			if err != nil {
				return nil, err
			}
			client = secretsmanager.NewFromConfig(cfg)
		}
		var err error
		if dsn, err = secrets.ResolveDSN(ctx, client, uri); err != nil {
			return nil, err
		}
	}
	open := p.Open
	if open == nil {
		open = openRepository
	}
	return open(ctx, dsn)
}

func openRepository(ctx context.Context, dsn string) (database.Repo, error) {
	repo, err := database.NewRepository(ctx, dsn)
	if err != nil {
		return nil, err
	}
	if err := repo.Migrate(ctx); err != nil {
		repo.Close()
		return nil, err
	}
	return repo, nil
}

// Write implements ServiceIO.
func (p *PostgresIO) Write(ctx context.Context, rec *record.Record, uri string) error {
	uri, _ = splitRun(uri)
	repo, err := p.Connect(ctx, uri)
	if err != nil {
		return err
	}
	defer repo.Close()
	return repo.SaveRecord(ctx, rec)
}

// Read implements ServiceIO.
func (p *PostgresIO) Read(ctx context.Context, uri string) ([]*record.Record, error) {
	uri, run := splitRun(uri)
	repo, err := p.Connect(ctx, uri)
	if err != nil {
		return nil, err
	}
	defer repo.Close()
	return readRepo(ctx, repo, run)
}

// recordSource is the read side shared by the database and the records
// service client.
type recordSource interface {
	GetRecord(ctx context.Context, run string) (*record.Record, error)
	ListRecords(ctx context.Context, f database.RecordFilter) ([]database.RecordSummary, error)
}

// readRepo loads one run, or every listed run oldest first.
func readRepo(ctx context.Context, repo recordSource, run string) ([]*record.Record, error) {
	if run != "" {
		rec, err := repo.GetRecord(ctx, run)
		if err != nil {
			return nil, err
		}
		if rec == nil {
			return nil, fmt.Errorf("run %s not found", run)
		}
		return []*record.Record{rec}, nil
	}
	items, err := repo.ListRecords(ctx, database.RecordFilter{Limit: 200})
	if err != nil {
		return nil, err
	}
	slices.Reverse(items)
	recs := make([]*record.Record, 0, len(items))
	for _, it := range items {
		rec, err := repo.GetRecord(ctx, it.Run)
		if err != nil {
			return nil, err
		}
		if rec != nil {
			recs = append(recs, rec)
		}
	}
	return recs, nil
}
