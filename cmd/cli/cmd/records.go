package cmd

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/mlbench/mlbench/internal/client"
	"github.com/mlbench/mlbench/internal/database"
	"github.com/mlbench/mlbench/internal/format"
	"github.com/mlbench/mlbench/reporter"
)

var recordsCmd = &cobra.Command{
	Use:   "records [source]",
	Short: "List stored benchmark records",
	Long: `List the records kept by the records service or a Postgres database.

The source defaults to the configured database, then to $MLBENCH_API_URL,
then to http://localhost:8080.

Examples:
  mlbench records
  mlbench records http://bench.internal:8080 --benchmark accuracy --since 24h
  mlbench records secretsmanager://mlbench/db -f json`,
	Args: cobra.MaximumNArgs(1),
	RunE: runRecords,
}

var (
	recordsBenchmark string
	recordsSince     time.Duration
	recordsLimit     int
	recordsOffset    int
)

func init() {
	recordsCmd.Flags().StringVar(&recordsBenchmark, "benchmark", "", "Only records containing a benchmark whose name contains this text")
	recordsCmd.Flags().DurationVar(&recordsSince, "since", 0, "Only records created within this duration (e.g. 24h)")
	recordsCmd.Flags().IntVar(&recordsLimit, "limit", 0, "Maximum records to list (server default when 0)")
	recordsCmd.Flags().IntVar(&recordsOffset, "offset", 0, "Records to skip")
	RootCmd.AddCommand(recordsCmd)
}

type recordLister interface {
	ListRecords(ctx context.Context, f database.RecordFilter) ([]database.RecordSummary, error)
}

// openLister connects to src. The returned function releases it.
func openLister(ctx context.Context, src string) (recordLister, func(), error) {
	switch reporter.Protocol(src) {
	case "http", "https":
		return client.New(src), func() {}, nil
	case "postgres", "postgresql", "secretsmanager":
		repo, err := (&reporter.PostgresIO{}).Connect(ctx, src)
		if err != nil {
			return nil, nil, err
		}
		return repo, repo.Close, nil
	}
	return nil, nil, fmt.Errorf("cannot list records at %q: want an http(s), postgres or secretsmanager URI", src)
}

func recordsSource(args []string) string {
	if len(args) > 0 {
		return args[0]
	}
	if uri := cfg.DatabaseURI(); uri != "" {
		return uri
	}
	return envOrDefault("MLBENCH_API_URL", "http://localhost:8080")
}

func runRecords(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	if cmd != nil {
		ctx = cmd.Context()
	}
	lister, closeFn, err := openLister(ctx, recordsSource(args))
	if err != nil {
		return err
	}
	defer closeFn()

	f := database.RecordFilter{Benchmark: recordsBenchmark, Limit: recordsLimit, Offset: recordsOffset}
	if recordsSince > 0 {
		f.Since = time.Now().Add(-recordsSince)
	}
	items, err := lister.ListRecords(ctx, f)
	if err != nil {
		return err
	}
	if len(items) == 0 {
		fmt.Fprintln(RootCmd.ErrOrStderr(), "No records found.")
		return nil
	}

	rows := make([][]string, len(items))
	for i, it := range items {
		rows[i] = []string{it.Run, format.Ago(it.CreatedAt), strconv.Itoa(it.Benchmarks), strconv.Itoa(it.Failed)}
	}
	return render(items, []string{"Run", "Created", "Benchmarks", "Failed"}, rows)
}
