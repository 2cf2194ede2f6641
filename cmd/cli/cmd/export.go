package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/mlbench/mlbench/reporter"
)

var exportCmd = &cobra.Command{
	Use:   "export <source> <destination>",
	Short: "Copy benchmark records between files and stores",
	Long: `Read every record at source and append it to destination. Formats follow
file extensions; stores follow URI protocols.

Examples:
  mlbench export results.json results.csv
  mlbench export sqlite://bench.db s3://bench-results/archive.ndjson
  mlbench export results.yaml postgres://localhost/bench
  mlbench export results.json metrics/bench.prom`,
	Args: cobra.ExactArgs(2),
	RunE: runExport,
}

func init() {
	RootCmd.AddCommand(exportCmd)
}

func runExport(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	if cmd != nil {
		ctx = cmd.Context()
	}
	src, dst := args[0], args[1]
	records, err := reporter.Read(ctx, src)
	if err != nil {
		return fmt.Errorf("read %s: %w", src, err)
	}
	if len(records) == 0 {
		fmt.Fprintln(RootCmd.ErrOrStderr(), "No records to export.")
		return nil
	}
	for _, rec := range records {
		if err := reporter.Write(ctx, rec, dst); err != nil {
			return fmt.Errorf("write %s to %s: %w", rec.Run, dst, err)
		}
	}
	logger.Info("exported records", "count", len(records), "source", src, "destination", dst)
	return nil
}
