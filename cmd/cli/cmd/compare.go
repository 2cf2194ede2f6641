package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/mlbench/mlbench/record"
	"github.com/mlbench/mlbench/reporter"
)

var compareCmd = &cobra.Command{
	Use:   "compare <records>...",
	Short: "Compare benchmark records side by side",
	Long: `Compare records read from files or URIs, one row per record and one
column per benchmark. A source holding several runs contributes every run.

Examples:
  mlbench compare results.json
  mlbench compare a.json s3://bench-results/b.json -P threshold -C git.commit
  mlbench compare postgres://localhost/bench -E time_ns`,
	Args: cobra.MinimumNArgs(1),
	RunE: runCompare,
}

var (
	compareParams  []string
	compareContext []string
	compareExtra   []string
)

func init() {
	compareCmd.Flags().StringArrayVarP(&compareParams, "parameter", "P", nil, "Parameter to show as a column (repeatable)")
	compareCmd.Flags().StringArrayVarP(&compareContext, "context", "C", nil, "Context value to show as a column, dotted for nested keys (repeatable)")
	compareCmd.Flags().StringArrayVarP(&compareExtra, "extra", "E", nil, "Result field such as time_ns or function to show as a column (repeatable)")
	RootCmd.AddCommand(compareCmd)
}

func runCompare(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	if cmd != nil {
		ctx = cmd.Context()
	}
	var records []*record.Record
	for _, src := range args {
		recs, err := reporter.Read(ctx, src)
		if err != nil {
			return fmt.Errorf("read %s: %w", src, err)
		}
		records = append(records, recs...)
	}
	if len(records) == 0 {
		fmt.Fprintln(RootCmd.ErrOrStderr(), "No records to compare.")
		return nil
	}
	return reporter.Compare(out(), records, reporter.CompareOptions{
		Parameters: compareParams,
		Context:    compareContext,
		Extra:      compareExtra,
	})
}
