package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/mlbench/mlbench/internal/format"
	"github.com/mlbench/mlbench/reporter"
)

var showCmd = &cobra.Command{
	Use:   "show <source>",
	Short: "Show the results of stored records",
	Long: `Read records from a file or URI and print their results.

Append #<run> to a database or service URI to select a single run.

Examples:
  mlbench show results.json
  mlbench show postgres://localhost/bench#3f2a9c4e-... --show-context git.
  mlbench show sqlite://bench.db -f yaml`,
	Args: cobra.ExactArgs(1),
	RunE: runShow,
}

var (
	showFilter  string
	showContext []string
)

func init() {
	showCmd.Flags().StringVar(&showFilter, "filter", "", "Regular expression selecting benchmarks to show")
	showCmd.Flags().StringArrayVar(&showContext, "show-context", nil, "Context key prefix to show as a column (repeatable)")
	RootCmd.AddCommand(showCmd)
}

func runShow(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	if cmd != nil {
		ctx = cmd.Context()
	}
	records, err := reporter.Read(ctx, args[0])
	if err != nil {
		return err
	}

	f, err := getFormat()
	if err != nil {
		return err
	}
	switch f {
	case format.FormatJSON:
		return format.JSONTo(out(), records)
	case format.FormatYAML:
		return format.YAMLTo(out(), records)
	case format.FormatCSV:
		return fmt.Errorf("csv output is not supported by show; use export to a .csv file")
	}

	c := reporter.Console{Out: out(), Filter: showFilter, Context: showContext}
	for i, rec := range records {
		if i > 0 {
			fmt.Fprintln(out())
		}
		fmt.Fprintf(out(), "Run: %s\n", rec.Run)
		if err := c.Display(rec); err != nil {
			return err
		}
	}
	return nil
}
