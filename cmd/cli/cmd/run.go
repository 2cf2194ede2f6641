package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/tailscale/hujson"

	"github.com/mlbench/mlbench/bench"
	"github.com/mlbench/mlbench/fixture"
	"github.com/mlbench/mlbench/provider"
	"github.com/mlbench/mlbench/record"
	"github.com/mlbench/mlbench/reporter"
	"github.com/mlbench/mlbench/runner"
)

var runCmd = &cobra.Command{
	Use:   "run [target]",
	Short: "Run benchmarks and report the record",
	Long: `Run the benchmarks registered for target and write the resulting record.

The target is a namespace name (default: "default"), a benchmark source file
or a directory of benchmark files. Without --output the record is printed as
a table; "-" also selects the console.

Examples:
  mlbench run
  mlbench run benchmarks/ -t metric -p threshold=0.5
  mlbench run --context provider=git --context owner=ml-team -o results.json
  mlbench run -o s3://bench-results/runs.ndjson -o postgres://localhost/bench`,
	Args: cobra.MaximumNArgs(1),
	RunE: runBenchmarks,
}

var (
	runContext     []string
	runTags        []string
	runOutputs     []string
	runJobs        int
	runParams      []string
	runParamsFile  string
	runFixtureRoot string
	runNoTypecheck bool
	runFilter      string
	runShowContext []string
)

func init() {
	runCmd.Flags().StringArrayVar(&runContext, "context", nil, "Context entry key=value, or provider=<name> for a built-in or configured provider (repeatable)")
	runCmd.Flags().StringArrayVarP(&runTags, "tag", "t", nil, "Only run benchmarks carrying this tag (repeatable)")
	runCmd.Flags().StringArrayVarP(&runOutputs, "output", "o", nil, "Destination file or URI for the record (repeatable)")
	runCmd.Flags().IntVarP(&runJobs, "jobs", "j", 0, "Benchmarks to execute concurrently (default from config)")
	runCmd.Flags().StringArrayVarP(&runParams, "param", "p", nil, "Parameter name=value; values are parsed as JSON when possible (repeatable)")
	runCmd.Flags().StringVar(&runParamsFile, "params-file", "", "JSON or JSONC file of parameters")
	runCmd.Flags().StringVar(&runFixtureRoot, "fixture-root", "", "Highest directory searched for fixtures (default from config)")
	runCmd.Flags().BoolVar(&runNoTypecheck, "no-typecheck", false, "Skip checking parameters against declared types")
	runCmd.Flags().StringVar(&runFilter, "filter", "", "Regular expression selecting benchmarks shown on the console")
	runCmd.Flags().StringArrayVar(&runShowContext, "show-context", nil, "Context key prefix to show as a console column (repeatable)")
	RootCmd.AddCommand(runCmd)
}

func runBenchmarks(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	if cmd != nil {
		ctx = cmd.Context()
	}
	target := bench.Default.Name()
	if len(args) > 0 {
		target = args[0]
	}

	params, err := loadParams(runParamsFile, runParams)
	if err != nil {
		return err
	}
	providers, err := contextProviders(runContext)
	if err != nil {
		return err
	}

	jobs := runJobs
	if jobs <= 0 {
		jobs = cfg.Jobs
	}
	root := runFixtureRoot
	if root == "" {
		root = cfg.FixtureRoot
	}
	r := runner.New(
		runner.WithLogger(logger),
		runner.WithJobs(jobs),
		runner.WithTypecheck(!runNoTypecheck),
		runner.WithFixtures(fixture.Default, root),
	)
	rec, err := r.Run(ctx, target, runner.RunOptions{Params: params, Tags: runTags, Context: providers})
	if err != nil {
		return err
	}

	outputs := runOutputs
	if len(outputs) == 0 && cfg.Output != "" {
		outputs = []string{cfg.Output}
	}
	if len(outputs) == 0 {
		outputs = []string{"-"}
	}
	for _, dst := range outputs {
		if dst == "-" {
			c := reporter.Console{Out: out(), Filter: runFilter, Context: runShowContext}
			if err := c.Display(rec); err != nil {
				return err
			}
			continue
		}
		if err := reporter.Write(ctx, rec, dst); err != nil {
			return fmt.Errorf("write record to %s: %w", dst, err)
		}
		logger.Info("wrote record", "run", rec.Run, "destination", dst)
	}
	return nil
}

// loadParams merges the params file with name=value flags, flags last.
func loadParams(file string, kvs []string) (bench.Params, error) {
	var params bench.Params
	if file != "" {
		data, err := os.ReadFile(file)
		if err != nil {
			return params, fmt.Errorf("read params file: %w", err)
		}
		std, err := hujson.Standardize(data)
		if err != nil {
			return params, fmt.Errorf("parse params file %s: %w", file, err)
		}
		if err := json.Unmarshal(std, &params); err != nil {
			return params, fmt.Errorf("parse params file %s: %w", file, err)
		}
	}
	for _, kv := range kvs {
		name, raw, ok := strings.Cut(kv, "=")
		if !ok || name == "" {
			return params, fmt.Errorf("invalid parameter %q, expected name=value", kv)
		}
		params.Set(name, parseValue(raw))
	}
	return params, nil
}

// parseValue decodes raw as JSON, falling back to the plain string.
func parseValue(raw string) any {
	if !json.Valid([]byte(raw)) {
		return raw
	}
	var p bench.Params
	if err := json.Unmarshal([]byte(`{"v":`+raw+`}`), &p); err != nil {
		return raw
	}
	v, _ := p.Get("v")
	return v
}

// contextProviders turns --context flags into providers. provider=<name>
// selects a configured provider by name, else a built-in kind without
// arguments; any other key=value becomes a static entry.
func contextProviders(entries []string) ([]record.Provider, error) {
	var providers []record.Provider
	for _, e := range entries {
		key, value, ok := strings.Cut(e, "=")
		if !ok || key == "" {
			return nil, fmt.Errorf("invalid context %q, expected key=value or provider=<name>", e)
		}
		if key != "provider" {
			p, err := provider.New("static", map[string]any{key: value})
			if err != nil {
				return nil, err
			}
			providers = append(providers, p)
			continue
		}
		kind, args := value, map[string]any(nil)
		if def, ok := cfg.Provider(value); ok {
			kind, args = def.Kind, def.Arguments
		}
		p, err := provider.New(kind, args)
		if err != nil {
			return nil, err
		}
		providers = append(providers, p)
	}
	return providers, nil
}
