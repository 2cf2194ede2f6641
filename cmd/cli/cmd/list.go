package cmd

import (
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/mlbench/mlbench/bench"
	"github.com/mlbench/mlbench/provider"
	"github.com/mlbench/mlbench/reporter"
	"github.com/mlbench/mlbench/runner"
)

var listCmd = &cobra.Command{
	Use:   "list [target]",
	Short: "List registered benchmarks",
	Long: `List the benchmarks a run of target would execute, or with --plugins the
registered context provider kinds, file formats and storage protocols.

Examples:
  mlbench list
  mlbench list -t metric -f json
  mlbench list --plugins`,
	Args: cobra.MaximumNArgs(1),
	RunE: runList,
}

var (
	listTags    []string
	listPlugins bool
)

// benchmarkInfo is the structured form of one listed benchmark.
type benchmarkInfo struct {
	Name     string         `json:"name" yaml:"name"`
	Function string         `json:"function" yaml:"function"`
	Params   map[string]any `json:"params,omitempty" yaml:"params,omitempty"`
	Tags     []string       `json:"tags,omitempty" yaml:"tags,omitempty"`
	Source   string         `json:"source" yaml:"source"`
}

func init() {
	listCmd.Flags().StringArrayVarP(&listTags, "tag", "t", nil, "Only list benchmarks carrying this tag (repeatable)")
	listCmd.Flags().BoolVar(&listPlugins, "plugins", false, "List context providers, file formats and storage protocols")
	RootCmd.AddCommand(listCmd)
}

func runList(_ *cobra.Command, args []string) error {
	if listPlugins {
		return listRegistered()
	}
	target := bench.Default.Name()
	if len(args) > 0 {
		target = args[0]
	}
	r := runner.New(runner.WithLogger(logger))
	if err := r.Collect(target, listTags...); err != nil {
		return err
	}

	var infos []benchmarkInfo
	var rows [][]string
	for _, bm := range r.Benchmarks() {
		info := benchmarkInfo{
			Name:     bm.Name(),
			Function: bm.Func().Name,
			Params:   bm.Params().Map(),
			Tags:     bm.Tags(),
			Source:   filepath.Base(bm.Source()),
		}
		infos = append(infos, info)
		rows = append(rows, []string{info.Name, info.Function, bm.Params().String(), strings.Join(info.Tags, ","), info.Source})
	}
	return render(infos, []string{"Name", "Function", "Params", "Tags", "Source"}, rows)
}

func listRegistered() error {
	plugins := map[string][]string{
		"providers": provider.Kinds(),
		"files":     reporter.FileExtensions(),
		"protocols": reporter.Protocols(),
	}
	var rows [][]string
	for _, kind := range []string{"providers", "files", "protocols"} {
		for _, name := range plugins[kind] {
			rows = append(rows, []string{kind, name})
		}
	}
	return render(plugins, []string{"Kind", "Name"}, rows)
}
