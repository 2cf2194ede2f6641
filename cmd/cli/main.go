package main

import (
	"fmt"
	"os"

	"github.com/mlbench/mlbench/cmd/cli/cmd"

	_ "github.com/mlbench/mlbench/examples/classifier"
)

func main() {
	if err := cmd.RootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
