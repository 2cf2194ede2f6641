// Package provider contains built-in context providers describing the host,
// the repository, the Go toolchain and the cloud environment a benchmark
// run executes in.
package provider

import (
	"context"
	"os"
	"runtime"
	"runtime/debug"
	"slices"

	"github.com/mlbench/mlbench/record"
)

// System reports the operating system.
func System() record.Provider {
	return record.ProviderFunc(func(context.Context) (map[string]any, error) {
		return map[string]any{"system": runtime.GOOS}, nil
	})
}

// CPUArch reports the processor architecture.
func CPUArch() record.Provider {
	return record.ProviderFunc(func(context.Context) (map[string]any, error) {
		return map[string]any{"cpuarch": runtime.GOARCH}, nil
	})
}

// GoVersion reports the Go runtime version.
func GoVersion() record.Provider {
	return record.ProviderFunc(func(context.Context) (map[string]any, error) {
		return map[string]any{"go_version": runtime.Version()}, nil
	})
}

// Hostname reports the host name.
func Hostname() record.Provider {
	return record.ProviderFunc(func(context.Context) (map[string]any, error) {
		h, err := os.Hostname()
		if err != nil {
			return nil, err
		}
		return map[string]any{"hostname": h}, nil
	})
}

// GoInfo reports the main module and dependency versions of the running
// binary under "go". An empty Modules list reports every dependency.
type GoInfo struct {
	Modules []string

	read func() (*debug.BuildInfo, bool)
}

// Provide implements record.Provider.
func (g GoInfo) Provide(context.Context) (map[string]any, error) {
	read := g.read
	if read == nil {
		read = debug.ReadBuildInfo
	}
	info := map[string]any{"version": runtime.Version()}
	bi, ok := read()
	if !ok {
		return map[string]any{"go": info}, nil
	}
	info["main"] = map[string]any{"path": bi.Main.Path, "version": bi.Main.Version}

	deps := map[string]any{}
	for _, d := range bi.Deps {
		if len(g.Modules) > 0 && !slices.Contains(g.Modules, d.Path) {
			continue
		}
		v := d.Version
		if d.Replace != nil {
			v = d.Replace.Version
		}
		deps[d.Path] = v
	}
	info["dependencies"] = deps
	for _, s := range bi.Settings {
		if s.Key == "vcs.revision" {
			info["vcs_revision"] = s.Value
		}
	}
	return map[string]any{"go": info}, nil
}
