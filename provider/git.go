package provider

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"
)

// GitEnvironment reports the commit, tag, remote and dirty state of the git
// repository containing Dir under "git".
type GitEnvironment struct {
	// Dir is the working directory; empty means the current directory.
	Dir string
	// Remote is the remote whose URL is reported. Defaults to origin.
	Remote string

	run func(ctx context.Context, dir string, args ...string) (string, error)
}

// Provide implements record.Provider.
func (g GitEnvironment) Provide(ctx context.Context) (map[string]any, error) {
	run := g.run
	if run == nil {
		run = runGit
	}
	remote := g.Remote
	if remote == "" {
		remote = "origin"
	}

	if _, err := run(ctx, g.Dir, "rev-parse", "--is-inside-work-tree"); err != nil {
		return nil, fmt.Errorf("not a git repository: %w", err)
	}
	commit, err := run(ctx, g.Dir, "rev-parse", "HEAD")
	if err != nil {
		return nil, fmt.Errorf("git commit: %w", err)
	}
	info := map[string]any{
		"commit": commit,
		"tag":    "",
		"dirty":  false,
	}
	if tag, err := run(ctx, g.Dir, "describe", "--tags", "--always"); err == nil {
		info["tag"] = tag
	}
	if status, err := run(ctx, g.Dir, "status", "--porcelain"); err == nil {
		info["dirty"] = status != ""
	}
	if url, err := run(ctx, g.Dir, "remote", "get-url", remote); err == nil {
		provider, repo := parseRemote(url)
		info["provider"] = provider
		info["repository"] = repo
	}
	return map[string]any{"git": info}, nil
}

// parseRemote splits a remote URL into host and owner/name.
func parseRemote(url string) (host, repo string) {
	url = strings.TrimSuffix(strings.TrimSpace(url), ".git")
	switch {
	case strings.HasPrefix(url, "git@"):
		// git@github.com:owner/name
		rest := strings.TrimPrefix(url, "git@")
		host, repo, _ = strings.Cut(rest, ":")
	case strings.Contains(url, "://"):
		_, rest, _ := strings.Cut(url, "://")
		if i := strings.Index(rest, "@"); i >= 0 {
			rest = rest[i+1:]
		}
		host, repo, _ = strings.Cut(rest, "/")
	default:
		repo = url
	}
	return host, repo
}

func runGit(ctx context.Context, dir string, args ...string) (string, error) {
	cmd := exec.CommandContext(ctx, "git", args...)
	cmd.Dir = dir
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	out, err := cmd.Output()
	if err != nil {
		return "", fmt.Errorf("git %s: %w: %s", strings.Join(args, " "), err, strings.TrimSpace(stderr.String()))
	}
	return strings.TrimSpace(string(out)), nil
}
