package gitlog

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/foxseedlab/rdhours/internal/gitlog"
)

const fieldSeparator = "\x1f"

// TimestampParser normalizes git's ISO timestamps to the canonical zone.
type TimestampParser interface {
	Parse(raw, sourceHint string) (time.Time, error)
}

type runFunc func(ctx context.Context, dir string, args ...string) ([]byte, error)

// CLISource shells out to git for every configured repository.
type CLISource struct {
	repos  []string
	author string
	parser TimestampParser
	run    runFunc
}

func NewCLISource(repos []string, author string, parser TimestampParser) *CLISource {
	return &CLISource{repos: repos, author: author, parser: parser, run: runGit}
}

func runGit(ctx context.Context, dir string, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, "git", append([]string{"-C", dir}, args...)...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	out, err := cmd.Output()
	if err != nil {
		return nil, fmt.Errorf("git %s in %s: %w: %s", args[0], dir, err, strings.TrimSpace(stderr.String()))
	}
	return out, nil
}

func (s *CLISource) Commits(ctx context.Context, since, until time.Time) ([]gitlog.Commit, error) {
	var commits []gitlog.Commit
	for _, repo := range s.repos {
		args := []string{
			"log", "--all", "--no-merges",
			"--since=" + since.Format(time.RFC3339),
			"--until=" + until.Format(time.RFC3339),
			"--pretty=format:%H%x1f%aI%x1f%an%x1f%s",
		}
		if s.author != "" {
			args = append(args, "--author="+s.author)
		}
		out, err := s.run(ctx, repo, args...)
		if err != nil {
			return nil, fmt.Errorf("failed to read git history: %w", err)
		}
		commits = append(commits, s.parse(filepath.Base(repo), out)...)
	}
	return commits, nil
}

func (s *CLISource) parse(repo string, out []byte) []gitlog.Commit {
	var commits []gitlog.Commit
	for _, line := range strings.Split(string(out), "\n") {
		line = strings.TrimRight(line, "\r")
		if line == "" {
			continue
		}
		parts := strings.SplitN(line, fieldSeparator, 4)
		if len(parts) != 4 {
			slog.Warn("skipping malformed git log line", "repo", repo, "line", line)
			continue
		}
		ts, err := s.parser.Parse(parts[1], "git")
		if err != nil {
			slog.Warn("skipping commit with unparseable timestamp", "repo", repo, "hash", parts[0], "error", err)
			continue
		}
		commits = append(commits, gitlog.Commit{
			Hash:      parts[0],
			Timestamp: ts,
			Repo:      repo,
			Author:    parts[2],
			Message:   parts[3],
		})
	}
	return commits
}
