// Package gitlog links commits to the sessions they were made in.
package gitlog

import (
	"context"
	"sort"
	"time"

	"github.com/foxseedlab/rdhours/internal/session"
)

type Commit struct {
	Hash      string
	Timestamp time.Time
	Repo      string
	Message   string
	Author    string
}

type Source interface {
	Commits(ctx context.Context, since, until time.Time) ([]Commit, error)
}

// Activity is the commit evidence for one session.
type Activity struct {
	Commits []Commit
	Repos   []string
}

// Assign maps each session id to the commits whose timestamp falls inside
// [start, end]. Sessions without commits are absent from the result.
func Assign(sessions []*session.Session, commits []Commit) map[string]Activity {
	sorted := make([]Commit, len(commits))
	copy(sorted, commits)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Timestamp.Before(sorted[j].Timestamp) })

	out := make(map[string]Activity)
	for _, s := range sessions {
		i := sort.Search(len(sorted), func(i int) bool { return !sorted[i].Timestamp.Before(s.Start) })
		var act Activity
		seen := make(map[string]bool)
		for ; i < len(sorted) && !sorted[i].Timestamp.After(s.End); i++ {
			c := sorted[i]
			act.Commits = append(act.Commits, c)
			if !seen[c.Repo] {
				seen[c.Repo] = true
				act.Repos = append(act.Repos, c.Repo)
			}
		}
		if len(act.Commits) > 0 {
			sort.Strings(act.Repos)
			out[s.ID] = act
		}
	}
	return out
}

// Disabled is the source used when no repositories are configured.
type Disabled struct{}

func (Disabled) Commits(context.Context, time.Time, time.Time) ([]Commit, error) {
	return nil, nil
}
