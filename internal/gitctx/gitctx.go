// Package gitctx records which commit a report was generated from.
package gitctx

import (
	git "github.com/go-git/go-git/v5"
)

// Source identifies the repository state of a manifest.
type Source struct {
	Commit string `json:"commit"`
	Branch string `json:"branch,omitempty"`
	Dirty  bool   `json:"dirty"`
}

// Short returns the abbreviated commit hash.
func (s *Source) Short() string {
	if len(s.Commit) > 8 {
		return s.Commit[:8]
	}
	return s.Commit
}

// Collect describes the repository containing target. It returns nil when
// target is not inside a git repository or the repository has no commits.
func Collect(target string) *Source {
	repo, err := git.PlainOpenWithOptions(target, &git.PlainOpenOptions{DetectDotGit: true})
	if err != nil {
		return nil
	}
	head, err := repo.Head()
	if err != nil {
		return nil
	}

	src := &Source{Commit: head.Hash().String()}
	if head.Name().IsBranch() {
		src.Branch = head.Name().Short()
	}

	wt, err := repo.Worktree()
	if err != nil {
		return src
	}
	if st, err := wt.Status(); err == nil {
		src.Dirty = !st.IsClean()
	}
	return src
}
