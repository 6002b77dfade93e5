package workspace

import (
	"context"
	"fmt"
	"os/exec"
	"strings"

	"repoinvest/internal/investigation"
)

// State returns the repository's current state. Pinned commit and branch
// win; anything missing is read from the checkout with git.
func (r Repo) State(ctx context.Context) (investigation.RepositoryState, error) {
	st := investigation.RepositoryState{CommitSHA: r.Commit, BranchName: r.Branch}
	if st.CommitSHA == "" || st.BranchName == "" {
		if r.Path == "" {
			return st, fmt.Errorf("repo %s: no checkout to read state from", r.DisplayName())
		}
		if st.CommitSHA == "" {
			sha, err := git(ctx, r.Path, "rev-parse", "HEAD")
			if err != nil {
				return st, fmt.Errorf("repo %s: resolve commit: %w", r.DisplayName(), err)
			}
			st.CommitSHA = sha
		}
		if st.BranchName == "" {
			branch, err := git(ctx, r.Path, "rev-parse", "--abbrev-ref", "HEAD")
			if err != nil {
				return st, fmt.Errorf("repo %s: resolve branch: %w", r.DisplayName(), err)
			}
			st.BranchName = branch
		}
	}
	if r.Path != "" {
		if out, err := git(ctx, r.Path, "status", "--porcelain"); err == nil {
			st.HasUncommittedChanges = out != ""
		}
	}
	return st, st.Validate()
}

func git(ctx context.Context, dir string, args ...string) (string, error) {
	out, err := exec.CommandContext(ctx, "git", append([]string{"-C", dir}, args...)...).Output()
	if err != nil {
		return "", fmt.Errorf("git %s: %w", strings.Join(args, " "), err)
	}
	return strings.TrimSpace(string(out)), nil
}
