package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"repoinvest/internal/display"
	"repoinvest/internal/investigation"
)

var decideFlags struct {
	repo    string
	commit  string
	branch  string
	prompts string
	asJSON  bool
}

var decideCmd = &cobra.Command{
	Use:   "decide",
	Short: "Decide whether one repository needs a new investigation",
	RunE:  runDecide,
}

func init() {
	f := decideCmd.Flags()
	f.StringVar(&decideFlags.repo, "repo", "", "Repository name (required)")
	f.StringVar(&decideFlags.commit, "commit", "", "Current commit SHA (required)")
	f.StringVar(&decideFlags.branch, "branch", "", "Current branch (required)")
	f.StringVar(&decideFlags.prompts, "prompts", "", "Prompts config; enables prompt version checks")
	f.BoolVar(&decideFlags.asJSON, "json", false, "Print the decision as JSON")

	_ = decideCmd.MarkFlagRequired("repo")
	_ = decideCmd.MarkFlagRequired("commit")
	_ = decideCmd.MarkFlagRequired("branch")
}

func runDecide(cmd *cobra.Command, _ []string) error {
	state := investigation.RepositoryState{CommitSHA: decideFlags.commit, BranchName: decideFlags.branch}
	if err := state.Validate(); err != nil {
		return err
	}
	versions, err := loadVersions(decideFlags.prompts)
	if err != nil {
		return err
	}
	st, err := openStore()
	if err != nil {
		return err
	}
	defer st.Close()

	d := newEngine(st).Decide(cmd.Context(), decideFlags.repo, state, versions)
	out := cmd.OutOrStdout()
	if decideFlags.asJSON {
		data, err := json.MarshalIndent(d, "", "  ")
		if err != nil {
			return fmt.Errorf("marshal decision: %w", err)
		}
		fmt.Fprintln(out, string(data))
		return nil
	}
	fmt.Fprintf(out, "Repository: %s\n", decideFlags.repo)
	fmt.Fprintf(out, "Re-run:     %t\n", d.NeedsInvestigation)
	fmt.Fprintf(out, "Reason:     %s\n", d.Reason)
	fmt.Fprintf(out, "Rule:       %s\n", display.RuleWithCode(d.Rule))
	if d.VersionCheckSkipped {
		fmt.Fprintf(out, "Note:       prompt version checks skipped (no --prompts)\n")
	}
	return nil
}
