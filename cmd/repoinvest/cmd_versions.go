package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"repoinvest/internal/format"
)

var versionsFlags struct {
	prompts  string
	markdown bool
}

var versionsCmd = &cobra.Command{
	Use:   "versions",
	Short: "List the prompt version of every step",
	RunE:  runVersions,
}

func init() {
	f := versionsCmd.Flags()
	f.StringVar(&versionsFlags.prompts, "prompts", "", "Prompts config (required)")
	f.BoolVar(&versionsFlags.markdown, "markdown", false, "Render the table as Markdown")

	_ = versionsCmd.MarkFlagRequired("prompts")
}

func runVersions(cmd *cobra.Command, _ []string) error {
	versions, err := loadVersions(versionsFlags.prompts)
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), format.VersionTable(format.ModeFor(versionsFlags.markdown), versions))
	return nil
}
