package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"repoinvest/internal/format"
	"repoinvest/internal/logging"
	"repoinvest/internal/pipeline"
)

var scanFlags struct {
	workspace string
	prompts   string
	parallel  int
	markdown  bool
}

var scanCmd = &cobra.Command{
	Use:   "scan",
	Short: "Show which workspace repositories need a new investigation",
	RunE:  runScan,
}

func init() {
	f := scanCmd.Flags()
	f.StringVar(&scanFlags.workspace, "workspace", "", "Workspace file listing repositories (required)")
	f.StringVar(&scanFlags.prompts, "prompts", "", "Prompts config; enables prompt version checks")
	f.IntVar(&scanFlags.parallel, "parallel", 4, "Repositories decided concurrently")
	f.BoolVar(&scanFlags.markdown, "markdown", false, "Render the table as Markdown")

	_ = scanCmd.MarkFlagRequired("workspace")
}

func runScan(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	ws, err := loadWorkspace(scanFlags.workspace)
	if err != nil {
		return err
	}
	versions, err := loadVersions(scanFlags.prompts)
	if err != nil {
		return err
	}
	st, err := openStore()
	if err != nil {
		return err
	}
	defer st.Close()

	runner := &pipeline.Runner{Engine: newEngine(st), Logger: logging.New("pipeline")}
	results := runner.Scan(ctx, pipeline.TargetsFromWorkspace(ctx, ws), versions, scanFlags.parallel)

	rows := make([]format.DecisionRow, 0, len(results))
	for _, r := range results {
		rows = append(rows, format.DecisionRow{Repo: r.Repo, Decision: r.Decision, Err: r.Err, Elapsed: r.Elapsed})
	}
	fmt.Fprintln(cmd.OutOrStdout(), format.DecisionTable(format.ModeFor(scanFlags.markdown), rows))
	return nil
}
