package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"repoinvest/internal/display"
	"repoinvest/internal/investigation"
	"repoinvest/internal/logging"
	"repoinvest/internal/pipeline"
)

var runFlags struct {
	workspace       string
	prompts         string
	resultsDir      string
	outDir          string
	parallel        int
	force           bool
	stepTTLDays     int
	metadataTTLDays int
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Investigate every workspace repository that changed and write its report",
	Long: `Runs the full cycle per repository: decide, reuse cached steps or read fresh
step output from --results-dir/<repo>/<step>.md, assemble the report into
--out-dir/<repo>.md and record the investigation.`,
	RunE: runRun,
}

func init() {
	f := runCmd.Flags()
	f.StringVar(&runFlags.workspace, "workspace", "", "Workspace file listing repositories (required)")
	f.StringVar(&runFlags.prompts, "prompts", "", "Prompts config (required)")
	f.StringVar(&runFlags.resultsDir, "results-dir", "", "Directory of fresh step output (required)")
	f.StringVar(&runFlags.outDir, "out-dir", "reports", "Directory for assembled reports")
	f.IntVar(&runFlags.parallel, "parallel", 1, "Repositories investigated concurrently")
	f.BoolVar(&runFlags.force, "force", false, "Investigate even when nothing changed")
	f.IntVar(&runFlags.stepTTLDays, "step-ttl-days", investigation.DefaultTTLDays, "Retention of cached step output")
	f.IntVar(&runFlags.metadataTTLDays, "metadata-ttl-days", investigation.DefaultTTLDays, "Retention of investigation records")

	_ = runCmd.MarkFlagRequired("workspace")
	_ = runCmd.MarkFlagRequired("prompts")
	_ = runCmd.MarkFlagRequired("results-dir")
}

func runRun(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	ws, err := loadWorkspace(runFlags.workspace)
	if err != nil {
		return err
	}
	plan, err := loadPlan(runFlags.prompts)
	if err != nil {
		return err
	}
	st, err := openStore()
	if err != nil {
		return err
	}
	defer st.Close()

	runner := &pipeline.Runner{
		Engine:          newEngine(st),
		Assembler:       newAssembler(),
		Producer:        pipeline.FileProducer{Dir: runFlags.resultsDir},
		Writer:          pipeline.DirWriter{Dir: runFlags.outDir},
		StepTTLDays:     runFlags.stepTTLDays,
		MetadataTTLDays: runFlags.metadataTTLDays,
		Force:           runFlags.force,
		Logger:          logging.New("pipeline"),
	}
	results := runner.RunAll(ctx, pipeline.TargetsFromWorkspace(ctx, ws), plan, runFlags.parallel)

	out := cmd.OutOrStdout()
	failed := 0
	for _, r := range results {
		fmt.Fprintln(out, r.String())
		if r.Location != "" {
			fmt.Fprintf(out, "  report: %s\n", r.Location)
		}
		for step, err := range r.StepErrors {
			fmt.Fprintf(out, "  step %s: %v\n", step, err)
		}
		for _, s := range r.SaveFailures {
			fmt.Fprintf(out, "  %s: %s\n", display.SaveStatus(s.Status), s.Message)
		}
		if r.Err != nil {
			failed++
		}
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d repositories failed", failed, len(results))
	}
	return nil
}
