package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"repoinvest/internal/assembly"
	"repoinvest/internal/format"
	"repoinvest/internal/pipeline"
)

var assembleFlags struct {
	prompts    string
	resultsDir string
	repo       string
	out        string
	table      bool
}

var assembleCmd = &cobra.Command{
	Use:   "assemble",
	Short: "Assemble a report from step output files without touching the store",
	RunE:  runAssemble,
}

func init() {
	f := assembleCmd.Flags()
	f.StringVar(&assembleFlags.prompts, "prompts", "", "Prompts config (required)")
	f.StringVar(&assembleFlags.resultsDir, "results-dir", "", "Directory of step output (required)")
	f.StringVar(&assembleFlags.repo, "repo", "", "Repository name (required)")
	f.StringVarP(&assembleFlags.out, "out", "o", "", "Write the report to this file instead of stdout")
	f.BoolVar(&assembleFlags.table, "table", false, "Print the section table instead of the report")

	_ = assembleCmd.MarkFlagRequired("prompts")
	_ = assembleCmd.MarkFlagRequired("results-dir")
	_ = assembleCmd.MarkFlagRequired("repo")
}

func runAssemble(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	plan, err := loadPlan(assembleFlags.prompts)
	if err != nil {
		return err
	}
	fresh, err := pipeline.FileProducer{Dir: assembleFlags.resultsDir}.Results(ctx, assembleFlags.repo, plan.Order)
	if err != nil {
		return err
	}

	a := newAssembler()
	mandatory := plan.Mandatory()
	rep, err := a.Combine(ctx, assembly.CombineInput{
		Order:     plan.Order,
		Fresh:     fresh,
		Versions:  plan.Versions.Map(),
		Mandatory: mandatory,
	})
	if err != nil {
		return err
	}
	doc := a.Render(rep.Sections, mandatory)

	out := cmd.OutOrStdout()
	for _, w := range doc.Warnings {
		fmt.Fprintf(cmd.ErrOrStderr(), "warning: %s\n", w)
	}
	if len(rep.MissingRequired) > 0 {
		fmt.Fprintf(cmd.ErrOrStderr(), "warning: missing required sections: %v\n", rep.MissingRequired)
	}
	if assembleFlags.table {
		fmt.Fprintln(out, format.SectionTable(format.ASCII, rep.Sections))
		return nil
	}
	if assembleFlags.out != "" {
		if err := os.WriteFile(assembleFlags.out, []byte(doc.Text+"\n"), 0o644); err != nil {
			return fmt.Errorf("write report: %w", err)
		}
		fmt.Fprintf(out, "Wrote %s (%d sections)\n", assembleFlags.out, len(rep.Sections))
		return nil
	}
	fmt.Fprintln(out, doc.Text)
	return nil
}
