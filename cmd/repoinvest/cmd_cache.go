package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"repoinvest/internal/format"
	"repoinvest/internal/investigation"
)

var cacheFlags struct {
	repo    string
	step    string
	commit  string
	version string
	file    string
	ttlDays int
	print   bool
}

var cacheCmd = &cobra.Command{
	Use:   "cache",
	Short: "Inspect or fill the step result cache",
}

var cacheCheckCmd = &cobra.Command{
	Use:   "check",
	Short: "Look up the cached output of one step",
	RunE:  runCacheCheck,
}

var cacheSaveCmd = &cobra.Command{
	Use:   "save",
	Short: "Cache the output of one step from a file",
	RunE:  runCacheSave,
}

func init() {
	for _, c := range []*cobra.Command{cacheCheckCmd, cacheSaveCmd} {
		f := c.Flags()
		f.StringVar(&cacheFlags.repo, "repo", "", "Repository name (required)")
		f.StringVar(&cacheFlags.step, "step", "", "Step name (required)")
		f.StringVar(&cacheFlags.commit, "commit", "", "Commit SHA (required)")
		f.StringVar(&cacheFlags.version, "version", investigation.BootstrapVersion, "Prompt version")
		_ = c.MarkFlagRequired("repo")
		_ = c.MarkFlagRequired("step")
		_ = c.MarkFlagRequired("commit")
	}
	cacheCheckCmd.Flags().BoolVar(&cacheFlags.print, "print", false, "Print cached content on a hit")
	cacheSaveCmd.Flags().StringVarP(&cacheFlags.file, "file", "f", "", "File holding the step output (required)")
	cacheSaveCmd.Flags().IntVar(&cacheFlags.ttlDays, "ttl-days", investigation.DefaultTTLDays, "Retention in days")
	_ = cacheSaveCmd.MarkFlagRequired("file")

	cacheCmd.AddCommand(cacheCheckCmd)
	cacheCmd.AddCommand(cacheSaveCmd)
}

func runCacheCheck(cmd *cobra.Command, _ []string) error {
	st, err := openStore()
	if err != nil {
		return err
	}
	defer st.Close()

	r := newEngine(st).CheckStepCache(cmd.Context(), cacheFlags.repo, cacheFlags.step, cacheFlags.commit, cacheFlags.version)
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Key:      %s\n", r.Key)
	fmt.Fprintf(out, "Cached:   %t\n", !r.NeedsAnalysis)
	fmt.Fprintf(out, "Reason:   %s\n", r.Reason)
	if !r.NeedsAnalysis {
		fmt.Fprintf(out, "Saved at: %s\n", format.FmtTime(r.CachedAt))
		if cacheFlags.print {
			fmt.Fprintf(out, "\n%s\n", r.CachedContent)
		}
	}
	return nil
}

func runCacheSave(cmd *cobra.Command, _ []string) error {
	data, err := os.ReadFile(cacheFlags.file)
	if err != nil {
		return fmt.Errorf("read step output: %w", err)
	}
	st, err := openStore()
	if err != nil {
		return err
	}
	defer st.Close()

	o := newEngine(st).SaveStepResult(cmd.Context(), cacheFlags.repo, cacheFlags.step, cacheFlags.commit,
		string(data), cacheFlags.version, cacheFlags.ttlDays)
	if !o.OK() {
		return fmt.Errorf("%s", o.Message)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Saved %s\n", o.Key)
	return nil
}
