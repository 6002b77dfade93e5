package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

const svcCommit = "0123456789abcdef0123456789abcdef01234567"

// execute runs the root command in-process with every flag reset to its
// default first, so state from an earlier invocation does not leak.
func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	resetFlags(rootCmd)
	var out, errOut bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&errOut)
	rootCmd.SetArgs(args)
	err := rootCmd.Execute()
	return out.String(), err
}

func resetFlags(cmd *cobra.Command) {
	reset := func(f *pflag.Flag) {
		_ = f.Value.Set(f.DefValue)
		f.Changed = false
	}
	cmd.PersistentFlags().VisitAll(reset)
	cmd.Flags().VisitAll(reset)
	for _, c := range cmd.Commands() {
		resetFlags(c)
	}
}

func mustExecute(t *testing.T, args ...string) string {
	t.Helper()
	out, err := execute(t, args...)
	if err != nil {
		t.Fatalf("repoinvest %s: %v\n%s", strings.Join(args, " "), err, out)
	}
	return out
}

func TestVersions(t *testing.T) {
	out := mustExecute(t, "versions", "--prompts", "testdata/prompts", "--markdown")
	for _, want := range []string{"| overview", "v2", "| monitoring", "v3", "| terraform"} {
		if !strings.Contains(out, want) {
			t.Errorf("versions output missing %q:\n%s", want, out)
		}
	}
}

func TestDecideRunScan(t *testing.T) {
	db := filepath.Join(t.TempDir(), "state", "repoinvest.db")
	outDir := filepath.Join(t.TempDir(), "reports")

	out := mustExecute(t, "decide", "--db", db, "--repo", "svc", "--commit", svcCommit, "--branch", "main",
		"--prompts", "testdata/prompts")
	if !strings.Contains(out, "Re-run:     true") || !strings.Contains(out, "No previous investigation found") {
		t.Fatalf("first decide:\n%s", out)
	}

	out = mustExecute(t, "run", "--db", db, "--workspace", "testdata/workspace.yaml", "--prompts", "testdata/prompts",
		"--results-dir", "testdata/results", "--out-dir", outDir, "--parallel", "2")
	if !strings.Contains(out, "svc: 3 sections (0 cached, 3 fresh)") {
		t.Errorf("run output:\n%s", out)
	}
	if !strings.Contains(out, "step terraform:") {
		t.Errorf("optional step failure not reported:\n%s", out)
	}
	report, err := os.ReadFile(filepath.Join(outDir, "svc.md"))
	if err != nil {
		t.Fatalf("report not written: %v", err)
	}
	if !strings.HasPrefix(string(report), "# overview\n\nWhat the repository does\n\nOrder service behind a REST API.") {
		t.Errorf("report:\n%s", report)
	}
	if _, err := os.Stat(filepath.Join(outDir, "lib.md")); err != nil {
		t.Errorf("lib report: %v", err)
	}

	out = mustExecute(t, "decide", "--db", db, "--repo", "svc", "--commit", svcCommit, "--branch", "main",
		"--prompts", "testdata/prompts")
	if !strings.Contains(out, "Re-run:     false") || !strings.Contains(out, "Rule:       No Changes (unchanged)") {
		t.Errorf("second decide:\n%s", out)
	}

	out = mustExecute(t, "decide", "--db", db, "--repo", "svc", "--commit", svcCommit, "--branch", "main", "--json")
	if !strings.Contains(out, `"version_check_skipped": true`) {
		t.Errorf("decide --json:\n%s", out)
	}

	out = mustExecute(t, "scan", "--db", db, "--workspace", "testdata/workspace.yaml", "--prompts", "testdata/prompts",
		"--markdown")
	if !strings.Contains(out, "| svc") || !strings.Contains(out, "0/2") {
		t.Errorf("scan output:\n%s", out)
	}

	out = mustExecute(t, "run", "--db", db, "--workspace", "testdata/workspace.yaml", "--prompts", "testdata/prompts",
		"--results-dir", "testdata/results", "--out-dir", outDir, "--force")
	if !strings.Contains(out, "svc: 3 sections (3 cached, 0 fresh)") {
		t.Errorf("forced run output:\n%s", out)
	}
}

func TestRun_MissingHardGateFails(t *testing.T) {
	db := filepath.Join(t.TempDir(), "repoinvest.db")
	results := t.TempDir()
	dir := filepath.Join(results, "svc")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "overview.md"), []byte("Only an overview."), 0o644); err != nil {
		t.Fatal(err)
	}
	ws := filepath.Join(t.TempDir(), "workspace.yaml")
	if err := os.WriteFile(ws, []byte("repos:\n  - name: svc\n    branch: main\n    commit: "+svcCommit+"\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	_, err := execute(t, "run", "--db", db, "--workspace", ws, "--prompts", "testdata/prompts",
		"--results-dir", results, "--out-dir", t.TempDir())
	if err == nil || !strings.Contains(err.Error(), "1 of 1 repositories failed") {
		t.Errorf("err = %v", err)
	}
}

func TestCacheSaveAndCheck(t *testing.T) {
	db := filepath.Join(t.TempDir(), "repoinvest.db")
	common := []string{"--db", db, "--repo", "svc", "--step", "overview", "--commit", svcCommit, "--version", "2"}

	out := mustExecute(t, append([]string{"cache", "check"}, common...)...)
	if !strings.Contains(out, "Cached:   false") {
		t.Errorf("miss:\n%s", out)
	}

	out = mustExecute(t, append([]string{"cache", "save", "-f", "testdata/results/svc/overview.md"}, common...)...)
	if !strings.Contains(out, "Saved svc#overview#"+svcCommit+"#v2") {
		t.Errorf("save:\n%s", out)
	}

	out = mustExecute(t, append([]string{"cache", "check", "--print"}, common...)...)
	if !strings.Contains(out, "Cached:   true") || !strings.Contains(out, "Order service behind a REST API.") {
		t.Errorf("hit:\n%s", out)
	}

	if _, err := execute(t, "cache", "save", "--db", db, "--repo", "a#b", "--step", "overview",
		"--commit", svcCommit, "-f", "testdata/results/svc/overview.md"); err == nil {
		t.Error("repository name with '#' accepted")
	}
}

func TestAssemble(t *testing.T) {
	out := mustExecute(t, "assemble", "--prompts", "testdata/prompts", "--results-dir", "testdata/results", "--repo", "svc")
	if !strings.Contains(out, "# monitoring\n\nPrometheus metrics and PagerDuty alerts.") {
		t.Errorf("assemble output:\n%s", out)
	}

	out = mustExecute(t, "assemble", "--prompts", "testdata/prompts", "--results-dir", "testdata/results", "--repo", "svc", "--table")
	if !strings.Contains(out, "monitoring") || !strings.Contains(out, "v3") {
		t.Errorf("assemble --table:\n%s", out)
	}

	if _, err := execute(t, "assemble", "--prompts", "testdata/prompts", "--results-dir", t.TempDir(), "--repo", "svc"); err == nil {
		t.Error("assembly without the hard-gate section succeeded")
	}
}

func TestRoot_BadFlags(t *testing.T) {
	if _, err := execute(t, "versions", "--prompts", "testdata/prompts", "--log-level", "loud"); err == nil {
		t.Error("unknown log level accepted")
	}
	if _, err := execute(t, "versions", "--prompts", "testdata/prompts", "--log-format", "xml"); err == nil {
		t.Error("unknown log format accepted")
	}
	if _, err := execute(t, "cache", "check", "--backend", "etcd", "--repo", "svc", "--step", "overview", "--commit", svcCommit); err == nil {
		t.Error("unknown backend accepted")
	}
}
