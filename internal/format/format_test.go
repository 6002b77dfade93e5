package format_test

import (
	"errors"
	"strings"
	"testing"
	"time"

	"repoinvest/internal/assembly"
	"repoinvest/internal/format"
	"repoinvest/internal/investigation"
)

func TestASCII_BasicTable(t *testing.T) {
	tb := format.NewTable(format.ASCII)
	tb.Header("Repository", "Re-run")
	tb.Row("payments", format.BoolMark(true))
	tb.Row("ledger", format.BoolMark(false))
	out := tb.String()

	if !strings.Contains(out, "REPOSITORY") || !strings.Contains(out, "payments") {
		t.Errorf("missing content in output:\n%s", out)
	}
	if !strings.Contains(out, "───") {
		t.Errorf("expected box-drawing characters in ASCII output:\n%s", out)
	}
}

func TestMarkdown_WithFooter(t *testing.T) {
	tb := format.NewTable(format.ModeFor(true))
	tb.Header("Step", "Chars")
	tb.Row("overview", 100)
	tb.Footer("TOTAL", 100)
	out := tb.String()

	if !strings.Contains(out, "| Step") || !strings.Contains(out, "---") {
		t.Errorf("expected markdown table:\n%s", out)
	}
	if !strings.Contains(out, "TOTAL") {
		t.Errorf("expected footer in output:\n%s", out)
	}
}

func TestDecisionTable(t *testing.T) {
	rows := []format.DecisionRow{
		{Repo: "payments", Decision: investigation.Decision{
			NeedsInvestigation: true,
			Reason:             "Branch changed (current: dev, last: main)",
			LatestCommit:       "0123456789abcdef",
			BranchName:         "dev",
			Rule:               investigation.RuleBranch,
		}, Elapsed: 2 * time.Second},
		{Repo: "ledger", Decision: investigation.Decision{
			Reason:       "No changes since last investigation on 2024-01-02T03:04:05Z",
			LatestCommit: "fedcba9876543210",
			BranchName:   "main",
		}},
		{Repo: "broken", Err: errors.New("git rev-parse HEAD: exit status 128")},
	}
	out := format.DecisionTable(format.Markdown, rows)

	for _, want := range []string{"payments", "01234567", "Branch Changed", "Branch changed", "ledger", "error: git rev-parse", "2/3"} {
		if !strings.Contains(out, want) {
			t.Errorf("expected %q in output:\n%s", want, out)
		}
	}
	if strings.Contains(out, "0123456789abcdef") {
		t.Errorf("commit should be shortened:\n%s", out)
	}
}

func TestSectionTable(t *testing.T) {
	out := format.SectionTable(format.Markdown, []assembly.Section{
		{Name: "overview", Version: "2", Content: "abc"},
		{Name: "monitoring", Version: "1", Content: "x", Cached: true, Outdated: true,
			CacheTimestamp: time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)},
	})
	for _, want := range []string{"overview", "v2", "Fresh", "monitoring", "Cache (outdated)", "2024-01-02T03:04:05Z"} {
		if !strings.Contains(out, want) {
			t.Errorf("expected %q in output:\n%s", want, out)
		}
	}
}

func TestVersionTable(t *testing.T) {
	out := format.VersionTable(format.ASCII, investigation.StepVersions{{Name: "overview", Version: "3"}})
	if !strings.Contains(out, "overview") || !strings.Contains(out, "v3") {
		t.Errorf("unexpected output:\n%s", out)
	}
}

// --- Helper tests ---

func TestFmtDuration(t *testing.T) {
	tests := []struct {
		in   time.Duration
		want string
	}{
		{0, "0s"},
		{59 * time.Second, "59s"},
		{60 * time.Second, "1m 0s"},
		{5*time.Minute + 15*time.Second, "5m 15s"},
	}
	for _, tc := range tests {
		got := format.FmtDuration(tc.in)
		if got != tc.want {
			t.Errorf("FmtDuration(%v) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestFmtTime(t *testing.T) {
	if got := format.FmtTime(time.Time{}); got != "-" {
		t.Errorf("FmtTime(zero) = %q", got)
	}
	ts := time.Date(2024, 1, 2, 3, 4, 5, 0, time.FixedZone("X", 3600))
	if got := format.FmtTime(ts); got != "2024-01-02T02:04:05Z" {
		t.Errorf("FmtTime = %q", got)
	}
}

func TestTruncate(t *testing.T) {
	tests := []struct {
		in     string
		maxLen int
		want   string
	}{
		{"hello", 10, "hello"},
		{"hello world", 8, "hello..."},
		{"abcdef", 3, "abc"},
	}
	for _, tc := range tests {
		got := format.Truncate(tc.in, tc.maxLen)
		if got != tc.want {
			t.Errorf("Truncate(%q, %d) = %q, want %q", tc.in, tc.maxLen, got, tc.want)
		}
	}
}
