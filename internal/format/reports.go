package format

import (
	"fmt"
	"time"

	"repoinvest/internal/assembly"
	"repoinvest/internal/cachekey"
	"repoinvest/internal/display"
	"repoinvest/internal/investigation"
)

const reasonWidth = 72

// DecisionRow is one repository line of a scan.
type DecisionRow struct {
	Repo     string
	Decision investigation.Decision
	Err      error
	Elapsed  time.Duration
}

// DecisionTable renders scan results with a footer counting re-runs.
func DecisionTable(m Mode, rows []DecisionRow) string {
	tb := NewTable(m)
	tb.Header("Repository", "Commit", "Branch", "Re-run", "Rule", "Reason", "Took")
	rerun := 0
	for _, r := range rows {
		if r.Err != nil {
			tb.Row(r.Repo, "-", "-", BoolMark(true), "-", Truncate("error: "+r.Err.Error(), reasonWidth), FmtDuration(r.Elapsed))
			rerun++
			continue
		}
		d := r.Decision
		if d.NeedsInvestigation {
			rerun++
		}
		tb.Row(r.Repo, cachekey.ShortSHA(d.LatestCommit), d.BranchName, BoolMark(d.NeedsInvestigation),
			display.Rule(d.Rule), Truncate(d.Reason, reasonWidth), FmtDuration(r.Elapsed))
	}
	tb.Footer("TOTAL", "", "", fmt.Sprintf("%d/%d", rerun, len(rows)), "", "", "")
	tb.Columns(ColumnConfig{Number: 6, MaxWidth: reasonWidth})
	return tb.String()
}

// SectionTable renders an assembled report's provenance.
func SectionTable(m Mode, sections []assembly.Section) string {
	tb := NewTable(m)
	tb.Header("#", "Section", "Version", "Source", "Cached at", "Chars")
	for i, s := range sections {
		tb.Row(i+1, s.Name, "v"+s.Version, display.Provenance(s.Cached, s.Outdated), FmtTime(s.CacheTimestamp), len(s.Content))
	}
	tb.Columns(
		ColumnConfig{Number: 1, Align: AlignRight},
		ColumnConfig{Number: 6, Align: AlignRight},
	)
	return tb.String()
}

// VersionTable renders step versions in order.
func VersionTable(m Mode, versions investigation.StepVersions) string {
	tb := NewTable(m)
	tb.Header("Step", "Version")
	for _, v := range versions {
		tb.Row(v.Name, "v"+v.Version)
	}
	return tb.String()
}
