package pipeline

import (
	"context"
	"time"

	"golang.org/x/sync/errgroup"

	"repoinvest/internal/investigation"
)

// ScanResult is the decision for one repository.
type ScanResult struct {
	Repo     string
	Decision investigation.Decision
	Err      error
	Elapsed  time.Duration
}

// Scan decides for every target concurrently, with at most limit decisions
// in flight. Results are returned in target order.
func (r *Runner) Scan(ctx context.Context, targets []Target, versions investigation.StepVersions, limit int) []ScanResult {
	log := r.logger()
	results := make([]ScanResult, len(targets))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(clampLimit(limit, len(targets)))
	for i, t := range targets {
		g.Go(func() error {
			start := time.Now()
			res := ScanResult{Repo: t.Name, Err: t.Err}
			if t.Err == nil {
				res.Decision = r.Engine.Decide(gctx, t.Name, t.State, versions)
			}
			res.Elapsed = time.Since(start)
			results[i] = res
			return nil
		})
	}
	_ = g.Wait() // errors captured in ScanResult.Err

	rerun := 0
	for _, res := range results {
		if res.Err == nil && res.Decision.NeedsInvestigation {
			rerun++
		}
	}
	log.Info("scan complete", "repos", len(targets), "needs_investigation", rerun)
	return results
}

// RunAll runs every target concurrently, with at most limit runs in
// flight. A failing repository never cancels its siblings.
func (r *Runner) RunAll(ctx context.Context, targets []Target, plan Plan, limit int) []Result {
	log := r.logger()
	results := make([]Result, len(targets))

	g := new(errgroup.Group)
	g.SetLimit(clampLimit(limit, len(targets)))
	for i, t := range targets {
		g.Go(func() error {
			results[i], _ = r.Run(ctx, t, plan)
			return nil
		})
	}
	_ = g.Wait() // errors captured in Result.Err

	var failed, skipped int
	for _, res := range results {
		switch {
		case res.Err != nil:
			failed++
			log.Error("repository failed", "repo", res.Repo, "error", res.Err)
		case res.Skipped:
			skipped++
		}
	}
	log.Info("run complete", "repos", len(targets), "skipped", skipped, "failed", failed)
	return results
}

func clampLimit(limit, n int) int {
	if limit < 1 {
		limit = 1
	}
	if n > 0 && limit > n {
		limit = n
	}
	return limit
}
