package investigation

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"repoinvest/internal/cachekey"
)

// StepCacheResult is the outcome of CheckStepCache.
type StepCacheResult struct {
	NeedsAnalysis bool      `json:"needs_analysis"`
	Reason        string    `json:"reason"`
	Version       string    `json:"version"`
	Key           string    `json:"cache_key,omitempty"`
	CachedContent string    `json:"cached_content,omitempty"`
	CachedAt      time.Time `json:"cached_at,omitempty"`
}

// CheckStepCache looks for a cached result of step at (commit, version).
// Any failure, including a key that cannot be built, reports NeedsAnalysis
// so callers always recompute rather than stall.
func (e *Engine) CheckStepCache(ctx context.Context, repo, step, commit, version string) StepCacheResult {
	ctx, span := e.tracer.Start(ctx, "investigation.CheckStepCache",
		trace.WithAttributes(
			attribute.String("repo", repo),
			attribute.String("step", step),
			attribute.String("version", version),
		))
	defer span.End()

	res := StepCacheResult{Version: version}
	key, err := cachekey.Build(repo, step, commit, version)
	if err == nil {
		res.Key = key
		rec, getErr := e.store.GetStepResult(ctx, key)
		if getErr == nil && rec != nil && rec.Content != "" {
			res.CachedContent = rec.Content
			res.CachedAt = rec.CreatedAt
			res.Reason = fmt.Sprintf("Using cached result from commit %s v%s", cachekey.ShortSHA(commit), version)
			span.SetAttributes(attribute.Bool("cache_hit", true))
			e.log.Debug("step cache hit", "repo", repo, "step", step, "key", key)
			return res
		}
		err = getErr
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "cache check failed")
		e.log.Warn("step cache check failed", "repo", repo, "step", step, "error", err)
		res.NeedsAnalysis = true
		res.Reason = fmt.Sprintf("Cache check failed: %v", err)
		return res
	}

	span.SetAttributes(attribute.Bool("cache_hit", false))
	res.NeedsAnalysis = true
	res.Reason = fmt.Sprintf("No cached result for this prompt at commit %s v%s", cachekey.ShortSHA(commit), version)
	return res
}
