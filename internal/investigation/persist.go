package investigation

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"repoinvest/internal/cachekey"
	"repoinvest/internal/store"
)

// Save outcome statuses.
const (
	StatusSuccess = "success"
	StatusError   = "error"
)

// SaveOutcome is the structured result of a persistence operation. A failed
// save is a caching loss for future cycles, never a failure of the run.
type SaveOutcome struct {
	Status    string    `json:"status"`
	Message   string    `json:"message"`
	Key       string    `json:"key,omitempty"`
	Timestamp time.Time `json:"timestamp,omitempty"`
	Err       error     `json:"-"`
}

// OK reports whether the save succeeded.
func (o SaveOutcome) OK() bool { return o.Status == StatusSuccess }

// MetadataRequest describes a completed investigation to record.
type MetadataRequest struct {
	Repo          string
	RepositoryURL string
	Commit        string
	Branch        string
	// Summary is stored as analysis data alongside the prompt metadata.
	Summary map[string]any
	// StepVersions are the versions the investigation ran with; nil records
	// no prompt metadata.
	StepVersions StepVersions
	TTLDays      int
}

// ttlFromDays converts a retention in days to the storage layer's duration,
// applying DefaultTTLDays for non-positive values.
func ttlFromDays(days int) time.Duration {
	if days <= 0 {
		days = DefaultTTLDays
	}
	return time.Duration(days) * 24 * time.Hour
}

func (e *Engine) failed(msg string, key string, err error) SaveOutcome {
	e.log.Error(msg, "key", key, "error", err)
	return SaveOutcome{Status: StatusError, Message: fmt.Sprintf("%s: %v", msg, err), Key: key, Err: err}
}

// SaveInvestigationMetadata records a completed investigation for req.Repo.
func (e *Engine) SaveInvestigationMetadata(ctx context.Context, req MetadataRequest) SaveOutcome {
	data := make(map[string]any, len(req.Summary)+1)
	for k, v := range req.Summary {
		data[k] = v
	}
	if req.StepVersions != nil {
		pm := PromptMetadata{Count: len(req.StepVersions), Versions: req.StepVersions.Map()}
		if err := pm.Validate(); err != nil {
			return e.failed("failed to save investigation metadata", req.Repo, err)
		}
		data[store.FieldPromptMetadata] = map[string]any{
			"count":    pm.Count,
			"versions": pm.Versions,
		}
	}

	doc, err := e.store.SaveInvestigationMetadata(ctx, store.MetadataInput{
		RepositoryName: req.Repo,
		RepositoryURL:  req.RepositoryURL,
		LatestCommit:   req.Commit,
		BranchName:     req.Branch,
		AnalysisType:   store.DefaultAnalysisType,
		AnalysisData:   data,
		TTL:            ttlFromDays(req.TTLDays),
	})
	if err != nil {
		return e.failed("failed to save investigation metadata", req.Repo, err)
	}

	e.log.Info("saved investigation metadata",
		"repo", req.Repo, "commit", cachekey.ShortSHA(req.Commit), "steps", len(req.StepVersions))
	return SaveOutcome{
		Status:    StatusSuccess,
		Message:   fmt.Sprintf("Investigation metadata saved for %s", req.Repo),
		Key:       req.Repo,
		Timestamp: unixFloatToTime(rawFloat(doc[store.FieldAnalysisTimestamp])),
	}
}

// SaveStepResult caches content for step at (commit, version).
func (e *Engine) SaveStepResult(ctx context.Context, repo, step, commit, content, version string, ttlDays int) SaveOutcome {
	key, err := cachekey.Build(repo, step, commit, version)
	if err != nil {
		return e.failed("failed to save step result", step, err)
	}
	rec, err := e.store.SaveStepResult(ctx, key, content, step, ttlFromDays(ttlDays))
	if err != nil {
		return e.failed("failed to save step result", key, err)
	}
	e.log.Debug("saved step result", "repo", repo, "step", step, "key", key)
	return SaveOutcome{
		Status:    StatusSuccess,
		Message:   fmt.Sprintf("Step result saved for %s", step),
		Key:       key,
		Timestamp: rec.CreatedAt,
	}
}

// SaveDependencies stores a repository's dependency listing under key
// (usually cachekey.DependenciesKey).
func (e *Engine) SaveDependencies(ctx context.Context, repo string, data map[string]any, key string, ttlDays int) SaveOutcome {
	rec, err := e.store.SaveTemporaryBlob(ctx, key, data, ttlFromDays(ttlDays))
	if err != nil {
		return e.failed("failed to save dependencies", key, err)
	}
	e.log.Debug("saved dependencies", "repo", repo, "key", key)
	return SaveOutcome{
		Status:    StatusSuccess,
		Message:   fmt.Sprintf("Dependencies saved for %s", repo),
		Key:       key,
		Timestamp: rec.CreatedAt,
	}
}

// GetDependencies returns the dependency listing stored under key, or nil on
// a miss, a read error, or a payload that is not a JSON object.
func (e *Engine) GetDependencies(ctx context.Context, key string) map[string]any {
	raw, err := e.store.GetTemporaryBlob(ctx, key)
	if err != nil {
		e.log.Warn("failed to read dependencies", "key", key, "error", err)
		return nil
	}
	if raw == nil {
		return nil
	}
	var out map[string]any
	if err := json.Unmarshal(raw, &out); err != nil {
		e.log.Warn("dependencies blob is not an object", "key", key, "error", err)
		return nil
	}
	return out
}
