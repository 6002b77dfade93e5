package investigation

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"repoinvest/internal/cachekey"
	"repoinvest/internal/store"
)

// Rule names recorded on Decision.Rule.
const (
	RuleStorage      = "storage"
	RuleMissing      = "missing"
	RuleCommit       = "commit"
	RuleBranch       = "branch"
	RuleStepVersions = "step_versions"
	RuleUnchanged    = "unchanged"
)

// Engine is the investigation decision engine. It is stateless between calls;
// all persistent state lives in the Store.
type Engine struct {
	store  store.Store
	log    *slog.Logger
	tracer trace.Tracer
}

// NewEngine returns an Engine backed by st. A nil logger uses slog.Default().
func NewEngine(st store.Store, log *slog.Logger) *Engine {
	if log == nil {
		log = slog.Default()
	}
	return &Engine{
		store:  st,
		log:    log,
		tracer: otel.Tracer("repoinvest/investigation"),
	}
}

// Store returns the storage port the engine was built with.
func (e *Engine) Store() store.Store { return e.store }

// ruleInput is what each decision rule sees.
type ruleInput struct {
	repo     string
	state    RepositoryState
	versions StepVersions
	last     snapshot

	versionCheckSkipped bool
}

// rule returns a reason and true when it requires re-investigation.
type rule struct {
	name  string
	check func(e *Engine, in *ruleInput) (string, bool)
}

// decisionRules run in order; the first to fire decides.
var decisionRules = []rule{
	{RuleCommit, checkCommit},
	{RuleBranch, checkBranch},
	{RuleStepVersions, checkStepVersions},
}

// Decide reports whether repo must be investigated again given its current
// state and the current step versions. A nil or empty versions disables the
// version rules (flagged on the Decision). Decide never returns an error:
// storage failures yield a re-investigation decision.
func (e *Engine) Decide(ctx context.Context, repo string, state RepositoryState, versions StepVersions) Decision {
	ctx, span := e.tracer.Start(ctx, "investigation.Decide",
		trace.WithAttributes(
			attribute.String("repo", repo),
			attribute.String("commit", cachekey.ShortSHA(state.CommitSHA)),
			attribute.String("branch", state.BranchName),
		))
	defer span.End()

	d := e.decide(ctx, repo, state, versions, span)
	span.SetAttributes(
		attribute.Bool("needs_investigation", d.NeedsInvestigation),
		attribute.String("rule", d.Rule),
	)
	e.log.Info("investigation decision",
		"repo", repo,
		"needs_investigation", d.NeedsInvestigation,
		"rule", d.Rule,
		"reason", d.Reason)
	return d
}

func (e *Engine) decide(ctx context.Context, repo string, state RepositoryState, versions StepVersions, span trace.Span) Decision {
	d := Decision{
		LatestCommit: state.CommitSHA,
		BranchName:   state.BranchName,
	}
	if state.HasUncommittedChanges {
		e.log.Debug("working tree has uncommitted changes", "repo", repo)
	}

	doc, err := e.store.GetLatestInvestigationMetadata(ctx, repo)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "storage error")
		e.log.Error("failed to check investigation status", "repo", repo, "error", err)
		d.NeedsInvestigation = true
		d.Rule = RuleStorage
		d.Reason = fmt.Sprintf("Unable to check previous investigations (storage error: %v)", err)
		return d
	}
	if doc == nil {
		d.NeedsInvestigation = true
		d.Rule = RuleMissing
		d.Reason = "No previous investigation found"
		return d
	}
	d.LastInvestigation = doc

	in := &ruleInput{repo: repo, state: state, versions: versions}
	meta, err := ParseMetadata(doc)
	if err != nil {
		e.log.Warn("stored investigation metadata failed validation, using raw record",
			"repo", repo, "error", err)
		in.last = snapshotFromRaw(doc)
	} else {
		d.Metadata = meta
		in.last = snapshotFromMetadata(meta)
	}

	for _, r := range decisionRules {
		reason, fired := r.check(e, in)
		if fired {
			d.NeedsInvestigation = true
			d.Rule = r.name
			d.Reason = reason
			d.VersionCheckSkipped = in.versionCheckSkipped
			return d
		}
	}

	d.VersionCheckSkipped = in.versionCheckSkipped
	d.Rule = RuleUnchanged
	d.Reason = "No changes since last investigation on " +
		unixFloatToTime(in.last.timestamp).Format(time.RFC3339)
	return d
}

func checkCommit(_ *Engine, in *ruleInput) (string, bool) {
	if in.state.CommitSHA == in.last.commit {
		return "", false
	}
	last := "unknown"
	if in.last.commit != "" {
		last = cachekey.ShortSHA(in.last.commit)
	}
	return fmt.Sprintf("New commits detected (current: %s, last: %s)",
		cachekey.ShortSHA(in.state.CommitSHA), last), true
}

func checkBranch(_ *Engine, in *ruleInput) (string, bool) {
	if in.state.BranchName == in.last.branch {
		return "", false
	}
	return fmt.Sprintf("Branch changed (current: %s, last: %s)",
		in.state.BranchName, in.last.branch), true
}

func checkStepVersions(e *Engine, in *ruleInput) (string, bool) {
	if len(in.versions) == 0 {
		e.log.Warn("no step versions supplied, version-based cache invalidation disabled",
			"repo", in.repo)
		in.versionCheckSkipped = true
		return "", false
	}

	if !in.last.hasVersions() {
		// Runs recorded before version tracking only ever used bootstrap
		// versions, so any step past that is an update.
		for _, sv := range in.versions {
			if sv.Version != BootstrapVersion {
				return fmt.Sprintf("Prompt '%s' updated to v%s (no previous version tracking)",
					sv.Name, sv.Version), true
			}
		}
		return "", false
	}

	prompt := in.last.prompt
	if len(in.versions) != prompt.Count {
		return fmt.Sprintf("Prompt count changed (%d → %d)", prompt.Count, len(in.versions)), true
	}
	for _, sv := range in.versions {
		lastVersion, ok := prompt.Versions[sv.Name]
		if !ok {
			lastVersion = BootstrapVersion
		}
		if sv.Version != lastVersion {
			return fmt.Sprintf("Prompt '%s' version changed (v%s → v%s)",
				sv.Name, lastVersion, sv.Version), true
		}
	}
	for _, name := range in.last.recordedNames() {
		if _, ok := in.versions.Lookup(name); !ok {
			return fmt.Sprintf("Prompt '%s' was removed", name), true
		}
	}
	return "", false
}
