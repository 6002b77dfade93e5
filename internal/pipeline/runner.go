package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"repoinvest/internal/assembly"
	"repoinvest/internal/cachekey"
	"repoinvest/internal/investigation"
	"repoinvest/internal/logging"
)

// StepRequest is what a Producer needs to produce one step's output.
type StepRequest struct {
	Repo    string
	Step    assembly.Step
	Commit  string
	Version string
	Prompt  string
	// Context holds the output of the step's context dependencies, by step.
	Context map[string]string
	// ContextKeys are the storage keys of those outputs.
	ContextKeys []string
	// Dependencies is the repository's dependency listing, when known.
	Dependencies map[string]any
}

// Producer produces the output of one analysis step.
type Producer interface {
	Produce(ctx context.Context, req StepRequest) (string, error)
}

// DependencySource lists a repository's dependencies. A Producer may
// implement it; the listing is cached per commit.
type DependencySource interface {
	Dependencies(ctx context.Context, repo string) (map[string]any, error)
}

// Writer persists a rendered report and returns where it went.
type Writer interface {
	Write(ctx context.Context, repo string, doc assembly.Document) (string, error)
}

// Result is the outcome of one repository run.
type Result struct {
	Repo     string
	Decision investigation.Decision
	// Skipped is set when the decision found nothing to do.
	Skipped bool
	Report   *assembly.Report
	Document *assembly.Document
	Location string
	Stats    assembly.Statistics
	// StepErrors holds Producer failures by step.
	StepErrors map[string]error
	// SaveFailures holds failed non-fatal saves.
	SaveFailures []investigation.SaveOutcome
	Err          error
	Elapsed      time.Duration
}

// Runner drives investigations for single repositories.
type Runner struct {
	Engine    *investigation.Engine
	Assembler *assembly.Assembler
	Producer  Producer
	// Writer is optional; without it the rendered report is only returned.
	Writer Writer
	// StepTTLDays and MetadataTTLDays default to investigation.DefaultTTLDays.
	StepTTLDays     int
	MetadataTTLDays int
	// Force runs every repository regardless of the decision.
	Force  bool
	Logger *slog.Logger
}

func (r *Runner) logger() *slog.Logger {
	if r.Logger != nil {
		return r.Logger
	}
	return logging.New("pipeline")
}

// Run investigates one repository. Failures of individual steps and of
// saves are recorded on the Result; the returned error is set only when no
// report could be produced (missing hard gate, write failure, cancellation).
func (r *Runner) Run(ctx context.Context, t Target, plan Plan) (Result, error) {
	start := time.Now()
	res, err := r.run(ctx, t, plan)
	res.Repo = t.Name
	res.Err = err
	res.Elapsed = time.Since(start)
	return res, err
}

func (r *Runner) run(ctx context.Context, t Target, plan Plan) (Result, error) {
	log := r.logger().With("repo", t.Name)
	if t.Err != nil {
		return Result{}, t.Err
	}
	if r.Engine == nil || r.Assembler == nil || r.Producer == nil {
		return Result{}, errors.New("runner requires an engine, an assembler and a producer")
	}

	d := r.Engine.Decide(ctx, t.Name, t.State, plan.Versions)
	res := Result{Decision: d}
	if !d.NeedsInvestigation && !r.Force {
		log.Info("skipping repository", "reason", d.Reason)
		res.Skipped = true
		return res, nil
	}
	log.Info("investigating repository", "reason", d.Reason, "commit", cachekey.ShortSHA(t.State.CommitSHA))

	commit := t.State.CommitSHA
	versions := plan.Versions.Map()
	tracker := assembly.NewTracker(t.Name, plan.base(), r.Assembler.HardGate(), log)
	deps := r.dependencies(ctx, t.Name, commit, &res)

	fresh := make(map[string]string)
	cached := make(map[string]assembly.CachedResult)
	outputs := make(map[string]string)

	for _, step := range plan.Order {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		version := versions[step.Name]
		if version == "" {
			version = investigation.BootstrapVersion
		}
		check := r.Engine.CheckStepCache(ctx, t.Name, step.Name, commit, version)
		sr := assembly.StepResult{
			Name:                step.Name,
			Description:         step.Description,
			Key:                 check.Key,
			Required:            step.Required,
			ContextDependencies: plan.Context[step.Name],
			Version:             version,
		}
		if !check.NeedsAnalysis {
			sr.Cached = true
			sr.CacheTimestamp = check.CachedAt
			sr.Content = check.CachedContent
		}
		if err := tracker.TrackStep(sr); err != nil {
			log.Warn("track step", "step", step.Name, "error", err)
		}

		if !check.NeedsAnalysis {
			log.Debug("using cached step", "step", step.Name, "reason", check.Reason)
			cached[step.Name] = assembly.CachedResult{
				Content:   check.CachedContent,
				Version:   version,
				Timestamp: check.CachedAt,
			}
			outputs[step.Name] = check.CachedContent
			continue
		}

		req := StepRequest{
			Repo:         t.Name,
			Step:         step,
			Commit:       commit,
			Version:      version,
			Prompt:       plan.Prompts[step.Name],
			Context:      contextFor(plan.Context[step.Name], outputs),
			ContextKeys:  tracker.ContextKeys(step.Name),
			Dependencies: deps,
		}
		content, err := r.Producer.Produce(ctx, req)
		if err != nil {
			if ctx.Err() != nil {
				return res, ctx.Err()
			}
			log.Error("step failed", "step", step.Name, "error", err)
			if res.StepErrors == nil {
				res.StepErrors = make(map[string]error)
			}
			res.StepErrors[step.Name] = err
			continue
		}
		fresh[step.Name] = content
		outputs[step.Name] = content
		if err := tracker.RecordContent(step.Name, content); err != nil {
			log.Warn("record step content", "step", step.Name, "error", err)
		}

		if out := r.Engine.SaveStepResult(ctx, t.Name, step.Name, commit, content, version, r.StepTTLDays); !out.OK() {
			res.SaveFailures = append(res.SaveFailures, out)
		}
	}

	tracker.ValidateRequiredSections(plan.Order)
	tracker.ValidateBaseSectionsPresent()
	res.Stats = tracker.Statistics()

	mandatory := plan.Mandatory()
	rep, err := r.Assembler.Combine(ctx, assembly.CombineInput{
		Order:     plan.Order,
		Fresh:     fresh,
		Cached:    cached,
		Versions:  versions,
		Mandatory: mandatory,
		Tracker:   tracker,
	})
	res.Report = &rep
	if err != nil {
		return res, err
	}

	doc := r.Assembler.Render(rep.Sections, mandatory)
	res.Document = &doc
	if r.Writer != nil {
		loc, err := r.Writer.Write(ctx, t.Name, doc)
		if err != nil {
			return res, err
		}
		res.Location = loc
		log.Info("wrote report", "path", loc)
	}

	out := r.Engine.SaveInvestigationMetadata(ctx, investigation.MetadataRequest{
		Repo:          t.Name,
		RepositoryURL: t.URL,
		Commit:        commit,
		Branch:        t.State.BranchName,
		Summary:       summary(tracker, rep, doc),
		StepVersions:  plan.Versions,
		TTLDays:       r.MetadataTTLDays,
	})
	if !out.OK() {
		res.SaveFailures = append(res.SaveFailures, out)
	}
	return res, nil
}

// dependencies returns the cached dependency listing for commit, fetching
// and caching it through the Producer when it is a DependencySource.
func (r *Runner) dependencies(ctx context.Context, repo, commit string, res *Result) map[string]any {
	key, err := cachekey.DependenciesKey(repo, commit)
	if err != nil {
		r.logger().Warn("dependencies key", "repo", repo, "error", err)
		return nil
	}
	if deps := r.Engine.GetDependencies(ctx, key); deps != nil {
		return deps
	}
	src, ok := r.Producer.(DependencySource)
	if !ok {
		return nil
	}
	deps, err := src.Dependencies(ctx, repo)
	if err != nil {
		r.logger().Warn("list dependencies", "repo", repo, "error", err)
		return nil
	}
	if deps == nil {
		return nil
	}
	if out := r.Engine.SaveDependencies(ctx, repo, deps, key, r.StepTTLDays); !out.OK() {
		res.SaveFailures = append(res.SaveFailures, out)
	}
	return deps
}

func contextFor(deps []string, outputs map[string]string) map[string]string {
	if len(deps) == 0 {
		return nil
	}
	out := make(map[string]string, len(deps))
	for _, d := range deps {
		if c, ok := outputs[d]; ok {
			out[d] = c
		}
	}
	return out
}

func summary(t *assembly.Tracker, rep assembly.Report, doc assembly.Document) map[string]any {
	s := map[string]any{
		"run_id":          t.RunID(),
		"sections":        rep.Names(),
		"cached_sections": rep.CachedCount,
		"fresh_sections":  rep.FreshCount,
	}
	if len(rep.Outdated) > 0 {
		s["outdated_sections"] = rep.Outdated
	}
	if len(rep.MissingMandatory) > 0 {
		s["missing_sections"] = rep.MissingMandatory
	}
	if len(doc.Warnings) > 0 {
		s["warnings"] = doc.Warnings
	}
	return s
}

// String renders a one-line outcome for logs and CLI output.
func (r Result) String() string {
	switch {
	case r.Err != nil:
		return fmt.Sprintf("%s: error: %v", r.Repo, r.Err)
	case r.Skipped:
		return fmt.Sprintf("%s: skipped: %s", r.Repo, r.Decision.Reason)
	case r.Report != nil:
		return fmt.Sprintf("%s: %d sections (%d cached, %d fresh)",
			r.Repo, len(r.Report.Sections), r.Report.CachedCount, r.Report.FreshCount)
	default:
		return r.Repo
	}
}
