package assembly

import (
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/google/uuid"
)

// ErrStepAlreadyTracked is returned when a step name is tracked twice in one run.
var ErrStepAlreadyTracked = errors.New("step already tracked")

// StepResult is the bookkeeping for one step within a run.
type StepResult struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	Key         string `json:"result_key"`
	Content     string `json:"content,omitempty"`
	Required    bool   `json:"required"`
	// ContextDependencies are the steps whose output this step's prompt
	// consumed as context.
	ContextDependencies []string  `json:"context_dependencies,omitempty"`
	Version             string    `json:"version,omitempty"`
	Cached              bool      `json:"cached"`
	CacheTimestamp      time.Time `json:"cache_timestamp,omitempty"`
}

// Statistics summarises a Tracker.
type Statistics struct {
	Repo                 string   `json:"repo_name"`
	RunID                string   `json:"run_id"`
	TotalStepsTracked    int      `json:"total_steps_tracked"`
	CachedSteps          int      `json:"cached_steps"`
	BaseSectionsExpected int      `json:"base_sections_expected"`
	HasHardGate          bool     `json:"has_hard_gate"`
	TrackedSections      []string `json:"tracked_sections"`
	BaseSections         []string `json:"base_sections"`
}

// Tracker records the steps that produced output during one investigation
// run. It is not safe for concurrent use; one run drives one Tracker.
type Tracker struct {
	repo     string
	runID    string
	base     []string
	hardGate string
	log      *slog.Logger

	steps map[string]*StepResult
	order []string // tracking order
}

// NewTracker returns a Tracker for repo. base is the base configuration's
// processing order; its names are the mandatory sections.
func NewTracker(repo string, base ProcessingOrder, hardGate string, log *slog.Logger) *Tracker {
	if log == nil {
		log = slog.Default()
	}
	if hardGate == "" {
		hardGate = DefaultHardGate
	}
	t := &Tracker{
		repo:     repo,
		runID:    uuid.NewString(),
		base:     base.Names(),
		hardGate: hardGate,
		log:      log.With("repo", repo),
		steps:    make(map[string]*StepResult),
	}
	if len(t.base) == 0 {
		t.log.Warn("no base processing order provided, base section checks disabled")
	} else {
		t.log.Debug("extracted base sections", "count", len(t.base))
	}
	return t
}

// RunID identifies this run; it is recorded with the saved metadata.
func (t *Tracker) RunID() string { return t.runID }

// Repo returns the repository this tracker belongs to.
func (t *Tracker) Repo() string { return t.repo }

// BaseSections returns the mandatory section names.
func (t *Tracker) BaseSections() []string { return append([]string(nil), t.base...) }

// TrackStep records a step. Names are unique within a run.
func (t *Tracker) TrackStep(r StepResult) error {
	if r.Name == "" {
		return errors.New("track step: empty name")
	}
	if _, ok := t.steps[r.Name]; ok {
		return fmt.Errorf("track step %s: %w", r.Name, ErrStepAlreadyTracked)
	}
	r.ContextDependencies = append([]string(nil), r.ContextDependencies...)
	t.steps[r.Name] = &r
	t.order = append(t.order, r.Name)
	t.log.Debug("tracked step", "step", r.Name, "key", r.Key, "cached", r.Cached)
	return nil
}

// RecordContent stores the content produced for a tracked step.
func (t *Tracker) RecordContent(name, content string) error {
	r, ok := t.steps[name]
	if !ok {
		return fmt.Errorf("record content: step %s not tracked", name)
	}
	r.Content = content
	return nil
}

// Step returns the tracked result for name.
func (t *Tracker) Step(name string) (StepResult, bool) {
	r, ok := t.steps[name]
	if !ok {
		return StepResult{}, false
	}
	return *r, true
}

// Steps returns all tracked results in tracking order.
func (t *Tracker) Steps() []StepResult {
	out := make([]StepResult, 0, len(t.order))
	for _, name := range t.order {
		out = append(out, *t.steps[name])
	}
	return out
}

// ContextKeys resolves step's declared context dependencies to the storage
// keys of already tracked steps. Unknown dependencies are skipped.
func (t *Tracker) ContextKeys(step string) []string {
	r, ok := t.steps[step]
	if !ok {
		return nil
	}
	var keys []string
	for _, dep := range r.ContextDependencies {
		d, ok := t.steps[dep]
		if !ok {
			t.log.Warn("context dependency not tracked", "step", step, "dependency", dep)
			continue
		}
		keys = append(keys, d.Key)
	}
	return keys
}

// ValidateRequiredSections checks every required entry of order was tracked.
func (t *Tracker) ValidateRequiredSections(order ProcessingOrder) (bool, []string) {
	var missing []string
	for _, name := range order.RequiredNames() {
		if _, ok := t.steps[name]; !ok {
			missing = append(missing, name)
		}
	}
	if len(missing) > 0 {
		t.log.Warn("missing required sections", "sections", missing)
	}
	return len(missing) == 0, missing
}

// ValidateBaseSectionsPresent checks every base section was tracked.
func (t *Tracker) ValidateBaseSectionsPresent() (bool, []string) {
	if len(t.base) == 0 {
		t.log.Warn("no base sections loaded for validation")
		return true, nil
	}
	var missing []string
	for _, name := range t.base {
		if _, ok := t.steps[name]; !ok {
			missing = append(missing, name)
		}
	}
	if len(missing) > 0 {
		t.log.Warn("missing base sections", "sections", missing)
	} else {
		t.log.Info("all base sections present", "count", len(t.base))
	}
	if contains(t.base, t.hardGate) {
		if _, ok := t.steps[t.hardGate]; !ok {
			t.log.Error("hard-gate section missing from tracked results", "section", t.hardGate)
		}
	}
	return len(missing) == 0, missing
}

// MissingSections returns tracked step names that have no entry in results.
func (t *Tracker) MissingSections(results map[string]string) []string {
	var missing []string
	for _, name := range t.order {
		if _, ok := results[name]; !ok {
			missing = append(missing, name)
		}
	}
	sort.Strings(missing)
	return missing
}

// TrackVersions extracts the version header of every prompt and records it on
// the matching tracked step, if any.
func (t *Tracker) TrackVersions(prompts map[string]string) (map[string]string, error) {
	versions, err := ExtractVersions(prompts)
	if err != nil {
		return nil, err
	}
	for name, v := range versions {
		if r, ok := t.steps[name]; ok {
			r.Version = v
		}
		t.log.Debug("prompt version", "step", name, "version", v)
	}
	return versions, nil
}

// Statistics summarises the tracked steps.
func (t *Tracker) Statistics() Statistics {
	cached := 0
	for _, r := range t.steps {
		if r.Cached {
			cached++
		}
	}
	_, hasGate := t.steps[t.hardGate]
	return Statistics{
		Repo:                 t.repo,
		RunID:                t.runID,
		TotalStepsTracked:    len(t.steps),
		CachedSteps:          cached,
		BaseSectionsExpected: len(t.base),
		HasHardGate:          hasGate,
		TrackedSections:      append([]string{}, t.order...),
		BaseSections:         append([]string{}, t.base...),
	}
}
