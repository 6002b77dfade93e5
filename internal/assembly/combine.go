package assembly

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// BootstrapVersion is the version assumed for a step with no declared version.
const BootstrapVersion = "1"

// ErrHardGateMissing is returned by Combine when the hard-gate section is
// mandatory and no fresh or cached content exists for it.
var ErrHardGateMissing = errors.New("hard-gate section missing from assembled report")

// CachedResult is a previously stored step output offered to Combine.
type CachedResult struct {
	Content   string    `json:"content"`
	Version   string    `json:"version"`
	Timestamp time.Time `json:"timestamp,omitempty"`
}

// Section is one assembled report section.
type Section struct {
	Name           string    `json:"name"`
	Description    string    `json:"description,omitempty"`
	Content        string    `json:"content"`
	Version        string    `json:"version"`
	Cached         bool      `json:"cached"`
	CacheTimestamp time.Time `json:"cache_timestamp,omitempty"`
	// Outdated marks a cached section reused although its version differs
	// from the current one.
	Outdated bool   `json:"outdated,omitempty"`
	Key      string `json:"result_key,omitempty"`
	Required bool   `json:"required"`
}

// CombineInput is everything Combine merges.
type CombineInput struct {
	// Order is the execution order, possibly extended past the base list.
	Order ProcessingOrder
	// Fresh holds content produced during this run, by step name.
	Fresh map[string]string
	// Cached holds stored content, by step name.
	Cached map[string]CachedResult
	// Versions holds current step versions; absent steps are at "1".
	Versions map[string]string
	// Mandatory lists the base sections. When nil the required entries of
	// Order are used.
	Mandatory []string
	// Tracker, when set, supplies result keys for tracked steps.
	Tracker *Tracker
}

// Report is the outcome of Combine.
type Report struct {
	Sections []Section `json:"sections"`
	// MissingRequired lists required Order entries that produced no content.
	MissingRequired []string `json:"missing_required,omitempty"`
	// MissingMandatory lists mandatory sections absent from Sections.
	MissingMandatory []string `json:"missing_mandatory,omitempty"`
	// Additional lists assembled sections outside the mandatory list.
	Additional  []string `json:"additional,omitempty"`
	CachedCount int      `json:"cached_count"`
	FreshCount  int      `json:"fresh_count"`
	Outdated    []string `json:"outdated,omitempty"`
}

// Names returns the assembled section names in order.
func (r Report) Names() []string {
	names := make([]string, 0, len(r.Sections))
	for _, s := range r.Sections {
		names = append(names, s.Name)
	}
	return names
}

// Assembler merges step results into a report and renders it.
type Assembler struct {
	hardGate string
	log      *slog.Logger
	tracer   trace.Tracer
}

// NewAssembler returns an Assembler enforcing hardGate (DefaultHardGate when
// empty). A nil logger uses slog.Default().
func NewAssembler(hardGate string, log *slog.Logger) *Assembler {
	if hardGate == "" {
		hardGate = DefaultHardGate
	}
	if log == nil {
		log = slog.Default()
	}
	return &Assembler{
		hardGate: hardGate,
		log:      log,
		tracer:   otel.Tracer("repoinvest/assembly"),
	}
}

// HardGate returns the section whose absence is fatal.
func (a *Assembler) HardGate() string { return a.hardGate }

// Combine walks in.Order and picks, per step: cached content at the current
// version when nothing fresh exists; otherwise fresh content; otherwise any
// cached content as an outdated fallback. Steps with none are omitted.
// Completeness violations are collected on the Report; only a missing
// mandatory hard-gate section returns an error (ErrHardGateMissing), in which
// case the Report is still populated.
func (a *Assembler) Combine(ctx context.Context, in CombineInput) (Report, error) {
	_, span := a.tracer.Start(ctx, "assembly.Combine",
		trace.WithAttributes(attribute.Int("steps", len(in.Order))))
	defer span.End()

	var rep Report
	for _, step := range in.Order {
		if step.Name == "" {
			continue
		}
		sec, ok := a.selectSection(step, in)
		if !ok {
			if step.Required {
				a.log.Error("missing required step in results", "step", step.Name)
				rep.MissingRequired = append(rep.MissingRequired, step.Name)
			} else {
				a.log.Info("optional step not in results", "step", step.Name)
			}
			continue
		}
		if sec.Cached {
			rep.CachedCount++
		} else {
			rep.FreshCount++
		}
		if sec.Outdated {
			rep.Outdated = append(rep.Outdated, sec.Name)
		}
		rep.Sections = append(rep.Sections, sec)
	}

	a.log.Info("combined results",
		"sections", len(rep.Sections),
		"steps", len(in.Order),
		"cached", rep.CachedCount,
		"fresh", rep.FreshCount)

	mandatory := in.Mandatory
	if mandatory == nil {
		mandatory = in.Order.RequiredNames()
	}
	assembled := rep.Names()
	for _, name := range mandatory {
		if !contains(assembled, name) {
			rep.MissingMandatory = append(rep.MissingMandatory, name)
		}
	}
	for _, name := range assembled {
		if !contains(mandatory, name) {
			rep.Additional = append(rep.Additional, name)
		}
	}
	if len(rep.MissingMandatory) > 0 {
		a.log.Error("base sections missing from combined results", "sections", rep.MissingMandatory)
	}
	span.SetAttributes(
		attribute.Int("sections", len(rep.Sections)),
		attribute.Int("cached", rep.CachedCount),
	)

	if contains(mandatory, a.hardGate) && !contains(assembled, a.hardGate) {
		err := fmt.Errorf("%w: %s", ErrHardGateMissing, a.hardGate)
		span.RecordError(err)
		span.SetStatus(codes.Error, "hard gate missing")
		return rep, err
	}
	return rep, nil
}

func (a *Assembler) selectSection(step Step, in CombineInput) (Section, bool) {
	current := BootstrapVersion
	if v, ok := in.Versions[step.Name]; ok && v != "" {
		current = v
	}
	fresh := in.Fresh[step.Name]
	cached, hasCached := in.Cached[step.Name]
	hasCached = hasCached && cached.Content != ""

	sec := Section{
		Name:        step.Name,
		Description: step.Description,
		Version:     current,
		Required:    step.Required,
	}
	if in.Tracker != nil {
		if r, ok := in.Tracker.Step(step.Name); ok {
			sec.Key = r.Key
		}
	}

	switch {
	case hasCached && cached.Version == current && fresh == "":
		sec.Content = cached.Content
		sec.Cached = true
		sec.CacheTimestamp = cached.Timestamp
		a.log.Info("using cached result", "step", step.Name, "version", current)
	case fresh != "":
		sec.Content = fresh
		a.log.Info("using new result", "step", step.Name, "version", current)
	case hasCached:
		sec.Content = cached.Content
		sec.Cached = true
		sec.CacheTimestamp = cached.Timestamp
		sec.Outdated = true
		a.log.Warn("using outdated cached result",
			"step", step.Name,
			"cached_version", cached.Version,
			"current_version", current)
	default:
		return Section{}, false
	}
	return sec, true
}
