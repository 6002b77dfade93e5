// Package pipeline drives investigations end to end: it decides whether a
// repository needs work, reuses or produces each step's output, assembles
// the report and records the outcome.
package pipeline

import (
	"context"

	"repoinvest/internal/assembly"
	"repoinvest/internal/investigation"
	"repoinvest/internal/promptconfig"
	"repoinvest/internal/workspace"
)

// Plan is the processing configuration shared by every repository in a run.
type Plan struct {
	// Order is the execution order.
	Order assembly.ProcessingOrder
	// Base is the base configuration's order; its names are the mandatory
	// sections. Nil means Order.
	Base assembly.ProcessingOrder
	// Versions are the current step versions.
	Versions investigation.StepVersions
	// Context maps a step to the steps whose output it consumes.
	Context map[string][]string
	// Prompts holds prompt text by step, handed to the Producer.
	Prompts map[string]string
}

// PlanFromConfig reads every prompt of cfg and extracts its version.
func PlanFromConfig(cfg *promptconfig.Config) (Plan, error) {
	prompts, err := cfg.Prompts()
	if err != nil {
		return Plan{}, err
	}
	versions, err := cfg.StepVersions()
	if err != nil {
		return Plan{}, err
	}
	ctxDeps := make(map[string][]string, len(cfg.Order))
	for _, s := range cfg.Order {
		if deps := cfg.ContextDependencies(s.Name); len(deps) > 0 {
			ctxDeps[s.Name] = deps
		}
	}
	return Plan{
		Order:    cfg.Order,
		Base:     cfg.Base,
		Versions: versions,
		Context:  ctxDeps,
		Prompts:  prompts,
	}, nil
}

// Mandatory returns the mandatory section names.
func (p Plan) Mandatory() []string { return p.base().Names() }

func (p Plan) base() assembly.ProcessingOrder {
	if p.Base == nil {
		return p.Order
	}
	return p.Base
}

// Target is one repository to investigate.
type Target struct {
	Name  string
	URL   string
	State investigation.RepositoryState
	// Err is set when the repository state could not be resolved; the
	// target is then reported without being investigated.
	Err error
}

// TargetsFromWorkspace resolves the state of every workspace repository.
// Resolution failures are recorded per target.
func TargetsFromWorkspace(ctx context.Context, ws *workspace.Workspace) []Target {
	out := make([]Target, 0, len(ws.Repos))
	for _, r := range ws.Repos {
		st, err := r.State(ctx)
		out = append(out, Target{Name: r.DisplayName(), URL: r.URL, State: st, Err: err})
	}
	return out
}
