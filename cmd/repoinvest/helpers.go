package main

import (
	"fmt"

	"repoinvest/internal/assembly"
	"repoinvest/internal/investigation"
	"repoinvest/internal/logging"
	"repoinvest/internal/pipeline"
	"repoinvest/internal/promptconfig"
	"repoinvest/internal/store"
	"repoinvest/internal/workspace"
)

// openStore opens the backend selected by the root flags.
func openStore() (store.Store, error) {
	b, err := store.ParseBackend(rootFlags.backend)
	if err != nil {
		return nil, err
	}
	st, err := store.OpenBackend(b, store.ResolvePath(b, rootFlags.db))
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}
	return st, nil
}

func newEngine(st store.Store) *investigation.Engine {
	return investigation.NewEngine(st, logging.New("investigation"))
}

func newAssembler() *assembly.Assembler {
	return assembly.NewAssembler(rootFlags.hardGate, logging.New("assembly"))
}

// loadPlan resolves the prompts config at path into a pipeline plan.
func loadPlan(path string) (pipeline.Plan, error) {
	cfg, err := promptconfig.LoadFromPath(path)
	if err != nil {
		return pipeline.Plan{}, err
	}
	return pipeline.PlanFromConfig(cfg)
}

// loadVersions returns the step versions of the prompts config at path, or
// nil when path is empty.
func loadVersions(path string) (investigation.StepVersions, error) {
	if path == "" {
		return nil, nil
	}
	_, versions, err := promptconfig.LoadStepVersions(path)
	return versions, err
}

func loadWorkspace(path string) (*workspace.Workspace, error) {
	ws, err := workspace.LoadFromPath(path)
	if err != nil {
		return nil, fmt.Errorf("load workspace: %w", err)
	}
	return ws, nil
}
