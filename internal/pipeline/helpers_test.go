package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"

	"repoinvest/internal/assembly"
	"repoinvest/internal/investigation"
)

const (
	shaA = "aaaaaaaa11111111aaaaaaaa11111111aaaaaaaa"
	shaB = "bbbbbbbb22222222bbbbbbbb22222222bbbbbbbb"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// stubProducer answers every step with "<repo>/<step>" unless told to fail.
type stubProducer struct {
	mu    sync.Mutex
	fail  map[string]bool
	deps  map[string]any
	calls []StepRequest
}

func (p *stubProducer) Produce(_ context.Context, req StepRequest) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls = append(p.calls, req)
	if p.fail[req.Step.Name] {
		return "", errors.New("agent timed out")
	}
	return fmt.Sprintf("%s/%s", req.Repo, req.Step.Name), nil
}

func (p *stubProducer) Dependencies(_ context.Context, _ string) (map[string]any, error) {
	return p.deps, nil
}

func (p *stubProducer) produced() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []string
	for _, c := range p.calls {
		out = append(out, c.Repo+"/"+c.Step.Name)
	}
	return out
}

func (p *stubProducer) request(step string) (StepRequest, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, c := range p.calls {
		if c.Step.Name == step {
			return c, true
		}
	}
	return StepRequest{}, false
}

func (p *stubProducer) reset() {
	p.mu.Lock()
	p.calls = nil
	p.mu.Unlock()
}

// memWriter keeps written documents by repository.
type memWriter struct {
	mu   sync.Mutex
	docs map[string]assembly.Document
	err  error
}

func (w *memWriter) Write(_ context.Context, repo string, doc assembly.Document) (string, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.err != nil {
		return "", w.err
	}
	if w.docs == nil {
		w.docs = make(map[string]assembly.Document)
	}
	w.docs[repo] = doc
	return "mem://" + repo, nil
}

func testPlan() Plan {
	order := assembly.ProcessingOrder{
		{Name: "overview", Description: "What it is", Required: true},
		{Name: "dependencies", Required: true},
		{Name: "monitoring", Required: true},
		{Name: "terraform", Required: false},
	}
	return Plan{
		Order: order,
		Base:  order[:3],
		Versions: investigation.StepVersions{
			{Name: "overview", Version: "1"},
			{Name: "dependencies", Version: "1"},
			{Name: "monitoring", Version: "2"},
			{Name: "terraform", Version: "1"},
		},
		Context: map[string][]string{"monitoring": {"overview", "dependencies"}},
		Prompts: map[string]string{"overview": "version=1\nDescribe it."},
	}
}

func target(name, commit string) Target {
	return Target{Name: name, URL: "https://git.example.com/" + name + ".git",
		State: investigation.RepositoryState{CommitSHA: commit, BranchName: "main"}}
}
