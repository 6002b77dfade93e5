package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"repoinvest/internal/assembly"
)

// FileProducer reads step output written by an external agent from
// <Dir>/<repo>/<step>.md.
type FileProducer struct {
	Dir string
}

// Produce returns the trimmed content of the step's result file. A missing
// or blank file is an error.
func (p FileProducer) Produce(_ context.Context, req StepRequest) (string, error) {
	path := filepath.Join(p.Dir, req.Repo, req.Step.Name+".md")
	b, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("read step result: %w", err)
	}
	content := strings.TrimSpace(string(b))
	if content == "" {
		return "", fmt.Errorf("step result %s is empty", path)
	}
	return content, nil
}

// Dependencies reads <Dir>/<repo>/dependencies.json. A missing file yields
// nil without error.
func (p FileProducer) Dependencies(_ context.Context, repo string) (map[string]any, error) {
	b, err := os.ReadFile(filepath.Join(p.Dir, repo, "dependencies.json"))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read dependencies: %w", err)
	}
	var data map[string]any
	if err := json.Unmarshal(b, &data); err != nil {
		return nil, fmt.Errorf("parse dependencies: %w", err)
	}
	return data, nil
}

// Results reads every step output present for repo, keyed by step name.
// Steps without a result file are absent from the map.
func (p FileProducer) Results(ctx context.Context, repo string, order assembly.ProcessingOrder) (map[string]string, error) {
	out := make(map[string]string, len(order))
	for _, s := range order {
		content, err := p.Produce(ctx, StepRequest{Repo: repo, Step: s})
		if errors.Is(err, fs.ErrNotExist) {
			continue
		}
		if err != nil {
			return nil, err
		}
		out[s.Name] = content
	}
	return out, nil
}

// DirWriter writes rendered reports to <Dir>/<repo>.md.
type DirWriter struct {
	Dir string
}

// Write creates Dir if needed and returns the written path.
func (w DirWriter) Write(_ context.Context, repo string, doc assembly.Document) (string, error) {
	if err := os.MkdirAll(w.Dir, 0o755); err != nil {
		return "", fmt.Errorf("create output dir: %w", err)
	}
	path := filepath.Join(w.Dir, repo+".md")
	if err := os.WriteFile(path, []byte(doc.Text+"\n"), 0o644); err != nil {
		return "", fmt.Errorf("write report: %w", err)
	}
	return path, nil
}
