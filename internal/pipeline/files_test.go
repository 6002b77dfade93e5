package pipeline

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"

	"repoinvest/internal/assembly"
	"repoinvest/internal/promptconfig"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}

func TestFileProducer(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "svc", "overview.md"), "\nA CLI.\n\n")
	writeFile(t, filepath.Join(dir, "svc", "monitoring.md"), "   \n")
	writeFile(t, filepath.Join(dir, "svc", "dependencies.json"), `{"go":["cobra"]}`)
	p := FileProducer{Dir: dir}
	ctx := context.Background()

	got, err := p.Produce(ctx, StepRequest{Repo: "svc", Step: assembly.Step{Name: "overview"}})
	if err != nil {
		t.Fatalf("Produce: %v", err)
	}
	if got != "A CLI." {
		t.Errorf("content = %q", got)
	}
	if _, err := p.Produce(ctx, StepRequest{Repo: "svc", Step: assembly.Step{Name: "monitoring"}}); err == nil {
		t.Error("blank result accepted")
	}
	if _, err := p.Produce(ctx, StepRequest{Repo: "svc", Step: assembly.Step{Name: "absent"}}); err == nil {
		t.Error("missing result accepted")
	}

	deps, err := p.Dependencies(ctx, "svc")
	if err != nil {
		t.Fatalf("Dependencies: %v", err)
	}
	if diff := cmp.Diff(map[string]any{"go": []any{"cobra"}}, deps); diff != "" {
		t.Errorf("dependencies mismatch (-want +got):\n%s", diff)
	}
	if deps, err := p.Dependencies(ctx, "other"); err != nil || deps != nil {
		t.Errorf("missing listing = %v, %v", deps, err)
	}
}

func TestFileProducer_Results(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "svc", "overview.md"), "A CLI.")
	order := assembly.ProcessingOrder{{Name: "overview"}, {Name: "monitoring"}}

	got, err := FileProducer{Dir: dir}.Results(context.Background(), "svc", order)
	if err != nil {
		t.Fatalf("Results: %v", err)
	}
	if diff := cmp.Diff(map[string]string{"overview": "A CLI."}, got); diff != "" {
		t.Errorf("results mismatch (-want +got):\n%s", diff)
	}

	writeFile(t, filepath.Join(dir, "svc", "monitoring.md"), "")
	if _, err := (FileProducer{Dir: dir}).Results(context.Background(), "svc", order); err == nil {
		t.Error("blank result accepted")
	}
}

func TestDirWriter(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "reports")
	path, err := DirWriter{Dir: dir}.Write(context.Background(), "svc", assembly.Document{Text: "# overview\n\nA CLI."})
	if err != nil {
		t.Fatalf("Write: %v", err)
	}
	if path != filepath.Join(dir, "svc.md") {
		t.Errorf("path = %q", path)
	}
	b, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if string(b) != "# overview\n\nA CLI.\n" {
		t.Errorf("written = %q", b)
	}
}

func TestPlanFromConfig(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "prompts.yaml"), `processing_order:
  - name: overview
  - name: monitoring
    context: [overview]
`)
	writeFile(t, filepath.Join(dir, "overview.md"), "version=2\nDescribe it.")
	writeFile(t, filepath.Join(dir, "monitoring.md"), "version=1\nDescribe monitoring.")

	cfg, err := promptconfig.LoadFromPath(dir)
	if err != nil {
		t.Fatalf("LoadFromPath: %v", err)
	}
	plan, err := PlanFromConfig(cfg)
	if err != nil {
		t.Fatalf("PlanFromConfig: %v", err)
	}
	if diff := cmp.Diff(map[string]string{"overview": "2", "monitoring": "1"}, plan.Versions.Map()); diff != "" {
		t.Errorf("versions mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff(map[string][]string{"monitoring": {"overview"}}, plan.Context); diff != "" {
		t.Errorf("context mismatch (-want +got):\n%s", diff)
	}
	if got := plan.base().Names(); len(got) != 2 {
		t.Errorf("base = %v", got)
	}

	writeFile(t, filepath.Join(dir, "overview.md"), "Describe it.")
	if _, err := PlanFromConfig(cfg); err == nil {
		t.Error("prompt without version header accepted")
	}
}

func TestClampLimit(t *testing.T) {
	tests := []struct{ limit, n, want int }{
		{0, 5, 1},
		{-3, 5, 1},
		{4, 2, 2},
		{3, 10, 3},
		{2, 0, 2},
	}
	for _, tt := range tests {
		if got := clampLimit(tt.limit, tt.n); got != tt.want {
			t.Errorf("clampLimit(%d, %d) = %d, want %d", tt.limit, tt.n, got, tt.want)
		}
	}
}
