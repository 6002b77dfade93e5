package workspace

import (
	"fmt"
	"path"
	"path/filepath"
	"strings"
)

// Repo is one repository to investigate: a local checkout, optionally with
// its remote URL and a pinned state.
type Repo struct {
	Name   string `json:"name,omitempty" yaml:"name,omitempty"`
	Path   string `json:"path" yaml:"path"`                         // local checkout (absolute or relative to the workspace file)
	URL    string `json:"url,omitempty" yaml:"url,omitempty"`       // remote git URL, recorded with the investigation
	Branch string `json:"branch,omitempty" yaml:"branch,omitempty"` // pinned branch; read from the checkout when empty
	Commit string `json:"commit,omitempty" yaml:"commit,omitempty"` // pinned commit; read from the checkout when empty
}

// DisplayName returns Name, else the last element of Path or URL without ".git".
func (r Repo) DisplayName() string {
	if r.Name != "" {
		return r.Name
	}
	src := r.Path
	if src == "" {
		src = r.URL
	}
	base := path.Base(filepath.ToSlash(strings.TrimRight(src, "/")))
	return strings.TrimSuffix(base, ".git")
}

// Workspace is the list of repositories to scan.
type Workspace struct {
	Repos []Repo `json:"repos" yaml:"repos"`
}

// Validate checks every repo has a usable, unique name and a source.
func (w *Workspace) Validate() error {
	seen := make(map[string]bool, len(w.Repos))
	for i, r := range w.Repos {
		if r.Path == "" && (r.Commit == "" || r.Branch == "") {
			return fmt.Errorf("repo %d: path is required unless commit and branch are pinned", i)
		}
		name := r.DisplayName()
		if name == "" || name == "." {
			return fmt.Errorf("repo %d: cannot derive a name", i)
		}
		if strings.Contains(name, "#") {
			return fmt.Errorf("repo %s: name must not contain '#'", name)
		}
		if seen[name] {
			return fmt.Errorf("repo %s: duplicate name", name)
		}
		seen[name] = true
	}
	return nil
}

// resolvePaths makes relative repo paths relative to dir.
func (w *Workspace) resolvePaths(dir string) {
	for i := range w.Repos {
		p := w.Repos[i].Path
		if p != "" && !filepath.IsAbs(p) {
			w.Repos[i].Path = filepath.Join(dir, p)
		}
	}
}
