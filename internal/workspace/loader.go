package workspace

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// LoadFromPath reads a workspace file (YAML or JSON) and returns the parsed Workspace.
// Format is detected by extension (.yaml/.yml → YAML, .json → JSON) or by content (first non-whitespace char).
// Relative repo paths are resolved against the file's directory.
func LoadFromPath(path string) (*Workspace, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read workspace: %w", err)
	}
	w, err := Load(data, filepath.Ext(path))
	if err != nil {
		return nil, err
	}
	w.resolvePaths(filepath.Dir(path))
	return w, nil
}

// Load parses and validates a workspace from bytes. ext is the file extension (e.g. ".json", ".yaml") for format hint; empty = detect from content.
func Load(data []byte, ext string) (*Workspace, error) {
	ext = strings.ToLower(ext)
	if ext == ".yml" {
		ext = ".yaml"
	}
	if ext == "" {
		// Detect: JSON starts with {, anything else is YAML
		if strings.HasPrefix(strings.TrimSpace(string(data)), "{") {
			ext = ".json"
		} else {
			ext = ".yaml"
		}
	}
	var w Workspace
	if ext == ".json" {
		if err := json.Unmarshal(data, &w); err != nil {
			return nil, fmt.Errorf("parse workspace json: %w", err)
		}
	} else {
		if err := yaml.Unmarshal(data, &w); err != nil {
			return nil, fmt.Errorf("parse workspace yaml: %w", err)
		}
	}
	if err := w.Validate(); err != nil {
		return nil, fmt.Errorf("invalid workspace: %w", err)
	}
	return &w, nil
}
