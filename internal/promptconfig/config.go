// Package promptconfig loads the processing order of analysis steps and the
// prompts behind them.
//
// A config file lists steps under processing_order. A domain config may
// instead name a base file with extends and append its own steps with
// additional_prompts; the base list then doubles as the set of mandatory
// report sections.
package promptconfig

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"repoinvest/internal/assembly"
)

// ErrDuplicateStep is returned when a composed processing order names a step twice.
var ErrDuplicateStep = errors.New("duplicate step name")

// ErrNestedExtends is returned when a base config itself extends another.
var ErrNestedExtends = errors.New("base config must not extend another config")

// Prompt is one processing-order entry as written in a config file.
type Prompt struct {
	Name        string   `json:"name" yaml:"name"`
	Description string   `json:"description,omitempty" yaml:"description,omitempty"`
	File        string   `json:"file,omitempty" yaml:"file,omitempty"`         // relative to the config file; default <name>.md
	Required    *bool    `json:"required,omitempty" yaml:"required,omitempty"` // default true
	Context     []string `json:"context,omitempty" yaml:"context,omitempty"`   // steps whose output feeds this prompt
}

// File is the raw content of one config file.
type File struct {
	Extends           string   `json:"extends,omitempty" yaml:"extends,omitempty"`
	ProcessingOrder   []Prompt `json:"processing_order,omitempty" yaml:"processing_order,omitempty"`
	AdditionalPrompts []Prompt `json:"additional_prompts,omitempty" yaml:"additional_prompts,omitempty"`
}

// Config is a resolved processing configuration.
type Config struct {
	// Base is the base configuration's order; its names are the mandatory
	// sections.
	Base assembly.ProcessingOrder
	// Order is the execution order: Base followed by any additional prompts.
	Order assembly.ProcessingOrder

	prompts map[string]resolvedPrompt
}

type resolvedPrompt struct {
	path    string
	context []string
}

// PromptPath returns the absolute path of step's prompt file.
func (c *Config) PromptPath(step string) (string, bool) {
	p, ok := c.prompts[step]
	return p.path, ok
}

// ContextDependencies returns the steps step consumes as context.
func (c *Config) ContextDependencies(step string) []string {
	return append([]string(nil), c.prompts[step].context...)
}

// Load parses a config file from bytes. ext is the file extension used as a
// format hint; empty means detect from content.
func Load(data []byte, ext string) (*File, error) {
	ext = strings.ToLower(ext)
	if ext == ".yml" {
		ext = ".yaml"
	}
	if ext == "" {
		if strings.HasPrefix(strings.TrimSpace(string(data)), "{") {
			ext = ".json"
		} else {
			ext = ".yaml"
		}
	}
	var f File
	switch ext {
	case ".json":
		if err := json.Unmarshal(data, &f); err != nil {
			return nil, fmt.Errorf("parse prompts json: %w", err)
		}
	default:
		if err := yaml.Unmarshal(data, &f); err != nil {
			return nil, fmt.Errorf("parse prompts yaml: %w", err)
		}
	}
	return &f, nil
}

func readFile(path string) (*File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read prompts config: %w", err)
	}
	f, err := Load(data, filepath.Ext(path))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return f, nil
}

// LoadFromPath reads and resolves the config at path, following one level of
// extends. A directory path is resolved to prompts.yaml, prompts.yml or
// prompts.json inside it.
func LoadFromPath(path string) (*Config, error) {
	path, err := locate(path)
	if err != nil {
		return nil, err
	}
	f, err := readFile(path)
	if err != nil {
		return nil, err
	}
	dir := filepath.Dir(path)

	cfg := &Config{prompts: make(map[string]resolvedPrompt)}
	if f.Extends == "" {
		if err := cfg.appendPrompts(f.ProcessingOrder, dir, true); err != nil {
			return nil, err
		}
		if err := cfg.appendPrompts(f.AdditionalPrompts, dir, false); err != nil {
			return nil, err
		}
		return cfg, nil
	}

	basePath := filepath.Clean(filepath.Join(dir, f.Extends))
	base, err := readFile(basePath)
	if err != nil {
		return nil, fmt.Errorf("load base config: %w", err)
	}
	if base.Extends != "" {
		return nil, fmt.Errorf("%s: %w", basePath, ErrNestedExtends)
	}
	if err := cfg.appendPrompts(base.ProcessingOrder, filepath.Dir(basePath), true); err != nil {
		return nil, err
	}
	// Steps listed under processing_order in a domain file are treated the
	// same as additional prompts.
	if err := cfg.appendPrompts(f.ProcessingOrder, dir, false); err != nil {
		return nil, err
	}
	if err := cfg.appendPrompts(f.AdditionalPrompts, dir, false); err != nil {
		return nil, err
	}
	return cfg, nil
}

func locate(path string) (string, error) {
	info, err := os.Stat(path)
	if err != nil {
		return "", fmt.Errorf("read prompts config: %w", err)
	}
	if !info.IsDir() {
		return path, nil
	}
	for _, name := range []string{"prompts.yaml", "prompts.yml", "prompts.json"} {
		p := filepath.Join(path, name)
		if _, err := os.Stat(p); err == nil {
			return p, nil
		}
	}
	return "", fmt.Errorf("no prompts.yaml or prompts.json in %s", path)
}

func (c *Config) appendPrompts(prompts []Prompt, dir string, base bool) error {
	for _, p := range prompts {
		name := strings.TrimSpace(p.Name)
		if name == "" {
			return fmt.Errorf("prompt with empty name in %s", dir)
		}
		if _, dup := c.prompts[name]; dup {
			return fmt.Errorf("%w: %s", ErrDuplicateStep, name)
		}
		required := true
		if p.Required != nil {
			required = *p.Required
		}
		step := assembly.Step{Name: name, Description: p.Description, Required: required}
		if base {
			c.Base = append(c.Base, step)
		}
		c.Order = append(c.Order, step)

		file := p.File
		if file == "" {
			file = name + ".md"
		}
		if !filepath.IsAbs(file) {
			file = filepath.Clean(filepath.Join(dir, file))
		}
		c.prompts[name] = resolvedPrompt{path: file, context: append([]string(nil), p.Context...)}
	}
	return nil
}
