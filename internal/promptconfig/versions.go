package promptconfig

import (
	"fmt"
	"os"

	"repoinvest/internal/assembly"
	"repoinvest/internal/investigation"
)

// ReadPrompt returns the prompt text for step.
func (c *Config) ReadPrompt(step string) (string, error) {
	path, ok := c.PromptPath(step)
	if !ok {
		return "", fmt.Errorf("unknown step %s", step)
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("read prompt %s: %w", step, err)
	}
	return string(b), nil
}

// Prompts reads every prompt in execution order.
func (c *Config) Prompts() (map[string]string, error) {
	out := make(map[string]string, len(c.Order))
	for _, s := range c.Order {
		text, err := c.ReadPrompt(s.Name)
		if err != nil {
			return nil, err
		}
		out[s.Name] = text
	}
	return out, nil
}

// StepVersions extracts the version header of every prompt, in execution
// order. Headers are parsed strictly; the error names the failing step.
func (c *Config) StepVersions() (investigation.StepVersions, error) {
	out := make(investigation.StepVersions, 0, len(c.Order))
	for _, s := range c.Order {
		text, err := c.ReadPrompt(s.Name)
		if err != nil {
			return nil, err
		}
		v, err := assembly.ExtractVersion(text)
		if err != nil {
			return nil, fmt.Errorf("prompt %s: %w", s.Name, err)
		}
		out = append(out, investigation.StepVersion{Name: s.Name, Version: v})
	}
	return out, nil
}

// LoadStepVersions resolves the config at path and extracts its step versions.
func LoadStepVersions(path string) (*Config, investigation.StepVersions, error) {
	cfg, err := LoadFromPath(path)
	if err != nil {
		return nil, nil, err
	}
	versions, err := cfg.StepVersions()
	if err != nil {
		return nil, nil, err
	}
	return cfg, versions, nil
}
