// Package cachekey derives the storage keys used for per-step results and
// ancillary cached blobs.
//
// A step key has the form:
//
//	<repo>#<step>#<commit>#v<version>
//
// The '#' delimiter is reserved; components containing it are rejected so
// that two distinct tuples can never render to the same key.
package cachekey

import (
	"errors"
	"fmt"
	"strings"
)

// Delimiter separates key components.
const Delimiter = "#"

// versionPrefix is prepended to the step version inside a key.
const versionPrefix = "v"

// dependenciesStep is the pseudo step name used for dependency blobs.
const dependenciesStep = "dependencies"

var (
	// ErrReservedDelimiter is returned when a component contains '#'.
	ErrReservedDelimiter = errors.New("component contains reserved delimiter '#'")
	// ErrEmptyComponent is returned when a required component is blank.
	ErrEmptyComponent = errors.New("component is empty")
	// ErrMalformedKey is returned by Parse for strings that are not step keys.
	ErrMalformedKey = errors.New("malformed step key")
)

// StepKey is the (repository, step, commit, step-version) 4-tuple.
type StepKey struct {
	Repo    string
	Step    string
	Commit  string
	Version string
}

// Validate checks every component is non-empty and free of the delimiter.
func (k StepKey) Validate() error {
	parts := []struct {
		name, value string
	}{
		{"repo", k.Repo},
		{"step", k.Step},
		{"commit", k.Commit},
		{"version", k.Version},
	}
	for _, p := range parts {
		if p.value == "" {
			return fmt.Errorf("%s: %w", p.name, ErrEmptyComponent)
		}
		if strings.Contains(p.value, Delimiter) {
			return fmt.Errorf("%s %q: %w", p.name, p.value, ErrReservedDelimiter)
		}
	}
	return nil
}

// String renders the key. It does not validate; use Build for untrusted input.
func (k StepKey) String() string {
	return strings.Join([]string{k.Repo, k.Step, k.Commit, versionPrefix + k.Version}, Delimiter)
}

// Build validates the tuple and returns its storage key.
func Build(repo, step, commit, version string) (string, error) {
	k := StepKey{Repo: repo, Step: step, Commit: commit, Version: version}
	if err := k.Validate(); err != nil {
		return "", fmt.Errorf("build step key: %w", err)
	}
	return k.String(), nil
}

// Parse splits a step key back into its tuple.
func Parse(key string) (StepKey, error) {
	parts := strings.Split(key, Delimiter)
	if len(parts) != 4 {
		return StepKey{}, fmt.Errorf("%w: want 4 components, got %d in %q", ErrMalformedKey, len(parts), key)
	}
	if !strings.HasPrefix(parts[3], versionPrefix) {
		return StepKey{}, fmt.Errorf("%w: version component %q lacks %q prefix", ErrMalformedKey, parts[3], versionPrefix)
	}
	k := StepKey{
		Repo:    parts[0],
		Step:    parts[1],
		Commit:  parts[2],
		Version: strings.TrimPrefix(parts[3], versionPrefix),
	}
	if err := k.Validate(); err != nil {
		return StepKey{}, fmt.Errorf("%w: %v", ErrMalformedKey, err)
	}
	return k, nil
}

// DependenciesKey returns the blob key for a repository's dependency list at
// a commit.
func DependenciesKey(repo, commit string) (string, error) {
	for name, v := range map[string]string{"repo": repo, "commit": commit} {
		if v == "" {
			return "", fmt.Errorf("build dependencies key: %s: %w", name, ErrEmptyComponent)
		}
		if strings.Contains(v, Delimiter) {
			return "", fmt.Errorf("build dependencies key: %s %q: %w", name, v, ErrReservedDelimiter)
		}
	}
	return strings.Join([]string{repo, dependenciesStep, commit}, Delimiter), nil
}

// ShortSHA truncates a commit SHA to 8 characters for display.
func ShortSHA(sha string) string {
	if len(sha) <= 8 {
		return sha
	}
	return sha[:8]
}
