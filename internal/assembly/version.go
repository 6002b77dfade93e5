package assembly

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

const versionHeader = "version="

var (
	ErrEmptyPrompt      = errors.New("prompt content is empty")
	ErrMissingVersion   = errors.New("no version header in prompt")
	ErrEmptyVersion     = errors.New("version header has an empty value")
	ErrMalformedVersion = errors.New("malformed version header")
)

// ExtractVersion returns the version declared on the first line of a prompt,
// which must read exactly "version=<token>". Missing, empty and malformed
// headers are reported as distinct errors; nothing is defaulted here.
func ExtractVersion(prompt string) (string, error) {
	if prompt == "" {
		return "", ErrEmptyPrompt
	}
	first, _, _ := strings.Cut(prompt, "\n")
	first = strings.TrimRight(first, "\r")

	if !strings.HasPrefix(first, versionHeader) {
		if looksLikeVersionHeader(first) {
			return "", fmt.Errorf("%w: %q", ErrMalformedVersion, first)
		}
		return "", ErrMissingVersion
	}
	token := strings.TrimSpace(strings.TrimPrefix(first, versionHeader))
	if token == "" {
		return "", ErrEmptyVersion
	}
	if strings.ContainsAny(token, "= \t") {
		return "", fmt.Errorf("%w: %q", ErrMalformedVersion, first)
	}
	return token, nil
}

// looksLikeVersionHeader catches near misses such as "version: 2",
// "Version=2" or "version = 2".
func looksLikeVersionHeader(line string) bool {
	l := strings.ToLower(strings.TrimSpace(line))
	if !strings.HasPrefix(l, "version") {
		return false
	}
	rest := strings.TrimSpace(strings.TrimPrefix(l, "version"))
	return strings.HasPrefix(rest, "=") || strings.HasPrefix(rest, ":")
}

// ExtractVersions runs ExtractVersion over every prompt. The first failure,
// in name order, is returned with the prompt name attached.
func ExtractVersions(prompts map[string]string) (map[string]string, error) {
	names := make([]string, 0, len(prompts))
	for name := range prompts {
		names = append(names, name)
	}
	sort.Strings(names)

	out := make(map[string]string, len(prompts))
	for _, name := range names {
		v, err := ExtractVersion(prompts[name])
		if err != nil {
			return nil, fmt.Errorf("prompt %s: %w", name, err)
		}
		out[name] = v
	}
	return out, nil
}
