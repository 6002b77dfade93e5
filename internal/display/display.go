// Package display provides human-readable names for machine codes.
//
// Rule: code is for machines, words are for humans.
// Use these functions in CLI output, markdown reports, logs, and docs.
// Keep raw codes for JSON fields, map keys, and equality comparisons.
package display

import "repoinvest/internal/investigation"

// --- Decision rules ---

var rules = map[string]string{
	investigation.RuleStorage:      "Storage Unavailable",
	investigation.RuleMissing:      "First Investigation",
	investigation.RuleCommit:       "New Commits",
	investigation.RuleBranch:       "Branch Changed",
	investigation.RuleStepVersions: "Prompts Changed",
	investigation.RuleUnchanged:    "No Changes",
}

// Rule returns the human-readable name for a decision rule code.
// Unknown codes are returned as-is.
func Rule(code string) string {
	if name, ok := rules[code]; ok {
		return name
	}
	return code
}

// RuleWithCode returns "New Commits (commit)" format.
func RuleWithCode(code string) string {
	if name, ok := rules[code]; ok {
		return name + " (" + code + ")"
	}
	return code
}

// --- Section provenance ---

// Provenance names where an assembled section came from.
func Provenance(cached, outdated bool) string {
	switch {
	case outdated:
		return "Cache (outdated)"
	case cached:
		return "Cache"
	default:
		return "Fresh"
	}
}

// --- Save outcomes ---

var statuses = map[string]string{
	investigation.StatusSuccess: "Saved",
	investigation.StatusError:   "Not Saved",
}

// SaveStatus returns the human-readable name for a save outcome status.
func SaveStatus(code string) string {
	if name, ok := statuses[code]; ok {
		return name
	}
	return code
}
