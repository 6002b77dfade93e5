// Package investigation decides whether a repository needs a fresh
// multi-step investigation and manages the per-step result cache.
//
// Decide evaluates an ordered chain of rules (commit, branch, step versions)
// against the last recorded investigation; the first rule that fires wins and
// its reason is the only audit trail for the decision. Storage failures always
// fail open toward re-investigation.
package investigation

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"repoinvest/internal/store"
)

// BootstrapVersion is the version a step is assumed to have when nothing was
// recorded for it.
const BootstrapVersion = "1"

// DefaultTTLDays is the retention used for metadata and step results when a
// caller passes a non-positive TTL.
const DefaultTTLDays = 90

// ErrInvalidRepositoryState is returned by RepositoryState.Validate.
var ErrInvalidRepositoryState = errors.New("invalid repository state")

// RepositoryState is the current state of a checked-out repository, produced
// fresh each cycle by the git collaborator.
type RepositoryState struct {
	CommitSHA             string `json:"commit_sha"`
	BranchName            string `json:"branch_name"`
	HasUncommittedChanges bool   `json:"has_uncommitted_changes"`
}

// Validate checks commit and branch are non-blank.
func (s RepositoryState) Validate() error {
	if strings.TrimSpace(s.CommitSHA) == "" {
		return fmt.Errorf("%w: commit SHA must be a non-empty string", ErrInvalidRepositoryState)
	}
	if strings.TrimSpace(s.BranchName) == "" {
		return fmt.Errorf("%w: branch name must be a non-empty string", ErrInvalidRepositoryState)
	}
	return nil
}

// StepVersion pairs a step name with its declared version.
type StepVersion struct {
	Name    string `json:"name" yaml:"name"`
	Version string `json:"version" yaml:"version"`
}

// StepVersions is an ordered step -> version mapping. Order matters: when
// several steps changed, the first one in order names the decision.
type StepVersions []StepVersion

// StepVersionsFromMap builds a StepVersions sorted by step name.
func StepVersionsFromMap(m map[string]string) StepVersions {
	out := make(StepVersions, 0, len(m))
	for name, v := range m {
		out = append(out, StepVersion{Name: name, Version: v})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Lookup returns the version recorded for name.
func (v StepVersions) Lookup(name string) (string, bool) {
	for _, sv := range v {
		if sv.Name == name {
			return sv.Version, true
		}
	}
	return "", false
}

// Map returns a copy of the versions as a map.
func (v StepVersions) Map() map[string]string {
	m := make(map[string]string, len(v))
	for _, sv := range v {
		m[sv.Name] = sv.Version
	}
	return m
}

// Decision is the outcome of Decide. Reason is always non-empty.
type Decision struct {
	NeedsInvestigation bool   `json:"needs_investigation"`
	Reason             string `json:"reason"`
	LatestCommit       string `json:"latest_commit"`
	BranchName         string `json:"branch_name"`

	// LastInvestigation is the prior record as stored, or nil when none
	// existed or it could not be fetched.
	LastInvestigation store.Document `json:"last_investigation,omitempty"`
	// Metadata is the typed view of LastInvestigation; nil when the record
	// was absent or failed validation.
	Metadata *InvestigationMetadata `json:"-"`

	// VersionCheckSkipped is set when no current step versions were given,
	// so version-based staleness detection did not run.
	VersionCheckSkipped bool `json:"version_check_skipped,omitempty"`
	// Rule names the rule that produced the decision ("storage", "missing",
	// "commit", "branch", "step_versions" or "unchanged").
	Rule string `json:"rule"`
}
