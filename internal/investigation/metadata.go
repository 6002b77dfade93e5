package investigation

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"repoinvest/internal/store"
)

// ErrInvalidMetadata wraps every schema failure reported by ParseMetadata.
var ErrInvalidMetadata = errors.New("invalid investigation metadata")

// PromptMetadata records which step versions an investigation ran with.
type PromptMetadata struct {
	Count    int               `json:"count"`
	Versions map[string]string `json:"versions"`
}

// Validate checks the count is non-negative and every version is non-blank.
func (p *PromptMetadata) Validate() error {
	if p.Count < 0 {
		return fmt.Errorf("%w: prompt count must be >= 0, got %d", ErrInvalidMetadata, p.Count)
	}
	for name, v := range p.Versions {
		if strings.TrimSpace(v) == "" {
			return fmt.Errorf("%w: version for prompt '%s' must be a non-empty string", ErrInvalidMetadata, name)
		}
	}
	return nil
}

// InvestigationMetadata is the typed form of a stored investigation record.
type InvestigationMetadata struct {
	LatestCommit      string          `json:"latest_commit,omitempty"` // empty: not recorded
	BranchName        string          `json:"branch_name"`
	AnalysisTimestamp float64         `json:"analysis_timestamp"`
	RepositoryName    string          `json:"repository_name,omitempty"`
	RepositoryURL     string          `json:"repository_url,omitempty"`
	AnalysisType      string          `json:"analysis_type,omitempty"`
	PromptMetadata    *PromptMetadata `json:"prompt_metadata,omitempty"`
	AnalysisData      map[string]any  `json:"analysis_data,omitempty"`
}

// Validate applies the record's schema rules.
func (m *InvestigationMetadata) Validate() error {
	if strings.TrimSpace(m.BranchName) == "" {
		return fmt.Errorf("%w: branch name must be a non-empty string", ErrInvalidMetadata)
	}
	if m.AnalysisTimestamp < 0 {
		return fmt.Errorf("%w: analysis timestamp must be non-negative", ErrInvalidMetadata)
	}
	if m.PromptMetadata != nil {
		if err := m.PromptMetadata.Validate(); err != nil {
			return err
		}
	}
	return nil
}

// AnalysisTime converts the Unix timestamp to a UTC time.
func (m *InvestigationMetadata) AnalysisTime() time.Time {
	return unixFloatToTime(m.AnalysisTimestamp)
}

// ParseMetadata decodes and validates a stored record. Any failure is
// reported as ErrInvalidMetadata; callers may still use the raw document.
func ParseMetadata(doc store.Document) (*InvestigationMetadata, error) {
	if doc == nil {
		return nil, fmt.Errorf("%w: empty record", ErrInvalidMetadata)
	}
	if _, ok := doc[store.FieldBranchName]; !ok {
		return nil, fmt.Errorf("%w: missing %s", ErrInvalidMetadata, store.FieldBranchName)
	}
	if _, ok := doc[store.FieldAnalysisTimestamp]; !ok {
		return nil, fmt.Errorf("%w: missing %s", ErrInvalidMetadata, store.FieldAnalysisTimestamp)
	}
	if c, ok := doc[store.FieldLatestCommit]; ok && c != nil {
		s, isString := c.(string)
		if !isString || strings.TrimSpace(s) == "" {
			return nil, fmt.Errorf("%w: commit SHA must be a non-empty string if provided", ErrInvalidMetadata)
		}
	}
	b, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidMetadata, err)
	}
	var m InvestigationMetadata
	if err := json.Unmarshal(b, &m); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidMetadata, err)
	}
	m.BranchName = strings.TrimSpace(m.BranchName)
	m.LatestCommit = strings.TrimSpace(m.LatestCommit)
	if err := m.Validate(); err != nil {
		return nil, err
	}
	return &m, nil
}

// snapshot is what the decision rules compare against. It is filled either
// from a validated record or, when validation failed, leniently from the raw
// document.
type snapshot struct {
	commit    string
	branch    string
	timestamp float64
	prompt    *PromptMetadata // nil: no prompt metadata recorded
}

func snapshotFromMetadata(m *InvestigationMetadata) snapshot {
	return snapshot{
		commit:    m.LatestCommit,
		branch:    m.BranchName,
		timestamp: m.AnalysisTimestamp,
		prompt:    m.PromptMetadata,
	}
}

func snapshotFromRaw(doc store.Document) snapshot {
	s := snapshot{
		commit:    rawString(doc[store.FieldLatestCommit]),
		branch:    rawString(doc[store.FieldBranchName]),
		timestamp: rawFloat(doc[store.FieldAnalysisTimestamp]),
	}
	if pm, ok := doc[store.FieldPromptMetadata].(map[string]any); ok && len(pm) > 0 {
		p := &PromptMetadata{
			Count:    int(rawFloat(pm["count"])),
			Versions: map[string]string{},
		}
		if vs, ok := pm["versions"].(map[string]any); ok {
			for name, v := range vs {
				p.Versions[name] = rawString(v)
			}
		}
		s.prompt = p
	}
	return s
}

// hasVersions reports whether a non-empty step-version map was recorded.
func (s snapshot) hasVersions() bool {
	return s.prompt != nil && len(s.prompt.Versions) > 0
}

// recordedNames returns the recorded step names, sorted for deterministic
// rule evaluation.
func (s snapshot) recordedNames() []string {
	if s.prompt == nil {
		return nil
	}
	names := make([]string, 0, len(s.prompt.Versions))
	for name := range s.prompt.Versions {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func rawString(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	default:
		return fmt.Sprint(t)
	}
}

func rawFloat(v any) float64 {
	switch t := v.(type) {
	case float64:
		return t
	case int:
		return float64(t)
	case int64:
		return float64(t)
	case json.Number:
		f, _ := t.Float64()
		return f
	default:
		return 0
	}
}

func unixFloatToTime(ts float64) time.Time {
	sec := int64(ts)
	nsec := int64((ts - float64(sec)) * float64(time.Second))
	return time.Unix(sec, nsec).UTC()
}
