// Package mcp exposes the investigation engine and report assembly as MCP
// tools over stdio, so an agent can decide, reuse cached step output and
// assemble reports without shelling out to the CLI.
package mcp

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	sdkmcp "github.com/modelcontextprotocol/go-sdk/mcp"

	"repoinvest/internal/assembly"
	"repoinvest/internal/investigation"
	"repoinvest/internal/logging"
)

// Server wraps the MCP SDK server around an Engine and an Assembler.
type Server struct {
	MCPServer *sdkmcp.Server

	engine    *investigation.Engine
	assembler *assembly.Assembler
	log       *slog.Logger
}

// NewServer creates an MCP server with investigation and assembly tools.
func NewServer(engine *investigation.Engine, assembler *assembly.Assembler) *Server {
	s := &Server{
		engine:    engine,
		assembler: assembler,
		log:       logging.New("mcp"),
	}
	s.MCPServer = sdkmcp.NewServer(
		&sdkmcp.Implementation{Name: "repoinvest", Version: "dev"},
		nil,
	)
	s.registerTools()
	return s
}

func (s *Server) registerTools() {
	sdkmcp.AddTool(s.MCPServer, &sdkmcp.Tool{
		Name:        "check_investigation",
		Description: "Decide whether a repository needs a new investigation given its commit, branch and current prompt versions.",
	}, s.handleCheckInvestigation)

	sdkmcp.AddTool(s.MCPServer, &sdkmcp.Tool{
		Name:        "check_step_cache",
		Description: "Look up the cached output of one analysis step at a commit and prompt version.",
	}, s.handleCheckStepCache)

	sdkmcp.AddTool(s.MCPServer, &sdkmcp.Tool{
		Name:        "save_step_result",
		Description: "Cache the output of one analysis step at a commit and prompt version.",
	}, s.handleSaveStepResult)

	sdkmcp.AddTool(s.MCPServer, &sdkmcp.Tool{
		Name:        "save_investigation",
		Description: "Record a completed investigation so unchanged repositories are skipped next time.",
	}, s.handleSaveInvestigation)

	sdkmcp.AddTool(s.MCPServer, &sdkmcp.Tool{
		Name:        "extract_version",
		Description: "Extract the version from a prompt whose first line is version=<value>.",
	}, s.handleExtractVersion)

	sdkmcp.AddTool(s.MCPServer, &sdkmcp.Tool{
		Name:        "assemble_report",
		Description: "Merge fresh and cached step outputs in processing order and render the report. Fails when the hard-gate section is missing.",
	}, s.handleAssembleReport)
}

// --- Tool input/output types ---

type checkInvestigationInput struct {
	Repo         string            `json:"repo" jsonschema:"repository name"`
	Commit       string            `json:"commit" jsonschema:"current commit SHA"`
	Branch       string            `json:"branch" jsonschema:"current branch name"`
	StepVersions map[string]string `json:"step_versions,omitempty" jsonschema:"current prompt version per step; omit to skip version checks"`
}

type checkInvestigationOutput struct {
	NeedsInvestigation  bool   `json:"needs_investigation"`
	Reason              string `json:"reason"`
	Rule                string `json:"rule"`
	LatestCommit        string `json:"latest_commit"`
	BranchName          string `json:"branch_name"`
	VersionCheckSkipped bool   `json:"version_check_skipped,omitempty"`
	LastInvestigatedAt  string `json:"last_investigated_at,omitempty"`
}

type checkStepCacheInput struct {
	Repo    string `json:"repo" jsonschema:"repository name"`
	Step    string `json:"step" jsonschema:"analysis step name"`
	Commit  string `json:"commit" jsonschema:"commit SHA"`
	Version string `json:"version,omitempty" jsonschema:"prompt version (default 1)"`
}

type checkStepCacheOutput struct {
	NeedsAnalysis bool   `json:"needs_analysis"`
	Reason        string `json:"reason"`
	Key           string `json:"key,omitempty"`
	Version       string `json:"version"`
	CachedContent string `json:"cached_content,omitempty"`
	CachedAt      string `json:"cached_at,omitempty"`
}

type saveStepResultInput struct {
	Repo    string `json:"repo" jsonschema:"repository name"`
	Step    string `json:"step" jsonschema:"analysis step name"`
	Commit  string `json:"commit" jsonschema:"commit SHA"`
	Version string `json:"version,omitempty" jsonschema:"prompt version (default 1)"`
	Content string `json:"content" jsonschema:"step output to cache"`
	TTLDays int    `json:"ttl_days,omitempty" jsonschema:"retention in days (default 90)"`
}

type saveOutcomeOutput struct {
	Status    string `json:"status"`
	Message   string `json:"message"`
	Key       string `json:"key,omitempty"`
	Timestamp string `json:"timestamp,omitempty"`
}

type saveInvestigationInput struct {
	Repo          string            `json:"repo" jsonschema:"repository name"`
	RepositoryURL string            `json:"repository_url,omitempty" jsonschema:"remote URL"`
	Commit        string            `json:"commit" jsonschema:"investigated commit SHA"`
	Branch        string            `json:"branch" jsonschema:"investigated branch"`
	StepVersions  map[string]string `json:"step_versions,omitempty" jsonschema:"prompt version per step used by the run"`
	Summary       map[string]any    `json:"summary,omitempty" jsonschema:"free-form analysis summary"`
	TTLDays       int               `json:"ttl_days,omitempty" jsonschema:"retention in days (default 90)"`
}

type extractVersionInput struct {
	Prompt string `json:"prompt" jsonschema:"prompt text"`
}

type extractVersionOutput struct {
	Version string `json:"version"`
}

type stepInput struct {
	Name        string `json:"name" jsonschema:"step name"`
	Description string `json:"description,omitempty" jsonschema:"section description"`
	Required    *bool  `json:"required,omitempty" jsonschema:"whether the step must produce output (default true)"`
}

type cachedInput struct {
	Content string `json:"content" jsonschema:"cached step output"`
	Version string `json:"version,omitempty" jsonschema:"version the output was produced at"`
}

type assembleReportInput struct {
	Order     []stepInput            `json:"order" jsonschema:"processing order"`
	Mandatory []string               `json:"mandatory,omitempty" jsonschema:"base section names; defaults to the required steps"`
	Fresh     map[string]string      `json:"fresh,omitempty" jsonschema:"output produced in this run, by step"`
	Cached    map[string]cachedInput `json:"cached,omitempty" jsonschema:"stored output, by step"`
	Versions  map[string]string      `json:"versions,omitempty" jsonschema:"current prompt version per step"`
}

type assembleReportOutput struct {
	Text             string   `json:"text"`
	Sections         []string `json:"sections"`
	CachedCount      int      `json:"cached_count"`
	FreshCount       int      `json:"fresh_count"`
	Outdated         []string `json:"outdated,omitempty"`
	MissingRequired  []string `json:"missing_required,omitempty"`
	MissingMandatory []string `json:"missing_mandatory,omitempty"`
	Warnings         []string `json:"warnings,omitempty"`
}

// --- Tool handlers ---

func (s *Server) handleCheckInvestigation(ctx context.Context, _ *sdkmcp.CallToolRequest, input checkInvestigationInput) (*sdkmcp.CallToolResult, checkInvestigationOutput, error) {
	state := investigation.RepositoryState{CommitSHA: input.Commit, BranchName: input.Branch}
	if err := state.Validate(); err != nil {
		return nil, checkInvestigationOutput{}, err
	}
	d := s.engine.Decide(ctx, input.Repo, state, investigation.StepVersionsFromMap(input.StepVersions))
	out := checkInvestigationOutput{
		NeedsInvestigation:  d.NeedsInvestigation,
		Reason:              d.Reason,
		Rule:                d.Rule,
		LatestCommit:        d.LatestCommit,
		BranchName:          d.BranchName,
		VersionCheckSkipped: d.VersionCheckSkipped,
	}
	if d.Metadata != nil {
		out.LastInvestigatedAt = formatTime(d.Metadata.AnalysisTime())
	}
	s.log.Info("check_investigation", "repo", input.Repo, "rule", d.Rule)
	return nil, out, nil
}

func (s *Server) handleCheckStepCache(ctx context.Context, _ *sdkmcp.CallToolRequest, input checkStepCacheInput) (*sdkmcp.CallToolResult, checkStepCacheOutput, error) {
	r := s.engine.CheckStepCache(ctx, input.Repo, input.Step, input.Commit, defaultVersion(input.Version))
	return nil, checkStepCacheOutput{
		NeedsAnalysis: r.NeedsAnalysis,
		Reason:        r.Reason,
		Key:           r.Key,
		Version:       r.Version,
		CachedContent: r.CachedContent,
		CachedAt:      formatTime(r.CachedAt),
	}, nil
}

func (s *Server) handleSaveStepResult(ctx context.Context, _ *sdkmcp.CallToolRequest, input saveStepResultInput) (*sdkmcp.CallToolResult, saveOutcomeOutput, error) {
	if input.Content == "" {
		return nil, saveOutcomeOutput{}, fmt.Errorf("content is required")
	}
	o := s.engine.SaveStepResult(ctx, input.Repo, input.Step, input.Commit, input.Content, defaultVersion(input.Version), input.TTLDays)
	return outcome(o)
}

func (s *Server) handleSaveInvestigation(ctx context.Context, _ *sdkmcp.CallToolRequest, input saveInvestigationInput) (*sdkmcp.CallToolResult, saveOutcomeOutput, error) {
	state := investigation.RepositoryState{CommitSHA: input.Commit, BranchName: input.Branch}
	if err := state.Validate(); err != nil {
		return nil, saveOutcomeOutput{}, err
	}
	var versions investigation.StepVersions
	if input.StepVersions != nil {
		versions = investigation.StepVersionsFromMap(input.StepVersions)
	}
	o := s.engine.SaveInvestigationMetadata(ctx, investigation.MetadataRequest{
		Repo:          input.Repo,
		RepositoryURL: input.RepositoryURL,
		Commit:        input.Commit,
		Branch:        input.Branch,
		Summary:       input.Summary,
		StepVersions:  versions,
		TTLDays:       input.TTLDays,
	})
	return outcome(o)
}

func (s *Server) handleExtractVersion(_ context.Context, _ *sdkmcp.CallToolRequest, input extractVersionInput) (*sdkmcp.CallToolResult, extractVersionOutput, error) {
	v, err := assembly.ExtractVersion(input.Prompt)
	if err != nil {
		return nil, extractVersionOutput{}, err
	}
	return nil, extractVersionOutput{Version: v}, nil
}

func (s *Server) handleAssembleReport(ctx context.Context, _ *sdkmcp.CallToolRequest, input assembleReportInput) (*sdkmcp.CallToolResult, assembleReportOutput, error) {
	if len(input.Order) == 0 {
		return nil, assembleReportOutput{}, fmt.Errorf("order is required")
	}
	order := make(assembly.ProcessingOrder, 0, len(input.Order))
	for _, st := range input.Order {
		required := true
		if st.Required != nil {
			required = *st.Required
		}
		order = append(order, assembly.Step{Name: st.Name, Description: st.Description, Required: required})
	}
	cached := make(map[string]assembly.CachedResult, len(input.Cached))
	for name, c := range input.Cached {
		cached[name] = assembly.CachedResult{Content: c.Content, Version: c.Version}
	}
	mandatory := input.Mandatory
	if mandatory == nil {
		mandatory = order.RequiredNames()
	}

	rep, err := s.assembler.Combine(ctx, assembly.CombineInput{
		Order:     order,
		Fresh:     input.Fresh,
		Cached:    cached,
		Versions:  input.Versions,
		Mandatory: mandatory,
	})
	if err != nil {
		if errors.Is(err, assembly.ErrHardGateMissing) {
			return nil, assembleReportOutput{}, fmt.Errorf("assemble_report: %w (missing: %v)", err, rep.MissingMandatory)
		}
		return nil, assembleReportOutput{}, fmt.Errorf("assemble_report: %w", err)
	}
	doc := s.assembler.Render(rep.Sections, mandatory)
	return nil, assembleReportOutput{
		Text:             doc.Text,
		Sections:         rep.Names(),
		CachedCount:      rep.CachedCount,
		FreshCount:       rep.FreshCount,
		Outdated:         rep.Outdated,
		MissingRequired:  rep.MissingRequired,
		MissingMandatory: rep.MissingMandatory,
		Warnings:         doc.Warnings,
	}, nil
}

func outcome(o investigation.SaveOutcome) (*sdkmcp.CallToolResult, saveOutcomeOutput, error) {
	out := saveOutcomeOutput{
		Status:    o.Status,
		Message:   o.Message,
		Key:       o.Key,
		Timestamp: formatTime(o.Timestamp),
	}
	return nil, out, nil
}

func defaultVersion(v string) string {
	if v == "" {
		return investigation.BootstrapVersion
	}
	return v
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}
