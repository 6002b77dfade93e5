package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// DefaultDBPath is the default relative path for the SQLite DB.
// Open() creates the parent dir (e.g. .repoinvest) if it does not exist.
const DefaultDBPath = ".repoinvest/repoinvest.db"

// DefaultBadgerDir is the default directory for the Badger backend.
const DefaultBadgerDir = ".repoinvest/badger"

// DefaultAnalysisType is recorded when MetadataInput.AnalysisType is empty.
const DefaultAnalysisType = "investigation"

// Document field names for investigation metadata records.
const (
	FieldRepositoryName    = "repository_name"
	FieldRepositoryURL     = "repository_url"
	FieldLatestCommit      = "latest_commit"
	FieldBranchName        = "branch_name"
	FieldAnalysisType      = "analysis_type"
	FieldAnalysisTimestamp = "analysis_timestamp"
	FieldAnalysisData      = "analysis_data"
	FieldPromptMetadata    = "prompt_metadata"
)

// ErrClosed is returned by operations on a closed store.
var ErrClosed = errors.New("store is closed")

// Document is an investigation metadata record as persisted: a decoded JSON
// object. Schema validation happens in the investigation package, so
// malformed records can still be inspected.
type Document map[string]any

// MetadataInput is what callers hand to SaveInvestigationMetadata.
type MetadataInput struct {
	RepositoryName string
	RepositoryURL  string
	LatestCommit   string
	BranchName     string
	AnalysisType   string
	AnalysisData   map[string]any
	TTL            time.Duration
}

// StepRecord is one cached step result.
type StepRecord struct {
	Key       string    `json:"reference_key"`
	StepName  string    `json:"step_name,omitempty"`
	Content   string    `json:"result_content"`
	CreatedAt time.Time `json:"timestamp"`
	ExpiresAt time.Time `json:"expires_at,omitempty"` // zero: never
}

// BlobRecord is the bookkeeping returned after saving a temporary blob.
type BlobRecord struct {
	Key       string    `json:"reference_key"`
	CreatedAt time.Time `json:"timestamp"`
	ExpiresAt time.Time `json:"expires_at,omitempty"`
}

// Store is the storage port consumed by the decision and assembly engines.
// Get methods return a nil value and nil error when nothing is stored (or
// the entry has expired). Implementations: SqlStore, BadgerStore, MemStore.
type Store interface {
	// GetLatestInvestigationMetadata returns the most recent record for repo.
	GetLatestInvestigationMetadata(ctx context.Context, repo string) (Document, error)
	// SaveInvestigationMetadata writes a new record; the next Get returns it.
	SaveInvestigationMetadata(ctx context.Context, in MetadataInput) (Document, error)

	// GetStepResult returns the cached content stored under key.
	GetStepResult(ctx context.Context, key string) (*StepRecord, error)
	// SaveStepResult stores content under key, replacing any previous value.
	SaveStepResult(ctx context.Context, key, content, stepName string, ttl time.Duration) (*StepRecord, error)

	// GetTemporaryBlob returns the JSON payload stored under key.
	GetTemporaryBlob(ctx context.Context, key string) (json.RawMessage, error)
	// SaveTemporaryBlob JSON-encodes data and stores it under key.
	SaveTemporaryBlob(ctx context.Context, key string, data any, ttl time.Duration) (*BlobRecord, error)

	Close() error
}

// NewDocument builds the persisted form of a metadata record. A
// prompt_metadata entry inside AnalysisData is lifted to the top level, where
// the decision engine looks for it.
func NewDocument(in MetadataInput, now time.Time) Document {
	analysisType := in.AnalysisType
	if analysisType == "" {
		analysisType = DefaultAnalysisType
	}
	data := make(map[string]any, len(in.AnalysisData))
	for k, v := range in.AnalysisData {
		data[k] = v
	}
	doc := Document{
		FieldRepositoryName:    in.RepositoryName,
		FieldBranchName:        in.BranchName,
		FieldAnalysisType:      analysisType,
		FieldAnalysisTimestamp: float64(now.UnixNano()) / float64(time.Second),
		FieldAnalysisData:      data,
	}
	if in.LatestCommit != "" {
		doc[FieldLatestCommit] = in.LatestCommit
	}
	if in.RepositoryURL != "" {
		doc[FieldRepositoryURL] = in.RepositoryURL
	}
	if pm, ok := data[FieldPromptMetadata]; ok && pm != nil {
		doc[FieldPromptMetadata] = pm
	}
	return doc
}

// encodeDocument round-trips through JSON so every backend hands back the
// same shapes (numbers as float64, nested objects as map[string]any).
func encodeDocument(doc Document) ([]byte, error) {
	b, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("encode metadata document: %w", err)
	}
	return b, nil
}

func decodeDocument(b []byte) (Document, error) {
	var doc Document
	if err := json.Unmarshal(b, &doc); err != nil {
		return nil, fmt.Errorf("decode metadata document: %w", err)
	}
	return doc, nil
}

// expiry returns the absolute expiry for ttl, or the zero time for ttl <= 0.
func expiry(now time.Time, ttl time.Duration) time.Time {
	if ttl <= 0 {
		return time.Time{}
	}
	return now.Add(ttl)
}

// expired reports whether an entry with the given expiry is gone at now.
func expired(expiresAt, now time.Time) bool {
	return !expiresAt.IsZero() && !now.Before(expiresAt)
}
