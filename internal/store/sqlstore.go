package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

// formatTime renders t as an RFC 3339 UTC string.
func formatTime(t time.Time) string { return t.UTC().Format(time.RFC3339Nano) }

// parseTime is the inverse of formatTime; unparsable values yield zero time.
func parseTime(s string) time.Time {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}
	}
	return t
}

// unixOrZero converts an expiry to Unix seconds, keeping 0 for "never".
func unixOrZero(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.Unix()
}

func fromUnixOrZero(sec int64) time.Time {
	if sec == 0 {
		return time.Time{}
	}
	return time.Unix(sec, 0).UTC()
}

// SqlStore implements Store with SQLite.
type SqlStore struct {
	db  *sql.DB
	now func() time.Time
}

// Open opens or creates a SQLite DB at path and runs migrations.
// Creates the parent directory (e.g. .repoinvest) if it does not exist.
func Open(path string) (*SqlStore, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create store dir: %w", err)
	}
	return openDSN(path)
}

// OpenMemory opens a private in-memory SQLite DB, mainly for tests.
func OpenMemory() (*SqlStore, error) {
	return openDSN(":memory:")
}

func openDSN(dsn string) (*SqlStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// A single connection keeps ":memory:" databases coherent and serialises
	// writers the way SQLite wants anyway.
	db.SetMaxOpenConns(1)
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}
	s := &SqlStore{db: db, now: time.Now}
	if err := s.migrate(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

// SetClock replaces the time source used for timestamps and expiry.
func (s *SqlStore) SetClock(now func() time.Time) { s.now = now }

func (s *SqlStore) migrate() error {
	var tableCount int
	err := s.db.QueryRow(
		"SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name='schema_version'",
	).Scan(&tableCount)
	if err != nil {
		return fmt.Errorf("check schema_version table: %w", err)
	}

	if tableCount == 0 {
		return s.freshInstall()
	}

	var v int
	err = s.db.QueryRow("SELECT version FROM schema_version LIMIT 1").Scan(&v)
	if errors.Is(err, sql.ErrNoRows) {
		return s.freshInstall()
	}
	if err != nil {
		return fmt.Errorf("read schema version: %w", err)
	}

	switch v {
	case currentSchemaVersion:
		return nil
	default:
		return fmt.Errorf("unknown schema version %d", v)
	}
}

// freshInstall creates the current schema on an empty database.
func (s *SqlStore) freshInstall() error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("begin install tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.Exec(schemaV1); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	if _, err := tx.Exec("DELETE FROM schema_version"); err != nil {
		return fmt.Errorf("reset schema version: %w", err)
	}
	if _, err := tx.Exec("INSERT INTO schema_version(version) VALUES(?)", currentSchemaVersion); err != nil {
		return fmt.Errorf("set schema version: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit install tx: %w", err)
	}
	return nil
}

// Close closes the database connection.
func (s *SqlStore) Close() error {
	return s.db.Close()
}

// GetLatestInvestigationMetadata implements Store.
func (s *SqlStore) GetLatestInvestigationMetadata(ctx context.Context, repo string) (Document, error) {
	var payload []byte
	err := s.db.QueryRowContext(ctx,
		`SELECT document FROM investigations
		 WHERE repository_name = ? AND (expires_at = 0 OR expires_at > ?)
		 ORDER BY analysis_timestamp DESC, id DESC LIMIT 1`,
		repo, s.now().Unix(),
	).Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query latest investigation for %s: %w", repo, err)
	}
	return decodeDocument(payload)
}

// SaveInvestigationMetadata implements Store.
func (s *SqlStore) SaveInvestigationMetadata(ctx context.Context, in MetadataInput) (Document, error) {
	now := s.now()
	doc := NewDocument(in, now)
	payload, err := encodeDocument(doc)
	if err != nil {
		return nil, err
	}
	var commit sql.NullString
	if in.LatestCommit != "" {
		commit = sql.NullString{String: in.LatestCommit, Valid: true}
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO investigations(repository_name, latest_commit, branch_name, analysis_type,
		                            analysis_timestamp, document, created_at, expires_at)
		 VALUES(?, ?, ?, ?, ?, ?, ?, ?)`,
		in.RepositoryName, commit, in.BranchName, doc[FieldAnalysisType],
		doc[FieldAnalysisTimestamp], payload, formatTime(now), unixOrZero(expiry(now, in.TTL)),
	)
	if err != nil {
		return nil, fmt.Errorf("insert investigation for %s: %w", in.RepositoryName, err)
	}
	return decodeDocument(payload)
}

// GetStepResult implements Store.
func (s *SqlStore) GetStepResult(ctx context.Context, key string) (*StepRecord, error) {
	var (
		stepName  sql.NullString
		content   string
		createdAt string
		expiresAt int64
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT step_name, result_content, created_at, expires_at FROM step_results
		 WHERE reference_key = ? AND (expires_at = 0 OR expires_at > ?)`,
		key, s.now().Unix(),
	).Scan(&stepName, &content, &createdAt, &expiresAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query step result %q: %w", key, err)
	}
	return &StepRecord{
		Key:       key,
		StepName:  stepName.String,
		Content:   content,
		CreatedAt: parseTime(createdAt),
		ExpiresAt: fromUnixOrZero(expiresAt),
	}, nil
}

// SaveStepResult implements Store.
func (s *SqlStore) SaveStepResult(ctx context.Context, key, content, stepName string, ttl time.Duration) (*StepRecord, error) {
	now := s.now()
	exp := expiry(now, ttl)
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO step_results(reference_key, step_name, result_content, created_at, expires_at)
		 VALUES(?, ?, ?, ?, ?)
		 ON CONFLICT(reference_key) DO UPDATE SET
			step_name = excluded.step_name,
			result_content = excluded.result_content,
			created_at = excluded.created_at,
			expires_at = excluded.expires_at`,
		key, stepName, content, formatTime(now), unixOrZero(exp),
	)
	if err != nil {
		return nil, fmt.Errorf("upsert step result %q: %w", key, err)
	}
	return &StepRecord{
		Key:       key,
		StepName:  stepName,
		Content:   content,
		CreatedAt: parseTime(formatTime(now)),
		ExpiresAt: fromUnixOrZero(unixOrZero(exp)),
	}, nil
}

// GetTemporaryBlob implements Store.
func (s *SqlStore) GetTemporaryBlob(ctx context.Context, key string) (json.RawMessage, error) {
	var payload []byte
	err := s.db.QueryRowContext(ctx,
		`SELECT payload FROM temporary_blobs
		 WHERE reference_key = ? AND (expires_at = 0 OR expires_at > ?)`,
		key, s.now().Unix(),
	).Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query blob %q: %w", key, err)
	}
	return json.RawMessage(payload), nil
}

// SaveTemporaryBlob implements Store.
func (s *SqlStore) SaveTemporaryBlob(ctx context.Context, key string, data any, ttl time.Duration) (*BlobRecord, error) {
	payload, err := json.Marshal(data)
	if err != nil {
		return nil, fmt.Errorf("encode blob %q: %w", key, err)
	}
	now := s.now()
	exp := expiry(now, ttl)
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO temporary_blobs(reference_key, payload, created_at, expires_at)
		 VALUES(?, ?, ?, ?)
		 ON CONFLICT(reference_key) DO UPDATE SET
			payload = excluded.payload,
			created_at = excluded.created_at,
			expires_at = excluded.expires_at`,
		key, payload, formatTime(now), unixOrZero(exp),
	)
	if err != nil {
		return nil, fmt.Errorf("upsert blob %q: %w", key, err)
	}
	return &BlobRecord{
		Key:       key,
		CreatedAt: parseTime(formatTime(now)),
		ExpiresAt: fromUnixOrZero(unixOrZero(exp)),
	}, nil
}
