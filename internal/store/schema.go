package store

// schemaVersionV1 is the first investigation-cache schema.
const schemaVersionV1 = 1

// currentSchemaVersion is the target schema version for this build.
const currentSchemaVersion = schemaVersionV1

// schemaV1 is the DDL for a fresh install.
//
// Timestamps are RFC 3339 text like the rest of the tree; expires_at is Unix
// seconds so expiry can be filtered in SQL (0 means never).
var schemaV1 = `
CREATE TABLE IF NOT EXISTS schema_version (version INTEGER NOT NULL);

CREATE TABLE IF NOT EXISTS investigations (
	id                 INTEGER PRIMARY KEY AUTOINCREMENT,
	repository_name    TEXT NOT NULL,
	latest_commit      TEXT,
	branch_name        TEXT NOT NULL,
	analysis_type      TEXT NOT NULL,
	analysis_timestamp REAL NOT NULL,
	document           BLOB NOT NULL,
	created_at         TEXT NOT NULL,
	expires_at         INTEGER NOT NULL DEFAULT 0
);

CREATE INDEX IF NOT EXISTS idx_investigations_repo
	ON investigations(repository_name, analysis_timestamp);

CREATE TABLE IF NOT EXISTS step_results (
	reference_key  TEXT PRIMARY KEY,
	step_name      TEXT,
	result_content TEXT NOT NULL,
	created_at     TEXT NOT NULL,
	expires_at     INTEGER NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS temporary_blobs (
	reference_key TEXT PRIMARY KEY,
	payload       BLOB NOT NULL,
	created_at    TEXT NOT NULL,
	expires_at    INTEGER NOT NULL DEFAULT 0
);
`
