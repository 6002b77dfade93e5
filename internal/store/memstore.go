package store

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"
)

// Op names a Store operation for error injection on MemStore.
type Op string

const (
	OpGetMetadata  Op = "get_metadata"
	OpSaveMetadata Op = "save_metadata"
	OpGetStep      Op = "get_step"
	OpSaveStep     Op = "save_step"
	OpGetBlob      Op = "get_blob"
	OpSaveBlob     Op = "save_blob"
)

type memMetadata struct {
	payload   []byte
	expiresAt time.Time
}

type memBlob struct {
	payload   []byte
	createdAt time.Time
	expiresAt time.Time
}

// MemStore is an in-memory Store for tests. Step results are keyed by the
// same 4-tuple strings the durable backends use. Implements Store.
type MemStore struct {
	mu       sync.Mutex
	now      func() time.Time
	metadata map[string][]memMetadata // repo -> history, oldest first
	steps    map[string]StepRecord
	blobs    map[string]memBlob
	failures map[Op]error
	calls    map[Op]int
}

// NewMemStore returns a new in-memory Store.
func NewMemStore() *MemStore {
	return &MemStore{
		now:      time.Now,
		metadata: make(map[string][]memMetadata),
		steps:    make(map[string]StepRecord),
		blobs:    make(map[string]memBlob),
		failures: make(map[Op]error),
		calls:    make(map[Op]int),
	}
}

// SetClock replaces the time source used for timestamps and expiry.
func (s *MemStore) SetClock(now func() time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.now = now
}

// InjectError makes every subsequent call of op fail with err. A nil err
// clears the injection.
func (s *MemStore) InjectError(op Op, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err == nil {
		delete(s.failures, op)
		return
	}
	s.failures[op] = err
}

// Calls returns how many times op was invoked (including failed calls).
func (s *MemStore) Calls(op Op) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls[op]
}

// PutRawMetadata appends an arbitrary document as repo's latest record,
// bypassing NewDocument. Used to seed legacy or malformed records.
func (s *MemStore) PutRawMetadata(repo string, doc Document) error {
	b, err := encodeDocument(doc)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.metadata[repo] = append(s.metadata[repo], memMetadata{payload: b})
	return nil
}

// enter records the call and returns the injected failure, if any.
// Caller must hold s.mu.
func (s *MemStore) enter(op Op) error {
	s.calls[op]++
	if err := s.failures[op]; err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

// GetLatestInvestigationMetadata implements Store.
func (s *MemStore) GetLatestInvestigationMetadata(_ context.Context, repo string) (Document, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.enter(OpGetMetadata); err != nil {
		return nil, err
	}
	history := s.metadata[repo]
	now := s.now()
	for i := len(history) - 1; i >= 0; i-- {
		if expired(history[i].expiresAt, now) {
			continue
		}
		return decodeDocument(history[i].payload)
	}
	return nil, nil
}

// SaveInvestigationMetadata implements Store.
func (s *MemStore) SaveInvestigationMetadata(_ context.Context, in MetadataInput) (Document, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.enter(OpSaveMetadata); err != nil {
		return nil, err
	}
	now := s.now()
	doc := NewDocument(in, now)
	b, err := encodeDocument(doc)
	if err != nil {
		return nil, err
	}
	s.metadata[in.RepositoryName] = append(s.metadata[in.RepositoryName], memMetadata{
		payload:   b,
		expiresAt: expiry(now, in.TTL),
	})
	return decodeDocument(b)
}

// GetStepResult implements Store.
func (s *MemStore) GetStepResult(_ context.Context, key string) (*StepRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.enter(OpGetStep); err != nil {
		return nil, err
	}
	rec, ok := s.steps[key]
	if !ok || expired(rec.ExpiresAt, s.now()) {
		return nil, nil
	}
	cp := rec
	return &cp, nil
}

// SaveStepResult implements Store.
func (s *MemStore) SaveStepResult(_ context.Context, key, content, stepName string, ttl time.Duration) (*StepRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.enter(OpSaveStep); err != nil {
		return nil, err
	}
	now := s.now()
	rec := StepRecord{
		Key:       key,
		StepName:  stepName,
		Content:   content,
		CreatedAt: now.UTC(),
		ExpiresAt: expiry(now, ttl),
	}
	s.steps[key] = rec
	cp := rec
	return &cp, nil
}

// GetTemporaryBlob implements Store.
func (s *MemStore) GetTemporaryBlob(_ context.Context, key string) (json.RawMessage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.enter(OpGetBlob); err != nil {
		return nil, err
	}
	b, ok := s.blobs[key]
	if !ok || expired(b.expiresAt, s.now()) {
		return nil, nil
	}
	return append(json.RawMessage(nil), b.payload...), nil
}

// SaveTemporaryBlob implements Store.
func (s *MemStore) SaveTemporaryBlob(_ context.Context, key string, data any, ttl time.Duration) (*BlobRecord, error) {
	payload, err := json.Marshal(data)
	if err != nil {
		return nil, fmt.Errorf("encode blob %q: %w", key, err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.enter(OpSaveBlob); err != nil {
		return nil, err
	}
	now := s.now()
	b := memBlob{payload: payload, createdAt: now.UTC(), expiresAt: expiry(now, ttl)}
	s.blobs[key] = b
	return &BlobRecord{Key: key, CreatedAt: b.createdAt, ExpiresAt: b.expiresAt}, nil
}

// Close implements Store. MemStore holds no resources.
func (s *MemStore) Close() error { return nil }
