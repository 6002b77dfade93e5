package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/dgraph-io/badger/v4"
)

// Key prefixes inside the Badger keyspace.
const (
	badgerMetaPrefix = "investigation/"
	badgerStepPrefix = "step/"
	badgerBlobPrefix = "blob/"
)

// BadgerStore implements Store on an embedded Badger KV store. Expiry is
// delegated to Badger's per-entry TTL, so only the latest metadata record per
// repository is kept (each save overwrites the previous one).
type BadgerStore struct {
	db  *badger.DB
	now func() time.Time
}

type badgerStep struct {
	StepName  string    `json:"step_name,omitempty"`
	Content   string    `json:"result_content"`
	CreatedAt time.Time `json:"timestamp"`
	ExpiresAt time.Time `json:"expires_at,omitempty"`
}

// OpenBadger opens or creates a Badger database in dir.
func OpenBadger(dir string) (*BadgerStore, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create badger dir: %w", err)
	}
	return openBadger(badger.DefaultOptions(dir).WithLogger(nil))
}

// OpenBadgerMemory opens a Badger database that lives only in memory.
func OpenBadgerMemory() (*BadgerStore, error) {
	return openBadger(badger.DefaultOptions("").WithInMemory(true).WithLogger(nil))
}

func openBadger(opts badger.Options) (*BadgerStore, error) {
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open badger: %w", err)
	}
	return &BadgerStore{db: db, now: time.Now}, nil
}

// Close implements Store.
func (s *BadgerStore) Close() error {
	return s.db.Close()
}

func (s *BadgerStore) get(key string) ([]byte, error) {
	var out []byte
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(key))
		if err != nil {
			return err
		}
		out, err = item.ValueCopy(nil)
		return err
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (s *BadgerStore) set(key string, value []byte, ttl time.Duration) error {
	return s.db.Update(func(txn *badger.Txn) error {
		e := badger.NewEntry([]byte(key), value)
		if ttl > 0 {
			e = e.WithTTL(ttl)
		}
		return txn.SetEntry(e)
	})
}

// GetLatestInvestigationMetadata implements Store.
func (s *BadgerStore) GetLatestInvestigationMetadata(_ context.Context, repo string) (Document, error) {
	b, err := s.get(badgerMetaPrefix + repo)
	if err != nil {
		return nil, fmt.Errorf("read investigation for %s: %w", repo, err)
	}
	if b == nil {
		return nil, nil
	}
	return decodeDocument(b)
}

// SaveInvestigationMetadata implements Store.
func (s *BadgerStore) SaveInvestigationMetadata(_ context.Context, in MetadataInput) (Document, error) {
	doc := NewDocument(in, s.now())
	b, err := encodeDocument(doc)
	if err != nil {
		return nil, err
	}
	if err := s.set(badgerMetaPrefix+in.RepositoryName, b, in.TTL); err != nil {
		return nil, fmt.Errorf("write investigation for %s: %w", in.RepositoryName, err)
	}
	return decodeDocument(b)
}

// GetStepResult implements Store.
func (s *BadgerStore) GetStepResult(_ context.Context, key string) (*StepRecord, error) {
	b, err := s.get(badgerStepPrefix + key)
	if err != nil {
		return nil, fmt.Errorf("read step result %q: %w", key, err)
	}
	if b == nil {
		return nil, nil
	}
	var v badgerStep
	if err := json.Unmarshal(b, &v); err != nil {
		return nil, fmt.Errorf("decode step result %q: %w", key, err)
	}
	return &StepRecord{
		Key:       key,
		StepName:  v.StepName,
		Content:   v.Content,
		CreatedAt: v.CreatedAt,
		ExpiresAt: v.ExpiresAt,
	}, nil
}

// SaveStepResult implements Store.
func (s *BadgerStore) SaveStepResult(_ context.Context, key, content, stepName string, ttl time.Duration) (*StepRecord, error) {
	now := s.now()
	v := badgerStep{
		StepName:  stepName,
		Content:   content,
		CreatedAt: now.UTC(),
		ExpiresAt: expiry(now, ttl),
	}
	b, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encode step result %q: %w", key, err)
	}
	if err := s.set(badgerStepPrefix+key, b, ttl); err != nil {
		return nil, fmt.Errorf("write step result %q: %w", key, err)
	}
	return &StepRecord{Key: key, StepName: stepName, Content: content, CreatedAt: v.CreatedAt, ExpiresAt: v.ExpiresAt}, nil
}

// GetTemporaryBlob implements Store.
func (s *BadgerStore) GetTemporaryBlob(_ context.Context, key string) (json.RawMessage, error) {
	b, err := s.get(badgerBlobPrefix + key)
	if err != nil {
		return nil, fmt.Errorf("read blob %q: %w", key, err)
	}
	if b == nil {
		return nil, nil
	}
	return json.RawMessage(b), nil
}

// SaveTemporaryBlob implements Store.
func (s *BadgerStore) SaveTemporaryBlob(_ context.Context, key string, data any, ttl time.Duration) (*BlobRecord, error) {
	payload, err := json.Marshal(data)
	if err != nil {
		return nil, fmt.Errorf("encode blob %q: %w", key, err)
	}
	now := s.now()
	if err := s.set(badgerBlobPrefix+key, payload, ttl); err != nil {
		return nil, fmt.Errorf("write blob %q: %w", key, err)
	}
	return &BlobRecord{Key: key, CreatedAt: now.UTC(), ExpiresAt: expiry(now, ttl)}, nil
}
