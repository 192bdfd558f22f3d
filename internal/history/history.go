// Package history persists a record of every update run.
package history

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	badger "github.com/dgraph-io/badger/v4"

	"github.com/adamancini/vsupdater/internal/types"
)

const (
	keyPrefix = "run:"
	keyTime   = "20060102T150405.000000000Z"
)

// ErrNotFound is returned when a run ID is not in the store.
var ErrNotFound = errors.New("not found")

// RunRecord is one update or autoupdate invocation.
type RunRecord struct {
	RunID       string      `json:"run_id" yaml:"run_id"`
	Mode        types.Mode  `json:"mode" yaml:"mode"`
	StartedAt   time.Time   `json:"started_at" yaml:"started_at"`
	FinishedAt  time.Time   `json:"finished_at" yaml:"finished_at"`
	FromVersion string      `json:"from_version,omitempty" yaml:"from_version,omitempty"`
	ToVersion   string      `json:"to_version,omitempty" yaml:"to_version,omitempty"`
	FinalState  types.State `json:"final_state" yaml:"final_state"`
	WorldBackup string      `json:"world_backup,omitempty" yaml:"world_backup,omitempty"`
	Error       string      `json:"error,omitempty" yaml:"error,omitempty"`
}

// Recorder receives finished runs.
type Recorder interface {
	Save(ctx context.Context, rec RunRecord) error
}

// Store is a history backend.
type Store interface {
	Recorder
	List(ctx context.Context, limit int) ([]RunRecord, error)
	Get(ctx context.Context, runID string) (*RunRecord, error)
	Close() error
}

// Nop drops every record.
type Nop struct{}

func (Nop) Save(context.Context, RunRecord) error { return nil }

// BadgerStore implements Store with Badger DB.
type BadgerStore struct {
	db *badger.DB
}

// Open opens (creating if needed) the store at path.
func Open(path string) (*BadgerStore, error) {
	if err := os.MkdirAll(path, 0755); err != nil {
		return nil, fmt.Errorf("failed to create history directory: %w", err)
	}

	opts := badger.DefaultOptions(filepath.Clean(path))
	opts.Logger = nil
	opts = opts.WithValueLogFileSize(1 << 20)

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open history store: %w", err)
	}
	return &BadgerStore{db: db}, nil
}

func (s *BadgerStore) Close() error {
	return s.db.Close()
}

// runKey sorts by start time so a reverse scan yields newest first.
func runKey(rec RunRecord) []byte {
	return []byte(keyPrefix + rec.StartedAt.UTC().Format(keyTime) + ":" + rec.RunID)
}

func indexKey(runID string) []byte {
	return []byte("id:" + runID)
}

// Save stores rec, replacing any record with the same run ID and start time.
func (s *BadgerStore) Save(ctx context.Context, rec RunRecord) error {
	if rec.RunID == "" {
		return fmt.Errorf("run record has no run ID")
	}
	data, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	key := runKey(rec)
	return s.db.Update(func(txn *badger.Txn) error {
		if err := txn.Set(key, data); err != nil {
			return err
		}
		return txn.Set(indexKey(rec.RunID), key)
	})
}

// List returns up to limit records, newest first. limit <= 0 returns all.
func (s *BadgerStore) List(ctx context.Context, limit int) ([]RunRecord, error) {
	records := []RunRecord{}
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Reverse = true
		opts.Prefix = []byte(keyPrefix)
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Seek([]byte(keyPrefix + "\xff")); it.Valid(); it.Next() {
			if err := ctx.Err(); err != nil {
				return err
			}
			var rec RunRecord
			if err := it.Item().Value(func(v []byte) error {
				return json.Unmarshal(v, &rec)
			}); err != nil {
				return err
			}
			records = append(records, rec)
			if limit > 0 && len(records) >= limit {
				break
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return records, nil
}

// Get returns the record for runID.
func (s *BadgerStore) Get(ctx context.Context, runID string) (*RunRecord, error) {
	var out RunRecord
	err := s.db.View(func(txn *badger.Txn) error {
		idx, err := txn.Get(indexKey(runID))
		if err != nil {
			if errors.Is(err, badger.ErrKeyNotFound) {
				return ErrNotFound
			}
			return err
		}
		key, err := idx.ValueCopy(nil)
		if err != nil {
			return err
		}
		item, err := txn.Get(key)
		if err != nil {
			if errors.Is(err, badger.ErrKeyNotFound) {
				return ErrNotFound
			}
			return err
		}
		return item.Value(func(v []byte) error {
			return json.Unmarshal(v, &out)
		})
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}
