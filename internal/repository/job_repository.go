package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"content-batch/internal/models"
)

// SnapshotKey is the fixed key the active job snapshot is stored under
const SnapshotKey = "batch_job"

// ErrNotFound is returned by a KVStore when the key holds no value
var ErrNotFound = errors.New("key not found")

// KVStore defines the durable key-value persistence the job store is built on
type KVStore interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Put(ctx context.Context, key string, value []byte) error
	Delete(ctx context.Context, key string) error
	Close() error
}

// OpenKVStore opens the backend named by backend: "sqlite" uses dbPath, "file" uses dataDir
func OpenKVStore(backend, dbPath, dataDir string) (KVStore, error) {
	switch backend {
	case "sqlite", "":
		return NewSQLiteRepository(dbPath)
	case "file":
		return NewFileStore(dataDir)
	default:
		return nil, fmt.Errorf("unknown store backend %q", backend)
	}
}

// JobStore persists exactly one job snapshot. Every write replaces the whole snapshot.
type JobStore struct {
	kv KVStore
}

// NewJobStore creates a job store on top of a key-value backend
func NewJobStore(kv KVStore) *JobStore {
	return &JobStore{kv: kv}
}

// Save writes a full snapshot of the job
func (s *JobStore) Save(ctx context.Context, job *models.Job) error {
	job.UpdatedAt = time.Now().UTC()
	data, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("failed to marshal job snapshot: %w", err)
	}
	if err := s.kv.Put(ctx, SnapshotKey, data); err != nil {
		return fmt.Errorf("failed to save job snapshot: %w", err)
	}
	return nil
}

// Load returns the stored job, or nil when nothing has been saved
func (s *JobStore) Load(ctx context.Context) (*models.Job, error) {
	data, err := s.kv.Get(ctx, SnapshotKey)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to load job snapshot: %w", err)
	}

	var job models.Job
	if err := json.Unmarshal(data, &job); err != nil {
		return nil, fmt.Errorf("failed to decode job snapshot: %w", err)
	}
	return &job, nil
}

// Clear removes the stored snapshot
func (s *JobStore) Clear(ctx context.Context) error {
	if err := s.kv.Delete(ctx, SnapshotKey); err != nil && !errors.Is(err, ErrNotFound) {
		return fmt.Errorf("failed to clear job snapshot: %w", err)
	}
	return nil
}

// Close closes the underlying backend
func (s *JobStore) Close() error {
	return s.kv.Close()
}
