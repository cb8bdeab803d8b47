// Package storage archives contact exports and keeps an index of them.
//
// Export files go to a BlobStore (local directory or S3) and their metadata
// to an Index (JSON file or DynamoDB). Storage pairs one of each.
package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/ekklesia/commhub/internal/config"
	"github.com/ekklesia/commhub/internal/domain"
)

// ErrNotFound is returned when an archived export does not exist.
var ErrNotFound = errors.New("export not found")

// BlobStore holds export files.
type BlobStore interface {
	// Put stores data under key and returns where it was written.
	Put(ctx context.Context, key, contentType string, data []byte) (string, error)
	// Get opens the file stored under key.
	Get(ctx context.Context, key string) (io.ReadCloser, error)
}

// Index records archived exports.
type Index interface {
	Add(ctx context.Context, rec domain.ExportRecord) error
	// List returns up to limit records, newest first.
	List(ctx context.Context, limit int) ([]domain.ExportRecord, error)
}

// Storage archives exports into a BlobStore and records them in an Index.
type Storage struct {
	blobs BlobStore
	index Index
}

// NewStorage pairs a blob store with an index.
func NewStorage(blobs BlobStore, index Index) *Storage {
	return &Storage{blobs: blobs, index: index}
}

// New builds the storage selected by cfg.Type ("local" or "aws").
func New(ctx context.Context, cfg config.StorageConfig) (*Storage, error) {
	switch cfg.Type {
	case "", "local":
		blobs, err := NewLocalBlobStore(cfg.LocalPath)
		if err != nil {
			return nil, err
		}
		return NewStorage(blobs, NewJSONIndex(filepath.Join(cfg.LocalPath, "index.json"))), nil
	case "aws", "s3":
		return newAWS(ctx, cfg)
	default:
		return nil, fmt.Errorf("unknown storage type %q", cfg.Type)
	}
}

// Save stores data under rec.Key and indexes rec with its final location.
func (s *Storage) Save(ctx context.Context, rec domain.ExportRecord, contentType string, data []byte) (domain.ExportRecord, error) {
	loc, err := s.blobs.Put(ctx, rec.Key, contentType, data)
	if err != nil {
		return rec, fmt.Errorf("store export: %w", err)
	}
	rec.Location = loc
	rec.SizeBytes = int64(len(data))
	if err := s.index.Add(ctx, rec); err != nil {
		return rec, fmt.Errorf("index export: %w", err)
	}
	return rec, nil
}

// List returns archived exports, newest first.
func (s *Storage) List(ctx context.Context, limit int) ([]domain.ExportRecord, error) {
	return s.index.List(ctx, limit)
}

// Open returns the archived file for key.
func (s *Storage) Open(ctx context.Context, key string) (io.ReadCloser, error) {
	return s.blobs.Get(ctx, key)
}

// LocalBlobStore writes exports under a directory.
type LocalBlobStore struct {
	dir string
}

// NewLocalBlobStore creates dir if needed.
func NewLocalBlobStore(dir string) (*LocalBlobStore, error) {
	if dir == "" {
		return nil, errors.New("local storage path is required")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create storage dir: %w", err)
	}
	return &LocalBlobStore{dir: dir}, nil
}

func (l *LocalBlobStore) path(key string) (string, error) {
	clean := filepath.Clean("/" + key)
	if clean == "/" || strings.Contains(key, "..") {
		return "", fmt.Errorf("invalid export key %q", key)
	}
	return filepath.Join(l.dir, filepath.FromSlash(clean)), nil
}

// Put writes data to dir/key.
func (l *LocalBlobStore) Put(_ context.Context, key, _ string, data []byte) (string, error) {
	p, err := l.path(key)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		return "", fmt.Errorf("create export dir: %w", err)
	}
	if err := os.WriteFile(p, data, 0o644); err != nil {
		return "", fmt.Errorf("write export: %w", err)
	}
	return p, nil
}

// Get opens dir/key.
func (l *LocalBlobStore) Get(_ context.Context, key string) (io.ReadCloser, error) {
	p, err := l.path(key)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(p)
	if errors.Is(err, os.ErrNotExist) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("open export: %w", err)
	}
	return f, nil
}

// JSONIndex keeps the export index in a JSON file.
type JSONIndex struct {
	path string
	mu   sync.Mutex
}

// NewJSONIndex uses the file at path, which need not exist yet.
func NewJSONIndex(path string) *JSONIndex {
	return &JSONIndex{path: path}
}

func (j *JSONIndex) load() ([]domain.ExportRecord, error) {
	data, err := os.ReadFile(j.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read index: %w", err)
	}
	var recs []domain.ExportRecord
	if err := json.Unmarshal(data, &recs); err != nil {
		return nil, fmt.Errorf("decode index: %w", err)
	}
	return recs, nil
}

// Add appends rec to the index file.
func (j *JSONIndex) Add(_ context.Context, rec domain.ExportRecord) error {
	j.mu.Lock()
	defer j.mu.Unlock()

	recs, err := j.load()
	if err != nil {
		return err
	}
	recs = append(recs, rec)
	data, err := json.MarshalIndent(recs, "", "  ")
	if err != nil {
		return fmt.Errorf("encode index: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(j.path), 0o755); err != nil {
		return fmt.Errorf("create index dir: %w", err)
	}
	tmp := j.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write index: %w", err)
	}
	return os.Rename(tmp, j.path)
}

// List returns up to limit records, newest first. limit <= 0 means all.
func (j *JSONIndex) List(_ context.Context, limit int) ([]domain.ExportRecord, error) {
	j.mu.Lock()
	recs, err := j.load()
	j.mu.Unlock()
	if err != nil {
		return nil, err
	}
	sort.SliceStable(recs, func(a, b int) bool { return recs[a].CreatedAt.After(recs[b].CreatedAt) })
	if limit > 0 && len(recs) > limit {
		recs = recs[:limit]
	}
	if recs == nil {
		recs = []domain.ExportRecord{}
	}
	return recs, nil
}
