// Package snapshot persists catalog snapshots so a restarted process can serve
// products without an immediate upstream call.
package snapshot

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log"
	"os"
	"path/filepath"
	"sync"

	"github.com/valcommerce/storefront/internal/domain"
)

// FileStore keeps one catalog snapshot as a JSON document on disk
type FileStore struct {
	path string
	mu   sync.Mutex
}

// NewFileStore creates a store writing to path
func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

// Path returns the snapshot file location
func (s *FileStore) Path() string {
	return s.path
}

// Load reads the snapshot. A missing, unreadable, corrupt or outdated file is
// reported as domain.ErrCacheMiss.
func (s *FileStore) Load(ctx context.Context) (*domain.CacheEntry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	data, err := os.ReadFile(s.path)
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			log.Printf("[Snapshot] read failed path=%s err=%v", s.path, err)
		}
		return nil, domain.ErrCacheMiss
	}

	var entry domain.CacheEntry
	if err := json.Unmarshal(data, &entry); err != nil {
		log.Printf("[Snapshot] corrupt file ignored path=%s err=%v", s.path, err)
		return nil, domain.ErrCacheMiss
	}
	if entry.Version != domain.CatalogSchemaVersion {
		log.Printf("[Snapshot] version mismatch ignored path=%s version=%d want=%d",
			s.path, entry.Version, domain.CatalogSchemaVersion)
		return nil, domain.ErrCacheMiss
	}
	if !entry.Valid() {
		return nil, domain.ErrCacheMiss
	}

	return &entry, nil
}

// Save writes the snapshot to a temp file in the same directory, syncs it and
// renames it over the previous one so readers never see a partial document
func (s *FileStore) Save(ctx context.Context, entry *domain.CacheEntry) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if entry == nil {
		return fmt.Errorf("%w: nil snapshot", domain.ErrInvalidRequest)
	}

	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("failed to encode snapshot: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create snapshot dir: %w", err)
	}

	tmp, err := os.CreateTemp(dir, filepath.Base(s.path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temp snapshot: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("failed to write snapshot: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("failed to sync snapshot: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to close snapshot: %w", err)
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to replace snapshot: %w", err)
	}

	log.Printf("[Snapshot] saved path=%s count=%d", s.path, len(entry.Products))
	return nil
}
