package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	errs "github.com/vidyasagar/surfshell/internal/errors"
)

// FileVisitStore keeps visits in a JSON file. It is used when the SQLite
// database cannot be opened.
type FileVisitStore struct {
	mu     sync.Mutex
	visits []Visit
	path   string
}

// NewFileVisitStore creates a file-backed store at the given data directory.
func NewFileVisitStore(dataDir string) (*FileVisitStore, error) {
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return nil, fmt.Errorf("creating data dir: %w", err)
	}

	fs := &FileVisitStore{path: filepath.Join(dataDir, "history.json")}
	if err := fs.load(); err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("loading history: %w", err)
	}
	return fs, nil
}

// FetchAll returns every visit in insertion order.
func (fs *FileVisitStore) FetchAll(_ context.Context) ([]Visit, error) {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	if err := fs.load(); err != nil && !os.IsNotExist(err) {
		return nil, errs.NewStorageFailure("fetch visits", err)
	}
	result := make([]Visit, len(fs.visits))
	copy(result, fs.visits)
	return result, nil
}

// Insert appends v. Inserting an ID that already exists is an error.
func (fs *FileVisitStore) Insert(_ context.Context, v Visit) error {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	if v.ID == "" {
		return errs.NewStorageFailure("insert visit", errors.New("empty id"))
	}
	for _, existing := range fs.visits {
		if existing.ID == v.ID {
			return errs.NewStorageFailure("insert visit", fmt.Errorf("duplicate id %s", v.ID))
		}
	}
	if v.VisitedAt.IsZero() {
		v.VisitedAt = time.Now()
	}

	fs.visits = append(fs.visits, v)
	if err := fs.save(); err != nil {
		fs.visits = fs.visits[:len(fs.visits)-1]
		return errs.NewStorageFailure("insert visit", err)
	}
	return nil
}

// Delete removes the visit with the given ID. A missing ID is not an error.
func (fs *FileVisitStore) Delete(_ context.Context, id string) error {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	for i, v := range fs.visits {
		if v.ID != id {
			continue
		}
		kept := make([]Visit, 0, len(fs.visits)-1)
		kept = append(kept, fs.visits[:i]...)
		kept = append(kept, fs.visits[i+1:]...)
		if err := fs.write(kept); err != nil {
			return errs.NewStorageFailure("delete visit", err)
		}
		fs.visits = kept
		return nil
	}
	return nil
}

func (fs *FileVisitStore) load() error {
	data, err := os.ReadFile(fs.path)
	if err != nil {
		return err
	}
	var visits []Visit
	if err := json.Unmarshal(data, &visits); err != nil {
		return err
	}
	fs.visits = visits
	return nil
}

func (fs *FileVisitStore) save() error {
	return fs.write(fs.visits)
}

func (fs *FileVisitStore) write(visits []Visit) error {
	data, err := json.MarshalIndent(visits, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(fs.path, data, 0o644)
}
