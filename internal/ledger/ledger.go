package ledger

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"speech-compliance-go/internal/logger"
	"speech-compliance-go/internal/types"
)

// Ledger records items that exhausted their retries.
type Ledger interface {
	Record(rec types.FailureRecord) error
	List() ([]types.FailureRecord, error)
}

// File keeps the ledger as one JSON array. Each Record rewrites the array
// through a temp file and rename, so readers never see a partial write.
type File struct {
	path string
	mu   sync.Mutex
	log  *logger.Logger
}

var _ Ledger = (*File)(nil)

func NewFile(path string, log *logger.Logger) *File {
	if log == nil {
		log = logger.New()
	}
	return &File{path: path, log: log.Component("ledger")}
}

func (f *File) Path() string { return f.path }

func (f *File) Record(rec types.FailureRecord) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	records, err := f.read()
	if err != nil {
		return types.Wrap(types.ErrPersistence, err)
	}
	records = append(records, rec)
	if err := f.write(records); err != nil {
		return types.Wrap(types.ErrPersistence, err)
	}
	f.log.WithField("url", rec.URL).WithField("total", len(records)).Warn("failure recorded")
	return nil
}

func (f *File) List() ([]types.FailureRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	records, err := f.read()
	if err != nil {
		return nil, types.Wrap(types.ErrPersistence, err)
	}
	return records, nil
}

func (f *File) read() ([]types.FailureRecord, error) {
	b, err := os.ReadFile(f.path)
	if errors.Is(err, os.ErrNotExist) {
		return []types.FailureRecord{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read ledger: %w", err)
	}
	records := []types.FailureRecord{}
	if len(b) == 0 {
		return records, nil
	}
	if err := json.Unmarshal(b, &records); err != nil {
		return nil, fmt.Errorf("decode ledger %s: %w", f.path, err)
	}
	return records, nil
}

func (f *File) write(records []types.FailureRecord) error {
	dir := filepath.Dir(f.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create ledger dir: %w", err)
	}
	b, err := json.MarshalIndent(records, "", "  ")
	if err != nil {
		return err
	}
	tmp, err := os.CreateTemp(dir, ".ledger-*.json")
	if err != nil {
		return fmt.Errorf("create temp: %w", err)
	}
	if _, err := tmp.Write(b); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("write temp: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return err
	}
	if err := os.Rename(tmp.Name(), f.path); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("replace ledger: %w", err)
	}
	return nil
}
