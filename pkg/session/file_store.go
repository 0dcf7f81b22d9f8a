package session

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	"github.com/haruaki07/linkedin-video-scraper/pkg/logger"
)

// FileStore keeps all sessions in a single JSON array file. The file is read
// fully, modified by account and rewritten as a whole on every Save.
type FileStore struct {
	path string
	log  logger.Logger
	mu   sync.Mutex
}

// NewFileStore creates a store backed by path (typically data/cookie.json)
func NewFileStore(path string, log logger.Logger) *FileStore {
	return &FileStore{path: path, log: logger.OrNop(log)}
}

// Path returns the backing file
func (f *FileStore) Path() string {
	return f.path
}

func (f *FileStore) Load(accountID string) (Session, error) {
	if accountID == "" {
		return Session{}, ErrInvalidAccount
	}
	f.mu.Lock()
	defer f.mu.Unlock()

	rec, ok := findRecord(f.readAll(), accountID)
	if !ok {
		return Session{}, ErrSessionNotFound
	}
	return rec.Session(), nil
}

func (f *FileStore) Save(s Session) error {
	if s.AccountID == "" {
		return ErrInvalidAccount
	}
	f.mu.Lock()
	defer f.mu.Unlock()

	return f.writeAll(upsertRecord(f.readAll(), RecordOf(s)))
}

func (f *FileStore) Delete(accountID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	records, ok := removeRecord(f.readAll(), accountID)
	if !ok {
		return ErrSessionNotFound
	}
	return f.writeAll(records)
}

func (f *FileStore) List() ([]Session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	return sessionsOf(f.readAll()), nil
}

// readAll treats a missing or unreadable file as an empty collection
func (f *FileStore) readAll() []Record {
	data, err := os.ReadFile(f.path)
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			f.log.WithError(err).Warn("Session file unreadable, treating as empty")
		}
		return nil
	}

	var records []Record
	if err := json.Unmarshal(data, &records); err != nil {
		f.log.WithError(err).WithField("path", f.path).Warn("Session file corrupt, treating as empty")
		return nil
	}
	return records
}

func (f *FileStore) writeAll(records []Record) error {
	if records == nil {
		records = []Record{}
	}
	data, err := json.MarshalIndent(records, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal sessions: %w", err)
	}
	return writeFileAtomic(f.path, data)
}

// writeFileAtomic writes through a temp file and renames it into place
func writeFileAtomic(path string, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return fmt.Errorf("failed to create session directory: %w", err)
	}

	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0600); err != nil {
		return fmt.Errorf("failed to write session file: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("failed to replace session file: %w", err)
	}
	return nil
}
