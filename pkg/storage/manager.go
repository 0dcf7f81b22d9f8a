package storage

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/haruaki07/linkedin-video-scraper/pkg/metadata"
)

const (
	// VideoExt is the extension of every downloaded video
	VideoExt = ".mp4"
	// PartialExt marks a video still being written
	PartialExt = ".part"
)

// WriteError reports a failed video write. The partial file has already
// been removed when it is returned.
type WriteError struct {
	Path string
	Err  error
}

func (e *WriteError) Error() string {
	return fmt.Sprintf("write %s: %v", filepath.Base(e.Path), e.Err)
}

func (e *WriteError) Unwrap() error { return e.Err }

// Manager handles file storage operations and duplicate detection
type Manager struct {
	outputDir string
	known     map[string]string // media URN -> video path
	count     int
	mu        sync.RWMutex
}

// NewManager creates the output directory if needed and indexes its contents
func NewManager(outputDir string) (*Manager, error) {
	if err := os.MkdirAll(outputDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create output directory: %w", err)
	}

	manager := &Manager{
		outputDir: outputDir,
		known:     make(map[string]string),
	}

	if err := manager.scanExistingFiles(); err != nil {
		return nil, fmt.Errorf("failed to scan existing files: %w", err)
	}

	return manager, nil
}

// scanExistingFiles drops leftovers of interrupted runs and indexes videos
func (m *Manager) scanExistingFiles() error {
	entries, err := os.ReadDir(m.outputDir)
	if err != nil {
		return fmt.Errorf("failed to read directory: %w", err)
	}

	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() {
			continue
		}
		path := filepath.Join(m.outputDir, name)

		switch {
		case strings.HasSuffix(name, PartialExt):
			if err := os.Remove(path); err != nil {
				return fmt.Errorf("failed to remove partial file: %w", err)
			}
		case filepath.Ext(name) == VideoExt:
			m.count++
			if meta, err := metadata.Load(path); err == nil && meta.URN != "" {
				m.known[meta.URN] = path
			}
		}
	}

	if _, err := metadata.CleanOrphaned(m.outputDir); err != nil {
		return err
	}
	return nil
}

// NewVideoPath returns a fresh, unique video path in the output directory
func (m *Manager) NewVideoPath() string {
	return filepath.Join(m.outputDir, uuid.NewString()+VideoExt)
}

// SaveVideo copies r into path through a partial file and renames it into
// place. On failure nothing is left at path or at the partial path.
func (m *Manager) SaveVideo(r io.Reader, path string) (int64, error) {
	partial := path + PartialExt
	out, err := os.OpenFile(partial, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0644)
	if err != nil {
		return 0, &WriteError{Path: path, Err: err}
	}

	n, err := io.Copy(out, r)
	closeErr := out.Close()

	if err != nil {
		os.Remove(partial)
		return n, &WriteError{Path: path, Err: err}
	}
	if closeErr != nil {
		os.Remove(partial)
		return n, &WriteError{Path: path, Err: closeErr}
	}

	if err := os.Rename(partial, path); err != nil {
		os.Remove(partial)
		return n, &WriteError{Path: path, Err: err}
	}

	m.mu.Lock()
	m.count++
	m.mu.Unlock()
	return n, nil
}

// Remember records that urn has been saved at path
func (m *Manager) Remember(urn, path string) {
	if urn == "" {
		return
	}
	m.mu.Lock()
	m.known[urn] = path
	m.mu.Unlock()
}

// Lookup returns the path urn was saved at, if it was
func (m *Manager) Lookup(urn string) (string, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	path, ok := m.known[urn]
	return path, ok
}

// OutputDir returns the output directory path
func (m *Manager) OutputDir() string {
	return m.outputDir
}

// DownloadedCount returns the number of videos in the output directory
func (m *Manager) DownloadedCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.count
}
