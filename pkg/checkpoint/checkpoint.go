package checkpoint

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/haruaki07/linkedin-video-scraper/pkg/logger"
)

// Version is the on-disk format version written by Save
const Version = 1

// Checkpoint records how far a crawl for one (account, keywords) pair got.
// Limit is the effective limit at the last save, measured from InitialOffset;
// a negative Limit means unbounded.
type Checkpoint struct {
	Account         string    `json:"account"`
	Keywords        string    `json:"keywords"`
	InitialOffset   int       `json:"initial_offset"`
	NextOffset      int       `json:"next_offset"`
	Limit           int       `json:"limit"`
	Fetched         int       `json:"fetched"`
	Pages           int       `json:"pages"`
	TotalDownloaded int       `json:"total_downloaded"`
	TotalSkipped    int       `json:"total_skipped"`
	TotalFailed     int       `json:"total_failed"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
	Version         int       `json:"version"`
}

// Remaining returns the number of results still to fetch, or a negative
// value when the crawl is unbounded.
func (c *Checkpoint) Remaining() int {
	if c.Limit < 0 {
		return c.Limit
	}
	if r := c.Limit - c.Fetched; r > 0 {
		return r
	}
	return 0
}

// Progress is the state after one processed page
type Progress struct {
	NextOffset int
	Limit      int
	Fetched    int
	Downloaded int
	Skipped    int
	Failed     int
}

// Manager handles checkpoint operations
type Manager struct {
	checkpointPath string
	account        string
	keywords       string
	logger         logger.Logger
}

// NewManager creates a checkpoint manager for the (account, keywords) pair
// under dir, creating dir if needed.
func NewManager(dir, account, keywords string, log logger.Logger) (*Manager, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create checkpoints directory: %w", err)
	}

	return &Manager{
		checkpointPath: filepath.Join(dir, FileName(account, keywords)),
		account:        account,
		keywords:       keywords,
		logger:         logger.OrNop(log),
	}, nil
}

// FileName derives a filesystem-safe checkpoint name. Keywords are hashed
// since they routinely carry characters like '#' and spaces.
func FileName(account, keywords string) string {
	sum := sha256.Sum256([]byte(keywords))
	return fmt.Sprintf("%s-%s.checkpoint.json", sanitize(account), hex.EncodeToString(sum[:6]))
}

func sanitize(s string) string {
	s = strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_', r == '.':
			return r
		default:
			return '_'
		}
	}, s)
	if s == "" {
		return "anonymous"
	}
	return s
}

// Path returns the checkpoint file location
func (m *Manager) Path() string {
	return m.checkpointPath
}

// Create creates and saves a fresh checkpoint starting at offset
func (m *Manager) Create(offset, limit int) (*Checkpoint, error) {
	now := time.Now()
	checkpoint := &Checkpoint{
		Account:       m.account,
		Keywords:      m.keywords,
		InitialOffset: offset,
		NextOffset:    offset,
		Limit:         limit,
		CreatedAt:     now,
		UpdatedAt:     now,
		Version:       Version,
	}

	if err := m.Save(checkpoint); err != nil {
		return nil, fmt.Errorf("failed to save initial checkpoint: %w", err)
	}

	m.logger.InfoWithFields("Checkpoint created", map[string]interface{}{
		"account":  m.account,
		"keywords": m.keywords,
		"path":     m.checkpointPath,
	})

	return checkpoint, nil
}

// Load loads an existing checkpoint. It returns nil, nil when none exists.
func (m *Manager) Load() (*Checkpoint, error) {
	file, err := os.Open(m.checkpointPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to open checkpoint file: %w", err)
	}
	defer file.Close()

	var checkpoint Checkpoint
	if err := json.NewDecoder(file).Decode(&checkpoint); err != nil {
		return nil, fmt.Errorf("failed to decode checkpoint: %w", err)
	}
	if checkpoint.Version > Version {
		return nil, fmt.Errorf("checkpoint version %d is newer than supported version %d", checkpoint.Version, Version)
	}

	m.logger.DebugWithFields("Checkpoint loaded", map[string]interface{}{
		"account":     checkpoint.Account,
		"next_offset": checkpoint.NextOffset,
		"fetched":     checkpoint.Fetched,
		"downloaded":  checkpoint.TotalDownloaded,
	})

	return &checkpoint, nil
}

// Save saves the checkpoint to disk atomically
func (m *Manager) Save(checkpoint *Checkpoint) error {
	checkpoint.UpdatedAt = time.Now()

	tempPath := m.checkpointPath + ".tmp"
	file, err := os.Create(tempPath)
	if err != nil {
		return fmt.Errorf("failed to create temporary checkpoint file: %w", err)
	}

	encoder := json.NewEncoder(file)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(checkpoint); err != nil {
		file.Close()
		os.Remove(tempPath)
		return fmt.Errorf("failed to encode checkpoint: %w", err)
	}

	if err := file.Sync(); err != nil {
		file.Close()
		os.Remove(tempPath)
		return fmt.Errorf("failed to sync checkpoint file: %w", err)
	}

	if err := file.Close(); err != nil {
		os.Remove(tempPath)
		return fmt.Errorf("failed to close checkpoint file: %w", err)
	}

	if err := os.Rename(tempPath, m.checkpointPath); err != nil {
		os.Remove(tempPath)
		return fmt.Errorf("failed to replace checkpoint file: %w", err)
	}

	m.logger.DebugWithFields("Checkpoint saved", map[string]interface{}{
		"next_offset": checkpoint.NextOffset,
		"fetched":     checkpoint.Fetched,
		"downloaded":  checkpoint.TotalDownloaded,
	})

	return nil
}

// Delete removes the checkpoint file. A missing file is not an error.
func (m *Manager) Delete() error {
	if err := os.Remove(m.checkpointPath); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to delete checkpoint: %w", err)
	}

	m.logger.Debug("Checkpoint deleted")
	return nil
}

// Exists checks if a checkpoint file exists
func (m *Manager) Exists() bool {
	_, err := os.Stat(m.checkpointPath)
	return err == nil
}

// UpdateProgress folds one page's progress into checkpoint and saves it.
// Fetched and Limit are absolute; the download counts are per page.
func (m *Manager) UpdateProgress(checkpoint *Checkpoint, p Progress) error {
	checkpoint.NextOffset = p.NextOffset
	checkpoint.Limit = p.Limit
	checkpoint.Fetched = p.Fetched
	checkpoint.Pages++
	checkpoint.TotalDownloaded += p.Downloaded
	checkpoint.TotalSkipped += p.Skipped
	checkpoint.TotalFailed += p.Failed
	return m.Save(checkpoint)
}

// Info returns a summary of the stored checkpoint, or nil when none exists
func (m *Manager) Info() (map[string]interface{}, error) {
	checkpoint, err := m.Load()
	if err != nil {
		return nil, err
	}
	if checkpoint == nil {
		return nil, nil
	}

	return map[string]interface{}{
		"account":          checkpoint.Account,
		"keywords":         checkpoint.Keywords,
		"next_offset":      checkpoint.NextOffset,
		"fetched":          checkpoint.Fetched,
		"total_downloaded": checkpoint.TotalDownloaded,
		"updated_at":       checkpoint.UpdatedAt,
		"age":              time.Since(checkpoint.UpdatedAt),
	}, nil
}
