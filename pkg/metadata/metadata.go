package metadata

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// Ext is appended to a video path to name its sidecar
const Ext = ".json"

// VideoMetadata describes one downloaded video
type VideoMetadata struct {
	// Core identifiers
	URN       string `json:"urn"`
	StreamURL string `json:"stream_url"`

	// Media properties
	DurationMs int64  `json:"duration_ms"`
	Duration   int    `json:"duration_seconds"`
	Width      int    `json:"width,omitempty"`
	Height     int    `json:"height,omitempty"`
	MediaType  string `json:"media_type,omitempty"`
	FileSize   int64  `json:"file_size"`

	// Crawl context
	Account      string    `json:"account,omitempty"`
	Keywords     string    `json:"keywords,omitempty"`
	DownloadedAt time.Time `json:"downloaded_at"`
}

// Path returns the sidecar path of videoPath
func Path(videoPath string) string {
	return videoPath + Ext
}

// Save writes the metadata next to the video
func (m *VideoMetadata) Save(videoPath string) error {
	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal metadata: %w", err)
	}

	if err := os.WriteFile(Path(videoPath), data, 0644); err != nil {
		return fmt.Errorf("failed to write metadata file: %w", err)
	}

	return nil
}

// Load reads the sidecar of videoPath
func Load(videoPath string) (*VideoMetadata, error) {
	data, err := os.ReadFile(Path(videoPath))
	if err != nil {
		return nil, fmt.Errorf("failed to read metadata file: %w", err)
	}

	var meta VideoMetadata
	if err := json.Unmarshal(data, &meta); err != nil {
		return nil, fmt.Errorf("failed to unmarshal metadata: %w", err)
	}

	return &meta, nil
}

// Exists checks if a sidecar exists for videoPath
func Exists(videoPath string) bool {
	_, err := os.Stat(Path(videoPath))
	return err == nil
}

// AspectRatio returns the aspect ratio as a string
func (m *VideoMetadata) AspectRatio() string {
	if m.Height == 0 {
		return "unknown"
	}

	ratio := float64(m.Width) / float64(m.Height)
	switch {
	case ratio > 1.7 && ratio < 1.8:
		return "16:9"
	case ratio > 1.3 && ratio < 1.4:
		return "4:3"
	case ratio > 0.9 && ratio < 1.1:
		return "1:1"
	case ratio > 0.55 && ratio < 0.57:
		return "9:16"
	case ratio > 0.79 && ratio < 0.81:
		return "4:5"
	default:
		return fmt.Sprintf("%.2f:1", ratio)
	}
}

// CleanOrphaned removes sidecars in directory whose video is gone and
// returns how many were removed.
func CleanOrphaned(directory string) (int, error) {
	entries, err := os.ReadDir(directory)
	if err != nil {
		return 0, fmt.Errorf("failed to read directory: %w", err)
	}

	removed := 0
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasSuffix(name, Ext) {
			continue
		}
		videoPath := filepath.Join(directory, strings.TrimSuffix(name, Ext))
		if _, err := os.Stat(videoPath); os.IsNotExist(err) {
			if err := os.Remove(filepath.Join(directory, name)); err != nil {
				return removed, fmt.Errorf("failed to remove orphaned metadata %s: %w", name, err)
			}
			removed++
		}
	}
	return removed, nil
}
