package store

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"
)

// ManifestName is the file name of the session manifest inside a session directory.
const ManifestName = "manifest.json"

// ErrNoManifest is returned when a directory has no session manifest.
var ErrNoManifest = errors.New("not a timelapse session directory (no manifest)")

// Manifest records what is needed to encode or discard a session directory
// outside the process that recorded it.
type Manifest struct {
	SessionID       string    `json:"session_id"`
	StartedAt       time.Time `json:"started_at"`
	FrameRate       int       `json:"frame_rate"`
	SpeedMultiplier int       `json:"speed_multiplier"`
	IntervalMS      int64     `json:"interval_ms"`
	FrameCount      int       `json:"frame_count"`
	TotalBytes      int64     `json:"total_bytes"`
	ImageExt        string    `json:"image_ext"`
	OutputPath      string    `json:"output_path"`
	State           string    `json:"state"`
	Diagnostic      string    `json:"diagnostic,omitempty"`
	LastUpdated     time.Time `json:"last_updated"`
}

// ManifestPath returns the manifest path for a session directory.
func ManifestPath(dir string) string {
	return filepath.Join(dir, ManifestName)
}

// ReadManifest loads the manifest of the session directory dir.
func ReadManifest(dir string) (*Manifest, error) {
	data, err := os.ReadFile(ManifestPath(dir)) //nolint:gosec // path derived from session dir
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrNoManifest, dir)
		}
		return nil, err
	}

	var m Manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("failed to parse manifest: %w", err)
	}
	return &m, nil
}

// WriteManifest persists m into the session directory dir.
// Uses atomic write (write to temp file, then rename) to prevent corruption.
func WriteManifest(dir string, m *Manifest) error {
	m.LastUpdated = time.Now().UTC()

	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal manifest: %w", err)
	}

	path := ManifestPath(dir)
	tmpFile := path + ".tmp"
	if err := os.WriteFile(tmpFile, data, 0600); err != nil {
		return fmt.Errorf("failed to write temp manifest: %w", err)
	}

	if err := os.Rename(tmpFile, path); err != nil {
		_ = os.Remove(tmpFile)
		return fmt.Errorf("failed to rename manifest: %w", err)
	}
	return nil
}

// WriteManifest persists m into this store's directory, refreshing the
// frame count and byte total from the store.
func (s *Store) WriteManifest(m *Manifest) error {
	m.FrameCount = s.FrameCount()
	m.TotalBytes = s.TotalBytes()
	m.ImageExt = s.ext
	return WriteManifest(s.dir, m)
}

// FindSessions returns the session directories directly under root that
// carry a manifest, keyed by directory path.
func FindSessions(root string) (map[string]*Manifest, error) {
	entries, err := os.ReadDir(root)
	if err != nil {
		return nil, err
	}

	out := make(map[string]*Manifest)
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		dir := filepath.Join(root, e.Name())
		m, err := ReadManifest(dir)
		if err != nil {
			continue
		}
		out[dir] = m
	}
	return out, nil
}
