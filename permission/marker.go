package permission

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// MarkerStore persists the fact that the first run completed.
type MarkerStore interface {
	Exists() (bool, error)
	Write(m Marker) error
}

// Marker is the content of the first-run marker. Only its presence is
// significant; the fields are for diagnostics.
type Marker struct {
	CompletedAt time.Time `yaml:"completed_at"`
	Granted     []Kind    `yaml:"granted"`
	Missing     []Kind    `yaml:"missing"`
}

// FileMarker stores the marker as a YAML file.
type FileMarker struct {
	Path string
}

func (f FileMarker) Exists() (bool, error) {
	_, err := os.Stat(f.Path)
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, fs.ErrNotExist):
		return false, nil
	default:
		return false, fmt.Errorf("stat marker: %w", err)
	}
}

// Write creates the marker atomically.
func (f FileMarker) Write(m Marker) error {
	data, err := yaml.Marshal(m)
	if err != nil {
		return fmt.Errorf("encode marker: %w", err)
	}
	dir := filepath.Dir(f.Path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create marker dir: %w", err)
	}
	tmp, err := os.CreateTemp(dir, ".first-run-*")
	if err != nil {
		return fmt.Errorf("create marker: %w", err)
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write marker: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close marker: %w", err)
	}
	if err := os.Rename(tmp.Name(), f.Path); err != nil {
		return fmt.Errorf("rename marker: %w", err)
	}
	return nil
}

// Read decodes an existing marker.
func (f FileMarker) Read() (Marker, error) {
	var m Marker
	data, err := os.ReadFile(f.Path)
	if err != nil {
		return m, fmt.Errorf("read marker: %w", err)
	}
	if err := yaml.Unmarshal(data, &m); err != nil {
		return m, fmt.Errorf("decode marker: %w", err)
	}
	return m, nil
}
