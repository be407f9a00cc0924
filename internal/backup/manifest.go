package backup

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

const manifestFile = "manifest.json"

// Manifest describes which components a bundle actually contains. It is
// written into the bundle directory before packaging.
type Manifest struct {
	Name       string    `json:"name"`
	CreatedAt  time.Time `json:"created_at"`
	Components []string  `json:"components"`
	Warnings   []string  `json:"warnings,omitempty"`
}

func (m *Manifest) HasComponent(name string) bool {
	for _, c := range m.Components {
		if c == name {
			return true
		}
	}
	return false
}

func WriteManifest(dir string, m *Manifest) error {
	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal manifest: %w", err)
	}
	if err := os.WriteFile(filepath.Join(dir, manifestFile), data, 0640); err != nil {
		return fmt.Errorf("write manifest: %w", err)
	}
	return nil
}

func ReadManifest(dir string) (*Manifest, error) {
	data, err := os.ReadFile(filepath.Join(dir, manifestFile))
	if err != nil {
		return nil, fmt.Errorf("read manifest: %w", err)
	}
	var m Manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("parse manifest: %w", err)
	}
	return &m, nil
}
