// SPDX-License-Identifier: MIT

// Package prefs persists the listener's enhancer preferences. The store
// is a small YAML file owned by the desktop shell's settings layer;
// missing keys mean "not yet set" and the enhancer applies its own
// defaults, never this package.
package prefs

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"gopkg.in/yaml.v3"
)

// Values are the persisted keys. Pointers distinguish "absent" from
// zero values.
type Values struct {
	EnhancerEnabled *bool `yaml:"enhancer_enabled,omitempty"`
	Level           *int  `yaml:"level,omitempty"`
}

// FileStore reads and writes Values in a YAML file.
type FileStore struct {
	path string
	mu   sync.Mutex
}

// NewFileStore creates a store at path. The file is created lazily on
// the first Write.
func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

// Read loads the persisted values. A missing file is not an error; it
// just means nothing has been set yet.
func (s *FileStore) Read() (Values, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var v Values
	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return v, nil
		}
		return v, fmt.Errorf("prefs: read %s: %w", s.path, err)
	}
	if err := yaml.Unmarshal(data, &v); err != nil {
		return Values{}, fmt.Errorf("prefs: parse %s: %w", s.path, err)
	}
	return v, nil
}

// Write persists both keys. The write is atomic: a temp file is renamed
// over the old one, so a crash never leaves a half-written store.
func (s *FileStore) Write(enabled bool, level int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	v := Values{EnhancerEnabled: &enabled, Level: &level}
	data, err := yaml.Marshal(&v)
	if err != nil {
		return fmt.Errorf("prefs: marshal: %w", err)
	}

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("prefs: create dir %s: %w", dir, err)
	}

	tmp, err := os.CreateTemp(dir, ".prefs-*")
	if err != nil {
		return fmt.Errorf("prefs: temp file: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("prefs: write temp: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("prefs: close temp: %w", err)
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("prefs: replace %s: %w", s.path, err)
	}
	return nil
}
