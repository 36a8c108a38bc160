package config

import (
	"encoding/json"
	"errors"
	"log/slog"
	"os"
	"path/filepath"

	"video-chapters/internal/domain"
	"video-chapters/internal/history"
)

// Store defines persistence operations for app settings.
type Store interface {
	Load() (domain.Settings, error)
	Save(domain.Settings) error
}

// JSONStore persists settings in a single JSON file on disk.
type JSONStore struct {
	path string
}

// NewJSONStore creates a JSON-backed settings store.
func NewJSONStore(path string) *JSONStore {
	return &JSONStore{path: path}
}

// Load reads settings from disk. Missing or corrupt files degrade to
// defaults; local settings are best effort, never fatal.
func (s *JSONStore) Load() (domain.Settings, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return DefaultSettings(), nil
		}

		return domain.Settings{}, err
	}

	// Unmarshal over defaults so keys absent from older files keep their
	// default values.
	cfg := DefaultSettings()
	if err := json.Unmarshal(data, &cfg); err != nil {
		slog.Warn("could not parse settings file, using defaults", "path", s.path, "error", err)
		return DefaultSettings(), nil
	}

	cfg.Model = domain.NormalizeModel(cfg.Model)
	cfg.InstructionHistoryLimit = history.ClampCapacity(cfg.InstructionHistoryLimit)
	return cfg, nil
}

// Save writes settings as indented JSON and creates parent directories.
func (s *JSONStore) Save(cfg domain.Settings) error {
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return err
	}

	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return err
	}

	return os.WriteFile(s.path, data, 0o644)
}
