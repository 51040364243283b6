// Package settings persists the user-editable part of the configuration:
// the token list and per-user batch defaults.
package settings

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"time"

	"go_batchgen/core"
	"go_batchgen/credentials"

	"gopkg.in/yaml.v3"
)

// TokenEntry is the on-disk form of a credential.
type TokenEntry struct {
	Name  string `yaml:"name"`
	Token string `yaml:"token"`
}

// Settings is the YAML document. Zero-valued overrides leave the
// environment configuration untouched.
type Settings struct {
	Tokens []TokenEntry `yaml:"tokens"`

	PromptsFile  string   `yaml:"prompts_file,omitempty"`
	OutputDir    string   `yaml:"output_dir,omitempty"`
	WorkerCount  int      `yaml:"worker_count,omitempty"`
	DelaySeconds *float64 `yaml:"delay_seconds,omitempty"`
	AspectRatio  string   `yaml:"aspect_ratio,omitempty"`
}

// Credentials converts the token entries into pool tokens.
func (s *Settings) Credentials() []credentials.Token {
	tokens := make([]credentials.Token, 0, len(s.Tokens))
	for _, entry := range s.Tokens {
		tokens = append(tokens, credentials.NewToken(entry.Name, entry.Token))
	}
	return tokens
}

// SetCredentials replaces the token entries with the pool contents.
func (s *Settings) SetCredentials(tokens []credentials.Token) {
	s.Tokens = make([]TokenEntry, 0, len(tokens))
	for _, t := range tokens {
		s.Tokens = append(s.Tokens, TokenEntry{Name: t.Name, Token: t.Secret})
	}
}

// ApplyTo overlays non-zero overrides onto cfg.
func (s *Settings) ApplyTo(cfg *core.Config) {
	if s.PromptsFile != "" {
		cfg.PromptsFile = s.PromptsFile
	}
	if s.OutputDir != "" {
		cfg.OutputDir = s.OutputDir
	}
	if s.WorkerCount > 0 {
		cfg.WorkerCount = s.WorkerCount
	}
	if s.DelaySeconds != nil && *s.DelaySeconds >= 0 {
		cfg.RequestDelay = time.Duration(*s.DelaySeconds * float64(time.Second))
	}
	if s.AspectRatio != "" {
		cfg.AspectRatio = s.AspectRatio
	}
}

// Store reads and writes the settings file.
type Store struct {
	path string
	mu   sync.Mutex
}

// NewStore returns a Store for path. The file need not exist yet.
func NewStore(path string) *Store {
	return &Store{path: path}
}

// Path returns the settings file path.
func (s *Store) Path() string {
	return s.path
}

// Load parses the settings file. A missing file yields empty settings.
func (s *Store) Load() (*Settings, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		return &Settings{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("settings: failed to read %s: %w", s.path, err)
	}

	var doc Settings
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("settings: failed to parse %s: %w", s.path, err)
	}
	return &doc, nil
}

// Save writes the settings atomically (temp file + rename). The file holds
// secrets, so it is created 0600.
func (s *Store) Save(doc *Settings) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := yaml.Marshal(doc)
	if err != nil {
		return fmt.Errorf("settings: failed to encode: %w", err)
	}

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("settings: failed to create %s: %w", dir, err)
	}

	tmp, err := os.CreateTemp(dir, ".settings-*.yaml")
	if err != nil {
		return fmt.Errorf("settings: failed to create temp file: %w", err)
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath) // no-op after a successful rename

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("settings: failed to write temp file: %w", err)
	}
	if err := tmp.Chmod(0600); err != nil {
		tmp.Close()
		return fmt.Errorf("settings: failed to chmod temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("settings: failed to close temp file: %w", err)
	}
	if err := os.Rename(tmpPath, s.path); err != nil {
		return fmt.Errorf("settings: failed to replace %s: %w", s.path, err)
	}
	return nil
}

// PersistPool returns a credentials.ChangeFunc that writes every pool
// mutation back to the settings file. Errors go to onErr.
func (s *Store) PersistPool(doc *Settings, onErr func(error)) credentials.ChangeFunc {
	return func(tokens []credentials.Token) {
		doc.SetCredentials(tokens)
		if err := s.Save(doc); err != nil && onErr != nil {
			onErr(err)
		}
	}
}
