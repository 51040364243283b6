package settings

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"go_batchgen/core"
	"go_batchgen/credentials"
)

func TestStore_LoadMissingFile(t *testing.T) {
	store := NewStore(filepath.Join(t.TempDir(), "absent.yaml"))

	doc, err := store.Load()
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if len(doc.Tokens) != 0 {
		t.Errorf("Tokens = %v, want empty", doc.Tokens)
	}
}

func TestStore_LoadYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "settings.yaml")
	content := `tokens:
  - name: main
    token: ya29.first
  - name: backup
    token: ya29.second
worker_count: 5
delay_seconds: 0.5
aspect_ratio: PORTRAIT
`
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatalf("WriteFile() error: %v", err)
	}

	doc, err := NewStore(path).Load()
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}

	tokens := doc.Credentials()
	if len(tokens) != 2 {
		t.Fatalf("Credentials() = %d tokens, want 2", len(tokens))
	}
	if tokens[1] != (credentials.Token{Name: "backup", Secret: "ya29.second"}) {
		t.Errorf("second token = %+v", tokens[1])
	}

	cfg := &core.Config{WorkerCount: 3, RequestDelay: 2 * time.Second, AspectRatio: "LANDSCAPE", PromptsFile: "prompts.txt"}
	doc.ApplyTo(cfg)
	if cfg.WorkerCount != 5 {
		t.Errorf("WorkerCount = %d, want 5", cfg.WorkerCount)
	}
	if cfg.RequestDelay != 500*time.Millisecond {
		t.Errorf("RequestDelay = %v, want 500ms", cfg.RequestDelay)
	}
	if cfg.AspectRatio != "PORTRAIT" {
		t.Errorf("AspectRatio = %q, want PORTRAIT", cfg.AspectRatio)
	}
	if cfg.PromptsFile != "prompts.txt" {
		t.Errorf("PromptsFile overridden by zero value: %q", cfg.PromptsFile)
	}
}

func TestStore_LoadMalformed(t *testing.T) {
	path := filepath.Join(t.TempDir(), "settings.yaml")
	os.WriteFile(path, []byte("tokens: [unclosed"), 0600)

	if _, err := NewStore(path).Load(); err == nil {
		t.Error("Load() of malformed YAML should fail")
	}
}

func TestStore_SaveRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "settings.yaml")
	store := NewStore(path)

	doc := &Settings{WorkerCount: 2}
	doc.SetCredentials([]credentials.Token{{Name: "one", Secret: "s1"}})

	if err := store.Save(doc); err != nil {
		t.Fatalf("Save() error: %v", err)
	}

	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("Stat() error: %v", err)
	}
	if info.Mode().Perm() != 0600 {
		t.Errorf("mode = %v, want 0600", info.Mode().Perm())
	}

	loaded, err := store.Load()
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if len(loaded.Tokens) != 1 || loaded.Tokens[0].Token != "s1" || loaded.WorkerCount != 2 {
		t.Errorf("loaded = %+v", loaded)
	}
}

func TestStore_PersistPool(t *testing.T) {
	path := filepath.Join(t.TempDir(), "settings.yaml")
	store := NewStore(path)
	doc := &Settings{}

	pool := credentials.NewPool(nil)
	pool.OnChange(store.PersistPool(doc, func(err error) { t.Errorf("persist error: %v", err) }))

	if err := pool.Add(credentials.Token{Name: "added", Secret: "ya29.added"}); err != nil {
		t.Fatalf("Add() error: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile() error: %v", err)
	}
	if !strings.Contains(string(data), "ya29.added") {
		t.Errorf("settings file missing added token:\n%s", data)
	}

	if _, err := pool.Remove(0); err != nil {
		t.Fatalf("Remove() error: %v", err)
	}
	loaded, _ := store.Load()
	if len(loaded.Tokens) != 0 {
		t.Errorf("tokens after Remove = %v, want none", loaded.Tokens)
	}
}
