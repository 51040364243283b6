package validation

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestValidateEndpointURL(t *testing.T) {
	tests := []struct {
		url     string
		wantErr bool
	}{
		{"https://aisandbox-pa.googleapis.com/v1:runImageFx", false},
		{"http://localhost:8080", false},
		{"", true},
		{"   ", true},
		{"ftp://example.com", true},
		{"https://", true},
		{"not a url", true},
	}

	for _, tt := range tests {
		err := ValidateEndpointURL(tt.url)
		if (err != nil) != tt.wantErr {
			t.Errorf("ValidateEndpointURL(%q) error = %v, wantErr %v", tt.url, err, tt.wantErr)
		}
	}
}

func TestCheckFileExists(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "prompts.txt")
	os.WriteFile(file, []byte("x"), 0644)

	if err := CheckFileExists(file); err != nil {
		t.Errorf("existing file: %v", err)
	}

	for _, path := range []string{"", filepath.Join(dir, "missing.txt"), dir} {
		err := CheckFileExists(path)
		var fileErr *FileCheckError
		if !errors.As(err, &fileErr) {
			t.Errorf("CheckFileExists(%q) = %v, want *FileCheckError", path, err)
		}
	}
}

func TestCheckDirWritable(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "a", "b")
	if err := CheckDirWritable(dir); err != nil {
		t.Fatalf("CheckDirWritable() error = %v", err)
	}
	entries, _ := os.ReadDir(dir)
	if len(entries) != 0 {
		t.Errorf("probe file left behind: %v", entries)
	}
	if err := CheckDirWritable(""); err == nil {
		t.Error("empty path should fail")
	}
}

func TestCheckDiskSpace(t *testing.T) {
	dir := t.TempDir()

	info, err := CheckDiskSpace(filepath.Join(dir, "not", "yet"), 1)
	if err != nil {
		t.Fatalf("CheckDiskSpace() error = %v", err)
	}
	if info.Total <= 0 || info.FreeFormatted() == "" {
		t.Errorf("info = %+v", info)
	}

	_, err = CheckDiskSpace(dir, 1<<62)
	var spaceErr *DiskSpaceError
	if !errors.As(err, &spaceErr) {
		t.Errorf("huge requirement: error = %v, want *DiskSpaceError", err)
	}
}

func TestConnectivityChecker_Unreachable(t *testing.T) {
	checker := NewConnectivityChecker(nil).WithTimeout(2 * time.Second)

	result := checker.CheckEndpoint(context.Background(), "http://127.0.0.1:1")
	if result.Reachable || result.Error == nil {
		t.Errorf("result = %+v, want unreachable with error", result)
	}

	result = checker.CheckEndpoint(context.Background(), "bogus")
	if result.Reachable || result.Message != "Invalid URL format" {
		t.Errorf("result = %+v, want invalid URL", result)
	}
}
