package validation

import (
	"fmt"
	"os"
	"path/filepath"
)

// FileCheckError describes why a path failed a file or directory check.
type FileCheckError struct {
	Path    string
	Message string
}

func (e *FileCheckError) Error() string {
	return e.Message
}

// CheckFileExists returns nil if path is an existing regular file, or a
// *FileCheckError describing the failure.
func CheckFileExists(path string) error {
	if path == "" {
		return &FileCheckError{Path: path, Message: "file path cannot be empty"}
	}

	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return &FileCheckError{Path: path, Message: fmt.Sprintf("file not found: %s", path)}
		}
		return &FileCheckError{Path: path, Message: fmt.Sprintf("error checking file %s: %v", path, err)}
	}
	if info.IsDir() {
		return &FileCheckError{Path: path, Message: fmt.Sprintf("path is a directory, not a file: %s", path)}
	}
	return nil
}

// CheckDirWritable creates dir if needed and proves it accepts new files.
func CheckDirWritable(dir string) error {
	if dir == "" {
		return &FileCheckError{Path: dir, Message: "directory path cannot be empty"}
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return &FileCheckError{Path: dir, Message: fmt.Sprintf("cannot create directory %s: %v", dir, err)}
	}

	probe, err := os.CreateTemp(dir, ".write-probe-*")
	if err != nil {
		return &FileCheckError{Path: dir, Message: fmt.Sprintf("directory %s is not writable: %v", dir, err)}
	}
	name := probe.Name()
	probe.Close()
	os.Remove(filepath.Clean(name))
	return nil
}
