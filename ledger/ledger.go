// Package ledger is the durable list of pending prompts backing a batch run.
//
// The backing file is plain text, one prompt per line. Lines whose trimmed
// text starts with CommentMarker are kept on disk but never surfaced as
// prompts. A prompt is removed from the file once it has been processed.
package ledger

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/gofrs/flock"
)

// CommentMarker starts a comment line.
const CommentMarker = "#"

// ErrNotFound is returned by Load when the backing file does not exist.
// It wraps fs.ErrNotExist.
var ErrNotFound = fmt.Errorf("ledger: prompts file not found: %w", fs.ErrNotExist)

// pathLocks serializes read-modify-write cycles per file across every Ledger
// value in the process. Other processes are kept out by a file lock, see
// lockFile.
var pathLocks sync.Map // map[string]*sync.Mutex

func lockFor(path string) *sync.Mutex {
	mu, _ := pathLocks.LoadOrStore(path, &sync.Mutex{})
	return mu.(*sync.Mutex)
}

// Ledger is a handle on one prompts file. It is safe for concurrent use.
type Ledger struct {
	path string
	mu   *sync.Mutex
}

// New returns a Ledger for path. The file is not touched until Load.
func New(path string) *Ledger {
	key := path
	if abs, err := filepath.Abs(path); err == nil {
		key = abs
	}
	return &Ledger{path: path, mu: lockFor(key)}
}

// Path returns the backing file path.
func (l *Ledger) Path() string {
	return l.path
}

// Load returns the pending prompts in file order: trimmed, with empty and
// comment lines dropped.
func (l *Ledger) Load() ([]string, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	lines, err := l.readLines()
	if err != nil {
		return nil, err
	}
	return pending(lines), nil
}

// Count returns the number of pending prompts.
func (l *Ledger) Count() (int, error) {
	prompts, err := l.Load()
	if err != nil {
		return 0, err
	}
	return len(prompts), nil
}

// Remove drops one non-comment line whose trimmed text equals the trimmed
// prompt and reports whether a line was removed. The file is re-read under
// the ledger lock and replaced atomically, so a concurrent Remove of the same
// text is a no-op rather than a second deletion.
func (l *Ledger) Remove(prompt string) (bool, error) {
	target := strings.TrimSpace(prompt)
	if target == "" || isComment(target) {
		return false, nil
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	unlock, err := l.lockFile()
	if err != nil {
		return false, err
	}
	defer unlock()

	lines, err := l.readLines()
	if err != nil {
		return false, err
	}

	index := -1
	for i, line := range lines {
		trimmed := strings.TrimSpace(line)
		if trimmed == target && !isComment(trimmed) {
			index = i
			break
		}
	}
	if index < 0 {
		return false, nil
	}

	kept := append(lines[:index:index], lines[index+1:]...)
	if err := l.writeLines(kept); err != nil {
		return false, err
	}
	return true, nil
}

// Append adds prompts at the end of the file, creating it if needed.
func (l *Ledger) Append(prompts ...string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	unlock, err := l.lockFile()
	if err != nil {
		return err
	}
	defer unlock()

	lines, err := l.readLines()
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	for _, p := range prompts {
		if p = strings.TrimSpace(p); p != "" {
			lines = append(lines, p)
		}
	}
	return l.writeLines(lines)
}

// lockPath is the sidecar lock file. The prompts file itself cannot carry the
// lock: writeLines replaces it with a new inode.
func (l *Ledger) lockPath() string {
	return filepath.Join(filepath.Dir(l.path), "."+filepath.Base(l.path)+".lock")
}

// lockFile takes the exclusive cross-process lock for a read-modify-write
// cycle and returns its release. Must be called with mu held.
func (l *Ledger) lockFile() (func(), error) {
	fl := flock.New(l.lockPath())
	if err := fl.Lock(); err != nil {
		return nil, fmt.Errorf("ledger: failed to lock %s: %w", l.path, err)
	}
	return func() { fl.Unlock() }, nil
}

// readLines returns the raw lines of the file. Must be called with mu held.
func (l *Ledger) readLines() ([]string, error) {
	data, err := os.ReadFile(l.path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, l.path)
	}
	if err != nil {
		return nil, fmt.Errorf("ledger: failed to read %s: %w", l.path, err)
	}

	var lines []string
	scanner := bufio.NewScanner(bytes.NewReader(data))
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		lines = append(lines, strings.TrimRight(scanner.Text(), "\r"))
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("ledger: failed to scan %s: %w", l.path, err)
	}
	return lines, nil
}

// writeLines replaces the file via temp file + rename so readers never see a
// partial write. Must be called with mu held.
func (l *Ledger) writeLines(lines []string) error {
	dir := filepath.Dir(l.path)
	tmp, err := os.CreateTemp(dir, ".ledger-*.tmp")
	if err != nil {
		return fmt.Errorf("ledger: failed to create temp file: %w", err)
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath)

	w := bufio.NewWriter(tmp)
	for _, line := range lines {
		w.WriteString(line)
		w.WriteByte('\n')
	}
	if err := w.Flush(); err != nil {
		tmp.Close()
		return fmt.Errorf("ledger: failed to write temp file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("ledger: failed to sync temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("ledger: failed to close temp file: %w", err)
	}

	// Preserve the original permissions when the file exists.
	if info, err := os.Stat(l.path); err == nil {
		os.Chmod(tmpPath, info.Mode().Perm())
	}

	if err := os.Rename(tmpPath, l.path); err != nil {
		return fmt.Errorf("ledger: failed to replace %s: %w", l.path, err)
	}
	return nil
}

func pending(lines []string) []string {
	prompts := make([]string, 0, len(lines))
	for _, line := range lines {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" || isComment(trimmed) {
			continue
		}
		prompts = append(prompts, trimmed)
	}
	return prompts
}

func isComment(trimmed string) bool {
	return strings.HasPrefix(trimmed, CommentMarker)
}
