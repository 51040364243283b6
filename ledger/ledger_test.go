package ledger

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"reflect"
	"sync"
	"testing"
	"time"

	"github.com/gofrs/flock"
)

func writeLedger(t *testing.T, content string) *Ledger {
	t.Helper()
	path := filepath.Join(t.TempDir(), "prompts.txt")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("WriteFile() error: %v", err)
	}
	return New(path)
}

func readFile(t *testing.T, l *Ledger) string {
	t.Helper()
	data, err := os.ReadFile(l.Path())
	if err != nil {
		t.Fatalf("ReadFile() error: %v", err)
	}
	return string(data)
}

func TestLedger_Load(t *testing.T) {
	l := writeLedger(t, "# header comment\n  a red fox  \n\n   \nblue whale\n#skip me\r\ngreen tea\r\n")

	got, err := l.Load()
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	want := []string{"a red fox", "blue whale", "green tea"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Load() = %q, want %q", got, want)
	}
}

func TestLedger_LoadNotFound(t *testing.T) {
	l := New(filepath.Join(t.TempDir(), "missing.txt"))

	_, err := l.Load()
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("Load() = %v, want ErrNotFound", err)
	}
	if !errors.Is(err, fs.ErrNotExist) {
		t.Errorf("Load() = %v, want to wrap fs.ErrNotExist", err)
	}
}

func TestLedger_Remove(t *testing.T) {
	tests := []struct {
		name    string
		content string
		prompt  string
		removed bool
		want    string
	}{
		{
			name:    "removes exact match",
			content: "a\nb\nc\n",
			prompt:  "b",
			removed: true,
			want:    "a\nc\n",
		},
		{
			name:    "removes only first of duplicates",
			content: "dup\nx\ndup\n",
			prompt:  "dup",
			removed: true,
			want:    "x\ndup\n",
		},
		{
			name:    "matches on trimmed text",
			content: "  padded prompt  \nother\n",
			prompt:  "padded prompt ",
			removed: true,
			want:    "other\n",
		},
		{
			name:    "keeps comments and blanks",
			content: "# notes\n\na\n# a\nb\n",
			prompt:  "a",
			removed: true,
			want:    "# notes\n\n# a\nb\n",
		},
		{
			name:    "no match leaves file untouched",
			content: "a\nb\n",
			prompt:  "zzz",
			removed: false,
			want:    "a\nb\n",
		},
		{
			name:    "partial text does not match",
			content: "a cat on a mat\n",
			prompt:  "a cat",
			removed: false,
			want:    "a cat on a mat\n",
		},
		{
			name:    "comment text is never removed",
			content: "# secret\nb\n",
			prompt:  "# secret",
			removed: false,
			want:    "# secret\nb\n",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			l := writeLedger(t, tt.content)

			removed, err := l.Remove(tt.prompt)
			if err != nil {
				t.Fatalf("Remove() error: %v", err)
			}
			if removed != tt.removed {
				t.Errorf("Remove() = %v, want %v", removed, tt.removed)
			}
			if got := readFile(t, l); got != tt.want {
				t.Errorf("file = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestLedger_RemoveNotFound(t *testing.T) {
	l := New(filepath.Join(t.TempDir(), "missing.txt"))
	if _, err := l.Remove("x"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Remove() = %v, want ErrNotFound", err)
	}
}

func TestLedger_ConcurrentRemoveSamePrompt(t *testing.T) {
	l := writeLedger(t, "keep-1\nshared\nkeep-2\n")

	const racers = 16
	var wg sync.WaitGroup
	var mu sync.Mutex
	removals := 0

	for i := 0; i < racers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			// A second handle on the same path shares the same lock.
			removed, err := New(l.Path()).Remove("shared")
			if err != nil {
				t.Errorf("Remove() error: %v", err)
				return
			}
			if removed {
				mu.Lock()
				removals++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if removals != 1 {
		t.Errorf("successful removals = %d, want exactly 1", removals)
	}
	if got := readFile(t, l); got != "keep-1\nkeep-2\n" {
		t.Errorf("file = %q, want %q", got, "keep-1\nkeep-2\n")
	}
}

func TestLedger_ConcurrentRemoveDistinctPrompts(t *testing.T) {
	const n = 50
	content := "# batch\n"
	for i := 0; i < n; i++ {
		content += fmt.Sprintf("prompt %d\n", i)
	}
	l := writeLedger(t, content)

	var wg sync.WaitGroup
	for i := 0; i < n; i += 2 {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			if removed, err := l.Remove(fmt.Sprintf("prompt %d", i)); err != nil || !removed {
				t.Errorf("Remove(prompt %d) = %v, %v", i, removed, err)
			}
		}(i)
	}
	wg.Wait()

	got, err := l.Load()
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if len(got) != n/2 {
		t.Fatalf("pending = %d, want %d", len(got), n/2)
	}
	for idx, p := range got {
		if want := fmt.Sprintf("prompt %d", idx*2+1); p != want {
			t.Errorf("pending[%d] = %q, want %q", idx, p, want)
		}
	}
}

func TestLedger_CountAndAppend(t *testing.T) {
	path := filepath.Join(t.TempDir(), "new.txt")
	l := New(path)

	if err := l.Append("first", "  ", "second"); err != nil {
		t.Fatalf("Append() error: %v", err)
	}
	count, err := l.Count()
	if err != nil {
		t.Fatalf("Count() error: %v", err)
	}
	if count != 2 {
		t.Errorf("Count() = %d, want 2", count)
	}
}

func TestLedger_RemoveWaitsForFileLock(t *testing.T) {
	l := writeLedger(t, "a\nb\n")

	// another process holding the lock looks the same: a separate handle
	other := flock.New(l.lockPath())
	if err := other.Lock(); err != nil {
		t.Fatalf("Lock() error: %v", err)
	}

	done := make(chan error, 1)
	go func() {
		_, err := l.Remove("a")
		done <- err
	}()

	select {
	case err := <-done:
		other.Unlock()
		t.Fatalf("Remove() returned while the file lock was held: %v", err)
	case <-time.After(100 * time.Millisecond):
	}
	if got := readFile(t, l); got != "a\nb\n" {
		t.Errorf("file changed under a held lock: %q", got)
	}

	if err := other.Unlock(); err != nil {
		t.Fatalf("Unlock() error: %v", err)
	}
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Remove() error: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Remove() did not proceed after the lock was released")
	}
	if got := readFile(t, l); got != "b\n" {
		t.Errorf("file = %q, want %q", got, "b\n")
	}
}

func TestLedger_LockFileIsSidecar(t *testing.T) {
	l := writeLedger(t, "a\n")
	if err := l.Append("b"); err != nil {
		t.Fatalf("Append() error: %v", err)
	}
	want := filepath.Join(filepath.Dir(l.Path()), ".prompts.txt.lock")
	if l.lockPath() != want {
		t.Errorf("lockPath() = %q, want %q", l.lockPath(), want)
	}
	if _, err := os.Stat(want); err != nil {
		t.Errorf("lock file missing: %v", err)
	}
	if got := readFile(t, l); got != "a\nb\n" {
		t.Errorf("file = %q", got)
	}
}
