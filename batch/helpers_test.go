package batch

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"

	"go_batchgen/credentials"
	"go_batchgen/imagegen"
	"go_batchgen/ledger"
)

var fakeImage = []byte("\x89PNG fake image")

// fakeClient returns outcomes from respond and counts calls.
type fakeClient struct {
	calls   int32
	mu      sync.Mutex
	tokens  []string
	prompts []string
	respond func(req imagegen.Request, token credentials.Token) imagegen.Outcome
}

func (c *fakeClient) Generate(ctx context.Context, req imagegen.Request, token credentials.Token) imagegen.Outcome {
	atomic.AddInt32(&c.calls, 1)
	c.mu.Lock()
	c.tokens = append(c.tokens, token.Name)
	c.prompts = append(c.prompts, req.Prompt)
	c.mu.Unlock()
	return c.respond(req, token)
}

func (c *fakeClient) Calls() int {
	return int(atomic.LoadInt32(&c.calls))
}

func (c *fakeClient) TokensUsed() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.tokens...)
}

func (c *fakeClient) PromptsSeen() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.prompts...)
}

func alwaysSucceed() *fakeClient {
	return &fakeClient{respond: func(imagegen.Request, credentials.Token) imagegen.Outcome {
		return imagegen.Success([][]byte{fakeImage})
	}}
}

func alwaysReturn(o imagegen.Outcome) *fakeClient {
	return &fakeClient{respond: func(imagegen.Request, credentials.Token) imagegen.Outcome {
		return o
	}}
}

// memSink keeps saved images in memory.
type memSink struct {
	mu    sync.Mutex
	saved map[string][]byte
	fail  bool
}

func newMemSink() *memSink {
	return &memSink{saved: make(map[string][]byte)}
}

func (s *memSink) Save(data []byte, name string) (string, error) {
	if s.fail {
		return "", errors.New("disk full")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	path := filepath.Join("mem", name+".png")
	if _, exists := s.saved[path]; exists {
		return "", fmt.Errorf("duplicate name %s", path)
	}
	s.saved[path] = data
	return path, nil
}

func (s *memSink) Count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.saved)
}

// brokenLedger fails every operation.
type brokenLedger struct{}

func (brokenLedger) Remove(string) (bool, error) { return false, errors.New("read-only filesystem") }
func (brokenLedger) Count() (int, error)         { return 0, errors.New("read-only filesystem") }

// captureRecorder stores everything it is given.
type captureRecorder struct {
	mu       sync.Mutex
	attempts []AttemptRecord
	prompts  []PromptRecord
	runs     []Summary
}

func (r *captureRecorder) RecordAttempt(rec AttemptRecord) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.attempts = append(r.attempts, rec)
}

func (r *captureRecorder) RecordPrompt(rec PromptRecord) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.prompts = append(r.prompts, rec)
}

func (r *captureRecorder) RecordRun(s Summary) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.runs = append(r.runs, s)
}

func (r *captureRecorder) promptsWith(status PromptStatus, reason string) []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []string
	for _, p := range r.prompts {
		if p.Status == status && (reason == "" || p.Reason == reason) {
			out = append(out, p.Prompt)
		}
	}
	return out
}

func newPool(names ...string) *credentials.Pool {
	tokens := make([]credentials.Token, len(names))
	for i, n := range names {
		tokens[i] = credentials.NewToken(n, "secret-"+n)
	}
	return credentials.NewPool(tokens)
}

// newLedgerFile writes prompts to a temp file and returns a ledger on it.
func newLedgerFile(t *testing.T, lines ...string) *ledger.Ledger {
	t.Helper()
	path := filepath.Join(t.TempDir(), "prompts.txt")
	content := strings.Join(lines, "\n")
	if len(lines) > 0 {
		content += "\n"
	}
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}
	return ledger.New(path)
}

func pendingPrompts(t *testing.T, l *ledger.Ledger) []string {
	t.Helper()
	prompts, err := l.Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	return prompts
}

func equalStrings(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// panicRecorder panics when asked to record a prompt with the given status.
type panicRecorder struct {
	NopRecorder
	on PromptStatus
}

func (r panicRecorder) RecordPrompt(rec PromptRecord) {
	if r.on == "" || rec.Status == r.on {
		panic("recorder: " + string(rec.Status))
	}
}
