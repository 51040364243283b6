package shutdown

import (
	"context"
	"errors"
	"os"
	"strings"
	"sync/atomic"
	"testing"
	"time"
)

func TestRegistry_PriorityOrder(t *testing.T) {
	r := NewRegistry()
	var order []string
	add := func(name string, prio int) {
		r.Register(name, prio, func(ctx context.Context) error {
			order = append(order, name)
			return nil
		})
	}
	add("logs", 90)
	add("history", 20)
	add("sink", 20)
	add("stop", 0)

	want := []string{"stop", "history", "sink", "logs"}
	if got := strings.Join(r.Names(), ","); got != strings.Join(want, ",") {
		t.Errorf("Names() = %s, want %s", got, strings.Join(want, ","))
	}

	if errs := r.Shutdown(context.Background()); len(errs) != 0 {
		t.Fatalf("Shutdown() errors = %v", errs)
	}
	if got := strings.Join(order, ","); got != strings.Join(want, ",") {
		t.Errorf("execution order = %s", got)
	}

	if errs := r.Shutdown(context.Background()); errs != nil {
		t.Errorf("second Shutdown() = %v, want nil", errs)
	}
	r.Register("late", 1, func(context.Context) error { return nil })
	if r.Count() != 4 {
		t.Errorf("Count() = %d after late registration, want 4", r.Count())
	}
}

func TestRegistry_ErrorsDoNotStopLaterFunctions(t *testing.T) {
	r := NewRegistry()
	var ran int32
	r.Register("bad", 1, func(context.Context) error { return errors.New("disk full") })
	r.Register("good", 2, func(context.Context) error { atomic.AddInt32(&ran, 1); return nil })

	errs := r.Shutdown(context.Background())
	if len(errs) != 1 {
		t.Errorf("got %d errors, want 1", len(errs))
	}
	if atomic.LoadInt32(&ran) != 1 {
		t.Error("later function did not run")
	}
}

func TestSignalCounter(t *testing.T) {
	var forced int32
	c := NewSignalCounter(2, func() { atomic.AddInt32(&forced, 1) })

	if c.Increment() != 1 || atomic.LoadInt32(&forced) != 0 {
		t.Error("first signal should not force")
	}
	if c.Increment() != 2 || atomic.LoadInt32(&forced) != 1 {
		t.Error("second signal should force")
	}
	if c.Count() != 2 {
		t.Errorf("Count() = %d, want 2", c.Count())
	}
}

func TestManager_SignalCancelsContext(t *testing.T) {
	var forced int32
	m := NewManager(nil, WithForceExit(func() { atomic.AddInt32(&forced, 1) }))

	m.handleSignal(os.Interrupt)

	select {
	case <-m.Context().Done():
	case <-time.After(time.Second):
		t.Fatal("context not cancelled by first signal")
	}
	if !m.Signalled() {
		t.Error("Signalled() = false after a signal")
	}

	m.handleSignal(os.Interrupt)
	if atomic.LoadInt32(&forced) != 1 {
		t.Error("second signal did not force exit")
	}
}

func TestManager_ShutdownRunsCleanup(t *testing.T) {
	m := NewManager(nil, WithTimeout(time.Second))
	m.Start()

	var closed int32
	m.Register("history", 20, func(ctx context.Context) error {
		if _, ok := ctx.Deadline(); !ok {
			t.Error("cleanup context has no deadline")
		}
		atomic.AddInt32(&closed, 1)
		return nil
	})

	if err := m.Shutdown(); err != nil {
		t.Fatalf("Shutdown() error = %v", err)
	}
	if err := m.Shutdown(); err != nil {
		t.Errorf("second Shutdown() error = %v", err)
	}
	if atomic.LoadInt32(&closed) != 1 {
		t.Errorf("cleanup ran %d times, want 1", closed)
	}
	if m.Context().Err() == nil {
		t.Error("context should be cancelled after Shutdown")
	}
	if m.Signalled() {
		t.Error("Signalled() = true without a signal")
	}
}

func TestManager_ShutdownReportsErrors(t *testing.T) {
	m := NewManager(nil)
	m.Register("broken", 1, func(context.Context) error { return errors.New("boom") })

	err := m.Shutdown()
	if err == nil || !strings.Contains(err.Error(), "boom") {
		t.Errorf("Shutdown() error = %v, want wrapped boom", err)
	}
}

func TestManager_WithParent(t *testing.T) {
	parent, cancel := context.WithCancel(context.Background())
	m := NewManager(nil, WithParent(parent))
	cancel()

	select {
	case <-m.Context().Done():
	case <-time.After(time.Second):
		t.Fatal("managed context did not follow parent")
	}
}
