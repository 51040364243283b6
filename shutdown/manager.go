// Package shutdown coordinates Ctrl-C handling for a batch run: the first
// signal cancels the run context so workers stop at their next check, cleanup
// functions then drain history and flush logs, and a second signal exits
// immediately.
package shutdown

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"go_batchgen/core"
	"go_batchgen/logging"

	"go.uber.org/zap"
)

// DefaultTimeout bounds the whole cleanup sequence.
const DefaultTimeout = 30 * time.Second

// Manager is the shutdown organism composing a Registry and a SignalCounter.
//
// Usage:
//
//	manager := shutdown.NewManager(logger)
//	manager.Register("history", 20, func(ctx context.Context) error {
//	    return history.Close()
//	})
//	manager.Start()
//	defer manager.Shutdown()
//
//	summary, err := orchestrator.Run(manager.Context(), prompts, workers)
type Manager struct {
	logger  *logging.Logger
	timeout time.Duration

	mu        sync.Mutex
	started   bool
	shutdown  bool
	signalled bool

	ctx    context.Context
	cancel context.CancelFunc

	registry *Registry
	signals  *SignalCounter
	sigChan  chan os.Signal
}

// Option configures a Manager.
type Option func(*Manager)

// WithTimeout sets the cleanup budget.
func WithTimeout(timeout time.Duration) Option {
	return func(m *Manager) {
		m.timeout = timeout
	}
}

// WithParent derives the managed context from parent instead of Background.
func WithParent(parent context.Context) Option {
	return func(m *Manager) {
		m.cancel()
		m.ctx, m.cancel = context.WithCancel(parent)
	}
}

// WithForceExit replaces the second-signal action (default os.Exit(130)).
func WithForceExit(fn func()) Option {
	return func(m *Manager) {
		m.signals = NewSignalCounter(2, fn)
	}
}

// NewManager creates a Manager. Signals are not captured until Start.
func NewManager(logger *logging.Logger, opts ...Option) *Manager {
	if logger == nil {
		logger = logging.NewNop()
	}
	ctx, cancel := context.WithCancel(context.Background())
	m := &Manager{
		logger:   logger.Named("shutdown"),
		timeout:  DefaultTimeout,
		ctx:      ctx,
		cancel:   cancel,
		registry: NewRegistry(),
		sigChan:  make(chan os.Signal, 1),
	}
	m.signals = NewSignalCounter(2, func() {
		m.logger.Warn("received second signal, exiting immediately")
		m.logger.Sync()
		os.Exit(core.ExitCodeSIGINT)
	})

	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Context is cancelled by the first signal or by Shutdown.
func (m *Manager) Context() context.Context {
	return m.ctx
}

// Register adds a cleanup function; lower priority runs first.
func (m *Manager) Register(name string, priority int, fn Func) {
	m.registry.Register(name, priority, fn)
	m.logger.Debug("registered shutdown handler",
		zap.String("name", name),
		zap.Int("priority", priority))
}

// Start captures SIGINT and SIGTERM. Repeated calls are no-ops.
func (m *Manager) Start() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.started || m.shutdown {
		return
	}
	m.started = true
	signal.Notify(m.sigChan, os.Interrupt, syscall.SIGTERM)

	go func() {
		for sig := range m.sigChan {
			m.handleSignal(sig)
		}
	}()
}

func (m *Manager) handleSignal(sig os.Signal) {
	if m.signals.Increment() == 1 {
		m.mu.Lock()
		m.signalled = true
		m.mu.Unlock()
		m.logger.Info("received signal, stopping after in-flight requests",
			zap.String("signal", sig.String()))
		m.cancel()
	}
}

// Signalled reports whether the run was interrupted by a signal.
func (m *Manager) Signalled() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.signalled
}

// Shutdown cancels the context and runs the cleanup functions within the
// timeout. It is idempotent.
func (m *Manager) Shutdown() error {
	m.mu.Lock()
	if m.shutdown {
		m.mu.Unlock()
		return nil
	}
	m.shutdown = true
	started := m.started
	m.mu.Unlock()

	if started {
		signal.Stop(m.sigChan)
		close(m.sigChan)
	}
	m.cancel()

	start := time.Now()
	ctx, cancel := context.WithTimeout(context.Background(), m.timeout)
	defer cancel()

	m.logger.Debug("running cleanup", zap.Strings("handlers", m.registry.Names()))
	errs := m.registry.Shutdown(ctx)
	for _, err := range errs {
		m.logger.Error("cleanup function failed", zap.Error(err))
	}
	if len(errs) > 0 {
		return fmt.Errorf("shutdown: %d cleanup functions failed: %w", len(errs), errs[0])
	}

	m.logger.Debug("shutdown complete", zap.Duration("duration", time.Since(start)))
	return nil
}
