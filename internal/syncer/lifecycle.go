package syncer

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"
)

// Sync moments are bounded: the periodic task ticks every SyncInterval, and
// the final attempt at shutdown is abandoned after ShutdownTimeout.
const (
	SyncInterval    = 30 * time.Second
	ShutdownTimeout = 5 * time.Second
)

// Session supplies the logged-in fact. The engine consumes it as a gate and
// never manages authentication itself.
type Session interface {
	IsLoggedIn() bool
}

// Syncer is the replication trigger the manager drives.
type Syncer interface {
	ReplicateOnce(ctx context.Context) error
}

// Manager sequences the three sync moments: one attempt at startup, a
// cancellable periodic background task, and one bounded attempt at shutdown.
type Manager struct {
	session         Session
	syncer          Syncer
	interval        time.Duration
	shutdownTimeout time.Duration
	logger          *slog.Logger
}

// NewManager creates a Manager. interval and shutdownTimeout fall back to
// SyncInterval and ShutdownTimeout when <= 0.
func NewManager(session Session, syncer Syncer, interval, shutdownTimeout time.Duration) *Manager {
	if interval <= 0 {
		interval = SyncInterval
	}
	if shutdownTimeout <= 0 {
		shutdownTimeout = ShutdownTimeout
	}
	return &Manager{
		session:         session,
		syncer:          syncer,
		interval:        interval,
		shutdownTimeout: shutdownTimeout,
		logger:          slog.Default(),
	}
}

// IsLoggedIn reports whether any sync activity may run.
func (m *Manager) IsLoggedIn() bool {
	return m.session.IsLoggedIn()
}

// RunStartupSync makes one replication attempt at process start. Failures
// are logged and classified but never prevent the application from
// proceeding.
func (m *Manager) RunStartupSync(ctx context.Context) {
	if !m.IsLoggedIn() {
		return
	}
	m.attempt(ctx, "initial")
}

// Handle controls a running background sync task.
type Handle struct {
	cancel context.CancelFunc
	done   chan struct{}
}

// Stop cancels the task and waits for it to observe the cancellation.
// Cancellation is cooperative: the task checks at cycle boundaries, never
// mid-transmission.
func (h *Handle) Stop() {
	h.cancel()
	<-h.done
}

// StartBackgroundSync spawns the repeating task attempting synchronization
// every interval until cancelled. When the session is not logged in the
// task is never spawned and the returned handle stops immediately.
func (m *Manager) StartBackgroundSync(ctx context.Context) *Handle {
	ctx, cancel := context.WithCancel(ctx)
	h := &Handle{cancel: cancel, done: make(chan struct{})}

	if !m.IsLoggedIn() {
		close(h.done)
		return h
	}

	go func() {
		defer close(h.done)
		ticker := time.NewTicker(m.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				m.attempt(ctx, "background")
			}
		}
	}()
	return h
}

// RunShutdownSync makes one final attempt bounded by a hard wall-clock
// deadline. On expiry the attempt is abandoned, not retried; pending outbox
// entries simply remain for the next launch.
func (m *Manager) RunShutdownSync() {
	if !m.IsLoggedIn() {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), m.shutdownTimeout)
	defer cancel()

	done := make(chan struct{})
	go func() {
		m.attempt(ctx, "shutdown")
		close(done)
	}()

	select {
	case <-done:
	case <-ctx.Done():
		m.logger.Warn("shutdown sync abandoned", "timeout", m.shutdownTimeout)
	}
}

// RunWithSync wraps the main application loop with the sync lifecycle: one
// startup attempt, the background task while main runs, and exactly one
// shutdown attempt afterwards. The cleanup runs on both the
// normal-completion and the interrupted (ctx cancelled) paths, guarded so
// it executes at most once, and always stops the background task before the
// shutdown attempt.
func (m *Manager) RunWithSync(ctx context.Context, main func(context.Context) error) error {
	if !m.IsLoggedIn() {
		return main(ctx)
	}

	m.RunStartupSync(ctx)
	h := m.StartBackgroundSync(ctx)

	cleanup := sync.OnceFunc(func() {
		h.Stop()
		m.RunShutdownSync()
	})
	defer cleanup()
	stop := context.AfterFunc(ctx, cleanup)
	defer stop()

	return main(ctx)
}

func (m *Manager) attempt(ctx context.Context, phase string) {
	if err := m.syncer.ReplicateOnce(ctx); err != nil {
		m.logger.Warn("sync attempt failed",
			"phase", phase, "class", classify(err), "error", err)
	}
}

func classify(err error) string {
	var netErr *NetworkError
	var authErr *AuthError
	var rejErr *RejectedError
	switch {
	case errors.As(err, &netErr):
		return "network"
	case errors.As(err, &authErr):
		return "auth"
	case errors.As(err, &rejErr):
		return "rejected"
	default:
		return "defect"
	}
}
