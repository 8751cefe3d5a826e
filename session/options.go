package session

import (
	"log/slog"
	"time"
)

// ManagerOption configures a Manager.
type ManagerOption func(*Manager)

// WithLogger sets the structured logger for session events. If not set, a
// default JSON logger writing to stderr is used.
func WithLogger(logger *slog.Logger) ManagerOption {
	return func(m *Manager) {
		m.logger = logger
	}
}

// WithClock overrides the manager's time source. Intended for tests.
func WithClock(now func() time.Time) ManagerOption {
	return func(m *Manager) {
		m.now = now
	}
}

// WithCacheClearer registers a hook run on logout so the application can
// purge its own cached domain data alongside the credential stores.
func WithCacheClearer(clear func()) ManagerOption {
	return func(m *Manager) {
		m.cacheClear = clear
	}
}

// LockOption configures a LockController.
type LockOption func(*LockController)

// WithLockLogger sets the structured logger for lock transitions.
func WithLockLogger(logger *slog.Logger) LockOption {
	return func(lc *LockController) {
		lc.logger = logger
	}
}

// WithCheckInterval overrides the periodic idle-check interval.
// Default: 30s.
func WithCheckInterval(d time.Duration) LockOption {
	return func(lc *LockController) {
		lc.checkInterval = d
	}
}

// WithLockClock overrides the controller's time source. Intended for tests.
func WithLockClock(now func() time.Time) LockOption {
	return func(lc *LockController) {
		lc.now = now
	}
}

// WithTransitionHook registers a callback invoked synchronously on every
// lock and unlock transition, with the new locked state.
func WithTransitionHook(hook func(locked bool)) LockOption {
	return func(lc *LockController) {
		lc.onTransition = hook
	}
}
