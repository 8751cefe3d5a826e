package session

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/acoghlan/tokengate/vault"
)

// DefaultIdleTimeout is the inactivity threshold after which the session
// locks. User-configurable in whole minutes.
const DefaultIdleTimeout = 5 * time.Minute

const defaultCheckInterval = 30 * time.Second

// LockController watches user activity and foreground/background
// transitions and decides when the session must be re-proven. Activity
// recording is a fire-and-forget timestamp write that never blocks;
// transitions are observed synchronously through the Manager's state.
type LockController struct {
	mgr           *Manager
	presence      vault.Presence
	idleTimeout   time.Duration
	checkInterval time.Duration
	logger        *slog.Logger
	now           func() time.Time
	onTransition  func(locked bool)

	lastActivity atomic.Int64 // unix nanos

	mu      sync.Mutex
	stop    chan struct{} // non-nil while the periodic check runs
	stopped bool
}

// NewLockController creates a controller over the given Manager. presence
// performs the unlock ceremony; it proves physical presence only and is
// independent of the vault record. idleTimeout <= 0 selects the default.
func NewLockController(mgr *Manager, presence vault.Presence, idleTimeout time.Duration, opts ...LockOption) *LockController {
	lc := &LockController{
		mgr:           mgr,
		presence:      presence,
		idleTimeout:   idleTimeout,
		checkInterval: defaultCheckInterval,
		now:           time.Now,
	}
	if lc.idleTimeout <= 0 {
		lc.idleTimeout = DefaultIdleTimeout
	}
	for _, opt := range opts {
		opt(lc)
	}
	if lc.logger == nil {
		lc.logger = slog.New(slog.NewJSONHandler(os.Stderr, nil))
	}
	lc.lastActivity.Store(lc.now().UnixNano())
	return lc
}

// RecordActivity notes a user interaction. It is a single atomic store so
// it may be called from any goroutine, including the UI loop, without
// blocking. No-op while locked: activity behind the lock screen must not
// push the idle window forward.
func (lc *LockController) RecordActivity() {
	if lc.mgr.State() != StateAuthenticated {
		return
	}
	lc.lastActivity.Store(lc.now().UnixNano())
}

// Locked reports whether the session is idle-locked.
func (lc *LockController) Locked() bool {
	return lc.mgr.State() == StateLocked
}

// Foreground handles the app coming to the foreground: elapsed idle time
// is re-evaluated immediately — idle time kept accruing while backgrounded
// — and only then does the periodic check resume. Crossing the threshold
// while backgrounded locks straight away, without waiting for a tick.
func (lc *LockController) Foreground() {
	lc.mu.Lock()
	defer lc.mu.Unlock()
	if lc.stopped {
		return
	}

	if lc.idleElapsed() >= lc.idleTimeout {
		lc.lockLocked()
		return
	}
	lc.startLocked()
}

// Background stops the periodic check. The activity clock is retained so
// idle time keeps accruing conceptually.
func (lc *LockController) Background() {
	lc.mu.Lock()
	defer lc.mu.Unlock()
	lc.haltLocked()
}

// Unlock runs a proof-of-presence ceremony and, on success, resets the
// activity clock and resumes the periodic check. A declined ceremony
// returns vault.ErrCancelled and leaves the session locked.
func (lc *LockController) Unlock(ctx context.Context) error {
	if lc.mgr.State() != StateLocked {
		return nil
	}

	if err := lc.presence.Confirm(ctx, "Unlock your session"); err != nil {
		if errors.Is(err, vault.ErrCancelled) {
			return vault.ErrCancelled
		}
		return err
	}

	lc.mu.Lock()
	defer lc.mu.Unlock()
	lc.lastActivity.Store(lc.now().UnixNano())
	lc.mgr.endLock()
	lc.logger.Info("session unlocked")
	if lc.onTransition != nil {
		lc.onTransition(false)
	}
	lc.startLocked()
	return nil
}

// Stop tears the controller down for good, cancelling the scheduled idle
// check. Called on logout.
func (lc *LockController) Stop() {
	lc.mu.Lock()
	defer lc.mu.Unlock()
	lc.haltLocked()
	lc.stopped = true
}

func (lc *LockController) idleElapsed() time.Duration {
	return lc.now().Sub(time.Unix(0, lc.lastActivity.Load()))
}

// startLocked begins the periodic idle check if it is not already running.
// Caller holds lc.mu.
func (lc *LockController) startLocked() {
	if lc.stop != nil || lc.stopped {
		return
	}
	stop := make(chan struct{})
	lc.stop = stop
	go lc.run(stop)
}

// haltLocked stops the periodic check if running. Caller holds lc.mu.
func (lc *LockController) haltLocked() {
	if lc.stop != nil {
		close(lc.stop)
		lc.stop = nil
	}
}

func (lc *LockController) run(stop chan struct{}) {
	ticker := time.NewTicker(lc.checkInterval)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			lc.check()
		}
	}
}

func (lc *LockController) check() {
	lc.mu.Lock()
	defer lc.mu.Unlock()
	if lc.stopped {
		return
	}
	if lc.idleElapsed() >= lc.idleTimeout {
		lc.lockLocked()
	}
}

// lockLocked transitions to Locked and stops the periodic check.
// Caller holds lc.mu.
func (lc *LockController) lockLocked() {
	lc.haltLocked()
	if !lc.mgr.beginLock() {
		return
	}
	lc.logger.Info("session locked after inactivity",
		slog.Duration("idle", lc.idleElapsed()))
	if lc.onTransition != nil {
		lc.onTransition(true)
	}
}
