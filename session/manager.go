// Package session owns the client's authentication state: the active
// credential and its renewal, the recovery chain behind every
// authenticated request, and the inactivity lock.
//
// All session state lives behind one mutex. Long-running work — network
// calls, presence ceremonies — runs outside the lock and re-checks a
// logout generation counter before committing, so a response from a
// superseded renewal is never applied.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/acoghlan/tokengate/internal/util"
	"github.com/acoghlan/tokengate/storage"
	"github.com/acoghlan/tokengate/token"
	"github.com/acoghlan/tokengate/transport"
	"github.com/acoghlan/tokengate/vault"
)

const (
	storedTokenKey = "session/token"
	biometricsKey  = "session/biometrics_enabled"
)

// API is the slice of the auth service the manager depends on.
// *transport.Client satisfies it.
type API interface {
	Login(ctx context.Context, username, password string) (transport.LoginResult, error)
	Refresh(ctx context.Context, tok string) (string, error)
	WhoAmI(ctx context.Context, tok string) (transport.Identity, error)
}

// Doer executes domain requests with the resilient retry policy.
// *transport.Executor satisfies it.
type Doer interface {
	Do(ctx context.Context, build func(ctx context.Context) (*http.Request, error)) (*transport.Response, error)
}

// refreshTicket is an in-flight renewal. While one exists every other
// renewal attempt joins it instead of issuing a second network call.
type refreshTicket struct {
	id     uuid.UUID
	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}

	// set before done is closed, read-only after.
	cred token.Credential
	err  error
}

// Manager owns the credential lifecycle: login, proactive and reactive
// renewal, biometric re-login, and forced logout. It is safe for
// concurrent use.
type Manager struct {
	api        API
	exec       Doer
	store      storage.Store
	vault      *vault.Vault
	logger     *slog.Logger
	now        func() time.Time
	cacheClear func()

	mu         sync.Mutex
	state      State
	cred       token.Credential
	ticket     *refreshTicket
	gen        uint64 // bumped on logout; stale renewals check it before applying
	biometrics bool
}

// NewManager creates a Manager over the given auth API, request executor,
// durable store and biometric vault. Any previously persisted biometric
// opt-in flag is honored; call Restore to re-establish a persisted session.
func NewManager(api API, exec Doer, store storage.Store, vlt *vault.Vault, opts ...ManagerOption) *Manager {
	m := &Manager{
		api:   api,
		exec:  exec,
		store: store,
		vault: vlt,
		now:   time.Now,
		state: StateLoggedOut,
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.logger == nil {
		m.logger = slog.New(slog.NewJSONHandler(os.Stderr, nil))
	}
	if v, err := store.Get(biometricsKey); err == nil && string(v) == "1" {
		m.biometrics = true
	}
	return m
}

// State returns the current session state.
func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Credential returns a copy of the active credential.
func (m *Manager) Credential() token.Credential {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.cred
}

// BiometricsEnabled reports whether biometric re-login is opted in.
func (m *Manager) BiometricsEnabled() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.biometrics
}

// Login authenticates with username and password. On success the fresh
// credential is persisted, the session becomes Authenticated, and — when
// biometrics are opted in — the vault record is brought up to date.
func (m *Manager) Login(ctx context.Context, username, password string) (token.Credential, error) {
	username = util.Normalize(username)
	password = util.Normalize(password)

	result, err := m.api.Login(ctx, username, password)
	if err != nil {
		return token.Credential{}, err
	}

	cred := token.Decode(result.Token)
	m.commit(cred)
	m.logger.Info("login succeeded", slog.String("username", username))

	if m.BiometricsEnabled() {
		rec := vault.Record{Token: cred.Token, Username: username, Password: password}
		if err := m.vault.Save(ctx, rec); err != nil {
			// The session itself is fine; only the frictionless re-login
			// record is stale.
			m.logger.Warn("updating biometric record failed", slog.Any("error", err))
		}
	}
	return cred, nil
}

// BiometricLogin re-authenticates from the vault record behind a single
// presence proof. The stored token is probed first; only when the server
// rejects it does a full login with the stored credentials happen.
func (m *Manager) BiometricLogin(ctx context.Context) (token.Credential, error) {
	rec, err := m.vault.ReadAll(ctx)
	if err != nil {
		return token.Credential{}, err
	}

	if _, err := m.api.WhoAmI(ctx, rec.Token); err == nil {
		cred := token.Decode(rec.Token)
		m.commit(cred)
		m.logger.Info("biometric login succeeded", slog.Bool("token_reused", true))
		return cred, nil
	} else if !errors.Is(err, transport.ErrUnauthorized) {
		return token.Credential{}, err
	}

	// Stored token rejected: fall back to a full login round-trip.
	result, err := m.api.Login(ctx, rec.Username, rec.Password)
	if err != nil {
		if errors.Is(err, transport.ErrUnauthorized) {
			// The remembered password no longer works; the record is dead
			// weight and keeping it would re-prompt the user for nothing.
			_ = m.vault.Clear()
			return token.Credential{}, fmt.Errorf("%w: stored credentials rejected", vault.ErrAuthenticationFailed)
		}
		return token.Credential{}, err
	}

	cred := token.Decode(result.Token)
	m.commit(cred)
	if err := m.vault.UpdateToken(ctx, cred.Token); err != nil {
		m.logger.Warn("updating biometric record token failed", slog.Any("error", err))
	}
	m.logger.Info("biometric login succeeded", slog.Bool("token_reused", false))
	return cred, nil
}

// Restore re-establishes a session at app launch: the persisted token is
// probed, a rejected or missing one falls through to biometric login when
// eligible, and anything else lands in StateLoggedOut. A cancelled
// presence proof is a quiet no-op, not an error.
func (m *Manager) Restore(ctx context.Context) (State, error) {
	if raw, err := m.store.Get(storedTokenKey); err == nil {
		cred := token.Decode(string(raw))
		if _, err := m.api.WhoAmI(ctx, cred.Token); err == nil {
			m.commit(cred)
			m.logger.Info("session restored from persisted token")
			return StateAuthenticated, nil
		} else if !errors.Is(err, transport.ErrUnauthorized) && !errors.Is(err, transport.ErrInvalidRequest) {
			// Transient failure: don't burn the persisted token over a
			// flaky network, just report that no session is up.
			return StateLoggedOut, err
		}
		_ = m.store.Delete(storedTokenKey)
	}

	if m.BiometricsEnabled() && m.vault.Available() && m.vault.HasRecord() {
		if _, err := m.BiometricLogin(ctx); err == nil {
			return StateAuthenticated, nil
		} else if errors.Is(err, vault.ErrCancelled) {
			m.logger.Info("biometric restore declined by user")
		} else {
			m.logger.Warn("biometric restore failed", slog.Any("error", err))
		}
	}

	m.setLoggedOut()
	return StateLoggedOut, nil
}

// Do is the entry point for every authenticated request. It runs the
// recovery chain: proactive renewal for a due credential, the request
// itself, reactive renewal on 401 with one retry, biometric re-login as
// the final retry, and forced logout when everything is exhausted.
// build is re-invoked per attempt; Do attaches the bearer token itself.
func (m *Manager) Do(ctx context.Context, build func(ctx context.Context) (*http.Request, error)) (*transport.Response, error) {
	m.mu.Lock()
	state, cred := m.state, m.cred
	m.mu.Unlock()

	switch state {
	case StateLoggedOut:
		return nil, ErrNotAuthenticated
	case StateLocked:
		return nil, ErrSessionLocked
	}

	// Cheap opportunistic renewal first. Best effort: a failure here
	// still leaves the original token worth attempting.
	if cred.Due(m.now()) && !cred.Expired(m.now()) {
		if renewed, err := m.renew(ctx); err == nil {
			cred = renewed
		} else {
			m.logger.Debug("proactive renewal failed", slog.Any("error", err))
		}
	}

	resp, err := m.exec.Do(ctx, authed(build, cred.Token))
	if err == nil || !errors.Is(err, transport.ErrUnauthorized) {
		return resp, err
	}

	// Reactive renewal, then one retry with the renewed token.
	if renewed, rerr := m.renew(ctx); rerr == nil {
		resp, err = m.exec.Do(ctx, authed(build, renewed.Token))
		if err == nil || !errors.Is(err, transport.ErrUnauthorized) {
			return resp, err
		}
	} else {
		m.logger.Debug("reactive renewal failed", slog.Any("error", rerr))
	}

	// Last recovery option before giving up: full biometric re-login.
	// A declined proof is absorbed; the chain just runs out.
	if m.BiometricsEnabled() && m.vault.HasRecord() {
		if fresh, berr := m.BiometricLogin(ctx); berr == nil {
			resp, err = m.exec.Do(ctx, authed(build, fresh.Token))
			if err == nil || !errors.Is(err, transport.ErrUnauthorized) {
				return resp, err
			}
		} else {
			m.logger.Debug("biometric recovery failed", slog.Any("error", berr))
		}
	}

	m.logger.Warn("recovery chain exhausted, forcing logout")
	m.Logout()
	return nil, transport.ErrUnauthorized
}

// authed wraps a request builder so each attempt carries the given bearer
// token.
func authed(build func(ctx context.Context) (*http.Request, error), tok string) func(ctx context.Context) (*http.Request, error) {
	return func(ctx context.Context) (*http.Request, error) {
		req, err := build(ctx)
		if err != nil {
			return nil, err
		}
		req.Header.Set("Authorization", "Bearer "+tok)
		return req, nil
	}
}

// renew refreshes the credential, deduplicating concurrent attempts: while
// a renewal is in flight every other caller waits for its outcome instead
// of issuing a second network call.
func (m *Manager) renew(ctx context.Context) (token.Credential, error) {
	m.mu.Lock()
	if m.state == StateLoggedOut {
		m.mu.Unlock()
		return token.Credential{}, ErrNotAuthenticated
	}
	if t := m.ticket; t != nil {
		m.mu.Unlock()
		select {
		case <-t.done:
			return t.cred, t.err
		case <-ctx.Done():
			return token.Credential{}, ctx.Err()
		}
	}

	// The ticket gets its own context so one joiner's cancellation cannot
	// kill a renewal others are waiting on; only logout cancels it.
	tctx, cancel := context.WithCancel(context.Background())
	t := &refreshTicket{
		id:     uuid.New(),
		ctx:    tctx,
		cancel: cancel,
		done:   make(chan struct{}),
	}
	m.ticket = t
	cur := m.cred
	gen := m.gen
	m.mu.Unlock()

	m.logger.Debug("renewing credential", slog.String("ticket", t.id.String()))
	raw, err := m.api.Refresh(t.ctx, cur.Token)

	m.mu.Lock()
	if m.ticket == t {
		m.ticket = nil
	}
	if err == nil {
		if m.gen != gen {
			// Logged out while the renewal was in flight; the response is
			// stale and must not resurrect the session.
			err = context.Canceled
		} else {
			t.cred = token.Decode(raw)
			m.applyLocked(t.cred)
		}
	}
	t.err = err
	m.mu.Unlock()
	cancel()
	close(t.done)

	if err != nil {
		return token.Credential{}, err
	}

	m.logger.Debug("credential renewed", slog.String("ticket", t.id.String()))
	if m.BiometricsEnabled() && m.vault.HasRecord() {
		// Keep the vault in sync silently; writes need no presence proof.
		if verr := m.vault.UpdateToken(ctx, t.cred.Token); verr != nil {
			m.logger.Warn("updating biometric record token failed", slog.Any("error", verr))
		}
	}
	return t.cred, nil
}

// EnableBiometrics opts in to biometric re-login, storing the given
// credentials and the active token as the vault record.
func (m *Manager) EnableBiometrics(ctx context.Context, username, password string) error {
	m.mu.Lock()
	cred := m.cred
	state := m.state
	m.mu.Unlock()
	if state != StateAuthenticated {
		return ErrNotAuthenticated
	}
	if !m.vault.Available() {
		return vault.ErrUnavailable
	}

	rec := vault.Record{
		Token:    cred.Token,
		Username: util.Normalize(username),
		Password: util.Normalize(password),
	}
	if err := m.vault.Save(ctx, rec); err != nil {
		return err
	}
	if err := m.store.Put(biometricsKey, []byte("1")); err != nil {
		return err
	}

	m.mu.Lock()
	m.biometrics = true
	m.mu.Unlock()
	m.logger.Info("biometric re-login enabled")
	return nil
}

// DisableBiometrics opts out and destroys the vault record.
func (m *Manager) DisableBiometrics() error {
	err := errors.Join(
		m.vault.Clear(),
		m.store.Delete(biometricsKey),
	)
	m.mu.Lock()
	m.biometrics = false
	m.mu.Unlock()
	m.logger.Info("biometric re-login disabled")
	return err
}

// Logout tears the session down unconditionally: the credential and vault
// record are destroyed, an in-flight renewal is cancelled without being
// awaited, registered caches are purged, and the state becomes LoggedOut
// even if any individual cleanup step fails.
func (m *Manager) Logout() error {
	m.mu.Lock()
	m.gen++
	m.state = StateLoggedOut
	m.cred = token.Credential{}
	t := m.ticket
	m.ticket = nil
	m.mu.Unlock()

	if t != nil {
		t.cancel()
	}

	err := errors.Join(
		m.store.Delete(storedTokenKey),
		m.vault.Clear(),
	)
	if m.cacheClear != nil {
		m.cacheClear()
	}
	m.logger.Info("logged out")
	return err
}

// commit applies a fresh credential and marks the session authenticated.
func (m *Manager) commit(cred token.Credential) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.applyLocked(cred)
}

// applyLocked writes the credential to memory first (the source of truth)
// and then mirrors it to the durable store.
func (m *Manager) applyLocked(cred token.Credential) {
	m.cred = cred
	if m.state == StateLoggedOut {
		m.state = StateAuthenticated
	}
	if err := m.store.Put(storedTokenKey, []byte(cred.Token)); err != nil {
		m.logger.Warn("persisting token failed", slog.Any("error", err))
	}
}

func (m *Manager) setLoggedOut() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.state = StateLoggedOut
	m.cred = token.Credential{}
}

// beginLock transitions Authenticated -> Locked. Called by the
// LockController; reports whether the transition happened.
func (m *Manager) beginLock() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state != StateAuthenticated {
		return false
	}
	m.state = StateLocked
	return true
}

// endLock transitions Locked -> Authenticated.
func (m *Manager) endLock() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state == StateLocked {
		m.state = StateAuthenticated
	}
}
