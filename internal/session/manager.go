// Package session owns the credential lifecycle: hydration of the persisted
// credential at startup, login, logout, and the forced logout triggered by the
// unauthorized relay.
package session

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/pulsedash/pulse/internal/api"
	"github.com/pulsedash/pulse/internal/nav"
	"github.com/pulsedash/pulse/internal/storage"
)

const credentialKey = "credential"

// Session is the in-memory authentication state.
type Session struct {
	Credential string
	Profile    *api.Profile
	Hydrated   bool
}

// Authenticated reports whether a credential is present.
func (s Session) Authenticated() bool {
	return s.Credential != ""
}

// Store persists the credential between launches. Get reports
// storage.ErrNotFound when nothing is stored.
type Store interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key, value string) error
	Delete(ctx context.Context, key string) error
}

// Transport is the slice of the API client the manager drives: credential
// installation plus the login exchange. Login returns a non-empty token or
// an error.
type Transport interface {
	SetToken(token string)
	Login(ctx context.Context, identifier, secret string) (string, *api.Profile, error)
}

// Navigator redirects the user when a dead credential forces a logout.
type Navigator interface {
	ResetTo(route nav.Route)
}

// Manager is the sole writer of the stored credential, the in-memory session,
// and the transport's bearer token. Every mutation updates the transport token
// inside the same critical section as the in-memory state, so no request can
// observe one without the other.
type Manager struct {
	store     Store
	transport Transport
	signal    *api.UnauthorizedSignal
	nav       Navigator
	logger    *slog.Logger

	hydrateOnce sync.Once

	mu         sync.RWMutex
	credential string
	profile    *api.Profile
	hydrated   bool
}

// NewManager creates the manager and takes the unauthorized slot: any
// authenticated request answered with 401 logs the session out and resets
// navigation to the login route. Call Close to release the slot.
func NewManager(store Store, transport Transport, signal *api.UnauthorizedSignal, navigator Navigator, logger *slog.Logger) *Manager {
	m := &Manager{
		store:     store,
		transport: transport,
		signal:    signal,
		nav:       navigator,
		logger:    logger,
	}
	signal.Register(func() {
		m.logger.Info("unauthorized response, forcing logout")
		m.Logout(context.Background())
		m.nav.ResetTo(nav.RouteLogin)
	})
	return m
}

// Hydrate performs the one-time read of the persisted credential. On success
// the credential is installed in memory and on the transport without resolving
// a profile. A storage failure leaves the session empty; either way the
// session is marked hydrated so boot never waits on a broken store. Repeat
// calls are no-ops.
func (m *Manager) Hydrate(ctx context.Context) {
	m.hydrateOnce.Do(func() {
		credential, err := m.store.Get(ctx, credentialKey)

		m.mu.Lock()
		defer m.mu.Unlock()
		switch {
		case err == nil && credential != "":
			m.credential = credential
			m.transport.SetToken(credential)
		case err != nil && !errors.Is(err, storage.ErrNotFound):
			m.logger.Warn("hydrate credential", "error", err)
		}
		m.hydrated = true
	})
}

// Login exchanges credentials with the backend. The returned token is
// persisted before it is applied to the transport and memory, so a crash
// between the two steps cannot leave the UI authenticated with an
// unrecoverable credential. A persistence failure is logged and swallowed;
// the login still succeeds. On any exchange error the session is unchanged.
func (m *Manager) Login(ctx context.Context, identifier, secret string) (*api.Profile, error) {
	token, profile, err := m.transport.Login(ctx, identifier, secret)
	if err != nil {
		return nil, err
	}

	if err := m.store.Set(ctx, credentialKey, token); err != nil {
		m.logger.Warn("persist credential", "error", err)
	}

	m.mu.Lock()
	m.credential = token
	m.profile = profile
	m.transport.SetToken(token)
	m.mu.Unlock()

	m.logger.Info("logged in", "user", profile.ID)
	return profile, nil
}

// Logout clears the in-memory session and the transport token, then
// best-effort deletes the stored credential. Deletion failure is logged, not
// surfaced: from the caller's point of view logout always succeeds.
func (m *Manager) Logout(ctx context.Context) {
	m.mu.Lock()
	m.credential = ""
	m.profile = nil
	m.transport.SetToken("")
	m.mu.Unlock()

	if err := m.store.Delete(ctx, credentialKey); err != nil {
		m.logger.Warn("delete stored credential", "error", err)
	}
}

// SetProfile records a profile resolved after hydration (the stored credential
// carries no profile; the dashboard asks the backend when it needs one). The
// profile is dropped if the session became unauthenticated in the meantime.
func (m *Manager) SetProfile(profile *api.Profile) {
	m.mu.Lock()
	if m.credential != "" {
		m.profile = profile
	}
	m.mu.Unlock()
}

// Session returns a copy of the current session state.
func (m *Manager) Session() Session {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return Session{
		Credential: m.credential,
		Profile:    m.profile,
		Hydrated:   m.hydrated,
	}
}

// Close releases the unauthorized slot. The manager must not be used after.
func (m *Manager) Close() {
	m.signal.Register(nil)
}
