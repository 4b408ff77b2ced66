// Package boot decides where the UI lands after launch. A run walks the
// backend from cold start to readiness, waits for the stored session to
// hydrate, validates the credential upstream, and ends with a navigation
// reset to either the login or the dashboard route.
package boot

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/pulsedash/pulse/internal/nav"
	"github.com/pulsedash/pulse/internal/session"
)

const (
	healthPath        = "/health"
	readyPath         = "/ready"
	fallbackReadyPath = "/api/health"
	identityPath      = "/api/v1/auth/me"
)

// Phase identifies one stage of a readiness run.
type Phase int

const (
	PhaseInit            Phase = iota // configuration checked, nothing probed yet
	PhaseServerWake                   // waiting for the backend to answer at all
	PhaseStoreReady                   // backend awake, waiting on its data store
	PhaseSessionWait                  // waiting for the stored credential to hydrate
	PhaseCredentialCheck              // validating the hydrated credential upstream
	PhaseDecided                      // landing route chosen
	PhaseFailed                       // run is over; a retry starts from scratch
)

func (p Phase) String() string {
	switch p {
	case PhaseInit:
		return "init"
	case PhaseServerWake:
		return "server_wake"
	case PhaseStoreReady:
		return "store_ready"
	case PhaseSessionWait:
		return "session_wait"
	case PhaseCredentialCheck:
		return "credential_check"
	case PhaseDecided:
		return "decided"
	case PhaseFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Progress is the milestone percentage reached when the phase begins. Failed
// has no milestone of its own; a failure event reports whatever progress the
// run had already reached.
func (p Phase) Progress() int {
	switch p {
	case PhaseServerWake:
		return 10
	case PhaseStoreReady:
		return 55
	case PhaseSessionWait:
		return 75
	case PhaseCredentialCheck:
		return 85
	case PhaseDecided:
		return 100
	default:
		return 0
	}
}

// Event is one observable step of a readiness run. RunID identifies the run
// that produced it so a consumer can drop events from a superseded run.
type Event struct {
	RunID    int
	Phase    Phase
	Progress int
	Detail   string
	Err      error
	Route    nav.Route
}

// IdentityStatus classifies the outcome of the credential check.
type IdentityStatus int

const (
	IdentityUnknown IdentityStatus = iota // unreachable or ambiguous, trust local state
	IdentityValid
	IdentityInvalid // upstream explicitly rejected the credential
)

// API is the slice of the HTTP client a run needs.
type API interface {
	Probe(ctx context.Context, path string) error
	AuthProbe(ctx context.Context, path string) (int, error)
}

// Sessions exposes the session state the landing decision depends on.
type Sessions interface {
	Session() session.Session
	Logout(ctx context.Context)
}

// Navigator resets the visible screen once the landing route is chosen.
type Navigator interface {
	ResetTo(route nav.Route)
}

// Coordinator drives readiness runs. One coordinator serves the whole app
// lifetime; each retry is a fresh run with fresh budgets.
type Coordinator struct {
	api      API
	sessions Sessions
	nav      Navigator
	baseURL  string
	policies Policies
	poller   *Poller
	logger   *slog.Logger
}

func NewCoordinator(baseURL string, api API, sessions Sessions, navigator Navigator, policies Policies, logger *slog.Logger) *Coordinator {
	return &Coordinator{
		api:      api,
		sessions: sessions,
		nav:      navigator,
		baseURL:  baseURL,
		policies: policies,
		poller:   &Poller{},
		logger:   logger,
	}
}

// Run starts one readiness run and returns its event stream. The channel
// closes when the run ends for any reason. Cancelling ctx abandons the run:
// it stops silently without a Failed or Decided event and without touching
// navigation or session state.
func (c *Coordinator) Run(ctx context.Context, runID int) <-chan Event {
	ch := make(chan Event, 8)
	go func() {
		defer close(ch)
		c.run(ctx, runID, ch)
	}()
	return ch
}

func (c *Coordinator) run(ctx context.Context, runID int, ch chan<- Event) {
	progress := 0
	emit := func(ev Event) bool {
		if ctx.Err() != nil {
			return false
		}
		ev.RunID = runID
		if p := ev.Phase.Progress(); ev.Phase != PhaseFailed && p > progress {
			progress = p
		}
		ev.Progress = progress
		select {
		case <-ctx.Done():
			return false
		case ch <- ev:
			return true
		}
	}
	fail := func(err error) {
		c.logger.Error("readiness run failed", "run", runID, "error", err)
		emit(Event{Phase: PhaseFailed, Err: err})
	}

	if !emit(Event{Phase: PhaseInit}) {
		return
	}
	if c.baseURL == "" {
		fail(&ConfigError{Reason: "api base URL is not set"})
		return
	}

	if !emit(Event{Phase: PhaseServerWake}) {
		return
	}
	err := c.poller.Run(ctx, c.policies.Wake, func(ctx context.Context) error {
		return c.api.Probe(ctx, healthPath)
	})
	if err != nil {
		if ctx.Err() != nil {
			return
		}
		fail(&UnreachableError{Target: "server", Err: err})
		return
	}

	if !emit(Event{Phase: PhaseStoreReady}) {
		return
	}
	err = c.poller.Run(ctx, c.policies.Ready, func(ctx context.Context) error {
		return c.api.Probe(ctx, readyPath)
	})
	if err != nil {
		if ctx.Err() != nil {
			return
		}
		c.logger.Warn("readiness probe exhausted, trying fallback", "run", runID, "error", err)
		if !emit(Event{Phase: PhaseStoreReady, Detail: "checking fallback health"}) {
			return
		}
		err = c.poller.Run(ctx, c.policies.Fallback, func(ctx context.Context) error {
			return c.api.Probe(ctx, fallbackReadyPath)
		})
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			fail(&UnreachableError{Target: "data store", Err: err})
			return
		}
	}

	if !emit(Event{Phase: PhaseSessionWait}) {
		return
	}
	if err := c.waitForHydration(ctx); err != nil {
		return
	}

	if !emit(Event{Phase: PhaseCredentialCheck}) {
		return
	}
	route := nav.RouteLogin
	if sess := c.sessions.Session(); sess.Authenticated() {
		status := c.checkIdentity(ctx)
		if ctx.Err() != nil {
			return
		}
		if status == IdentityInvalid {
			c.logger.Info("stored credential rejected, clearing session", "run", runID)
			c.sessions.Logout(ctx)
		} else {
			route = nav.RouteDashboard
		}
	}

	if ctx.Err() != nil {
		return
	}
	c.nav.ResetTo(route)
	c.logger.Info("landing decided", "run", runID, "route", string(route))
	emit(Event{Phase: PhaseDecided, Route: route})
}

// waitForHydration blocks until the session manager has loaded the stored
// credential, up to the configured ceiling. Hydration almost always finishes
// while the backend is still waking, so the ceiling is a safety valve, not an
// expected path.
func (c *Coordinator) waitForHydration(ctx context.Context) error {
	deadline := c.poller.now().Add(c.policies.SessionWaitCeiling)
	for !c.sessions.Session().Hydrated {
		if !c.poller.now().Before(deadline) {
			c.logger.Warn("session hydration slow, proceeding without it")
			return nil
		}
		if err := c.poller.sleep(ctx, c.policies.SessionRecheck); err != nil {
			return err
		}
	}
	return nil
}

// checkIdentity classifies the stored credential against the identity
// endpoint. Only an explicit 401 invalidates it; a transport failure or any
// other status leaves the hydrated session trusted, since a flaky network
// must not log the user out.
func (c *Coordinator) checkIdentity(ctx context.Context) IdentityStatus {
	probeCtx, cancel := context.WithTimeout(ctx, c.policies.IdentityTimeout)
	defer cancel()

	status, err := c.api.AuthProbe(probeCtx, identityPath)
	if err != nil {
		c.logger.Warn("identity check unreachable", "error", err)
		return IdentityUnknown
	}
	switch {
	case status >= 200 && status < 300:
		return IdentityValid
	case status == http.StatusUnauthorized:
		return IdentityInvalid
	default:
		c.logger.Warn("identity check inconclusive", "status", status)
		return IdentityUnknown
	}
}
