package boot

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/pulsedash/pulse/internal/nav"
	"github.com/pulsedash/pulse/internal/session"
)

var errDown = errors.New("connection refused")

// fakeAPI scripts probe outcomes per path. The last outcome in a script
// repeats once the earlier ones are consumed; unscripted paths succeed.
type fakeAPI struct {
	mu         sync.Mutex
	outcomes   map[string][]error
	calls      map[string]int
	onProbe    func(path string)
	authStatus int
	authErr    error
	authCalls  int
}

func newFakeAPI() *fakeAPI {
	return &fakeAPI{
		outcomes:   map[string][]error{},
		calls:      map[string]int{},
		authStatus: http.StatusOK,
	}
}

func (a *fakeAPI) script(path string, outcomes ...error) {
	a.mu.Lock()
	a.outcomes[path] = outcomes
	a.mu.Unlock()
}

func (a *fakeAPI) Probe(ctx context.Context, path string) error {
	a.mu.Lock()
	a.calls[path]++
	var out error
	if q := a.outcomes[path]; len(q) > 0 {
		out = q[0]
		if len(q) > 1 {
			a.outcomes[path] = q[1:]
		}
	}
	hook := a.onProbe
	a.mu.Unlock()
	if hook != nil {
		hook(path)
	}
	return out
}

func (a *fakeAPI) AuthProbe(ctx context.Context, path string) (int, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.authCalls++
	if a.authErr != nil {
		return 0, a.authErr
	}
	return a.authStatus, nil
}

func (a *fakeAPI) probeCount(path string) int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.calls[path]
}

func (a *fakeAPI) totalProbes() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	n := a.authCalls
	for _, c := range a.calls {
		n += c
	}
	return n
}

type fakeSessions struct {
	mu                sync.Mutex
	sess              session.Session
	reads             int
	hydrateAfterReads int
	logouts           int
}

func (s *fakeSessions) Session() session.Session {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reads++
	if s.hydrateAfterReads > 0 && s.reads >= s.hydrateAfterReads {
		s.sess.Hydrated = true
	}
	return s.sess
}

func (s *fakeSessions) Logout(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.logouts++
	s.sess.Credential = ""
	s.sess.Profile = nil
}

func (s *fakeSessions) logoutCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.logouts
}

type fakeNav struct {
	mu     sync.Mutex
	resets []nav.Route
}

func (n *fakeNav) ResetTo(route nav.Route) {
	n.mu.Lock()
	n.resets = append(n.resets, route)
	n.mu.Unlock()
}

func (n *fakeNav) routes() []nav.Route {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]nav.Route(nil), n.resets...)
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testPolicies() Policies {
	return Policies{
		Wake: PollPolicy{
			TotalBudget:     2 * time.Second,
			InitialInterval: 100 * time.Millisecond,
			MaxInterval:     400 * time.Millisecond,
			BackoffFactor:   2.0,
			RequestTimeout:  50 * time.Millisecond,
		},
		Ready: PollPolicy{
			TotalBudget:     time.Second,
			InitialInterval: 100 * time.Millisecond,
			MaxInterval:     300 * time.Millisecond,
			BackoffFactor:   2.0,
			RequestTimeout:  50 * time.Millisecond,
		},
		Fallback: PollPolicy{
			TotalBudget:     500 * time.Millisecond,
			InitialInterval: 100 * time.Millisecond,
			MaxInterval:     200 * time.Millisecond,
			BackoffFactor:   2.0,
			RequestTimeout:  50 * time.Millisecond,
		},
		SessionWaitCeiling: 300 * time.Millisecond,
		SessionRecheck:     50 * time.Millisecond,
		IdentityTimeout:    time.Second,
	}
}

type coordFixture struct {
	api      *fakeAPI
	sessions *fakeSessions
	nav      *fakeNav
	clock    *fakeClock
	coord    *Coordinator
}

func newCoordFixture(baseURL string) *coordFixture {
	f := &coordFixture{
		api:      newFakeAPI(),
		sessions: &fakeSessions{},
		nav:      &fakeNav{},
		clock:    newFakeClock(),
	}
	f.coord = NewCoordinator(baseURL, f.api, f.sessions, f.nav, testPolicies(), testLogger())
	f.coord.poller = f.clock.poller()
	return f
}

func collect(t *testing.T, ch <-chan Event) []Event {
	t.Helper()
	var evs []Event
	timeout := time.After(5 * time.Second)
	for {
		select {
		case ev, ok := <-ch:
			if !ok {
				return evs
			}
			evs = append(evs, ev)
		case <-timeout:
			t.Fatal("run did not finish")
		}
	}
}

func phaseSeq(evs []Event) []Phase {
	out := make([]Phase, len(evs))
	for i, ev := range evs {
		out[i] = ev.Phase
	}
	return out
}

func assertPhases(t *testing.T, evs []Event, want ...Phase) {
	t.Helper()
	got := phaseSeq(evs)
	if len(got) != len(want) {
		t.Fatalf("phases %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("phases %v, want %v", got, want)
		}
	}
}

func assertMonotonic(t *testing.T, evs []Event) {
	t.Helper()
	last := -1
	for _, ev := range evs {
		if ev.Progress < last {
			t.Errorf("progress went backwards at %s: %d after %d", ev.Phase, ev.Progress, last)
		}
		last = ev.Progress
	}
}

func TestRunAuthenticatedLandsOnDashboard(t *testing.T) {
	f := newCoordFixture("http://localhost:8787")
	f.sessions.sess = session.Session{Credential: "tok-1", Hydrated: true}

	evs := collect(t, f.coord.Run(context.Background(), 1))

	assertPhases(t, evs, PhaseInit, PhaseServerWake, PhaseStoreReady, PhaseSessionWait, PhaseCredentialCheck, PhaseDecided)
	assertMonotonic(t, evs)
	wantProgress := []int{0, 10, 55, 75, 85, 100}
	for i, ev := range evs {
		if ev.Progress != wantProgress[i] {
			t.Errorf("%s progress = %d, want %d", ev.Phase, ev.Progress, wantProgress[i])
		}
	}
	last := evs[len(evs)-1]
	if last.Route != nav.RouteDashboard {
		t.Errorf("decided route = %q, want dashboard", last.Route)
	}
	if got := f.nav.routes(); len(got) != 1 || got[0] != nav.RouteDashboard {
		t.Errorf("navigation resets = %v, want [dashboard]", got)
	}
	if f.api.authCalls != 1 {
		t.Errorf("identity checked %d times, want 1", f.api.authCalls)
	}
}

func TestRunNoCredentialLandsOnLogin(t *testing.T) {
	f := newCoordFixture("http://localhost:8787")
	f.sessions.sess = session.Session{Hydrated: true}

	evs := collect(t, f.coord.Run(context.Background(), 1))

	last := evs[len(evs)-1]
	if last.Phase != PhaseDecided || last.Route != nav.RouteLogin {
		t.Fatalf("run ended with %s route %q, want decided login", last.Phase, last.Route)
	}
	if f.api.authCalls != 0 {
		t.Errorf("identity checked %d times without a credential, want 0", f.api.authCalls)
	}
	if got := f.nav.routes(); len(got) != 1 || got[0] != nav.RouteLogin {
		t.Errorf("navigation resets = %v, want [login]", got)
	}
}

func TestRunMissingBaseURLFailsWithoutNetwork(t *testing.T) {
	f := newCoordFixture("")
	f.sessions.sess = session.Session{Hydrated: true}

	evs := collect(t, f.coord.Run(context.Background(), 1))

	assertPhases(t, evs, PhaseInit, PhaseFailed)
	last := evs[len(evs)-1]
	var ce *ConfigError
	if !errors.As(last.Err, &ce) {
		t.Fatalf("failure error = %v, want *ConfigError", last.Err)
	}
	if last.Progress != 0 {
		t.Errorf("failure progress = %d, want 0", last.Progress)
	}
	if n := f.api.totalProbes(); n != 0 {
		t.Errorf("%d network calls made, want none", n)
	}
	if got := f.nav.routes(); len(got) != 0 {
		t.Errorf("navigation reset on failed run: %v", got)
	}
}

func TestRunServerNeverWakes(t *testing.T) {
	f := newCoordFixture("http://localhost:8787")
	f.sessions.sess = session.Session{Hydrated: true}
	f.api.script(healthPath, errDown)

	evs := collect(t, f.coord.Run(context.Background(), 1))

	assertPhases(t, evs, PhaseInit, PhaseServerWake, PhaseFailed)
	assertMonotonic(t, evs)
	last := evs[len(evs)-1]
	var ue *UnreachableError
	if !errors.As(last.Err, &ue) {
		t.Fatalf("failure error = %v, want *UnreachableError", last.Err)
	}
	if ue.Target != "server" {
		t.Errorf("unreachable target = %q, want server", ue.Target)
	}
	var be *BudgetError
	if !errors.As(last.Err, &be) {
		t.Errorf("failure error does not wrap the budget error: %v", last.Err)
	}
	if last.Progress != 10 {
		t.Errorf("failure progress = %d, want 10 held from server wake", last.Progress)
	}
	if f.api.probeCount(readyPath) != 0 {
		t.Error("readiness probed even though the server never woke")
	}
	if got := f.nav.routes(); len(got) != 0 {
		t.Errorf("navigation reset on failed run: %v", got)
	}
}

func TestRunReadinessFallsBack(t *testing.T) {
	f := newCoordFixture("http://localhost:8787")
	f.sessions.sess = session.Session{Credential: "tok-1", Hydrated: true}
	f.api.script(readyPath, errDown)

	evs := collect(t, f.coord.Run(context.Background(), 1))

	assertPhases(t, evs, PhaseInit, PhaseServerWake, PhaseStoreReady, PhaseStoreReady, PhaseSessionWait, PhaseCredentialCheck, PhaseDecided)
	assertMonotonic(t, evs)
	if evs[3].Detail == "" {
		t.Error("fallback event carries no detail")
	}
	if evs[3].Progress != 55 {
		t.Errorf("fallback event progress = %d, want 55", evs[3].Progress)
	}
	if f.api.probeCount(fallbackReadyPath) == 0 {
		t.Error("fallback path never probed")
	}
	if last := evs[len(evs)-1]; last.Route != nav.RouteDashboard {
		t.Errorf("decided route = %q, want dashboard", last.Route)
	}
}

func TestRunStoreNeverReady(t *testing.T) {
	f := newCoordFixture("http://localhost:8787")
	f.sessions.sess = session.Session{Hydrated: true}
	f.api.script(readyPath, errDown)
	f.api.script(fallbackReadyPath, errDown)

	evs := collect(t, f.coord.Run(context.Background(), 1))

	last := evs[len(evs)-1]
	if last.Phase != PhaseFailed {
		t.Fatalf("run ended with %s, want failed", last.Phase)
	}
	var ue *UnreachableError
	if !errors.As(last.Err, &ue) {
		t.Fatalf("failure error = %v, want *UnreachableError", last.Err)
	}
	if ue.Target != "data store" {
		t.Errorf("unreachable target = %q, want data store", ue.Target)
	}
	if last.Progress != 55 {
		t.Errorf("failure progress = %d, want 55", last.Progress)
	}
	if f.api.probeCount(readyPath) == 0 || f.api.probeCount(fallbackReadyPath) == 0 {
		t.Error("both readiness paths should have been polled to exhaustion")
	}
}

func TestRunIdentityOutcomes(t *testing.T) {
	tests := []struct {
		name        string
		authStatus  int
		authErr     error
		wantRoute   nav.Route
		wantLogouts int
	}{
		{"valid credential", http.StatusOK, nil, nav.RouteDashboard, 0},
		{"rejected credential", http.StatusUnauthorized, nil, nav.RouteLogin, 1},
		{"server error trusts local state", http.StatusInternalServerError, nil, nav.RouteDashboard, 0},
		{"missing endpoint trusts local state", http.StatusNotFound, nil, nav.RouteDashboard, 0},
		{"unreachable trusts local state", 0, errDown, nav.RouteDashboard, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newCoordFixture("http://localhost:8787")
			f.sessions.sess = session.Session{Credential: "tok-1", Hydrated: true}
			f.api.authStatus = tt.authStatus
			f.api.authErr = tt.authErr

			evs := collect(t, f.coord.Run(context.Background(), 1))

			last := evs[len(evs)-1]
			if last.Phase != PhaseDecided {
				t.Fatalf("run ended with %s, want decided", last.Phase)
			}
			if last.Route != tt.wantRoute {
				t.Errorf("decided route = %q, want %q", last.Route, tt.wantRoute)
			}
			if got := f.sessions.logoutCount(); got != tt.wantLogouts {
				t.Errorf("logouts = %d, want %d", got, tt.wantLogouts)
			}
			if got := f.nav.routes(); len(got) != 1 || got[0] != tt.wantRoute {
				t.Errorf("navigation resets = %v, want [%s]", got, tt.wantRoute)
			}
		})
	}
}

func TestRunHydrationCeilingExpires(t *testing.T) {
	f := newCoordFixture("http://localhost:8787")

	evs := collect(t, f.coord.Run(context.Background(), 1))

	last := evs[len(evs)-1]
	if last.Phase != PhaseDecided || last.Route != nav.RouteLogin {
		t.Fatalf("run ended with %s route %q, want decided login", last.Phase, last.Route)
	}
	// Health and readiness succeed instantly, so every recorded sleep is a
	// hydration recheck: 300ms ceiling at 50ms per recheck.
	sleeps := f.clock.sleepLog()
	if len(sleeps) != 6 {
		t.Fatalf("%d hydration rechecks, want 6: %v", len(sleeps), sleeps)
	}
	for i, d := range sleeps {
		if d != 50*time.Millisecond {
			t.Errorf("recheck %d slept %v, want 50ms", i, d)
		}
	}
}

func TestRunHydrationArrivesDuringWait(t *testing.T) {
	f := newCoordFixture("http://localhost:8787")
	f.sessions.sess = session.Session{Credential: "tok-1"}
	f.sessions.hydrateAfterReads = 3

	evs := collect(t, f.coord.Run(context.Background(), 1))

	last := evs[len(evs)-1]
	if last.Phase != PhaseDecided || last.Route != nav.RouteDashboard {
		t.Fatalf("run ended with %s route %q, want decided dashboard", last.Phase, last.Route)
	}
	if sleeps := f.clock.sleepLog(); len(sleeps) != 2 {
		t.Errorf("%d hydration rechecks, want 2: %v", len(sleeps), sleeps)
	}
}

func TestRunAbandonedStaysSilent(t *testing.T) {
	f := newCoordFixture("http://localhost:8787")
	f.sessions.sess = session.Session{Credential: "tok-1", Hydrated: true}
	f.api.script(healthPath, errDown)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	probes := 0
	f.api.onProbe = func(path string) {
		probes++
		if probes == 3 {
			cancel()
		}
	}

	evs := collect(t, f.coord.Run(ctx, 1))

	assertPhases(t, evs, PhaseInit, PhaseServerWake)
	for _, ev := range evs {
		if ev.Phase == PhaseFailed || ev.Phase == PhaseDecided {
			t.Errorf("abandoned run emitted %s", ev.Phase)
		}
	}
	if got := f.nav.routes(); len(got) != 0 {
		t.Errorf("abandoned run reset navigation: %v", got)
	}
	if f.sessions.logoutCount() != 0 {
		t.Error("abandoned run touched session state")
	}
}

func TestRunEventsCarryRunID(t *testing.T) {
	f := newCoordFixture("http://localhost:8787")
	f.sessions.sess = session.Session{Hydrated: true}

	for _, runID := range []int{42, 43} {
		evs := collect(t, f.coord.Run(context.Background(), runID))
		if len(evs) == 0 {
			t.Fatalf("run %d emitted no events", runID)
		}
		for _, ev := range evs {
			if ev.RunID != runID {
				t.Errorf("event %s carries run %d, want %d", ev.Phase, ev.RunID, runID)
			}
		}
	}
}

func TestRunRetryStartsFresh(t *testing.T) {
	f := newCoordFixture("http://localhost:8787")
	f.sessions.sess = session.Session{Credential: "tok-1", Hydrated: true}
	f.api.script(healthPath, errDown)

	first := collect(t, f.coord.Run(context.Background(), 1))
	if last := first[len(first)-1]; last.Phase != PhaseFailed {
		t.Fatalf("first run ended with %s, want failed", last.Phase)
	}

	// The server comes up between attempts; the retry gets a full budget and
	// starts from the beginning.
	f.api.script(healthPath)
	second := collect(t, f.coord.Run(context.Background(), 2))

	assertPhases(t, second, PhaseInit, PhaseServerWake, PhaseStoreReady, PhaseSessionWait, PhaseCredentialCheck, PhaseDecided)
	if second[0].Progress != 0 {
		t.Errorf("retry began at progress %d, want 0", second[0].Progress)
	}
	if last := second[len(second)-1]; last.Route != nav.RouteDashboard {
		t.Errorf("retry decided %q, want dashboard", last.Route)
	}
}
