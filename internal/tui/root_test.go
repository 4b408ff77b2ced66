package tui

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/charmbracelet/bubbles/progress"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/pulsedash/pulse/internal/api"
	"github.com/pulsedash/pulse/internal/boot"
	"github.com/pulsedash/pulse/internal/live"
	"github.com/pulsedash/pulse/internal/nav"
	"github.com/pulsedash/pulse/internal/session"
	"github.com/pulsedash/pulse/internal/storage"
)

// navRecorder captures navigation resets without a running UI
type navRecorder struct {
	mu     sync.Mutex
	resets []nav.Route
}

func (n *navRecorder) ResetTo(route nav.Route) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.resets = append(n.resets, route)
}

// memStore is an in-memory credential store for tests
type memStore struct {
	mu     sync.Mutex
	values map[string]string
}

func newMemStore() *memStore {
	return &memStore{values: map[string]string{}}
}

func (s *memStore) Get(ctx context.Context, key string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.values[key]
	if !ok {
		return "", storage.ErrNotFound
	}
	return v, nil
}

func (s *memStore) Set(ctx context.Context, key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.values[key] = value
	return nil
}

func (s *memStore) Delete(ctx context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.values, key)
	return nil
}

// createTestModel builds a model wired to inert services. No readiness run is
// started; tests feed boot events directly.
func createTestModel() Model {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	signal := api.NewUnauthorizedSignal()
	client := api.NewClient("http://127.0.0.1:0", signal, logger)
	recorder := &navRecorder{}
	sessions := session.NewManager(newMemStore(), client, signal, recorder, logger)
	coordinator := boot.NewCoordinator("", client, sessions, recorder, boot.DefaultPolicies(), logger)

	return Model{
		app: App{
			Client:   client,
			Sessions: sessions,
			Boot:     coordinator,
			Logger:   logger,
		},
		width:      120,
		height:     40,
		ready:      true,
		screen:     ScreenBoot,
		bootRunID:  1,
		bootCancel: func() {},
		bootEvents: make(chan boot.Event),
		bootBar:    progress.New(progress.WithDefaultGradient(), progress.WithWidth(44)),
		login:      newLoginForm(),
		keys:       DefaultKeyMap(),
	}
}

func runeKey(r rune) tea.KeyMsg {
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{r}}
}

func TestWindowSizeMakesModelReady(t *testing.T) {
	m := createTestModel()
	m.ready = false

	newModel, _ := m.Update(tea.WindowSizeMsg{Width: 100, Height: 30})
	got := newModel.(Model)

	if !got.ready {
		t.Error("expected ready after WindowSizeMsg")
	}
	if got.width != 100 || got.height != 30 {
		t.Errorf("dimensions = %dx%d, want 100x30", got.width, got.height)
	}
	if got.bootBar.Width != 60 {
		t.Errorf("bootBar.Width = %d, want 60 (clamped)", got.bootBar.Width)
	}
}

func TestBootEventAdvancesGate(t *testing.T) {
	m := createTestModel()

	ev := boot.Event{RunID: 1, Phase: boot.PhaseServerWake, Progress: 10}
	newModel, cmd := m.Update(bootEventMsg{ev: ev})
	got := newModel.(Model)

	if got.bootPhase != boot.PhaseServerWake {
		t.Errorf("bootPhase = %v, want %v", got.bootPhase, boot.PhaseServerWake)
	}
	if got.bootPercent != 10 {
		t.Errorf("bootPercent = %d, want 10", got.bootPercent)
	}
	if cmd == nil {
		t.Error("expected a command to keep listening and animate the bar")
	}
}

func TestBootEventFromSupersededRunDropped(t *testing.T) {
	m := createTestModel()
	m.bootRunID = 2

	ev := boot.Event{RunID: 1, Phase: boot.PhaseFailed, Progress: 55, Err: errors.New("stale")}
	newModel, cmd := m.Update(bootEventMsg{ev: ev})
	got := newModel.(Model)

	if got.bootPhase != boot.PhaseInit {
		t.Errorf("bootPhase = %v, want untouched %v", got.bootPhase, boot.PhaseInit)
	}
	if got.bootErr != nil {
		t.Errorf("bootErr = %v, want nil", got.bootErr)
	}
	if cmd != nil {
		t.Error("expected stale listener to end without a follow-up command")
	}
}

func TestBootFailureCarriesError(t *testing.T) {
	m := createTestModel()

	wantErr := &boot.UnreachableError{Target: "server", Err: errors.New("down")}
	ev := boot.Event{RunID: 1, Phase: boot.PhaseFailed, Progress: 10, Err: wantErr}
	newModel, _ := m.Update(bootEventMsg{ev: ev})
	got := newModel.(Model)

	if got.bootPhase != boot.PhaseFailed {
		t.Errorf("bootPhase = %v, want %v", got.bootPhase, boot.PhaseFailed)
	}
	if !errors.Is(got.bootErr, wantErr) {
		t.Errorf("bootErr = %v, want %v", got.bootErr, wantErr)
	}
}

func TestRetryKeyStartsFreshRun(t *testing.T) {
	m := createTestModel()
	m.bootPhase = boot.PhaseFailed
	m.bootPercent = 10
	m.bootErr = errors.New("boom")

	newModel, cmd := m.Update(runeKey('r'))
	got := newModel.(Model)

	if got.bootRunID != 2 {
		t.Errorf("bootRunID = %d, want 2", got.bootRunID)
	}
	if got.bootPhase != boot.PhaseInit || got.bootPercent != 0 || got.bootErr != nil {
		t.Errorf("gate state not reset: phase=%v percent=%d err=%v",
			got.bootPhase, got.bootPercent, got.bootErr)
	}
	if got.screen != ScreenBoot {
		t.Errorf("screen = %v, want %v", got.screen, ScreenBoot)
	}
	if cmd == nil {
		t.Error("expected a command to start the new run")
	}
}

func TestBootStartedWiresListener(t *testing.T) {
	m := createTestModel()
	m.bootCancel = nil
	m.bootEvents = nil

	events := make(chan boot.Event, 1)
	newModel, cmd := m.Update(bootStartedMsg{runID: 1, events: events, cancel: func() {}})
	got := newModel.(Model)

	if got.bootEvents == nil {
		t.Error("expected the run's event channel to be stored")
	}
	if got.bootCancel == nil {
		t.Error("expected the run's cancel to be stored")
	}
	if cmd == nil {
		t.Error("expected a command to listen for events")
	}
}

func TestStaleBootStartCancelled(t *testing.T) {
	m := createTestModel()
	m.bootRunID = 2
	m.bootEvents = nil

	cancelled := false
	newModel, cmd := m.Update(bootStartedMsg{runID: 1, events: make(chan boot.Event), cancel: func() { cancelled = true }})
	got := newModel.(Model)

	if !cancelled {
		t.Error("expected the superseded run to be cancelled")
	}
	if got.bootEvents != nil {
		t.Error("expected the superseded run's channel to be ignored")
	}
	if cmd != nil {
		t.Error("expected no follow-up command for a superseded run")
	}
}

func TestRetryIgnoredWhileGateRunning(t *testing.T) {
	m := createTestModel()
	m.bootPhase = boot.PhaseStoreReady

	newModel, cmd := m.Update(runeKey('r'))
	got := newModel.(Model)

	if got.bootRunID != 1 {
		t.Errorf("bootRunID = %d, want 1", got.bootRunID)
	}
	if cmd != nil {
		t.Error("expected no command while the gate is still running")
	}
}

func TestNavResetSwitchesScreens(t *testing.T) {
	m := createTestModel()

	newModel, cmd := m.Update(nav.ResetMsg{Route: nav.RouteDashboard})
	got := newModel.(Model)
	if got.screen != ScreenDashboard {
		t.Errorf("screen = %v, want %v", got.screen, ScreenDashboard)
	}
	if !got.dash.loading {
		t.Error("expected dashboard to start loading")
	}
	if cmd == nil {
		t.Error("expected a fetch command on dashboard entry")
	}

	m = createTestModel()
	newModel, _ = m.Update(nav.ResetMsg{Route: nav.RouteLogin})
	got = newModel.(Model)
	if got.screen != ScreenLogin {
		t.Errorf("screen = %v, want %v", got.screen, ScreenLogin)
	}
}

func TestLoginEnterOnEmailMovesToPassword(t *testing.T) {
	m := createTestModel()
	m.screen = ScreenLogin

	newModel, _ := m.Update(tea.KeyMsg{Type: tea.KeyEnter})
	got := newModel.(Model)

	if got.login.focusIdx != 1 {
		t.Errorf("focusIdx = %d, want 1", got.login.focusIdx)
	}
	if got.login.submitting {
		t.Error("enter on the email field must not submit")
	}
}

func TestLoginSubmitValidatesEmptyFields(t *testing.T) {
	m := createTestModel()
	m.screen = ScreenLogin
	m.login = m.login.focusField(1)

	newModel, cmd := m.Update(tea.KeyMsg{Type: tea.KeyEnter})
	got := newModel.(Model)

	if got.login.errText != "Enter your email and password." {
		t.Errorf("errText = %q, want validation message", got.login.errText)
	}
	if got.login.submitting {
		t.Error("expected no submit with empty fields")
	}
	if cmd != nil {
		t.Error("expected no command with empty fields")
	}
}

func TestLoginSubmitSendsCredentials(t *testing.T) {
	m := createTestModel()
	m.screen = ScreenLogin
	m.login.identifier.SetValue("owner@shop.example")
	m.login.secret.SetValue("hunter2")
	m.login = m.login.focusField(1)

	newModel, cmd := m.Update(tea.KeyMsg{Type: tea.KeyEnter})
	got := newModel.(Model)

	if !got.login.submitting {
		t.Error("expected submitting state")
	}
	if got.login.errText != "" {
		t.Errorf("errText = %q, want empty", got.login.errText)
	}
	if cmd == nil {
		t.Error("expected a login command")
	}
}

func TestLoginFailureShowsFriendlyError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{
			name: "bad credentials",
			err:  &api.APIError{Status: 401, Message: "unauthorized"},
			want: "Email or password is incorrect.",
		},
		{
			name: "server error",
			err:  &api.APIError{Status: 503, Message: "upstream down"},
			want: "The server had a problem. Try again in a moment.",
		},
		{
			name: "transport failure",
			err:  errors.New("dial tcp: connection refused"),
			want: "Can't reach the server. Check your connection and try again.",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := createTestModel()
			m.screen = ScreenLogin
			m.login.submitting = true
			m.login.secret.SetValue("hunter2")

			newModel, _ := m.Update(loginResultMsg{err: tt.err})
			got := newModel.(Model)

			if got.screen != ScreenLogin {
				t.Errorf("screen = %v, want %v", got.screen, ScreenLogin)
			}
			if got.login.submitting {
				t.Error("expected submitting cleared")
			}
			if got.login.errText != tt.want {
				t.Errorf("errText = %q, want %q", got.login.errText, tt.want)
			}
			if got.login.secret.Value() != "" {
				t.Error("expected the secret field cleared after a failure")
			}
		})
	}
}

func TestLoginSuccessLandsOnDashboard(t *testing.T) {
	m := createTestModel()
	m.screen = ScreenLogin
	m.login.submitting = true

	profile := &api.Profile{ID: "u-1", Email: "owner@shop.example"}
	newModel, cmd := m.Update(loginResultMsg{profile: profile})
	got := newModel.(Model)

	if got.screen != ScreenDashboard {
		t.Errorf("screen = %v, want %v", got.screen, ScreenDashboard)
	}
	if !got.dash.loading {
		t.Error("expected dashboard to start loading")
	}
	if cmd == nil {
		t.Error("expected fetch commands on dashboard entry")
	}
}

func TestTabCyclesLoginFields(t *testing.T) {
	m := createTestModel()
	m.screen = ScreenLogin

	newModel, _ := m.Update(tea.KeyMsg{Type: tea.KeyTab})
	got := newModel.(Model)
	if got.login.focusIdx != 1 {
		t.Errorf("focusIdx after tab = %d, want 1", got.login.focusIdx)
	}

	newModel, _ = got.Update(tea.KeyMsg{Type: tea.KeyShiftTab})
	got = newModel.(Model)
	if got.login.focusIdx != 0 {
		t.Errorf("focusIdx after shift+tab = %d, want 0", got.login.focusIdx)
	}
}

// TestTypedQStaysInLoginForm guards the quit binding against eating letters
// the user types into the form.
func TestTypedQStaysInLoginForm(t *testing.T) {
	m := createTestModel()
	m.screen = ScreenLogin

	newModel, _ := m.Update(runeKey('q'))
	got := newModel.(Model)

	if got.login.identifier.Value() != "q" {
		t.Errorf("identifier = %q, want %q", got.login.identifier.Value(), "q")
	}
	if got.screen != ScreenLogin {
		t.Errorf("screen = %v, want %v", got.screen, ScreenLogin)
	}
}

func TestQuitKeyFromDashboard(t *testing.T) {
	m := createTestModel()
	m.screen = ScreenDashboard

	_, cmd := m.Update(runeKey('q'))
	if cmd == nil {
		t.Fatal("expected a quit command")
	}
	if _, ok := cmd().(tea.QuitMsg); !ok {
		t.Error("expected tea.QuitMsg")
	}
}

func TestForceQuitWorksEverywhere(t *testing.T) {
	for _, screen := range []Screen{ScreenBoot, ScreenLogin, ScreenDashboard} {
		m := createTestModel()
		m.screen = screen

		_, cmd := m.Update(tea.KeyMsg{Type: tea.KeyCtrlC})
		if cmd == nil {
			t.Fatalf("screen %v: expected a quit command", screen)
		}
		if _, ok := cmd().(tea.QuitMsg); !ok {
			t.Errorf("screen %v: expected tea.QuitMsg", screen)
		}
	}
}

func TestOverviewRefreshStoresMetrics(t *testing.T) {
	m := createTestModel()
	m.screen = ScreenDashboard
	m.dash.loading = true

	overview := &api.MetricsOverview{Period: "2026-08"}
	newModel, _ := m.Update(overviewMsg{overview: overview})
	got := newModel.(Model)

	if got.dash.loading {
		t.Error("expected loading cleared")
	}
	if got.dash.overview == nil || got.dash.overview.Period != "2026-08" {
		t.Errorf("overview = %+v, want period 2026-08", got.dash.overview)
	}
	if got.dash.fetchedAt.IsZero() {
		t.Error("expected fetchedAt set")
	}
}

func TestOverviewRefreshFailureKeepsOldData(t *testing.T) {
	m := createTestModel()
	m.screen = ScreenDashboard
	m.dash.overview = &api.MetricsOverview{Period: "2026-07"}
	m.dash.loading = true

	newModel, _ := m.Update(overviewMsg{err: errors.New("boom")})
	got := newModel.(Model)

	if got.dash.errText == "" {
		t.Error("expected an error message")
	}
	if got.dash.overview == nil || got.dash.overview.Period != "2026-07" {
		t.Error("expected the stale overview kept on refresh failure")
	}
}

func TestLiveUpdateReplacesOverview(t *testing.T) {
	m := createTestModel()
	m.screen = ScreenDashboard
	m.dash.overview = &api.MetricsOverview{Period: "2026-07"}
	m.dash.errText = "Refresh failed. Press r to retry."

	at := time.Now()
	update := live.Update{
		Kind:     live.KindMetricsUpdated,
		Overview: &api.MetricsOverview{Period: "2026-08"},
		At:       at,
	}
	newModel, _ := m.Update(liveUpdateMsg{update: update})
	got := newModel.(Model)

	if got.dash.overview.Period != "2026-08" {
		t.Errorf("overview period = %q, want 2026-08", got.dash.overview.Period)
	}
	if !got.dash.liveAt.Equal(at) {
		t.Errorf("liveAt = %v, want %v", got.dash.liveAt, at)
	}
	if got.dash.errText != "" {
		t.Error("expected a live update to clear the refresh error")
	}
}

func TestRefreshKeySetsLoading(t *testing.T) {
	m := createTestModel()
	m.screen = ScreenDashboard
	m.dash.loading = false
	m.dash.errText = "Refresh failed. Press r to retry."

	newModel, cmd := m.Update(runeKey('r'))
	got := newModel.(Model)

	if !got.dash.loading {
		t.Error("expected loading set")
	}
	if got.dash.errText != "" {
		t.Error("expected the error cleared on refresh")
	}
	if cmd == nil {
		t.Error("expected a fetch command")
	}
}

func TestSignOutReturnsToLogin(t *testing.T) {
	m := createTestModel()
	m.screen = ScreenDashboard

	newModel, cmd := m.Update(loggedOutMsg{})
	got := newModel.(Model)

	if got.screen != ScreenLogin {
		t.Errorf("screen = %v, want %v", got.screen, ScreenLogin)
	}
	if got.login.identifier.Value() != "" || got.login.secret.Value() != "" {
		t.Error("expected a fresh empty form after sign-out")
	}
	if cmd == nil {
		t.Error("expected the cursor blink command")
	}
}

func TestHelpOverlayToggles(t *testing.T) {
	m := createTestModel()
	m.screen = ScreenDashboard

	newModel, _ := m.Update(runeKey('?'))
	got := newModel.(Model)
	if !got.helpOpen {
		t.Fatal("expected help open after ?")
	}

	// Screen keys are inert while the overlay is up.
	newModel, _ = got.Update(runeKey('r'))
	got = newModel.(Model)
	if !got.helpOpen {
		t.Error("expected help to stay open on unrelated keys")
	}
	if got.dash.loading {
		t.Error("expected refresh not to fire under the overlay")
	}

	newModel, _ = got.Update(tea.KeyMsg{Type: tea.KeyEsc})
	got = newModel.(Model)
	if got.helpOpen {
		t.Error("expected help closed after esc")
	}
	if got.screen != ScreenDashboard {
		t.Errorf("screen = %v, want %v", got.screen, ScreenDashboard)
	}
}

func TestBootViewShowsFailure(t *testing.T) {
	m := createTestModel()
	m.bootPhase = boot.PhaseFailed
	m.bootErr = &boot.UnreachableError{Target: "server", Err: errors.New("down")}

	out := m.View()
	if !strings.Contains(out, "not responding") {
		t.Errorf("boot view missing failure headline:\n%s", out)
	}
	if !strings.Contains(out, "retry") {
		t.Error("boot view missing retry hint")
	}
}

func TestPhaseLabels(t *testing.T) {
	tests := []struct {
		phase boot.Phase
		want  string
	}{
		{boot.PhaseInit, "Checking configuration"},
		{boot.PhaseServerWake, "Waking the server"},
		{boot.PhaseStoreReady, "Waiting for the data store"},
		{boot.PhaseSessionWait, "Restoring your session"},
		{boot.PhaseCredentialCheck, "Verifying your credentials"},
		{boot.PhaseDecided, "Ready"},
	}
	for _, tt := range tests {
		if got := phaseLabel(tt.phase); got != tt.want {
			t.Errorf("phaseLabel(%v) = %q, want %q", tt.phase, got, tt.want)
		}
	}
}

func TestFormatAmount(t *testing.T) {
	tests := []struct {
		value    float64
		currency string
		want     string
	}{
		{0, "EUR", "0.00 EUR"},
		{999.9, "EUR", "999.90 EUR"},
		{1234.5, "EUR", "1,234.50 EUR"},
		{1234567.89, "USD", "1,234,567.89 USD"},
		{-4200.25, "EUR", "-4,200.25 EUR"},
		{12480.5, "", "12,480.50"},
	}
	for _, tt := range tests {
		if got := formatAmount(tt.value, tt.currency); got != tt.want {
			t.Errorf("formatAmount(%v, %q) = %q, want %q", tt.value, tt.currency, got, tt.want)
		}
	}
}
