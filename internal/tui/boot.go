package tui

import (
	"context"
	"errors"

	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/pulsedash/pulse/internal/boot"
)

// --- Messages ---

// bootStartedMsg hands a freshly launched run's channel and cancel back to
// the model
type bootStartedMsg struct {
	runID  int
	events <-chan boot.Event
	cancel context.CancelFunc
}

// bootEventMsg carries one event from the active readiness run
type bootEventMsg struct {
	ev boot.Event
}

// bootClosedMsg is sent when a run's event channel closes
type bootClosedMsg struct {
	runID int
}

// --- Commands ---

// startBootCmd launches a readiness run. Runs start from a command rather
// than from the constructor so the navigation controller is attached before
// the first decision can land.
func (m Model) startBootCmd(runID int) tea.Cmd {
	coordinator := m.app.Boot
	return func() tea.Msg {
		ctx, cancel := context.WithCancel(context.Background())
		return bootStartedMsg{
			runID:  runID,
			events: coordinator.Run(ctx, runID),
			cancel: cancel,
		}
	}
}

// waitForBootEvent blocks on the run's event channel and feeds the next event
// into the program. The run ID travels with it so stale listeners resolve.
func waitForBootEvent(ch <-chan boot.Event, runID int) tea.Cmd {
	return func() tea.Msg {
		ev, ok := <-ch
		if !ok {
			return bootClosedMsg{runID: runID}
		}
		return bootEventMsg{ev: ev}
	}
}

// --- Update handling ---

func (m Model) handleBootStarted(msg bootStartedMsg) (tea.Model, tea.Cmd) {
	// A retry can supersede a run before its start message arrives. The
	// stale run is cancelled and never listened to.
	if msg.runID != m.bootRunID {
		msg.cancel()
		return m, nil
	}

	m.bootCancel = msg.cancel
	m.bootEvents = msg.events
	return m, waitForBootEvent(m.bootEvents, m.bootRunID)
}

func (m Model) handleBootEvent(msg bootEventMsg) (tea.Model, tea.Cmd) {
	// Events from a superseded run are dropped, and its listener ends here.
	if msg.ev.RunID != m.bootRunID {
		return m, nil
	}

	m.bootPhase = msg.ev.Phase
	m.bootPercent = msg.ev.Progress
	m.bootDetail = msg.ev.Detail
	if msg.ev.Phase == boot.PhaseFailed {
		m.bootErr = msg.ev.Err
	}

	return m, tea.Batch(
		waitForBootEvent(m.bootEvents, m.bootRunID),
		m.bootBar.SetPercent(float64(msg.ev.Progress)/100),
	)
}

func (m Model) handleBootKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.Quit):
		return m.quit()
	case key.Matches(msg, m.keys.Help):
		m.helpOpen = true
		return m, nil
	case key.Matches(msg, m.keys.Retry):
		if m.bootPhase == boot.PhaseFailed {
			return m.restartBoot()
		}
	}
	return m, nil
}

// restartBoot abandons the current run and starts a new one with fresh
// budgets. The old run's context is cancelled so it stops probing; anything
// it still emits carries the old run ID and is dropped.
func (m Model) restartBoot() (tea.Model, tea.Cmd) {
	if m.bootCancel != nil {
		m.bootCancel()
	}

	m.bootRunID++
	m.bootCancel = nil
	m.bootEvents = nil
	m.bootPhase = boot.PhaseInit
	m.bootPercent = 0
	m.bootDetail = ""
	m.bootErr = nil
	m.screen = ScreenBoot

	return m, tea.Batch(
		m.startBootCmd(m.bootRunID),
		m.bootBar.SetPercent(0),
	)
}

// --- Views ---

// bootView renders the readiness gate
func (m Model) bootView() string {
	title := TitleStyle.Render("PULSE") + "  " + SubtitleStyle.Render("small business metrics")

	var body string
	if m.bootPhase == boot.PhaseFailed {
		body = m.bootFailureView()
	} else {
		line := SpinnerStyle.Render(spinnerFrames[m.spinnerIndex]) + " " + phaseLabel(m.bootPhase)
		if m.bootDetail != "" {
			line += DimStyle.Render(" · " + m.bootDetail)
		}
		body = lipgloss.JoinVertical(lipgloss.Left,
			m.bootBar.View(),
			"",
			line,
		)
	}

	panel := PanelStyle.Render(lipgloss.JoinVertical(lipgloss.Left,
		title,
		"",
		body,
	))
	return lipgloss.Place(m.width, m.height, lipgloss.Center, lipgloss.Center, panel)
}

func (m Model) bootFailureView() string {
	headline := "Startup failed"
	detail := ""

	var ce *boot.ConfigError
	var ue *boot.UnreachableError
	switch {
	case errors.As(m.bootErr, &ce):
		headline = "Configuration problem"
		detail = ce.Reason
	case errors.As(m.bootErr, &ue):
		headline = "The " + ue.Target + " is not responding"
		detail = "Check that the backend is running and reachable."
	case m.bootErr != nil:
		detail = m.bootErr.Error()
	}

	hint := HelpKeyStyle.Render("r") + HelpDescStyle.Render(" retry") +
		"   " + HelpKeyStyle.Render("q") + HelpDescStyle.Render(" quit")

	return lipgloss.JoinVertical(lipgloss.Left,
		ErrorStyle.Render("✗ "+headline),
		DimStyle.Render(detail),
		"",
		hint,
	)
}

// phaseLabel translates a phase into the line shown under the progress bar
func phaseLabel(p boot.Phase) string {
	switch p {
	case boot.PhaseInit:
		return "Checking configuration"
	case boot.PhaseServerWake:
		return "Waking the server"
	case boot.PhaseStoreReady:
		return "Waiting for the data store"
	case boot.PhaseSessionWait:
		return "Restoring your session"
	case boot.PhaseCredentialCheck:
		return "Verifying your credentials"
	case boot.PhaseDecided:
		return "Ready"
	}
	return ""
}
