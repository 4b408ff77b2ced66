package tui

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/pulsedash/pulse/internal/api"
	"github.com/pulsedash/pulse/internal/boot"
	"github.com/pulsedash/pulse/internal/config"
	"github.com/pulsedash/pulse/internal/live"
	"github.com/pulsedash/pulse/internal/nav"
	"github.com/pulsedash/pulse/internal/session"
)

// Screen identifies the active top-level view
type Screen int

const (
	ScreenBoot      Screen = iota // readiness gate shown at launch and on retry
	ScreenLogin                   // credential entry
	ScreenDashboard               // the metrics overview
)

// App bundles the services the UI drives. Everything here is built by the
// composition root; the model only orchestrates.
type App struct {
	Cfg      *config.Config
	Client   *api.Client
	Sessions *session.Manager
	Boot     *boot.Coordinator
	Live     *live.Feed // nil when live updates are disabled
	Logger   *slog.Logger
}

// Messages
type tickMsg time.Time

type spinnerTickMsg struct{}

// Spinner animation frames
var spinnerFrames = []string{"⠋", "⠙", "⠹", "⠸", "⠼", "⠴", "⠦", "⠧", "⠇", "⠏"}

// Model is the root Bubble Tea model
type Model struct {
	app App

	// Terminal dimensions
	width  int
	height int
	ready  bool

	// View state
	screen   Screen
	helpOpen bool

	// Boot gate state
	bootRunID   int
	bootCancel  context.CancelFunc
	bootEvents  <-chan boot.Event
	bootPhase   boot.Phase
	bootPercent int
	bootDetail  string
	bootErr     error
	bootBar     progress.Model

	// Login form
	login loginForm

	// Dashboard
	dash dashboard

	// Streaming indicator state
	spinnerIndex int

	// Key bindings
	keys KeyMap
}

// NewModel builds the root model. The first readiness run starts from Init,
// after the program is pumping messages, so no navigation reset can fire
// before the UI is attached.
func NewModel(app App) Model {
	return Model{
		app:       app,
		screen:    ScreenBoot,
		login:     newLoginForm(),
		keys:      DefaultKeyMap(),
		bootRunID: 1,
		bootBar:   progress.New(progress.WithDefaultGradient(), progress.WithWidth(44)),
	}
}

// Init initializes the model
func (m Model) Init() tea.Cmd {
	cmds := []tea.Cmd{
		textinput.Blink,
		spinnerTickCmd(),
		tickCmd(),
		m.startBootCmd(m.bootRunID),
	}
	if m.app.Live != nil {
		cmds = append(cmds, waitForLiveUpdate(m.app.Live.Updates()))
	}
	return tea.Batch(cmds...)
}

// tickCmd drives the periodic dashboard refresh
func tickCmd() tea.Cmd {
	return tea.Tick(30*time.Second, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

// spinnerTickCmd returns a fast tick command for spinner animation
func spinnerTickCmd() tea.Cmd {
	return tea.Tick(100*time.Millisecond, func(t time.Time) tea.Msg {
		return spinnerTickMsg{}
	})
}

// Update handles messages
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.ready = true

		barWidth := m.width - 24
		if barWidth > 60 {
			barWidth = 60
		}
		if barWidth < 20 {
			barWidth = 20
		}
		m.bootBar.Width = barWidth
		return m, nil

	case tea.KeyMsg:
		return m.handleKey(msg)

	case spinnerTickMsg:
		m.spinnerIndex = (m.spinnerIndex + 1) % len(spinnerFrames)
		return m, spinnerTickCmd()

	case tickMsg:
		var cmds []tea.Cmd
		if m.screen == ScreenDashboard {
			cmds = append(cmds, m.fetchOverviewCmd())
		}
		cmds = append(cmds, tickCmd())
		return m, tea.Batch(cmds...)

	case nav.ResetMsg:
		// The boot gate and the session manager steer the UI through these;
		// whatever screen stack exists is replaced outright.
		switch msg.Route {
		case nav.RouteDashboard:
			return m.enterDashboard()
		case nav.RouteLogin:
			return m.enterLogin()
		}
		return m, nil

	case progress.FrameMsg:
		bar, cmd := m.bootBar.Update(msg)
		m.bootBar = bar.(progress.Model)
		return m, cmd

	case bootStartedMsg:
		return m.handleBootStarted(msg)

	case bootEventMsg:
		return m.handleBootEvent(msg)

	case bootClosedMsg:
		// The run's channel closed; nothing left to listen for.
		return m, nil

	case loginResultMsg:
		return m.handleLoginResult(msg)

	case overviewMsg:
		m.dash.loading = false
		if msg.err != nil {
			m.dash.errText = "Refresh failed. Press r to retry."
			m.app.Logger.Warn("metrics refresh failed", "error", msg.err)
			return m, nil
		}
		m.dash.errText = ""
		m.dash.overview = msg.overview
		m.dash.fetchedAt = time.Now()
		return m, nil

	case profileMsg:
		// The fetch command already stored the profile with the session
		// manager; the view reads it from there on the next frame.
		if msg.err != nil {
			m.app.Logger.Debug("profile fetch failed", "error", msg.err)
		}
		return m, nil

	case loggedOutMsg:
		return m.enterLogin()

	case liveUpdateMsg:
		if msg.update.Overview != nil {
			m.dash.overview = msg.update.Overview
			m.dash.fetchedAt = msg.update.At
			m.dash.liveAt = msg.update.At
			m.dash.errText = ""
		}
		if m.app.Live != nil {
			return m, waitForLiveUpdate(m.app.Live.Updates())
		}
		return m, nil

	case liveStoppedMsg:
		return m, nil
	}

	// Remaining messages (cursor blinks and the like) belong to the focused
	// text inputs.
	if m.screen == ScreenLogin {
		var cmd tea.Cmd
		m.login, cmd = m.login.update(msg)
		return m, cmd
	}
	return m, nil
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if key.Matches(msg, m.keys.Force) {
		return m.quit()
	}

	if m.helpOpen {
		if key.Matches(msg, m.keys.Help) || key.Matches(msg, m.keys.Escape) || key.Matches(msg, m.keys.Quit) {
			m.helpOpen = false
		}
		return m, nil
	}

	switch m.screen {
	case ScreenBoot:
		return m.handleBootKey(msg)
	case ScreenLogin:
		return m.handleLoginKey(msg)
	case ScreenDashboard:
		return m.handleDashboardKey(msg)
	}
	return m, nil
}

// quit tears down what the model owns before stopping the program. The
// composition root closes everything else after Run returns.
func (m Model) quit() (tea.Model, tea.Cmd) {
	if m.bootCancel != nil {
		m.bootCancel()
	}
	if m.app.Live != nil {
		m.app.Live.Stop()
	}
	return m, tea.Quit
}

// View renders the UI
func (m Model) View() string {
	if !m.ready {
		return "Loading..."
	}
	if m.helpOpen {
		return m.helpView()
	}
	switch m.screen {
	case ScreenLogin:
		return m.loginView()
	case ScreenDashboard:
		return m.dashboardView()
	default:
		return m.bootView()
	}
}

// helpView renders the keyboard shortcut overlay
func (m Model) helpView() string {
	rows := []struct {
		key  string
		desc string
	}{
		{"r", "refresh metrics / retry startup"},
		{"s", "sign out"},
		{"tab", "next field"},
		{"shift+tab", "previous field"},
		{"enter", "submit"},
		{"?", "toggle help"},
		{"q", "quit"},
		{"ctrl+c", "force quit"},
	}

	var b strings.Builder
	b.WriteString(HelpTitleStyle.Render("Keyboard shortcuts"))
	b.WriteString("\n\n")
	for _, row := range rows {
		b.WriteString(HelpKeyStyle.Render(fmt.Sprintf("%10s", row.key)))
		b.WriteString("  ")
		b.WriteString(HelpDescStyle.Render(row.desc))
		b.WriteString("\n")
	}
	b.WriteString("\n")
	b.WriteString(DimStyle.Render("esc to close"))

	return lipgloss.Place(m.width, m.height, lipgloss.Center, lipgloss.Center,
		HelpStyle.Render(b.String()))
}
