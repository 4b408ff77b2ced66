package tui

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/pulsedash/pulse/internal/api"
	"github.com/pulsedash/pulse/internal/live"
)

// dashboard holds the metrics screen state
type dashboard struct {
	overview  *api.MetricsOverview
	fetchedAt time.Time
	liveAt    time.Time
	loading   bool
	errText   string
}

func newDashboard() dashboard {
	return dashboard{loading: true}
}

// --- Messages ---

// overviewMsg carries a metrics refresh result
type overviewMsg struct {
	overview *api.MetricsOverview
	err      error
}

// profileMsg carries a profile fetch result
type profileMsg struct {
	profile *api.Profile
	err     error
}

// loggedOutMsg is sent after the session has been cleared
type loggedOutMsg struct{}

// liveUpdateMsg carries one pushed update from the live feed
type liveUpdateMsg struct {
	update live.Update
}

// liveStoppedMsg is sent when the live feed channel closes
type liveStoppedMsg struct{}

// --- Commands ---

// waitForLiveUpdate blocks until the feed pushes an update.
func waitForLiveUpdate(ch <-chan live.Update) tea.Cmd {
	return func() tea.Msg {
		update, ok := <-ch
		if !ok {
			return liveStoppedMsg{}
		}
		return liveUpdateMsg{update: update}
	}
}

func (m Model) fetchOverviewCmd() tea.Cmd {
	client := m.app.Client
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		overview, err := client.MetricsOverview(ctx)
		return overviewMsg{overview: overview, err: err}
	}
}

func (m Model) fetchProfileCmd() tea.Cmd {
	client := m.app.Client
	sessions := m.app.Sessions
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		profile, err := client.Me(ctx)
		if err == nil {
			sessions.SetProfile(profile)
		}
		return profileMsg{profile: profile, err: err}
	}
}

func (m Model) logoutCmd() tea.Cmd {
	sessions := m.app.Sessions
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		sessions.Logout(ctx)
		return loggedOutMsg{}
	}
}

// --- Update handling ---

func (m Model) handleDashboardKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.Quit):
		return m.quit()
	case key.Matches(msg, m.keys.Help):
		m.helpOpen = true
		return m, nil
	case key.Matches(msg, m.keys.Refresh):
		m.dash.loading = true
		m.dash.errText = ""
		return m, m.fetchOverviewCmd()
	case key.Matches(msg, m.keys.SignOut):
		return m, m.logoutCmd()
	}
	return m, nil
}

// enterDashboard switches to the metrics screen and kicks off the initial
// fetches. The live listener is armed once in Init and stays armed; only the
// feed itself is started here.
func (m Model) enterDashboard() (tea.Model, tea.Cmd) {
	m.screen = ScreenDashboard
	m.helpOpen = false
	m.dash = newDashboard()

	cmds := []tea.Cmd{m.fetchOverviewCmd()}
	if m.app.Sessions.Session().Profile == nil {
		cmds = append(cmds, m.fetchProfileCmd())
	}
	if m.app.Live != nil {
		m.app.Live.Start()
	}
	return m, tea.Batch(cmds...)
}

// --- Views ---

func (m Model) dashboardView() string {
	header := m.renderDashHeader()
	body := m.renderDashBody()
	status := m.renderStatusBar()

	gap := m.height - lipgloss.Height(header) - lipgloss.Height(body) - lipgloss.Height(status)
	if gap < 0 {
		gap = 0
	}
	return lipgloss.JoinVertical(lipgloss.Left,
		header,
		body,
		strings.Repeat("\n", gap),
		status,
	)
}

func (m Model) renderDashHeader() string {
	title := TitleStyle.Render("PULSE")

	who := ""
	if profile := m.app.Sessions.Session().Profile; profile != nil {
		who = profile.DisplayName
		if who == "" {
			who = profile.Email
		}
	}

	parts := []string{title}
	if m.dash.overview != nil {
		parts = append(parts, SubtitleStyle.Render(m.dash.overview.Period))
	}
	if !m.dash.liveAt.IsZero() {
		parts = append(parts, LiveStyle.Render("● live"))
	}
	left := strings.Join(parts, "  ")

	right := SubtitleStyle.Render(who)
	pad := m.width - lipgloss.Width(left) - lipgloss.Width(right) - 2
	if pad < 1 {
		pad = 1
	}
	return " " + left + strings.Repeat(" ", pad) + right
}

func (m Model) renderDashBody() string {
	if m.dash.overview == nil {
		var line string
		if m.dash.loading {
			line = SpinnerStyle.Render(spinnerFrames[m.spinnerIndex]) + " Loading metrics..."
		} else {
			line = ErrorStyle.Render("No metrics yet.") + DimStyle.Render("  press r to retry")
		}
		height := m.height - 3
		if height < 1 {
			height = 1
		}
		return lipgloss.Place(m.width, height, lipgloss.Center, lipgloss.Center, line)
	}

	balance := m.renderBalance()
	ranking := m.renderRanking()
	distribution := m.renderDistribution()

	return lipgloss.JoinVertical(lipgloss.Left,
		balance,
		"",
		ranking,
		"",
		distribution,
	)
}

func (m Model) renderBalance() string {
	b := m.dash.overview.Balance

	income := DeltaUpStyle.Render(formatAmount(b.Income, b.Currency))
	expenses := DeltaDownStyle.Render(formatAmount(b.Expenses, b.Currency))
	net := formatAmount(b.Net, b.Currency)
	if b.Net >= 0 {
		net = DeltaUpStyle.Render(net)
	} else {
		net = DeltaDownStyle.Render(net)
	}

	rows := lipgloss.JoinVertical(lipgloss.Left,
		CardTitleStyle.Render("Balance"),
		"",
		fmt.Sprintf("%s  %s", SubtitleStyle.Render("Income  "), income),
		fmt.Sprintf("%s  %s", SubtitleStyle.Render("Expenses"), expenses),
		fmt.Sprintf("%s  %s", SubtitleStyle.Render("Net     "), net),
	)
	return CardStyle.Render(rows)
}

func (m Model) renderRanking() string {
	ranking := m.dash.overview.Ranking
	if len(ranking) == 0 {
		return ""
	}

	cards := make([]string, 0, len(ranking))
	for _, kpi := range ranking {
		value := ValueStyle.Render(trimFloat(kpi.Value))
		if kpi.Unit != "" {
			value += SubtitleStyle.Render(" " + kpi.Unit)
		}

		delta := ""
		switch {
		case kpi.Delta > 0:
			delta = DeltaUpStyle.Render("▲ " + trimFloat(kpi.Delta))
		case kpi.Delta < 0:
			delta = DeltaDownStyle.Render("▼ " + trimFloat(-kpi.Delta))
		default:
			delta = DimStyle.Render("—")
		}

		cards = append(cards, CardStyle.Render(lipgloss.JoinVertical(lipgloss.Left,
			CardTitleStyle.Render(kpi.Name),
			value,
			delta,
		)))
	}
	return lipgloss.JoinVertical(lipgloss.Left,
		SectionTitleStyle.Render("  Top indicators"),
		lipgloss.JoinHorizontal(lipgloss.Top, cards...),
	)
}

func (m Model) renderDistribution() string {
	distribution := m.dash.overview.Distribution
	if len(distribution) == 0 {
		return ""
	}

	const barWidth = 30
	labelWidth := 0
	for _, seg := range distribution {
		if len(seg.Label) > labelWidth {
			labelWidth = len(seg.Label)
		}
	}

	rows := make([]string, 0, len(distribution)+1)
	rows = append(rows, SectionTitleStyle.Render("  Categories"))
	for _, seg := range distribution {
		filled := int(seg.Share*barWidth + 0.5)
		if filled > barWidth {
			filled = barWidth
		}
		if filled < 0 {
			filled = 0
		}
		bar := BarFilledStyle.Render(strings.Repeat("█", filled)) +
			BarEmptyStyle.Render(strings.Repeat("░", barWidth-filled))
		rows = append(rows, fmt.Sprintf("  %-*s %s %4.1f%%",
			labelWidth, seg.Label, bar, seg.Share*100))
	}
	return strings.Join(rows, "\n")
}

func (m Model) renderStatusBar() string {
	var left string
	switch {
	case m.dash.errText != "":
		left = ErrorStyle.Render(m.dash.errText)
	case m.dash.loading:
		left = SpinnerStyle.Render(spinnerFrames[m.spinnerIndex]) + " refreshing"
	case !m.dash.fetchedAt.IsZero():
		left = DimStyle.Render("updated " + m.dash.fetchedAt.Format("15:04:05"))
	}

	right := m.keys.helpHint()
	pad := m.width - lipgloss.Width(left) - lipgloss.Width(right) - 2
	if pad < 1 {
		pad = 1
	}
	return StatusBarStyle.Render(" " + left + strings.Repeat(" ", pad) + right)
}

// formatAmount renders a money value with thousands separators, e.g.
// "12,480.50 EUR".
func formatAmount(v float64, currency string) string {
	neg := v < 0
	if neg {
		v = -v
	}
	cents := int64(v*100 + 0.5)
	whole, frac := cents/100, cents%100

	digits := fmt.Sprintf("%d", whole)
	var grouped strings.Builder
	for i, d := range digits {
		if i > 0 && (len(digits)-i)%3 == 0 {
			grouped.WriteByte(',')
		}
		grouped.WriteRune(d)
	}

	out := fmt.Sprintf("%s.%02d", grouped.String(), frac)
	if neg {
		out = "-" + out
	}
	if currency != "" {
		out += " " + currency
	}
	return out
}

// trimFloat drops trailing zeros so values read naturally.
func trimFloat(v float64) string {
	s := fmt.Sprintf("%.2f", v)
	s = strings.TrimRight(s, "0")
	return strings.TrimRight(s, ".")
}
