package tui

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/pulsedash/pulse/internal/api"
)

// loginForm holds the credential entry state
type loginForm struct {
	identifier textinput.Model
	secret     textinput.Model
	focusIdx   int
	submitting bool
	errText    string
}

func newLoginForm() loginForm {
	ident := textinput.New()
	ident.Placeholder = "you@business.example"
	ident.Prompt = "Email:    "
	ident.PromptStyle = InputPromptStyle
	ident.CharLimit = 254
	ident.Width = 36
	ident.Focus()

	secret := textinput.New()
	secret.Placeholder = "password"
	secret.Prompt = "Password: "
	secret.PromptStyle = InputPromptStyle
	secret.EchoMode = textinput.EchoPassword // Never show the secret
	secret.CharLimit = 128
	secret.Width = 36

	return loginForm{identifier: ident, secret: secret}
}

// focusNext and focusPrev both toggle; there are only two fields.
func (f loginForm) focusNext() loginForm {
	return f.focusField(1 - f.focusIdx)
}

func (f loginForm) focusPrev() loginForm {
	return f.focusField(1 - f.focusIdx)
}

func (f loginForm) focusField(idx int) loginForm {
	f.focusIdx = idx
	if idx == 0 {
		f.identifier.Focus()
		f.secret.Blur()
	} else {
		f.identifier.Blur()
		f.secret.Focus()
	}
	return f
}

// update forwards a message to both inputs; the blurred one ignores keys.
func (f loginForm) update(msg tea.Msg) (loginForm, tea.Cmd) {
	var cmds []tea.Cmd
	var cmd tea.Cmd
	f.identifier, cmd = f.identifier.Update(msg)
	cmds = append(cmds, cmd)
	f.secret, cmd = f.secret.Update(msg)
	cmds = append(cmds, cmd)
	return f, tea.Batch(cmds...)
}

// --- Messages ---

// loginResultMsg is sent when the login attempt finishes
type loginResultMsg struct {
	profile *api.Profile
	err     error
}

// --- Commands ---

func (m Model) loginCmd(identifier, secret string) tea.Cmd {
	sessions := m.app.Sessions
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		profile, err := sessions.Login(ctx, identifier, secret)
		return loginResultMsg{profile: profile, err: err}
	}
}

// --- Update handling ---

func (m Model) handleLoginKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if m.login.submitting {
		return m, nil
	}

	switch {
	case key.Matches(msg, m.keys.Escape):
		m.login.errText = ""
		return m, nil
	case key.Matches(msg, m.keys.NextField):
		m.login = m.login.focusNext()
		return m, nil
	case key.Matches(msg, m.keys.PrevField):
		m.login = m.login.focusPrev()
		return m, nil
	case key.Matches(msg, m.keys.Enter):
		return m.submitLogin()
	}

	var cmd tea.Cmd
	m.login, cmd = m.login.update(msg)
	return m, cmd
}

func (m Model) submitLogin() (tea.Model, tea.Cmd) {
	// Enter on the email field moves on instead of submitting half a form.
	if m.login.focusIdx == 0 {
		m.login = m.login.focusNext()
		return m, nil
	}

	identifier := strings.TrimSpace(m.login.identifier.Value())
	secret := m.login.secret.Value()
	if identifier == "" || secret == "" {
		m.login.errText = "Enter your email and password."
		return m, nil
	}

	m.login.submitting = true
	m.login.errText = ""
	return m, m.loginCmd(identifier, secret)
}

func (m Model) handleLoginResult(msg loginResultMsg) (tea.Model, tea.Cmd) {
	m.login.submitting = false
	if msg.err != nil {
		m.login.errText = loginErrorText(msg.err)
		m.login.secret.SetValue("")
		m.login = m.login.focusField(1)
		return m, nil
	}
	return m.enterDashboard()
}

// enterLogin switches to credential entry with a clean form. Reached on
// sign-out, on a rejected stored credential, and when boot finds no session.
func (m Model) enterLogin() (tea.Model, tea.Cmd) {
	if m.app.Live != nil {
		m.app.Live.Stop()
	}
	m.screen = ScreenLogin
	m.helpOpen = false
	m.login = newLoginForm()
	return m, textinput.Blink
}

func loginErrorText(err error) string {
	var apiErr *api.APIError
	if errors.As(err, &apiErr) {
		switch {
		case apiErr.Status == http.StatusUnauthorized:
			return "Email or password is incorrect."
		case apiErr.Status >= 500:
			return "The server had a problem. Try again in a moment."
		case apiErr.Message != "":
			return apiErr.Message
		}
		return "Sign in failed."
	}
	return "Can't reach the server. Check your connection and try again."
}

// --- Views ---

// loginView renders the credential entry screen
func (m Model) loginView() string {
	title := TitleStyle.Render("PULSE")
	subtitle := SubtitleStyle.Render("Sign in to your dashboard")

	fields := lipgloss.JoinVertical(lipgloss.Left,
		m.login.identifier.View(),
		"",
		m.login.secret.View(),
	)

	var status string
	switch {
	case m.login.submitting:
		status = SpinnerStyle.Render(spinnerFrames[m.spinnerIndex]) + " Signing in..."
	case m.login.errText != "":
		status = ErrorStyle.Render(m.login.errText)
	default:
		status = DimStyle.Render("enter to sign in · tab to switch fields")
	}

	panel := PanelStyle.Render(lipgloss.JoinVertical(lipgloss.Left,
		title,
		subtitle,
		"",
		fields,
		"",
		status,
	))
	return lipgloss.Place(m.width, m.height, lipgloss.Center, lipgloss.Center, panel)
}
