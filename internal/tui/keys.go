package tui

import (
	"strings"

	"github.com/charmbracelet/bubbles/key"
)

// KeyMap defines the key bindings for the application
type KeyMap struct {
	// Form navigation
	NextField key.Binding
	PrevField key.Binding
	Enter     key.Binding
	Escape    key.Binding

	// Actions
	Help    key.Binding
	Refresh key.Binding
	Retry   key.Binding
	SignOut key.Binding
	Quit    key.Binding
	Force   key.Binding
}

// DefaultKeyMap returns the default key bindings
func DefaultKeyMap() KeyMap {
	return KeyMap{
		NextField: key.NewBinding(
			key.WithKeys("tab", "down"),
			key.WithHelp("tab", "next field"),
		),
		PrevField: key.NewBinding(
			key.WithKeys("shift+tab", "up"),
			key.WithHelp("shift+tab", "previous field"),
		),
		Enter: key.NewBinding(
			key.WithKeys("enter"),
			key.WithHelp("enter", "submit"),
		),
		Escape: key.NewBinding(
			key.WithKeys("esc"),
			key.WithHelp("esc", "dismiss"),
		),
		Help: key.NewBinding(
			key.WithKeys("?"),
			key.WithHelp("?", "help"),
		),
		Refresh: key.NewBinding(
			key.WithKeys("r"),
			key.WithHelp("r", "refresh"),
		),
		Retry: key.NewBinding(
			key.WithKeys("r"),
			key.WithHelp("r", "retry"),
		),
		SignOut: key.NewBinding(
			key.WithKeys("s"),
			key.WithHelp("s", "sign out"),
		),
		Quit: key.NewBinding(
			key.WithKeys("q"),
			key.WithHelp("q", "quit"),
		),
		Force: key.NewBinding(
			key.WithKeys("ctrl+c"),
			key.WithHelp("ctrl+c", "force quit"),
		),
	}
}

// ShortHelp returns the bindings shown in the status bar
func (k KeyMap) ShortHelp() []key.Binding {
	return []key.Binding{k.Refresh, k.SignOut, k.Help, k.Quit}
}

// FullHelp returns the bindings shown on the help screen
func (k KeyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{
		{k.NextField, k.PrevField, k.Enter, k.Escape},
		{k.Refresh, k.Retry, k.SignOut},
		{k.Help, k.Quit, k.Force},
	}
}

// helpHint renders the short help as a single dim status-bar line.
func (k KeyMap) helpHint() string {
	parts := make([]string, 0, 4)
	for _, b := range k.ShortHelp() {
		h := b.Help()
		parts = append(parts, HelpKeyStyle.Render(h.Key)+" "+HelpDescStyle.Render(h.Desc))
	}
	return strings.Join(parts, DimStyle.Render(" · "))
}
