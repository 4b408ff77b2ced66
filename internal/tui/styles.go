package tui

import "github.com/charmbracelet/lipgloss"

// Tokyo Night color palette
var (
	// Background colors
	ColorBgPrimary   = lipgloss.Color("#1A1B26")
	ColorBgPanel     = lipgloss.Color("#16161E")
	ColorBgHighlight = lipgloss.Color("#292E42")

	// Foreground colors
	ColorFgPrimary   = lipgloss.Color("#C0CAF5")
	ColorFgSecondary = lipgloss.Color("#A9B1D6")
	ColorFgMuted     = lipgloss.Color("#565F89")

	// Accent colors
	ColorRed     = lipgloss.Color("#F7768E")
	ColorGreen   = lipgloss.Color("#9ECE6A")
	ColorYellow  = lipgloss.Color("#E0AF68")
	ColorBlue    = lipgloss.Color("#7AA2F7")
	ColorMagenta = lipgloss.Color("#BB9AF7")
	ColorCyan    = lipgloss.Color("#7DCFFF")
	ColorOrange  = lipgloss.Color("#FF9E64")

	// UI colors
	ColorBorder = lipgloss.Color("#3B4261")
)

// Component styles
var (
	// Brand title
	TitleStyle = lipgloss.NewStyle().
			Foreground(ColorCyan).
			Bold(true)

	SubtitleStyle = lipgloss.NewStyle().
			Foreground(ColorFgMuted)

	// Centered panels (boot gate, login)
	PanelStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(ColorBorder).
			Padding(1, 3)

	// Dashboard cards
	CardStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(ColorBorder).
			Padding(0, 2).
			MarginRight(1)

	CardTitleStyle = lipgloss.NewStyle().
			Foreground(ColorFgMuted)

	ValueStyle = lipgloss.NewStyle().
			Foreground(ColorFgPrimary).
			Bold(true)

	DeltaUpStyle = lipgloss.NewStyle().
			Foreground(ColorGreen)

	DeltaDownStyle = lipgloss.NewStyle().
			Foreground(ColorRed)

	SectionTitleStyle = lipgloss.NewStyle().
				Foreground(ColorMagenta).
				Bold(true)

	// Distribution bars
	BarFilledStyle = lipgloss.NewStyle().
			Foreground(ColorBlue)

	BarEmptyStyle = lipgloss.NewStyle().
			Foreground(ColorBgHighlight)

	// Status bar
	StatusBarStyle = lipgloss.NewStyle().
			Foreground(ColorFgMuted).
			PaddingLeft(1).
			PaddingRight(1)

	LiveStyle = lipgloss.NewStyle().
			Foreground(ColorGreen)

	// Input styles
	InputPromptStyle = lipgloss.NewStyle().
				Foreground(ColorBlue)

	// Spinner
	SpinnerStyle = lipgloss.NewStyle().
			Foreground(ColorCyan)

	// Help overlay
	HelpStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(ColorBorder).
			Padding(1, 2)

	HelpTitleStyle = lipgloss.NewStyle().
			Foreground(ColorBlue).
			Bold(true)

	HelpKeyStyle = lipgloss.NewStyle().
			Foreground(ColorYellow)

	HelpDescStyle = lipgloss.NewStyle().
			Foreground(ColorFgPrimary)

	// Feedback styles
	ErrorStyle = lipgloss.NewStyle().
			Foreground(ColorRed)

	SuccessStyle = lipgloss.NewStyle().
			Foreground(ColorGreen)

	WarningStyle = lipgloss.NewStyle().
			Foreground(ColorYellow)

	DimStyle = lipgloss.NewStyle().
			Foreground(ColorFgMuted)
)
