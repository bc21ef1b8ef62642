// Package styles provides colour themes and styling for the TUI.
package styles

import (
	"github.com/charmbracelet/lipgloss"

	"github.com/custodia-labs/ragline/internal/core/domain"
)

// Theme defines the colour palette for the TUI.
type Theme struct {
	Primary    lipgloss.Color
	Secondary  lipgloss.Color
	Foreground lipgloss.Color
	Muted      lipgloss.Color
	Success    lipgloss.Color
	Warning    lipgloss.Color
	Error      lipgloss.Color
	Border     lipgloss.Color
	Bar        lipgloss.Color
}

// DefaultTheme returns the default colour theme.
func DefaultTheme() *Theme {
	return &Theme{
		Primary:    lipgloss.Color("#0EA5E9"), // Sky
		Secondary:  lipgloss.Color("#A78BFA"), // Violet
		Foreground: lipgloss.Color("#E2E8F0"),
		Muted:      lipgloss.Color("#64748B"),
		Success:    lipgloss.Color("#4ADE80"),
		Warning:    lipgloss.Color("#FACC15"),
		Error:      lipgloss.Color("#F87171"),
		Border:     lipgloss.Color("#334155"),
		Bar:        lipgloss.Color("#0F172A"),
	}
}

// Styles contains pre-configured lipgloss styles.
type Styles struct {
	theme *Theme

	Title      lipgloss.Style
	Subtitle   lipgloss.Style
	Normal     lipgloss.Style
	Muted      lipgloss.Style
	Selected   lipgloss.Style
	Error      lipgloss.Style
	Success    lipgloss.Style
	Warning    lipgloss.Style
	InputField lipgloss.Style
	StatusBar  lipgloss.Style
	Help       lipgloss.Style
	Border     lipgloss.Style

	// UserLabel and BotLabel prefix chat turns.
	UserLabel lipgloss.Style
	BotLabel  lipgloss.Style
}

// NewStyles creates styles from a theme.
func NewStyles(theme *Theme) *Styles {
	if theme == nil {
		theme = DefaultTheme()
	}

	return &Styles{
		theme: theme,

		Title:    lipgloss.NewStyle().Bold(true).Foreground(theme.Primary),
		Subtitle: lipgloss.NewStyle().Bold(true).Foreground(theme.Secondary),
		Normal:   lipgloss.NewStyle().Foreground(theme.Foreground),
		Muted:    lipgloss.NewStyle().Foreground(theme.Muted),
		Selected: lipgloss.NewStyle().
			Bold(true).
			Foreground(theme.Bar).
			Background(theme.Primary),
		Error:   lipgloss.NewStyle().Foreground(theme.Error),
		Success: lipgloss.NewStyle().Foreground(theme.Success),
		Warning: lipgloss.NewStyle().Foreground(theme.Warning),

		InputField: lipgloss.NewStyle().
			BorderStyle(lipgloss.RoundedBorder()).
			BorderForeground(theme.Border).
			Padding(0, 1),
		StatusBar: lipgloss.NewStyle().
			Foreground(theme.Muted).
			Background(theme.Bar).
			Padding(0, 1),
		Help: lipgloss.NewStyle().Foreground(theme.Muted),
		Border: lipgloss.NewStyle().
			BorderStyle(lipgloss.RoundedBorder()).
			BorderForeground(theme.Border),

		UserLabel: lipgloss.NewStyle().Bold(true).Foreground(theme.Secondary),
		BotLabel:  lipgloss.NewStyle().Bold(true).Foreground(theme.Primary),
	}
}

// DefaultStyles returns styles with the default theme.
func DefaultStyles() *Styles {
	return NewStyles(DefaultTheme())
}

// Theme returns the theme used by these styles.
func (s *Styles) Theme() *Theme {
	return s.theme
}

// DocumentStatus returns the style for a document status badge.
func (s *Styles) DocumentStatus(status domain.DocumentStatus) lipgloss.Style {
	switch status {
	case domain.DocumentCompleted:
		return s.Success
	case domain.DocumentFailed:
		return s.Error
	case domain.DocumentProcessing:
		return s.Warning
	default:
		return s.Muted
	}
}
