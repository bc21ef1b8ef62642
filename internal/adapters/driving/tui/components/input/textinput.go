// Package input provides text input components for the TUI.
package input

import (
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/custodia-labs/ragline/internal/adapters/driving/tui/styles"
)

// TextInput wraps a bubbles textinput with a label.
type TextInput struct {
	textinput textinput.Model
	styles    *styles.Styles
	label     string
	width     int
}

// New creates a focused input labelled label.
func New(s *styles.Styles, label, placeholder string, charLimit int) *TextInput {
	if s == nil {
		s = styles.DefaultStyles()
	}

	ti := textinput.New()
	ti.Placeholder = placeholder
	ti.Focus()
	ti.CharLimit = charLimit
	ti.Width = 50

	return &TextInput{
		textinput: ti,
		styles:    s,
		label:     label,
		width:     50,
	}
}

// NewSearchInput creates the query input of the search view.
func NewSearchInput(s *styles.Styles) *TextInput {
	return New(s, "Search", "Ask a question to find context...", 256)
}

// NewMessageInput creates the message input of the chat view.
func NewMessageInput(s *styles.Styles) *TextInput {
	return New(s, "You", "Type a message...", 2000)
}

// Init initialises the input.
func (t *TextInput) Init() tea.Cmd {
	return textinput.Blink
}

// Update handles input messages.
func (t *TextInput) Update(msg tea.Msg) (*TextInput, tea.Cmd) {
	var cmd tea.Cmd
	t.textinput, cmd = t.textinput.Update(msg)
	return t, cmd
}

// View renders the labelled input.
func (t *TextInput) View() string {
	label := t.styles.Title.Render(t.label + ": ")
	field := t.styles.InputField.Render(t.textinput.View())
	//nolint:misspell // lipgloss.Center is the correct constant from the library
	return lipgloss.JoinHorizontal(lipgloss.Center, label, field)
}

// Value returns the current input value.
func (t *TextInput) Value() string {
	return t.textinput.Value()
}

// SetValue sets the input value.
func (t *TextInput) SetValue(value string) {
	t.textinput.SetValue(value)
}

// Focus sets focus on the input.
func (t *TextInput) Focus() tea.Cmd {
	return t.textinput.Focus()
}

// Blur removes focus from the input.
func (t *TextInput) Blur() {
	t.textinput.Blur()
}

// Focused returns whether the input is focused.
func (t *TextInput) Focused() bool {
	return t.textinput.Focused()
}

// SetWidth sets the width of the input, leaving room for the label.
func (t *TextInput) SetWidth(width int) {
	t.width = width
	inputWidth := width - len(t.label) - 8
	if inputWidth < 20 {
		inputWidth = 20
	}
	t.textinput.Width = inputWidth
}

// Width returns the current width.
func (t *TextInput) Width() int {
	return t.width
}

// Reset clears the input.
func (t *TextInput) Reset() {
	t.textinput.Reset()
}
