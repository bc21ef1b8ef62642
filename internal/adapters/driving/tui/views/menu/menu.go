// Package menu provides the main navigation menu view for the TUI.
package menu

import (
	"strings"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/custodia-labs/ragline/internal/adapters/driving/tui/messages"
	"github.com/custodia-labs/ragline/internal/adapters/driving/tui/styles"
)

// Item represents a single menu option.
type Item struct {
	Label       string
	Description string
	View        messages.ViewType
	Quit        bool // If true, selecting this item quits the app
}

// View represents the main menu view.
type View struct {
	styles   *styles.Styles
	items    []Item
	selected int
	width    int
	height   int
	ready    bool
}

// NewView creates a new menu view.
func NewView(s *styles.Styles) *View {
	if s == nil {
		s = styles.DefaultStyles()
	}

	return &View{
		styles: s,
		items: []Item{
			{Label: "Search", Description: "find context passages", View: messages.ViewSearch},
			{Label: "Chat", Description: "ask questions about your documents", View: messages.ViewChat},
			{Label: "Documents", Description: "ingestion queue and status", View: messages.ViewDocuments},
			{Label: "Help", Description: "keyboard shortcuts", View: messages.ViewHelp},
			{Label: "Quit", Quit: true},
		},
		width:  80,
		height: 24,
	}
}

// Init initialises the menu view.
func (v *View) Init() tea.Cmd {
	return nil
}

// Update handles messages for the menu view.
func (v *View) Update(msg tea.Msg) (*View, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		v.SetDimensions(msg.Width, msg.Height)
		return v, nil

	case tea.KeyMsg:
		switch msg.String() {
		case "up", "k":
			if v.selected > 0 {
				v.selected--
			}
			return v, nil

		case "down", "j":
			if v.selected < len(v.items)-1 {
				v.selected++
			}
			return v, nil

		case "1", "2", "3", "4":
			v.selected = int(msg.String()[0] - '1')
			return v, v.choose()

		case "enter":
			return v, v.choose()

		case "q":
			return v, tea.Quit
		}
	}

	return v, nil
}

func (v *View) choose() tea.Cmd {
	item := v.items[v.selected]
	if item.Quit {
		return tea.Quit
	}
	return func() tea.Msg {
		return messages.ViewChanged{View: item.View}
	}
}

// View renders the menu.
func (v *View) View() string {
	if !v.ready {
		return "Initialising..."
	}

	var b strings.Builder

	b.WriteString(v.styles.Title.Render("ragline"))
	b.WriteString("\n\n")
	b.WriteString(v.styles.Muted.Render("Knowledge base assistant"))
	b.WriteString("\n\n")

	for i, item := range v.items {
		cursor := "  "
		label := v.styles.Normal.Render(item.Label)
		if i == v.selected {
			cursor = "> "
			label = v.styles.Subtitle.Render(item.Label)
		}
		b.WriteString(cursor + label)
		if item.Description != "" {
			b.WriteString(v.styles.Muted.Render("  " + item.Description))
		}
		b.WriteString("\n")
	}

	b.WriteString("\n")
	b.WriteString(v.styles.Help.Render("[j/k] Navigate  [1-4] Jump  [Enter] Select  [q] Quit"))

	return b.String()
}

// SetDimensions sets the view dimensions.
func (v *View) SetDimensions(width, height int) {
	v.width = width
	v.height = height
	v.ready = true
}

// Selected returns the currently selected index.
func (v *View) Selected() int {
	return v.selected
}

// Items returns the menu items.
func (v *View) Items() []Item {
	return v.items
}
