// Package search provides the context search view for the TUI.
package search

import (
	"context"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/custodia-labs/ragline/internal/adapters/driving/tui/components/input"
	"github.com/custodia-labs/ragline/internal/adapters/driving/tui/components/list"
	"github.com/custodia-labs/ragline/internal/adapters/driving/tui/components/status"
	"github.com/custodia-labs/ragline/internal/adapters/driving/tui/keymap"
	"github.com/custodia-labs/ragline/internal/adapters/driving/tui/messages"
	"github.com/custodia-labs/ragline/internal/adapters/driving/tui/styles"
	"github.com/custodia-labs/ragline/internal/core/domain"
	"github.com/custodia-labs/ragline/internal/core/ports/driving"
)

// View represents the search view with input, results list, and status bar.
type View struct {
	styles    *styles.Styles
	keymap    *keymap.KeyMap
	input     *input.TextInput
	list      *list.ResultList
	statusbar *status.Bar

	retrieval driving.RetrievalService
	ownerID   int64
	ctx       context.Context

	width      int
	height     int
	ready      bool
	err        error
	focusInput bool // true = input mode (typing), false = results mode (navigating)
}

// NewView creates a new search view. ownerID scopes results to a chatbot; 0 searches everything.
func NewView(
	s *styles.Styles,
	km *keymap.KeyMap,
	retrieval driving.RetrievalService,
	ownerID int64,
) *View {
	if s == nil {
		s = styles.DefaultStyles()
	}
	if km == nil {
		km = keymap.DefaultKeyMap()
	}

	return &View{
		styles:     s,
		keymap:     km,
		input:      input.NewSearchInput(s),
		list:       list.NewResultList(s),
		statusbar:  status.NewBar(s, km),
		retrieval:  retrieval,
		ownerID:    ownerID,
		ctx:        context.Background(),
		width:      80,
		height:     24,
		focusInput: true,
	}
}

// WithContext sets the context for the view.
func (v *View) WithContext(ctx context.Context) *View {
	v.ctx = ctx
	return v
}

// Init initialises the view.
func (v *View) Init() tea.Cmd {
	return v.input.Init()
}

// Update handles messages for the search view.
func (v *View) Update(msg tea.Msg) (*View, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		v.SetDimensions(msg.Width, msg.Height)
		return v, nil

	case tea.KeyMsg:
		return v.handleKeyMsg(msg)

	case messages.SearchCompleted:
		v.handleSearchCompleted(msg)
		return v, nil

	case messages.ErrorOccurred:
		v.err = msg.Err
		v.statusbar.SetState(status.StateError)
		v.statusbar.SetMessage(msg.Err.Error())
		return v, nil
	}

	var cmd tea.Cmd
	v.input, cmd = v.input.Update(msg)
	return v, cmd
}

// handleKeyMsg processes keyboard input.
func (v *View) handleKeyMsg(msg tea.KeyMsg) (*View, tea.Cmd) {
	if msg.Type == tea.KeyEsc {
		if v.list.Expanded() {
			v.list.ToggleExpanded()
			return v, nil
		}
		return v, func() tea.Msg {
			return messages.ViewChanged{View: messages.ViewMenu}
		}
	}

	if v.focusInput {
		if msg.Type == tea.KeyEnter {
			query := v.input.Value()
			if query == "" {
				return v, nil
			}
			v.statusbar.SetState(status.StateBusy)
			v.statusbar.SetMessage("Searching")
			v.focusInput = false
			v.input.Blur()
			return v, v.performSearch(query)
		}
		var cmd tea.Cmd
		v.input, cmd = v.input.Update(msg)
		return v, cmd
	}

	if keymap.Matches(msg.String(), v.keymap.Expand) {
		v.list.ToggleExpanded()
		return v, nil
	}
	if keymap.Matches(msg.String(), v.keymap.NewSearch) {
		v.focusInput = true
		v.list.SetResults(nil)
		v.input.SetValue("")
		return v, v.input.Focus()
	}
	if !v.list.Expanded() {
		v.list, _ = v.list.Update(msg)
	}
	return v, nil
}

// performSearch finds context passages for query.
func (v *View) performSearch(query string) tea.Cmd {
	retrieval, ctx, owner := v.retrieval, v.ctx, v.ownerID
	return func() tea.Msg {
		if retrieval == nil {
			return messages.ErrorOccurred{Err: ErrNoRetrievalService}
		}
		results, err := retrieval.FindContext(ctx, query, owner, domain.ContextOptions{})
		return messages.SearchCompleted{Query: query, Results: results, Err: err}
	}
}

// handleSearchCompleted processes search results.
func (v *View) handleSearchCompleted(msg messages.SearchCompleted) {
	if msg.Err != nil {
		v.err = msg.Err
		v.statusbar.SetState(status.StateError)
		v.statusbar.SetMessage(msg.Err.Error())
		return
	}

	v.err = nil
	v.list.SetResults(msg.Results)
	v.statusbar.SetState(status.StateResults)
	v.statusbar.SetMessage("")
	v.statusbar.SetResultCount(len(msg.Results))
	v.focusInput = false
	v.input.Blur()
}

// View renders the search view.
func (v *View) View() string {
	if !v.ready {
		return "Initialising..."
	}

	sections := make([]string, 0, 8)
	sections = append(sections, v.styles.Title.Render("ragline · search"), "", v.input.View(), "")

	if v.err != nil {
		sections = append(sections, v.styles.Error.Render("Error: "+v.err.Error()), "")
	}

	sections = append(sections, v.list.View(), "", v.statusbar.View())
	return lipgloss.JoinVertical(lipgloss.Left, sections...)
}

// SetDimensions sets the view dimensions.
func (v *View) SetDimensions(width, height int) {
	v.width = width
	v.height = height
	v.ready = true

	v.input.SetWidth(width)
	v.list.SetDimensions(width, height-10) // header, input and status
	v.statusbar.SetWidth(width)
}

// Ready returns whether the view is ready to render.
func (v *View) Ready() bool {
	return v.ready
}

// Query returns the current search query.
func (v *View) Query() string {
	return v.input.Value()
}

// SetQuery sets the search query.
func (v *View) SetQuery(query string) {
	v.input.SetValue(query)
}

// Results returns the current search results.
func (v *View) Results() []domain.ContextResult {
	return v.list.Results()
}

// SelectedIndex returns the index of the selected result.
func (v *View) SelectedIndex() int {
	return v.list.Selected()
}

// SelectedResult returns the currently selected result.
func (v *View) SelectedResult() *domain.ContextResult {
	return v.list.SelectedResult()
}

// Expanded reports whether the selected passage is shown in full.
func (v *View) Expanded() bool {
	return v.list.Expanded()
}

// Err returns the current error, if any.
func (v *View) Err() error {
	return v.err
}

// Reset resets the view to initial input mode.
func (v *View) Reset() {
	v.focusInput = true
	v.input.Focus()
	v.input.SetValue("")
	v.list.SetResults(nil)
	v.err = nil
	v.statusbar.Clear()
}

// InputFocused returns whether the input has focus.
func (v *View) InputFocused() bool {
	return v.focusInput
}
