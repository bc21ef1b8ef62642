package tui

import (
	"context"
	"fmt"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/custodia-labs/ragline/internal/adapters/driving/tui/keymap"
	"github.com/custodia-labs/ragline/internal/adapters/driving/tui/messages"
	"github.com/custodia-labs/ragline/internal/adapters/driving/tui/styles"
	"github.com/custodia-labs/ragline/internal/adapters/driving/tui/views/chat"
	"github.com/custodia-labs/ragline/internal/adapters/driving/tui/views/documents"
	"github.com/custodia-labs/ragline/internal/adapters/driving/tui/views/menu"
	"github.com/custodia-labs/ragline/internal/adapters/driving/tui/views/search"
)

// App is the main TUI application following the Elm architecture.
// It implements tea.Model for use with Bubbletea.
type App struct {
	// ports provides access to core services via driving ports.
	ports *Ports

	// ctx is the context for cancellation.
	ctx context.Context

	// styles holds the TUI styles.
	styles *styles.Styles

	menuView      *menu.View
	searchView    *search.View
	chatView      *chat.View
	documentsView *documents.View

	// currentView tracks which view is active.
	currentView messages.ViewType

	// err holds the last error that occurred.
	err error

	// width and height are terminal dimensions.
	width  int
	height int

	// ready indicates if the app has initialised.
	ready bool
}

// Ensure App implements tea.Model.
var _ tea.Model = (*App)(nil)

// NewApp creates a new TUI application with the given ports.
func NewApp(ports *Ports) (*App, error) {
	if err := ports.Validate(); err != nil {
		return nil, fmt.Errorf("creating app: %w", err)
	}

	s := styles.DefaultStyles()
	km := keymap.DefaultKeyMap()

	return &App{
		ports:         ports,
		ctx:           context.Background(),
		styles:        s,
		menuView:      menu.NewView(s),
		searchView:    search.NewView(s, km, ports.Retrieval, ports.ChatbotID),
		chatView:      chat.NewView(s, km, ports.Chat, ports.Identity, ports.ChatbotID),
		documentsView: documents.NewView(s, ports.Ingestion),
		currentView:   messages.ViewMenu,
	}, nil
}

// WithContext sets the context for the app and its views.
func (a *App) WithContext(ctx context.Context) *App {
	a.ctx = ctx
	a.searchView.WithContext(ctx)
	a.chatView.WithContext(ctx)
	a.documentsView.WithContext(ctx)
	return a
}

// Init implements tea.Model.
func (a *App) Init() tea.Cmd {
	return tea.Batch(
		tea.EnterAltScreen,
		tea.SetWindowTitle("ragline"),
	)
}

// Update implements tea.Model.
//
//nolint:gocyclo // central message router
func (a *App) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmd tea.Cmd

	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		a.SetDimensions(msg.Width, msg.Height)
		return a, nil

	case tea.KeyMsg:
		if msg.String() == "ctrl+c" {
			return a, tea.Quit
		}
		if a.currentView == messages.ViewHelp {
			if msg.Type == tea.KeyEsc {
				a.currentView = messages.ViewMenu
			}
			return a, nil
		}

	case messages.ViewChanged:
		a.currentView = msg.View
		a.err = nil
		switch msg.View {
		case messages.ViewSearch:
			a.searchView.Reset()
			return a, a.searchView.Init()
		case messages.ViewChat:
			return a, a.chatView.Init()
		case messages.ViewDocuments:
			return a, a.documentsView.Load()
		case messages.ViewMenu, messages.ViewHelp:
		}
		return a, nil

	case messages.SearchCompleted:
		a.searchView, cmd = a.searchView.Update(msg)
		a.err = a.searchView.Err()
		return a, cmd

	case messages.ChatResponded:
		a.chatView, cmd = a.chatView.Update(msg)
		a.err = msg.Err
		return a, cmd

	case messages.DocumentsLoaded, messages.DocumentRequeued, messages.DocumentRemoved, messages.QueueProcessed:
		a.documentsView, cmd = a.documentsView.Update(msg)
		a.err = a.documentsView.Err()
		return a, cmd

	case messages.ErrorOccurred:
		a.err = msg.Err

	case messages.Quit:
		return a, tea.Quit
	}

	return a, a.forward(msg)
}

// forward passes msg to the active view.
func (a *App) forward(msg tea.Msg) tea.Cmd {
	var cmd tea.Cmd
	switch a.currentView {
	case messages.ViewMenu:
		a.menuView, cmd = a.menuView.Update(msg)
	case messages.ViewSearch:
		a.searchView, cmd = a.searchView.Update(msg)
	case messages.ViewChat:
		a.chatView, cmd = a.chatView.Update(msg)
	case messages.ViewDocuments:
		a.documentsView, cmd = a.documentsView.Update(msg)
	case messages.ViewHelp:
	}
	return cmd
}

// View implements tea.Model.
func (a *App) View() string {
	if !a.ready {
		return "Initialising..."
	}

	switch a.currentView {
	case messages.ViewSearch:
		return a.searchView.View()
	case messages.ViewChat:
		return a.chatView.View()
	case messages.ViewDocuments:
		return a.documentsView.View()
	case messages.ViewHelp:
		return a.viewHelp()
	default:
		return a.menuView.View()
	}
}

// viewHelp renders the help view.
func (a *App) viewHelp() string {
	return a.styles.Title.Render("Help") + `

Navigation:
  esc         Back to menu
  ctrl+c      Quit

Menu:
  j/k, ↑/↓    Navigate options
  1-4         Jump to option
  enter       Select option
  q           Quit

Search:
  enter       Submit query / expand passage
  n           New search

Chat:
  enter       Send message
  ctrl+n      New conversation
  pgup/pgdn   Scroll transcript

Documents:
  enter       Retry or remove
  p           Process pending documents
  r           Reload

` + a.styles.Help.Render("[esc] back to menu")
}

// Run starts the TUI application.
func (a *App) Run() error {
	p := tea.NewProgram(a, tea.WithAltScreen(), tea.WithContext(a.ctx))
	_, err := p.Run()
	return err
}

// CurrentView returns the current view type.
func (a *App) CurrentView() messages.ViewType {
	return a.currentView
}

// Err returns the last error that occurred.
func (a *App) Err() error {
	return a.err
}

// Ready returns whether the app has been initialised.
func (a *App) Ready() bool {
	return a.ready
}

// SetDimensions sets the terminal dimensions on the app and every view.
func (a *App) SetDimensions(width, height int) {
	a.width = width
	a.height = height
	a.ready = true
	a.menuView.SetDimensions(width, height)
	a.searchView.SetDimensions(width, height)
	a.chatView.SetDimensions(width, height)
	a.documentsView.SetDimensions(width, height)
}
