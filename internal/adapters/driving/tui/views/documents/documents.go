// Package documents provides the ingestion queue view for the TUI.
package documents

import (
	"context"
	"errors"
	"fmt"
	"strings"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/custodia-labs/ragline/internal/adapters/driving/tui/messages"
	"github.com/custodia-labs/ragline/internal/adapters/driving/tui/styles"
	"github.com/custodia-labs/ragline/internal/core/domain"
	"github.com/custodia-labs/ragline/internal/core/ports/driving"
)

// ErrNoIngestionService is returned when the view has no ingestion service.
var ErrNoIngestionService = errors.New("ingestion service not available")

// QueueBatch is the number of pending documents processed per "p" press.
const QueueBatch = 10

// ActionOption represents a document action.
type ActionOption int

const (
	ActionRetry ActionOption = iota
	ActionRemove
	ActionCancel
)

// View lists documents with their ingestion status.
type View struct {
	styles    *styles.Styles
	ingestion driving.IngestionService
	ctx       context.Context

	documents    []domain.Document
	selected     int
	width        int
	height       int
	ready        bool
	err          error
	notice       string
	loading      bool
	showingMenu  bool
	menuSelected ActionOption
	scrollOffset int
}

// NewView creates a new documents view.
func NewView(s *styles.Styles, ingestion driving.IngestionService) *View {
	if s == nil {
		s = styles.DefaultStyles()
	}
	return &View{
		styles:    s,
		ingestion: ingestion,
		ctx:       context.Background(),
		documents: []domain.Document{},
	}
}

// WithContext sets the context used for service calls.
func (v *View) WithContext(ctx context.Context) *View {
	v.ctx = ctx
	return v
}

// Init initialises the view.
func (v *View) Init() tea.Cmd {
	return nil
}

// Load resets the selection and reloads the document list.
func (v *View) Load() tea.Cmd {
	v.selected = 0
	v.scrollOffset = 0
	v.showingMenu = false
	v.err = nil
	v.notice = ""
	v.loading = true
	return v.loadDocuments()
}

func (v *View) loadDocuments() tea.Cmd {
	svc, ctx := v.ingestion, v.ctx
	return func() tea.Msg {
		if svc == nil {
			return messages.DocumentsLoaded{Err: ErrNoIngestionService}
		}
		docs, err := svc.ListDocuments(ctx)
		return messages.DocumentsLoaded{Documents: docs, Err: err}
	}
}

// Update handles messages for the documents view.
func (v *View) Update(msg tea.Msg) (*View, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		v.SetDimensions(msg.Width, msg.Height)
		return v, nil

	case tea.KeyMsg:
		if v.showingMenu {
			return v.handleMenuKeyMsg(msg)
		}
		return v.handleKeyMsg(msg)

	case messages.DocumentsLoaded:
		v.loading = false
		if msg.Err != nil {
			v.err = msg.Err
			return v, nil
		}
		v.documents = msg.Documents
		v.err = nil
		if v.selected >= len(v.documents) {
			v.selected = max(len(v.documents)-1, 0)
		}
		v.adjustScroll()
		return v, nil

	case messages.DocumentRequeued:
		if msg.Err != nil {
			v.err = msg.Err
			return v, nil
		}
		v.notice = fmt.Sprintf("Document %d queued for processing", msg.DocumentID)
		return v, v.loadDocuments()

	case messages.DocumentRemoved:
		if msg.Err != nil {
			v.err = msg.Err
			return v, nil
		}
		v.notice = fmt.Sprintf("Document %d removed", msg.DocumentID)
		return v, v.loadDocuments()

	case messages.QueueProcessed:
		v.loading = false
		if msg.Err != nil {
			v.err = msg.Err
			return v, nil
		}
		if msg.Result.Processed == 0 {
			v.notice = "No pending documents"
		} else {
			v.notice = fmt.Sprintf("Processed %d documents: %d succeeded, %d failed",
				msg.Result.Processed, msg.Result.Succeeded, msg.Result.Failed)
		}
		return v, v.loadDocuments()

	case messages.ErrorOccurred:
		v.err = msg.Err
		return v, nil
	}

	return v, nil
}

// handleKeyMsg handles key presses in list mode.
func (v *View) handleKeyMsg(msg tea.KeyMsg) (*View, tea.Cmd) {
	switch msg.String() {
	case "up", "k":
		if v.selected > 0 {
			v.selected--
			v.adjustScroll()
		}
	case "down", "j":
		if v.selected < len(v.documents)-1 {
			v.selected++
			v.adjustScroll()
		}
	case "enter":
		if len(v.documents) > 0 {
			v.showingMenu = true
			v.menuSelected = ActionRetry
		}
	case "esc":
		return v, func() tea.Msg {
			return messages.ViewChanged{View: messages.ViewMenu}
		}
	case "r":
		v.loading = true
		v.err = nil
		return v, v.loadDocuments()
	case "p":
		v.loading = true
		v.err = nil
		v.notice = ""
		return v, v.processQueue()
	}

	return v, nil
}

// handleMenuKeyMsg handles key presses in action menu mode.
func (v *View) handleMenuKeyMsg(msg tea.KeyMsg) (*View, tea.Cmd) {
	switch msg.String() {
	case "up", "k":
		if v.menuSelected > ActionRetry {
			v.menuSelected--
		}
	case "down", "j":
		if v.menuSelected < ActionCancel {
			v.menuSelected++
		}
	case "enter":
		return v.handleMenuSelect()
	case "esc":
		v.showingMenu = false
	}

	return v, nil
}

// handleMenuSelect runs the chosen action on the selected document.
func (v *View) handleMenuSelect() (*View, tea.Cmd) {
	v.showingMenu = false
	if v.selected >= len(v.documents) {
		return v, nil
	}

	id := v.documents[v.selected].ID
	switch v.menuSelected {
	case ActionRetry:
		return v, v.requeue(id)
	case ActionRemove:
		return v, v.remove(id)
	}
	return v, nil
}

func (v *View) requeue(id int64) tea.Cmd {
	svc, ctx := v.ingestion, v.ctx
	return func() tea.Msg {
		if svc == nil {
			return messages.DocumentRequeued{DocumentID: id, Err: ErrNoIngestionService}
		}
		return messages.DocumentRequeued{DocumentID: id, Err: svc.Requeue(ctx, id)}
	}
}

func (v *View) remove(id int64) tea.Cmd {
	svc, ctx := v.ingestion, v.ctx
	return func() tea.Msg {
		if svc == nil {
			return messages.DocumentRemoved{DocumentID: id, Err: ErrNoIngestionService}
		}
		return messages.DocumentRemoved{DocumentID: id, Err: svc.DeleteDocument(ctx, id)}
	}
}

func (v *View) processQueue() tea.Cmd {
	svc, ctx := v.ingestion, v.ctx
	return func() tea.Msg {
		if svc == nil {
			return messages.QueueProcessed{Err: ErrNoIngestionService}
		}
		result, err := svc.ProcessQueue(ctx, QueueBatch)
		return messages.QueueProcessed{Result: result, Err: err}
	}
}

// adjustScroll keeps the selected item visible.
func (v *View) adjustScroll() {
	visibleItems := v.visibleItemCount()
	if v.selected < v.scrollOffset {
		v.scrollOffset = v.selected
	} else if v.selected >= v.scrollOffset+visibleItems {
		v.scrollOffset = v.selected - visibleItems + 1
	}
}

// visibleItemCount returns the number of rows that fit.
func (v *View) visibleItemCount() int {
	// title, notice, help and padding
	available := v.height - 8
	if available < 1 {
		available = 1
	}
	return available
}

// View renders the documents view.
func (v *View) View() string {
	var b strings.Builder

	b.WriteString(v.styles.Title.Render(fmt.Sprintf("Documents (%d)", len(v.documents))))
	b.WriteString("\n\n")

	if v.notice != "" {
		b.WriteString(v.styles.Success.Render(v.notice))
		b.WriteString("\n\n")
	}

	switch {
	case v.loading:
		b.WriteString(v.styles.Muted.Render("Loading documents..."))
	case v.err != nil:
		b.WriteString(v.styles.Error.Render("Error: " + v.err.Error()))
	case len(v.documents) == 0:
		b.WriteString(v.styles.Muted.Render("No documents. Add some with `ragline ingest`."))
	case v.showingMenu:
		b.WriteString(v.renderActionMenu())
		return b.String()
	default:
		visibleItems := v.visibleItemCount()
		for i := v.scrollOffset; i < len(v.documents) && i < v.scrollOffset+visibleItems; i++ {
			b.WriteString(v.renderDocument(i, &v.documents[i]))
			b.WriteString("\n")
		}
		if len(v.documents) > visibleItems {
			b.WriteString("\n")
			b.WriteString(v.styles.Muted.Render(fmt.Sprintf("  [%d-%d of %d]",
				v.scrollOffset+1,
				min(v.scrollOffset+visibleItems, len(v.documents)),
				len(v.documents))))
		}
	}

	b.WriteString("\n\n")
	b.WriteString(v.renderHelp())
	return b.String()
}

// renderDocument renders a single document row.
func (v *View) renderDocument(index int, doc *domain.Document) string {
	indicator := "  "
	if index == v.selected {
		indicator = "> "
	}

	title := doc.Title
	if title == "" {
		title = doc.SourceRef
	}
	maxTitleLen := v.width/2 - 4
	if maxTitleLen < 10 {
		maxTitleLen = 10
	}
	if len(title) > maxTitleLen {
		title = title[:maxTitleLen-3] + "..."
	}

	status := v.styles.DocumentStatus(doc.Status).Render(fmt.Sprintf("%-10s", doc.Status))
	row := fmt.Sprintf("%s%4d  %-*s  ", indicator, doc.ID, maxTitleLen, title)
	if index == v.selected {
		row = v.styles.Selected.Render(row)
	} else {
		row = v.styles.Normal.Render(row)
	}
	line := row + status
	if reason := doc.FailureReason(); reason != "" && doc.Status == domain.DocumentFailed {
		line += "  " + v.styles.Muted.Render(reason)
	}
	return line
}

// renderActionMenu renders the action menu overlay.
func (v *View) renderActionMenu() string {
	var b strings.Builder

	if v.selected < len(v.documents) {
		doc := v.documents[v.selected]
		title := doc.Title
		if title == "" {
			title = doc.SourceRef
		}
		b.WriteString(v.styles.Subtitle.Render("Actions for: " + title))
		b.WriteString("\n\n")
	}

	options := []struct {
		action ActionOption
		label  string
	}{
		{ActionRetry, "Retry (requeue)"},
		{ActionRemove, "Remove"},
		{ActionCancel, "Cancel"},
	}
	for _, opt := range options {
		if v.menuSelected == opt.action {
			b.WriteString(v.styles.Selected.Render("> " + opt.label))
		} else {
			b.WriteString(v.styles.Normal.Render("  " + opt.label))
		}
		b.WriteString("\n")
	}

	b.WriteString("\n")
	b.WriteString(v.styles.Help.Render("[↑/↓] navigate  [enter] select  [esc] cancel"))
	return b.String()
}

func (v *View) renderHelp() string {
	return v.styles.Help.Render("[↑/↓] navigate  [enter] actions  [p] process queue  [r] reload  [esc] back")
}

// SetDimensions sets the view dimensions.
func (v *View) SetDimensions(width, height int) {
	v.width = width
	v.height = height
	v.ready = true
}

// Documents returns the current list of documents.
func (v *View) Documents() []domain.Document {
	return v.documents
}

// SelectedIndex returns the currently selected document index.
func (v *View) SelectedIndex() int {
	return v.selected
}

// SelectedDocument returns the currently selected document.
func (v *View) SelectedDocument() *domain.Document {
	if v.selected < len(v.documents) {
		return &v.documents[v.selected]
	}
	return nil
}

// IsShowingMenu returns true if the action menu is visible.
func (v *View) IsShowingMenu() bool {
	return v.showingMenu
}

// Loading reports whether a load or queue pass is in flight.
func (v *View) Loading() bool {
	return v.loading
}

// Notice returns the last informational message.
func (v *View) Notice() string {
	return v.notice
}

// Err returns the last error.
func (v *View) Err() error {
	return v.err
}
