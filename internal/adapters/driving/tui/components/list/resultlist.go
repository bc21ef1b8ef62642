// Package list provides list display components for the TUI.
package list

import (
	"fmt"
	"strings"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/custodia-labs/ragline/internal/adapters/driving/tui/styles"
	"github.com/custodia-labs/ragline/internal/core/domain"
)

// ResultList displays context passages in a navigable list.
type ResultList struct {
	results  []domain.ContextResult
	selected int
	expanded bool
	styles   *styles.Styles
	width    int
	height   int
}

// NewResultList creates a new result list component.
func NewResultList(s *styles.Styles) *ResultList {
	if s == nil {
		s = styles.DefaultStyles()
	}

	return &ResultList{
		styles: s,
		width:  80,
		height: 10,
	}
}

// Init initialises the result list.
func (r *ResultList) Init() tea.Cmd {
	return nil
}

// Update handles list navigation messages.
func (r *ResultList) Update(msg tea.Msg) (*ResultList, tea.Cmd) {
	if msg, ok := msg.(tea.KeyMsg); ok {
		switch msg.String() {
		case "up", "k":
			r.MoveUp()
		case "down", "j":
			r.MoveDown()
		}
	}
	return r, nil
}

// View renders the result list.
func (r *ResultList) View() string {
	if len(r.results) == 0 {
		return r.styles.Muted.Render("No results")
	}

	lines := make([]string, 0, len(r.results)+2)
	lines = append(lines, r.styles.Subtitle.Render(fmt.Sprintf("Results (%d)", len(r.results))), "")

	if r.expanded {
		lines = append(lines, r.renderExpanded(&r.results[r.selected]))
		return strings.Join(lines, "\n")
	}

	// Each result takes up to three lines.
	visibleCount := (r.height - 4) / 3
	if visibleCount < 1 {
		visibleCount = 1
	}

	start := 0
	if r.selected >= visibleCount {
		start = r.selected - visibleCount + 1
	}
	end := start + visibleCount
	if end > len(r.results) {
		end = len(r.results)
	}

	for i := start; i < end; i++ {
		lines = append(lines, r.renderResult(i, &r.results[i]))
	}

	return strings.Join(lines, "\n")
}

// Title returns the display title of a passage.
func Title(result *domain.ContextResult) string {
	if title, ok := result.Metadata["title"].(string); ok && title != "" {
		return title
	}
	return fmt.Sprintf("chunk %d", result.ChunkID)
}

func (r *ResultList) renderResult(index int, result *domain.ContextResult) string {
	indicator := "  "
	if index == r.selected {
		indicator = "> "
	}

	maxTitleLen := r.width - 20
	if maxTitleLen < 10 {
		maxTitleLen = 10
	}
	title := truncate(Title(result), maxTitleLen)
	score := fmt.Sprintf("%.2f", result.Relevance)

	var titleLine string
	if index == r.selected {
		titleLine = r.styles.Selected.Render(fmt.Sprintf("%s%-*s  %s", indicator, maxTitleLen, title, score))
	} else {
		titleLine = r.styles.Normal.Render(fmt.Sprintf("%s%-*s  ", indicator, maxTitleLen, title)) +
			r.styles.Muted.Render(score)
	}

	maxPreviewLen := r.width - 6
	if maxPreviewLen < 20 {
		maxPreviewLen = 20
	}
	preview := truncate(strings.Join(strings.Fields(result.Content), " "), maxPreviewLen)
	previewLine := r.styles.Muted.Render("    " + preview)

	var sourceLine string
	if result.Source != "" {
		sourceLine = "\n" + r.styles.Subtitle.Render("    "+truncate(result.Source, maxPreviewLen))
	}

	return titleLine + sourceLine + "\n" + previewLine
}

// renderExpanded shows a passage with its neighbouring chunks.
func (r *ResultList) renderExpanded(result *domain.ContextResult) string {
	var b strings.Builder
	b.WriteString(r.styles.Selected.Render(fmt.Sprintf("> %s  %.2f", Title(result), result.Relevance)))
	b.WriteString("\n")
	if result.Source != "" {
		b.WriteString(r.styles.Subtitle.Render(result.Source))
		b.WriteString("\n")
	}
	b.WriteString("\n")
	for _, c := range result.Before {
		b.WriteString(r.styles.Muted.Render(c.Content))
		b.WriteString("\n\n")
	}
	b.WriteString(r.styles.Normal.Render(result.Content))
	for _, c := range result.After {
		b.WriteString("\n\n")
		b.WriteString(r.styles.Muted.Render(c.Content))
	}
	return b.String()
}

func truncate(s string, maxLen int) string {
	runes := []rune(s)
	if len(runes) <= maxLen {
		return s
	}
	return string(runes[:maxLen-3]) + "..."
}

// SetResults updates the result list.
func (r *ResultList) SetResults(results []domain.ContextResult) {
	r.results = results
	r.selected = 0
	r.expanded = false
}

// Results returns the current results.
func (r *ResultList) Results() []domain.ContextResult {
	return r.results
}

// Selected returns the index of the selected result.
func (r *ResultList) Selected() int {
	return r.selected
}

// SetSelected sets the selected index.
func (r *ResultList) SetSelected(index int) {
	if index >= 0 && index < len(r.results) {
		r.selected = index
	}
}

// SelectedResult returns the currently selected result, or nil if none.
func (r *ResultList) SelectedResult() *domain.ContextResult {
	if len(r.results) == 0 || r.selected < 0 || r.selected >= len(r.results) {
		return nil
	}
	return &r.results[r.selected]
}

// ToggleExpanded switches between the list and the selected passage in full.
func (r *ResultList) ToggleExpanded() {
	if len(r.results) == 0 {
		r.expanded = false
		return
	}
	r.expanded = !r.expanded
}

// Expanded reports whether the selected passage is shown in full.
func (r *ResultList) Expanded() bool {
	return r.expanded
}

// MoveUp moves selection up.
func (r *ResultList) MoveUp() {
	if r.selected > 0 {
		r.selected--
	}
}

// MoveDown moves selection down.
func (r *ResultList) MoveDown() {
	if r.selected < len(r.results)-1 {
		r.selected++
	}
}

// SetDimensions sets the component dimensions.
func (r *ResultList) SetDimensions(width, height int) {
	r.width = width
	r.height = height
}

// Width returns the current width.
func (r *ResultList) Width() int {
	return r.width
}

// Height returns the current height.
func (r *ResultList) Height() int {
	return r.height
}

// Count returns the number of results.
func (r *ResultList) Count() int {
	return len(r.results)
}

// IsEmpty returns whether the list is empty.
func (r *ResultList) IsEmpty() bool {
	return len(r.results) == 0
}
